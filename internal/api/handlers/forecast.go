package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/wonny/demandcast/backend/internal/contracts"
	"github.com/wonny/demandcast/backend/internal/pipeline"
	"github.com/wonny/demandcast/backend/internal/store"
	"github.com/wonny/demandcast/backend/pkg/logger"
	"github.com/wonny/demandcast/backend/pkg/redis"
)

const (
	defaultForecastDays = 7
	maxForecastDays     = pipeline.MaxAdhocDays
)

// AdhocPredictor computes synchronous forecasts (pipeline.Orchestrator)
type AdhocPredictor interface {
	PredictAdhoc(ctx context.Context, req pipeline.AdhocRequest) (*pipeline.AdhocResult, error)
}

// ForecastReader reads persisted forecasts (store.ForecastStore)
type ForecastReader interface {
	LatestForStore(ctx context.Context, store int) ([]store.StoredForecast, error)
}

// PredictRequest is the POST body
type PredictRequest struct {
	RestaurantID string   `json:"restaurant_id"`
	ForecastDays *int     `json:"forecast_days"`
	ItemIDs      []string `json:"item_ids"`
	StartDate    string   `json:"start_date"`
}

// ForecastPeriod is the requested forecast range
type ForecastPeriod struct {
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
	Days      int    `json:"days"`
}

// ItemPrediction is one item of the POST response
type ItemPrediction struct {
	ItemID             string  `json:"item_id"`
	ItemName           string  `json:"item_name"`
	ForecastedQuantity int     `json:"forecasted_quantity"`
	ConfidenceScore    float64 `json:"confidence_score"`
	Trend              string  `json:"trend"`
}

// PredictResponse is the POST response
type PredictResponse struct {
	RestaurantID         string           `json:"restaurant_id"`
	ForecastPeriod       ForecastPeriod   `json:"forecast_period"`
	TotalItemsForecasted int              `json:"total_items_forecasted"`
	Predictions          []ItemPrediction `json:"predictions"`
	ModelVersion         string           `json:"model_version,omitempty"`
	GeneratedAt          time.Time        `json:"generated_at"`
}

// StoredPrediction is one persisted row of the GET response
type StoredPrediction struct {
	ItemID          int     `json:"item_id"`
	ForecastDate    string  `json:"forecast_date"`
	PredictedDemand float64 `json:"predicted_demand"`
	YhatLower       float64 `json:"yhat_lower"`
	YhatUpper       float64 `json:"yhat_upper"`
	ModelVersion    string  `json:"model_version"`
}

// StoredResponse is the GET response
type StoredResponse struct {
	RestaurantID         string             `json:"restaurant_id"`
	TotalItemsForecasted int                `json:"total_items_forecasted"`
	Predictions          []StoredPrediction `json:"predictions"`
	GeneratedAt          time.Time          `json:"generated_at"`
}

// ForecastHandler handles demand forecast API endpoints
// ⭐ SSOT: 수요 예측 API 핸들러는 이 구조체에서만
type ForecastHandler struct {
	predictor AdhocPredictor
	reader    ForecastReader
	limiter   *redis.RateLimiter
	perMinute int
	now       func() time.Time
	logger    *logger.Logger
}

// NewForecastHandler creates a new forecast handler. limiter may wrap a disabled client.
func NewForecastHandler(
	predictor AdhocPredictor,
	reader ForecastReader,
	limiter *redis.RateLimiter,
	perMinute int,
	log *logger.Logger,
) *ForecastHandler {
	return &ForecastHandler{
		predictor: predictor,
		reader:    reader,
		limiter:   limiter,
		perMinute: perMinute,
		now:       time.Now,
		logger:    log,
	}
}

// Predict computes an ad-hoc forecast for a restaurant's items
// POST /api/ai/demandforecast/predict
func (h *ForecastHandler) Predict(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var body PredictRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&body); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	req, err := h.validate(body)
	if err != nil {
		respondErr(w, err)
		return
	}

	if h.limiter != nil && h.perMinute > 0 {
		allowed, _, err := h.limiter.Allow(ctx, redis.AdhocPredictLimit(body.RestaurantID, h.perMinute))
		if err != nil {
			h.logger.WithError(err).Warn("Rate limiter unavailable, allowing request")
		} else if !allowed {
			respondError(w, http.StatusTooManyRequests, "too many prediction requests")
			return
		}
	}

	res, err := h.predictor.PredictAdhoc(ctx, req)
	if err != nil {
		h.logger.WithError(err).WithField("restaurant_id", body.RestaurantID).Error("Ad-hoc prediction failed")
		respondErr(w, err)
		return
	}

	preds := make([]ItemPrediction, len(res.Items))
	for i, it := range res.Items {
		preds[i] = ItemPrediction{
			ItemID:             strconv.Itoa(it.Item),
			ItemName:           it.Name,
			ForecastedQuantity: it.Quantity,
			ConfidenceScore:    it.Confidence,
			Trend:              it.Trend,
		}
	}

	respondJSON(w, http.StatusOK, PredictResponse{
		RestaurantID: body.RestaurantID,
		ForecastPeriod: ForecastPeriod{
			StartDate: res.Start.Format(contracts.DateLayout),
			EndDate:   res.End.Format(contracts.DateLayout),
			Days:      res.Days,
		},
		TotalItemsForecasted: len(preds),
		Predictions:          preds,
		ModelVersion:         res.Artifact.Version,
		GeneratedAt:          res.GeneratedAt,
	})
}

// validate turns the body into a pipeline request. Failures are *contracts.ValidationError.
func (h *ForecastHandler) validate(body PredictRequest) (pipeline.AdhocRequest, error) {
	storeID, err := parseID("restaurant_id", body.RestaurantID)
	if err != nil {
		return pipeline.AdhocRequest{}, err
	}

	days := defaultForecastDays
	if body.ForecastDays != nil {
		days = *body.ForecastDays
	}
	if days < 1 || days > maxForecastDays {
		return pipeline.AdhocRequest{}, &contracts.ValidationError{
			Field: "forecast_days", Message: "must be between 1 and " + strconv.Itoa(maxForecastDays)}
	}

	items := make([]int, 0, len(body.ItemIDs))
	for _, raw := range body.ItemIDs {
		id, err := parseID("item_ids", raw)
		if err != nil {
			return pipeline.AdhocRequest{}, err
		}
		items = append(items, id)
	}

	var start time.Time
	if body.StartDate != "" {
		start, err = time.Parse(contracts.DateLayout, body.StartDate)
		if err != nil {
			return pipeline.AdhocRequest{}, &contracts.ValidationError{Field: "start_date", Message: "must be YYYY-MM-DD"}
		}
		today := contracts.Day(h.now())
		if start.Before(today) {
			return pipeline.AdhocRequest{}, &contracts.ValidationError{Field: "start_date", Message: "must not be in the past"}
		}
		if start.After(today.AddDate(0, 0, pipeline.MaxAdhocLeadDays)) {
			return pipeline.AdhocRequest{}, &contracts.ValidationError{
				Field: "start_date", Message: "must be within " + strconv.Itoa(pipeline.MaxAdhocLeadDays) + " days from today"}
		}
	}

	return pipeline.AdhocRequest{Store: storeID, Items: items, Days: days, Start: start}, nil
}

// GetForecasts returns the latest persisted forecasts of a restaurant
// GET /api/ai/demandforecast/predict?restaurant_id=...
func (h *ForecastHandler) GetForecasts(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("restaurant_id")
	storeID, err := parseID("restaurant_id", raw)
	if err != nil {
		respondErr(w, err)
		return
	}

	rows, err := h.reader.LatestForStore(r.Context(), storeID)
	if err != nil {
		h.logger.WithError(err).WithField("restaurant_id", raw).Error("Failed to read forecasts")
		respondError(w, http.StatusInternalServerError, "failed to read forecasts")
		return
	}

	preds := make([]StoredPrediction, len(rows))
	items := make(map[int]struct{})
	for i, row := range rows {
		items[row.Item] = struct{}{}
		preds[i] = StoredPrediction{
			ItemID:          row.Item,
			ForecastDate:    row.ForecastDate.Time.Format(contracts.DateLayout),
			PredictedDemand: row.Yhat,
			YhatLower:       row.YhatLower,
			YhatUpper:       row.YhatUpper,
			ModelVersion:    row.ModelVersion,
		}
	}

	respondJSON(w, http.StatusOK, StoredResponse{
		RestaurantID:         raw,
		TotalItemsForecasted: len(items),
		Predictions:          preds,
		GeneratedAt:          h.now().UTC(),
	})
}

func parseID(field, raw string) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, &contracts.ValidationError{Field: field, Message: "is required"}
	}
	id, err := strconv.Atoi(raw)
	if err != nil || id < 1 {
		return 0, &contracts.ValidationError{Field: field, Message: "must be a positive integer id"}
	}
	return id, nil
}
