package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/wonny/demandcast/backend/internal/api/handlers"
	"github.com/wonny/demandcast/backend/pkg/logger"
	"github.com/wonny/demandcast/backend/pkg/metrics"
)

// ServiceName is reported by the health endpoint
const ServiceName = "Restaurant AI Demand Forecasting"

// Routes are the handlers mounted by NewRouter
type Routes struct {
	Forecast       *handlers.ForecastHandler
	Pipeline       *handlers.PipelineHandler
	Notify         http.Handler // websocket endpoint, optional
	MetricsEnabled bool
}

// NewRouter creates and configures the HTTP router
// ⭐ SSOT: 라우팅 설정은 이 함수에서만
func NewRouter(routes Routes, log *logger.Logger) http.Handler {
	r := mux.NewRouter()

	ai := r.PathPrefix("/api/ai").Subrouter()

	// Health check
	ai.HandleFunc("/health", healthCheckHandler).Methods("GET")

	// Demand forecast endpoints
	ai.HandleFunc("/demandforecast/predict", routes.Forecast.Predict).Methods("POST")
	ai.HandleFunc("/demandforecast/predict", routes.Forecast.GetForecasts).Methods("GET")

	// Pipeline endpoints
	if routes.Pipeline != nil {
		ai.HandleFunc("/pipeline/jobs", routes.Pipeline.GetJobs).Methods("GET")
		ai.HandleFunc("/pipeline/runs", routes.Pipeline.SubmitRun).Methods("POST")
	}

	// Push notifications
	if routes.Notify != nil {
		r.Handle("/ws", routes.Notify)
	}

	// Monitoring
	if routes.MetricsEnabled {
		r.Handle("/metrics", metrics.Handler()).Methods("GET")
	}

	// Apply middleware
	r.Use(loggingMiddleware(log))
	r.Use(recoveryMiddleware(log))

	if routes.MetricsEnabled {
		return metrics.InstrumentHandler(r)
	}
	return r
}

// healthCheckHandler returns server health status
func healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":  "ok",
		"service": ServiceName,
	})
}

// loggingMiddleware logs HTTP requests
func loggingMiddleware(log *logger.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			next.ServeHTTP(w, r)

			log.WithFields(map[string]interface{}{
				"method":   r.Method,
				"path":     r.URL.Path,
				"duration": time.Since(start).String(),
			}).Debug("HTTP request")
		})
	}
}

// recoveryMiddleware recovers from panics
func recoveryMiddleware(log *logger.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					log.WithFields(map[string]interface{}{
						"error": err,
						"path":  r.URL.Path,
					}).Error("Panic recovered")

					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					json.NewEncoder(w).Encode(map[string]string{
						"error": "Internal server error",
					})
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}
