// Package notify fans new predictions out to connected subscribers.
package notify

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/wonny/demandcast/backend/internal/contracts"
	"github.com/wonny/demandcast/backend/pkg/metrics"
)

// MessageNewPredictions is the envelope type pushed after a prediction run
const MessageNewPredictions = "new_predictions"

// Subscriber is one connected receiver
type Subscriber interface {
	ID() string
	Send(msg []byte) error
	Close() error
}

// Envelope is the JSON message pushed to subscribers
type Envelope struct {
	Type        string       `json:"type"`
	Timestamp   time.Time    `json:"timestamp"`
	Count       int          `json:"count"`
	Predictions []PreviewRow `json:"predictions"`
}

// PreviewRow is one forecast row inside an envelope
type PreviewRow struct {
	Store        int     `json:"store"`
	Item         int     `json:"item"`
	ForecastDate string  `json:"forecast_date"`
	Yhat         float64 `json:"yhat"`
	YhatLower    float64 `json:"yhat_lower"`
	YhatUpper    float64 `json:"yhat_upper"`
	ModelVersion string  `json:"model_version"`
}

// Hub is a concurrency-safe subscriber registry.
// A subscriber whose send fails is removed; delivery to the rest continues.
// ⭐ SSOT: 구독자 관리는 여기서만
type Hub struct {
	mu      sync.RWMutex
	subs    map[string]Subscriber
	preview int
	now     func() time.Time
	log     zerolog.Logger
}

// NewHub creates a hub that previews up to preview rows per envelope
func NewHub(preview int, log zerolog.Logger) *Hub {
	if preview < 0 {
		preview = 0
	}
	return &Hub{
		subs:    make(map[string]Subscriber),
		preview: preview,
		now:     time.Now,
		log:     log.With().Str("component", "notify").Logger(),
	}
}

// Add registers s
func (h *Hub) Add(s Subscriber) {
	h.mu.Lock()
	h.subs[s.ID()] = s
	n := len(h.subs)
	h.mu.Unlock()

	metrics.SetSubscribers(n)
	h.log.Debug().Str("subscriber", s.ID()).Int("subscribers", n).Msg("subscriber added")
}

// Remove unregisters the subscriber with id. Unknown ids are ignored.
func (h *Hub) Remove(id string) {
	h.mu.Lock()
	_, ok := h.subs[id]
	delete(h.subs, id)
	n := len(h.subs)
	h.mu.Unlock()

	if ok {
		metrics.SetSubscribers(n)
		h.log.Debug().Str("subscriber", id).Int("subscribers", n).Msg("subscriber removed")
	}
}

// Len returns the number of connected subscribers
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Close disconnects every subscriber (server shutdown)
func (h *Hub) Close() {
	h.mu.Lock()
	subs := h.subs
	h.subs = make(map[string]Subscriber)
	h.mu.Unlock()

	for _, s := range subs {
		_ = s.Close()
	}
	metrics.SetSubscribers(0)
}

// Broadcast sends msg (JSON encoded) to every subscriber and returns the
// number of successful deliveries
func (h *Hub) Broadcast(msg interface{}) int {
	data, err := json.Marshal(msg)
	if err != nil {
		h.log.Error().Err(err).Msg("encode broadcast")
		return 0
	}

	h.mu.RLock()
	targets := make([]Subscriber, 0, len(h.subs))
	for _, s := range h.subs {
		targets = append(targets, s)
	}
	h.mu.RUnlock()

	delivered := 0
	for _, s := range targets {
		if err := s.Send(data); err != nil {
			h.log.Warn().Err(err).Str("subscriber", s.ID()).Msg("send failed, dropping subscriber")
			h.Remove(s.ID())
			_ = s.Close()
			continue
		}
		delivered++
	}
	return delivered
}

// NotifyPredictions pushes a new_predictions envelope for rows
func (h *Hub) NotifyPredictions(rows []contracts.ForecastRow) int {
	if h.Len() == 0 {
		return 0
	}
	return h.Broadcast(h.Envelope(rows))
}

// Envelope builds the new_predictions message with the first rows as preview
func (h *Hub) Envelope(rows []contracts.ForecastRow) Envelope {
	n := len(rows)
	if n > h.preview {
		n = h.preview
	}
	preview := make([]PreviewRow, n)
	for i := 0; i < n; i++ {
		r := rows[i]
		preview[i] = PreviewRow{
			Store:        r.Key.Store,
			Item:         r.Key.Item,
			ForecastDate: r.ForecastDate.Format(contracts.DateLayout),
			Yhat:         r.Yhat,
			YhatLower:    r.YhatLower,
			YhatUpper:    r.YhatUpper,
			ModelVersion: r.ModelVersion,
		}
	}
	return Envelope{
		Type:        MessageNewPredictions,
		Timestamp:   h.now().UTC(),
		Count:       len(rows),
		Predictions: preview,
	}
}
