package contracts

import (
	"fmt"
	"math"
	"sort"
	"time"
)

// DateLayout is the wire/storage layout of forecast and sales dates
const DateLayout = "2006-01-02"

// Day truncates t to midnight UTC of its calendar date
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// EntityKey names one forecastable series (store × item)
// ⭐ SSOT: 모든 단계의 그룹/조인 키
type EntityKey struct {
	Store int `json:"store"`
	Item  int `json:"item"`
}

func (k EntityKey) String() string {
	return fmt.Sprintf("store=%d/item=%d", k.Store, k.Item)
}

// Less orders keys by store, then item
func (k EntityKey) Less(o EntityKey) bool {
	if k.Store != o.Store {
		return k.Store < o.Store
	}
	return k.Item < o.Item
}

// SortKeys sorts keys in place by (store, item)
func SortKeys(keys []EntityKey) {
	sort.Slice(keys, func(i, j int) bool { return keys[i].Less(keys[j]) })
}

// SalesObservation is one extracted daily demand fact. Immutable once extracted.
type SalesObservation struct {
	Key       EntityKey `json:"key"`
	Date      time.Time `json:"date"`
	Quantity  float64   `json:"quantity"`
	UnitPrice float64   `json:"unit_price"`
	ItemName  string    `json:"item_name,omitempty"`
}

// SeriesPoint is one (date, value) pair
type SeriesPoint struct {
	Date  time.Time `json:"date"`
	Value float64   `json:"value"`
}

// TimeSeries is the ordered, per-date-unique history of one entity
type TimeSeries struct {
	Key    EntityKey     `json:"key"`
	Points []SeriesPoint `json:"points"`
}

// Len returns the number of points
func (s TimeSeries) Len() int {
	return len(s.Points)
}

// Values returns the observed values in date order
func (s TimeSeries) Values() []float64 {
	out := make([]float64, len(s.Points))
	for i, p := range s.Points {
		out[i] = p.Value
	}
	return out
}

// LastDate returns the date of the final point (zero time when empty)
func (s TimeSeries) LastDate() time.Time {
	if len(s.Points) == 0 {
		return time.Time{}
	}
	return s.Points[len(s.Points)-1].Date
}

// Span returns the number of calendar days covered, inclusive
func (s TimeSeries) Span() int {
	if len(s.Points) == 0 {
		return 0
	}
	return int(s.LastDate().Sub(s.Points[0].Date).Hours()/24) + 1
}

// ForecastRow is one (entity, forecast_date) prediction
// ⭐ SSOT: 예측 결과 행 정의
type ForecastRow struct {
	Key          EntityKey `json:"key"`
	ForecastDate time.Time `json:"forecast_date"`
	Yhat         float64   `json:"yhat"`
	YhatLower    float64   `json:"yhat_lower"`
	YhatUpper    float64   `json:"yhat_upper"`
	ModelVersion string    `json:"model_version"`
}

// Bounded returns the row clamped to non-negative values with
// yhat_lower <= yhat <= yhat_upper. NaN becomes 0.
func (r ForecastRow) Bounded() ForecastRow {
	r.Yhat = nonNegative(r.Yhat)
	r.YhatLower = math.Min(nonNegative(r.YhatLower), r.Yhat)
	r.YhatUpper = math.Max(nonNegative(r.YhatUpper), r.Yhat)
	return r
}

// IsBounded reports whether the row satisfies the storage invariant
func (r ForecastRow) IsBounded() bool {
	return r.YhatLower >= 0 && r.YhatLower <= r.Yhat && r.Yhat <= r.YhatUpper
}

func nonNegative(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if math.IsInf(v, 1) {
		return math.MaxFloat64
	}
	return v
}

// SortRows orders rows by (store, item, forecast_date)
func SortRows(rows []ForecastRow) {
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].Key != rows[j].Key {
			return rows[i].Key.Less(rows[j].Key)
		}
		return rows[i].ForecastDate.Before(rows[j].ForecastDate)
	})
}

// ModelArtifact is the registry handle produced by a training run.
// Passed explicitly from training to prediction; never held globally.
type ModelArtifact struct {
	URI     string `json:"uri"`
	Version string `json:"version"`
}

// IsZero reports an empty handle
func (a ModelArtifact) IsZero() bool {
	return a.URI == "" && a.Version == ""
}
