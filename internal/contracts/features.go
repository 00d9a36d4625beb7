package contracts

import "time"

// Lag and rolling window sizes of the tabular feature set
var (
	FeatureLags    = []int{1, 2, 3, 7, 14}
	RollingWindows = []int{3, 7, 14}
)

// FeatureRow is one tabular training/prediction row for (entity, date).
// Lags and rolling stats that reach before the first observation are
// zero-filled and the row is flagged IsImputed.
type FeatureRow struct {
	Key         EntityKey `json:"key"`
	Date        time.Time `json:"date"`
	Demand      float64   `json:"demand"`
	StoreCode   int       `json:"store_code"`
	ItemCode    int       `json:"item_code"`
	Lags        []float64 `json:"lags"`         // aligned with FeatureLags
	RollingMean []float64 `json:"rolling_mean"` // aligned with RollingWindows
	RollingStd  []float64 `json:"rolling_std"`  // aligned with RollingWindows
	EntityMean  float64   `json:"entity_mean"`
	EntityStd   float64   `json:"entity_std"`
	EntityCount float64   `json:"entity_count"`
	MeanPrice   float64   `json:"mean_price"`
	DayOfWeek   int       `json:"day_of_week"`
	Month       int       `json:"month"`
	IsWeekend   bool      `json:"is_weekend"`
	IsImputed   bool      `json:"is_imputed"`
}

// Vector flattens the row into the model input order
func (r FeatureRow) Vector() []float64 {
	v := make([]float64, 0, FeatureWidth())
	v = append(v, float64(r.StoreCode), float64(r.ItemCode))
	v = append(v, r.Lags...)
	v = append(v, r.RollingMean...)
	v = append(v, r.RollingStd...)
	v = append(v, r.EntityMean, r.EntityStd, r.EntityCount, r.MeanPrice)
	v = append(v, float64(r.DayOfWeek), float64(r.Month), boolFeature(r.IsWeekend), boolFeature(r.IsImputed))
	return v
}

// FeatureWidth is the length of FeatureRow.Vector
func FeatureWidth() int {
	return 2 + len(FeatureLags) + 2*len(RollingWindows) + 4 + 4
}

func boolFeature(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
