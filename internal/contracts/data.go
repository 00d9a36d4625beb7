package contracts

import "time"

// DataQualityReport summarizes the extracted sales window of a training run
// ⭐ SSOT: 추출 → 학습 단계 데이터 품질 정보 전달
type DataQualityReport struct {
	WindowStart      time.Time `json:"window_start"`
	WindowEnd        time.Time `json:"window_end"`
	TotalRows        int       `json:"total_rows"`
	FirstDate        time.Time `json:"first_date"`
	LastDate         time.Time `json:"last_date"`
	Stores           int       `json:"stores"`
	Items            int       `json:"items"`
	Entities         int       `json:"entities"`
	EligibleEntities int       `json:"eligible_entities"`
	QuantityMin      float64   `json:"quantity_min"`
	QuantityMax      float64   `json:"quantity_max"`
	QuantityMean     float64   `json:"quantity_mean"`
	QuantityStd      float64   `json:"quantity_std"`
	NegativeRows     int       `json:"negative_rows"`
}

// IsEmpty reports a window without observations
func (d *DataQualityReport) IsEmpty() bool {
	return d.TotalRows == 0
}

// EligibleRate returns the share of entities passing the sufficiency gate
func (d *DataQualityReport) EligibleRate() float64 {
	if d.Entities == 0 {
		return 0.0
	}
	return float64(d.EligibleEntities) / float64(d.Entities)
}
