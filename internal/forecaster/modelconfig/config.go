package modelconfig

// Params holds forecaster hyperparameters
// ⭐ SSOT: 모델 하이퍼파라미터 정의 (YAML ↔ 아티팩트)
type Params struct {
	Meta    Meta          `yaml:"meta" json:"meta"`
	Series  SeriesParams  `yaml:"series" json:"series"`
	Tabular TabularParams `yaml:"tabular" json:"tabular"`

	// IntervalWidth is the two-sided coverage of yhat_lower..yhat_upper
	IntervalWidth float64 `yaml:"interval_width" json:"interval_width"`
}

// Meta identifies a parameter set
type Meta struct {
	Name        string `yaml:"name" json:"name"`
	Description string `yaml:"description" json:"description"`
}

// Series model methods
const (
	MethodDecompose   = "decompose"
	MethodHoltWinters = "holt_winters"
)

// SeriesParams configures the per-entity model.
//
// decompose: linear trend + weekly/yearly Fourier terms.
// holt_winters: additive smoothing; zero smoothing factors mean grid search per entity.
type SeriesParams struct {
	Method      string `yaml:"method" json:"method"`
	WeeklyOrder int    `yaml:"weekly_order" json:"weekly_order"`
	YearlyOrder int    `yaml:"yearly_order" json:"yearly_order"`

	SeasonalPeriod int     `yaml:"seasonal_period" json:"seasonal_period"`
	Alpha          float64 `yaml:"alpha" json:"alpha"`
	Beta           float64 `yaml:"beta" json:"beta"`
	Gamma          float64 `yaml:"gamma" json:"gamma"`
	HoldoutDays    int     `yaml:"holdout_days" json:"holdout_days"`
}

// Optimize reports whether smoothing factors are searched
func (p SeriesParams) Optimize() bool {
	return p.Alpha == 0 || p.Beta == 0 || p.Gamma == 0
}

// TabularParams configures the gradient-boosted regression trees
type TabularParams struct {
	Trees          int     `yaml:"trees" json:"trees"`
	LearningRate   float64 `yaml:"learning_rate" json:"learning_rate"`
	MaxDepth       int     `yaml:"max_depth" json:"max_depth"`
	MinSamplesLeaf int     `yaml:"min_samples_leaf" json:"min_samples_leaf"`
	HoldoutDays    int     `yaml:"holdout_days" json:"holdout_days"`
}

// Default returns the built-in parameter set
func Default() *Params {
	return &Params{
		Meta: Meta{Name: "default"},
		Series: SeriesParams{
			Method:         MethodDecompose,
			WeeklyOrder:    3,
			YearlyOrder:    6,
			SeasonalPeriod: 7,
			HoldoutDays:    14,
		},
		Tabular: TabularParams{
			Trees:          100,
			LearningRate:   0.1,
			MaxDepth:       3,
			MinSamplesLeaf: 5,
			HoldoutDays:    14,
		},
		IntervalWidth: 0.95,
	}
}
