// Package forecaster selects a forecasting technique by kind.
package forecaster

import (
	"fmt"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/wonny/demandcast/backend/internal/contracts"
	"github.com/wonny/demandcast/backend/internal/forecaster/modelconfig"
	"github.com/wonny/demandcast/backend/internal/forecaster/series"
	"github.com/wonny/demandcast/backend/internal/forecaster/tabular"
)

// New returns the forecaster registered under kind
func New(kind string, params *modelconfig.Params, log zerolog.Logger) (contracts.Forecaster, error) {
	switch kind {
	case series.Kind:
		return series.New(params, log), nil
	case tabular.Kind:
		return tabular.New(params, log), nil
	default:
		return nil, fmt.Errorf("unknown forecaster kind %q", kind)
	}
}

// Params loads hyperparameters from path (defaults when empty).
// The configured interval width applies unless the file sets its own.
func Params(path string, intervalWidth float64) (*modelconfig.Params, error) {
	if path == "" {
		p := modelconfig.Default()
		if intervalWidth > 0 {
			p.IntervalWidth = intervalWidth
		}
		return p, modelconfig.Validate(p)
	}

	p, raw, err := modelconfig.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load model config %s: %w", path, err)
	}
	if !setsWidth(raw) && intervalWidth > 0 {
		p.IntervalWidth = intervalWidth
	}
	return p, nil
}

func setsWidth(raw []byte) bool {
	var top map[string]any
	if err := yaml.Unmarshal(raw, &top); err != nil {
		return false
	}
	_, ok := top["interval_width"]
	return ok
}
