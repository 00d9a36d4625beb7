package modelconfig

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// ValidationError 검증 실패
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Load reads a YAML parameter file on top of Default().
// KnownFields(true): 오타/미사용 필드 즉시 실패
func Load(path string) (*Params, []byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, err
	}

	p, err := Parse(data)
	if err != nil {
		return nil, data, err
	}
	return p, data, nil
}

// Parse decodes YAML bytes on top of Default() and validates the result
func Parse(data []byte) (*Params, error) {
	p := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	// 빈 파일은 기본값 그대로
	if err := dec.Decode(p); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode model config: %w", err)
	}

	if err := Validate(p); err != nil {
		return nil, err
	}
	return p, nil
}

// Validate checks parameter ranges
func Validate(p *Params) error {
	if p.IntervalWidth <= 0 || p.IntervalWidth >= 1 {
		return ValidationError{"interval_width", "must be in (0, 1)"}
	}

	s := p.Series
	if s.Method != MethodDecompose && s.Method != MethodHoltWinters {
		return ValidationError{"series.method", fmt.Sprintf("must be %s or %s", MethodDecompose, MethodHoltWinters)}
	}
	// 주 주기(7일)에서 독립적인 조화 항은 3개까지
	if s.WeeklyOrder < 0 || s.WeeklyOrder > 3 {
		return ValidationError{"series.weekly_order", "must be in [0, 3]"}
	}
	if s.YearlyOrder < 0 || s.YearlyOrder > 20 {
		return ValidationError{"series.yearly_order", "must be in [0, 20]"}
	}
	if s.SeasonalPeriod < 1 {
		return ValidationError{"series.seasonal_period", "must be >= 1"}
	}
	for field, v := range map[string]float64{"series.alpha": s.Alpha, "series.beta": s.Beta, "series.gamma": s.Gamma} {
		if v < 0 || v > 1 {
			return ValidationError{field, "must be in [0, 1]"}
		}
	}
	if s.HoldoutDays < 0 {
		return ValidationError{"series.holdout_days", "must be >= 0"}
	}

	t := p.Tabular
	if t.Trees < 1 {
		return ValidationError{"tabular.trees", "must be >= 1"}
	}
	if t.LearningRate <= 0 || t.LearningRate > 1 {
		return ValidationError{"tabular.learning_rate", "must be in (0, 1]"}
	}
	if t.MaxDepth < 1 {
		return ValidationError{"tabular.max_depth", "must be >= 1"}
	}
	if t.MinSamplesLeaf < 1 {
		return ValidationError{"tabular.min_samples_leaf", "must be >= 1"}
	}
	if t.HoldoutDays < 0 {
		return ValidationError{"tabular.holdout_days", "must be >= 0"}
	}

	return nil
}

// Hash generates SHA256 hash from Params (canonical JSON)
// struct 직렬화로 필드 순서 고정 → 재현 가능
func Hash(p *Params) (string, error) {
	b, err := json.Marshal(p)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}
