package features

import (
	"fmt"
	"sort"

	"github.com/wonny/demandcast/backend/internal/contracts"
)

// LabelEncoder maps integer labels to dense codes in ascending label order.
// Fit once per training run; persisted with the model artifact.
// Read-only after fit, so one loaded encoder is shared by all prediction workers.
type LabelEncoder struct {
	Classes []int `json:"classes"` // sorted ascending
}

// NewLabelEncoder fits an encoder on the distinct labels
func NewLabelEncoder(labels []int) *LabelEncoder {
	seen := make(map[int]struct{}, len(labels))
	classes := make([]int, 0, len(labels))
	for _, l := range labels {
		if _, ok := seen[l]; ok {
			continue
		}
		seen[l] = struct{}{}
		classes = append(classes, l)
	}
	sort.Ints(classes)
	return &LabelEncoder{Classes: classes}
}

// Transform returns the code of label, or an error for a label unseen at fit time
func (e *LabelEncoder) Transform(label int) (int, error) {
	code := sort.SearchInts(e.Classes, label)
	if code == len(e.Classes) || e.Classes[code] != label {
		return 0, fmt.Errorf("unknown label %d", label)
	}
	return code, nil
}

// Len returns the number of classes
func (e *LabelEncoder) Len() int {
	return len(e.Classes)
}

// EntityEncoder encodes both parts of an EntityKey
// ⭐ SSOT: 학습/예측이 동일한 인코더를 공유해야 함
type EntityEncoder struct {
	Store *LabelEncoder `json:"store"`
	Item  *LabelEncoder `json:"item"`
}

// FitEntityEncoder fits store and item encoders on the training keys
func FitEntityEncoder(keys []contracts.EntityKey) *EntityEncoder {
	stores := make([]int, 0, len(keys))
	items := make([]int, 0, len(keys))
	for _, k := range keys {
		stores = append(stores, k.Store)
		items = append(items, k.Item)
	}
	return &EntityEncoder{Store: NewLabelEncoder(stores), Item: NewLabelEncoder(items)}
}

// Encode returns (store code, item code)
func (e *EntityEncoder) Encode(key contracts.EntityKey) (int, int, error) {
	if e == nil || e.Store == nil || e.Item == nil {
		return 0, 0, fmt.Errorf("entity encoder not fitted")
	}
	s, err := e.Store.Transform(key.Store)
	if err != nil {
		return 0, 0, fmt.Errorf("store: %w", err)
	}
	i, err := e.Item.Transform(key.Item)
	if err != nil {
		return 0, 0, fmt.Errorf("item: %w", err)
	}
	return s, i, nil
}
