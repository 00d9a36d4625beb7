package sales

import (
	"context"
	"time"

	"github.com/wonny/demandcast/backend/internal/contracts"
)

// Source provides daily aggregated sales observations
// ⭐ SSOT: 원천 판매 데이터 읽기 계약
type Source interface {
	// Observations returns per-entity daily observations with from <= date < to
	Observations(ctx context.Context, from, to time.Time) ([]contracts.SalesObservation, error)

	// ItemNames returns display names of the items sold by a store
	ItemNames(ctx context.Context, store int) (map[int]string, error)
}

// Window is a half-open [From, To) date range in UTC days
type Window struct {
	From time.Time
	To   time.Time
}

// LookbackWindow returns the last `days` complete days, ending yesterday.
// 오늘은 아직 집계 중이므로 제외
func LookbackWindow(now time.Time, days int) Window {
	to := contracts.Day(now)
	return Window{From: to.AddDate(0, 0, -days), To: to}
}

// Contains reports whether t falls inside the window
func (w Window) Contains(t time.Time) bool {
	d := contracts.Day(t)
	return !d.Before(w.From) && d.Before(w.To)
}

// Days returns the window length in days
func (w Window) Days() int {
	return int(w.To.Sub(w.From).Hours() / 24)
}
