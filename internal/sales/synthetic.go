package sales

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	"github.com/wonny/demandcast/backend/internal/contracts"
)

// MenuItems is the default catalog of the synthetic restaurant
var MenuItems = map[int]string{
	1:  "Margherita Pizza",
	2:  "Pepperoni Pizza",
	3:  "Caesar Salad",
	4:  "Chicken Alfredo",
	5:  "Beef Burger",
	6:  "Fish Tacos",
	7:  "Chocolate Cake",
	8:  "Grilled Salmon",
	9:  "Veggie Wrap",
	10: "Chicken Wings",
}

// baseDemand is the mean daily demand of each menu item at store 1
var baseDemand = map[int]float64{1: 45, 2: 38, 3: 25, 4: 32, 5: 42, 6: 28, 7: 18, 8: 35, 9: 22, 10: 48}

// SyntheticConfig shapes generated demand
type SyntheticConfig struct {
	Stores int
	Items  int
	Days   int       // history length ending at End (inclusive)
	End    time.Time // last observed day
	Seed   uint64
	// History overrides the number of days for individual entities
	History map[contracts.EntityKey]int
}

// Synthetic generates deterministic restaurant demand with weekly seasonality,
// a mild trend and noise. Used when RAW_DB_URL is empty and by the seed command.
type Synthetic struct {
	cfg SyntheticConfig
	obs []contracts.SalesObservation
}

// NewSynthetic builds the full dataset up front so every read is consistent
func NewSynthetic(cfg SyntheticConfig) (*Synthetic, error) {
	if cfg.Stores < 1 || cfg.Items < 1 || cfg.Days < 1 {
		return nil, fmt.Errorf("synthetic source needs stores, items and days >= 1")
	}
	if cfg.End.IsZero() {
		cfg.End = time.Now()
	}
	cfg.End = contracts.Day(cfg.End)

	s := &Synthetic{cfg: cfg}
	s.generate()
	return s, nil
}

// 요일 효과: 월..일 (금/토 피크)
var weekdayLift = [7]float64{0.85, 0.9, 0.95, 1.0, 1.2, 1.35, 1.1}

func (s *Synthetic) generate() {
	rng := rand.New(rand.NewPCG(s.cfg.Seed, s.cfg.Seed^0x9e3779b97f4a7c15))

	for store := 1; store <= s.cfg.Stores; store++ {
		for item := 1; item <= s.cfg.Items; item++ {
			key := contracts.EntityKey{Store: store, Item: item}
			days := s.cfg.Days
			if d, ok := s.cfg.History[key]; ok {
				days = d
			}

			base, ok := baseDemand[item]
			if !ok {
				base = 20
			}
			base *= 1 + 0.1*float64(store-1)
			price := 6 + float64(item%10)*1.5
			trend := (float64(item%3) - 1) * 0.02

			for i := days - 1; i >= 0; i-- {
				date := s.cfg.End.AddDate(0, 0, -i)
				t := float64(days - 1 - i)
				wd := (int(date.Weekday()) + 6) % 7

				qty := base*weekdayLift[wd] + trend*t + rng.NormFloat64()*math.Sqrt(base)*0.5
				qty = math.Max(0, math.Round(qty))

				s.obs = append(s.obs, contracts.SalesObservation{
					Key:       key,
					Date:      date,
					Quantity:  qty,
					UnitPrice: price,
					ItemName:  itemName(item),
				})
			}
		}
	}
}

func itemName(item int) string {
	if name, ok := MenuItems[item]; ok {
		return name
	}
	return fmt.Sprintf("Item %d", item)
}

// Observations returns generated observations inside [from, to)
func (s *Synthetic) Observations(ctx context.Context, from, to time.Time) ([]contracts.SalesObservation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	w := Window{From: contracts.Day(from), To: contracts.Day(to)}
	out := make([]contracts.SalesObservation, 0, len(s.obs))
	for _, o := range s.obs {
		if w.Contains(o.Date) {
			out = append(out, o)
		}
	}
	return out, nil
}

// ItemNames returns the synthetic catalog for any generated store
func (s *Synthetic) ItemNames(ctx context.Context, store int) (map[int]string, error) {
	names := make(map[int]string, s.cfg.Items)
	if store < 1 || store > s.cfg.Stores {
		return names, nil
	}
	for item := 1; item <= s.cfg.Items; item++ {
		names[item] = itemName(item)
	}
	return names, nil
}

// All returns every generated observation
func (s *Synthetic) All() []contracts.SalesObservation {
	return s.obs
}
