// Package report builds weekly portfolio performance reports.
package report

import (
	"context"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"launch-alerts/internal/storage"
)

const topN = 3

var hundred = decimal.NewFromInt(100)

// Performer is one position in the top or worst list.
type Performer struct {
	Asset         string
	ProfitLoss    decimal.Decimal
	ProfitLossPct decimal.Decimal
}

// Report summarises a user's portfolio. HasPortfolio is false when the user
// holds nothing, in which case only UserID and GeneratedAt are set.
type Report struct {
	UserID       int64
	HasPortfolio bool
	GeneratedAt  time.Time
	TotalValue   decimal.Decimal
	TotalCost    decimal.Decimal
	TotalPnL     decimal.Decimal
	TotalPnLPct  decimal.Decimal
	Positions    int
	Profitable   int
	Losing       int
	WinRatePct   decimal.Decimal
	Top          []Performer
	Worst        []Performer
	NextReport   time.Time
}

// Generator builds reports from stored positions.
type Generator struct {
	store storage.PortfolioStore
	day   time.Weekday
	hour  int
	now   func() time.Time
}

// NewGenerator builds a generator for reports delivered on day at hour UTC.
func NewGenerator(store storage.PortfolioStore, day time.Weekday, hour int) *Generator {
	return &Generator{store: store, day: day, hour: hour, now: time.Now}
}

// WithClock overrides the clock.
func (g *Generator) WithClock(now func() time.Time) *Generator {
	g.now = now
	return g
}

// Generate builds the report for one user.
func (g *Generator) Generate(ctx context.Context, userID int64) (Report, error) {
	positions, err := g.store.GetPositions(ctx, userID)
	if err != nil {
		return Report{}, err
	}
	now := g.now().UTC()
	if len(positions) == 0 {
		return Report{UserID: userID, GeneratedAt: now}, nil
	}
	return Build(userID, positions, now, g.NextReport(now)), nil
}

// Build computes the report for a set of positions.
func Build(userID int64, positions []storage.Position, now, next time.Time) Report {
	r := Report{
		UserID:       userID,
		HasPortfolio: len(positions) > 0,
		GeneratedAt:  now,
		Positions:    len(positions),
		NextReport:   next,
	}

	for _, p := range positions {
		r.TotalValue = r.TotalValue.Add(p.Quantity.Mul(p.CurrentPrice))
		r.TotalCost = r.TotalCost.Add(p.Quantity.Mul(p.EntryPrice))
		switch p.ProfitLossPct.Sign() {
		case 1:
			r.Profitable++
		case -1:
			r.Losing++
		}
	}
	r.TotalPnL = r.TotalValue.Sub(r.TotalCost)
	if r.TotalCost.IsPositive() {
		r.TotalPnLPct = r.TotalPnL.Div(r.TotalCost).Mul(hundred).Round(2)
	}
	if r.Positions > 0 {
		r.WinRatePct = decimal.NewFromInt(int64(r.Profitable)).Mul(hundred).Div(decimal.NewFromInt(int64(r.Positions))).Round(1)
	}

	sorted := append([]storage.Position(nil), positions...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].ProfitLossPct.GreaterThan(sorted[j].ProfitLossPct)
	})
	for i := 0; i < len(sorted) && i < topN; i++ {
		r.Top = append(r.Top, performer(sorted[i]))
	}
	for i := len(sorted) - 1; i >= 0 && len(r.Worst) < topN; i-- {
		if sorted[i].ProfitLossPct.IsNegative() {
			r.Worst = append(r.Worst, performer(sorted[i]))
		}
	}
	return r
}

func performer(p storage.Position) Performer {
	return Performer{Asset: p.Asset, ProfitLoss: p.ProfitLoss, ProfitLossPct: p.ProfitLossPct}
}

// NextReport returns the next delivery slot strictly after today's date.
func (g *Generator) NextReport(now time.Time) time.Time {
	now = now.UTC()
	ahead := int(g.day) - int(now.Weekday())
	if ahead <= 0 {
		ahead += 7
	}
	d := now.AddDate(0, 0, ahead)
	return time.Date(d.Year(), d.Month(), d.Day(), g.hour, 0, 0, 0, time.UTC)
}
