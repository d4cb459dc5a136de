package scoring

import (
	"math"
	"strings"

	"github.com/shopspring/decimal"

	"launch-alerts/internal/storage"
)

// Breakdown holds the 1-5 sub-scores behind a launch analysis.
type Breakdown struct {
	Fundamentals float64
	Technical    float64
	Sentiment    float64
	Timing       float64
}

// Analysis is the risk assessment attached to a launch event before it is
// announced.
type Analysis struct {
	RiskScore  decimal.Decimal
	RiskLevel  string
	RiskEmoji  string
	Confidence decimal.Decimal
	Summary    string
	Suggestion string
	Breakdown  Breakdown
}

// Record converts the analysis into its persisted form.
func (a Analysis) Record() storage.EventAnalysis {
	return storage.EventAnalysis{
		RiskScore:  a.RiskScore,
		RiskLevel:  a.RiskLevel,
		Confidence: a.Confidence,
		Summary:    a.Summary,
		Suggestion: a.Suggestion,
	}
}

// LaunchAnalyzer assesses an upcoming event for one asset.
type LaunchAnalyzer interface {
	Analyze(ev storage.LaunchEvent, in Input) (Analysis, error)
}

// LaunchHeuristic is the built-in weighted launch analyzer.
type LaunchHeuristic struct{}

var _ LaunchAnalyzer = LaunchHeuristic{}

const (
	weightFundamentals = 0.35
	weightTechnical    = 0.25
	weightSentiment    = 0.25
	weightTiming       = 0.15
)

// Analyze implements LaunchAnalyzer. Missing provider data lowers confidence
// rather than failing the analysis.
func (LaunchHeuristic) Analyze(ev storage.LaunchEvent, in Input) (Analysis, error) {
	b := Breakdown{
		Fundamentals: fundamentals(in),
		Technical:    technical(in),
		Sentiment:    sentiment(in),
		Timing:       timing(ev, in),
	}
	final := b.Fundamentals*weightFundamentals + b.Technical*weightTechnical +
		b.Sentiment*weightSentiment + b.Timing*weightTiming

	level, emoji := classify(final)
	return Analysis{
		RiskScore:  dec(final),
		RiskLevel:  level,
		RiskEmoji:  emoji,
		Confidence: decimal.NewFromFloat(confidence(b, in)).Round(1),
		Summary:    summary(b, in),
		Suggestion: suggestion(final),
		Breakdown:  b,
	}, nil
}

func fundamentals(in Input) float64 {
	score := 2.5
	if m := in.Market; m != nil {
		dev := m.DeveloperScore.InexactFloat64()
		switch {
		case dev > 50:
			score += 0.8
		case dev > 20:
			score += 0.4
		case dev == 0:
			score -= 0.5
		}
		mcap := m.MarketCap.InexactFloat64()
		switch {
		case mcap > 1e6 && mcap < 100e6:
			score += 0.5
		case mcap > 500e6:
			score -= 0.3
		}
		if m.CirculatingSupply.IsPositive() && m.TotalSupply.IsPositive() {
			// tokenomics proxy
			ratio := m.CirculatingSupply.Div(m.TotalSupply).InexactFloat64()
			score += (ratio - 0.5) * 0.8
		}
	}
	return clip(score, 1, 5)
}

func technical(in Input) float64 {
	score := 3.0
	if d := in.Dex; d != nil {
		liquidity := d.LiquidityUSD.InexactFloat64()
		switch {
		case liquidity > 10e6:
			score += 1.5
		case liquidity > 1e6:
			score += 1.0
		case liquidity > 100e3:
			score += 0.5
		case liquidity < 50e3:
			score -= 1.5
		}
		switch {
		case d.Buys24h > d.Sells24h*6/5:
			score += 0.8
		case d.Sells24h > d.Buys24h*6/5:
			score -= 0.8
		}
	}
	if m := in.Market; m != nil {
		c7 := m.Change7dPct.InexactFloat64()
		switch {
		case c7 > 0 && c7 < 50:
			score += 0.5
		case c7 > 100:
			score -= 0.5
		case c7 < -30:
			score -= 0.5
		}
	}
	return clip(score, 1, 5)
}

func sentiment(in Input) float64 {
	score := 3.0
	if m := in.Market; m != nil {
		switch f := m.TwitterFollowers; {
		case f > 100000:
			score += 1.0
		case f > 10000:
			score += 0.5
		case f < 1000:
			score -= 0.5
		}
		community := m.CommunityScore.InexactFloat64()
		switch {
		case community > 70:
			score += 0.6
		case community > 0 && community < 20:
			score -= 0.4
		}
	}
	return clip(score, 1, 5)
}

func timing(ev storage.LaunchEvent, in Input) float64 {
	score := 3.0
	switch strings.ToLower(ev.EventType) {
	case "mainnet_launch":
		score += 1.0
	case "token_listing", "listing":
		score += 0.8
	case "upgrade":
		score += 0.6
	case "ido":
		score += 0.4
	}
	if m := in.Market; m != nil {
		c30 := m.Change30dPct.InexactFloat64()
		switch {
		case c30 > 10:
			score += 0.5
		case c30 < -20:
			score -= 0.5
		}
	}
	return clip(score, 1, 5)
}

func classify(score float64) (string, string) {
	switch {
	case score >= 4.2:
		return "Very Low Risk", "🟢"
	case score >= 3.8:
		return "Low Risk", "🟢"
	case score >= 3.2:
		return "Medium Risk", "🟡"
	case score >= 2.5:
		return "Medium-High Risk", "🟠"
	default:
		return "High Risk", "🔴"
	}
}

func confidence(b Breakdown, in Input) float64 {
	conf := 70.0
	values := []float64{b.Fundamentals, b.Technical, b.Sentiment, b.Timing}
	switch sd := stddev(values); {
	case sd < 0.5:
		conf += 15
	case sd < 1.0:
		conf += 10
	default:
		conf += 5
	}

	completeness := 0.0
	if in.Market != nil {
		completeness += 60
	}
	if in.Dex != nil {
		completeness += 40
	}
	return clip((conf+completeness)/2, 50, 95)
}

func summary(b Breakdown, in Input) string {
	var parts []string
	if b.Fundamentals >= 4.0 {
		parts = append(parts, "strong project fundamentals")
	}
	if b.Sentiment >= 4.0 {
		parts = append(parts, "positive community sentiment")
	}
	if d := in.Dex; d != nil {
		liquidity := d.LiquidityUSD.InexactFloat64()
		switch {
		case liquidity > 1e6:
			parts = append(parts, "sufficient liquidity")
		case liquidity < 100e3:
			parts = append(parts, "low liquidity warning")
		}
	}
	if len(parts) == 0 {
		return "Exercise caution with this launch."
	}
	s := strings.Join(parts, ", ")
	return strings.ToUpper(s[:1]) + s[1:] + "."
}

func suggestion(score float64) string {
	switch {
	case score >= 4.5:
		return "Strong launch opportunity. Consider entry with majority position."
	case score >= 4.0:
		return "Favorable launch signals. Consider partial position with room to add."
	case score >= 3.5:
		return "Moderate opportunity. Small position or wait for post-launch confirmation."
	case score >= 3.0:
		return "Mixed signals. Proceed with caution, small position only."
	case score >= 2.5:
		return "High uncertainty. Wait for better setup or more data."
	default:
		return "Avoid. Multiple red flags present. Consider alternative opportunities."
	}
}

func stddev(values []float64) float64 {
	var mean float64
	for _, v := range values {
		mean += v
	}
	mean /= float64(len(values))
	var sq float64
	for _, v := range values {
		sq += (v - mean) * (v - mean)
	}
	return math.Sqrt(sq / float64(len(values)))
}

func clip(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
