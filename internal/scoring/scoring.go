package scoring

import (
	"math"

	"score-trader/internal/types"
)

// Component keys used in Score.Components breakdowns.
const (
	CompPriceChange = "price_change"
	CompVolume      = "volume"
	CompMarketCap   = "market_cap"
	CompSector      = "sector"
	CompTechnical   = "technical"
	CompSentiment   = "sentiment"
	CompMomentum    = "momentum"
)

// Weighted profile for the crypto short-side scorer.
const (
	weightTechnical = 0.60
	weightSentiment = 0.25
	weightMomentum  = 0.15

	// Midpoint substituted for an unavailable indicator.
	neutralComponent = 5.0

	// Each missing indicator costs this much confidence.
	missingPenalty = 0.15
)

var topTierCrypto = map[string]bool{
	"BTC-USD": true, "ETH-USD": true, "BNB-USD": true,
	"ADA-USD": true, "SOL-USD": true, "XRP-USD": true,
}

var establishedCrypto = map[string]bool{
	"DOT-USD": true, "AVAX-USD": true, "MATIC-USD": true,
	"LINK-USD": true, "UNI-USD": true, "ATOM-USD": true,
}

var growthSectors = map[string]bool{
	"Technology": true, "Communication Services": true, "Consumer Cyclical": true,
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

// Base computes the instrument health score from the quote alone, using
// the additive ladder profile for the quote's instrument type. The result
// is deterministic: identical quotes always produce identical scores.
func Base(q types.Quote) types.Score {
	if q.Type == types.Crypto {
		return baseCrypto(q)
	}
	return baseStock(q)
}

func baseStock(q types.Quote) types.Score {
	components := map[string]float64{}
	missing := 0

	var change float64
	switch {
	case q.ChangePct > 5:
		change = 2
	case q.ChangePct > 2:
		change = 1
	case q.ChangePct > 0:
		change = 0.5
	case q.ChangePct > -2:
		change = -0.5
	case q.ChangePct > -5:
		change = -1
	default:
		change = -2
	}
	components[CompPriceChange] = change

	var vol float64
	switch {
	case q.Volume == 0:
		missing++
	case q.Volume > 10_000_000:
		vol = 1
	case q.Volume > 1_000_000:
		vol = 0.5
	case q.Volume < 100_000:
		vol = -0.5
	}
	components[CompVolume] = vol

	var mcap float64
	switch {
	case q.MarketCap == 0:
		missing++
	case q.MarketCap > 100_000_000_000:
		mcap = 1
	case q.MarketCap > 10_000_000_000:
		mcap = 0.5
	case q.MarketCap < 1_000_000_000:
		mcap = -0.5
	}
	components[CompMarketCap] = mcap

	var sector float64
	switch {
	case q.Sector == "":
		missing++
	case q.Sector == "Technology":
		sector = 1
	case growthSectors[q.Sector]:
		sector = 0.5
	}
	components[CompSector] = sector

	value := clamp(5.0+change+vol+mcap+sector, 0, 10)
	return types.Score{
		Symbol:     q.Symbol,
		Value:      value,
		Confidence: confidenceFor(1.0, missing),
		Components: components,
		ComputedAt: q.Time,
	}
}

func baseCrypto(q types.Quote) types.Score {
	components := map[string]float64{}
	missing := 0

	var change float64
	switch {
	case q.ChangePct > 10:
		change = 2.5
	case q.ChangePct > 5:
		change = 2
	case q.ChangePct > 2:
		change = 1
	case q.ChangePct > 0:
		change = 0.5
	case q.ChangePct > -5:
		change = -0.5
	case q.ChangePct > -10:
		change = -1.5
	default:
		change = -2.5
	}
	components[CompPriceChange] = change

	var vol float64
	switch {
	case q.Volume == 0:
		missing++
	case q.Volume > 1_000_000_000:
		vol = 1.5
	case q.Volume > 100_000_000:
		vol = 1
	case q.Volume > 10_000_000:
		vol = 0.5
	case q.Volume < 1_000_000:
		vol = -1
	}
	components[CompVolume] = vol

	var mcap float64
	switch {
	case q.MarketCap == 0:
		missing++
	case q.MarketCap > 100_000_000_000:
		mcap = 1.5
	case q.MarketCap > 10_000_000_000:
		mcap = 1
	case q.MarketCap > 1_000_000_000:
		mcap = 0.5
	case q.MarketCap < 100_000_000:
		mcap = -1
	}
	components[CompMarketCap] = mcap

	var tier float64
	if topTierCrypto[q.Symbol] {
		tier = 1
	} else if establishedCrypto[q.Symbol] {
		tier = 0.5
	}
	components[CompSector] = tier

	value := clamp(5.0+change+vol+mcap+tier, 0, 10)
	return types.Score{
		Symbol:     q.Symbol,
		Value:      value,
		Confidence: confidenceFor(1.0, missing),
		Components: components,
		ComputedAt: q.Time,
	}
}

// ShortAdvanced computes the confidence-weighted short-eligibility score
// from technical, sentiment and momentum inputs. Each component is clamped
// to [0,10] before weighting so no single input can saturate the aggregate.
// A nil indicator defaults to the neutral midpoint and reduces confidence.
func ShortAdvanced(q types.Quote, ind types.Indicators) types.Score {
	components := map[string]float64{}
	missing := 0
	strong := 0

	take := func(v *float64) float64 {
		if v == nil {
			missing++
			return neutralComponent
		}
		c := clamp(*v, 0, 10)
		// A component below 3 is a strong bearish confirmation.
		if c < 3 {
			strong++
		}
		return c
	}

	tech := take(ind.Technical)
	sent := take(ind.Sentiment)
	mom := take(ind.Momentum)
	components[CompTechnical] = tech
	components[CompSentiment] = sent
	components[CompMomentum] = mom

	value := clamp(tech*weightTechnical+sent*weightSentiment+mom*weightMomentum, 0, 10)
	confidence := math.Min(0.95, 0.5+float64(strong)*0.1)
	return types.Score{
		Symbol:     q.Symbol,
		Value:      value,
		Confidence: confidenceFor(confidence, missing),
		Components: components,
		ComputedAt: q.Time,
	}
}

// confidenceFor caps base confidence by the missing-input penalty.
func confidenceFor(base float64, missing int) float64 {
	ceiling := 1.0 - missingPenalty*float64(missing)
	return clamp(math.Min(base, ceiling), 0, 1)
}
