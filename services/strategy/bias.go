package strategy

import "breakout_bot/models"

// SelectBias classifies the session from the benchmark percent change.
// A move strictly beyond +threshold is bullish, strictly beyond -threshold
// bearish, anything in between flat.
func SelectBias(changePct, thresholdPct float64) models.MarketBias {
	switch {
	case changePct > thresholdPct:
		return models.BiasBullish
	case changePct < -thresholdPct:
		return models.BiasBearish
	default:
		return models.BiasFlat
	}
}

// Candidates returns the candidate list matching bias; the other list is discarded.
func Candidates(bias models.MarketBias, bullish, bearish []string) []string {
	switch bias {
	case models.BiasBullish:
		return dedupe(bullish)
	case models.BiasBearish:
		return dedupe(bearish)
	default:
		return nil
	}
}

func dedupe(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
