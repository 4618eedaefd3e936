package strategy

import (
	"fmt"
	"testing"

	"breakout_bot/models"
)

func TestSelectBias(t *testing.T) {
	tests := []struct {
		change float64
		want   models.MarketBias
	}{
		{0.05, models.BiasBullish},
		{0.03, models.BiasFlat},
		{0.04, models.BiasFlat},
		{0, models.BiasFlat},
		{-0.04, models.BiasFlat},
		{-0.041, models.BiasBearish},
		{-1.2, models.BiasBearish},
	}
	for _, tt := range tests {
		if got := SelectBias(tt.change, 0.04); got != tt.want {
			t.Errorf("SelectBias(%g) = %s, want %s", tt.change, got, tt.want)
		}
	}
}

func TestCandidates(t *testing.T) {
	bull := []string{"INFY", "TCS", "INFY", ""}
	bear := []string{"SBIN"}

	if got := fmt.Sprint(Candidates(models.BiasBullish, bull, bear)); got != "[INFY TCS]" {
		t.Errorf("bullish candidates = %s", got)
	}
	if got := fmt.Sprint(Candidates(models.BiasBearish, bull, bear)); got != "[SBIN]" {
		t.Errorf("bearish candidates = %s", got)
	}
	if got := Candidates(models.BiasFlat, bull, bear); len(got) != 0 {
		t.Errorf("flat candidates = %v, want none", got)
	}
}
