// Package universe loads the day's bullish and bearish candidate lists.
package universe

import (
	"fmt"
	"os"
	"strings"

	"breakout_bot/config"
	"breakout_bot/models"

	"gopkg.in/yaml.v3"
)

// Universe holds the candidate symbols for each bias
type Universe struct {
	Bullish []string `yaml:"bullish" json:"bullish"`
	Bearish []string `yaml:"bearish" json:"bearish"`
}

// Load reads the candidates file when one is configured, otherwise the env lists
func Load(cfg config.UniverseConfig) (Universe, error) {
	var u Universe
	if cfg.File != "" {
		raw, err := os.ReadFile(cfg.File)
		if err != nil {
			return Universe{}, fmt.Errorf("read candidates file: %w", err)
		}
		if err := yaml.Unmarshal(raw, &u); err != nil {
			return Universe{}, fmt.Errorf("parse candidates file %s: %v: %w", cfg.File, err, models.ErrConfig)
		}
	} else {
		u.Bullish = splitList(cfg.Bullish)
		u.Bearish = splitList(cfg.Bearish)
	}

	u.Bullish = normalize(u.Bullish)
	u.Bearish = normalize(u.Bearish)
	if len(u.Bullish) == 0 && len(u.Bearish) == 0 {
		return Universe{}, fmt.Errorf("no candidate symbols configured: %w", models.ErrConfig)
	}
	return u, nil
}

func splitList(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return strings.Split(s, ",")
}

// normalize trims, upper-cases and de-duplicates symbols, keeping order
func normalize(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.ToUpper(strings.TrimSpace(s))
		s = strings.TrimSuffix(s, "-EQ")
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
