package instruments

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"breakout_bot/models"

	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"
)

const equitySuffix = "-EQ"

// Resolver answers symbol to token lookups from memory
type Resolver struct {
	store    *Store
	http     *http.Client
	url      string
	exchange string
	log      zerolog.Logger

	mu     sync.RWMutex
	tokens map[string]string
}

// NewResolver creates a resolver for exchange. Lookups fail until Load runs.
func NewResolver(store *Store, scripMasterURL, exchange string, log zerolog.Logger) *Resolver {
	return &Resolver{
		store:    store,
		http:     &http.Client{Timeout: 60 * time.Second},
		url:      scripMasterURL,
		exchange: exchange,
		log:      log.With().Str("component", "instruments").Logger(),
		tokens:   make(map[string]string),
	}
}

// Sync downloads the scrip master when the cache is empty and stores the
// exchange's equity rows. It returns the number of rows written.
func (r *Resolver) Sync(ctx context.Context) (int, error) {
	n, err := r.store.Count(ctx, r.exchange)
	if err != nil {
		return 0, fmt.Errorf("count instruments: %w", err)
	}
	if n > 0 {
		r.log.Info().Int64("cached", n).Msg("Instrument cache populated, skipping download")
		return 0, nil
	}

	started := time.Now()
	raw, err := r.download(ctx)
	if err != nil {
		return 0, err
	}
	rows := parseScripMaster(raw, r.exchange)
	if len(rows) == 0 {
		return 0, fmt.Errorf("scrip master has no %s equity rows", r.exchange)
	}
	if err := r.store.Upsert(ctx, rows); err != nil {
		return 0, fmt.Errorf("store instruments: %w", err)
	}

	r.log.Info().
		Int("instruments", len(rows)).
		Dur("elapsed", time.Since(started)).
		Msg("Scrip master synced")
	return len(rows), nil
}

func (r *Resolver) download(ctx context.Context) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := r.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch scrip master: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("scrip master download failed (status %d)", resp.StatusCode)
	}
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read scrip master: %w", err)
	}
	if !gjson.ValidBytes(raw) {
		return nil, fmt.Errorf("scrip master is not valid JSON")
	}
	return raw, nil
}

func parseScripMaster(raw []byte, exchange string) []models.Instrument {
	var rows []models.Instrument
	gjson.ParseBytes(raw).ForEach(func(_, v gjson.Result) bool {
		symbol := v.Get("symbol").String()
		token := v.Get("token").String()
		if v.Get("exch_seg").String() != exchange || !strings.HasSuffix(symbol, equitySuffix) || token == "" {
			return true
		}
		rows = append(rows, models.Instrument{
			Symbol:   symbol,
			Exchange: exchange,
			Token:    token,
			Name:     v.Get("name").String(),
		})
		return true
	})
	return rows
}

// Load hydrates the in-memory lookup from the store
func (r *Resolver) Load(ctx context.Context) error {
	rows, err := r.store.All(ctx, r.exchange)
	if err != nil {
		return fmt.Errorf("load instruments: %w", err)
	}
	tokens := make(map[string]string, len(rows))
	for _, row := range rows {
		tokens[row.Symbol] = row.Token
	}

	r.mu.Lock()
	r.tokens = tokens
	r.mu.Unlock()
	r.log.Info().Int("instruments", len(tokens)).Msg("Instrument tokens loaded")
	return nil
}

// TokenFor returns the exchange token of an equity symbol such as INFY
func (r *Resolver) TokenFor(symbol string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tokens[strings.ToUpper(symbol)+equitySuffix]
	return t, ok
}

// Len returns the number of loaded tokens
func (r *Resolver) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tokens)
}
