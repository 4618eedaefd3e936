// Package broker talks to the Angel One SmartAPI REST endpoints: login,
// historical candles, LTP, the RMS balance and bracket orders.
package broker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"breakout_bot/config"
	"breakout_bot/models"

	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"
	"golang.org/x/time/rate"
)

// SmartAPI endpoint paths
const (
	loginPath   = "/rest/auth/angelbroking/user/v1/loginByPassword"
	rmsPath     = "/rest/secure/angelbroking/user/v1/getRMS"
	ltpPath     = "/rest/secure/angelbroking/order/v1/getLtpData"
	candlePath  = "/rest/secure/angelbroking/historical/v1/getCandleData"
	placeOrder  = "/rest/secure/angelbroking/order/v1/placeOrder"
	candleStamp = "2006-01-02 15:04"
)

// authCodes are SmartAPI error codes for an invalid or expired session
var authCodes = map[string]bool{
	"AG8001": true, // invalid token
	"AG8002": true, // token expired
	"AG8003": true, // token missing
	"AB1010": true, // session expired
}

// TokenResolver maps a trading symbol to its exchange token
type TokenResolver interface {
	TokenFor(symbol string) (string, bool)
}

// Client is a SmartAPI REST client holding one login session
type Client struct {
	cfg      config.BrokerConfig
	http     *http.Client
	resolver TokenResolver
	limiter  *rate.Limiter
	log      zerolog.Logger
	now      func() time.Time

	loginMu sync.Mutex
	mu      sync.RWMutex
	session session
}

type session struct {
	jwt       string
	refresh   string
	feed      string
	expiresAt time.Time
}

// NewClient creates a SmartAPI client. Historical candle calls are spaced
// at least cfg.CandleMinInterval apart.
func NewClient(cfg config.BrokerConfig, resolver TokenResolver, log zerolog.Logger) *Client {
	limit := rate.Inf
	if cfg.CandleMinInterval > 0 {
		limit = rate.Every(cfg.CandleMinInterval)
	}
	timeout := cfg.HTTPTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		cfg:      cfg,
		http:     &http.Client{Timeout: timeout},
		resolver: resolver,
		limiter:  rate.NewLimiter(limit, 1),
		log:      log.With().Str("component", "smartapi").Logger(),
		now:      time.Now,
	}
}

// SetResolver installs the symbol to token lookup used by candle and order calls
func (c *Client) SetResolver(r TokenResolver) {
	c.mu.Lock()
	c.resolver = r
	c.mu.Unlock()
}

// TokenFor resolves symbol through the installed resolver
func (c *Client) TokenFor(symbol string) (string, bool) {
	c.mu.RLock()
	r := c.resolver
	c.mu.RUnlock()
	if r == nil {
		return "", false
	}
	return r.TokenFor(symbol)
}

func (c *Client) bearer() (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.session.jwt == "" {
		return "", fmt.Errorf("no broker session: %w", models.ErrAuth)
	}
	if !c.session.expiresAt.IsZero() && !c.now().Before(c.session.expiresAt) {
		return "", fmt.Errorf("broker session expired at %s: %w", c.session.expiresAt.Format(time.RFC3339), models.ErrAuth)
	}
	return c.session.jwt, nil
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-UserType", "USER")
	req.Header.Set("X-SourceID", "WEB")
	req.Header.Set("X-ClientLocalIP", "127.0.0.1")
	req.Header.Set("X-ClientPublicIP", "127.0.0.1")
	req.Header.Set("X-MACAddress", "00:00:00:00:00:00")
	req.Header.Set("X-PrivateKey", c.cfg.APIKey)
}

// call sends one request and returns the "data" member of a successful
// SmartAPI envelope.
func (c *Client) call(ctx context.Context, method, path string, payload interface{}, secure bool) (gjson.Result, error) {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return gjson.Result{}, fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, strings.TrimRight(c.cfg.BaseURL, "/")+path, body)
	if err != nil {
		return gjson.Result{}, fmt.Errorf("failed to create request: %w", err)
	}
	c.setHeaders(req)
	if secure {
		token, err := c.bearer()
		if err != nil {
			return gjson.Result{}, err
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return gjson.Result{}, fmt.Errorf("smartapi %s: %w", path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return gjson.Result{}, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return gjson.Result{}, fmt.Errorf("smartapi %s status %d: %w", path, resp.StatusCode, models.ErrAuth)
	}
	if resp.StatusCode != http.StatusOK {
		return gjson.Result{}, fmt.Errorf("smartapi %s error (status %d): %s", path, resp.StatusCode, preview(raw))
	}
	if !gjson.ValidBytes(raw) {
		return gjson.Result{}, fmt.Errorf("smartapi %s returned invalid JSON: %s", path, preview(raw))
	}

	env := gjson.ParseBytes(raw)
	code := env.Get("errorcode").String()
	if authCodes[code] {
		return gjson.Result{}, fmt.Errorf("smartapi %s %s %s: %w", path, code, env.Get("message").String(), models.ErrAuth)
	}
	if !env.Get("status").Bool() {
		return gjson.Result{}, fmt.Errorf("smartapi %s failed: %s (%s)", path, env.Get("message").String(), code)
	}
	return env.Get("data"), nil
}

func preview(b []byte) string {
	if len(b) > 200 {
		return string(b[:200])
	}
	return string(b)
}
