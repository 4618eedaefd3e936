package broker

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"breakout_bot/models"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pquerna/otp/totp"
)

// Login opens a new SmartAPI session with a fresh TOTP code
func (c *Client) Login(ctx context.Context) error {
	c.loginMu.Lock()
	defer c.loginMu.Unlock()

	code, err := totp.GenerateCode(c.cfg.TOTPSecret, c.now())
	if err != nil {
		return fmt.Errorf("generate totp: %w", err)
	}

	data, err := c.call(ctx, http.MethodPost, loginPath, map[string]string{
		"clientcode": c.cfg.ClientID,
		"password":   c.cfg.Password,
		"totp":       code,
	}, false)
	if err != nil {
		return fmt.Errorf("login: %w", err)
	}

	token := strings.TrimPrefix(data.Get("jwtToken").String(), "Bearer ")
	if token == "" {
		return fmt.Errorf("login returned no jwt: %w", models.ErrAuth)
	}
	s := session{
		jwt:       token,
		refresh:   data.Get("refreshToken").String(),
		feed:      data.Get("feedToken").String(),
		expiresAt: tokenExpiry(token),
	}

	c.mu.Lock()
	c.session = s
	c.mu.Unlock()

	ev := c.log.Info().Str("client_id", c.cfg.ClientID)
	if !s.expiresAt.IsZero() {
		ev = ev.Time("expires_at", s.expiresAt)
	}
	ev.Msg("SmartAPI login successful")
	return nil
}

// SessionExpiry returns when the current jwt expires, zero if unknown
func (c *Client) SessionExpiry() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.session.expiresAt
}

// tokenExpiry reads the exp claim without verifying the signature; the
// broker holds the key.
func tokenExpiry(raw string) time.Time {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, claims); err != nil {
		return time.Time{}
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}
	}
	return exp.Time
}
