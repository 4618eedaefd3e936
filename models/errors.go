package models

import (
	"errors"
	"strings"
)

var (
	// ErrDataUnavailable means the candle source had no data for the window.
	ErrDataUnavailable = errors.New("data unavailable")
	// ErrAuth means the broker session or token is no longer valid.
	ErrAuth = errors.New("unauthorized: session invalid")
	// ErrOrder means an order submission was rejected or failed.
	ErrOrder = errors.New("order submission failed")
	// ErrConfig means a required setting is missing or invalid.
	ErrConfig = errors.New("invalid configuration")
	// ErrUnknownSymbol means no exchange token could be resolved for a symbol.
	ErrUnknownSymbol = errors.New("unknown symbol")
)

// authPhrases identify auth failures from collaborators that cannot wrap
// ErrAuth. A bare "token" is not enough: "invalid symboltoken" is a
// rejected instrument, not an expired session.
var authPhrases = []string{
	"unauthorized",
	"invalid token",
	"token expired",
	"token is expired",
	"expired token",
	"invalid session",
	"session expired",
	"session invalid",
}

// IsAuthError reports whether err is an authentication-class failure.
func IsAuthError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrAuth) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, p := range authPhrases {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}
