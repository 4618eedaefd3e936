package routes

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"breakout_bot/models"
	"breakout_bot/services/strategy"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

type staticEngine struct{ st strategy.Status }

func (s staticEngine) Status() strategy.Status { return s.st }

type staticResolver map[string]string

func (r staticResolver) TokenFor(symbol string) (string, bool) {
	t, ok := r[symbol]
	return t, ok
}

func newRouter(st strategy.Status) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	SetupRoutes(r, Deps{
		Engine:   staticEngine{st: st},
		Resolver: staticResolver{"INFY": "1594"},
		DryRun:   true,
		Log:      zerolog.Nop(),
	})
	return r
}

func get(r *gin.Engine, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

func TestHealth(t *testing.T) {
	w := get(newRouter(strategy.Status{}), "/health")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"status":"ok"`) {
		t.Errorf("body = %s", w.Body.String())
	}
}

func TestReady(t *testing.T) {
	if w := get(newRouter(strategy.Status{Outcome: strategy.InitFlat}), "/ready"); w.Code != http.StatusServiceUnavailable {
		t.Errorf("uninitialized /ready = %d, want 503", w.Code)
	}
	if w := get(newRouter(strategy.Status{Initialized: true, Running: true}), "/ready"); w.Code != http.StatusOK {
		t.Errorf("initialized /ready = %d, want 200", w.Code)
	}
}

func TestGetSession(t *testing.T) {
	st := strategy.Status{
		Initialized: true,
		Running:     true,
		Bias:        models.BiasBullish,
		Watchlist:   []strategy.WatchlistEntry{{Symbol: "INFY", BaselineHigh: 100, BaselineLow: 98}},
		TradesDone:  1,
		MaxTrades:   20,
	}
	w := get(newRouter(st), "/api/v1/session")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}

	var body struct {
		Data   strategy.Status `json:"data"`
		DryRun bool            `json:"dry_run"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Data.Bias != models.BiasBullish || body.Data.TradesDone != 1 || len(body.Data.Watchlist) != 1 || !body.DryRun {
		t.Errorf("body = %+v", body)
	}
}

func TestGetInstrument(t *testing.T) {
	r := newRouter(strategy.Status{})
	if w := get(r, "/api/v1/instruments/infy"); w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "1594") {
		t.Errorf("known symbol = %d %s", w.Code, w.Body.String())
	}
	if w := get(r, "/api/v1/instruments/WIPRO"); w.Code != http.StatusNotFound {
		t.Errorf("unknown symbol = %d, want 404", w.Code)
	}
}

func TestMetricsExposed(t *testing.T) {
	w := get(newRouter(strategy.Status{}), "/metrics")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "breakout_cycles_total") {
		t.Error("metrics output missing breakout_cycles_total")
	}
}
