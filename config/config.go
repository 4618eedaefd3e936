package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"breakout_bot/models"

	"github.com/joho/godotenv"
)

// Config holds every runtime knob of the breakout bot
type Config struct {
	Port        string
	Environment string
	LogLevel    string

	// Session clock
	MarketTZ    string
	StartAt     string // HH:MM:SS local time the bot waits for before logging in
	FirstPollAt string // HH:MM:SS local time of the first poll tick
	DryRun      bool

	Strategy StrategyConfig
	Broker   BrokerConfig
	Database DatabaseConfig
	Universe UniverseConfig
}

// StrategyConfig holds the engine knobs
type StrategyConfig struct {
	MaxTrades           int
	PollPeriod          time.Duration
	Leverage            float64
	CapitalFraction     float64
	BreakoutRangeMaxPct float64
	BiasThresholdPct    float64
	BaselineRetries     int
	BaselineBaseDelay   time.Duration
	BaselineWarmup      time.Duration
	MinEffectiveCapital float64
	StopLossPct         float64
	TargetPct           float64
	BracketBySide       bool
	ReloginPause        time.Duration
	CallTimeout         time.Duration
	LivenessInterval    time.Duration
	MinPoolSize         int
}

// BrokerConfig holds SmartAPI credentials and endpoints
type BrokerConfig struct {
	BaseURL           string
	APIKey            string
	ClientID          string
	Password          string
	TOTPSecret        string
	Exchange          string
	BenchmarkSymbol   string
	BenchmarkToken    string
	CandleMinInterval time.Duration
	HTTPTimeout       time.Duration
}

// DatabaseConfig selects the instrument cache backend
type DatabaseConfig struct {
	Driver     string // sqlite or postgres
	SQLitePath string
	Host       string
	Port       string
	User       string
	Password   string
	Name       string
	SSLMode    string
}

// UniverseConfig points at the daily candidate lists
type UniverseConfig struct {
	File    string
	Bullish string
	Bearish string
	// ScripMasterURL is the instrument master download location.
	ScripMasterURL string
}

// LoadConfig loads environment variables, reading .env first when present
func LoadConfig() (*Config, error) {
	// Process env wins over .env; godotenv.Load never overrides.
	_ = godotenv.Load()

	env := &envLoader{}
	cfg := &Config{
		Port:        getEnv("PORT", "8080"),
		Environment: getEnv("ENVIRONMENT", "development"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		MarketTZ:    getEnv("MARKET_TZ", "Asia/Kolkata"),
		StartAt:     getEnv("START_AT", "09:36:00"),
		FirstPollAt: getEnv("FIRST_POLL_AT", "09:35:01"),
		DryRun:      env.boolean("DRY_RUN", true),
		Strategy: StrategyConfig{
			MaxTrades:           env.integer("MAX_TRADES", 20),
			PollPeriod:          env.duration("POLL_PERIOD", 300*time.Second),
			Leverage:            env.float("LEVERAGE", 5.0),
			CapitalFraction:     env.float("CAPITAL_FRACTION", 0.5),
			BreakoutRangeMaxPct: env.float("BREAKOUT_RANGE_MAX_PCT", 0.5),
			BiasThresholdPct:    env.float("BIAS_THRESHOLD_PCT", 0.04),
			BaselineRetries:     env.integer("BASELINE_RETRIES", 3),
			BaselineBaseDelay:   env.duration("BASELINE_BASE_DELAY", 2000*time.Millisecond),
			BaselineWarmup:      env.duration("BASELINE_WARMUP", 60*time.Second),
			MinEffectiveCapital: env.float("MIN_EFFECTIVE_CAPITAL", 1000),
			StopLossPct:         env.float("STOP_LOSS_PCT", 0.5),
			TargetPct:           env.float("TARGET_PCT", 0.75),
			BracketBySide:       env.boolean("BRACKET_BY_SIDE", false),
			ReloginPause:        env.duration("RELOGIN_PAUSE", 2*time.Second),
			CallTimeout:         env.duration("CALL_TIMEOUT", 15*time.Second),
			LivenessInterval:    env.duration("LIVENESS_INTERVAL", 60*time.Second),
			MinPoolSize:         env.integer("MIN_POOL_SIZE", 5),
		},
		Broker: BrokerConfig{
			BaseURL:           getEnv("SMARTAPI_BASE_URL", "https://apiconnect.angelone.in"),
			APIKey:            getEnv("SMARTAPI_API_KEY", ""),
			ClientID:          getEnv("SMARTAPI_CLIENT_ID", ""),
			Password:          getEnv("SMARTAPI_PASSWORD", ""),
			TOTPSecret:        getEnv("SMARTAPI_TOTP_SECRET", ""),
			Exchange:          getEnv("SMARTAPI_EXCHANGE", "NSE"),
			BenchmarkSymbol:   getEnv("BENCHMARK_SYMBOL", "NIFTY"),
			BenchmarkToken:    getEnv("BENCHMARK_TOKEN", "99926000"),
			CandleMinInterval: env.duration("CANDLE_MIN_INTERVAL", 350*time.Millisecond),
			HTTPTimeout:       env.duration("SMARTAPI_HTTP_TIMEOUT", 30*time.Second),
		},
		Database: DatabaseConfig{
			Driver:     strings.ToLower(getEnv("DB_DRIVER", "sqlite")),
			SQLitePath: getEnv("SQLITE_PATH", "data/instruments.db"),
			Host:       getEnv("DB_HOST", "localhost"),
			Port:       getEnv("DB_PORT", "5432"),
			User:       getEnv("DB_USER", "postgres"),
			Password:   getEnv("DB_PASSWORD", ""),
			Name:       getEnv("DB_NAME", "breakout_bot"),
			SSLMode:    getEnv("DB_SSLMODE", "disable"),
		},
		Universe: UniverseConfig{
			File:           getEnv("CANDIDATES_FILE", ""),
			Bullish:        getEnv("CANDIDATES_BULLISH", ""),
			Bearish:        getEnv("CANDIDATES_BEARISH", ""),
			ScripMasterURL: getEnv("SCRIP_MASTER_URL", "https://margincalculator.angelbroking.com/OpenAPI_File/files/OpenAPIScripMaster.json"),
		},
	}

	if err := env.err(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the settings the engine cannot run without
func (c *Config) Validate() error {
	s := c.Strategy
	switch {
	case s.MaxTrades <= 0:
		return configErr("MAX_TRADES must be positive, got %d", s.MaxTrades)
	case s.PollPeriod <= 0:
		return configErr("POLL_PERIOD must be positive, got %s", s.PollPeriod)
	case s.Leverage <= 0:
		return configErr("LEVERAGE must be positive, got %g", s.Leverage)
	case s.CapitalFraction <= 0 || s.CapitalFraction > 1:
		return configErr("CAPITAL_FRACTION must be in (0, 1], got %g", s.CapitalFraction)
	case s.BreakoutRangeMaxPct <= 0:
		return configErr("BREAKOUT_RANGE_MAX_PCT must be positive, got %g", s.BreakoutRangeMaxPct)
	case s.BiasThresholdPct < 0:
		return configErr("BIAS_THRESHOLD_PCT must not be negative, got %g", s.BiasThresholdPct)
	case s.BaselineRetries <= 0:
		return configErr("BASELINE_RETRIES must be positive, got %d", s.BaselineRetries)
	case s.BaselineBaseDelay < 0 || s.BaselineWarmup < 0:
		return configErr("baseline delays must not be negative")
	case s.StopLossPct <= 0 || s.StopLossPct >= 100:
		return configErr("STOP_LOSS_PCT must be in (0, 100), got %g", s.StopLossPct)
	case s.TargetPct <= 0:
		return configErr("TARGET_PCT must be positive, got %g", s.TargetPct)
	case s.CallTimeout <= 0:
		return configErr("CALL_TIMEOUT must be positive, got %s", s.CallTimeout)
	case s.LivenessInterval <= 0:
		return configErr("LIVENESS_INTERVAL must be positive, got %s", s.LivenessInterval)
	case s.MinPoolSize <= 0:
		return configErr("MIN_POOL_SIZE must be positive, got %d", s.MinPoolSize)
	}

	if _, err := c.Location(); err != nil {
		return configErr("MARKET_TZ %q: %v", c.MarketTZ, err)
	}
	if _, err := ParseClock(c.StartAt); err != nil {
		return configErr("START_AT: %v", err)
	}
	if _, err := ParseClock(c.FirstPollAt); err != nil {
		return configErr("FIRST_POLL_AT: %v", err)
	}

	if c.Database.Driver != "sqlite" && c.Database.Driver != "postgres" {
		return configErr("DB_DRIVER must be sqlite or postgres, got %q", c.Database.Driver)
	}

	b := c.Broker
	if b.BaseURL == "" {
		return configErr("SMARTAPI_BASE_URL is required")
	}
	if b.APIKey == "" || b.ClientID == "" || b.Password == "" || b.TOTPSecret == "" {
		return configErr("SMARTAPI_API_KEY, SMARTAPI_CLIENT_ID, SMARTAPI_PASSWORD and SMARTAPI_TOTP_SECRET are required")
	}
	return nil
}

// Location returns the market timezone
func (c *Config) Location() (*time.Location, error) {
	return time.LoadLocation(c.MarketTZ)
}

// Clock is a wall-clock time of day
type Clock struct {
	Hour, Minute, Second int
}

// On returns the clock time on the day of t, in t's location
func (c Clock) On(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), c.Hour, c.Minute, c.Second, 0, t.Location())
}

// ParseClock parses "HH:MM" or "HH:MM:SS"
func ParseClock(s string) (Clock, error) {
	layout := "15:04:05"
	if strings.Count(s, ":") == 1 {
		layout = "15:04"
	}
	t, err := time.Parse(layout, strings.TrimSpace(s))
	if err != nil {
		return Clock{}, fmt.Errorf("invalid clock %q: %w", s, err)
	}
	return Clock{Hour: t.Hour(), Minute: t.Minute(), Second: t.Second()}, nil
}

func configErr(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", models.ErrConfig, fmt.Sprintf(format, args...))
}

// getEnv gets an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	return value
}

// envLoader parses typed settings and remembers every malformed value.
type envLoader struct {
	invalid []string
}

func (l *envLoader) reject(key, value, want string) {
	l.invalid = append(l.invalid, fmt.Sprintf("%s=%q is not a valid %s", key, value, want))
}

func (l *envLoader) err() error {
	if len(l.invalid) == 0 {
		return nil
	}
	return configErr("%s", strings.Join(l.invalid, "; "))
}

func (l *envLoader) integer(key string, defaultValue int) int {
	v := getEnv(key, "")
	if v == "" {
		return defaultValue
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		l.reject(key, v, "integer")
		return defaultValue
	}
	return i
}

func (l *envLoader) float(key string, defaultValue float64) float64 {
	v := getEnv(key, "")
	if v == "" {
		return defaultValue
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		l.reject(key, v, "number")
		return defaultValue
	}
	return f
}

func (l *envLoader) boolean(key string, defaultValue bool) bool {
	v := getEnv(key, "")
	switch strings.ToLower(v) {
	case "":
		return defaultValue
	case "1", "true", "y", "yes":
		return true
	case "0", "false", "n", "no":
		return false
	default:
		l.reject(key, v, "boolean")
		return defaultValue
	}
}

// duration accepts Go duration strings ("300s", "2m") or bare
// milliseconds ("2000").
func (l *envLoader) duration(key string, defaultValue time.Duration) time.Duration {
	v := getEnv(key, "")
	if v == "" {
		return defaultValue
	}
	if ms, err := strconv.Atoi(v); err == nil {
		return time.Duration(ms) * time.Millisecond
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		l.reject(key, v, "duration")
		return defaultValue
	}
	return d
}
