package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Browser BrowserConfig
	Search  SearchConfig
	Timing  TimingConfig
	Extract ExtractConfig
	Pacing  PacingConfig
	Output  OutputConfig
	Server  ServerConfig
	Auth    AuthConfig
	Webhook WebhookConfig
	Log     LogConfig
}

// BrowserConfig controls the browser process and the identity of every
// browsing context it creates.
type BrowserConfig struct {
	// Headless controls the first session. It stays headful by default so an
	// operator can solve the search challenge by hand.
	Headless bool // default: false

	// RecoveryHeadless controls sessions relaunched after a crash.
	RecoveryHeadless bool // default: true

	// NoSandbox disables Chrome's sandbox (needed in Docker).
	NoSandbox bool // default: false

	// BrowserBin overrides the Chromium binary path.
	BrowserBin string

	// Proxy is passed to the browser process as-is.
	Proxy string

	UserAgent      string // default: Chrome 123 on Windows 10
	AcceptLanguage string // default: "en-US,en;q=0.9"
	Locale         string // default: "en-US"
	ViewportWidth  int    // default: 1280
	ViewportHeight int    // default: 720

	// BlockedResourceTypes lists resource types the session never loads.
	// default: ["Font", "Media"]
	BlockedResourceTypes []string
}

// SearchConfig describes the search submitted at the start of a run.
type SearchConfig struct {
	EntryURL  string // default: "https://search.recoversy.in/"
	FirstName string // default: "kumar"
	LastName  string // default: "kumar"
	State     string // visible option label; default: "Bihar"

	// ChallengeWait is the window left to a human to clear the CAPTCHA.
	ChallengeWait time.Duration // default: 30s
}

// TimingConfig bounds every wait in the pipeline.
type TimingConfig struct {
	NavigationTimeout time.Duration // default: 60s
	ResultsTimeout    time.Duration // default: 30s
	FastProbeTimeout  time.Duration // default: 20s
	TableTimeout      time.Duration // default: 90s
	NewSurfaceTimeout time.Duration // default: 10s
	ClickSettle       time.Duration // default: 1s
	RowSettle         time.Duration // default: 300ms
}

// ExtractConfig controls price extraction on the detail view.
type ExtractConfig struct {
	MaxAttempts      int           // default: 3
	RetryDelay       time.Duration // default: 1s
	LoadTimeout      time.Duration // default: 15s
	SettleDelay      time.Duration // default: 2s
	SelectorTimeout  time.Duration // default: 5s
	MaxRows          int           // default: 100
	DetailPattern    string        // default: "result"
	PayloadParam     string        // default: "ID"
	PayloadField     string        // default: "recovery_values"
	CaptureOnFailure bool          // default: true
}

// PacingConfig controls the delays between rows.
type PacingConfig struct {
	RowDelay   time.Duration // default: 1.5s
	PauseEvery int           // default: 10
	PauseFor   time.Duration // default: 5s

	// NavigationsPerSecond bounds detail-view navigations.
	NavigationsPerSecond float64 // default: 0.5
	NavigationBurst      int     // default: 1
}

// OutputConfig controls where records and diagnostics are written.
type OutputConfig struct {
	CSVPath     string // default: "output.csv"
	SQLitePath  string // empty disables the SQLite sink
	RedisAddr   string // empty disables the Redis sink
	RedisDB     int    // default: 0
	RedisStream string // default: "recoveryfinder:records"
	SnapshotDir string // default: "screenshots"
}

// ServerConfig controls the optional status HTTP server.
type ServerConfig struct {
	Enabled bool   // default: false
	Host    string // default: "127.0.0.1"
	Port    int    // default: 8090
	Mode    string // "debug", "release", "test"; default: "release"
}

// AuthConfig controls API key authentication on the status API.
type AuthConfig struct {
	// Enabled toggles API key authentication.
	Enabled bool // default: true

	APIKeys []string

	RequestsPerSecond float64 // default: 5
	Burst             int     // default: 10
}

// WebhookConfig controls run notifications.
type WebhookConfig struct {
	URL    string // empty disables notifications
	Secret string
}

// LogConfig controls structured logging.
type LogConfig struct {
	Level  string // default: "info"
	Format string // "json" or "text"; default: "text"
}

// DefaultUserAgent is the identity used by every browsing context.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36"

// Load reads configuration from environment variables with sane defaults.
func Load() *Config {
	return &Config{
		Browser: BrowserConfig{
			Headless:         envBoolOr("FINDER_HEADLESS", false),
			RecoveryHeadless: envBoolOr("FINDER_RECOVERY_HEADLESS", true),
			NoSandbox:        envBoolOr("FINDER_NO_SANDBOX", false),
			BrowserBin:       os.Getenv("FINDER_BROWSER_BIN"),
			Proxy:            os.Getenv("FINDER_PROXY"),
			UserAgent:        envOr("FINDER_USER_AGENT", DefaultUserAgent),
			AcceptLanguage:   envOr("FINDER_ACCEPT_LANGUAGE", "en-US,en;q=0.9"),
			Locale:           envOr("FINDER_LOCALE", "en-US"),
			ViewportWidth:    envIntOr("FINDER_VIEWPORT_WIDTH", 1280),
			ViewportHeight:   envIntOr("FINDER_VIEWPORT_HEIGHT", 720),
			BlockedResourceTypes: envSliceOr("FINDER_BLOCKED_RESOURCES", []string{
				"Font", "Media",
			}),
		},
		Search: SearchConfig{
			EntryURL:      envOr("FINDER_ENTRY_URL", "https://search.recoversy.in/"),
			FirstName:     envOr("FINDER_FIRST_NAME", "kumar"),
			LastName:      envOr("FINDER_LAST_NAME", "kumar"),
			State:         envOr("FINDER_STATE", "Bihar"),
			ChallengeWait: envDurationOr("FINDER_CHALLENGE_WAIT", 30*time.Second),
		},
		Timing: TimingConfig{
			NavigationTimeout: envDurationOr("FINDER_NAV_TIMEOUT", 60*time.Second),
			ResultsTimeout:    envDurationOr("FINDER_RESULTS_TIMEOUT", 30*time.Second),
			FastProbeTimeout:  envDurationOr("FINDER_FAST_PROBE_TIMEOUT", 20*time.Second),
			TableTimeout:      envDurationOr("FINDER_TABLE_TIMEOUT", 90*time.Second),
			NewSurfaceTimeout: envDurationOr("FINDER_NEW_SURFACE_TIMEOUT", 10*time.Second),
			ClickSettle:       envDurationOr("FINDER_CLICK_SETTLE", time.Second),
			RowSettle:         envDurationOr("FINDER_ROW_SETTLE", 300*time.Millisecond),
		},
		Extract: ExtractConfig{
			MaxAttempts:      envIntOr("FINDER_PRICE_ATTEMPTS", 3),
			RetryDelay:       envDurationOr("FINDER_PRICE_RETRY_DELAY", time.Second),
			LoadTimeout:      envDurationOr("FINDER_LOAD_TIMEOUT", 15*time.Second),
			SettleDelay:      envDurationOr("FINDER_SETTLE_DELAY", 2*time.Second),
			SelectorTimeout:  envDurationOr("FINDER_PRICE_SELECTOR_TIMEOUT", 5*time.Second),
			MaxRows:          envIntOr("FINDER_MAX_ROWS", 100),
			DetailPattern:    envOr("FINDER_DETAIL_PATTERN", "result"),
			PayloadParam:     envOr("FINDER_PAYLOAD_PARAM", "ID"),
			PayloadField:     envOr("FINDER_PAYLOAD_FIELD", "recovery_values"),
			CaptureOnFailure: envBoolOr("FINDER_CAPTURE_ON_FAILURE", true),
		},
		Pacing: PacingConfig{
			RowDelay:             envDurationOr("FINDER_ROW_DELAY", 1500*time.Millisecond),
			PauseEvery:           envIntOr("FINDER_PAUSE_EVERY", 10),
			PauseFor:             envDurationOr("FINDER_PAUSE_FOR", 5*time.Second),
			NavigationsPerSecond: envFloatOr("FINDER_NAV_RPS", 0.5),
			NavigationBurst:      envIntOr("FINDER_NAV_BURST", 1),
		},
		Output: OutputConfig{
			CSVPath:     envOr("FINDER_CSV_PATH", "output.csv"),
			SQLitePath:  os.Getenv("FINDER_SQLITE_PATH"),
			RedisAddr:   os.Getenv("FINDER_REDIS_ADDR"),
			RedisDB:     envIntOr("FINDER_REDIS_DB", 0),
			RedisStream: envOr("FINDER_REDIS_STREAM", "recoveryfinder:records"),
			SnapshotDir: envOr("FINDER_SNAPSHOT_DIR", "screenshots"),
		},
		Server: ServerConfig{
			Enabled: envBoolOr("FINDER_STATUS_SERVER", false),
			Host:    envOr("FINDER_HOST", "127.0.0.1"),
			Port:    envIntOr("FINDER_PORT", 8090),
			Mode:    envOr("FINDER_MODE", "release"),
		},
		Auth: AuthConfig{
			Enabled:           envBoolOr("FINDER_AUTH_ENABLED", true),
			APIKeys:           envSliceOr("FINDER_API_KEYS", nil),
			RequestsPerSecond: envFloatOr("FINDER_RATE_RPS", 5.0),
			Burst:             envIntOr("FINDER_RATE_BURST", 10),
		},
		Webhook: WebhookConfig{
			URL:    os.Getenv("FINDER_WEBHOOK_URL"),
			Secret: os.Getenv("FINDER_WEBHOOK_SECRET"),
		},
		Log: LogConfig{
			Level:  envOr("FINDER_LOG_LEVEL", "info"),
			Format: envOr("FINDER_LOG_FORMAT", "text"),
		},
	}
}

// --- helper functions ---

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envBoolOr(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envFloatOr(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envDurationOr(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func envSliceOr(key string, fallback []string) []string {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		return result
	}
	return fallback
}
