// Package config loads the dispatch service settings from the environment.
//
// Unset or empty variables take their defaults. A variable that is set but
// cannot be parsed is an error, as is any value that fails validation; Load
// reports all of them at once.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// CORSConfig defines Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string
}

// SecurityConfig defines security-related settings such as HSTS.
type SecurityConfig struct {
	EnableHSTS bool
	HSTSMaxAge time.Duration
}

// NotifierConfig defines how case lifecycle changes reach the chat platform.
// With an empty WebhookURL, commands are only logged.
type NotifierConfig struct {
	WebhookURL        string        // NOTIFIER_WEBHOOK_URL (chat bridge endpoint)
	Timeout           time.Duration // NOTIFIER_TIMEOUT per bridge call
	RPS               float64       // NOTIFIER_RPS outbound calls per second (0 = unlimited)
	Burst             int           // NOTIFIER_BURST
	MaxFailures       uint32        // NOTIFIER_MAX_FAILURES consecutive failures before the circuit opens
	OpenTimeout       time.Duration // NOTIFIER_OPEN_TIMEOUT before a half-open probe
	AnnounceChannelID string        // ANNOUNCE_CHANNEL_ID
	ResponderRoleID   string        // RESPONDER_ROLE_ID, mentioned on new announcements
}

// WSConfig defines the live case feed served at /ws.
type WSConfig struct {
	Enabled        bool     // WS_ENABLED
	AllowedOrigins []string // WS_ALLOWED_ORIGINS host patterns; empty = same-origin only
}

// OTELConfig defines OpenTelemetry tracing settings.
type OTELConfig struct {
	Enabled     bool    // OTEL_ENABLED
	Endpoint    string  // OTEL_EXPORTER_OTLP_ENDPOINT, host:port
	Insecure    bool    // OTEL_EXPORTER_OTLP_INSECURE
	ServiceName string  // OTEL_SERVICE_NAME
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// Config holds all configuration values for the application.
type Config struct {
	Port              string
	ReadTimeout       time.Duration
	ReadHeaderTimeout time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	MaxHeaderBytes    int
	GinMode           string // debug|release|test

	LogLevel       string // debug|info|warn|error|fatal|panic
	LogPretty      bool
	SwaggerEnabled bool
	APIBasePath    string

	DBPath          string   // SQLite file or file: DSN holding idempotency records
	MaxBodyBytes    int64    // request body cap
	MaxShortRunes   int      // location, system, cause
	MaxLongRunes    int      // hazards, notes
	PrivilegedRoles []string // roles allowed to close any claimed case

	Notifier NotifierConfig
	WS       WSConfig

	RateRPS   float64
	RateBurst int

	CORS     CORSConfig
	Security SecurityConfig

	IdempotencyTTL time.Duration

	OTEL OTELConfig
}

// MustLoad is Load for main packages that cannot start without config.
func MustLoad() Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load reads the environment, normalizes the result and validates it.
func Load() (Config, error) {
	var r reader
	cfg := Config{
		Port:              r.str("PORT", "8080"),
		ReadTimeout:       r.duration("READ_TIMEOUT", 15*time.Second),
		ReadHeaderTimeout: r.duration("READ_HEADER_TIMEOUT", 10*time.Second),
		WriteTimeout:      r.duration("WRITE_TIMEOUT", 20*time.Second),
		IdleTimeout:       r.duration("IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes:    r.integer("MAX_HEADER_BYTES", 1<<20),
		GinMode:           strings.ToLower(r.str("GIN_MODE", "release")),

		LogLevel:       strings.ToLower(r.str("LOG_LEVEL", "info")),
		LogPretty:      r.boolean("LOG_PRETTY", false),
		SwaggerEnabled: r.boolean("SWAGGER_ENABLED", false),
		APIBasePath:    normalizeBasePath(r.str("API_BASE_PATH", "/api/v1")),

		DBPath:          r.str("DB_PATH", "file:rescue?mode=memory&cache=shared"),
		MaxBodyBytes:    int64(r.integer("MAX_BODY_BYTES", 1<<20)),
		MaxShortRunes:   r.integer("FORM_MAX_SHORT_RUNES", 100),
		MaxLongRunes:    r.integer("FORM_MAX_LONG_RUNES", 1000),
		PrivilegedRoles: splitCSV(r.str("PRIVILEGED_ROLES", "moderator")),

		Notifier: NotifierConfig{
			WebhookURL:        r.str("NOTIFIER_WEBHOOK_URL", ""),
			Timeout:           r.duration("NOTIFIER_TIMEOUT", 5*time.Second),
			RPS:               r.number("NOTIFIER_RPS", 5),
			Burst:             r.integer("NOTIFIER_BURST", 5),
			MaxFailures:       r.unsigned("NOTIFIER_MAX_FAILURES", 5),
			OpenTimeout:       r.duration("NOTIFIER_OPEN_TIMEOUT", 30*time.Second),
			AnnounceChannelID: r.str("ANNOUNCE_CHANNEL_ID", ""),
			ResponderRoleID:   r.str("RESPONDER_ROLE_ID", ""),
		},
		WS: WSConfig{
			Enabled:        r.boolean("WS_ENABLED", true),
			AllowedOrigins: splitCSV(r.str("WS_ALLOWED_ORIGINS", "")),
		},

		RateRPS:   r.number("RATE_RPS", 5),
		RateBurst: r.integer("RATE_BURST", 10),

		CORS: CORSConfig{AllowedOrigins: splitCSV(r.str("CORS_ALLOWED_ORIGINS", ""))},
		Security: SecurityConfig{
			EnableHSTS: r.boolean("ENABLE_HSTS", false),
			HSTSMaxAge: r.duration("HSTS_MAX_AGE", 180*24*time.Hour),
		},

		IdempotencyTTL: r.duration("IDEMPOTENCY_TTL", 24*time.Hour),

		OTEL: OTELConfig{
			Enabled:     r.boolean("OTEL_ENABLED", false),
			Endpoint:    r.str("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    r.boolean("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: r.str("OTEL_SERVICE_NAME", "rescue-dispatch"),
			SampleRatio: r.number("OTEL_TRACES_SAMPLER_ARG", 1),
		},
	}

	if cfg.LogLevel == "warning" {
		cfg.LogLevel = "warn"
	}
	switch cfg.GinMode {
	case "debug", "release", "test":
	default:
		cfg.GinMode = "release"
	}

	if err := errors.Join(append(r.errs, cfg.Validate())...); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints and returns every violation.
func (c Config) Validate() error {
	var errs []error
	check := func(ok bool, msg string) {
		if !ok {
			errs = append(errs, errors.New(msg))
		}
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error", "fatal", "panic":
	default:
		errs = append(errs, errors.New("LOG_LEVEL must be one of: debug, info, warn, error, fatal, panic"))
	}
	check(strings.TrimSpace(c.Port) != "", "PORT must not be empty")
	check(c.ReadTimeout > 0 && c.ReadHeaderTimeout > 0 && c.WriteTimeout > 0 && c.IdleTimeout > 0,
		"timeouts must be positive durations")
	check(c.MaxHeaderBytes > 0, "MAX_HEADER_BYTES must be > 0")
	check(strings.TrimSpace(c.DBPath) != "", "DB_PATH must not be empty")
	check(c.MaxBodyBytes > 0, "MAX_BODY_BYTES must be > 0")
	check(c.MaxShortRunes > 0 && c.MaxLongRunes > 0, "FORM_MAX_SHORT_RUNES and FORM_MAX_LONG_RUNES must be > 0")

	n := c.Notifier
	check(n.WebhookURL == "" || isAbsoluteHTTP(n.WebhookURL), "NOTIFIER_WEBHOOK_URL must be an absolute http(s) URL")
	check(n.Timeout > 0 && n.OpenTimeout > 0, "NOTIFIER_TIMEOUT and NOTIFIER_OPEN_TIMEOUT must be positive durations")
	check(n.RPS >= 0, "NOTIFIER_RPS must be >= 0")
	check(n.Burst >= 1, "NOTIFIER_BURST must be >= 1")
	check(n.MaxFailures >= 1, "NOTIFIER_MAX_FAILURES must be >= 1")

	check(c.RateRPS >= 0, "RATE_RPS must be >= 0")
	check(c.RateBurst >= 1, "RATE_BURST must be >= 1")
	check(c.Security.HSTSMaxAge >= 0, "HSTS_MAX_AGE must be >= 0")
	check(c.IdempotencyTTL > 0, "IDEMPOTENCY_TTL must be > 0")
	check(c.OTEL.SampleRatio >= 0 && c.OTEL.SampleRatio <= 1, "OTEL_TRACES_SAMPLER_ARG must be in [0,1]")

	return errors.Join(errs...)
}

func isAbsoluteHTTP(raw string) bool {
	u, err := url.Parse(raw)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// reader resolves env keys to typed values, remembering keys that were set
// to something unparsable.
type reader struct {
	errs []error
}

func (r *reader) lookup(k string) (string, bool) {
	v, ok := os.LookupEnv(k)
	v = strings.TrimSpace(v)
	return v, ok && v != ""
}

func (r *reader) fail(k, v, want string) {
	r.errs = append(r.errs, fmt.Errorf("%s=%q is not a valid %s", k, v, want))
}

func (r *reader) str(k, def string) string {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		return v
	}
	return def
}

func (r *reader) integer(k string, def int) int {
	v, ok := r.lookup(k)
	if !ok {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		r.fail(k, v, "integer")
		return def
	}
	return i
}

// unsigned rejects negatives rather than letting them wrap.
func (r *reader) unsigned(k string, def uint32) uint32 {
	v, ok := r.lookup(k)
	if !ok {
		return def
	}
	u, err := strconv.ParseUint(v, 10, 32)
	if err != nil {
		r.fail(k, v, "unsigned integer")
		return def
	}
	return uint32(u)
}

func (r *reader) number(k string, def float64) float64 {
	v, ok := r.lookup(k)
	if !ok {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		r.fail(k, v, "number")
		return def
	}
	return f
}

func (r *reader) boolean(k string, def bool) bool {
	v, ok := r.lookup(k)
	if !ok {
		return def
	}
	switch strings.ToLower(v) {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	}
	r.fail(k, v, "boolean")
	return def
}

func (r *reader) duration(k string, def time.Duration) time.Duration {
	v, ok := r.lookup(k)
	if !ok {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		r.fail(k, v, "duration")
		return def
	}
	return d
}

func splitCSV(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// normalizeBasePath ensures a leading '/' and no trailing '/' except for root.
func normalizeBasePath(p string) string {
	p = strings.Trim(strings.TrimSpace(p), "/")
	return "/" + p
}
