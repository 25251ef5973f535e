package config // package config loads application configuration from environment variables

import (
	"fmt"     // error messages for invalid values
	"os"      // os provides access to environment variables
	"strconv" // strconv converts strings to other types
	"strings" // trimming and case folding
	"time"    // token lifetimes and schedules

	"github.com/joho/godotenv" // optional .env file for local development

	"github.com/iliyamo/project-tracker/internal/logger"
)

// Config holds all runtime configuration values. Each field corresponds to
// an environment variable.
type Config struct {
	Env      string // application environment (e.g. "dev", "prod")
	Port     string // HTTP port to listen on
	LogLevel string // zerolog level name

	DBUser    string // database username
	DBPass    string // database password (optional)
	DBHost    string // database host address
	DBPort    string // database port number
	DBName    string // database name
	DBMigrate bool   // apply the embedded schema at startup

	JWTSecret     string        // secret used to sign JWTs
	JWTAlgorithm  string        // HS256, HS384 or HS512
	AccessTTL     time.Duration // access token lifetime
	RefreshTTL    time.Duration // refresh token lifetime
	ActivationTTL time.Duration // activation link lifetime
	BcryptCost    int           // bcrypt cost for password hashing
	CookieSecure  bool          // Secure attribute of the refresh cookie

	BaseURL  string // absolute URL prefix used in emailed links
	MailFrom string // default sender address

	SMTPHost     string
	SMTPPort     int
	SMTPUser     string
	SMTPPassword string
	SMTPTLS      bool

	AMQPURL   string // RabbitMQ URL; empty disables the mail queue
	MailQueue string // queue carrying outbound mail

	ReminderSchedule string        // cron spec of the reminder job
	PendingWindow    time.Duration // how far ahead a task counts as pending
}

// Load reads the optional .env file and the environment. Missing or
// invalid required values are fatal.
func Load() Config {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		logger.Warnf("config: could not read .env: %v", err)
	}
	cfg, err := LoadFrom(os.LookupEnv)
	if err != nil {
		logger.Fatalf("config: %v", err)
	}
	return cfg
}

// LoadFrom builds a Config from lookup, which has the signature of
// os.LookupEnv.
func LoadFrom(lookup func(string) (string, bool)) (Config, error) {
	e := env{lookup: lookup}
	cfg := Config{
		Env:      e.must("APP_ENV"),
		Port:     e.must("APP_PORT"),
		LogLevel: e.str("LOG_LEVEL", "info"),

		DBUser:    e.must("DB_USER"),
		DBPass:    e.str("DB_PASS", ""),
		DBHost:    e.must("DB_HOST"),
		DBPort:    e.must("DB_PORT"),
		DBName:    e.must("DB_NAME"),
		DBMigrate: e.bool("DB_MIGRATE", true),

		JWTSecret:     e.must("JWT_SECRET"),
		JWTAlgorithm:  strings.ToUpper(e.str("JWT_ALGORITHM", "HS256")),
		AccessTTL:     time.Duration(e.int("ACCESS_TOKEN_TTL_MIN", 30)) * time.Minute,
		RefreshTTL:    time.Duration(e.int("REFRESH_TOKEN_TTL_DAYS", 7)) * 24 * time.Hour,
		ActivationTTL: e.dur("ACTIVATION_TOKEN_TTL", 6*time.Hour),
		BcryptCost:    e.int("BCRYPT_COST", 10),
		CookieSecure:  e.bool("COOKIE_SECURE", true),

		BaseURL:  strings.TrimRight(e.str("APP_BASE_URL", ""), "/"),
		MailFrom: e.str("MAIL_FROM", "noreply@test.com"),

		SMTPHost:     e.str("SMTP_HOST", ""),
		SMTPPort:     e.int("SMTP_PORT", 25),
		SMTPUser:     e.str("SMTP_USER", ""),
		SMTPPassword: e.str("SMTP_PASSWORD", ""),
		SMTPTLS:      e.bool("SMTP_TLS", false),

		AMQPURL:   e.str("AMQP_URL", e.str("RABBITMQ_URL", "")),
		MailQueue: e.str("MAIL_QUEUE", "mail.outbound"),

		ReminderSchedule: e.str("REMINDER_SCHEDULE", "@every 1m"),
		PendingWindow:    e.dur("PENDING_WINDOW", time.Hour),
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost:" + cfg.Port
	}
	if len(e.errs) > 0 {
		return Config{}, e.errs[0]
	}
	switch {
	case cfg.AccessTTL <= 0:
		return Config{}, fmt.Errorf("ACCESS_TOKEN_TTL_MIN must be positive")
	case cfg.RefreshTTL <= 0:
		return Config{}, fmt.Errorf("REFRESH_TOKEN_TTL_DAYS must be positive")
	case cfg.ActivationTTL <= 0:
		return Config{}, fmt.Errorf("ACTIVATION_TOKEN_TTL must be positive")
	}
	return cfg, nil
}

// env collects the first problems found while reading variables so that
// LoadFrom can report them together with the key that caused them.
type env struct {
	lookup func(string) (string, bool)
	errs   []error
}

func (e *env) get(key string) string {
	v, _ := e.lookup(key)
	return strings.TrimSpace(v)
}

// must retrieves the value of a required environment variable.
func (e *env) must(key string) string {
	v := e.get(key)
	if v == "" {
		e.errs = append(e.errs, fmt.Errorf("missing required env var: %s", key))
	}
	return v
}

func (e *env) str(key, def string) string {
	if v := e.get(key); v != "" {
		return v
	}
	return def
}

func (e *env) int(key string, def int) int {
	v := e.get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("invalid int for %s: %q", key, v))
		return def
	}
	return n
}

func (e *env) bool(key string, def bool) bool {
	v := e.get(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("invalid bool for %s: %q", key, v))
		return def
	}
	return b
}

func (e *env) dur(key string, def time.Duration) time.Duration {
	v := e.get(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("invalid duration for %s: %q", key, v))
		return def
	}
	return d
}
