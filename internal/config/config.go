package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"survey-dialer/internal/reply"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all configuration required by the API process.
// Values come from env, optionally seeded from a .env file.
// No business logic should depend on raw environment variables.
type Config struct {
	App      AppConfig
	DB       DBConfig
	Redis    RedisConfig
	Auth     AuthConfig
	Twilio   TwilioConfig
	LLM      reply.Config
	Dispatch DispatchConfig
	Session  SessionConfig
}

type AppConfig struct {
	Env  string
	Port int
	// PublicURL is the externally reachable base URL Twilio calls back on.
	PublicURL string
	// TaskStore selects the task backend: postgres or memory.
	TaskStore string
}

type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string

	// Accepts: disable, require, verify-ca, verify-full
	SSLMode string

	AutoMigrate bool
}

type RedisConfig struct {
	Host string
	Port int

	DialRateLimit  int
	DialRateWindow time.Duration
}

type AuthConfig struct {
	JWTSecret   string
	JWTIssuer   string
	JWTAudience string
	TokenTTL    time.Duration
}

type TwilioConfig struct {
	AccountSID        string
	AuthToken         string
	PhoneNumber       string
	ValidateSignature bool
}

type DispatchConfig struct {
	Interval        time.Duration
	BatchSize       int
	Concurrency     int
	StaleClaimAfter time.Duration
}

type SessionConfig struct {
	MaxTurns      int
	IdleTTL       time.Duration
	TombstoneTTL  time.Duration
	SweepInterval time.Duration
}

const (
	TaskStorePostgres = "postgres"
	TaskStoreMemory   = "memory"
)

func Load() (Config, error) {
	if err := LoadEnvFile(envOr("ENV_FILE", ".env")); err != nil {
		return Config{}, err
	}

	c := Config{}
	var parseErrs []error

	c.App.Env = strings.TrimSpace(os.Getenv("APP_ENV"))
	c.App.Port, parseErrs = intOr(parseErrs, "APP_PORT", 8080)
	c.App.PublicURL = strings.TrimRight(strings.TrimSpace(os.Getenv("PUBLIC_URL")), "/")
	c.App.TaskStore = strings.ToLower(envOr("TASK_STORE", TaskStorePostgres))

	c.DB.Host = strings.TrimSpace(os.Getenv("DB_HOST"))
	c.DB.Port, parseErrs = intOr(parseErrs, "DB_PORT", 5432)
	c.DB.User = strings.TrimSpace(os.Getenv("DB_USER"))
	c.DB.Password = os.Getenv("DB_PASSWORD")
	c.DB.Name = strings.TrimSpace(os.Getenv("DB_NAME"))
	c.DB.SSLMode = strings.TrimSpace(os.Getenv("DB_SSLMODE"))
	c.DB.AutoMigrate, parseErrs = boolOr(parseErrs, "DB_AUTO_MIGRATE", true)

	c.Redis.Host = strings.TrimSpace(os.Getenv("REDIS_HOST"))
	c.Redis.Port, parseErrs = intOr(parseErrs, "REDIS_PORT", 6379)
	c.Redis.DialRateLimit, parseErrs = intOr(parseErrs, "DIAL_RATE_LIMIT", 0)
	c.Redis.DialRateWindow, parseErrs = durationOr(parseErrs, "DIAL_RATE_WINDOW", time.Minute)

	c.Auth.JWTSecret = os.Getenv("JWT_SECRET")
	c.Auth.JWTIssuer = strings.TrimSpace(os.Getenv("JWT_ISSUER"))
	c.Auth.JWTAudience = strings.TrimSpace(os.Getenv("JWT_AUDIENCE"))
	c.Auth.TokenTTL, parseErrs = durationOr(parseErrs, "JWT_TOKEN_TTL", 12*time.Hour)

	c.Twilio.AccountSID = strings.TrimSpace(os.Getenv("TWILIO_ACCOUNT_SID"))
	c.Twilio.AuthToken = os.Getenv("TWILIO_AUTH_TOKEN")
	c.Twilio.PhoneNumber = strings.TrimSpace(os.Getenv("TWILIO_PHONE"))
	c.Twilio.ValidateSignature, parseErrs = boolOr(parseErrs, "TWILIO_VALIDATE_SIGNATURE", c.IsProduction())

	if err := envconfig.Process("LLM", &c.LLM); err != nil {
		parseErrs = append(parseErrs, err)
	}

	c.Dispatch.Interval, parseErrs = durationOr(parseErrs, "DISPATCH_INTERVAL", 60*time.Second)
	c.Dispatch.BatchSize, parseErrs = intOr(parseErrs, "DISPATCH_BATCH_SIZE", 100)
	c.Dispatch.Concurrency, parseErrs = intOr(parseErrs, "DISPATCH_CONCURRENCY", 4)
	c.Dispatch.StaleClaimAfter, parseErrs = durationOr(parseErrs, "DISPATCH_STALE_CLAIM_AFTER", 15*time.Minute)

	c.Session.MaxTurns, parseErrs = intOr(parseErrs, "SESSION_MAX_TURNS", 10)
	c.Session.IdleTTL, parseErrs = durationOr(parseErrs, "SESSION_IDLE_TTL", 2*time.Hour)
	c.Session.TombstoneTTL, parseErrs = durationOr(parseErrs, "SESSION_TOMBSTONE_TTL", 10*time.Minute)
	c.Session.SweepInterval, parseErrs = durationOr(parseErrs, "SESSION_SWEEP_INTERVAL", time.Minute)

	if err := joinErrors(parseErrs); err != nil {
		return Config{}, err
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate reports every problem at once. It also fills local-friendly defaults,
// so it takes a pointer.
func (c *Config) Validate() error {
	var errs []error

	if c.App.Env == "" {
		errs = append(errs, errors.New("APP_ENV is required"))
	} else if !isValidEnv(c.App.Env) {
		errs = append(errs, fmt.Errorf("APP_ENV must be one of local, dev, staging, production, got %q", c.App.Env))
	}
	if c.App.Port <= 0 || c.App.Port > 65535 {
		errs = append(errs, fmt.Errorf("APP_PORT must be a valid port, got %d", c.App.Port))
	}
	if c.App.PublicURL == "" {
		errs = append(errs, errors.New("PUBLIC_URL is required"))
	} else if !strings.HasPrefix(c.App.PublicURL, "http://") && !strings.HasPrefix(c.App.PublicURL, "https://") {
		errs = append(errs, fmt.Errorf("PUBLIC_URL must be an http(s) URL, got %q", c.App.PublicURL))
	}
	if c.App.TaskStore == "" {
		c.App.TaskStore = TaskStorePostgres
	}
	switch c.App.TaskStore {
	case TaskStorePostgres:
		errs = append(errs, c.validateDB()...)
	case TaskStoreMemory:
		if c.IsProduction() {
			errs = append(errs, errors.New("TASK_STORE=memory is not allowed in production"))
		}
	default:
		errs = append(errs, fmt.Errorf("TASK_STORE must be postgres or memory, got %q", c.App.TaskStore))
	}

	if c.Redis.Host != "" && (c.Redis.Port <= 0 || c.Redis.Port > 65535) {
		errs = append(errs, fmt.Errorf("REDIS_PORT must be a valid port, got %d", c.Redis.Port))
	}
	if c.Redis.DialRateLimit < 0 {
		errs = append(errs, errors.New("DIAL_RATE_LIMIT must be >= 0"))
	}
	if c.Redis.DialRateLimit > 0 && c.Redis.Host == "" {
		errs = append(errs, errors.New("DIAL_RATE_LIMIT requires REDIS_HOST"))
	}

	if c.Twilio.AccountSID == "" {
		errs = append(errs, errors.New("TWILIO_ACCOUNT_SID is required"))
	}
	if c.Twilio.AuthToken == "" {
		errs = append(errs, errors.New("TWILIO_AUTH_TOKEN is required"))
	}
	if c.Twilio.PhoneNumber == "" {
		errs = append(errs, errors.New("TWILIO_PHONE is required"))
	}

	if err := c.LLM.Validate(); err != nil {
		errs = append(errs, err)
	}

	if c.Auth.JWTSecret == "" && c.IsProduction() {
		errs = append(errs, errors.New("JWT_SECRET is required in production"))
	}
	if c.Auth.TokenTTL <= 0 {
		c.Auth.TokenTTL = 12 * time.Hour
	}

	if c.Dispatch.Interval <= 0 {
		errs = append(errs, errors.New("DISPATCH_INTERVAL must be positive"))
	}
	if c.Dispatch.BatchSize <= 0 {
		errs = append(errs, errors.New("DISPATCH_BATCH_SIZE must be positive"))
	}
	if c.Dispatch.Concurrency <= 0 {
		errs = append(errs, errors.New("DISPATCH_CONCURRENCY must be positive"))
	}

	if c.Session.MaxTurns < 3 {
		errs = append(errs, fmt.Errorf("SESSION_MAX_TURNS must be at least 3, got %d", c.Session.MaxTurns))
	}

	return joinErrors(errs)
}

func (c *Config) validateDB() []error {
	var errs []error
	if c.DB.Host == "" {
		errs = append(errs, errors.New("DB_HOST is required"))
	}
	if c.DB.Port <= 0 || c.DB.Port > 65535 {
		errs = append(errs, fmt.Errorf("DB_PORT must be a valid port, got %d", c.DB.Port))
	}
	if c.DB.User == "" {
		errs = append(errs, errors.New("DB_USER is required"))
	}
	if c.DB.Name == "" {
		errs = append(errs, errors.New("DB_NAME is required"))
	}
	if c.DB.SSLMode == "" {
		if c.IsProduction() {
			errs = append(errs, errors.New("DB_SSLMODE is required in production"))
		} else {
			c.DB.SSLMode = "disable"
		}
	}
	if c.DB.SSLMode != "" && !isValidSSLMode(c.DB.SSLMode) {
		errs = append(errs, fmt.Errorf("DB_SSLMODE must be one of disable, require, verify-ca, verify-full, got %q", c.DB.SSLMode))
	}
	return errs
}

func (c Config) IsProduction() bool {
	return c.App.Env == "production"
}

func (c Config) HTTPAddr() string {
	return fmt.Sprintf(":%d", c.App.Port)
}

func (c Config) PostgresDSN() string {
	// Avoid logging this string; it contains secrets.
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.DB.Host,
		c.DB.Port,
		c.DB.User,
		c.DB.Password,
		c.DB.Name,
		c.DB.SSLMode,
	)
}

func (c Config) RedisEnabled() bool { return c.Redis.Host != "" }

func (c Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}

func envOr(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func intOr(errs []error, key string, def int) (int, []error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, errs
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def, append(errs, fmt.Errorf("%s must be an integer, got %q", key, v))
	}
	return n, errs
}

func boolOr(errs []error, key string, def bool) (bool, []error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, errs
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def, append(errs, fmt.Errorf("%s must be a boolean, got %q", key, v))
	}
	return b, errs
}

func durationOr(errs []error, key string, def time.Duration) (time.Duration, []error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, errs
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def, append(errs, fmt.Errorf("%s must be a duration, got %q", key, v))
	}
	return d, errs
}

func isValidEnv(v string) bool {
	switch v {
	case "local", "dev", "staging", "production":
		return true
	default:
		return false
	}
}

func isValidSSLMode(v string) bool {
	switch v {
	case "disable", "require", "verify-ca", "verify-full":
		return true
	default:
		return false
	}
}

func joinErrors(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	if len(errs) == 1 {
		return errs[0]
	}
	var b strings.Builder
	b.WriteString("config errors:\n")
	for _, e := range errs {
		b.WriteString("- ")
		b.WriteString(e.Error())
		b.WriteString("\n")
	}
	return errors.New(strings.TrimSpace(b.String()))
}
