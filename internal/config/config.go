package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration required by the dialer process.
// All values must come from env (or a .env file loaded by the entrypoint).
// No business logic should depend on raw environment variables.
type Config struct {
	App      AppConfig
	Provider ProviderConfig
	Vapi     VapiConfig
	Twilio   TwilioConfig
	Script   ScriptConfig
	Batch    BatchConfig
	Redis    RedisConfig
	DB       DBConfig
	Archive  ArchiveConfig
	Auth     AuthConfig
}

type AppConfig struct {
	Env         string
	Port        int
	MetricsAddr string
}

// ProviderConfig selects the call placement backend.
// Accepts: vapi, twilio, dryrun
type ProviderConfig struct {
	Name        string
	CallTimeout time.Duration
}

type VapiConfig struct {
	BaseURL       string
	APIKey        string
	PhoneNumberID string
	AssistantID   string
	// WebhookSecret is the server URL secret Vapi echoes in X-Vapi-Secret.
	WebhookSecret string
}

type TwilioConfig struct {
	BaseURL           string
	AccountSID        string
	AuthToken         string
	FromNumber        string
	StatusCallbackURL string
}

// ScriptConfig selects the optional text-generation backend.
// Accepts: none, groq, gemini
type ScriptConfig struct {
	Provider     string
	GroqAPIKey   string
	GroqBaseURL  string
	GroqModel    string
	GeminiAPIKey string
	GeminiModel  string
	DiscountCode string
}

type BatchConfig struct {
	Delay           time.Duration
	MaxAttempts     int
	RetryBackoff    time.Duration
	Workers         int
	RerunPolicy     string
	DefaultLanguage string
	LogPath         string
	LogSchema       string
}

// RedisConfig is optional; an empty Addr disables the shared line cap.
type RedisConfig struct {
	Addr    string
	LineCap int
	LineKey string
}

// DBConfig is optional; an empty URL keeps call status events in memory.
type DBConfig struct {
	URL string
}

// ArchiveConfig is optional; an empty bucket disables log upload.
type ArchiveConfig struct {
	Bucket    string
	Prefix    string
	AWSRegion string
}

type AuthConfig struct {
	JWTSecret      string
	JWTIssuer      string
	AccessTokenTTL time.Duration
}

const (
	ProviderVapi   = "vapi"
	ProviderTwilio = "twilio"
	ProviderDryRun = "dryrun"

	ScriptNone   = "none"
	ScriptGroq   = "groq"
	ScriptGemini = "gemini"
)

// ConfigurationError reports missing or malformed settings. It is fatal at startup.
type ConfigurationError struct {
	Problems []error
}

func (e *ConfigurationError) Error() string {
	if len(e.Problems) == 1 {
		return "configuration: " + e.Problems[0].Error()
	}
	var b strings.Builder
	b.WriteString("configuration errors:\n")
	for _, p := range e.Problems {
		b.WriteString("- ")
		b.WriteString(p.Error())
		b.WriteString("\n")
	}
	return strings.TrimSpace(b.String())
}

func (e *ConfigurationError) Unwrap() []error { return e.Problems }

// Load reads the environment and applies defaults. It only reports values that
// cannot be parsed; requirement checks live in Validate and ValidateServe.
func Load() (Config, error) {
	c := Config{}
	var parseErrs []error

	c.App.Env = envOr("APP_ENV", "local")
	c.App.Port, parseErrs = intOr(parseErrs, "HTTP_PORT", 8080)
	c.App.MetricsAddr = strings.TrimSpace(os.Getenv("METRICS_ADDR"))

	c.Provider.Name = strings.ToLower(envOr("CALL_PROVIDER", ProviderVapi))
	c.Provider.CallTimeout, parseErrs = durationOr(parseErrs, "CALL_TIMEOUT", 30*time.Second)

	c.Vapi.BaseURL = envOr("VAPI_BASE_URL", "https://api.vapi.ai")
	c.Vapi.APIKey = os.Getenv("VAPI_API_KEY")
	c.Vapi.PhoneNumberID = strings.TrimSpace(os.Getenv("PHONE_NUMBER_ID"))
	c.Vapi.AssistantID = strings.TrimSpace(os.Getenv("ASSISTANT_ID"))
	c.Vapi.WebhookSecret = os.Getenv("VAPI_WEBHOOK_SECRET")

	c.Twilio.BaseURL = envOr("TWILIO_BASE_URL", "https://api.twilio.com")
	c.Twilio.AccountSID = strings.TrimSpace(os.Getenv("TWILIO_ACCOUNT_SID"))
	c.Twilio.AuthToken = os.Getenv("TWILIO_AUTH_TOKEN")
	c.Twilio.FromNumber = strings.TrimSpace(os.Getenv("TWILIO_NUMBER"))
	c.Twilio.StatusCallbackURL = strings.TrimSpace(os.Getenv("TWILIO_STATUS_CALLBACK_URL"))

	c.Script.Provider = strings.ToLower(envOr("SCRIPT_PROVIDER", ScriptNone))
	c.Script.GroqAPIKey = os.Getenv("GROQ_API_KEY")
	c.Script.GroqBaseURL = envOr("GROQ_BASE_URL", "https://api.groq.com/openai/v1")
	c.Script.GroqModel = envOr("GROQ_MODEL", "llama-3.1-8b-instant")
	c.Script.GeminiAPIKey = os.Getenv("GEMINI_API_KEY")
	c.Script.GeminiModel = envOr("GEMINI_MODEL", "gemini-2.5-flash")
	c.Script.DiscountCode = strings.TrimSpace(os.Getenv("DISCOUNT_CODE"))

	c.Batch.Delay, parseErrs = durationOr(parseErrs, "CALL_DELAY", 2*time.Second)
	c.Batch.MaxAttempts, parseErrs = intOr(parseErrs, "CALL_MAX_ATTEMPTS", 1)
	c.Batch.RetryBackoff, parseErrs = durationOr(parseErrs, "CALL_RETRY_BACKOFF", time.Second)
	c.Batch.Workers, parseErrs = intOr(parseErrs, "CALL_WORKERS", 1)
	c.Batch.RerunPolicy = strings.ToLower(envOr("RERUN_POLICY", "all"))
	c.Batch.DefaultLanguage = envOr("DEFAULT_LANGUAGE", "en")
	c.Batch.LogPath = envOr("LOG_PATH", "call_logs.csv")
	c.Batch.LogSchema = strings.ToLower(envOr("LOG_SCHEMA", "basic"))

	c.Redis.Addr = strings.TrimSpace(os.Getenv("REDIS_ADDR"))
	c.Redis.LineCap, parseErrs = intOr(parseErrs, "LINE_CAP", 0)
	c.Redis.LineKey = envOr("LINE_CAP_KEY", "dialer:lines")

	c.DB.URL = strings.TrimSpace(os.Getenv("DATABASE_URL"))

	c.Archive.Bucket = strings.TrimSpace(os.Getenv("ARCHIVE_S3_BUCKET"))
	c.Archive.Prefix = envOr("ARCHIVE_S3_PREFIX", "call-logs")
	c.Archive.AWSRegion = envOr("AWS_REGION", "us-east-1")

	c.Auth.JWTSecret = os.Getenv("JWT_SECRET")
	c.Auth.JWTIssuer = envOr("JWT_ISSUER", "cart-dialer")
	c.Auth.AccessTokenTTL, parseErrs = durationOr(parseErrs, "JWT_ACCESS_TTL", 12*time.Hour)

	if len(parseErrs) > 0 {
		return Config{}, &ConfigurationError{Problems: parseErrs}
	}
	return c, nil
}

// Validate checks everything a batch run or the HTTP trigger needs to place calls.
func (c *Config) Validate() error {
	var errs []error

	if !isValidEnv(c.App.Env) {
		errs = append(errs, fmt.Errorf("APP_ENV must be one of local, dev, staging, production, got %q", c.App.Env))
	}

	switch c.Provider.Name {
	case ProviderVapi:
		if strings.TrimSpace(c.Vapi.APIKey) == "" {
			errs = append(errs, errors.New("VAPI_API_KEY is required"))
		}
		if c.Vapi.PhoneNumberID == "" {
			errs = append(errs, errors.New("PHONE_NUMBER_ID is required"))
		}
		if c.Vapi.AssistantID == "" {
			errs = append(errs, errors.New("ASSISTANT_ID is required"))
		}
	case ProviderTwilio:
		if c.Twilio.AccountSID == "" {
			errs = append(errs, errors.New("TWILIO_ACCOUNT_SID is required"))
		}
		if c.Twilio.AuthToken == "" {
			errs = append(errs, errors.New("TWILIO_AUTH_TOKEN is required"))
		}
		if c.Twilio.FromNumber == "" {
			errs = append(errs, errors.New("TWILIO_NUMBER is required"))
		}
	case ProviderDryRun:
	default:
		errs = append(errs, fmt.Errorf("CALL_PROVIDER must be one of vapi, twilio, dryrun, got %q", c.Provider.Name))
	}
	if c.Provider.CallTimeout <= 0 {
		errs = append(errs, errors.New("CALL_TIMEOUT must be positive"))
	}

	switch c.Script.Provider {
	case ScriptNone, "":
		c.Script.Provider = ScriptNone
	case ScriptGroq:
		if strings.TrimSpace(c.Script.GroqAPIKey) == "" {
			errs = append(errs, errors.New("GROQ_API_KEY is required when SCRIPT_PROVIDER=groq"))
		}
	case ScriptGemini:
		if strings.TrimSpace(c.Script.GeminiAPIKey) == "" {
			errs = append(errs, errors.New("GEMINI_API_KEY is required when SCRIPT_PROVIDER=gemini"))
		}
	default:
		errs = append(errs, fmt.Errorf("SCRIPT_PROVIDER must be one of none, groq, gemini, got %q", c.Script.Provider))
	}

	if c.Batch.Delay < 0 {
		errs = append(errs, errors.New("CALL_DELAY must not be negative"))
	}
	if c.Batch.MaxAttempts <= 0 {
		c.Batch.MaxAttempts = 1
	}
	if c.Batch.Workers <= 0 {
		c.Batch.Workers = 1
	}
	if !isValidPolicy(c.Batch.RerunPolicy) {
		errs = append(errs, fmt.Errorf("RERUN_POLICY must be one of all, skip-logged, skip-initiated, got %q", c.Batch.RerunPolicy))
	}
	if c.Batch.LogSchema != "basic" && c.Batch.LogSchema != "detailed" {
		errs = append(errs, fmt.Errorf("LOG_SCHEMA must be basic or detailed, got %q", c.Batch.LogSchema))
	}
	if strings.TrimSpace(c.Batch.LogPath) == "" {
		errs = append(errs, errors.New("LOG_PATH must not be empty"))
	}

	if c.Redis.LineCap > 0 && c.Redis.Addr == "" {
		errs = append(errs, errors.New("REDIS_ADDR is required when LINE_CAP is set"))
	}

	if len(errs) > 0 {
		return &ConfigurationError{Problems: errs}
	}
	return nil
}

// ValidateServe adds the HTTP server requirements on top of Validate.
func (c *Config) ValidateServe() error {
	var errs []error
	if err := c.Validate(); err != nil {
		var ce *ConfigurationError
		if errors.As(err, &ce) {
			errs = append(errs, ce.Problems...)
		} else {
			errs = append(errs, err)
		}
	}
	if c.App.Port <= 0 || c.App.Port > 65535 {
		errs = append(errs, fmt.Errorf("HTTP_PORT must be a valid port, got %d", c.App.Port))
	}
	if c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	if c.Auth.AccessTokenTTL <= 0 {
		c.Auth.AccessTokenTTL = 12 * time.Hour
	}
	if len(errs) > 0 {
		return &ConfigurationError{Problems: errs}
	}
	return nil
}

func (c Config) IsProduction() bool {
	return c.App.Env == "production"
}

func (c Config) HTTPAddr() string {
	return fmt.Sprintf(":%d", c.App.Port)
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

func isValidPolicy(v string) bool {
	switch v {
	case "all", "skip-logged", "skip-initiated":
		return true
	default:
		return false
	}
}
