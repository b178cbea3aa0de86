// Package config provides application configuration loaded from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// EmailProvider selects the delivery backend for the email server.
type EmailProvider string

const (
	ProviderSES      EmailProvider = "ses"
	ProviderSendGrid EmailProvider = "sendgrid"
	ProviderMailgun  EmailProvider = "mailgun"
)

// Config holds all application configuration.
type Config struct {
	LogLevel    string
	OTelEnabled bool

	// AWS settings shared by the Athena and email servers.
	AWSRegion        string
	AWSProfile       string
	CrossAccountRole string

	// Athena settings.
	AthenaWorkgroup      string
	AthenaCatalog        string
	AthenaDatabase       string
	AthenaOutputLocation string
	ResultPageSize       int32
	QueryBudgetPerHour   int

	// Datastore settings.
	PostgresDSN   string
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Email settings.
	EmailProvider  EmailProvider
	EmailFrom      string
	SendGridAPIKey string
	MailgunDomain  string
	MailgunAPIKey  string
	MailgunBaseURL string

	// Render settings.
	ChromePath string
	OutputDir  string

	// ML runner settings.
	PythonBin  string
	ScriptsDir string
	JobTimeout time.Duration

	// HTTP transport settings.
	HTTPPort     string
	OIDCIssuer   string
	OIDCAudience string
	CORSOrigins  []string
}

// LoadFromEnv reads configuration from environment variables with sensible defaults.
func LoadFromEnv() (Config, error) {
	cfg := Config{
		LogLevel:             envOr("DATASTACK_LOG_LEVEL", "info"),
		AWSRegion:            envOr("AWS_REGION", "us-east-1"),
		AWSProfile:           os.Getenv("AWS_PROFILE"),
		CrossAccountRole:     os.Getenv("DATASTACK_CROSS_ACCOUNT_ROLE"),
		AthenaWorkgroup:      envOr("DATASTACK_ATHENA_WORKGROUP", "primary"),
		AthenaCatalog:        envOr("DATASTACK_ATHENA_CATALOG", "AwsDataCatalog"),
		AthenaDatabase:       os.Getenv("DATASTACK_ATHENA_DATABASE"),
		AthenaOutputLocation: os.Getenv("DATASTACK_ATHENA_OUTPUT_LOCATION"),
		PostgresDSN:          os.Getenv("DATASTACK_POSTGRES_DSN"),
		RedisAddr:            envOr("DATASTACK_REDIS_ADDR", "localhost:6379"),
		RedisPassword:        os.Getenv("DATASTACK_REDIS_PASSWORD"),
		EmailProvider:        EmailProvider(envOr("DATASTACK_EMAIL_PROVIDER", "ses")),
		EmailFrom:            os.Getenv("DATASTACK_EMAIL_FROM"),
		SendGridAPIKey:       os.Getenv("DATASTACK_SENDGRID_API_KEY"),
		MailgunDomain:        os.Getenv("DATASTACK_MAILGUN_DOMAIN"),
		MailgunAPIKey:        os.Getenv("DATASTACK_MAILGUN_API_KEY"),
		MailgunBaseURL:       envOr("DATASTACK_MAILGUN_BASE_URL", "https://api.mailgun.net/v3"),
		ChromePath:           os.Getenv("DATASTACK_CHROME_PATH"),
		OutputDir:            envOr("DATASTACK_OUTPUT_DIR", "output"),
		PythonBin:            envOr("DATASTACK_PYTHON_BIN", "python3"),
		ScriptsDir:           envOr("DATASTACK_SCRIPTS_DIR", "scripts"),
		HTTPPort:             envOr("DATASTACK_HTTP_PORT", "8080"),
		OIDCIssuer:           os.Getenv("DATASTACK_OIDC_ISSUER"),
		OIDCAudience:         os.Getenv("DATASTACK_OIDC_AUDIENCE"),
		CORSOrigins:          parseList(os.Getenv("DATASTACK_CORS_ORIGINS")),
	}

	pageSize, err := parseInt32(envOr("DATASTACK_RESULT_PAGE_SIZE", "1000"))
	if err != nil {
		return Config{}, fmt.Errorf("config: invalid DATASTACK_RESULT_PAGE_SIZE: %w", err)
	}
	if pageSize < 1 || pageSize > 1000 {
		return Config{}, fmt.Errorf("config: DATASTACK_RESULT_PAGE_SIZE must be between 1 and 1000, got %d", pageSize)
	}
	cfg.ResultPageSize = pageSize

	// Zero disables the per-workgroup submission budget.
	budget, err := strconv.Atoi(envOr("DATASTACK_QUERY_BUDGET_PER_HOUR", "0"))
	if err != nil {
		return Config{}, fmt.Errorf("config: invalid DATASTACK_QUERY_BUDGET_PER_HOUR: %w", err)
	}
	if budget < 0 {
		return Config{}, fmt.Errorf("config: DATASTACK_QUERY_BUDGET_PER_HOUR must not be negative, got %d", budget)
	}
	cfg.QueryBudgetPerHour = budget

	redisDB, err := strconv.Atoi(envOr("DATASTACK_REDIS_DB", "0"))
	if err != nil {
		return Config{}, fmt.Errorf("config: invalid DATASTACK_REDIS_DB: %w", err)
	}
	cfg.RedisDB = redisDB

	otelEnabled, err := strconv.ParseBool(envOr("DATASTACK_OTEL_ENABLED", "false"))
	if err != nil {
		return Config{}, fmt.Errorf("config: invalid DATASTACK_OTEL_ENABLED: %w", err)
	}
	cfg.OTelEnabled = otelEnabled

	jobTimeout, err := time.ParseDuration(envOr("DATASTACK_JOB_TIMEOUT", "10m"))
	if err != nil {
		return Config{}, fmt.Errorf("config: invalid DATASTACK_JOB_TIMEOUT: %w", err)
	}
	cfg.JobTimeout = jobTimeout

	switch cfg.EmailProvider {
	case ProviderSES:
	case ProviderSendGrid:
		if cfg.SendGridAPIKey == "" {
			return Config{}, fmt.Errorf("config: DATASTACK_SENDGRID_API_KEY required for sendgrid provider")
		}
	case ProviderMailgun:
		if cfg.MailgunDomain == "" {
			return Config{}, fmt.Errorf("config: DATASTACK_MAILGUN_DOMAIN required for mailgun provider")
		}
		if cfg.MailgunAPIKey == "" {
			return Config{}, fmt.Errorf("config: DATASTACK_MAILGUN_API_KEY required for mailgun provider")
		}
	default:
		return Config{}, fmt.Errorf("config: invalid DATASTACK_EMAIL_PROVIDER %q (must be ses, sendgrid or mailgun)", cfg.EmailProvider)
	}

	return cfg, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func parseInt32(raw string) (int32, error) {
	n, err := strconv.ParseInt(raw, 10, 32)
	if err != nil {
		return 0, err
	}
	return int32(n), nil
}

func parseList(raw string) []string {
	if raw == "" {
		return []string{"*"}
	}
	var items []string
	for _, o := range strings.Split(raw, ",") {
		if t := strings.TrimSpace(o); t != "" {
			items = append(items, t)
		}
	}
	if len(items) == 0 {
		return []string{"*"}
	}
	return items
}
