package config

import (
	"encoding/json"
	"net/http"
	"os"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/linesmerrill/benefits-access-api/models"
)

// Config holds the project config values
type Config struct {
	URL          string
	DatabaseName string
	BaseURL      string
	Port         string
	Env          string

	JWTSecret string

	SendgridAPIKey   string
	MailFromAddress  string
	MailFromName     string
	PublicWebBaseURL string

	StripeSecretKey     string
	StripeWebhookSecret string

	SweepSchedule     string
	ReconcileSchedule string

	ValidateDebounce      time.Duration
	ValidateRatePerMinute int
	ValidateRateBurst     int
	RequestTimeout        time.Duration

	OTLPEndpoint string
}

// New sets up all config related services
func New() *Config {
	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("PORT", "8080")
	v.SetDefault("ENV", "local")
	v.SetDefault("DB_NAME", "benefits")
	v.SetDefault("MAIL_FROM_ADDRESS", "no-reply@benefits.example.com")
	v.SetDefault("MAIL_FROM_NAME", "Benefits")
	v.SetDefault("SWEEP_SCHEDULE", "@every 1m")
	v.SetDefault("RECONCILE_SCHEDULE", "0 4 * * *")
	v.SetDefault("VALIDATE_DEBOUNCE_MS", 500)
	v.SetDefault("VALIDATE_RATE_PER_MINUTE", 120)
	v.SetDefault("VALIDATE_RATE_BURST", 30)
	v.SetDefault("REQUEST_TIMEOUT_SECONDS", 30)

	if cfgFile := os.Getenv("CONFIG_FILE"); cfgFile != "" {
		v.SetConfigFile(cfgFile)
	}

	//setup zap logger and replace default logger
	logger, err := setLogger(v.GetString("ENV"))
	if err != nil {
		logger = zap.NewExample()
	}
	defer logger.Sync()
	_ = zap.ReplaceGlobals(logger)

	if v.ConfigFileUsed() != "" {
		if err := v.ReadInConfig(); err != nil {
			zap.S().Warnw("failed to read config file, using environment only",
				"file", v.ConfigFileUsed(),
				"error", err)
		}
	}

	return &Config{
		URL:                   v.GetString("DB_URI"),
		DatabaseName:          v.GetString("DB_NAME"),
		BaseURL:               v.GetString("BASE_URL"),
		Port:                  v.GetString("PORT"),
		Env:                   v.GetString("ENV"),
		JWTSecret:             v.GetString("JWT_SECRET"),
		SendgridAPIKey:        v.GetString("SENDGRID_API_KEY"),
		MailFromAddress:       v.GetString("MAIL_FROM_ADDRESS"),
		MailFromName:          v.GetString("MAIL_FROM_NAME"),
		PublicWebBaseURL:      v.GetString("PUBLIC_WEB_BASE_URL"),
		StripeSecretKey:       v.GetString("STRIPE_SECRET_KEY"),
		StripeWebhookSecret:   v.GetString("STRIPE_WEBHOOK_SECRET"),
		SweepSchedule:         v.GetString("SWEEP_SCHEDULE"),
		ReconcileSchedule:     v.GetString("RECONCILE_SCHEDULE"),
		ValidateDebounce:      time.Duration(v.GetInt("VALIDATE_DEBOUNCE_MS")) * time.Millisecond,
		ValidateRatePerMinute: v.GetInt("VALIDATE_RATE_PER_MINUTE"),
		ValidateRateBurst:     v.GetInt("VALIDATE_RATE_BURST"),
		RequestTimeout:        time.Duration(v.GetInt("REQUEST_TIMEOUT_SECONDS")) * time.Second,
		OTLPEndpoint:          v.GetString("OTEL_EXPORTER_OTLP_ENDPOINT"),
	}
}

// ErrorStatus is a useful function that will log, write http headers and body for a
// give message, status code and err
func ErrorStatus(message string, httpStatusCode int, w http.ResponseWriter, err error) {
	errMsg := ""
	if err != nil {
		errMsg = err.Error()
	}
	zap.S().With("error", errMsg).Error(message)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(httpStatusCode)
	b, _ := json.Marshal(models.ErrorMessageResponse{Response: models.MessageError{Message: message, Error: errMsg}})
	w.Write(b)
}

// OutcomeStatus writes an error kind envelope. Unlike ErrorStatus it is used for expected
// outcomes (expired code, exhausted quota) that the client renders to the user.
func OutcomeStatus(kind models.ErrorKind, message string, httpStatusCode int, w http.ResponseWriter) {
	zap.S().Debugw("request ended with outcome",
		"kind", kind,
		"message", message,
		"status", httpStatusCode)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(httpStatusCode)
	b, _ := json.Marshal(models.OutcomeErrorResponse{Error: models.OutcomeError{Kind: kind, Message: message}})
	w.Write(b)
}
