package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	defaultDatabaseURL          = "lingomeet.db"
	defaultHTTPAddr             = ":8080"
	defaultJWTSecret            = "change-me-jwt-secret"
	defaultBookingTTL           = "15m"
	defaultCancellationDeadline = "3h"
	defaultUnderpopulatedWindow = "24h"
	defaultAutoFinishGrace      = "3h"
	defaultAllowLate            = "true"
	defaultMinFloor             = 2
	defaultMaxCeiling           = 50
	defaultPublishFeeCents      = 500
	defaultCurrency             = "eur"
	defaultPaymentProvider      = "simulator"
)

// Lifecycle holds the knobs of the booking and event state machines.
// Managers receive it at construction and never read the environment.
type Lifecycle struct {
	BookingTTL             time.Duration
	CancellationDeadline   time.Duration
	UnderpopulatedWindow   time.Duration
	AutoFinishGrace        time.Duration
	AllowLateConfirmation  bool
	MinParticipantsFloor   int
	MaxParticipantsCeiling int
	PublishFeeCents        int64
	Currency               string
}

func DefaultLifecycle() Lifecycle {
	return Lifecycle{
		BookingTTL:             15 * time.Minute,
		CancellationDeadline:   3 * time.Hour,
		UnderpopulatedWindow:   24 * time.Hour,
		AutoFinishGrace:        3 * time.Hour,
		AllowLateConfirmation:  true,
		MinParticipantsFloor:   defaultMinFloor,
		MaxParticipantsCeiling: defaultMaxCeiling,
		PublishFeeCents:        defaultPublishFeeCents,
		Currency:               defaultCurrency,
	}
}

type Payment struct {
	Provider            string
	StripeSecretKey     string
	StripeWebhookSecret string
}

type Config struct {
	AppEnv      string
	DatabaseURL string
	HTTPAddr    string
	JWTSecret   string
	LogLevel    string
	LogFormat   string
	CORSOrigins string
	Payment     Payment
	Lifecycle   Lifecycle
}

func Load() (*Config, error) {
	cfg := &Config{}
	appEnv := strings.TrimSpace(os.Getenv("APP_ENV"))
	if appEnv == "" {
		appEnv = strings.TrimSpace(os.Getenv("ENV"))
	}
	if appEnv == "" {
		appEnv = "dev"
	}
	cfg.AppEnv = strings.ToLower(appEnv)

	cfg.DatabaseURL = strings.TrimSpace(getEnv("DATABASE_URL", defaultDatabaseURL))
	cfg.HTTPAddr = strings.TrimSpace(getEnv("HTTP_ADDR", defaultHTTPAddr))
	cfg.JWTSecret = strings.TrimSpace(getEnv("JWT_SECRET", defaultJWTSecret))
	cfg.LogLevel = strings.TrimSpace(getEnv("LOG_LEVEL", "info"))
	cfg.LogFormat = strings.TrimSpace(getEnv("LOG_FORMAT", "text"))
	// comma separated, e.g. https://app.lingomeet.eu,https://admin.lingomeet.eu
	cfg.CORSOrigins = os.Getenv("CORS_ALLOWED_ORIGINS")

	cfg.Payment = Payment{
		Provider:            strings.ToLower(strings.TrimSpace(getEnv("PAYMENT_PROVIDER", defaultPaymentProvider))),
		StripeSecretKey:     strings.TrimSpace(os.Getenv("STRIPE_SECRET_KEY")),
		StripeWebhookSecret: strings.TrimSpace(os.Getenv("STRIPE_WEBHOOK_SECRET")),
	}

	lc, err := loadLifecycle()
	if err != nil {
		return nil, err
	}
	cfg.Lifecycle = lc

	if err := validateConfig(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadLifecycle() (Lifecycle, error) {
	lc := Lifecycle{}
	var err error

	// TTL_MINUTES and CANCELLATION_DEADLINE_HOURS are the legacy integer forms.
	if v := strings.TrimSpace(os.Getenv("TTL_MINUTES")); v != "" && os.Getenv("BOOKING_TTL") == "" {
		lc.BookingTTL, err = parseUnitsEnv("TTL_MINUTES", v, time.Minute)
	} else {
		lc.BookingTTL, err = parseDurationEnv("BOOKING_TTL", defaultBookingTTL)
	}
	if err != nil {
		return lc, err
	}

	if v := strings.TrimSpace(os.Getenv("CANCELLATION_DEADLINE_HOURS")); v != "" && os.Getenv("CANCELLATION_DEADLINE") == "" {
		lc.CancellationDeadline, err = parseUnitsEnv("CANCELLATION_DEADLINE_HOURS", v, time.Hour)
	} else {
		lc.CancellationDeadline, err = parseDurationEnv("CANCELLATION_DEADLINE", defaultCancellationDeadline)
	}
	if err != nil {
		return lc, err
	}

	lc.UnderpopulatedWindow, err = parseDurationEnv("UNDERPOPULATED_WINDOW", defaultUnderpopulatedWindow)
	if err != nil {
		return lc, err
	}
	lc.AutoFinishGrace, err = parseDurationEnv("AUTO_FINISH_GRACE", defaultAutoFinishGrace)
	if err != nil {
		return lc, err
	}
	lc.AllowLateConfirmation = parseBoolEnv("ALLOW_LATE_CONFIRMATION", defaultAllowLate)

	lc.MinParticipantsFloor, err = parseIntEnv("MIN_PARTICIPANTS_FLOOR", defaultMinFloor)
	if err != nil {
		return lc, err
	}
	lc.MaxParticipantsCeiling, err = parseIntEnv("MAX_PARTICIPANTS_CEILING", defaultMaxCeiling)
	if err != nil {
		return lc, err
	}
	fee, err := parseIntEnv("PUBLISH_FEE_CENTS", defaultPublishFeeCents)
	if err != nil {
		return lc, err
	}
	lc.PublishFeeCents = int64(fee)
	lc.Currency = strings.ToLower(strings.TrimSpace(getEnv("DEFAULT_CURRENCY", defaultCurrency)))

	return lc, nil
}

func validateConfig(cfg *Config) error {
	if cfg.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL must not be empty")
	}
	if err := cfg.Lifecycle.Validate(); err != nil {
		return err
	}

	switch cfg.Payment.Provider {
	case "simulator":
	case "stripe":
		if cfg.Payment.StripeSecretKey == "" {
			return fmt.Errorf("STRIPE_SECRET_KEY is required when PAYMENT_PROVIDER=stripe")
		}
		if cfg.Payment.StripeWebhookSecret == "" {
			return fmt.Errorf("STRIPE_WEBHOOK_SECRET is required when PAYMENT_PROVIDER=stripe")
		}
	default:
		return fmt.Errorf("PAYMENT_PROVIDER must be one of: simulator, stripe")
	}

	if isProdLike(cfg.AppEnv) {
		if isEmptyOrDefault(cfg.JWTSecret, defaultJWTSecret) {
			return fmt.Errorf("in prod/release JWT_SECRET must be set and not default")
		}
		if cfg.Payment.Provider == "simulator" {
			return fmt.Errorf("in prod/release PAYMENT_PROVIDER must not be simulator")
		}
	}
	return nil
}

func (lc Lifecycle) Validate() error {
	if lc.BookingTTL <= 0 {
		return fmt.Errorf("BOOKING_TTL must be > 0")
	}
	if lc.CancellationDeadline < 0 {
		return fmt.Errorf("CANCELLATION_DEADLINE must be >= 0")
	}
	if lc.UnderpopulatedWindow <= 0 {
		return fmt.Errorf("UNDERPOPULATED_WINDOW must be > 0")
	}
	if lc.AutoFinishGrace < 0 {
		return fmt.Errorf("AUTO_FINISH_GRACE must be >= 0")
	}
	if lc.MinParticipantsFloor < 1 {
		return fmt.Errorf("MIN_PARTICIPANTS_FLOOR must be >= 1")
	}
	if lc.MaxParticipantsCeiling < lc.MinParticipantsFloor {
		return fmt.Errorf("MAX_PARTICIPANTS_CEILING must be >= MIN_PARTICIPANTS_FLOOR")
	}
	if lc.PublishFeeCents < 0 {
		return fmt.Errorf("PUBLISH_FEE_CENTS must be >= 0")
	}
	if len(lc.Currency) != 3 {
		return fmt.Errorf("DEFAULT_CURRENCY must be a 3-letter code")
	}
	return nil
}

func isProdLike(env string) bool {
	env = strings.ToLower(strings.TrimSpace(env))
	return env == "prod" || env == "production" || env == "release"
}

func isEmptyOrDefault(v, def string) bool {
	trimmed := strings.TrimSpace(v)
	return trimmed == "" || trimmed == def
}

func parseDurationEnv(name, fallback string) (time.Duration, error) {
	value := strings.TrimSpace(getEnv(name, fallback))
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", name, value, err)
	}
	return d, nil
}

func parseUnitsEnv(name, value string, unit time.Duration) (time.Duration, error) {
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", name, value, err)
	}
	return time.Duration(n) * unit, nil
}

func parseIntEnv(name string, fallback int) (int, error) {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", name, value, err)
	}
	return n, nil
}

func parseBoolEnv(name, fallback string) bool {
	value := strings.ToLower(strings.TrimSpace(getEnv(name, fallback)))
	return value == "1" || value == "true" || value == "yes" || value == "on"
}

func getEnv(name, fallback string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return fallback
}
