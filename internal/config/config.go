package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Billing is the immutable billing policy consulted by the registration
// calculator and the membership state machine. It is passed by value so a
// running request can never observe a half-updated policy.
type Billing struct {
	// Currency is the ISO 4217 code every level price is denominated in.
	Currency string
	// CurrencyDecimals is the rounding precision for non zero-decimal
	// currencies. Zero-decimal currencies always round to whole units.
	CurrencyDecimals int
	// DiscountFeesToo flips the order of discount vs. fee application:
	// off (default) discounts the base price before fees are added, on
	// discounts the post-fee total.
	DiscountFeesToo bool
	// MultipleMemberships allows a customer to hold more than one
	// membership at a time. Off, an upgrade mutates the existing row.
	MultipleMemberships bool
	// AutoRenewDefault is the auto-renew preference applied when the
	// registrant did not state one.
	AutoRenewDefault bool
}

// Sweep configures the daily maintenance job.
type Sweep struct {
	// Schedule is a cron expression (with seconds) for the daily run.
	Schedule string
	// BatchSize caps how many rows a single pass touches.
	BatchSize int
	// PendingPaymentMaxAge is how long a pending payment may sit before
	// the sweep flips it to abandoned.
	PendingPaymentMaxAge time.Duration
	// RenewalReminderDays are day offsets before expiration at which
	// auto-renewing memberships get a renewal reminder.
	RenewalReminderDays []int
	// ExpirationReminderDays are day offsets before expiration at which
	// non-renewing memberships get an expiration reminder.
	ExpirationReminderDays []int
}

// Notifications configures dispatch throttles.
type Notifications struct {
	// MaxFailedBillingNotices caps how many renewal-payment-failed
	// notices a single membership may ever receive.
	MaxFailedBillingNotices int
	// FailedBillingCooldown is the minimum gap between two such notices.
	FailedBillingCooldown time.Duration
}

// Tracing configures the OpenTelemetry exporter.
type Tracing struct {
	Enabled          bool
	ExporterEndpoint string
	ExporterProtocol string
	SamplingRatio    float64
}

// Config is the full service configuration, loaded once at startup.
type Config struct {
	Environment string
	HTTPAddr    string
	DatabaseDSN string
	LogLevel    string

	Billing       Billing
	Sweep         Sweep
	Notifications Notifications
	Tracing       Tracing

	// EarningsCacheTTL bounds staleness of the earnings/refunds
	// aggregates. Dashboards tolerate eventual consistency.
	EarningsCacheTTL time.Duration
}

// IsProduction reports whether the service runs in production mode.
func (c Config) IsProduction() bool {
	return strings.EqualFold(strings.TrimSpace(c.Environment), "production")
}

// Load reads configuration from the environment. A local .env file is
// honored when present.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		Environment: getString("RC_ENVIRONMENT", "development"),
		HTTPAddr:    getString("RC_HTTP_ADDR", ":8080"),
		DatabaseDSN: getString("RC_DATABASE_DSN", "postgres://localhost:5432/restrictcontent?sslmode=disable"),
		LogLevel:    getString("RC_LOG_LEVEL", "info"),
		Billing: Billing{
			Currency:            strings.ToUpper(getString("RC_CURRENCY", "USD")),
			CurrencyDecimals:    getInt("RC_CURRENCY_DECIMALS", 2),
			DiscountFeesToo:     getBool("RC_DISCOUNT_FEES_TOO", false),
			MultipleMemberships: getBool("RC_MULTIPLE_MEMBERSHIPS", false),
			AutoRenewDefault:    getBool("RC_AUTO_RENEW_DEFAULT", true),
		},
		Sweep: Sweep{
			Schedule:               getString("RC_SWEEP_SCHEDULE", "0 0 5 * * *"),
			BatchSize:              getInt("RC_SWEEP_BATCH_SIZE", 200),
			PendingPaymentMaxAge:   getDuration("RC_PENDING_PAYMENT_MAX_AGE", 7*24*time.Hour),
			RenewalReminderDays:    getIntList("RC_RENEWAL_REMINDER_DAYS", []int{7}),
			ExpirationReminderDays: getIntList("RC_EXPIRATION_REMINDER_DAYS", []int{7, 1}),
		},
		Notifications: Notifications{
			MaxFailedBillingNotices: getInt("RC_MAX_FAILED_BILLING_NOTICES", 3),
			FailedBillingCooldown:   getDuration("RC_FAILED_BILLING_COOLDOWN", 20*time.Hour),
		},
		Tracing: Tracing{
			Enabled:          getBool("RC_TRACING_ENABLED", false),
			ExporterEndpoint: getString("RC_TRACING_ENDPOINT", "localhost:4318"),
			ExporterProtocol: getString("RC_TRACING_PROTOCOL", "http"),
			SamplingRatio:    getFloat("RC_TRACING_SAMPLING_RATIO", 1.0),
		},
		EarningsCacheTTL: getDuration("RC_EARNINGS_CACHE_TTL", 15*time.Minute),
	}
	return cfg, nil
}

func getString(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}

func getInt(key string, fallback int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getFloat(key string, fallback float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func getBool(key string, fallback bool) bool {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getDuration(key string, fallback time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getIntList(key string, fallback []int) []int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parts := strings.Split(value, ",")
	out := make([]int, 0, len(parts))
	for _, part := range parts {
		parsed, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return fallback
		}
		out = append(out, parsed)
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
