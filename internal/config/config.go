package config

import (
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

const defaultDSN = "host=localhost user=postgres password=postgres dbname=dues port=5432 sslmode=disable"

type Config struct {
	HTTPPort    string
	DBDriver    string // postgres | sqlite
	DatabaseDSN string
	DBLogLevel  string // silent | error | warn | info
	JWTSecret   string
	CORSOrigins string

	// Organization budget, used for budget_remaining in stats.
	Budget decimal.Decimal

	// Bootstrap administrator, created on startup if missing.
	AdminEmail    string
	AdminName     string
	AdminPassword string

	SlackWebhookURL      string
	ReminderScheduleFile string
	ReminderWorkers      int
	SchedulerEnabled     bool

	PaymentGateway     string // sandbox | midtrans
	MidtransServerKey  string
	MidtransClientKey  string
	MidtransProduction bool
	SandboxPayBaseURL  string
}

// FromEnv reads the configuration without enforcing production rules.
// The CLI uses it directly.
func FromEnv() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("[INFO] .env not found, using process environment")
	}

	return &Config{
		HTTPPort:    getEnv("HTTP_PORT", "8080"),
		DBDriver:    strings.ToLower(getEnv("DB_DRIVER", "postgres")),
		DatabaseDSN: getEnv("DATABASE_DSN", defaultDSN),
		DBLogLevel:  getEnv("DB_LOG_LEVEL", "warn"),
		JWTSecret:   getEnv("JWT_SECRET", ""),
		CORSOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:5173"),

		Budget: getDecimal("BUDGET", decimal.NewFromInt(12000)),

		AdminEmail:    strings.TrimSpace(strings.ToLower(getEnv("ADMIN_EMAIL", ""))),
		AdminName:     getEnv("ADMIN_NAME", "Administrator"),
		AdminPassword: getEnv("ADMIN_PASSWORD", ""),

		SlackWebhookURL:      getEnv("SLACK_WEBHOOK_URL", ""),
		ReminderScheduleFile: getEnv("REMINDER_SCHEDULE_FILE", ""),
		ReminderWorkers:      getInt("REMINDER_WORKERS", 4),
		SchedulerEnabled:     getBool("SCHEDULER_ENABLED", true),

		PaymentGateway:     strings.ToLower(getEnv("PAYMENT_GATEWAY", "sandbox")),
		MidtransServerKey:  getEnv("MIDTRANS_SERVER_KEY", ""),
		MidtransClientKey:  getEnv("MIDTRANS_CLIENT_KEY", ""),
		MidtransProduction: getBool("MIDTRANS_PRODUCTION", false),
		SandboxPayBaseURL:  getEnv("SANDBOX_PAY_BASE_URL", "https://sandbox.pay.local/checkout"),
	}
}

// Load is used by the HTTP server and stops the process on unsafe settings.
func Load() *Config {
	cfg := FromEnv()

	if cfg.JWTSecret == "" {
		log.Fatal("[FATAL] JWT_SECRET is not set")
	}
	if len(cfg.JWTSecret) < 32 {
		log.Fatal("[FATAL] JWT_SECRET must be at least 32 characters")
	}
	if cfg.DBDriver != "postgres" && cfg.DBDriver != "sqlite" {
		log.Fatalf("[FATAL] unsupported DB_DRIVER %q", cfg.DBDriver)
	}
	if cfg.PaymentGateway == "midtrans" && cfg.MidtransServerKey == "" {
		log.Fatal("[FATAL] PAYMENT_GATEWAY=midtrans requires MIDTRANS_SERVER_KEY")
	}
	if cfg.DatabaseDSN == defaultDSN {
		log.Println("[WARN] DATABASE_DSN is using the default value, set your own connection string in production")
	}
	if cfg.CORSOrigins == "http://localhost:5173" {
		log.Println("[WARN] CORS_ALLOWED_ORIGINS is using the default value")
	}
	if cfg.AdminEmail != "" && cfg.AdminPassword == "" {
		log.Println("[WARN] ADMIN_EMAIL is set without ADMIN_PASSWORD, bootstrap admin will not be created")
	}

	return cfg
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		log.Printf("[WARN] %s=%q is not a positive integer, using %d", key, v, def)
		return def
	}
	return n
}

func getBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		log.Printf("[WARN] %s=%q is not a boolean, using %t", key, v, def)
		return def
	}
	return b
}

func getDecimal(key string, def decimal.Decimal) decimal.Decimal {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := decimal.NewFromString(v)
	if err != nil || d.IsNegative() {
		log.Printf("[WARN] %s=%q is not a valid amount, using %s", key, v, def)
		return def
	}
	return d
}
