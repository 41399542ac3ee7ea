package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds the single active gateway configuration. It is loaded once at
// startup and injected into every component, so there is no runtime lookup of
// an "active" row anywhere in the codebase.
type Config struct {
	Port string

	// WhatsApp Cloud API credentials
	VerifyToken       string
	AccessToken       string
	PhoneNumberID     string
	BusinessAccountID string
	AppSecret         string
	GraphBaseURL      string

	// Webhook policy: when true, deliveries without a valid
	// X-Hub-Signature-256 header are rejected instead of logged.
	RequireSignature bool

	// Trunk-prefix substitution for numbers like "0771234567".
	DefaultCountryCode string

	// Database
	DBDriver   string // "postgres" or "sqlite"
	DBPath     string // sqlite file
	DBHost     string
	DBUser     string
	DBPassword string
	DBName     string
	DBPort     string
	DBSSLMode  string

	// Notification workflow toggles
	AutoSendInvoices   bool
	AutoSendOrders     bool
	UnpaidReminderDays int
	ReminderDelay      time.Duration

	// Public base URL used to build invoice download links.
	PublicBaseURL string
}

func LoadConfig() *Config {
	err := godotenv.Load()
	if err != nil {
		log.Println("Warning: Error loading .env file")
	}

	return &Config{
		Port:               getEnv("PORT", "8080"),
		VerifyToken:        getEnv("VERIFY_TOKEN", ""),
		AccessToken:        getEnv("WHATSAPP_TOKEN", ""),
		PhoneNumberID:      getEnv("PHONE_NUMBER_ID", ""),
		BusinessAccountID:  getEnv("WABA_ID", ""),
		AppSecret:          getEnv("APP_SECRET", ""),
		GraphBaseURL:       getEnv("GRAPH_BASE_URL", "https://graph.facebook.com/v21.0"),
		RequireSignature:   getBool("WEBHOOK_REQUIRE_SIGNATURE", false),
		DefaultCountryCode: getEnv("DEFAULT_COUNTRY_CODE", "+221"),
		DBDriver:           getEnv("DB_DRIVER", "sqlite"),
		DBPath:             getEnv("DB_PATH", "./bridge.db"),
		DBHost:             getEnv("DB_HOST", "localhost"),
		DBUser:             getEnv("DB_USER", "postgres"),
		DBPassword:         getEnv("DB_PASSWORD", ""),
		DBName:             getEnv("DB_NAME", "whatsapp_bridge"),
		DBPort:             getEnv("DB_PORT", "5432"),
		DBSSLMode:          getEnv("DB_SSLMODE", "disable"),
		AutoSendInvoices:   getBool("AUTO_SEND_INVOICES", true),
		AutoSendOrders:     getBool("AUTO_SEND_ORDERS", true),
		UnpaidReminderDays: getInt("UNPAID_REMINDER_DAYS", 7),
		ReminderDelay:      time.Duration(getInt("REMINDER_DELAY_MS", 1000)) * time.Millisecond,
		PublicBaseURL:      getEnv("PUBLIC_BASE_URL", ""),
	}
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getBool(key string, fallback bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		parsed, err := strconv.ParseBool(value)
		if err == nil {
			return parsed
		}
		log.Printf("Warning: invalid boolean for %s: %q", key, value)
	}
	return fallback
}

func getInt(key string, fallback int) int {
	if value, exists := os.LookupEnv(key); exists {
		parsed, err := strconv.Atoi(value)
		if err == nil {
			return parsed
		}
		log.Printf("Warning: invalid integer for %s: %q", key, value)
	}
	return fallback
}
