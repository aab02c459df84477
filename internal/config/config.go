package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration
type Config struct {
	Port          string
	Env           string
	PublicBaseURL string
	LogLevel      string
	DatabaseURL   string

	// Auth
	JWTSecret string

	// Tenant credential vault
	CredentialKeyHex string // 32-byte AES key, hex encoded

	// Payments
	MockPayments    bool // explicit switch; never inferred from Env
	MockPaymentSeed int64
	MercadoPagoBase string
	WebpayBase      string
	GatewayTimeout  time.Duration
	CheckoutReturn  string // base URL for per-outcome return paths
	WebhookBasePath string

	// Flash offers
	OfferHorizonHours  int
	OfferExpiryHours   int
	OfferDiscountPct   int
	OfferLeadsPerGap   int
	OfferCooldownHours int
	SweeperInterval    time.Duration

	// Redis (recently-offered exclusion window)
	RedisAddr     string
	RedisPassword string
	RedisTLS      bool

	// SendGrid outbound channel
	SendGridAPIKey    string
	SendGridFromEmail string
	SendGridFromName  string

	CORSAllowedOrigins []string
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:          getEnv("PORT", "8080"),
		Env:           getEnv("ENV", "development"),
		PublicBaseURL: getEnv("PUBLIC_BASE_URL", ""),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		DatabaseURL:   getEnv("DATABASE_URL", ""),

		JWTSecret:        getEnv("JWT_SECRET", ""),
		CredentialKeyHex: getEnv("CREDENTIAL_KEY", ""),

		MockPayments:    getEnvAsBool("MOCK_PAYMENTS", false),
		MockPaymentSeed: int64(getEnvAsInt("MOCK_PAYMENT_SEED", 0)),
		MercadoPagoBase: getEnv("MERCADOPAGO_BASE_URL", "https://api.mercadopago.com"),
		WebpayBase:      getEnv("WEBPAY_BASE_URL", ""),
		GatewayTimeout:  getEnvAsDuration("GATEWAY_TIMEOUT", 5*time.Second),
		CheckoutReturn:  getEnv("CHECKOUT_RETURN_URL", ""),
		WebhookBasePath: getEnv("WEBHOOK_BASE_PATH", "/webhooks"),

		OfferHorizonHours:  getEnvAsInt("OFFER_HORIZON_HOURS", 24),
		OfferExpiryHours:   getEnvAsInt("OFFER_EXPIRY_HOURS", 12),
		OfferDiscountPct:   getEnvAsInt("OFFER_DISCOUNT_PCT", 20),
		OfferLeadsPerGap:   getEnvAsInt("OFFER_LEADS_PER_GAP", 5),
		OfferCooldownHours: getEnvAsInt("OFFER_COOLDOWN_HOURS", 48),
		SweeperInterval:    getEnvAsDuration("SWEEPER_INTERVAL", 10*time.Minute),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisTLS:      getEnvAsBool("REDIS_TLS", false),

		SendGridAPIKey:    getEnv("SENDGRID_API_KEY", ""),
		SendGridFromEmail: getEnv("SENDGRID_FROM_EMAIL", ""),
		SendGridFromName:  getEnv("SENDGRID_FROM_NAME", ""),

		CORSAllowedOrigins: splitAndTrim(getEnv("CORS_ALLOWED_ORIGINS", "")),
	}
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func splitAndTrim(value string) []string {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
