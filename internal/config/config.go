package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

type Config struct {
	Server         ServerConfig
	Database       DatabaseConfig
	Redis          RedisConfig
	Mongo          MongoConfig
	Kafka          KafkaConfig
	Pricing        PricingConfig
	Cart           CartConfig
	Checkout       CheckoutConfig
	PricingService ServiceConfig
	Features       FeatureFlags
}

type ServerConfig struct {
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	AllowedOrigins  []string
}

type DatabaseConfig struct {
	Host          string
	Port          int
	User          string
	Password      string
	Name          string
	SSLMode       string
	MaxOpenConns  int
	MaxIdleConns  int
	MaxLifetime   time.Duration
	RunMigrations bool
}

func (d DatabaseConfig) ConnectionString() string {
	return "host=" + d.Host +
		" port=" + strconv.Itoa(d.Port) +
		" user=" + d.User +
		" password=" + d.Password +
		" dbname=" + d.Name +
		" sslmode=" + d.SSLMode
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
	TTL      time.Duration
}

type MongoConfig struct {
	URI        string
	Database   string
	Collection string
}

type KafkaConfig struct {
	Brokers       []string
	OrdersTopic   string
	PaymentsTopic string
	ConsumerGroup string
}

// PricingConfig holds the order-total rules.
type PricingConfig struct {
	FreeShippingThreshold decimal.Decimal
	ShippingFee           decimal.Decimal
	// PromotionMode is "lookup" (validate against stored promotion codes)
	// or "flat" (legacy 10% for any code).
	PromotionMode string
	FlatRate      decimal.Decimal
	Currency      string
}

type CartConfig struct {
	// Backend selects the remote per-user store: "postgres" or "mongo".
	Backend        string
	SessionTTL     time.Duration
	CacheTTL       time.Duration
	BackendTimeout time.Duration
	// LoginPolicy is "discard" or "merge".
	LoginPolicy string
}

type CheckoutConfig struct {
	Timeout time.Duration
}

type ServiceConfig struct {
	BaseURL string
	Timeout time.Duration
	APIKey  string
}

type FeatureFlags struct {
	EnableOrderEvents   bool
	EnableOrderCaching  bool
	EnablePaymentEvents bool
}

// Load reads configuration from the environment. A .env file in the
// working directory is applied first when present.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		Server: ServerConfig{
			Port:            getEnvInt("SERVER_PORT", 8084),
			ReadTimeout:     time.Duration(getEnvInt("SERVER_READ_TIMEOUT", 30)) * time.Second,
			WriteTimeout:    time.Duration(getEnvInt("SERVER_WRITE_TIMEOUT", 30)) * time.Second,
			ShutdownTimeout: time.Duration(getEnvInt("SERVER_SHUTDOWN_TIMEOUT", 30)) * time.Second,
			AllowedOrigins:  getEnvList("CORS_ALLOWED_ORIGINS", []string{"*"}),
		},
		Database: DatabaseConfig{
			Host:          getEnvString("DB_HOST", "localhost"),
			Port:          getEnvInt("DB_PORT", 5432),
			User:          getEnvString("DB_USER", "acme"),
			Password:      getEnvString("DB_PASSWORD", "acme"),
			Name:          getEnvString("DB_NAME", "acme_storefront"),
			SSLMode:       getEnvString("DB_SSLMODE", "disable"),
			MaxOpenConns:  getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:  getEnvInt("DB_MAX_IDLE_CONNS", 5),
			MaxLifetime:   time.Duration(getEnvInt("DB_CONN_MAX_LIFETIME", 300)) * time.Second,
			RunMigrations: getEnvBool("DB_RUN_MIGRATIONS", true),
		},
		Redis: RedisConfig{
			Host:     getEnvString("REDIS_HOST", "localhost"),
			Port:     getEnvInt("REDIS_PORT", 6379),
			Password: getEnvString("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
			TTL:      time.Duration(getEnvInt("REDIS_TTL", 300)) * time.Second,
		},
		Mongo: MongoConfig{
			URI:        getEnvString("MONGODB_URI", "mongodb://localhost:27017"),
			Database:   getEnvString("MONGODB_DATABASE", "storefront"),
			Collection: getEnvString("MONGODB_CART_COLLECTION", "carts"),
		},
		Kafka: KafkaConfig{
			Brokers:       getEnvList("KAFKA_BROKERS", []string{"localhost:9092"}),
			OrdersTopic:   getEnvString("KAFKA_ORDERS_TOPIC", "orders"),
			PaymentsTopic: getEnvString("KAFKA_PAYMENTS_TOPIC", "payments"),
			ConsumerGroup: getEnvString("KAFKA_CONSUMER_GROUP", "cart-service"),
		},
		Pricing: PricingConfig{
			FreeShippingThreshold: getEnvDecimal("PRICING_FREE_SHIPPING_THRESHOLD", decimal.NewFromInt(5000)),
			ShippingFee:           getEnvDecimal("PRICING_SHIPPING_FEE", decimal.NewFromInt(100)),
			PromotionMode:         getEnvString("PRICING_PROMOTION_MODE", "lookup"),
			FlatRate:              getEnvDecimal("PRICING_FLAT_RATE", decimal.NewFromFloat(0.10)),
			Currency:              getEnvString("PRICING_CURRENCY", "INR"),
		},
		Cart: CartConfig{
			Backend:        getEnvString("CART_BACKEND", "postgres"),
			SessionTTL:     time.Duration(getEnvInt("CART_SESSION_TTL_HOURS", 24*30)) * time.Hour,
			CacheTTL:       time.Duration(getEnvInt("CART_CACHE_TTL", 900)) * time.Second,
			BackendTimeout: time.Duration(getEnvInt("CART_BACKEND_TIMEOUT", 5)) * time.Second,
			LoginPolicy:    getEnvString("CART_LOGIN_POLICY", "discard"),
		},
		Checkout: CheckoutConfig{
			Timeout: time.Duration(getEnvInt("CHECKOUT_TIMEOUT", 15)) * time.Second,
		},
		PricingService: ServiceConfig{
			BaseURL: getEnvString("PRICING_SERVICE_URL", ""),
			Timeout: time.Duration(getEnvInt("PRICING_TIMEOUT", 5)) * time.Second,
			APIKey:  getEnvString("PRICING_SERVICE_API_KEY", ""),
		},
		Features: FeatureFlags{
			EnableOrderEvents:   getEnvBool("FEATURE_ORDER_EVENTS", true),
			EnableOrderCaching:  getEnvBool("FEATURE_ORDER_CACHING", true),
			EnablePaymentEvents: getEnvBool("FEATURE_PAYMENT_EVENTS", true),
		},
	}
}

func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvDecimal(key string, defaultValue decimal.Decimal) decimal.Decimal {
	if value := os.Getenv(key); value != "" {
		if d, err := decimal.NewFromString(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
