package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	EnvPrefix = ""

	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

type Config struct {
	App      AppConfig
	DB       DBConfig
	Redis    RedisConfig
	PayHere  PayHereConfig
	Pricing  PricingConfig
	Settings SettingsConfig
	GCP      GCPConfig
	PubSub   PubSubConfig
	Outbox   OutboxConfig
	Flags    FeatureFlagsConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"MEDSUPPLY_APP_ENV" required:"true"`
	Port         string `envconfig:"MEDSUPPLY_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"MEDSUPPLY_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"MEDSUPPLY_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN string `envconfig:"MEDSUPPLY_DB_DSN"`

	Host     string `envconfig:"MEDSUPPLY_DB_HOST"`
	Port     int    `envconfig:"MEDSUPPLY_DB_PORT" default:"5432"`
	User     string `envconfig:"MEDSUPPLY_DB_USER"`
	Password string `envconfig:"MEDSUPPLY_DB_PASSWORD"`
	Name     string `envconfig:"MEDSUPPLY_DB_NAME"`
	SSLMode  string `envconfig:"MEDSUPPLY_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"MEDSUPPLY_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"MEDSUPPLY_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"MEDSUPPLY_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"MEDSUPPLY_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"MEDSUPPLY_REDIS_URL"`
	Address      string        `envconfig:"MEDSUPPLY_REDIS_ADDR"`
	Password     string        `envconfig:"MEDSUPPLY_REDIS_PASSWORD"`
	DB           int           `envconfig:"MEDSUPPLY_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"MEDSUPPLY_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"MEDSUPPLY_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"MEDSUPPLY_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"MEDSUPPLY_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"MEDSUPPLY_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// PayHereConfig carries the IPN verification and checkout-redirect settings.
type PayHereConfig struct {
	MerchantID     string `envconfig:"MEDSUPPLY_PAYHERE_MERCHANT_ID"`
	MerchantSecret string `envconfig:"MEDSUPPLY_PAYHERE_MERCHANT_SECRET"`
	Currency       string `envconfig:"MEDSUPPLY_PAYHERE_CURRENCY" default:"LKR"`
	CheckoutURL    string `envconfig:"MEDSUPPLY_PAYHERE_CHECKOUT_URL" default:"https://sandbox.payhere.lk/pay/checkout"`
	ReturnURL      string `envconfig:"MEDSUPPLY_PAYHERE_RETURN_URL"`
	CancelURL      string `envconfig:"MEDSUPPLY_PAYHERE_CANCEL_URL"`
	NotifyURL      string `envconfig:"MEDSUPPLY_PAYHERE_NOTIFY_URL"`
}

type PricingConfig struct {
	// ZeroMatchZeroDiscount keeps a scoped discount code "valid" with a zero
	// amount when no cart item matches its scoping rules. When false the
	// evaluator rejects the code instead.
	ZeroMatchZeroDiscount bool `envconfig:"MEDSUPPLY_PRICING_ZERO_MATCH_ZERO_DISCOUNT" default:"true"`
	DefaultPaymentTerms   int  `envconfig:"MEDSUPPLY_PRICING_DEFAULT_PAYMENT_TERMS_DAYS" default:"30"`
}

type SettingsConfig struct {
	CacheTTL time.Duration `envconfig:"MEDSUPPLY_SETTINGS_CACHE_TTL" default:"5m"`
}

type GCPConfig struct {
	ProjectID string `envconfig:"MEDSUPPLY_GCP_PROJECT_ID"`
}

type PubSubConfig struct {
	OrderEventsTopic        string `envconfig:"MEDSUPPLY_PUBSUB_ORDER_EVENTS_TOPIC" default:"ms-order-events"`
	OrderEventsSubscription string `envconfig:"MEDSUPPLY_PUBSUB_ORDER_EVENTS_SUBSCRIPTION"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"MEDSUPPLY_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"MEDSUPPLY_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"MEDSUPPLY_OUTBOX_MAX_ATTEMPTS" default:"10"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"MEDSUPPLY_AUTO_MIGRATE" default:"false"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	for envName, value := range map[string]string{
		"MEDSUPPLY_DB_HOST": db.Host,
		"MEDSUPPLY_DB_USER": db.User,
		"MEDSUPPLY_DB_NAME": db.Name,
	} {
		if value == "" {
			missing = append(missing, envName)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("either MEDSUPPLY_DB_DSN or %s are required", strings.Join(missing, ", "))
	}

	userInfo := url.User(db.User)
	if db.Password != "" {
		userInfo = url.UserPassword(db.User, db.Password)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.Host, db.Port),
		Path:   db.Name,
	}
	if db.SSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.SSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
