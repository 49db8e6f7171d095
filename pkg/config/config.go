package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"
)

// EnvPrefix is passed to envconfig; individual fields carry fully qualified
// names so the prefix stays empty.
const EnvPrefix = ""

const (
	AppEnvDev  = "development"
	AppEnvProd = "production"
)

type Config struct {
	App      AppConfig
	DB       DBConfig
	Redis    RedisConfig
	JWT      JWTConfig
	Pricing  PricingConfig
	Payouts  PayoutsConfig
	GCP      GCPConfig
	PubSub   PubSubConfig
	Outbox   OutboxConfig
	Features FeatureFlagsConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.Pricing.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"BAZARIO_APP_ENV" required:"true"`
	Port         string `envconfig:"BAZARIO_APP_PORT" default:"8080"`
	LogLevel     string `envconfig:"BAZARIO_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"BAZARIO_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN    string `envconfig:"BAZARIO_DB_DSN"`
	Driver string `envconfig:"BAZARIO_DB_DRIVER" default:"postgres"`

	Host     string `envconfig:"BAZARIO_DB_HOST"`
	Port     int    `envconfig:"BAZARIO_DB_PORT" default:"5432"`
	User     string `envconfig:"BAZARIO_DB_USER"`
	Password string `envconfig:"BAZARIO_DB_PASSWORD"`
	Name     string `envconfig:"BAZARIO_DB_NAME"`
	SSLMode  string `envconfig:"BAZARIO_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"BAZARIO_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"BAZARIO_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"BAZARIO_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"BAZARIO_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"BAZARIO_REDIS_URL"`
	Address      string        `envconfig:"BAZARIO_REDIS_ADDR"`
	Password     string        `envconfig:"BAZARIO_REDIS_PASSWORD"`
	DB           int           `envconfig:"BAZARIO_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"BAZARIO_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"BAZARIO_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"BAZARIO_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"BAZARIO_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"BAZARIO_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"BAZARIO_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"BAZARIO_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"BAZARIO_JWT_EXPIRATION_MINUTES" default:"60"`
}

// PricingConfig externalizes the rates the pricing path depends on. Tax and
// commission percentages are expressed in basis points so the environment
// stays integer-valued; the decimal conversions happen once at load.
type PricingConfig struct {
	TaxRateBPS                 int `envconfig:"BAZARIO_PRICING_TAX_RATE_BPS" default:"800"`
	FreeShippingThresholdCents int `envconfig:"BAZARIO_PRICING_FREE_SHIPPING_THRESHOLD_CENTS" default:"10000"`
	StandardShippingCents      int `envconfig:"BAZARIO_PRICING_STANDARD_SHIPPING_CENTS" default:"599"`
	ExpressShippingCents       int `envconfig:"BAZARIO_PRICING_EXPRESS_SHIPPING_CENTS" default:"1499"`
}

func (p PricingConfig) validate() error {
	if p.TaxRateBPS < 0 || p.TaxRateBPS > 10000 {
		return fmt.Errorf("tax rate must be between 0 and 10000 basis points, got %d", p.TaxRateBPS)
	}
	if p.FreeShippingThresholdCents < 0 || p.StandardShippingCents < 0 || p.ExpressShippingCents < 0 {
		return fmt.Errorf("shipping amounts must be non-negative")
	}
	return nil
}

// TaxRate returns the configured tax rate as a decimal fraction (800 bps -> 0.08).
func (p PricingConfig) TaxRate() decimal.Decimal {
	return decimal.New(int64(p.TaxRateBPS), -4)
}

type PayoutsConfig struct {
	AggregationInterval time.Duration `envconfig:"BAZARIO_PAYOUT_AGGREGATION_INTERVAL" default:"24h"`
	ExecutionInterval   time.Duration `envconfig:"BAZARIO_PAYOUT_EXECUTION_INTERVAL" default:"1h"`
	LockTTL             time.Duration `envconfig:"BAZARIO_PAYOUT_LOCK_TTL" default:"2h"`
}

type GCPConfig struct {
	ProjectID string `envconfig:"BAZARIO_GCP_PROJECT_ID"`
}

type PubSubConfig struct {
	OrdersTopic        string `envconfig:"BAZARIO_PUBSUB_ORDERS_TOPIC" default:"bz-order-events"`
	PayoutsTopic       string `envconfig:"BAZARIO_PUBSUB_PAYOUTS_TOPIC" default:"bz-payout-events"`
	OrdersSubscription string `envconfig:"BAZARIO_PUBSUB_ORDERS_SUBSCRIPTION"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"BAZARIO_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"BAZARIO_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"BAZARIO_OUTBOX_MAX_ATTEMPTS" default:"10"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"BAZARIO_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"BAZARIO_AUTO_MIGRATE" default:"false"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	for env, value := range map[string]string{
		"BAZARIO_DB_HOST": db.Host,
		"BAZARIO_DB_USER": db.User,
		"BAZARIO_DB_NAME": db.Name,
	} {
		if value == "" {
			missing = append(missing, env)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("either BAZARIO_DB_DSN or %s are required", strings.Join(missing, ", "))
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
