package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App      AppConfig
	DB       DBConfig
	Redis    RedisConfig
	Stripe   StripeConfig
	Checkout CheckoutConfig
	GCP      GCPConfig
	PubSub   PubSubConfig
	Outbox   OutboxConfig
	Webhook  WebhookConfig
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
	Env          string `envconfig:"IDEALGW_APP_ENV" required:"true"`
	Port         string `envconfig:"IDEALGW_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"IDEALGW_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"IDEALGW_LOG_WARN_STACK" default:"false"`

	// CORSOrigins lists the storefront origins allowed to call the
	// browser-facing checkout endpoints.
	CORSOrigins []string `envconfig:"IDEALGW_CORS_ORIGINS" default:"http://localhost:3000"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN    string `envconfig:"IDEALGW_DB_DSN"`
	Driver string `envconfig:"IDEALGW_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"IDEALGW_DB_HOST"`
	LegacyPort     int    `envconfig:"IDEALGW_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"IDEALGW_DB_USER"`
	LegacyPassword string `envconfig:"IDEALGW_DB_PASSWORD"`
	LegacyName     string `envconfig:"IDEALGW_DB_NAME"`
	LegacySSLMode  string `envconfig:"IDEALGW_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"IDEALGW_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"IDEALGW_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"IDEALGW_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"IDEALGW_DB_CONN_MAX_IDLE_TIME" default:"10m"`

	AutoMigrate bool `envconfig:"IDEALGW_AUTO_MIGRATE" default:"false"`
}

type RedisConfig struct {
	URL          string        `envconfig:"IDEALGW_REDIS_URL" required:"true"`
	Address      string        `envconfig:"IDEALGW_REDIS_ADDR"`
	Password     string        `envconfig:"IDEALGW_REDIS_PASSWORD"`
	DB           int           `envconfig:"IDEALGW_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"IDEALGW_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"IDEALGW_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"IDEALGW_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"IDEALGW_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"IDEALGW_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type StripeConfig struct {
	APIKey         string `envconfig:"IDEALGW_STRIPE_API_KEY"`
	SigningSecret  string `envconfig:"IDEALGW_STRIPE_SIGNING_SECRET"`
	PublishableKey string `envconfig:"IDEALGW_STRIPE_PUBLISHABLE_KEY"`
	Env            string `envconfig:"IDEALGW_STRIPE_ENV" default:"test"`
}

// Environment returns the normalized Stripe environment (test/live).
func (s StripeConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(s.Env))
	if env == "" {
		return "test"
	}
	return env
}

type CheckoutConfig struct {
	// ReturnBaseURL is where Stripe sends the shopper back after the bank
	// redirect, e.g. https://shop.example.com/api/v1/checkout/return.
	ReturnBaseURL string `envconfig:"IDEALGW_CHECKOUT_RETURN_BASE_URL" required:"true"`
	// ContinueBaseURL is the storefront checkout step the shopper lands on
	// once the return flow resolves, e.g. https://shop.example.com/checkout.
	ContinueBaseURL string `envconfig:"IDEALGW_CHECKOUT_CONTINUE_BASE_URL" required:"true"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"IDEALGW_GCP_PROJECT_ID"`
	CredentialsJSON        string `envconfig:"IDEALGW_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"IDEALGW_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	PaymentsTopic string `envconfig:"IDEALGW_PUBSUB_PAYMENTS_TOPIC" default:"ideal-payment-events"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"IDEALGW_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"IDEALGW_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"IDEALGW_OUTBOX_MAX_ATTEMPTS" default:"10"`
}

type WebhookConfig struct {
	IdempotencyTTL time.Duration `envconfig:"IDEALGW_WEBHOOK_IDEMPOTENCY_TTL" default:"72h"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	legacyValues := map[string]string{
		EnvDBHost: db.LegacyHost,
		EnvDBUser: db.LegacyUser,
		EnvDBName: db.LegacyName,
	}
	for _, env := range legacyDBEnvVars {
		if legacyValues[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.LegacyUser)
	if db.LegacyPassword != "" {
		userInfo = url.UserPassword(db.LegacyUser, db.LegacyPassword)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.LegacyHost, db.LegacyPort),
		Path:   db.LegacyName,
	}

	if db.LegacySSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.LegacySSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
