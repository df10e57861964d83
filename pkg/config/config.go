package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	FeatureFlags FeatureFlagsConfig
	Eventing     EventingConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Stripe       StripeConfig
	Checkout     CheckoutConfig
	Mail         MailConfig
	Outbox       OutboxConfig
	Reconcile    ReconcileConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(cfg.FeatureFlags.UseSQLite); err != nil {
		return nil, err
	}
	cfg.App.PublicBaseURL = strings.TrimRight(strings.TrimSpace(cfg.App.PublicBaseURL), "/")
	return &cfg, nil
}

type AppConfig struct {
	Env           string `envconfig:"CHARITYCONNECT_APP_ENV" required:"true"`
	Port          string `envconfig:"CHARITYCONNECT_APP_PORT" default:"8080"`
	LogLevel      string `envconfig:"CHARITYCONNECT_LOG_LEVEL" default:"info"`
	LogWarnStack  bool   `envconfig:"CHARITYCONNECT_LOG_WARN_STACK" default:"false"`
	PublicBaseURL string `envconfig:"CHARITYCONNECT_PUBLIC_BASE_URL" default:"http://localhost:8080"`
	// CORSOrigins is a comma separated allow list for browser clients.
	CORSOrigins []string `envconfig:"CHARITYCONNECT_CORS_ORIGINS" default:"http://localhost:3000"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"CHARITYCONNECT_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"CHARITYCONNECT_DB_DSN"`
	Driver string `envconfig:"CHARITYCONNECT_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"CHARITYCONNECT_DB_HOST"`
	LegacyPort     int    `envconfig:"CHARITYCONNECT_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"CHARITYCONNECT_DB_USER"`
	LegacyPassword string `envconfig:"CHARITYCONNECT_DB_PASSWORD"`
	LegacyName     string `envconfig:"CHARITYCONNECT_DB_NAME"`
	LegacySSLMode  string `envconfig:"CHARITYCONNECT_DB_SSLMODE" default:"disable"`

	SQLitePath string `envconfig:"CHARITYCONNECT_SQLITE_PATH" default:"charityconnect.db"`

	MaxOpenConns    int           `envconfig:"CHARITYCONNECT_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"CHARITYCONNECT_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"CHARITYCONNECT_DB_CONN_MAX_LIFETIME" default:"30m"`
	ConnMaxIdleTime time.Duration `envconfig:"CHARITYCONNECT_DB_CONN_MAX_IDLE_TIME" default:"5m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"CHARITYCONNECT_REDIS_URL"`
	Address      string        `envconfig:"CHARITYCONNECT_REDIS_ADDR"`
	Password     string        `envconfig:"CHARITYCONNECT_REDIS_PASSWORD"`
	DB           int           `envconfig:"CHARITYCONNECT_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"CHARITYCONNECT_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"CHARITYCONNECT_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"CHARITYCONNECT_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"CHARITYCONNECT_REDIS_READ_TIMEOUT" default:"3s"`
	WriteTimeout time.Duration `envconfig:"CHARITYCONNECT_REDIS_WRITE_TIMEOUT" default:"3s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"CHARITYCONNECT_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"CHARITYCONNECT_JWT_ISSUER" default:"charityconnect"`
	ExpirationMinutes int    `envconfig:"CHARITYCONNECT_JWT_EXPIRATION_MINUTES" default:"60"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"CHARITYCONNECT_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"CHARITYCONNECT_AUTO_MIGRATE" default:"false"`
}

type EventingConfig struct {
	IdempotencyTTL time.Duration `envconfig:"CHARITYCONNECT_EVENTING_IDEMPOTENCY_TTL" default:"720h"`
}

type GCPConfig struct {
	ProjectID string `envconfig:"CHARITYCONNECT_GCP_PROJECT_ID"`
}

type PubSubConfig struct {
	OrdersTopic              string `envconfig:"CHARITYCONNECT_PUBSUB_ORDERS_TOPIC" default:"cc-order-events"`
	NotificationSubscription string `envconfig:"CHARITYCONNECT_PUBSUB_NOTIFICATION_SUBSCRIPTION" default:"cc-order-events-notifier"`
}

type StripeConfig struct {
	APIKey         string        `envconfig:"CHARITYCONNECT_STRIPE_API_KEY"`
	Secret         string        `envconfig:"CHARITYCONNECT_STRIPE_WEBHOOK_SECRET"`
	Env            string        `envconfig:"CHARITYCONNECT_STRIPE_ENV" default:"test"`
	GatewayTimeout time.Duration `envconfig:"CHARITYCONNECT_STRIPE_TIMEOUT" default:"10s"`
	WebhookTTL     time.Duration `envconfig:"CHARITYCONNECT_STRIPE_WEBHOOK_DEDUPE_TTL" default:"72h"`
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
	Currency        string        `envconfig:"CHARITYCONNECT_CHECKOUT_CURRENCY" default:"eur"`
	MaxQuantity     int           `envconfig:"CHARITYCONNECT_CHECKOUT_MAX_QTY" default:"10"`
	RateLimitWindow time.Duration `envconfig:"CHARITYCONNECT_CHECKOUT_RATE_LIMIT_WINDOW" default:"1m"`
	RateLimitPerIP  int64         `envconfig:"CHARITYCONNECT_CHECKOUT_RATE_LIMIT_PER_IP" default:"20"`
}

type MailConfig struct {
	Host     string `envconfig:"CHARITYCONNECT_MAIL_HOST" default:"localhost"`
	Port     int    `envconfig:"CHARITYCONNECT_MAIL_PORT" default:"587"`
	UseTLS   bool   `envconfig:"CHARITYCONNECT_MAIL_USE_TLS" default:"true"`
	Username string `envconfig:"CHARITYCONNECT_MAIL_USERNAME"`
	Password string `envconfig:"CHARITYCONNECT_MAIL_PASSWORD"`
	From     string `envconfig:"CHARITYCONNECT_MAIL_FROM" default:"no-reply@charityconnect.ie"`
	FromName string `envconfig:"CHARITYCONNECT_MAIL_FROM_NAME" default:"CharityConnect"`
}

// Addr returns the host:port pair for the SMTP server.
func (m MailConfig) Addr() string {
	return fmt.Sprintf("%s:%d", m.Host, m.Port)
}

type OutboxConfig struct {
	BatchSize      int           `envconfig:"CHARITYCONNECT_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int           `envconfig:"CHARITYCONNECT_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int           `envconfig:"CHARITYCONNECT_OUTBOX_MAX_ATTEMPTS" default:"10"`
	Retention      time.Duration `envconfig:"CHARITYCONNECT_OUTBOX_RETENTION" default:"720h"`
}

type ReconcileConfig struct {
	StaleAfter time.Duration `envconfig:"CHARITYCONNECT_RECONCILE_STALE_AFTER" default:"15m"`
	MaxAge     time.Duration `envconfig:"CHARITYCONNECT_RECONCILE_MAX_AGE" default:"72h"`
	BatchSize  int           `envconfig:"CHARITYCONNECT_RECONCILE_BATCH_SIZE" default:"100"`
	Interval   time.Duration `envconfig:"CHARITYCONNECT_CRON_INTERVAL" default:"10m"`
}

func (db *DBConfig) ensureDSN(useSQLite bool) error {
	if useSQLite {
		db.Driver = DriverSQLite
		if db.DSN == "" {
			db.DSN = db.SQLitePath
		}
		return nil
	}
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
