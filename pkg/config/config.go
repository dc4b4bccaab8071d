package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"slices"
	"strconv"
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
	Checkout     CheckoutConfig
	Cart         CartConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Stripe       StripeConfig
	Outbox       OutboxConfig
	Maintenance  MaintenanceConfig
}

// Load reads every STITCHWELL_* variable and validates cross-field rules.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	for _, check := range []func() error{cfg.DB.resolveDSN, cfg.Checkout.validate, cfg.Maintenance.validate} {
		if err := check(); err != nil {
			return nil, err
		}
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string   `envconfig:"STITCHWELL_APP_ENV" required:"true"`
	Port         string   `envconfig:"STITCHWELL_APP_PORT" required:"true"`
	LogLevel     string   `envconfig:"STITCHWELL_LOG_LEVEL" default:"info"`
	LogWarnStack bool     `envconfig:"STITCHWELL_LOG_WARN_STACK" default:"false"`
	LogFormat    string   `envconfig:"STITCHWELL_LOG_FORMAT" default:"json"`
	CORSOrigins  []string `envconfig:"STITCHWELL_CORS_ORIGINS" default:"http://localhost:3000"`
	// Requests per minute for payment and checkout endpoints; 0 disables.
	PaymentRateLimitIP   int `envconfig:"STITCHWELL_PAYMENT_RATE_LIMIT_IP" default:"30"`
	PaymentRateLimitUser int `envconfig:"STITCHWELL_PAYMENT_RATE_LIMIT_USER" default:"20"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"STITCHWELL_SERVICE_KIND" default:"api"`
}

// DBConfig takes a full DSN or, failing that, discrete connection parts.
type DBConfig struct {
	DSN string `envconfig:"STITCHWELL_DB_DSN"`

	Host     string `envconfig:"STITCHWELL_DB_HOST"`
	Port     int    `envconfig:"STITCHWELL_DB_PORT" default:"5432"`
	User     string `envconfig:"STITCHWELL_DB_USER"`
	Password string `envconfig:"STITCHWELL_DB_PASSWORD"`
	Name     string `envconfig:"STITCHWELL_DB_NAME"`
	SSLMode  string `envconfig:"STITCHWELL_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"STITCHWELL_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"STITCHWELL_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"STITCHWELL_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"STITCHWELL_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

func (db *DBConfig) resolveDSN() error {
	if db.DSN != "" {
		return nil
	}
	var missing []string
	for env, v := range map[string]string{EnvDBHost: db.Host, EnvDBUser: db.User, EnvDBName: db.Name} {
		if v == "" {
			missing = append(missing, env)
		}
	}
	if len(missing) > 0 {
		slices.Sort(missing)
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	u := url.URL{
		Scheme: "postgres",
		User:   url.User(db.User),
		Host:   net.JoinHostPort(db.Host, strconv.Itoa(db.Port)),
		Path:   db.Name,
	}
	if db.Password != "" {
		u.User = url.UserPassword(db.User, db.Password)
	}
	if db.SSLMode != "" {
		u.RawQuery = url.Values{"sslmode": {db.SSLMode}}.Encode()
	}
	db.DSN = u.String()
	return nil
}

type RedisConfig struct {
	URL          string        `envconfig:"STITCHWELL_REDIS_URL" required:"true"`
	Address      string        `envconfig:"STITCHWELL_REDIS_ADDR"`
	Password     string        `envconfig:"STITCHWELL_REDIS_PASSWORD"`
	DB           int           `envconfig:"STITCHWELL_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"STITCHWELL_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"STITCHWELL_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"STITCHWELL_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"STITCHWELL_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"STITCHWELL_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"STITCHWELL_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"STITCHWELL_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"STITCHWELL_JWT_EXPIRATION_MINUTES" default:"60"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"STITCHWELL_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"STITCHWELL_AUTO_MIGRATE" default:"false"`
}

type EventingConfig struct {
	// IdempotencyTTL bounds how long Stripe event ids are remembered.
	IdempotencyTTL time.Duration `envconfig:"STITCHWELL_EVENTING_IDEMPOTENCY_TTL" default:"720h"`
	// Replay windows for Idempotency-Key on cart and payment writes, and on
	// checkout submissions.
	RequestIdempotencyTTL  time.Duration `envconfig:"STITCHWELL_REQUEST_IDEMPOTENCY_TTL" default:"24h"`
	CheckoutIdempotencyTTL time.Duration `envconfig:"STITCHWELL_CHECKOUT_IDEMPOTENCY_TTL" default:"168h"`
}

// CheckoutConfig drives the checkout orchestrator and the payment gateway boundary.
type CheckoutConfig struct {
	DefaultCurrency  string        `envconfig:"STITCHWELL_CHECKOUT_DEFAULT_CURRENCY" default:"usd"`
	ReturnURL        string        `envconfig:"STITCHWELL_CHECKOUT_RETURN_URL" default:"http://localhost:3000/checkout/return"`
	LoginURL         string        `envconfig:"STITCHWELL_CHECKOUT_LOGIN_URL" default:"/login?next=/checkout"`
	ConfirmationPath string        `envconfig:"STITCHWELL_CHECKOUT_CONFIRMATION_PATH" default:"/orders/%s/confirmation"`
	SessionTTL       time.Duration `envconfig:"STITCHWELL_CHECKOUT_SESSION_TTL" default:"30m"`
}

func (c CheckoutConfig) validate() error {
	if len(strings.TrimSpace(c.DefaultCurrency)) != 3 {
		return errors.New("STITCHWELL_CHECKOUT_DEFAULT_CURRENCY must be a 3-letter currency code")
	}
	if !strings.Contains(c.ConfirmationPath, "%s") {
		return errors.New("STITCHWELL_CHECKOUT_CONFIRMATION_PATH must contain %s")
	}
	if c.SessionTTL <= 0 {
		return fmt.Errorf("%s must be positive", EnvCheckoutSessionTTL)
	}
	return nil
}

type CartConfig struct {
	StorageKey string        `envconfig:"STITCHWELL_CART_STORAGE_KEY" default:"cart"`
	TTL        time.Duration `envconfig:"STITCHWELL_CART_TTL" default:"720h"`

	// LockLease bounds how long one request may hold a session's cart;
	// LockWait is how long another request waits for it.
	LockLease time.Duration `envconfig:"STITCHWELL_CART_LOCK_LEASE" default:"10s"`
	LockWait  time.Duration `envconfig:"STITCHWELL_CART_LOCK_WAIT" default:"5s"`
}

// GCPConfig falls back to application default credentials when neither
// credential field is set.
type GCPConfig struct {
	ProjectID       string `envconfig:"STITCHWELL_GCP_PROJECT_ID"`
	CredentialsJSON string `envconfig:"STITCHWELL_GCP_CREDENTIALS_JSON"`
	CredentialsFile string `envconfig:"STITCHWELL_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	OrdersTopic   string `envconfig:"STITCHWELL_PUBSUB_ORDERS_TOPIC" default:"sw-order-events"`
	PaymentsTopic string `envconfig:"STITCHWELL_PUBSUB_PAYMENTS_TOPIC" default:"sw-payment-events"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"STITCHWELL_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"STITCHWELL_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"STITCHWELL_OUTBOX_MAX_ATTEMPTS" default:"10"`
}

// MaintenanceConfig drives the maintenance worker's scheduled jobs.
type MaintenanceConfig struct {
	Interval        time.Duration `envconfig:"STITCHWELL_MAINTENANCE_INTERVAL" default:"1h"`
	OutboxRetention time.Duration `envconfig:"STITCHWELL_MAINTENANCE_OUTBOX_RETENTION" default:"720h"`
	OrphanGrace     time.Duration `envconfig:"STITCHWELL_MAINTENANCE_ORPHAN_GRACE" default:"30m"`
	OrphanBatchSize int           `envconfig:"STITCHWELL_MAINTENANCE_ORPHAN_BATCH_SIZE" default:"100"`
}

func (m MaintenanceConfig) validate() error {
	if m.Interval <= 0 || m.OutboxRetention <= 0 {
		return errors.New("STITCHWELL_MAINTENANCE_INTERVAL and STITCHWELL_MAINTENANCE_OUTBOX_RETENTION must be positive")
	}
	return nil
}

type StripeConfig struct {
	APIKey        string `envconfig:"STITCHWELL_STRIPE_API_KEY"`
	WebhookSecret string `envconfig:"STITCHWELL_STRIPE_WEBHOOK_SECRET"`
	Env           string `envconfig:"STITCHWELL_STRIPE_ENV" default:"test"`

	BreakerMaxFailures uint32        `envconfig:"STITCHWELL_STRIPE_BREAKER_MAX_FAILURES" default:"5"`
	BreakerOpenTimeout time.Duration `envconfig:"STITCHWELL_STRIPE_BREAKER_OPEN_TIMEOUT" default:"30s"`
}

// Environment returns the normalized Stripe environment (test/live).
func (s StripeConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(s.Env))
	if env == "" {
		return "test"
	}
	return env
}
