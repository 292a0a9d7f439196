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
	Service  ServiceConfig
	DB       DBConfig
	Redis    RedisConfig
	GCP      GCPConfig
	PubSub   PubSubConfig
	Outbox   OutboxConfig
	Consumer ConsumerConfig
	Eventing EventingConfig
	Ops      OpsConfig
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
	Env          string `envconfig:"RELAY_APP_ENV" required:"true"`
	LogLevel     string `envconfig:"RELAY_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"RELAY_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind        string `envconfig:"RELAY_SERVICE_KIND" default:"outbox-publisher"`
	InstanceID  string `envconfig:"RELAY_SERVICE_INSTANCE_ID"`
	AutoMigrate bool   `envconfig:"RELAY_AUTO_MIGRATE" default:"false"`
}

type DBConfig struct {
	DSN    string `envconfig:"RELAY_DB_DSN"`
	Driver string `envconfig:"RELAY_DB_DRIVER" default:"postgres"`

	Host     string `envconfig:"RELAY_DB_HOST"`
	Port     int    `envconfig:"RELAY_DB_PORT" default:"5432"`
	User     string `envconfig:"RELAY_DB_USER"`
	Password string `envconfig:"RELAY_DB_PASSWORD"`
	Name     string `envconfig:"RELAY_DB_NAME"`
	SSLMode  string `envconfig:"RELAY_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"RELAY_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"RELAY_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"RELAY_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"RELAY_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"RELAY_REDIS_URL" required:"true"`
	Address      string        `envconfig:"RELAY_REDIS_ADDR"`
	Password     string        `envconfig:"RELAY_REDIS_PASSWORD"`
	DB           int           `envconfig:"RELAY_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"RELAY_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"RELAY_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"RELAY_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"RELAY_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"RELAY_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"RELAY_GCP_PROJECT_ID" required:"true"`
	CredentialsJSON        string `envconfig:"RELAY_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"RELAY_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	UserRegistrationTopic        string `envconfig:"RELAY_PUBSUB_USER_REGISTRATION_TOPIC" default:"user-registration"`
	UserRegistrationSubscription string `envconfig:"RELAY_PUBSUB_USER_REGISTRATION_SUBSCRIPTION"`
	OrderPlacedTopic             string `envconfig:"RELAY_PUBSUB_ORDER_PLACED_TOPIC" default:"order-placed"`
	OrderPlacedSubscription      string `envconfig:"RELAY_PUBSUB_ORDER_PLACED_SUBSCRIPTION"`
	PaymentSuccessTopic          string `envconfig:"RELAY_PUBSUB_PAYMENT_SUCCESS_TOPIC" default:"payment-success"`
	PaymentSuccessSubscription   string `envconfig:"RELAY_PUBSUB_PAYMENT_SUCCESS_SUBSCRIPTION"`
	PaymentFailureTopic          string `envconfig:"RELAY_PUBSUB_PAYMENT_FAILURE_TOPIC" default:"payment-failure"`
	PaymentFailureSubscription   string `envconfig:"RELAY_PUBSUB_PAYMENT_FAILURE_SUBSCRIPTION"`
}

// OutboxConfig drives the publisher loop. Backoff grows as base*2^attempt,
// capped at MaxBackoff; claimed rows become reclaimable after LeaseTimeout.
type OutboxConfig struct {
	BatchSize      int `envconfig:"RELAY_OUTBOX_PUBLISH_BATCH_SIZE" default:"100"`
	PollIntervalMS int `envconfig:"RELAY_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"RELAY_OUTBOX_MAX_ATTEMPTS" default:"5"`
	BaseBackoffMS  int `envconfig:"RELAY_OUTBOX_BASE_BACKOFF_MS" default:"200"`
	MaxBackoffMS   int `envconfig:"RELAY_OUTBOX_MAX_BACKOFF_MS" default:"10000"`
	LeaseTimeoutMS int `envconfig:"RELAY_OUTBOX_LEASE_TIMEOUT_MS" default:"30000"`
	RetentionDays  int `envconfig:"RELAY_OUTBOX_RETENTION_DAYS" default:"30"`
}

func (o OutboxConfig) PollInterval() time.Duration {
	return time.Duration(o.PollIntervalMS) * time.Millisecond
}

func (o OutboxConfig) BaseBackoff() time.Duration {
	return time.Duration(o.BaseBackoffMS) * time.Millisecond
}

func (o OutboxConfig) MaxBackoff() time.Duration {
	return time.Duration(o.MaxBackoffMS) * time.Millisecond
}

func (o OutboxConfig) LeaseTimeout() time.Duration {
	return time.Duration(o.LeaseTimeoutMS) * time.Millisecond
}

// ConsumerConfig drives every dispatcher. Group defaults to the service kind.
type ConsumerConfig struct {
	Group         string `envconfig:"RELAY_CONSUMER_GROUP" required:"true"`
	MaxAttempts   int    `envconfig:"RELAY_CONSUMER_MAX_ATTEMPTS" default:"5"`
	BaseBackoffMS int    `envconfig:"RELAY_CONSUMER_BASE_BACKOFF_MS" default:"200"`
	MaxBackoffMS  int    `envconfig:"RELAY_CONSUMER_MAX_BACKOFF_MS" default:"10000"`
}

func (c ConsumerConfig) BaseBackoff() time.Duration {
	return time.Duration(c.BaseBackoffMS) * time.Millisecond
}

func (c ConsumerConfig) MaxBackoff() time.Duration {
	return time.Duration(c.MaxBackoffMS) * time.Millisecond
}

type EventingConfig struct {
	IdempotencyTTL time.Duration `envconfig:"RELAY_EVENTING_IDEMPOTENCY_TTL" default:"720h"`
}

type OpsConfig struct {
	Addr string `envconfig:"RELAY_OPS_ADDR" default:":9090"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	values := map[string]string{
		EnvDBHost: db.Host,
		EnvDBUser: db.User,
		EnvDBName: db.Name,
	}
	for _, env := range requiredDBEnvVars {
		if values[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
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
