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
	FeatureFlags FeatureFlagsConfig
	Eventing     EventingConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Outbox       OutboxConfig
	Algorand     AlgorandConfig
	Accounts     AccountsConfig
	Security     SecurityConfig
	Queue        QueueConfig
	Cron         CronConfig
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
	Env          string `envconfig:"PACKCLAIM_APP_ENV" required:"true"`
	OpsPort      string `envconfig:"PACKCLAIM_OPS_PORT" default:"9090"`
	LogLevel     string `envconfig:"PACKCLAIM_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"PACKCLAIM_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"PACKCLAIM_SERVICE_KIND" default:"claim-worker"`
}

type DBConfig struct {
	DSN    string `envconfig:"PACKCLAIM_DB_DSN"`
	Driver string `envconfig:"PACKCLAIM_DB_DRIVER" default:"postgres"`

	Host     string `envconfig:"PACKCLAIM_DB_HOST"`
	Port     int    `envconfig:"PACKCLAIM_DB_PORT" default:"5432"`
	User     string `envconfig:"PACKCLAIM_DB_USER"`
	Password string `envconfig:"PACKCLAIM_DB_PASSWORD"`
	Name     string `envconfig:"PACKCLAIM_DB_NAME"`
	SSLMode  string `envconfig:"PACKCLAIM_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"PACKCLAIM_DB_MAX_OPEN_CONNS" default:"40"`
	MaxIdleConns    int           `envconfig:"PACKCLAIM_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"PACKCLAIM_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"PACKCLAIM_DB_CONN_MAX_IDLE_TIME" default:"10m"`

	SlowQueryThreshold time.Duration `envconfig:"PACKCLAIM_DB_SLOW_QUERY_THRESHOLD" default:"500ms"`
	ConnectTimeout     time.Duration `envconfig:"PACKCLAIM_DB_CONNECT_TIMEOUT" default:"30s"`
}

type RedisConfig struct {
	URL          string        `envconfig:"PACKCLAIM_REDIS_URL"`
	Address      string        `envconfig:"PACKCLAIM_REDIS_ADDR"`
	Password     string        `envconfig:"PACKCLAIM_REDIS_PASSWORD"`
	DB           int           `envconfig:"PACKCLAIM_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"PACKCLAIM_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"PACKCLAIM_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"PACKCLAIM_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"PACKCLAIM_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"PACKCLAIM_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"PACKCLAIM_AUTO_MIGRATE" default:"false"`
}

type EventingConfig struct {
	NotificationIdempotencyTTL time.Duration `envconfig:"PACKCLAIM_EVENTING_IDEMPOTENCY_TTL" default:"720h"`
}

type GCPConfig struct {
	ProjectID string `envconfig:"PACKCLAIM_GCP_PROJECT_ID"`
}

type PubSubConfig struct {
	NotificationTopic string `envconfig:"PACKCLAIM_PUBSUB_NOTIFICATION_TOPIC" default:"pc-notification-events"`
	PackTopic         string `envconfig:"PACKCLAIM_PUBSUB_PACK_TOPIC" default:"pc-pack-events"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"PACKCLAIM_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"PACKCLAIM_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"PACKCLAIM_OUTBOX_MAX_ATTEMPTS" default:"10"`
}

// AlgorandConfig points at the algod node and the custodial signing service.
type AlgorandConfig struct {
	AlgodURL         string        `envconfig:"PACKCLAIM_ALGOD_URL"`
	AlgodToken       string        `envconfig:"PACKCLAIM_ALGOD_TOKEN"`
	SignerURL        string        `envconfig:"PACKCLAIM_SIGNER_URL"`
	SignerToken      string        `envconfig:"PACKCLAIM_SIGNER_TOKEN"`
	RequestTimeout   time.Duration `envconfig:"PACKCLAIM_ALGORAND_REQUEST_TIMEOUT" default:"15s"`
	ConfirmationWait time.Duration `envconfig:"PACKCLAIM_ALGORAND_CONFIRMATION_WAIT" default:"30s"`
}

// AccountsConfig amounts are expressed in ALGO and converted to microAlgos at use.
type AccountsConfig struct {
	InitialBalanceAlgo string `envconfig:"PACKCLAIM_ACCOUNTS_INITIAL_BALANCE_ALGO" default:"0.1"`
	AssetReserveAlgo   string `envconfig:"PACKCLAIM_ACCOUNTS_ASSET_RESERVE_ALGO" default:"0.1"`
}

type SecurityConfig struct {
	MnemonicSecret string `envconfig:"PACKCLAIM_MNEMONIC_SECRET"`
}

type QueueConfig struct {
	Concurrency         int           `envconfig:"PACKCLAIM_QUEUE_CONCURRENCY" default:"20"`
	PollIntervalMS      int           `envconfig:"PACKCLAIM_QUEUE_POLL_MS" default:"1000"`
	LeaseDuration       time.Duration `envconfig:"PACKCLAIM_QUEUE_LEASE_DURATION" default:"5m"`
	BackoffBase         time.Duration `envconfig:"PACKCLAIM_QUEUE_BACKOFF_BASE" default:"10s"`
	ExponentialAttempts int           `envconfig:"PACKCLAIM_QUEUE_EXPONENTIAL_ATTEMPTS" default:"10"`
	DailyRetryInterval  time.Duration `envconfig:"PACKCLAIM_QUEUE_DAILY_RETRY_INTERVAL" default:"24h"`
}

type CronConfig struct {
	Interval                  time.Duration `envconfig:"PACKCLAIM_CRON_INTERVAL" default:"24h"`
	JobTimeout                time.Duration `envconfig:"PACKCLAIM_CRON_JOB_TIMEOUT" default:"10m"`
	ClaimJobRetentionDays     int           `envconfig:"PACKCLAIM_CRON_CLAIM_JOB_RETENTION_DAYS" default:"30"`
	OutboxRetentionDays       int           `envconfig:"PACKCLAIM_CRON_OUTBOX_RETENTION_DAYS" default:"30"`
	NotificationRetentionDays int           `envconfig:"PACKCLAIM_CRON_NOTIFICATION_RETENTION_DAYS" default:"90"`
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
	for _, env := range splitDBEnvVars {
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
