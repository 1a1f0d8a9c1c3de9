package config

// EnvPrefix is empty because every field carries its fully qualified name.
const EnvPrefix = ""

const (
	AppEnvDev   = "dev"
	AppEnvProd  = "prod"
	AppEnvLocal = "local"
)

const (
	EnvAppEnv       = "PACKCLAIM_APP_ENV"
	EnvOpsPort      = "PACKCLAIM_OPS_PORT"
	EnvLogLevel     = "PACKCLAIM_LOG_LEVEL"
	EnvServiceKind  = "PACKCLAIM_SERVICE_KIND"
	EnvAutoMigrate  = "PACKCLAIM_AUTO_MIGRATE"
	EnvDBDSN        = "PACKCLAIM_DB_DSN"
	EnvDBHost       = "PACKCLAIM_DB_HOST"
	EnvDBPort       = "PACKCLAIM_DB_PORT"
	EnvDBUser       = "PACKCLAIM_DB_USER"
	EnvDBPassword   = "PACKCLAIM_DB_PASSWORD"
	EnvDBName       = "PACKCLAIM_DB_NAME"
	EnvRedisURL     = "PACKCLAIM_REDIS_URL"
	EnvGCPProjectID = "PACKCLAIM_GCP_PROJECT_ID"

	EnvPubSubNotificationTopic = "PACKCLAIM_PUBSUB_NOTIFICATION_TOPIC"
	EnvPubSubPackTopic         = "PACKCLAIM_PUBSUB_PACK_TOPIC"

	EnvAlgodURL       = "PACKCLAIM_ALGOD_URL"
	EnvAlgodToken     = "PACKCLAIM_ALGOD_TOKEN"
	EnvSignerURL      = "PACKCLAIM_SIGNER_URL"
	EnvSignerToken    = "PACKCLAIM_SIGNER_TOKEN"
	EnvMnemonicSecret = "PACKCLAIM_MNEMONIC_SECRET"

	EnvAccountsInitialBalance = "PACKCLAIM_ACCOUNTS_INITIAL_BALANCE_ALGO"
	EnvAccountsAssetReserve   = "PACKCLAIM_ACCOUNTS_ASSET_RESERVE_ALGO"

	EnvQueueConcurrency    = "PACKCLAIM_QUEUE_CONCURRENCY"
	EnvQueueBackoffBase    = "PACKCLAIM_QUEUE_BACKOFF_BASE"
	EnvQueueLeaseDuration  = "PACKCLAIM_QUEUE_LEASE_DURATION"
	EnvQueueExponentialMax = "PACKCLAIM_QUEUE_EXPONENTIAL_ATTEMPTS"
)

var splitDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
