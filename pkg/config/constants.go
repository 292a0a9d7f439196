package config

// EnvPrefix is passed to envconfig; individual fields carry explicit
// RELAY_-prefixed names so the prefix stays empty.
const EnvPrefix = ""

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	EnvAppEnv        = "RELAY_APP_ENV"
	EnvDBDSN         = "RELAY_DB_DSN"
	EnvDBHost        = "RELAY_DB_HOST"
	EnvDBUser        = "RELAY_DB_USER"
	EnvDBName        = "RELAY_DB_NAME"
	EnvRedisURL      = "RELAY_REDIS_URL"
	EnvGCPProjectID  = "RELAY_GCP_PROJECT_ID"
	EnvConsumerGroup = "RELAY_CONSUMER_GROUP"
)

var requiredDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
