package config

const EnvPrefix = "CHARITYCONNECT"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

const (
	EnvAppEnv        = "CHARITYCONNECT_APP_ENV"
	EnvPort          = "CHARITYCONNECT_APP_PORT"
	EnvPublicBaseURL = "CHARITYCONNECT_PUBLIC_BASE_URL"
	EnvUseSQLite     = "CHARITYCONNECT_USE_SQLITE"
	EnvDBDSN         = "CHARITYCONNECT_DB_DSN"
	EnvDBHost        = "CHARITYCONNECT_DB_HOST"
	EnvDBPort        = "CHARITYCONNECT_DB_PORT"
	EnvDBUser        = "CHARITYCONNECT_DB_USER"
	EnvDBPassword    = "CHARITYCONNECT_DB_PASSWORD"
	EnvDBName        = "CHARITYCONNECT_DB_NAME"
	EnvRedisURL      = "CHARITYCONNECT_REDIS_URL"
	EnvJWTSecret     = "CHARITYCONNECT_JWT_SECRET"
	EnvStripeTimeout = "CHARITYCONNECT_STRIPE_TIMEOUT"
	EnvMailPort      = "CHARITYCONNECT_MAIL_PORT"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
