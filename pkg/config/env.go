package config

const EnvPrefix = "NEWSLETTER"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	DBDriverPostgres = "postgres"
	DBDriverSQLite   = "sqlite"
)

const (
	EnvAppEnv   = "NEWSLETTER_APP_ENV"
	EnvPort     = "NEWSLETTER_APP_PORT"
	EnvLogLevel = "NEWSLETTER_LOG_LEVEL"

	EnvDBDSN    = "NEWSLETTER_DB_DSN"
	EnvDBDriver = "NEWSLETTER_DB_DRIVER"
	EnvDBHost   = "NEWSLETTER_DB_HOST"
	EnvDBPort   = "NEWSLETTER_DB_PORT"
	EnvDBUser   = "NEWSLETTER_DB_USER"
	EnvDBPass   = "NEWSLETTER_DB_PASSWORD"
	EnvDBName   = "NEWSLETTER_DB_NAME"

	EnvRedisURL = "NEWSLETTER_REDIS_URL"

	EnvJWTSecret  = "NEWSLETTER_JWT_SECRET"
	EnvJWTIssuer  = "NEWSLETTER_JWT_ISSUER"
	EnvJWTExpMins = "NEWSLETTER_JWT_EXPIRATION_MINUTES"

	EnvEmailBaseURL = "NEWSLETTER_EMAIL_BASE_URL"
	EnvEmailSender  = "NEWSLETTER_EMAIL_SENDER"
	EnvEmailToken   = "NEWSLETTER_EMAIL_AUTHORIZATION_TOKEN"

	EnvDeliveryConcurrency = "NEWSLETTER_DELIVERY_CONCURRENCY"
	EnvDeliveryEmptyQueue  = "NEWSLETTER_DELIVERY_EMPTY_QUEUE_INTERVAL"

	EnvIdempotencyRetention = "NEWSLETTER_IDEMPOTENCY_RETENTION"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
