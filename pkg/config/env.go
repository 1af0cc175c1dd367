package config

const (
	EnvPrefix = "DISHDASH"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvAppEnv   = "DISHDASH_APP_ENV"
	EnvPort     = "DISHDASH_APP_PORT"
	EnvLogLevel = "DISHDASH_LOG_LEVEL"

	EnvDBDSN  = "DISHDASH_DB_DSN"
	EnvDBHost = "DISHDASH_DB_HOST"
	EnvDBUser = "DISHDASH_DB_USER"
	EnvDBName = "DISHDASH_DB_NAME"

	EnvRedisURL = "DISHDASH_REDIS_URL"

	EnvJWTSecret  = "DISHDASH_JWT_SECRET"
	EnvJWTIssuer  = "DISHDASH_JWT_ISSUER"
	EnvJWTExpMins = "DISHDASH_JWT_EXPIRATION_MINUTES"

	EnvGCPProjectID = "DISHDASH_GCP_PROJECT_ID"

	EnvPubSubOrdersTopic   = "DISHDASH_PUBSUB_ORDERS_TOPIC"
	EnvPubSubOrdersSub     = "DISHDASH_PUBSUB_ORDERS_SUBSCRIPTION"
	EnvPubSubLocationTopic = "DISHDASH_PUBSUB_DELIVERY_LOCATION_TOPIC"

	EnvSquareAccessToken = "DISHDASH_SQUARE_ACCESS_TOKEN"
	EnvSquareEnv         = "DISHDASH_SQUARE_ENV"

	EnvNotificationChannels = "DISHDASH_NOTIFICATIONS_CHANNELS"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
