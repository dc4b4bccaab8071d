package config

const (
	EnvPrefix = "STITCHWELL"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvAppEnv   = "STITCHWELL_APP_ENV"
	EnvPort     = "STITCHWELL_APP_PORT"
	EnvLogLevel = "STITCHWELL_LOG_LEVEL"

	EnvDBDSN      = "STITCHWELL_DB_DSN"
	EnvDBHost     = "STITCHWELL_DB_HOST"
	EnvDBUser     = "STITCHWELL_DB_USER"
	EnvDBName     = "STITCHWELL_DB_NAME"
	EnvDBPassword = "STITCHWELL_DB_PASSWORD"

	EnvRedisURL = "STITCHWELL_REDIS_URL"

	EnvJWTSecret = "STITCHWELL_JWT_SECRET"
	EnvJWTIssuer = "STITCHWELL_JWT_ISSUER"

	EnvStripeAPIKey        = "STITCHWELL_STRIPE_API_KEY"
	EnvStripeWebhookSecret = "STITCHWELL_STRIPE_WEBHOOK_SECRET"
	EnvStripeEnv           = "STITCHWELL_STRIPE_ENV"

	EnvCheckoutReturnURL  = "STITCHWELL_CHECKOUT_RETURN_URL"
	EnvCheckoutLoginURL   = "STITCHWELL_CHECKOUT_LOGIN_URL"
	EnvCheckoutSessionTTL = "STITCHWELL_CHECKOUT_SESSION_TTL"

	EnvCartStorageKey = "STITCHWELL_CART_STORAGE_KEY"
	EnvCartTTL        = "STITCHWELL_CART_TTL"

	EnvGCPProjectID        = "STITCHWELL_GCP_PROJECT_ID"
	EnvPubSubOrdersTopic   = "STITCHWELL_PUBSUB_ORDERS_TOPIC"
	EnvPubSubPaymentsTopic = "STITCHWELL_PUBSUB_PAYMENTS_TOPIC"
)
