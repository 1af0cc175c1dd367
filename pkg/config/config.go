package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App           AppConfig
	Service       ServiceConfig
	DB            DBConfig
	Redis         RedisConfig
	JWT           JWTConfig
	Password      PasswordConfig
	GiftCardLimit GiftCardRateLimitConfig
	FeatureFlags  FeatureFlagsConfig
	Eventing      EventingConfig
	GCP           GCPConfig
	PubSub        PubSubConfig
	Square        SquareConfig
	Outbox        OutboxConfig
	Notifications NotificationsConfig
	Restaurant    RestaurantConfig
	Cron          CronConfig
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
	Env          string   `envconfig:"DISHDASH_APP_ENV" required:"true"`
	Port         string   `envconfig:"DISHDASH_APP_PORT" required:"true"`
	LogLevel     string   `envconfig:"DISHDASH_LOG_LEVEL" default:"info"`
	LogFormat    string   `envconfig:"DISHDASH_LOG_FORMAT" default:"json"`
	LogWarnStack bool     `envconfig:"DISHDASH_LOG_WARN_STACK" default:"false"`
	CORSOrigins  []string `envconfig:"DISHDASH_CORS_ALLOWED_ORIGINS" default:"http://localhost:3000"`
	// MetricsAddr is where background workers expose /metrics; empty disables it.
	MetricsAddr string `envconfig:"DISHDASH_METRICS_ADDR"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"DISHDASH_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"DISHDASH_DB_DSN"`
	Driver string `envconfig:"DISHDASH_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"DISHDASH_DB_HOST"`
	LegacyPort     int    `envconfig:"DISHDASH_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"DISHDASH_DB_USER"`
	LegacyPassword string `envconfig:"DISHDASH_DB_PASSWORD"`
	LegacyName     string `envconfig:"DISHDASH_DB_NAME"`
	LegacySSLMode  string `envconfig:"DISHDASH_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"DISHDASH_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"DISHDASH_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"DISHDASH_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"DISHDASH_DB_CONN_MAX_IDLE_TIME" default:"10m"`
	SlowQuery       time.Duration `envconfig:"DISHDASH_DB_SLOW_QUERY" default:"250ms"`
}

type RedisConfig struct {
	URL          string        `envconfig:"DISHDASH_REDIS_URL" required:"true"`
	Address      string        `envconfig:"DISHDASH_REDIS_ADDR"`
	Password     string        `envconfig:"DISHDASH_REDIS_PASSWORD"`
	DB           int           `envconfig:"DISHDASH_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"DISHDASH_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"DISHDASH_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"DISHDASH_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"DISHDASH_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"DISHDASH_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"DISHDASH_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"DISHDASH_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"DISHDASH_JWT_EXPIRATION_MINUTES" required:"true"`
}

// Expiration returns the access token lifetime.
func (j JWTConfig) Expiration() time.Duration {
	if j.ExpirationMinutes <= 0 {
		return 0
	}
	return time.Duration(j.ExpirationMinutes) * time.Minute
}

// PasswordConfig tunes argon2id hashing of gift card PINs.
type PasswordConfig struct {
	ArgonMemoryKB    int `envconfig:"DISHDASH_ARGON_MEMORY_KB" default:"65536"`
	ArgonTime        int `envconfig:"DISHDASH_ARGON_TIME" default:"3"`
	ArgonParallelism int `envconfig:"DISHDASH_ARGON_PARALLELISM" default:"2"`
	ArgonSaltLen     int `envconfig:"DISHDASH_ARGON_SALT_LEN" default:"16"`
	ArgonKeyLen      int `envconfig:"DISHDASH_ARGON_KEY_LEN" default:"32"`
}

type GiftCardRateLimitConfig struct {
	Window    time.Duration `envconfig:"DISHDASH_GIFT_CARD_RATE_LIMIT_WINDOW" default:"5m"`
	CodeLimit int           `envconfig:"DISHDASH_GIFT_CARD_RATE_LIMIT_CODE_LIMIT" default:"5"`
	IPLimit   int           `envconfig:"DISHDASH_GIFT_CARD_RATE_LIMIT_IP_LIMIT" default:"30"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"DISHDASH_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"DISHDASH_AUTO_MIGRATE" default:"false"`
	LogGateway  bool `envconfig:"DISHDASH_FEATURE_LOG_GATEWAY" default:"false"`
}

type EventingConfig struct {
	OutboxIdempotencyTTL time.Duration `envconfig:"DISHDASH_EVENTING_IDEMPOTENCY_TTL" default:"720h"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"DISHDASH_GCP_PROJECT_ID" required:"true"`
	CredentialsJSON        string `envconfig:"DISHDASH_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"DISHDASH_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	OrdersTopic              string `envconfig:"DISHDASH_PUBSUB_ORDERS_TOPIC" required:"true"`
	OrdersSubscription       string `envconfig:"DISHDASH_PUBSUB_ORDERS_SUBSCRIPTION" required:"true"`
	DeliveryLocationTopic    string `envconfig:"DISHDASH_PUBSUB_DELIVERY_LOCATION_TOPIC" default:"dd-delivery-locations"`
	NotificationTopic        string `envconfig:"DISHDASH_PUBSUB_NOTIFICATION_TOPIC" default:"dd-notification-deliveries"`
	NotificationSubscription string `envconfig:"DISHDASH_PUBSUB_NOTIFICATION_SUBSCRIPTION"`
}

// SquareConfig holds card processor credentials.
type SquareConfig struct {
	AccessToken   string        `envconfig:"DISHDASH_SQUARE_ACCESS_TOKEN"`
	Env           string        `envconfig:"DISHDASH_SQUARE_ENV" default:"sandbox"`
	LocationID    string        `envconfig:"DISHDASH_SQUARE_LOCATION_ID"`
	WebhookSecret string        `envconfig:"DISHDASH_SQUARE_WEBHOOK_SECRET"`
	WebhookURL    string        `envconfig:"DISHDASH_SQUARE_WEBHOOK_URL"`
	Timeout       time.Duration `envconfig:"DISHDASH_SQUARE_TIMEOUT" default:"15s"`
	// RequestsPerSecond caps outbound API calls per process; 0 disables the cap.
	RequestsPerSecond float64 `envconfig:"DISHDASH_SQUARE_RPS" default:"10"`
	RequestBurst      int     `envconfig:"DISHDASH_SQUARE_BURST" default:"5"`
	// DelayedCapture leaves card payments APPROVED until they are confirmed.
	DelayedCapture bool `envconfig:"DISHDASH_SQUARE_DELAYED_CAPTURE" default:"false"`
}

// Environment returns the normalized Square environment (sandbox/production).
func (s SquareConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(s.Env))
	if env == "" {
		return "sandbox"
	}
	return env
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"DISHDASH_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"DISHDASH_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"DISHDASH_OUTBOX_MAX_ATTEMPTS" default:"10"`
}

type NotificationsConfig struct {
	Transport string `envconfig:"DISHDASH_NOTIFICATIONS_TRANSPORT" default:"pubsub"`
	FromEmail string `envconfig:"DISHDASH_NOTIFICATIONS_FROM_EMAIL" default:"orders@dishdash.app"`
	// Channels lists the channels attempted for every notification.
	Channels []string `envconfig:"DISHDASH_NOTIFICATIONS_CHANNELS" default:"email,sms,push"`
}

// RestaurantConfig supplies fallbacks when the settings row leaves a value unset.
type RestaurantConfig struct {
	SettingsCacheTTL time.Duration `envconfig:"DISHDASH_RESTAURANT_SETTINGS_CACHE_TTL" default:"1m"`
	PointsPerDollar  string        `envconfig:"DISHDASH_RESTAURANT_POINTS_PER_DOLLAR" default:"0.5"`
	PointsForFree    int64         `envconfig:"DISHDASH_RESTAURANT_POINTS_FOR_FREE" default:"100"`
	Currency         string        `envconfig:"DISHDASH_RESTAURANT_CURRENCY" default:"USD"`
}

type CronConfig struct {
	Interval              time.Duration `envconfig:"DISHDASH_CRON_INTERVAL" default:"5m"`
	LockTTL               time.Duration `envconfig:"DISHDASH_CRON_LOCK_TTL" default:"4m"`
	OutboxRetention       time.Duration `envconfig:"DISHDASH_CRON_OUTBOX_RETENTION" default:"720h"`
	NotificationRetention time.Duration `envconfig:"DISHDASH_CRON_NOTIFICATION_RETENTION" default:"720h"`
	// Jobs limits the worker to the named jobs; empty runs all of them.
	Jobs []string `envconfig:"DISHDASH_CRON_JOBS"`
}

func (db *DBConfig) ensureDSN() error {
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
