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
	JWT          JWTConfig
	FeatureFlags FeatureFlagsConfig
	Idempotency  IdempotencyConfig
	Delivery     DeliveryConfig
	Email        EmailConfig
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
	Env          string `envconfig:"NEWSLETTER_APP_ENV" required:"true"`
	Port         string `envconfig:"NEWSLETTER_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"NEWSLETTER_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"NEWSLETTER_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"NEWSLETTER_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"NEWSLETTER_DB_DSN"`
	Driver string `envconfig:"NEWSLETTER_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"NEWSLETTER_DB_HOST"`
	LegacyPort     int    `envconfig:"NEWSLETTER_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"NEWSLETTER_DB_USER"`
	LegacyPassword string `envconfig:"NEWSLETTER_DB_PASSWORD"`
	LegacyName     string `envconfig:"NEWSLETTER_DB_NAME"`
	LegacySSLMode  string `envconfig:"NEWSLETTER_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"NEWSLETTER_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"NEWSLETTER_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"NEWSLETTER_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"NEWSLETTER_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

// IsSQLite reports whether the configured driver is the embedded sqlite backend.
func (db DBConfig) IsSQLite() bool {
	return strings.EqualFold(strings.TrimSpace(db.Driver), DBDriverSQLite)
}

// Redis is optional for the API (it only backs the replay cache) and required by the cron worker.
type RedisConfig struct {
	URL          string        `envconfig:"NEWSLETTER_REDIS_URL"`
	Address      string        `envconfig:"NEWSLETTER_REDIS_ADDR"`
	Password     string        `envconfig:"NEWSLETTER_REDIS_PASSWORD"`
	DB           int           `envconfig:"NEWSLETTER_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"NEWSLETTER_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"NEWSLETTER_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"NEWSLETTER_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"NEWSLETTER_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"NEWSLETTER_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// Enabled reports whether any redis endpoint was configured.
func (r RedisConfig) Enabled() bool {
	return strings.TrimSpace(r.URL) != "" || strings.TrimSpace(r.Address) != ""
}

type JWTConfig struct {
	Secret            string `envconfig:"NEWSLETTER_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"NEWSLETTER_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"NEWSLETTER_JWT_EXPIRATION_MINUTES" required:"true"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"NEWSLETTER_AUTO_MIGRATE" default:"false"`
}

type IdempotencyConfig struct {
	CacheTTL     time.Duration `envconfig:"NEWSLETTER_IDEMPOTENCY_CACHE_TTL" default:"24h"`
	RetentionTTL time.Duration `envconfig:"NEWSLETTER_IDEMPOTENCY_RETENTION" default:"720h"`
}

type DeliveryConfig struct {
	Concurrency        int           `envconfig:"NEWSLETTER_DELIVERY_CONCURRENCY" default:"4"`
	EmptyQueueInterval time.Duration `envconfig:"NEWSLETTER_DELIVERY_EMPTY_QUEUE_INTERVAL" default:"10s"`
	ErrorInterval      time.Duration `envconfig:"NEWSLETTER_DELIVERY_ERROR_INTERVAL" default:"1s"`
	SendTimeout        time.Duration `envconfig:"NEWSLETTER_DELIVERY_SEND_TIMEOUT" default:"10s"`
	MetricsAddr        string        `envconfig:"NEWSLETTER_DELIVERY_METRICS_ADDR" default:":9102"`
}

type EmailConfig struct {
	BaseURL            string        `envconfig:"NEWSLETTER_EMAIL_BASE_URL" required:"true"`
	SenderEmail        string        `envconfig:"NEWSLETTER_EMAIL_SENDER" required:"true"`
	AuthorizationToken string        `envconfig:"NEWSLETTER_EMAIL_AUTHORIZATION_TOKEN"`
	Timeout            time.Duration `envconfig:"NEWSLETTER_EMAIL_TIMEOUT" default:"10s"`
}

type CronConfig struct {
	Interval   time.Duration `envconfig:"NEWSLETTER_CRON_INTERVAL" default:"24h"`
	JobTimeout time.Duration `envconfig:"NEWSLETTER_CRON_JOB_TIMEOUT" default:"10m"`
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
