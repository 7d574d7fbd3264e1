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
	HTTP         HTTPConfig
	RateLimit    RateLimitConfig
	JWT          JWTConfig
	Password     PasswordConfig
	FeatureFlags FeatureFlagsConfig
	GCP          GCPConfig
	Storage      StorageConfig
	Gallery      GalleryConfig
	PubSub       PubSubConfig
	Outbox       OutboxConfig
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
	if err := cfg.Storage.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"SHUTTERDESK_APP_ENV" required:"true"`
	Port         string `envconfig:"SHUTTERDESK_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"SHUTTERDESK_LOG_LEVEL" default:"info"`
	LogFormat    string `envconfig:"SHUTTERDESK_LOG_FORMAT" default:"json"`
	LogWarnStack bool   `envconfig:"SHUTTERDESK_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"SHUTTERDESK_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN string `envconfig:"SHUTTERDESK_DB_DSN"`

	LegacyHost     string `envconfig:"SHUTTERDESK_DB_HOST"`
	LegacyPort     int    `envconfig:"SHUTTERDESK_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"SHUTTERDESK_DB_USER"`
	LegacyPassword string `envconfig:"SHUTTERDESK_DB_PASSWORD"`
	LegacyName     string `envconfig:"SHUTTERDESK_DB_NAME"`
	LegacySSLMode  string `envconfig:"SHUTTERDESK_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"SHUTTERDESK_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"SHUTTERDESK_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"SHUTTERDESK_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"SHUTTERDESK_DB_CONN_MAX_IDLE_TIME" default:"10m"`

	// TxRetries reruns a transaction that lost a serialization or deadlock race.
	TxRetries int           `envconfig:"SHUTTERDESK_DB_TX_RETRIES" default:"2"`
	SlowQuery time.Duration `envconfig:"SHUTTERDESK_DB_SLOW_QUERY" default:"500ms"`
}

type RedisConfig struct {
	URL          string        `envconfig:"SHUTTERDESK_REDIS_URL"`
	Address      string        `envconfig:"SHUTTERDESK_REDIS_ADDR"`
	Password     string        `envconfig:"SHUTTERDESK_REDIS_PASSWORD"`
	DB           int           `envconfig:"SHUTTERDESK_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"SHUTTERDESK_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"SHUTTERDESK_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"SHUTTERDESK_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"SHUTTERDESK_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"SHUTTERDESK_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type HTTPConfig struct {
	CORSOrigins       []string      `envconfig:"SHUTTERDESK_HTTP_CORS_ORIGINS" default:"http://localhost:3000"`
	ReadHeaderTimeout time.Duration `envconfig:"SHUTTERDESK_HTTP_READ_HEADER_TIMEOUT" default:"10s"`
	ShutdownTimeout   time.Duration `envconfig:"SHUTTERDESK_HTTP_SHUTDOWN_TIMEOUT" default:"30s"`
}

// RateLimitConfig throttles the unauthenticated gallery surface. Password
// limits apply per client and slug so guessing an access code is slow.
type RateLimitConfig struct {
	PublicWindow         time.Duration `envconfig:"SHUTTERDESK_RATE_LIMIT_PUBLIC_WINDOW" default:"1m"`
	PublicIPLimit        int           `envconfig:"SHUTTERDESK_RATE_LIMIT_PUBLIC_IP_LIMIT" default:"120"`
	PasswordAttemptLimit int           `envconfig:"SHUTTERDESK_RATE_LIMIT_PASSWORD_ATTEMPTS" default:"10"`
}

// JWTConfig describes the tokens issued by the studio's identity provider.
// Only verification happens here; minting exists for tooling and tests.
type JWTConfig struct {
	Secret            string `envconfig:"SHUTTERDESK_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"SHUTTERDESK_JWT_ISSUER"`
	ExpirationMinutes int    `envconfig:"SHUTTERDESK_JWT_EXPIRATION_MINUTES" default:"60"`
}

type PasswordConfig struct {
	ArgonMemoryKB    int `envconfig:"SHUTTERDESK_ARGON_MEMORY_KB" default:"65536"`
	ArgonTime        int `envconfig:"SHUTTERDESK_ARGON_TIME" default:"3"`
	ArgonParallelism int `envconfig:"SHUTTERDESK_ARGON_PARALLELISM" default:"2"`
	ArgonSaltLen     int `envconfig:"SHUTTERDESK_ARGON_SALT_LEN" default:"16"`
	ArgonKeyLen      int `envconfig:"SHUTTERDESK_ARGON_KEY_LEN" default:"32"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"SHUTTERDESK_AUTO_MIGRATE" default:"false"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"SHUTTERDESK_GCP_PROJECT_ID"`
	CredentialsJSON        string `envconfig:"SHUTTERDESK_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"SHUTTERDESK_GOOGLE_APPLICATION_CREDENTIALS"`
}

// StorageConfig selects and configures the object store holding gallery images.
type StorageConfig struct {
	Driver        string `envconfig:"SHUTTERDESK_STORAGE_DRIVER" default:"supabase"`
	Bucket        string `envconfig:"SHUTTERDESK_STORAGE_BUCKET" required:"true"`
	PublicBaseURL string `envconfig:"SHUTTERDESK_STORAGE_PUBLIC_BASE_URL"`
	Supabase      SupabaseStorageConfig
	S3            S3StorageConfig
	MinIO         MinIOStorageConfig
}

type SupabaseStorageConfig struct {
	URL        string `envconfig:"SHUTTERDESK_SUPABASE_URL"`
	ServiceKey string `envconfig:"SHUTTERDESK_SUPABASE_SERVICE_ROLE_KEY"`
}

type S3StorageConfig struct {
	Endpoint        string `envconfig:"SHUTTERDESK_S3_ENDPOINT"`
	Region          string `envconfig:"SHUTTERDESK_S3_REGION" default:"us-east-1"`
	AccessKeyID     string `envconfig:"SHUTTERDESK_S3_ACCESS_KEY_ID"`
	SecretAccessKey string `envconfig:"SHUTTERDESK_S3_SECRET_ACCESS_KEY"`
	UsePathStyle    bool   `envconfig:"SHUTTERDESK_S3_USE_PATH_STYLE" default:"true"`
}

type MinIOStorageConfig struct {
	Endpoint     string `envconfig:"SHUTTERDESK_MINIO_ENDPOINT"`
	AccessKey    string `envconfig:"SHUTTERDESK_MINIO_ACCESS_KEY"`
	SecretKey    string `envconfig:"SHUTTERDESK_MINIO_SECRET_KEY"`
	UseSSL       bool   `envconfig:"SHUTTERDESK_MINIO_USE_SSL" default:"false"`
	CreateBucket bool   `envconfig:"SHUTTERDESK_MINIO_CREATE_BUCKET" default:"false"`
}

func (s StorageConfig) validate() error {
	switch strings.ToLower(strings.TrimSpace(s.Driver)) {
	case StorageDriverSupabase:
		if s.Supabase.URL == "" || s.Supabase.ServiceKey == "" {
			return fmt.Errorf("%s and %s are required for the supabase storage driver", EnvSupabaseURL, EnvSupabaseServiceKey)
		}
	case StorageDriverS3:
		if s.S3.AccessKeyID == "" || s.S3.SecretAccessKey == "" {
			return fmt.Errorf("%s and %s are required for the s3 storage driver", EnvS3AccessKeyID, EnvS3SecretAccessKey)
		}
	case StorageDriverMinIO:
		if s.MinIO.Endpoint == "" {
			return fmt.Errorf("%s is required for the minio storage driver", EnvMinIOEndpoint)
		}
	case StorageDriverGCS:
	default:
		return fmt.Errorf("unsupported storage driver %q", s.Driver)
	}
	return nil
}

// GalleryConfig tunes the publishing pipeline and public delivery.
type GalleryConfig struct {
	PublicBaseURL      string        `envconfig:"SHUTTERDESK_GALLERY_PUBLIC_BASE_URL"`
	DeliveryPath       string        `envconfig:"SHUTTERDESK_GALLERY_DELIVERY_PATH" default:"gallery"`
	MaxFiles           int           `envconfig:"SHUTTERDESK_GALLERY_MAX_FILES" default:"500"`
	MaxUploadMB        int           `envconfig:"SHUTTERDESK_GALLERY_MAX_UPLOAD_MB" default:"50"`
	UploadTimeout      time.Duration `envconfig:"SHUTTERDESK_GALLERY_UPLOAD_TIMEOUT" default:"2m"`
	SlugReservationTTL time.Duration `envconfig:"SHUTTERDESK_GALLERY_SLUG_RESERVATION_TTL" default:"15m"`
	PublicCacheTTL     time.Duration `envconfig:"SHUTTERDESK_GALLERY_PUBLIC_CACHE_TTL" default:"2m"`
}

// MaxUploadBytes converts MaxUploadMB to bytes; zero means unlimited.
func (g GalleryConfig) MaxUploadBytes() int64 {
	if g.MaxUploadMB <= 0 {
		return 0
	}
	return int64(g.MaxUploadMB) << 20
}

type PubSubConfig struct {
	GalleryEventsTopic         string        `envconfig:"SHUTTERDESK_PUBSUB_GALLERY_EVENTS_TOPIC" default:"sd-gallery-events"`
	GalleryCleanupSubscription string        `envconfig:"SHUTTERDESK_PUBSUB_GALLERY_CLEANUP_SUBSCRIPTION" default:"sd-gallery-cleanup"`
	EventDedupeTTL             time.Duration `envconfig:"SHUTTERDESK_PUBSUB_EVENT_DEDUPE_TTL" default:"168h"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"SHUTTERDESK_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"SHUTTERDESK_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"SHUTTERDESK_OUTBOX_MAX_ATTEMPTS" default:"10"`
	RetentionDays  int `envconfig:"SHUTTERDESK_OUTBOX_RETENTION_DAYS" default:"30"`
	// pending rows above this make the retention job warn that the relay lags
	BacklogWarn int `envconfig:"SHUTTERDESK_OUTBOX_BACKLOG_WARN" default:"500"`
}

type CronConfig struct {
	Interval          time.Duration `envconfig:"SHUTTERDESK_CRON_INTERVAL" default:"1h"`
	OrphanBatchSize   int           `envconfig:"SHUTTERDESK_CRON_ORPHAN_BATCH_SIZE" default:"200"`
	OrphanMaxAttempts int           `envconfig:"SHUTTERDESK_CRON_ORPHAN_MAX_ATTEMPTS" default:"10"`
	JobTimeout        time.Duration `envconfig:"SHUTTERDESK_CRON_JOB_TIMEOUT" default:"15m"`
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
