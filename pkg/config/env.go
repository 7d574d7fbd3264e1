package config

const EnvPrefix = "SHUTTERDESK"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	StorageDriverSupabase = "supabase"
	StorageDriverS3       = "s3"
	StorageDriverMinIO    = "minio"
	StorageDriverGCS      = "gcs"
)

const (
	EnvAppEnv             = "SHUTTERDESK_APP_ENV"
	EnvPort               = "SHUTTERDESK_APP_PORT"
	EnvDBDSN              = "SHUTTERDESK_DB_DSN"
	EnvDBHost             = "SHUTTERDESK_DB_HOST"
	EnvDBPort             = "SHUTTERDESK_DB_PORT"
	EnvDBUser             = "SHUTTERDESK_DB_USER"
	EnvDBPassword         = "SHUTTERDESK_DB_PASSWORD"
	EnvDBName             = "SHUTTERDESK_DB_NAME"
	EnvRedisURL           = "SHUTTERDESK_REDIS_URL"
	EnvJWTSecret          = "SHUTTERDESK_JWT_SECRET"
	EnvStorageDriver      = "SHUTTERDESK_STORAGE_DRIVER"
	EnvStorageBucket      = "SHUTTERDESK_STORAGE_BUCKET"
	EnvSupabaseURL        = "SHUTTERDESK_SUPABASE_URL"
	EnvSupabaseServiceKey = "SHUTTERDESK_SUPABASE_SERVICE_ROLE_KEY"
	EnvS3AccessKeyID      = "SHUTTERDESK_S3_ACCESS_KEY_ID"
	EnvS3SecretAccessKey  = "SHUTTERDESK_S3_SECRET_ACCESS_KEY"
	EnvMinIOEndpoint      = "SHUTTERDESK_MINIO_ENDPOINT"
	EnvGalleryDelivery    = "SHUTTERDESK_GALLERY_DELIVERY_PATH"
	EnvGalleryUploadTO    = "SHUTTERDESK_GALLERY_UPLOAD_TIMEOUT"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
