package config

import (
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/sirupsen/logrus"
)

type Config struct {
	HTTPPort string `env:"HTTP_PORT" envDefault:"8080"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	DBType     string `env:"DB_TYPE" envDefault:"sqlite"`
	DSNURL     string `env:"DSN_URL" envDefault:""`
	DBUser     string `env:"DB_USER" envDefault:""`
	DBPassword string `env:"DB_PASSWORD" envDefault:""`
	DBAddr     string `env:"DB_ADDR" envDefault:""`
	DBName     string `env:"DB_NAME" envDefault:"facechanger"`
	DBPath     string `env:"DB_PATH" envDefault:"datas/facechanger.db"`
	DBPort     string `env:"DB_PORT" envDefault:"3306"`

	StorageType          string        `env:"STORAGE_TYPE" envDefault:"local"`
	StorageLocalDir      string        `env:"STORAGE_LOCAL_DIR" envDefault:"datas/objects"`
	StoragePublicBaseURL string        `env:"STORAGE_PUBLIC_BASE_URL" envDefault:"/files"`
	StoragePresignExpiry time.Duration `env:"STORAGE_PRESIGN_EXPIRY" envDefault:"1h"`

	// S3 兼容存储配置
	StorageS3Region          string `env:"STORAGE_S3_REGION"`
	StorageS3Bucket          string `env:"STORAGE_S3_BUCKET"`
	StorageS3Prefix          string `env:"STORAGE_S3_PREFIX"`
	StorageS3Endpoint        string `env:"STORAGE_S3_ENDPOINT"`
	StorageS3AccessKeyID     string `env:"STORAGE_S3_ACCESS_KEY_ID"`
	StorageS3SecretAccessKey string `env:"STORAGE_S3_SECRET_ACCESS_KEY"`
	StorageS3SessionToken    string `env:"STORAGE_S3_SESSION_TOKEN"`
	StorageS3ForcePathStyle  bool   `env:"STORAGE_S3_FORCE_PATH_STYLE" envDefault:"false"`

	// 阿里云 OSS 存储配置
	StorageOSSEndpoint        string `env:"STORAGE_OSS_ENDPOINT"`
	StorageOSSBucket          string `env:"STORAGE_OSS_BUCKET"`
	StorageOSSPrefix          string `env:"STORAGE_OSS_PREFIX"`
	StorageOSSAccessKeyID     string `env:"STORAGE_OSS_ACCESS_KEY_ID"`
	StorageOSSAccessKeySecret string `env:"STORAGE_OSS_ACCESS_KEY_SECRET"`

	// 腾讯云 COS 存储配置
	StorageCOSBucketURL string `env:"STORAGE_COS_BUCKET_URL"`
	StorageCOSPrefix    string `env:"STORAGE_COS_PREFIX"`
	StorageCOSSecretID  string `env:"STORAGE_COS_SECRET_ID"`
	StorageCOSSecretKey string `env:"STORAGE_COS_SECRET_KEY"`

	// Cloudflare R2 存储配置
	StorageR2AccountID       string `env:"STORAGE_R2_ACCOUNT_ID"`
	StorageR2Endpoint        string `env:"STORAGE_R2_ENDPOINT"`
	StorageR2Region          string `env:"STORAGE_R2_REGION" envDefault:"auto"`
	StorageR2Bucket          string `env:"STORAGE_R2_BUCKET"`
	StorageR2Prefix          string `env:"STORAGE_R2_PREFIX"`
	StorageR2AccessKeyID     string `env:"STORAGE_R2_ACCESS_KEY_ID"`
	StorageR2SecretAccessKey string `env:"STORAGE_R2_SECRET_ACCESS_KEY"`

	// 推理服务
	InferenceDriver       string `env:"INFERENCE_DRIVER" envDefault:"replicate"`
	ReplicateAPIToken     string `env:"REPLICATE_API_TOKEN" envDefault:""`
	ReplicateBaseURL      string `env:"REPLICATE_BASE_URL" envDefault:"https://api.replicate.com"`
	ReplicateModelVersion string `env:"REPLICATE_MODEL_VERSION" envDefault:""`
	FalAPIKey             string `env:"FAL_KEY" envDefault:""`
	FalModel              string `env:"FAL_MODEL" envDefault:""`

	PollInterval   time.Duration `env:"POLL_INTERVAL" envDefault:"2s"`
	PollTimeout    time.Duration `env:"POLL_TIMEOUT" envDefault:"10m"`
	PollBackoff    bool          `env:"POLL_BACKOFF" envDefault:"false"`
	PollBackoffMax time.Duration `env:"POLL_BACKOFF_MAX" envDefault:"30s"`

	// 头部定位级联
	HeadMaskMargin          float64 `env:"HEAD_MASK_MARGIN" envDefault:"0.30"`
	HeadMaskMinSize         int     `env:"HEAD_MASK_MIN_SIZE" envDefault:"0"`
	HeadFromBodyRatio       float64 `env:"HEAD_FROM_BODY_RATIO" envDefault:"0.20"`
	HeadPersonWidthScale    float64 `env:"HEAD_PERSON_WIDTH_SCALE" envDefault:"0.55"`
	HeadPersonHeadTopFrac   float64 `env:"HEAD_PERSON_HEAD_TOP_FRAC" envDefault:"0.23"`
	HeadPersonExtraUpFrac   float64 `env:"HEAD_PERSON_EXTRA_UP_FRAC" envDefault:"0.15"`
	HeadFaceMinConfidence   float64 `env:"HEAD_FACE_CONF" envDefault:"0.40"`
	HeadPersonMinConfidence float64 `env:"HEAD_PERSON_CONF" envDefault:"0.35"`
	VisionURL               string  `env:"VISION_URL" envDefault:""`

	SegmentMode         string  `env:"SEGMENT_MODE" envDefault:"off"`
	SegmentModelVersion string  `env:"SEGMENT_MODEL_VERSION" envDefault:""`
	SegmentPrompt       string  `env:"SEGMENT_PROMPT" envDefault:"Head"`
	SegmentThreshold    int     `env:"SEGMENT_THRESHOLD" envDefault:"127"`
	SegmentExtendUp     float64 `env:"SEGMENT_EXTEND_UP" envDefault:"0.20"`
	SegmentExtendDown   float64 `env:"SEGMENT_EXTEND_DOWN" envDefault:"0.10"`

	DefaultTriggerToken   string `env:"DEFAULT_TRIGGER_TOKEN" envDefault:"tnkfwm1"`
	DefaultPromptTemplate string `env:"DEFAULT_PROMPT_TEMPLATE" envDefault:"a photo of {token} female model"`

	// 工作池与队列
	WorkerCount int    `env:"WORKER_COUNT" envDefault:"4"`
	QueueType   string `env:"QUEUE_TYPE" envDefault:"memory"`
	QueueSize   int    `env:"QUEUE_SIZE" envDefault:"256"`
	RedisURL    string `env:"REDIS_URL" envDefault:"redis://localhost:6379/0"`
	QueueName   string `env:"QUEUE_NAME" envDefault:"facechanger:jobs"`

	JWTSecret            string `env:"JWT_SECRET" envDefault:"dev-secret-change-me"`
	JWTIssuer            string `env:"JWT_ISSUER" envDefault:"facechanger"`
	JWTExpirationMinutes int    `env:"JWT_EXPIRATION_MINUTES" envDefault:"1440"`
}

func ParseConfig() (Config, error) {
	var Conf Config
	err := env.Parse(&Conf)
	if err != nil {
		logrus.WithError(err).Error("env.Parse error")
		return Config{}, err
	}
	logrus.Debugf("%#v\n", Conf)
	return Conf, nil
}
