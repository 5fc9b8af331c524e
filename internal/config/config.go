package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

type HTTPConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

type PostgresConfig struct {
	DSN             string
	MaxOpen         int
	MaxIdle         int
	ConnMaxLifetime time.Duration
	Migrate         bool
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type StorageConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
	Region    string
}

type SecurityConfig struct {
	JWTSecret        string
	SignatureSecret  string
	RequireSignature bool
	SignatureMaxSkew time.Duration
}

// WorkflowConfig holds the delivery workflow limits.
type WorkflowConfig struct {
	ApprovedCap   int
	RetentionCap  int
	UploadURLTTL  time.Duration
	ViewURLTTL    time.Duration
	SubmitLockTTL time.Duration
	MaxFiles      int
	MaxFileBytes  int64
}

type QueueConfig struct {
	Stream        string
	Group         string
	Consumer      string
	ClaimInterval time.Duration
	MaxDeliveries int
}

type NotifyConfig struct {
	WebhookURL string
	Timeout    time.Duration
}

type JobsConfig struct {
	PurgeCron      string
	PurgeBatchSize int
	PurgeGrace     time.Duration
}

type LoggingConfig struct {
	Level string
}

type AppConfig struct {
	Environment      string
	HTTP             HTTPConfig
	Postgres         PostgresConfig
	Redis            RedisConfig
	Storage          StorageConfig
	Security         SecurityConfig
	Workflow         WorkflowConfig
	Queue            QueueConfig
	Notify           NotifyConfig
	Jobs             JobsConfig
	Logging          LoggingConfig
	AllowCORSOrigins []string
}

const envPrefix = "GIGDELIVERY"

func Load() (*AppConfig, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v := newViper()
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("load config file: %w", err)
		}
	}

	return decode(v)
}

// newViper reads GIGDELIVERY_<SECTION>_<KEY> variables, e.g.
// GIGDELIVERY_POSTGRES_DSN for postgres.dsn.
func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("../config")

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)
	return v
}

func decode(v *viper.Viper) (*AppConfig, error) {
	var cfg AppConfig
	if err := v.Unmarshal(&cfg, func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *AppConfig) Validate() error {
	if c.Workflow.ApprovedCap < 1 {
		return fmt.Errorf("workflow.approvedcap must be positive, got %d", c.Workflow.ApprovedCap)
	}
	if c.Workflow.RetentionCap < 1 {
		return fmt.Errorf("workflow.retentioncap must be positive, got %d", c.Workflow.RetentionCap)
	}
	if c.Security.RequireSignature && c.Security.SignatureSecret == "" {
		return errors.New("security.signaturesecret is required when signatures are enforced")
	}
	if c.Environment == "production" && c.Security.JWTSecret == "" {
		return errors.New("security.jwtsecret is required in production")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "development")
	v.SetDefault("allowcorsorigins", "")
	v.SetDefault("logging.level", "")

	v.SetDefault("http.host", "0.0.0.0")
	v.SetDefault("http.port", 8080)
	v.SetDefault("http.readtimeout", "10s")
	v.SetDefault("http.writetimeout", "15s")
	v.SetDefault("http.idletimeout", "60s")

	v.SetDefault("postgres.dsn", "")
	v.SetDefault("postgres.maxopen", 30)
	v.SetDefault("postgres.maxidle", 10)
	v.SetDefault("postgres.connmaxlifetime", "30m")
	v.SetDefault("postgres.migrate", true)

	v.SetDefault("redis.addr", "127.0.0.1:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("storage.endpoint", "")
	v.SetDefault("storage.accesskey", "")
	v.SetDefault("storage.secretkey", "")
	v.SetDefault("storage.bucket", "gig-deliveries")
	v.SetDefault("storage.usessl", false)
	v.SetDefault("storage.region", "us-east-1")

	v.SetDefault("security.jwtsecret", "")
	v.SetDefault("security.signaturesecret", "")
	v.SetDefault("security.requiresignature", false)
	v.SetDefault("security.signaturemaxskew", "5m")

	v.SetDefault("workflow.approvedcap", 2)
	v.SetDefault("workflow.retentioncap", 3)
	v.SetDefault("workflow.uploadurlttl", "15m")
	v.SetDefault("workflow.viewurlttl", "10m")
	v.SetDefault("workflow.submitlockttl", "30s")
	v.SetDefault("workflow.maxfiles", 10)
	v.SetDefault("workflow.maxfilebytes", int64(2<<30)) // 2 GiB

	v.SetDefault("queue.stream", "delivery:events")
	v.SetDefault("queue.group", "delivery-workers")
	v.SetDefault("queue.consumer", "worker-1")
	v.SetDefault("queue.claiminterval", "30s")
	v.SetDefault("queue.maxdeliveries", 5)

	v.SetDefault("notify.webhookurl", "")
	v.SetDefault("notify.timeout", "5s")

	v.SetDefault("jobs.purgecron", "0 */5 * * * *")
	v.SetDefault("jobs.purgebatchsize", 100)
	v.SetDefault("jobs.purgegrace", "1m")
}
