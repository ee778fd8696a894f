package config

import (
	"os"
	"strings"

	"github.com/spf13/viper"
)

// readSecret reads a Docker secret from a file path specified by an env var
// with _FILE suffix. If FOO is already set directly, the file is skipped.
// If FOO_FILE is set, reads the file content and sets FOO.
func readSecret(envKey string) {
	if os.Getenv(envKey) != "" {
		return
	}
	fileKey := envKey + "_FILE"
	filePath := os.Getenv(fileKey)
	if filePath == "" {
		return
	}
	data, err := os.ReadFile(filePath)
	if err != nil {
		return
	}
	val := strings.TrimSpace(string(data))
	os.Setenv(envKey, val)
}

type Config struct {
	Server      ServerConfig
	Redis       RedisConfig
	JWT         JWTConfig
	RateLimit   RateLimitConfig
	R2          R2Config
	Replicate   ReplicateConfig
	Custom      CustomConfig
	Webhook     WebhookConfig
	Recovery    RecoveryConfig
	Materialize MaterializeConfig
	Gateway     GatewayConfig
	Operator    OperatorConfig
}

type ServerConfig struct {
	Port      string
	Env       string
	LogLevel  string
	ApiDomain string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type JWTConfig struct {
	Secret     string
	Expiration int // hours
}

type RateLimitConfig struct {
	JobsPerHour  int
	StatusPerMin int
}

type R2Config struct {
	AccountID       string
	AccessKeyID     string
	SecretAccessKey string
	BucketName      string
	PublicURL       string
}

type ReplicateConfig struct {
	APIToken string
	BaseURL  string
}

// CustomConfig points at the self-hosted inference service.
type CustomConfig struct {
	BaseURL string
	APIKey  string
}

// WebhookConfig holds per-provider shared secrets for HMAC verification.
type WebhookConfig struct {
	ReplicateSecret string
	CustomSecret    string
}

// Secrets returns provider name → shared secret for the webhook verifier.
func (w WebhookConfig) Secrets() map[string]string {
	return map[string]string{
		"replicate": w.ReplicateSecret,
		"custom":    w.CustomSecret,
	}
}

type RecoveryConfig struct {
	QueuedStaleMin  int // minutes before a queued job is considered stale
	RunningStaleMin int // minutes before a running job is considered stale
	StemTimeoutSec  int // inline-heal threshold for custom stem jobs
	MaxAttempts     int // retry ceiling including the first attempt
}

type MaterializeConfig struct {
	Concurrency      int
	ArtifactTTLHours int
	FetchTimeoutSec  int
}

type GatewayConfig struct {
	Enabled bool
}

type OperatorConfig struct {
	Token string
}

func Load() (*Config, error) {
	// Read Docker Swarm secrets from _FILE env vars before Viper binds
	readSecret("REDIS_PASSWORD")
	readSecret("JWT_SECRET")
	readSecret("R2_ACCOUNT_ID")
	readSecret("R2_ACCESS_KEY_ID")
	readSecret("R2_SECRET_ACCESS_KEY")
	readSecret("REPLICATE_API_TOKEN")
	readSecret("CUSTOM_API_KEY")
	readSecret("WEBHOOK_SECRET_REPLICATE")
	readSecret("WEBHOOK_SECRET_CUSTOM")
	readSecret("OPERATOR_TOKEN")

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	// Environment variables
	viper.AutomaticEnv()

	// Bind environment variables with underscores to nested config keys
	_ = viper.BindEnv("server.port", "SERVER_PORT")
	_ = viper.BindEnv("server.env", "SERVER_ENV")
	_ = viper.BindEnv("server.log_level", "LOG_LEVEL")
	_ = viper.BindEnv("server.api_domain", "API_DOMAIN")
	_ = viper.BindEnv("redis.addr", "REDIS_ADDR")
	_ = viper.BindEnv("redis.password", "REDIS_PASSWORD")
	_ = viper.BindEnv("redis.db", "REDIS_DB")
	_ = viper.BindEnv("jwt.secret", "JWT_SECRET")
	_ = viper.BindEnv("jwt.expiration", "JWT_EXPIRATION")
	_ = viper.BindEnv("ratelimit.jobs_per_hour", "RATELIMIT_JOBS_PER_HOUR")
	_ = viper.BindEnv("ratelimit.status_per_min", "RATELIMIT_STATUS_PER_MIN")
	_ = viper.BindEnv("r2.account_id", "R2_ACCOUNT_ID")
	_ = viper.BindEnv("r2.access_key_id", "R2_ACCESS_KEY_ID")
	_ = viper.BindEnv("r2.secret_access_key", "R2_SECRET_ACCESS_KEY")
	_ = viper.BindEnv("r2.bucket_name", "R2_BUCKET_NAME")
	_ = viper.BindEnv("r2.public_url", "R2_PUBLIC_URL")
	_ = viper.BindEnv("replicate.api_token", "REPLICATE_API_TOKEN")
	_ = viper.BindEnv("replicate.base_url", "REPLICATE_BASE_URL")
	_ = viper.BindEnv("custom.base_url", "CUSTOM_BASE_URL")
	_ = viper.BindEnv("custom.api_key", "CUSTOM_API_KEY")
	_ = viper.BindEnv("webhook.replicate_secret", "WEBHOOK_SECRET_REPLICATE")
	_ = viper.BindEnv("webhook.custom_secret", "WEBHOOK_SECRET_CUSTOM")
	_ = viper.BindEnv("recovery.queued_stale_min", "RECOVERY_QUEUED_STALE_MIN")
	_ = viper.BindEnv("recovery.running_stale_min", "RECOVERY_RUNNING_STALE_MIN")
	_ = viper.BindEnv("recovery.stem_timeout_sec", "RECOVERY_STEM_TIMEOUT_SEC")
	_ = viper.BindEnv("recovery.max_attempts", "RECOVERY_MAX_ATTEMPTS")
	_ = viper.BindEnv("materialize.concurrency", "MATERIALIZE_CONCURRENCY")
	_ = viper.BindEnv("materialize.artifact_ttl_hours", "MATERIALIZE_ARTIFACT_TTL_HOURS")
	_ = viper.BindEnv("materialize.fetch_timeout_sec", "MATERIALIZE_FETCH_TIMEOUT_SEC")
	_ = viper.BindEnv("gateway.enabled", "GATEWAY_ENABLED")
	_ = viper.BindEnv("operator.token", "OPERATOR_TOKEN")

	// Defaults
	viper.SetDefault("server.port", "8000")
	viper.SetDefault("server.env", "development")
	viper.SetDefault("server.log_level", "info")
	viper.SetDefault("redis.addr", "localhost:6379")
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("jwt.secret", "change-me-in-production")
	viper.SetDefault("jwt.expiration", 24)
	viper.SetDefault("ratelimit.jobs_per_hour", 30)
	viper.SetDefault("ratelimit.status_per_min", 120)

	// Replicate defaults
	viper.SetDefault("replicate.base_url", "https://api.replicate.com")

	// Custom inference service defaults
	viper.SetDefault("custom.base_url", "http://localhost:8084")

	// Recovery defaults
	viper.SetDefault("recovery.queued_stale_min", 15)
	viper.SetDefault("recovery.running_stale_min", 30)
	viper.SetDefault("recovery.stem_timeout_sec", 210)
	viper.SetDefault("recovery.max_attempts", 3)

	// Materializer defaults
	viper.SetDefault("materialize.concurrency", 4)
	viper.SetDefault("materialize.artifact_ttl_hours", 72)
	viper.SetDefault("materialize.fetch_timeout_sec", 120)

	// Gateway defaults
	viper.SetDefault("gateway.enabled", false)

	// Try to read config file (optional)
	_ = viper.ReadInConfig()

	cfg := &Config{
		Server: ServerConfig{
			Port:      viper.GetString("server.port"),
			Env:       viper.GetString("server.env"),
			LogLevel:  viper.GetString("server.log_level"),
			ApiDomain: viper.GetString("server.api_domain"),
		},
		Redis: RedisConfig{
			Addr:     viper.GetString("redis.addr"),
			Password: viper.GetString("redis.password"),
			DB:       viper.GetInt("redis.db"),
		},
		JWT: JWTConfig{
			Secret:     viper.GetString("jwt.secret"),
			Expiration: viper.GetInt("jwt.expiration"),
		},
		RateLimit: RateLimitConfig{
			JobsPerHour:  viper.GetInt("ratelimit.jobs_per_hour"),
			StatusPerMin: viper.GetInt("ratelimit.status_per_min"),
		},
		R2: R2Config{
			AccountID:       viper.GetString("r2.account_id"),
			AccessKeyID:     viper.GetString("r2.access_key_id"),
			SecretAccessKey: viper.GetString("r2.secret_access_key"),
			BucketName:      viper.GetString("r2.bucket_name"),
			PublicURL:       viper.GetString("r2.public_url"),
		},
		Replicate: ReplicateConfig{
			APIToken: viper.GetString("replicate.api_token"),
			BaseURL:  viper.GetString("replicate.base_url"),
		},
		Custom: CustomConfig{
			BaseURL: viper.GetString("custom.base_url"),
			APIKey:  viper.GetString("custom.api_key"),
		},
		Webhook: WebhookConfig{
			ReplicateSecret: viper.GetString("webhook.replicate_secret"),
			CustomSecret:    viper.GetString("webhook.custom_secret"),
		},
		Recovery: RecoveryConfig{
			QueuedStaleMin:  viper.GetInt("recovery.queued_stale_min"),
			RunningStaleMin: viper.GetInt("recovery.running_stale_min"),
			StemTimeoutSec:  viper.GetInt("recovery.stem_timeout_sec"),
			MaxAttempts:     viper.GetInt("recovery.max_attempts"),
		},
		Materialize: MaterializeConfig{
			Concurrency:      viper.GetInt("materialize.concurrency"),
			ArtifactTTLHours: viper.GetInt("materialize.artifact_ttl_hours"),
			FetchTimeoutSec:  viper.GetInt("materialize.fetch_timeout_sec"),
		},
		Gateway: GatewayConfig{
			Enabled: viper.GetBool("gateway.enabled"),
		},
		Operator: OperatorConfig{
			Token: viper.GetString("operator.token"),
		},
	}

	return cfg, nil
}
