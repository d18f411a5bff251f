// Package config carrega a configuração do binário pacer a partir de arquivo
// (opcional), variáveis de ambiente PACER_* e flags, nessa ordem de precedência crescente.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

const EnvPrefix = "PACER"

type Config struct {
	Quota   QuotaConfig   `mapstructure:"quota"`
	Redis   RedisConfig   `mapstructure:"redis"`
	Gateway GatewayConfig `mapstructure:"gateway"`
	Stats   StatsConfig   `mapstructure:"stats"`
	Logger  LoggerConfig  `mapstructure:"logger"`
}

type QuotaConfig struct {
	Limit          int           `mapstructure:"limit" validate:"gt=0"`
	Reset          int           `mapstructure:"reset" validate:"gt=0"`
	AllowOnError   bool          `mapstructure:"allow_on_error"`
	KeyPrefix      string        `mapstructure:"key_prefix"`
	CommandTimeout time.Duration `mapstructure:"command_timeout" validate:"gte=0"`
	MaxInFlight    int           `mapstructure:"max_in_flight" validate:"gte=0"`
	AcquireTimeout time.Duration `mapstructure:"acquire_timeout" validate:"gte=0"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host" validate:"required"`
	Port     int    `mapstructure:"port" validate:"gt=0,lte=65535"`
	DB       int    `mapstructure:"db" validate:"gte=0"`
	Password string `mapstructure:"password"`
}

type GatewayConfig struct {
	ListenAddr       string        `mapstructure:"listen_addr" validate:"required"`
	UpstreamURL      string        `mapstructure:"upstream_url" validate:"omitempty,url"`
	KeyHeader        string        `mapstructure:"key_header"`
	TrustXFF         bool          `mapstructure:"trust_xff"`
	IncludeUserAgent bool          `mapstructure:"include_user_agent"`
	RetryAfter       time.Duration `mapstructure:"retry_after" validate:"gte=0"`
	AddHeaders       bool          `mapstructure:"add_headers"`
}

type StatsConfig struct {
	Enabled   bool          `mapstructure:"enabled"`
	Prefix    string        `mapstructure:"prefix"`
	TTL       time.Duration `mapstructure:"ttl" validate:"gte=0"`
	Bucket    string        `mapstructure:"bucket" validate:"oneof=minute none"`
	TrackKeys bool          `mapstructure:"track_keys"`
}

type LoggerConfig struct {
	Level      string `mapstructure:"level" validate:"oneof=debug info warn warning error"`
	Format     string `mapstructure:"format" validate:"oneof=console json"`
	OutputPath string `mapstructure:"output_path"`
}

// New cria uma instância viper com defaults, env PACER_* e, se informado,
// o arquivo path. Sem path, procura pacer.yaml em ./ e ./configs (opcional).
func New(path string) (*viper.Viper, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		return v, nil
	}

	v.SetConfigName("pacer")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}
	return v, nil
}

// Load decodifica e valida a configuração de v.
func Load(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	// Quota defaults (mesmos do ratelimit.DefaultOptions)
	v.SetDefault("quota.limit", 100)
	v.SetDefault("quota.reset", 3600)
	v.SetDefault("quota.allow_on_error", true)
	v.SetDefault("quota.key_prefix", "")
	v.SetDefault("quota.command_timeout", 0)
	v.SetDefault("quota.max_in_flight", 0)
	v.SetDefault("quota.acquire_timeout", 0)

	// Redis defaults
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.password", "")

	// Gateway defaults
	v.SetDefault("gateway.listen_addr", ":8080")
	v.SetDefault("gateway.upstream_url", "")
	v.SetDefault("gateway.key_header", "")
	v.SetDefault("gateway.trust_xff", false)
	v.SetDefault("gateway.include_user_agent", false)
	v.SetDefault("gateway.retry_after", time.Second)
	v.SetDefault("gateway.add_headers", true)

	// Stats defaults
	v.SetDefault("stats.enabled", false)
	v.SetDefault("stats.prefix", "pacer:stats")
	v.SetDefault("stats.ttl", 24*time.Hour)
	v.SetDefault("stats.bucket", "minute")
	v.SetDefault("stats.track_keys", false)

	// Logger defaults
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.output_path", "stderr")
}
