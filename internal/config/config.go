package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"

	"github.com/langchou/fordpass/internal/api/fordpass"
)

// 令牌存储后端
const (
	TokenBackendFile     = "file"
	TokenBackendPostgres = "postgres"
)

type Config struct {
	// Server
	ServerPort string `validate:"required,numeric"`
	Debug      bool

	// FordPass 账号
	Username string `validate:"required"`
	Password string `validate:"required"`
	VIN      string `validate:"required,len=17,alphanum"`
	Region   string `validate:"required,region"`

	// 令牌持久化
	SaveToken    bool
	TokenBackend string `validate:"oneof=file postgres"`
	TokenFile    string `validate:"required_if=TokenBackend file"`
	DatabaseURL  string `validate:"required_if=TokenBackend postgres"`

	// 请求与轮询
	HTTPTimeout         time.Duration `validate:"gt=0"`
	CommandPollInterval time.Duration `validate:"gt=0"`
	CommandMaxPolls     int           `validate:"gte=0"`

	// 状态快照在多个调用方之间共享的时长，0 表示每次都请求
	StatusCacheTTL time.Duration `validate:"gte=0"`
}

func Load() (*Config, error) {
	// 尝试加载 .env 文件（可选）
	_ = godotenv.Load()

	cfg := &Config{
		ServerPort:          getEnv("PORT", "4000"),
		Debug:               getEnvBool("DEBUG", false),
		Username:            getEnv("FORDPASS_USERNAME", ""),
		Password:            getEnv("FORDPASS_PASSWORD", ""),
		VIN:                 getEnv("FORDPASS_VIN", ""),
		Region:              getEnv("FORDPASS_REGION", string(fordpass.RegionNorthAmerica)),
		SaveToken:           getEnvBool("SAVE_TOKEN", true),
		TokenBackend:        getEnv("TOKEN_BACKEND", TokenBackendFile),
		TokenFile:           getEnv("TOKEN_FILE", fordpass.DefaultTokenFile),
		DatabaseURL:         getEnv("DATABASE_URL", ""),
		HTTPTimeout:         getEnvDuration("HTTP_TIMEOUT", fordpass.DefaultHTTPTimeout),
		CommandPollInterval: getEnvDuration("COMMAND_POLL_INTERVAL", fordpass.DefaultPollInterval),
		CommandMaxPolls:     getEnvInt("COMMAND_MAX_POLLS", 0),
		StatusCacheTTL:      getEnvDuration("STATUS_CACHE_TTL", 0),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate 校验配置
func (c *Config) Validate() error {
	v := validator.New()
	if err := v.RegisterValidation("region", validateRegion); err != nil {
		return fmt.Errorf("register region validator: %w", err)
	}
	if err := v.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// Credentials 转换为会话凭据
func (c *Config) Credentials() fordpass.Credentials {
	return fordpass.Credentials{
		Username: c.Username,
		Password: c.Password,
		VIN:      c.VIN,
		Region:   fordpass.Region(c.Region),
	}
}

func validateRegion(fl validator.FieldLevel) bool {
	_, err := fordpass.Region(fl.Field().String()).ApplicationID()
	return err == nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		b, err := strconv.ParseBool(value)
		if err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		i, err := strconv.Atoi(value)
		if err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		d, err := time.ParseDuration(value)
		if err == nil {
			return d
		}
	}
	return defaultValue
}
