package webtoonquiz

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	AI      AIConfig      `mapstructure:"ai"`
	Storage StorageConfig `mapstructure:"storage"`
	Export  ExportConfig  `mapstructure:"export"`
	Log     LogConfig     `mapstructure:"log"`
}

type ServerConfig struct {
	Port          string        `mapstructure:"port"`
	Mode          string        `mapstructure:"mode"`
	SessionSecret string        `mapstructure:"session_secret"`
	SessionDir    string        `mapstructure:"session_dir"`
	GenerateEvery time.Duration `mapstructure:"generate_every"`
	GenerateBurst int           `mapstructure:"generate_burst"`
}

type AIConfig struct {
	Provider string        `mapstructure:"provider"`
	APIKey   string        `mapstructure:"api_key"`
	Model    string        `mapstructure:"model"`
	BaseURL  string        `mapstructure:"base_url"`
	Locale   string        `mapstructure:"locale"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

type StorageConfig struct {
	Type          string `mapstructure:"type"`
	SQLitePath    string `mapstructure:"sqlite_path"`
	RedisAddr     string `mapstructure:"redis_addr"`
	RedisPassword string `mapstructure:"redis_password"`
	RedisDB       int    `mapstructure:"redis_db"`
	Key           string `mapstructure:"key"`
}

type ExportConfig struct {
	Type           string `mapstructure:"type"`
	Dir            string `mapstructure:"dir"`
	MinioEndpoint  string `mapstructure:"minio_endpoint"`
	MinioAccessKey string `mapstructure:"minio_access_key"`
	MinioSecretKey string `mapstructure:"minio_secret_key"`
	MinioBucket    string `mapstructure:"minio_bucket"`
	MinioSecure    bool   `mapstructure:"minio_secure"`
}

type LogConfig struct {
	File           string `mapstructure:"file"`
	TranscriptFile string `mapstructure:"transcript_file"`
	Verbose        bool   `mapstructure:"verbose"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8180")
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.session_dir", "sessions")
	v.SetDefault("server.generate_every", 10*time.Second)
	v.SetDefault("server.generate_burst", 3)

	v.SetDefault("ai.provider", ProviderGemini)
	v.SetDefault("ai.model", DefaultGeminiModel)
	v.SetDefault("ai.locale", "Korean")
	v.SetDefault("ai.timeout", 120*time.Second)

	v.SetDefault("storage.type", "sqlite")
	v.SetDefault("storage.sqlite_path", "./webtoonquiz.db")
	v.SetDefault("storage.redis_addr", "localhost:6379")
	v.SetDefault("storage.key", DefaultStorageKey)

	v.SetDefault("export.type", "local")
	v.SetDefault("export.dir", "./exports")

	v.SetDefault("log.file", "logs/app.log")
	v.SetDefault("log.transcript_file", "logs/llm.log")
}

// LoadConfig reads config.yaml from path when present and applies
// environment overrides on top of the defaults.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.AddConfigPath(path)
	}
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.SetEnvPrefix("WEBTOONQUIZ")
	v.AutomaticEnv()

	// AI
	v.BindEnv("ai.api_key", "GEMINI_API_KEY")
	v.BindEnv("ai.provider", "AI_PROVIDER")
	v.BindEnv("ai.model", "AI_MODEL")
	v.BindEnv("ai.base_url", "AI_BASE_URL")
	v.BindEnv("ai.locale", "AI_LOCALE")
	v.BindEnv("ai.timeout", "AI_TIMEOUT")

	// Storage
	v.BindEnv("storage.type", "STORAGE_TYPE")
	v.BindEnv("storage.sqlite_path", "STORAGE_SQLITE_PATH")
	v.BindEnv("storage.redis_addr", "REDIS_ADDR")
	v.BindEnv("storage.redis_password", "REDIS_PASSWORD")
	v.BindEnv("storage.redis_db", "REDIS_DB")

	// Export
	v.BindEnv("export.type", "EXPORT_TYPE")
	v.BindEnv("export.dir", "EXPORT_DIR")
	v.BindEnv("export.minio_endpoint", "MINIO_ENDPOINT")
	v.BindEnv("export.minio_access_key", "MINIO_ACCESS_KEY")
	v.BindEnv("export.minio_secret_key", "MINIO_SECRET_KEY")
	v.BindEnv("export.minio_bucket", "MINIO_BUCKET")
	v.BindEnv("export.minio_secure", "MINIO_SECURE")

	// Server
	v.BindEnv("server.port", "PORT")
	v.BindEnv("server.mode", "SERVER_MODE")
	v.BindEnv("server.session_secret", "SESSION_SECRET")
	v.BindEnv("server.session_dir", "SESSION_DIR")

	// Logging
	v.BindEnv("log.file", "LOG_FILE")
	v.BindEnv("log.verbose", "LOG_VERBOSE")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	if cfg.Server.Mode == "release" && cfg.Server.SessionSecret != "" && len(cfg.Server.SessionSecret) < 32 {
		return nil, fmt.Errorf("session secret is too short (%d chars), must be at least 32 characters in release mode", len(cfg.Server.SessionSecret))
	}

	return &cfg, nil
}
