package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// AppConfig 保存了应用的所有配置
type AppConfig struct {
	Server   ServerConfig
	Database DatabaseConfig
	JWT      JWTConfig
	Storage  StorageConfig
	Upload   UploadConfig
	Log      LogConfig
}

// ServerConfig 服务器相关配置
type ServerConfig struct {
	Port            string
	Mode            string
	CorsOrigins     []string      `mapstructure:"cors_origins"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DatabaseConfig 数据库相关配置
type DatabaseConfig struct {
	Driver string // sqlite | mysql
	DSN    string // Data Source Name
}

// JWTConfig JWT 相关配置
type JWTConfig struct {
	Secret          string
	ExpirationHours int `mapstructure:"expiration_hours"`
}

// StorageConfig selects and configures the remote media store.
type StorageConfig struct {
	Provider   string // cloudinary | oss | minio | local
	Folder     string
	Cloudinary CloudinaryConfig
	OSS        OSSConfig `mapstructure:"oss"`
	Minio      MinioConfig
	Local      LocalConfig
}

type CloudinaryConfig struct {
	CloudName string `mapstructure:"cloud_name"`
	APIKey    string `mapstructure:"api_key"`
	APISecret string `mapstructure:"api_secret"`
	BaseURL   string `mapstructure:"base_url"`
}

type OSSConfig struct {
	Endpoint        string
	Bucket          string
	AccessKeyID     string `mapstructure:"access_key_id"`
	AccessKeySecret string `mapstructure:"access_key_secret"`
	PublicURL       string `mapstructure:"public_url"`
}

type MinioConfig struct {
	Endpoint        string
	Bucket          string
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	UseSSL          bool   `mapstructure:"use_ssl"`
	PublicURL       string `mapstructure:"public_url"`
}

type LocalConfig struct {
	Path      string
	PublicURL string `mapstructure:"public_url"`
}

// UploadConfig controls the upload pipeline.
type UploadConfig struct {
	TempDir       string        `mapstructure:"temp_dir"`
	Isolation     string        // goroutine | process
	Timeout       time.Duration
	MaxImageBytes int64  `mapstructure:"max_image_bytes"`
	MaxVideoBytes int64  `mapstructure:"max_video_bytes"`
	WorkerBinary  string `mapstructure:"worker_binary"`
}

type LogConfig struct {
	Level  string
	Format string // console | json
}

// IsProduction reports whether the server runs in release mode.
func (c *AppConfig) IsProduction() bool {
	return c.Server.Mode == "release"
}

// Default 返回所有默认值组成的配置，测试中也直接使用
func Default() *AppConfig {
	v := viper.New()
	setDefaults(v)
	cfg := &AppConfig{}
	_ = v.Unmarshal(cfg)
	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8000")
	v.SetDefault("server.mode", "debug")
	v.SetDefault("server.cors_origins", []string{"http://localhost:3000"})
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "data/videotube.db")
	v.SetDefault("jwt.secret", "change-me-access-token-secret")
	v.SetDefault("jwt.expiration_hours", 24)
	v.SetDefault("storage.provider", "local")
	v.SetDefault("storage.folder", "videotube_project")
	v.SetDefault("storage.cloudinary.base_url", "https://api.cloudinary.com")
	// 空默认值让这些键也能被环境变量覆盖
	for _, key := range []string{
		"storage.cloudinary.cloud_name", "storage.cloudinary.api_key", "storage.cloudinary.api_secret",
		"storage.oss.endpoint", "storage.oss.bucket", "storage.oss.access_key_id", "storage.oss.access_key_secret", "storage.oss.public_url",
		"storage.minio.endpoint", "storage.minio.bucket", "storage.minio.access_key_id", "storage.minio.secret_access_key", "storage.minio.public_url",
		"upload.worker_binary",
	} {
		v.SetDefault(key, "")
	}
	v.SetDefault("storage.minio.use_ssl", false)
	v.SetDefault("storage.local.path", "uploads")
	v.SetDefault("storage.local.public_url", "http://127.0.0.1:8000")
	v.SetDefault("upload.temp_dir", "public/temp")
	v.SetDefault("upload.isolation", "goroutine")
	v.SetDefault("upload.timeout", 60*time.Second)
	v.SetDefault("upload.max_image_bytes", 5*1024*1024)
	v.SetDefault("upload.max_video_bytes", 200*1024*1024)
	v.SetDefault("log.level", "debug")
	v.SetDefault("log.format", "console")
}

// Load 读取 .env、config.yml 和环境变量，返回一份显式注入的配置
func Load() (*AppConfig, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yml")
	v.AddConfigPath(".")
	v.SetEnvPrefix("VIDEOTUBE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		// 配置文件不存在时使用默认值
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
		fmt.Fprintln(os.Stderr, "config.yml not found, using default settings.")
	}

	cfg := &AppConfig{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *AppConfig) validate() error {
	switch c.Storage.Provider {
	case "cloudinary", "oss", "minio", "local":
	default:
		return fmt.Errorf("unsupported storage provider %q", c.Storage.Provider)
	}
	switch c.Upload.Isolation {
	case "goroutine", "process":
	default:
		return fmt.Errorf("unsupported upload isolation %q", c.Upload.Isolation)
	}
	if c.Upload.Timeout <= 0 {
		return errors.New("upload.timeout must be positive")
	}
	return nil
}
