package infra

import (
	"fmt"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// HTTPConfig configures the kiosk status server.
type HTTPConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// StorageConfig configures the object storage backend.
type StorageConfig struct {
	Endpoint      string
	AccessKey     string
	SecretKey     string
	Bucket        string
	Region        string
	UseSSL        bool
	PublicBaseURL string
}

// StyleBackendConfig configures the external style-transfer service.
type StyleBackendConfig struct {
	BaseURL      string
	APIKey       string
	PollInterval time.Duration
}

// CameraConfig configures the live camera source.
type CameraConfig struct {
	// StreamURL is the MJPEG endpoint of the kiosk camera.
	StreamURL    string
	ReadyTimeout time.Duration
}

// Config represents application configuration loaded from a config file
// and BOOTH_-prefixed environment variables.
type Config struct {
	AppEnv       string
	DatabaseURL  string
	ProjectID    string
	HTTP         HTTPConfig
	Storage      StorageConfig
	StyleBackend StyleBackendConfig
	Camera       CameraConfig
}

// LoadConfig reads configuration from config.yaml (working directory or
// ./config) with environment overrides, then validates required fields.
func LoadConfig() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.SetEnvPrefix("BOOTH")
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("load config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.StringToTimeDurationHookFunc()
	}); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("databaseurl is required")
	}
	if cfg.ProjectID == "" {
		return nil, fmt.Errorf("projectid is required")
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("appenv", "development")
	v.SetDefault("databaseurl", "")
	v.SetDefault("projectid", "")

	v.SetDefault("http.port", "8080")
	v.SetDefault("http.readtimeout", 15*time.Second)
	v.SetDefault("http.writetimeout", 30*time.Second)
	v.SetDefault("http.idletimeout", 60*time.Second)

	v.SetDefault("storage.endpoint", "localhost:9000")
	v.SetDefault("storage.bucket", "booth-sessions")
	v.SetDefault("storage.usessl", false)

	v.SetDefault("stylebackend.baseurl", "")
	v.SetDefault("stylebackend.pollinterval", 3*time.Second)

	v.SetDefault("camera.streamurl", "http://127.0.0.1:8081/stream")
	v.SetDefault("camera.readytimeout", 10*time.Second)
}
