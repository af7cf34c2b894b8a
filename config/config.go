// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.
package config

import (
	"log"
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/rapidaai/capture/pkg/configs"
	"github.com/spf13/viper"
)

// Application config structure
type AppConfig struct {
	Name        string `mapstructure:"service_name" validate:"required"`
	Version     string `mapstructure:"version" validate:"required"`
	Secret      string `mapstructure:"secret" validate:"required"`
	Host        string `mapstructure:"host" validate:"required"`
	Port        int    `mapstructure:"port" validate:"required"`
	LogLevel    string `mapstructure:"log_level" validate:"required"`
	LogPath     string `mapstructure:"log_path"`
	Environment string `mapstructure:"environment" validate:"required"`

	PostgresConfig  configs.PostgresConfig  `mapstructure:"postgres"`
	RedisConfig     configs.RedisConfig     `mapstructure:"redis"`
	StorageConfig   configs.StorageConfig   `mapstructure:"storage"`
	CaptureConfig   configs.CaptureConfig   `mapstructure:"capture"`
	SinkConfig      configs.SinkConfig      `mapstructure:"sink"`
	TokenConfig     configs.TokenConfig     `mapstructure:"token"`
	RatelimitConfig configs.RatelimitConfig `mapstructure:"ratelimit"`
	MediaConfig     configs.MediaConfig     `mapstructure:"media"`

	// MediaHost is the media-api base URL the capture side uploads to.
	MediaHost string `mapstructure:"media_host"`
}

// reading config and initializing configs for application
func InitConfig() (*viper.Viper, error) {
	vConfig := viper.NewWithOptions(viper.KeyDelimiter("__"))

	vConfig.AddConfigPath(".")
	vConfig.SetConfigName(".env")
	path := os.Getenv("ENV_PATH")
	if path != "" {
		log.Printf("env path %v", path)
		vConfig.SetConfigFile(path)
	}
	vConfig.SetConfigType("env")
	vConfig.AutomaticEnv()

	setDefault(vConfig)
	if err := vConfig.ReadInConfig(); err != nil {
		log.Printf("no config file found, reading from env variables")
	}

	return vConfig, nil
}

func setDefault(v *viper.Viper) {
	// setting all default values
	// keeping watch on https://github.com/spf13/viper/issues/188

	v.SetDefault("SERVICE_NAME", "capture-api")
	v.SetDefault("VERSION", "0.0.1")
	v.SetDefault("SECRET", "rapida-development-secret")
	v.SetDefault("HOST", "0.0.0.0")
	v.SetDefault("PORT", 9090)
	v.SetDefault("LOG_LEVEL", "debug")
	v.SetDefault("LOG_PATH", "")
	v.SetDefault("ENVIRONMENT", "development")
	v.SetDefault("MEDIA_HOST", "http://localhost:9091")

	v.SetDefault("POSTGRES__HOST", "localhost")
	v.SetDefault("POSTGRES__PORT", 5432)
	v.SetDefault("POSTGRES__DB_NAME", "rapida_capture")
	v.SetDefault("POSTGRES__AUTH__USER", "rapida")
	v.SetDefault("POSTGRES__AUTH__PASSWORD", "rapida")
	v.SetDefault("POSTGRES__MAX_OPEN_CONNECTION", 10)
	v.SetDefault("POSTGRES__MAX_IDEAL_CONNECTION", 10)
	v.SetDefault("POSTGRES__SSL_MODE", "disable")

	v.SetDefault("REDIS__HOST", "localhost")
	v.SetDefault("REDIS__PORT", 6379)
	v.SetDefault("REDIS__PASSWORD", "")
	v.SetDefault("REDIS__DB", 0)

	v.SetDefault("STORAGE__ENDPOINT", "localhost:9000")
	v.SetDefault("STORAGE__ACCESS_KEY", "minioadmin")
	v.SetDefault("STORAGE__SECRET_KEY", "minioadmin")
	v.SetDefault("STORAGE__BUCKET", "rapida-captures")
	v.SetDefault("STORAGE__REGION", "us-east-1")
	v.SetDefault("STORAGE__USE_SSL", false)
	v.SetDefault("STORAGE__PUBLIC_HOST", "")

	v.SetDefault("CAPTURE__SAMPLE_RATE", 16000)
	v.SetDefault("CAPTURE__CHANNELS", 1)
	v.SetDefault("CAPTURE__FRAME_MS", 20)
	v.SetDefault("CAPTURE__COMMAND", "arecord -q -f S16_LE -r {rate} -c 1 -t raw -D {device}")
	v.SetDefault("CAPTURE__DEVICES", "default=Built-in Microphone")
	v.SetDefault("CAPTURE__PERMISSION", "prompt")
	v.SetDefault("CAPTURE__PERMISSION_TIMEOUT_MS", 30000)

	v.SetDefault("SINK__KIND", "http")
	v.SetDefault("SINK__URL", "http://localhost:9091")
	v.SetDefault("SINK__API_KEY", "")

	v.SetDefault("TOKEN__SECRET", "rapida-development-secret")
	v.SetDefault("TOKEN__TTL_MINUTES", 1440)

	v.SetDefault("RATELIMIT__CAPACITY", 30)
	v.SetDefault("RATELIMIT__REFILL", 30)

	v.SetDefault("MEDIA__API_KEY", "")
	v.SetDefault("MEDIA__MAX_BODY_MB", 64)
}

// Getting application config from viper
func GetApplicationConfig(v *viper.Viper) (*AppConfig, error) {
	var config AppConfig
	err := v.Unmarshal(&config)
	if err != nil {
		log.Printf("%+v\n", err)
		return nil, err
	}

	// validating the app config
	validate := validator.New()
	err = validate.Struct(&config)
	if err != nil {
		log.Printf("%+v\n", err)
		return nil, err
	}
	return &config, nil
}
