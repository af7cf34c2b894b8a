// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.
package configs

// AuthConfig carries credentials for a backing service.
type AuthConfig struct {
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
}

// PostgresConfig configures the relational store used by media-api.
type PostgresConfig struct {
	Host               string     `mapstructure:"host" validate:"required"`
	Port               int        `mapstructure:"port" validate:"required"`
	DBName             string     `mapstructure:"db_name" validate:"required"`
	Auth               AuthConfig `mapstructure:"auth"`
	MaxOpenConnection  int        `mapstructure:"max_open_connection"`
	MaxIdealConnection int        `mapstructure:"max_ideal_connection"`
	SSLMode            string     `mapstructure:"ssl_mode"`
}

// RedisConfig configures the cache used for upload rate limiting.
type RedisConfig struct {
	Host     string `mapstructure:"host" validate:"required"`
	Port     int    `mapstructure:"port" validate:"required"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// StorageConfig configures the object store holding packaged takes.
type StorageConfig struct {
	Endpoint   string `mapstructure:"endpoint" validate:"required"`
	AccessKey  string `mapstructure:"access_key" validate:"required"`
	SecretKey  string `mapstructure:"secret_key" validate:"required"`
	Bucket     string `mapstructure:"bucket" validate:"required"`
	Region     string `mapstructure:"region"`
	UseSSL     bool   `mapstructure:"use_ssl"`
	PublicHost string `mapstructure:"public_host"`
}

// CaptureConfig configures the device source and artifact packaging on the
// capture side.
type CaptureConfig struct {
	SampleRate int `mapstructure:"sample_rate" validate:"required"`
	Channels   int `mapstructure:"channels" validate:"required"`
	FrameMs    int `mapstructure:"frame_ms" validate:"required"`

	// Command is the capture command template. The placeholders {device}
	// and {rate} are substituted before the source process is spawned.
	Command string `mapstructure:"command"`

	// Devices lists the selectable inputs as "id=label" pairs separated by
	// semicolons. The first entry is the default active device.
	Devices string `mapstructure:"devices"`

	// Permission selects the access gate: "granted", "denied" or "prompt".
	Permission          string `mapstructure:"permission"`
	PermissionTimeoutMs int    `mapstructure:"permission_timeout_ms"`
}

// SinkConfig selects and configures the upload sink the coordinator hands
// packaged takes to.
type SinkConfig struct {
	// Kind is "http" (media-api multipart endpoint) or "minio" (direct
	// object-store upload).
	Kind   string `mapstructure:"kind" validate:"required"`
	URL    string `mapstructure:"url"`
	ApiKey string `mapstructure:"api_key"`
}

// TokenConfig configures deletion-token signing.
type TokenConfig struct {
	Secret     string `mapstructure:"secret" validate:"required"`
	TTLMinutes int    `mapstructure:"ttl_minutes" validate:"required"`
}

// MediaConfig configures the media-api upload surface.
type MediaConfig struct {
	// ApiKey guards the upload surface when non-empty. Callers send it in
	// the x-api-key header.
	ApiKey string `mapstructure:"api_key"`

	// MaxBodyMB bounds one upload request body. Zero disables the bound.
	MaxBodyMB int64 `mapstructure:"max_body_mb"`
}

// RatelimitConfig configures the per-key upload limiter.
type RatelimitConfig struct {
	Capacity int `mapstructure:"capacity" validate:"required"`
	Refill   int `mapstructure:"refill" validate:"required"`
}
