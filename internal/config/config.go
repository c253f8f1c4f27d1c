package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Gateway   GatewayConfig   `koanf:"gateway"`
	Backend   BackendConfig   `koanf:"backend"`
	Database  DatabaseConfig  `koanf:"database"`
	Archive   ArchiveConfig   `koanf:"archive"`
	Telemetry TelemetryConfig `koanf:"telemetry"`
	Auth      AuthConfig      `koanf:"auth"`
	Download  DownloadConfig  `koanf:"download"`
}

type ServerConfig struct {
	Port           int           `koanf:"port"`
	RequestTimeout time.Duration `koanf:"request_timeout"`
	// DrainGrace bounds how long shutdown waits for detached
	// archive/telemetry tasks before giving up on them.
	DrainGrace time.Duration `koanf:"drain_grace"`
}

type GatewayConfig struct {
	// Domain is the gateway's own domain. Absolute redirect Locations
	// pointing at it (or any subdomain) are rewritten to relative ones.
	Domain         string   `koanf:"domain"`
	AllowedOrigins []string `koanf:"allowed_origins"`
	// LogSampleRate is the fraction of conversion traffic whose bodies are
	// archived, in [0,1].
	LogSampleRate float64 `koanf:"log_sample_rate"`
}

type BackendConfig struct {
	BaseURL   string `koanf:"base_url"`
	SecretKey string `koanf:"secret_key"`
}

type DatabaseConfig struct {
	Driver string `koanf:"driver"` // mysql, sqlite
	DSN    string `koanf:"dsn"`
}

type ArchiveConfig struct {
	Enabled   bool   `koanf:"enabled"`
	Endpoint  string `koanf:"endpoint"`
	AccessKey string `koanf:"access_key"`
	SecretKey string `koanf:"secret_key"`
	Bucket    string `koanf:"bucket"`
	UseSSL    bool   `koanf:"use_ssl"`
}

type TelemetryConfig struct {
	Enabled bool     `koanf:"enabled"`
	Brokers []string `koanf:"brokers"`
	Topic   string   `koanf:"topic"`
}

type AuthConfig struct {
	// SessionSigningKey signs short-lived session tokens issued by the
	// login endpoint. License tokens are only decoded, never verified.
	SessionSigningKey string        `koanf:"session_signing_key"`
	SessionTTL        time.Duration `koanf:"session_ttl"`
}

type DownloadConfig struct {
	BaseURL string `koanf:"base_url"`
	Product string `koanf:"product"`
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// Load reads config.yaml (if present) and overlays LZGW_ environment
// variables. Double underscores in env names map to nesting, e.g.
// LZGW_BACKEND__BASE_URL -> backend.base_url.
func Load() (*Config, error) {
	return LoadFile("config.yaml")
}

func LoadFile(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to load %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider("LZGW_", ".", func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, "LZGW_")), "__", ".", -1)
	}), nil); err != nil {
		return nil, err
	}

	// Default values
	if !k.Exists("server.port") {
		k.Set("server.port", 8080)
	}
	if !k.Exists("server.request_timeout") {
		k.Set("server.request_timeout", "30s")
	}
	if !k.Exists("server.drain_grace") {
		k.Set("server.drain_grace", "30s")
	}
	if !k.Exists("gateway.domain") {
		k.Set("gateway.domain", "labelzoom.net")
	}
	if !k.Exists("gateway.log_sample_rate") {
		k.Set("gateway.log_sample_rate", 1.0)
	}
	if !k.Exists("database.driver") {
		k.Set("database.driver", "mysql")
	}
	if !k.Exists("auth.session_ttl") {
		k.Set("auth.session_ttl", "5m")
	}
	if !k.Exists("download.product") {
		k.Set("download.product", "LabelZoom Studio")
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, err
	}

	// Substitute ${VAR} references so secrets can stay out of the file
	cfg.Backend.SecretKey = substituteEnvVars(cfg.Backend.SecretKey)
	cfg.Database.DSN = substituteEnvVars(cfg.Database.DSN)
	cfg.Archive.AccessKey = substituteEnvVars(cfg.Archive.AccessKey)
	cfg.Archive.SecretKey = substituteEnvVars(cfg.Archive.SecretKey)
	cfg.Auth.SessionSigningKey = substituteEnvVars(cfg.Auth.SessionSigningKey)

	if cfg.Gateway.LogSampleRate < 0 || cfg.Gateway.LogSampleRate > 1 {
		return nil, fmt.Errorf("gateway.log_sample_rate must be in [0,1], got %v", cfg.Gateway.LogSampleRate)
	}

	return &cfg, nil
}

func substituteEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		varName := envVarPattern.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}
