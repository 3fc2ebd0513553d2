package config

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

const (
	DefaultConfigPath   = "config.toml"
	DefaultHTTPAddr     = ":8080"
	DefaultJWTExpiresIn = "24h"
	DefaultPGHost       = "127.0.0.1"
	DefaultPGPort       = 5432
	DefaultPGUser       = "postgres"
	DefaultPGDatabase   = "foam"
	DefaultPGSSLMode    = "disable"
	DefaultOpenAIModel  = "gpt-3.5-turbo-16k"
	DefaultMessageTTL   = "720h"
	DefaultTmpDir       = "tmp"
)

type Config struct {
	Log       LogConfig       `toml:"log"`
	Server    ServerConfig    `toml:"server"`
	Auth      AuthConfig      `toml:"auth"`
	Postgres  PostgresConfig  `toml:"postgres"`
	OpenAI    OpenAIConfig    `toml:"openai"`
	Vonage    VonageConfig    `toml:"vonage"`
	Retention RetentionConfig `toml:"retention"`
	Media     MediaConfig     `toml:"media"`
}

type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

type ServerConfig struct {
	Addr string `toml:"addr"`
}

type AuthConfig struct {
	JWTSecret    string `toml:"jwt_secret"`
	JWTExpiresIn string `toml:"jwt_expires_in"`
}

// ExpiresIn parses the configured token lifetime, falling back to the default
// on an empty or malformed value.
func (a AuthConfig) ExpiresIn() time.Duration {
	d, err := time.ParseDuration(a.JWTExpiresIn)
	if err != nil || d <= 0 {
		d, _ = time.ParseDuration(DefaultJWTExpiresIn)
	}
	return d
}

type PostgresConfig struct {
	Host     string `toml:"host"`
	Port     int    `toml:"port"`
	User     string `toml:"user"`
	Password string `toml:"password"`
	Database string `toml:"database"`
	SSLMode  string `toml:"sslmode"`
}

// DSN returns the Postgres connection string for the given driver scheme.
func (p PostgresConfig) DSN(scheme string) string {
	return fmt.Sprintf("%s://%s:%s@%s:%d/%s?sslmode=%s",
		scheme, p.User, p.Password, p.Host, p.Port, p.Database, p.SSLMode)
}

type OpenAIConfig struct {
	Model          string `toml:"model"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

type VonageConfig struct {
	// HostOverride points the channel client at a custom Messages API host,
	// replacing both the production and sandbox endpoints. Used in
	// development.
	HostOverride string `toml:"host_override"`
}

type RetentionConfig struct {
	// MessageTTL bounds how long channel messages are kept before the purge
	// job removes them. Empty or zero disables the purge.
	MessageTTL string `toml:"message_ttl"`
	Schedule   string `toml:"schedule"`
}

// TTL parses MessageTTL, returning 0 when purging is disabled.
func (r RetentionConfig) TTL() time.Duration {
	if r.MessageTTL == "" {
		return 0
	}
	d, err := time.ParseDuration(r.MessageTTL)
	if err != nil || d < 0 {
		return 0
	}
	return d
}

type MediaConfig struct {
	TmpDir string `toml:"tmp_dir"`
}

func Load(path string) (Config, error) {
	cfg := Config{
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Server: ServerConfig{
			Addr: DefaultHTTPAddr,
		},
		Auth: AuthConfig{
			JWTExpiresIn: DefaultJWTExpiresIn,
		},
		Postgres: PostgresConfig{
			Host:     DefaultPGHost,
			Port:     DefaultPGPort,
			User:     DefaultPGUser,
			Database: DefaultPGDatabase,
			SSLMode:  DefaultPGSSLMode,
		},
		OpenAI: OpenAIConfig{
			Model:          DefaultOpenAIModel,
			TimeoutSeconds: 30,
		},
		Retention: RetentionConfig{
			MessageTTL: DefaultMessageTTL,
			Schedule:   "0 3 * * *",
		},
		Media: MediaConfig{
			TmpDir: DefaultTmpDir,
		},
	}

	if path == "" {
		path = DefaultConfigPath
	}

	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, err
	}

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, err
	}

	return cfg, nil
}
