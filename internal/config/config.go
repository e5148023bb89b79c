package config

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
)

// ErrInvalidConfig agrupa los errores de validacion de configuracion.
var ErrInvalidConfig = errors.New("invalid config")

// Config centraliza la configuración de la migración.
type Config struct {
	Environment string `env:"ENVIRONMENT" envDefault:"production"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
	LogFile     string `env:"MIGRATION_LOG_FILE" envDefault:"migration.log"`

	LegacyDatabaseURL string `env:"LEGACY_DATABASE_URL,required,notEmpty"`
	WPDatabaseURL     string `env:"WP_DATABASE_URL,required,notEmpty"`
	WPTablePrefix     string `env:"WP_TABLE_PREFIX" envDefault:"wp_"`

	Limit       int    `env:"MIGRATION_LIMIT" envDefault:"100"`
	ChunkSize   int    `env:"MIGRATION_CHUNK_SIZE" envDefault:"10"`
	Since       string `env:"MIGRATION_SINCE" envDefault:"1970-01-01 0:00"`
	Workers     int    `env:"MIGRATION_WORKERS" envDefault:"10"`
	FailFast    bool   `env:"MIGRATION_FAIL_FAST" envDefault:"false"`
	RefreshMeta bool   `env:"MIGRATION_REFRESH_META" envDefault:"false"`

	WPBaseURL     string `env:"WP_BASE_URL"`
	WPUsername    string `env:"WP_USERNAME"`
	WPAppPassword string `env:"WP_APP_PASSWORD"`

	RedisAddr     string `env:"REDIS_ADDR"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`

	StatusAddr string `env:"STATUS_ADDR"`
}

// LoadConfig carga la configuración desde variables de entorno.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate comprueba los parametros del job antes de abrir conexiones.
func (c *Config) Validate() error {
	if c.Limit < 0 {
		return fmt.Errorf("%w: limit must be >= 0, got %d", ErrInvalidConfig, c.Limit)
	}
	if c.ChunkSize < 1 {
		return fmt.Errorf("%w: chunk size must be >= 1, got %d", ErrInvalidConfig, c.ChunkSize)
	}
	if c.Workers < 1 {
		return fmt.Errorf("%w: workers must be >= 1, got %d", ErrInvalidConfig, c.Workers)
	}
	if !tablePrefixPattern.MatchString(c.WPTablePrefix) {
		return fmt.Errorf("%w: table prefix %q", ErrInvalidConfig, c.WPTablePrefix)
	}
	if _, err := ParseSince(c.Since); err != nil {
		return err
	}
	return nil
}

// SinceTime devuelve la cota inferior de ultimo login ya parseada.
func (c *Config) SinceTime() (time.Time, error) {
	return ParseSince(c.Since)
}

var tablePrefixPattern = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

var sinceLayouts = []string{
	"2006-01-02 15:04",
	"2006-01-02 15:04:05",
	"2006-01-02",
	time.RFC3339,
}

// ParseSince acepta los formatos de fecha soportados por MIGRATION_SINCE / --since.
func ParseSince(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	for _, layout := range sinceLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: unparsable since date %q", ErrInvalidConfig, value)
}
