// Package config loads the httpconn client configuration from a YAML file,
// a .env file and HTTPCONN_* environment variables, in increasing order of
// precedence.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/nczempin/httpconn/logger"
)

// Config is the client configuration.
type Config struct {
	Host      string `yaml:"host" mapstructure:"host" validate:"required"`
	Port      int    `yaml:"port" mapstructure:"port" validate:"min=1,max=65535"`
	Secure    bool   `yaml:"secure" mapstructure:"secure"`
	Transport string `yaml:"transport" mapstructure:"transport" validate:"oneof=net iouring uring unix gnet"`

	// TickInterval is the longest pause between ticks when no transport
	// event wakes the loop early.
	TickInterval time.Duration `yaml:"tick_interval" mapstructure:"tick_interval" validate:"gt=0"`
	Timeout      time.Duration `yaml:"timeout" mapstructure:"timeout" validate:"gt=0"`

	ContentType    string `yaml:"content_type" mapstructure:"content_type" validate:"required"`
	ReadBufferSize int    `yaml:"read_buffer_size" mapstructure:"read_buffer_size" validate:"min=0"`

	TLS     TLSConfig     `yaml:"tls" mapstructure:"tls"`
	Logging logger.Config `yaml:"logging" mapstructure:"logging"`
}

// TLSConfig configures secure connects.
type TLSConfig struct {
	ServerName         string `yaml:"server_name" mapstructure:"server_name"`
	InsecureSkipVerify bool   `yaml:"insecure_skip_verify" mapstructure:"insecure_skip_verify"`
}

// Default returns the configuration used when nothing overrides it.
func Default() Config {
	cfg := Config{
		Host:         "localhost",
		Port:         80,
		Transport:    "net",
		TickInterval: 10 * time.Millisecond,
		Timeout:      30 * time.Second,
		ContentType:  "application/octet-stream",
	}
	cfg.Logging.ApplyDefaults()
	return cfg
}

// ApplyDefaults fills zero fields from Default.
func (c *Config) ApplyDefaults() {
	d := Default()
	if c.Host == "" {
		c.Host = d.Host
	}
	if c.Port == 0 {
		c.Port = d.Port
	}
	if c.Transport == "" {
		c.Transport = d.Transport
	}
	if c.TickInterval == 0 {
		c.TickInterval = d.TickInterval
	}
	if c.Timeout == 0 {
		c.Timeout = d.Timeout
	}
	if c.ContentType == "" {
		c.ContentType = d.ContentType
	}
	c.Logging.ApplyDefaults()
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		verrs, ok := err.(validator.ValidationErrors)
		if !ok {
			return fmt.Errorf("config validation failed: %w", err)
		}
		msgs := make([]string, 0, len(verrs))
		for _, e := range verrs {
			msgs = append(msgs, formatFieldError(e))
		}
		return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
	}
	return c.Logging.Validate()
}

var validate = validator.New(validator.WithRequiredStructEnabled())

func formatFieldError(e validator.FieldError) string {
	field := strings.ToLower(e.Namespace())
	if i := strings.IndexByte(field, '.'); i >= 0 {
		field = field[i+1:]
	}
	switch e.Tag() {
	case "required":
		return field + " is required"
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s] (got: %v)", field, e.Param(), e.Value())
	case "min":
		return fmt.Sprintf("%s must be at least %s (got: %v)", field, e.Param(), e.Value())
	case "max":
		return fmt.Sprintf("%s must be at most %s (got: %v)", field, e.Param(), e.Value())
	case "gt":
		return fmt.Sprintf("%s must be greater than %s (got: %v)", field, e.Param(), e.Value())
	default:
		return fmt.Sprintf("%s failed %s", field, e.Tag())
	}
}
