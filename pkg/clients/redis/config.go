// Package redis provides the traced Redis client behind the shared signing
// key store.
//
// The client wraps go-redis (github.com/redis/go-redis/v9) and exposes only
// the string commands the store needs. Every command runs inside an
// OpenTelemetry span carrying the standard database attributes, and every
// failure is returned as a *[sserr.Error].
//
// # Configuration
//
//	cfg := redis.DefaultConfig()
//	cfg.Password = redis.Secret(os.Getenv("OIDC_REDIS_PASSWORD"))
//	client, err := redis.NewClient(ctx, *cfg)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
// For tests, inject a fake [Cmdable] with [NewFromClient].
package redis

import (
	"fmt"
	"net/url"
	"time"
)

// maxStatementTruncateLen bounds statements recorded on spans so key names
// and values cannot flood telemetry.
const maxStatementTruncateLen = 100

const (
	// DefaultHost is the Redis host used when neither URI nor Host is set.
	DefaultHost = "localhost"

	// DefaultPort is the standard Redis port.
	DefaultPort = 6379

	// DefaultPoolSize is the maximum number of pooled connections. Key
	// lookups are rare, so the pool is small.
	DefaultPoolSize = 10

	// DefaultDialTimeout bounds establishing a connection.
	DefaultDialTimeout = 5 * time.Second

	// DefaultReadTimeout bounds waiting for a reply.
	DefaultReadTimeout = 2 * time.Second

	// DefaultWriteTimeout bounds writing a command.
	DefaultWriteTimeout = 2 * time.Second

	// DefaultHealthTimeout bounds a health check ping when the caller's
	// context has no deadline.
	DefaultHealthTimeout = 5 * time.Second

	// DefaultKeyPrefix namespaces every key written by the shared key
	// store.
	DefaultKeyPrefix = "oidc:jwks:"
)

// Secret is a string that redacts itself when printed or serialized. Use
// [Secret.Value] to read the real value.
type Secret string

const redacted = "[REDACTED]"

// String returns "[REDACTED]".
func (s Secret) String() string {
	return redacted
}

// GoString returns "[REDACTED]" so %#v does not leak the value.
func (s Secret) GoString() string {
	return redacted
}

// Value returns the actual secret string.
func (s Secret) Value() string {
	return string(s)
}

// MarshalText implements encoding.TextMarshaler, returning "[REDACTED]".
func (s Secret) MarshalText() ([]byte, error) {
	return []byte(redacted), nil
}

// Config holds the Redis connection settings. When URI is set it takes
// precedence over Host, Port, DB and Password.
//
// Env tags are relative; the enclosing configuration supplies the prefix
// (for example OIDC_REDIS_URI).
type Config struct {
	// Enabled turns on the shared key store. When false no client is
	// created and signing keys are cached in process only.
	Enabled bool `json:"enabled" yaml:"enabled" env:"ENABLED" envDefault:"false"`

	// URI is a connection string such as "redis://:password@host:6379/0".
	// The "rediss" scheme enables TLS.
	URI string `json:"uri,omitempty" yaml:"uri,omitempty" env:"URI"`

	// Host is the server hostname.
	Host string `json:"host,omitempty" yaml:"host,omitempty" env:"HOST" envDefault:"localhost"`

	// Port is the server port.
	Port int `json:"port,omitempty" yaml:"port,omitempty" env:"PORT" envDefault:"6379"`

	// DB is the database index.
	DB int `json:"db" yaml:"db" env:"DB"`

	// Password never appears in logs or serialized configuration.
	Password Secret `json:"-" yaml:"-" env:"PASSWORD"`

	// PoolSize is the maximum number of pooled connections.
	PoolSize int `json:"pool_size,omitempty" yaml:"pool_size,omitempty" env:"POOL_SIZE" envDefault:"10"`

	// DialTimeout bounds establishing a connection.
	DialTimeout time.Duration `json:"dial_timeout,omitempty" yaml:"dial_timeout,omitempty" env:"DIAL_TIMEOUT" envDefault:"5s"`

	// ReadTimeout bounds waiting for a reply.
	ReadTimeout time.Duration `json:"read_timeout,omitempty" yaml:"read_timeout,omitempty" env:"READ_TIMEOUT" envDefault:"2s"`

	// WriteTimeout bounds writing a command.
	WriteTimeout time.Duration `json:"write_timeout,omitempty" yaml:"write_timeout,omitempty" env:"WRITE_TIMEOUT" envDefault:"2s"`

	// TLSEnabled enables TLS for structured (non-URI) configuration.
	TLSEnabled bool `json:"tls_enabled,omitempty" yaml:"tls_enabled,omitempty" env:"TLS_ENABLED"`

	// KeyPrefix is prepended to every key the store writes.
	KeyPrefix string `json:"key_prefix,omitempty" yaml:"key_prefix,omitempty" env:"KEY_PREFIX" envDefault:"oidc:jwks:"`
}

// DefaultConfig returns a Config with every default applied.
func DefaultConfig() *Config {
	return &Config{
		Host:         DefaultHost,
		Port:         DefaultPort,
		PoolSize:     DefaultPoolSize,
		DialTimeout:  DefaultDialTimeout,
		ReadTimeout:  DefaultReadTimeout,
		WriteTimeout: DefaultWriteTimeout,
		KeyPrefix:    DefaultKeyPrefix,
	}
}

// Validate applies defaults to zero-valued fields and checks the rest.
func (c *Config) Validate() error {
	c.applyDefaults()

	if c.URI != "" {
		u, err := url.Parse(c.URI)
		if err != nil {
			return fmt.Errorf("redis: config URI is invalid: %w", err)
		}
		if u.Scheme != "redis" && u.Scheme != "rediss" {
			return fmt.Errorf("redis: config URI scheme must be redis:// or rediss://, got %q", u.Scheme)
		}
		return nil
	}

	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("redis: config port must be between 1 and 65535, got %d", c.Port)
	}
	if c.PoolSize < 1 {
		return fmt.Errorf("redis: config pool_size must be >= 1, got %d", c.PoolSize)
	}
	if c.DialTimeout < 0 || c.ReadTimeout < 0 || c.WriteTimeout < 0 {
		return fmt.Errorf("redis: config timeouts must not be negative")
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.Host == "" {
		c.Host = DefaultHost
	}
	if c.Port == 0 {
		c.Port = DefaultPort
	}
	if c.PoolSize == 0 {
		c.PoolSize = DefaultPoolSize
	}
	if c.DialTimeout == 0 {
		c.DialTimeout = DefaultDialTimeout
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = DefaultReadTimeout
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = DefaultWriteTimeout
	}
	if c.KeyPrefix == "" {
		c.KeyPrefix = DefaultKeyPrefix
	}
}

// truncateStatement shortens s to maxStatementTruncateLen runes, appending
// "..." when it cuts.
func truncateStatement(s string) string {
	runes := []rune(s)
	if len(runes) <= maxStatementTruncateLen {
		return s
	}
	return string(runes[:maxStatementTruncateLen]) + "..."
}
