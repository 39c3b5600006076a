package config

import (
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"time"
)

const (
	DefaultPageSize        = 10
	DefaultDatabaseTimeout = 5 * time.Second
	DefaultSmsTimeout      = 10 * time.Second
)

type SmsConfig struct {
	ApiURL     string
	ApiKey     string
	LineNumber string
	Timeout    time.Duration
}

// Enabled reports whether an SMS provider is configured.
func (c SmsConfig) Enabled() bool {
	return c.ApiURL != ""
}

type Config struct {
	DatabaseDSN     string
	ServerAddr      string
	SigningKey      []byte
	AllowedOrigins  []string
	PageSize        int
	DatabaseTimeout time.Duration
	Sms             SmsConfig
	// RedisURL enables cross-instance sync hint fan-out when set.
	RedisURL string
	// SenderReadsOwnMessages marks new messages as read for their sender.
	SenderReadsOwnMessages bool
	// LinkURL heads every outbound SMS.
	LinkURL string
}

type Option func(*Config)

func WithPageSize(n int) Option {
	return func(c *Config) {
		c.PageSize = n
	}
}

func WithDatabaseTimeout(d time.Duration) Option {
	return func(c *Config) {
		c.DatabaseTimeout = d
	}
}

func WithSms(sms SmsConfig) Option {
	return func(c *Config) {
		c.Sms = sms
	}
}

func WithRedisURL(redisURL string) Option {
	return func(c *Config) {
		c.RedisURL = redisURL
	}
}

func WithSenderReadsOwnMessages(enabled bool) Option {
	return func(c *Config) {
		c.SenderReadsOwnMessages = enabled
	}
}

func WithLinkURL(link string) Option {
	return func(c *Config) {
		c.LinkURL = link
	}
}

func decodeSigningSecret(base64Secret string) ([]byte, error) {
	if base64Secret == "" {
		return nil, errors.New("empty secret")
	}
	return base64.StdEncoding.DecodeString(base64Secret)
}

func NewConfig(serverAddr, databaseDSN, base64Secret string, allowedOrigins []string, opts ...Option) (*Config, error) {
	if serverAddr == "" {
		return nil, fmt.Errorf("server address cannot be empty")
	}
	if databaseDSN == "" {
		return nil, fmt.Errorf("database DSN cannot be empty")
	}
	if base64Secret == "" {
		return nil, fmt.Errorf("signing secret cannot be empty")
	}

	// Decode the base64 encoded signing secret
	signingKey, err := decodeSigningSecret(base64Secret)
	if err != nil {
		return nil, fmt.Errorf("decode signing secret: %w", err)
	}

	cfg := &Config{
		DatabaseDSN:     databaseDSN,
		ServerAddr:      serverAddr,
		SigningKey:      signingKey,
		AllowedOrigins:  allowedOrigins,
		PageSize:        DefaultPageSize,
		DatabaseTimeout: DefaultDatabaseTimeout,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.PageSize <= 0 {
		return fmt.Errorf("page size must be positive, got %d", c.PageSize)
	}
	if c.DatabaseTimeout <= 0 {
		return fmt.Errorf("database timeout must be positive, got %s", c.DatabaseTimeout)
	}
	if c.Sms.Enabled() {
		if _, err := url.ParseRequestURI(c.Sms.ApiURL); err != nil {
			return fmt.Errorf("invalid sms api url: %w", err)
		}
		if c.Sms.ApiKey == "" {
			return fmt.Errorf("sms api key cannot be empty when an sms api url is set")
		}
		if c.Sms.Timeout <= 0 {
			c.Sms.Timeout = DefaultSmsTimeout
		}
	}
	return nil
}
