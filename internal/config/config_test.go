package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewConfig(t *testing.T) {
	var (
		addr = "localhost:8080"
		dsn  = "host=localhost user=postgres password=postgres dbname=postgres sslmode=disable"
		key  = "c29tZV9zZWNyZXQ="
		orig = []string{"http://localhost:3000"}
	)

	tcases := []struct {
		name string
		addr string
		dsn  string
		key  string
		orig []string
		err  bool
	}{
		{name: "valid config", addr: addr, dsn: dsn, key: key, orig: orig},
		{name: "no allowed origins", addr: addr, dsn: dsn, key: key},
		{name: "empty address", dsn: dsn, key: key, orig: orig, err: true},
		{name: "empty DSN", addr: addr, key: key, orig: orig, err: true},
		{name: "empty signing key", addr: addr, dsn: dsn, orig: orig, err: true},
		{name: "signing key not base64", addr: addr, dsn: dsn, key: "not base64!", orig: orig, err: true},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			config, err := NewConfig(tc.addr, tc.dsn, tc.key, tc.orig)
			if tc.err {
				assert.Error(t, err, "expected error for config: %s", tc.name)
				return
			}
			assert.NoError(t, err, "expected no error for config: %s", tc.name)

			assert.Equal(t, tc.addr, config.ServerAddr, "expected server address to match")
			assert.Equal(t, tc.dsn, config.DatabaseDSN, "expected database DSN to match")
			assert.Equal(t, tc.orig, config.AllowedOrigins, "expected allowed origins to match")
			assert.NotEmpty(t, config.SigningKey, "expected signing key to be decoded and not empty")
		})
	}
}

func Test_decodeSigningKey(t *testing.T) {
	tcases := []struct {
		name         string
		base64Secret string
		expectedKey  []byte
		expectError  bool
	}{
		{
			name:         "valid base64 secret",
			base64Secret: "c29tZV9zZWNyZXQ=",
			expectedKey:  []byte("some_secret"),
			expectError:  false,
		},
		{
			name:         "invalid base64 secret",
			base64Secret: "invalid_base64",
			expectedKey:  nil,
			expectError:  true,
		},
		{
			name:         "empty base64 secret",
			base64Secret: "",
			expectedKey:  nil,
			expectError:  true,
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			key, err := decodeSigningSecret(tc.base64Secret)
			if tc.expectError {
				assert.Error(t, err, "expected error for base64 secret: %s", tc.base64Secret)
			} else {
				assert.NoError(t, err, "expected no error for base64 secret: %s", tc.base64Secret)
				assert.Equal(t, tc.expectedKey, key, "expected decoded key to match for base64 secret: %s", tc.base64Secret)
			}
		})
	}
}

func TestNewConfig_Options(t *testing.T) {
	var (
		addr = "localhost:8080"
		dsn  = "postgres://localhost/gonotify?sslmode=disable"
		key  = "c29tZV9zZWNyZXQ="
	)

	t.Run("defaults", func(t *testing.T) {
		config, err := NewConfig(addr, dsn, key, nil)
		assert.NoError(t, err)
		assert.Equal(t, DefaultPageSize, config.PageSize)
		assert.Equal(t, DefaultDatabaseTimeout, config.DatabaseTimeout)
		assert.False(t, config.Sms.Enabled())
		assert.False(t, config.SenderReadsOwnMessages)
		assert.Empty(t, config.RedisURL)
	})

	t.Run("overrides", func(t *testing.T) {
		config, err := NewConfig(addr, dsn, key, nil,
			WithPageSize(25),
			WithDatabaseTimeout(2*time.Second),
			WithSms(SmsConfig{ApiURL: "https://sms.example/send", ApiKey: "k", LineNumber: "3000"}),
			WithRedisURL("redis://localhost:6379/0"),
			WithSenderReadsOwnMessages(true),
			WithLinkURL("https://notify.example"),
		)
		assert.NoError(t, err)
		assert.Equal(t, 25, config.PageSize)
		assert.Equal(t, 2*time.Second, config.DatabaseTimeout)
		assert.True(t, config.Sms.Enabled())
		assert.Equal(t, DefaultSmsTimeout, config.Sms.Timeout)
		assert.Equal(t, "redis://localhost:6379/0", config.RedisURL)
		assert.True(t, config.SenderReadsOwnMessages)
		assert.Equal(t, "https://notify.example", config.LinkURL)
	})

	tcases := []struct {
		name string
		opt  Option
	}{
		{name: "zero page size", opt: WithPageSize(0)},
		{name: "negative timeout", opt: WithDatabaseTimeout(-time.Second)},
		{name: "relative sms url", opt: WithSms(SmsConfig{ApiURL: "sms/send", ApiKey: "k"})},
		{name: "sms without key", opt: WithSms(SmsConfig{ApiURL: "https://sms.example/send"})},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewConfig(addr, dsn, key, nil, tc.opt)
			assert.Error(t, err)
		})
	}
}
