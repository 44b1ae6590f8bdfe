package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	t.Setenv("FRONTDESK_SESSION_SECRET", "s3cret")

	v := viper.New()
	setDefaults(v)
	cfg, err := decode(v)
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, 500*time.Millisecond, cfg.Lookup.Debounce)
	assert.Equal(t, "admin", cfg.Session.AdminID)
	assert.Equal(t, "admin123", cfg.Session.AdminPassword)
	assert.Equal(t, "ml_default", cfg.Upload.Preset)
	assert.Equal(t, "s3cret", cfg.Session.Secret)
}

func TestSecretsOverrideFile(t *testing.T) {
	t.Setenv("FRONTDESK_SESSION_SECRET", "from-env")
	t.Setenv("FRONTDESK_REDIS_URL", "redis://cache:6379/1")
	t.Setenv("FRONTDESK_DATABASE_PASSWORD", "pw")

	v := viper.New()
	setDefaults(v)
	v.Set("session.secret", "from-file")

	cfg, err := decode(v)
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Session.Secret)
	assert.Equal(t, "redis://cache:6379/1", cfg.Redis.URL)
	assert.Equal(t, "pw", cfg.Database.Password)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "unknown driver", mutate: func(c *Config) { c.Store.Driver = "mongo" }, wantErr: true},
		{name: "missing secret", mutate: func(c *Config) { c.Session.Secret = "" }, wantErr: true},
		{name: "no password", mutate: func(c *Config) { c.Session.AdminPassword = "" }, wantErr: true},
		{name: "hash only", mutate: func(c *Config) {
			c.Session.AdminPassword = ""
			c.Session.AdminPasswordHash = "$2a$04$abc"
		}},
		{name: "zero debounce", mutate: func(c *Config) { c.Lookup.Debounce = 0 }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{
				Store:   StoreConfig{Driver: "memory"},
				Session: SessionConfig{Secret: "x", AdminPassword: "admin123"},
				Lookup:  LookupConfig{Debounce: time.Second},
			}
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
		})
	}
}
