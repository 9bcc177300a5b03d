package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("APP_ENV", EnvDevelopment)
	t.Setenv("TOKEN_TTL", "")
	t.Setenv("ENFORCE_OWNERSHIP", "")

	cfg := Load()

	assert.Equal(t, 7*24*time.Hour, cfg.TokenTTL)
	assert.Equal(t, int64(10<<20), cfg.MaxBodyBytes)
	assert.True(t, cfg.EnforceOwnership)
	assert.False(t, cfg.AnonymousListAll)
	assert.Equal(t, ":"+cfg.Port, cfg.Addr())
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("TOKEN_TTL", "2h")
	t.Setenv("MAX_BODY_BYTES", "1024")
	t.Setenv("ENFORCE_OWNERSHIP", "false")
	t.Setenv("ANONYMOUS_LIST_ALL", "true")
	t.Setenv("MEDIA_PUBLIC_BASE_URL", "https://cdn.example.com/")

	cfg := Load()

	assert.Equal(t, ":9090", cfg.Addr())
	assert.Equal(t, 2*time.Hour, cfg.TokenTTL)
	assert.Equal(t, int64(1024), cfg.MaxBodyBytes)
	assert.False(t, cfg.EnforceOwnership)
	assert.True(t, cfg.AnonymousListAll)
	assert.Equal(t, "https://cdn.example.com", cfg.MediaPublicBaseURL)
}

func TestLoad_UnsetEnvRefusesDevSecret(t *testing.T) {
	for _, key := range []string{"APP_ENV", "JWT_SECRET"} {
		t.Setenv(key, "")
		require.NoError(t, os.Unsetenv(key))
	}

	cfg := Load()

	assert.Equal(t, EnvProduction, cfg.Env)
	assert.Equal(t, DevJWTSecret, cfg.JWTSecret)
	assert.Error(t, cfg.Validate())
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		return &Config{
			Env:          EnvDevelopment,
			JWTSecret:    DevJWTSecret,
			TokenTTL:     time.Hour,
			MaxBodyBytes: 1,
			MinioBucket:  "trackstack",
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{name: "dev secret in development", mutate: func(c *Config) {}},
		{name: "dev secret in production", mutate: func(c *Config) { c.Env = EnvProduction }, wantErr: true},
		{name: "real secret in production", mutate: func(c *Config) { c.Env = "production"; c.JWTSecret = "s3cret" }},
		{name: "empty secret", mutate: func(c *Config) { c.JWTSecret = "" }, wantErr: true},
		{name: "zero ttl", mutate: func(c *Config) { c.TokenTTL = 0 }, wantErr: true},
		{name: "zero body limit", mutate: func(c *Config) { c.MaxBodyBytes = 0 }, wantErr: true},
		{name: "no bucket", mutate: func(c *Config) { c.MinioBucket = "" }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
		})
	}
}
