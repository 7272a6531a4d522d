package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		AdminIDs:         []int64{1, 2},
		Timezone:         "Asia/Tashkent",
		PromoCodePattern: `^[A-Z0-9-]{4,32}$`,
		StateBackend:     StateBackendMemory,
	}
}

func TestValidate(t *testing.T) {
	require.NoError(t, validConfig().Validate())

	tests := []struct {
		name   string
		modify func(c *Config)
	}{
		{name: "unknown backend", modify: func(c *Config) { c.StateBackend = "etcd" }},
		{name: "redis without url", modify: func(c *Config) { c.StateBackend = StateBackendRedis }},
		{name: "bad timezone", modify: func(c *Config) { c.Timezone = "Mars/Olympus" }},
		{name: "bad pattern", modify: func(c *Config) { c.PromoCodePattern = "([" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := validConfig()
			tt.modify(c)
			assert.Error(t, c.Validate())
		})
	}

	c := validConfig()
	c.StateBackend = StateBackendRedis
	c.RedisURL = "redis://localhost:6379/0"
	assert.NoError(t, c.Validate())
}

func TestIsAdmin(t *testing.T) {
	c := validConfig()
	assert.True(t, c.IsAdmin(2))
	assert.False(t, c.IsAdmin(3))
}
