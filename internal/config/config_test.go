package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
)

func newViper(values map[string]any) *viper.Viper {
	v := viper.New()
	setDefaults(v)
	for k, val := range values {
		v.Set(k, val)
	}
	return v
}

func TestFromViper_Defaults(t *testing.T) {
	cfg := FromViper(newViper(nil))

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, 30*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, 20*time.Second, cfg.Upstream.Timeout)
	assert.Equal(t, 30*time.Second, cfg.Upstream.StoreCacheTTL)
	assert.Equal(t, 3, cfg.Quota.MaxStoresPerUser)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, 30, cfg.Audit.RetentionDays)
	assert.Equal(t, "none", cfg.Archive.Provider)
	assert.False(t, cfg.IsConfigPresent())
}

func TestFromViper_Upstream(t *testing.T) {
	cfg := FromViper(newViper(map[string]any{
		"MARKKET_API":     " https://api.markket.place/ ",
		"MARKKET_API_KEY": "secret",
	}))

	assert.Equal(t, "https://api.markket.place", cfg.Upstream.BaseURL)
	assert.Equal(t, "secret", cfg.Upstream.AdminKey)
	assert.True(t, cfg.IsConfigPresent())
}

func TestFromViper_StoreCacheTTLCapped(t *testing.T) {
	cases := []struct {
		name string
		in   time.Duration
		want time.Duration
	}{
		{"合法值保留", 5 * time.Second, 5 * time.Second},
		{"超过上限截断", 5 * time.Minute, 30 * time.Second},
		{"非正数取上限", -time.Second, 30 * time.Second},
	}
	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			cfg := FromViper(newViper(map[string]any{"STORE_CACHE_TTL": tt.in}))
			assert.Equal(t, tt.want, cfg.Upstream.StoreCacheTTL)
		})
	}
}

func TestFromViper_QuotaLimits(t *testing.T) {
	cfg := FromViper(newViper(map[string]any{"QUOTA_PRODUCT": 5}))

	assert.Equal(t, 5, cfg.Quota.Limits["product"])
	assert.Equal(t, 12, cfg.Quota.Limits["page"])
	assert.Zero(t, cfg.Quota.Limits["article"], "0 表示不限")
	assert.Zero(t, cfg.Quota.Limits["store"])

	var nilCfg *Config
	assert.False(t, nilCfg.IsConfigPresent())
}
