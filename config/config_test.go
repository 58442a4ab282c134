package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"stakevault/native/staking"
)

func TestLoadCreatesDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, uint64(8), cfg.Staking.BaseAPR)
	require.Equal(t, uint64(2), cfg.Staking.BonusAPR)
	require.Equal(t, uint64(30), cfg.Staking.LockPeriodSeconds)
	require.Equal(t, "1000000000000000000000000", cfg.Staking.NFTThreshold)
	require.True(t, cfg.Staking.ResetLockOnPartialWithdraw)

	_, err = os.Stat(path)
	require.NoError(t, err)

	reloaded, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, cfg, reloaded)
}

func TestLoadParsesStakingSection(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	contents := `DataDir = "./data"
Environment = "prod"
LogFile = "./logs/stakectl.log"

[staking]
BaseAPR = 12
BonusAPR = 3
LockPeriodSeconds = 86400
NFTThreshold = "500000000000000000000000000000"
RemintOnRecross = true
Paused = true
`
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, filepath.Join("./data", "journal.db"), cfg.JournalPath)
	require.Equal(t, "prod", cfg.Environment)
	require.True(t, cfg.Staking.ResetLockOnPartialWithdraw, "absent keys keep defaults")

	params, err := cfg.Staking.Params()
	require.NoError(t, err)
	require.Equal(t, uint64(12), params.BaseAPR)
	require.Equal(t, uint64(15), params.EffectiveAPR(true))
	require.Equal(t, uint64(86400), params.LockPeriod)
	require.Equal(t, "500000000000000000000000000000", params.NFTThreshold.String())
	require.True(t, params.RemintOnRecross)
	require.True(t, cfg.Staking.Pauses().IsPaused("staking"))
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("Bogus = 1\n"), 0o644))
	_, err := Load(path)
	require.Error(t, err)
	require.True(t, strings.Contains(err.Error(), "Bogus"))
}

func TestValidateConfig(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
		ok     bool
	}{
		{name: "default", mutate: func(*Config) {}, ok: true},
		{name: "apr too high", mutate: func(c *Config) { c.Staking.BaseAPR = staking.MaxAPR + 1 }},
		{name: "bonus too high", mutate: func(c *Config) { c.Staking.BonusAPR = staking.MaxAPR + 1 }},
		{name: "zero threshold", mutate: func(c *Config) { c.Staking.NFTThreshold = "0" }},
		{name: "fractional threshold", mutate: func(c *Config) { c.Staking.NFTThreshold = "1.5" }},
		{name: "negative threshold", mutate: func(c *Config) { c.Staking.NFTThreshold = "-1" }},
		{name: "empty threshold", mutate: func(c *Config) { c.Staking.NFTThreshold = "" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(cfg)
			err := ValidateConfig(cfg)
			if tc.ok {
				require.NoError(t, err)
			} else {
				require.Error(t, err)
			}
		})
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	cfg := Default()
	cfg.Staking.BaseAPR = 5
	require.NoError(t, Save(path, cfg))

	loaded, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, uint64(5), loaded.Staking.BaseAPR)

	cfg.Staking.NFTThreshold = "abc"
	require.Error(t, Save(path, cfg))
}
