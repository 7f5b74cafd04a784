package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))

	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfigSettings(filepath.Join(t.TempDir(), "missing.json"))
	require.NoError(t, err)

	assert.Equal(t, "./session_state.json", cfg.StateFile)
	assert.Equal(t, "http", cfg.Actuator.Driver)
	assert.Equal(t, "http://localhost:80", cfg.Actuator.BaseURL)
	assert.Equal(t, 5*time.Second, cfg.Actuator.Timeout)
	assert.Equal(t, 15*time.Second, cfg.Actuator.ReconnectDelay)
	assert.Equal(t, 60, cfg.Limits.MaxPumpDuration)
	assert.Equal(t, 30, cfg.Limits.DefaultPumpDuration)
	assert.Equal(t, 3600, cfg.Limits.MaxSessionExtension)
	assert.Equal(t, 1800, cfg.Limits.MaxSessionTime)
	assert.Equal(t, 3600, cfg.Limits.MaxBankedTime)
	assert.Equal(t, 15*time.Second, cfg.Monitor.ProbeInterval)
	assert.Equal(t, time.Second, cfg.Monitor.TickInterval)
}

func TestLoadConfigFile(t *testing.T) {
	path := writeConfig(t, `{
		"state_file": "/var/lib/lbis/state.json",
		"privileged_ids": ["111", "222"],
		"origin_patterns": ["localhost:*"],
		"actuator": {"driver": "gpio", "pump_address": "17", "timeout": "2s"},
		"limits": {"max_pump_duration": 90, "max_banked_time": 600}
	}`)

	cfg, err := LoadConfigSettings(path)
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/lbis/state.json", cfg.StateFile)
	assert.Equal(t, []string{"111", "222"}, cfg.PrivilegedIDs)
	assert.Equal(t, []string{"localhost:*"}, cfg.OriginPatterns)
	assert.Equal(t, "gpio", cfg.Actuator.Driver)
	assert.Equal(t, "17", cfg.Actuator.PumpAddress)
	assert.Equal(t, 2*time.Second, cfg.Actuator.Timeout)
	assert.Equal(t, 90, cfg.Limits.MaxPumpDuration)
	assert.Equal(t, 600, cfg.Limits.MaxBankedTime)
	assert.Equal(t, 1800, cfg.Limits.MaxSessionTime)
}

func TestLoadConfigEnvironment(t *testing.T) {
	t.Setenv("LBIS_API_KEY", "from-env")
	t.Setenv("LBIS_DISCORD_BOT_TOKEN", "token")
	t.Setenv("LBIS_LIMITS_MAX_PUMP_DURATION", "45")

	path := writeConfig(t, `{"api_key": "from-file", "limits": {"max_pump_duration": 90}}`)

	cfg, err := LoadConfigSettings(path)
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.ApiKey)
	assert.Equal(t, "token", cfg.Discord.BotToken)
	assert.Equal(t, 45, cfg.Limits.MaxPumpDuration)
}

func TestLoadConfigInvalid(t *testing.T) {
	t.Run("should reject a malformed file", func(t *testing.T) {
		_, err := LoadConfigSettings(writeConfig(t, `{`))
		assert.Error(t, err)
	})

	t.Run("should reject a non positive limit", func(t *testing.T) {
		_, err := LoadConfigSettings(writeConfig(t, `{"limits": {"max_banked_time": 0}}`))
		assert.ErrorIs(t, err, ErrInvalidConfig)
	})

	t.Run("should reject a default pump duration over the maximum", func(t *testing.T) {
		_, err := LoadConfigSettings(writeConfig(t, `{"limits": {"default_pump_duration": 61}}`))
		assert.ErrorIs(t, err, ErrInvalidConfig)
	})
}
