package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	DefaultLogLevel = slog.LevelInfo

	EnvPrefix = "LBIS"
)

type (
	ActuatorConfig struct {
		Driver         string        `mapstructure:"driver"`
		BaseURL        string        `mapstructure:"base_url"`
		Timeout        time.Duration `mapstructure:"timeout"`
		UseFeed        bool          `mapstructure:"use_feed"`
		ReconnectDelay time.Duration `mapstructure:"reconnect_delay"`
		PumpAddress    string        `mapstructure:"pump_address"`
		PumpName       string        `mapstructure:"pump_name"`
		NormallyOn     bool          `mapstructure:"normally_on"`
	}

	// LimitsConfig values are in seconds.
	LimitsConfig struct {
		MaxPumpDuration     int `mapstructure:"max_pump_duration"`
		DefaultPumpDuration int `mapstructure:"default_pump_duration"`
		MaxSessionExtension int `mapstructure:"max_session_extension"`
		MaxSessionTime      int `mapstructure:"max_session_time"`
		MaxSessionTotal     int `mapstructure:"max_session_total"`
		MaxBankedTime       int `mapstructure:"max_banked_time"`
		DefaultSessionTime  int `mapstructure:"default_session_time"`
	}

	MonitorConfig struct {
		ProbeInterval time.Duration `mapstructure:"probe_interval"`
		ProbeTimeout  time.Duration `mapstructure:"probe_timeout"`
		TickInterval  time.Duration `mapstructure:"tick_interval"`
	}

	DiscordConfig struct {
		BotToken  string `mapstructure:"bot_token"`
		ChannelID string `mapstructure:"channel_id"`
	}

	TwilioConfig struct {
		AccountSID string `mapstructure:"account_sid"`
		AuthToken  string `mapstructure:"auth_token"`
		FromPhone  string `mapstructure:"from_phone"`
		ToPhone    string `mapstructure:"to_phone"`
	}

	Config struct {
		StateFile      string         `mapstructure:"state_file"`
		ApiKey         string         `mapstructure:"api_key"`
		WearerSecret   string         `mapstructure:"wearer_secret"`
		PrivilegedIDs  []string       `mapstructure:"privileged_ids"`
		OriginPatterns []string       `mapstructure:"origin_patterns"`
		Actuator       ActuatorConfig `mapstructure:"actuator"`
		Limits         LimitsConfig   `mapstructure:"limits"`
		Monitor        MonitorConfig  `mapstructure:"monitor"`
		Discord        DiscordConfig  `mapstructure:"discord"`
		Twilio         TwilioConfig   `mapstructure:"twilio"`
	}
)

var ErrInvalidConfig = errors.New("invalid configuration")

func setDefaults(v *viper.Viper) {
	v.SetDefault("state_file", "./session_state.json")
	v.SetDefault("api_key", "")
	v.SetDefault("wearer_secret", "")
	v.SetDefault("privileged_ids", []string{})
	v.SetDefault("origin_patterns", []string{})

	v.SetDefault("actuator.driver", "http")
	v.SetDefault("actuator.base_url", "http://localhost:80")
	v.SetDefault("actuator.timeout", "5s")
	v.SetDefault("actuator.use_feed", false)
	v.SetDefault("actuator.reconnect_delay", "15s")
	v.SetDefault("actuator.pump_address", "")
	v.SetDefault("actuator.pump_name", "pump")
	v.SetDefault("actuator.normally_on", false)

	v.SetDefault("limits.max_pump_duration", 60)
	v.SetDefault("limits.default_pump_duration", 30)
	v.SetDefault("limits.max_session_extension", 3600)
	v.SetDefault("limits.max_session_time", 1800)
	v.SetDefault("limits.max_session_total", 14400)
	v.SetDefault("limits.max_banked_time", 3600)
	v.SetDefault("limits.default_session_time", 1800)

	v.SetDefault("monitor.probe_interval", "15s")
	v.SetDefault("monitor.probe_timeout", "5s")
	v.SetDefault("monitor.tick_interval", "1s")

	v.SetDefault("discord.bot_token", "")
	v.SetDefault("discord.channel_id", "")

	v.SetDefault("twilio.account_sid", "")
	v.SetDefault("twilio.auth_token", "")
	v.SetDefault("twilio.from_phone", "")
	v.SetDefault("twilio.to_phone", "")
}

// LoadConfigSettings reads filename over the defaults. LBIS_ prefixed
// environment variables override both, e.g. LBIS_DISCORD_BOT_TOKEN. A missing
// file is not an error.
func LoadConfigSettings(filename string) (Config, error) {
	slog.Debug(">>LoadConfigSettings", "file", filename)
	defer slog.Debug("<<LoadConfigSettings")

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if len(filename) != 0 {
		v.SetConfigFile(filename)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
				return Config{}, fmt.Errorf("read config file %q: %w", filename, err)
			}
			slog.Warn("config file not found, using defaults", "file", filename)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func (cfg Config) Validate() error {
	if len(cfg.StateFile) == 0 {
		return fmt.Errorf("%w: state_file is required", ErrInvalidConfig)
	}

	limits := map[string]int{
		"limits.max_pump_duration":     cfg.Limits.MaxPumpDuration,
		"limits.max_session_extension": cfg.Limits.MaxSessionExtension,
		"limits.max_session_time":      cfg.Limits.MaxSessionTime,
		"limits.max_session_total":     cfg.Limits.MaxSessionTotal,
		"limits.max_banked_time":       cfg.Limits.MaxBankedTime,
	}
	for key, value := range limits {
		if value <= 0 {
			return fmt.Errorf("%w: %s must be positive", ErrInvalidConfig, key)
		}
	}

	if cfg.Limits.DefaultPumpDuration <= 0 || cfg.Limits.DefaultPumpDuration > cfg.Limits.MaxPumpDuration {
		return fmt.Errorf("%w: limits.default_pump_duration must be between 1 and %d", ErrInvalidConfig, cfg.Limits.MaxPumpDuration)
	}

	return nil
}
