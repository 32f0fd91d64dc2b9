package config

import (
	"errors"
	"log"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// PlatformConfig holds runtime-tunable platform settings.
type PlatformConfig struct {
	// InviteCodeLength is the number of random characters in community
	// and institution invite codes.
	InviteCodeLength int `mapstructure:"inviteCodeLength"`
	// SessionTTLHours bounds login session lifetime.
	SessionTTLHours int `mapstructure:"sessionTTLHours"`
	// MaxPageSize caps list endpoints.
	MaxPageSize int `mapstructure:"maxPageSize"`
	// MessagePageSize is the default chat page size.
	MessagePageSize int `mapstructure:"messagePageSize"`
}

func DefaultPlatformConfig() PlatformConfig {
	return PlatformConfig{
		InviteCodeLength: 10,
		SessionTTLHours:  24 * 7,
		MaxPageSize:      100,
		MessagePageSize:  50,
	}
}

func (c PlatformConfig) SessionTTL() time.Duration {
	return time.Duration(c.SessionTTLHours) * time.Hour
}

// PlatformConfigHolder serves the current platform config and hot-reloads it
// when the backing file changes.
type PlatformConfigHolder struct {
	current atomic.Value // holds PlatformConfig
}

func NewPlatformConfigHolder() (*PlatformConfigHolder, error) {
	v := viper.New()

	v.SetConfigName("platform")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/atrium/config") // Volume-mounted config
	v.AddConfigPath("/etc/atrium")            // System config
	v.AddConfigPath(".")                      // Current directory (dev mode)

	v.SetEnvPrefix("ATRIUM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultPlatformConfig()
	v.SetDefault("platform.inviteCodeLength", defaults.InviteCodeLength)
	v.SetDefault("platform.sessionTTLHours", defaults.SessionTTLHours)
	v.SetDefault("platform.maxPageSize", defaults.MaxPageSize)
	v.SetDefault("platform.messagePageSize", defaults.MessagePageSize)

	fileFound := true
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		fileFound = false
	}

	var cfg PlatformConfig
	if err := v.UnmarshalKey("platform", &cfg); err != nil {
		return nil, err
	}
	if err := validatePlatformConfig(cfg); err != nil {
		return nil, err
	}

	holder := &PlatformConfigHolder{}
	holder.current.Store(cfg)

	if fileFound {
		v.WatchConfig()
		v.OnConfigChange(func(e fsnotify.Event) {
			var updated PlatformConfig
			if err := v.UnmarshalKey("platform", &updated); err != nil {
				log.Printf("[platform-config] reload failed: %v", err)
				return
			}
			if err := validatePlatformConfig(updated); err != nil {
				log.Printf("[platform-config] invalid config ignored: %v", err)
				return
			}
			holder.current.Store(updated)
			log.Printf("[platform-config] reloaded from %s", e.Name)
		})
	}

	return holder, nil
}

// Current returns the active platform config snapshot.
func (h *PlatformConfigHolder) Current() PlatformConfig {
	if h == nil {
		return DefaultPlatformConfig()
	}
	cfg, ok := h.current.Load().(PlatformConfig)
	if !ok {
		return DefaultPlatformConfig()
	}
	return cfg
}

func validatePlatformConfig(cfg PlatformConfig) error {
	if cfg.InviteCodeLength < 6 || cfg.InviteCodeLength > 64 {
		return errors.New("platform.inviteCodeLength must be between 6 and 64")
	}
	if cfg.SessionTTLHours <= 0 {
		return errors.New("platform.sessionTTLHours must be positive")
	}
	if cfg.MaxPageSize <= 0 || cfg.MessagePageSize <= 0 {
		return errors.New("platform page sizes must be positive")
	}
	return nil
}
