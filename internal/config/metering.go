package config

import (
	"errors"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// MeteringConfig holds the quota and pricing knobs of the render pipeline.
type MeteringConfig struct {
	FreeTierLimit     int  `mapstructure:"freeTierLimit"`
	WindowDays        int  `mapstructure:"windowDays"`
	PayPerUseCents    int  `mapstructure:"payPerUseCents"`
	SubscriptionCents int  `mapstructure:"subscriptionCents"`
	HardCap           bool `mapstructure:"hardCap"`
}

func DefaultMeteringConfig() MeteringConfig {
	return MeteringConfig{
		FreeTierLimit:     10,
		WindowDays:        30,
		PayPerUseCents:    1,
		SubscriptionCents: 1,
		HardCap:           false,
	}
}

// Window returns the length of one free-tier window.
func (c MeteringConfig) Window() time.Duration {
	return time.Duration(c.WindowDays) * 24 * time.Hour
}

type MeteringConfigHolder struct {
	current atomic.Value // holds MeteringConfig
}

// NewStaticMeteringConfig returns a holder that never reloads.
func NewStaticMeteringConfig(cfg MeteringConfig) *MeteringConfigHolder {
	holder := &MeteringConfigHolder{}
	holder.current.Store(cfg)
	return holder
}

func NewMeteringConfigHolder(log *zap.Logger) (*MeteringConfigHolder, error) {
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("metering.config")

	v := viper.New()

	v.SetConfigName("metering")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/htmlpdf/config") // Volume-mounted config
	v.AddConfigPath("/etc/htmlpdf")            // System config
	v.AddConfigPath(".")                       // Current directory (dev mode)

	v.SetEnvPrefix("HTMLPDF")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultMeteringConfig()
	v.SetDefault("metering.freeTierLimit", defaults.FreeTierLimit)
	v.SetDefault("metering.windowDays", defaults.WindowDays)
	v.SetDefault("metering.payPerUseCents", defaults.PayPerUseCents)
	v.SetDefault("metering.subscriptionCents", defaults.SubscriptionCents)
	v.SetDefault("metering.hardCap", defaults.HardCap)

	fileLoaded := true
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		fileLoaded = false
	}

	var cfg MeteringConfig
	if err := v.UnmarshalKey("metering", &cfg); err != nil {
		return nil, err
	}
	if err := validateMeteringConfig(cfg); err != nil {
		return nil, err
	}

	holder := &MeteringConfigHolder{}
	holder.current.Store(cfg)

	if fileLoaded {
		v.WatchConfig()
		v.OnConfigChange(func(e fsnotify.Event) {
			var updated MeteringConfig
			if err := v.UnmarshalKey("metering", &updated); err != nil {
				log.Warn("reload failed", zap.Error(err))
				return
			}
			if err := validateMeteringConfig(updated); err != nil {
				log.Warn("invalid config ignored", zap.Error(err))
				return
			}
			holder.current.Store(updated)
			log.Info("reloaded", zap.String("file", e.Name))
		})
	}

	return holder, nil
}

func (h *MeteringConfigHolder) Get() MeteringConfig {
	if h == nil {
		return DefaultMeteringConfig()
	}
	cfg, ok := h.current.Load().(MeteringConfig)
	if !ok {
		return DefaultMeteringConfig()
	}
	return cfg
}

func validateMeteringConfig(cfg MeteringConfig) error {
	if cfg.FreeTierLimit < 0 {
		return errors.New("metering.freeTierLimit cannot be negative")
	}
	if cfg.WindowDays <= 0 {
		return errors.New("metering.windowDays must be positive")
	}
	if cfg.PayPerUseCents < 0 || cfg.SubscriptionCents < 0 {
		return errors.New("metering prices cannot be negative")
	}
	return nil
}
