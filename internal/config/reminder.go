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

// ReminderConfig is the hot-reloadable part of the reminder pipeline:
// which notification channel is active, its endpoints/credentials, and the
// message template rendered into each reminder.
type ReminderConfig struct {
	Channel string `mapstructure:"channel"` // "smtp" or "api"

	SMTPHost     string `mapstructure:"smtpHost"`
	SMTPPort     int    `mapstructure:"smtpPort"`
	SMTPUser     string `mapstructure:"smtpUser"`
	SMTPPassword string `mapstructure:"smtpPassword"`
	SMTPFrom     string `mapstructure:"smtpFrom"`

	APIURL   string `mapstructure:"apiUrl"`
	APIKey   string `mapstructure:"apiKey"`
	APIToken string `mapstructure:"apiToken"`

	Subject      string `mapstructure:"subject"`
	BodyTemplate string `mapstructure:"bodyTemplate"`

	// Lifecycles whose policy became effective before this date are never
	// reminded; it marks the cutover to the current entitlement policy.
	PolicyCutover string `mapstructure:"policyCutover"`
}

func DefaultReminderConfig() ReminderConfig {
	return ReminderConfig{
		Channel:       "smtp",
		SMTPPort:      587,
		Subject:       "Your team seat is about to expire",
		BodyTemplate:  "Hi {email}, your team seat expires at {expire_at} ({days_left} day(s) left). Contact your administrator to renew, or you will be removed from the workspace.",
		PolicyCutover: "2026-03-01",
	}
}

func (c ReminderConfig) CutoverTime() time.Time {
	t, err := time.Parse("2006-01-02", c.PolicyCutover)
	if err != nil {
		return time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	}
	return t.UTC()
}

type ReminderConfigHolder struct {
	current atomic.Value // holds ReminderConfig
}

// NewReminderConfigHolder loads reminder.yml and keeps it hot-reloaded so
// operators can change templates and channels without a restart.
func NewReminderConfigHolder() (*ReminderConfigHolder, error) {
	v := viper.New()

	v.SetConfigName("reminder")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/seatwise/config")
	v.AddConfigPath("/etc/seatwise")
	v.AddConfigPath(".")

	v.SetEnvPrefix("SEATWISE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultReminderConfig()
	v.SetDefault("reminder.channel", defaults.Channel)
	v.SetDefault("reminder.smtpPort", defaults.SMTPPort)
	v.SetDefault("reminder.subject", defaults.Subject)
	v.SetDefault("reminder.bodyTemplate", defaults.BodyTemplate)
	v.SetDefault("reminder.policyCutover", defaults.PolicyCutover)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var cfg ReminderConfig
	if err := v.UnmarshalKey("reminder", &cfg); err != nil {
		return nil, err
	}
	if err := validateReminderConfig(cfg); err != nil {
		return nil, err
	}

	holder := &ReminderConfigHolder{}
	holder.current.Store(cfg)

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated ReminderConfig
		if err := v.UnmarshalKey("reminder", &updated); err != nil {
			log.Printf("[reminder-config] reload failed: %v", err)
			return
		}
		if err := validateReminderConfig(updated); err != nil {
			log.Printf("[reminder-config] invalid config ignored: %v", err)
			return
		}
		holder.current.Store(updated)
		log.Printf("[reminder-config] reloaded from %s", e.Name)
	})

	return holder, nil
}

func (h *ReminderConfigHolder) Get() ReminderConfig {
	return h.current.Load().(ReminderConfig)
}

// Store replaces the current config. Tests use it to avoid touching disk.
func (h *ReminderConfigHolder) Store(cfg ReminderConfig) {
	h.current.Store(cfg)
}

func validateReminderConfig(cfg ReminderConfig) error {
	switch cfg.Channel {
	case "smtp", "api":
	default:
		return errors.New("reminder.channel must be smtp or api")
	}
	if strings.TrimSpace(cfg.BodyTemplate) == "" {
		return errors.New("reminder.bodyTemplate cannot be empty")
	}
	return nil
}
