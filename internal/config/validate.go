package config

import (
	"errors"
	"fmt"
	"math"
	"net/url"
	"strings"
	"time"
)

// Validate checks the static shape of cfg. Missing channel credentials are
// not errors here: such channels are skipped at dispatch time.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	var errs []error
	add := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	switch strings.ToLower(strings.TrimSpace(cfg.Logging.Level)) {
	case "", "trace", "debug", "info", "warn", "warning", "error":
	default:
		add(fmt.Errorf("logging.level: unknown level %q", cfg.Logging.Level))
	}
	if cfg.Logging.File.Enabled && strings.TrimSpace(cfg.Logging.File.Path) == "" {
		add(errors.New("logging.file.path: required when file logging is enabled"))
	}

	switch d := strings.ToLower(strings.TrimSpace(cfg.Storage.Driver)); d {
	case "", "mem", "memory":
	case "file", "sqlite", "sqlite3":
		if strings.TrimSpace(cfg.Storage.Path) == "" {
			add(fmt.Errorf("storage.path: required for driver %q", d))
		}
	case "postgres", "postgresql", "pg":
		if strings.TrimSpace(cfg.Storage.DSN) == "" {
			add(errors.New("storage.dsn: required for driver postgres"))
		}
	default:
		add(fmt.Errorf("storage.driver: unknown driver %q", cfg.Storage.Driver))
	}
	_, err := ParseDurationField("storage.busy_timeout", cfg.Storage.BusyTimeout)
	add(err)

	switch d := strings.ToLower(strings.TrimSpace(cfg.Tracker.Driver)); d {
	case "", "none":
	case "sqlite", "sqlite3":
		if strings.TrimSpace(cfg.Tracker.Path) == "" {
			add(errors.New("tracker.path: required for driver sqlite"))
		}
	default:
		add(fmt.Errorf("tracker.driver: unknown driver %q", cfg.Tracker.Driver))
	}
	if cfg.Tracker.WindowDays < 0 {
		add(errors.New("tracker.window_days: must be >= 0"))
	}
	add(checkZone("tracker.timezone", cfg.Tracker.Timezone))
	add(checkZone("schedule.timezone", cfg.Schedule.Timezone))

	rw, pw := cfg.Scoring.Weights()
	if rw < 0 || pw < 0 {
		add(errors.New("scoring: weights must be >= 0"))
	} else if math.Abs(rw+pw-1) > 1e-9 {
		add(fmt.Errorf("scoring: weights must sum to 1 (got %.3f)", rw+pw))
	}

	if cfg.Predictor.Enabled {
		add(checkURL("predictor.endpoint", cfg.Predictor.Endpoint))
	}
	_, err = ParseDurationField("predictor.timeout", cfg.Predictor.Timeout)
	add(err)

	if cfg.Dispatch.ItemConcurrency < 0 {
		add(errors.New("dispatch.item_concurrency: must be >= 0"))
	}
	_, err = ParseDurationField("dispatch.channel_timeout", cfg.Dispatch.ChannelTimeout)
	add(err)

	ch := cfg.Channels
	if ch.Email != nil {
		add(checkCommon("channels.email", ch.Email.ChannelCommon))
		if ch.Email.Port < 0 || ch.Email.Port > 65535 {
			add(fmt.Errorf("channels.email.port: out of range (%d)", ch.Email.Port))
		}
	}
	if ch.ChatBot != nil {
		add(checkCommon("channels.chatbot", ch.ChatBot.ChannelCommon))
		if strings.TrimSpace(ch.ChatBot.WebhookURL) != "" {
			add(checkURL("channels.chatbot.webhook_url", ch.ChatBot.WebhookURL))
		}
	}
	if ch.Telegram != nil {
		add(checkCommon("channels.telegram", ch.Telegram.ChannelCommon))
	}
	if ch.Messaging != nil {
		add(checkCommon("channels.messaging", ch.Messaging.ChannelCommon))
		if strings.TrimSpace(ch.Messaging.Endpoint) != "" {
			add(checkURL("channels.messaging.endpoint", ch.Messaging.Endpoint))
		}
	}

	return errors.Join(errs...)
}

func checkCommon(path string, c ChannelCommon) error {
	var errs []error
	if _, err := ParseDurationField(path+".timeout", c.Timeout); err != nil {
		errs = append(errs, err)
	}
	if c.RatePerSec < 0 {
		errs = append(errs, fmt.Errorf("%s.rate_per_sec: must be >= 0", path))
	}
	return errors.Join(errs...)
}

func checkZone(path, tz string) error {
	tz = strings.TrimSpace(tz)
	if tz == "" {
		return nil
	}
	if _, err := time.LoadLocation(tz); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	return nil
}

func checkURL(path, raw string) error {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("%s: invalid URL %q", path, raw)
	}
	return nil
}
