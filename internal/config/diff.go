package config

import (
	"reflect"
	"strings"

	logx "expirywatch/pkg/logx"
)

// Change summarizes what differs between two configs.
type Change struct {
	// Sections lists changed top-level sections in schema order.
	Sections []string
	// Channels lists changed channel blocks.
	Channels []string
	// Attrs are safe structured fields for logging; they never carry secrets.
	Attrs []logx.Field
	// RestartRequired is set when a section that is only read at startup changed.
	RestartRequired bool
}

// Has reports whether section changed.
func (c Change) Has(section string) bool {
	for _, s := range c.Sections {
		if s == section {
			return true
		}
	}
	return false
}

// SummarizeConfigChange compares oldCfg and newCfg.
func SummarizeConfigChange(oldCfg, newCfg *Config) Change {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}
	var c Change

	if !reflect.DeepEqual(oldCfg.Logging, newCfg.Logging) {
		c.Sections = append(c.Sections, "logging")
		c.Attrs = append(c.Attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
		)
	}

	// Storage and tracker are opened once; never log the DSN.
	if !reflect.DeepEqual(oldCfg.Storage, newCfg.Storage) {
		c.Sections = append(c.Sections, "storage")
		c.RestartRequired = true
		c.Attrs = append(c.Attrs,
			logx.String("storage.driver", strings.TrimSpace(newCfg.Storage.Driver)),
			logx.Bool("storage.path_set", strings.TrimSpace(newCfg.Storage.Path) != ""),
			logx.Bool("storage.dsn_set", strings.TrimSpace(newCfg.Storage.DSN) != ""),
		)
	}
	if oldCfg.Tracker.Driver != newCfg.Tracker.Driver || oldCfg.Tracker.Path != newCfg.Tracker.Path {
		c.RestartRequired = true
	}
	if !reflect.DeepEqual(oldCfg.Tracker, newCfg.Tracker) {
		c.Sections = append(c.Sections, "tracker")
		c.Attrs = append(c.Attrs,
			logx.String("tracker.driver", strings.TrimSpace(newCfg.Tracker.Driver)),
			logx.Int("tracker.window_days", newCfg.Tracker.Window()),
			logx.Bool("tracker.include_overdue", newCfg.Tracker.Overdue()),
			logx.String("tracker.timezone", strings.TrimSpace(newCfg.Tracker.Timezone)),
		)
	}

	if !reflect.DeepEqual(oldCfg.Scoring, newCfg.Scoring) {
		rw, pw := newCfg.Scoring.Weights()
		c.Sections = append(c.Sections, "scoring")
		c.Attrs = append(c.Attrs, logx.Float64("scoring.rule_weight", rw), logx.Float64("scoring.predictive_weight", pw))
	}

	// Predictor (never log api key)
	if !reflect.DeepEqual(oldCfg.Predictor, newCfg.Predictor) {
		c.Sections = append(c.Sections, "predictor")
		c.Attrs = append(c.Attrs,
			logx.Bool("predictor.enabled", newCfg.Predictor.Enabled),
			logx.String("predictor.endpoint", strings.TrimSpace(newCfg.Predictor.Endpoint)),
			logx.String("predictor.model", strings.TrimSpace(newCfg.Predictor.Model)),
			logx.Bool("predictor.api_key_set", strings.TrimSpace(newCfg.Predictor.APIKey) != ""),
		)
	}

	if !reflect.DeepEqual(oldCfg.Dispatch, newCfg.Dispatch) {
		c.Sections = append(c.Sections, "dispatch")
		c.Attrs = append(c.Attrs,
			logx.Int("dispatch.item_concurrency", newCfg.Dispatch.Concurrency()),
			logx.String("dispatch.channel_timeout", strings.TrimSpace(newCfg.Dispatch.ChannelTimeout)),
			logx.Bool("dispatch.respect_item_threshold", newCfg.Dispatch.RespectThreshold()),
		)
	}

	if !reflect.DeepEqual(oldCfg.Schedule, newCfg.Schedule) {
		c.Sections = append(c.Sections, "schedule")
		c.Attrs = append(c.Attrs,
			logx.Bool("schedule.enabled", newCfg.Schedule.Enabled),
			logx.String("schedule.spec", newCfg.Schedule.DailyOrDefault()),
			logx.String("schedule.timezone", strings.TrimSpace(newCfg.Schedule.Timezone)),
		)
	}

	if !reflect.DeepEqual(oldCfg.HTTP, newCfg.HTTP) {
		c.Sections = append(c.Sections, "http")
		c.RestartRequired = true
		c.Attrs = append(c.Attrs, logx.Bool("http.enabled", newCfg.HTTP.Enabled), logx.String("http.addr", newCfg.HTTP.ListenAddr()))
	}

	o, n := oldCfg.Channels, newCfg.Channels
	diffChannel(&c, "email", o.Email, n.Email, func() ChannelCommon { return n.Email.ChannelCommon })
	diffChannel(&c, "chatbot", o.ChatBot, n.ChatBot, func() ChannelCommon { return n.ChatBot.ChannelCommon })
	diffChannel(&c, "telegram", o.Telegram, n.Telegram, func() ChannelCommon { return n.Telegram.ChannelCommon })
	diffChannel(&c, "messaging", o.Messaging, n.Messaging, func() ChannelCommon { return n.Messaging.ChannelCommon })
	if len(c.Channels) > 0 {
		c.Sections = append(c.Sections, "channels")
	}
	return c
}

// diffChannel compares two channel blocks of the same type. Only the
// enabled flag and whether a recipient is set are logged.
func diffChannel[T any](c *Change, name string, o, n *T, common func() ChannelCommon) {
	if reflect.DeepEqual(o, n) {
		return
	}
	c.Channels = append(c.Channels, name)
	if n == nil {
		c.Attrs = append(c.Attrs, logx.Bool("channels."+name+".present", false))
		return
	}
	cc := common()
	c.Attrs = append(c.Attrs,
		logx.Bool("channels."+name+".enabled", cc.Enabled),
		logx.Bool("channels."+name+".recipient_set", strings.TrimSpace(cc.Recipient) != ""),
	)
}
