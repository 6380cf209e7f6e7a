package app

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"expirywatch/internal/channel"
	"expirywatch/internal/channel/chatbot"
	"expirywatch/internal/channel/email"
	"expirywatch/internal/channel/messaging"
	"expirywatch/internal/channel/telegram"
	"expirywatch/internal/config"
	"expirywatch/internal/dispatch"
	"expirywatch/internal/ledger"
	"expirywatch/internal/ledger/pgstore"
	"expirywatch/internal/ledger/sqlitestore"
	"expirywatch/internal/predict"
	"expirywatch/internal/scheduler"
	"expirywatch/internal/storage"
	"expirywatch/internal/tracker"
	"expirywatch/internal/urgency"
	logx "expirywatch/pkg/logx"
)

const defaultBusyTimeout = time.Second

func mapStorageConfig(cfg *config.Config) (storage.Config, error) {
	sc := cfg.Storage
	busy, err := config.ParseDurationOrDefault("storage.busy_timeout", sc.BusyTimeout, defaultBusyTimeout)
	if err != nil {
		return storage.Config{}, err
	}
	return storage.Config{
		Driver:      storage.Normalize(sc.Driver),
		Path:        strings.TrimSpace(sc.Path),
		DSN:         strings.TrimSpace(sc.DSN),
		BusyTimeout: busy,
	}, nil
}

// openLedger opens the alert ledger selected by storage.driver.
func openLedger(ctx context.Context, cfg *config.Config, log logx.Logger) (ledger.Ledger, error) {
	sc, err := mapStorageConfig(cfg)
	if err != nil {
		return nil, err
	}
	switch sc.Driver {
	case "memory":
		log.Warn("ledger is in memory; alerts may repeat after restart")
		return ledger.NewMemory(), nil
	case "file":
		return ledger.OpenFile(sc.Path, log)
	case "sqlite":
		return sqlitestore.Open(ctx, sc.Path, sc.BusyTimeout, log)
	case "postgres":
		return pgstore.New(ctx, sc.DSN)
	default:
		return nil, fmt.Errorf("unknown storage.driver: %s", cfg.Storage.Driver)
	}
}

// openTracker opens the tracker store. The returned db is nil unless the
// store owns a database handle.
func openTracker(ctx context.Context, cfg *config.Config, loc *time.Location, log logx.Logger) (tracker.Store, *sql.DB, error) {
	tc := cfg.Tracker
	switch strings.ToLower(strings.TrimSpace(tc.Driver)) {
	case "", "none":
		log.Warn("no tracker configured; cycles will find no items")
		return tracker.NewStatic(nil, loc), nil, nil
	case "sqlite", "sqlite3":
		busy, err := config.ParseDurationOrDefault("storage.busy_timeout", cfg.Storage.BusyTimeout, defaultBusyTimeout)
		if err != nil {
			return nil, nil, err
		}
		db, err := storage.OpenSQLite(ctx, tc.Path, busy, log)
		if err != nil {
			return nil, nil, err
		}
		st := tracker.NewSQLite(db, loc)
		if err := st.EnsureSchema(ctx); err != nil {
			_ = db.Close()
			return nil, nil, err
		}
		return st, db, nil
	default:
		return nil, nil, fmt.Errorf("unknown tracker.driver: %s", tc.Driver)
	}
}

// buildTargets maps enabled channel blocks to router targets. Missing
// credentials are not errors; the channel reports them from Check.
func buildTargets(cfg *config.Config) ([]dispatch.Target, error) {
	defTimeout, err := config.ParseDurationOrDefault("dispatch.channel_timeout", cfg.Dispatch.ChannelTimeout, config.DefaultChannelTimeout)
	if err != nil {
		return nil, err
	}
	var out []dispatch.Target
	add := func(name string, common config.ChannelCommon, build func(timeout time.Duration) channel.Channel) error {
		if !common.Enabled {
			return nil
		}
		timeout, err := config.ParseDurationOrDefault("channels."+name+".timeout", common.Timeout, defTimeout)
		if err != nil {
			return err
		}
		out = append(out, dispatch.Target{
			Channel:    build(timeout),
			Recipient:  strings.TrimSpace(common.Recipient),
			Timeout:    timeout,
			RatePerSec: common.RatePerSec,
		})
		return nil
	}

	ch := cfg.Channels
	if c := ch.Email; c != nil {
		if err := add(email.Name, c.ChannelCommon, func(d time.Duration) channel.Channel {
			return email.New(email.Config{
				Host:     c.Host,
				Port:     c.Port,
				Username: c.Username,
				Password: c.Password,
				From:     c.From,
				HTML:     c.UseHTML(),
				Timeout:  d,
			})
		}); err != nil {
			return nil, err
		}
	}
	if c := ch.ChatBot; c != nil {
		if err := add(chatbot.Name, c.ChannelCommon, func(d time.Duration) channel.Channel {
			return chatbot.New(chatbot.Config{WebhookURL: c.WebhookURL, BearerToken: c.BearerToken, Timeout: d})
		}); err != nil {
			return nil, err
		}
	}
	if c := ch.Telegram; c != nil {
		if err := add(telegram.Name, c.ChannelCommon, func(d time.Duration) channel.Channel {
			return telegram.New(telegram.Config{Token: c.Token, APIURL: c.APIURL, Timeout: d})
		}); err != nil {
			return nil, err
		}
	}
	if c := ch.Messaging; c != nil {
		if err := add(messaging.Name, c.ChannelCommon, func(d time.Duration) channel.Channel {
			return messaging.New(messaging.Config{Endpoint: c.Endpoint, APIKey: c.APIKey, Timeout: d})
		}); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func buildPredictor(cfg *config.Config) (urgency.Predictor, time.Duration, error) {
	pc := cfg.Predictor
	timeout, err := config.ParseDurationOrDefault("predictor.timeout", pc.Timeout, config.DefaultPredictTimeout)
	if err != nil {
		return nil, 0, err
	}
	if !pc.Enabled {
		return nil, timeout, nil
	}
	c, err := predict.NewClient(predict.Config{
		Endpoint: pc.Endpoint,
		APIKey:   pc.APIKey,
		Model:    pc.Model,
		Timeout:  timeout,
	})
	if err != nil {
		return nil, 0, err
	}
	return c, timeout, nil
}

// runnerConfig maps the scoring, tracker and dispatch sections.
func runnerConfig(cfg *config.Config, predictTimeout time.Duration) (dispatch.Config, error) {
	loc, err := scheduler.LoadLocation(cfg.Tracker.Timezone)
	if err != nil {
		return dispatch.Config{}, err
	}
	rw, pw := cfg.Scoring.Weights()
	pol := urgency.Policy{RuleWeight: rw, PredictiveWeight: pw}
	if err := pol.Validate(); err != nil {
		return dispatch.Config{}, err
	}
	return dispatch.Config{
		WindowDays:           cfg.Tracker.Window(),
		IncludeOverdue:       cfg.Tracker.Overdue(),
		ItemConcurrency:      cfg.Dispatch.Concurrency(),
		RespectItemThreshold: cfg.Dispatch.RespectThreshold(),
		PredictorTimeout:     predictTimeout,
		Location:             loc,
		Policy:               pol,
	}, nil
}
