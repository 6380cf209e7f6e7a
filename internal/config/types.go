package config

// Config is the on-disk configuration. Every section is optional.
//
// All durations are Go duration strings (e.g. "500ms", "15s", "1m").
type Config struct {
	Logging   LoggingConfig   `json:"logging"`
	Storage   StorageConfig   `json:"storage"`
	Tracker   TrackerConfig   `json:"tracker"`
	Scoring   ScoringConfig   `json:"scoring"`
	Predictor PredictorConfig `json:"predictor"`
	Dispatch  DispatchConfig  `json:"dispatch"`
	Schedule  ScheduleConfig  `json:"schedule"`
	HTTP      HTTPConfig      `json:"http"`
	Channels  ChannelsConfig  `json:"channels"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// StorageConfig selects where the delivery ledger lives.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./data/expirywatch.db" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path,omitempty"`
	DSN         string `json:"dsn,omitempty"` // postgres only (do not log)
	BusyTimeout string `json:"busy_timeout,omitempty"`
}

// TrackerConfig points at the item tracker database.
//
// Defaults: window_days 30, include_overdue true, timezone UTC.
type TrackerConfig struct {
	Driver         string `json:"driver"` // "sqlite" | "none"
	Path           string `json:"path,omitempty"`
	WindowDays     int    `json:"window_days,omitempty"`
	IncludeOverdue *bool  `json:"include_overdue,omitempty"`
	Timezone       string `json:"timezone,omitempty"`
}

// ScoringConfig holds the blend weights. Omitted weights default to 0.5
// each; when only one is given the other is its complement.
type ScoringConfig struct {
	RuleWeight       *float64 `json:"rule_weight,omitempty"`
	PredictiveWeight *float64 `json:"predictive_weight,omitempty"`
}

type PredictorConfig struct {
	Enabled  bool   `json:"enabled"`
	Endpoint string `json:"endpoint,omitempty"`
	APIKey   string `json:"api_key,omitempty"` // do not log
	Timeout  string `json:"timeout,omitempty"`
	Model    string `json:"model,omitempty"`
}

// DispatchConfig controls per-cycle behavior.
//
// Defaults: item_concurrency 4, channel_timeout "15s",
// respect_item_threshold true.
type DispatchConfig struct {
	ItemConcurrency      int    `json:"item_concurrency,omitempty"`
	ChannelTimeout       string `json:"channel_timeout,omitempty"`
	RespectItemThreshold *bool  `json:"respect_item_threshold,omitempty"`
}

// ScheduleConfig controls the cron triggers. Timezone defaults to the
// tracker timezone.
type ScheduleConfig struct {
	Enabled     bool   `json:"enabled"`
	Spec        string `json:"spec,omitempty"`
	WeeklySpec  string `json:"weekly_spec,omitempty"`
	MonthlySpec string `json:"monthly_spec,omitempty"`
	Timezone    string `json:"timezone,omitempty"`
	RunOnStart  bool   `json:"run_on_start,omitempty"`
}

type HTTPConfig struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr,omitempty"`
	// Pprof mounts net/http/pprof under /debug/pprof. Bind Addr to
	// localhost when enabling it.
	Pprof bool `json:"pprof,omitempty"`
}

type ChannelsConfig struct {
	Email     *EmailConfig     `json:"email,omitempty"`
	ChatBot   *ChatBotConfig   `json:"chatbot,omitempty"`
	Telegram  *TelegramConfig  `json:"telegram,omitempty"`
	Messaging *MessagingConfig `json:"messaging,omitempty"`
}

// ChannelCommon is shared by every channel block. Credentials live in the
// channel-specific fields next to it.
type ChannelCommon struct {
	Enabled    bool    `json:"enabled"`
	Recipient  string  `json:"recipient"`
	Timeout    string  `json:"timeout,omitempty"`
	RatePerSec float64 `json:"rate_per_sec,omitempty"`
}

type EmailConfig struct {
	ChannelCommon
	Host     string `json:"host"`
	Port     int    `json:"port,omitempty"`
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"` // do not log
	From     string `json:"from,omitempty"`
	HTML     *bool  `json:"html,omitempty"`
}

type ChatBotConfig struct {
	ChannelCommon
	WebhookURL  string `json:"webhook_url"`
	BearerToken string `json:"bearer_token,omitempty"` // do not log
}

type TelegramConfig struct {
	ChannelCommon
	Token  string `json:"token"` // do not log
	APIURL string `json:"api_url,omitempty"`
}

type MessagingConfig struct {
	ChannelCommon
	Endpoint string `json:"endpoint"`
	APIKey   string `json:"api_key"` // do not log
}
