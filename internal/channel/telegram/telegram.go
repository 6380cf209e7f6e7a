// Package telegram delivers alerts through the Telegram Bot API.
//
// Recipients are chat IDs ("-1001234567890"), optionally with a forum
// thread ("-1001234567890:42"), or public channel usernames ("@ops_alerts").
package telegram

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	"expirywatch/internal/channel"
	"expirywatch/internal/compose"
)

const (
	Name = "telegram"

	DefaultAPIURL = "https://api.telegram.org"
)

type Config struct {
	Token   string
	APIURL  string
	Timeout time.Duration
}

type Adapter struct {
	bot *tele.Bot
	err error
}

var (
	_ channel.Channel = (*Adapter)(nil)
	_ channel.Checker = (*Adapter)(nil)
)

// New builds the adapter. A missing token is reported by Check and Deliver,
// not here, so a misconfigured channel is skipped rather than fatal.
func New(cfg Config) *Adapter {
	token := strings.TrimSpace(cfg.Token)
	if token == "" {
		return &Adapter{err: channel.NewConfigError(Name, channel.ErrMissingCredentials)}
	}
	apiURL := strings.TrimRight(strings.TrimSpace(cfg.APIURL), "/")
	if apiURL == "" {
		apiURL = DefaultAPIURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	// Offline skips the getMe round-trip; this adapter only sends.
	b, err := tele.NewBot(tele.Settings{
		URL:     apiURL,
		Token:   token,
		Client:  &http.Client{Timeout: timeout},
		Offline: true,
	})
	if err != nil {
		return &Adapter{err: channel.NewConfigError(Name, err)}
	}
	return &Adapter{bot: b}
}

func (a *Adapter) Name() string { return Name }

func (a *Adapter) Check() error { return a.err }

type username string

func (u username) Recipient() string { return string(u) }

// parseRecipient splits "chat[:thread]" into a telebot recipient and thread id.
func parseRecipient(s string) (tele.Recipient, int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, 0, channel.ErrMissingRecipient
	}
	if strings.HasPrefix(s, "@") {
		return username(s), 0, nil
	}
	chatPart, threadPart, hasThread := strings.Cut(s, ":")
	id, err := strconv.ParseInt(chatPart, 10, 64)
	if err != nil {
		return nil, 0, errors.New("recipient must be a chat id or @username")
	}
	thread := 0
	if hasThread {
		thread, err = strconv.Atoi(threadPart)
		if err != nil || thread < 0 {
			return nil, 0, errors.New("invalid thread id")
		}
	}
	return &tele.Chat{ID: id}, thread, nil
}

func (a *Adapter) Deliver(ctx context.Context, recipient string, al compose.Alert) error {
	if a.err != nil {
		return a.err
	}
	to, thread, err := parseRecipient(recipient)
	if err != nil {
		return channel.NewConfigError(Name, err)
	}
	if err := ctx.Err(); err != nil {
		return channel.NewTransportError(Name, channel.KindTimeout, err)
	}

	_, err = a.bot.Send(to, channel.RenderHTML(al), &tele.SendOptions{
		ParseMode:             tele.ModeHTML,
		DisableWebPagePreview: true,
		ThreadID:              thread,
	})
	if err != nil {
		return classify(err)
	}
	return nil
}

func classify(err error) error {
	var te *tele.Error
	if errors.As(err, &te) {
		if te.Code == http.StatusUnauthorized || te.Code == http.StatusForbidden {
			return &channel.TransportError{Channel: Name, Kind: channel.KindAuth, Status: te.Code, Err: err}
		}
		return &channel.TransportError{Channel: Name, Kind: channel.KindStatus, Status: te.Code, Err: err}
	}
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "unauthorized") || strings.Contains(msg, "forbidden") {
		return &channel.TransportError{Channel: Name, Kind: channel.KindAuth, Err: err}
	}
	if strings.Contains(msg, "telegram:") || strings.Contains(msg, "bad request") {
		return &channel.TransportError{Channel: Name, Kind: channel.KindStatus, Err: err}
	}
	return channel.NewTransportError(Name, channel.KindNetwork, err)
}
