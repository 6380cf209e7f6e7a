// Package chatbot delivers alerts to a chat-bot webhook.
//
// The wire shape is fixed:
//
//	POST <webhook_url>
//	{"recipient": "<id>", "text": "<html>", "parse_mode": "HTML"}
//
// Only HTTP 200 counts as delivered.
package chatbot

import (
	"context"
	"net/http"
	"strings"
	"time"

	"expirywatch/internal/channel"
	"expirywatch/internal/compose"
)

const Name = "chatbot"

type Config struct {
	WebhookURL  string
	BearerToken string
	Timeout     time.Duration
}

type Adapter struct {
	url    string
	token  string
	client *http.Client
}

var (
	_ channel.Channel = (*Adapter)(nil)
	_ channel.Checker = (*Adapter)(nil)
)

func New(cfg Config) *Adapter {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Adapter{
		url:    strings.TrimSpace(cfg.WebhookURL),
		token:  strings.TrimSpace(cfg.BearerToken),
		client: &http.Client{Timeout: timeout},
	}
}

func (a *Adapter) Name() string { return Name }

func (a *Adapter) Check() error {
	if a.url == "" {
		return channel.NewConfigError(Name, channel.ErrMissingEndpoint)
	}
	return nil
}

// payload field order is part of the wire contract.
type payload struct {
	Recipient string `json:"recipient"`
	Text      string `json:"text"`
	ParseMode string `json:"parse_mode"`
}

func (a *Adapter) Deliver(ctx context.Context, recipient string, al compose.Alert) error {
	if err := a.Check(); err != nil {
		return err
	}
	if strings.TrimSpace(recipient) == "" {
		return channel.NewConfigError(Name, channel.ErrMissingRecipient)
	}

	var hdr http.Header
	if a.token != "" {
		hdr = http.Header{"Authorization": []string{"Bearer " + a.token}}
	}
	status, snippet, err := channel.PostJSON(ctx, a.client, Name, a.url, payload{
		Recipient: recipient,
		Text:      channel.RenderHTML(al),
		ParseMode: "HTML",
	}, hdr)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return channel.StatusError(Name, status, snippet)
	}
	return nil
}
