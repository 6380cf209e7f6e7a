// Package messaging delivers alerts through a WhatsApp-style messaging API.
//
// The adapter is gated by an API key: without one it reports a config error
// and never touches the network.
package messaging

import (
	"context"
	"net/http"
	"strings"
	"time"

	"expirywatch/internal/channel"
	"expirywatch/internal/compose"
)

const Name = "messaging"

type Config struct {
	Endpoint string
	APIKey   string
	Timeout  time.Duration
}

type Adapter struct {
	endpoint string
	apiKey   string
	client   *http.Client
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
		endpoint: strings.TrimSpace(cfg.Endpoint),
		apiKey:   strings.TrimSpace(cfg.APIKey),
		client:   &http.Client{Timeout: timeout},
	}
}

func (a *Adapter) Name() string { return Name }

func (a *Adapter) Check() error {
	if a.apiKey == "" {
		return channel.NewConfigError(Name, channel.ErrMissingCredentials)
	}
	if a.endpoint == "" {
		return channel.NewConfigError(Name, channel.ErrMissingEndpoint)
	}
	return nil
}

type textBody struct {
	Body string `json:"body"`
}

type message struct {
	Product string   `json:"messaging_product"`
	To      string   `json:"to"`
	Type    string   `json:"type"`
	Text    textBody `json:"text"`
}

func (a *Adapter) Deliver(ctx context.Context, recipient string, al compose.Alert) error {
	if err := a.Check(); err != nil {
		return err
	}
	if strings.TrimSpace(recipient) == "" {
		return channel.NewConfigError(Name, channel.ErrMissingRecipient)
	}

	status, snippet, err := channel.PostJSON(ctx, a.client, Name, a.endpoint, message{
		Product: "whatsapp",
		To:      recipient,
		Type:    "text",
		Text:    textBody{Body: al.Subject() + "\n\n" + al.Body()},
	}, http.Header{"Authorization": []string{"Bearer " + a.apiKey}})
	if err != nil {
		return err
	}
	if status < 200 || status > 299 {
		return channel.StatusError(Name, status, snippet)
	}
	return nil
}
