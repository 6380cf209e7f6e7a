// Package email delivers alerts over SMTP with mandatory TLS.
//
// Each delivery opens its own session: dial, STARTTLS (or implicit TLS on
// port 465), authenticate, send, quit.
package email

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	mail "github.com/wneessen/go-mail"

	"expirywatch/internal/channel"
	"expirywatch/internal/compose"
)

const (
	Name = "email"

	DefaultPort = 587
)

type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	// From defaults to Username.
	From    string
	HTML    bool
	Timeout time.Duration
}

type Adapter struct {
	cfg  Config
	send func(ctx context.Context, c *mail.Client, m *mail.Msg) error
}

var (
	_ channel.Channel = (*Adapter)(nil)
	_ channel.Checker = (*Adapter)(nil)
)

func New(cfg Config) *Adapter {
	cfg.Host = strings.TrimSpace(cfg.Host)
	cfg.Username = strings.TrimSpace(cfg.Username)
	cfg.From = strings.TrimSpace(cfg.From)
	if cfg.Port <= 0 {
		cfg.Port = DefaultPort
	}
	if cfg.From == "" {
		cfg.From = cfg.Username
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	return &Adapter{cfg: cfg, send: dialAndSend}
}

func dialAndSend(ctx context.Context, c *mail.Client, m *mail.Msg) error {
	return c.DialAndSendWithContext(ctx, m)
}

func (a *Adapter) Name() string { return Name }

func (a *Adapter) Check() error {
	switch {
	case a.cfg.Host == "":
		return channel.NewConfigError(Name, errors.New("missing smtp host"))
	case a.cfg.Username == "" || a.cfg.Password == "":
		return channel.NewConfigError(Name, channel.ErrMissingCredentials)
	case a.cfg.From == "":
		return channel.NewConfigError(Name, errors.New("missing sender address"))
	}
	return nil
}

// Message builds the MIME message for one recipient.
func (a *Adapter) Message(recipient string, al compose.Alert) (*mail.Msg, error) {
	m := mail.NewMsg()
	if err := m.From(a.cfg.From); err != nil {
		return nil, channel.NewConfigError(Name, fmt.Errorf("from: %w", err))
	}
	if err := m.To(recipient); err != nil {
		return nil, channel.NewConfigError(Name, fmt.Errorf("to: %w", err))
	}
	m.Subject(al.Subject())
	if a.cfg.HTML {
		m.SetBodyString(mail.TypeTextHTML, channel.RenderHTMLDocument(al))
		m.AddAlternativeString(mail.TypeTextPlain, al.Body())
	} else {
		m.SetBodyString(mail.TypeTextPlain, al.Body())
	}
	return m, nil
}

func (a *Adapter) client() (*mail.Client, error) {
	policy := mail.TLSMandatory
	opts := []mail.Option{
		mail.WithPort(a.cfg.Port),
		mail.WithSMTPAuth(mail.SMTPAuthPlain),
		mail.WithUsername(a.cfg.Username),
		mail.WithPassword(a.cfg.Password),
		mail.WithTimeout(a.cfg.Timeout),
	}
	if a.cfg.Port == 465 {
		opts = append(opts, mail.WithSSL())
	} else {
		opts = append(opts, mail.WithTLSPolicy(policy))
	}
	return mail.NewClient(a.cfg.Host, opts...)
}

func (a *Adapter) Deliver(ctx context.Context, recipient string, al compose.Alert) error {
	if err := a.Check(); err != nil {
		return err
	}
	if strings.TrimSpace(recipient) == "" {
		return channel.NewConfigError(Name, channel.ErrMissingRecipient)
	}
	m, err := a.Message(recipient, al)
	if err != nil {
		return err
	}
	c, err := a.client()
	if err != nil {
		return channel.NewConfigError(Name, err)
	}
	if err := a.send(ctx, c, m); err != nil {
		return classify(err)
	}
	return nil
}

func classify(err error) error {
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "auth") || strings.Contains(msg, "535") || strings.Contains(msg, "credentials") {
		return &channel.TransportError{Channel: Name, Kind: channel.KindAuth, Err: err}
	}
	return channel.NewTransportError(Name, channel.KindNetwork, err)
}
