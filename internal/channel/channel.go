package channel

import (
	"context"
	"time"

	"expirywatch/internal/compose"
)

// Channel delivers rendered alerts over one medium.
type Channel interface {
	// Name identifies the channel in outcomes and the ledger. It must be stable.
	Name() string
	Deliver(ctx context.Context, recipient string, a compose.Alert) error
}

// Checker is implemented by adapters that can report missing configuration
// before any attempt is made.
type Checker interface {
	Check() error
}

// Outcome is the result of one delivery attempt on one channel.
type Outcome struct {
	Channel   string    `json:"channel"`
	Succeeded bool      `json:"succeeded"`
	ErrorKind Kind      `json:"error_kind,omitempty"`
	Error     string    `json:"error,omitempty"`
	At        time.Time `json:"at"`
}

// Succeeded builds a successful outcome.
func Succeeded(name string, at time.Time) Outcome {
	return Outcome{Channel: name, Succeeded: true, At: at}
}

// Failed builds a failed outcome from a delivery error.
func Failed(name string, at time.Time, err error) Outcome {
	o := Outcome{Channel: name, At: at, ErrorKind: KindOf(err)}
	if err != nil {
		o.Error = err.Error()
	}
	return o
}
