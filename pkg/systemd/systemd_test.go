package systemd

import (
	"context"
	"testing"
	"time"
)

func TestNoSocketIsNoop(t *testing.T) {
	t.Setenv("NOTIFY_SOCKET", "")
	t.Setenv("WATCHDOG_USEC", "")

	if sent, err := Ready(); sent || err != nil {
		t.Fatalf("Ready sent=%v err=%v", sent, err)
	}
	if sent, err := Status("idle"); sent || err != nil {
		t.Fatalf("Status sent=%v err=%v", sent, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := Watchdog(ctx); err != nil {
		t.Fatalf("Watchdog: %v", err)
	}
	if ctx.Err() != nil {
		t.Fatalf("Watchdog blocked without WATCHDOG_USEC")
	}
}
