package chatbot

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"expirywatch/internal/channel"
	"expirywatch/internal/compose"
	"expirywatch/internal/expiry"
	"expirywatch/internal/urgency"
)

func testAlert() compose.Alert {
	it := expiry.Item{ID: 3, Title: "TLS cert <prod>", Category: "certificate", ExpiryDate: "2026-10-23", Source: "scan"}
	return compose.Compose(it, urgency.Assessment{Tier: expiry.TierUrgent, Score: 95, DaysLeft: 5})
}

func TestDeliverWireFormat(t *testing.T) {
	var body string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method=%s", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("content-type=%q", ct)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer s3cret" {
			t.Errorf("auth=%q", auth)
		}
		b, _ := io.ReadAll(r.Body)
		body = string(b)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	a := New(Config{WebhookURL: srv.URL, BearerToken: "s3cret"})
	if err := a.Deliver(context.Background(), "ops-room", testAlert()); err != nil {
		t.Fatalf("Deliver: %v", err)
	}
	if !strings.HasPrefix(body, `{"recipient":"ops-room","text":"`) || !strings.HasSuffix(body, `","parse_mode":"HTML"}`) {
		t.Fatalf("unexpected wire body: %s", body)
	}
	if !strings.Contains(body, `TLS cert \u0026lt;prod\u0026gt;`) {
		t.Fatalf("title should be HTML-escaped inside JSON: %s", body)
	}
}

func TestDeliverNon200IsTransportError(t *testing.T) {
	for _, status := range []int{http.StatusAccepted, http.StatusBadRequest, http.StatusUnauthorized, http.StatusInternalServerError} {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(status)
			_, _ = w.Write([]byte("nope"))
		}))
		err := New(Config{WebhookURL: srv.URL}).Deliver(context.Background(), "r", testAlert())
		srv.Close()

		var te *channel.TransportError
		if !errors.As(err, &te) {
			t.Fatalf("status %d: expected TransportError, got %v", status, err)
		}
		if te.Status != status {
			t.Fatalf("status %d: got %d", status, te.Status)
		}
	}
}

func TestDeliverMisconfigured(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { hits.Add(1) }))
	defer srv.Close()

	if err := New(Config{}).Deliver(context.Background(), "r", testAlert()); !channel.IsConfig(err) {
		t.Fatalf("missing url: %v", err)
	}
	if err := New(Config{WebhookURL: srv.URL}).Deliver(context.Background(), " ", testAlert()); !channel.IsConfig(err) {
		t.Fatalf("missing recipient: %v", err)
	}
	if hits.Load() != 0 {
		t.Fatalf("misconfigured channel must not send")
	}
}

func TestDeliverNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	err := New(Config{WebhookURL: url}).Deliver(context.Background(), "r", testAlert())
	if channel.KindOf(err) != channel.KindNetwork {
		t.Fatalf("expected network error, got %v (%s)", err, channel.KindOf(err))
	}
}
