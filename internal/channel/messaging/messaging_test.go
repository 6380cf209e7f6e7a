package messaging

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"expirywatch/internal/channel"
	"expirywatch/internal/compose"
	"expirywatch/internal/expiry"
	"expirywatch/internal/urgency"
)

func testAlert() compose.Alert {
	it := expiry.Item{ID: 8, Title: "Domain example.org", ExpiryDate: "2026-10-10"}
	return compose.Compose(it, urgency.Assessment{Tier: expiry.TierCritical, Score: 100, DaysLeft: -8})
}

func TestDeliver(t *testing.T) {
	var got message
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer key-1" {
			t.Errorf("auth=%q", r.Header.Get("Authorization"))
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	err := New(Config{Endpoint: srv.URL, APIKey: "key-1"}).Deliver(context.Background(), "+15550100", testAlert())
	if err != nil {
		t.Fatalf("Deliver: %v", err)
	}
	if got.To != "+15550100" || got.Type != "text" || got.Product != "whatsapp" {
		t.Fatalf("message=%+v", got)
	}
	if !strings.HasPrefix(got.Text.Body, "[Critical] Domain example.org expired 8 days ago") {
		t.Fatalf("body=%q", got.Text.Body)
	}
}

func TestDeliverWithoutAPIKeyNeverCalls(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true }))
	defer srv.Close()

	a := New(Config{Endpoint: srv.URL})
	if err := a.Check(); !channel.IsConfig(err) {
		t.Fatalf("Check: %v", err)
	}
	if err := a.Deliver(context.Background(), "+1", testAlert()); !channel.IsConfig(err) {
		t.Fatalf("Deliver: %v", err)
	}
	if called {
		t.Fatalf("adapter without API key must not call the API")
	}
}

func TestDeliverRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "forbidden", http.StatusForbidden)
	}))
	defer srv.Close()

	err := New(Config{Endpoint: srv.URL, APIKey: "k"}).Deliver(context.Background(), "+1", testAlert())
	if channel.KindOf(err) != channel.KindAuth {
		t.Fatalf("expected auth kind, got %v", err)
	}
}
