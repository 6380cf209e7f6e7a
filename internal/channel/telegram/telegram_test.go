package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	tele "gopkg.in/telebot.v4"

	"expirywatch/internal/channel"
	"expirywatch/internal/compose"
	"expirywatch/internal/expiry"
	"expirywatch/internal/urgency"
)

func testAlert() compose.Alert {
	it := expiry.Item{ID: 5, Title: "Lease & parking", ExpiryDate: "2026-11-10"}
	return compose.Compose(it, urgency.Assessment{Tier: expiry.TierPlanned, Score: 77, DaysLeft: 23})
}

func TestDeliverSendsHTML(t *testing.T) {
	var params map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/botT0KEN/sendMessage" {
			t.Errorf("path=%s", r.URL.Path)
			http.NotFound(w, r)
			return
		}
		b, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(b, &params)
		_, _ = w.Write([]byte(`{"ok":true,"result":{"message_id":10,"date":0,"chat":{"id":-100200,"type":"supergroup"}}}`))
	}))
	defer srv.Close()

	a := New(Config{Token: "T0KEN", APIURL: srv.URL})
	if err := a.Check(); err != nil {
		t.Fatalf("Check: %v", err)
	}
	if err := a.Deliver(context.Background(), "-100200:7", testAlert()); err != nil {
		t.Fatalf("Deliver: %v", err)
	}
	if params["parse_mode"] != string(tele.ModeHTML) {
		t.Fatalf("parse_mode=%v", params["parse_mode"])
	}
	if params["chat_id"] != "-100200" {
		t.Fatalf("chat_id=%v", params["chat_id"])
	}
	text, _ := params["text"].(string)
	if !strings.Contains(text, "Lease &amp; parking") {
		t.Fatalf("text not escaped: %q", text)
	}
}

func TestDeliverAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"ok":false,"error_code":400,"description":"Bad Request: chat not found"}`))
	}))
	defer srv.Close()

	err := New(Config{Token: "T", APIURL: srv.URL}).Deliver(context.Background(), "42", testAlert())
	var te *channel.TransportError
	if !errors.As(err, &te) {
		t.Fatalf("expected TransportError, got %v", err)
	}
}

func TestMisconfigured(t *testing.T) {
	if err := New(Config{}).Deliver(context.Background(), "42", testAlert()); !channel.IsConfig(err) {
		t.Fatalf("missing token: %v", err)
	}
	if err := New(Config{Token: "T", APIURL: "http://127.0.0.1:1"}).Deliver(context.Background(), "not-a-chat", testAlert()); !channel.IsConfig(err) {
		t.Fatalf("bad recipient: %v", err)
	}
}

func TestParseRecipient(t *testing.T) {
	r, thread, err := parseRecipient("@ops_alerts")
	if err != nil || r.Recipient() != "@ops_alerts" || thread != 0 {
		t.Fatalf("username: %v %d %v", r, thread, err)
	}
	r, thread, err = parseRecipient("-1001:12")
	if err != nil || r.Recipient() != "-1001" || thread != 12 {
		t.Fatalf("chat+thread: %v %d %v", r, thread, err)
	}
	if _, _, err := parseRecipient("12:x"); err == nil {
		t.Fatalf("expected bad thread error")
	}
}
