package channel

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"expirywatch/internal/compose"
	"expirywatch/internal/expiry"
	"expirywatch/internal/urgency"
)

func TestKindOf(t *testing.T) {
	cases := []struct {
		err  error
		want Kind
	}{
		{nil, ""},
		{NewConfigError("x", ErrMissingCredentials), KindConfig},
		{fmt.Errorf("wrapped: %w", NewConfigError("x", ErrMissingRecipient)), KindConfig},
		{StatusError("x", 500, "boom"), KindStatus},
		{StatusError("x", 401, ""), KindAuth},
		{NewTransportError("x", KindNetwork, context.DeadlineExceeded), KindTimeout},
		{NewTransportError("x", KindNetwork, errors.New("reset")), KindNetwork},
		{context.DeadlineExceeded, KindTimeout},
		{NewTransportError("x", KindTimeout, fmt.Errorf("send: %w", context.Canceled)), KindCanceled},
		{context.Canceled, KindCanceled},
		{errors.New("mystery"), KindUnknown},
	}
	for _, tc := range cases {
		if got := KindOf(tc.err); got != tc.want {
			t.Fatalf("KindOf(%v)=%q want %q", tc.err, got, tc.want)
		}
	}
	if !IsConfig(NewConfigError("x", ErrMissingEndpoint)) || IsConfig(StatusError("x", 500, "")) {
		t.Fatalf("IsConfig misclassified")
	}
}

func TestOutcomeBuilders(t *testing.T) {
	at := time.Date(2026, 10, 18, 8, 0, 0, 0, time.UTC)
	ok := Succeeded("email", at)
	if !ok.Succeeded || ok.ErrorKind != "" || ok.Channel != "email" || !ok.At.Equal(at) {
		t.Fatalf("ok=%+v", ok)
	}
	bad := Failed("chatbot", at, StatusError("chatbot", 502, "bad gateway"))
	if bad.Succeeded || bad.ErrorKind != KindStatus || !strings.Contains(bad.Error, "502") {
		t.Fatalf("bad=%+v", bad)
	}
}

func TestRenderHTMLEscapes(t *testing.T) {
	it := expiry.Item{ID: 1, Title: "<script>alert(1)</script> & co", Category: "a<b", ExpiryDate: "2026-10-23", Source: "x"}
	al := compose.Compose(it, urgency.Assessment{Tier: expiry.TierUrgent, Score: 95, DaysLeft: 5})

	out := RenderHTML(al)
	if strings.Contains(out, "<script>") {
		t.Fatalf("unescaped markup in %q", out)
	}
	if !strings.Contains(out, "<b>Title:</b> &lt;script&gt;alert(1)&lt;/script&gt; &amp; co") {
		t.Fatalf("title line not escaped as expected:\n%s", out)
	}
	if !strings.HasPrefix(out, "<b>") {
		t.Fatalf("headline should be bold:\n%s", out)
	}

	doc := RenderHTMLDocument(al)
	if strings.Contains(doc, "<script>") || !strings.Contains(doc, "<td>a&lt;b</td>") {
		t.Fatalf("document not escaped:\n%s", doc)
	}
}
