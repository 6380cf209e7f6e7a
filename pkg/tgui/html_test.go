package tgui

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestEscAndBuilders(t *testing.T) {
	if got := Esc(`<b>&"x"`).String(); got != "&lt;b&gt;&amp;&#34;x&#34;" {
		t.Fatalf("Esc=%q", got)
	}
	if got := KV("Title", "A<B").String(); got != "<b>Title:</b> A&lt;B" {
		t.Fatalf("KV=%q", got)
	}
	if got := (B("x") + " " + I("y")).String(); got != "<b>x</b> <i>y</i>" {
		t.Fatalf("B/I=%q", got)
	}
}

func TestFit(t *testing.T) {
	if got := Fit(100, B("head"), "", KV("k", "v")).String(); got != "<b>head</b>\n\n<b>k:</b> v" {
		t.Fatalf("Fit=%q", got)
	}

	long := KV("Notes", strings.Repeat("x", 40))
	got := Fit(30, B("head"), long).String()
	if got != "<b>head</b>\n…" {
		t.Fatalf("Fit=%q", got)
	}
	if utf8.RuneCountInString(got) > 30 {
		t.Fatalf("over budget: %d", utf8.RuneCountInString(got))
	}
}

func TestTruncRunes(t *testing.T) {
	cases := []struct {
		in   string
		n    int
		want string
	}{
		{"héllo", 3, "hél…"},
		{"abc", 3, "abc"},
		{"abc", 0, ""},
		{"", 5, ""},
	}
	for _, c := range cases {
		if got := TruncRunes(c.in, c.n); got != c.want {
			t.Fatalf("TruncRunes(%q,%d)=%q want %q", c.in, c.n, got, c.want)
		}
	}
}
