package opsapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"expirywatch/internal/channel"
	"expirywatch/internal/dispatch"
	"expirywatch/internal/expiry"
	"expirywatch/internal/ledger"
	"expirywatch/internal/tracker"
	logx "expirywatch/pkg/logx"
)

type cycleFunc func(ctx context.Context) (dispatch.BatchReport, error)

func (f cycleFunc) RunCycle(ctx context.Context) (dispatch.BatchReport, error) { return f(ctx) }

type statsFunc func(ctx context.Context) (tracker.Stats, bool, error)

func (f statsFunc) Stats(ctx context.Context) (tracker.Stats, bool, error) { return f(ctx) }

func newServer(t *testing.T, d Deps) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(New(logx.Nop(), d).Handler())
	t.Cleanup(srv.Close)
	return srv
}

func get(t *testing.T, url string) (int, string) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, string(b)
}

func TestHealthy(t *testing.T) {
	t.Parallel()
	srv := newServer(t, Deps{})
	code, body := get(t, srv.URL+"/-/healthy")
	if code != http.StatusOK || body != "ok" {
		t.Fatalf("code=%d body=%q", code, body)
	}
}

func TestMetrics(t *testing.T) {
	t.Parallel()
	reg := prometheus.NewRegistry()
	dispatch.NewMetrics(reg).CyclesTotal.WithLabelValues("ok").Inc()
	srv := newServer(t, Deps{Gatherer: reg})

	code, body := get(t, srv.URL+"/metrics")
	if code != http.StatusOK || !strings.Contains(body, `expirywatch_cycles_total{result="ok"} 1`) {
		t.Fatalf("code=%d body=%s", code, body)
	}
}

func TestLedgerHistory(t *testing.T) {
	t.Parallel()
	l := ledger.NewMemory()
	k := ledger.Key{ItemID: 42, Tier: expiry.TierUrgent, Day: "2026-10-18"}
	_ = l.Commit(context.Background(), k, []channel.Outcome{channel.Succeeded("email", time.Now())})
	srv := newServer(t, Deps{Ledger: l})

	code, body := get(t, srv.URL+"/api/v1/items/42/ledger")
	if code != http.StatusOK {
		t.Fatalf("code=%d body=%s", code, body)
	}
	var got struct {
		ItemID  int64           `json:"item_id"`
		Records []ledger.Record `json:"records"`
	}
	if err := json.Unmarshal([]byte(body), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.ItemID != 42 || len(got.Records) != 1 || got.Records[0].Tier != expiry.TierUrgent {
		t.Fatalf("got=%+v", got)
	}

	if code, _ := get(t, srv.URL+"/api/v1/items/abc/ledger"); code != http.StatusBadRequest {
		t.Fatalf("bad id code=%d", code)
	}
	if _, body := get(t, srv.URL+"/api/v1/items/7/ledger"); !strings.Contains(body, `"records":[]`) {
		t.Fatalf("empty history body=%s", body)
	}
}

func TestStats(t *testing.T) {
	t.Parallel()
	srv := newServer(t, Deps{Stats: statsFunc(func(context.Context) (tracker.Stats, bool, error) {
		return tracker.Stats{Total: 3, Active: 2, ByCategory: map[string]int{"documents": 2}}, true, nil
	})})
	code, body := get(t, srv.URL+"/api/v1/stats")
	if code != http.StatusOK || !strings.Contains(body, `"total":3`) {
		t.Fatalf("code=%d body=%s", code, body)
	}

	none := newServer(t, Deps{Stats: statsFunc(func(context.Context) (tracker.Stats, bool, error) {
		return tracker.Stats{}, false, nil
	})})
	if code, _ := get(t, none.URL+"/api/v1/stats"); code != http.StatusNotFound {
		t.Fatalf("code=%d", code)
	}
}

func TestRunCycle(t *testing.T) {
	t.Parallel()
	srv := newServer(t, Deps{Cycles: cycleFunc(func(context.Context) (dispatch.BatchReport, error) {
		return dispatch.BatchReport{CycleID: "01TEST", Day: "2026-10-18"}, nil
	})})
	resp, err := http.Post(srv.URL+"/api/v1/cycles", "application/json", nil)
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	defer resp.Body.Close()
	var rep dispatch.BatchReport
	if err := json.NewDecoder(resp.Body).Decode(&rep); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.StatusCode != http.StatusOK || rep.CycleID != "01TEST" {
		t.Fatalf("code=%d rep=%+v", resp.StatusCode, rep)
	}

	failing := newServer(t, Deps{Cycles: cycleFunc(func(context.Context) (dispatch.BatchReport, error) {
		return dispatch.BatchReport{}, errors.New("tracker down")
	})})
	resp2, err := http.Post(failing.URL+"/api/v1/cycles", "application/json", nil)
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	resp2.Body.Close()
	if resp2.StatusCode != http.StatusBadGateway {
		t.Fatalf("code=%d", resp2.StatusCode)
	}
}

func TestMissingDepsAre404(t *testing.T) {
	t.Parallel()
	srv := newServer(t, Deps{})
	for _, p := range []string{"/api/v1/items/1/ledger", "/api/v1/stats", "/metrics"} {
		if code, _ := get(t, srv.URL+p); code != http.StatusNotFound {
			t.Fatalf("%s code=%d", p, code)
		}
	}
}

func TestProfilingIsOptIn(t *testing.T) {
	t.Parallel()
	off := newServer(t, Deps{})
	if code, _ := get(t, off.URL+"/debug/pprof/"); code != http.StatusNotFound {
		t.Fatalf("pprof mounted by default: code=%d", code)
	}
	on := newServer(t, Deps{Profiling: true})
	if code, body := get(t, on.URL+"/debug/pprof/"); code != http.StatusOK || !strings.Contains(body, "goroutine") {
		t.Fatalf("pprof code=%d", code)
	}
}

func TestListenServesAndShutsDown(t *testing.T) {
	s, err := Listen("127.0.0.1:0", New(logx.Nop(), Deps{}).Handler(), logx.Nop())
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	errc := make(chan error, 1)
	go func() { errc <- s.Serve() }()

	code, _ := get(t, "http://"+s.Addr()+"/-/healthy")
	if code != http.StatusOK {
		t.Fatalf("code=%d", code)
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if err := <-errc; err != nil {
		t.Fatalf("Serve: %v", err)
	}
}
