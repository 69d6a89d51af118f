// ABOUTME: Tests for the time authority server
// ABOUTME: Exercises the HTTP API, websocket time exchange, and metrics endpoint
package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/checktime/checktime-go/internal/protocol"
	internalsync "github.com/checktime/checktime-go/internal/sync"
	"github.com/checktime/checktime-go/internal/timesource"
)

func newTestServer(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()
	s := New(Config{Name: "test authority"}, zap.NewNop())
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return s, ts
}

func TestTimeEndpoint(t *testing.T) {
	_, ts := newTestServer(t)

	before := time.Now()
	resp, err := http.Get(ts.URL + "/api/time")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()
	after := time.Now()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if resp.Header.Get("Access-Control-Allow-Origin") != "*" {
		t.Error("expected CORS header")
	}

	var body protocol.TimeResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if !body.Success || body.Zone != "Asia/Seoul" {
		t.Errorf("unexpected response %+v", body)
	}

	served, err := time.Parse(time.RFC3339Nano, body.ServerTime)
	if err != nil {
		t.Fatalf("serverTime not RFC 3339: %v", err)
	}
	if served.Before(before.Truncate(time.Millisecond)) || served.After(after) {
		t.Errorf("served time %v outside request window [%v, %v]", served, before, after)
	}
}

func TestTimeEndpointFeedsJSONFetcher(t *testing.T) {
	_, ts := newTestServer(t)

	sample, err := timesource.NewJSONFetcher(ts.URL + "/api/time").Fetch(context.Background())
	if err != nil {
		t.Fatalf("fetch failed: %v", err)
	}

	offset, err := internalsync.Estimate(sample, internalsync.DefaultMaxRoundTrip)
	if err != nil {
		t.Fatalf("estimate failed: %v", err)
	}
	// Same host clock; only millisecond truncation and scheduling noise remain
	if offset.Value < -100*time.Millisecond || offset.Value > 100*time.Millisecond {
		t.Errorf("expected near-zero offset against own server, got %v", offset.Value)
	}
}

func TestCompareEndpoint(t *testing.T) {
	_, ts := newTestServer(t)

	target := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Date", time.Now().Add(10*time.Second).UTC().Format(http.TimeFormat))
	}))
	defer target.Close()

	cmp, err := timesource.NewCompareClient(ts.URL).Compare(context.Background(), target.URL)
	if err != nil {
		t.Fatalf("compare failed: %v", err)
	}

	// Date has one second resolution
	diff := cmp.TimeComparison.TimeDifference
	if diff < 8000 || diff > 11000 {
		t.Errorf("expected ~10s difference, got %vms", diff)
	}
	if cmp.TimeComparison.Direction != "ahead" {
		t.Errorf("expected ahead, got %s", cmp.TimeComparison.Direction)
	}
}

func TestCompareEndpointErrors(t *testing.T) {
	_, ts := newTestServer(t)

	tests := []struct {
		name   string
		method string
		body   string
		status int
	}{
		{"wrong method", http.MethodGet, "", http.StatusMethodNotAllowed},
		{"bad json", http.MethodPost, "{", http.StatusBadRequest},
		{"missing target", http.MethodPost, `{"targetUrl":""}`, http.StatusBadRequest},
		{"unreachable target", http.MethodPost, `{"targetUrl":"http://127.0.0.1:1"}`, http.StatusBadGateway},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, _ := http.NewRequest(tt.method, ts.URL+"/api/time/compare", bytes.NewBufferString(tt.body))
			req.Header.Set("Content-Type", "application/json")

			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				t.Fatalf("request failed: %v", err)
			}
			defer resp.Body.Close()

			if resp.StatusCode != tt.status {
				t.Errorf("expected %d, got %d", tt.status, resp.StatusCode)
			}

			var body protocol.CompareResponse
			json.NewDecoder(resp.Body).Decode(&body)
			if body.Success || body.Error == "" {
				t.Errorf("expected error body, got %+v", body)
			}
		})
	}
}

func TestCORSPreflight(t *testing.T) {
	_, ts := newTestServer(t)

	req, _ := http.NewRequest(http.MethodOptions, ts.URL+"/api/time/compare", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("expected 204, got %d", resp.StatusCode)
	}
	if !strings.Contains(resp.Header.Get("Access-Control-Allow-Methods"), "POST") {
		t.Error("expected POST to be allowed")
	}
}

func TestWebSocketTimeExchange(t *testing.T) {
	s, ts := newTestServer(t)

	f := timesource.NewWSFetcher(timesource.WSConfig{
		ServerAddr: strings.TrimPrefix(ts.URL, "http://"),
		ClientID:   "client-1",
		Name:       "test client",
	}, nil, zap.NewNop())
	defer f.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	sample, err := f.Fetch(ctx)
	if err != nil {
		t.Fatalf("fetch failed: %v", err)
	}

	offset, err := internalsync.Estimate(sample, internalsync.DefaultMaxRoundTrip)
	if err != nil {
		t.Fatalf("estimate failed: %v", err)
	}
	if offset.Value < -50*time.Millisecond || offset.Value > 50*time.Millisecond {
		t.Errorf("expected near-zero offset, got %v", offset.Value)
	}

	if f.Server().Zone != "Asia/Seoul" {
		t.Errorf("expected zone in hello, got %+v", f.Server())
	}
	if s.ClientCount() != 1 {
		t.Errorf("expected 1 connected client, got %d", s.ClientCount())
	}
}

func TestMetricsEndpoint(t *testing.T) {
	_, ts := newTestServer(t)

	// Generate at least one counted request
	if resp, err := http.Get(ts.URL + "/api/time"); err == nil {
		resp.Body.Close()
	}

	resp, err := http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "checktime_time_requests_total") {
		t.Error("expected checktime metrics in exposition")
	}
}

func TestServerStartStop(t *testing.T) {
	s := New(Config{Port: 0, Name: "lifecycle"}, nil)

	done := make(chan error, 1)
	go func() { done <- s.Start() }()

	time.Sleep(50 * time.Millisecond)
	s.Stop()
	s.Stop()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
