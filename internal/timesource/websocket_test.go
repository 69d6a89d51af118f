// ABOUTME: Tests for the websocket time fetcher
// ABOUTME: Runs a minimal time authority over httptest and gorilla/websocket
package timesource

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/checktime/checktime-go/internal/protocol"
)

// fakeAuthority answers client/time with a clock offset by skew
func fakeAuthority(t *testing.T, skew time.Duration) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/checktime" {
			http.NotFound(w, r)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		for {
			var msg inbound
			if err := conn.ReadJSON(&msg); err != nil {
				return
			}

			switch msg.Type {
			case protocol.TypeClientHello:
				conn.WriteJSON(protocol.Message{
					Type:    protocol.TypeServerHello,
					Payload: protocol.ServerHello{ServerID: "srv-1", Name: "fake", Version: 1, Zone: "Asia/Seoul"},
				})
			case protocol.TypeClientTime:
				var ct protocol.ClientTime
				json.Unmarshal(msg.Payload, &ct)
				now := time.Now().Add(skew).UnixMicro()
				conn.WriteJSON(protocol.Message{
					Type: protocol.TypeServerTime,
					Payload: protocol.ServerTime{
						ClientTransmitted: ct.ClientTransmitted,
						ServerReceived:    now,
						ServerTransmitted: now,
					},
				})
			}
		}
	}))
}

func TestWSFetcherExchange(t *testing.T) {
	skew := 3 * time.Second
	srv := fakeAuthority(t, skew)
	defer srv.Close()

	f := NewWSFetcher(WSConfig{
		ServerAddr: strings.TrimPrefix(srv.URL, "http://"),
		ClientID:   "test-client",
		Name:       "test",
	}, nil, zap.NewNop())
	defer f.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	sample, err := f.Fetch(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !f.IsConnected() {
		t.Error("expected fetcher to stay connected")
	}
	if f.Server().ServerID != "srv-1" {
		t.Errorf("expected server hello to be recorded, got %+v", f.Server())
	}

	if !sample.HasRemoteTime() {
		t.Fatal("expected remote time in sample")
	}

	// Remote claims roughly local+skew; allow for scheduling noise
	diff := sample.RemoteClaimedAt.Sub(sample.LocalSentAt) - skew
	if diff < -500*time.Millisecond || diff > 500*time.Millisecond {
		t.Errorf("expected remote ~%v ahead, got %v", skew, sample.RemoteClaimedAt.Sub(sample.LocalSentAt))
	}

	// Second exchange reuses the connection
	if _, err := f.Fetch(ctx); err != nil {
		t.Fatalf("second fetch failed: %v", err)
	}
}

func TestWSFetcherDialFailure(t *testing.T) {
	srv := fakeAuthority(t, 0)
	addr := strings.TrimPrefix(srv.URL, "http://")
	srv.Close()

	f := NewWSFetcher(WSConfig{ServerAddr: addr}, nil, nil)
	defer f.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if _, err := f.Fetch(ctx); err == nil {
		t.Error("expected dial failure")
	}
}

func TestWSFetcherClosed(t *testing.T) {
	f := NewWSFetcher(WSConfig{ServerAddr: "localhost:1"}, nil, nil)
	f.Close()

	if _, err := f.Fetch(context.Background()); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}
}
