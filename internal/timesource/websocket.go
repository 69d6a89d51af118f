// ABOUTME: WebSocket time fetcher for the Check Time authority
// ABOUTME: Keeps one connection open and exchanges client/time and server/time messages
package timesource

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/checktime/checktime-go/internal/protocol"
	internalsync "github.com/checktime/checktime-go/internal/sync"
	"github.com/checktime/checktime-go/internal/version"
)

// ErrClosed is returned by Fetch after Close
var ErrClosed = errors.New("time connection closed")

// WSConfig holds websocket fetcher configuration
type WSConfig struct {
	ServerAddr string // host:port
	Path       string // default: /checktime
	ClientID   string
	Name       string

	// HandshakeTimeout bounds the wait for server/hello (default: 5s)
	HandshakeTimeout time.Duration
}

// WSFetcher implements sync.Fetcher over a persistent websocket.
// It connects lazily and reconnects on the next Fetch after a failure.
type WSFetcher struct {
	config WSConfig
	clock  internalsync.LocalClock
	log    *zap.Logger

	mu        sync.RWMutex
	conn      *websocket.Conn
	connected bool
	server    protocol.ServerHello

	// fetchMu serializes exchanges so responses match requests
	fetchMu   sync.Mutex
	responses chan protocol.ServerTime

	ctx    context.Context
	cancel context.CancelFunc
}

type inbound struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// NewWSFetcher creates a websocket fetcher. clock may be nil for the system clock.
func NewWSFetcher(config WSConfig, clock internalsync.LocalClock, log *zap.Logger) *WSFetcher {
	if config.Path == "" {
		config.Path = "/checktime"
	}
	if config.HandshakeTimeout <= 0 {
		config.HandshakeTimeout = 5 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &WSFetcher{
		config:    config,
		clock:     clockOrSystem(clock),
		log:       log,
		responses: make(chan protocol.ServerTime, 10),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Fetch performs one time exchange, connecting first if needed
func (f *WSFetcher) Fetch(ctx context.Context) (internalsync.Sample, error) {
	f.fetchMu.Lock()
	defer f.fetchMu.Unlock()

	if f.ctx.Err() != nil {
		return internalsync.Sample{}, ErrClosed
	}

	if !f.IsConnected() {
		if err := f.connect(ctx); err != nil {
			return internalsync.Sample{}, err
		}
	}

	sent := f.clock.Now()
	t1 := sent.UnixMicro()

	msg := protocol.Message{
		Type:    protocol.TypeClientTime,
		Payload: protocol.ClientTime{ClientTransmitted: t1},
	}
	if err := f.sendJSON(msg); err != nil {
		f.drop()
		return internalsync.Sample{}, fmt.Errorf("failed to send client/time: %w", err)
	}

	for {
		select {
		case resp := <-f.responses:
			if resp.ClientTransmitted != t1 {
				// Late reply to an earlier exchange
				continue
			}
			received := f.clock.Now()
			mid := resp.ServerReceived + (resp.ServerTransmitted-resp.ServerReceived)/2

			sample := internalsync.Sample{
				LocalSentAt:     sent,
				LocalReceivedAt: received,
				Source:          "ws://" + f.config.ServerAddr,
			}
			if resp.ServerReceived > 0 {
				sample.RemoteClaimedAt = time.UnixMicro(mid)
			}
			return sample, nil

		case <-ctx.Done():
			return internalsync.Sample{}, ctx.Err()

		case <-f.ctx.Done():
			return internalsync.Sample{}, ErrClosed
		}
	}
}

// Server returns the hello received from the current connection
func (f *WSFetcher) Server() protocol.ServerHello {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.server
}

// connect dials the server and performs the hello exchange
// URL returns the websocket address the fetcher dials
func (f *WSFetcher) URL() string {
	u := url.URL{Scheme: "ws", Host: f.config.ServerAddr, Path: f.config.Path}
	return u.String()
}

func (f *WSFetcher) connect(ctx context.Context) error {
	u := f.URL()
	f.log.Info("connecting to time server", zap.String("url", u))

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u, nil)
	if err != nil {
		return fmt.Errorf("dial failed: %w", err)
	}

	hello := protocol.Message{
		Type: protocol.TypeClientHello,
		Payload: protocol.ClientHello{
			ClientID: f.config.ClientID,
			Name:     f.config.Name,
			Version:  version.ProtocolVersion,
		},
	}
	if err := conn.WriteJSON(hello); err != nil {
		conn.Close()
		return fmt.Errorf("failed to send client/hello: %w", err)
	}

	conn.SetReadDeadline(time.Now().Add(f.config.HandshakeTimeout))
	var reply inbound
	if err := conn.ReadJSON(&reply); err != nil {
		conn.Close()
		return fmt.Errorf("failed to read server/hello: %w", err)
	}
	conn.SetReadDeadline(time.Time{})

	if reply.Type != protocol.TypeServerHello {
		conn.Close()
		return fmt.Errorf("expected %s, got %s", protocol.TypeServerHello, reply.Type)
	}

	var server protocol.ServerHello
	if err := json.Unmarshal(reply.Payload, &server); err != nil {
		conn.Close()
		return fmt.Errorf("failed to parse server/hello: %w", err)
	}

	f.mu.Lock()
	f.conn = conn
	f.connected = true
	f.server = server
	f.mu.Unlock()

	f.log.Info("handshake complete",
		zap.String("server_id", server.ServerID),
		zap.String("server_name", server.Name),
		zap.String("zone", server.Zone))

	go f.readMessages(conn)
	return nil
}

// sendJSON sends a JSON message on the current connection
func (f *WSFetcher) sendJSON(msg protocol.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.connected {
		return fmt.Errorf("not connected")
	}
	return f.conn.WriteJSON(msg)
}

// readMessages routes incoming messages until the connection fails
func (f *WSFetcher) readMessages(conn *websocket.Conn) {
	defer f.dropConn(conn)

	for {
		var msg inbound
		if err := conn.ReadJSON(&msg); err != nil {
			if f.ctx.Err() == nil {
				f.log.Warn("time connection read failed", zap.Error(err))
			}
			return
		}

		switch msg.Type {
		case protocol.TypeServerTime:
			var st protocol.ServerTime
			if err := json.Unmarshal(msg.Payload, &st); err != nil {
				f.log.Warn("failed to parse server/time", zap.Error(err))
				continue
			}
			select {
			case f.responses <- st:
			case <-f.ctx.Done():
				return
			}
		default:
			f.log.Debug("ignoring message", zap.String("type", msg.Type))
		}
	}
}

func (f *WSFetcher) drop() {
	f.mu.RLock()
	conn := f.conn
	f.mu.RUnlock()
	if conn != nil {
		f.dropConn(conn)
	}
}

// dropConn closes conn if it is still the current connection
func (f *WSFetcher) dropConn(conn *websocket.Conn) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.conn == conn && f.connected {
		f.connected = false
		conn.Close()
		f.log.Info("time connection closed")
	}
}

// Close closes the connection; later Fetch calls fail with ErrClosed
func (f *WSFetcher) Close() {
	f.cancel()
	f.drop()
}

// IsConnected returns connection status
func (f *WSFetcher) IsConnected() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.connected
}
