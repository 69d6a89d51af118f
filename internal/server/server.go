// ABOUTME: Check Time authority server
// ABOUTME: Serves its clock over HTTP and websocket, compares targets, exposes metrics
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/checktime/checktime-go/internal/compare"
	"github.com/checktime/checktime-go/internal/discovery"
	"github.com/checktime/checktime-go/internal/metrics"
	"github.com/checktime/checktime-go/internal/protocol"
	internalsync "github.com/checktime/checktime-go/internal/sync"
	"github.com/checktime/checktime-go/internal/timesource"
	"github.com/checktime/checktime-go/internal/version"
)

// Config holds server configuration
type Config struct {
	Port       int
	Name       string
	EnableMDNS bool
	Zone       string // reference zone reported to clients (default: Asia/Seoul)

	// ReferenceURL, when set, disciplines the served clock against a JSON
	// time endpoint instead of serving the host clock as-is
	ReferenceURL string
	SyncInterval time.Duration

	Compare compare.Config
}

// Server is the time authority
type Server struct {
	config   Config
	serverID string
	log      *zap.Logger
	zone     *time.Location

	upgrader websocket.Upgrader

	httpServer *http.Server
	mux        *http.ServeMux

	clients   map[string]*Client
	clientsMu sync.RWMutex

	projector *internalsync.Projector
	syncer    *internalsync.Syncer
	compare   *compare.Service

	mdnsManager *discovery.Manager

	stopChan   chan struct{}
	stopOnce   sync.Once
	shutdownMu sync.RWMutex
	isShutdown bool
	wg         sync.WaitGroup
}

// Client is a connected websocket client
type Client struct {
	ID   string
	Name string
	Conn *websocket.Conn

	sendChan chan interface{}
}

// New creates a server and registers its routes
func New(config Config, log *zap.Logger) *Server {
	if config.Name == "" {
		config.Name = "Check Time"
	}
	if config.Zone == "" {
		config.Zone = "Asia/Seoul"
	}
	if log == nil {
		log = zap.NewNop()
	}

	zone, err := time.LoadLocation(config.Zone)
	if err != nil {
		log.Warn("unknown zone, using UTC", zap.String("zone", config.Zone), zap.Error(err))
		zone = time.UTC
	}

	s := &Server{
		config:   config,
		serverID: uuid.New().String(),
		log:      log,
		zone:     zone,
		mux:      http.NewServeMux(),
		upgrader: websocket.Upgrader{
			// Time is public; browsers on any origin may read it
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		clients:   make(map[string]*Client),
		projector: internalsync.NewProjector(nil),
		stopChan:  make(chan struct{}),
	}

	compareConfig := config.Compare
	compareConfig.Clock = s
	s.compare = compare.NewService(compareConfig, log.Named("compare"))

	if config.ReferenceURL != "" {
		s.syncer = internalsync.NewSyncer(internalsync.SyncerConfig{
			Interval: config.SyncInterval,
		}, timesource.NewJSONFetcher(config.ReferenceURL), s.projector, log.Named("reference"))
	}

	s.mux.HandleFunc("/api/time", s.handleTime)
	s.mux.HandleFunc("/api/time/compare", s.handleCompare)
	s.mux.HandleFunc("/checktime", s.handleWebSocket)
	s.mux.Handle("/metrics", metrics.Handler())

	return s
}

// Now returns the served time: the reference projection once synced, else the host clock
func (s *Server) Now() time.Time {
	if t, ok := s.projector.Now(); ok {
		return t
	}
	return time.Now()
}

// Handler returns the HTTP handler with CORS applied
func (s *Server) Handler() http.Handler {
	return withCORS(s.mux)
}

// Start runs the server until Stop is called or the listener fails
func (s *Server) Start() error {
	s.log.Info("server starting", zap.String("name", s.config.Name), zap.String("server_id", s.serverID))

	if s.syncer != nil {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.syncer.Run()
		}()
	}

	if s.config.EnableMDNS {
		s.mdnsManager = discovery.NewManager(discovery.Config{
			ServiceName: s.config.Name,
			Port:        s.config.Port,
			Zone:        s.config.Zone,
		}, s.log.Named("mdns"))

		if err := s.mdnsManager.Advertise(); err != nil {
			s.log.Warn("failed to start mDNS advertisement", zap.Error(err))
		}
	}

	addr := fmt.Sprintf(":%d", s.config.Port)
	s.log.Info("listening", zap.String("addr", addr))

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	var serverErr error
	select {
	case <-s.stopChan:
		s.log.Info("server shutting down")
	case err := <-errChan:
		s.log.Error("HTTP server error", zap.Error(err))
		serverErr = err
	}

	s.shutdownMu.Lock()
	s.isShutdown = true
	s.shutdownMu.Unlock()

	if s.syncer != nil {
		s.syncer.Stop()
	}
	if s.mdnsManager != nil {
		s.mdnsManager.Stop()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.log.Warn("HTTP server shutdown error", zap.Error(err))
	}

	s.closeClients()
	s.wg.Wait()
	s.log.Info("server stopped cleanly")

	if serverErr != nil {
		return fmt.Errorf("HTTP server failed: %w", serverErr)
	}
	return nil
}

// Stop asks Start to return
func (s *Server) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopChan)
	})
}

// ClientCount returns the number of connected websocket clients
func (s *Server) ClientCount() int {
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()
	return len(s.clients)
}

// handleTime serves GET /api/time
func (s *Server) handleTime(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		writeJSON(w, http.StatusMethodNotAllowed, protocol.TimeResponse{Error: "method not allowed"})
		return
	}

	now := s.Now()
	metrics.TimeRequests.WithLabelValues("http").Inc()

	writeJSON(w, http.StatusOK, protocol.TimeResponse{
		Success:    true,
		ServerTime: now.In(s.zone).Format("2006-01-02T15:04:05.000Z07:00"),
		UnixMillis: now.UnixMilli(),
		Zone:       s.config.Zone,
	})
}

// handleCompare serves POST /api/time/compare
func (s *Server) handleCompare(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, protocol.CompareResponse{Error: "method not allowed"})
		return
	}

	var req protocol.CompareRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, protocol.CompareResponse{Error: "invalid request body"})
		return
	}

	cmp, err := s.compare.Compare(r.Context(), req.TargetURL)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, protocol.CompareResponse{Success: true, Data: cmp})
	case errors.Is(err, compare.ErrMissingTarget):
		writeJSON(w, http.StatusBadRequest, protocol.CompareResponse{Error: err.Error()})
	case errors.Is(err, internalsync.ErrRejected):
		writeJSON(w, http.StatusUnprocessableEntity, protocol.CompareResponse{Error: err.Error()})
	default:
		writeJSON(w, http.StatusBadGateway, protocol.CompareResponse{Error: err.Error()})
	}
}

// handleWebSocket upgrades and serves one time client
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade error", zap.Error(err))
		return
	}

	s.log.Debug("new websocket connection", zap.String("remote", r.RemoteAddr))
	s.handleConnection(conn)
}

type inbound struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// handleConnection performs the hello exchange then answers time requests
func (s *Server) handleConnection(conn *websocket.Conn) {
	defer conn.Close()

	s.shutdownMu.RLock()
	if s.isShutdown {
		s.shutdownMu.RUnlock()
		return
	}
	s.shutdownMu.RUnlock()

	conn.SetReadDeadline(time.Now().Add(10 * time.Second))
	var msg inbound
	if err := conn.ReadJSON(&msg); err != nil {
		s.log.Debug("error reading hello", zap.Error(err))
		return
	}
	conn.SetReadDeadline(time.Time{})

	if msg.Type != protocol.TypeClientHello {
		s.log.Debug("expected client/hello", zap.String("got", msg.Type))
		return
	}

	var hello protocol.ClientHello
	if err := json.Unmarshal(msg.Payload, &hello); err != nil {
		s.log.Debug("invalid client/hello", zap.Error(err))
		return
	}
	if hello.ClientID == "" {
		hello.ClientID = uuid.New().String()
	}

	client := &Client{
		ID:       hello.ClientID,
		Name:     hello.Name,
		Conn:     conn,
		sendChan: make(chan interface{}, 16),
	}

	s.clientsMu.Lock()
	if _, exists := s.clients[client.ID]; exists {
		s.clientsMu.Unlock()
		s.log.Info("rejecting duplicate client", zap.String("client_id", client.ID))
		return
	}
	s.clients[client.ID] = client
	s.clientsMu.Unlock()

	s.log.Info("client connected", zap.String("client_id", client.ID), zap.String("name", client.Name))

	writerDone := make(chan struct{})
	defer func() {
		s.clientsMu.Lock()
		delete(s.clients, client.ID)
		s.clientsMu.Unlock()
		close(client.sendChan)
		<-writerDone
		s.log.Info("client disconnected", zap.String("client_id", client.ID))
	}()

	go func() {
		defer close(writerDone)
		s.clientWriter(client)
	}()

	s.sendMessage(client, protocol.TypeServerHello, protocol.ServerHello{
		ServerID: s.serverID,
		Name:     s.config.Name,
		Version:  version.ProtocolVersion,
		Zone:     s.config.Zone,
	})

	for {
		var msg inbound
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.log.Debug("websocket read error", zap.Error(err))
			}
			return
		}
		s.handleClientMessage(client, msg)
	}
}

func (s *Server) handleClientMessage(client *Client, msg inbound) {
	switch msg.Type {
	case protocol.TypeClientTime:
		s.handleTimeSync(client, msg.Payload)
	default:
		s.log.Debug("unknown message type", zap.String("type", msg.Type))
	}
}

// handleTimeSync answers client/time with receive and transmit timestamps
func (s *Server) handleTimeSync(client *Client, payload json.RawMessage) {
	serverRecv := s.Now().UnixMicro()

	var clientTime protocol.ClientTime
	if err := json.Unmarshal(payload, &clientTime); err != nil {
		s.log.Debug("invalid client/time", zap.Error(err))
		return
	}

	metrics.TimeRequests.WithLabelValues("websocket").Inc()

	s.sendMessage(client, protocol.TypeServerTime, protocol.ServerTime{
		ClientTransmitted: clientTime.ClientTransmitted,
		ServerReceived:    serverRecv,
		ServerTransmitted: s.Now().UnixMicro(),
	})
}

// clientWriter sends queued messages and keepalive pings
func (s *Server) clientWriter(client *Client) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	const writeDeadline = 10 * time.Second

	for {
		select {
		case msg, ok := <-client.sendChan:
			if !ok {
				return
			}
			client.Conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := client.Conn.WriteJSON(msg); err != nil {
				s.log.Debug("error writing message", zap.Error(err))
				client.Conn.Close()
				return
			}

		case <-ticker.C:
			if err := client.Conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeDeadline)); err != nil {
				return
			}
		}
	}
}

// sendMessage queues a JSON message, dropping it if the client is backed up
func (s *Server) sendMessage(client *Client, msgType string, payload interface{}) {
	msg := protocol.Message{Type: msgType, Payload: payload}
	select {
	case client.sendChan <- msg:
	default:
		s.log.Warn("client send buffer full", zap.String("client_id", client.ID))
	}
}

// closeClients closes every open websocket so handlers return
func (s *Server) closeClients() {
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()
	for _, c := range s.clients {
		c.Conn.Close()
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
