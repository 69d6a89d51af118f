// ABOUTME: High-level Clock API
// ABOUTME: Wraps the projector and resync loop behind a small configuration struct
package checktime

import (
	"context"
	"fmt"
	"time"
	_ "time/tzdata"

	"github.com/google/uuid"
	"go.uber.org/zap"

	internalsync "github.com/checktime/checktime-go/internal/sync"
	"github.com/checktime/checktime-go/internal/timesource"
)

// Offset is an estimated remote - local clock difference
type Offset = internalsync.Offset

// Quality grades an offset by its round trip
type Quality = internalsync.Quality

// NetworkStats summarizes the exchanges seen so far
type NetworkStats = internalsync.NetworkStats

// ClockConfig holds clock configuration
type ClockConfig struct {
	// URL of the server to follow; host:port for websocket sources
	URL string

	// Kind is "date" (default), "json", or "websocket"
	Kind string

	// Interval between resyncs (default: 1s)
	Interval time.Duration

	// Fetcher overrides URL and Kind with a custom time source
	Fetcher internalsync.Fetcher

	// OnSync is called after every accepted offset
	OnSync func(Offset)

	// OnError is called when a resync fails; the previous offset stays in force
	OnError func(error)

	// Zone is the reference zone for Now and alarm targets (default: Asia/Seoul)
	Zone *time.Location

	// Logger receives sync logs (default: discard)
	Logger *zap.Logger
}

// DefaultZone is Korea Standard Time
func DefaultZone() *time.Location {
	loc, err := time.LoadLocation("Asia/Seoul")
	if err != nil {
		return time.FixedZone("KST", 9*60*60)
	}
	return loc
}

// Clock follows a remote server's time
type Clock struct {
	config    ClockConfig
	projector *internalsync.Projector
	syncer    *internalsync.Syncer
	closer    func()
}

// NewClock creates a clock; call Start to begin syncing
func NewClock(config ClockConfig) (*Clock, error) {
	if config.Logger == nil {
		config.Logger = zap.NewNop()
	}
	if config.Zone == nil {
		config.Zone = DefaultZone()
	}

	c := &Clock{
		config:    config,
		projector: internalsync.NewProjector(nil),
		closer:    func() {},
	}

	fetcher := config.Fetcher
	if fetcher == nil {
		if config.URL == "" {
			return nil, fmt.Errorf("URL or Fetcher is required")
		}

		switch timesource.Kind(config.Kind) {
		case "", timesource.KindDate:
			fetcher = timesource.NewDateFetcher(config.URL)
		case timesource.KindJSON:
			fetcher = timesource.NewJSONFetcher(config.URL)
		case timesource.KindWebSocket:
			ws := timesource.NewWSFetcher(timesource.WSConfig{
				ServerAddr: config.URL,
				ClientID:   uuid.New().String(),
				Name:       "checktime-go",
			}, nil, config.Logger)
			c.closer = ws.Close
			fetcher = ws
		default:
			return nil, fmt.Errorf("unknown source kind: %q", config.Kind)
		}
	}

	c.syncer = internalsync.NewSyncer(internalsync.SyncerConfig{
		Interval: config.Interval,
		OnResult: c.onResult,
	}, fetcher, c.projector, config.Logger)

	return c, nil
}

func (c *Clock) onResult(r internalsync.Result) {
	if r.Accepted && c.config.OnSync != nil {
		c.config.OnSync(r.Offset)
	}
	if r.Err != nil && c.config.OnError != nil {
		c.config.OnError(r.Err)
	}
}

// Start begins periodic resyncs in the background
func (c *Clock) Start() {
	go c.syncer.Run()
}

// Sync performs one resync immediately
func (c *Clock) Sync(ctx context.Context) (Offset, error) {
	return c.syncer.SyncOnce(ctx)
}

// Now returns the server's current time in the reference zone; ok is false
// until the first sync
func (c *Clock) Now() (time.Time, bool) {
	t, ok := c.projector.Now()
	if !ok {
		return time.Time{}, false
	}
	return t.In(c.config.Zone), true
}

// Zone returns the reference zone
func (c *Clock) Zone() *time.Location {
	return c.config.Zone
}

// reference is the countdown clock: the projection once synced, the local
// clock before that, always in the reference zone
func (c *Clock) reference() time.Time {
	if t, ok := c.projector.Now(); ok {
		return t.In(c.config.Zone)
	}
	return c.projector.LocalNow().In(c.config.Zone)
}

// Offset returns the active offset, if any
func (c *Clock) Offset() (Offset, bool) {
	return c.projector.Offset()
}

// Stats returns round trip statistics
func (c *Clock) Stats() NetworkStats {
	return c.syncer.Stats()
}

// Stop ends resyncing and closes the connection
func (c *Clock) Stop() {
	c.syncer.Stop()
	c.closer()
}
