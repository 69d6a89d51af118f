// ABOUTME: Main clock application orchestration
// ABOUTME: Coordinates time source, sync loop, alarm runner, sound, and UI
package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/checktime/checktime-go/internal/alarm"
	"github.com/checktime/checktime-go/internal/discovery"
	"github.com/checktime/checktime-go/internal/sound"
	internalsync "github.com/checktime/checktime-go/internal/sync"
	"github.com/checktime/checktime-go/internal/timesource"
	"github.com/checktime/checktime-go/internal/ui"
)

// ErrNoSource is returned when neither a URL nor discovery yields a time source
var ErrNoSource = errors.New("no time source")

// Config holds clock application configuration
type Config struct {
	// Source is a URL for date/json sources or host:port for websocket
	Source string
	Kind   timesource.Kind
	Method string
	WSPath string // websocket path (default: /checktime)

	// Discover browses mDNS for a time authority when Source is empty
	Discover     bool
	DiscoverWait time.Duration
	Name         string

	Sync       internalsync.SyncerConfig
	StaleAfter time.Duration

	Zone         *time.Location
	Refresh      time.Duration
	ShowMillis   bool
	TickInterval time.Duration

	SoundFile string
	Player    sound.Player // default: oto output, silent when unavailable

	// Alarm is started as soon as the clock runs
	Alarm *alarm.Spec

	UseTUI bool
}

// Clock is the running client application
type Clock struct {
	config    Config
	log       *zap.Logger
	projector *internalsync.Projector
	runner    *alarm.Runner
	syncer    *internalsync.Syncer
	fetcher   internalsync.Fetcher
	player    sound.Player
	alerts    sound.Alerts
	controls  *ui.Controls
	tuiProg   *tea.Program

	mu     sync.Mutex
	wsConn *timesource.WSFetcher

	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// New creates a clock application
func New(config Config, log *zap.Logger) *Clock {
	if config.Kind == "" {
		config.Kind = timesource.KindDate
	}
	if config.DiscoverWait <= 0 {
		config.DiscoverWait = 5 * time.Second
	}
	if config.Zone == nil {
		config.Zone = time.Local
	}
	if config.StaleAfter == 0 {
		config.StaleAfter = 5 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}

	ctx, cancel := context.WithCancel(context.Background())

	c := &Clock{
		config:    config,
		log:       log,
		projector: internalsync.NewProjector(nil),
		controls:  ui.NewControls(),
		ctx:       ctx,
		cancel:    cancel,
	}

	c.runner = alarm.NewRunner(alarm.RunnerConfig{
		TickInterval: config.TickInterval,
		Now:          c.remoteNow,
	}, log.Named("alarm"))

	return c
}

// Projector exposes the projected remote clock
func (c *Clock) Projector() *internalsync.Projector {
	return c.projector
}

// remoteNow is the reference time for countdowns: the projection once
// synced, the local clock before that
func (c *Clock) remoteNow() time.Time {
	t, ok := c.projector.Now()
	if !ok {
		t = c.projector.LocalNow()
	}
	return t.In(c.config.Zone)
}

// Start resolves the time source, starts all loops, and blocks until Stop
// is called or the UI quits
func (c *Clock) Start() error {
	source, err := c.resolveSource()
	if err != nil {
		return err
	}

	c.fetcher = c.newFetcher(source)
	c.initSound()

	syncConfig := c.config.Sync
	syncConfig.OnResult = c.onSyncResult

	c.mu.Lock()
	if c.ctx.Err() != nil {
		c.mu.Unlock()
		return nil
	}
	c.syncer = internalsync.NewSyncer(syncConfig, c.fetcher, c.projector, c.log.Named("sync"))

	if c.config.UseTUI {
		tuiProg, err := ui.Run(ui.Config{
			Clock:      c.projector,
			Zone:       c.config.Zone,
			Refresh:    c.config.Refresh,
			ShowMillis: c.config.ShowMillis,
			Source:     source,
			Controls:   c.controls,
		})
		if err != nil {
			c.mu.Unlock()
			return fmt.Errorf("failed to start TUI: %w", err)
		}
		c.tuiProg = tuiProg

		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			if _, err := tuiProg.Run(); err != nil {
				c.log.Error("TUI error", zap.Error(err))
			}
			c.cancel()
		}()
	} else {
		c.wg.Add(1)
		go c.logLoop()
	}

	c.log.Info("starting clock",
		zap.String("source", source),
		zap.String("kind", string(c.config.Kind)),
		zap.String("zone", c.config.Zone.String()))

	c.wg.Add(4)
	go func() {
		defer c.wg.Done()
		c.syncer.Run()
	}()
	go c.handleEvents()
	go c.handleUpdates()
	go c.handleControls()
	c.mu.Unlock()

	if c.config.Alarm != nil {
		if _, err := c.SetAlarm(*c.config.Alarm); err != nil {
			c.log.Warn("initial alarm rejected", zap.Error(err))
		}
	}

	// Wait for context cancellation
	<-c.ctx.Done()

	return nil
}

// resolveSource returns the configured source or discovers one
func (c *Clock) resolveSource() (string, error) {
	if c.config.Source != "" {
		return c.config.Source, nil
	}
	if !c.config.Discover {
		return "", ErrNoSource
	}

	c.log.Info("starting server discovery")
	disc := discovery.NewManager(discovery.Config{ServiceName: c.config.Name}, c.log.Named("discovery"))

	servers, err := disc.Discover(c.config.DiscoverWait)
	if err != nil {
		return "", fmt.Errorf("discovery failed: %w", err)
	}
	if len(servers) == 0 {
		return "", fmt.Errorf("%w: no server found after %v", ErrNoSource, c.config.DiscoverWait)
	}

	server := servers[0]
	c.log.Info("discovered server", zap.String("name", server.Name), zap.String("addr", server.Addr()))
	c.config.Kind = timesource.KindWebSocket
	c.config.WSPath = server.Path
	c.send(ui.ServerMsg{Name: server.Name})

	return server.Addr(), nil
}

// newFetcher builds the fetcher for the configured kind
func (c *Clock) newFetcher(source string) internalsync.Fetcher {
	switch c.config.Kind {
	case timesource.KindJSON:
		return timesource.NewJSONFetcher(source)
	case timesource.KindWebSocket:
		ws := timesource.NewWSFetcher(timesource.WSConfig{
			ServerAddr: source,
			Path:       c.config.WSPath,
			ClientID:   uuid.New().String(),
			Name:       c.config.Name,
		}, nil, c.log.Named("ws"))
		c.mu.Lock()
		c.wsConn = ws
		c.mu.Unlock()
		return ws
	default:
		f := timesource.NewDateFetcher(source)
		if c.config.Method != "" {
			f.Method = c.config.Method
		}
		return f
	}
}

// initSound prepares alarm clips and the output device
func (c *Clock) initSound() {
	alerts, err := sound.DefaultAlerts(c.config.SoundFile)
	if err != nil {
		c.log.Warn("failed to load alarm sound, using beeps", zap.String("file", c.config.SoundFile), zap.Error(err))
	}
	c.alerts = alerts

	c.player = c.config.Player
	if c.player == nil {
		c.player = sound.NewPlayer(c.log.Named("sound"))
	}
}

// onSyncResult forwards each resync outcome to the UI
func (c *Clock) onSyncResult(r internalsync.Result) {
	c.send(ui.SyncMsg{
		Status: c.projector.Status(c.config.StaleAfter),
		Stats:  c.syncer.Stats(),
		Err:    r.Err,
	})
}

// SetAlarm starts a countdown, replacing any running one
func (c *Clock) SetAlarm(spec alarm.Spec) (alarm.State, error) {
	st, err := c.runner.Start(spec)
	if err != nil {
		return alarm.State{}, err
	}
	c.log.Info("alarm set",
		zap.String("alarm_id", spec.ID),
		zap.Stringer("target", spec.Target),
		zap.Ints("pre_alerts", st.Spec.PreAlerts),
		zap.Int("remaining_s", st.Remaining))
	c.send(ui.AlarmMsg{State: st, Active: true})
	return st, nil
}

// CancelAlarm discards the running countdown
func (c *Clock) CancelAlarm() {
	c.runner.Cancel()
	c.send(ui.AlarmMsg{})
}

// handleEvents plays sounds and surfaces alarm events
func (c *Clock) handleEvents() {
	defer c.wg.Done()
	for {
		select {
		case ev := <-c.runner.Events():
			c.handleEvent(ev)
		case <-c.ctx.Done():
			return
		}
	}
}

func (c *Clock) handleEvent(ev alarm.Event) {
	if ev.Options.Sound && c.player != nil {
		clip := c.alerts.PreAlert
		if ev.Kind == alarm.EventCompleted {
			clip = c.alerts.Completed
		}
		if err := c.player.Play(clip); err != nil {
			c.log.Warn("playback error", zap.Error(err))
		}
	}

	c.send(ui.EventMsg(ev))
}

// logLoop reports the projected time once per second when no TUI is running
func (c *Clock) logLoop() {
	defer c.wg.Done()

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			now, ok := c.projector.Now()
			if !ok {
				c.log.Info("waiting for first sync")
				continue
			}
			fields := []zap.Field{zap.String("time", now.In(c.config.Zone).Format("15:04:05.000"))}
			if st, active := c.runner.Snapshot(); active && !st.Done() {
				fields = append(fields, zap.Int("alarm_remaining_s", st.Remaining))
			}
			c.log.Info("clock", fields...)
		case <-c.ctx.Done():
			return
		}
	}
}

// handleUpdates forwards countdown snapshots to the UI
func (c *Clock) handleUpdates() {
	defer c.wg.Done()
	for {
		select {
		case st := <-c.runner.Updates():
			c.send(ui.AlarmMsg{State: st, Active: true})
		case <-c.ctx.Done():
			return
		}
	}
}

// handleControls processes requests from the UI
func (c *Clock) handleControls() {
	defer c.wg.Done()
	for {
		select {
		case spec := <-c.controls.Alarms:
			if _, err := c.SetAlarm(spec); err != nil {
				c.send(ui.AlarmErrorMsg{Err: err})
			}
		case <-c.controls.Cancel:
			c.CancelAlarm()
		case <-c.controls.Resync:
			offset, err := c.syncer.SyncOnce(c.ctx)
			if err != nil {
				c.log.Warn("manual resync failed", zap.Error(err))
			}
			c.onSyncResult(internalsync.Result{Offset: offset, Accepted: err == nil, Err: err})
		case <-c.controls.Quit:
			c.log.Info("received quit signal from TUI")
			c.cancel()
			return
		case <-c.ctx.Done():
			return
		}
	}
}

// send delivers msg to the TUI when one is running
func (c *Clock) send(msg tea.Msg) {
	if c.tuiProg != nil {
		c.tuiProg.Send(msg)
	}
}

// Stop stops the clock. Safe to call more than once.
func (c *Clock) Stop() {
	c.stopOnce.Do(func() {
		c.mu.Lock()
		c.cancel()
		tuiProg, syncer, ws := c.tuiProg, c.syncer, c.wsConn
		c.mu.Unlock()

		if tuiProg != nil {
			tuiProg.Quit()
		}
		if syncer != nil {
			syncer.Stop()
		}
		c.runner.Stop()
		if ws != nil {
			ws.Close()
		}

		c.wg.Wait()

		if c.player != nil {
			c.player.Close()
		}
	})
}
