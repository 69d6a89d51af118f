// ABOUTME: Alarm sound output using oto
// ABOUTME: Plays clips on a shared audio context, falling back to silence without a device
package sound

import (
	"bytes"
	"fmt"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"
	"go.uber.org/zap"
)

// Player plays alarm clips without blocking the caller
type Player interface {
	Play(clip Clip) error
	Close() error
}

// OtoPlayer plays clips through the system audio device
type OtoPlayer struct {
	ctx *oto.Context
	log *zap.Logger

	mu      sync.Mutex
	playing map[*oto.Player]struct{}
	closed  bool
}

var (
	// oto allows one context per process
	otoOnce sync.Once
	otoCtx  *oto.Context
	otoErr  error
)

func sharedContext() (*oto.Context, error) {
	otoOnce.Do(func() {
		ctx, ready, err := oto.NewContext(&oto.NewContextOptions{
			SampleRate:   SampleRate,
			ChannelCount: Channels,
			Format:       oto.FormatSignedInt16LE,
		})
		if err != nil {
			otoErr = fmt.Errorf("failed to create oto context: %w", err)
			return
		}
		<-ready
		otoCtx = ctx
	})
	return otoCtx, otoErr
}

// NewOtoPlayer opens the audio device
func NewOtoPlayer(log *zap.Logger) (*OtoPlayer, error) {
	if log == nil {
		log = zap.NewNop()
	}

	ctx, err := sharedContext()
	if err != nil {
		return nil, err
	}

	log.Info("audio output initialized", zap.Int("sample_rate", SampleRate), zap.Int("channels", Channels))

	return &OtoPlayer{
		ctx:     ctx,
		log:     log,
		playing: make(map[*oto.Player]struct{}),
	}, nil
}

// Play starts clip and returns immediately
func (p *OtoPlayer) Play(clip Clip) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return fmt.Errorf("player closed")
	}

	player := p.ctx.NewPlayer(bytes.NewReader(clip.Data))
	player.Play()
	p.playing[player] = struct{}{}

	go p.reap(player, clip.Duration())
	return nil
}

// reap closes a player once it has drained
func (p *OtoPlayer) reap(player *oto.Player, expected time.Duration) {
	time.Sleep(expected)
	for player.IsPlaying() {
		time.Sleep(20 * time.Millisecond)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.playing[player]; ok {
		delete(p.playing, player)
		player.Close()
	}
}

// Close stops all playback
func (p *OtoPlayer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.closed = true
	for player := range p.playing {
		player.Close()
		delete(p.playing, player)
	}
	return nil
}

// NopPlayer discards clips; used when sound is disabled or no device exists
type NopPlayer struct{}

func (NopPlayer) Play(Clip) error { return nil }
func (NopPlayer) Close() error    { return nil }

// NewPlayer returns an OtoPlayer, or a NopPlayer if the device cannot be opened
func NewPlayer(log *zap.Logger) Player {
	p, err := NewOtoPlayer(log)
	if err != nil {
		if log != nil {
			log.Warn("audio unavailable, alarms will be silent", zap.Error(err))
		}
		return NopPlayer{}
	}
	return p
}

// Alerts holds the clips played for each alarm event
type Alerts struct {
	PreAlert  Clip
	Completed Clip
}

// DefaultAlerts returns generated beeps, replacing the completion sound with
// the MP3 at soundFile when one is given
func DefaultAlerts(soundFile string) (Alerts, error) {
	alerts := Alerts{PreAlert: PreAlertClip(), Completed: CompletedClip()}
	if soundFile == "" {
		return alerts, nil
	}

	clip, err := LoadMP3(soundFile)
	if err != nil {
		return alerts, err
	}
	alerts.Completed = clip
	return alerts, nil
}
