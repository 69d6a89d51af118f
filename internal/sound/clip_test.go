// ABOUTME: Tests for alarm clip generation
// ABOUTME: Tests beep rendering, durations, resampling, and MP3 error handling
package sound

import (
	"bytes"
	"encoding/binary"
	"testing"
	"time"
)

func TestBeepsDuration(t *testing.T) {
	clip := Beeps("test", Tone{Frequency: 440, Length: 100 * time.Millisecond, Gap: 100 * time.Millisecond, Volume: 1})

	if got := clip.Duration(); got != 200*time.Millisecond {
		t.Errorf("expected 200ms clip, got %v", got)
	}
	if len(clip.Data)%bytesPerFrame != 0 {
		t.Error("clip is not frame aligned")
	}
}

func TestToneFadesAndChannels(t *testing.T) {
	data := renderTone(Tone{Frequency: 1000, Length: 50 * time.Millisecond, Volume: 0.5})

	first := int16(binary.LittleEndian.Uint16(data[0:]))
	if first != 0 {
		t.Errorf("expected fade-in to start at silence, got %d", first)
	}

	var peak int16
	for i := 0; i < len(data)/bytesPerFrame; i++ {
		l := int16(binary.LittleEndian.Uint16(data[i*bytesPerFrame:]))
		r := int16(binary.LittleEndian.Uint16(data[i*bytesPerFrame+2:]))
		if l != r {
			t.Fatalf("frame %d: channels differ (%d vs %d)", i, l, r)
		}
		if l > peak {
			peak = l
		}
	}

	// Half volume never exceeds half scale
	if peak > 16384 || peak < 15000 {
		t.Errorf("unexpected peak %d for half volume", peak)
	}
}

func TestDefaultClips(t *testing.T) {
	if PreAlertClip().Duration() <= 0 || CompletedClip().Duration() <= PreAlertClip().Duration() {
		t.Error("expected completion clip to be longer than the pre-alert clip")
	}

	alerts, err := DefaultAlerts("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if alerts.Completed.Name != "completed" {
		t.Errorf("expected generated completion clip, got %q", alerts.Completed.Name)
	}
}

func TestResample(t *testing.T) {
	in := make([]byte, 100*bytesPerFrame)
	out := resample(in, 22050, 44100)
	if len(out) != 200*bytesPerFrame {
		t.Errorf("expected 200 frames, got %d", len(out)/bytesPerFrame)
	}

	same := resample(in, SampleRate, SampleRate)
	if len(same) != len(in) {
		t.Error("expected identity for equal rates")
	}
}

func TestDecodeMP3Invalid(t *testing.T) {
	if _, err := DecodeMP3("garbage", bytes.NewReader([]byte("not an mp3"))); err == nil {
		t.Error("expected error decoding garbage")
	}
	if _, err := LoadMP3("/nonexistent/alarm.mp3"); err == nil {
		t.Error("expected error for missing file")
	}
	if _, err := DefaultAlerts("/nonexistent/alarm.mp3"); err == nil {
		t.Error("expected error for missing sound file")
	}
}

func TestNopPlayer(t *testing.T) {
	var p Player = NopPlayer{}
	if err := p.Play(PreAlertClip()); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}
