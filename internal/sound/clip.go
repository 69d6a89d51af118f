// ABOUTME: PCM alarm clips: generated beeps and MP3 files
// ABOUTME: All clips are 16-bit little-endian stereo at the player sample rate
package sound

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"time"

	"github.com/hajimehoshi/go-mp3"
)

const (
	// SampleRate of every clip handed to the player
	SampleRate = 44100

	// Channels of every clip handed to the player
	Channels = 2

	bytesPerFrame = Channels * 2
)

// Clip is raw PCM ready for playback
type Clip struct {
	Name string
	Data []byte
}

// Duration returns the playing time of the clip
func (c Clip) Duration() time.Duration {
	frames := len(c.Data) / bytesPerFrame
	return time.Duration(frames) * time.Second / SampleRate
}

// Tone describes one beep
type Tone struct {
	Frequency float64
	Length    time.Duration
	Gap       time.Duration // silence after the beep
	Volume    float64       // 0..1
}

// Beeps renders tones back to back into a clip
func Beeps(name string, tones ...Tone) Clip {
	var data []byte
	for _, t := range tones {
		data = append(data, renderTone(t)...)
		data = append(data, make([]byte, frames(t.Gap)*bytesPerFrame)...)
	}
	return Clip{Name: name, Data: data}
}

// PreAlertClip is a single short beep
func PreAlertClip() Clip {
	return Beeps("pre-alert", Tone{Frequency: 880, Length: 150 * time.Millisecond, Gap: 50 * time.Millisecond, Volume: 0.5})
}

// CompletedClip is three rising beeps
func CompletedClip() Clip {
	return Beeps("completed",
		Tone{Frequency: 1046.5, Length: 180 * time.Millisecond, Gap: 70 * time.Millisecond, Volume: 0.6},
		Tone{Frequency: 1318.5, Length: 180 * time.Millisecond, Gap: 70 * time.Millisecond, Volume: 0.6},
		Tone{Frequency: 1568, Length: 400 * time.Millisecond, Volume: 0.6},
	)
}

func frames(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int(d * SampleRate / time.Second)
}

// renderTone generates a sine wave with short linear fades to avoid clicks
func renderTone(t Tone) []byte {
	n := frames(t.Length)
	out := make([]byte, n*bytesPerFrame)
	fade := frames(5 * time.Millisecond)

	for i := 0; i < n; i++ {
		gain := t.Volume
		if i < fade {
			gain *= float64(i) / float64(fade)
		} else if n-i < fade {
			gain *= float64(n-i) / float64(fade)
		}

		v := int16(math.Sin(2*math.Pi*t.Frequency*float64(i)/SampleRate) * gain * math.MaxInt16)
		for ch := 0; ch < Channels; ch++ {
			binary.LittleEndian.PutUint16(out[i*bytesPerFrame+ch*2:], uint16(v))
		}
	}
	return out
}

// LoadMP3 decodes an MP3 file into a clip at SampleRate
func LoadMP3(path string) (Clip, error) {
	f, err := os.Open(path)
	if err != nil {
		return Clip{}, fmt.Errorf("failed to open sound file: %w", err)
	}
	defer f.Close()

	return DecodeMP3(path, f)
}

// DecodeMP3 decodes MP3 data from r into a clip at SampleRate
func DecodeMP3(name string, r io.Reader) (Clip, error) {
	decoder, err := mp3.NewDecoder(r)
	if err != nil {
		return Clip{}, fmt.Errorf("failed to create mp3 decoder: %w", err)
	}

	// go-mp3 always yields 16-bit stereo
	pcm, err := io.ReadAll(decoder)
	if err != nil {
		return Clip{}, fmt.Errorf("mp3 decode error: %w", err)
	}

	return Clip{Name: name, Data: resample(pcm, decoder.SampleRate(), SampleRate)}, nil
}

// resample converts 16-bit stereo PCM between rates by linear interpolation
func resample(pcm []byte, from, to int) []byte {
	if from == to || from <= 0 {
		return pcm
	}

	inFrames := len(pcm) / bytesPerFrame
	if inFrames == 0 {
		return nil
	}
	outFrames := int(int64(inFrames) * int64(to) / int64(from))
	out := make([]byte, outFrames*bytesPerFrame)

	sample := func(frame, ch int) float64 {
		if frame >= inFrames {
			frame = inFrames - 1
		}
		return float64(int16(binary.LittleEndian.Uint16(pcm[frame*bytesPerFrame+ch*2:])))
	}

	ratio := float64(from) / float64(to)
	for i := 0; i < outFrames; i++ {
		pos := float64(i) * ratio
		idx := int(pos)
		frac := pos - float64(idx)
		for ch := 0; ch < Channels; ch++ {
			v := sample(idx, ch)*(1-frac) + sample(idx+1, ch)*frac
			binary.LittleEndian.PutUint16(out[i*bytesPerFrame+ch*2:], uint16(int16(v)))
		}
	}
	return out
}
