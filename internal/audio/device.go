// Package audio plays decoded sounds through a software mixer.
//
// The mixer is pulled by Run at wall-clock pace (or by Pump in tests).
// A playback counts as started the first time the mixer pulls samples
// from it, which is what makes starting asynchronous.
package audio

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/mp3"
	"github.com/gopxl/beep/v2/vorbis"
	"github.com/gopxl/beep/v2/wav"

	"github.com/AaronLay10/StagePlayer/internal/sound"
)

const resampleQuality = 4

// Device mixes playbacks and optionally writes the result as signed
// 16-bit little-endian PCM.
type Device struct {
	mu     sync.Mutex
	format beep.Format
	mixer  *beep.Mixer
	out    io.Writer
	buf    [][2]float64
	pcm    []byte
}

// NewDevice creates a stereo device at the given sample rate. out may be nil.
func NewDevice(sampleRate int, out io.Writer) *Device {
	return &Device{
		format: beep.Format{
			SampleRate:  beep.SampleRate(sampleRate),
			NumChannels: 2,
			Precision:   2,
		},
		mixer: &beep.Mixer{},
		out:   out,
	}
}

// Format returns the device's output format.
func (d *Device) Format() beep.Format { return d.format }

// Open decodes the file at source, picking the decoder by extension.
func (d *Device) Open(source string) (sound.Handle, error) {
	f, err := os.Open(source)
	if err != nil {
		return nil, err
	}

	var (
		stream beep.StreamSeekCloser
		format beep.Format
	)
	switch strings.ToLower(filepath.Ext(source)) {
	case ".wav":
		stream, format, err = wav.Decode(f)
	case ".mp3":
		stream, format, err = mp3.Decode(f)
	case ".ogg":
		stream, format, err = vorbis.Decode(f)
	default:
		f.Close()
		return nil, fmt.Errorf("unsupported audio format: %s", filepath.Ext(source))
	}
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("decode %s: %w", source, err)
	}

	var s beep.Streamer = stream
	if format.SampleRate != d.format.SampleRate {
		s = beep.Resample(resampleQuality, format.SampleRate, d.format.SampleRate, stream)
	}
	return d.NewPlayback(s, stream), nil
}

// NewPlayback wraps an already decoded stream. closer, if not nil, is
// closed once the playback ends or is paused.
func (d *Device) NewPlayback(s beep.Streamer, closer io.Closer) *Playback {
	return &Playback{device: d, source: s, closer: closer}
}

// Pump pulls n samples through the mixer. Playback callbacks run from
// here and must not call back into the device.
func (d *Device) Pump(n int) {
	if n <= 0 {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	if cap(d.buf) < n {
		d.buf = make([][2]float64, n)
	}
	buf := d.buf[:n]
	for i := range buf {
		buf[i] = [2]float64{}
	}
	d.mixer.Stream(buf)

	if d.out == nil {
		return
	}
	size := n * d.format.Width()
	if cap(d.pcm) < size {
		d.pcm = make([]byte, size)
	}
	pcm := d.pcm[:size]
	for i, sample := range buf {
		d.format.EncodeSigned(pcm[i*d.format.Width():], sample)
	}
	// output errors are not fatal to playback
	_, _ = d.out.Write(pcm)
}

// Run pumps the mixer every period until ctx is cancelled.
func (d *Device) Run(ctx context.Context, period time.Duration) {
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	n := d.format.SampleRate.N(period)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.Pump(n)
		}
	}
}

// Active returns the number of streams in the mixer.
func (d *Device) Active() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.mixer.Len()
}

// Playback is one sound on a Device.
type Playback struct {
	device *Device
	source beep.Streamer
	closer io.Closer

	ctrl      *beep.Ctrl
	closeOnce sync.Once
}

// Play queues the playback on the mixer. started fires on the first pull,
// ended when the stream runs out. Both fire on the device goroutine.
func (p *Playback) Play(started, ended func()) error {
	if p.ctrl != nil {
		return fmt.Errorf("playback already started")
	}
	notify := &startNotifier{Streamer: p.source, started: started}
	p.ctrl = &beep.Ctrl{
		Streamer: beep.Seq(notify, beep.Callback(func() {
			p.close()
			if ended != nil {
				ended()
			}
		})),
	}

	p.device.mu.Lock()
	p.device.mixer.Add(p.ctrl)
	p.device.mu.Unlock()
	return nil
}

// Pause detaches the playback from the mixer. It does not report ended.
func (p *Playback) Pause() {
	if p.ctrl == nil {
		return
	}
	p.device.mu.Lock()
	p.ctrl.Paused = true
	p.ctrl.Streamer = nil
	p.device.mu.Unlock()
	p.close()
}

func (p *Playback) close() {
	p.closeOnce.Do(func() {
		if p.closer != nil {
			p.closer.Close()
		}
	})
}

// startNotifier reports the first pull of its stream.
type startNotifier struct {
	beep.Streamer
	started func()
	fired   bool
}

func (n *startNotifier) Stream(samples [][2]float64) (int, bool) {
	if !n.fired {
		n.fired = true
		if n.started != nil {
			n.started()
		}
	}
	return n.Streamer.Stream(samples)
}
