package engine

import (
	"time"

	"github.com/AaronLay10/StagePlayer/internal/sound"
)

// Renderer presents the stage after every frame. Panics are not recovered.
type Renderer interface {
	Update(stage *Sprite, sprites []*Sprite)
}

// Scheduler hands out the signal for the next frame.
type Scheduler interface {
	NextFrame() <-chan time.Time
}

// AudioOpener turns a source locator into a playable handle.
type AudioOpener interface {
	Open(source string) (sound.Handle, error)
}

// InputSource reports key presses.
type InputSource interface {
	OnKey(fn func(key string))
}

// ActivationSource reports green flag activations.
type ActivationSource interface {
	OnGreenFlag(fn func())
}

// TickerScheduler paces frames with a time.Ticker.
type TickerScheduler struct {
	ticker *time.Ticker
}

// NewTickerScheduler creates a scheduler running at fps frames per second.
func NewTickerScheduler(fps int) *TickerScheduler {
	if fps <= 0 {
		fps = 60
	}
	return &TickerScheduler{ticker: time.NewTicker(time.Second / time.Duration(fps))}
}

func (s *TickerScheduler) NextFrame() <-chan time.Time { return s.ticker.C }

func (s *TickerScheduler) Stop() { s.ticker.Stop() }
