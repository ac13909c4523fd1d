// Package render keeps a copy of the stage after every frame so that
// other goroutines can read it without touching engine state.
package render

import (
	"sync"
	"time"

	"github.com/AaronLay10/StagePlayer/internal/engine"
)

// SpriteView is the visible state of one target.
type SpriteView struct {
	Name      string  `json:"name"`
	IsStage   bool    `json:"is_stage,omitempty"`
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
	Direction float64 `json:"direction"`
	Visible   bool    `json:"visible"`
	Costume   string  `json:"costume,omitempty"`
	Saying    string  `json:"saying,omitempty"`
}

// Frame is one rendered frame.
type Frame struct {
	Seq     uint64       `json:"seq"`
	At      time.Time    `json:"at"`
	Stage   SpriteView   `json:"stage"`
	Sprites []SpriteView `json:"sprites"`
}

// Snapshotter is an engine.Renderer that records the latest frame.
type Snapshotter struct {
	mu    sync.RWMutex
	frame Frame
	clock func() time.Time
}

func NewSnapshotter() *Snapshotter {
	return &Snapshotter{clock: time.Now}
}

// Update is called on the engine loop after every step.
func (s *Snapshotter) Update(stage *engine.Sprite, sprites []*engine.Sprite) {
	f := Frame{
		At:      s.clock().UTC(),
		Sprites: make([]SpriteView, 0, len(sprites)),
	}
	if stage != nil {
		f.Stage = view(stage)
	}
	for _, sp := range sprites {
		f.Sprites = append(f.Sprites, view(sp))
	}

	s.mu.Lock()
	f.Seq = s.frame.Seq + 1
	s.frame = f
	s.mu.Unlock()
}

// Latest returns the most recent frame. Seq is zero before the first update.
func (s *Snapshotter) Latest() Frame {
	s.mu.RLock()
	defer s.mu.RUnlock()

	f := s.frame
	f.Sprites = append([]SpriteView(nil), s.frame.Sprites...)
	return f
}

func view(sp *engine.Sprite) SpriteView {
	return SpriteView{
		Name:      sp.Name,
		IsStage:   sp.IsStage,
		X:         sp.X,
		Y:         sp.Y,
		Direction: sp.Direction,
		Visible:   sp.Visible,
		Costume:   sp.Costume,
		Saying:    sp.Saying,
	}
}
