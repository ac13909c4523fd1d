package engine

import (
	"math"

	"github.com/AaronLay10/StagePlayer/internal/trigger"
)

// Sprite is a script-owning target: a sprite or the stage.
// Its fields are only touched from the engine loop.
type Sprite struct {
	Name      string
	IsStage   bool
	X, Y      float64
	Direction float64
	Visible   bool
	Costume   string
	Saying    string
	Sounds    map[string]string

	Triggers []*trigger.Trigger

	project *Project
}

// NewSprite creates a visible sprite at the origin pointing right.
func NewSprite(name string) *Sprite {
	return &Sprite{
		Name:      name,
		Direction: 90,
		Visible:   true,
		Sounds:    make(map[string]string),
	}
}

// NewStage creates the stage target.
func NewStage(name string) *Sprite {
	if name == "" {
		name = "Stage"
	}
	s := NewSprite(name)
	s.IsStage = true
	return s
}

// When attaches a trigger to the sprite. Triggers must be attached before
// the sprite is handed to New.
func (s *Sprite) When(d trigger.Descriptor, body trigger.Body) *trigger.Trigger {
	tr := trigger.New(d, body)
	s.Triggers = append(s.Triggers, tr)
	return tr
}

// Project returns the owning project, or nil before New has run.
func (s *Sprite) Project() *Project { return s.project }

// Move moves the sprite along its heading. Heading 90 points right, 0 up.
func (s *Sprite) Move(steps float64) {
	rad := s.Direction * math.Pi / 180
	s.X += steps * math.Sin(rad)
	s.Y += steps * math.Cos(rad)
}

// Turn rotates clockwise by deg, keeping the heading in (-180, 180].
func (s *Sprite) Turn(deg float64) {
	s.Direction = normalizeDirection(s.Direction + deg)
}

func (s *Sprite) GoTo(x, y float64) {
	s.X, s.Y = x, y
}

func normalizeDirection(d float64) float64 {
	d = math.Mod(d, 360)
	if d > 180 {
		d -= 360
	} else if d <= -180 {
		d += 360
	}
	return d
}
