package engine

import (
	"errors"
	"fmt"

	"github.com/AaronLay10/StagePlayer/internal/sound"
)

var (
	// ErrNoAudio is returned by PlaySound when no audio opener is configured.
	ErrNoAudio = errors.New("audio output not configured")
	// ErrUnknownSound is returned for a sound name missing from a sprite's table.
	ErrUnknownSound = errors.New("unknown sound")
)

// PlaySound opens source and registers it as playing. The entry's Done
// channel closes when playback ends or is stopped.
func (p *Project) PlaySound(source string) (*sound.Entry, error) {
	if p.audio == nil {
		return nil, ErrNoAudio
	}
	h, err := p.audio.Open(source)
	if err != nil {
		return nil, fmt.Errorf("open sound %s: %w", source, err)
	}
	entry, err := p.sounds.Play(source, h)
	if err != nil {
		return nil, fmt.Errorf("play sound %s: %w", source, err)
	}
	p.updateCounters()
	return entry, nil
}

// PlaySpriteSound plays a sound from the sprite's sound table.
func (p *Project) PlaySpriteSound(s *Sprite, name string) (*sound.Entry, error) {
	source, ok := s.Sounds[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s has no sound %q", ErrUnknownSound, s.Name, name)
	}
	return p.PlaySound(source)
}

// StopSound stops one playback entry. Stopping twice is harmless.
func (p *Project) StopSound(e *sound.Entry) {
	p.sounds.Stop(e)
	p.updateCounters()
}

// StopAllSounds stops every sound registered at the time of the call.
func (p *Project) StopAllSounds() {
	p.sounds.StopAll()
	p.updateCounters()
}

// Sounds exposes the registry for inspection.
func (p *Project) Sounds() *sound.Registry { return p.sounds }
