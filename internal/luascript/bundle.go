package luascript

import (
	"fmt"

	"github.com/AaronLay10/StagePlayer/internal/config"
	"github.com/AaronLay10/StagePlayer/internal/engine"
)

// Bundle is every target of a project with its loaded script.
type Bundle struct {
	Stage   *engine.Sprite
	Sprites []*engine.Sprite
	Scripts []*Script
}

// LoadProject builds the stage and sprites described by cfg and runs
// their scripts. Targets without a script get no triggers.
func LoadProject(cfg *config.ProjectConfig) (*Bundle, error) {
	b := &Bundle{}

	stage := engine.NewStage(cfg.Stage.Name)
	if err := b.add(cfg, cfg.Stage, stage); err != nil {
		b.Close()
		return nil, err
	}
	b.Stage = stage

	for _, tc := range cfg.Sprites {
		sprite := engine.NewSprite(tc.Name)
		sprite.X, sprite.Y = tc.X, tc.Y
		sprite.Direction = tc.HeadingOrDefault()
		sprite.Visible = !tc.Hidden
		if err := b.add(cfg, tc, sprite); err != nil {
			b.Close()
			return nil, err
		}
		b.Sprites = append(b.Sprites, sprite)
	}
	return b, nil
}

func (b *Bundle) add(cfg *config.ProjectConfig, tc config.TargetConfig, target *engine.Sprite) error {
	target.Costume = tc.Costume
	for name, path := range cfg.SoundPaths(tc) {
		target.Sounds[name] = path
	}

	path := cfg.ScriptPath(tc)
	if path == "" {
		return nil
	}
	s, err := Load(target, path)
	if err != nil {
		return fmt.Errorf("%s: %w", tc.Name, err)
	}
	b.Scripts = append(b.Scripts, s)
	return nil
}

// Close releases every Lua state.
func (b *Bundle) Close() {
	for _, s := range b.Scripts {
		s.Close()
	}
	b.Scripts = nil
}
