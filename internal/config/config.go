package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrUnsupportedVersion is returned for manifests with an unknown version.
var ErrUnsupportedVersion = errors.New("unsupported project.yaml version")

// ProjectConfig is the project manifest loaded from project.yaml.
type ProjectConfig struct {
	Version int `yaml:"version"`
	Project struct {
		ID          string `yaml:"id"`
		Name        string `yaml:"name"`
		Description string `yaml:"description"`
	} `yaml:"project"`
	Stage     TargetConfig           `yaml:"stage"`
	Sprites   []TargetConfig         `yaml:"sprites"`
	Variables map[string]interface{} `yaml:"variables"`

	// Dir is the manifest's directory; relative paths resolve against it.
	Dir string `yaml:"-"`
}

// TargetConfig describes a sprite or the stage.
type TargetConfig struct {
	Name      string            `yaml:"name"`
	Script    string            `yaml:"script"`
	X         float64           `yaml:"x"`
	Y         float64           `yaml:"y"`
	Direction *float64          `yaml:"direction"`
	Hidden    bool              `yaml:"hidden"`
	Costume   string            `yaml:"costume"`
	Sounds    map[string]string `yaml:"sounds"`
}

// HeadingOrDefault returns the configured direction, defaulting to 90 (pointing right).
func (t *TargetConfig) HeadingOrDefault() float64 {
	if t.Direction == nil {
		return 90
	}
	return *t.Direction
}

// ScriptPath returns the absolute path of the target's script, or "" if none.
func (c *ProjectConfig) ScriptPath(t TargetConfig) string {
	if t.Script == "" {
		return ""
	}
	return c.resolve(t.Script)
}

// SoundPaths returns the target's sound table with paths resolved.
func (c *ProjectConfig) SoundPaths(t TargetConfig) map[string]string {
	out := make(map[string]string, len(t.Sounds))
	for name, p := range t.Sounds {
		out[name] = c.resolve(p)
	}
	return out
}

func (c *ProjectConfig) resolve(p string) string {
	if filepath.IsAbs(p) || c.Dir == "" {
		return p
	}
	return filepath.Join(c.Dir, p)
}

func LoadProjectConfig(path string) (*ProjectConfig, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg ProjectConfig
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	if cfg.Version != 1 {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, cfg.Version)
	}

	cfg.Dir = filepath.Dir(path)
	if cfg.Stage.Name == "" {
		cfg.Stage.Name = "Stage"
	}
	if cfg.Project.ID == "" {
		cfg.Project.ID = strings.TrimSuffix(filepath.Base(cfg.Dir), string(filepath.Separator))
	}

	if err := ValidateProjectConfig(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ValidateProjectConfig checks sprite names are present and unique.
func ValidateProjectConfig(cfg *ProjectConfig) error {
	seen := map[string]bool{cfg.Stage.Name: true}
	for i, s := range cfg.Sprites {
		name := strings.TrimSpace(s.Name)
		if name == "" {
			return fmt.Errorf("sprite[%d]: name is required", i)
		}
		if seen[name] {
			return fmt.Errorf("sprite[%d]: duplicate name %q", i, name)
		}
		seen[name] = true
	}
	return nil
}
