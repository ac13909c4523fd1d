package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// Runtime holds process settings read from the environment.
type Runtime struct {
	ProjectPath     string `env:"PLAYER_PROJECT" envDefault:"project.yaml"`
	UIPort          int    `env:"PLAYER_UI_PORT" envDefault:"8080"`
	FrameRate       int    `env:"PLAYER_FPS" envDefault:"60"`
	AutoStart       bool   `env:"PLAYER_AUTOSTART" envDefault:"false"`
	MQTTEnabled     bool   `env:"PLAYER_MQTT_ENABLED" envDefault:"false"`
	MQTTURL         string `env:"MQTT_URL" envDefault:"tcp://localhost:1883"`
	PostgresEnabled bool   `env:"PLAYER_POSTGRES_ENABLED" envDefault:"false"`
	AudioSampleRate int    `env:"PLAYER_AUDIO_SAMPLE_RATE" envDefault:"44100"`
	AudioOut        string `env:"PLAYER_AUDIO_OUT"`
}

// LoadRuntime parses Runtime from the environment.
func LoadRuntime() (*Runtime, error) {
	var cfg Runtime
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if cfg.FrameRate <= 0 {
		return nil, fmt.Errorf("PLAYER_FPS must be positive, got %d", cfg.FrameRate)
	}
	if cfg.AudioSampleRate <= 0 {
		return nil, fmt.Errorf("PLAYER_AUDIO_SAMPLE_RATE must be positive, got %d", cfg.AudioSampleRate)
	}
	return &cfg, nil
}
