// ABOUTME: YAML configuration for the voice client and gateway
// ABOUTME: Selects transport and audio backends and lists the available personas
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/Resonate-Protocol/resonate-voice/pkg/voice"
	"gopkg.in/yaml.v3"
)

// Config is the contents of a resonate-voice config file
type Config struct {
	Transport TransportConfig `yaml:"transport"`
	Audio     AudioConfig     `yaml:"audio"`
	Gateway   GatewayConfig   `yaml:"gateway"`
	Personas  []Persona       `yaml:"personas"`
}

// TransportConfig chooses how sessions reach the agent
type TransportConfig struct {
	// Kind is "gemini" or "gateway"
	Kind string `yaml:"kind"`

	// APIKeyEnv names the environment variable holding the Gemini API key
	APIKeyEnv string `yaml:"api_key_env"`
	Model     string `yaml:"model"`

	// Address is the gateway host:port; empty means discover via mDNS
	Address string `yaml:"address"`

	ConnectTimeout time.Duration `yaml:"connect_timeout"`
}

// AudioConfig chooses device backends
type AudioConfig struct {
	Input  string `yaml:"input"`
	Output string `yaml:"output"`
	Volume int    `yaml:"volume"`
}

// GatewayConfig configures the local voice gateway server
type GatewayConfig struct {
	Port         int     `yaml:"port"`
	Name         string  `yaml:"name"`
	OutputCodec  string  `yaml:"output_codec"`
	MetricsPath  string  `yaml:"metrics_path"`
	Advertise    bool    `yaml:"advertise"`
	VADThreshold float64 `yaml:"vad_threshold"`
}

// Persona is one selectable agent configuration
type Persona struct {
	Name        string `yaml:"name"`
	Voice       string `yaml:"voice"`
	Instruction string `yaml:"instruction"`
	Context     string `yaml:"context"`
}

// SessionConfig converts the persona for a voice session
func (p Persona) SessionConfig() (voice.SessionConfig, error) {
	v, err := voice.ParseVoice(p.Voice)
	if err != nil {
		return voice.SessionConfig{}, fmt.Errorf("persona %q: %w", p.Name, err)
	}
	return voice.SessionConfig{
		Voice:             v,
		SystemInstruction: p.Instruction,
		PersonaLabel:      p.Name,
		Context:           p.Context,
	}, nil
}

// Default returns the configuration used when no file is given
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// Load reads, defaults and validates a config file
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes YAML from r, rejecting unknown fields
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Transport.Kind == "" {
		c.Transport.Kind = "gemini"
	}
	if c.Transport.APIKeyEnv == "" {
		c.Transport.APIKeyEnv = "GEMINI_API_KEY"
	}
	if c.Audio.Volume == 0 {
		c.Audio.Volume = 100
	}
	if c.Gateway.Port == 0 {
		c.Gateway.Port = 8928
	}
	if c.Gateway.Name == "" {
		c.Gateway.Name = "Resonate Voice Gateway"
	}
	if c.Gateway.OutputCodec == "" {
		c.Gateway.OutputCodec = "wav"
	}
	if c.Gateway.MetricsPath == "" {
		c.Gateway.MetricsPath = "/metrics"
	}
	if c.Gateway.VADThreshold == 0 {
		c.Gateway.VADThreshold = 0.02
	}
	if len(c.Personas) == 0 {
		c.Personas = []Persona{{
			Name:        "Assistant",
			Voice:       "Puck",
			Instruction: "You are a friendly voice assistant. Keep answers short.",
		}}
	}
	for i := range c.Personas {
		if c.Personas[i].Voice == "" {
			c.Personas[i].Voice = "Puck"
		}
	}
}

// Validate returns every problem found, joined
func (c *Config) Validate() error {
	var errs []error

	switch c.Transport.Kind {
	case "gemini", "gateway":
	default:
		errs = append(errs, fmt.Errorf("transport.kind must be gemini or gateway, got %q", c.Transport.Kind))
	}
	if c.Transport.ConnectTimeout < 0 {
		errs = append(errs, fmt.Errorf("transport.connect_timeout must not be negative"))
	}

	switch c.Audio.Input {
	case "", "malgo", "portaudio":
	default:
		errs = append(errs, fmt.Errorf("audio.input must be malgo or portaudio, got %q", c.Audio.Input))
	}
	switch c.Audio.Output {
	case "", "oto", "malgo", "portaudio":
	default:
		errs = append(errs, fmt.Errorf("audio.output must be oto, malgo or portaudio, got %q", c.Audio.Output))
	}
	if c.Audio.Volume < 0 || c.Audio.Volume > 100 {
		errs = append(errs, fmt.Errorf("audio.volume must be between 0 and 100, got %d", c.Audio.Volume))
	}

	if c.Gateway.Port < 1 || c.Gateway.Port > 65535 {
		errs = append(errs, fmt.Errorf("gateway.port must be between 1 and 65535, got %d", c.Gateway.Port))
	}
	switch c.Gateway.OutputCodec {
	case "wav", "pcm", "opus":
	default:
		errs = append(errs, fmt.Errorf("gateway.output_codec must be wav, pcm or opus, got %q", c.Gateway.OutputCodec))
	}
	if c.Gateway.VADThreshold <= 0 || c.Gateway.VADThreshold >= 1 {
		errs = append(errs, fmt.Errorf("gateway.vad_threshold must be in (0, 1), got %v", c.Gateway.VADThreshold))
	}

	seen := make(map[string]int, len(c.Personas))
	for i, p := range c.Personas {
		prefix := fmt.Sprintf("personas[%d]", i)
		if p.Name == "" {
			errs = append(errs, fmt.Errorf("%s.name is required", prefix))
		} else if prev, ok := seen[p.Name]; ok {
			errs = append(errs, fmt.Errorf("%s.name %q is a duplicate of personas[%d]", prefix, p.Name, prev))
		} else {
			seen[p.Name] = i
		}
		if _, err := voice.ParseVoice(p.Voice); err != nil {
			errs = append(errs, fmt.Errorf("%s.voice: %w", prefix, err))
		}
	}

	return errors.Join(errs...)
}

// Persona returns the persona with the given name, or the first when name is empty
func (c *Config) Persona(name string) (Persona, error) {
	if name == "" {
		return c.Personas[0], nil
	}
	for _, p := range c.Personas {
		if p.Name == name {
			return p, nil
		}
	}
	return Persona{}, fmt.Errorf("no persona named %q", name)
}
