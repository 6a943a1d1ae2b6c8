// Package config loads the settings of the rsuite commands: the audio and
// MIDI setup, the program to start with and the initial state of the
// programs. User files are merged over the embedded defaults.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"text/template"

	"github.com/Masterminds/sprig"
	"github.com/rsuite/rsuite"
	"github.com/rsuite/rsuite/session"
	"gopkg.in/yaml.v2"
)

type (
	Config struct {
		SampleRate     int    `yaml:"sample_rate"`
		BlockSize      int    `yaml:"block_size"`
		InputChannels  int    `yaml:"input_channels"`
		OutputChannels int    `yaml:"output_channels"`
		Driver         string `yaml:"driver"`
		Program        string `yaml:"program"`
		MIDIInput      string `yaml:"midi_input"`
		MIDIOutput     string `yaml:"midi_output"`
		ErrorCapacity  int    `yaml:"error_capacity"`
		Recorder       Recorder
		StatusTemplate string `yaml:"status_template"`
		// Programs are the initial parameter values and bindings per program.
		// A program listed in a user file replaces its default entry.
		Programs map[string]session.Preset
	}

	Recorder struct {
		Dir    string
		Prefix string
	}
)

const (
	DriverOto       = "oto"
	DriverPortAudio = "portaudio"
)

var ErrInvalidConfig = errors.New("invalid configuration")

//go:embed defaults.yml
var defaultsYaml []byte

// Default returns the built-in configuration.
func Default() Config {
	var c Config
	if err := yaml.UnmarshalStrict(defaultsYaml, &c); err != nil {
		panic(fmt.Errorf("failed to unmarshal default config: %w", err))
	}
	return c
}

// Load merges the yaml file at path over the defaults. An empty path means
// rsuite/config.yml in the user config directory, which may be missing.
func Load(path string) (Config, error) {
	c := Default()
	optional := path == ""
	if optional {
		dir, err := os.UserConfigDir()
		if err != nil {
			return c, nil
		}
		path = filepath.Join(dir, "rsuite", "config.yml")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if optional && errors.Is(err, os.ErrNotExist) {
			return c, nil
		}
		return c, fmt.Errorf("could not read config: %w", err)
	}
	if err := yaml.UnmarshalStrict(data, &c); err != nil {
		return c, fmt.Errorf("%w: %v: %w", ErrInvalidConfig, path, err)
	}
	return c, c.Validate()
}

// Validate checks the ranges of the settings; the programs are checked when
// they are constructed.
func (c Config) Validate() error {
	switch {
	case c.SampleRate < 8000 || c.SampleRate > 384000:
		return fmt.Errorf("%w: sample_rate %d", ErrInvalidConfig, c.SampleRate)
	case c.BlockSize < 16 || c.BlockSize > 8192:
		return fmt.Errorf("%w: block_size %d", ErrInvalidConfig, c.BlockSize)
	case c.InputChannels < 0 || c.InputChannels > 32:
		return fmt.Errorf("%w: input_channels %d", ErrInvalidConfig, c.InputChannels)
	case c.OutputChannels < 1 || c.OutputChannels > 32:
		return fmt.Errorf("%w: output_channels %d", ErrInvalidConfig, c.OutputChannels)
	case c.Driver != DriverOto && c.Driver != DriverPortAudio:
		return fmt.Errorf("%w: driver %q", ErrInvalidConfig, c.Driver)
	case c.ErrorCapacity < 1:
		return fmt.Errorf("%w: error_capacity %d", ErrInvalidConfig, c.ErrorCapacity)
	}
	for name, p := range c.Programs {
		for param, ctrl := range p.Bindings {
			if !ctrl.Valid() {
				return fmt.Errorf("%w: programs.%v.bindings.%v %v", ErrInvalidConfig, name, param, ctrl)
			}
		}
	}
	if _, err := c.Template(); err != nil {
		return fmt.Errorf("%w: status_template: %w", ErrInvalidConfig, err)
	}
	return nil
}

// Session returns the configuration of a session using these settings.
func (c Config) Session(logger *slog.Logger) session.Config {
	return session.Config{
		Unit: rsuite.UnitConfig{
			SampleRate:     c.SampleRate,
			MaxFrames:      c.BlockSize,
			InputChannels:  c.InputChannels,
			OutputChannels: c.OutputChannels,
			Sinks:          rsuite.WAVTakes(c.Recorder.Dir, c.Recorder.Prefix, c.SampleRate, 1),
			Logger:         logger,
		},
		ErrorCapacity: c.ErrorCapacity,
		Presets:       c.Programs,
	}
}

// Template parses the status template, with the sprig functions available.
func (c Config) Template() (*template.Template, error) {
	return template.New("status").Funcs(sprig.TxtFuncMap()).Parse(c.StatusTemplate)
}
