package rsuite

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

type (
	// ParamSpec describes one parameter of a Unit. The identity of the
	// parameter is its index in the slice returned by Unit.Parameters; the
	// name is unique within the unit.
	ParamSpec struct {
		Name    string
		Kind    ParamKind
		Min     float64
		Max     float64
		Default float64
		Choices []string // labels of the values of an Enum, starting from Min
		Unit    string   // display suffix, e.g. "Hz"
	}

	ParamKind int

	// Control identifies a MIDI continuous controller: a channel 0..15 and a
	// controller number 0..127.
	Control struct {
		Channel    uint8
		Controller uint8
	}

	// Binding tells what drives a parameter: manual edits only, or
	// additionally a MIDI controller.
	Binding struct {
		MIDI    bool
		Control Control
	}
)

const (
	Float ParamKind = iota
	Int
	Enum
	Bool
)

var ErrInvalidValue = errors.New("invalid parameter value")

func FloatParam(name string, min, max, def float64, unit string) ParamSpec {
	return ParamSpec{Name: name, Kind: Float, Min: min, Max: max, Default: def, Unit: unit}
}

func IntParam(name string, min, max, def int, unit string) ParamSpec {
	return ParamSpec{Name: name, Kind: Int, Min: float64(min), Max: float64(max), Default: float64(def), Unit: unit}
}

func EnumParam(name string, def int, choices ...string) ParamSpec {
	return ParamSpec{Name: name, Kind: Enum, Min: 0, Max: float64(len(choices) - 1), Default: float64(def), Choices: choices}
}

func BoolParam(name string, def bool) ParamSpec {
	d := 0.0
	if def {
		d = 1
	}
	return ParamSpec{Name: name, Kind: Bool, Min: 0, Max: 1, Default: d}
}

func (k ParamKind) String() string {
	switch k {
	case Float:
		return "float"
	case Int:
		return "int"
	case Enum:
		return "enum"
	case Bool:
		return "bool"
	}
	return "unknown"
}

// Discrete tells if the values of the parameter are integers.
func (p ParamSpec) Discrete() bool { return p.Kind != Float }

// Clamp forces v into [Min, Max], rounding it for discrete parameters. NaN
// maps to the default value.
func (p ParamSpec) Clamp(v float64) float64 {
	if math.IsNaN(v) {
		return p.Default
	}
	if p.Discrete() {
		v = math.Round(v)
	}
	if v < p.Min {
		return p.Min
	}
	if v > p.Max {
		return p.Max
	}
	return v
}

// FromController maps a 7-bit controller value linearly onto the range of
// the parameter: 0 maps to Min and 127 to Max.
func (p ParamSpec) FromController(value uint8) float64 {
	v := p.Min + float64(value&0x7F)/127*(p.Max-p.Min)
	return p.Clamp(v)
}

// Format renders a value of the parameter for humans.
func (p ParamSpec) Format(v float64) string {
	switch p.Kind {
	case Bool:
		if v >= 0.5 {
			return "on"
		}
		return "off"
	case Enum:
		i := int(v - p.Min)
		if i >= 0 && i < len(p.Choices) {
			return p.Choices[i]
		}
		return strconv.Itoa(int(v))
	case Int:
		return strings.TrimSpace(fmt.Sprintf("%d %s", int(v), p.Unit))
	}
	return strings.TrimSpace(fmt.Sprintf("%.4g %s", v, p.Unit))
}

// Parse reads a value of the parameter: a number, an enum label, or on/off
// for booleans. The result is not clamped.
func (p ParamSpec) Parse(s string) (float64, error) {
	s = strings.TrimSpace(s)
	switch p.Kind {
	case Bool:
		switch strings.ToLower(s) {
		case "on", "true", "yes":
			return 1, nil
		case "off", "false", "no":
			return 0, nil
		}
	case Enum:
		for i, c := range p.Choices {
			if strings.EqualFold(c, s) {
				return p.Min + float64(i), nil
			}
		}
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("%w for %s: %q", ErrInvalidValue, p.Name, s)
	}
	return v, nil
}

func (c Control) Valid() bool { return c.Channel < 16 && c.Controller < 128 }

func (c Control) String() string {
	return fmt.Sprintf("ch%d/cc%d", c.Channel+1, c.Controller)
}

func ManualBinding() Binding { return Binding{} }

func MIDIBinding(channel, controller uint8) Binding {
	return Binding{MIDI: true, Control: Control{Channel: channel, Controller: controller}}
}

func (b Binding) String() string {
	if !b.MIDI {
		return "manual"
	}
	return b.Control.String()
}
