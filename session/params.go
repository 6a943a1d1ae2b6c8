package session

import (
	"math"
	"sync/atomic"

	"github.com/rsuite/rsuite"
)

// ParamSet holds the current values of the parameters of one unit. Every
// value lives in its own atomic cell, so the control thread and the audio
// thread can both write them without locking. All writes are clamped.
type ParamSet struct {
	specs  []rsuite.ParamSpec
	values []atomic.Uint64
	names  map[string]int
}

func NewParamSet(specs []rsuite.ParamSpec) *ParamSet {
	s := &ParamSet{
		specs:  specs,
		values: make([]atomic.Uint64, len(specs)),
		names:  make(map[string]int, len(specs)),
	}
	for i, p := range specs {
		s.values[i].Store(math.Float64bits(p.Clamp(p.Default)))
		s.names[p.Name] = i
	}
	return s
}

func (s *ParamSet) Len() int { return len(s.specs) }

func (s *ParamSet) Spec(id int) rsuite.ParamSpec { return s.specs[id] }

func (s *ParamSet) Specs() []rsuite.ParamSpec { return s.specs }

// Index finds a parameter by name.
func (s *ParamSet) Index(name string) (int, bool) {
	i, ok := s.names[name]
	return i, ok
}

func (s *ParamSet) Valid(id int) bool { return id >= 0 && id < len(s.specs) }

func (s *ParamSet) Get(id int) float64 {
	return math.Float64frombits(s.values[id].Load())
}

// Set clamps v to the range of the parameter, stores it and returns the
// stored value.
func (s *ParamSet) Set(id int, v float64) float64 {
	v = s.specs[id].Clamp(v)
	s.values[id].Store(math.Float64bits(v))
	return v
}

// SetFromController maps a 7-bit controller value onto the parameter.
func (s *ParamSet) SetFromController(id int, value uint8) float64 {
	v := s.specs[id].FromController(value)
	s.values[id].Store(math.Float64bits(v))
	return v
}

// Snapshot copies the current values into dst, which must have room for
// Len() values.
func (s *ParamSet) Snapshot(dst []float64) []float64 {
	dst = dst[:len(s.values)]
	for i := range s.values {
		dst[i] = math.Float64frombits(s.values[i].Load())
	}
	return dst
}
