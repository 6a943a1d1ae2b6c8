// Package programs contains the units that can be run by a session: drum and
// tone synthesizers, audio effects and MIDI utilities.
package programs

import (
	"sort"

	"github.com/rsuite/rsuite"
	"golang.org/x/text/cases"
)

// Registry is a catalog of programs looked up by case-insensitive name.
type Registry struct {
	programs []rsuite.Program
	byName   map[string]int
}

// maxVoices is the polyphony of the synthesizers; the oldest voice is stolen
// when all are in use.
const maxVoices = 128

func NewRegistry(programs ...rsuite.Program) *Registry {
	r := &Registry{byName: make(map[string]int)}
	for _, p := range programs {
		r.Register(p)
	}
	return r
}

// Default has all the programs of this package.
func Default() *Registry {
	return NewRegistry(Kick, Snare, RSynth, Smooth, Activator, Recorder, Transposer, Metronome)
}

// Register adds a program, replacing any program with the same name.
func (r *Registry) Register(p rsuite.Program) {
	key := cases.Fold().String(p.Name)
	if i, ok := r.byName[key]; ok {
		r.programs[i] = p
		return
	}
	r.byName[key] = len(r.programs)
	r.programs = append(r.programs, p)
}

func (r *Registry) Lookup(name string) (rsuite.Program, bool) {
	i, ok := r.byName[cases.Fold().String(name)]
	if !ok {
		return rsuite.Program{}, false
	}
	return r.programs[i], true
}

// Programs returns the programs in registration order.
func (r *Registry) Programs() []rsuite.Program {
	return append([]rsuite.Program(nil), r.programs...)
}

// Names returns the sorted names of the programs.
func (r *Registry) Names() []string {
	ret := make([]string, len(r.programs))
	for i, p := range r.programs {
		ret[i] = p.Name
	}
	sort.Strings(ret)
	return ret
}
