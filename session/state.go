package session

import (
	"fmt"
	"maps"

	"github.com/rsuite/rsuite"
	"gopkg.in/yaml.v3"
)

// State is the serializable state of a session: the current program and its
// parameter values and bindings.
type State struct {
	Program string `yaml:"program"`
	Preset  `yaml:",inline"`
}

// State captures the current program, parameter values and bindings.
func (m *Model) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return State{}
	}
	st := State{
		Program: m.current.program,
		Preset: Preset{
			Params: make(map[string]float64, m.current.params.Len()),
		},
	}
	for i, p := range m.current.params.Specs() {
		st.Params[p.Name] = m.current.params.Get(i)
		if c, ok := m.bindings.GetControl(i); ok {
			if st.Bindings == nil {
				st.Bindings = make(map[string]rsuite.Control)
			}
			st.Bindings[p.Name] = c
		}
	}
	return st
}

// Restore makes the state the preset of its program and switches to that
// program.
func (m *Model) Restore(st State) error {
	m.mu.Lock()
	presets := maps.Clone(m.cfg.Presets)
	if presets == nil {
		presets = make(map[string]Preset)
	}
	presets[st.Program] = st.Preset
	m.cfg.Presets = presets
	m.mu.Unlock()
	return m.SwitchProgram(st.Program)
}

func (m *Model) MarshalState() ([]byte, error) {
	data, err := yaml.Marshal(m.State())
	if err != nil {
		return nil, fmt.Errorf("could not marshal session state: %w", err)
	}
	return data, nil
}

func (m *Model) UnmarshalState(data []byte) error {
	var st State
	if err := yaml.Unmarshal(data, &st); err != nil {
		return fmt.Errorf("could not unmarshal session state: %w", err)
	}
	return m.Restore(st)
}
