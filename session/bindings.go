package session

import (
	"github.com/rsuite/rsuite"
)

type (
	// Bindings is a two-way map between MIDI controls and parameter ids. It
	// makes sure that a control drives at most one parameter and that a
	// parameter is driven by at most one control. It is owned by the control
	// thread; the audio thread only ever sees BindingTables built from it.
	Bindings struct {
		ControlBindings map[rsuite.Control]int
		ParamBindings   map[int]rsuite.Control
	}

	// BindingTable is an immutable snapshot of Bindings for the audio thread,
	// indexed directly by channel and controller.
	BindingTable struct {
		owner uint64 // id of the slot the ids refer to
		slots [16][128]int16
	}
)

func (t *Bindings) GetParam(c rsuite.Control) (int, bool) {
	if t.ControlBindings == nil {
		return 0, false
	}
	p, ok := t.ControlBindings[c]
	return p, ok
}

func (t *Bindings) GetControl(p int) (rsuite.Control, bool) {
	if t.ParamBindings == nil {
		return rsuite.Control{}, false
	}
	c, ok := t.ParamBindings[p]
	return c, ok
}

// Link binds control c to parameter p. The previous parameter of c, if any,
// becomes unbound, and the previous control of p, if any, is released.
func (t *Bindings) Link(c rsuite.Control, p int) {
	if t.ControlBindings == nil {
		t.ControlBindings = make(map[rsuite.Control]int)
	}
	if t.ParamBindings == nil {
		t.ParamBindings = make(map[int]rsuite.Control)
	}
	if p, ok := t.ControlBindings[c]; ok {
		delete(t.ParamBindings, p)
	}
	if c, ok := t.ParamBindings[p]; ok {
		delete(t.ControlBindings, c)
	}
	t.ControlBindings[c] = p
	t.ParamBindings[p] = c
}

func (t *Bindings) UnlinkParam(p int) {
	if t.ParamBindings == nil {
		return
	}
	if c, ok := t.ParamBindings[p]; ok {
		delete(t.ParamBindings, p)
		delete(t.ControlBindings, c)
	}
}

func (t *Bindings) Len() int { return len(t.ControlBindings) }

// Table builds the lookup table of the audio thread.
func (t *Bindings) Table(owner uint64) *BindingTable {
	ret := &BindingTable{owner: owner}
	for ch := range ret.slots {
		for cc := range ret.slots[ch] {
			ret.slots[ch][cc] = -1
		}
	}
	for c, p := range t.ControlBindings {
		ret.slots[c.Channel&0x0F][c.Controller&0x7F] = int16(p)
	}
	return ret
}

// Lookup returns the parameter bound to the control. It does not allocate.
func (t *BindingTable) Lookup(c rsuite.Control) (int, bool) {
	if t == nil {
		return 0, false
	}
	p := t.slots[c.Channel&0x0F][c.Controller&0x7F]
	return int(p), p >= 0
}

func (t *BindingTable) Owner() uint64 { return t.owner }
