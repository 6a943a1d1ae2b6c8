package programs

import "github.com/rsuite/rsuite"

// activator is a MIDI gate: while active every incoming event is forwarded,
// otherwise everything is swallowed.
type activator struct {
	params []rsuite.ParamSpec
}

var Activator = rsuite.Program{
	Name:        "activator",
	Description: "MIDI gate: forwards all events while active",
	New: func(cfg rsuite.UnitConfig) (rsuite.Unit, error) {
		return &activator{params: []rsuite.ParamSpec{rsuite.BoolParam("active", true)}}, nil
	},
}

func (u *activator) Parameters() []rsuite.ParamSpec { return u.params }

func (u *activator) Process(b *rsuite.Block) {
	if b.Params[0] < 0.5 {
		return
	}
	for _, e := range b.Events {
		b.Forward(e)
	}
}
