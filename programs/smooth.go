package programs

import "github.com/rsuite/rsuite"

// smooth is an exponential moving average low pass filter of the first input
// channel.
type smooth struct {
	params   []rsuite.ParamSpec
	avg      float64
	reported bool
}

const smoothAlpha = 0

var Smooth = rsuite.Program{
	Name:        "smooth",
	Description: "Low pass filter: exponential moving average of the input",
	New: func(cfg rsuite.UnitConfig) (rsuite.Unit, error) {
		return &smooth{params: []rsuite.ParamSpec{
			smoothAlpha: rsuite.FloatParam("alpha", 0, 1, 0.004, ""),
		}}, nil
	},
}

func (u *smooth) Parameters() []rsuite.ParamSpec { return u.params }

func (u *smooth) Process(b *rsuite.Block) {
	in := b.Input(0)
	if in == nil {
		if !u.reported {
			b.Report(rsuite.InputUnavailable, rsuite.Warning, "smooth has no audio input, output is silent")
			u.reported = true
		}
		return
	}
	u.reported = false
	alpha := b.Params[smoothAlpha]
	out := b.Output()
	for i := range b.Frames {
		u.avg = alpha*float64(in[i]) + (1-alpha)*u.avg
		out[i] = float32(u.avg)
	}
}
