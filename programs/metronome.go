package programs

import (
	"math"

	"github.com/rsuite/rsuite"
	"github.com/rsuite/rsuite/dsp"
)

// metronome clicks on every beat, with a higher pitched click on the first
// beat of the bar.
type metronome struct {
	params     []rsuite.ParamSpec
	sampleRate int
	click      int // length of a click in frames

	pos   int // frames since the start of the current beat
	beat  int
	phase float64
}

const (
	metronomeBPM = iota
	metronomeBeats
	metronomeActive
)

const (
	downbeatFreq = 880
	beatFreq     = 220
)

var Metronome = rsuite.Program{
	Name:        "metronome",
	Description: "Metronome with an accented first beat",
	New: func(cfg rsuite.UnitConfig) (rsuite.Unit, error) {
		return &metronome{
			params: []rsuite.ParamSpec{
				metronomeBPM:    rsuite.IntParam("bpm", 60, 240, 110, "bpm"),
				metronomeBeats:  rsuite.IntParam("beats", 1, 16, 4, ""),
				metronomeActive: rsuite.BoolParam("active", true),
			},
			sampleRate: cfg.SampleRate,
			click:      max(cfg.SampleRate/10, 2),
		}, nil
	},
}

func (u *metronome) Parameters() []rsuite.ParamSpec { return u.params }

func (u *metronome) Process(b *rsuite.Block) {
	period := u.sampleRate * 60 / int(b.Params[metronomeBPM])
	beats := int(b.Params[metronomeBeats])
	active := b.Params[metronomeActive] >= 0.5
	out := b.Output()
	for i := range b.Frames {
		if u.pos >= period {
			u.pos = 0
			u.phase = 0
			u.beat = (u.beat + 1) % beats
		}
		if u.beat >= beats {
			u.beat = 0
		}
		if u.pos < u.click {
			freq := float64(beatFreq)
			if u.beat == 0 {
				freq = downbeatFreq
			}
			u.phase += freq / float64(u.sampleRate)
			u.phase -= math.Floor(u.phase)
			// triangular fade over the click
			half := float64(u.click) / 2
			fade := 1 - math.Abs(float64(u.pos)-half)/half
			if active {
				out[i] = float32(0.5 * fade * dsp.Sine.At(u.phase))
			}
		}
		u.pos++
	}
}
