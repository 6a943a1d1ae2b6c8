package programs

import (
	"math"

	"github.com/rsuite/rsuite"
	"github.com/rsuite/rsuite/dsp"
)

// rsynth is an additive synthesizer: every note is a sum of nine partials of
// the selected wave, weighted by the overtone parameters. All notes share a
// single clock that is reset whenever the synth falls silent, and pitch bend
// speeds that clock up or slows it down.
type rsynth struct {
	params     []rsuite.ParamSpec
	sampleRate float64

	notes [maxVoices]rsynthNote

	time     float64 // dilated time since the synth last started to sound
	realTime float64
	dilation float64
}

type rsynthNote struct {
	playing  bool
	velocity float64
	fadeIn   float64 // linear level of the fade in, 1 when complete
	fadeOut  float64 // linear level of the fade out, 0 when complete
}

const numOvertones = 9

// overtoneRatios are the frequency multipliers of the partials.
var overtoneRatios = [numOvertones]float64{1, 1.0 / 2, 1.0 / 3, 2, 3, 4, 5, 6, 8}

const (
	rsynthWave     = 0
	rsynthOvertone = 1 // first of the numOvertones weights
)

const (
	rsynthFadeIn = rsynthOvertone + numOvertones + iota
	rsynthFadeInShape
	rsynthFadeOut
	rsynthFadeOutShape
	rsynthGain
	rsynthModulation
	rsynthModSpeed
	rsynthModIntensity
)

var RSynth = rsuite.Program{
	Name:        "rsynth",
	Description: "Additive synthesizer with nine overtones and shaped fades",
	New: func(cfg rsuite.UnitConfig) (rsuite.Unit, error) {
		return &rsynth{
			params:     rsynthParams(),
			sampleRate: float64(cfg.SampleRate),
			dilation:   1,
		}, nil
	},
}

func rsynthParams() []rsuite.ParamSpec {
	ret := []rsuite.ParamSpec{rsuite.EnumParam("wave", int(dsp.Sine), dsp.WaveNames...)}
	for i := range numOvertones {
		def := 0.0
		if i == 0 {
			def = 1
		}
		ret = append(ret, rsuite.FloatParam(overtoneName(i), 0, 1, def, ""))
	}
	return append(ret,
		rsuite.FloatParam("fade_in", 0.025, 3.2, 0.1, "s"),
		rsuite.IntParam("fade_in_shape", 0, 127, 64, ""),
		rsuite.FloatParam("fade_out", 0.025, 3.2, 0.1, "s"),
		rsuite.IntParam("fade_out_shape", 0, 127, 64, ""),
		rsuite.FloatParam("gain", 0, 8, 1, ""),
		rsuite.IntParam("modulation", 0, 127, 0, ""),
		rsuite.FloatParam("mod_speed", 0, 32, 1, ""),
		rsuite.FloatParam("mod_intensity", 0, 1, 0, ""),
	)
}

func overtoneName(i int) string {
	return "overtone_" + string(rune('1'+i))
}

func (u *rsynth) Parameters() []rsuite.ParamSpec { return u.params }

func (u *rsynth) Process(b *rsuite.Block) {
	out := b.Output()
	frame := 0
	for _, e := range b.Events {
		u.render(out[frame:e.Frame], b.Params)
		frame = e.Frame
		u.handle(e)
	}
	u.render(out[frame:b.Frames], b.Params)
}

func (u *rsynth) handle(e rsuite.MIDIEvent) {
	switch e.Kind() {
	case rsuite.NoteOnEvent:
		n := &u.notes[e.Key()]
		if !n.playing {
			n.playing = true
			n.velocity = float64(e.Value()) / 127
			// resume from the level the fade out had reached
			n.fadeIn = max(n.fadeOut, 0)
		}
	case rsuite.NoteOffEvent:
		n := &u.notes[e.Key()]
		if n.playing {
			n.playing = false
			n.fadeOut = min(n.fadeIn, 1)
		}
	case rsuite.PitchBendEvent:
		bend := float64(e.Bend())
		if bend < 8192 {
			u.dilation = bend / 8192
		} else {
			u.dilation = 1 + (bend-8192)/8192
		}
	}
}

func (u *rsynth) render(out []float32, params []float64) {
	wave := dsp.Wave(params[rsynthWave])
	overtones := params[rsynthOvertone : rsynthOvertone+numOvertones]
	inStep := 1 / (u.sampleRate * params[rsynthFadeIn])
	outStep := 1 / (u.sampleRate * params[rsynthFadeOut])
	inShape := dsp.ShapeExponent(params[rsynthFadeInShape])
	outShape := dsp.ShapeExponent(params[rsynthFadeOutShape])
	gain := params[rsynthGain]
	frameTime := 1 / u.sampleRate
	for i := range out {
		value := 0.0
		mute := true
		for key := range u.notes {
			n := &u.notes[key]
			var fade float64
			switch {
			case n.playing && n.fadeIn >= 1:
				fade = 1
			case n.playing:
				fade = dsp.Shape(n.fadeIn, inShape)
				n.fadeIn += inStep
			case n.fadeOut > 0:
				fade = dsp.Shape(n.fadeOut, outShape)
				n.fadeOut -= outStep
			default:
				continue
			}
			if fade <= 0 {
				continue
			}
			mute = false
			f := dsp.NoteFrequency(float64(key)) * u.time
			for j, w := range overtones {
				if w == 0 {
					continue
				}
				value += wave.At(f*overtoneRatios[j]) * w * n.velocity * fade
			}
		}
		out[i] += float32(value * gain)
		u.advance(frameTime, params)
		if mute {
			u.time, u.realTime = 0, 0
		}
	}
}

func (u *rsynth) advance(dt float64, params []float64) {
	modulation := 1.0
	if m, speed := params[rsynthModulation], params[rsynthModSpeed]; m > 0 && speed > 0 {
		modulation += params[rsynthModIntensity] * math.Sin(m*u.realTime*math.Pi/speed)
	}
	u.time += dt * u.dilation * modulation
	u.realTime += dt
}
