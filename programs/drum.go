package programs

import (
	"math"
	"math/rand/v2"

	"github.com/rsuite/rsuite"
	"github.com/rsuite/rsuite/dsp"
)

type (
	// drumVoice is one hit of a drum. The envelope and the sweep are fixed
	// when the hit is triggered.
	drumVoice struct {
		active bool
		t      int
		age    uint64
		gain   float64
		env    dsp.Envelope
		phase  float64
		from   float64 // kick: start frequency
		to     float64 // kick: end frequency
		x1, y1 float64 // snare: high pass filter state
	}

	// drumKit is a fixed pool of drum voices.
	drumKit struct {
		voices  [maxVoices]drumVoice
		counter uint64
	}

	// kick is a drum whose pitch sweeps exponentially from a start
	// frequency to an end frequency.
	kick struct {
		drumKit
		sampleRate float64
		params     []rsuite.ParamSpec
	}

	// snare is a drum of high pass filtered white noise.
	snare struct {
		drumKit
		params []rsuite.ParamSpec
		noise  *rand.PCG
	}
)

// parameter indices; the drum parameters are shared by all drums and the
// drum specific ones follow them.
const (
	drumDuration = iota
	drumVolume
	drumFadeIn
	drumFadeOut
	numDrumParams
)

const (
	kickWave = numDrumParams + iota
	kickStartFreq
	kickEndFreq
)

const snareAlpha = numDrumParams

var Kick = rsuite.Program{
	Name:        "kick",
	Description: "Kick drum: a pitch sweep from start_freq to end_freq on every note on",
	New: func(cfg rsuite.UnitConfig) (rsuite.Unit, error) {
		return &kick{sampleRate: float64(cfg.SampleRate), params: kickParams(cfg.SampleRate)}, nil
	},
}

var Snare = rsuite.Program{
	Name:        "snare",
	Description: "Snare drum: high pass filtered noise burst on every note on",
	New: func(cfg rsuite.UnitConfig) (rsuite.Unit, error) {
		return &snare{params: snareParams(cfg.SampleRate), noise: rand.NewPCG(0x5EED, uint64(cfg.SampleRate))}, nil
	},
}

func drumParams(sampleRate, maxDuration int) []rsuite.ParamSpec {
	return []rsuite.ParamSpec{
		drumDuration: rsuite.IntParam("duration", 0, maxDuration, sampleRate/20, "frames"),
		drumVolume:   rsuite.FloatParam("volume", 0, 10, 0.5, ""),
		drumFadeIn:   rsuite.IntParam("fade_in", 0, sampleRate/10, 50, "frames"),
		drumFadeOut:  rsuite.IntParam("fade_out", 0, sampleRate/10, 50, "frames"),
	}
}

func kickParams(sampleRate int) []rsuite.ParamSpec {
	return append(drumParams(sampleRate, 2*sampleRate),
		rsuite.EnumParam("wave", int(dsp.Sine), dsp.WaveNames...),
		rsuite.FloatParam("start_freq", 0, 3520, 350, "Hz"),
		rsuite.FloatParam("end_freq", 0, 3520, 16, "Hz"),
	)
}

func snareParams(sampleRate int) []rsuite.ParamSpec {
	return append(drumParams(sampleRate, 5*sampleRate),
		rsuite.FloatParam("alpha", 0, 1, 0.2, ""),
	)
}

// trigger starts a new voice, stealing the oldest one if all are in use.
func (k *drumKit) trigger(b *rsuite.Block, velocity uint8, params []float64) *drumVoice {
	v := &k.voices[0]
	for i := range k.voices {
		if !k.voices[i].active {
			v = &k.voices[i]
			break
		}
		if k.voices[i].age < v.age {
			v = &k.voices[i]
		}
	}
	if v.active {
		b.Report(rsuite.Overflow, rsuite.Warning, "all drum voices in use, oldest voice stolen")
	}
	k.counter++
	*v = drumVoice{
		active: true,
		age:    k.counter,
		gain:   params[drumVolume] * float64(velocity) / 127,
		env: dsp.Envelope{
			FadeIn:  int(params[drumFadeIn]),
			Hold:    int(params[drumDuration]),
			FadeOut: int(params[drumFadeOut]),
		},
	}
	return v
}

func (u *kick) Parameters() []rsuite.ParamSpec { return u.params }

func (u *kick) Process(b *rsuite.Block) {
	out := b.Output()
	wave := dsp.Wave(b.Params[kickWave])
	frame := 0
	for _, e := range b.Events {
		u.render(out[frame:e.Frame], wave)
		frame = e.Frame
		if e.Kind() == rsuite.NoteOnEvent {
			v := u.trigger(b, e.Value(), b.Params)
			v.from, v.to = b.Params[kickStartFreq], b.Params[kickEndFreq]
		}
	}
	u.render(out[frame:b.Frames], wave)
}

func (u *kick) render(out []float32, wave dsp.Wave) {
	for i := range u.voices {
		v := &u.voices[i]
		if !v.active {
			continue
		}
		length := v.env.Length()
		for j := range out {
			if v.t >= length {
				break
			}
			// the frequency decays exponentially towards the end frequency
			f := v.to + math.Exp(-5*float64(v.t)/float64(length))*(v.from-v.to)
			v.phase += f / u.sampleRate
			v.phase -= math.Floor(v.phase)
			out[j] += float32(wave.At(v.phase) * v.env.At(v.t) * v.gain)
			v.t++
		}
		if v.t >= length {
			v.active = false
		}
	}
}

func (u *snare) Parameters() []rsuite.ParamSpec { return u.params }

func (u *snare) Process(b *rsuite.Block) {
	out := b.Output()
	alpha := b.Params[snareAlpha]
	frame := 0
	for _, e := range b.Events {
		u.render(out[frame:e.Frame], alpha)
		frame = e.Frame
		if e.Kind() == rsuite.NoteOnEvent {
			u.trigger(b, e.Value(), b.Params)
		}
	}
	u.render(out[frame:b.Frames], alpha)
}

func (u *snare) render(out []float32, alpha float64) {
	for i := range u.voices {
		v := &u.voices[i]
		if !v.active {
			continue
		}
		length := v.env.Length()
		for j := range out {
			if v.t >= length {
				break
			}
			x := float64(u.noise.Uint64()>>11)/(1<<53)*2 - 1
			y := alpha * (v.y1 + x - v.x1)
			v.x1, v.y1 = x, y
			out[j] += float32(y * v.env.At(v.t) * v.gain)
			v.t++
		}
		if v.t >= length {
			v.active = false
		}
	}
}
