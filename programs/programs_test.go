package programs_test

import (
	"errors"
	"io"
	"math"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/rsuite/rsuite"
	"github.com/rsuite/rsuite/programs"
)

const sampleRate = 44100

type reports struct {
	mu    sync.Mutex
	kinds []rsuite.ErrorKind
}

func (r *reports) Report(frame int64, kind rsuite.ErrorKind, severity rsuite.Severity, msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.kinds = append(r.kinds, kind)
}

func (r *reports) count(kind rsuite.ErrorKind) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, k := range r.kinds {
		if k == kind {
			n++
		}
	}
	return n
}

func (r *reports) has(kind rsuite.ErrorKind) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Contains(r.kinds, kind)
}

// harness runs a unit block by block like the session player does.
type harness struct {
	t      *testing.T
	unit   rsuite.Unit
	specs  []rsuite.ParamSpec
	params []float64
	out    rsuite.AudioBuffer
	midi   *rsuite.MIDIBuffer
	rep    *reports
	frame  int64
}

func newHarness(t *testing.T, prog rsuite.Program, cfg rsuite.UnitConfig) *harness {
	t.Helper()
	if cfg.SampleRate == 0 {
		cfg.SampleRate = sampleRate
	}
	if cfg.MaxFrames == 0 {
		cfg.MaxFrames = 512
	}
	u, err := prog.New(cfg)
	if err != nil {
		t.Fatalf("could not create %v: %v", prog.Name, err)
	}
	if c, ok := u.(io.Closer); ok {
		t.Cleanup(func() { c.Close() })
	}
	h := &harness{t: t, unit: u, specs: u.Parameters(), rep: &reports{}}
	for _, s := range h.specs {
		h.params = append(h.params, s.Default)
	}
	h.out = rsuite.MakeAudioBuffer(1, cfg.MaxFrames)
	h.midi = rsuite.NewMIDIBuffer(256)
	return h
}

func (h *harness) set(name string, v float64) {
	h.t.Helper()
	for i, s := range h.specs {
		if s.Name == name {
			h.params[i] = s.Clamp(v)
			return
		}
	}
	h.t.Fatalf("no parameter %q", name)
}

// run processes one block and returns a copy of its output.
func (h *harness) run(frames int, in []float32, events ...rsuite.MIDIEvent) []float32 {
	h.out.Clear()
	h.midi.Reset()
	b := &rsuite.Block{
		Frames:     frames,
		SampleRate: sampleRate,
		Frame:      h.frame,
		Out:        h.out.Slice(nil, frames),
		Events:     events,
		MIDIOut:    h.midi,
		Params:     h.params,
		Reporter:   h.rep,
	}
	if in != nil {
		b.In = [][]float32{in}
	}
	h.unit.Process(b)
	h.frame += int64(frames)
	return append([]float32(nil), b.Out[0]...)
}

// render processes total frames in blocks, with the events placed at the
// start of the first block.
func (h *harness) render(total int, events ...rsuite.MIDIEvent) []float32 {
	var ret []float32
	for len(ret) < total {
		n := min(512, total-len(ret))
		ret = append(ret, h.run(n, nil, events...)...)
		events = nil
	}
	return ret
}

func TestKickSweepsDown(t *testing.T) {
	h := newHarness(t, programs.Kick, rsuite.UnitConfig{})
	h.set("wave", 0)
	h.set("start_freq", 100)
	h.set("end_freq", 50)
	h.set("duration", 4410)
	h.set("fade_in", 0)
	h.set("fade_out", 0)
	h.set("volume", 1)
	out := h.render(3*4410, rsuite.NoteOn(0, 0, 36, 127))
	for i, v := range out[:4410] {
		if v == 0 {
			t.Fatalf("sample %d of the kick is silent", i)
		}
	}
	for i, v := range out[4410:] {
		if v != 0 {
			t.Fatalf("sample %d after the kick is %v, want silence", 4410+i, v)
		}
	}
	var crossings []int
	for i := 1; i < 4410; i++ {
		if (out[i-1] < 0) != (out[i] < 0) {
			crossings = append(crossings, i)
		}
	}
	if len(crossings) < 3 {
		t.Fatalf("only %d zero crossings", len(crossings))
	}
	first := crossings[0]
	if first < 200 || first > 280 {
		t.Errorf("first half period is %d frames, want about 240 (around 90 Hz)", first)
	}
	for i := 1; i < len(crossings); i++ {
		half := crossings[i] - crossings[i-1]
		prev := first
		if i > 1 {
			prev = crossings[i-1] - crossings[i-2]
		}
		if half+1 < prev {
			t.Errorf("half period %d is %d frames, shorter than the previous %d: pitch is rising", i, half, prev)
		}
		if half > 450 {
			t.Errorf("half period %d is %d frames, below 50 Hz", i, half)
		}
	}
}

func TestKickStealsOldestVoice(t *testing.T) {
	h := newHarness(t, programs.Kick, rsuite.UnitConfig{})
	events := make([]rsuite.MIDIEvent, 129)
	for i := range events {
		events[i] = rsuite.NoteOn(0, 0, uint8(i%128), 100)
	}
	h.run(64, nil, events[:128]...)
	if h.rep.has(rsuite.Overflow) {
		t.Fatal("overflow reported before the pool was exhausted")
	}
	h.run(64, nil, events[128:]...)
	if !h.rep.has(rsuite.Overflow) {
		t.Fatal("stealing a voice was not reported")
	}
}

func TestSnareIsBoundedNoise(t *testing.T) {
	h := newHarness(t, programs.Snare, rsuite.UnitConfig{})
	h.set("duration", 1000)
	h.set("volume", 1)
	out := h.render(4096, rsuite.NoteOn(0, 0, 38, 127))
	nonzero := 0
	for _, v := range out[:1100] {
		if v != 0 {
			nonzero++
		}
		if math.Abs(float64(v)) > 2 {
			t.Fatalf("snare sample %v is out of range", v)
		}
	}
	if nonzero < 1000 {
		t.Errorf("only %d nonzero samples during the hit", nonzero)
	}
	for i, v := range out[1100:] {
		if v != 0 {
			t.Fatalf("sample %d after the hit is %v", 1100+i, v)
		}
	}
}

func TestRSynthFadesOut(t *testing.T) {
	h := newHarness(t, programs.RSynth, rsuite.UnitConfig{})
	h.set("fade_in", 0.025)
	h.set("fade_out", 0.025)
	on := h.render(4410, rsuite.NoteOn(0, 0, 69, 127))
	peak := 0.0
	for _, v := range on[2000:] {
		peak = max(peak, math.Abs(float64(v)))
	}
	if peak < 0.5 {
		t.Fatalf("held note peaks at %v", peak)
	}
	off := h.render(4410, rsuite.NoteOff(0, 0, 69))
	// the fade out lasts 0.025 s = 1102.5 frames
	for i, v := range off[1200:] {
		if v != 0 {
			t.Fatalf("sample %d after the fade out is %v", 1200+i, v)
		}
	}
}

func TestSmoothAlphaExtremes(t *testing.T) {
	in := make([]float32, 256)
	for i := range in {
		in[i] = float32(math.Sin(float64(i) / 7))
	}
	h := newHarness(t, programs.Smooth, rsuite.UnitConfig{InputChannels: 1})
	h.set("alpha", 1)
	if out := h.run(len(in), in); !slices.Equal(out, in) {
		t.Error("alpha 1 does not pass the input through")
	}
	h = newHarness(t, programs.Smooth, rsuite.UnitConfig{InputChannels: 1})
	h.set("alpha", 0)
	for range 3 {
		for i, v := range h.run(len(in), in) {
			if v != 0 {
				t.Fatalf("alpha 0 output %d is %v, want the initial state", i, v)
			}
		}
	}
}

func TestSmoothReportsMissingInputOnce(t *testing.T) {
	h := newHarness(t, programs.Smooth, rsuite.UnitConfig{})
	for range 3 {
		h.run(64, nil)
	}
	if n := h.rep.count(rsuite.InputUnavailable); n != 1 {
		t.Fatalf("missing input reported %d times, want once", n)
	}
	h.run(64, make([]float32, 64))
	h.run(64, nil)
	if n := h.rep.count(rsuite.InputUnavailable); n != 2 {
		t.Errorf("missing input reported %d times after it came back and went away, want 2", n)
	}
}

func TestTransposerRoundTrip(t *testing.T) {
	up := newHarness(t, programs.Transposer, rsuite.UnitConfig{})
	down := newHarness(t, programs.Transposer, rsuite.UnitConfig{})
	up.set("semitones", 7)
	down.set("semitones", -7)
	events := []rsuite.MIDIEvent{
		rsuite.NoteOn(0, 2, 60, 100),
		rsuite.ControlChange(1, 2, 74, 10),
		rsuite.NoteOff(3, 2, 60),
	}
	up.run(16, nil, slices.Clone(events)...)
	mid := slices.Clone(up.midi.Events())
	if mid[0].Key() != 67 || mid[2].Key() != 67 {
		t.Fatalf("transposed keys are %d and %d, want 67", mid[0].Key(), mid[2].Key())
	}
	down.run(16, nil, mid...)
	if got := down.midi.Events(); !slices.Equal(got, events) {
		t.Fatalf("round trip gave %v, want %v", got, events)
	}
}

func TestTransposerNoteOffFollowsNoteOn(t *testing.T) {
	h := newHarness(t, programs.Transposer, rsuite.UnitConfig{})
	h.set("semitones", 12)
	h.run(16, nil, rsuite.NoteOn(0, 0, 120, 100))
	if k := h.midi.Events()[0].Key(); k != 127 {
		t.Fatalf("note on transposed to %d, want clamped 127", k)
	}
	h.set("semitones", -3)
	h.run(16, nil, rsuite.NoteOff(0, 0, 120))
	if k := h.midi.Events()[0].Key(); k != 127 {
		t.Fatalf("note off sent to %d, want the sounding 127", k)
	}
}

func TestTransposerRetriggerReleasesOldPitch(t *testing.T) {
	h := newHarness(t, programs.Transposer, rsuite.UnitConfig{})
	h.set("semitones", 2)
	h.run(16, nil, rsuite.NoteOn(0, 0, 60, 100))
	h.set("semitones", 5)
	h.run(16, nil, rsuite.NoteOn(4, 0, 60, 90))
	want := []rsuite.MIDIEvent{rsuite.NoteOff(4, 0, 62), rsuite.NoteOn(4, 0, 65, 90)}
	if got := h.midi.Events(); !slices.Equal(got, want) {
		t.Fatalf("retrigger forwarded %v, want %v", got, want)
	}
	h.run(16, nil, rsuite.NoteOff(0, 0, 60))
	if got := h.midi.Events(); !slices.Equal(got, []rsuite.MIDIEvent{rsuite.NoteOff(0, 0, 65)}) {
		t.Fatalf("note off forwarded %v, want a note off for 65", got)
	}
}

func TestTransposerSharedPitchReleasedByLastKey(t *testing.T) {
	h := newHarness(t, programs.Transposer, rsuite.UnitConfig{})
	h.set("semitones", 12)
	h.run(16, nil, rsuite.NoteOn(0, 3, 120, 100), rsuite.NoteOn(1, 3, 121, 100))
	for _, e := range h.midi.Events() {
		if e.Key() != 127 {
			t.Fatalf("note on transposed to %d, want clamped 127", e.Key())
		}
	}
	h.run(16, nil, rsuite.NoteOff(0, 3, 120))
	if h.midi.Len() != 0 {
		t.Fatalf("released 127 while key 121 still holds it: %v", h.midi.Events())
	}
	h.run(16, nil, rsuite.NoteOff(0, 3, 121))
	if got := h.midi.Events(); !slices.Equal(got, []rsuite.MIDIEvent{rsuite.NoteOff(0, 3, 127)}) {
		t.Fatalf("last note off forwarded %v, want a note off for 127", got)
	}
}

func TestTransposerButtonsStep(t *testing.T) {
	h := newHarness(t, programs.Transposer, rsuite.UnitConfig{})
	key := func(in uint8) uint8 {
		t.Helper()
		h.run(16, nil, rsuite.NoteOn(0, 0, in, 100), rsuite.NoteOff(1, 0, in))
		return h.midi.Events()[0].Key()
	}
	h.set("up", 1)
	if k := key(60); k != 61 {
		t.Fatalf("one press up transposed 60 to %d, want 61", k)
	}
	if k := key(60); k != 61 {
		t.Fatalf("a held button stepped again: 60 went to %d", k)
	}
	h.set("up", 0)
	key(60)
	h.set("up", 1)
	if k := key(60); k != 62 {
		t.Fatalf("second press up transposed 60 to %d, want 62", k)
	}
	h.set("down", 1)
	h.set("semitones", 3)
	if k := key(60); k != 64 {
		t.Fatalf("one press down with semitones 3 transposed 60 to %d, want 64", k)
	}
	h.set("semitones", 24)
	if k := key(60); k != 84 {
		t.Errorf("transposition went past 24: 60 went to %d", k)
	}
}

func TestActivator(t *testing.T) {
	h := newHarness(t, programs.Activator, rsuite.UnitConfig{})
	events := []rsuite.MIDIEvent{rsuite.NoteOn(0, 0, 60, 1), rsuite.PitchBend(5, 0, 100)}
	h.run(16, nil, events...)
	if !slices.Equal(h.midi.Events(), events) {
		t.Errorf("active activator forwarded %v", h.midi.Events())
	}
	h.set("active", 0)
	h.run(16, nil, events...)
	if h.midi.Len() != 0 {
		t.Errorf("inactive activator forwarded %v", h.midi.Events())
	}
}

func TestMetronomeAccentsFirstBeat(t *testing.T) {
	h := newHarness(t, programs.Metronome, rsuite.UnitConfig{})
	h.set("bpm", 120)
	h.set("beats", 4)
	period := sampleRate / 2
	out := h.render(2 * period)
	click := sampleRate / 10
	crossings := func(s []float32) int {
		n := 0
		for i := 1; i < len(s); i++ {
			if (s[i-1] < 0) != (s[i] < 0) {
				n++
			}
		}
		return n
	}
	first, second := crossings(out[:click]), crossings(out[period:period+click])
	if first < 3*second {
		t.Errorf("first beat has %d zero crossings, second %d: first beat is not higher", first, second)
	}
	for i, v := range out[click:period] {
		if v != 0 {
			t.Fatalf("sample %d between clicks is %v", click+i, v)
		}
	}
	h.set("active", 0)
	for _, v := range h.render(period) {
		if v != 0 {
			t.Fatal("inactive metronome is not silent")
		}
	}
}

type memorySink struct {
	mu      sync.Mutex
	samples []float32
	closed  bool
}

func (s *memorySink) WriteAudio(b []float32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.samples = append(s.samples, b...)
	return nil
}

func (s *memorySink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func TestRecorderWritesTakes(t *testing.T) {
	var mu sync.Mutex
	var sinks []*memorySink
	factory := func(take int) (rsuite.AudioSink, error) {
		mu.Lock()
		defer mu.Unlock()
		if take != len(sinks)+1 {
			t.Errorf("take %d started, want %d", take, len(sinks)+1)
		}
		s := &memorySink{}
		sinks = append(sinks, s)
		return s, nil
	}
	prog := programs.Recorder
	u, err := prog.New(rsuite.UnitConfig{SampleRate: sampleRate, MaxFrames: 64, InputChannels: 1, Sinks: factory})
	if err != nil {
		t.Fatal(err)
	}
	h := &harness{t: t, unit: u, specs: u.Parameters(), rep: &reports{}, out: rsuite.MakeAudioBuffer(1, 64), midi: rsuite.NewMIDIBuffer(4)}
	for _, s := range h.specs {
		h.params = append(h.params, s.Default)
	}
	in := make([]float32, 64)
	for i := range in {
		in[i] = float32(i) / 64
	}
	h.run(64, in) // not recording
	h.set("record", 1)
	h.run(64, in)
	h.run(64, in)
	h.set("record", 0)
	h.run(64, in)
	h.set("record", 1)
	h.run(64, in)
	if err := u.(io.Closer).Close(); err != nil {
		t.Fatal(err)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(sinks) != 2 {
		t.Fatalf("%d takes recorded, want 2", len(sinks))
	}
	want := [][]float32{append(slices.Clone(in), in...), in}
	for i, s := range sinks {
		if !s.closed {
			t.Errorf("take %d was not closed", i+1)
		}
		if !slices.Equal(s.samples, want[i]) {
			t.Errorf("take %d has %d samples, want %d", i+1, len(s.samples), len(want[i]))
		}
	}
	if h.rep.has(rsuite.SinkUnavailable) {
		t.Error("sink reported unavailable")
	}
}

func TestRecorderReportsFailingSink(t *testing.T) {
	h := newHarness(t, programs.Recorder, rsuite.UnitConfig{
		InputChannels: 1,
		Sinks:         func(int) (rsuite.AudioSink, error) { return nil, errors.New("disk full") },
	})
	h.set("record", 1)
	in := make([]float32, 512)
	deadline := time.Now().Add(5 * time.Second)
	for !h.rep.has(rsuite.SinkUnavailable) {
		if time.Now().After(deadline) {
			t.Fatal("failing sink was never reported")
		}
		h.run(512, in)
		time.Sleep(time.Millisecond)
	}
}

func TestRegistryIsCaseInsensitive(t *testing.T) {
	r := programs.Default()
	p, ok := r.Lookup("KiCk")
	if !ok || p.Name != "kick" {
		t.Fatalf("Lookup(KiCk) = %v, %v", p.Name, ok)
	}
	if _, ok := r.Lookup("nonexistent"); ok {
		t.Fatal("found a program that does not exist")
	}
	r.Register(rsuite.Program{Name: "KICK", Description: "replacement"})
	if p, _ := r.Lookup("kick"); p.Description != "replacement" {
		t.Error("registering the same name did not replace the program")
	}
	if n := len(r.Names()); n != 8 {
		t.Errorf("%d programs, want 8", n)
	}
}

func TestProgramsHaveUniqueParameterNames(t *testing.T) {
	for _, p := range programs.Default().Programs() {
		u, err := p.New(rsuite.UnitConfig{SampleRate: sampleRate, MaxFrames: 64, InputChannels: 1, OutputChannels: 1})
		if err != nil {
			t.Fatalf("%v: %v", p.Name, err)
		}
		seen := map[string]bool{}
		for _, s := range u.Parameters() {
			if seen[s.Name] {
				t.Errorf("%v has two parameters named %v", p.Name, s.Name)
			}
			seen[s.Name] = true
			if d := s.Clamp(s.Default); d != s.Default {
				t.Errorf("%v.%v default %v is outside its range", p.Name, s.Name, s.Default)
			}
		}
		if c, ok := u.(io.Closer); ok {
			c.Close()
		}
	}
}
