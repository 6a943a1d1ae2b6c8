package session_test

import (
	"runtime"
	"testing"

	"github.com/rsuite/rsuite"
	"github.com/rsuite/rsuite/programs"
	"github.com/rsuite/rsuite/session"
)

const (
	rtFrames     = 64
	rtController = 74
)

// rtBlock is a block allocated once and reused, like the host drivers do.
type rtBlock struct {
	b      *rsuite.Block
	events []rsuite.MIDIEvent
}

func newRTBlock() *rtBlock {
	in := rsuite.MakeAudioBuffer(1, rtFrames)
	for i := range in[0] {
		in[0][i] = float32(i%16) / 16
	}
	return &rtBlock{
		b: &rsuite.Block{
			Frames:     rtFrames,
			SampleRate: 44100,
			In:         in,
			Out:        rsuite.MakeAudioBuffer(2, rtFrames),
			Events:     make([]rsuite.MIDIEvent, 0, 16),
			MIDIOut:    rsuite.NewMIDIBuffer(64),
		},
		events: []rsuite.MIDIEvent{
			rsuite.NoteOn(0, 0, 60, 100),
			rsuite.ControlChange(3, 0, rtController, 90),
			rsuite.PitchBend(5, 0, 12000),
			rsuite.NoteOff(40, 0, 60),
			rsuite.ControlChange(50, 0, rtController, 10),
		},
	}
}

func (r *rtBlock) process(p *session.Player) {
	r.b.Events = append(r.b.Events[:0], r.events...)
	p.Process(r.b)
}

func newRTSession(t *testing.T) (*session.Model, *session.Player) {
	t.Helper()
	m, p := session.NewModelPlayer(programs.Default(), session.Config{
		Unit:          rsuite.UnitConfig{SampleRate: 44100, MaxFrames: rtFrames, InputChannels: 1, OutputChannels: 2},
		ErrorCapacity: 16,
	})
	t.Cleanup(m.Close)
	return m, p
}

// switchAndBind requests the program and binds its last parameter to the
// controller the test blocks send.
func switchAndBind(t *testing.T, m *session.Model, name string) {
	t.Helper()
	if err := m.SwitchProgram(name); err != nil {
		t.Fatal(err)
	}
	params := m.Parameters()
	if err := m.Bind(len(params)-1, rsuite.Control{Controller: rtController}); err != nil {
		t.Fatal(err)
	}
}

func TestProcessDoesNotAllocate(t *testing.T) {
	for _, prog := range programs.Default().Programs() {
		t.Run(prog.Name, func(t *testing.T) {
			m, p := newRTSession(t)
			switchAndBind(t, m, prog.Name)
			r := newRTBlock()
			r.process(p) // activates the unit
			allocs := testing.AllocsPerRun(100, func() { r.process(p) })
			if allocs != 0 {
				t.Errorf("Process of %v allocated %v times per block, want 0", prog.Name, allocs)
			}
		})
	}
}

func TestProcessDoesNotAllocateAcrossSwaps(t *testing.T) {
	m, p := newRTSession(t)
	r := newRTBlock()
	defer runtime.GOMAXPROCS(runtime.GOMAXPROCS(1))
	var before, after runtime.MemStats
	for _, prog := range programs.Default().Programs() {
		switchAndBind(t, m, prog.Name)
		m.Poll()
		runtime.ReadMemStats(&before)
		r.process(p) // swaps the requested unit in and retires the previous one
		runtime.ReadMemStats(&after)
		if n := after.Mallocs - before.Mallocs; n != 0 {
			t.Errorf("the block swapping in %v allocated %d times, want 0", prog.Name, n)
		}
		if m.Program() != prog.Name {
			t.Fatalf("program is %q, want %q", m.Program(), prog.Name)
		}
	}
}
