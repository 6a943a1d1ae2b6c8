package host_test

import (
	"context"
	"errors"
	"path/filepath"
	"slices"
	"sync"
	"testing"

	"github.com/rsuite/rsuite"
	"github.com/rsuite/rsuite/host"
	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/smf"
)

// recorder remembers the blocks it was asked to process and echoes its
// input plus a constant to the output.
type recorder struct {
	frames []int
	starts []int64
	events [][]rsuite.MIDIEvent
}

func (r *recorder) Process(b *rsuite.Block) {
	r.frames = append(r.frames, b.Frames)
	r.starts = append(r.starts, b.Frame)
	r.events = append(r.events, slices.Clone(b.Events))
	for c := range b.Out {
		for i := range b.Frames {
			v := float32(0.25)
			if in := b.Input(0); in != nil {
				v += in[i]
			}
			b.Out[c][i] = v
		}
	}
	for _, e := range b.Events {
		b.Forward(e)
	}
}

type sink struct {
	mu   sync.Mutex
	sent []rsuite.MIDIEvent
}

func (s *sink) Send(e rsuite.MIDIEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, e)
	return nil
}

func TestDriverSplitsLongCallbacks(t *testing.T) {
	r := &recorder{}
	d := host.NewDriver(r, host.DriverConfig{SampleRate: 48000, MaxFrames: 64})
	defer d.Close()
	out := rsuite.MakeAudioBuffer(2, 150)
	d.Render(nil, out)
	if want := []int{64, 64, 22}; !slices.Equal(r.frames, want) {
		t.Fatalf("blocks of %v frames, want %v", r.frames, want)
	}
	if want := []int64{0, 64, 128}; !slices.Equal(r.starts, want) {
		t.Fatalf("blocks start at %v, want %v", r.starts, want)
	}
	for c := range out {
		for i, v := range out[c] {
			if v != 0.25 {
				t.Fatalf("out[%d][%d] = %v", c, i, v)
			}
		}
	}
	if d.Frame() != 150 {
		t.Errorf("clock at %d, want 150", d.Frame())
	}
}

func TestDriverForwardsMIDI(t *testing.T) {
	r := &recorder{}
	s := &sink{}
	events := []host.ScheduledEvent{
		{Frame: 10, Event: rsuite.NoteOn(0, 0, 60, 100)},
		{Frame: 70, Event: rsuite.NoteOff(0, 0, 60)},
	}
	d := host.NewDriver(r, host.DriverConfig{SampleRate: 48000, MaxFrames: 64, Source: host.NewSchedule(events), Sink: s})
	d.Render(nil, rsuite.MakeAudioBuffer(1, 128))
	d.Close()
	if len(r.events[0]) != 1 || r.events[0][0].Frame != 10 {
		t.Errorf("first block events %v, want the note on at 10", r.events[0])
	}
	if len(r.events[1]) != 1 || r.events[1][0].Frame != 6 {
		t.Errorf("second block events %v, want the note off at 6", r.events[1])
	}
	if len(s.sent) != 2 || s.sent[0].Kind() != rsuite.NoteOnEvent || s.sent[1].Kind() != rsuite.NoteOffEvent {
		t.Errorf("sent %v, want the note on and off", s.sent)
	}
}

func TestScheduleKeepsSimultaneousOrder(t *testing.T) {
	s := host.NewSchedule([]host.ScheduledEvent{
		{Frame: 5, Event: rsuite.ControlChange(0, 0, 1, 1)},
		{Frame: 3, Event: rsuite.ControlChange(0, 0, 1, 2)},
		{Frame: 5, Event: rsuite.ControlChange(0, 0, 1, 3)},
	})
	got := s.ReadEvents(make([]rsuite.MIDIEvent, 0, 8), 8)
	var values []uint8
	for _, e := range got {
		values = append(values, e.Value())
	}
	if !slices.Equal(values, []uint8{2, 1, 3}) {
		t.Errorf("values in order %v, want [2 1 3]", values)
	}
	if !s.Done() || s.End() != 5 {
		t.Errorf("Done() = %v, End() = %v", s.Done(), s.End())
	}
}

func TestRenderToWAVAndBack(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.wav")
	w, err := rsuite.CreateWAV(path, 8000, 1)
	if err != nil {
		t.Fatal(err)
	}
	n, err := host.Render(context.Background(), &recorder{}, host.RenderConfig{SampleRate: 8000, BlockSize: 100, Channels: 1, Frames: 1000}, w)
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	if n != 1000 {
		t.Fatalf("rendered %d frames, want 1000", n)
	}
	clip, err := host.ReadClip(path, 8000)
	if err != nil {
		t.Fatal(err)
	}
	if clip.Frames() != 1000 || len(clip.Channels) != 1 {
		t.Fatalf("clip has %d channels of %d frames", len(clip.Channels), clip.Frames())
	}
	for i, v := range clip.Channels[0] {
		if v < 0.249 || v > 0.251 {
			t.Fatalf("sample %d is %v, want 0.25", i, v)
		}
	}
	// the clip as input is echoed with the constant added
	out := filepath.Join(dir, "echo.wav")
	w, err = rsuite.CreateWAV(out, 8000, 1)
	if err != nil {
		t.Fatal(err)
	}
	n, err = host.Render(context.Background(), &recorder{}, host.RenderConfig{SampleRate: 8000, BlockSize: 64, Channels: 1, Input: clip, Tail: 10}, w)
	if err != nil {
		t.Fatal(err)
	}
	w.Close()
	if n != 1010 {
		t.Fatalf("rendered %d frames, want the clip plus the tail", n)
	}
	echo, err := host.ReadClip(out, 8000)
	if err != nil {
		t.Fatal(err)
	}
	if v := echo.Channels[0][500]; v < 0.499 || v > 0.501 {
		t.Errorf("echoed sample is %v, want 0.5", v)
	}
	if v := echo.Channels[0][1005]; v < 0.249 || v > 0.251 {
		t.Errorf("tail sample is %v, want 0.25", v)
	}
}

func TestReadClipChecksSampleRate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.wav")
	w, err := rsuite.CreateWAV(path, 22050, 2)
	if err != nil {
		t.Fatal(err)
	}
	w.WriteAudio(make([]float32, 64))
	w.Close()
	if _, err := host.ReadClip(path, 44100); !errors.Is(err, host.ErrSampleRate) {
		t.Errorf("got %v, want ErrSampleRate", err)
	}
	if _, err := host.ReadClip("song.flac", 44100); !errors.Is(err, host.ErrUnsupportedFormat) {
		t.Errorf("got %v, want ErrUnsupportedFormat", err)
	}
}

func TestReadSMF(t *testing.T) {
	s := smf.New()
	s.TimeFormat = smf.MetricTicks(960)
	var track smf.Track
	track.Add(0, smf.MetaTempo(120))
	track.Add(0, midi.NoteOn(1, 60, 100))
	track.Add(960, midi.NoteOff(1, 60)) // one beat at 120 bpm = 0.5 s
	track.Close(0)
	if err := s.Add(track); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), "song.mid")
	if err := s.WriteFile(path); err != nil {
		t.Fatal(err)
	}
	events, err := host.ReadSMF(path, 44100)
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 2 {
		t.Fatalf("read %d events, want 2", len(events))
	}
	if events[0].Frame != 0 || events[0].Event.Kind() != rsuite.NoteOnEvent || events[0].Event.Channel() != 1 {
		t.Errorf("first event %v at %d", events[0].Event, events[0].Frame)
	}
	if events[1].Frame != 22050 || events[1].Event.Kind() != rsuite.NoteOffEvent {
		t.Errorf("second event %v at %d, want note off at 22050", events[1].Event, events[1].Frame)
	}
}
