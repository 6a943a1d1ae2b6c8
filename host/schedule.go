package host

import (
	"cmp"
	"fmt"
	"slices"

	"github.com/rsuite/rsuite"
	"gitlab.com/gomidi/midi/v2/smf"
)

type (
	// ScheduledEvent is a MIDI event at an absolute frame of the sample
	// clock.
	ScheduledEvent struct {
		Frame int64
		Event rsuite.MIDIEvent
	}

	// Schedule is a MIDISource playing back a fixed list of events.
	Schedule struct {
		events []ScheduledEvent
		pos    int
		frame  int64
	}
)

// NewSchedule sorts the events by frame, keeping the order of simultaneous
// events.
func NewSchedule(events []ScheduledEvent) *Schedule {
	events = slices.Clone(events)
	slices.SortStableFunc(events, func(a, b ScheduledEvent) int { return cmp.Compare(a.Frame, b.Frame) })
	return &Schedule{events: events}
}

func (s *Schedule) ReadEvents(dst []rsuite.MIDIEvent, frames int) []rsuite.MIDIEvent {
	end := s.frame + int64(frames)
	for s.pos < len(s.events) && s.events[s.pos].Frame < end {
		if len(dst) < cap(dst) {
			e := s.events[s.pos].Event
			e.Frame = int(max(s.events[s.pos].Frame-s.frame, 0))
			dst = append(dst, e)
		}
		s.pos++
	}
	s.frame = end
	return dst
}

// End returns the frame of the last event, or 0 if there are none.
func (s *Schedule) End() int64 {
	if len(s.events) == 0 {
		return 0
	}
	return s.events[len(s.events)-1].Frame
}

// Done tells if all the events have been played.
func (s *Schedule) Done() bool { return s.pos >= len(s.events) }

// ReadSMF reads the channel messages of all the tracks of a standard MIDI
// file, timed in frames of the given sample rate. Meta and system exclusive
// messages are skipped.
func ReadSMF(path string, sampleRate int) ([]ScheduledEvent, error) {
	var ret []ScheduledEvent
	err := smf.ReadTracks(path).Do(func(te smf.TrackEvent) {
		if te.Message.IsMeta() {
			return
		}
		e, ok := rsuite.EventFromBytes(0, []byte(te.Message))
		if !ok {
			return
		}
		frame := te.AbsMicroSeconds * int64(sampleRate) / 1e6
		ret = append(ret, ScheduledEvent{Frame: frame, Event: e})
	}).Error()
	if err != nil {
		return nil, fmt.Errorf("could not read MIDI file %v: %w", path, err)
	}
	return ret, nil
}
