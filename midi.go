package rsuite

import (
	"cmp"
	"fmt"
	"slices"

	"gitlab.com/gomidi/midi/v2"
)

type (
	// MIDIEvent is a short (at most three byte) MIDI message timestamped with
	// a frame offset relative to the start of the block it arrived in. It is a
	// plain value so that blocks of events can be passed around without
	// allocating.
	MIDIEvent struct {
		Frame int
		Data  [3]byte
		Size  uint8
	}

	// MIDIKind classifies a MIDIEvent by its status byte.
	MIDIKind int

	// MIDIBuffer is a fixed capacity list of MIDI events. Appending never
	// grows the underlying array.
	MIDIBuffer struct {
		events []MIDIEvent
	}
)

const (
	OtherEvent MIDIKind = iota
	NoteOnEvent
	NoteOffEvent
	ControlChangeEvent
	PitchBendEvent
)

// NoteOn returns a note on event. A velocity of zero is treated as a note off
// by the receiver, as usual in MIDI.
func NoteOn(frame int, channel, key, velocity uint8) MIDIEvent {
	return fromMessage(frame, midi.NoteOn(channel, key, velocity))
}

func NoteOff(frame int, channel, key uint8) MIDIEvent {
	return fromMessage(frame, midi.NoteOff(channel, key))
}

func ControlChange(frame int, channel, controller, value uint8) MIDIEvent {
	return fromMessage(frame, midi.ControlChange(channel, controller, value))
}

// PitchBend returns a pitch bend event; value is the 14-bit bend amount, 8192
// being the center.
func PitchBend(frame int, channel uint8, value uint16) MIDIEvent {
	return fromMessage(frame, midi.Pitchbend(channel, int16(min(value, 16383))-8192))
}

func fromMessage(frame int, m midi.Message) MIDIEvent {
	e, _ := EventFromBytes(frame, m)
	return e
}

// EventFromBytes copies a raw MIDI message into an event. Messages longer than
// three bytes (i.e. sysex) are not representable and return false.
func EventFromBytes(frame int, data []byte) (MIDIEvent, bool) {
	if len(data) == 0 || len(data) > 3 {
		return MIDIEvent{}, false
	}
	e := MIDIEvent{Frame: frame, Size: uint8(len(data))}
	copy(e.Data[:], data)
	return e, true
}

// Channel returns the channel of channel messages and 0 for the rest.
func (e MIDIEvent) Channel() uint8 {
	var ch uint8
	e.Message().GetChannel(&ch)
	return ch
}

func (e MIDIEvent) Kind() MIDIKind {
	m := e.Message()
	switch {
	case m.GetNoteStart(nil, nil, nil):
		return NoteOnEvent
	case m.GetNoteEnd(nil, nil):
		return NoteOffEvent
	case m.GetControlChange(nil, nil, nil):
		return ControlChangeEvent
	case m.GetPitchBend(nil, nil, nil):
		return PitchBendEvent
	}
	return OtherEvent
}

// Key returns the note number of note events and the controller number of
// control change events.
func (e MIDIEvent) Key() uint8 {
	var key uint8
	m := e.Message()
	if m.GetNoteOn(nil, &key, nil) || m.GetNoteOff(nil, &key, nil) || m.GetControlChange(nil, &key, nil) {
		return key
	}
	return 0
}

// Value returns the velocity of note events and the value of control change
// events.
func (e MIDIEvent) Value() uint8 {
	var v uint8
	m := e.Message()
	if m.GetNoteOn(nil, nil, &v) || m.GetNoteOff(nil, nil, &v) || m.GetControlChange(nil, nil, &v) {
		return v
	}
	return 0
}

// Bend returns the 14-bit pitch bend amount of a pitch bend event.
func (e MIDIEvent) Bend() uint16 {
	var abs uint16
	e.Message().GetPitchBend(nil, nil, &abs)
	return abs
}

// Valid checks that the event is a complete message that can be played, and
// that its frame falls inside a block of the given length. gomidi leaves the
// length and the data bytes unchecked, so they are checked here.
func (e MIDIEvent) Valid(frames int) bool {
	if e.Frame < 0 || e.Frame >= frames || e.Size == 0 || e.Size > 3 {
		return false
	}
	m := e.Message()
	if !m.IsPlayable() || int(e.Size) != messageSize(m.Type()) {
		return false
	}
	for _, b := range e.Data[1:e.Size] {
		if b&0x80 != 0 {
			return false
		}
	}
	return true
}

// Message returns the event as a gomidi message.
func (e MIDIEvent) Message() midi.Message {
	return midi.Message(e.Data[:e.Size])
}

func (e MIDIEvent) String() string {
	return fmt.Sprintf("@%d %s", e.Frame, e.Message().String())
}

// messageSize returns the length in bytes of a message of type t.
func messageSize(t midi.Type) int {
	switch {
	case t.Is(midi.ProgramChangeMsg), t.Is(midi.AfterTouchMsg), t.Is(midi.MTCMsg), t.Is(midi.SongSelectMsg):
		return 2
	case t.Is(midi.ChannelMsg), t.Is(midi.SPPMsg):
		return 3
	}
	return 1
}

// SortEvents sorts the events by frame, keeping the arrival order of events
// on the same frame. It sorts in place and does not allocate.
func SortEvents(events []MIDIEvent) {
	slices.SortStableFunc(events, func(a, b MIDIEvent) int { return cmp.Compare(a.Frame, b.Frame) })
}

func NewMIDIBuffer(capacity int) *MIDIBuffer {
	return &MIDIBuffer{events: make([]MIDIEvent, 0, capacity)}
}

// Append adds the event to the buffer, returning false if the buffer is full.
func (b *MIDIBuffer) Append(e MIDIEvent) bool {
	if len(b.events) == cap(b.events) {
		return false
	}
	b.events = append(b.events, e)
	return true
}

func (b *MIDIBuffer) Events() []MIDIEvent { return b.events }
func (b *MIDIBuffer) Len() int            { return len(b.events) }
func (b *MIDIBuffer) Reset()              { b.events = b.events[:0] }
