package host

import (
	"errors"

	"github.com/rsuite/rsuite"
)

type (
	// MIDIContext is a MIDI driver: the devices it can open and the event
	// streams of the open ones.
	MIDIContext interface {
		MIDISource
		MIDISink
		Inputs() []string
		Outputs() []string
		// OpenInput opens the first input whose name starts with prefix; an
		// empty prefix opens the first input.
		OpenInput(prefix string) error
		OpenOutput(prefix string) error
		Close()
	}

	// NullMIDIContext has no devices.
	NullMIDIContext struct{}
)

var ErrNoMIDI = errors.New("MIDI is not available")

func (NullMIDIContext) ReadEvents(dst []rsuite.MIDIEvent, frames int) []rsuite.MIDIEvent {
	return dst
}
func (NullMIDIContext) Send(rsuite.MIDIEvent) error { return ErrNoMIDI }
func (NullMIDIContext) Inputs() []string            { return nil }
func (NullMIDIContext) Outputs() []string           { return nil }
func (NullMIDIContext) OpenInput(string) error      { return ErrNoMIDI }
func (NullMIDIContext) OpenOutput(string) error     { return ErrNoMIDI }
func (NullMIDIContext) Close()                      {}
