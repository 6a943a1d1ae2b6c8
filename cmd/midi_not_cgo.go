//go:build !cgo

package cmd

import (
	"github.com/rsuite/rsuite/host"
)

func NewMIDIContext(sampleRate int) host.MIDIContext {
	// with no cgo, we cannot use MIDI, so return a null context
	return host.NullMIDIContext{}
}
