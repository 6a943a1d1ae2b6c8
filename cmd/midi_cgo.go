//go:build cgo

package cmd

import (
	"github.com/rsuite/rsuite/gomidi"
	"github.com/rsuite/rsuite/host"
)

func NewMIDIContext(sampleRate int) host.MIDIContext {
	return gomidi.NewContext(sampleRate)
}
