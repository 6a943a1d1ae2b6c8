package programs

import "github.com/rsuite/rsuite"

// transposer shifts the pitch of the notes passing through it. The pitch a
// note was started with is remembered so that its note off matches it even
// if the transposition changes while the note is held.
type transposer struct {
	params   []rsuite.ParamSpec
	sounding [16][128]int16 // transposed key per channel and key, -1 if not sounding
	held     [16][128]uint8 // number of input keys sounding each output key
	step     int            // added to semitones by the up and down buttons
	up, down bool
}

const (
	transposerSemitones = iota
	transposerUp
	transposerDown
)

const maxTranspose = 24

var Transposer = rsuite.Program{
	Name:        "transposer",
	Description: "Transposes incoming notes by a number of semitones",
	New: func(cfg rsuite.UnitConfig) (rsuite.Unit, error) {
		u := &transposer{params: []rsuite.ParamSpec{
			transposerSemitones: rsuite.IntParam("semitones", -maxTranspose, maxTranspose, 0, "st"),
			transposerUp:        rsuite.BoolParam("up", false),
			transposerDown:      rsuite.BoolParam("down", false),
		}}
		for ch := range u.sounding {
			for k := range u.sounding[ch] {
				u.sounding[ch][k] = -1
			}
		}
		return u, nil
	},
}

func (u *transposer) Parameters() []rsuite.ParamSpec { return u.params }

func (u *transposer) Process(b *rsuite.Block) {
	semitones := int(b.Params[transposerSemitones])
	// each press of a button moves the transposition by one semitone
	up, down := b.Params[transposerUp] >= 0.5, b.Params[transposerDown] >= 0.5
	if up && !u.up && semitones+u.step < maxTranspose {
		u.step++
	}
	if down && !u.down && semitones+u.step > -maxTranspose {
		u.step--
	}
	u.up, u.down = up, down
	shift := min(max(semitones+u.step, -maxTranspose), maxTranspose)
	for _, e := range b.Events {
		ch, key := e.Channel(), e.Key()
		switch e.Kind() {
		case rsuite.NoteOnEvent:
			if old := u.sounding[ch][key]; old >= 0 {
				// retriggered without a note off in between
				u.release(b, e.Frame, ch, uint8(old))
			}
			t := uint8(min(max(int(key)+shift, 0), 127))
			u.sounding[ch][key] = int16(t)
			u.held[ch][t]++
			e.Data[1] = t
		case rsuite.NoteOffEvent:
			t := u.sounding[ch][key]
			if t < 0 {
				break
			}
			u.sounding[ch][key] = -1
			u.held[ch][t]--
			if u.held[ch][t] > 0 {
				continue // another input key still sounds this pitch
			}
			e.Data[1] = uint8(t)
		}
		b.Forward(e)
	}
}

func (u *transposer) release(b *rsuite.Block, frame int, ch, t uint8) {
	u.held[ch][t]--
	if u.held[ch][t] == 0 {
		b.Forward(rsuite.NoteOff(frame, ch, t))
	}
}
