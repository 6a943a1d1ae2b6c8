package session

import (
	"math"

	"github.com/viterin/vek/vek32"
)

type (
	// Detector measures the output level of the player in its own goroutine.
	// It analyzes windows of 100 ms and sends the results to the model.
	Detector struct {
		broker  *Broker
		window  int
		chunk   []float32
		squares []float32
		holdPk  float32
	}

	Decibel float32

	// Levels are the output levels of the last analyzed window.
	Levels struct {
		Peak     Decibel
		RMS      Decibel
		MaxPeak  Decibel // since the last reset
		Clipping bool
	}
)

const silence Decibel = -120

func NewDetector(b *Broker, sampleRate int) *Detector {
	w := max(sampleRate/10, 1)
	return &Detector{
		broker:  b,
		window:  w,
		chunk:   make([]float32, 0, w),
		squares: make([]float32, w),
	}
}

func (d *Detector) Run() {
	for {
		select {
		case <-d.broker.CloseDetector:
			close(d.broker.FinishedDetector)
			return
		case msg := <-d.broker.ToDetector:
			if msg.Reset {
				d.chunk = d.chunk[:0]
				d.holdPk = 0
			}
			if msg.Data != nil {
				d.consume(*msg.Data)
				d.broker.PutAudioBuffer(msg.Data)
			}
		}
	}
}

func (d *Detector) consume(buf []float32) {
	for len(buf) > 0 {
		l := min(len(buf), d.window-len(d.chunk))
		d.chunk = append(d.chunk, buf[:l]...)
		buf = buf[l:]
		if len(d.chunk) < d.window {
			return
		}
		TrySend(d.broker.ToModel, MsgToModel{HasLevels: true, Levels: d.update(d.chunk)})
		d.chunk = d.chunk[:0]
	}
}

func (d *Detector) update(chunk []float32) Levels {
	power := vek32.Mean(vek32.Mul_Into(d.squares[:len(chunk)], chunk, chunk))
	vek32.Abs_Inplace(chunk)
	peak := vek32.Max(chunk)
	if peak > d.holdPk {
		d.holdPk = peak
	}
	return Levels{
		Peak:     amplitude2decibel(peak),
		RMS:      amplitude2decibel(float32(math.Sqrt(float64(power)))),
		MaxPeak:  amplitude2decibel(d.holdPk),
		Clipping: peak > 1,
	}
}

func amplitude2decibel(a float32) Decibel {
	if a <= 0 {
		return silence
	}
	return max(Decibel(20*math.Log10(float64(a))), silence)
}
