//go:build plugin

package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/rsuite/rsuite"
	"github.com/rsuite/rsuite/config"
	"github.com/rsuite/rsuite/host"
	"github.com/rsuite/rsuite/programs"
	"github.com/rsuite/rsuite/session"
	"pipelined.dev/audio/vst2"
)

const (
	PLUGIN_ID   = 0x72737569 // "rsui"
	PLUGIN_NAME = "rsuite"
	channels    = 2
)

// vstEvents hands the events the host delivered for a callback to the driver,
// block by block.
type vstEvents struct {
	events []vst2.MIDIEvent
	index  int
	offset int
}

func (c *vstEvents) ReadEvents(dst []rsuite.MIDIEvent, frames int) []rsuite.MIDIEvent {
	end := c.offset + frames
	for c.index < len(c.events) && int(c.events[c.index].DeltaFrames) < end {
		ev := &c.events[c.index]
		c.index++
		if len(dst) == cap(dst) {
			continue
		}
		if e, ok := rsuite.EventFromBytes(max(int(ev.DeltaFrames)-c.offset, 0), ev.Data[:]); ok {
			dst = append(dst, e)
		}
	}
	c.offset = end
	return dst
}

func (c *vstEvents) reset() {
	c.events = c.events[:0] // reset buffer, but keep the allocated memory
	c.index = 0
	c.offset = 0
}

func init() {
	var (
		version = int32(100)
	)
	vst2.PluginAllocator = func(h vst2.Host) (vst2.Plugin, vst2.Dispatcher) {
		logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
		conf, err := config.Load("")
		if err != nil {
			logger.Error("using the default configuration", "error", err)
			conf = config.Default()
		}
		if timeInfo := h.GetTimeInfo(0); timeInfo != nil && timeInfo.SampleRate > 0 {
			conf.SampleRate = int(timeInfo.SampleRate)
		}
		conf.InputChannels = channels
		conf.OutputChannels = channels
		model, player := session.NewModelPlayer(programs.Default(), conf.Session(logger))
		if err := model.SwitchProgram(conf.Program); err != nil {
			logger.Error("could not start program", "program", conf.Program, "error", err)
		}
		ctx, cancel := context.WithCancel(context.Background())
		go model.Run(ctx)
		events := &vstEvents{events: make([]vst2.MIDIEvent, 0, 256)}
		driver := host.NewDriver(player, host.DriverConfig{
			SampleRate: conf.SampleRate,
			MaxFrames:  conf.BlockSize,
			Source:     events,
			Logger:     logger,
		})
		in := make([][]float32, channels)
		out := make([][]float32, channels)
		return vst2.Plugin{
				UniqueID:       PLUGIN_ID,
				Version:        version,
				InputChannels:  channels,
				OutputChannels: channels,
				Name:           PLUGIN_NAME,
				Vendor:         "rsuite",
				Category:       vst2.PluginCategorySynth,
				Flags:          vst2.PluginIsSynth,
				ProcessFloatFunc: func(inBuf, outBuf vst2.FloatBuffer) {
					for c := range channels {
						in[c] = inBuf.Channel(c)[:inBuf.Frames]
						out[c] = outBuf.Channel(c)[:outBuf.Frames]
					}
					driver.Render(in, out)
					events.reset()
				},
			}, vst2.Dispatcher{
				CanDoFunc: func(pcds vst2.PluginCanDoString) vst2.CanDoResponse {
					switch pcds {
					case vst2.PluginCanReceiveEvents, vst2.PluginCanReceiveMIDIEvent:
						return vst2.YesCanDo
					}
					return vst2.NoCanDo
				},
				ProcessEventsFunc: func(ev *vst2.EventsPtr) {
					for i := 0; i < ev.NumEvents(); i++ {
						a := ev.Event(i)
						switch v := a.(type) {
						case *vst2.MIDIEvent:
							if len(events.events) < cap(events.events) {
								events.events = append(events.events, *v)
							}
						}
					}
				},
				CloseFunc: func() {
					cancel()
					driver.Close()
					model.Close()
				},
				GetChunkFunc: func(isPreset bool) []byte {
					data, err := model.MarshalState()
					if err != nil {
						logger.Error("could not save state", "error", err)
					}
					return data
				},
				SetChunkFunc: func(data []byte, isPreset bool) {
					if err := model.UnmarshalState(data); err != nil {
						logger.Error("could not restore state", "error", err)
					}
				},
			}
	}
}

func main() {}
