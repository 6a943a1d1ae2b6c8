package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rsuite/rsuite"
	"github.com/rsuite/rsuite/cmd"
	"github.com/rsuite/rsuite/config"
	"github.com/rsuite/rsuite/control"
	"github.com/rsuite/rsuite/host"
	"github.com/rsuite/rsuite/oto"
	"github.com/rsuite/rsuite/portaudio"
	"github.com/rsuite/rsuite/programs"
	"github.com/rsuite/rsuite/session"
	"github.com/rsuite/rsuite/version"
)

var (
	configFile  = flag.String("config", "", "read settings from `file` (default: rsuite/config.yml in the user config directory)")
	program     = flag.String("program", "", "start with `program`")
	driver      = flag.String("driver", "", "audio driver: oto or portaudio")
	sampleRate  = flag.Int("rate", 0, "sample rate in Hz")
	blockSize   = flag.Int("block", 0, "block size in frames")
	midiInput   = flag.String("midi-input", "", "connect MIDI input to matching device name prefix")
	midiOutput  = flag.String("midi-output", "", "send MIDI output to matching device name prefix")
	stateFile   = flag.String("state", "", "restore the session state saved in `file`")
	mcpFlag     = flag.Bool("mcp", false, "serve the commands as MCP tools on stdin/stdout instead of the prompt")
	monitor     = flag.Bool("monitor", false, "print the incoming MIDI events")
	verbose     = flag.Bool("v", false, "log debug messages")
	versionFlag = flag.Bool("version", false, "print version")
	listDevices = flag.Bool("devices", false, "list the MIDI devices and exit")
)

func main() {
	flag.Parse()
	if *versionFlag {
		fmt.Println(version.VersionOrHash)
		os.Exit(0)
	}
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	// stdout belongs to the MCP protocol or the prompt
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	conf, err := config.Load(*configFile)
	if err != nil {
		return err
	}
	applyFlags(&conf)
	if err := conf.Validate(); err != nil {
		return err
	}

	midiContext := cmd.NewMIDIContext(conf.SampleRate)
	defer midiContext.Close()
	if *listDevices {
		for _, name := range midiContext.Inputs() {
			fmt.Println("input: ", name)
		}
		for _, name := range midiContext.Outputs() {
			fmt.Println("output:", name)
		}
		return nil
	}
	var sink host.MIDISink
	if conf.MIDIInput != "" || isFlagPassed("midi-input") {
		if err := midiContext.OpenInput(conf.MIDIInput); err != nil {
			logger.Warn("could not open MIDI input", "prefix", conf.MIDIInput, "error", err)
		}
	}
	if conf.MIDIOutput != "" || isFlagPassed("midi-output") {
		if err := midiContext.OpenOutput(conf.MIDIOutput); err != nil {
			logger.Warn("could not open MIDI output", "prefix", conf.MIDIOutput, "error", err)
		} else {
			sink = midiContext
		}
	}

	model, player := session.NewModelPlayer(programs.Default(), conf.Session(logger))
	defer model.Close()
	if *stateFile != "" {
		data, err := os.ReadFile(*stateFile)
		if err != nil {
			return fmt.Errorf("could not read state: %w", err)
		}
		if err := model.UnmarshalState(data); err != nil {
			return err
		}
	} else if err := model.SwitchProgram(conf.Program); err != nil {
		return err
	}
	if *monitor {
		model.SetMonitor(true)
	}

	audioContext, err := newAudioContext(conf)
	if err != nil {
		return err
	}
	defer audioContext.Close()
	drv := host.NewDriver(player, host.DriverConfig{
		SampleRate: conf.SampleRate,
		MaxFrames:  conf.BlockSize,
		Source:     midiContext,
		Sink:       sink,
		Logger:     logger,
	})
	defer drv.Close()
	audioCloser, err := audioContext.Play(drv.Render)
	if err != nil {
		return err
	}
	defer audioCloser.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go model.Run(ctx)
	if *monitor {
		go printMonitored(ctx, model)
	}

	tmpl, err := conf.Template()
	if err != nil {
		return err
	}
	commander := control.NewCommander(model, tmpl)
	if *mcpFlag {
		logger.Info("serving MCP on stdio", "version", version.VersionOrHash)
		return control.ServeMCP(commander)
	}
	if err := commander.Status(os.Stdout); err != nil {
		return err
	}
	if err := commander.Run(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func applyFlags(conf *config.Config) {
	if *program != "" {
		conf.Program = *program
	}
	if *driver != "" {
		conf.Driver = *driver
	}
	if *sampleRate != 0 {
		conf.SampleRate = *sampleRate
	}
	if *blockSize != 0 {
		conf.BlockSize = *blockSize
	}
	if isFlagPassed("midi-input") {
		conf.MIDIInput = *midiInput
	}
	if isFlagPassed("midi-output") {
		conf.MIDIOutput = *midiOutput
	}
}

func newAudioContext(conf config.Config) (rsuite.AudioContext, error) {
	if conf.Driver == config.DriverPortAudio {
		c, err := portaudio.NewContext(conf.SampleRate, conf.BlockSize, conf.InputChannels, conf.OutputChannels)
		if err != nil {
			return nil, err
		}
		return c, nil
	}
	c, err := oto.NewContext(conf.SampleRate, conf.OutputChannels, conf.BlockSize)
	if err != nil {
		return nil, fmt.Errorf("could not acquire oto AudioContext: %w", err)
	}
	return c, nil
}

func printMonitored(ctx context.Context, model *session.Model) {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, e := range model.MonitoredEvents() {
				fmt.Fprintln(os.Stderr, "midi:", e)
			}
		}
	}
}

func isFlagPassed(name string) bool {
	found := false
	flag.Visit(func(f *flag.Flag) {
		if f.Name == name {
			found = true
		}
	})
	return found
}
