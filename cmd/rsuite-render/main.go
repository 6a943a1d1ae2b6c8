package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/rsuite/rsuite"
	"github.com/rsuite/rsuite/config"
	"github.com/rsuite/rsuite/host"
	"github.com/rsuite/rsuite/programs"
	"github.com/rsuite/rsuite/session"
	"github.com/rsuite/rsuite/version"
)

func main() {
	configFile := flag.String("config", "", "read settings from `file`")
	program := flag.String("program", "", "render with `program` (default: the configured program)")
	stateFile := flag.String("state", "", "restore the session state saved in `file` instead of starting a program")
	midiFile := flag.String("midi", "", "play the standard MIDI `file`")
	inputFile := flag.String("input", "", "feed the audio `file` (wav, mp3 or ogg) to the program")
	output := flag.String("o", "", "write the output to `file` (default: the name of the MIDI or input file with .wav)")
	seconds := flag.Float64("length", 0, "render this many seconds; by default until the inputs end")
	tail := flag.Float64("tail", 1, "seconds rendered after the inputs end")
	verbose := flag.Bool("v", false, "log debug messages")
	versionFlag := flag.Bool("version", false, "print version")
	flag.Parse()
	if *versionFlag {
		fmt.Println(version.VersionOrHash)
		os.Exit(0)
	}
	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	conf, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if *program != "" {
		conf.Program = *program
	}
	out := *output
	if out == "" {
		src := *midiFile
		if src == "" {
			src = *inputFile
		}
		if src == "" {
			fmt.Fprintln(os.Stderr, "nothing to render: give -midi, -input or -o with -length")
			flag.Usage()
			os.Exit(2)
		}
		out = strings.TrimSuffix(filepath.Base(src), filepath.Ext(src)) + ".wav"
	}
	cfg := host.RenderConfig{
		SampleRate: conf.SampleRate,
		BlockSize:  conf.BlockSize,
		Channels:   conf.OutputChannels,
		Frames:     int64(*seconds * float64(conf.SampleRate)),
		Tail:       int64(*tail * float64(conf.SampleRate)),
	}
	if *midiFile != "" {
		if cfg.Events, err = host.ReadSMF(*midiFile, conf.SampleRate); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
	}
	if *inputFile != "" {
		if cfg.Input, err = host.ReadClip(*inputFile, conf.SampleRate); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		conf.InputChannels = len(cfg.Input.Channels)
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := render(ctx, conf, *stateFile, cfg, out, logger); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func render(ctx context.Context, conf config.Config, stateFile string, cfg host.RenderConfig, out string, logger *slog.Logger) error {
	model, player := session.NewModelPlayer(programs.Default(), conf.Session(logger))
	defer model.Close()
	if stateFile != "" {
		data, err := os.ReadFile(stateFile)
		if err != nil {
			return fmt.Errorf("could not read state: %w", err)
		}
		if err := model.UnmarshalState(data); err != nil {
			return err
		}
	} else if err := model.SwitchProgram(conf.Program); err != nil {
		return err
	}
	sink, err := rsuite.CreateWAV(out, conf.SampleRate, conf.OutputChannels)
	if err != nil {
		return err
	}
	frames, err := host.Render(ctx, player, cfg, sink)
	if cerr := sink.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return err
	}
	for _, r := range model.DrainErrors() {
		logger.Warn("reported while rendering", "record", r.String())
	}
	logger.Info("rendered", "file", out, "program", model.Program(), "seconds", float64(frames)/float64(conf.SampleRate))
	return nil
}
