// Command play_midi connects the synth to a hardware or virtual MIDI input
// and plays incoming notes live.
package main

import (
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	midi "gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"
	_ "gitlab.com/gomidi/midi/v2/drivers/rtmididrv"

	"github.com/cbegin/mpesynth-go"
	"github.com/cbegin/mpesynth-go/internal/effects"
)

func main() {
	var (
		sampleRate = flag.Int("sample-rate", 48000, "output sample rate")
		portName   = flag.String("port", "", "MIDI input port (substring match; first port if empty)")
		listPorts  = flag.Bool("list", false, "list MIDI input ports and exit")
		voiceCount = flag.Int("voices", 16, "polyphony")
		noSteal    = flag.Bool("no-steal", false, "drop overflow notes instead of stealing voices")
		volume     = flag.Float64("volume", 1.0, "master volume scalar")
		withFX     = flag.Bool("fx", false, "enable master delay/reverb")
		verbose    = flag.Bool("verbose", false, "log every note and controller event")
	)
	flag.Parse()
	defer midi.CloseDriver()

	if *listPorts {
		for i, p := range midi.GetInPorts() {
			fmt.Printf("%d: %s\n", i, p.String())
		}
		return
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	opts := []mpesynth.Option{
		mpesynth.WithVoiceCount(*voiceCount),
		mpesynth.WithVoiceStealing(!*noSteal),
	}
	if *withFX {
		opts = append(opts, mpesynth.WithEffects(
			effects.NewDelay(*sampleRate, 280, 0.35, 0.2, 0.18),
			effects.NewReverb(*sampleRate, 0.6, 0.72, 0.22),
			effects.NewLimiter(*sampleRate, 0.95, 120),
		))
	}
	if *verbose {
		opts = append(opts, mpesynth.WithControllerHook(func(ch, cc, val uint8) {
			logger.Info("control change", "channel", ch, "controller", cc, "value", val)
		}))
	}

	synth, err := mpesynth.NewSynth(*sampleRate, opts...)
	if err != nil {
		log.Fatal(err)
	}
	synth.SetMasterVolume(*volume)

	in, err := pickInPort(*portName)
	if err != nil {
		log.Fatal(err)
	}
	logger.Info("listening", "port", in.String(), "voices", *voiceCount, "sampleRate", *sampleRate)

	stop, err := midi.ListenTo(in, func(msg midi.Message, timestampms int32) {
		if *verbose {
			var ch, key, vel uint8
			if msg.GetNoteStart(&ch, &key, &vel) {
				logger.Info("note on", "channel", ch, "key", key, "velocity", vel)
			} else if msg.GetNoteEnd(&ch, &key) {
				logger.Info("note off", "channel", ch, "key", key)
			}
		}
		synth.HandleMessage(msg)
	})
	if err != nil {
		log.Fatal(err)
	}
	defer stop()

	if err := synth.Start(); err != nil {
		log.Fatal(err)
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig

	logger.Info("shutting down")
	synth.AllNotesOff()
	if err := synth.Stop(); err != nil {
		logger.Error("stop", "err", err)
	}
}

func pickInPort(name string) (drivers.In, error) {
	ins := midi.GetInPorts()
	if len(ins) == 0 {
		return nil, fmt.Errorf("no MIDI input ports available")
	}
	if name == "" {
		return ins[0], nil
	}
	want := strings.ToLower(name)
	for _, p := range ins {
		if strings.Contains(strings.ToLower(p.String()), want) {
			return p, nil
		}
	}
	return nil, fmt.Errorf("no MIDI input port matching %q", name)
}
