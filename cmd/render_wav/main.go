// Command render_wav renders a short built-in demo phrase offline and writes
// it to a WAV file. Useful for checking the synth without audio hardware.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	midi "gitlab.com/gomidi/midi/v2"

	"github.com/cbegin/mpesynth-go"
	"github.com/cbegin/mpesynth-go/internal/effects"
)

func main() {
	var (
		outPath    = flag.String("o", "demo.wav", "output WAV path")
		sampleRate = flag.Int("sample-rate", 48000, "output sample rate")
		voiceCount = flag.Int("voices", 4, "polyphony (the demo overflows this to exercise voice stealing)")
		withFX     = flag.Bool("fx", true, "enable master delay/reverb")
		volume     = flag.Float64("volume", 1.0, "master volume scalar")
	)
	flag.Parse()

	opts := []mpesynth.Option{mpesynth.WithVoiceCount(*voiceCount)}
	if *withFX {
		opts = append(opts, mpesynth.WithEffects(
			effects.NewDelay(*sampleRate, 300, 0.3, 0.25, 0.15),
			effects.NewReverb(*sampleRate, 0.55, 0.7, 0.2),
			effects.NewLimiter(*sampleRate, 0.95, 120),
		))
	}
	synth, err := mpesynth.NewSynth(*sampleRate, opts...)
	if err != nil {
		log.Fatal(err)
	}
	synth.SetMasterVolume(*volume)

	script, seconds := demoScript(*sampleRate)
	samples := synth.RenderSamples(script, seconds)
	wav := mpesynth.EncodeWAVFloat32LE(samples, *sampleRate, 2)
	if err := os.WriteFile(*outPath, wav, 0o644); err != nil {
		log.Fatal(err)
	}
	fmt.Printf("wrote %s (%.1fs, %d Hz)\n", *outPath, seconds, *sampleRate)
}

// demoScript builds an arpeggio over a held chord with pressure swells,
// a pitchbend scoop, and a timbre sweep.
func demoScript(sampleRate int) ([]mpesynth.TimedMessage, float64) {
	at := func(sec float64) int { return int(sec * float64(sampleRate)) }
	var script []mpesynth.TimedMessage
	add := func(sec float64, msg midi.Message) {
		script = append(script, mpesynth.TimedMessage{Frame: at(sec), Message: msg})
	}

	// Held pad chord on channel 0.
	for _, key := range []uint8{48, 55, 64} {
		add(0, midi.NoteOn(0, key, 70))
		add(5.2, midi.NoteOff(0, key))
	}

	// Arpeggio on channel 1, each note with its own expression.
	// Overlapping note-offs push the pool past four voices, so the longer
	// ring-outs get stolen from under the held pad.
	arp := []uint8{72, 76, 79, 83, 84, 79, 76, 72}
	for i, key := range arp {
		on := 0.5 + float64(i)*0.45
		add(on, midi.NoteOn(1, key, 95))
		add(on+0.1, midi.AfterTouch(1, 110))
		add(on+0.25, midi.AfterTouch(1, 40))
		add(on+0.9, midi.NoteOff(1, key))
	}

	// Pitchbend scoop into the last arpeggio note.
	last := 0.5 + float64(len(arp)-1)*0.45
	add(last-0.05, midi.Pitchbend(1, -2048))
	add(last+0.05, midi.Pitchbend(1, -1024))
	add(last+0.15, midi.Pitchbend(1, 0))

	// Timbre sweep across the pad.
	for i := 0; i <= 16; i++ {
		sec := 1.0 + float64(i)*0.25
		val := uint8(20 + i*6)
		add(sec, midi.ControlChange(0, 74, val))
	}

	return script, 7.0
}
