package mpesynth

import (
	"encoding/binary"
	"math"
	"sort"

	gomidi "gitlab.com/gomidi/midi/v2"
)

// TimedMessage schedules a MIDI message at an absolute frame offset from the
// start of an offline render.
type TimedMessage struct {
	Frame   int
	Message gomidi.Message
}

// RenderSamples renders a scheduled message sequence offline and returns
// interleaved stereo float32 frames. Messages are applied in frame order;
// the synth's audio backend is not involved.
func (s *Synth) RenderSamples(script []TimedMessage, seconds float64) []float32 {
	sorted := make([]TimedMessage, len(script))
	copy(sorted, script)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Frame < sorted[j].Frame })

	frames := int(float64(s.sampleRate) * seconds)
	out := make([]float32, frames*2)
	pos := 0
	next := 0
	for pos < frames {
		for next < len(sorted) && sorted[next].Frame <= pos {
			s.HandleMessage(sorted[next].Message)
			next++
		}
		n := frames - pos
		if next < len(sorted) && sorted[next].Frame-pos < n {
			n = sorted[next].Frame - pos
		}
		if n > renderBlockFrames {
			n = renderBlockFrames
		}
		s.Process(out[pos*2 : (pos+n)*2])
		pos += n
	}
	return out
}

// EncodeWAVFloat32LE wraps interleaved float32 samples in a WAV container
// (format 3, IEEE float).
func EncodeWAVFloat32LE(samples []float32, sampleRate int, channels int) []byte {
	dataSize := len(samples) * 4
	byteRate := sampleRate * channels * 4
	blockAlign := channels * 4
	chunkSize := 36 + dataSize
	out := make([]byte, 44+dataSize)
	copy(out[0:], []byte("RIFF"))
	binary.LittleEndian.PutUint32(out[4:], uint32(chunkSize))
	copy(out[8:], []byte("WAVE"))
	copy(out[12:], []byte("fmt "))
	binary.LittleEndian.PutUint32(out[16:], 16)
	binary.LittleEndian.PutUint16(out[20:], 3)
	binary.LittleEndian.PutUint16(out[22:], uint16(channels))
	binary.LittleEndian.PutUint32(out[24:], uint32(sampleRate))
	binary.LittleEndian.PutUint32(out[28:], uint32(byteRate))
	binary.LittleEndian.PutUint16(out[32:], uint16(blockAlign))
	binary.LittleEndian.PutUint16(out[34:], 32)
	copy(out[36:], []byte("data"))
	binary.LittleEndian.PutUint32(out[40:], uint32(dataSize))
	for i, smp := range samples {
		binary.LittleEndian.PutUint32(out[44+i*4:], math.Float32bits(smp))
	}
	return out
}
