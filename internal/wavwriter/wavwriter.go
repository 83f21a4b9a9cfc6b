// Package wavwriter records the APU's sample stream to a WAV file. Audio
// is buffered in memory in its entirety and written on Flush, so it is
// meant for test runs rather than long play sessions.
package wavwriter

import (
	"fmt"
	"os"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

type Writer struct {
	path       string
	sampleRate int
	data       []int // interleaved stereo
}

func New(path string, sampleRate int) *Writer {
	return &Writer{path: path, sampleRate: sampleRate}
}

// Append buffers interleaved stereo samples.
func (w *Writer) Append(samples []int16) {
	for _, s := range samples {
		w.data = append(w.data, int(s))
	}
}

// Len reports the number of buffered samples (two per stereo frame).
func (w *Writer) Len() int { return len(w.data) }

// Flush writes the buffered samples as a 16-bit stereo PCM WAV file.
func (w *Writer) Flush() (rerr error) {
	f, err := os.Create(w.path)
	if err != nil {
		return fmt.Errorf("wavwriter: %w", err)
	}
	defer func() {
		if err := f.Close(); err != nil && rerr == nil {
			rerr = fmt.Errorf("wavwriter: %w", err)
		}
	}()

	enc := wav.NewEncoder(f, w.sampleRate, 16, 2, 1)
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 2, SampleRate: w.sampleRate},
		Data:           w.data,
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		return fmt.Errorf("wavwriter: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("wavwriter: %w", err)
	}
	return nil
}
