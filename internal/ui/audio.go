package ui

import (
	"encoding/binary"

	"github.com/v32emu/v32emu/internal/console"
	"github.com/v32emu/v32emu/internal/vm"
)

// spuStream implements io.Reader by pulling mixed samples from the SPU
// and converting them to 16-bit little-endian stereo frames for the
// audio player. The player's goroutine calls Read; the SPU mixer locks
// channel state internally.
type spuStream struct {
	c       *console.Console
	scratch []float32
}

func newSPUStream(c *console.Console) *spuStream {
	return &spuStream{c: c, scratch: make([]float32, 2*vm.SamplesPerFrame)}
}

func (s *spuStream) Read(p []byte) (int, error) {
	// each stereo frame is 4 bytes; never return 0 bytes or the player
	// stalls
	frames := len(p) / 4
	if frames == 0 {
		for i := range p {
			p[i] = 0
		}
		return len(p), nil
	}
	if cap(s.scratch) < 2*frames {
		s.scratch = make([]float32, 2*frames)
	}
	buf := s.scratch[:2*frames]
	s.c.MixAudio(buf)
	for f := 0; f < frames; f++ {
		l := int16(buf[2*f] * 32767)
		r := int16(buf[2*f+1] * 32767)
		binary.LittleEndian.PutUint16(p[4*f:], uint16(l))
		binary.LittleEndian.PutUint16(p[4*f+2:], uint16(r))
	}
	return frames * 4, nil
}
