package cart

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/v32emu/v32emu/internal/spu"
	"github.com/v32emu/v32emu/internal/vm"
)

// Binary container layout, all fields little-endian uint32 unless noted:
//
//	magic    [4]byte  "V32C" (cartridge) or "V32B" (BIOS)
//	titleLen uint32, title bytes (UTF-8)
//	programWords uint32, program words
//	textureCount uint32, then per texture: width, height, RGBA pixel bytes
//	soundCount uint32, then per sound: frames, interleaved stereo int16
//
// The container carries media already decoded; there is no PNG or WAV
// inside, only raw pixels and PCM.
const (
	MagicCartridge = "V32C"
	MagicBios      = "V32B"
)

// Size sanity limits applied while reading, so a corrupt header cannot
// make the loader allocate the moon.
const (
	maxTitleLen    = 256
	maxTextures    = 256
	maxSounds      = 1024
	maxSoundFrames = 64 * vm.SampleRate
)

// LoadFile reads a container from disk. wantMagic selects cartridge or
// BIOS flavor. All failures are host-visible errors; nothing here reaches
// guest code.
func LoadFile(path, wantMagic string) (*Cartridge, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	c, err := Load(f, wantMagic)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

// Load reads a container from r.
func Load(r io.Reader, wantMagic string) (*Cartridge, error) {
	var magic [4]byte
	if _, err := io.ReadFull(r, magic[:]); err != nil {
		return nil, fmt.Errorf("read magic: %w", err)
	}
	if string(magic[:]) != wantMagic {
		return nil, fmt.Errorf("bad magic %q, want %q", magic[:], wantMagic)
	}

	titleLen, err := readU32(r)
	if err != nil {
		return nil, fmt.Errorf("read title length: %w", err)
	}
	if titleLen > maxTitleLen {
		return nil, fmt.Errorf("title length %d exceeds %d", titleLen, maxTitleLen)
	}
	title := make([]byte, titleLen)
	if _, err := io.ReadFull(r, title); err != nil {
		return nil, fmt.Errorf("read title: %w", err)
	}

	programWords, err := readU32(r)
	if err != nil {
		return nil, fmt.Errorf("read program size: %w", err)
	}
	maxWords := uint32(vm.CartridgeMax)
	if wantMagic == MagicBios {
		maxWords = vm.BiosMaxSize
	}
	if programWords > maxWords {
		return nil, fmt.Errorf("program size %d words exceeds %d", programWords, maxWords)
	}
	program := make([]vm.Word, programWords)
	raw := make([]byte, 4*programWords)
	if _, err := io.ReadFull(r, raw); err != nil {
		return nil, fmt.Errorf("read program: %w", err)
	}
	for i := range program {
		program[i] = vm.Word(binary.LittleEndian.Uint32(raw[4*i:]))
	}

	textureCount, err := readU32(r)
	if err != nil {
		return nil, fmt.Errorf("read texture count: %w", err)
	}
	if textureCount > maxTextures {
		return nil, fmt.Errorf("texture count %d exceeds %d", textureCount, maxTextures)
	}
	textures := make([]Texture, textureCount)
	for i := range textures {
		w, err := readU32(r)
		if err != nil {
			return nil, fmt.Errorf("texture %d: read width: %w", i, err)
		}
		h, err := readU32(r)
		if err != nil {
			return nil, fmt.Errorf("texture %d: read height: %w", i, err)
		}
		if w == 0 || h == 0 || w > vm.TextureSize || h > vm.TextureSize {
			return nil, fmt.Errorf("texture %d: bad size %dx%d", i, w, h)
		}
		pixels := make([]byte, 4*w*h)
		if _, err := io.ReadFull(r, pixels); err != nil {
			return nil, fmt.Errorf("texture %d: read pixels: %w", i, err)
		}
		textures[i] = Texture{Pixels: pixels, Width: int(w), Height: int(h)}
	}

	soundCount, err := readU32(r)
	if err != nil {
		return nil, fmt.Errorf("read sound count: %w", err)
	}
	if soundCount > maxSounds {
		return nil, fmt.Errorf("sound count %d exceeds %d", soundCount, maxSounds)
	}
	sounds := make([]spu.Sound, soundCount)
	for i := range sounds {
		frames, err := readU32(r)
		if err != nil {
			return nil, fmt.Errorf("sound %d: read length: %w", i, err)
		}
		if frames > maxSoundFrames {
			return nil, fmt.Errorf("sound %d: %d frames exceeds %d", i, frames, maxSoundFrames)
		}
		raw := make([]byte, 4*frames)
		if _, err := io.ReadFull(r, raw); err != nil {
			return nil, fmt.Errorf("sound %d: read samples: %w", i, err)
		}
		samples := make([]int16, 2*frames)
		for j := range samples {
			samples[j] = int16(binary.LittleEndian.Uint16(raw[2*j:]))
		}
		sounds[i] = spu.NewSound(samples)
	}

	return &Cartridge{
		Title:    string(title),
		Program:  program,
		Textures: textures,
		Sounds:   sounds,
	}, nil
}

// Save writes a container in the layout Load reads; the test suite
// round-trips through it.
func Save(w io.Writer, c *Cartridge, magic string) error {
	if _, err := w.Write([]byte(magic)); err != nil {
		return err
	}
	if err := writeU32(w, uint32(len(c.Title))); err != nil {
		return err
	}
	if _, err := w.Write([]byte(c.Title)); err != nil {
		return err
	}
	if err := writeU32(w, uint32(len(c.Program))); err != nil {
		return err
	}
	raw := make([]byte, 4*len(c.Program))
	for i, word := range c.Program {
		binary.LittleEndian.PutUint32(raw[4*i:], word.Bits())
	}
	if _, err := w.Write(raw); err != nil {
		return err
	}
	if err := writeU32(w, uint32(len(c.Textures))); err != nil {
		return err
	}
	for _, t := range c.Textures {
		if err := writeU32(w, uint32(t.Width)); err != nil {
			return err
		}
		if err := writeU32(w, uint32(t.Height)); err != nil {
			return err
		}
		if _, err := w.Write(t.Pixels); err != nil {
			return err
		}
	}
	if err := writeU32(w, uint32(len(c.Sounds))); err != nil {
		return err
	}
	for _, s := range c.Sounds {
		if err := writeU32(w, uint32(s.Length)); err != nil {
			return err
		}
		raw := make([]byte, 4*s.Length)
		for i, v := range s.Samples {
			binary.LittleEndian.PutUint16(raw[2*i:], uint16(v))
		}
		if _, err := w.Write(raw); err != nil {
			return err
		}
	}
	return nil
}

func readU32(r io.Reader) (uint32, error) {
	var buf [4]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(buf[:]), nil
}

func writeU32(w io.Writer, v uint32) error {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], v)
	_, err := w.Write(buf[:])
	return err
}
