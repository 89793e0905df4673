package main

import (
	"flag"
	"fmt"
	"image"
	"image/png"
	"log"
	"os"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/v32emu/v32emu/internal/cart"
	"github.com/v32emu/v32emu/internal/console"
	"github.com/v32emu/v32emu/internal/cpu"
	"github.com/v32emu/v32emu/internal/ui"
	"github.com/v32emu/v32emu/internal/vm"
)

type cliFlags struct {
	BiosPath string
	ROMPath  string
	CardPath string
	Scale    int
	Title    string
	Mute     bool

	// headless
	Headless bool
	Frames   int
	PNGOut   string
	WAVOut   string
}

func parseFlags() cliFlags {
	var f cliFlags
	flag.StringVar(&f.BiosPath, "bios", "", "path to BIOS container (.v32b); a trivial halting BIOS is used if empty")
	flag.StringVar(&f.ROMPath, "rom", "", "path to cartridge container (.v32)")
	flag.StringVar(&f.CardPath, "card", "", "path to memory card file (created if missing)")
	flag.IntVar(&f.Scale, "scale", 2, "window scale")
	flag.StringVar(&f.Title, "title", "v32emu", "window title")
	flag.BoolVar(&f.Mute, "mute", false, "disable audio output")

	flag.BoolVar(&f.Headless, "headless", false, "run without a window")
	flag.IntVar(&f.Frames, "frames", 300, "frames to run in headless mode")
	flag.StringVar(&f.PNGOut, "outpng", "", "write last framebuffer to PNG at path (headless)")
	flag.StringVar(&f.WAVOut, "wavout", "", "record SPU output to WAV at path (headless)")
	flag.Parse()
	return f
}

// fallbackBios is the built-in firmware used when no BIOS container is
// given: a single HLT so the machine powers up into a stable state.
func fallbackBios() *cart.Cartridge {
	return &cart.Cartridge{
		Title:   "builtin",
		Program: []vm.Word{vm.Word(cpu.OpHLT)},
	}
}

func runHeadless(c *console.Console, r *ui.Renderer, f cliFlags) error {
	frames := f.Frames
	if frames <= 0 {
		frames = 1
	}

	var wavSamples []int
	audioBuf := make([]float32, 2*vm.SamplesPerFrame)
	for i := 0; i < frames; i++ {
		if err := c.RunNextFrame(); err != nil {
			return err
		}
		if f.WAVOut != "" {
			c.MixAudio(audioBuf)
			for _, s := range audioBuf {
				wavSamples = append(wavSamples, int(s*32767))
			}
		}
	}
	log.Printf("headless: ran %d frames, frame counter=%d", frames, c.Timer().FrameCounter())

	if f.PNGOut != "" {
		if err := saveFramePNG(r.Pixels(), vm.ScreenWidth, vm.ScreenHeight, f.PNGOut); err != nil {
			return fmt.Errorf("write PNG: %w", err)
		}
		log.Printf("wrote %s", f.PNGOut)
	}
	if f.WAVOut != "" {
		if err := saveWAV(wavSamples, f.WAVOut); err != nil {
			return fmt.Errorf("write WAV: %w", err)
		}
		log.Printf("wrote %s (%d frames of audio)", f.WAVOut, len(wavSamples)/2)
	}
	return nil
}

func saveFramePNG(pix []byte, w, h int, path string) error {
	img := &image.RGBA{
		Pix:    make([]byte, len(pix)),
		Stride: 4 * w,
		Rect:   image.Rect(0, 0, w, h),
	}
	copy(img.Pix, pix)
	out, err := os.Create(path)
	if err != nil {
		return err
	}
	defer out.Close()
	return png.Encode(out, img)
}

func saveWAV(samples []int, path string) error {
	out, err := os.Create(path)
	if err != nil {
		return err
	}
	defer out.Close()

	enc := wav.NewEncoder(out, vm.SampleRate, 16, 2, 1)
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: 2, SampleRate: vm.SampleRate},
		Data:           samples,
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		enc.Close()
		return err
	}
	return enc.Close()
}

func main() {
	f := parseFlags()

	renderer := ui.NewRenderer()
	c := console.New(renderer)

	bios := fallbackBios()
	if f.BiosPath != "" {
		loaded, err := cart.LoadFile(f.BiosPath, cart.MagicBios)
		if err != nil {
			log.Fatalf("load BIOS: %v", err)
		}
		bios = loaded
	}
	if err := c.LoadBios(bios); err != nil {
		log.Fatalf("install BIOS: %v", err)
	}

	if f.ROMPath != "" {
		rom, err := cart.LoadFile(f.ROMPath, cart.MagicCartridge)
		if err != nil {
			log.Fatalf("load cartridge: %v", err)
		}
		if err := c.LoadCartridge(rom); err != nil {
			log.Fatalf("insert cartridge: %v", err)
		}
		log.Printf("cartridge: %q program=%dw textures=%d sounds=%d",
			rom.Title, len(rom.Program), len(rom.Textures), len(rom.Sounds))
	}

	if f.CardPath != "" {
		if err := c.LoadMemoryCard(f.CardPath); err != nil {
			if !os.IsNotExist(err) {
				log.Fatalf("load memory card: %v", err)
			}
			if err := c.CreateMemoryCard(f.CardPath); err != nil {
				log.Fatalf("create memory card: %v", err)
			}
			log.Printf("created memory card %s", f.CardPath)
		}
	}

	c.SetPower(true)
	defer func() {
		c.SetPower(false)
		if f.CardPath != "" {
			if err := c.UnloadMemoryCard(); err != nil {
				log.Printf("memory card flush: %v", err)
			}
		}
	}()

	if f.Headless {
		if err := runHeadless(c, renderer, f); err != nil {
			log.Fatal(err)
		}
		return
	}

	app := ui.NewApp(ui.Config{Title: f.Title, Scale: f.Scale, Mute: f.Mute}, c, renderer)
	if err := app.Run(); err != nil {
		log.Fatal(err)
	}
}
