package console

import (
	"errors"
	"fmt"

	"github.com/v32emu/v32emu/internal/bus"
	"github.com/v32emu/v32emu/internal/cart"
	"github.com/v32emu/v32emu/internal/cpu"
	"github.com/v32emu/v32emu/internal/gamepads"
	"github.com/v32emu/v32emu/internal/gpu"
	"github.com/v32emu/v32emu/internal/memcard"
	"github.com/v32emu/v32emu/internal/nulldev"
	"github.com/v32emu/v32emu/internal/ram"
	"github.com/v32emu/v32emu/internal/spu"
	"github.com/v32emu/v32emu/internal/timer"
	"github.com/v32emu/v32emu/internal/vm"
)

// biosSlot maps the firmware program ROM into the memory bus. Its
// contents swap when a new BIOS is loaded.
type biosSlot struct {
	rom *ram.ROM
}

func (b *biosSlot) ReadAddress(local uint32) (vm.Word, bool) {
	if b.rom == nil {
		return 0, false
	}
	return b.rom.ReadAddress(local)
}

// Console owns every controller and both buses, and brackets their
// lifetimes. The host supplies a video sink at construction and drives
// the machine one frame at a time.
type Console struct {
	mem *bus.Memory
	io  *bus.Control

	ram   *ram.RAM
	bios  *biosSlot
	cpu   *cpu.CPU
	gpu   *gpu.GPU
	spu   *spu.SPU
	cart  *cart.Controller
	card  *memcard.Controller
	timer *timer.Controller
	pads  *gamepads.Controller

	biosMedia *cart.Cartridge
	powerOn   bool
}

// New wires the machine together. The address and port maps are fixed;
// attaching over a wrong map is a programming error, so New panics on
// overlap instead of returning it.
func New(sink vm.VideoSink) *Console {
	c := &Console{
		mem:  bus.NewMemory(),
		io:   bus.NewControl(),
		ram:  ram.New(vm.RAMSize),
		bios: &biosSlot{},
		spu:  spu.New(),
		cart: cart.NewController(),
		card: memcard.NewController(),
		pads: gamepads.NewController(),
	}
	c.gpu = gpu.New(sink)
	c.cpu = cpu.New(c.mem, c.io)
	c.timer = timer.NewController(c.cpu.Cycles)

	must := func(err error) {
		if err != nil {
			panic(fmt.Sprintf("console: bus map: %v", err))
		}
	}
	must(c.mem.Attach(vm.RAMBase, vm.RAMSize, c.ram))
	must(c.mem.Attach(vm.BiosBase, vm.BiosMaxSize, c.bios))
	must(c.mem.Attach(vm.CartridgeBase, vm.CartridgeMax, c.cart))
	must(c.mem.Attach(vm.MemoryCardBase, vm.MemoryCardSize, c.card))

	must(c.io.Attach(vm.TimerPortBase, timer.PortCount, c.timer))
	must(c.io.Attach(vm.GPUPortBase, gpu.PortCount, c.gpu))
	must(c.io.Attach(vm.SPUPortBase, spu.PortCount, c.spu))
	must(c.io.Attach(vm.GamepadPortBase, gamepads.PortCount, c.pads))
	must(c.io.Attach(vm.CartridgePortBase, cart.PortCount, c.cart))
	must(c.io.Attach(vm.MemCardPortBase, memcard.PortCount, c.card))
	must(c.io.Attach(vm.NullPortBase, vm.PortSpaceSize-vm.NullPortBase, nulldev.NewController()))

	return c
}

// LoadBios installs the firmware. Allowed only while powered off.
func (c *Console) LoadBios(b *cart.Cartridge) error {
	if c.powerOn {
		return errors.New("console: cannot load BIOS while powered on")
	}
	if len(b.Program) == 0 {
		return errors.New("console: BIOS has no program")
	}
	if len(b.Program) > vm.BiosMaxSize {
		return fmt.Errorf("console: BIOS program is %d words, max %d", len(b.Program), vm.BiosMaxSize)
	}
	c.biosMedia = b
	c.bios.rom = ram.NewROM(b.Program)
	return nil
}

// LoadCartridge seats a cartridge while powered off.
func (c *Console) LoadCartridge(media *cart.Cartridge) error {
	if c.powerOn {
		return errors.New("console: cannot change cartridge while powered on")
	}
	if len(media.Program) > vm.CartridgeMax {
		return fmt.Errorf("console: cartridge program is %d words, max %d", len(media.Program), vm.CartridgeMax)
	}
	c.cart.Insert(media)
	return nil
}

// UnloadCartridge empties the slot while powered off.
func (c *Console) UnloadCartridge() error {
	if c.powerOn {
		return errors.New("console: cannot remove cartridge while powered on")
	}
	c.cart.Remove()
	return nil
}

// CreateMemoryCard makes a blank card file and connects it.
func (c *Console) CreateMemoryCard(path string) error { return c.card.CreateFile(path) }

// LoadMemoryCard connects an existing card file.
func (c *Console) LoadMemoryCard(path string) error { return c.card.LoadFile(path) }

// UnloadMemoryCard disconnects the card, flushing pending writes.
func (c *Console) UnloadMemoryCard() error { return c.card.Unload() }

// SetGamepadState hands a pad snapshot to the gamepad controller.
func (c *Console) SetGamepadState(pad int, s gamepads.State) { c.pads.SetState(pad, s) }

func (c *Console) IsPowerOn() bool { return c.powerOn }

// SetPower turns the machine on (which resets it) or off (which halts the
// CPU and zeroes device-visible state; card contents survive).
func (c *Console) SetPower(on bool) {
	if on == c.powerOn {
		return
	}
	c.powerOn = on
	if on {
		c.Reset()
		return
	}
	c.ram.Reset()
	c.cpu.Reset()
	c.cpu.Halt()
	c.gpu.Reset()
	c.spu.Reset()
	c.timer.Reset()
	c.pads.Reset()
}

// Reset returns the machine to its power-on state: BIOS media reloaded
// into the firmware slots, CPU/GPU/SPU registers cleared, timer rewound.
// Memory card contents are untouched.
func (c *Console) Reset() {
	c.ram.Reset()
	c.cpu.Reset()
	c.gpu.Reset()
	c.spu.Reset()
	c.timer.Reset()
	c.pads.Reset()

	if c.biosMedia != nil {
		if len(c.biosMedia.Textures) > 0 {
			t := c.biosMedia.Textures[0]
			c.gpu.LoadBiosTexture(gpu.Image{Pixels: t.Pixels, Width: t.Width, Height: t.Height})
		}
		if len(c.biosMedia.Sounds) > 0 {
			c.spu.LoadBiosSound(c.biosMedia.Sounds[0])
		}
	}
	if media := c.cart.Cartridge(); media != nil {
		images := make([]gpu.Image, len(media.Textures))
		for i, t := range media.Textures {
			images[i] = gpu.Image{Pixels: t.Pixels, Width: t.Width, Height: t.Height}
		}
		c.gpu.LoadCartridgeTextures(images)
		c.spu.LoadCartridgeSounds(media.Sounds)
	} else {
		c.gpu.UnloadCartridgeTextures()
		c.spu.UnloadCartridgeSounds()
	}
}

// RunNextFrame drives one frame: refill the GPU budget, run the CPU's
// cycle budget, advance the timer, then flush the memory card if guest
// code wrote to it. Audio is pulled separately through MixAudio.
func (c *Console) RunNextFrame() error {
	if !c.powerOn {
		return nil
	}
	c.gpu.FrameStart()
	c.cpu.RunFrame()
	c.timer.ChangeFrame()
	if err := c.card.ChangeFrame(); err != nil {
		return fmt.Errorf("console: memory card save: %w", err)
	}
	return nil
}

// MixAudio fills an interleaved stereo float32 buffer from the SPU mixer.
// Safe to call from the host audio thread.
func (c *Console) MixAudio(dst []float32) { c.spu.MixSamples(dst) }

// Component accessors, used by the front-end and the test suite.
func (c *Console) CPU() *cpu.CPU                   { return c.cpu }
func (c *Console) GPU() *gpu.GPU                   { return c.gpu }
func (c *Console) SPU() *spu.SPU                   { return c.spu }
func (c *Console) Timer() *timer.Controller        { return c.timer }
func (c *Console) MemoryCard() *memcard.Controller { return c.card }
func (c *Console) MemoryBus() *bus.Memory          { return c.mem }
func (c *Console) ControlBus() *bus.Control        { return c.io }
