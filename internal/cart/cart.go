package cart

import (
	"github.com/v32emu/v32emu/internal/spu"
	"github.com/v32emu/v32emu/internal/vm"
)

// Texture is a decoded RGBA image from the media catalogue.
type Texture struct {
	Pixels []byte
	Width  int
	Height int
}

// Cartridge is decoded media: the program ROM plus the texture and sound
// catalogues. The same shape serves the BIOS: the console installs its
// first texture and first sound, when present, at index -1.
type Cartridge struct {
	Title    string
	Program  []vm.Word
	Textures []Texture
	Sounds   []spu.Sound
}

// Local control-bus ports. All four are read-only.
const (
	PortConnected = iota
	PortProgramROMSize
	PortNumberOfTextures
	PortNumberOfSounds
	PortCount
)

// Controller exposes the cartridge slot to both buses: the program ROM on
// the memory bus and the catalogue counts on the control bus.
type Controller struct {
	cart *Cartridge
}

func NewController() *Controller { return &Controller{} }

// Insert seats a cartridge. The console only allows this while power is
// off, like the physical slot.
func (c *Controller) Insert(cartridge *Cartridge) { c.cart = cartridge }

// Remove empties the slot.
func (c *Controller) Remove() { c.cart = nil }

func (c *Controller) Connected() bool       { return c.cart != nil }
func (c *Controller) Cartridge() *Cartridge { return c.cart }

func (c *Controller) ReadPort(local int32) vm.Word {
	switch local {
	case PortConnected:
		return vm.BoolWord(c.cart != nil)
	case PortProgramROMSize:
		if c.cart == nil {
			return 0
		}
		return vm.IntWord(int32(len(c.cart.Program)))
	case PortNumberOfTextures:
		if c.cart == nil {
			return 0
		}
		return vm.IntWord(int32(len(c.cart.Textures)))
	case PortNumberOfSounds:
		if c.cart == nil {
			return 0
		}
		return vm.IntWord(int32(len(c.cart.Sounds)))
	}
	return 0
}

// ReadAddress serves program ROM reads. An empty slot or a read past the
// program's end reports false, which the memory bus turns into a fault.
func (c *Controller) ReadAddress(local uint32) (vm.Word, bool) {
	if c.cart == nil || local >= uint32(len(c.cart.Program)) {
		return 0, false
	}
	return c.cart.Program[local], true
}
