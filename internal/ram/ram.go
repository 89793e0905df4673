package ram

import "github.com/v32emu/v32emu/internal/vm"

// RAM is a contiguous word-addressable store. The bus guarantees local
// addresses are in range before dispatching here.
type RAM struct {
	words []vm.Word
}

func New(sizeWords uint32) *RAM {
	return &RAM{words: make([]vm.Word, sizeWords)}
}

// Reset zeroes the whole array, as real hardware does on power-up.
func (r *RAM) Reset() {
	for i := range r.words {
		r.words[i] = 0
	}
}

func (r *RAM) Size() uint32     { return uint32(len(r.words)) }
func (r *RAM) Words() []vm.Word { return r.words }

func (r *RAM) ReadAddress(local uint32) (vm.Word, bool) {
	return r.words[local], true
}

func (r *RAM) WriteAddress(local uint32, value vm.Word) bool {
	r.words[local] = value
	return true
}

// ROM is a read-only word store; the bus faults writes because ROM does
// not implement the address-writer capability.
type ROM struct {
	words []vm.Word
}

func NewROM(contents []vm.Word) *ROM {
	return &ROM{words: contents}
}

func (r *ROM) Size() uint32     { return uint32(len(r.words)) }
func (r *ROM) Words() []vm.Word { return r.words }

// ReadAddress reports false past the loaded contents; a ROM slot's bus
// window is usually larger than the image mapped into it.
func (r *ROM) ReadAddress(local uint32) (vm.Word, bool) {
	if local >= uint32(len(r.words)) {
		return 0, false
	}
	return r.words[local], true
}
