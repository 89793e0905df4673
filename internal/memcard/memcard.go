package memcard

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"

	"github.com/v32emu/v32emu/internal/ram"
	"github.com/v32emu/v32emu/internal/vm"
)

// Local control-bus ports.
const (
	PortConnected = iota
	PortCount
)

// Controller is the persistent memory card: writable card RAM with dirty
// tracking. Guest writes mark the card dirty; at every frame boundary a
// dirty card is rewritten to disk atomically. Reset never touches card
// contents.
type Controller struct {
	storage     *ram.RAM
	filePath    string
	pendingSave bool
}

func NewController() *Controller {
	return &Controller{storage: ram.New(vm.MemoryCardSize)}
}

func (c *Controller) Connected() bool { return c.filePath != "" }

func (c *Controller) ReadPort(local int32) vm.Word {
	if local == PortConnected {
		return vm.BoolWord(c.Connected())
	}
	return 0
}

func (c *Controller) ReadAddress(local uint32) (vm.Word, bool) {
	if !c.Connected() {
		return 0, false
	}
	return c.storage.ReadAddress(local)
}

func (c *Controller) WriteAddress(local uint32, value vm.Word) bool {
	if !c.Connected() {
		return false
	}
	c.storage.WriteAddress(local, value)
	c.pendingSave = true
	return true
}

// CreateFile makes a new blank card on disk and connects it.
func (c *Controller) CreateFile(path string) error {
	c.storage.Reset()
	if err := writeCard(path, c.storage.Words()); err != nil {
		return err
	}
	c.filePath = path
	c.pendingSave = false
	return nil
}

// LoadFile connects an existing card. The file must hold exactly the card
// size; a mismatch is a load fault surfaced to the host.
func (c *Controller) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	want := 4 * vm.MemoryCardSize
	if len(data) != want {
		return fmt.Errorf("%s: card size is %d bytes, want %d", path, len(data), want)
	}
	words := c.storage.Words()
	for i := range words {
		words[i] = vm.Word(binary.LittleEndian.Uint32(data[4*i:]))
	}
	c.filePath = path
	c.pendingSave = false
	return nil
}

// Unload disconnects the card, saving first if a write is pending.
func (c *Controller) Unload() error {
	var err error
	if c.pendingSave && c.Connected() {
		err = writeCard(c.filePath, c.storage.Words())
	}
	c.filePath = ""
	c.pendingSave = false
	c.storage.Reset()
	return err
}

// ChangeFrame persists the card at the frame boundary if any write
// happened since the last save.
func (c *Controller) ChangeFrame() error {
	if !c.pendingSave || !c.Connected() {
		return nil
	}
	if err := writeCard(c.filePath, c.storage.Words()); err != nil {
		return err
	}
	c.pendingSave = false
	return nil
}

// writeCard replaces the card file atomically: write a sibling temp file,
// then rename over the target.
func writeCard(path string, words []vm.Word) error {
	data := make([]byte, 4*len(words))
	for i, w := range words {
		binary.LittleEndian.PutUint32(data[4*i:], w.Bits())
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".card-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return nil
}
