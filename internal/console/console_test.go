package console

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/v32emu/v32emu/internal/cart"
	"github.com/v32emu/v32emu/internal/cpu"
	"github.com/v32emu/v32emu/internal/gamepads"
	"github.com/v32emu/v32emu/internal/spu"
	"github.com/v32emu/v32emu/internal/vm"
)

// recordSink counts the host-side callbacks the GPU emits.
type recordSink struct {
	clears []vm.Word
	quads  int
	loads  int
}

func (s *recordSink) ClearScreen(c vm.Word)               { s.clears = append(s.clears, c) }
func (s *recordSink) DrawQuad(vm.Quad)                    { s.quads++ }
func (s *recordSink) SetMultiplyColor(vm.Word)            {}
func (s *recordSink) SetBlendingMode(int32)               {}
func (s *recordSink) SelectTexture(int32)                 {}
func (s *recordSink) LoadTexture(int32, []byte, int, int) { s.loads++ }
func (s *recordSink) UnloadCartridgeTextures()            {}

func biosWith(program []vm.Word) *cart.Cartridge {
	return &cart.Cartridge{Title: "test bios", Program: program}
}

func hlt() vm.Word { return cpu.Instr(cpu.OpHLT, cpu.ModeNone, 0, cpu.ModeNone, 0) }

func movRegImm(reg int, value vm.Word) []vm.Word {
	return []vm.Word{cpu.Instr(cpu.OpMOV, cpu.ModeRegister, reg, cpu.ModeImmediate, 0), value}
}

func outImmImm(port uint32, value vm.Word) []vm.Word {
	return []vm.Word{
		cpu.Instr(cpu.OpOUT, cpu.ModeImmediate, 0, cpu.ModeImmediate, 0),
		vm.Word(port), value,
	}
}

func program(chunks ...[]vm.Word) []vm.Word {
	var p []vm.Word
	for _, c := range chunks {
		p = append(p, c...)
	}
	return p
}

func TestConsole_PowerOnRunsBiosUntilHalt(t *testing.T) {
	c := New(vm.NullVideoSink{})
	if err := c.LoadBios(biosWith([]vm.Word{hlt()})); err != nil {
		t.Fatal(err)
	}
	c.SetPower(true)
	if !c.IsPowerOn() {
		t.Fatalf("power flag not set")
	}
	if err := c.RunNextFrame(); err != nil {
		t.Fatal(err)
	}
	if !c.CPU().Halted() {
		t.Fatalf("CPU not halted after HLT BIOS")
	}
	if got := c.CPU().Cycles(); got != 1 {
		t.Fatalf("cycle counter got %d, want 1", got)
	}
	if got := c.Timer().FrameCounter(); got != 1 {
		t.Fatalf("frame counter got %d, want 1", got)
	}
}

func TestConsole_DivisionByZeroReachesFaultVector(t *testing.T) {
	// set up a stack, install HLT at the fault vector, divide by zero
	prog := program(
		movRegImm(14, vm.IntWord(4096)),
		[]vm.Word{
			cpu.Instr(cpu.OpMOV, cpu.ModeIndirect, 2, cpu.ModeImmediate, 0),
			vm.IntWord(vm.FaultVectorAddress), hlt(),
		},
		movRegImm(0, vm.IntWord(5)),
		movRegImm(1, vm.IntWord(0)),
		[]vm.Word{cpu.Instr(cpu.OpDIV, cpu.ModeRegister, 0, cpu.ModeRegister, 1)},
	)
	c := New(vm.NullVideoSink{})
	if err := c.LoadBios(biosWith(prog)); err != nil {
		t.Fatal(err)
	}
	c.SetPower(true)
	if err := c.RunNextFrame(); err != nil {
		t.Fatal(err)
	}
	if got := c.CPU().R[0].Int(); got != 0 {
		t.Fatalf("R0 after division by zero got %d, want sentinel 0", got)
	}
	if !c.CPU().Halted() {
		t.Fatalf("fault vector handler did not run")
	}
	if got := c.CPU().PC; got != vm.FaultVectorAddress+1 {
		t.Fatalf("PC got %#x, want one past the fault vector", got)
	}
}

func TestConsole_GPUClearThroughPorts(t *testing.T) {
	sink := &recordSink{}
	prog := program(
		outImmImm(vm.GPUPortBase+2, vm.Word(0xFF00FF00)), // clear color
		outImmImm(vm.GPUPortBase+0, vm.IntWord(vm.GPUCommandClearScreen)),
		[]vm.Word{hlt()},
	)
	c := New(sink)
	if err := c.LoadBios(biosWith(prog)); err != nil {
		t.Fatal(err)
	}
	c.SetPower(true)
	if err := c.RunNextFrame(); err != nil {
		t.Fatal(err)
	}
	if len(sink.clears) != 1 {
		t.Fatalf("clear callbacks got %d, want exactly 1", len(sink.clears))
	}
	if sink.clears[0].Bits() != 0xFF00FF00 {
		t.Fatalf("clear color got %#x, want 0xFF00FF00", sink.clears[0].Bits())
	}
}

func TestConsole_DrawBudgetLimitsQuadsPerFrame(t *testing.T) {
	// region 16x16, tight draw loop: the budget caps the quads the host
	// sees in one frame
	sink := &recordSink{}
	loop := uint32(vm.BiosBase + 12) // address of the OUT draw command below
	prog := program(
		outImmImm(vm.GPUPortBase+14, vm.IntWord(15)), // region max x
		outImmImm(vm.GPUPortBase+15, vm.IntWord(15)), // region max y
		outImmImm(vm.GPUPortBase+7, vm.IntWord(100)), // drawing point x
		outImmImm(vm.GPUPortBase+8, vm.IntWord(100)), // drawing point y
		outImmImm(vm.GPUPortBase+0, vm.IntWord(vm.GPUCommandDrawRegion)),
		[]vm.Word{cpu.Instr(cpu.OpJMP, cpu.ModeImmediate, 0, cpu.ModeNone, 0), vm.Word(loop)},
	)
	c := New(sink)
	if err := c.LoadBios(biosWith(prog)); err != nil {
		t.Fatal(err)
	}
	c.SetPower(true)
	if err := c.RunNextFrame(); err != nil {
		t.Fatal(err)
	}
	maxQuads := (vm.PixelCapacityPerFrame + 255) / 256
	if sink.quads == 0 || sink.quads > maxQuads {
		t.Fatalf("quads got %d, want in (0, %d]", sink.quads, maxQuads)
	}
	if got := c.ControlBus().Read(vm.GPUPortBase + 1).Int(); got != 0 {
		t.Fatalf("remaining pixels got %d, want 0", got)
	}
}

func TestConsole_MemoryCardSavesIffWritten(t *testing.T) {
	path := filepath.Join(t.TempDir(), "card.sav")
	prog := program(
		movRegImm(3, vm.Word(vm.MemoryCardBase)),
		[]vm.Word{
			cpu.Instr(cpu.OpMOV, cpu.ModeIndirect, 3, cpu.ModeImmediate, 0),
			vm.IntWord(0), vm.IntWord(777),
		},
		[]vm.Word{hlt()},
	)
	c := New(vm.NullVideoSink{})
	if err := c.LoadBios(biosWith(prog)); err != nil {
		t.Fatal(err)
	}
	if err := c.CreateMemoryCard(path); err != nil {
		t.Fatal(err)
	}
	c.SetPower(true)
	if err := c.RunNextFrame(); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if data[0] != 0x09 || data[1] != 0x03 { // 777 little-endian
		t.Fatalf("card word 0 on disk got % x, want 777", data[:4])
	}

	// a frame with no card writes leaves the file alone
	before, _ := os.Stat(path)
	if err := c.RunNextFrame(); err != nil {
		t.Fatal(err)
	}
	after, _ := os.Stat(path)
	if !after.ModTime().Equal(before.ModTime()) {
		t.Fatalf("clean frame rewrote the card file")
	}
	afterData, _ := os.ReadFile(path)
	if !bytes.Equal(data, afterData) {
		t.Fatalf("clean frame changed card contents")
	}
}

func TestConsole_ResetReloadsBiosMedia(t *testing.T) {
	sink := &recordSink{}
	bios := biosWith([]vm.Word{hlt()})
	bios.Textures = []cart.Texture{{Pixels: make([]byte, 4*4*4), Width: 4, Height: 4}}
	bios.Sounds = []spu.Sound{spu.NewSound(make([]int16, 20))}

	c := New(sink)
	if err := c.LoadBios(bios); err != nil {
		t.Fatal(err)
	}
	c.SetPower(true)
	loadsAfterPowerOn := sink.loads
	if loadsAfterPowerOn == 0 {
		t.Fatalf("BIOS texture not forwarded on power-on")
	}
	c.Reset()
	if sink.loads != 2*loadsAfterPowerOn {
		t.Fatalf("reset did not reload BIOS media: %d loads", sink.loads)
	}
	if !c.IsPowerOn() {
		t.Fatalf("reset turned the machine off")
	}
}

func TestConsole_PowerOffClearsStateKeepsCard(t *testing.T) {
	path := filepath.Join(t.TempDir(), "card.sav")
	c := New(vm.NullVideoSink{})
	if err := c.LoadBios(biosWith([]vm.Word{hlt()})); err != nil {
		t.Fatal(err)
	}
	if err := c.CreateMemoryCard(path); err != nil {
		t.Fatal(err)
	}
	c.SetPower(true)
	if err := c.RunNextFrame(); err != nil {
		t.Fatal(err)
	}
	c.MemoryCard().WriteAddress(9, vm.IntWord(9))
	c.SetPower(false)

	if c.IsPowerOn() {
		t.Fatalf("power flag still on")
	}
	if got := c.Timer().FrameCounter(); got != 0 {
		t.Fatalf("timer survived power-off: %d", got)
	}
	if v, ok := c.MemoryCard().ReadAddress(9); !ok || v.Int() != 9 {
		t.Fatalf("card contents lost on power-off: %d/%t", v.Int(), ok)
	}
	if c.RunNextFrame() != nil || c.CPU().Cycles() != 0 {
		t.Fatalf("frame ran while powered off")
	}
}

func TestConsole_MediaChangesRequirePowerOff(t *testing.T) {
	c := New(vm.NullVideoSink{})
	if err := c.LoadBios(biosWith([]vm.Word{hlt()})); err != nil {
		t.Fatal(err)
	}
	c.SetPower(true)
	if err := c.LoadCartridge(&cart.Cartridge{}); err == nil {
		t.Fatalf("cartridge insert while powered on accepted")
	}
	if err := c.LoadBios(biosWith([]vm.Word{hlt()})); err == nil {
		t.Fatalf("BIOS load while powered on accepted")
	}
	if err := c.UnloadCartridge(); err == nil {
		t.Fatalf("cartridge removal while powered on accepted")
	}
}

func TestConsole_GamepadStateReachesPorts(t *testing.T) {
	prog := program(
		[]vm.Word{
			cpu.Instr(cpu.OpIN, cpu.ModeRegister, 5, cpu.ModeImmediate, 0),
			vm.Word(vm.GamepadPortBase + 2), // buttons port
		},
		[]vm.Word{hlt()},
	)
	c := New(vm.NullVideoSink{})
	if err := c.LoadBios(biosWith(prog)); err != nil {
		t.Fatal(err)
	}
	c.SetPower(true)
	c.SetGamepadState(0, gamepads.State{Connected: true, Buttons: gamepads.ButtonA | gamepads.ButtonUp})
	if err := c.RunNextFrame(); err != nil {
		t.Fatal(err)
	}
	if got := c.CPU().R[5].Int(); got != gamepads.ButtonA|gamepads.ButtonUp {
		t.Fatalf("guest read buttons %#x", got)
	}
}

func TestConsole_NullRangeReadsZero(t *testing.T) {
	c := New(vm.NullVideoSink{})
	if got := c.ControlBus().Read(vm.NullPortBase + 17); got != 0 {
		t.Fatalf("null controller read got %#x, want 0", got.Bits())
	}
	c.ControlBus().Write(vm.NullPortBase+17, vm.IntWord(5))
	if got := c.ControlBus().Read(vm.NullPortBase + 17); got != 0 {
		t.Fatalf("null controller stored a write")
	}
}
