package cpu

import (
	"math"
	"testing"

	"github.com/v32emu/v32emu/internal/bus"
	"github.com/v32emu/v32emu/internal/ram"
	"github.com/v32emu/v32emu/internal/vm"
)

const testRAMSize = 0x10000

// newCPUWithProgram maps a small RAM at 0 and the program as ROM at the
// BIOS base, then resets. The stack pointer starts at the top of RAM.
func newCPUWithProgram(program []vm.Word) (*CPU, *ram.RAM) {
	mem := bus.NewMemory()
	r := ram.New(testRAMSize)
	if err := mem.Attach(vm.RAMBase, testRAMSize, r); err != nil {
		panic(err)
	}
	if err := mem.Attach(vm.BiosBase, vm.BiosMaxSize, ram.NewROM(program)); err != nil {
		panic(err)
	}
	c := New(mem, bus.NewControl())
	c.Reset()
	c.R[SP] = vm.Word(testRAMSize)
	return c, r
}

func run(c *CPU, steps int) {
	for i := 0; i < steps; i++ {
		c.Step()
	}
}

func TestCPU_ResetState(t *testing.T) {
	c, _ := newCPUWithProgram([]vm.Word{Instr(OpNOP, ModeNone, 0, ModeNone, 0)})
	c.Reset()
	for i, r := range c.R {
		if r != 0 {
			t.Fatalf("R%d after reset got %#x, want 0", i, r.Bits())
		}
	}
	if c.PC != vm.ResetEntryAddress {
		t.Fatalf("PC after reset got %#x, want %#x", c.PC, uint32(vm.ResetEntryAddress))
	}
	if c.Halted() || c.Waiting() {
		t.Fatalf("flags after reset got halt=%t wait=%t, want false/false", c.Halted(), c.Waiting())
	}
}

func TestCPU_NopAdvancesPC(t *testing.T) {
	c, _ := newCPUWithProgram([]vm.Word{Instr(OpNOP, ModeNone, 0, ModeNone, 0)})
	c.Step()
	if c.PC != vm.ResetEntryAddress+1 {
		t.Fatalf("PC after NOP got %#x, want %#x", c.PC, uint32(vm.ResetEntryAddress+1))
	}
	if c.Cycles() != 1 {
		t.Fatalf("cycles got %d, want 1", c.Cycles())
	}
}

func TestCPU_MovImmediateAndRegister(t *testing.T) {
	c, _ := newCPUWithProgram([]vm.Word{
		Instr(OpMOV, ModeRegister, 0, ModeImmediate, 0), vm.IntWord(42),
		Instr(OpMOV, ModeRegister, 1, ModeRegister, 0),
	})
	run(c, 2)
	if c.R[0].Int() != 42 || c.R[1].Int() != 42 {
		t.Fatalf("R0=%d R1=%d, want 42 42", c.R[0].Int(), c.R[1].Int())
	}
}

func TestCPU_MovIndirect(t *testing.T) {
	// write through [R2+16], read back through [R2+16]
	c, r := newCPUWithProgram([]vm.Word{
		Instr(OpMOV, ModeRegister, 2, ModeImmediate, 0), vm.IntWord(0x100),
		Instr(OpMOV, ModeIndirect, 2, ModeImmediate, 0), vm.IntWord(16), vm.IntWord(77),
		Instr(OpMOV, ModeRegister, 3, ModeIndirect, 2), vm.IntWord(16),
	})
	run(c, 3)
	if got := r.Words()[0x110].Int(); got != 77 {
		t.Fatalf("RAM[0x110] got %d, want 77", got)
	}
	if c.R[3].Int() != 77 {
		t.Fatalf("R3 got %d, want 77", c.R[3].Int())
	}
}

func TestCPU_IntegerArithmetic(t *testing.T) {
	cases := []struct {
		name string
		op   int
		a, b int32
		want int32
	}{
		{"ADD", OpADD, 7, 5, 12},
		{"SUB", OpSUB, 7, 5, 2},
		{"MUL", OpMUL, -3, 5, -15},
		{"DIV", OpDIV, -17, 5, -3},
		{"MOD", OpMOD, 17, 5, 2},
		{"AND", OpAND, 0b1100, 0b1010, 0b1000},
		{"OR", OpOR, 0b1100, 0b1010, 0b1110},
		{"XOR", OpXOR, 0b1100, 0b1010, 0b0110},
		{"SHL", OpSHL, 1, 4, 16},
		{"SHR", OpSHR, 16, 4, 1},
	}
	for _, tc := range cases {
		c, _ := newCPUWithProgram([]vm.Word{
			Instr(tc.op, ModeRegister, 0, ModeImmediate, 0), vm.IntWord(tc.b),
		})
		c.R[0] = vm.IntWord(tc.a)
		c.Step()
		if got := c.R[0].Int(); got != tc.want {
			t.Errorf("%s: got %d, want %d", tc.name, got, tc.want)
		}
	}
}

func TestCPU_ShrIsLogical(t *testing.T) {
	c, _ := newCPUWithProgram([]vm.Word{
		Instr(OpSHR, ModeRegister, 0, ModeImmediate, 0), vm.IntWord(1),
	})
	c.R[0] = vm.IntWord(-2)
	c.Step()
	if got := c.R[0].Bits(); got != 0x7FFFFFFF {
		t.Fatalf("SHR -2 by 1 got %#x, want 0x7FFFFFFF", got)
	}
}

func TestCPU_DivisionByZero(t *testing.T) {
	// MOV R0,5; MOV R1,0; DIV R0,R1; HLT
	c, _ := newCPUWithProgram([]vm.Word{
		Instr(OpMOV, ModeRegister, 0, ModeImmediate, 0), vm.IntWord(5),
		Instr(OpMOV, ModeRegister, 1, ModeImmediate, 0), vm.IntWord(0),
		Instr(OpDIV, ModeRegister, 0, ModeRegister, 1),
		Instr(OpHLT, ModeNone, 0, ModeNone, 0),
	})
	run(c, 3)
	if c.R[0].Int() != 0 {
		t.Fatalf("R0 after DIV by zero got %d, want sentinel 0", c.R[0].Int())
	}
	// the next step delivers the fault instead of executing HLT
	pcBefore := c.PC
	c.Step()
	if c.PC != vm.FaultVectorAddress {
		t.Fatalf("PC after fault delivery got %#x, want fault vector %#x", c.PC, uint32(vm.FaultVectorAddress))
	}
	if got := c.mem.Read(c.R[SP].Bits()); got.Bits() != pcBefore {
		t.Fatalf("pushed return PC got %#x, want %#x", got.Bits(), pcBefore)
	}
}

func TestCPU_CompareAndBranches(t *testing.T) {
	cases := []struct {
		op         int
		a, b       int32
		shouldJump bool
	}{
		{OpJEQ, 3, 3, true},
		{OpJEQ, 3, 4, false},
		{OpJNE, 3, 4, true},
		{OpJLT, 2, 3, true},
		{OpJLT, 3, 3, false},
		{OpJLE, 3, 3, true},
		{OpJGT, 4, 3, true},
		{OpJGE, 3, 3, true},
		{OpJGE, 2, 3, false},
	}
	const target = vm.ResetEntryAddress + 100
	for _, tc := range cases {
		c, _ := newCPUWithProgram([]vm.Word{
			Instr(OpCMP, ModeRegister, 0, ModeRegister, 1),
			Instr(tc.op, ModeImmediate, 0, ModeNone, 0), vm.IntWord(target),
		})
		c.R[0] = vm.IntWord(tc.a)
		c.R[1] = vm.IntWord(tc.b)
		run(c, 2)
		jumped := c.PC == target
		if jumped != tc.shouldJump {
			t.Errorf("op %d with %d,%d: jumped=%t, want %t", tc.op, tc.a, tc.b, jumped, tc.shouldJump)
		}
	}
}

func TestCPU_JmpRegisterTarget(t *testing.T) {
	c, _ := newCPUWithProgram([]vm.Word{
		Instr(OpJMP, ModeRegister, 5, ModeNone, 0),
	})
	c.R[5] = vm.Word(vm.ResetEntryAddress + 7)
	c.Step()
	if c.PC != vm.ResetEntryAddress+7 {
		t.Fatalf("PC got %#x, want %#x", c.PC, uint32(vm.ResetEntryAddress+7))
	}
}

func TestCPU_CallAndRet(t *testing.T) {
	// CALL sub; HLT; sub: MOV R0,9; RET
	sub := uint32(vm.ResetEntryAddress + 3)
	c, _ := newCPUWithProgram([]vm.Word{
		Instr(OpCALL, ModeImmediate, 0, ModeNone, 0), vm.Word(sub),
		Instr(OpHLT, ModeNone, 0, ModeNone, 0),
		Instr(OpMOV, ModeRegister, 0, ModeImmediate, 0), vm.IntWord(9),
		Instr(OpRET, ModeNone, 0, ModeNone, 0),
	})
	run(c, 4)
	if c.R[0].Int() != 9 {
		t.Fatalf("R0 got %d, want 9", c.R[0].Int())
	}
	if !c.Halted() {
		t.Fatalf("expected halt after returning")
	}
	if c.R[SP].Bits() != testRAMSize {
		t.Fatalf("SP not balanced after CALL/RET: got %#x", c.R[SP].Bits())
	}
}

func TestCPU_PushPop(t *testing.T) {
	c, _ := newCPUWithProgram([]vm.Word{
		Instr(OpPUSH, ModeImmediate, 0, ModeNone, 0), vm.IntWord(11),
		Instr(OpPUSH, ModeImmediate, 0, ModeNone, 0), vm.IntWord(22),
		Instr(OpPOP, ModeRegister, 0, ModeNone, 0),
		Instr(OpPOP, ModeRegister, 1, ModeNone, 0),
	})
	run(c, 4)
	if c.R[0].Int() != 22 || c.R[1].Int() != 11 {
		t.Fatalf("POP order got R0=%d R1=%d, want 22 11", c.R[0].Int(), c.R[1].Int())
	}
}

func TestCPU_FloatOps(t *testing.T) {
	c, _ := newCPUWithProgram([]vm.Word{
		Instr(OpFADD, ModeRegister, 0, ModeImmediate, 0), vm.FloatWord(0.5),
		Instr(OpFMUL, ModeRegister, 0, ModeImmediate, 0), vm.FloatWord(4),
		Instr(OpFSQRT, ModeRegister, 0, ModeNone, 0),
	})
	c.R[0] = vm.FloatWord(1.5)
	run(c, 3)
	want := float32(math.Sqrt(8))
	if got := c.R[0].Float(); got != want {
		t.Fatalf("float chain got %g, want %g", got, want)
	}
}

func TestCPU_FloatDomainErrorFaults(t *testing.T) {
	c, _ := newCPUWithProgram([]vm.Word{
		Instr(OpFSQRT, ModeRegister, 0, ModeNone, 0),
	})
	c.R[0] = vm.FloatWord(-1)
	before := c.R[0]
	c.Step()
	if c.R[0] != before {
		t.Fatalf("FSQRT of negative wrote result %#x", c.R[0].Bits())
	}
	c.Step()
	if c.PC != vm.FaultVectorAddress {
		t.Fatalf("no fault delivered for FSQRT of negative")
	}
}

func TestCPU_NaNOperandFaults(t *testing.T) {
	c, _ := newCPUWithProgram([]vm.Word{
		Instr(OpFADD, ModeRegister, 0, ModeImmediate, 0), vm.FloatWord(float32(math.NaN())),
	})
	c.R[0] = vm.FloatWord(1)
	c.Step()
	c.Step()
	if c.PC != vm.FaultVectorAddress {
		t.Fatalf("no fault delivered for NaN operand")
	}
}

func TestCPU_Conversions(t *testing.T) {
	c, _ := newCPUWithProgram([]vm.Word{
		Instr(OpI2F, ModeRegister, 0, ModeRegister, 1),
		Instr(OpF2I, ModeRegister, 2, ModeRegister, 3),
	})
	c.R[1] = vm.IntWord(-7)
	c.R[3] = vm.FloatWord(3.9)
	run(c, 2)
	if got := c.R[0].Float(); got != -7 {
		t.Fatalf("I2F got %g, want -7", got)
	}
	if got := c.R[2].Int(); got != 3 {
		t.Fatalf("F2I got %d, want truncated 3", got)
	}
}

func TestCPU_IllegalOpcodeFaults(t *testing.T) {
	c, _ := newCPUWithProgram([]vm.Word{vm.Word(0xFF)})
	c.Step()
	c.Step()
	if c.PC != vm.FaultVectorAddress {
		t.Fatalf("no fault for illegal opcode, PC=%#x", c.PC)
	}
}

func TestCPU_UnmappedReadFaults(t *testing.T) {
	c, _ := newCPUWithProgram([]vm.Word{
		Instr(OpMOV, ModeRegister, 0, ModeIndirect, 1), vm.IntWord(0),
	})
	c.R[1] = vm.Word(0x7F000000) // nothing mapped there
	c.Step()
	c.Step()
	if c.PC != vm.FaultVectorAddress {
		t.Fatalf("no fault for unmapped read, PC=%#x", c.PC)
	}
}

func TestCPU_HaltStopsFrame(t *testing.T) {
	c, _ := newCPUWithProgram([]vm.Word{
		Instr(OpNOP, ModeNone, 0, ModeNone, 0),
		Instr(OpNOP, ModeNone, 0, ModeNone, 0),
		Instr(OpHLT, ModeNone, 0, ModeNone, 0),
	})
	c.RunFrame()
	if !c.Halted() {
		t.Fatalf("halt flag not set")
	}
	if c.Cycles() != 3 {
		t.Fatalf("cycle counter got %d, want 3", c.Cycles())
	}
}

func TestCPU_WaitBurnsCyclesUntilFault(t *testing.T) {
	c, _ := newCPUWithProgram([]vm.Word{
		Instr(OpWAIT, ModeNone, 0, ModeNone, 0),
	})
	run(c, 5)
	if !c.Waiting() {
		t.Fatalf("wait flag not set")
	}
	if c.Cycles() != 5 {
		t.Fatalf("cycles during wait got %d, want 5", c.Cycles())
	}
	c.RaiseHardwareFault()
	c.Step()
	if c.Waiting() {
		t.Fatalf("interrupt did not clear wait")
	}
	if c.PC != vm.FaultVectorAddress {
		t.Fatalf("PC got %#x, want fault vector", c.PC)
	}
}

func TestCPU_UntouchedRegistersStayPut(t *testing.T) {
	// every instruction that writes only R0 must leave R4..R13 alone
	programs := [][]vm.Word{
		{Instr(OpMOV, ModeRegister, 0, ModeImmediate, 0), vm.IntWord(1)},
		{Instr(OpADD, ModeRegister, 0, ModeImmediate, 0), vm.IntWord(1)},
		{Instr(OpNOT, ModeRegister, 0, ModeNone, 0)},
		{Instr(OpFABS, ModeRegister, 0, ModeNone, 0)},
	}
	for pi, prog := range programs {
		c, _ := newCPUWithProgram(prog)
		for i := 4; i <= 13; i++ {
			c.R[i] = vm.IntWord(int32(0x1000 + i))
		}
		c.R[0] = vm.FloatWord(1)
		c.Step()
		for i := 4; i <= 13; i++ {
			if c.R[i].Int() != int32(0x1000+i) {
				t.Fatalf("program %d clobbered R%d", pi, i)
			}
		}
	}
}

type portStub struct {
	last  map[int32]vm.Word
	reads map[int32]vm.Word
}

func (p *portStub) ReadPort(local int32) vm.Word     { return p.reads[local] }
func (p *portStub) WritePort(local int32, v vm.Word) { p.last[local] = v }

func TestCPU_InOut(t *testing.T) {
	mem := bus.NewMemory()
	if err := mem.Attach(vm.BiosBase, vm.BiosMaxSize, ram.NewROM([]vm.Word{
		Instr(OpOUT, ModeImmediate, 0, ModeImmediate, 0), vm.IntWord(0x20), vm.IntWord(99),
		Instr(OpIN, ModeRegister, 0, ModeImmediate, 0), vm.IntWord(0x21),
	})); err != nil {
		panic(err)
	}
	io := bus.NewControl()
	stub := &portStub{last: map[int32]vm.Word{}, reads: map[int32]vm.Word{0x21: vm.IntWord(123)}}
	if err := io.Attach(0, 0x100, stub); err != nil {
		panic(err)
	}
	c := New(mem, io)
	c.Reset()
	run(c, 2)
	if got := stub.last[0x20]; got.Int() != 99 {
		t.Fatalf("OUT wrote %d, want 99", got.Int())
	}
	if c.R[0].Int() != 123 {
		t.Fatalf("IN read %d, want 123", c.R[0].Int())
	}
}
