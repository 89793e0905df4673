package cpu

import (
	"github.com/v32emu/v32emu/internal/bus"
	"github.com/v32emu/v32emu/internal/vm"
)

// Register aliases. R14 doubles as the stack pointer and R15 as the base
// pointer; PUSH, POP, CALL and RET operate on R14 implicitly.
const (
	SP = 14
	BP = 15
)

// CPU is the V32 core: 16 general registers, a program counter, an
// instruction register, wait/halt flags and a per-frame cycle counter.
type CPU struct {
	R  [16]vm.Word
	PC uint32
	IR vm.Word

	// compare word produced by CMP, consumed by conditional jumps
	cmp int32

	waiting bool
	halted  bool

	// single interrupt source: the hardware fault line
	pendingFault bool

	cycles int32

	mem *bus.Memory
	io  *bus.Control
}

func New(mem *bus.Memory, io *bus.Control) *CPU {
	c := &CPU{mem: mem, io: io}
	mem.SetFaultHandler(c.RaiseHardwareFault)
	return c
}

// Reset returns the CPU to its power-on state: every register zero, PC at
// the BIOS entry point, no pending fault.
func (c *CPU) Reset() {
	for i := range c.R {
		c.R[i] = 0
	}
	c.PC = vm.ResetEntryAddress
	c.IR = 0
	c.cmp = 0
	c.waiting = false
	c.halted = false
	c.pendingFault = false
	c.cycles = 0
}

// RaiseHardwareFault pends the single interrupt source. The fault is
// delivered before the next instruction dispatch.
func (c *CPU) RaiseHardwareFault() { c.pendingFault = true }

func (c *CPU) Halted() bool  { return c.halted }
func (c *CPU) Waiting() bool { return c.waiting }

// Cycles reports how many cycles have run in the current frame.
func (c *CPU) Cycles() int32 { return c.cycles }

// Halt stops the machine until the next reset. The console uses it when
// powering off; the HLT instruction ends up here too.
func (c *CPU) Halt() { c.halted = true }

// RunFrame executes the frame's cycle budget. A halted CPU gives the rest
// of the frame back to the host; a waiting CPU burns cycles without
// dispatching until an interrupt arrives.
func (c *CPU) RunFrame() {
	c.cycles = 0
	for c.cycles < vm.CyclesPerFrame && !c.halted {
		c.Step()
	}
}

// Step runs one cycle: deliver a pending fault, or burn the cycle if
// waiting, or fetch and execute one instruction.
func (c *CPU) Step() {
	if c.halted {
		return
	}
	c.cycles++

	if c.pendingFault {
		c.pendingFault = false
		c.waiting = false
		c.push(vm.Word(c.PC))
		c.PC = vm.FaultVectorAddress
		return
	}
	if c.waiting {
		return
	}

	c.IR = c.mem.Read(c.PC)
	c.PC++

	opcode := c.IR.Bits() & 0xFF
	op1 := c.fetchOperand(byte(c.IR.Bits()>>16)&0x7, byte(c.IR.Bits()>>8)&0xF)
	op2 := c.fetchOperand(byte(c.IR.Bits()>>19)&0x7, byte(c.IR.Bits()>>12)&0xF)

	if opcode >= uint32(len(opcodeTable)) || opcodeTable[opcode] == nil {
		c.RaiseHardwareFault()
		return
	}
	opcodeTable[opcode](c, op1, op2)
}

// Operand addressing modes. Immediate and indirect operands consume one
// extra word from the instruction stream.
const (
	ModeNone      = 0
	ModeRegister  = 1
	ModeImmediate = 2
	ModeIndirect  = 3
)

// Instr assembles one instruction word. Operand payload words (immediate
// values, indirect offsets) follow it in the stream.
func Instr(opcode, mode1, reg1, mode2, reg2 int) vm.Word {
	return vm.Word(uint32(opcode) | uint32(reg1)<<8 | uint32(reg2)<<12 |
		uint32(mode1)<<16 | uint32(mode2)<<19)
}

type operand struct {
	mode byte
	reg  byte
	val  vm.Word // immediate value, or indirect offset
}

func (c *CPU) fetchOperand(mode, reg byte) operand {
	op := operand{mode: mode, reg: reg}
	if mode == ModeImmediate || mode == ModeIndirect {
		op.val = c.mem.Read(c.PC)
		c.PC++
	}
	return op
}

// get reads an operand's current value. An operand of mode none reads as
// zero; instruction handlers validate the modes they require.
func (c *CPU) get(op operand) vm.Word {
	switch op.mode {
	case ModeRegister:
		return c.R[op.reg]
	case ModeImmediate:
		return op.val
	case ModeIndirect:
		return c.mem.Read(c.R[op.reg].Bits() + op.val.Bits())
	}
	return 0
}

// set writes an operand's target. Writes through mode none or immediate
// are illegal and fault.
func (c *CPU) set(op operand, value vm.Word) {
	switch op.mode {
	case ModeRegister:
		c.R[op.reg] = value
	case ModeIndirect:
		c.mem.Write(c.R[op.reg].Bits()+op.val.Bits(), value)
	default:
		c.RaiseHardwareFault()
	}
}

func (c *CPU) push(value vm.Word) {
	c.R[SP] = vm.Word(c.R[SP].Bits() - 1)
	c.mem.Write(c.R[SP].Bits(), value)
}

func (c *CPU) pop() vm.Word {
	v := c.mem.Read(c.R[SP].Bits())
	c.R[SP] = vm.Word(c.R[SP].Bits() + 1)
	return v
}
