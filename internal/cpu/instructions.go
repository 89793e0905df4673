package cpu

import (
	"math"

	"github.com/v32emu/v32emu/internal/vm"
)

// Opcode numbers. The low byte of every instruction word selects one of
// these; anything outside the table is an illegal opcode and faults.
const (
	OpNOP = iota
	OpHLT
	OpWAIT
	OpMOV
	OpPUSH
	OpPOP
	OpADD
	OpSUB
	OpMUL
	OpDIV
	OpMOD
	OpAND
	OpOR
	OpXOR
	OpNOT
	OpSHL
	OpSHR
	OpCMP
	OpJMP
	OpJEQ
	OpJNE
	OpJLT
	OpJLE
	OpJGT
	OpJGE
	OpCALL
	OpRET
	OpFADD
	OpFSUB
	OpFMUL
	OpFDIV
	OpFSQRT
	OpFSIN
	OpFCOS
	OpFPOW
	OpFABS
	OpI2F
	OpF2I
	OpIN
	OpOUT
	opCount
)

// Dense dispatch table keyed by opcode. Every handler accounts for exactly
// one cycle; bus traffic inside the handler is free.
var opcodeTable = [opCount]func(*CPU, operand, operand){
	OpNOP:   opNOP,
	OpHLT:   opHLT,
	OpWAIT:  opWAIT,
	OpMOV:   opMOV,
	OpPUSH:  opPUSH,
	OpPOP:   opPOP,
	OpADD:   opADD,
	OpSUB:   opSUB,
	OpMUL:   opMUL,
	OpDIV:   opDIV,
	OpMOD:   opMOD,
	OpAND:   opAND,
	OpOR:    opOR,
	OpXOR:   opXOR,
	OpNOT:   opNOT,
	OpSHL:   opSHL,
	OpSHR:   opSHR,
	OpCMP:   opCMP,
	OpJMP:   opJMP,
	OpJEQ:   opJEQ,
	OpJNE:   opJNE,
	OpJLT:   opJLT,
	OpJLE:   opJLE,
	OpJGT:   opJGT,
	OpJGE:   opJGE,
	OpCALL:  opCALL,
	OpRET:   opRET,
	OpFADD:  opFADD,
	OpFSUB:  opFSUB,
	OpFMUL:  opFMUL,
	OpFDIV:  opFDIV,
	OpFSQRT: opFSQRT,
	OpFSIN:  opFSIN,
	OpFCOS:  opFCOS,
	OpFPOW:  opFPOW,
	OpFABS:  opFABS,
	OpI2F:   opI2F,
	OpF2I:   opF2I,
	OpIN:    opIN,
	OpOUT:   opOUT,
}

func opNOP(c *CPU, _, _ operand) {}

func opHLT(c *CPU, _, _ operand) { c.halted = true }

func opWAIT(c *CPU, _, _ operand) { c.waiting = true }

func opMOV(c *CPU, dst, src operand) { c.set(dst, c.get(src)) }

func opPUSH(c *CPU, src, _ operand) { c.push(c.get(src)) }

func opPOP(c *CPU, dst, _ operand) { c.set(dst, c.pop()) }

func opADD(c *CPU, dst, src operand) {
	c.set(dst, vm.IntWord(c.get(dst).Int()+c.get(src).Int()))
}

func opSUB(c *CPU, dst, src operand) {
	c.set(dst, vm.IntWord(c.get(dst).Int()-c.get(src).Int()))
}

func opMUL(c *CPU, dst, src operand) {
	c.set(dst, vm.IntWord(c.get(dst).Int()*c.get(src).Int()))
}

func opDIV(c *CPU, dst, src operand) {
	d := c.get(src).Int()
	if d == 0 {
		// sentinel result, then the fault
		c.set(dst, 0)
		c.RaiseHardwareFault()
		return
	}
	c.set(dst, vm.IntWord(c.get(dst).Int()/d))
}

func opMOD(c *CPU, dst, src operand) {
	d := c.get(src).Int()
	if d == 0 {
		c.set(dst, 0)
		c.RaiseHardwareFault()
		return
	}
	c.set(dst, vm.IntWord(c.get(dst).Int()%d))
}

func opAND(c *CPU, dst, src operand) {
	c.set(dst, vm.Word(c.get(dst).Bits()&c.get(src).Bits()))
}

func opOR(c *CPU, dst, src operand) {
	c.set(dst, vm.Word(c.get(dst).Bits()|c.get(src).Bits()))
}

func opXOR(c *CPU, dst, src operand) {
	c.set(dst, vm.Word(c.get(dst).Bits()^c.get(src).Bits()))
}

func opNOT(c *CPU, dst, _ operand) {
	c.set(dst, vm.Word(^c.get(dst).Bits()))
}

func opSHL(c *CPU, dst, src operand) {
	c.set(dst, vm.Word(c.get(dst).Bits()<<(c.get(src).Bits()&31)))
}

func opSHR(c *CPU, dst, src operand) {
	c.set(dst, vm.Word(c.get(dst).Bits()>>(c.get(src).Bits()&31)))
}

func opCMP(c *CPU, a, b operand) {
	va, vb := c.get(a).Int(), c.get(b).Int()
	switch {
	case va < vb:
		c.cmp = -1
	case va > vb:
		c.cmp = 1
	default:
		c.cmp = 0
	}
}

func (c *CPU) jump(target operand) { c.PC = c.get(target).Bits() }

func opJMP(c *CPU, target, _ operand) { c.jump(target) }

func opJEQ(c *CPU, target, _ operand) {
	if c.cmp == 0 {
		c.jump(target)
	}
}

func opJNE(c *CPU, target, _ operand) {
	if c.cmp != 0 {
		c.jump(target)
	}
}

func opJLT(c *CPU, target, _ operand) {
	if c.cmp < 0 {
		c.jump(target)
	}
}

func opJLE(c *CPU, target, _ operand) {
	if c.cmp <= 0 {
		c.jump(target)
	}
}

func opJGT(c *CPU, target, _ operand) {
	if c.cmp > 0 {
		c.jump(target)
	}
}

func opJGE(c *CPU, target, _ operand) {
	if c.cmp >= 0 {
		c.jump(target)
	}
}

func opCALL(c *CPU, target, _ operand) {
	c.push(vm.Word(c.PC))
	c.jump(target)
}

func opRET(c *CPU, _, _ operand) { c.PC = c.pop().Bits() }

// floatBinary applies f to two finite float operands. A NaN or infinite
// operand or result is a domain error: nothing is written and the fault
// line is raised.
func (c *CPU) floatBinary(dst, src operand, f func(a, b float32) float32) {
	a, b := c.get(dst), c.get(src)
	if !a.IsFiniteFloat() || !b.IsFiniteFloat() {
		c.RaiseHardwareFault()
		return
	}
	r := vm.FloatWord(f(a.Float(), b.Float()))
	if !r.IsFiniteFloat() {
		c.RaiseHardwareFault()
		return
	}
	c.set(dst, r)
}

func (c *CPU) floatUnary(dst operand, f func(a float32) float32) {
	a := c.get(dst)
	if !a.IsFiniteFloat() {
		c.RaiseHardwareFault()
		return
	}
	r := vm.FloatWord(f(a.Float()))
	if !r.IsFiniteFloat() {
		c.RaiseHardwareFault()
		return
	}
	c.set(dst, r)
}

func opFADD(c *CPU, dst, src operand) {
	c.floatBinary(dst, src, func(a, b float32) float32 { return a + b })
}

func opFSUB(c *CPU, dst, src operand) {
	c.floatBinary(dst, src, func(a, b float32) float32 { return a - b })
}

func opFMUL(c *CPU, dst, src operand) {
	c.floatBinary(dst, src, func(a, b float32) float32 { return a * b })
}

func opFDIV(c *CPU, dst, src operand) {
	c.floatBinary(dst, src, func(a, b float32) float32 { return a / b })
}

func opFSQRT(c *CPU, dst, _ operand) {
	c.floatUnary(dst, func(a float32) float32 { return float32(math.Sqrt(float64(a))) })
}

func opFSIN(c *CPU, dst, _ operand) {
	c.floatUnary(dst, func(a float32) float32 { return float32(math.Sin(float64(a))) })
}

func opFCOS(c *CPU, dst, _ operand) {
	c.floatUnary(dst, func(a float32) float32 { return float32(math.Cos(float64(a))) })
}

func opFPOW(c *CPU, dst, src operand) {
	c.floatBinary(dst, src, func(a, b float32) float32 { return float32(math.Pow(float64(a), float64(b))) })
}

func opFABS(c *CPU, dst, _ operand) {
	c.floatUnary(dst, func(a float32) float32 { return float32(math.Abs(float64(a))) })
}

func opI2F(c *CPU, dst, src operand) {
	c.set(dst, vm.FloatWord(float32(c.get(src).Int())))
}

func opF2I(c *CPU, dst, src operand) {
	v := c.get(src)
	if !v.IsFiniteFloat() {
		c.RaiseHardwareFault()
		return
	}
	// truncate toward zero, saturating at the int32 range
	f := float64(v.Float())
	switch {
	case f > math.MaxInt32:
		c.set(dst, vm.IntWord(math.MaxInt32))
	case f < math.MinInt32:
		c.set(dst, vm.IntWord(math.MinInt32))
	default:
		c.set(dst, vm.IntWord(int32(f)))
	}
}

func opIN(c *CPU, dst, port operand) {
	c.set(dst, c.io.Read(c.get(port).Bits()))
}

func opOUT(c *CPU, port, src operand) {
	c.io.Write(c.get(port).Bits(), c.get(src))
}
