package bus

import (
	"fmt"
	"sort"

	"github.com/v32emu/v32emu/internal/vm"
)

// Devices expose whichever of these four capabilities they implement.
// The bus dispatches through the mapping table below, never through type
// switches on concrete controllers.

// PortReader answers control-bus reads. Local port numbers start at 0.
type PortReader interface {
	ReadPort(local int32) vm.Word
}

// PortWriter accepts control-bus writes. Writes to read-only registers
// are ignored by the device itself.
type PortWriter interface {
	WritePort(local int32, value vm.Word)
}

// AddressReader answers memory-bus reads at a local word address. It
// reports false when the address is inside the mapped range but beyond
// the device's current contents (a ROM slot shorter than its window),
// which the bus turns into a fault.
type AddressReader interface {
	ReadAddress(local uint32) (vm.Word, bool)
}

// AddressWriter accepts memory-bus writes. It reports false when the
// device cannot be written (ROM), which the bus turns into a fault.
type AddressWriter interface {
	WriteAddress(local uint32, value vm.Word) bool
}

type entry struct {
	base uint32
	size uint32
	dev  any
}

// table is the shared base/size/device mapping used by both buses.
// Entries are kept sorted by base and never overlap.
type table struct {
	entries []entry
}

func (t *table) attach(base, size uint32, dev any) error {
	if size == 0 {
		return fmt.Errorf("bus: device at %#x has zero size", base)
	}
	for _, e := range t.entries {
		if base < e.base+e.size && e.base < base+size {
			return fmt.Errorf("bus: range %#x+%#x overlaps device at %#x", base, size, e.base)
		}
	}
	t.entries = append(t.entries, entry{base: base, size: size, dev: dev})
	sort.Slice(t.entries, func(i, j int) bool { return t.entries[i].base < t.entries[j].base })
	return nil
}

// find locates the entry containing addr by binary search on base.
func (t *table) find(addr uint32) (entry, bool) {
	i := sort.Search(len(t.entries), func(i int) bool { return t.entries[i].base > addr })
	if i == 0 {
		return entry{}, false
	}
	e := t.entries[i-1]
	if addr-e.base >= e.size {
		return entry{}, false
	}
	return e, true
}

// Memory is the word-addressed memory bus. Unmapped accesses and writes to
// read-only devices raise a hardware fault on the CPU instead of panicking.
type Memory struct {
	table
	fault func()
}

func NewMemory() *Memory { return &Memory{} }

// SetFaultHandler installs the CPU's fault entry. The console wires this
// up before the first instruction runs.
func (m *Memory) SetFaultHandler(fn func()) { m.fault = fn }

// Attach maps dev at [base, base+size). dev must implement AddressReader.
func (m *Memory) Attach(base, size uint32, dev AddressReader) error {
	return m.attach(base, size, dev)
}

func (m *Memory) raiseFault() {
	if m.fault != nil {
		m.fault()
	}
}

func (m *Memory) Read(addr uint32) vm.Word {
	e, ok := m.find(addr)
	if !ok {
		m.raiseFault()
		return 0
	}
	v, ok := e.dev.(AddressReader).ReadAddress(addr - e.base)
	if !ok {
		m.raiseFault()
		return 0
	}
	return v
}

func (m *Memory) Write(addr uint32, value vm.Word) {
	e, ok := m.find(addr)
	if !ok {
		m.raiseFault()
		return
	}
	w, ok := e.dev.(AddressWriter)
	if !ok || !w.WriteAddress(addr-e.base, value) {
		m.raiseFault()
	}
}

// Control is the port-addressed I/O bus. Unmapped ports read as zero and
// swallow writes; in a fully wired console the null controller occupies
// every unused range anyway.
type Control struct {
	table
}

func NewControl() *Control { return &Control{} }

// Attach maps dev's local port range [0, size) at base. dev may implement
// either or both of PortReader and PortWriter.
func (c *Control) Attach(base, size uint32, dev any) error {
	return c.attach(base, size, dev)
}

func (c *Control) Read(port uint32) vm.Word {
	e, ok := c.find(port)
	if !ok {
		return 0
	}
	r, ok := e.dev.(PortReader)
	if !ok {
		return 0
	}
	return r.ReadPort(int32(port - e.base))
}

func (c *Control) Write(port uint32, value vm.Word) {
	e, ok := c.find(port)
	if !ok {
		return
	}
	if w, ok := e.dev.(PortWriter); ok {
		w.WritePort(int32(port-e.base), value)
	}
}
