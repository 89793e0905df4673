package gamepads

import "github.com/v32emu/v32emu/internal/vm"

// Number of gamepad slots.
const Gamepads = 4

// Button bits in the pressed-buttons bitfield port.
const (
	ButtonLeft = 1 << iota
	ButtonRight
	ButtonUp
	ButtonDown
	ButtonA
	ButtonB
	ButtonX
	ButtonY
	ButtonL
	ButtonR
	ButtonStart
)

// Local control-bus ports. Connected and Buttons read from the selected
// gamepad.
const (
	PortSelectedGamepad = iota
	PortConnected
	PortButtons
	PortCount
)

// State is one pad's digital snapshot, pushed by the host once per frame.
type State struct {
	Connected bool
	Buttons   int32
}

// Controller holds up to four gamepads. The guest selects one and reads
// its snapshot; the host replaces snapshots between frames.
type Controller struct {
	selected int32
	pads     [Gamepads]State
}

func NewController() *Controller { return &Controller{} }

// Reset clears the selection and every snapshot.
func (c *Controller) Reset() {
	c.selected = 0
	c.pads = [Gamepads]State{}
}

// SetState installs a pad's snapshot. Out-of-range pads are ignored.
func (c *Controller) SetState(pad int, s State) {
	if pad < 0 || pad >= Gamepads {
		return
	}
	c.pads[pad] = s
}

func (c *Controller) ReadPort(local int32) vm.Word {
	switch local {
	case PortSelectedGamepad:
		return vm.IntWord(c.selected)
	case PortConnected:
		return vm.BoolWord(c.pads[c.selected].Connected)
	case PortButtons:
		return vm.IntWord(c.pads[c.selected].Buttons)
	}
	return 0
}

func (c *Controller) WritePort(local int32, value vm.Word) {
	if local != PortSelectedGamepad {
		return
	}
	v := value.Int()
	// out-of-range selections are ignored
	if v < 0 || v >= Gamepads {
		return
	}
	c.selected = v
}
