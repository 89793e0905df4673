package timer

import (
	"time"

	"github.com/v32emu/v32emu/internal/vm"
)

// Local control-bus ports. All four are read-only.
const (
	PortCurrentDate = iota
	PortCurrentTime
	PortFrameCounter
	PortCycleCounter
	PortCount
)

// Controller exposes wall-clock date/time plus the frame and cycle
// counters. The cycle counter belongs to the CPU; the console injects an
// accessor at wire-up. The clock is injectable so tests stay
// deterministic.
type Controller struct {
	frameCounter int32
	cycleCounter func() int32
	now          func() time.Time
}

func NewController(cycleCounter func() int32) *Controller {
	return &Controller{cycleCounter: cycleCounter, now: time.Now}
}

// SetClock overrides the wall clock source.
func (c *Controller) SetClock(now func() time.Time) { c.now = now }

// Reset rewinds the frame counter.
func (c *Controller) Reset() { c.frameCounter = 0 }

// ChangeFrame advances the frame counter at each frame boundary.
func (c *Controller) ChangeFrame() { c.frameCounter++ }

func (c *Controller) FrameCounter() int32 { return c.frameCounter }

func (c *Controller) ReadPort(local int32) vm.Word {
	switch local {
	case PortCurrentDate:
		// days since the Unix epoch
		return vm.IntWord(int32(c.now().Unix() / 86400))
	case PortCurrentTime:
		// seconds since local midnight
		h, m, s := c.now().Clock()
		return vm.IntWord(int32(h*3600 + m*60 + s))
	case PortFrameCounter:
		return vm.IntWord(c.frameCounter)
	case PortCycleCounter:
		return vm.IntWord(c.cycleCounter())
	}
	return 0
}
