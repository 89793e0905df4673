package nulldev

import "github.com/v32emu/v32emu/internal/vm"

// Controller occupies otherwise unused port ranges: reads return zero and
// writes vanish.
type Controller struct{}

func NewController() *Controller { return &Controller{} }

func (*Controller) ReadPort(int32) vm.Word   { return 0 }
func (*Controller) WritePort(int32, vm.Word) {}
