package gpu

import (
	"math"

	"github.com/v32emu/v32emu/internal/vm"
)

// Local port numbers, dispatched by the control bus after subtracting the
// GPU's port base.
const (
	PortCommand = iota
	PortRemainingPixels
	PortClearColor
	PortMultiplyColor
	PortActiveBlending
	PortSelectedTexture
	PortSelectedRegion
	PortDrawingPointX
	PortDrawingPointY
	PortDrawingScaleX
	PortDrawingScaleY
	PortDrawingAngle
	PortRegionMinX
	PortRegionMinY
	PortRegionMaxX
	PortRegionMaxY
	PortRegionHotspotX
	PortRegionHotspotY
	PortCount
)

// Region is a rectangular sub-area of a texture. The hotspot is the point
// that lands on the drawing point when the region is drawn.
type Region struct {
	MinX, MinY         int32
	MaxX, MaxY         int32
	HotspotX, HotspotY int32
}

// Texture is the GPU-side record for one loaded texture: its region table.
// Pixel data lives with the video sink once forwarded.
type Texture struct {
	Regions []Region
}

func newTexture() Texture {
	return Texture{Regions: make([]Region, vm.RegionsPerTexture)}
}

// Image is a decoded RGBA pixel buffer handed over at load time.
type Image struct {
	Pixels []byte
	Width  int
	Height int
}

// GPU models the drawing processor. Selections are stored as indices into
// the owned texture tables and resolved on each access; there is no
// pointer aliasing into other controllers.
type GPU struct {
	sink vm.VideoSink

	biosTexture       Texture
	cartridgeTextures []Texture

	clearColor      vm.Word
	multiplyColor   vm.Word
	activeBlending  int32
	selectedTexture int32 // -1 selects the BIOS texture
	selectedRegion  int32
	drawingPointX   int32
	drawingPointY   int32
	drawingScaleX   float32
	drawingScaleY   float32
	drawingAngle    float32
	remainingPixels int32
}

func New(sink vm.VideoSink) *GPU {
	g := &GPU{sink: sink, biosTexture: newTexture()}
	g.Reset()
	return g
}

// Reset restores the power-on register state and tells the sink about it.
func (g *GPU) Reset() {
	g.clearColor = vm.ColorWord(0, 0, 0, 255)
	g.multiplyColor = vm.ColorWord(255, 255, 255, 255)
	g.activeBlending = vm.BlendAlpha
	g.selectedTexture = -1
	g.selectedRegion = 0
	g.drawingPointX, g.drawingPointY = 0, 0
	g.drawingScaleX, g.drawingScaleY = 1, 1
	g.drawingAngle = 0
	g.remainingPixels = vm.PixelCapacityPerFrame

	g.sink.SetMultiplyColor(g.multiplyColor)
	g.sink.SetBlendingMode(g.activeBlending)
	g.sink.SelectTexture(g.selectedTexture)
}

// FrameStart refills the per-frame pixel budget.
func (g *GPU) FrameStart() { g.remainingPixels = vm.PixelCapacityPerFrame }

// RemainingPixels reports the budget left in the current frame.
func (g *GPU) RemainingPixels() int32 { return g.remainingPixels }

// LoadBiosTexture installs the firmware texture at index -1.
func (g *GPU) LoadBiosTexture(img Image) {
	g.biosTexture = newTexture()
	g.sink.LoadTexture(-1, img.Pixels, img.Width, img.Height)
}

// LoadCartridgeTextures installs the cartridge catalogue starting at
// index 0, replacing whatever was loaded before.
func (g *GPU) LoadCartridgeTextures(images []Image) {
	g.cartridgeTextures = make([]Texture, len(images))
	for i, img := range images {
		g.cartridgeTextures[i] = newTexture()
		g.sink.LoadTexture(int32(i), img.Pixels, img.Width, img.Height)
	}
}

// UnloadCartridgeTextures drops the cartridge catalogue. The selection
// falls back to the BIOS texture.
func (g *GPU) UnloadCartridgeTextures() {
	g.cartridgeTextures = nil
	g.selectedTexture = -1
	g.sink.UnloadCartridgeTextures()
}

func (g *GPU) pointedTexture() *Texture {
	if g.selectedTexture < 0 {
		return &g.biosTexture
	}
	return &g.cartridgeTextures[g.selectedTexture]
}

func (g *GPU) pointedRegion() *Region {
	return &g.pointedTexture().Regions[g.selectedRegion]
}

func (g *GPU) ReadPort(local int32) vm.Word {
	switch local {
	case PortRemainingPixels:
		return vm.IntWord(g.remainingPixels)
	case PortClearColor:
		return g.clearColor
	case PortMultiplyColor:
		return g.multiplyColor
	case PortActiveBlending:
		return vm.IntWord(g.activeBlending)
	case PortSelectedTexture:
		return vm.IntWord(g.selectedTexture)
	case PortSelectedRegion:
		return vm.IntWord(g.selectedRegion)
	case PortDrawingPointX:
		return vm.IntWord(g.drawingPointX)
	case PortDrawingPointY:
		return vm.IntWord(g.drawingPointY)
	case PortDrawingScaleX:
		return vm.FloatWord(g.drawingScaleX)
	case PortDrawingScaleY:
		return vm.FloatWord(g.drawingScaleY)
	case PortDrawingAngle:
		return vm.FloatWord(g.drawingAngle)
	case PortRegionMinX:
		return vm.IntWord(g.pointedRegion().MinX)
	case PortRegionMinY:
		return vm.IntWord(g.pointedRegion().MinY)
	case PortRegionMaxX:
		return vm.IntWord(g.pointedRegion().MaxX)
	case PortRegionMaxY:
		return vm.IntWord(g.pointedRegion().MaxY)
	case PortRegionHotspotX:
		return vm.IntWord(g.pointedRegion().HotspotX)
	case PortRegionHotspotY:
		return vm.IntWord(g.pointedRegion().HotspotY)
	}
	// command is write-only
	return 0
}

func (g *GPU) WritePort(local int32, value vm.Word) {
	switch local {
	case PortCommand:
		g.command(value.Int())
	case PortRemainingPixels:
		// read-only
	case PortClearColor:
		g.clearColor = value
	case PortMultiplyColor:
		g.multiplyColor = value
		g.sink.SetMultiplyColor(value)
	case PortActiveBlending:
		switch value.Int() {
		case vm.BlendAlpha, vm.BlendAdd, vm.BlendSubtract:
			g.activeBlending = value.Int()
			g.sink.SetBlendingMode(value.Int())
		}
		// unknown blending modes are ignored, not stored
	case PortSelectedTexture:
		v := value.Int()
		if v < -1 || v >= int32(len(g.cartridgeTextures)) {
			return
		}
		g.selectedTexture = v
		g.sink.SelectTexture(v)
	case PortSelectedRegion:
		v := value.Int()
		if v < 0 || v >= vm.RegionsPerTexture {
			return
		}
		g.selectedRegion = v
	case PortDrawingPointX:
		g.drawingPointX = vm.ClampInt(value.Int(), -1000, vm.ScreenWidth+1000)
	case PortDrawingPointY:
		g.drawingPointY = vm.ClampInt(value.Int(), -1000, vm.ScreenHeight+1000)
	case PortDrawingScaleX:
		if value.IsFiniteFloat() {
			g.drawingScaleX = vm.ClampFloat(value.Float(), -1024, 1024)
		}
	case PortDrawingScaleY:
		if value.IsFiniteFloat() {
			g.drawingScaleY = vm.ClampFloat(value.Float(), -1024, 1024)
		}
	case PortDrawingAngle:
		if value.IsFiniteFloat() {
			g.drawingAngle = vm.ClampFloat(value.Float(), -1024, 1024)
		}
	case PortRegionMinX:
		g.pointedRegion().MinX = vm.ClampInt(value.Int(), 0, vm.TextureSize-1)
	case PortRegionMinY:
		g.pointedRegion().MinY = vm.ClampInt(value.Int(), 0, vm.TextureSize-1)
	case PortRegionMaxX:
		g.pointedRegion().MaxX = vm.ClampInt(value.Int(), 0, vm.TextureSize-1)
	case PortRegionMaxY:
		g.pointedRegion().MaxY = vm.ClampInt(value.Int(), 0, vm.TextureSize-1)
	case PortRegionHotspotX:
		g.pointedRegion().HotspotX = vm.ClampInt(value.Int(), -vm.TextureSize, 2*vm.TextureSize-1)
	case PortRegionHotspotY:
		g.pointedRegion().HotspotY = vm.ClampInt(value.Int(), -vm.TextureSize, 2*vm.TextureSize-1)
	}
}

func (g *GPU) command(code int32) {
	switch code {
	case vm.GPUCommandClearScreen:
		g.clearScreen()
	case vm.GPUCommandDrawRegion:
		g.drawRegion(false, false)
	case vm.GPUCommandDrawRegionZoomed:
		g.drawRegion(true, false)
	case vm.GPUCommandDrawRegionRotated:
		g.drawRegion(false, true)
	case vm.GPUCommandDrawRegionRotozoomed:
		g.drawRegion(true, true)
	}
	// unknown command codes are ignored
}

// spend consumes cost pixels from the frame budget. Once the budget is
// gone every later draw in the frame is dropped, which guest code can
// observe through the remaining-pixels port.
func (g *GPU) spend(cost int32) bool {
	if g.remainingPixels <= 0 {
		return false
	}
	g.remainingPixels -= cost
	if g.remainingPixels < 0 {
		g.remainingPixels = 0
	}
	return true
}

func (g *GPU) clearScreen() {
	if !g.spend(vm.ClearScreenCost) {
		return
	}
	g.sink.ClearScreen(g.clearColor)
}

// DrawCost is the budget taken by one region draw: the axis-aligned area
// after scaling and before rotation, ceil(|w*fx|) * ceil(|h*fy|). Rotation
// never changes the cost, which keeps the model deterministic.
func DrawCost(w, h int32, fx, fy float32) int32 {
	cw := int32(math.Ceil(math.Abs(float64(w) * float64(fx))))
	ch := int32(math.Ceil(math.Abs(float64(h) * float64(fy))))
	if cw < 1 {
		cw = 1
	}
	if ch < 1 {
		ch = 1
	}
	return cw * ch
}

func (g *GPU) drawRegion(zoomed, rotated bool) {
	r := g.pointedRegion()
	w := r.MaxX - r.MinX + 1
	h := r.MaxY - r.MinY + 1

	fx, fy := float32(1), float32(1)
	if zoomed {
		fx, fy = g.drawingScaleX, g.drawingScaleY
	}
	if !g.spend(DrawCost(w, h, fx, fy)) {
		return
	}

	// corner offsets relative to the hotspot, in region space
	x0 := float32(r.MinX - r.HotspotX)
	y0 := float32(r.MinY - r.HotspotY)
	corners := [4][2]float32{
		{x0, y0},
		{x0 + float32(w), y0},
		{x0, y0 + float32(h)},
		{x0 + float32(w), y0 + float32(h)},
	}
	uvs := [4][2]float32{
		{float32(r.MinX), float32(r.MinY)},
		{float32(r.MaxX + 1), float32(r.MinY)},
		{float32(r.MinX), float32(r.MaxY + 1)},
		{float32(r.MaxX + 1), float32(r.MaxY + 1)},
	}

	sin, cos := float32(0), float32(1)
	if rotated {
		s, c := math.Sincos(float64(g.drawingAngle))
		sin, cos = float32(s), float32(c)
	}

	var q vm.Quad
	q.Texture = g.selectedTexture
	for i, corner := range corners {
		x := corner[0] * fx
		y := corner[1] * fy
		xr := x*cos - y*sin
		yr := x*sin + y*cos
		q.Vertices[i] = vm.QuadVertex{
			X: xr + float32(g.drawingPointX),
			Y: yr + float32(g.drawingPointY),
			U: uvs[i][0],
			V: uvs[i][1],
		}
	}
	g.sink.DrawQuad(q)
}
