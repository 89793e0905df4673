package vm

// QuadVertex is one corner of a textured quad in screen space. U and V are
// texel coordinates into the selected texture.
type QuadVertex struct {
	X, Y float32
	U, V float32
}

// Quad is the unit of GPU output: four vertices in the order
// top-left, top-right, bottom-left, bottom-right, plus the texture they
// sample from (-1 selects the BIOS texture).
type Quad struct {
	Vertices [4]QuadVertex
	Texture  int32
}

// VideoSink is the capability the GPU draws through. The console façade
// builds the GPU around whatever sink the host provides; the core never
// touches a window or a GL context itself.
type VideoSink interface {
	ClearScreen(color Word)
	DrawQuad(q Quad)
	SetMultiplyColor(color Word)
	SetBlendingMode(mode int32)
	SelectTexture(index int32)
	// LoadTexture hands the host a decoded RGBA pixel buffer, 4 bytes per
	// pixel, w*h*4 bytes long. Index -1 is the BIOS texture.
	LoadTexture(index int32, pixels []byte, w, h int)
	UnloadCartridgeTextures()
}

// NullVideoSink discards all GPU output. Headless runs and tests that only
// care about machine state use it.
type NullVideoSink struct{}

func (NullVideoSink) ClearScreen(Word)                    {}
func (NullVideoSink) DrawQuad(Quad)                       {}
func (NullVideoSink) SetMultiplyColor(Word)               {}
func (NullVideoSink) SetBlendingMode(int32)               {}
func (NullVideoSink) SelectTexture(int32)                 {}
func (NullVideoSink) LoadTexture(int32, []byte, int, int) {}
func (NullVideoSink) UnloadCartridgeTextures()            {}
