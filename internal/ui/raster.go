package ui

import (
	"math"

	"github.com/v32emu/v32emu/internal/vm"
)

type texImage struct {
	pix  []byte
	w, h int
}

// Renderer is a software video sink: it rasterizes the GPU's quads into
// an RGBA framebuffer that both the windowed and the headless front-ends
// read back. It implements vm.VideoSink.
type Renderer struct {
	pix      []byte
	textures map[int32]*texImage
	selected int32
	multiply vm.Word
	blend    int32
}

func NewRenderer() *Renderer {
	return &Renderer{
		pix:      make([]byte, vm.ScreenWidth*vm.ScreenHeight*4),
		textures: make(map[int32]*texImage),
		selected: -1,
		multiply: vm.ColorWord(255, 255, 255, 255),
	}
}

// Pixels exposes the framebuffer: RGBA, ScreenWidth by ScreenHeight.
func (r *Renderer) Pixels() []byte { return r.pix }

func (r *Renderer) ClearScreen(color vm.Word) {
	cr, cg, cb, _ := color.RGBA()
	for i := 0; i < len(r.pix); i += 4 {
		r.pix[i] = cr
		r.pix[i+1] = cg
		r.pix[i+2] = cb
		r.pix[i+3] = 255
	}
}

func (r *Renderer) SetMultiplyColor(color vm.Word) { r.multiply = color }
func (r *Renderer) SetBlendingMode(mode int32)     { r.blend = mode }
func (r *Renderer) SelectTexture(index int32)      { r.selected = index }

func (r *Renderer) LoadTexture(index int32, pixels []byte, w, h int) {
	pix := make([]byte, len(pixels))
	copy(pix, pixels)
	r.textures[index] = &texImage{pix: pix, w: w, h: h}
}

func (r *Renderer) UnloadCartridgeTextures() {
	for idx := range r.textures {
		if idx >= 0 {
			delete(r.textures, idx)
		}
	}
	r.selected = -1
}

// DrawQuad maps the quad's texture area onto the framebuffer. Quads are
// parallelograms (rotated, scaled rectangles), so an inverse affine map
// from the first three vertices covers every pixel.
func (r *Renderer) DrawQuad(q vm.Quad) {
	tex := r.textures[q.Texture]
	if tex == nil {
		return
	}

	v0, v1, v2 := q.Vertices[0], q.Vertices[1], q.Vertices[2]
	e1x, e1y := v1.X-v0.X, v1.Y-v0.Y
	e2x, e2y := v2.X-v0.X, v2.Y-v0.Y
	det := e1x*e2y - e1y*e2x
	if det == 0 {
		return
	}

	minX, minY := float32(math.Inf(1)), float32(math.Inf(1))
	maxX, maxY := float32(math.Inf(-1)), float32(math.Inf(-1))
	for _, v := range q.Vertices {
		minX = min(minX, v.X)
		minY = min(minY, v.Y)
		maxX = max(maxX, v.X)
		maxY = max(maxY, v.Y)
	}
	x0 := clampScreen(int(math.Floor(float64(minX))), vm.ScreenWidth)
	x1 := clampScreen(int(math.Ceil(float64(maxX))), vm.ScreenWidth)
	y0 := clampScreen(int(math.Floor(float64(minY))), vm.ScreenHeight)
	y1 := clampScreen(int(math.Ceil(float64(maxY))), vm.ScreenHeight)

	mr, mg, mb, ma := r.multiply.RGBA()
	for py := y0; py < y1; py++ {
		for px := x0; px < x1; px++ {
			dx := float32(px) + 0.5 - v0.X
			dy := float32(py) + 0.5 - v0.Y
			a := (dx*e2y - dy*e2x) / det
			b := (dy*e1x - dx*e1y) / det
			if a < 0 || a > 1 || b < 0 || b > 1 {
				continue
			}
			u := v0.U + a*(v1.U-v0.U) + b*(v2.U-v0.U)
			v := v0.V + a*(v1.V-v0.V) + b*(v2.V-v0.V)
			tx := clampScreen(int(u), tex.w)
			ty := clampScreen(int(v), tex.h)
			if tx >= tex.w {
				tx = tex.w - 1
			}
			if ty >= tex.h {
				ty = tex.h - 1
			}
			si := (ty*tex.w + tx) * 4
			sr := int32(tex.pix[si]) * int32(mr) / 255
			sg := int32(tex.pix[si+1]) * int32(mg) / 255
			sb := int32(tex.pix[si+2]) * int32(mb) / 255
			sa := int32(tex.pix[si+3]) * int32(ma) / 255

			di := (py*vm.ScreenWidth + px) * 4
			dr, dg, db := int32(r.pix[di]), int32(r.pix[di+1]), int32(r.pix[di+2])
			var or, og, ob int32
			switch r.blend {
			case vm.BlendAdd:
				or = dr + sr*sa/255
				og = dg + sg*sa/255
				ob = db + sb*sa/255
			case vm.BlendSubtract:
				or = dr - sr*sa/255
				og = dg - sg*sa/255
				ob = db - sb*sa/255
			default: // alpha
				or = (sr*sa + dr*(255-sa)) / 255
				og = (sg*sa + dg*(255-sa)) / 255
				ob = (sb*sa + db*(255-sa)) / 255
			}
			r.pix[di] = clampByte(or)
			r.pix[di+1] = clampByte(og)
			r.pix[di+2] = clampByte(ob)
			r.pix[di+3] = 255
		}
	}
}

func clampScreen(v, limit int) int {
	if v < 0 {
		return 0
	}
	if v > limit {
		return limit
	}
	return v
}

func clampByte(v int32) byte {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return byte(v)
}
