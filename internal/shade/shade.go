// Package shade is the reference surface renderer: every output pixel is cast
// through the camera onto the surface and lit using the ripple height under it.
package shade

import (
	"errors"
	"image/color"
	"math"

	"github.com/Distortions81/ripple-field/internal/ripple"
	"github.com/Distortions81/ripple-field/internal/scene"
	"github.com/go-gl/mathgl/mgl64"
)

// ErrShortBuffer is returned when the destination cannot hold a frame.
var ErrShortBuffer = errors.New("shade: destination buffer too small")

// Style holds the lighting constants.
type Style struct {
	NormalStrength float64
	NormalMix      float64
	TintStrength   float64

	Deep, Shallow mgl64.Vec3
	Sky, Depth    mgl64.Vec3
	Specular      mgl64.Vec3
	Background    mgl64.Vec3

	Light        mgl64.Vec3
	FresnelBias  float64
	FresnelPower float64
	SpecStrength float64
	Shininess    float64
	EnvBlend     float64
	Opacity      float64
}

// DefaultStyle is the pale water look.
func DefaultStyle() Style {
	return Style{
		NormalStrength: 30,
		NormalMix:      0.55,
		TintStrength:   0.12,
		Deep:           Hex(0xb8cfe0),
		Shallow:        Hex(0xe3f2ff),
		Sky:            Hex(0xdbe9f7),
		Depth:          Hex(0x41607a),
		Specular:       Hex(0xf5f9ff),
		Background:     Hex(0x020617),
		Light:          mgl64.Vec3{0.3, 1, 0.2}.Normalize(),
		FresnelBias:    0.08,
		FresnelPower:   4,
		SpecStrength:   0.8,
		Shininess:      32,
		EnvBlend:       0.6,
		Opacity:        0.25,
	}
}

// Hex converts 0xRRGGBB to linear [0,1] components.
func Hex(rgb uint32) mgl64.Vec3 {
	return mgl64.Vec3{
		float64(rgb>>16&0xff) / 255,
		float64(rgb>>8&0xff) / 255,
		float64(rgb&0xff) / 255,
	}
}

type texel struct {
	u, v float64
	// view points from the surface towards the camera.
	view mgl64.Vec3
	hit  bool
}

// Shader renders a height field through a fixed camera and surface. The
// per-pixel ray casts are cached and only recomputed on Resize.
type Shader struct {
	style   Style
	camera  scene.Camera
	surface scene.Surface
	tangent mgl64.Vec3
	bitan   mgl64.Vec3
	normal  mgl64.Vec3

	width, height int
	cache         []texel
	coverage      int
}

// New builds a shader for a width×height output.
func New(style Style, cam scene.Camera, surf scene.Surface, width, height int) *Shader {
	s := &Shader{style: style, camera: cam, surface: surf}
	s.tangent, s.bitan, s.normal = surf.Basis()
	s.Resize(width, height)
	return s
}

// Resize rebuilds the ray cache for a new output size.
func (s *Shader) Resize(width, height int) {
	if width < 0 {
		width = 0
	}
	if height < 0 {
		height = 0
	}
	if width == s.width && height == s.height && s.cache != nil {
		return
	}
	s.width, s.height = width, height
	s.cache = make([]texel, width*height)
	s.coverage = 0
	aspect := scene.Aspect(width, height)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			nx, ny, _ := scene.NDC(float64(x)+0.5, float64(y)+0.5, width, height)
			hit, ok := s.surface.Intersect(s.camera.Ray(nx, ny, aspect))
			if !ok {
				continue
			}
			s.cache[y*width+x] = texel{
				u:    hit.U,
				v:    hit.V,
				view: s.camera.Position.Sub(hit.Point).Normalize(),
				hit:  true,
			}
			s.coverage++
		}
	}
}

// Size returns the output dimensions.
func (s *Shader) Size() (int, int) { return s.width, s.height }

// Coverage returns the fraction of pixels that land on the surface.
func (s *Shader) Coverage() float64 {
	if len(s.cache) == 0 {
		return 0
	}
	return float64(s.coverage) / float64(len(s.cache))
}

// UV reports the surface coordinates under pixel (x, y).
func (s *Shader) UV(x, y int) (u, v float64, ok bool) {
	if x < 0 || y < 0 || x >= s.width || y >= s.height {
		return 0, 0, false
	}
	t := s.cache[y*s.width+x]
	return t.u, t.v, t.hit
}

// Shade writes an RGBA frame into dst, which must hold width·height·4 bytes.
func (s *Shader) Shade(v ripple.View, dst []byte) error {
	if len(dst) < len(s.cache)*4 {
		return ErrShortBuffer
	}
	for i := range s.cache {
		c := s.texel(v, &s.cache[i])
		o := i * 4
		dst[o] = c.R
		dst[o+1] = c.G
		dst[o+2] = c.B
		dst[o+3] = c.A
	}
	return nil
}

// At shades a single pixel.
func (s *Shader) At(v ripple.View, x, y int) color.RGBA {
	if x < 0 || y < 0 || x >= s.width || y >= s.height {
		return toRGBA(s.style.Background)
	}
	return s.texel(v, &s.cache[y*s.width+x])
}

func (s *Shader) texel(v ripple.View, t *texel) color.RGBA {
	st := &s.style
	if !t.hit {
		return toRGBA(st.Background)
	}

	du := 1 / float64(v.Width())
	dv := 1 / float64(v.Height())
	h := float64(v.Sample(t.u, t.v))
	hx := float64(v.Sample(t.u+du, t.v)) - h
	hy := float64(v.Sample(t.u, t.v+dv)) - h

	rn := mgl64.Vec3{-hx * st.NormalStrength, 1, -hy * st.NormalStrength}.Normalize()
	flat := mgl64.Vec3{0, 0, 1}
	nt := lerp3(flat, rn, st.NormalMix).Normalize()
	n := s.tangent.Mul(nt[0]).Add(s.bitan.Mul(nt[1])).Add(s.normal.Mul(nt[2])).Normalize()

	light := mgl64.Clamp(n.Dot(st.Light), 0, 1)
	base := lerp3(st.Deep, st.Shallow, math.Pow(light, 1.5))
	tint := (h - 0.5) * st.TintStrength
	base = base.Add(mgl64.Vec3{tint, tint, tint})

	nv := math.Max(n.Dot(t.view), 0)
	fresnel := mgl64.Clamp(st.FresnelBias+math.Pow(1-nv, st.FresnelPower), 0, 1)
	env := lerp3(st.Depth, st.Sky, fresnel)
	col := lerp3(base, env, st.EnvBlend)

	half := st.Light.Add(t.view).Normalize()
	spec := math.Pow(math.Max(n.Dot(half), 0), st.Shininess) * st.SpecStrength
	col = col.Add(st.Specular.Mul(spec))

	return toRGBA(lerp3(st.Background, col, st.Opacity))
}

func lerp3(a, b mgl64.Vec3, t float64) mgl64.Vec3 {
	return a.Add(b.Sub(a).Mul(t))
}

func toRGBA(c mgl64.Vec3) color.RGBA {
	return color.RGBA{
		R: channel(c[0]),
		G: channel(c[1]),
		B: channel(c[2]),
		A: 0xff,
	}
}

func channel(v float64) uint8 {
	return uint8(mgl64.Clamp(v, 0, 1)*255 + 0.5)
}
