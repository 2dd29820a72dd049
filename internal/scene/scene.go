// Package scene holds the camera and the rippled surface the pointer is cast
// against.
package scene

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

const epsilon = 1e-9

// Ray is a half line in world space. Dir is unit length.
type Ray struct {
	Origin mgl64.Vec3
	Dir    mgl64.Vec3
}

// At returns the point at distance t along the ray.
func (r Ray) At(t float64) mgl64.Vec3 {
	return r.Origin.Add(r.Dir.Mul(t))
}

// Camera is a perspective camera.
type Camera struct {
	Position mgl64.Vec3
	Target   mgl64.Vec3
	Up       mgl64.Vec3
	// FovY is the vertical field of view in degrees.
	FovY      float64
	Near, Far float64
}

// DefaultCamera looks down -Z from slightly above the surface.
func DefaultCamera() Camera {
	return Camera{
		Position: mgl64.Vec3{0, 2, 15},
		Target:   mgl64.Vec3{0, 2, 0},
		Up:       mgl64.Vec3{0, 1, 0},
		FovY:     70,
		Near:     0.1,
		Far:      100,
	}
}

// View returns the world to camera transform.
func (c Camera) View() mgl64.Mat4 {
	return mgl64.LookAtV(c.Position, c.Target, c.Up)
}

// Projection returns the perspective transform for the given aspect ratio.
func (c Camera) Projection(aspect float64) mgl64.Mat4 {
	if aspect <= 0 {
		aspect = 1
	}
	return mgl64.Perspective(mgl64.DegToRad(c.FovY), aspect, c.Near, c.Far)
}

// Ray unprojects a point in normalized device coordinates into a world ray
// starting on the near plane.
func (c Camera) Ray(ndcX, ndcY, aspect float64) Ray {
	inv := c.Projection(aspect).Mul4(c.View()).Inv()

	near := inv.Mul4x1(mgl64.Vec4{ndcX, ndcY, -1, 1})
	far := inv.Mul4x1(mgl64.Vec4{ndcX, ndcY, 1, 1})
	near = near.Mul(1 / near[3])
	far = far.Mul(1 / far[3])

	origin := near.Vec3()
	return Ray{Origin: origin, Dir: far.Vec3().Sub(origin).Normalize()}
}

// NDC maps a device pixel to normalized device coordinates with +Y up.
// ok is false for an empty viewport.
func NDC(px, py float64, width, height int) (x, y float64, ok bool) {
	if width <= 0 || height <= 0 {
		return 0, 0, false
	}
	x = 2*px/float64(width) - 1
	y = 1 - 2*py/float64(height)
	return x, y, true
}

// Aspect returns width/height, or 1 for an empty viewport.
func Aspect(width, height int) float64 {
	if width <= 0 || height <= 0 {
		return 1
	}
	return float64(width) / float64(height)
}

// Hit describes a ray/surface intersection.
type Hit struct {
	// U, V are surface coordinates in [0,1]² with the origin at the bottom
	// left corner of the plane.
	U, V float64
	// T is the distance along the ray.
	T     float64
	Point mgl64.Vec3
}

// Surface is a rectangle of Width×Height lying in its local XY plane, placed
// in the world by a translation and a rotation about X.
type Surface struct {
	Width, Height float64
	Position      mgl64.Vec3
	// RotationX is in radians.
	RotationX float64
}

// DefaultSurface is the wide strip the ripples are drawn on.
func DefaultSurface() Surface {
	return Surface{
		Width:     100,
		Height:    24,
		Position:  mgl64.Vec3{0, -2, 0},
		RotationX: 1.7,
	}
}

// Model returns the local to world transform.
func (s Surface) Model() mgl64.Mat4 {
	return mgl64.Translate3D(s.Position[0], s.Position[1], s.Position[2]).
		Mul4(mgl64.HomogRotate3DX(s.RotationX))
}

// Basis returns the world space tangent, bitangent and normal of the plane.
func (s Surface) Basis() (t, b, n mgl64.Vec3) {
	rot := mgl64.HomogRotate3DX(s.RotationX)
	t = rot.Mul4x1(mgl64.Vec4{1, 0, 0, 0}).Vec3()
	b = rot.Mul4x1(mgl64.Vec4{0, 1, 0, 0}).Vec3()
	n = rot.Mul4x1(mgl64.Vec4{0, 0, 1, 0}).Vec3()
	return t, b, n
}

// Intersect casts r against both faces of the surface.
func (s Surface) Intersect(r Ray) (Hit, bool) {
	if s.Width <= 0 || s.Height <= 0 {
		return Hit{}, false
	}
	inv := s.Model().Inv()
	o := inv.Mul4x1(r.Origin.Vec4(1)).Vec3()
	d := inv.Mul4x1(r.Dir.Vec4(0)).Vec3()
	if math.Abs(d[2]) < epsilon {
		return Hit{}, false
	}
	t := -o[2] / d[2]
	if t < 0 {
		return Hit{}, false
	}
	x := o[0] + d[0]*t
	y := o[1] + d[1]*t
	if math.Abs(x) > s.Width/2 || math.Abs(y) > s.Height/2 {
		return Hit{}, false
	}
	return Hit{
		U:     clamp01(x/s.Width + 0.5),
		V:     clamp01(y/s.Height + 0.5),
		T:     t,
		Point: r.At(t),
	}, true
}

func clamp01(v float64) float64 {
	return mgl64.Clamp(v, 0, 1)
}
