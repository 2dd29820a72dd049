package scene

import (
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// topDown is a camera straight above a floor that lies in world XZ.
func topDown() (Camera, Surface) {
	cam := Camera{
		Position: mgl64.Vec3{0, 10, 0},
		Target:   mgl64.Vec3{0, 0, 0},
		Up:       mgl64.Vec3{0, 0, -1},
		FovY:     60,
		Near:     0.1,
		Far:      100,
	}
	floor := Surface{Width: 4, Height: 8, RotationX: -math.Pi / 2}
	return cam, floor
}

func TestCentreRayHitsMiddleOfSurface(t *testing.T) {
	cam, floor := topDown()
	ray := cam.Ray(0, 0, 1)
	assert.InDelta(t, -1, ray.Dir[1], 1e-6)

	hit, ok := floor.Intersect(ray)
	require.True(t, ok)
	assert.InDelta(t, 0.5, hit.U, 1e-9)
	assert.InDelta(t, 0.5, hit.V, 1e-9)
	assert.InDelta(t, 0, hit.Point[1], 1e-6)
	assert.InDelta(t, 10-cam.Near, hit.T, 1e-6)
}

func TestUVOriginIsBottomLeft(t *testing.T) {
	_, floor := topDown()
	// Local (+1, +2) on the floor sits at world (1, 0, -2).
	hit, ok := floor.Intersect(Ray{Origin: mgl64.Vec3{1, 5, -2}, Dir: mgl64.Vec3{0, -1, 0}})
	require.True(t, ok)
	assert.InDelta(t, 0.75, hit.U, 1e-9)
	assert.InDelta(t, 0.75, hit.V, 1e-9)

	hit, ok = floor.Intersect(Ray{Origin: mgl64.Vec3{-1.5, 5, 3}, Dir: mgl64.Vec3{0, -1, 0}})
	require.True(t, ok)
	assert.InDelta(t, 0.125, hit.U, 1e-9)
	assert.InDelta(t, 0.125, hit.V, 1e-9)
}

func TestIntersectMisses(t *testing.T) {
	cam, floor := topDown()

	_, ok := floor.Intersect(cam.Ray(0.99, 0.99, 1))
	assert.False(t, ok, "corner ray lands outside the rectangle")

	_, ok = floor.Intersect(Ray{Origin: mgl64.Vec3{0, 1, 0}, Dir: mgl64.Vec3{1, 0, 0}})
	assert.False(t, ok, "parallel ray")

	_, ok = floor.Intersect(Ray{Origin: mgl64.Vec3{0, 1, 0}, Dir: mgl64.Vec3{0, 1, 0}})
	assert.False(t, ok, "surface behind the ray")

	_, ok = Surface{}.Intersect(Ray{Origin: mgl64.Vec3{0, 1, 0}, Dir: mgl64.Vec3{0, -1, 0}})
	assert.False(t, ok, "empty surface")
}

func TestIntersectIsDoubleSided(t *testing.T) {
	_, floor := topDown()
	hit, ok := floor.Intersect(Ray{Origin: mgl64.Vec3{0, -3, 0}, Dir: mgl64.Vec3{0, 1, 0}})
	require.True(t, ok)
	assert.InDelta(t, 0.5, hit.U, 1e-9)
	assert.InDelta(t, 0.5, hit.V, 1e-9)
}

func TestDefaultSceneHitsBelowHorizon(t *testing.T) {
	cam, surf := DefaultCamera(), DefaultSurface()
	aspect := Aspect(1280, 720)

	hit, ok := surf.Intersect(cam.Ray(0, -0.5, aspect))
	require.True(t, ok)
	assert.True(t, hit.V > 0 && hit.V < 1)
	assert.InDelta(t, 0.5, hit.U, 1e-9)

	_, ok = surf.Intersect(cam.Ray(0, 0.9, aspect))
	assert.False(t, ok, "rays above the horizon never reach the surface")
}

func TestBasisIsOrthonormal(t *testing.T) {
	tan, bit, n := DefaultSurface().Basis()
	assert.InDelta(t, 1, tan.Len(), 1e-9)
	assert.InDelta(t, 1, bit.Len(), 1e-9)
	assert.InDelta(t, 0, tan.Dot(n), 1e-9)
	assert.InDelta(t, 0, bit.Dot(n), 1e-9)
	assert.True(t, tan.Cross(bit).ApproxEqualThreshold(n, 1e-9))
}

func TestNDC(t *testing.T) {
	x, y, ok := NDC(0, 0, 200, 100)
	require.True(t, ok)
	assert.Equal(t, -1.0, x)
	assert.Equal(t, 1.0, y)

	x, y, ok = NDC(100, 50, 200, 100)
	require.True(t, ok)
	assert.Equal(t, 0.0, x)
	assert.Equal(t, 0.0, y)

	_, _, ok = NDC(1, 1, 0, 10)
	assert.False(t, ok)
	assert.Equal(t, 1.0, Aspect(0, 0))
}
