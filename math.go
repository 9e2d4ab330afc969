package vtstream

import (
	"math"

	lin "github.com/xlab/linmath"
)

// VulkanProjectionMat converts an OpenGL style projection matrix to Vulkan style projection matrix.
// Vulkan has a topLeft clipSpace with [0, 1] depth range instead of [-1, 1].
//
// linmath outputs projection matrices in GL style clipSpace,
// perform a simple fixup step to change the projection to Vulkan style.
func VulkanProjectionMat(m *lin.Mat4x4, proj *lin.Mat4x4) {
	// Flip Y in clipspace. X = -1, Y = -1 is topLeft in Vulkan.
	// Z depth is [0, 1] range instead of [-1, 1]: z' = 0.5z + 0.5w.
	fix := lin.Mat4x4{
		{1, 0, 0, 0},
		{0, -1, 0, 0},
		{0, 0, 0.5, 0},
		{0, 0, 0.5, 1},
	}
	m.Mult(&fix, proj)
}

// Camera is a perspective camera looking at a point.
type Camera struct {
	Eye    lin.Vec3
	Center lin.Vec3
	Up     lin.Vec3
	// FovY is the vertical field of view in radians.
	FovY      float32
	Near, Far float32
}

// NewCamera returns a camera at eye looking at the origin with +Y up.
func NewCamera(eye lin.Vec3) Camera {
	return Camera{
		Eye:  eye,
		Up:   lin.Vec3{0, 1, 0},
		FovY: math.Pi / 3,
		Near: 0.01,
		Far:  100,
	}
}

// ViewProjection returns projection * view in Vulkan clip space for the
// given viewport aspect ratio. The texture quad lies in the z = 0 plane.
func (c Camera) ViewProjection(aspect float32) lin.Mat4x4 {
	var proj, fixed, view, vp lin.Mat4x4
	proj.Perspective(c.FovY, aspect, c.Near, c.Far)
	VulkanProjectionMat(&fixed, &proj)
	view.LookAt(&c.Eye, &c.Center, &c.Up)
	vp.Mult(&fixed, &view)
	return vp
}

// Orbit moves the eye around the Y axis by angle radians, keeping its
// distance to the center.
func (c *Camera) Orbit(angle float32) {
	sin, cos := math.Sincos(float64(angle))
	x := float64(c.Eye[0] - c.Center[0])
	z := float64(c.Eye[2] - c.Center[2])
	c.Eye[0] = c.Center[0] + float32(x*cos+z*sin)
	c.Eye[2] = c.Center[2] + float32(z*cos-x*sin)
}

// Dolly moves the eye along the view direction by factor of its distance.
func (c *Camera) Dolly(factor float32) {
	for i := range c.Eye {
		c.Eye[i] = c.Center[i] + (c.Eye[i]-c.Center[i])*factor
	}
}
