package scene

import (
	"github.com/kadds/gstudy-sub000/common"
	"github.com/kadds/gstudy-sub000/material"
)

// Camera holds perspective settings and the eye/target pair the frame
// driver derives view/projection matrices from each frame, mirroring the
// field set of the teacher's engine/camera.Camera but without its
// CameraController/BindGroupProvider indirection — this engine writes the
// camera uniform directly from material.CameraData rather than through a
// per-camera bind group provider.
type Camera struct {
	eye    [3]float32
	target [3]float32
	up     [3]float32

	fov    float32
	aspect float32
	near   float32
	far    float32

	viewProj [16]float32
}

// CameraOption configures a Camera at construction, following this
// codebase's functional-option idiom.
type CameraOption func(*Camera)

// WithUp overrides the default +Y up vector.
func WithUp(x, y, z float32) CameraOption {
	return func(c *Camera) { c.up = [3]float32{x, y, z} }
}

// WithClipPlanes overrides the default near/far clip distances.
func WithClipPlanes(near, far float32) CameraOption {
	return func(c *Camera) { c.near, c.far = near, far }
}

// NewCamera creates a Camera looking from eye toward target, with the given
// vertical field of view (radians) and aspect ratio (width/height).
func NewCamera(eyeX, eyeY, eyeZ, targetX, targetY, targetZ, fov, aspect float32, opts ...CameraOption) *Camera {
	c := &Camera{
		eye:    [3]float32{eyeX, eyeY, eyeZ},
		target: [3]float32{targetX, targetY, targetZ},
		up:     [3]float32{0, 1, 0},
		fov:    fov,
		aspect: aspect,
		near:   0.1,
		far:    1000,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.recompute()
	return c
}

// SetEye repositions the camera's eye point and recomputes its matrices.
func (c *Camera) SetEye(x, y, z float32) {
	c.eye = [3]float32{x, y, z}
	c.recompute()
}

// SetTarget retargets the camera's look-at point and recomputes its
// matrices.
func (c *Camera) SetTarget(x, y, z float32) {
	c.target = [3]float32{x, y, z}
	c.recompute()
}

// SetAspect updates the aspect ratio (e.g. on window resize) and recomputes
// the projection.
func (c *Camera) SetAspect(aspect float32) {
	c.aspect = aspect
	c.recompute()
}

// Eye returns the camera's world-space eye position.
func (c *Camera) Eye() [3]float32 { return c.eye }

func (c *Camera) recompute() {
	var view, proj [16]float32
	common.LookAt(view[:], c.eye[0], c.eye[1], c.eye[2], c.target[0], c.target[1], c.target[2], c.up[0], c.up[1], c.up[2])
	common.Perspective(proj[:], c.fov, c.aspect, c.near, c.far)
	common.Mul4(c.viewProj[:], proj[:], view[:])
}

// Data returns the CameraData material renderer factories need for
// PrepareRender.
func (c *Camera) Data() material.CameraData {
	return material.CameraData{ViewProj: c.viewProj, Position: c.eye}
}
