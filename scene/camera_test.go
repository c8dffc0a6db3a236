package scene

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewCameraProducesViewProjMatrix(t *testing.T) {
	c := NewCamera(0, 0, 5, 0, 0, 0, float32(math.Pi/4), 16.0/9.0)
	data := c.Data()
	require.Equal(t, [3]float32{0, 0, 5}, data.Position)
	// A non-degenerate view-projection matrix should not be the zero matrix.
	var allZero = true
	for _, v := range data.ViewProj {
		if v != 0 {
			allZero = false
			break
		}
	}
	require.False(t, allZero)
}

func TestSetAspectRecomputesProjection(t *testing.T) {
	c := NewCamera(0, 0, 5, 0, 0, 0, float32(math.Pi/4), 1.0)
	before := c.Data().ViewProj
	c.SetAspect(2.0)
	after := c.Data().ViewProj
	require.NotEqual(t, before, after)
}

func TestSetEyeUpdatesPosition(t *testing.T) {
	c := NewCamera(0, 0, 5, 0, 0, 0, float32(math.Pi/4), 1.0)
	c.SetEye(1, 2, 3)
	require.Equal(t, [3]float32{1, 2, 3}, c.Eye())
	require.Equal(t, [3]float32{1, 2, 3}, c.Data().Position)
}
