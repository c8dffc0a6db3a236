package material

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func decodeF32(t *testing.T, buf []byte, offset int) float32 {
	t.Helper()
	return math.Float32frombits(binary.LittleEndian.Uint32(buf[offset : offset+4]))
}

func TestCameraUniformMarshalLayout(t *testing.T) {
	c := CameraUniform{ViewProj: [16]float32{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16}, CameraPos: [3]float32{9, 8, 7}}
	buf := c.Marshal()
	require.Len(t, buf, 80)
	require.Equal(t, 80, c.Size())
	for i, want := range c.ViewProj {
		require.Equal(t, want, decodeF32(t, buf, i*4))
	}
	require.Equal(t, float32(9), decodeF32(t, buf, 64))
	require.Equal(t, float32(8), decodeF32(t, buf, 68))
	require.Equal(t, float32(7), decodeF32(t, buf, 72))
}

func TestObjectUniformMarshalLayout(t *testing.T) {
	o := ObjectUniform{Model: [16]float32{1, 0, 0, 0, 0, 1, 0, 0, 0, 0, 1, 0, 5, 6, 7, 1}}
	buf := o.Marshal()
	require.Len(t, buf, 64)
	require.Equal(t, float32(5), decodeF32(t, buf, 48))
	require.Equal(t, float32(6), decodeF32(t, buf, 52))
	require.Equal(t, float32(7), decodeF32(t, buf, 56))
}

func TestMaterialUniformMarshalLayout(t *testing.T) {
	m := MaterialUniform{BaseColor: [4]float32{1, 0.5, 0.25, 1}, Metallic: 0.1, Roughness: 0.9}
	buf := m.Marshal()
	require.Len(t, buf, 32)
	require.Equal(t, float32(1), decodeF32(t, buf, 0))
	require.Equal(t, float32(0.5), decodeF32(t, buf, 4))
	require.Equal(t, float32(0.25), decodeF32(t, buf, 8))
	require.Equal(t, float32(1), decodeF32(t, buf, 12))
	require.Equal(t, float32(0.1), decodeF32(t, buf, 16))
	require.Equal(t, float32(0.9), decodeF32(t, buf, 20))
}

func TestLightHeaderMarshalLayout(t *testing.T) {
	h := LightHeader{AmbientColor: [3]float32{0.1, 0.2, 0.3}, LightCount: 3}
	buf := h.Marshal()
	require.Len(t, buf, 16)
	require.Equal(t, uint32(3), binary.LittleEndian.Uint32(buf[12:16]))
}

func TestLightMarshalCastsShadowsFlag(t *testing.T) {
	l := Light{Type: LightKindSpot, CastsShadows: true, InnerCone: 0.2, OuterCone: 0.4}
	buf := l.Marshal()
	require.Len(t, buf, 64)
	require.Equal(t, uint32(LightKindSpot), binary.LittleEndian.Uint32(buf[12:16]))
	require.Equal(t, uint32(1), binary.LittleEndian.Uint32(buf[56:60]))

	l.CastsShadows = false
	buf = l.Marshal()
	require.Equal(t, uint32(0), binary.LittleEndian.Uint32(buf[56:60]))
}

func TestMarshalLightBufferTruncatesAtBudget(t *testing.T) {
	lights := make([]Light, MaxGPULights+10)
	buf := MarshalLightBuffer([3]float32{1, 1, 1}, lights)
	require.Len(t, buf, 16+MaxGPULights*64)
	require.Equal(t, uint32(MaxGPULights), binary.LittleEndian.Uint32(buf[12:16]))
}

func TestMarshalLightBufferEmpty(t *testing.T) {
	buf := MarshalLightBuffer([3]float32{}, nil)
	require.Len(t, buf, 16)
}

func TestAdditiveLightUniformMarshal(t *testing.T) {
	a := AdditiveLightUniform{LightIndex: 7}
	buf := a.Marshal()
	require.Len(t, buf, 16)
	require.Equal(t, uint32(7), binary.LittleEndian.Uint32(buf[0:4]))
}

func TestShadowUniformMarshal(t *testing.T) {
	s := ShadowUniform{LightVP: [16]float32{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16}}
	buf := s.Marshal()
	require.Len(t, buf, 64)
	require.Equal(t, float32(16), decodeF32(t, buf, 60))
}
