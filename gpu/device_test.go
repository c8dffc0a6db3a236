package gpu

import (
	"testing"

	"github.com/cogentcore/webgpu/wgpu"
	"github.com/stretchr/testify/require"
)

func TestPickSurfaceFormatPrefersRGBA(t *testing.T) {
	got, err := pickSurfaceFormat([]wgpu.TextureFormat{
		wgpu.TextureFormatBGRA8Unorm,
		wgpu.TextureFormatRGBA8Unorm,
	})
	require.NoError(t, err)
	require.Equal(t, wgpu.TextureFormatRGBA8Unorm, got)
}

func TestPickSurfaceFormatFallsBackToBGRA(t *testing.T) {
	got, err := pickSurfaceFormat([]wgpu.TextureFormat{
		wgpu.TextureFormatBGRA8Unorm,
	})
	require.NoError(t, err)
	require.Equal(t, wgpu.TextureFormatBGRA8Unorm, got)
}

func TestPickSurfaceFormatErrorsWhenNeitherPresent(t *testing.T) {
	_, err := pickSurfaceFormat([]wgpu.TextureFormat{
		wgpu.TextureFormatDepth24Plus,
	})
	require.ErrorIs(t, err, ErrNoFormat)
}

func TestResourceRefcountReleasesOnLastHolder(t *testing.T) {
	registry := NewRegistry()
	rc := &refCounted{id: 1, kind: KindBuffer, registry: registry, count: 1}
	registry.register(rc.id, rc.kind)

	r := Resource{rc: rc}
	clone := r.Clone()
	require.Equal(t, 1, registry.Len())

	r.Release()
	require.Equal(t, 1, registry.Len(), "registry entry must survive while a clone is outstanding")

	clone.Release()
	require.Equal(t, 0, registry.Len())
}
