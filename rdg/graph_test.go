package rdg

import (
	"testing"

	"github.com/cogentcore/webgpu/wgpu"
	"github.com/stretchr/testify/require"
)

func noopExec(*ExecContext) {}

func newTestBuilder(t *testing.T) *Builder {
	t.Helper()
	b := NewBuilder("test")
	b.SetPresentTarget(800, 600, wgpu.TextureFormatRGBA8Unorm, nil)
	return b
}

// TestCompileSchedulesInDeclarationOrderWithPresentLast exercises the S1
// scenario: pass A writes an intermediate texture T, pass B reads T and
// writes the back buffer. The compiled schedule must preserve declaration
// order with Present scheduled last.
func TestCompileSchedulesInDeclarationOrderWithPresentLast(t *testing.T) {
	b := newTestBuilder(t)
	texT := b.AllocateTexture("T", TextureInfo{
		Width: 800, Height: 600,
		Format: wgpu.TextureFormatRGBA8Unorm,
		Usage:  wgpu.TextureUsageRenderAttachment,
	})

	passA := NewRenderPass("A", noopExec, WithColorTarget(texT))
	passB := NewRenderPass("B", noopExec,
		WithTextureInput(texT, UsageTextureRead),
		WithColorTarget(RTColor),
	)
	b.AddRenderPass(passA)
	b.AddRenderPass(passB)

	g, err := b.Compile()
	require.NoError(t, err)
	require.Len(t, g.schedule, 3)
	require.Equal(t, "A", g.schedule[0].pass.Label)
	require.Equal(t, "B", g.schedule[1].pass.Label)
	require.Nil(t, g.schedule[2].pass)
	require.Equal(t, 2, g.PassCount())
}

// TestCompileCreatesAndDestroysTransientAtLifetimeBounds verifies the
// Open-Question-2 lowering: a transient resource is created at the pass
// where it is first referenced and destroyed at the pass where it is last
// referenced; imported resources are never created or destroyed.
func TestCompileCreatesAndDestroysTransientAtLifetimeBounds(t *testing.T) {
	b := newTestBuilder(t)
	texT := b.AllocateTexture("T", TextureInfo{
		Width: 800, Height: 600,
		Format: wgpu.TextureFormatRGBA8Unorm,
		Usage:  wgpu.TextureUsageRenderAttachment,
	})

	passA := NewRenderPass("A", noopExec, WithColorTarget(texT))
	passB := NewRenderPass("B", noopExec,
		WithTextureInput(texT, UsageTextureRead),
		WithColorTarget(RTColor),
	)
	b.AddRenderPass(passA)
	b.AddRenderPass(passB)

	g, err := b.Compile()
	require.NoError(t, err)

	require.Contains(t, g.schedule[0].creates, texT)
	require.NotContains(t, g.schedule[0].destroys, texT)
	require.Contains(t, g.schedule[1].destroys, texT)
	require.NotContains(t, g.schedule[1].creates, texT)

	require.NotContains(t, g.schedule[0].creates, RTColor)
	require.NotContains(t, g.schedule[1].destroys, RTColor)
}

func TestCompileFailsWithoutDefaultRenderTarget(t *testing.T) {
	b := newTestBuilder(t)
	passA := NewRenderPass("A", noopExec)
	b.AddRenderPass(passA)

	_, err := b.Compile()
	require.Error(t, err)
}

func TestCompileRejectsMultipleDefaultRenderTargets(t *testing.T) {
	b := newTestBuilder(t)
	passA := NewRenderPass("A", noopExec, WithColorTarget(RTColor))
	passB := NewRenderPass("B", noopExec, WithColorTarget(RTColor))
	b.AddRenderPass(passA)
	b.AddRenderPass(passB)

	_, err := b.Compile()
	require.Error(t, err)
}

func TestCompileDetectsCycle(t *testing.T) {
	b := newTestBuilder(t)
	resX := b.AllocateTexture("X", TextureInfo{Width: 1, Height: 1, Format: wgpu.TextureFormatRGBA8Unorm})
	resY := b.AllocateTexture("Y", TextureInfo{Width: 1, Height: 1, Format: wgpu.TextureFormatRGBA8Unorm})

	passA := NewRenderPass("A", noopExec,
		WithTextureInput(resX, UsageTextureRead),
		WithTextureOutput(resY, UsageTextureWrite),
		WithColorTarget(RTColor),
	)
	passB := NewRenderPass("B", noopExec,
		WithTextureInput(resY, UsageTextureRead),
		WithTextureOutput(resX, UsageTextureWrite),
	)
	b.AddRenderPass(passA)
	b.AddRenderPass(passB)

	_, err := b.Compile()
	require.Error(t, err)

	var cycleErr *ErrRDGCycle
	require.ErrorAs(t, err, &cycleErr)
	require.NotEmpty(t, cycleErr.Dump)
}

func TestWithDepthTargetIncludesDefaultDepthInLifetime(t *testing.T) {
	b := newTestBuilder(t)
	passA := NewRenderPass("A", noopExec, WithColorTarget(RTColor), WithDepthTarget(RTDepth))
	b.AddRenderPass(passA)

	g, err := b.Compile()
	require.NoError(t, err)
	require.Contains(t, g.schedule[0].creates, RTDepth)
}

func TestSetPresentTargetReservesColorAndDepthIDs(t *testing.T) {
	b := newTestBuilder(t)
	require.Equal(t, ResourceKindImportTexture, b.resources[RTColor].kind)
	require.Equal(t, ResourceKindTexture, b.resources[RTDepth].kind)
	require.Equal(t, wgpu.TextureFormatDepth32Float, b.resources[RTDepth].texture.Format)
}

func TestAllocateTextureAndBufferAssignIncreasingIDs(t *testing.T) {
	b := newTestBuilder(t)
	id1 := b.AllocateTexture("a", TextureInfo{})
	id2 := b.AllocateBuffer("b", BufferInfo{Size: 64})
	id3 := b.ImportTexture("c")

	require.Greater(t, id2, id1)
	require.Greater(t, id3, id2)
}
