package scene

import (
	"testing"

	"github.com/kadds/gstudy-sub000/gpu"
	"github.com/kadds/gstudy-sub000/material"
	"github.com/kadds/gstudy-sub000/rdg"
	"github.com/kadds/gstudy-sub000/tagging"
	"github.com/stretchr/testify/require"
)

// fakeMaterial is a minimal material.Material for tests that never touch a
// GPU: buildBuckets only needs ID/Kind, not any pipeline state.
type fakeMaterial struct {
	id   material.MaterialID
	kind string
}

func (f fakeMaterial) ID() material.MaterialID { return f.id }
func (f fakeMaterial) Kind() string            { return f.kind }
func (f fakeMaterial) PipelineKey() string     { return f.kind }
func (f fakeMaterial) IsStatic() bool          { return false }

// fakeFactory implements material.RendererFactory with a SortKey that
// never dereferences its *gpu.Device argument, so buildBuckets can be
// exercised with a nil device in tests.
type fakeFactory struct{}

func (fakeFactory) Setup(map[int][]material.Material, *gpu.Device, *rdg.Builder, *material.SetupResource) error {
	return nil
}

func (fakeFactory) NewFrame(*gpu.Device) {}

func (fakeFactory) PrepareRender(*gpu.Device, material.CameraData) error { return nil }

func (fakeFactory) RenderMaterial(*rdg.ExecContext, []material.ObjectID, material.Material, material.ObjectProvider) error {
	return nil
}

func (fakeFactory) SortKey(mat material.Material, _ *gpu.Device) uint64 {
	return uint64(mat.ID())
}

func newTestScene(t *testing.T) *Scene {
	t.Helper()
	tags := tagging.NewContext()
	registry := material.NewFactoryRegistry()
	registry.Register("fake", fakeFactory{})
	return New(tags, registry, 0, nil)
}

func TestAddObjectStagedUntilPostUpdate(t *testing.T) {
	s := newTestScene(t)
	matID := material.MaterialID(1)
	id := s.AddObject(nil, matID)

	_, ok := s.ObjectData(id)
	require.False(t, ok, "object should not be visible before PostUpdate commits it")

	s.PostUpdate()
	_, ok = s.ObjectData(id)
	require.True(t, ok)
}

func TestRemoveObjectStagedUntilPostUpdate(t *testing.T) {
	s := newTestScene(t)
	id := s.AddObject(nil, material.MaterialID(1))
	s.PostUpdate()

	s.RemoveObject(id)
	_, ok := s.ObjectData(id)
	require.True(t, ok, "removal should not take effect until PostUpdate")

	s.PostUpdate()
	_, ok = s.ObjectData(id)
	require.False(t, ok)
}

func TestRemoveByTagRemovesOnlyTaggedObjects(t *testing.T) {
	s := newTestScene(t)
	tagged := s.AddObject(nil, material.MaterialID(1), "enemy")
	untagged := s.AddObject(nil, material.MaterialID(1))
	s.PostUpdate()

	s.RemoveByTag("enemy")
	s.PostUpdate()

	_, ok := s.ObjectData(tagged)
	require.False(t, ok)
	_, ok = s.ObjectData(untagged)
	require.True(t, ok)
}

func TestRemoveByTagUnknownTagIsNoop(t *testing.T) {
	s := newTestScene(t)
	id := s.AddObject(nil, material.MaterialID(1))
	s.PostUpdate()

	s.RemoveByTag("never-interned")
	s.PostUpdate()

	_, ok := s.ObjectData(id)
	require.True(t, ok)
}

func TestSetTransformDirtiesModelMatrixRebuiltOnPrepare(t *testing.T) {
	s := newTestScene(t)
	id := s.AddObject(nil, material.MaterialID(1))
	s.PostUpdate()

	s.SetTransform(id, [3]float32{1, 2, 3}, [3]float32{}, [3]float32{1, 1, 1})
	require.NoError(t, s.prepareTransforms())

	data, ok := s.ObjectData(id)
	require.True(t, ok)
	require.Equal(t, float32(1), data.ModelMatrix[12])
	require.Equal(t, float32(2), data.ModelMatrix[13])
	require.Equal(t, float32(3), data.ModelMatrix[14])
}

func TestSetMeshBumpsMeshVersion(t *testing.T) {
	s := newTestScene(t)
	id := s.AddObject(nil, material.MaterialID(1))
	s.PostUpdate()

	data, _ := s.ObjectData(id)
	require.EqualValues(t, 0, data.MeshVersion)

	s.SetMesh(id, nil)
	data, _ = s.ObjectData(id)
	require.EqualValues(t, 1, data.MeshVersion)
}

func TestObjectsForMaterialReflectsAssignment(t *testing.T) {
	s := newTestScene(t)
	matA := material.MaterialID(1)
	matB := material.MaterialID(2)
	a1 := s.AddObject(nil, matA)
	a2 := s.AddObject(nil, matA)
	b1 := s.AddObject(nil, matB)
	s.PostUpdate()

	s.AddMaterial(fakeMaterial{id: matA, kind: "fake"})
	s.AddMaterial(fakeMaterial{id: matB, kind: "fake"})

	byKind, err := s.buildBuckets(nil)
	require.NoError(t, err)
	require.Contains(t, byKind, "fake")
	require.ElementsMatch(t, []material.ObjectID{a1, a2}, s.ObjectsForMaterial(matA))
	require.ElementsMatch(t, []material.ObjectID{b1}, s.ObjectsForMaterial(matB))
}

func TestBuildBucketsErrorsOnUnregisteredKind(t *testing.T) {
	s := newTestScene(t)
	s.AddMaterial(fakeMaterial{id: material.MaterialID(1), kind: "missing"})
	_, err := s.buildBuckets(nil)
	require.Error(t, err)
}
