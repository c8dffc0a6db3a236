package material

import (
	"testing"

	"github.com/kadds/gstudy-sub000/gpu"
	"github.com/kadds/gstudy-sub000/rdg"
	"github.com/stretchr/testify/require"
)

type stubFactory struct{}

func (stubFactory) Setup(map[int][]Material, *gpu.Device, *rdg.Builder, *SetupResource) error {
	return nil
}
func (stubFactory) NewFrame(*gpu.Device)                             {}
func (stubFactory) PrepareRender(*gpu.Device, CameraData) error      { return nil }
func (stubFactory) RenderMaterial(*rdg.ExecContext, []ObjectID, Material, ObjectProvider) error {
	return nil
}
func (stubFactory) SortKey(mat Material, _ *gpu.Device) uint64 { return uint64(mat.ID()) }

func TestFactoryRegistryRegisterAndGet(t *testing.T) {
	r := NewFactoryRegistry()
	_, ok := r.Get("basic")
	require.False(t, ok)

	r.Register("basic", stubFactory{})
	f, ok := r.Get("basic")
	require.True(t, ok)
	require.Equal(t, stubFactory{}, f)
}

func TestFactoryRegistryRegisterReplacesExisting(t *testing.T) {
	r := NewFactoryRegistry()
	r.Register("basic", stubFactory{})
	r.Register("basic", stubFactory{})
	require.ElementsMatch(t, []string{"basic"}, r.Kinds())
}

func TestFactoryRegistryKindsListsEveryRegistration(t *testing.T) {
	r := NewFactoryRegistry()
	r.Register("basic", stubFactory{})
	r.Register("debug", stubFactory{})
	require.ElementsMatch(t, []string{"basic", "debug"}, r.Kinds())
}
