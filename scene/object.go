package scene

import (
	"github.com/kadds/gstudy-sub000/common"
	"github.com/kadds/gstudy-sub000/material"
	"github.com/kadds/gstudy-sub000/mesh"
	"github.com/kadds/gstudy-sub000/tagging"
)

// object is the scene's internal per-object record: geometry, placement,
// material assignment, and the tags used by RemoveByTag. The model matrix
// is rebuilt from the TRS fields lazily, by prepareTransforms, rather than
// on every SetTransform call, so a transform touched several times in one
// frame (e.g. by a physics step followed by a gameplay correction) pays the
// matrix-build cost once per frame instead of once per call.
type object struct {
	id          material.ObjectID
	mesh        *mesh.Mesh
	meshVersion uint64
	materialID  material.MaterialID
	tags        []tagging.TagID

	pos, rot, scale [3]float32
	model           [16]float32
	dirty           bool
}

func newObject(id material.ObjectID, m *mesh.Mesh, matID material.MaterialID, tags []tagging.TagID) *object {
	o := &object{
		id:         id,
		mesh:       m,
		materialID: matID,
		tags:       tags,
		scale:      [3]float32{1, 1, 1},
		dirty:      true,
	}
	return o
}

func (o *object) rebuildModel() {
	common.BuildModelMatrix(o.model[:],
		o.pos[0], o.pos[1], o.pos[2],
		o.rot[0], o.rot[1], o.rot[2],
		o.scale[0], o.scale[1], o.scale[2])
	o.dirty = false
}

func (o *object) hasTag(id tagging.TagID) bool {
	for _, t := range o.tags {
		if t == id {
			return true
		}
	}
	return false
}
