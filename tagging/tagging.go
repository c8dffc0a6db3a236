// Package tagging provides the process-free ID allocators and string-interned
// tags used for cross-cutting object selection and removal. Every allocator
// lives on an explicit Context instance rather than as package-level state,
// per the "replace global singletons with a context object" design note.
package tagging

import "sync"

// TagID identifies an interned tag name. The zero value means "invalid".
type TagID uint32

// InvalidTagID is returned when a lookup fails or a tag has not been allocated.
const InvalidTagID TagID = 0

// TagInterner is a tag_name -> TagID bimap with allocate-or-get semantics.
// Freed IDs may be reused by a later AllocOrGet of a different name; callers
// must not treat a TagID as meaningful outside the interner instance that
// produced it.
type TagInterner struct {
	mu      sync.Mutex
	byName  map[string]TagID
	byID    map[TagID]string
	nextID  TagID
	freeIDs []TagID
}

// NewTagInterner creates an empty tag interner.
func NewTagInterner() *TagInterner {
	return &TagInterner{
		byName: make(map[string]TagID),
		byID:   make(map[TagID]string),
		nextID: 1,
	}
}

// AllocOrGet returns the TagID for name, allocating a new one if name has
// never been interned by this instance. Idempotent: repeated calls with the
// same name return the same ID until Dealloc is called for it.
func (t *TagInterner) AllocOrGet(name string) TagID {
	t.mu.Lock()
	defer t.mu.Unlock()

	if id, ok := t.byName[name]; ok {
		return id
	}

	var id TagID
	if n := len(t.freeIDs); n > 0 {
		id = t.freeIDs[n-1]
		t.freeIDs = t.freeIDs[:n-1]
	} else {
		id = t.nextID
		t.nextID++
	}

	t.byName[name] = id
	t.byID[id] = name
	return id
}

// Lookup returns the TagID currently assigned to name, if any.
func (t *TagInterner) Lookup(name string) (TagID, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	id, ok := t.byName[name]
	return id, ok
}

// Name returns the name currently assigned to id, if any.
func (t *TagInterner) Name(id TagID) (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	name, ok := t.byID[id]
	return name, ok
}

// Dealloc frees id so it may be reused by a future AllocOrGet of a different
// name. A subsequent AllocOrGet(sameName) is not guaranteed to return id.
func (t *TagInterner) Dealloc(id TagID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	name, ok := t.byID[id]
	if !ok {
		return
	}
	delete(t.byID, id)
	delete(t.byName, name)
	t.freeIDs = append(t.freeIDs, id)
}

// IDAllocator is a monotonic 64-bit counter used for resource, object,
// material, and camera IDs. Overflow is not anticipated in a session.
type IDAllocator struct {
	mu      sync.Mutex
	counter uint64
}

// NewIDAllocator creates an allocator whose first Next() call returns 1.
func NewIDAllocator() *IDAllocator {
	return &IDAllocator{counter: 0}
}

// Next returns the next ID in the monotonic sequence (fetch_add(1) semantics).
func (a *IDAllocator) Next() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.counter++
	return a.counter
}

// Context bundles every per-session allocator that the source treats as a
// process-wide singleton. One Context is created at startup and threaded
// explicitly through the GPU layer, the scene, and the PSO cache.
type Context struct {
	Tags       *TagInterner
	ResourceID *IDAllocator
	ObjectID   *IDAllocator
	MaterialID *IDAllocator
	CameraID   *IDAllocator
}

// NewContext creates a fresh allocator Context for one session.
func NewContext() *Context {
	return &Context{
		Tags:       NewTagInterner(),
		ResourceID: NewIDAllocator(),
		ObjectID:   NewIDAllocator(),
		MaterialID: NewIDAllocator(),
		CameraID:   NewIDAllocator(),
	}
}
