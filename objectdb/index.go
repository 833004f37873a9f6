// Package objectdb implements the object store and its secondary indices
// and the reversible undo journal layered over them.
package objectdb

import (
	"encoding/json"
	"fmt"

	"marketchain/types"
	"marketchain/xerrors"
)

// cloneValue deep-copies v via a JSON round trip. Every object type in this
// module is a plain data struct with no function or channel fields, so this
// is both correct and simple; it is only ever used for undo-journal
// snapshots and object inserts/modifies, never on a hot per-transaction path
// large enough for the cost to matter.
func cloneValue[T any](v T) T {
	buf, err := json.Marshal(v)
	if err != nil {
		panic(fmt.Errorf("objectdb: clone marshal: %w", err))
	}
	var out T
	if err := json.Unmarshal(buf, &out); err != nil {
		panic(fmt.Errorf("objectdb: clone unmarshal: %w", err))
	}
	return out
}

// AnyIndex is the type-erased view of an Index used by the two-level
// space→type dispatch table and by the undo journal, which must be able to
// snapshot/restore objects without knowing their concrete Go type.
type AnyIndex interface {
	Space() types.Space
	Type() types.ObjectType
	has(id types.ObjectID) bool
	snapshotAny(id types.ObjectID) any
	setAtAny(id types.ObjectID, value any)
	deleteAt(id types.ObjectID)
	nextInstance() uint64
	setNextInstance(n uint64)
}

// Index is a typed arena for one (space, type) pair. Objects are stored by
// their Instance. Index keeps no secondary indices itself (lookups by other
// keys scan it with ForEach); callers can attach maintenance callbacks via
// OnInsert/OnModify/OnRemove, keeping this type reusable across every
// object family.
type Index[T any] struct {
	space types.Space
	typ   types.ObjectType
	store map[uint64]T
	next  uint64

	onInsert []func(id types.ObjectID, v T)
	onModify []func(id types.ObjectID, old, new T)
	onRemove []func(id types.ObjectID, old T)
}

// NewIndex constructs an empty index for the given (space, type).
func NewIndex[T any](space types.Space, typ types.ObjectType) *Index[T] {
	return &Index[T]{space: space, typ: typ, store: make(map[uint64]T), next: 0}
}

func (ix *Index[T]) Space() types.Space      { return ix.space }
func (ix *Index[T]) Type() types.ObjectType  { return ix.typ }
func (ix *Index[T]) nextInstance() uint64    { return ix.next }
func (ix *Index[T]) setNextInstance(n uint64) { ix.next = n }

// OnInsert/OnModify/OnRemove register secondary-index maintenance callbacks,
// invoked synchronously by Create/Modify/Remove after the primary store is
// updated; the undo journal captures the pre-image before the mutation
// closure ever runs.
func (ix *Index[T]) OnInsert(f func(id types.ObjectID, v T)) { ix.onInsert = append(ix.onInsert, f) }
func (ix *Index[T]) OnModify(f func(id types.ObjectID, old, new T)) {
	ix.onModify = append(ix.onModify, f)
}
func (ix *Index[T]) OnRemove(f func(id types.ObjectID, old T)) { ix.onRemove = append(ix.onRemove, f) }

func (ix *Index[T]) idFor(instance uint64) types.ObjectID {
	return types.ObjectID{Space: ix.space, Type: ix.typ, Instance: instance}
}

// Create allocates the next instance, runs init to populate the object, and
// inserts it. The undo hook (if a session is active) must already have
// recorded on_create for this id by the time Create returns; that wiring
// lives in Database, not here, since Index has no notion of sessions.
func (ix *Index[T]) Create(init func(id types.ObjectID, obj *T)) (types.ObjectID, T) {
	id := ix.idFor(ix.next)
	ix.next++
	var obj T
	init(id, &obj)
	ix.store[id.Instance] = obj
	for _, f := range ix.onInsert {
		f(id, obj)
	}
	return id, obj
}

// Get returns a copy of the object at id.
func (ix *Index[T]) Get(id types.ObjectID) (T, bool) {
	v, ok := ix.store[id.Instance]
	return v, ok
}

// MustGet panics (via xerrors.ErrObjectNotFound, a fatal StateError) if id is
// absent; used where the caller has already established the object must
// exist.
func (ix *Index[T]) MustGet(id types.ObjectID) T {
	v, ok := ix.store[id.Instance]
	if !ok {
		panic(xerrors.New(xerrors.KindState, "objectdb.MustGet", id.String(), xerrors.ErrObjectNotFound))
	}
	return v
}

func (ix *Index[T]) has(id types.ObjectID) bool {
	_, ok := ix.store[id.Instance]
	return ok
}

// Modify loads the object at id, applies f in place, and stores the result.
// It returns the pre-image so the caller (Database) can record it in the
// active undo session before f observably changes anything.
func (ix *Index[T]) Modify(id types.ObjectID, f func(obj *T)) (old T, new T, err error) {
	cur, ok := ix.store[id.Instance]
	if !ok {
		return old, new, xerrors.New(xerrors.KindState, "objectdb.Modify", id.String(), xerrors.ErrObjectNotFound)
	}
	old = cloneValue(cur)
	f(&cur)
	ix.store[id.Instance] = cur
	for _, hook := range ix.onModify {
		hook(id, old, cur)
	}
	return old, cur, nil
}

// Remove deletes the object at id, returning its last value.
func (ix *Index[T]) Remove(id types.ObjectID) (T, error) {
	cur, ok := ix.store[id.Instance]
	if !ok {
		var zero T
		return zero, xerrors.New(xerrors.KindState, "objectdb.Remove", id.String(), xerrors.ErrObjectNotFound)
	}
	delete(ix.store, id.Instance)
	for _, hook := range ix.onRemove {
		hook(id, cur)
	}
	return cur, nil
}

func (ix *Index[T]) deleteAt(id types.ObjectID) {
	delete(ix.store, id.Instance)
}

func (ix *Index[T]) snapshotAny(id types.ObjectID) any {
	v, ok := ix.store[id.Instance]
	if !ok {
		return nil
	}
	return cloneValue(v)
}

func (ix *Index[T]) setAtAny(id types.ObjectID, value any) {
	if value == nil {
		delete(ix.store, id.Instance)
		return
	}
	ix.store[id.Instance] = value.(T)
	if id.Instance >= ix.next {
		ix.next = id.Instance + 1
	}
}

// ForEach iterates every (id, object) pair in unspecified order. Callers
// needing deterministic order (e.g. maintenance-pass tallying) must sort the
// returned IDs themselves.
func (ix *Index[T]) ForEach(f func(id types.ObjectID, obj T) bool) {
	for instance, v := range ix.store {
		if !f(ix.idFor(instance), v) {
			return
		}
	}
}

// Len reports how many objects currently live in the index.
func (ix *Index[T]) Len() int { return len(ix.store) }
