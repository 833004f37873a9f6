package objectdb

import (
	"marketchain/types"
	"marketchain/xerrors"
)

type obsKind uint8

const (
	obsCreated obsKind = iota
	obsModified
	obsRemoved
)

type observation struct {
	kind  obsKind
	index AnyIndex
	prior any // meaningful for modified/removed: the value as of the start of this session
}

// Session is one checkpointed frame of object-level mutations. Each
// object id records at most one observation per frame — its first — so that
// undo/commit never need to replay an interleaved history, only the net
// effect relative to the frame's start.
type Session struct {
	db   *Database
	seen map[types.ObjectID]*observation

	// nextAtStart captures, for every index this session has touched, the
	// next-instance counter as of the start of the session, so creation can
	// be exactly reversed (byte-identical replay requires allocated
	// instance numbers never drift across an undo/redo cycle).
	nextAtStart map[AnyIndex]uint64

	closed bool
}

func newSession(db *Database) *Session {
	return &Session{
		db:          db,
		seen:        make(map[types.ObjectID]*observation),
		nextAtStart: make(map[AnyIndex]uint64),
	}
}

func (s *Session) touchIndex(ix AnyIndex) {
	if _, ok := s.nextAtStart[ix]; !ok {
		s.nextAtStart[ix] = ix.nextInstance()
	}
}

func (s *Session) recordCreate(ix AnyIndex, id types.ObjectID) {
	s.touchIndex(ix)
	// A freshly allocated instance can never already be "seen" in this
	// frame, so this is always a fresh entry.
	s.seen[id] = &observation{kind: obsCreated, index: ix}
}

// recordModify must be called with the pre-image already captured, before
// the caller's mutation closure runs.
func (s *Session) recordModify(ix AnyIndex, id types.ObjectID) {
	s.touchIndex(ix)
	if _, ok := s.seen[id]; ok {
		return // no-op: already recorded (created or modified earlier this frame)
	}
	s.seen[id] = &observation{kind: obsModified, index: ix, prior: ix.snapshotAny(id)}
}

func (s *Session) recordRemove(ix AnyIndex, id types.ObjectID) {
	s.touchIndex(ix)
	if existing, ok := s.seen[id]; ok {
		if existing.kind == obsCreated {
			// Created and removed within the same frame: it never existed
			// before the frame, so there is nothing left to undo.
			delete(s.seen, id)
			return
		}
		existing.kind = obsRemoved // keep the original prior value
		return
	}
	s.seen[id] = &observation{kind: obsRemoved, index: ix, prior: ix.snapshotAny(id)}
}

// Commit pops this session. If a parent session is active beneath it, the
// frame's observations are merged into the parent's (preserving the
// parent's first-observation prior values). If this was the outermost
// session, its bookkeeping is simply discarded: the mutations remain
// applied with no further undo capability.
func (s *Session) Commit() {
	if s.closed {
		return
	}
	s.closed = true
	s.db.popTransient(s)

	parent := s.db.topTransient()
	if parent == nil {
		return
	}
	for id, obs := range s.seen {
		parent.mergeOne(id, obs)
	}
	for ix, next := range s.nextAtStart {
		if _, ok := parent.nextAtStart[ix]; !ok {
			parent.nextAtStart[ix] = next
		}
	}
}

func (s *Session) mergeOne(id types.ObjectID, child *observation) {
	existing, ok := s.seen[id]
	if !ok {
		s.seen[id] = child
		return
	}
	switch existing.kind {
	case obsCreated:
		if child.kind == obsRemoved {
			delete(s.seen, id) // full lifecycle contained in the merged span
		}
		// modified-after-created stays "created" from the ancestor's view.
	case obsModified:
		if child.kind == obsRemoved {
			existing.kind = obsRemoved // keep existing.prior, the oldest value
		}
	case obsRemoved:
		// object is gone; nothing further to merge.
	}
}

// Undo reverses this frame's observations (in no particular cross-id order;
// each id's single observation is self-contained) and restores every
// touched index's next-instance counter.
func (s *Session) Undo() {
	if s.closed {
		return
	}
	s.closed = true
	s.db.popTransient(s)

	for id, obs := range s.seen {
		switch obs.kind {
		case obsCreated:
			obs.index.deleteAt(id)
		case obsModified, obsRemoved:
			obs.index.setAtAny(id, obs.prior)
		}
	}
	for ix, next := range s.nextAtStart {
		ix.setNextInstance(next)
	}
}

// ChangedIDs returns the set of object ids this session observed at least
// one creation/modification/removal for, in unspecified order. Used by the
// chain controller to feed the subscription dispatcher the change set
// of a just-committed block.
func (s *Session) ChangedIDs() []types.ObjectID {
	ids := make([]types.ObjectID, 0, len(s.seen))
	for id := range s.seen {
		ids = append(ids, id)
	}
	return ids
}

// fingerprint returns a stable identifier for the net set of mutations this
// (closed, merged) session represents: the kind of change recorded for each
// object id. Nothing in this module calls it.
func (s *Session) fingerprint() map[types.ObjectID]obsKind {
	out := make(map[types.ObjectID]obsKind, len(s.seen))
	for id, obs := range s.seen {
		out[id] = obs.kind
	}
	return out
}

// Database errors surfaced by the undo window.
var errEmptyRetainedWindow = xerrors.New(xerrors.KindUndo, "objectdb.PopBlock", "no retained block session", xerrors.ErrUndoWindowExceeded)
