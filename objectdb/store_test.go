package objectdb

import (
	"testing"

	"github.com/stretchr/testify/require"

	"marketchain/types"
)

func TestCreateModifyRemoveRoundTrip(t *testing.T) {
	db := NewDatabase(10)

	id, acct := Create(db, db.Accounts, func(id types.ObjectID, a *types.Account) {
		a.Name = "alice"
	})
	require.Equal(t, "alice", acct.Name)
	require.Equal(t, types.SpaceProtocol, id.Space)
	require.Equal(t, types.TypeAccount, id.Type)

	_, modified, err := Modify(db, db.Accounts, id, func(a *types.Account) {
		a.Name = "alice2"
	})
	require.NoError(t, err)
	require.Equal(t, "alice2", modified.Name)

	removed, err := Remove(db, db.Accounts, id)
	require.NoError(t, err)
	require.Equal(t, "alice2", removed.Name)
	require.Equal(t, 0, db.Accounts.Len())
}

func TestSessionUndoReversesCreateModifyRemove(t *testing.T) {
	db := NewDatabase(10)

	baseID, _ := Create(db, db.Accounts, func(id types.ObjectID, a *types.Account) {
		a.Name = "base"
	})

	s := db.NewSession()
	_, _, err := Modify(db, db.Accounts, baseID, func(a *types.Account) {
		a.Name = "renamed"
	})
	require.NoError(t, err)

	newID, _ := Create(db, db.Accounts, func(id types.ObjectID, a *types.Account) {
		a.Name = "ephemeral"
	})
	s.Undo()

	base, ok := db.Accounts.Get(baseID)
	require.True(t, ok)
	require.Equal(t, "base", base.Name, "modify must be reversed to its pre-session value")

	require.False(t, db.Accounts.has(newID), "created object must vanish on undo")

	// The freed instance must not be skipped: next creation reuses it, so
	// replaying identical operations after an undo yields identical ids.
	redoID, _ := Create(db, db.Accounts, func(id types.ObjectID, a *types.Account) {
		a.Name = "ephemeral"
	})
	require.Equal(t, newID, redoID)
}

func TestModifyThenRemoveInSameSessionUndoesToOriginal(t *testing.T) {
	db := NewDatabase(10)
	id, _ := Create(db, db.Accounts, func(id types.ObjectID, a *types.Account) {
		a.Name = "original"
	})

	s := db.NewSession()
	_, _, err := Modify(db, db.Accounts, id, func(a *types.Account) { a.Name = "changed" })
	require.NoError(t, err)
	_, err = Remove(db, db.Accounts, id)
	require.NoError(t, err)
	require.False(t, db.Accounts.has(id))

	s.Undo()

	restored, ok := db.Accounts.Get(id)
	require.True(t, ok)
	require.Equal(t, "original", restored.Name)
}

func TestNestedSessionCommitMergesIntoParent(t *testing.T) {
	db := NewDatabase(10)
	id, _ := Create(db, db.Accounts, func(id types.ObjectID, a *types.Account) {
		a.Name = "original"
	})

	parent := db.NewSession()
	child := db.NewSession()
	_, _, err := Modify(db, db.Accounts, id, func(a *types.Account) { a.Name = "child-edit" })
	require.NoError(t, err)
	child.Commit()

	// Undo at the parent level must still restore the pre-parent value, even
	// though the mutation happened inside the now-committed child frame.
	parent.Undo()

	restored, ok := db.Accounts.Get(id)
	require.True(t, ok)
	require.Equal(t, "original", restored.Name)
}

func TestPushBlockRetainsAndPopBlockReverses(t *testing.T) {
	db := NewDatabase(2)

	var id types.ObjectID
	err := db.PushBlock(func() error {
		var acct types.Account
		id, acct = Create(db, db.Accounts, func(i types.ObjectID, a *types.Account) {
			a.Name = "block1"
		})
		_ = acct
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 1, db.RetainedDepth())

	err = db.PushBlock(func() error {
		_, _, err := Modify(db, db.Accounts, id, func(a *types.Account) { a.Name = "block2" })
		return err
	})
	require.NoError(t, err)
	require.Equal(t, 2, db.RetainedDepth())

	require.NoError(t, db.PopBlock())
	require.Equal(t, 1, db.RetainedDepth())
	acct, ok := db.Accounts.Get(id)
	require.True(t, ok)
	require.Equal(t, "block1", acct.Name)

	require.NoError(t, db.PopBlock())
	require.Equal(t, 0, db.RetainedDepth())
	require.False(t, db.Accounts.has(id))

	require.Error(t, db.PopBlock())
}

func TestPushBlockFailureLeavesNoTrace(t *testing.T) {
	db := NewDatabase(10)
	id, _ := Create(db, db.Accounts, func(i types.ObjectID, a *types.Account) {
		a.Name = "stable"
	})

	err := db.PushBlock(func() error {
		_, _, _ = Modify(db, db.Accounts, id, func(a *types.Account) { a.Name = "mutated" })
		return xerrFailForTest
	})
	require.Error(t, err)
	require.Equal(t, 0, db.RetainedDepth())

	acct, ok := db.Accounts.Get(id)
	require.True(t, ok)
	require.Equal(t, "stable", acct.Name)
}

func TestUndoWindowTrimsOldestFrame(t *testing.T) {
	db := NewDatabase(1)

	require.NoError(t, db.PushBlock(func() error {
		Create(db, db.Accounts, func(i types.ObjectID, a *types.Account) { a.Name = "b1" })
		return nil
	}))
	require.NoError(t, db.PushBlock(func() error {
		Create(db, db.Accounts, func(i types.ObjectID, a *types.Account) { a.Name = "b2" })
		return nil
	}))

	require.Equal(t, 1, db.RetainedDepth(), "window of depth 1 retains only the newest block")
	require.NoError(t, db.PopBlock())
	require.Equal(t, 0, db.RetainedDepth())
	// b1's creation was already discarded by the window, not undone: its
	// object must still be present.
	found := false
	db.Accounts.ForEach(func(id types.ObjectID, a types.Account) bool {
		if a.Name == "b1" {
			found = true
		}
		return true
	})
	require.True(t, found)
}

var xerrFailForTest = &testError{"forced failure"}

type testError struct{ msg string }

func (e *testError) Error() string { return e.msg }
