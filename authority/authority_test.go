package authority

import (
	"testing"

	"github.com/stretchr/testify/require"

	"marketchain/objectdb"
	"marketchain/types"
	"marketchain/xerrors"
)

func makeAccount(db *objectdb.Database, key [33]byte, threshold uint32) types.ObjectID {
	id, _ := objectdb.Create(db, db.Accounts, func(id types.ObjectID, a *types.Account) {
		a.Active = types.Authority{
			Threshold: threshold,
			KeyAuths:  []types.AuthorityKey{{Key: key, Weight: 1}},
		}
		a.Owner = a.Active
	})
	return id
}

func TestRequiredAuthoritiesByOperation(t *testing.T) {
	from := types.ObjectID{Space: types.SpaceProtocol, Type: types.TypeAccount, Instance: 1}
	req := RequiredAuthorities(types.TransferOp{From: from})
	require.Equal(t, []types.ObjectID{from}, req.Active)
	require.Empty(t, req.Owner)

	newOwner := types.Authority{Threshold: 1}
	req = RequiredAuthorities(types.AccountUpdateOp{Account: from, Owner: &newOwner})
	require.Equal(t, []types.ObjectID{from}, req.Owner)
	require.Empty(t, req.Active)

	req = RequiredAuthorities(types.BalanceClaimOp{})
	require.Empty(t, req.Active)
	require.Empty(t, req.Owner)
}

func TestCheckRequiredSatisfiesSingleKeyThreshold(t *testing.T) {
	db := objectdb.NewDatabase(10)
	var key [33]byte
	key[0] = 0x02
	key[1] = 0x01
	acct := makeAccount(db, key, 1)

	v := NewVerifier(db, 2)
	err := v.CheckRequired(Required{Active: []types.ObjectID{acct}}, [][33]byte{key})
	require.NoError(t, err)
}

func TestCheckRequiredFailsBelowThreshold(t *testing.T) {
	db := objectdb.NewDatabase(10)
	var key [33]byte
	key[0] = 0x02
	key[1] = 0x02
	acct := makeAccount(db, key, 2) // weight available is only 1

	v := NewVerifier(db, 2)
	err := v.CheckRequired(Required{Active: []types.ObjectID{acct}}, [][33]byte{key})
	require.ErrorIs(t, err, xerrors.ErrMissingActiveAuthority)
}

func TestCheckRequiredDetectsDuplicateSignatures(t *testing.T) {
	db := objectdb.NewDatabase(10)
	var key [33]byte
	key[0] = 0x02
	acct := makeAccount(db, key, 1)

	v := NewVerifier(db, 2)
	err := v.CheckRequired(Required{Active: []types.ObjectID{acct}}, [][33]byte{key, key})
	require.Error(t, err)
}

func TestCheckRequiredRecursesIntoAccountAuths(t *testing.T) {
	db := objectdb.NewDatabase(10)
	var subKey [33]byte
	subKey[0] = 0x03
	sub := makeAccount(db, subKey, 1)

	parentID, _ := objectdb.Create(db, db.Accounts, func(id types.ObjectID, a *types.Account) {
		a.Active = types.Authority{
			Threshold:    1,
			AccountAuths: []types.AuthorityAccount{{Account: sub, Weight: 1}},
		}
		a.Owner = a.Active
	})

	v := NewVerifier(db, 2)
	require.NoError(t, v.CheckRequired(Required{Active: []types.ObjectID{parentID}}, [][33]byte{subKey}))
}

func TestCheckRequiredDepthExceeded(t *testing.T) {
	db := objectdb.NewDatabase(10)
	var leafKey [33]byte
	leafKey[0] = 0x04
	leaf := makeAccount(db, leafKey, 1)

	mid, _ := objectdb.Create(db, db.Accounts, func(id types.ObjectID, a *types.Account) {
		a.Active = types.Authority{Threshold: 1, AccountAuths: []types.AuthorityAccount{{Account: leaf, Weight: 1}}}
		a.Owner = a.Active
	})
	top, _ := objectdb.Create(db, db.Accounts, func(id types.ObjectID, a *types.Account) {
		a.Active = types.Authority{Threshold: 1, AccountAuths: []types.AuthorityAccount{{Account: mid, Weight: 1}}}
		a.Owner = a.Active
	})

	v := NewVerifier(db, 1) // only one hop of recursion allowed
	err := v.CheckRequired(Required{Active: []types.ObjectID{top}}, [][33]byte{leafKey})
	require.Error(t, err)
}
