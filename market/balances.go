// Package market implements the matching engine: limit-order crossing,
// margin-call matching, black-swan global settlement, and scheduled force
// settlement, over the object store the evaluator framework also mutates.
package market

import (
	"marketchain/objectdb"
	"marketchain/types"
	"marketchain/xerrors"
)

// Credit adds amount of asset to owner's balance, creating the
// AccountBalance object on first use.
func Credit(db *objectdb.Database, owner, asset types.ObjectID, amount int64) {
	if amount == 0 {
		return
	}
	id, _, ok := objectdb.FindAccountBalance(db, owner, asset)
	if !ok {
		objectdb.Create(db, db.AccountBalances, func(id types.ObjectID, ab *types.AccountBalance) {
			ab.Owner, ab.Asset, ab.Balance = owner, asset, amount
		})
		return
	}
	objectdb.Modify(db, db.AccountBalances, id, func(ab *types.AccountBalance) {
		ab.Balance += amount
	})
}

// Debit subtracts amount of asset from owner's balance, failing with
// ErrInsufficientBalance if owner does not hold enough.
func Debit(db *objectdb.Database, owner, asset types.ObjectID, amount int64) error {
	if amount == 0 {
		return nil
	}
	id, ab, ok := objectdb.FindAccountBalance(db, owner, asset)
	if !ok || ab.Balance < amount {
		return xerrors.New(xerrors.KindOperation, "market.Debit", owner.String(), xerrors.ErrInsufficientBalance)
	}
	_, _, err := objectdb.Modify(db, db.AccountBalances, id, func(ab *types.AccountBalance) {
		ab.Balance -= amount
	})
	return err
}
