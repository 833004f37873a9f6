package objectdb

import (
	"testing"

	"github.com/stretchr/testify/require"

	"marketchain/types"
)

func TestFindAccountByName(t *testing.T) {
	db := NewDatabase(10)
	id, _ := Create(db, db.Accounts, func(id types.ObjectID, a *types.Account) { a.Name = "alice" })

	found, acct, ok := FindAccountByName(db, "alice")
	require.True(t, ok)
	require.Equal(t, id, found)
	require.Equal(t, "alice", acct.Name)

	_, _, ok = FindAccountByName(db, "bob")
	require.False(t, ok)
}

func TestCallOrdersByAssetAscending(t *testing.T) {
	db := NewDatabase(10)
	core := types.ObjectID{Space: types.SpaceProtocol, Type: types.TypeAsset, Instance: 0}
	bit := types.ObjectID{Space: types.SpaceProtocol, Type: types.TypeAsset, Instance: 1}

	mk := func(collateral, debt int64) {
		Create(db, db.CallOrders, func(id types.ObjectID, co *types.CallOrder) {
			co.Collateral = types.Amount{Amount: collateral, AssetID: core}
			co.Debt = types.Amount{Amount: debt, AssetID: bit}
			co.CallPrice = types.CallPrice(co.Debt, co.Collateral, 1750)
		})
	}
	mk(350, 100) // looser collateral -> lower call price
	mk(175, 100) // tighter collateral -> higher call price

	ordered := CallOrdersByAssetAscending(db, bit)
	require.Len(t, ordered, 2)
	first, _ := db.CallOrders.Get(ordered[0])
	second, _ := db.CallOrders.Get(ordered[1])
	require.True(t, first.CallPrice.LessThan(second.CallPrice))
}
