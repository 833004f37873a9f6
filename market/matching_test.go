package market

import (
	"testing"

	"github.com/stretchr/testify/require"

	"marketchain/objectdb"
	"marketchain/types"
)

func newAsset(db *objectdb.Database) types.ObjectID {
	id, _ := objectdb.Create(db, db.Assets, func(id types.ObjectID, a *types.Asset) {})
	return id
}

func newAccount(db *objectdb.Database, name string) types.ObjectID {
	id, _ := objectdb.Create(db, db.Accounts, func(id types.ObjectID, a *types.Account) { a.Name = name })
	return id
}

func TestCrossLimitOrderFullFill(t *testing.T) {
	db := objectdb.NewDatabase(10)
	core := newAsset(db)
	bit := newAsset(db)
	alice := newAccount(db, "alice")
	bob := newAccount(db, "bob")

	// bob rests an order: sells 100 BIT for 100 CORE (price 1:1).
	_, _ = objectdb.Create(db, db.LimitOrders, func(id types.ObjectID, lo *types.LimitOrder) {
		lo.Seller = bob
		lo.ForSale = types.Amount{Amount: 100, AssetID: bit}
		lo.SellPrice = types.Price{Base: types.Amount{Amount: 100, AssetID: bit}, Quote: types.Amount{Amount: 100, AssetID: core}}
	})

	// alice sells 100 CORE for at least 100 BIT -- crosses bob's order exactly.
	Credit(db, alice, core, 100)
	newID, _ := objectdb.Create(db, db.LimitOrders, func(id types.ObjectID, lo *types.LimitOrder) {
		lo.Seller = alice
		lo.ForSale = types.Amount{Amount: 100, AssetID: core}
		lo.SellPrice = types.Price{Base: types.Amount{Amount: 100, AssetID: core}, Quote: types.Amount{Amount: 100, AssetID: bit}}
	})

	e := New(db)
	filled, err := e.CrossLimitOrder(newID)
	require.NoError(t, err)
	require.True(t, filled)

	require.Equal(t, int64(100), objectdb.GetBalance(db, alice, bit))
	require.Equal(t, int64(100), objectdb.GetBalance(db, bob, core))
	require.Equal(t, 0, db.LimitOrders.Len(), "both fully-filled orders must be removed")
}

func TestCrossLimitOrderPartialFillLeavesRemainder(t *testing.T) {
	db := objectdb.NewDatabase(10)
	core := newAsset(db)
	bit := newAsset(db)
	alice := newAccount(db, "alice")
	bob := newAccount(db, "bob")

	_, _ = objectdb.Create(db, db.LimitOrders, func(id types.ObjectID, lo *types.LimitOrder) {
		lo.Seller = bob
		lo.ForSale = types.Amount{Amount: 40, AssetID: bit}
		lo.SellPrice = types.Price{Base: types.Amount{Amount: 40, AssetID: bit}, Quote: types.Amount{Amount: 40, AssetID: core}}
	})

	newID, _ := objectdb.Create(db, db.LimitOrders, func(id types.ObjectID, lo *types.LimitOrder) {
		lo.Seller = alice
		lo.ForSale = types.Amount{Amount: 100, AssetID: core}
		lo.SellPrice = types.Price{Base: types.Amount{Amount: 100, AssetID: core}, Quote: types.Amount{Amount: 100, AssetID: bit}}
	})

	e := New(db)
	filled, err := e.CrossLimitOrder(newID)
	require.NoError(t, err)
	require.True(t, filled)

	remaining, ok := db.LimitOrders.Get(newID)
	require.True(t, ok, "order must remain resting with its unfilled balance")
	require.Equal(t, int64(60), remaining.ForSale.Amount)
	require.Equal(t, int64(40), objectdb.GetBalance(db, alice, bit))
	require.Equal(t, int64(40), objectdb.GetBalance(db, bob, core))
}

func TestCrossLimitOrderNoMatchWhenPricesDontCross(t *testing.T) {
	db := objectdb.NewDatabase(10)
	core := newAsset(db)
	bit := newAsset(db)
	bob := newAccount(db, "bob")
	alice := newAccount(db, "alice")

	_, _ = objectdb.Create(db, db.LimitOrders, func(id types.ObjectID, lo *types.LimitOrder) {
		lo.Seller = bob
		lo.ForSale = types.Amount{Amount: 100, AssetID: bit}
		lo.SellPrice = types.Price{Base: types.Amount{Amount: 100, AssetID: bit}, Quote: types.Amount{Amount: 200, AssetID: core}}
	})
	newID, _ := objectdb.Create(db, db.LimitOrders, func(id types.ObjectID, lo *types.LimitOrder) {
		lo.Seller = alice
		lo.ForSale = types.Amount{Amount: 100, AssetID: core}
		lo.SellPrice = types.Price{Base: types.Amount{Amount: 100, AssetID: core}, Quote: types.Amount{Amount: 1000, AssetID: bit}}
	})

	e := New(db)
	filled, err := e.CrossLimitOrder(newID)
	require.NoError(t, err)
	require.False(t, filled)
	require.Equal(t, 2, db.LimitOrders.Len())
}
