package market

import (
	"testing"

	"github.com/stretchr/testify/require"

	"marketchain/objectdb"
	"marketchain/types"
)

// setupBitasset creates a market-issued asset (bit) backed by core, with the
// given maintenance collateral ratio and squeeze ratio, and publishes a feed.
func setupBitasset(db *objectdb.Database, core types.ObjectID, mcr, squeeze uint16, settlement types.Price) (bit, bitassetID types.ObjectID) {
	ddID, _ := objectdb.Create(db, db.AssetDynamicData, func(id types.ObjectID, dd *types.AssetDynamicData) {})
	bit, _ = objectdb.Create(db, db.Assets, func(id types.ObjectID, a *types.Asset) {
		a.DynamicData = ddID
	})
	bitassetID, _ = objectdb.Create(db, db.BitassetData, func(id types.ObjectID, bd *types.BitassetData) {
		bd.Options = types.BitassetOptions{
			ShortBackingAsset:          core,
			MaintenanceCollateralRatio: mcr,
			MaximumShortSqueezeRatio:   squeeze,
		}
		bd.CurrentFeed = types.PriceFeed{
			SettlementPrice:            settlement,
			MaintenanceCollateralRatio: mcr,
			MaximumShortSqueezeRatio:   squeeze,
		}
	})
	objectdb.Modify(db, db.Assets, bit, func(a *types.Asset) { a.BitassetData = bitassetID })
	return bit, bitassetID
}

func TestCheckCallOrdersMatchesUndercollateralizedPosition(t *testing.T) {
	db := objectdb.NewDatabase(10)
	core := newAsset(db)
	alice := newAccount(db, "alice") // borrower
	bob := newAccount(db, "bob")     // sells bit for core on the book

	// MCR 1750 (1.75x), squeeze 1000 (1.0x, no cap) so the fill lands
	// exactly at the resting order's own price. The feed itself is
	// published below, once bit's own asset id exists to reference.
	bit, bitassetID := setupBitasset(db, core, 1750, 1000, types.Price{})

	// Settlement price: 1 bit == 1 core (Base=debt bit, Quote=collateral core).
	feed := types.Price{Base: types.Amount{Amount: 100, AssetID: bit}, Quote: types.Amount{Amount: 100, AssetID: core}}
	objectdb.Modify(db, db.BitassetData, bitassetID, func(bd *types.BitassetData) {
		bd.CurrentFeed.SettlementPrice = feed
	})

	// Alice's call order: 100 collateral backing 90 debt at MCR 1.75x ->
	// call_price (Base=90 bit, Quote=100*1000/1750=57 core), i.e. ~0.63
	// core/bit, below the 1:1 feed price -- margin called.
	callID, _ := objectdb.Create(db, db.CallOrders, func(id types.ObjectID, co *types.CallOrder) {
		co.Borrower = alice
		co.Collateral = types.Amount{Amount: 100, AssetID: core}
		co.Debt = types.Amount{Amount: 90, AssetID: bit}
		co.CallPrice = types.CallPrice(co.Debt, co.Collateral, 1750)
	})

	// Bob rests an order selling 90 bit for 90 core (1:1, matches the feed).
	objectdb.Create(db, db.LimitOrders, func(id types.ObjectID, lo *types.LimitOrder) {
		lo.Seller = bob
		lo.ForSale = types.Amount{Amount: 90, AssetID: bit}
		lo.SellPrice = types.Price{Base: types.Amount{Amount: 90, AssetID: bit}, Quote: types.Amount{Amount: 90, AssetID: core}}
	})

	e := New(db)
	result, err := e.CheckCallOrders(bit, bitassetID, false)
	require.NoError(t, err)
	require.Contains(t, result.ClosedCallOrders, callID)
	require.False(t, result.BlackSwan)

	_, stillOpen := db.CallOrders.Get(callID)
	require.False(t, stillOpen)
	require.Equal(t, int64(90), objectdb.GetBalance(db, bob, core))
}

func TestCheckCallOrdersBlackSwanWhenNoLiquidity(t *testing.T) {
	db := objectdb.NewDatabase(10)
	core := newAsset(db)
	alice := newAccount(db, "alice")

	bit, bitassetID := setupBitasset(db, core, 1750, 1250, types.Price{})
	feed := types.Price{Base: types.Amount{Amount: 100, AssetID: bit}, Quote: types.Amount{Amount: 100, AssetID: core}}
	objectdb.Modify(db, db.BitassetData, bitassetID, func(bd *types.BitassetData) {
		bd.CurrentFeed.SettlementPrice = feed
	})

	// Undercollateralized position, no opposing liquidity on the book at all.
	objectdb.Create(db, db.CallOrders, func(id types.ObjectID, co *types.CallOrder) {
		co.Borrower = alice
		co.Collateral = types.Amount{Amount: 50, AssetID: core}
		co.Debt = types.Amount{Amount: 90, AssetID: bit}
		co.CallPrice = types.CallPrice(co.Debt, co.Collateral, 1750)
	})

	e := New(db)
	result, err := e.CheckCallOrders(bit, bitassetID, true)
	require.NoError(t, err)
	require.True(t, result.BlackSwan)

	bd, ok := db.BitassetData.Get(bitassetID)
	require.True(t, ok)
	require.True(t, bd.HasSettlement)
	require.Equal(t, 0, db.CallOrders.Len())
}

func TestExecuteForceSettlementsFillsFromCheapestCallOrder(t *testing.T) {
	db := objectdb.NewDatabase(10)
	core := newAsset(db)
	alice := newAccount(db, "alice") // requester
	carl := newAccount(db, "carl")   // borrower

	bit, bitassetID := setupBitasset(db, core, 1750, 1250, types.Price{})
	objectdb.Modify(db, db.BitassetData, bitassetID, func(bd *types.BitassetData) {
		bd.CurrentFeed.SettlementPrice = types.Price{Base: types.Amount{Amount: 100, AssetID: bit}, Quote: types.Amount{Amount: 100, AssetID: core}}
		bd.Options.ForceSettlementOffsetPercent = 0
		bd.Options.MaximumForceSettlementVolumePercent = 10000 // no cap for this test
	})

	asset, ok := db.Assets.Get(bit)
	require.True(t, ok)
	objectdb.Modify(db, db.AssetDynamicData, asset.DynamicData, func(dd *types.AssetDynamicData) {
		dd.CurrentSupply = 1000
	})

	objectdb.Create(db, db.CallOrders, func(id types.ObjectID, co *types.CallOrder) {
		co.Borrower = carl
		co.Collateral = types.Amount{Amount: 200, AssetID: core}
		co.Debt = types.Amount{Amount: 100, AssetID: bit}
		co.CallPrice = types.CallPrice(co.Debt, co.Collateral, 1750)
	})

	objectdb.Create(db, db.ForceSettlements, func(id types.ObjectID, fs *types.ForceSettlement) {
		fs.Owner = alice
		fs.Balance = types.Amount{Amount: 50, AssetID: bit}
		fs.ExecuteAfter = 1000
	})

	e := New(db)
	require.NoError(t, e.ExecuteForceSettlements(bit, bitassetID, 2000))

	require.Equal(t, int64(50), objectdb.GetBalance(db, alice, core))
	require.Equal(t, 0, db.ForceSettlements.Len())

	call, ok := db.CallOrders.Get(mustOnlyCallOrder(t, db))
	require.True(t, ok)
	require.Equal(t, int64(50), call.Debt.Amount)
}

func mustOnlyCallOrder(t *testing.T, db *objectdb.Database) types.ObjectID {
	t.Helper()
	var found types.ObjectID
	count := 0
	db.CallOrders.ForEach(func(id types.ObjectID, co types.CallOrder) bool {
		found = id
		count++
		return true
	})
	require.Equal(t, 1, count)
	return found
}
