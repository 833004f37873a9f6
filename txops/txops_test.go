package txops

import (
	"testing"

	"github.com/stretchr/testify/require"

	"marketchain/evaluator"
	"marketchain/objectdb"
	"marketchain/types"
)

func newTestContext(t *testing.T) (*evaluator.Context, *evaluator.Registry) {
	t.Helper()
	db := objectdb.NewDatabase(10)
	params := types.ChainParameters{
		MaximumAuthorityMembership:   10,
		MaximumAuthorityDepth:        2,
		CashbackVestingThreshold:     1000,
		NetworkPercentOfFee:          2000,
		LifetimeReferrerPercentOfFee: 3000,
	}
	ctx := evaluator.NewContext(db, params, 1_700_000_000, 1)
	reg := evaluator.NewRegistry()
	RegisterAll(reg)
	ctx.Registry = reg
	objectdb.Create(db, db.Assets, func(id types.ObjectID, a *types.Asset) {
		a.Symbol = "CORE"
	})
	return ctx, reg
}

func mustCreateAccount(t *testing.T, ctx *evaluator.Context, name string) types.ObjectID {
	t.Helper()
	id, _ := objectdb.Create(ctx.DB, ctx.DB.Accounts, func(id types.ObjectID, a *types.Account) {
		a.Name = name
	})
	statsID, _ := objectdb.Create(ctx.DB, ctx.DB.AccountStats, func(id types.ObjectID, s *types.AccountStatistics) {
		s.Owner = id
	})
	_, _, err := objectdb.Modify(ctx.DB, ctx.DB.Accounts, id, func(a *types.Account) {
		a.Statistics = statsID
	})
	require.NoError(t, err)
	return id
}

func TestTransferMovesBalance(t *testing.T) {
	ctx, reg := newTestContext(t)
	alice := mustCreateAccount(t, ctx, "alice")
	bob := mustCreateAccount(t, ctx, "bob")

	objectdb.Create(ctx.DB, ctx.DB.AccountBalances, func(id types.ObjectID, ab *types.AccountBalance) {
		ab.Owner, ab.Asset, ab.Balance = alice, types.CoreAssetID, 1000
	})

	op := types.TransferOp{
		From:   alice,
		To:     bob,
		Amount: types.Amount{Amount: 400, AssetID: types.CoreAssetID},
		Fee:    types.Amount{AssetID: types.CoreAssetID},
	}
	_, err := evaluator.Dispatch(ctx, reg, op, nil)
	require.NoError(t, err)

	require.Equal(t, int64(600), objectdb.GetBalance(ctx.DB, alice, types.CoreAssetID))
	require.Equal(t, int64(400), objectdb.GetBalance(ctx.DB, bob, types.CoreAssetID))
}

func TestTransferFailsOnInsufficientBalance(t *testing.T) {
	ctx, reg := newTestContext(t)
	alice := mustCreateAccount(t, ctx, "alice")
	bob := mustCreateAccount(t, ctx, "bob")

	op := types.TransferOp{
		From:   alice,
		To:     bob,
		Amount: types.Amount{Amount: 1, AssetID: types.CoreAssetID},
		Fee:    types.Amount{AssetID: types.CoreAssetID},
	}
	_, err := evaluator.Dispatch(ctx, reg, op, nil)
	require.Error(t, err)
}

func TestAccountCreateSplitsFeeBetweenRegistrarAndReferrer(t *testing.T) {
	ctx, reg := newTestContext(t)
	registrar := mustCreateAccount(t, ctx, "registrar")
	referrer := mustCreateAccount(t, ctx, "referrer")

	objectdb.Create(ctx.DB, ctx.DB.AccountBalances, func(id types.ObjectID, ab *types.AccountBalance) {
		ab.Owner, ab.Asset, ab.Balance = registrar, types.CoreAssetID, 100000
	})

	op := types.AccountCreateOp{
		Registrar:       registrar,
		Referrer:        referrer,
		ReferrerPercent: 5000,
		Name:            "newacct",
		Owner:           types.Authority{Threshold: 1, KeyAuths: []types.AuthorityKey{{Weight: 1}}},
		Active:          types.Authority{Threshold: 1, KeyAuths: []types.AuthorityKey{{Weight: 1}}},
		Fee:             types.Amount{Amount: 10000, AssetID: types.CoreAssetID},
	}
	result, err := evaluator.Dispatch(ctx, reg, op, nil)
	require.NoError(t, err)
	require.False(t, result.NewObjectID.IsNull())

	created, ok := ctx.DB.Accounts.Get(result.NewObjectID)
	require.True(t, ok)
	require.Equal(t, "newacct", created.Name)

	registrarAcct := ctx.DB.Accounts.MustGet(registrar)
	registrarStats := ctx.DB.AccountStats.MustGet(registrarAcct.Statistics)
	referrerAcct := ctx.DB.Accounts.MustGet(referrer)
	referrerStats := ctx.DB.AccountStats.MustGet(referrerAcct.Statistics)

	// 20% network cut leaves 8000 to split 50/50 between registrar and
	// referrer; creation-fee cuts always enter the vesting cashback bucket
	// and are released to spendable balances at the next maintenance pass.
	require.Equal(t, int64(4000), referrerStats.Cashback)
	require.Equal(t, int64(4000), registrarStats.Cashback)
	require.Equal(t, int64(90000), objectdb.GetBalance(ctx.DB, registrar, types.CoreAssetID))
}

func TestTransferCollectsFee(t *testing.T) {
	ctx, reg := newTestContext(t)
	alice := mustCreateAccount(t, ctx, "alice")
	bob := mustCreateAccount(t, ctx, "bob")

	objectdb.Create(ctx.DB, ctx.DB.AccountBalances, func(id types.ObjectID, ab *types.AccountBalance) {
		ab.Owner, ab.Asset, ab.Balance = alice, types.CoreAssetID, 1000
	})

	op := types.TransferOp{
		From:   alice,
		To:     bob,
		Amount: types.Amount{Amount: 400, AssetID: types.CoreAssetID},
		Fee:    types.Amount{Amount: 50, AssetID: types.CoreAssetID},
	}
	_, err := evaluator.Dispatch(ctx, reg, op, nil)
	require.NoError(t, err)

	require.Equal(t, int64(550), objectdb.GetBalance(ctx.DB, alice, types.CoreAssetID), "fee is debited on top of the amount")
	require.Equal(t, int64(400), objectdb.GetBalance(ctx.DB, bob, types.CoreAssetID))

	aliceAcct := ctx.DB.Accounts.MustGet(alice)
	aliceStats := ctx.DB.AccountStats.MustGet(aliceAcct.Statistics)
	require.Equal(t, int64(50), aliceStats.PendingVestedFees, "a fee under the vesting threshold awaits the split in the immediate bucket")
	require.Equal(t, int64(50), aliceStats.LifetimeFeesPaid)
}

func TestTransferFailsWhenFeeNotCovered(t *testing.T) {
	ctx, reg := newTestContext(t)
	alice := mustCreateAccount(t, ctx, "alice")
	bob := mustCreateAccount(t, ctx, "bob")

	objectdb.Create(ctx.DB, ctx.DB.AccountBalances, func(id types.ObjectID, ab *types.AccountBalance) {
		ab.Owner, ab.Asset, ab.Balance = alice, types.CoreAssetID, 420
	})

	op := types.TransferOp{
		From:   alice,
		To:     bob,
		Amount: types.Amount{Amount: 400, AssetID: types.CoreAssetID},
		Fee:    types.Amount{Amount: 50, AssetID: types.CoreAssetID},
	}
	_, err := evaluator.Dispatch(ctx, reg, op, nil)
	require.Error(t, err, "amount alone is covered but amount+fee is not")
}

func TestLimitOrderFillOrKillRejectedWhenUnfilled(t *testing.T) {
	ctx, reg := newTestContext(t)
	seller := mustCreateAccount(t, ctx, "seller")
	quoteAsset, _ := objectdb.Create(ctx.DB, ctx.DB.Assets, func(id types.ObjectID, a *types.Asset) {
		a.Symbol = "USD"
	})

	objectdb.Create(ctx.DB, ctx.DB.AccountBalances, func(id types.ObjectID, ab *types.AccountBalance) {
		ab.Owner, ab.Asset, ab.Balance = seller, types.CoreAssetID, 1000
	})

	op := types.LimitOrderCreateOp{
		Seller:       seller,
		ForSale:      types.Amount{Amount: 100, AssetID: types.CoreAssetID},
		MinToReceive: types.Amount{Amount: 100, AssetID: quoteAsset},
		Expiration:   ctx.HeadBlockTime + 3600,
		FillOrKill:   true,
		Fee:          types.Amount{AssetID: types.CoreAssetID},
	}
	// The chain controller wraps every operation's Apply in its own undo
	// sub-session so a rejected fill-or-kill rolls back its partial debit;
	// reproduce that here rather than depend on the chain controller.
	session := ctx.DB.NewSession()
	_, err := evaluator.Dispatch(ctx, reg, op, nil)
	require.Error(t, err, "no opposing order exists, so a fill-or-kill create must fail")
	session.Undo()
	require.Equal(t, int64(1000), objectdb.GetBalance(ctx.DB, seller, types.CoreAssetID), "the per-operation undo session must restore the locked balance")
}

func TestLimitOrderCancelReturnsBalance(t *testing.T) {
	ctx, reg := newTestContext(t)
	seller := mustCreateAccount(t, ctx, "seller")
	quoteAsset, _ := objectdb.Create(ctx.DB, ctx.DB.Assets, func(id types.ObjectID, a *types.Asset) {
		a.Symbol = "USD"
	})
	objectdb.Create(ctx.DB, ctx.DB.AccountBalances, func(id types.ObjectID, ab *types.AccountBalance) {
		ab.Owner, ab.Asset, ab.Balance = seller, types.CoreAssetID, 1000
	})

	createOp := types.LimitOrderCreateOp{
		Seller:       seller,
		ForSale:      types.Amount{Amount: 100, AssetID: types.CoreAssetID},
		MinToReceive: types.Amount{Amount: 100, AssetID: quoteAsset},
		Expiration:   ctx.HeadBlockTime + 3600,
		Fee:          types.Amount{AssetID: types.CoreAssetID},
	}
	result, err := evaluator.Dispatch(ctx, reg, createOp, nil)
	require.NoError(t, err)
	require.Equal(t, int64(900), objectdb.GetBalance(ctx.DB, seller, types.CoreAssetID))

	cancelOp := types.LimitOrderCancelOp{Order: result.NewObjectID, Seller: seller, Fee: types.Amount{AssetID: types.CoreAssetID}}
	_, err = evaluator.Dispatch(ctx, reg, cancelOp, nil)
	require.NoError(t, err)
	require.Equal(t, int64(1000), objectdb.GetBalance(ctx.DB, seller, types.CoreAssetID))
	_, stillExists := ctx.DB.LimitOrders.Get(result.NewObjectID)
	require.False(t, stillExists)
}
