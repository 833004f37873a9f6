package mempool

import (
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"marketchain/evaluator"
	"marketchain/objectdb"
	"marketchain/txops"
	"marketchain/types"
)

func newTestDB(t *testing.T) *objectdb.Database {
	t.Helper()
	db := objectdb.NewDatabase(10)
	objectdb.Create(db, db.Assets, func(id types.ObjectID, a *types.Asset) { a.Symbol = "CORE" })
	return db
}

func newTestAccount(t *testing.T, db *objectdb.Database, name string, balance int64) types.ObjectID {
	t.Helper()
	id, _ := objectdb.Create(db, db.Accounts, func(id types.ObjectID, a *types.Account) { a.Name = name })
	statsID, _ := objectdb.Create(db, db.AccountStats, func(_ types.ObjectID, s *types.AccountStatistics) { s.Owner = id })
	_, _, err := objectdb.Modify(db, db.Accounts, id, func(a *types.Account) { a.Statistics = statsID })
	require.NoError(t, err)
	if balance > 0 {
		objectdb.Create(db, db.AccountBalances, func(_ types.ObjectID, ab *types.AccountBalance) {
			ab.Owner, ab.Asset, ab.Balance = id, types.CoreAssetID, balance
		})
	}
	return id
}

func transferTx(from, to types.ObjectID, amount, fee int64) *types.SignedTransaction {
	return &types.SignedTransaction{
		Transaction: types.Transaction{
			RelativeExpirationSeconds: 0,
			RefBlockPrefix:            999_999_999,
			Operations: []types.Operation{{Body: types.TransferOp{
				From:   from,
				To:     to,
				Amount: types.Amount{Amount: amount, AssetID: types.CoreAssetID},
				Fee:    types.Amount{Amount: fee, AssetID: types.CoreAssetID},
			}}},
		},
	}
}

func neverStale(uint16) ([20]byte, bool) { return [20]byte{}, true }

func TestSelectOrdersByFeeDensity(t *testing.T) {
	db := newTestDB(t)
	reg := evaluator.NewRegistry()
	txops.RegisterAll(reg)
	alice := newTestAccount(t, db, "alice", 10_000)
	bob := newTestAccount(t, db, "bob", 0)
	carol := newTestAccount(t, db, "carol", 0)

	pool := NewPool(rate.Inf, 0, 0)

	low := transferTx(alice, bob, 10, 1)   // submitted first, low fee density
	high := transferTx(alice, carol, 10, 50) // submitted second, high fee density
	require.NoError(t, pool.Submit(low))
	require.NoError(t, pool.Submit(high))

	params := types.ChainParameters{MaximumAuthorityMembership: 10, CashbackVestingThreshold: 1_000_000}
	selected := Select(pool, db, reg, params, 1_700_000_000, 1, 10, neverStale)
	require.Len(t, selected, 2)
	require.Equal(t, high.TransactionID(), selected[0].TransactionID())
	require.Equal(t, low.TransactionID(), selected[1].TransactionID())
}

func TestSelectSkipsTransactionsThatFailToEvaluate(t *testing.T) {
	db := newTestDB(t)
	reg := evaluator.NewRegistry()
	txops.RegisterAll(reg)
	alice := newTestAccount(t, db, "alice", 5)
	bob := newTestAccount(t, db, "bob", 0)

	pool := NewPool(rate.Inf, 0, 0)
	tooMuch := transferTx(alice, bob, 1000, 0) // exceeds alice's balance
	require.NoError(t, pool.Submit(tooMuch))

	params := types.ChainParameters{MaximumAuthorityMembership: 10}
	selected := Select(pool, db, reg, params, 1_700_000_000, 1, 10, neverStale)
	require.Empty(t, selected)
}

func TestSelectDiscardsTrialMutations(t *testing.T) {
	db := newTestDB(t)
	reg := evaluator.NewRegistry()
	txops.RegisterAll(reg)
	alice := newTestAccount(t, db, "alice", 100)
	bob := newTestAccount(t, db, "bob", 0)

	pool := NewPool(rate.Inf, 0, 0)
	require.NoError(t, pool.Submit(transferTx(alice, bob, 40, 0)))

	params := types.ChainParameters{MaximumAuthorityMembership: 10}
	selected := Select(pool, db, reg, params, 1_700_000_000, 1, 10, neverStale)
	require.Len(t, selected, 1)

	require.Equal(t, int64(100), objectdb.GetBalance(db, alice, types.CoreAssetID))
	require.Equal(t, int64(0), objectdb.GetBalance(db, bob, types.CoreAssetID))
}

func TestSubmitRejectsOverRateLimit(t *testing.T) {
	db := newTestDB(t)
	alice := newTestAccount(t, db, "alice", 1000)
	bob := newTestAccount(t, db, "bob", 0)

	pool := NewPool(rate.Limit(0), 1, 0)
	require.NoError(t, pool.Submit(transferTx(alice, bob, 1, 0)))
	second := transferTx(alice, bob, 2, 0)
	err := pool.Submit(second)
	require.Error(t, err)
}

func TestSubmitRejectsOverCapacity(t *testing.T) {
	db := newTestDB(t)
	alice := newTestAccount(t, db, "alice", 1000)
	bob := newTestAccount(t, db, "bob", 0)

	pool := NewPool(rate.Inf, 0, 1)
	require.NoError(t, pool.Submit(transferTx(alice, bob, 1, 0)))
	err := pool.Submit(transferTx(alice, bob, 2, 0))
	require.Error(t, err)
}

func TestRemoveDropsPendingTransaction(t *testing.T) {
	db := newTestDB(t)
	alice := newTestAccount(t, db, "alice", 1000)
	bob := newTestAccount(t, db, "bob", 0)

	pool := NewPool(rate.Inf, 0, 0)
	tx := transferTx(alice, bob, 1, 0)
	require.NoError(t, pool.Submit(tx))
	require.Equal(t, 1, pool.Len())
	pool.Remove(tx.TransactionID())
	require.Equal(t, 0, pool.Len())
}
