package chain

import (
	"testing"

	"github.com/stretchr/testify/require"

	"marketchain/objectdb"
	"marketchain/types"
)

func newFeeAccount(t *testing.T, db *objectdb.Database, name string, membership types.MembershipKind) types.ObjectID {
	t.Helper()
	id, _ := objectdb.Create(db, db.Accounts, func(id types.ObjectID, a *types.Account) {
		a.Name = name
		a.Membership = membership
	})
	statsID, _ := objectdb.Create(db, db.AccountStats, func(sid types.ObjectID, s *types.AccountStatistics) {
		s.Owner = id
	})
	_, _, err := objectdb.Modify(db, db.Accounts, id, func(a *types.Account) { a.Statistics = statsID })
	require.NoError(t, err)
	return id
}

func statsOf(t *testing.T, db *objectdb.Database, account types.ObjectID) types.AccountStatistics {
	t.Helper()
	acct := db.Accounts.MustGet(account)
	return db.AccountStats.MustGet(acct.Statistics)
}

func feeTestParams() types.ChainParameters {
	return types.ChainParameters{
		NetworkPercentOfFee:          2000,
		LifetimeReferrerPercentOfFee: 3000,
		CashbackVestingThreshold:     1000,
	}
}

// wireReferral sets up: ann registered and referred by life (lifetime
// member), stud registered by life and referred by ann at 50%.
func wireReferral(t *testing.T, db *objectdb.Database, life, ann, stud types.ObjectID, annExpiration int64) {
	t.Helper()
	_, _, err := objectdb.Modify(db, db.Accounts, ann, func(a *types.Account) {
		a.Registrar = life
		a.Options.Referrer = life
		a.Options.ReferrerPercent = 10000
		a.LifetimeReferrer = life
		a.MembershipExpiration = annExpiration
	})
	require.NoError(t, err)
	_, _, err = objectdb.Modify(db, db.Accounts, stud, func(a *types.Account) {
		a.Registrar = life
		a.Options.Referrer = ann
		a.Options.ReferrerPercent = 5000
		a.LifetimeReferrer = life
	})
	require.NoError(t, err)
}

func addPendingFees(t *testing.T, db *objectdb.Database, account types.ObjectID, pending, pendingVested int64) {
	t.Helper()
	acct := db.Accounts.MustGet(account)
	_, _, err := objectdb.Modify(db, db.AccountStats, acct.Statistics, func(s *types.AccountStatistics) {
		s.PendingFees += pending
		s.PendingVestedFees += pendingVested
	})
	require.NoError(t, err)
}

func TestProcessFeesSplitsAcrossReferralChain(t *testing.T) {
	db := objectdb.NewDatabase(10)
	now := int64(1_700_000_000)
	life := newFeeAccount(t, db, "life", types.MembershipLifetime)
	ann := newFeeAccount(t, db, "ann", types.MembershipAnnual)
	stud := newFeeAccount(t, db, "stud", types.MembershipBasic)
	wireReferral(t, db, life, ann, stud, now+1000)

	addPendingFees(t, db, stud, 10_000, 0)
	require.NoError(t, processFees(db, feeTestParams(), now))

	// Of 10_000: the network burns 2000, life collects the 3000 lifetime
	// cut plus half the 5000 referral remainder as registrar, and ann takes
	// the other half as stud's referrer.
	require.Equal(t, int64(5500), statsOf(t, db, life).Cashback)
	require.Equal(t, int64(2500), statsOf(t, db, ann).Cashback)
	require.Equal(t, int64(0), statsOf(t, db, stud).Cashback)

	studStats := statsOf(t, db, stud)
	require.Zero(t, studStats.PendingFees)
	require.Zero(t, studStats.PendingVestedFees)

	// Awards vest to spendable balances one maintenance pass later.
	require.NoError(t, vestCashback(db))
	require.Equal(t, int64(5500), objectdb.GetBalance(db, life, types.CoreAssetID))
	require.Equal(t, int64(2500), objectdb.GetBalance(db, ann, types.CoreAssetID))
	require.Zero(t, statsOf(t, db, life).Cashback)
}

func TestProcessFeesExpiredReferrerForfeitsToRegistrar(t *testing.T) {
	db := objectdb.NewDatabase(10)
	now := int64(1_700_000_000)
	life := newFeeAccount(t, db, "life", types.MembershipLifetime)
	ann := newFeeAccount(t, db, "ann", types.MembershipAnnual)
	stud := newFeeAccount(t, db, "stud", types.MembershipBasic)
	wireReferral(t, db, life, ann, stud, now-1)

	addPendingFees(t, db, stud, 10_000, 0)
	require.NoError(t, processFees(db, feeTestParams(), now))

	require.Equal(t, int64(8000), statsOf(t, db, life).Cashback, "expired referrer's cut reverts to the registrar")
	require.Equal(t, int64(0), statsOf(t, db, ann).Cashback)
}

func TestProcessFeesSmallFeesCreditBalancesImmediately(t *testing.T) {
	db := objectdb.NewDatabase(10)
	now := int64(1_700_000_000)
	life := newFeeAccount(t, db, "life", types.MembershipLifetime)
	ann := newFeeAccount(t, db, "ann", types.MembershipAnnual)
	stud := newFeeAccount(t, db, "stud", types.MembershipBasic)
	wireReferral(t, db, life, ann, stud, now+1000)

	addPendingFees(t, db, stud, 0, 100)
	require.NoError(t, processFees(db, feeTestParams(), now))

	require.Equal(t, int64(55), objectdb.GetBalance(db, life, types.CoreAssetID))
	require.Equal(t, int64(25), objectdb.GetBalance(db, ann, types.CoreAssetID))
	require.Zero(t, statsOf(t, db, life).Cashback)
	require.Zero(t, statsOf(t, db, ann).Cashback)
}

func TestProcessFeesLifetimeMemberKeepsOwnLifetimeCut(t *testing.T) {
	db := objectdb.NewDatabase(10)
	now := int64(1_700_000_000)
	life := newFeeAccount(t, db, "life", types.MembershipLifetime)

	addPendingFees(t, db, life, 10_000, 0)
	require.NoError(t, processFees(db, feeTestParams(), now))

	// With no registrar or referrer, only the lifetime-referrer cut has a
	// beneficiary: the lifetime member itself. The rest is burned.
	require.Equal(t, int64(3000), statsOf(t, db, life).Cashback)
}
