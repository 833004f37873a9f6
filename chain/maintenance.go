package chain

import (
	"sort"

	"marketchain/market"
	"marketchain/objectdb"
	"marketchain/types"
)

// runMaintenance performs the periodic chain maintenance pass:
// stake-weighted approval voting re-tallies the witness and delegate
// rosters, any delegate-queued parameter change takes effect, previously
// awarded cashback vests, the interval's accumulated fees are split across
// each payer's referral chain, and the per-interval force-settlement volume
// cap resets.
// It runs inside ApplyBlock's block-level session, so a failure here unwinds
// the whole block along with every transaction already applied to it.
func (c *Controller) runMaintenance(gp *types.GlobalProperties, dgp *types.DynamicGlobalProperties, headTime int64) error {
	tally := tallyVotes(c.DB)

	var witnessIDs []types.ObjectID
	c.DB.Witnesses.ForEach(func(id types.ObjectID, _ types.Witness) bool {
		witnessIDs = append(witnessIDs, id)
		return true
	})
	for _, id := range witnessIDs {
		if _, _, err := objectdb.Modify(c.DB, c.DB.Witnesses, id, func(w *types.Witness) {
			w.TotalVotes = tally[id]
		}); err != nil {
			return err
		}
	}

	var delegateIDs []types.ObjectID
	c.DB.Delegates.ForEach(func(id types.ObjectID, _ types.Delegate) bool {
		delegateIDs = append(delegateIDs, id)
		return true
	})
	for _, id := range delegateIDs {
		if _, _, err := objectdb.Modify(c.DB, c.DB.Delegates, id, func(d *types.Delegate) {
			d.TotalVotes = tally[id]
		}); err != nil {
			return err
		}
	}

	gp.ActiveWitnesses = topByVotes(witnessIDs, tally, int(gp.Parameters.ActiveWitnessCount))
	gp.ActiveDelegates = topByVotes(delegateIDs, tally, int(gp.Parameters.ActiveDelegateCount))

	if gp.NextParameters != nil {
		gp.Parameters = *gp.NextParameters
		gp.NextParameters = nil
	}

	if err := vestCashback(c.DB); err != nil {
		return err
	}
	if err := processFees(c.DB, gp.Parameters, headTime); err != nil {
		return err
	}

	if err := market.ResetForceSettlementVolume(c.DB); err != nil {
		return err
	}

	dgp.NextMaintenanceTime += int64(gp.Parameters.MaintenanceIntervalSeconds)

	_, _, err := objectdb.Modify(c.DB, c.DB.GlobalProps, globalPropertiesID, func(g *types.GlobalProperties) {
		*g = *gp
	})
	return err
}

// tallyVotes sums each account's core balance into every witness/delegate id
// named in its VotingSlate. Stake is the voter's core-asset balance at
// tally time; there is no separate staking lockup.
func tallyVotes(db *objectdb.Database) map[types.ObjectID]int64 {
	tally := make(map[types.ObjectID]int64)
	db.Accounts.ForEach(func(id types.ObjectID, a types.Account) bool {
		stake := objectdb.GetBalance(db, id, types.CoreAssetID)
		if stake <= 0 {
			return true
		}
		for _, target := range a.Options.VotingSlate {
			tally[target] += stake
		}
		return true
	})
	return tally
}

// topByVotes selects the top `count` of ids by tally weight, breaking ties
// by ascending object id for a deterministic roster independent of map
// iteration order (the lower, earlier-registered id wins a tie).
func topByVotes(ids []types.ObjectID, tally map[types.ObjectID]int64, count int) []types.ObjectID {
	sorted := append([]types.ObjectID(nil), ids...)
	sort.Slice(sorted, func(i, j int) bool {
		vi, vj := tally[sorted[i]], tally[sorted[j]]
		if vi != vj {
			return vi > vj
		}
		return sorted[i].Instance < sorted[j].Instance
	})
	if count > len(sorted) {
		count = len(sorted)
	}
	return sorted[:count]
}

// vestCashback credits cashback awarded at an earlier maintenance pass to
// each beneficiary's spendable core balance. Account statistics record no
// per-deposit vesting clock, so the whole bucket releases after one full
// interval rather than interpolating a partial vest. Runs before
// processFees so this interval's fresh awards wait out their own interval.
func vestCashback(db *objectdb.Database) error {
	type award struct {
		stats, owner types.ObjectID
		amount       int64
	}
	var work []award
	db.AccountStats.ForEach(func(id types.ObjectID, s types.AccountStatistics) bool {
		if s.Cashback > 0 {
			work = append(work, award{stats: id, owner: s.Owner, amount: s.Cashback})
		}
		return true
	})
	for _, w := range work {
		market.Credit(db, w.owner, types.CoreAssetID, w.amount)
		if _, _, err := objectdb.Modify(db, db.AccountStats, w.stats, func(s *types.AccountStatistics) {
			s.Cashback = 0
		}); err != nil {
			return err
		}
	}
	return nil
}

// processFees distributes every account's fees accumulated since the last
// maintenance pass across its referral chain: the network's cut is burned,
// the lifetime-referrer cut goes to the payer's lifetime referrer (the
// payer itself for a lifetime member), and the remainder splits between
// referrer and registrar by the payer's configured referrer percent. A
// referrer whose membership has lapsed forfeits its cut to the registrar.
// Cuts of fees that exceeded the vesting threshold land in the
// beneficiary's vesting cashback bucket; cuts of smaller fees credit the
// beneficiary's spendable balance immediately.
func processFees(db *objectdb.Database, params types.ChainParameters, now int64) error {
	type pending struct {
		stats, owner types.ObjectID
		fees, vested int64
	}
	var work []pending
	db.AccountStats.ForEach(func(id types.ObjectID, s types.AccountStatistics) bool {
		if s.PendingFees > 0 || s.PendingVestedFees > 0 {
			work = append(work, pending{stats: id, owner: s.Owner, fees: s.PendingFees, vested: s.PendingVestedFees})
		}
		return true
	})
	for _, w := range work {
		payer, ok := db.Accounts.Get(w.owner)
		if !ok {
			continue
		}
		if err := splitFee(db, params, w.owner, payer, now, w.fees, false); err != nil {
			return err
		}
		if err := splitFee(db, params, w.owner, payer, now, w.vested, true); err != nil {
			return err
		}
		if _, _, err := objectdb.Modify(db, db.AccountStats, w.stats, func(s *types.AccountStatistics) {
			s.PendingFees = 0
			s.PendingVestedFees = 0
		}); err != nil {
			return err
		}
	}
	return nil
}

func splitFee(db *objectdb.Database, params types.ChainParameters, payerID types.ObjectID, payer types.Account, now, total int64, vested bool) error {
	if total <= 0 {
		return nil
	}
	networkCut := total * int64(params.NetworkPercentOfFee) / 10000
	lifetimeCut := total * int64(params.LifetimeReferrerPercentOfFee) / 10000
	referral := total - networkCut - lifetimeCut

	var referrerCut int64
	referrer := payer.Options.Referrer
	if !referrer.IsNull() && referrer != payer.Registrar {
		if refAcct, ok := db.Accounts.Get(referrer); ok && refAcct.MembershipCurrent(now) {
			referrerCut = referral * int64(payer.Options.ReferrerPercent) / 10000
		}
	}
	// Registrar takes the rounding remainder so the three deposits plus the
	// burned network cut always sum to the fee collected.
	registrarCut := referral - referrerCut

	lifetimeTarget := payer.LifetimeReferrer
	if payer.Membership == types.MembershipLifetime {
		lifetimeTarget = payerID
	}
	if lifetimeTarget.IsNull() {
		lifetimeTarget = payer.Registrar
	}

	if err := depositCashback(db, lifetimeTarget, lifetimeCut, vested); err != nil {
		return err
	}
	if err := depositCashback(db, referrer, referrerCut, vested); err != nil {
		return err
	}
	return depositCashback(db, payer.Registrar, registrarCut, vested)
}

// depositCashback awards a referral cut to accountID: straight to the
// spendable core balance for cuts of fees small enough to vest immediately,
// into the vesting bucket otherwise. A null or vanished beneficiary burns
// the cut, like the network share.
func depositCashback(db *objectdb.Database, accountID types.ObjectID, amount int64, vested bool) error {
	if amount <= 0 || accountID.IsNull() {
		return nil
	}
	acct, ok := db.Accounts.Get(accountID)
	if !ok {
		return nil
	}
	if vested {
		market.Credit(db, accountID, types.CoreAssetID, amount)
		return nil
	}
	_, _, err := objectdb.Modify(db, db.AccountStats, acct.Statistics, func(s *types.AccountStatistics) {
		s.Cashback += amount
	})
	return err
}
