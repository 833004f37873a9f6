package market

import (
	"sort"

	"marketchain/objectdb"
	"marketchain/types"
)

// ExecuteForceSettlements runs the per-block force-settlement pass:
// every pending request on debtAsset whose ExecuteAfter has passed is filled
// against the cheapest open call orders at the feed price discounted by
// BitassetOptions.ForceSettlementOffsetPercent, up to a per-maintenance-period
// volume cap. Requests that cannot be filled (cap exhausted, or no call
// orders remain) are left pending for a later block.
func (e *Engine) ExecuteForceSettlements(assetID, bitassetID types.ObjectID, headTime int64) error {
	bd, ok := e.DB.BitassetData.Get(bitassetID)
	if !ok || bd.HasSettlement || bd.CurrentFeed.SettlementPrice.IsNull() {
		return nil
	}
	asset, ok := e.DB.Assets.Get(assetID)
	if !ok {
		return nil
	}
	dd, ok := e.DB.AssetDynamicData.Get(asset.DynamicData)
	if !ok {
		return nil
	}

	volumeCap := dd.CurrentSupply * int64(bd.Options.MaximumForceSettlementVolumePercent) / 10000
	remaining := volumeCap - dd.ForceSettledVolumeThisPeriod
	if remaining <= 0 {
		return nil
	}

	settlePrice := forceSettlementPrice(bd)
	collateralAsset := bd.Options.ShortBackingAsset

	pending := pendingForceSettlements(e.DB, assetID, headTime)
	for _, reqID := range pending {
		if remaining <= 0 {
			break
		}
		req, ok := e.DB.ForceSettlements.Get(reqID)
		if !ok {
			continue
		}
		amount := minAmount(req.Balance.Amount, remaining)

		filled, err := e.fillForceSettlement(reqID, req, amount, settlePrice, collateralAsset, assetID)
		if err != nil {
			return err
		}
		if filled <= 0 {
			continue
		}
		remaining -= filled
		e.reduceSupply(assetID, filled)
		dd.ForceSettledVolumeThisPeriod += filled
	}

	_, _, err := objectdb.Modify(e.DB, e.DB.AssetDynamicData, asset.DynamicData, func(d *types.AssetDynamicData) {
		d.ForceSettledVolumeThisPeriod = dd.ForceSettledVolumeThisPeriod
	})
	return err
}

// forceSettlementPrice discounts the feed's settlement price (Base=debt,
// Quote=collateral) by the configured offset, in favor of the call orders
// paying it: the requester receives slightly less collateral per unit of
// debt settled than the raw feed price implies.
func forceSettlementPrice(bd types.BitassetData) types.Price {
	const denom = 10000
	p := bd.CurrentFeed.SettlementPrice
	discounted := p.Quote.Amount * int64(denom-bd.Options.ForceSettlementOffsetPercent) / denom
	return types.Price{
		Base:  p.Base,
		Quote: types.Amount{Amount: discounted, AssetID: p.Quote.AssetID},
	}
}

// fillForceSettlement buys amount of debtAsset from the cheapest open call
// orders at settlePrice (Base=debt, Quote=collateral), crediting the
// requester with collateral and reducing both the call's debt/collateral and
// the requester's remaining settlement balance. It returns how much debt was
// actually filled, which may be less than amount if call orders run out.
func (e *Engine) fillForceSettlement(reqID types.ObjectID, req types.ForceSettlement, amount int64, settlePrice types.Price, collateralAsset, debtAsset types.ObjectID) (int64, error) {
	var filled int64
	for _, callID := range objectdb.CallOrdersByAssetAscending(e.DB, debtAsset) {
		if filled >= amount {
			break
		}
		call, ok := e.DB.CallOrders.Get(callID)
		if !ok {
			continue
		}
		tradedDebt := minAmount(amount-filled, call.Debt.Amount)
		if tradedDebt <= 0 {
			continue
		}
		collateralPaid := settlePrice.Mul(tradedDebt).Amount
		if collateralPaid > call.Collateral.Amount {
			collateralPaid = call.Collateral.Amount
		}

		Credit(e.DB, req.Owner, collateralAsset, collateralPaid)

		call.Debt.Amount -= tradedDebt
		call.Collateral.Amount -= collateralPaid
		filled += tradedDebt

		if call.Debt.Amount <= 0 {
			if call.Collateral.Amount > 0 {
				Credit(e.DB, call.Borrower, collateralAsset, call.Collateral.Amount)
			}
			if _, err := objectdb.Remove(e.DB, e.DB.CallOrders, callID); err != nil {
				return filled, err
			}
			continue
		}
		if _, _, err := objectdb.Modify(e.DB, e.DB.CallOrders, callID, func(co *types.CallOrder) {
			*co = call
		}); err != nil {
			return filled, err
		}
	}

	remainingBalance := req.Balance.Amount - filled
	if remainingBalance <= 0 {
		_, err := objectdb.Remove(e.DB, e.DB.ForceSettlements, reqID)
		return filled, err
	}
	_, _, err := objectdb.Modify(e.DB, e.DB.ForceSettlements, reqID, func(fs *types.ForceSettlement) {
		fs.Balance.Amount = remainingBalance
	})
	return filled, err
}

// pendingForceSettlements returns every ForceSettlement on assetID whose
// ExecuteAfter has passed, oldest request first (fairness: first-requested,
// first-filled).
func pendingForceSettlements(db *objectdb.Database, assetID types.ObjectID, headTime int64) []types.ObjectID {
	var ids []types.ObjectID
	executeAfter := map[types.ObjectID]int64{}
	db.ForceSettlements.ForEach(func(id types.ObjectID, fs types.ForceSettlement) bool {
		if fs.Balance.AssetID == assetID && fs.ExecuteAfter <= headTime {
			ids = append(ids, id)
			executeAfter[id] = fs.ExecuteAfter
		}
		return true
	})
	sort.Slice(ids, func(i, j int) bool {
		if executeAfter[ids[i]] != executeAfter[ids[j]] {
			return executeAfter[ids[i]] < executeAfter[ids[j]]
		}
		return ids[i].Less(ids[j])
	})
	return ids
}

// ResetForceSettlementVolume is called once per maintenance interval to
// clear the per-asset forced-settlement cap counter.
func ResetForceSettlementVolume(db *objectdb.Database) error {
	var err error
	db.AssetDynamicData.ForEach(func(id types.ObjectID, dd types.AssetDynamicData) bool {
		if dd.ForceSettledVolumeThisPeriod == 0 {
			return true
		}
		if _, _, e := objectdb.Modify(db, db.AssetDynamicData, id, func(d *types.AssetDynamicData) {
			d.ForceSettledVolumeThisPeriod = 0
		}); e != nil {
			err = e
			return false
		}
		return true
	})
	return err
}

// IsPredictionMarketBalanced reports whether a prediction-market bitasset's
// invariant holds: every unit of debt is backed 1:1 by collateral of the
// same denomination, the condition CallOrderUpdate must preserve
// (delta_collateral == delta_debt) when the asset is a prediction market.
func IsPredictionMarketBalanced(deltaCollateral, deltaDebt int64) bool {
	return deltaCollateral == deltaDebt
}
