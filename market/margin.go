package market

import (
	"marketchain/objectdb"
	"marketchain/types"
	"marketchain/xerrors"
)

// MarginCallResult reports what a margin-call matching pass did, letting
// CallOrderUpdate's evaluator detect when the position it just touched was
// itself consumed (which must reject the update).
type MarginCallResult struct {
	ClosedCallOrders    []types.ObjectID // fully covered and removed
	PartiallyFilled     []types.ObjectID // still open, debt reduced
	BlackSwan           bool
}

// Consumed reports whether id was fully covered (closed) by this pass.
func (r MarginCallResult) Consumed(id types.ObjectID) bool {
	for _, c := range r.ClosedCallOrders {
		if c == id {
			return true
		}
	}
	return false
}

// CheckCallOrders scans every open call order on bitassetID's asset,
// descending by call price (the most undercollateralized first), and matches
// any that have fallen under the margin-call line against the opposing
// limit-order book, filling at the better of the limit price or the feed's
// maximum-short-squeeze price. If the scan exhausts limit orders
// while underwater calls remain, it globally settles the asset when
// allowBlackSwan is true; otherwise it leaves the remaining calls open and
// reports no black swan (the caller, typically CallOrderUpdate, is
// responsible for rejecting an update that needed one).
func (e *Engine) CheckCallOrders(assetID types.ObjectID, bitassetID types.ObjectID, allowBlackSwan bool) (MarginCallResult, error) {
	var result MarginCallResult
	bd, ok := e.DB.BitassetData.Get(bitassetID)
	if !ok {
		return result, xerrors.New(xerrors.KindState, "market.CheckCallOrders", bitassetID.String(), xerrors.ErrObjectNotFound)
	}
	if bd.HasSettlement || bd.IsPredictionMarket || bd.CurrentFeed.SettlementPrice.IsNull() {
		return result, nil
	}
	collateralAsset := bd.Options.ShortBackingAsset

	ordered := objectdb.CallOrdersByAssetAscending(e.DB, assetID)
	for i := len(ordered) - 1; i >= 0; i-- {
		callID := ordered[i]
		call, ok := e.DB.CallOrders.Get(callID)
		if !ok {
			continue
		}
		if !marginCalled(call, bd.CurrentFeed) {
			break // descending order: once one call is safe, all later ones are too
		}

		filledAny, closed, err := e.matchOneCallOrder(callID, call, bd, collateralAsset, assetID)
		if err != nil {
			return result, err
		}
		if closed {
			result.ClosedCallOrders = append(result.ClosedCallOrders, callID)
			continue
		}
		if filledAny {
			result.PartiallyFilled = append(result.PartiallyFilled, callID)
		}

		// Re-fetch: the call may still be underwater with no liquidity left.
		remaining, ok := e.DB.CallOrders.Get(callID)
		if ok && marginCalled(remaining, bd.CurrentFeed) && !filledAny {
			if !allowBlackSwan {
				return result, nil // leave it underwater; caller decides what to do
			}
			if err := e.GlobalSettle(assetID, bitassetID, remaining.CallPrice); err != nil {
				return result, err
			}
			result.BlackSwan = true
			return result, nil
		}
	}
	return result, nil
}

// marginCalled reports whether call has fallen under the margin-call line:
// call_price > feed.settlement_price (more debt per unit of
// maintenance-discounted collateral than the feed's rate), both oriented
// Base=debt, Quote=collateral.
func marginCalled(call types.CallOrder, feed types.PriceFeed) bool {
	return call.CallPrice.GreaterThan(feed.SettlementPrice)
}

// matchOneCallOrder fills as much of call's debt as the opposing limit book
// can cover, at min(limit price, max short squeeze price). It returns
// whether anything filled and whether the call was fully closed.
func (e *Engine) matchOneCallOrder(callID types.ObjectID, call types.CallOrder, bd types.BitassetData, collateralAsset, debtAsset types.ObjectID) (filledAny bool, closed bool, err error) {
	squeezePrice := bd.CurrentFeed.MaxShortSqueezePrice() // Base=debt, Quote=collateral

	resting := objectdb.LimitOrdersForMarketDescending(e.DB, debtAsset, collateralAsset)
	for _, restID := range resting {
		if call.Debt.Amount <= 0 {
			break
		}
		rest, ok := e.DB.LimitOrders.Get(restID)
		if !ok {
			continue
		}
		// rest sells debtAsset for collateralAsset at rest.SellPrice
		// (Base=debt, Quote=collateral), the same orientation the feed's
		// settlement price and its squeeze cap use. Pay whichever is
		// cheaper for the call: the resting order's rate or the cap.
		fillPrice := rest.SellPrice // Base=debt, Quote=collateral
		if fillPrice.GreaterThan(squeezePrice) {
			fillPrice = squeezePrice // Base=debt, Quote=collateral, capped
		}

		debtAvailable := rest.ForSale.Amount
		debtNeeded := call.Debt.Amount
		tradedDebt := minAmount(debtAvailable, debtNeeded)
		if tradedDebt <= 0 {
			break
		}
		collateralCost := fillPrice.Mul(tradedDebt).Amount
		if collateralCost > call.Collateral.Amount {
			// Can't afford even the capped price for this much debt; take
			// only what the remaining collateral affords.
			tradedDebt = fillPrice.Invert().Mul(call.Collateral.Amount).Amount
			if tradedDebt <= 0 {
				break
			}
			collateralCost = fillPrice.Mul(tradedDebt).Amount
		}

		Credit(e.DB, rest.Seller, collateralAsset, collateralCost)
		// The debt asset bought back is retired, not credited to anyone:
		// it extinguishes call.Debt and the asset's current_supply.
		e.reduceSupply(debtAsset, tradedDebt)

		call.Debt.Amount -= tradedDebt
		call.Collateral.Amount -= collateralCost
		filledAny = true

		newRestForSale := rest.ForSale.Amount - tradedDebt
		if newRestForSale <= 0 {
			objectdb.Remove(e.DB, e.DB.LimitOrders, restID)
		} else {
			objectdb.Modify(e.DB, e.DB.LimitOrders, restID, func(lo *types.LimitOrder) {
				lo.ForSale.Amount = newRestForSale
			})
		}
	}

	if !filledAny {
		return false, false, nil
	}

	if call.Debt.Amount <= 0 {
		Credit(e.DB, call.Borrower, collateralAsset, call.Collateral.Amount)
		_, err := objectdb.Remove(e.DB, e.DB.CallOrders, callID)
		return true, true, err
	}
	call.CallPrice = types.CallPrice(call.Debt, call.Collateral, bd.Options.MaintenanceCollateralRatio)
	_, _, err = objectdb.Modify(e.DB, e.DB.CallOrders, callID, func(co *types.CallOrder) {
		*co = call
	})
	return true, false, err
}

func (e *Engine) reduceSupply(assetID types.ObjectID, amount int64) {
	asset, ok := e.DB.Assets.Get(assetID)
	if !ok {
		return
	}
	objectdb.Modify(e.DB, e.DB.AssetDynamicData, asset.DynamicData, func(dd *types.AssetDynamicData) {
		dd.CurrentSupply -= amount
	})
}

func (e *Engine) increaseSupply(assetID types.ObjectID, amount int64) {
	asset, ok := e.DB.Assets.Get(assetID)
	if !ok {
		return
	}
	objectdb.Modify(e.DB, e.DB.AssetDynamicData, asset.DynamicData, func(dd *types.AssetDynamicData) {
		dd.CurrentSupply += amount
	})
}

// GlobalSettle forcibly closes every open call order on assetID into a
// single settlement pool at settlementPrice, the last feasible price before
// liquidity ran out. After this call no CallOrder exists for assetID and
// BitassetData.HasSettlement is true, forbidding further CallOrderUpdate.
func (e *Engine) GlobalSettle(assetID, bitassetID types.ObjectID, settlementPrice types.Price) error {
	var totalCollateral int64
	for _, callID := range objectdb.CallOrdersByAssetAscending(e.DB, assetID) {
		call, ok := e.DB.CallOrders.Get(callID)
		if !ok {
			continue
		}
		totalCollateral += call.Collateral.Amount
		if _, err := objectdb.Remove(e.DB, e.DB.CallOrders, callID); err != nil {
			return err
		}
	}
	_, _, err := objectdb.Modify(e.DB, e.DB.BitassetData, bitassetID, func(bd *types.BitassetData) {
		bd.HasSettlement = true
		bd.SettlementPrice = settlementPrice
		bd.SettlementFund = totalCollateral
	})
	return err
}

// SettleHolding redeems amount of a globally-settled asset from owner's
// balance against the settlement fund, at the pinned settlement price.
func (e *Engine) SettleHolding(assetID, bitassetID, owner types.ObjectID, amount int64) error {
	bd, ok := e.DB.BitassetData.Get(bitassetID)
	if !ok || !bd.HasSettlement {
		return xerrors.New(xerrors.KindOperation, "market.SettleHolding", assetID.String(), xerrors.ErrNotMarketIssued)
	}
	collateralOwed := bd.SettlementPrice.Mul(amount).Amount
	if collateralOwed > bd.SettlementFund {
		collateralOwed = bd.SettlementFund
	}
	if err := Debit(e.DB, owner, assetID, amount); err != nil {
		return err
	}
	e.reduceSupply(assetID, amount)
	Credit(e.DB, owner, bd.SettlementPrice.Quote.AssetID, collateralOwed)
	_, _, err := objectdb.Modify(e.DB, e.DB.BitassetData, bitassetID, func(bd *types.BitassetData) {
		bd.SettlementFund -= collateralOwed
	})
	return err
}
