package market

import (
	"marketchain/objectdb"
	"marketchain/types"
)

// Engine runs the order-matching and margin-call algorithms over a live
// object store.
type Engine struct {
	DB *objectdb.Database
}

func New(db *objectdb.Database) *Engine {
	return &Engine{DB: db}
}

// CrossLimitOrder attempts to fill newOrder (which sells assetA for assetB)
// against the resting book of orders selling assetB for assetA, best price
// first. Each fill happens at the resting order's price (price-time
// priority: the order that was already on the book wins the price). It
// mutates both sides in place, removing any order whose ForSale amount
// falls to zero, and credits each side's AccountBalance directly. It
// returns true if newOrder was filled at all (fully or partially).
func (e *Engine) CrossLimitOrder(newOrderID types.ObjectID) (filled bool, err error) {
	order, ok := e.DB.LimitOrders.Get(newOrderID)
	if !ok {
		return false, nil
	}
	assetA := order.ForSale.AssetID
	assetB := order.SellPrice.Quote.AssetID

	resting := objectdb.LimitOrdersForMarketDescending(e.DB, assetB, assetA)
	for _, restID := range resting {
		if restID == newOrderID || order.ForSale.Amount <= 0 {
			continue
		}
		rest, ok := e.DB.LimitOrders.Get(restID)
		if !ok {
			continue
		}

		// rest sells assetB for assetA at rest.SellPrice (Base=assetB,
		// Quote=assetA). Align it to our order's Base/Quote orientation
		// (Base=assetA, Quote=assetB) by inverting, then compare: the trade
		// crosses when our minimum acceptable rate is no better than what
		// rest is offering.
		fillPrice := rest.SellPrice.Invert() // Base=assetA, Quote=assetB
		if !fillPrice.LessOrEqual(order.SellPrice) {
			break // book is sorted best-first; nothing further down it can cross
		}

		restNeedsA := rest.SellPrice.Mul(rest.ForSale.Amount).Amount // assetA needed to fully drain rest
		tradedA := minAmount(order.ForSale.Amount, restNeedsA)
		if tradedA <= 0 {
			break
		}
		gotB := fillPrice.Mul(tradedA).Amount
		if gotB <= 0 {
			break
		}

		Credit(e.DB, order.Seller, assetB, gotB)
		Credit(e.DB, rest.Seller, assetA, tradedA)

		order.ForSale.Amount -= tradedA
		newRestB := rest.ForSale.Amount - gotB
		if newRestB <= 0 {
			objectdb.Remove(e.DB, e.DB.LimitOrders, restID)
		} else {
			objectdb.Modify(e.DB, e.DB.LimitOrders, restID, func(lo *types.LimitOrder) {
				lo.ForSale.Amount = newRestB
			})
		}
		filled = true
	}

	if order.ForSale.Amount <= 0 {
		objectdb.Remove(e.DB, e.DB.LimitOrders, newOrderID)
	} else if filled {
		objectdb.Modify(e.DB, e.DB.LimitOrders, newOrderID, func(lo *types.LimitOrder) {
			lo.ForSale.Amount = order.ForSale.Amount
		})
	}
	return filled, nil
}

func minAmount(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}
