package objectdb

import (
	"sort"

	"marketchain/types"
)

// This file provides the secondary-key lookups evaluators and the market
// engine need (account by name, balance by owner+asset, call order by
// borrower+asset, orders for a market) as derived views over the primary
// indices rather than maintained side maps. Index already exposes OnInsert/
// OnModify/OnRemove hooks for a maintained-map implementation, but those
// hooks fire only on the Create/Modify/Remove path — Session.Undo restores
// the primary store directly (by design, so undo never re-invokes arbitrary
// mutation logic) and would silently desynchronize a hook-maintained map.
// Scanning ForEach keeps every lookup correct-by-construction across
// undo/redo at the cost of O(n) per call, acceptable at this scale.

// FindAccountByName returns the account named name, if any.
func FindAccountByName(db *Database, name string) (types.ObjectID, types.Account, bool) {
	var (
		found types.ObjectID
		obj   types.Account
		ok    bool
	)
	db.Accounts.ForEach(func(id types.ObjectID, a types.Account) bool {
		if a.Name == name {
			found, obj, ok = id, a, true
			return false
		}
		return true
	})
	return found, obj, ok
}

// FindAccountBalance returns the AccountBalance object for (owner, asset).
func FindAccountBalance(db *Database, owner, asset types.ObjectID) (types.ObjectID, types.AccountBalance, bool) {
	var (
		found types.ObjectID
		obj   types.AccountBalance
		ok    bool
	)
	db.AccountBalances.ForEach(func(id types.ObjectID, ab types.AccountBalance) bool {
		if ab.Owner == owner && ab.Asset == asset {
			found, obj, ok = id, ab, true
			return false
		}
		return true
	})
	return found, obj, ok
}

// GetBalance is a convenience wrapper returning the live balance amount for
// (owner, asset), 0 if the account has never held the asset.
func GetBalance(db *Database, owner, asset types.ObjectID) int64 {
	_, ab, ok := FindAccountBalance(db, owner, asset)
	if !ok {
		return 0
	}
	return ab.Balance
}

// FindCallOrder returns the open call order for (borrower, debtAsset), if
// any (invariant: at most one per pair).
func FindCallOrder(db *Database, borrower, debtAsset types.ObjectID) (types.ObjectID, types.CallOrder, bool) {
	var (
		found types.ObjectID
		obj   types.CallOrder
		ok    bool
	)
	db.CallOrders.ForEach(func(id types.ObjectID, co types.CallOrder) bool {
		if co.Borrower == borrower && co.Debt.AssetID == debtAsset {
			found, obj, ok = id, co, true
			return false
		}
		return true
	})
	return found, obj, ok
}

// CallOrdersByAssetAscending returns every open call order on debtAsset,
// ordered ascending by call price (the order margin-call matching scans
// them in).
func CallOrdersByAssetAscending(db *Database, debtAsset types.ObjectID) []types.ObjectID {
	var ids []types.ObjectID
	prices := map[types.ObjectID]types.Price{}
	db.CallOrders.ForEach(func(id types.ObjectID, co types.CallOrder) bool {
		if co.Debt.AssetID == debtAsset {
			ids = append(ids, id)
			prices[id] = co.CallPrice
		}
		return true
	})
	sort.Slice(ids, func(i, j int) bool {
		if prices[ids[i]].LessThan(prices[ids[j]]) {
			return true
		}
		if prices[ids[j]].LessThan(prices[ids[i]]) {
			return false
		}
		return ids[i].Less(ids[j])
	})
	return ids
}

// LimitOrdersForMarketDescending returns every resting limit order selling
// forSaleAsset for wantAsset, ordered descending by sell price (best price
// first), the order the matching engine scans the opposing book in.
func LimitOrdersForMarketDescending(db *Database, forSaleAsset, wantAsset types.ObjectID) []types.ObjectID {
	var ids []types.ObjectID
	prices := map[types.ObjectID]types.Price{}
	db.LimitOrders.ForEach(func(id types.ObjectID, lo types.LimitOrder) bool {
		if lo.ForSale.AssetID == forSaleAsset && lo.SellPrice.Quote.AssetID == wantAsset {
			ids = append(ids, id)
			prices[id] = lo.SellPrice
		}
		return true
	})
	sort.Slice(ids, func(i, j int) bool {
		pi, pj := prices[ids[i]], prices[ids[j]]
		if pi.LessThan(pj) {
			return false
		}
		if pj.LessThan(pi) {
			return true
		}
		return ids[i].Less(ids[j]) // tie-break: earlier (lower id) order first, FIFO
	})
	return ids
}
