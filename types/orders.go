package types

// LimitOrder is a resting offer to sell ForSale.Amount of ForSale.AssetID at
// no worse than SellPrice (Base == ForSale asset, Quote == asset wanted).
type LimitOrder struct {
	ID         ObjectID
	Seller     ObjectID
	ForSale    Amount
	SellPrice  Price
	Expiration int64 // unix seconds
	DeferredFee int64 // fee deducted from proceeds if the order pays fees on fill rather than creation
}

// MinToReceive is the amount the seller wants in exchange for ForSale at
// the full sell price (ForSale converted through SellPrice).
func (o LimitOrder) MinToReceive() Amount {
	return o.SellPrice.Mul(o.ForSale.Amount)
}

// CallOrder is an open collateralized-debt position on a market-issued
// asset, indexed both by (Borrower, Debt.AssetID) and by CallPrice.
type CallOrder struct {
	ID         ObjectID
	Borrower   ObjectID
	Collateral Amount
	Debt       Amount
	CallPrice  Price
}

// ForceSettlement is a pending request to redeem a market-issued asset at
// the feed price (minus an offset), to be executed once ExecuteAfter has
// passed.
type ForceSettlement struct {
	ID           ObjectID
	Owner        ObjectID
	Balance      Amount
	ExecuteAfter int64 // unix seconds: head_time at request + ForceSettlementDelaySeconds
}
