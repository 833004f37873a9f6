package types

import "github.com/holiman/uint256"

// Amount is an amount of a given asset, identified by its object instance
// within the protocol asset space.
type Amount struct {
	Amount  int64
	AssetID ObjectID
}

// Price is an exact ratio base/quote: "how much of Quote one unit of Base
// trades for", expressed as two asset amounts so every comparison can be
// done by cross-multiplication instead of floating point.
type Price struct {
	Base  Amount
	Quote Amount
}

// Invert returns the reciprocal price: base
// and quote swap places.
func (p Price) Invert() Price {
	return Price{Base: p.Quote, Quote: p.Base}
}

// IsNull reports whether neither amount of the price is set, the sentinel
// meaning "no feed published yet".
func (p Price) IsNull() bool {
	return p.Base.Amount == 0 && p.Quote.Amount == 0
}

// crossMultiply returns the product a*b (one side of a cross multiplication)
// using 256-bit arithmetic so large amount*amount products never overflow
// int64, matching the "128-bit cross multiplication" requirement with
// additional headroom.
func crossMultiply(a, b int64) *uint256.Int {
	x := new(uint256.Int).SetUint64(uint64(a))
	y := new(uint256.Int).SetUint64(uint64(b))
	return new(uint256.Int).Mul(x, y)
}

// LessThan compares two prices over the same asset pair (Base.AssetID and
// Quote.AssetID must match between p and other, possibly after inverting
// one of them by the caller) using cross multiplication: p < other iff
// p.Base*other.Quote < other.Base*p.Quote.
func (p Price) LessThan(other Price) bool {
	lhs := crossMultiply(p.Base.Amount, other.Quote.Amount)
	rhs := crossMultiply(other.Base.Amount, p.Quote.Amount)
	return lhs.Lt(rhs)
}

// GreaterThan is the strict complement used by margin-call comparisons.
func (p Price) GreaterThan(other Price) bool {
	return other.LessThan(p)
}

// LessOrEqual reports p <= other.
func (p Price) LessOrEqual(other Price) bool {
	return !p.GreaterThan(other)
}

// GreaterOrEqual reports p >= other.
func (p Price) GreaterOrEqual(other Price) bool {
	return !p.LessThan(other)
}

// Mul scales an amount of Base.AssetID by the price, returning an amount of
// Quote.AssetID, rounding down.
func (p Price) Mul(amount int64) Amount {
	num := crossMultiply(amount, p.Quote.Amount)
	den := new(uint256.Int).SetUint64(uint64(p.Base.Amount))
	if den.IsZero() {
		return Amount{Amount: 0, AssetID: p.Quote.AssetID}
	}
	q := new(uint256.Int).Div(num, den)
	return Amount{Amount: int64(q.Uint64()), AssetID: p.Quote.AssetID}
}

// CallPrice computes the margin-call price for a position with the given
// debt and collateral amounts at maintenance collateral ratio mcr (a
// fixed-point ratio expressed as mcr/1000, so 1750 means 1.75x).
// The result is oriented Base=debt, Quote=collateral*1000/mcr, the same
// orientation PriceFeed.SettlementPrice uses, so a position is margin called
// exactly when CallPrice.GreaterThan(feed.SettlementPrice): the collateral
// backing it, discounted down to the maintenance ratio, is worth less than
// its debt at the feed price.
func CallPrice(debt, collateral Amount, mcr uint16) Price {
	const collateralRatioDenom = 1000
	scaledCollateral := new(uint256.Int).Mul(
		new(uint256.Int).SetUint64(uint64(collateral.Amount)),
		new(uint256.Int).SetUint64(collateralRatioDenom),
	)
	scaledCollateral = scaledCollateral.Div(scaledCollateral, new(uint256.Int).SetUint64(uint64(mcr)))
	return Price{
		Base:  Amount{Amount: debt.Amount, AssetID: debt.AssetID},
		Quote: Amount{Amount: int64(scaledCollateral.Uint64()), AssetID: collateral.AssetID},
	}
}
