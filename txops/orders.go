package txops

import (
	"marketchain/evaluator"
	"marketchain/market"
	"marketchain/objectdb"
	"marketchain/types"
	"marketchain/xerrors"
)

// LimitOrderCreateEvaluator implements LimitOrderCreate: locks
// for_sale from the seller and inserts the order; if it crosses the
// opposing book it is matched immediately, possibly fully filling and
// removing it before this call returns.
type LimitOrderCreateEvaluator struct{}

func (LimitOrderCreateEvaluator) Evaluate(ctx *evaluator.Context, body types.OperationBody) (evaluator.Fee, error) {
	op := body.(types.LimitOrderCreateOp)
	if _, ok := ctx.DB.Accounts.Get(op.Seller); !ok {
		return evaluator.Fee{}, xerrors.New(xerrors.KindOperation, "txops.LimitOrderCreate", op.Seller.String(), xerrors.ErrObjectNotFound)
	}
	if op.ForSale.Amount <= 0 || op.MinToReceive.Amount <= 0 {
		return evaluator.Fee{}, xerrors.New(xerrors.KindOperation, "txops.LimitOrderCreate", "", xerrors.ErrMalformedAuthority)
	}
	fee, err := evaluator.PrepareFee(ctx.DB, op.Seller, op.Fee)
	if err != nil {
		return evaluator.Fee{}, err
	}
	needed := op.ForSale.Amount
	if fee.Asset == op.ForSale.AssetID {
		needed += fee.Amount
	}
	if objectdb.GetBalance(ctx.DB, op.Seller, op.ForSale.AssetID) < needed {
		return evaluator.Fee{}, xerrors.New(xerrors.KindOperation, "txops.LimitOrderCreate", op.Seller.String(), xerrors.ErrInsufficientBalance)
	}
	return fee, nil
}

func (LimitOrderCreateEvaluator) Apply(ctx *evaluator.Context, body types.OperationBody) (types.OperationResult, error) {
	op := body.(types.LimitOrderCreateOp)
	if err := market.Debit(ctx.DB, op.Seller, op.ForSale.AssetID, op.ForSale.Amount); err != nil {
		return types.OperationResult{}, err
	}
	orderID, _ := objectdb.Create(ctx.DB, ctx.DB.LimitOrders, func(id types.ObjectID, lo *types.LimitOrder) {
		lo.Seller = op.Seller
		lo.ForSale = op.ForSale
		lo.SellPrice = op.SellPrice()
		lo.Expiration = op.Expiration
	})
	if _, err := ctx.Market.CrossLimitOrder(orderID); err != nil {
		return types.OperationResult{}, err
	}
	if op.FillOrKill {
		if _, stillOpen := ctx.DB.LimitOrders.Get(orderID); stillOpen {
			return types.OperationResult{}, xerrors.New(xerrors.KindMarket, "txops.LimitOrderCreate", orderID.String(), xerrors.ErrFillOrKillNotFilled)
		}
	}
	return checkMarginCallsForMarket(ctx, op.ForSale.AssetID, op.SellPrice().Quote.AssetID, types.OperationResult{NewObjectID: orderID})
}

// checkMarginCallsForMarket re-checks margin calls on either side of a
// traded market after a limit order crosses, since a newly-resting or
// newly-filled order can change whether an existing underwater call order
// now has liquidity to fill against.
func checkMarginCallsForMarket(ctx *evaluator.Context, assetA, assetB types.ObjectID, result types.OperationResult) (types.OperationResult, error) {
	for _, assetID := range []types.ObjectID{assetA, assetB} {
		asset, ok := ctx.DB.Assets.Get(assetID)
		if !ok || !asset.IsMarketIssued() {
			continue
		}
		if _, err := ctx.Market.CheckCallOrders(assetID, asset.BitassetData, false); err != nil {
			return result, err
		}
	}
	return result, nil
}

// LimitOrderCancelEvaluator implements LimitOrderCancel: returns the
// remaining for_sale balance to the seller.
type LimitOrderCancelEvaluator struct{}

func (LimitOrderCancelEvaluator) Evaluate(ctx *evaluator.Context, body types.OperationBody) (evaluator.Fee, error) {
	op := body.(types.LimitOrderCancelOp)
	order, ok := ctx.DB.LimitOrders.Get(op.Order)
	if !ok {
		return evaluator.Fee{}, xerrors.New(xerrors.KindOperation, "txops.LimitOrderCancel", op.Order.String(), xerrors.ErrObjectNotFound)
	}
	if order.Seller != op.Seller {
		return evaluator.Fee{}, xerrors.New(xerrors.KindAuthority, "txops.LimitOrderCancel", op.Seller.String(), xerrors.ErrMissingActiveAuthority)
	}
	return evaluator.PrepareFee(ctx.DB, op.Seller, op.Fee)
}

func (LimitOrderCancelEvaluator) Apply(ctx *evaluator.Context, body types.OperationBody) (types.OperationResult, error) {
	op := body.(types.LimitOrderCancelOp)
	order, err := objectdb.Remove(ctx.DB, ctx.DB.LimitOrders, op.Order)
	if err != nil {
		return types.OperationResult{}, err
	}
	market.Credit(ctx.DB, order.Seller, order.ForSale.AssetID, order.ForSale.Amount)
	return types.OperationResult{}, nil
}

// CallOrderUpdateEvaluator implements CallOrderUpdate:
// asserts the asset is market-issued, not globally settled, backed by the
// right collateral asset, and that the payer can cover the requested
// deltas; apply then adjusts balances, mutates or removes the call order,
// recomputes call_price, and runs the market engine with
// allow_black_swan=false, rejecting the update if that consumed the order
// entirely (it must have fully covered to be valid at all).
type CallOrderUpdateEvaluator struct{}

func (CallOrderUpdateEvaluator) Evaluate(ctx *evaluator.Context, body types.OperationBody) (evaluator.Fee, error) {
	op := body.(types.CallOrderUpdateOp)
	if _, ok := ctx.DB.Accounts.Get(op.FundingAccount); !ok {
		return evaluator.Fee{}, xerrors.New(xerrors.KindOperation, "txops.CallOrderUpdate", op.FundingAccount.String(), xerrors.ErrObjectNotFound)
	}
	debtAssetID := op.DeltaDebt.AssetID
	asset, ok := ctx.DB.Assets.Get(debtAssetID)
	if !ok {
		return evaluator.Fee{}, xerrors.New(xerrors.KindOperation, "txops.CallOrderUpdate", debtAssetID.String(), xerrors.ErrObjectNotFound)
	}
	if !asset.IsMarketIssued() {
		return evaluator.Fee{}, xerrors.New(xerrors.KindOperation, "txops.CallOrderUpdate", debtAssetID.String(), xerrors.ErrNotMarketIssued)
	}
	bd, ok := ctx.DB.BitassetData.Get(asset.BitassetData)
	if !ok {
		return evaluator.Fee{}, xerrors.New(xerrors.KindState, "txops.CallOrderUpdate", asset.BitassetData.String(), xerrors.ErrObjectNotFound)
	}
	if bd.HasSettlement {
		return evaluator.Fee{}, xerrors.New(xerrors.KindOperation, "txops.CallOrderUpdate", debtAssetID.String(), xerrors.ErrAlreadySettled)
	}
	if op.DeltaCollateral.AssetID != bd.Options.ShortBackingAsset {
		return evaluator.Fee{}, xerrors.New(xerrors.KindOperation, "txops.CallOrderUpdate", op.DeltaCollateral.AssetID.String(), xerrors.ErrNotMarketIssued)
	}
	if bd.IsPredictionMarket && !market.IsPredictionMarketBalanced(op.DeltaCollateral.Amount, op.DeltaDebt.Amount) {
		return evaluator.Fee{}, xerrors.New(xerrors.KindMarket, "txops.CallOrderUpdate", "", xerrors.ErrPredictionMismatch)
	}
	if op.DeltaDebt.Amount < 0 {
		// Paying down debt: the payer must hold enough of the debt asset to
		// retire.
		if objectdb.GetBalance(ctx.DB, op.FundingAccount, debtAssetID) < -op.DeltaDebt.Amount {
			return evaluator.Fee{}, xerrors.New(xerrors.KindOperation, "txops.CallOrderUpdate", op.FundingAccount.String(), xerrors.ErrInsufficientBalance)
		}
	}
	if op.DeltaCollateral.Amount > 0 {
		fee, err := evaluator.PrepareFee(ctx.DB, op.FundingAccount, op.Fee)
		if err != nil {
			return evaluator.Fee{}, err
		}
		needed := op.DeltaCollateral.Amount
		if fee.Asset == op.DeltaCollateral.AssetID {
			needed += fee.Amount
		}
		if objectdb.GetBalance(ctx.DB, op.FundingAccount, op.DeltaCollateral.AssetID) < needed {
			return evaluator.Fee{}, xerrors.New(xerrors.KindOperation, "txops.CallOrderUpdate", op.FundingAccount.String(), xerrors.ErrInsufficientBalance)
		}
		return fee, nil
	}
	return evaluator.PrepareFee(ctx.DB, op.FundingAccount, op.Fee)
}

func (CallOrderUpdateEvaluator) Apply(ctx *evaluator.Context, body types.OperationBody) (types.OperationResult, error) {
	op := body.(types.CallOrderUpdateOp)
	debtAssetID := op.DeltaDebt.AssetID
	asset := ctx.DB.Assets.MustGet(debtAssetID)
	bd := ctx.DB.BitassetData.MustGet(asset.BitassetData)
	collateralAssetID := bd.Options.ShortBackingAsset

	if op.DeltaCollateral.Amount > 0 {
		if err := market.Debit(ctx.DB, op.FundingAccount, collateralAssetID, op.DeltaCollateral.Amount); err != nil {
			return types.OperationResult{}, err
		}
	} else if op.DeltaCollateral.Amount < 0 {
		market.Credit(ctx.DB, op.FundingAccount, collateralAssetID, -op.DeltaCollateral.Amount)
	}
	if op.DeltaDebt.Amount > 0 {
		market.Credit(ctx.DB, op.FundingAccount, debtAssetID, op.DeltaDebt.Amount)
		creditSupply(ctx, debtAssetID, op.DeltaDebt.Amount)
	} else if op.DeltaDebt.Amount < 0 {
		if err := market.Debit(ctx.DB, op.FundingAccount, debtAssetID, -op.DeltaDebt.Amount); err != nil {
			return types.OperationResult{}, err
		}
		creditSupply(ctx, debtAssetID, op.DeltaDebt.Amount)
	}

	orderID, call, existed := objectdb.FindCallOrder(ctx.DB, op.FundingAccount, debtAssetID)
	newCollateral := op.DeltaCollateral.Amount
	newDebt := op.DeltaDebt.Amount
	if existed {
		newCollateral += call.Collateral.Amount
		newDebt += call.Debt.Amount
	}

	if newDebt <= 0 || newCollateral <= 0 {
		if existed {
			if _, err := objectdb.Remove(ctx.DB, ctx.DB.CallOrders, orderID); err != nil {
				return types.OperationResult{}, err
			}
		}
		return types.OperationResult{}, nil
	}

	callPrice := types.CallPrice(
		types.Amount{Amount: newDebt, AssetID: debtAssetID},
		types.Amount{Amount: newCollateral, AssetID: collateralAssetID},
		bd.Options.MaintenanceCollateralRatio,
	)
	if !bd.IsPredictionMarket && callPrice.GreaterThan(bd.CurrentFeed.SettlementPrice) && !bd.CurrentFeed.SettlementPrice.IsNull() {
		return types.OperationResult{}, xerrors.New(xerrors.KindOperation, "txops.CallOrderUpdate", "", xerrors.ErrUnderCollateralized)
	}

	if existed {
		if _, _, err := objectdb.Modify(ctx.DB, ctx.DB.CallOrders, orderID, func(co *types.CallOrder) {
			co.Collateral.Amount = newCollateral
			co.Debt.Amount = newDebt
			co.CallPrice = callPrice
		}); err != nil {
			return types.OperationResult{}, err
		}
	} else {
		orderID, _ = objectdb.Create(ctx.DB, ctx.DB.CallOrders, func(id types.ObjectID, co *types.CallOrder) {
			co.Borrower = op.FundingAccount
			co.Collateral = types.Amount{Amount: newCollateral, AssetID: collateralAssetID}
			co.Debt = types.Amount{Amount: newDebt, AssetID: debtAssetID}
			co.CallPrice = callPrice
		})
	}

	if !bd.IsPredictionMarket {
		result, err := ctx.Market.CheckCallOrders(debtAssetID, asset.BitassetData, false)
		if err != nil {
			return types.OperationResult{}, err
		}
		if result.Consumed(orderID) {
			return types.OperationResult{}, xerrors.New(xerrors.KindMarket, "txops.CallOrderUpdate", orderID.String(), xerrors.ErrUnderCollateralized)
		}
	}
	return types.OperationResult{NewObjectID: orderID}, nil
}

func creditSupply(ctx *evaluator.Context, assetID types.ObjectID, delta int64) {
	asset, ok := ctx.DB.Assets.Get(assetID)
	if !ok {
		return
	}
	objectdb.Modify(ctx.DB, ctx.DB.AssetDynamicData, asset.DynamicData, func(dd *types.AssetDynamicData) {
		dd.CurrentSupply += delta
	})
}
