package evaluator

import (
	"marketchain/market"
	"marketchain/objectdb"
	"marketchain/types"
	"marketchain/xerrors"
)

// Fee is the outcome of an evaluator's fee computation: the declared amount
// in whichever asset the operation names, plus its core-asset equivalent,
// which is what drains the fee asset's fee pool and accrues on the payer's
// statistics for the maintenance pass's referral split.
type Fee struct {
	Payer      types.ObjectID
	Asset      types.ObjectID
	Amount     int64
	CoreAmount int64
}

// PrepareFee resolves declared (an operation's Fee field) into a Fee,
// following generic_evaluator::prepare_fee: a core-asset fee is its own
// core amount; any other fee asset is converted through its
// CoreExchangeRate and must not exceed what the asset's fee pool can
// subsidize.
func PrepareFee(db *objectdb.Database, payer types.ObjectID, declared types.Amount) (Fee, error) {
	if declared.AssetID == types.CoreAssetID {
		return Fee{Payer: payer, Asset: declared.AssetID, Amount: declared.Amount, CoreAmount: declared.Amount}, nil
	}
	asset, ok := db.Assets.Get(declared.AssetID)
	if !ok {
		return Fee{}, xerrors.New(xerrors.KindOperation, "evaluator.PrepareFee", declared.AssetID.String(), xerrors.ErrObjectNotFound)
	}
	coreAmount := asset.Options.CoreExchangeRate.Mul(declared.Amount).Amount
	dd, ok := db.AssetDynamicData.Get(asset.DynamicData)
	if !ok {
		return Fee{}, xerrors.New(xerrors.KindState, "evaluator.PrepareFee", asset.DynamicData.String(), xerrors.ErrObjectNotFound)
	}
	if coreAmount > dd.FeePool {
		return Fee{}, xerrors.New(xerrors.KindResource, "evaluator.PrepareFee", declared.AssetID.String(), xerrors.ErrFeePoolExhausted)
	}
	return Fee{Payer: payer, Asset: declared.AssetID, Amount: declared.Amount, CoreAmount: coreAmount}, nil
}

// bulkDiscountBonus returns the cashback bonus added on top of a payment's
// core fee once the payer's lifetime fees paid crosses the configured bulk
// thresholds.
func bulkDiscountBonus(params types.ChainParameters, lifetimeFeesPaid int64) int64 {
	if params.BulkDiscountThresholdMax > 0 && lifetimeFeesPaid >= params.BulkDiscountThresholdMax {
		return params.BulkDiscountBonusMax
	}
	if params.BulkDiscountThresholdMin > 0 && lifetimeFeesPaid >= params.BulkDiscountThresholdMin {
		return params.BulkDiscountBonusMin
	}
	return 0
}

// PayFee collects a prepared fee once apply has succeeded. The declared
// amount is debited from the payer's fee-asset balance; a non-core fee
// additionally accrues into the asset's accumulated_fees while the asset's
// fee pool subsidizes the core equivalent. The core amount then accumulates
// on the payer's statistics, bucketed by CashbackVestingThreshold, for the
// next maintenance pass's referral split (network, lifetime referrer,
// referrer, registrar). A payer past a bulk-discount threshold is awarded
// the bonus as cashback directly.
func PayFee(ctx *Context, fee Fee) error {
	if err := market.Debit(ctx.DB, fee.Payer, fee.Asset, fee.Amount); err != nil {
		return err
	}
	if fee.Asset != types.CoreAssetID {
		asset, ok := ctx.DB.Assets.Get(fee.Asset)
		if !ok {
			return xerrors.New(xerrors.KindOperation, "evaluator.PayFee", fee.Asset.String(), xerrors.ErrObjectNotFound)
		}
		if _, _, err := objectdb.Modify(ctx.DB, ctx.DB.AssetDynamicData, asset.DynamicData, func(dd *types.AssetDynamicData) {
			dd.AccumulatedFees += fee.Amount
			dd.FeePool -= fee.CoreAmount
		}); err != nil {
			return err
		}
	}

	account, ok := ctx.DB.Accounts.Get(fee.Payer)
	if !ok {
		return xerrors.New(xerrors.KindOperation, "evaluator.PayFee", fee.Payer.String(), xerrors.ErrObjectNotFound)
	}
	_, _, err := objectdb.Modify(ctx.DB, ctx.DB.AccountStats, account.Statistics, func(s *types.AccountStatistics) {
		bonus := bulkDiscountBonus(ctx.Params, s.LifetimeFeesPaid)
		if fee.CoreAmount > ctx.Params.CashbackVestingThreshold {
			s.PendingFees += fee.CoreAmount
		} else {
			s.PendingVestedFees += fee.CoreAmount
		}
		s.Cashback += bonus
		s.LifetimeFeesPaid += fee.CoreAmount
	})
	return err
}

// CreditCashback awards a core-asset cashback amount into accountStats'
// vesting bucket; the maintenance pass releases it to the spendable balance
// one interval later. Exported so evaluators that split a fee across
// beneficiaries at apply time (AccountCreate's registrar/referrer split)
// deposit through the same primitive the maintenance pass's referral
// redistribution uses.
func CreditCashback(ctx *Context, accountStats types.ObjectID, coreAmount int64) error {
	if coreAmount <= 0 {
		return nil
	}
	_, _, err := objectdb.Modify(ctx.DB, ctx.DB.AccountStats, accountStats, func(s *types.AccountStatistics) {
		s.Cashback += coreAmount
	})
	return err
}
