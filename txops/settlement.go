package txops

import (
	"marketchain/crypto"
	"marketchain/evaluator"
	"marketchain/market"
	"marketchain/objectdb"
	"marketchain/types"
	"marketchain/xerrors"
)

// balanceClaimCooldownSeconds is the minimum gap between two withdrawals
// from the same vesting balance.
const balanceClaimCooldownSeconds = 24 * 60 * 60

// ForceSettleEvaluator implements ForceSettle: queues a request to
// redeem a market-issued asset holding against the debt pool at a
// feed-derived price, executed later (possibly over several blocks) by
// market.Engine.ExecuteForceSettlements rather than immediately.
type ForceSettleEvaluator struct{}

func (ForceSettleEvaluator) Evaluate(ctx *evaluator.Context, body types.OperationBody) (evaluator.Fee, error) {
	op := body.(types.ForceSettleOp)
	if _, ok := ctx.DB.Accounts.Get(op.Account); !ok {
		return evaluator.Fee{}, xerrors.New(xerrors.KindOperation, "txops.ForceSettle", op.Account.String(), xerrors.ErrObjectNotFound)
	}
	asset, ok := ctx.DB.Assets.Get(op.Amount.AssetID)
	if !ok {
		return evaluator.Fee{}, xerrors.New(xerrors.KindOperation, "txops.ForceSettle", op.Amount.AssetID.String(), xerrors.ErrObjectNotFound)
	}
	if !asset.IsMarketIssued() {
		return evaluator.Fee{}, xerrors.New(xerrors.KindOperation, "txops.ForceSettle", op.Amount.AssetID.String(), xerrors.ErrNotMarketIssued)
	}
	bd, ok := ctx.DB.BitassetData.Get(asset.BitassetData)
	if !ok {
		return evaluator.Fee{}, xerrors.New(xerrors.KindState, "txops.ForceSettle", asset.BitassetData.String(), xerrors.ErrObjectNotFound)
	}
	if bd.HasSettlement {
		return evaluator.Fee{}, xerrors.New(xerrors.KindOperation, "txops.ForceSettle", op.Amount.AssetID.String(), xerrors.ErrAlreadySettled)
	}
	if op.Amount.Amount <= 0 {
		return evaluator.Fee{}, xerrors.New(xerrors.KindOperation, "txops.ForceSettle", "", xerrors.ErrMalformedAuthority)
	}
	if objectdb.GetBalance(ctx.DB, op.Account, op.Amount.AssetID) < op.Amount.Amount {
		return evaluator.Fee{}, xerrors.New(xerrors.KindOperation, "txops.ForceSettle", op.Account.String(), xerrors.ErrInsufficientBalance)
	}
	return evaluator.PrepareFee(ctx.DB, op.Account, op.Fee)
}

func (ForceSettleEvaluator) Apply(ctx *evaluator.Context, body types.OperationBody) (types.OperationResult, error) {
	op := body.(types.ForceSettleOp)
	asset := ctx.DB.Assets.MustGet(op.Amount.AssetID)
	bd := ctx.DB.BitassetData.MustGet(asset.BitassetData)

	if err := market.Debit(ctx.DB, op.Account, op.Amount.AssetID, op.Amount.Amount); err != nil {
		return types.OperationResult{}, err
	}
	reqID, _ := objectdb.Create(ctx.DB, ctx.DB.ForceSettlements, func(id types.ObjectID, fs *types.ForceSettlement) {
		fs.Owner = op.Account
		fs.Balance = op.Amount
		fs.ExecuteAfter = ctx.HeadBlockTime + int64(bd.Options.ForceSettlementDelaySeconds)
	})
	return types.OperationResult{NewObjectID: reqID}, nil
}

// BalanceClaimEvaluator implements BalanceClaim: redeems a genesis
// Balance object into a live account balance once its signing key matches
// one of the owner's legacy or modern address encodings and any vesting
// cooldown has elapsed. The fee is always zero: the claimant may not yet
// hold any core asset to pay one with, and a claimed balance frees memory
// rather than growing state.
type BalanceClaimEvaluator struct{}

func (BalanceClaimEvaluator) Evaluate(ctx *evaluator.Context, body types.OperationBody) (evaluator.Fee, error) {
	op := body.(types.BalanceClaimOp)
	if _, ok := ctx.DB.Accounts.Get(op.DepositToAccount); !ok {
		return evaluator.Fee{}, xerrors.New(xerrors.KindOperation, "txops.BalanceClaim", op.DepositToAccount.String(), xerrors.ErrObjectNotFound)
	}
	balance, ok := ctx.DB.Balances.Get(op.BalanceToClaim)
	if !ok {
		return evaluator.Fee{}, xerrors.New(xerrors.KindOperation, "txops.BalanceClaim", op.BalanceToClaim.String(), xerrors.ErrObjectNotFound)
	}
	if !crypto.MatchesOwner(op.BalanceOwnerKey, balance.Owner) {
		return evaluator.Fee{}, xerrors.New(xerrors.KindAuthority, "txops.BalanceClaim", op.BalanceToClaim.String(), xerrors.ErrMissingOwnerAuthority)
	}
	if balance.LastClaimDate != 0 && ctx.HeadBlockTime-balance.LastClaimDate < balanceClaimCooldownSeconds {
		return evaluator.Fee{}, xerrors.New(xerrors.KindOperation, "txops.BalanceClaim", op.BalanceToClaim.String(), xerrors.ErrBalanceClaimedTooOften)
	}
	allowed := op.TotalClaimed.Amount
	if balance.Vesting != nil {
		allowed = balance.Vesting.AllowedWithdraw(balance.Balance.Amount, ctx.HeadBlockTime)
	} else {
		allowed = balance.Balance.Amount
	}
	if op.TotalClaimed.AssetID != balance.Balance.AssetID || op.TotalClaimed.Amount > allowed || op.TotalClaimed.Amount <= 0 {
		return evaluator.Fee{}, xerrors.New(xerrors.KindOperation, "txops.BalanceClaim", op.BalanceToClaim.String(), xerrors.ErrInsufficientBalance)
	}
	return evaluator.Fee{}, nil
}

func (BalanceClaimEvaluator) Apply(ctx *evaluator.Context, body types.OperationBody) (types.OperationResult, error) {
	op := body.(types.BalanceClaimOp)
	balance := ctx.DB.Balances.MustGet(op.BalanceToClaim)

	if balance.Vesting != nil {
		if _, _, err := objectdb.Modify(ctx.DB, ctx.DB.Balances, op.BalanceToClaim, func(b *types.Balance) {
			b.Vesting.Withdrawn += op.TotalClaimed.Amount
			b.LastClaimDate = ctx.HeadBlockTime
		}); err != nil {
			return types.OperationResult{}, err
		}
		if balance.Vesting.Withdrawn+op.TotalClaimed.Amount >= balance.Balance.Amount {
			if _, err := objectdb.Remove(ctx.DB, ctx.DB.Balances, op.BalanceToClaim); err != nil {
				return types.OperationResult{}, err
			}
		}
	} else {
		if _, err := objectdb.Remove(ctx.DB, ctx.DB.Balances, op.BalanceToClaim); err != nil {
			return types.OperationResult{}, err
		}
	}

	market.Credit(ctx.DB, op.DepositToAccount, op.TotalClaimed.AssetID, op.TotalClaimed.Amount)
	return types.OperationResult{}, nil
}
