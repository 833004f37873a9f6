// Package txops implements one evaluator per operation kind: the typed
// evaluate/apply pairs the evaluator package's dispatch loop invokes for
// each OperationTag.
package txops

import (
	"marketchain/evaluator"
	"marketchain/market"
	"marketchain/objectdb"
	"marketchain/types"
	"marketchain/xerrors"
)

// TransferEvaluator implements Transfer: debit sender, credit
// recipient in the same asset, after asserting neither side is blacklisted
// for it and the sender can cover amount+fee.
type TransferEvaluator struct{}

func (TransferEvaluator) Evaluate(ctx *evaluator.Context, body types.OperationBody) (evaluator.Fee, error) {
	op := body.(types.TransferOp)
	if _, ok := ctx.DB.Accounts.Get(op.From); !ok {
		return evaluator.Fee{}, xerrors.New(xerrors.KindOperation, "txops.Transfer", op.From.String(), xerrors.ErrObjectNotFound)
	}
	if _, ok := ctx.DB.Accounts.Get(op.To); !ok {
		return evaluator.Fee{}, xerrors.New(xerrors.KindOperation, "txops.Transfer", op.To.String(), xerrors.ErrObjectNotFound)
	}
	asset, ok := ctx.DB.Assets.Get(op.Amount.AssetID)
	if !ok {
		return evaluator.Fee{}, xerrors.New(xerrors.KindOperation, "txops.Transfer", op.Amount.AssetID.String(), xerrors.ErrObjectNotFound)
	}
	if isBlacklisted(asset, op.From) || isBlacklisted(asset, op.To) {
		return evaluator.Fee{}, xerrors.New(xerrors.KindOperation, "txops.Transfer", "", xerrors.ErrBlacklistedAccount)
	}

	fee, err := evaluator.PrepareFee(ctx.DB, op.From, op.Fee)
	if err != nil {
		return evaluator.Fee{}, err
	}
	available := objectdb.GetBalance(ctx.DB, op.From, op.Amount.AssetID)
	needed := op.Amount.Amount
	if fee.Asset == op.Amount.AssetID {
		needed += fee.Amount
	} else if objectdb.GetBalance(ctx.DB, op.From, fee.Asset) < fee.Amount {
		return evaluator.Fee{}, xerrors.New(xerrors.KindOperation, "txops.Transfer", op.From.String(), xerrors.ErrInsufficientBalance)
	}
	if available < needed {
		return evaluator.Fee{}, xerrors.New(xerrors.KindOperation, "txops.Transfer", op.From.String(), xerrors.ErrInsufficientBalance)
	}
	return fee, nil
}

func (TransferEvaluator) Apply(ctx *evaluator.Context, body types.OperationBody) (types.OperationResult, error) {
	op := body.(types.TransferOp)
	if err := market.Debit(ctx.DB, op.From, op.Amount.AssetID, op.Amount.Amount); err != nil {
		return types.OperationResult{}, err
	}
	market.Credit(ctx.DB, op.To, op.Amount.AssetID, op.Amount.Amount)
	return types.OperationResult{}, nil
}

// isBlacklisted reports whether account appears in asset's blacklist
// authorities list and is not whitelisted, per the operation's "neither
// account is blacklisted for the asset" precondition. The whitelist
// authorities list, when non-empty, makes membership mandatory instead.
func isBlacklisted(asset types.Asset, account types.ObjectID) bool {
	opts := asset.Options
	if len(opts.WhitelistAuthorities) > 0 {
		found := false
		for _, w := range opts.WhitelistAuthorities {
			if w == account {
				found = true
				break
			}
		}
		if !found {
			return true
		}
	}
	for _, b := range opts.BlacklistAuthorities {
		if b == account {
			return true
		}
	}
	return false
}
