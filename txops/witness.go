package txops

import (
	"marketchain/evaluator"
	"marketchain/objectdb"
	"marketchain/types"
	"marketchain/xerrors"
)

// WitnessCreateEvaluator implements WitnessCreate: registers an
// account as a witness candidate with its initial signing key and secret
// reveal chain seed.
type WitnessCreateEvaluator struct{}

func (WitnessCreateEvaluator) Evaluate(ctx *evaluator.Context, body types.OperationBody) (evaluator.Fee, error) {
	op := body.(types.WitnessCreateOp)
	if _, ok := ctx.DB.Accounts.Get(op.WitnessAccount); !ok {
		return evaluator.Fee{}, xerrors.New(xerrors.KindOperation, "txops.WitnessCreate", op.WitnessAccount.String(), xerrors.ErrObjectNotFound)
	}
	alreadyWitness := false
	ctx.DB.Witnesses.ForEach(func(_ types.ObjectID, w types.Witness) bool {
		if w.Account == op.WitnessAccount {
			alreadyWitness = true
		}
		return true
	})
	if alreadyWitness {
		return evaluator.Fee{}, xerrors.New(xerrors.KindOperation, "txops.WitnessCreate", op.WitnessAccount.String(), xerrors.ErrMalformedAuthority)
	}
	return evaluator.PrepareFee(ctx.DB, op.WitnessAccount, op.Fee)
}

func (WitnessCreateEvaluator) Apply(ctx *evaluator.Context, body types.OperationBody) (types.OperationResult, error) {
	op := body.(types.WitnessCreateOp)
	id, _ := objectdb.Create(ctx.DB, ctx.DB.Witnesses, func(id types.ObjectID, w *types.Witness) {
		w.Account = op.WitnessAccount
		w.SigningKey = op.SigningKey
		w.NextSecret = op.InitialSecret
	})
	return types.OperationResult{NewObjectID: id}, nil
}

// DelegateCreateEvaluator implements DelegateCreate: registers an
// account as a delegate candidate (chain-parameter and fee-schedule voting).
type DelegateCreateEvaluator struct{}

func (DelegateCreateEvaluator) Evaluate(ctx *evaluator.Context, body types.OperationBody) (evaluator.Fee, error) {
	op := body.(types.DelegateCreateOp)
	if _, ok := ctx.DB.Accounts.Get(op.DelegateAccount); !ok {
		return evaluator.Fee{}, xerrors.New(xerrors.KindOperation, "txops.DelegateCreate", op.DelegateAccount.String(), xerrors.ErrObjectNotFound)
	}
	exists := false
	ctx.DB.Delegates.ForEach(func(_ types.ObjectID, d types.Delegate) bool {
		if d.Account == op.DelegateAccount {
			exists = true
		}
		return true
	})
	if exists {
		return evaluator.Fee{}, xerrors.New(xerrors.KindOperation, "txops.DelegateCreate", op.DelegateAccount.String(), xerrors.ErrMalformedAuthority)
	}
	return evaluator.PrepareFee(ctx.DB, op.DelegateAccount, op.Fee)
}

func (DelegateCreateEvaluator) Apply(ctx *evaluator.Context, body types.OperationBody) (types.OperationResult, error) {
	op := body.(types.DelegateCreateOp)
	id, _ := objectdb.Create(ctx.DB, ctx.DB.Delegates, func(id types.ObjectID, d *types.Delegate) {
		d.Account = op.DelegateAccount
	})
	return types.OperationResult{NewObjectID: id}, nil
}
