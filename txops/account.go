package txops

import (
	"marketchain/authority"
	"marketchain/evaluator"
	"marketchain/market"
	"marketchain/objectdb"
	"marketchain/types"
	"marketchain/xerrors"
)

// AccountCreateEvaluator implements AccountCreate: registers the
// account and its statistics companion, then splits the creation fee
// between the registrar, the referrer (by the new account's configured
// referrer_percent), and the network pool -- handled directly here rather
// than through the generic evaluator.PayFee path, which defers its
// referral split to the maintenance pass; the creation fee settles
// immediately so a referrer's cut never depends on a registrar's later
// fee activity.
type AccountCreateEvaluator struct{}

func (AccountCreateEvaluator) Evaluate(ctx *evaluator.Context, body types.OperationBody) (evaluator.Fee, error) {
	op := body.(types.AccountCreateOp)
	if op.Name == "" {
		return evaluator.Fee{}, xerrors.New(xerrors.KindOperation, "txops.AccountCreate", "", xerrors.ErrMalformedAuthority)
	}
	if _, _, ok := objectdb.FindAccountByName(ctx.DB, op.Name); ok {
		return evaluator.Fee{}, xerrors.New(xerrors.KindOperation, "txops.AccountCreate", op.Name, xerrors.ErrMalformedAuthority)
	}
	if _, ok := ctx.DB.Accounts.Get(op.Registrar); !ok {
		return evaluator.Fee{}, xerrors.New(xerrors.KindOperation, "txops.AccountCreate", op.Registrar.String(), xerrors.ErrObjectNotFound)
	}
	if !op.Referrer.IsNull() {
		if _, ok := ctx.DB.Accounts.Get(op.Referrer); !ok {
			return evaluator.Fee{}, xerrors.New(xerrors.KindOperation, "txops.AccountCreate", op.Referrer.String(), xerrors.ErrObjectNotFound)
		}
	}
	if err := authority.WellFormed(op.Owner, ctx.Params.MaximumAuthorityMembership); err != nil {
		return evaluator.Fee{}, err
	}
	if err := authority.WellFormed(op.Active, ctx.Params.MaximumAuthorityMembership); err != nil {
		return evaluator.Fee{}, err
	}
	fee, err := evaluator.PrepareFee(ctx.DB, op.Registrar, op.Fee)
	if err != nil {
		return evaluator.Fee{}, err
	}
	if objectdb.GetBalance(ctx.DB, op.Registrar, fee.Asset) < fee.Amount {
		return evaluator.Fee{}, xerrors.New(xerrors.KindOperation, "txops.AccountCreate", op.Registrar.String(), xerrors.ErrInsufficientBalance)
	}
	// Return a zero Fee so evaluator.Dispatch's generic pay_fee call is a
	// no-op; Apply below performs the registrar/referrer/network split.
	return evaluator.Fee{}, nil
}

func (AccountCreateEvaluator) Apply(ctx *evaluator.Context, body types.OperationBody) (types.OperationResult, error) {
	op := body.(types.AccountCreateOp)
	fee, err := evaluator.PrepareFee(ctx.DB, op.Registrar, op.Fee)
	if err != nil {
		return types.OperationResult{}, err
	}

	newID, _ := objectdb.Create(ctx.DB, ctx.DB.Accounts, func(id types.ObjectID, a *types.Account) {
		a.Name = op.Name
		a.Owner = op.Owner
		a.Active = op.Active
		a.Options = op.Options
		a.Options.Referrer = op.Referrer
		a.Options.ReferrerPercent = op.ReferrerPercent
		a.Registrar = op.Registrar
		a.Membership = types.MembershipBasic
		a.LifetimeReferrer = lifetimeReferrerFor(ctx.DB, op.Referrer, op.Registrar)
	})
	statsID, _ := objectdb.Create(ctx.DB, ctx.DB.AccountStats, func(id types.ObjectID, s *types.AccountStatistics) {
		s.Owner = newID
	})
	if _, _, err := objectdb.Modify(ctx.DB, ctx.DB.Accounts, newID, func(a *types.Account) {
		a.Statistics = statsID
	}); err != nil {
		return types.OperationResult{}, err
	}

	if err := payAndSplitCreationFee(ctx, op, fee); err != nil {
		return types.OperationResult{}, err
	}
	return types.OperationResult{NewObjectID: newID}, nil
}

func payAndSplitCreationFee(ctx *evaluator.Context, op types.AccountCreateOp, fee evaluator.Fee) error {
	if fee.Amount == 0 {
		return nil
	}
	if err := market.Debit(ctx.DB, op.Registrar, fee.Asset, fee.Amount); err != nil {
		return err
	}
	if fee.Asset != types.CoreAssetID {
		asset, ok := ctx.DB.Assets.Get(fee.Asset)
		if !ok {
			return xerrors.New(xerrors.KindOperation, "txops.AccountCreate", fee.Asset.String(), xerrors.ErrObjectNotFound)
		}
		if _, _, err := objectdb.Modify(ctx.DB, ctx.DB.AssetDynamicData, asset.DynamicData, func(dd *types.AssetDynamicData) {
			dd.AccumulatedFees += fee.Amount
			dd.FeePool -= fee.CoreAmount
		}); err != nil {
			return err
		}
	}

	// The network's cut is burned from circulation: there is no standing
	// "network account" to credit, and accumulated_fees was already debited
	// from the registrar.
	networkCut := fee.CoreAmount * int64(ctx.Params.NetworkPercentOfFee) / 10000
	remaining := fee.CoreAmount - networkCut

	var referrerCut int64
	referrer := op.Referrer
	if !referrer.IsNull() && referrer != op.Registrar {
		referrerCut = remaining * int64(op.ReferrerPercent) / 10000
	}
	registrarCut := remaining - referrerCut

	registrar, ok := ctx.DB.Accounts.Get(op.Registrar)
	if !ok {
		return xerrors.New(xerrors.KindOperation, "txops.AccountCreate", op.Registrar.String(), xerrors.ErrObjectNotFound)
	}
	if err := evaluator.CreditCashback(ctx, registrar.Statistics, registrarCut); err != nil {
		return err
	}
	if referrerCut > 0 {
		referrerAcct, ok := ctx.DB.Accounts.Get(referrer)
		if !ok {
			return xerrors.New(xerrors.KindOperation, "txops.AccountCreate", referrer.String(), xerrors.ErrObjectNotFound)
		}
		if err := evaluator.CreditCashback(ctx, referrerAcct.Statistics, referrerCut); err != nil {
			return err
		}
	}
	return nil
}

// lifetimeReferrerFor resolves the account that permanently collects the
// lifetime-referrer share of a new account's future fees: the referrer if
// it is a lifetime member, otherwise the referrer's own lifetime referrer,
// falling back to the registrar the same way.
func lifetimeReferrerFor(db *objectdb.Database, referrer, registrar types.ObjectID) types.ObjectID {
	for _, candidate := range []types.ObjectID{referrer, registrar} {
		if candidate.IsNull() {
			continue
		}
		acct, ok := db.Accounts.Get(candidate)
		if !ok {
			continue
		}
		if acct.Membership == types.MembershipLifetime {
			return candidate
		}
		if !acct.LifetimeReferrer.IsNull() {
			return acct.LifetimeReferrer
		}
	}
	return registrar
}

// AccountUpdateEvaluator implements AccountUpdate: replaces
// authorities and/or options after verifying any new authority is
// well-formed.
type AccountUpdateEvaluator struct{}

func (AccountUpdateEvaluator) Evaluate(ctx *evaluator.Context, body types.OperationBody) (evaluator.Fee, error) {
	op := body.(types.AccountUpdateOp)
	if _, ok := ctx.DB.Accounts.Get(op.Account); !ok {
		return evaluator.Fee{}, xerrors.New(xerrors.KindOperation, "txops.AccountUpdate", op.Account.String(), xerrors.ErrObjectNotFound)
	}
	if op.Owner != nil {
		if err := authority.WellFormed(*op.Owner, ctx.Params.MaximumAuthorityMembership); err != nil {
			return evaluator.Fee{}, err
		}
	}
	if op.Active != nil {
		if err := authority.WellFormed(*op.Active, ctx.Params.MaximumAuthorityMembership); err != nil {
			return evaluator.Fee{}, err
		}
	}
	return evaluator.PrepareFee(ctx.DB, op.Account, op.Fee)
}

func (AccountUpdateEvaluator) Apply(ctx *evaluator.Context, body types.OperationBody) (types.OperationResult, error) {
	op := body.(types.AccountUpdateOp)
	_, _, err := objectdb.Modify(ctx.DB, ctx.DB.Accounts, op.Account, func(a *types.Account) {
		if op.Owner != nil {
			a.Owner = *op.Owner
		}
		if op.Active != nil {
			a.Active = *op.Active
		}
		if op.Options != nil {
			a.Options = *op.Options
		}
	})
	return types.OperationResult{}, err
}
