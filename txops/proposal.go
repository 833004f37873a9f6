package txops

import (
	"marketchain/authority"
	"marketchain/evaluator"
	"marketchain/objectdb"
	"marketchain/types"
	"marketchain/xerrors"
)

// ProposalCreateEvaluator implements ProposalCreate: stages a batch of
// operations for later atomic execution once every authority the batch
// requires has approved, computing the required-approval lists up front by
// unioning authority.RequiredAuthorities over every proposed operation.
type ProposalCreateEvaluator struct{}

func (ProposalCreateEvaluator) Evaluate(ctx *evaluator.Context, body types.OperationBody) (evaluator.Fee, error) {
	op := body.(types.ProposalCreateOp)
	if _, ok := ctx.DB.Accounts.Get(op.FeePayingAccount); !ok {
		return evaluator.Fee{}, xerrors.New(xerrors.KindOperation, "txops.ProposalCreate", op.FeePayingAccount.String(), xerrors.ErrObjectNotFound)
	}
	if len(op.ProposedOps) == 0 {
		return evaluator.Fee{}, xerrors.New(xerrors.KindOperation, "txops.ProposalCreate", "", xerrors.ErrMalformedAuthority)
	}
	if op.ExpirationTime <= ctx.HeadBlockTime {
		return evaluator.Fee{}, xerrors.New(xerrors.KindConsensus, "txops.ProposalCreate", "", xerrors.ErrExpiredTx)
	}
	return evaluator.PrepareFee(ctx.DB, op.FeePayingAccount, op.Fee)
}

func (ProposalCreateEvaluator) Apply(ctx *evaluator.Context, body types.OperationBody) (types.OperationResult, error) {
	op := body.(types.ProposalCreateOp)
	var active, owner []types.ObjectID
	for _, proposedOp := range op.ProposedOps {
		req := authority.RequiredAuthorities(proposedOp)
		active = appendUnique(active, req.Active...)
		owner = appendUnique(owner, req.Owner...)
	}

	id, _ := objectdb.Create(ctx.DB, ctx.DB.Proposals, func(id types.ObjectID, p *types.Proposal) {
		p.ProposedTransaction = types.Transaction{Operations: toOperations(op.ProposedOps)}
		p.Expiration = op.ExpirationTime
		p.RequiredActiveApprovals = active
		p.RequiredOwnerApprovals = owner
	})
	return types.OperationResult{NewObjectID: id}, nil
}

func appendUnique(list []types.ObjectID, ids ...types.ObjectID) []types.ObjectID {
	for _, id := range ids {
		found := false
		for _, existing := range list {
			if existing == id {
				found = true
				break
			}
		}
		if !found {
			list = append(list, id)
		}
	}
	return list
}

func toOperations(bodies []types.OperationBody) []types.Operation {
	ops := make([]types.Operation, len(bodies))
	for i, b := range bodies {
		ops[i] = types.Operation{Body: b}
	}
	return ops
}

// ProposalUpdateEvaluator implements ProposalUpdate: records new
// approvals against a pending proposal and, once every required approval has
// been collected, executes the proposed operations atomically in the same
// apply call. A failure partway through is rolled back by the chain
// controller's per-operation undo session, so the approvals added by this
// very update are undone along with any partial execution -- the proposal
// is left exactly as it was before this operation ran.
type ProposalUpdateEvaluator struct{}

func (ProposalUpdateEvaluator) Evaluate(ctx *evaluator.Context, body types.OperationBody) (evaluator.Fee, error) {
	op := body.(types.ProposalUpdateOp)
	if _, ok := ctx.DB.Accounts.Get(op.FeePayingAccount); !ok {
		return evaluator.Fee{}, xerrors.New(xerrors.KindOperation, "txops.ProposalUpdate", op.FeePayingAccount.String(), xerrors.ErrObjectNotFound)
	}
	proposal, ok := ctx.DB.Proposals.Get(op.Proposal)
	if !ok {
		return evaluator.Fee{}, xerrors.New(xerrors.KindOperation, "txops.ProposalUpdate", op.Proposal.String(), xerrors.ErrObjectNotFound)
	}
	if proposal.Expiration <= ctx.HeadBlockTime {
		return evaluator.Fee{}, xerrors.New(xerrors.KindConsensus, "txops.ProposalUpdate", op.Proposal.String(), xerrors.ErrExpiredTx)
	}
	return evaluator.PrepareFee(ctx.DB, op.FeePayingAccount, op.Fee)
}

func (ProposalUpdateEvaluator) Apply(ctx *evaluator.Context, body types.OperationBody) (types.OperationResult, error) {
	op := body.(types.ProposalUpdateOp)
	var satisfied bool
	var signerKeys [][33]byte
	_, updated, err := objectdb.Modify(ctx.DB, ctx.DB.Proposals, op.Proposal, func(p *types.Proposal) {
		p.AvailableActiveApprovals = appendUnique(p.AvailableActiveApprovals, op.ActiveApprovalsToAdd...)
		p.AvailableOwnerApprovals = appendUnique(p.AvailableOwnerApprovals, op.OwnerApprovalsToAdd...)
		for _, k := range op.KeyApprovalsToAdd {
			found := false
			for _, existing := range p.AvailableKeyApprovals {
				if existing == k {
					found = true
					break
				}
			}
			if !found {
				p.AvailableKeyApprovals = append(p.AvailableKeyApprovals, k)
			}
		}
		satisfied = p.Satisfied()
		signerKeys = p.AvailableKeyApprovals
	})
	if err != nil {
		return types.OperationResult{}, err
	}

	if !satisfied {
		return types.OperationResult{}, nil
	}

	for _, proposedOp := range updated.ProposedTransaction.Operations {
		if _, err := evaluator.Dispatch(ctx, ctx.Registry, proposedOp.Body, signerKeys); err != nil {
			return types.OperationResult{}, xerrors.New(xerrors.KindOperation, "txops.ProposalUpdate", op.Proposal.String(), xerrors.ErrProposalNotApproved)
		}
	}
	if _, err := objectdb.Remove(ctx.DB, ctx.DB.Proposals, op.Proposal); err != nil {
		return types.OperationResult{}, err
	}
	return types.OperationResult{}, nil
}
