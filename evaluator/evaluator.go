package evaluator

import (
	"marketchain/authority"
	"marketchain/types"
	"marketchain/xerrors"
)

// Evaluator is the interface every operation's evaluator implements:
// Evaluate is read-only and computes the fee; Apply performs the store
// mutation and must not partially mutate on error.
type Evaluator interface {
	Evaluate(ctx *Context, op types.OperationBody) (Fee, error)
	Apply(ctx *Context, op types.OperationBody) (types.OperationResult, error)
}

// Registry maps an operation tag to the evaluator that handles it. txops
// populates one at init time and hands it to the chain controller; kept
// separate from Context so a Context can be constructed freely in tests
// without also having to wire every evaluator.
type Registry struct {
	evaluators map[types.OperationTag]Evaluator
}

// NewRegistry constructs an empty registry.
func NewRegistry() *Registry {
	return &Registry{evaluators: make(map[types.OperationTag]Evaluator)}
}

// Register associates tag with ev, panicking on a duplicate registration
// (a programmer error, not a runtime condition).
func (r *Registry) Register(tag types.OperationTag, ev Evaluator) {
	if _, exists := r.evaluators[tag]; exists {
		panic("evaluator: duplicate registration for tag " + string(rune(tag)))
	}
	r.evaluators[tag] = ev
}

// Dispatch runs the full per-operation pipeline: required-authority check,
// evaluate, apply, fee payment. signerKeys is the
// transaction-wide recovered key set (authority checks are per operation,
// but the same signature set backs every operation in one transaction).
func Dispatch(ctx *Context, reg *Registry, op types.OperationBody, signerKeys [][33]byte) (types.OperationResult, error) {
	ev, ok := reg.evaluators[op.Tag()]
	if !ok {
		return types.OperationResult{}, xerrors.New(xerrors.KindOperation, "evaluator.Dispatch", "", xerrors.ErrMalformedAuthority)
	}

	req := authority.RequiredAuthorities(op)
	if err := ctx.Verifier.CheckRequired(req, signerKeys); err != nil {
		return types.OperationResult{}, err
	}

	fee, err := ev.Evaluate(ctx, op)
	if err != nil {
		return types.OperationResult{}, err
	}

	result, err := ev.Apply(ctx, op)
	if err != nil {
		return types.OperationResult{}, err
	}

	if fee.Amount != 0 || fee.CoreAmount != 0 {
		if err := PayFee(ctx, fee); err != nil {
			return types.OperationResult{}, err
		}
	}
	return result, nil
}
