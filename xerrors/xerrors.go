// Package xerrors defines the typed error taxonomy shared by every core
// component: exported sentinel errors wrapped in a structured kind-carrying
// error type.
package xerrors

import (
	"errors"
	"fmt"
)

// Kind classifies an error into one of the abstract taxonomy buckets from
// the error-handling design.
type Kind string

const (
	KindAuthority ErrorKindMarker = "authority"
	KindConsensus ErrorKindMarker = "consensus"
	KindOperation ErrorKindMarker = "operation"
	KindState     ErrorKindMarker = "state"
	KindMarket    ErrorKindMarker = "market"
	KindResource  ErrorKindMarker = "resource"
	KindUndo      ErrorKindMarker = "undo"
)

// ErrorKindMarker is the concrete type backing Kind constants; kept distinct
// from a bare string so callers cannot construct an unregistered kind by
// accident.
type ErrorKindMarker string

// Fatal reports whether errors of this kind corrupt chain state if ignored
// and therefore must abort the node rather than merely fail a transaction.
func (k ErrorKindMarker) Fatal() bool {
	return k == KindState || k == KindUndo
}

// ChainError is the structured error carried across the evaluator pipeline
// and the chain controller. It always names a Kind and a short Context
// string so RPC-facing callers (outside this module) can render a useful
// message without reaching into Go error internals.
type ChainError struct {
	Kind    ErrorKindMarker
	Op      string
	Context string
	Err     error
}

func (e *ChainError) Error() string {
	if e.Context != "" {
		return fmt.Sprintf("%s: %s: %s (%v)", e.Kind, e.Op, e.Context, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Op, e.Err)
}

func (e *ChainError) Unwrap() error { return e.Err }

// New constructs a ChainError, wrapping err (which may itself be one of the
// sentinels below).
func New(kind ErrorKindMarker, op, context string, err error) *ChainError {
	return &ChainError{Kind: kind, Op: op, Context: context, Err: err}
}

// Sentinels. Individual packages wrap these with context via New so that
// errors.Is(err, xerrors.ErrMissingActiveAuthority) keeps working through
// the ChainError wrapper.
var (
	// Authority
	ErrMissingActiveAuthority = errors.New("missing active authority")
	ErrMissingOwnerAuthority  = errors.New("missing owner authority")
	ErrAuthorityDepthExceeded = errors.New("authority recursion depth exceeded")
	ErrDuplicateSignature     = errors.New("duplicate or unused signature")
	ErrMalformedAuthority     = errors.New("authority is malformed")

	// Consensus
	ErrWrongBlockSigner  = errors.New("block signed by the wrong witness")
	ErrBadSecretReveal   = errors.New("witness secret reveal does not match")
	ErrBadMerkleRoot     = errors.New("transaction merkle root mismatch")
	ErrStaleTaPoS        = errors.New("transaction references a block outside the TaPoS window")
	ErrExpiredTx         = errors.New("transaction has expired")
	ErrMisalignedSlot    = errors.New("block timestamp is not aligned to a slot boundary")
	ErrOutOfOrderBlock   = errors.New("block does not extend the current head")
	ErrInvalidSignature  = errors.New("signature does not recover to the expected key")

	// Operation-specific preconditions
	ErrInsufficientBalance  = errors.New("insufficient balance")
	ErrBlacklistedAccount   = errors.New("account is blacklisted for this asset")
	ErrMarketClosed         = errors.New("asset market is closed")
	ErrUnderCollateralized  = errors.New("position is under-collateralized")
	ErrNotMarketIssued      = errors.New("asset is not market issued")
	ErrAlreadySettled       = errors.New("asset has already been globally settled")
	ErrNotGloballySettled   = errors.New("asset has not been globally settled")
	ErrPredictionMismatch   = errors.New("prediction market requires equal collateral and debt delta")
	ErrBalanceClaimedTooOften = errors.New("balance_claimed_too_often")
	ErrProposalNotApproved  = errors.New("proposal does not yet have all required approvals")
	ErrFillOrKillNotFilled  = errors.New("fill-or-kill order could not be fully filled")

	// State / object-store invariants (fatal)
	ErrObjectNotFound  = errors.New("object not found")
	ErrIndexCorruption = errors.New("secondary index is inconsistent with primary store")

	// Market
	ErrBlackSwanForbidden = errors.New("update would trigger a forbidden black swan")

	// Resource
	ErrFeePoolExhausted = errors.New("fee exceeds the asset's fee pool")
	ErrQuotaExceeded    = errors.New("object count quota exceeded")
	ErrRateLimited      = errors.New("submission rate limit exceeded for this account")

	// Undo (fatal)
	ErrUndoWindowExceeded = errors.New("attempted to pop beyond the retained undo window")
)
