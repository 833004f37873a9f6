// Package mempool holds the pending-transaction pool that feeds block
// assembly: submissions are rate-limited per fee-paying account, then block
// assembly drains the pool in fee-density order (ties broken FIFO by
// arrival), skipping anything that no longer evaluates against current
// state.
package mempool

import (
	"sort"
	"sync"

	"golang.org/x/time/rate"

	"marketchain/evaluator"
	"marketchain/objectdb"
	"marketchain/types"
	"marketchain/xerrors"
)

type entry struct {
	tx      *types.SignedTransaction
	id      [20]byte
	payer   types.ObjectID
	arrival uint64
}

// Pool is the in-memory pending-transaction set. Safe for concurrent use.
type Pool struct {
	mu       sync.Mutex
	entries  map[[20]byte]*entry
	seq      uint64
	limiters map[types.ObjectID]*rate.Limiter

	rateLimit rate.Limit
	burst     int
	maxSize   int
}

// NewPool constructs an empty pool. rateLimit/burst configure the per-payer
// token bucket guarding Submit; maxSize bounds the pool's total pending
// count.
func NewPool(rateLimit rate.Limit, burst, maxSize int) *Pool {
	return &Pool{
		entries:   make(map[[20]byte]*entry),
		limiters:  make(map[types.ObjectID]*rate.Limiter),
		rateLimit: rateLimit,
		burst:     burst,
		maxSize:   maxSize,
	}
}

// Submit admits tx into the pool under payer's rate budget. Returns
// ErrRateLimited if payer has exceeded its submission rate, ErrQuotaExceeded
// if the pool is at capacity, and is a no-op (not an error) if the
// transaction's id is already pending.
func (p *Pool) Submit(tx *types.SignedTransaction) error {
	id := tx.TransactionID()
	payer := primaryFeePayer(tx)

	p.mu.Lock()
	defer p.mu.Unlock()

	if _, exists := p.entries[id]; exists {
		return nil
	}
	if p.maxSize > 0 && len(p.entries) >= p.maxSize {
		return xerrors.New(xerrors.KindResource, "mempool.Submit", "", xerrors.ErrQuotaExceeded)
	}
	limiter, ok := p.limiters[payer]
	if !ok {
		limiter = rate.NewLimiter(p.rateLimit, p.burst)
		p.limiters[payer] = limiter
	}
	if !limiter.Allow() {
		return xerrors.New(xerrors.KindResource, "mempool.Submit", payer.String(), xerrors.ErrRateLimited)
	}

	p.seq++
	p.entries[id] = &entry{tx: tx, id: id, payer: payer, arrival: p.seq}
	return nil
}

// Remove drops a transaction from the pool, e.g. once a block including it
// has been applied.
func (p *Pool) Remove(id [20]byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.entries, id)
}

// Len reports the number of pending transactions.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.entries)
}

// RefResolver looks up the block id a transaction's ref_block_num names, the
// same lookup the chain controller's TaPoS ring performs, so trial
// evaluation recovers signatures against the same digest the real ApplyBlock
// pass will.
type RefResolver func(refBlockNum uint16) ([20]byte, bool)

// Select drains up to maxTxs pending transactions in fee-density order
// (highest declared-fee-per-encoded-byte first, ties broken by earliest
// arrival), skipping any that fail Evaluate against db's current state.
// Evaluation runs inside a throwaway undo session that is always discarded:
// Select only chooses transactions, it never applies them — the chain
// controller performs the real, durable Apply when the assembled block is
// fed through ApplyBlock.
func Select(p *Pool, db *objectdb.Database, reg *evaluator.Registry, params types.ChainParameters, headTime int64, blockNumber uint32, maxTxs int, resolveRef RefResolver) []*types.SignedTransaction {
	p.mu.Lock()
	candidates := make([]*entry, 0, len(p.entries))
	for _, e := range p.entries {
		candidates = append(candidates, e)
	}
	p.mu.Unlock()

	sort.Slice(candidates, func(i, j int) bool {
		di, dj := feeDensity(candidates[i].tx), feeDensity(candidates[j].tx)
		if di != dj {
			return di > dj
		}
		return candidates[i].arrival < candidates[j].arrival
	})

	selected := make([]*types.SignedTransaction, 0, maxTxs)
	for _, c := range candidates {
		if maxTxs > 0 && len(selected) >= maxTxs {
			break
		}
		if evaluatesCleanly(db, reg, params, headTime, blockNumber, c.tx, resolveRef) {
			selected = append(selected, c.tx)
		}
	}
	return selected
}

// evaluatesCleanly runs every operation of tx through Dispatch inside a
// session that is unconditionally undone, reporting whether the transaction
// would be accepted without actually committing its effects.
func evaluatesCleanly(db *objectdb.Database, reg *evaluator.Registry, params types.ChainParameters, headTime int64, blockNumber uint32, tx *types.SignedTransaction, resolveRef RefResolver) bool {
	var refID [20]byte
	if !tx.IsAbsoluteExpiration() {
		id, ok := resolveRef(tx.RefBlockNum)
		if !ok {
			return false // stale TaPoS reference; ApplyBlock would reject it too
		}
		refID = id
	}

	sub := db.NewSession()
	defer sub.Undo()

	ctx := evaluator.NewContext(db, params, headTime, blockNumber)
	ctx.Registry = reg

	signerKeys, err := tx.RecoverSigners(refID[:])
	if err != nil {
		return false
	}
	for _, op := range tx.Operations {
		if _, err := evaluator.Dispatch(ctx, reg, op.Body, signerKeys); err != nil {
			return false
		}
	}
	return true
}

// feeDensity is the transaction's total declared fee (the operations' fee
// amounts summed as declared, whatever asset each names) per encoded byte,
// the block-assembly ordering key. Declared fees
// are used as-is (not run through PrepareFee's core-exchange conversion),
// since ordering only needs a consistent relative ranking and a transaction
// naming a fee asset with an exhausted fee pool will be screened out by
// evaluatesCleanly regardless of its position in this ordering.
func feeDensity(tx *types.SignedTransaction) float64 {
	size := len(types.EncodeSignedTransaction(tx))
	if size == 0 {
		return 0
	}
	var total int64
	for _, op := range tx.Operations {
		total += operationFee(op.Body).Amount
	}
	return float64(total) / float64(size)
}

// operationFee returns the declared fee of an operation body. BalanceClaim
// carries no fee field (it reclaims an unspent genesis/vesting balance, not
// a fee-paying action), so it contributes zero to fee density.
func operationFee(op types.OperationBody) types.Amount {
	switch o := op.(type) {
	case types.TransferOp:
		return o.Fee
	case types.AccountCreateOp:
		return o.Fee
	case types.AccountUpdateOp:
		return o.Fee
	case types.AssetCreateOp:
		return o.Fee
	case types.AssetUpdateOp:
		return o.Fee
	case types.AssetUpdateFeedProducersOp:
		return o.Fee
	case types.AssetPublishFeedOp:
		return o.Fee
	case types.AssetSettleOp:
		return o.Fee
	case types.LimitOrderCreateOp:
		return o.Fee
	case types.LimitOrderCancelOp:
		return o.Fee
	case types.CallOrderUpdateOp:
		return o.Fee
	case types.ForceSettleOp:
		return o.Fee
	case types.WitnessCreateOp:
		return o.Fee
	case types.DelegateCreateOp:
		return o.Fee
	case types.ProposalCreateOp:
		return o.Fee
	case types.ProposalUpdateOp:
		return o.Fee
	default:
		return types.Amount{}
	}
}

// primaryFeePayer names the account whose rate budget a transaction draws
// from: the fee payer of its first operation.
func primaryFeePayer(tx *types.SignedTransaction) types.ObjectID {
	if len(tx.Operations) == 0 {
		return types.Null
	}
	return feePayerAccount(tx.Operations[0].Body)
}

func feePayerAccount(op types.OperationBody) types.ObjectID {
	switch o := op.(type) {
	case types.TransferOp:
		return o.From
	case types.AccountCreateOp:
		return o.Registrar
	case types.AccountUpdateOp:
		return o.Account
	case types.AssetCreateOp:
		return o.Issuer
	case types.AssetUpdateOp:
		return o.Issuer
	case types.AssetUpdateFeedProducersOp:
		return o.Issuer
	case types.AssetPublishFeedOp:
		return o.Publisher
	case types.AssetSettleOp:
		return o.Account
	case types.LimitOrderCreateOp:
		return o.Seller
	case types.LimitOrderCancelOp:
		return o.Seller
	case types.CallOrderUpdateOp:
		return o.FundingAccount
	case types.ForceSettleOp:
		return o.Account
	case types.BalanceClaimOp:
		return o.DepositToAccount
	case types.WitnessCreateOp:
		return o.WitnessAccount
	case types.DelegateCreateOp:
		return o.DelegateAccount
	case types.ProposalCreateOp:
		return o.FeePayingAccount
	case types.ProposalUpdateOp:
		return o.FeePayingAccount
	default:
		return types.Null
	}
}
