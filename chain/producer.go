package chain

import (
	"crypto/rand"

	"marketchain/crypto"
	"marketchain/mempool"
	"marketchain/schedule"
	"marketchain/types"
	"marketchain/xerrors"
)

// ProductionGate captures the block-production loop's pre-flight checks:
// the slot is non-zero, this node controls the scheduled witness, the head
// is not stale (unless stale production is enabled), the local clock has
// moved at least one second past head, and it sits within a tolerance
// window of the slot's own time.
type ProductionGate struct {
	// Now is the local wall-clock time at the moment production is
	// attempted (unix seconds). Passed in rather than read from the system
	// clock so the gate is deterministic under test.
	Now int64
	// MaxSlotDriftSeconds bounds how far Now may sit from the slot's exact
	// scheduled time (widened to whole seconds since this wire format
	// timestamps at one-second resolution).
	MaxSlotDriftSeconds int64
	// EnableStaleProduction mirrors config.Config.EnableStaleProduction:
	// when false, production refuses to run against a head older than one
	// block interval.
	EnableStaleProduction bool
}

// WitnessIdentity names one witness this node can produce blocks for: the
// witness object id, its account-holder private key for signing, and the
// preimage of the secret this witness most recently committed on-chain as
// its next_secret (held off-chain by the witness operator — the chain only
// ever stores the hash). ProduceBlock reveals this value as the new block's
// previous_secret and returns a freshly generated secret the caller must
// store back into LastSecret before this witness's next turn.
type WitnessIdentity struct {
	WitnessID  types.ObjectID
	PrivateKey []byte
	LastSecret types.SecretHash
}

// CanProduce evaluates the production gate for witnessID at slot
// scheduleSlot, returning nil if production may proceed.
func (c *Controller) CanProduce(gate ProductionGate, witnessID types.ObjectID, scheduleSlot uint32) error {
	if scheduleSlot == 0 {
		return xerrors.New(xerrors.KindConsensus, "chain.CanProduce", "", xerrors.ErrMisalignedSlot)
	}
	gp := GlobalProperties(c.DB)
	dgp := DynamicGlobalProperties(c.DB)
	wso := WitnessScheduleState(c.DB)

	scheduled, _, err := c.Scheduler.GetScheduledWitness(wso, gp.ActiveWitnesses, dgp.Random, scheduleSlot)
	if err != nil {
		return err
	}
	if scheduled != witnessID {
		return xerrors.New(xerrors.KindConsensus, "chain.CanProduce", "", xerrors.ErrWrongBlockSigner)
	}

	if !gate.EnableStaleProduction {
		interval := int64(gp.Parameters.BlockIntervalSeconds)
		if interval > 0 && gate.Now-dgp.HeadBlockTime > interval {
			return xerrors.New(xerrors.KindConsensus, "chain.CanProduce", "stale head, production disabled", xerrors.ErrOutOfOrderBlock)
		}
	}
	if gate.Now < dgp.HeadBlockTime+1 {
		return xerrors.New(xerrors.KindConsensus, "chain.CanProduce", "clock has not advanced past head", xerrors.ErrMisalignedSlot)
	}

	slotTime := schedule.GetSlotTime(gp.Parameters, dgp, scheduleSlot)
	drift := gate.Now - slotTime
	if drift < 0 {
		drift = -drift
	}
	if drift > gate.MaxSlotDriftSeconds {
		return xerrors.New(xerrors.KindConsensus, "chain.CanProduce", "outside slot drift tolerance", xerrors.ErrMisalignedSlot)
	}
	return nil
}

// ProduceBlock assembles, signs, and applies a new block for witness at the
// slot identified by gate.Now. It drains pool in fee-density order via
// mempool.Select, discloses identity.LastSecret (the
// preimage of this witness's currently on-chain next_secret commitment),
// commits a freshly generated secret, signs the header, and feeds the
// result through ApplyBlock — the same validation path a block received
// from a peer would run, so a locally produced block can never diverge from
// what ApplyBlock would itself accept. The returned secret must be saved as
// identity.LastSecret before this witness's next call to ProduceBlock, or
// its following block's secret-reveal check will fail.
func (c *Controller) ProduceBlock(gate ProductionGate, identity WitnessIdentity, pool *mempool.Pool, maxTxs int, skip SkipFlags) (*types.Block, uint32, types.SecretHash, error) {
	gp := GlobalProperties(c.DB)
	dgp := DynamicGlobalProperties(c.DB)
	scheduleSlot := schedule.GetSlotAtTime(gp.Parameters, dgp, gate.Now)
	if err := c.CanProduce(gate, identity.WitnessID, scheduleSlot); err != nil {
		return nil, 0, types.SecretHash{}, err
	}

	if _, ok := c.DB.Witnesses.Get(identity.WitnessID); !ok {
		return nil, 0, types.SecretHash{}, xerrors.New(xerrors.KindState, "chain.ProduceBlock", identity.WitnessID.String(), xerrors.ErrObjectNotFound)
	}

	blockTime := schedule.GetSlotTime(gp.Parameters, dgp, scheduleSlot)
	blockNumber := dgp.HeadBlockNumber + 1

	selected := mempool.Select(pool, c.DB, c.Registry, gp.Parameters, dgp.HeadBlockTime, blockNumber, maxTxs, func(refBlockNum uint16) ([20]byte, bool) {
		e, ok := c.TaPoS.lookup(refBlockNum)
		return e.id, ok
	})

	nextSecret, err := randomSecret()
	if err != nil {
		return nil, 0, types.SecretHash{}, err
	}

	txs := copyTransactions(selected)
	block := &types.Block{
		Previous:              dgp.HeadBlockID,
		Timestamp:             blockTime,
		Witness:               identity.WitnessID,
		TransactionMerkleRoot: types.TransactionsMerkleRoot(txs),
		PreviousSecret:        identity.LastSecret,
		NextSecretHash:        types.HashSecret(nextSecret),
		Transactions:          txs,
	}

	digest := block.UnsignedDigest()
	sig, err := crypto.Sign(digest, mustPrivateKey(identity.PrivateKey))
	if err != nil {
		return nil, 0, types.SecretHash{}, err
	}
	block.WitnessSignature = sig

	if err := c.ApplyBlock(blockNumber, block, skip); err != nil {
		return nil, 0, types.SecretHash{}, err
	}
	for _, tx := range selected {
		pool.Remove(tx.TransactionID())
	}
	return block, blockNumber, nextSecret, nil
}

func copyTransactions(txs []*types.SignedTransaction) []types.SignedTransaction {
	out := make([]types.SignedTransaction, len(txs))
	for i, tx := range txs {
		out[i] = *tx
	}
	return out
}

func randomSecret() (types.SecretHash, error) {
	var s types.SecretHash
	if _, err := rand.Read(s[:]); err != nil {
		return types.SecretHash{}, err
	}
	return s, nil
}

func mustPrivateKey(b []byte) *crypto.PrivateKey {
	key, err := crypto.PrivateKeyFromBytes(b)
	if err != nil {
		panic(err)
	}
	return key
}
