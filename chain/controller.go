package chain

import (
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/crypto"

	"marketchain/evaluator"
	"marketchain/market"
	"marketchain/objectdb"
	"marketchain/observability/logging"
	"marketchain/schedule"
	"marketchain/types"
	"marketchain/xerrors"
)

// SkipFlags bypasses specific validation steps in ApplyBlock, for tests and
// fast replay of already-trusted blocks. Consensus validators must
// run with every bit off.
type SkipFlags uint32

const (
	SkipWitnessSignature SkipFlags = 1 << iota
	SkipAuthorityChecks
	SkipTaPoSCheck
	SkipParticipationAccounting
)

func (f SkipFlags) has(bit SkipFlags) bool { return f&bit != 0 }

// EventSink receives the set of object ids a just-committed block touched,
// plus the ordered list of operations that touched each order book; see the
// events package for the concrete dispatcher. Nil disables notification
// entirely.
type EventSink interface {
	Publish(blockNumber uint32, changed []types.ObjectID, markets []types.MarketTouch)
}

// Controller drives block apply/produce over a live objectdb.Database.
// It owns no consensus state itself beyond the TaPoS ring and
// scheduler handle — everything durable lives in the database as ordinary
// objects, so a Controller can be freely reconstructed around an existing
// Database (e.g. after loading a snapshot externally).
type Controller struct {
	DB        *objectdb.Database
	Registry  *evaluator.Registry
	Scheduler *schedule.Scheduler
	TaPoS     *taposRing
	Events    EventSink

	// Log is the structured logger the controller, and the evaluator/market
	// packages it drives, report through. NewController sets it to
	// logging.Setup("chain", ""); ApplyBlock falls back to slog.Default()
	// when it is nil.
	Log *slog.Logger
	// Metrics is the Prometheus collector bundle recording block-apply
	// latency and market-engine events. Defaults to the process-wide
	// ChainMetrics() singleton.
	Metrics *Metrics

	// history mirrors the live span of objectdb's retained undo window with
	// the actual applied block structs, so SwitchFork can reapply a displaced
	// branch byte-for-byte if the replacement branch fails partway through.
	// It is trimmed in
	// lockstep with db.retained and carries no data beyond what a peer
	// resending those blocks would provide.
	history []appliedBlock
}

type appliedBlock struct {
	number uint32
	block  *types.Block
}

// NewController wires reg into every Context the controller builds; see
// evaluator.Context.Registry for why this indirection exists (ProposalUpdate
// dispatching approved proposals without an import cycle).
func NewController(db *objectdb.Database, reg *evaluator.Registry) *Controller {
	return &Controller{
		DB:        db,
		Registry:  reg,
		Scheduler: schedule.New(),
		TaPoS:     newTaposRing(),
		Log:       logging.Setup("chain", ""),
		Metrics:   ChainMetrics(),
	}
}

// ApplyBlock runs the full per-block pipeline: slot/signer/secret
// validation, per-transaction evaluation, market fixups, force settlement,
// maintenance, global-property advancement, scheduler advancement, and
// subscriber notification, all inside one undo-journal session so any
// failure leaves the database exactly as it was before the call.
func (c *Controller) ApplyBlock(blockNumber uint32, block *types.Block, skip SkipFlags) error {
	start := time.Now()
	err := c.applyBlock(blockNumber, block, skip)
	c.Metrics.observeApply(start, err)
	log := c.Log
	if log == nil {
		log = slog.Default()
	}
	if err != nil {
		log.Warn("block apply failed", "block_number", blockNumber, "error", err)
	} else {
		log.Info("block applied", "block_number", blockNumber, "tx_count", len(block.Transactions))
	}
	return err
}

func (c *Controller) applyBlock(blockNumber uint32, block *types.Block, skip SkipFlags) error {
	var marketTouches []types.MarketTouch
	err := c.DB.PushBlock(func() error {
		gp := GlobalProperties(c.DB)
		dgp := DynamicGlobalProperties(c.DB)

		if block.Previous != dgp.HeadBlockID {
			return xerrors.New(xerrors.KindConsensus, "chain.ApplyBlock", "", xerrors.ErrOutOfOrderBlock)
		}
		slot := schedule.GetSlotAtTime(gp.Parameters, dgp, block.Timestamp)
		if slot == 0 || block.Timestamp != schedule.GetSlotTime(gp.Parameters, dgp, slot) {
			return xerrors.New(xerrors.KindConsensus, "chain.ApplyBlock", "", xerrors.ErrMisalignedSlot)
		}

		wso := WitnessScheduleState(c.DB)
		scheduledID, _, err := c.Scheduler.GetScheduledWitness(wso, gp.ActiveWitnesses, dgp.Random, slot)
		if err != nil {
			return err
		}
		if block.Witness != scheduledID {
			return xerrors.New(xerrors.KindConsensus, "chain.ApplyBlock", "", xerrors.ErrWrongBlockSigner)
		}

		witness, ok := c.DB.Witnesses.Get(block.Witness)
		if !ok {
			return xerrors.New(xerrors.KindState, "chain.ApplyBlock", block.Witness.String(), xerrors.ErrObjectNotFound)
		}

		if !skip.has(SkipWitnessSignature) {
			digest := block.UnsignedDigest()
			pub, err := crypto.SigToPub(digest[:], block.WitnessSignature[:])
			if err != nil {
				return xerrors.New(xerrors.KindConsensus, "chain.ApplyBlock", "", xerrors.ErrInvalidSignature)
			}
			var recovered [33]byte
			copy(recovered[:], crypto.CompressPubkey(pub))
			if recovered != witness.SigningKey {
				return xerrors.New(xerrors.KindConsensus, "chain.ApplyBlock", "", xerrors.ErrWrongBlockSigner)
			}
		}

		if types.HashSecret(block.PreviousSecret) != witness.NextSecret {
			return xerrors.New(xerrors.KindConsensus, "chain.ApplyBlock", "", xerrors.ErrBadSecretReveal)
		}
		if block.TransactionMerkleRoot != types.TransactionsMerkleRoot(block.Transactions) {
			return xerrors.New(xerrors.KindConsensus, "chain.ApplyBlock", "", xerrors.ErrBadMerkleRoot)
		}

		touchedBitassets := map[types.ObjectID]bool{}
		for txIdx := range block.Transactions {
			tx := &block.Transactions[txIdx]
			if err := c.applyTransaction(gp.Parameters, dgp.HeadBlockTime, blockNumber, tx, uint16(txIdx), skip, touchedBitassets, &marketTouches); err != nil {
				return err
			}
		}

		engine := market.New(c.DB)
		for bitassetID := range touchedBitassets {
			asset := bitassetAssetID(c.DB, bitassetID)
			if asset.IsNull() {
				continue
			}
			result, err := engine.CheckCallOrders(asset, bitassetID, true)
			if err != nil {
				return err
			}
			if a, ok := c.DB.Assets.Get(asset); ok {
				c.Metrics.recordMarginCalls(a.Symbol, len(result.ClosedCallOrders)+len(result.PartiallyFilled))
				if result.BlackSwan {
					c.Metrics.recordBlackSwan(a.Symbol)
					c.Log.Warn("black swan: asset globally settled", "asset", a.Symbol, "block_number", blockNumber)
				}
			}
		}

		var settleErr error
		c.DB.Assets.ForEach(func(assetID types.ObjectID, a types.Asset) bool {
			if !a.IsMarketIssued() {
				return true
			}
			if settleErr = engine.ExecuteForceSettlements(assetID, a.BitassetData, block.Timestamp); settleErr != nil {
				return false
			}
			return true
		})
		if settleErr != nil {
			return settleErr
		}

		if block.Timestamp >= dgp.NextMaintenanceTime {
			if err := c.runMaintenance(&gp, &dgp, block.Timestamp); err != nil {
				return err
			}
		}

		blockID := block.ID()
		newDGP := dgp
		newDGP.HeadBlockNumber = blockNumber
		newDGP.HeadBlockID = blockID
		newDGP.HeadBlockTime = block.Timestamp
		if !skip.has(SkipParticipationAccounting) {
			newDGP.RecentSlotsFilled = (newDGP.RecentSlotsFilled << 1) | 1
			if slot > 1 {
				newDGP.RecentSlotsFilled <<= (slot - 1)
			}
		}
		newDGP.CurrentWitness = block.Witness

		producer, rollSeed, err := c.Scheduler.Advance(&wso, gp.ActiveWitnesses, slot, newDGP.Random)
		if err != nil {
			return err
		}
		if producer != block.Witness {
			return xerrors.New(xerrors.KindState, "chain.ApplyBlock", "", xerrors.ErrIndexCorruption)
		}
		if rollSeed {
			newDGP.Random = foldRandom(newDGP.Random, blockID)
		}

		if _, _, err := objectdb.Modify(c.DB, c.DB.WitnessSchedule, witnessScheduleID, func(w *types.WitnessSchedule) {
			*w = wso
		}); err != nil {
			return err
		}
		if _, _, err := objectdb.Modify(c.DB, c.DB.DynGlobalProps, dynamicGlobalPropertiesID, func(d *types.DynamicGlobalProperties) {
			*d = newDGP
		}); err != nil {
			return err
		}
		if _, _, err := objectdb.Modify(c.DB, c.DB.Witnesses, block.Witness, func(w *types.Witness) {
			w.LastSecret = block.PreviousSecret
			w.NextSecret = block.NextSecretHash
		}); err != nil {
			return err
		}

		c.TaPoS.record(blockNumber, blockID, block.Timestamp)
		return nil
	})
	if err != nil {
		return err
	}
	c.history = append(c.history, appliedBlock{number: blockNumber, block: block})
	if max := c.DB.RetainedDepth(); len(c.history) > max {
		c.history = c.history[len(c.history)-max:]
	}
	if c.Events != nil {
		c.Events.Publish(blockNumber, c.DB.LastBlockChanges(), marketTouches)
	}
	return nil
}

// applyTransaction runs one signed transaction through TaPoS/expiration
// checks and the evaluator pipeline, inside its own undo sub-session so a
// failure anywhere in the transaction rolls back only that transaction.
func (c *Controller) applyTransaction(params types.ChainParameters, headTime int64, blockNumber uint32, tx *types.SignedTransaction, opInTx uint16, skip SkipFlags, touchedBitassets map[types.ObjectID]bool, marketTouches *[]types.MarketTouch) error {
	var refID [20]byte
	var refTime int64
	if !skip.has(SkipTaPoSCheck) {
		var err error
		refID, refTime, err = c.TaPoS.checkTaPoS(&tx.Transaction)
		if err != nil {
			return err
		}
	}
	if tx.ExpirationTime(refTime) <= headTime && !tx.IsAbsoluteExpiration() {
		return xerrors.New(xerrors.KindConsensus, "chain.applyTransaction", "", xerrors.ErrExpiredTx)
	}
	if tx.IsAbsoluteExpiration() && tx.ExpirationTime(0) <= headTime {
		return xerrors.New(xerrors.KindConsensus, "chain.applyTransaction", "", xerrors.ErrExpiredTx)
	}

	var signerKeys [][33]byte
	if !skip.has(SkipAuthorityChecks) {
		keys, err := tx.RecoverSigners(refID[:])
		if err != nil {
			return xerrors.New(xerrors.KindAuthority, "chain.applyTransaction", "", xerrors.ErrInvalidSignature)
		}
		signerKeys = keys
	}

	sub := c.DB.NewSession()
	ctx := evaluator.NewContext(c.DB, params, headTime, blockNumber)
	ctx.Registry = c.Registry

	txID := tx.TransactionID()
	for opIdx, op := range tx.Operations {
		touch, hasTouch := marketTouchFor(c.DB, op.Body)
		result, err := evaluator.Dispatch(ctx, c.Registry, op.Body, signerKeys)
		if err != nil {
			sub.Undo()
			return err
		}
		recordOperationHistory(c.DB, blockNumber, txID, uint16(opIdx), op, result)
		if bitasset := publishedBitasset(op.Body); !bitasset.IsNull() {
			touchedBitassets[bitasset] = true
		}
		if hasTouch {
			*marketTouches = append(*marketTouches, touch)
		}
	}
	sub.Commit()
	_ = opInTx
	return nil
}

// marketTouchFor resolves the (asset_a, asset_b) order book an operation
// touches, if any, for the dispatcher's per-market grouping. Looked up before
// dispatch runs: LimitOrderCancel's asset pair lives on the order object it
// is about to remove.
func marketTouchFor(db *objectdb.Database, op types.OperationBody) (types.MarketTouch, bool) {
	switch o := op.(type) {
	case types.LimitOrderCreateOp:
		return types.MarketTouch{A: o.ForSale.AssetID, B: o.MinToReceive.AssetID, Op: op}, true
	case types.LimitOrderCancelOp:
		order, ok := db.LimitOrders.Get(o.Order)
		if !ok {
			return types.MarketTouch{}, false
		}
		return types.MarketTouch{A: order.ForSale.AssetID, B: order.SellPrice.Quote.AssetID, Op: op}, true
	case types.CallOrderUpdateOp:
		return types.MarketTouch{A: o.DeltaCollateral.AssetID, B: o.DeltaDebt.AssetID, Op: op}, true
	default:
		return types.MarketTouch{}, false
	}
}

// publishedBitasset returns the BitassetData id a feed-publish operation
// touched, so ApplyBlock knows which assets need a post-transaction
// margin-call sweep.
func publishedBitasset(op types.OperationBody) types.ObjectID {
	publish, ok := op.(types.AssetPublishFeedOp)
	if !ok {
		return types.Null
	}
	return publish.Asset
}

// bitassetAssetID resolves a BitassetData id back to its owning Asset id, the
// orientation market.Engine.CheckCallOrders wants.
func bitassetAssetID(db *objectdb.Database, bitassetID types.ObjectID) types.ObjectID {
	var found types.ObjectID
	db.Assets.ForEach(func(id types.ObjectID, a types.Asset) bool {
		if a.BitassetData == bitassetID {
			found = id
			return false
		}
		return true
	})
	return found
}

// recordOperationHistory appends the operation to the global append-only log
// and links it into the history chain of every account it touched. History
// ids are dense and strictly increasing.
func recordOperationHistory(db *objectdb.Database, blockNumber uint32, txID [20]byte, opIdx uint16, op types.Operation, result types.OperationResult) {
	histID, _ := objectdb.Create(db, db.OperationHistory, func(id types.ObjectID, h *types.OperationHistory) {
		h.Op = op
		h.Result = result
		h.BlockNumber = blockNumber
		h.TransactionID = txID
		h.OpInTrx = opIdx
	})
	for _, acct := range affectedAccounts(op.Body) {
		stats, ok := db.AccountStats.Get(mustStatsFor(db, acct))
		if !ok {
			continue
		}
		linkID, _ := objectdb.Create(db, db.AccountHistoryLink, func(id types.ObjectID, l *types.AccountHistoryLink) {
			l.Account = acct
			l.Operation = histID
			l.Sequence = stats.TotalOpsSeq + 1
			l.Next = stats.MostRecentOp
		})
		statsID, _ := accountStatsID(db, acct)
		objectdb.Modify(db, db.AccountStats, statsID, func(s *types.AccountStatistics) {
			s.MostRecentOp = linkID
			s.TotalOpsSeq++
		})
	}
}

func mustStatsFor(db *objectdb.Database, acct types.ObjectID) types.ObjectID {
	id, _ := accountStatsID(db, acct)
	return id
}

func accountStatsID(db *objectdb.Database, acct types.ObjectID) (types.ObjectID, bool) {
	a, ok := db.Accounts.Get(acct)
	if !ok {
		return types.Null, false
	}
	return a.Statistics, true
}

// affectedAccounts names the accounts whose history chain an operation
// should be linked into: every referenced account, not just the fee payer.
func affectedAccounts(op types.OperationBody) []types.ObjectID {
	switch o := op.(type) {
	case types.TransferOp:
		return []types.ObjectID{o.From, o.To}
	case types.AccountCreateOp:
		return []types.ObjectID{o.Registrar}
	case types.AccountUpdateOp:
		return []types.ObjectID{o.Account}
	case types.AssetCreateOp:
		return []types.ObjectID{o.Issuer}
	case types.AssetUpdateOp:
		return []types.ObjectID{o.Issuer}
	case types.AssetUpdateFeedProducersOp:
		return []types.ObjectID{o.Issuer}
	case types.AssetPublishFeedOp:
		return []types.ObjectID{o.Publisher}
	case types.AssetSettleOp:
		return []types.ObjectID{o.Account}
	case types.LimitOrderCreateOp:
		return []types.ObjectID{o.Seller}
	case types.LimitOrderCancelOp:
		return []types.ObjectID{o.Seller}
	case types.CallOrderUpdateOp:
		return []types.ObjectID{o.FundingAccount}
	case types.ForceSettleOp:
		return []types.ObjectID{o.Account}
	case types.BalanceClaimOp:
		return []types.ObjectID{o.DepositToAccount}
	case types.WitnessCreateOp:
		return []types.ObjectID{o.WitnessAccount}
	case types.DelegateCreateOp:
		return []types.ObjectID{o.DelegateAccount}
	case types.ProposalCreateOp:
		return []types.ObjectID{o.FeePayingAccount}
	case types.ProposalUpdateOp:
		return []types.ObjectID{o.FeePayingAccount}
	default:
		return nil
	}
}

// foldRandom mixes a new block id into the rolling entropy accumulator.
// Applied every block a scheduler turn completes, matching the scheduler's
// own foldSeed step.
func foldRandom(random [32]byte, blockID [20]byte) [32]byte {
	var out [32]byte
	copy(out[:], random[:])
	for i := 0; i < 20; i++ {
		out[i] ^= blockID[i]
	}
	return out
}

