package objectdb

import "marketchain/types"

// Database aggregates every object family's Index, the space→type dispatch
// registry, and the undo-session machinery.
// All object mutation during evaluation must go through Database's
// Create/Modify/Remove wrappers rather than calling an Index directly, since
// only Database knows how to record the mutation into the active session.
type Database struct {
	Accounts           *Index[types.Account]
	AccountStats       *Index[types.AccountStatistics]
	Assets             *Index[types.Asset]
	AssetDynamicData   *Index[types.AssetDynamicData]
	BitassetData       *Index[types.BitassetData]
	LimitOrders        *Index[types.LimitOrder]
	CallOrders         *Index[types.CallOrder]
	ForceSettlements   *Index[types.ForceSettlement]
	Balances           *Index[types.Balance]
	AccountBalances    *Index[types.AccountBalance]
	Witnesses          *Index[types.Witness]
	Delegates          *Index[types.Delegate]
	Proposals          *Index[types.Proposal]
	GlobalProps        *Index[types.GlobalProperties]
	DynGlobalProps     *Index[types.DynamicGlobalProperties]
	WitnessSchedule    *Index[types.WitnessSchedule]
	OperationHistory   *Index[types.OperationHistory]
	AccountHistoryLink *Index[types.AccountHistoryLink]

	registry map[types.Space]map[types.ObjectType]AnyIndex

	// transient is the nested push/commit/undo stack used while evaluating a
	// single block (one frame per in-flight transaction or sub-operation).
	transient []*Session

	// retained is the durable, per-block undo window: one merged session per
	// applied block, oldest first. Its length is the live short-reorg depth.
	retained   []*Session
	maxRetained int
}

// NewDatabase constructs an empty store with every family registered and a
// retained undo window of maxRetained blocks (pop_commit discards beyond it).
func NewDatabase(maxRetained int) *Database {
	db := &Database{
		Accounts:           NewIndex[types.Account](types.SpaceProtocol, types.TypeAccount),
		AccountStats:       NewIndex[types.AccountStatistics](types.SpaceImplementation, types.TypeAccountStatistics),
		Assets:             NewIndex[types.Asset](types.SpaceProtocol, types.TypeAsset),
		AssetDynamicData:   NewIndex[types.AssetDynamicData](types.SpaceImplementation, types.TypeAssetDynamicData),
		BitassetData:       NewIndex[types.BitassetData](types.SpaceImplementation, types.TypeBitassetData),
		LimitOrders:        NewIndex[types.LimitOrder](types.SpaceProtocol, types.TypeLimitOrder),
		CallOrders:         NewIndex[types.CallOrder](types.SpaceProtocol, types.TypeCallOrder),
		ForceSettlements:   NewIndex[types.ForceSettlement](types.SpaceProtocol, types.TypeForceSettlement),
		Balances:           NewIndex[types.Balance](types.SpaceProtocol, types.TypeBalance),
		AccountBalances:    NewIndex[types.AccountBalance](types.SpaceImplementation, types.TypeAccountBalance),
		Witnesses:          NewIndex[types.Witness](types.SpaceProtocol, types.TypeWitness),
		Delegates:          NewIndex[types.Delegate](types.SpaceProtocol, types.TypeDelegate),
		Proposals:          NewIndex[types.Proposal](types.SpaceProtocol, types.TypeProposal),
		GlobalProps:        NewIndex[types.GlobalProperties](types.SpaceImplementation, types.TypeGlobalProperty),
		DynGlobalProps:     NewIndex[types.DynamicGlobalProperties](types.SpaceImplementation, types.TypeDynamicGlobalProperty),
		WitnessSchedule:    NewIndex[types.WitnessSchedule](types.SpaceImplementation, types.TypeWitnessSchedule),
		OperationHistory:   NewIndex[types.OperationHistory](types.SpaceImplementation, types.TypeOperationHistory),
		AccountHistoryLink: NewIndex[types.AccountHistoryLink](types.SpaceImplementation, types.TypeAccountHistoryLink),
		maxRetained:        maxRetained,
	}

	db.registry = map[types.Space]map[types.ObjectType]AnyIndex{
		types.SpaceProtocol:       {},
		types.SpaceImplementation: {},
	}
	for _, ix := range []AnyIndex{
		db.Accounts, db.Assets, db.LimitOrders, db.CallOrders, db.ForceSettlements,
		db.Balances, db.Witnesses, db.Delegates, db.Proposals,
		db.AccountStats, db.AssetDynamicData, db.BitassetData, db.AccountBalances,
		db.GlobalProps, db.DynGlobalProps, db.WitnessSchedule,
		db.OperationHistory, db.AccountHistoryLink,
	} {
		db.registry[ix.Space()][ix.Type()] = ix
	}
	return db
}

// Lookup resolves an object by its ID through the two-level dispatch table,
// returning nil if the (space, type) pair isn't registered.
func (db *Database) Lookup(id types.ObjectID) AnyIndex {
	byType, ok := db.registry[id.Space]
	if !ok {
		return nil
	}
	return byType[id.Type]
}

func (db *Database) topTransient() *Session {
	if len(db.transient) == 0 {
		return nil
	}
	return db.transient[len(db.transient)-1]
}

func (db *Database) popTransient(s *Session) {
	n := len(db.transient)
	if n == 0 || db.transient[n-1] != s {
		return // already popped, e.g. Commit()/Undo() called twice
	}
	db.transient = db.transient[:n-1]
}

// NewSession opens a nested mutation frame. Every Create/Modify/Remove
// performed anywhere in the database while this (or a descendant) session is
// open is attributed to it until Commit or Undo is called.
func (db *Database) NewSession() *Session {
	s := newSession(db)
	db.transient = append(db.transient, s)
	return s
}

// Create allocates an object in ix and, if a session is active, records the
// creation for undo.
func Create[T any](db *Database, ix *Index[T], init func(id types.ObjectID, obj *T)) (types.ObjectID, T) {
	id, obj := ix.Create(init)
	if s := db.topTransient(); s != nil {
		s.recordCreate(ix, id)
	}
	return id, obj
}

// Modify mutates the object at id in ix via f, recording the pre-image in
// the active session (if any) before f is allowed to run.
func Modify[T any](db *Database, ix *Index[T], id types.ObjectID, f func(obj *T)) (old T, new T, err error) {
	if s := db.topTransient(); s != nil {
		s.recordModify(ix, id)
	}
	return ix.Modify(id, f)
}

// Remove deletes the object at id from ix, recording it for undo.
func Remove[T any](db *Database, ix *Index[T], id types.ObjectID) (T, error) {
	if s := db.topTransient(); s != nil {
		s.recordRemove(ix, id)
	}
	return ix.Remove(id)
}

// PushBlock opens a session, runs apply (which may itself open and
// commit/undo nested sessions per transaction), and on success retains the
// merged result, still undoable, as the newest frame of the undo window,
// dropping the oldest frame once the window exceeds maxRetained. On error the
// session (and everything it and its descendants recorded) is undone and the
// database is left exactly as it was before the call.
func (db *Database) PushBlock(apply func() error) error {
	s := db.NewSession()
	if err := apply(); err != nil {
		s.Undo()
		return err
	}
	db.popTransient(s)
	db.retained = append(db.retained, s)
	for len(db.retained) > db.maxRetained {
		db.retained = db.retained[1:]
	}
	return nil
}

// PopBlock reverses the most recently retained block-level session, removing
// it from the undo window. Used for short-reorg fork switching.
func (db *Database) PopBlock() error {
	n := len(db.retained)
	if n == 0 {
		return errEmptyRetainedWindow
	}
	s := db.retained[n-1]
	db.retained = db.retained[:n-1]
	s.Undo()
	return nil
}

// PopCommit discards the oldest retained frame without undoing it, shrinking
// the live undo window by one block.
func (db *Database) PopCommit() error {
	if len(db.retained) == 0 {
		return errEmptyRetainedWindow
	}
	db.retained = db.retained[1:]
	return nil
}

// RetainedDepth reports how many block-level sessions are currently
// undoable, i.e. the live short-reorg window.
func (db *Database) RetainedDepth() int {
	return len(db.retained)
}

// LastBlockChanges returns the changed-object set of the most recently
// applied block, or nil if no block has been applied yet.
func (db *Database) LastBlockChanges() []types.ObjectID {
	if len(db.retained) == 0 {
		return nil
	}
	return db.retained[len(db.retained)-1].ChangedIDs()
}

// CurrentValue resolves id's present value through the space->type dispatch
// table, for callers (the subscription dispatcher) that only hold an
// ObjectID and need to know whether it still exists and what it now holds.
// Returns (nil, false) if id's (space,type) is unregistered or the object no
// longer exists (removed).
func (db *Database) CurrentValue(id types.ObjectID) (any, bool) {
	ix := db.Lookup(id)
	if ix == nil || !ix.has(id) {
		return nil, false
	}
	return ix.snapshotAny(id), true
}

// InSession reports whether a mutation frame is currently open, letting
// callers assert they are not mutating the database outside of a block
// application pass.
func (db *Database) InSession() bool {
	return len(db.transient) > 0
}
