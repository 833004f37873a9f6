package chain

import (
	"marketchain/objectdb"
	"marketchain/schedule"
	"marketchain/types"
)

// singleton object IDs: GlobalProperties, DynamicGlobalProperties, and
// WitnessSchedule each have exactly one live instance, always the first
// (and only) one ever created in their (space, type) arena.
var (
	globalPropertiesID        = types.ObjectID{Space: types.SpaceImplementation, Type: types.TypeGlobalProperty, Instance: 0}
	dynamicGlobalPropertiesID = types.ObjectID{Space: types.SpaceImplementation, Type: types.TypeDynamicGlobalProperty, Instance: 0}
	witnessScheduleID         = types.ObjectID{Space: types.SpaceImplementation, Type: types.TypeWitnessSchedule, Instance: 0}
)

// GlobalProperties returns the live singleton, panicking (a fatal StateError
// in all but the most broken deployments) if genesis was never run.
func GlobalProperties(db *objectdb.Database) types.GlobalProperties {
	return db.GlobalProps.MustGet(globalPropertiesID)
}

// DynamicGlobalProperties returns the live singleton.
func DynamicGlobalProperties(db *objectdb.Database) types.DynamicGlobalProperties {
	return db.DynGlobalProps.MustGet(dynamicGlobalPropertiesID)
}

// WitnessScheduleState returns the live singleton.
func WitnessScheduleState(db *objectdb.Database) types.WitnessSchedule {
	return db.WitnessSchedule.MustGet(witnessScheduleID)
}

// GenesisWitness names one founding witness: the account must already be
// registered by the caller before InitGenesis runs (genesis accounts are
// created directly via objectdb, not through AccountCreateEvaluator, since
// there is no registrar to pay a fee to yet). InitialSecret is the preimage
// the witness operator must hold as the first WitnessIdentity.LastSecret
// passed to ProduceBlock — genesis commits its hash on-chain as the
// witness's first next_secret so the secret-reveal check has
// something to verify against on this witness's very first produced block.
type GenesisWitness struct {
	Account       types.ObjectID
	SigningKey    [33]byte
	InitialSecret types.SecretHash
}

// InitGenesis seeds GlobalProperties, DynamicGlobalProperties and the
// WitnessSchedule singletons: the active witness roster is the founding set
// given, the chain parameters are params, and head time is genesisTime. It
// must be called exactly once on a freshly constructed, empty Database
// before any block is applied. It runs outside of any undo session: genesis
// state is not itself undoable.
func InitGenesis(db *objectdb.Database, params types.ChainParameters, genesisTime int64, rngSeed [32]byte, founders []GenesisWitness) {
	active := make([]types.ObjectID, 0, len(founders))
	for _, f := range founders {
		id, _ := objectdb.Create(db, db.Witnesses, func(id types.ObjectID, w *types.Witness) {
			w.Account = f.Account
			w.SigningKey = f.SigningKey
			w.NextSecret = types.HashSecret(f.InitialSecret)
		})
		active = append(active, id)
	}

	objectdb.Create(db, db.GlobalProps, func(id types.ObjectID, gp *types.GlobalProperties) {
		gp.ActiveWitnesses = active
		gp.Parameters = params
	})

	objectdb.Create(db, db.DynGlobalProps, func(id types.ObjectID, dgp *types.DynamicGlobalProperties) {
		dgp.HeadBlockTime = genesisTime
		dgp.NextMaintenanceTime = genesisTime + int64(params.MaintenanceIntervalSeconds)
		dgp.Random = rngSeed
	})

	wso := schedule.Seed(rngSeed)
	sched := schedule.New()
	dgp := DynamicGlobalProperties(db)
	// Prime the near scheduler's queue so the very first ApplyBlock has
	// tokens to drain from (Advance would otherwise see an empty queue and
	// report a fatal index-corruption state error).
	if _, _, err := sched.Advance(&wso, active, 1, dgp.Random); err != nil {
		panic(err) // genesis parameters are a programmer error, not a runtime one
	}
	objectdb.Create(db, db.WitnessSchedule, func(id types.ObjectID, w *types.WitnessSchedule) {
		*w = wso
	})
}
