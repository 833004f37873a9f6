// Package evaluator implements the two-phase evaluate/apply dispatch
// pipeline: each operation is first checked for preconditions (evaluate)
// and only then allowed to mutate the database (apply).
package evaluator

import (
	"marketchain/authority"
	"marketchain/market"
	"marketchain/objectdb"
	"marketchain/types"
)

// Context bundles everything an evaluator needs to evaluate and apply an
// operation: the object store, the market engine built over the same store,
// the authority verifier, the chain parameters in force, and the clock the
// operation is being processed against.
type Context struct {
	DB            *objectdb.Database
	Market        *market.Engine
	Verifier      *authority.Verifier
	Params        types.ChainParameters
	HeadBlockTime int64
	HeadBlockNum  uint32

	// Registry is wired in by the chain controller after every evaluator is
	// registered, so ProposalUpdate's apply phase can dispatch a proposal's
	// proposed operations once it becomes fully approved without the
	// evaluator/txops packages importing one another cyclically.
	Registry *Registry
}

// NewContext constructs a Context over db, wiring a market engine and an
// authority verifier bounded by params.MaximumAuthorityDepth.
func NewContext(db *objectdb.Database, params types.ChainParameters, headBlockTime int64, headBlockNum uint32) *Context {
	return &Context{
		DB:            db,
		Market:        market.New(db),
		Verifier:      authority.NewVerifier(db, params.MaximumAuthorityDepth),
		Params:        params,
		HeadBlockTime: headBlockTime,
		HeadBlockNum:  headBlockNum,
	}
}
