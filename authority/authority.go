// Package authority implements the threshold-authority verifier: for
// each operation it computes the account IDs whose active or owner
// authority must be satisfied, then checks a recovered signing-key set
// against those authorities, recursing into account-auths up to a bounded
// depth.
package authority

import (
	"marketchain/objectdb"
	"marketchain/types"
	"marketchain/xerrors"
)

// Required is the pair of account-id sets an operation demands authority
// over. BalanceClaim is the one operation with neither set populated: its
// ownership proof is a direct key match against the balance object, checked
// by its own evaluator rather than through account authorities.
type Required struct {
	Active []types.ObjectID
	Owner  []types.ObjectID
}

// RequiredAuthorities visits op and returns the accounts whose active and/or
// owner authority the transaction must satisfy.
func RequiredAuthorities(op types.OperationBody) Required {
	switch o := op.(type) {
	case types.TransferOp:
		return Required{Active: []types.ObjectID{o.From}}
	case types.AccountCreateOp:
		return Required{Active: []types.ObjectID{o.Registrar}}
	case types.AccountUpdateOp:
		// Changing owner authority is itself an owner-level act; everything
		// else (active authority, options) only needs active authority.
		if o.Owner != nil {
			return Required{Owner: []types.ObjectID{o.Account}}
		}
		return Required{Active: []types.ObjectID{o.Account}}
	case types.AssetCreateOp:
		return Required{Active: []types.ObjectID{o.Issuer}}
	case types.AssetUpdateOp:
		return Required{Active: []types.ObjectID{o.Issuer}}
	case types.AssetUpdateFeedProducersOp:
		return Required{Active: []types.ObjectID{o.Issuer}}
	case types.AssetPublishFeedOp:
		return Required{Active: []types.ObjectID{o.Publisher}}
	case types.AssetSettleOp:
		return Required{Active: []types.ObjectID{o.Account}}
	case types.LimitOrderCreateOp:
		return Required{Active: []types.ObjectID{o.Seller}}
	case types.LimitOrderCancelOp:
		return Required{Active: []types.ObjectID{o.Seller}}
	case types.CallOrderUpdateOp:
		return Required{Active: []types.ObjectID{o.FundingAccount}}
	case types.ForceSettleOp:
		return Required{Active: []types.ObjectID{o.Account}}
	case types.BalanceClaimOp:
		return Required{}
	case types.WitnessCreateOp:
		return Required{Active: []types.ObjectID{o.WitnessAccount}}
	case types.DelegateCreateOp:
		return Required{Active: []types.ObjectID{o.DelegateAccount}}
	case types.ProposalCreateOp:
		return Required{Active: []types.ObjectID{o.FeePayingAccount}}
	case types.ProposalUpdateOp:
		return Required{Active: []types.ObjectID{o.FeePayingAccount}}
	default:
		panic("authority: unhandled operation type in RequiredAuthorities")
	}
}

// WellFormed rejects an authority AccountUpdate or AccountCreate would
// otherwise install that can never be satisfied or that abuses the
// membership cap: a zero threshold, a threshold no combination of members
// can reach, a duplicate key or account member, or more elementary members
// than maxMembership allows.
func WellFormed(a types.Authority, maxMembership uint32) error {
	if a.Threshold == 0 {
		return xerrors.New(xerrors.KindOperation, "authority.WellFormed", "", xerrors.ErrMalformedAuthority)
	}
	if uint32(a.NumAuths()) > maxMembership {
		return xerrors.New(xerrors.KindOperation, "authority.WellFormed", "membership exceeds maximum", xerrors.ErrMalformedAuthority)
	}
	seenKeys := make(map[[33]byte]bool, len(a.KeyAuths))
	var total uint32
	for _, ka := range a.KeyAuths {
		if seenKeys[ka.Key] {
			return xerrors.New(xerrors.KindOperation, "authority.WellFormed", "duplicate key auth", xerrors.ErrMalformedAuthority)
		}
		seenKeys[ka.Key] = true
		total += uint32(ka.Weight)
	}
	seenAccounts := make(map[types.ObjectID]bool, len(a.AccountAuths))
	for _, aa := range a.AccountAuths {
		if seenAccounts[aa.Account] {
			return xerrors.New(xerrors.KindOperation, "authority.WellFormed", "duplicate account auth", xerrors.ErrMalformedAuthority)
		}
		seenAccounts[aa.Account] = true
		total += uint32(aa.Weight)
	}
	if total < a.Threshold {
		return xerrors.New(xerrors.KindOperation, "authority.WellFormed", "threshold unreachable", xerrors.ErrMalformedAuthority)
	}
	return nil
}

// Verifier resolves accounts against a live database and checks a recovered
// signing-key set against threshold authorities, bounding recursion depth by
// the chain's MaximumAuthorityDepth parameter.
type Verifier struct {
	db       *objectdb.Database
	maxDepth uint32
}

func NewVerifier(db *objectdb.Database, maxDepth uint32) *Verifier {
	return &Verifier{db: db, maxDepth: maxDepth}
}

// CheckRequired verifies every account in req has its active/owner
// authority satisfied by keys, first rejecting a key set that contains the
// same key twice (duplicate_signature).
func (v *Verifier) CheckRequired(req Required, keys [][33]byte) error {
	if err := detectDuplicates(keys); err != nil {
		return err
	}
	available := make(map[[33]byte]bool, len(keys))
	for _, k := range keys {
		available[k] = true
	}
	for _, acct := range req.Active {
		ok, exceeded := v.satisfied(acct, available, true, 0)
		if exceeded {
			return xerrors.New(xerrors.KindAuthority, "authority.CheckRequired", acct.String(), xerrors.ErrAuthorityDepthExceeded)
		}
		if !ok {
			return xerrors.New(xerrors.KindAuthority, "authority.CheckRequired", acct.String(), xerrors.ErrMissingActiveAuthority)
		}
	}
	for _, acct := range req.Owner {
		ok, exceeded := v.satisfied(acct, available, false, 0)
		if exceeded {
			return xerrors.New(xerrors.KindAuthority, "authority.CheckRequired", acct.String(), xerrors.ErrAuthorityDepthExceeded)
		}
		if !ok {
			return xerrors.New(xerrors.KindAuthority, "authority.CheckRequired", acct.String(), xerrors.ErrMissingOwnerAuthority)
		}
	}
	return nil
}

func detectDuplicates(keys [][33]byte) error {
	seen := make(map[[33]byte]bool, len(keys))
	for _, k := range keys {
		if seen[k] {
			return xerrors.New(xerrors.KindAuthority, "authority.detectDuplicates", "", xerrors.ErrDuplicateSignature)
		}
		seen[k] = true
	}
	return nil
}

// satisfied reports whether account's active (useActive) or owner authority
// is met by the available key set, recursing into account-auths up to
// maxDepth; an account-auth entry is always checked against the
// sub-account's active authority, never its owner authority. The second
// return value is true if satisfying this authority required recursing
// deeper than maxDepth allows, which callers must surface as
// authority_depth_exceeded rather than a plain unsatisfied authority.
func (v *Verifier) satisfied(account types.ObjectID, available map[[33]byte]bool, useActive bool, depth uint32) (ok bool, depthExceeded bool) {
	if depth > v.maxDepth {
		return false, true
	}
	acct, found := v.db.Accounts.Get(account)
	if !found {
		return false, false
	}
	auth := acct.Active
	if !useActive {
		auth = acct.Owner
	}
	return v.weightSatisfied(auth, available, depth)
}

func (v *Verifier) weightSatisfied(auth types.Authority, available map[[33]byte]bool, depth uint32) (ok bool, depthExceeded bool) {
	var weight uint32
	for _, ka := range auth.KeyAuths {
		if available[ka.Key] {
			weight += uint32(ka.Weight)
		}
	}
	for _, aa := range auth.AccountAuths {
		subOK, subExceeded := v.satisfied(aa.Account, available, true, depth+1)
		if subExceeded {
			return false, true
		}
		if subOK {
			weight += uint32(aa.Weight)
		}
	}
	return weight >= auth.Threshold, false
}
