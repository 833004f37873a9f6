package types

// AuthorityAccount pairs an account reference with its signature weight in a
// threshold authority.
type AuthorityAccount struct {
	Account ObjectID
	Weight  uint16
}

// AuthorityKey pairs a raw public key with its signature weight.
type AuthorityKey struct {
	Key    [33]byte // compressed secp256k1 public key
	Weight uint16
}

// Authority is a weighted threshold over keys and nested accounts, used for
// both the "owner" and "active" permission levels.
type Authority struct {
	Threshold    uint32
	KeyAuths     []AuthorityKey
	AccountAuths []AuthorityAccount
}

// NumAuths returns the number of elementary authorizations, used to bound
// authority complexity (chain_parameters.maximum_authority_membership).
func (a Authority) NumAuths() int {
	return len(a.KeyAuths) + len(a.AccountAuths)
}

// MembershipKind enumerates the account membership tiers.
type MembershipKind uint8

const (
	MembershipBasic MembershipKind = iota
	MembershipAnnual
	MembershipLifetime
)

// AccountOptions holds the mutable, non-authority account settings.
type AccountOptions struct {
	MemoKey         [33]byte
	VotingSlate     []ObjectID // witnesses/delegates this account votes for
	Referrer        ObjectID
	ReferrerPercent uint16 // basis points out of 10000
}

// Account is the protocol-space object identifying a chain participant.
type Account struct {
	ID                   ObjectID
	Name                 string
	Owner                Authority
	Active               Authority
	Options              AccountOptions
	Membership           MembershipKind
	MembershipExpiration int64 // unix seconds, 0 == never
	Registrar            ObjectID
	// LifetimeReferrer permanently collects the lifetime-referrer share of
	// this account's fees: the nearest lifetime member up the referral
	// chain, resolved once at account creation.
	LifetimeReferrer ObjectID
	Statistics       ObjectID // -> AccountStatistics
}

// MembershipCurrent reports whether the account's paid membership entitles
// it to referral fee shares at time t. An expired annual member forfeits
// its cut to the paying account's registrar.
func (a Account) MembershipCurrent(t int64) bool {
	switch a.Membership {
	case MembershipLifetime:
		return true
	case MembershipAnnual:
		return a.MembershipExpiration == 0 || a.MembershipExpiration > t
	default:
		return false
	}
}

// AccountStatistics is the implementation-space companion object tracking
// mutable per-account counters that would otherwise force rewriting the
// (rarely-changing) Account object on every fee payment.
type AccountStatistics struct {
	ID                  ObjectID
	Owner               ObjectID // -> Account
	MostRecentOp        ObjectID // -> OperationHistory, Null if none yet
	TotalOpsSeq         uint64
	LifetimeFeesPaid    int64
	PendingFees         int64 // fees paid above the vesting threshold, awaiting the maintenance referral split
	PendingVestedFees   int64 // fees paid at or below the threshold; beneficiary cuts skip the vesting bucket
	Cashback            int64 // referral cashback awarded and vesting; credited to the core balance at the next maintenance pass
	TotalCoreInOrders   int64
}
