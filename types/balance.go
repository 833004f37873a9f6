package types

// VestingPolicyKind selects how a genesis Balance's release schedule works.
type VestingPolicyKind uint8

const (
	VestingNone   VestingPolicyKind = iota
	VestingLinear                   // releases linearly between Start and Start+Duration
	VestingCliff                    // releases nothing until CliffSeconds, then everything
)

// VestingPolicy tracks the release schedule and withdrawal state of a
// genesis Balance object.
type VestingPolicy struct {
	Kind          VestingPolicyKind
	Start         int64 // unix seconds
	Duration      int64 // seconds, linear vesting window
	CliffSeconds  int64
	Withdrawn     int64 // already-released amount
}

// AllowedWithdraw returns the amount withdrawable at "at" given the policy's
// vesting schedule and what has already been withdrawn.
func (p VestingPolicy) AllowedWithdraw(total int64, at int64) int64 {
	var vested int64
	switch p.Kind {
	case VestingLinear:
		if p.Duration <= 0 || at >= p.Start+p.Duration {
			vested = total
		} else if at <= p.Start {
			vested = 0
		} else {
			elapsed := at - p.Start
			vested = total * elapsed / p.Duration
		}
	case VestingCliff:
		if at >= p.Start+p.CliffSeconds {
			vested = total
		}
	default:
		vested = total
	}
	allowed := vested - p.Withdrawn
	if allowed < 0 {
		return 0
	}
	return allowed
}

// AccountBalance is one account's holding of one asset type. Unlike Balance
// (a genesis grant awaiting claim), AccountBalance is the live, per-asset
// ledger entry an account actually spends from; every account that has ever
// held an asset has exactly one of these per asset type.
type AccountBalance struct {
	ID      ObjectID
	Owner   ObjectID
	Asset   ObjectID
	Balance int64
}

// Balance is a genesis-vesting or claimable object keyed by a 20-byte owner
// identifier. The identifier may have been derived from a claiming key via
// the modern encoding or any of the historical PTS/BTC address encodings
// (see crypto.OwnerCandidates); BalanceClaim accepts a match against any of
// them.
type Balance struct {
	ID            ObjectID
	Owner         [20]byte
	Balance       Amount
	Vesting       *VestingPolicy // nil when the balance is immediately claimable
	LastClaimDate int64          // unix seconds, 0 if never claimed
}
