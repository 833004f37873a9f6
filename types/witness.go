package types

import "crypto/sha256"

// SecretHash is a fixed-size hash used in the witness per-block secret
// reveal chain.
type SecretHash [20]byte

// HashSecret returns the next-secret-hash commitment for a revealed secret:
// the leading 20 bytes of SHA-256(secret), matching every other truncated
// hash this wire format uses (block ids, transaction ids).
func HashSecret(secret SecretHash) SecretHash {
	sum := sha256.Sum256(secret[:])
	var out SecretHash
	copy(out[:], sum[:20])
	return out
}

// Witness is an account elected to produce blocks on the rotating schedule.
type Witness struct {
	ID                ObjectID
	Account           ObjectID
	SigningKey        [33]byte
	NextSecret        SecretHash
	LastSecret        SecretHash
	AccumulatedIncome int64
	VoteID            uint32
	TotalVotes        int64 // cached stake-weighted approval tally, refreshed at maintenance
}

// Delegate is an account elected to configure chain parameters and fees.
type Delegate struct {
	ID                ObjectID
	Account            ObjectID
	VoteID             uint32
	AccumulatedIncome  int64
	TotalVotes         int64
	ProposedParameters ChainParameters
	ProposedFees       FeeSchedule
}
