package types

import (
	"crypto/ecdsa"
	"crypto/sha256"

	"github.com/ethereum/go-ethereum/crypto"
)

// Transaction is the unsigned envelope: TaPoS reference, expiration, and the
// list of operations to evaluate. Absolute expiration is encoded by setting
// RefBlockNum == 0 and RelativeExpirationSeconds == 0, in which case
// RefBlockPrefix holds the expiration as seconds-since-epoch.
type Transaction struct {
	RefBlockNum               uint16
	RefBlockPrefix            uint32
	RelativeExpirationSeconds uint32
	Operations                []Operation
	Extensions                [][]byte
}

// IsAbsoluteExpiration reports whether this transaction uses the
// ref_block_num==0 ∧ relative_expiration==0 absolute-expiration encoding.
func (t *Transaction) IsAbsoluteExpiration() bool {
	return t.RefBlockNum == 0 && t.RelativeExpirationSeconds == 0
}

// ExpirationTime resolves the transaction's expiration to an absolute unix
// timestamp. When the transaction uses TaPoS-relative expiration, refTime is
// the timestamp of the block identified by RefBlockNum/RefBlockPrefix.
func (t *Transaction) ExpirationTime(refTime int64) int64 {
	if t.IsAbsoluteExpiration() {
		return int64(t.RefBlockPrefix)
	}
	return refTime + int64(t.RelativeExpirationSeconds)
}

// SignedTransaction wraps a Transaction with the signatures over its digest.
type SignedTransaction struct {
	Transaction
	Signatures [][65]byte
}

// unsignedBytes serializes the unsigned transaction deterministically
// for hashing. Operation bodies are encoded via the shared codec so the
// digest is stable across identical logical content.
func (t *Transaction) unsignedBytes() []byte {
	return EncodeTransaction(t)
}

// TransactionID returns the leading 20 bytes of SHA-256 over the serialized
// unsigned transaction: an intentionally truncated id (~2^80 collision
// resistance), kept at 20 bytes for wire compatibility.
func (t *Transaction) TransactionID() [20]byte {
	sum := sha256.Sum256(t.unsignedBytes())
	var id [20]byte
	copy(id[:], sum[:20])
	return id
}

// SigningDigest computes the hash that signatures are produced over. When
// the transaction carries a relative expiration, the digest is bound to the
// referenced block id to prevent cross-chain and long-range replay;
// absolute-expiration transactions sign the bare transaction body.
func (t *Transaction) SigningDigest(refBlockID []byte) [32]byte {
	if t.RelativeExpirationSeconds != 0 {
		buf := append(append([]byte(nil), refBlockID...), t.unsignedBytes()...)
		return sha256.Sum256(buf)
	}
	return sha256.Sum256(t.unsignedBytes())
}

// Sign appends a compact recoverable ECDSA signature over the transaction's
// signing digest.
func (st *SignedTransaction) Sign(priv []byte, refBlockID []byte) error {
	digest := st.SigningDigest(refBlockID)
	sig, err := crypto.Sign(digest[:], mustToECDSA(priv))
	if err != nil {
		return err
	}
	var fixed [65]byte
	copy(fixed[:], sig)
	st.Signatures = append(st.Signatures, fixed)
	return nil
}

// RecoverSigners recovers the compressed public key for every signature,
// caching nothing (the authority verifier is responsible for caching
// recovered keys).
func (st *SignedTransaction) RecoverSigners(refBlockID []byte) ([][33]byte, error) {
	digest := st.SigningDigest(refBlockID)
	out := make([][33]byte, 0, len(st.Signatures))
	for _, sig := range st.Signatures {
		// A repeated signature recovers the same key twice; duplicate_signature
		// is flagged by the authority verifier, not here.
		pub, err := crypto.SigToPub(digest[:], sig[:])
		if err != nil {
			return nil, err
		}
		compressed := crypto.CompressPubkey(pub)
		var fixed [33]byte
		copy(fixed[:], compressed)
		out = append(out, fixed)
	}
	return out, nil
}

func mustToECDSA(b []byte) *ecdsa.PrivateKey {
	key, err := crypto.ToECDSA(b)
	if err != nil {
		panic(err)
	}
	return key
}
