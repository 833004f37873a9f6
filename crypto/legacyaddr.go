package crypto

import (
	"crypto/sha256"

	"github.com/ethereum/go-ethereum/crypto"
	"golang.org/x/crypto/ripemd160" //nolint:staticcheck // required for historical PTS address compatibility
)

// ptsAddress reproduces the legacy PTS/BTC-style address hash: RIPEMD160 of
// SHA-256 of the version byte prepended to either the compressed or
// uncompressed public key encoding. version distinguishes the PTS network
// (56) from the plain Bitcoin-style network (0); balance claims accept
// either.
func ptsAddress(pub *PublicKey, compressed bool, version byte) [20]byte {
	var keyBytes []byte
	if compressed {
		keyBytes = crypto.CompressPubkey(pub.PublicKey)
	} else {
		keyBytes = crypto.FromECDSAPub(pub.PublicKey)
	}
	payload := make([]byte, 0, len(keyBytes)+1)
	payload = append(payload, version)
	payload = append(payload, keyBytes...)

	sha := sha256.Sum256(payload)
	hasher := ripemd160.New()
	hasher.Write(sha[:])
	var out [20]byte
	copy(out[:], hasher.Sum(nil))
	return out
}

// modernOwnerID is the direct (non-legacy) owner-id derivation: RIPEMD160 of
// SHA-256 of the raw compressed public key, with no version byte.
func modernOwnerID(compressedKey [33]byte) [20]byte {
	sha := sha256.Sum256(compressedKey[:])
	hasher := ripemd160.New()
	hasher.Write(sha[:])
	var out [20]byte
	copy(out[:], hasher.Sum(nil))
	return out
}

// OwnerCandidates returns every owner identifier a BalanceClaim signing key
// might match: the modern direct encoding plus the four historical PTS/BTC
// encodings still found on genesis balances ((compressed,version) in
// {(false,56),(true,56),(false,0),(true,0)}).
func OwnerCandidates(compressedKey [33]byte) ([5][20]byte, error) {
	pub, err := DecompressPubkey(compressedKey)
	if err != nil {
		return [5][20]byte{}, err
	}
	return [5][20]byte{
		modernOwnerID(compressedKey),
		ptsAddress(pub, false, 56),
		ptsAddress(pub, true, 56),
		ptsAddress(pub, false, 0),
		ptsAddress(pub, true, 0),
	}, nil
}

// MatchesOwner reports whether signingKey resolves to owner under any of the
// supported encodings.
func MatchesOwner(signingKey [33]byte, owner [20]byte) bool {
	candidates, err := OwnerCandidates(signingKey)
	if err != nil {
		return false
	}
	for _, c := range candidates {
		if c == owner {
			return true
		}
	}
	return false
}
