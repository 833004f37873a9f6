package crypto

import (
	"crypto/ecdsa"
	"crypto/rand"
	"fmt"

	"github.com/btcsuite/btcutil/bech32"
	"github.com/ethereum/go-ethereum/crypto"
)

// AddressPrefix defines the different types of human-readable address prefixes.
type AddressPrefix string

const (
	// AccountPrefix renders an account's active-authority address.
	AccountPrefix AddressPrefix = "mkt"
	// WitnessPrefix renders a witness signing-key address, kept distinct so
	// logs never confuse the two roles.
	WitnessPrefix AddressPrefix = "mktw"
)

// Address represents a 20-byte bech32-rendered address with a specific
// human-readable prefix.
type Address struct {
	prefix AddressPrefix
	bytes  []byte
}

func NewAddress(prefix AddressPrefix, b []byte) (Address, error) {
	if len(b) != 20 {
		return Address{}, fmt.Errorf("address must be 20 bytes long, got %d", len(b))
	}
	cloned := append([]byte(nil), b...)
	return Address{prefix: prefix, bytes: cloned}, nil
}

// MustNewAddress constructs an address and panics if the input is invalid.
func MustNewAddress(prefix AddressPrefix, b []byte) Address {
	addr, err := NewAddress(prefix, b)
	if err != nil {
		panic(err)
	}
	return addr
}

func (a Address) String() string {
	conv, err := bech32.ConvertBits(a.bytes, 8, 5, true)
	if err != nil {
		panic(err)
	}
	encoded, err := bech32.Encode(string(a.prefix), conv)
	if err != nil {
		panic(err)
	}
	return encoded
}

func (a Address) Bytes() []byte {
	return append([]byte(nil), a.bytes...)
}

// Prefix returns the human-readable prefix associated with the address.
func (a Address) Prefix() AddressPrefix {
	return a.prefix
}

func DecodeAddress(addrStr string) (Address, error) {
	prefix, decoded, err := bech32.Decode(addrStr)
	if err != nil {
		return Address{}, fmt.Errorf("invalid bech32 string: %w", err)
	}
	conv, err := bech32.ConvertBits(decoded, 5, 8, false)
	if err != nil {
		return Address{}, fmt.Errorf("error converting bits: %w", err)
	}
	addr, err := NewAddress(AddressPrefix(prefix), conv)
	if err != nil {
		return Address{}, err
	}
	return addr, nil
}

// --- Key Management ---

type PrivateKey struct {
	*ecdsa.PrivateKey
}

type PublicKey struct {
	*ecdsa.PublicKey
}

func GeneratePrivateKey() (*PrivateKey, error) {
	key, err := ecdsa.GenerateKey(crypto.S256(), rand.Reader)
	if err != nil {
		return nil, err
	}
	return &PrivateKey{key}, nil
}

// Bytes returns the byte representation of the private key.
func (k *PrivateKey) Bytes() []byte {
	return crypto.FromECDSA(k.PrivateKey)
}

func (k *PrivateKey) PubKey() *PublicKey {
	return &PublicKey{&k.PrivateKey.PublicKey}
}

// Compressed returns the 33-byte compressed SEC1 encoding used throughout
// the object model for authority keys and witness signing keys.
func (k *PublicKey) Compressed() [33]byte {
	var out [33]byte
	copy(out[:], crypto.CompressPubkey(k.PublicKey))
	return out
}

func (k *PublicKey) Address() Address {
	addrBytes := crypto.PubkeyToAddress(*k.PublicKey).Bytes()
	return MustNewAddress(AccountPrefix, addrBytes)
}

func PrivateKeyFromBytes(b []byte) (*PrivateKey, error) {
	key, err := crypto.ToECDSA(b)
	if err != nil {
		return nil, err
	}
	return &PrivateKey{key}, nil
}

// DecompressPubkey expands a 33-byte compressed key back into a usable
// *PublicKey, returning an error for points not on the secp256k1 curve.
func DecompressPubkey(compressed [33]byte) (*PublicKey, error) {
	pub, err := crypto.DecompressPubkey(compressed[:])
	if err != nil {
		return nil, fmt.Errorf("crypto: invalid compressed key: %w", err)
	}
	return &PublicKey{pub}, nil
}

// Sign produces a 65-byte compact recoverable ECDSA signature over digest
// (which must be 32 bytes), matching the block/transaction wire format.
func Sign(digest [32]byte, priv *PrivateKey) ([65]byte, error) {
	sig, err := crypto.Sign(digest[:], priv.PrivateKey)
	if err != nil {
		return [65]byte{}, err
	}
	var out [65]byte
	copy(out[:], sig)
	return out, nil
}

// Recover returns the compressed public key that produced sig over digest.
func Recover(digest [32]byte, sig [65]byte) ([33]byte, error) {
	pub, err := crypto.SigToPub(digest[:], sig[:])
	if err != nil {
		return [33]byte{}, fmt.Errorf("crypto: signature recovery failed: %w", err)
	}
	var out [33]byte
	copy(out[:], crypto.CompressPubkey(pub))
	return out, nil
}
