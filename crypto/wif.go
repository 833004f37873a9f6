package crypto

import (
	"bytes"
	"crypto/sha256"
	"fmt"

	"github.com/btcsuite/btcutil/base58"
)

// wifVersion is the Bitcoin-inherited version byte wallets use when
// exporting signing keys in wallet-import format.
const wifVersion = 0x80

// ParseWIF decodes a wallet-import-format private key: base58 of a version
// byte, 32 key bytes, an optional 0x01 compression marker, and a 4-byte
// double-SHA256 checksum. Both the compressed and uncompressed forms are
// accepted since legacy wallets exported either.
func ParseWIF(s string) (*PrivateKey, error) {
	decoded := base58.Decode(s)
	if len(decoded) != 37 && len(decoded) != 38 {
		return nil, fmt.Errorf("crypto: malformed WIF string (%d bytes)", len(decoded))
	}
	payload, checksum := decoded[:len(decoded)-4], decoded[len(decoded)-4:]
	first := sha256.Sum256(payload)
	second := sha256.Sum256(first[:])
	if !bytes.Equal(second[:4], checksum) {
		return nil, fmt.Errorf("crypto: WIF checksum mismatch")
	}
	if payload[0] != wifVersion {
		return nil, fmt.Errorf("crypto: unexpected WIF version byte %#x", payload[0])
	}
	if len(payload) == 34 && payload[33] != 0x01 {
		return nil, fmt.Errorf("crypto: malformed WIF compression marker %#x", payload[33])
	}
	return PrivateKeyFromBytes(payload[1:33])
}

// EncodeWIF renders priv in compressed wallet-import format.
func EncodeWIF(priv *PrivateKey) string {
	payload := make([]byte, 0, 38)
	payload = append(payload, wifVersion)
	payload = append(payload, priv.Bytes()...)
	payload = append(payload, 0x01)
	first := sha256.Sum256(payload)
	second := sha256.Sum256(first[:])
	return base58.Encode(append(payload, second[:4]...))
}
