package crypto

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWIFRoundTrip(t *testing.T) {
	priv, err := GeneratePrivateKey()
	require.NoError(t, err)

	decoded, err := ParseWIF(EncodeWIF(priv))
	require.NoError(t, err)
	require.Equal(t, priv.Bytes(), decoded.Bytes())
}

func TestParseWIFRejectsTamperedChecksum(t *testing.T) {
	priv, err := GeneratePrivateKey()
	require.NoError(t, err)

	wif := EncodeWIF(priv)
	tampered := wif[:len(wif)-1] + string(wif[len(wif)-1]^1)
	_, err = ParseWIF(tampered)
	require.Error(t, err)

	_, err = ParseWIF("not-a-wif")
	require.Error(t, err)
}

func TestOwnerCandidatesCoverLegacyEncodings(t *testing.T) {
	priv, err := GeneratePrivateKey()
	require.NoError(t, err)
	compressed := priv.PubKey().Compressed()

	candidates, err := OwnerCandidates(compressed)
	require.NoError(t, err)

	seen := map[[20]byte]bool{}
	for _, c := range candidates {
		require.False(t, seen[c], "each encoding must derive a distinct owner id")
		seen[c] = true
		require.True(t, MatchesOwner(compressed, c))
	}

	var other [20]byte
	other[0] = 0xff
	require.False(t, MatchesOwner(compressed, other))
}

func TestKeystoreRoundTrip(t *testing.T) {
	priv, err := GeneratePrivateKey()
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "keys", "witness.json")
	require.NoError(t, SaveToKeystore(path, priv, "opensesame"))

	loaded, err := LoadFromKeystore(path, "opensesame")
	require.NoError(t, err)
	require.Equal(t, priv.Bytes(), loaded.Bytes())

	_, err = LoadFromKeystore(path, "wrong")
	require.Error(t, err)
}
