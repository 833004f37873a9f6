package chain

import (
	"encoding/hex"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"marketchain/config"
	"marketchain/crypto"
	"marketchain/evaluator"
	"marketchain/txops"
	"marketchain/types"
)

func TestWitnessIdentitiesFromConfig(t *testing.T) {
	priv, err := crypto.GeneratePrivateKey()
	require.NoError(t, err)
	hexKey := hex.EncodeToString(priv.Bytes())

	var secret types.SecretHash
	secret[0] = 0x42

	cfg := config.Default()
	cfg.Witnesses = []string{
		"3:" + hexKey,
		"7:" + crypto.EncodeWIF(priv) + ":" + hex.EncodeToString(secret[:]),
	}

	identities, err := WitnessIdentitiesFromConfig(&cfg)
	require.NoError(t, err)
	require.Len(t, identities, 2)

	require.Equal(t, types.ObjectID{Space: types.SpaceProtocol, Type: types.TypeWitness, Instance: 3}, identities[0].WitnessID)
	require.Equal(t, priv.Bytes(), identities[0].PrivateKey)
	require.Equal(t, types.SecretHash{}, identities[0].LastSecret)

	require.Equal(t, uint64(7), identities[1].WitnessID.Instance)
	require.Equal(t, priv.Bytes(), identities[1].PrivateKey, "WIF entry must decode to the same key")
	require.Equal(t, secret, identities[1].LastSecret)
}

func TestWitnessIdentitiesFromConfigRejectsMalformed(t *testing.T) {
	for _, entry := range []string{
		"no-colon",
		"x:deadbeef",
		"1:tooshort",
		"1:" + string(make([]byte, 64)),
		"1:0000000000000000000000000000000000000000000000000000000000000001:zz",
	} {
		cfg := config.Default()
		cfg.Witnesses = []string{entry}
		_, err := WitnessIdentitiesFromConfig(&cfg)
		require.Error(t, err, "entry %q", entry)
	}
}

func TestNewControllerFromConfig(t *testing.T) {
	cfg := config.Default()
	cfg.UndoWindowDepth = 5
	cfg.LogFile = filepath.Join(t.TempDir(), "chain.log")

	reg := evaluator.NewRegistry()
	txops.RegisterAll(reg)

	db, ctrl := NewControllerFromConfig(&cfg, reg)
	require.Same(t, db, ctrl.DB)
	require.NotNil(t, ctrl.Log)
	require.NotNil(t, ctrl.Scheduler)
}
