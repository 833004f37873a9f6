package chain

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"marketchain/config"
	"marketchain/crypto"
	"marketchain/evaluator"
	"marketchain/objectdb"
	"marketchain/observability/logging"
	"marketchain/types"
)

// NewControllerFromConfig sizes the database's retained undo window from
// cfg.UndoWindowDepth and, when cfg.LogFile is set, routes the controller's
// structured log through a size-rotated file. The database is returned
// alongside the controller because callers seed genesis state through it
// before the first ApplyBlock.
func NewControllerFromConfig(cfg *config.Config, reg *evaluator.Registry) (*objectdb.Database, *Controller) {
	db := objectdb.NewDatabase(cfg.UndoWindowDepth)
	c := NewController(db, reg)
	if cfg.LogFile != "" {
		c.Log = logging.SetupRotating("chain", "", cfg.LogFile)
	}
	for _, entry := range cfg.Witnesses {
		instance, _, _ := strings.Cut(entry, ":")
		c.Log.Info("witness configured",
			"witness_instance", instance,
			logging.MaskField("key", entry))
	}
	return db, c
}

// WitnessIdentitiesFromConfig parses cfg.Witnesses into identities
// ProduceBlock can sign with. Each entry is "witness_instance:key[:secret]"
// where key is a 64-char hex private key or a WIF string and the optional
// secret is the hex preimage of the witness's current on-chain next_secret
// commitment. A missing secret leaves LastSecret zeroed, which is only
// valid for a witness whose genesis commitment was seeded from the zero
// secret; after every produced block the operator must store the returned
// secret back before the witness's next turn.
func WitnessIdentitiesFromConfig(cfg *config.Config) ([]WitnessIdentity, error) {
	identities := make([]WitnessIdentity, 0, len(cfg.Witnesses))
	for _, entry := range cfg.Witnesses {
		id, err := parseWitnessEntry(entry)
		if err != nil {
			return nil, err
		}
		identities = append(identities, id)
	}
	return identities, nil
}

func parseWitnessEntry(entry string) (WitnessIdentity, error) {
	parts := strings.Split(entry, ":")
	if len(parts) != 2 && len(parts) != 3 {
		return WitnessIdentity{}, fmt.Errorf("chain: witness entry %q: want instance:key[:secret]", entry)
	}

	instance, err := strconv.ParseUint(parts[0], 10, 48)
	if err != nil {
		return WitnessIdentity{}, fmt.Errorf("chain: witness entry %q: bad instance: %w", entry, err)
	}

	key, err := parseWitnessKey(parts[1])
	if err != nil {
		return WitnessIdentity{}, fmt.Errorf("chain: witness entry %q: %w", entry, err)
	}

	identity := WitnessIdentity{
		WitnessID:  types.ObjectID{Space: types.SpaceProtocol, Type: types.TypeWitness, Instance: instance},
		PrivateKey: key.Bytes(),
	}
	if len(parts) == 3 {
		raw, err := hex.DecodeString(parts[2])
		if err != nil || len(raw) != len(identity.LastSecret) {
			return WitnessIdentity{}, fmt.Errorf("chain: witness entry %q: secret must be %d hex bytes", entry, len(identity.LastSecret))
		}
		copy(identity.LastSecret[:], raw)
	}
	return identity, nil
}

func parseWitnessKey(s string) (*crypto.PrivateKey, error) {
	if raw, err := hex.DecodeString(s); err == nil && len(raw) == 32 {
		return crypto.PrivateKeyFromBytes(raw)
	}
	return crypto.ParseWIF(s)
}
