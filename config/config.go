// Package config loads the node-level parameters (data directory, log file,
// witness identities, undo window depth) and the chain parameters used to
// seed genesis via BurntSushi/toml, as a load/validate/default-merge trio.
package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"

	"marketchain/types"
)

// DefaultUndoWindowDepth is the number of applied blocks the object store
// keeps undoable by default, bounding the short-reorg fork-switch window.
const DefaultUndoWindowDepth = 64

// blockchainPrecision is the number of smallest-unit amounts representing
// one whole core-asset unit.
const blockchainPrecision = 100_000

// Config is the node's local configuration: where it keeps data, which
// witnesses (if any) it controls, and how it wants the chain controller to
// behave. Parameters is the one consensus-relevant part: it only seeds
// types.ChainParameters at genesis; after that the live values are in
// types.GlobalProperties and travel with the chain.
type Config struct {
	DataDir string `toml:"DataDir"`

	// LogFile, when set, adds a size-rotated copy of the chain controller's
	// structured log at this path (see logging.SetupRotating).
	LogFile string `toml:"LogFile"`

	// Witnesses this node controls, as "witness_instance:key[:secret]"
	// entries: key is a 64-char hex private key or a WIF string (see
	// crypto.ParseWIF; crypto.LoadFromKeystore is the keystore-file
	// alternative), and the optional secret is the 40-char hex preimage of
	// the witness's current on-chain next_secret commitment. Parsed by
	// chain.WitnessIdentitiesFromConfig.
	Witnesses []string `toml:"Witnesses"`

	// EnableStaleProduction allows ProduceBlock to run even when the node's
	// last-seen head is older than one block interval (useful when restarting
	// a stalled chain; leave off for normal operation).
	EnableStaleProduction bool `toml:"EnableStaleProduction"`

	// UndoWindowDepth bounds how many applied blocks can be popped for a
	// short-reorg fork switch.
	UndoWindowDepth int `toml:"UndoWindowDepth"`

	Parameters ChainParametersConfig `toml:"Parameters"`
}

// ChainParametersConfig mirrors types.ChainParameters in TOML-friendly form;
// Load converts it via ToChainParameters once defaults are merged in.
type ChainParametersConfig struct {
	BlockIntervalSeconds         uint32 `toml:"BlockIntervalSeconds"`
	MaintenanceIntervalSeconds   uint32 `toml:"MaintenanceIntervalSeconds"`
	MaximumAuthorityMembership   uint32 `toml:"MaximumAuthorityMembership"`
	MaximumAuthorityDepth        uint32 `toml:"MaximumAuthorityDepth"`
	ActiveWitnessCount           uint32 `toml:"ActiveWitnessCount"`
	ActiveDelegateCount          uint32 `toml:"ActiveDelegateCount"`
	CashbackVestingThreshold     int64  `toml:"CashbackVestingThreshold"`
	CashbackVestingPeriodSeconds int64  `toml:"CashbackVestingPeriodSeconds"`
	NetworkPercentOfFee          uint16 `toml:"NetworkPercentOfFee"`
	LifetimeReferrerPercentOfFee uint16 `toml:"LifetimeReferrerPercentOfFee"`
	BulkDiscountThresholdMin     int64  `toml:"BulkDiscountThresholdMin"`
	BulkDiscountThresholdMax     int64  `toml:"BulkDiscountThresholdMax"`
	BulkDiscountBonusMin         int64  `toml:"BulkDiscountBonusMin"`
	BulkDiscountBonusMax         int64  `toml:"BulkDiscountBonusMax"`
	MaximumTransactionSizeBytes  uint32 `toml:"MaximumTransactionSizeBytes"`
	MaximumBlockSizeBytes        uint32 `toml:"MaximumBlockSizeBytes"`
	TaPoSWindowBlocks            uint32 `toml:"TaPoSWindowBlocks"`
}

// ToChainParameters converts the TOML-loaded configuration into the on-chain
// struct used to seed GlobalProperties at genesis.
func (c ChainParametersConfig) ToChainParameters() types.ChainParameters {
	return types.ChainParameters{
		BlockIntervalSeconds:         c.BlockIntervalSeconds,
		MaintenanceIntervalSeconds:   c.MaintenanceIntervalSeconds,
		MaximumAuthorityMembership:   c.MaximumAuthorityMembership,
		MaximumAuthorityDepth:        c.MaximumAuthorityDepth,
		ActiveWitnessCount:           c.ActiveWitnessCount,
		ActiveDelegateCount:          c.ActiveDelegateCount,
		CashbackVestingThreshold:     c.CashbackVestingThreshold,
		CashbackVestingPeriodSeconds: c.CashbackVestingPeriodSeconds,
		NetworkPercentOfFee:          c.NetworkPercentOfFee,
		LifetimeReferrerPercentOfFee: c.LifetimeReferrerPercentOfFee,
		BulkDiscountThresholdMin:     c.BulkDiscountThresholdMin,
		BulkDiscountThresholdMax:     c.BulkDiscountThresholdMax,
		BulkDiscountBonusMin:         c.BulkDiscountBonusMin,
		BulkDiscountBonusMax:         c.BulkDiscountBonusMax,
		MaximumTransactionSizeBytes:  c.MaximumTransactionSizeBytes,
		MaximumBlockSizeBytes:        c.MaximumBlockSizeBytes,
		TaPoSWindowBlocks:            c.TaPoSWindowBlocks,
	}
}

// Default returns the reference parameter set used by tests and by Load
// when no configuration file exists yet.
func Default() Config {
	return Config{
		DataDir:               "./marketchain-data",
		EnableStaleProduction: false,
		UndoWindowDepth:       DefaultUndoWindowDepth,
		Parameters: ChainParametersConfig{
			BlockIntervalSeconds:         3,
			MaintenanceIntervalSeconds:   60 * 60,
			MaximumAuthorityMembership:   10,
			MaximumAuthorityDepth:        2,
			ActiveWitnessCount:           21,
			ActiveDelegateCount:          11,
			CashbackVestingThreshold:     100 * blockchainPrecision,
			CashbackVestingPeriodSeconds: 60 * 60 * 24 * 365,
			NetworkPercentOfFee:          2000, // 20%
			LifetimeReferrerPercentOfFee: 3000, // 30%
			BulkDiscountThresholdMin:     1_000 * blockchainPrecision,
			BulkDiscountThresholdMax:     10_000 * blockchainPrecision,
			BulkDiscountBonusMin:         8 * blockchainPrecision,
			BulkDiscountBonusMax:         9 * blockchainPrecision,
			MaximumTransactionSizeBytes:  64 * 1024,
			MaximumBlockSizeBytes:        2 * 1024 * 1024,
			TaPoSWindowBlocks:            0xffff,
		},
	}
}

// Load reads a TOML configuration file at path over Default(), so any field
// the file omits keeps its default value (a field the file sets explicitly,
// even to zero, keeps the file's value), then validates the result.
// A missing file is not an error: the defaults are written out so the next
// run has something to edit.
func Load(path string) (*Config, error) {
	cfg := Default()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := save(path, cfg); err != nil {
			return nil, err
		}
		return &cfg, nil
	}
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, fmt.Errorf("config: decode %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func save(path string, cfg Config) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return toml.NewEncoder(f).Encode(cfg)
}

// Validate rejects configurations that would make the chain controller's
// invariants unreachable (e.g. a zero block interval makes every slot
// computation divide by zero).
func (c Config) Validate() error {
	if c.Parameters.BlockIntervalSeconds == 0 {
		return fmt.Errorf("config: BlockIntervalSeconds must be non-zero")
	}
	if c.Parameters.ActiveWitnessCount == 0 {
		return fmt.Errorf("config: ActiveWitnessCount must be non-zero")
	}
	if c.UndoWindowDepth <= 0 {
		return fmt.Errorf("config: UndoWindowDepth must be positive")
	}
	if c.Parameters.MaximumAuthorityDepth == 0 {
		return fmt.Errorf("config: MaximumAuthorityDepth must be non-zero")
	}
	return nil
}
