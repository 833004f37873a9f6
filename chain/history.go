// Package chain implements the block apply/produce pipeline: per-
// block transaction application over objectdb's undo-journal sessions,
// maintenance-interval housekeeping, and bounded fork switching within the
// retained undo window.
package chain

import (
	"marketchain/types"
	"marketchain/xerrors"
)

// taposEntry is one recently-seen block's identity, keyed by the low 16
// bits of its block number.
type taposEntry struct {
	id        [20]byte
	timestamp int64
}

// taposRing tracks recent blocks keyed by the low 16 bits of their block
// number, the form a transaction's RefBlockNum/RefBlockPrefix pair
// references. Entries naturally age out as block numbers wrap back around
// the same low-16-bit slot.
type taposRing struct {
	entries map[uint16]taposEntry
}

func newTaposRing() *taposRing {
	return &taposRing{entries: make(map[uint16]taposEntry)}
}

func (r *taposRing) record(blockNum uint32, id [20]byte, timestamp int64) {
	r.entries[uint16(blockNum)] = taposEntry{id: id, timestamp: timestamp}
}

func (r *taposRing) lookup(blockNum uint16) (taposEntry, bool) {
	e, ok := r.entries[blockNum]
	return e, ok
}

// refBlockPrefix returns the 4-byte prefix of id a TaPoS reference embeds:
// bytes 4-8 of the referenced block's id.
func refBlockPrefix(id [20]byte) uint32 {
	return uint32(id[4])<<24 | uint32(id[5])<<16 | uint32(id[6])<<8 | uint32(id[7])
}

// checkTaPoS validates a transaction's TaPoS reference against the ring
// buffer, returning the referenced block's timestamp so
// the caller can resolve a relative-expiration transaction's expiration
// time. Absolute-expiration transactions carry no TaPoS reference and
// always pass, with a zero reference timestamp (unused by ExpirationTime in
// that case).
func (r *taposRing) checkTaPoS(tx *types.Transaction) (refID [20]byte, refTimestamp int64, err error) {
	if tx.IsAbsoluteExpiration() {
		return [20]byte{}, 0, nil
	}
	e, ok := r.lookup(tx.RefBlockNum)
	if !ok {
		return [20]byte{}, 0, xerrors.New(xerrors.KindConsensus, "chain.checkTaPoS", "", xerrors.ErrStaleTaPoS)
	}
	if refBlockPrefix(e.id) != tx.RefBlockPrefix {
		return [20]byte{}, 0, xerrors.New(xerrors.KindConsensus, "chain.checkTaPoS", "", xerrors.ErrStaleTaPoS)
	}
	return e.id, e.timestamp, nil
}
