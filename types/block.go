package types

// Block is the binary block format from the external-interfaces section:
// previous id, timestamp, scheduled witness, transaction merkle root, the
// secret-reveal pair, extensions, the transaction list, and the witness's
// compact recoverable signature.
type Block struct {
	Previous              [20]byte
	Timestamp             int64 // unix seconds, wire-encoded as u32
	Witness               ObjectID
	TransactionMerkleRoot [20]byte
	PreviousSecret        SecretHash
	NextSecretHash        SecretHash
	Extensions            [][]byte
	Transactions          []SignedTransaction
	WitnessSignature      [65]byte
}

// BlockNumber is derived from the witness-visible chain height tracked by
// the caller; the wire format itself does not embed a block number (it is
// implied by position in the block log).
type BlockNumber = uint32

// ID returns the block id: the leading 20 bytes of SHA-256 over the block's
// signed header bytes, used as "previous" by the next block and as the
// TaPoS reference.
func (b *Block) ID() [20]byte {
	return blockID(b)
}

// UnsignedDigest returns the hash the witness signs over: the header with
// WitnessSignature zeroed.
func (b *Block) UnsignedDigest() [32]byte {
	return blockSigningDigest(b)
}
