package types

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// Package-level codec implementing the length-prefixed-varint wire format
// from the external-interfaces section. Operation bodies are framed as
// (tag varint, length-prefixed deterministic-JSON payload); Go's
// encoding/json emits struct fields in declaration order with no map
// randomization for our (map-free) operation structs, so the payload is
// stable across repeated encodes of equal values, which is all the
// round-trip/digest guarantees need.

func appendVarint(buf []byte, v uint64) []byte {
	return protowire.AppendVarint(buf, v)
}

func appendBytes(buf []byte, b []byte) []byte {
	buf = appendVarint(buf, uint64(len(b)))
	return append(buf, b...)
}

func consumeVarint(buf []byte) (uint64, int) {
	v, n := protowire.ConsumeVarint(buf)
	return v, n
}

func consumeBytes(buf []byte) ([]byte, int) {
	l, n := consumeVarint(buf)
	if n <= 0 {
		return nil, n
	}
	total := n + int(l)
	if total > len(buf) {
		return nil, -1
	}
	return buf[n:total], total
}

func encodeObjectID(buf []byte, id ObjectID) []byte {
	buf = append(buf, byte(id.Space), byte(id.Type))
	return appendVarint(buf, id.Instance)
}

func decodeObjectID(buf []byte) (ObjectID, int) {
	if len(buf) < 2 {
		return ObjectID{}, -1
	}
	space, typ := buf[0], buf[1]
	inst, n := consumeVarint(buf[2:])
	if n <= 0 {
		return ObjectID{}, -1
	}
	return ObjectID{Space: Space(space), Type: ObjectType(typ), Instance: inst}, 2 + n
}

// EncodeOperation serializes one tagged operation body.
func EncodeOperation(op Operation) []byte {
	payload, err := json.Marshal(op.Body)
	if err != nil {
		panic(fmt.Errorf("types: encode operation body: %w", err))
	}
	buf := appendVarint(nil, uint64(op.Body.Tag()))
	buf = appendBytes(buf, payload)
	return buf
}

// DecodeOperation parses one tagged operation, returning the number of bytes
// consumed.
func DecodeOperation(buf []byte) (Operation, int, error) {
	tagVal, n := consumeVarint(buf)
	if n <= 0 {
		return Operation{}, -1, fmt.Errorf("types: truncated operation tag")
	}
	tag := OperationTag(tagVal)
	payload, m := consumeBytes(buf[n:])
	if m < 0 {
		return Operation{}, -1, fmt.Errorf("types: truncated operation payload")
	}
	body, err := newOperationBody(tag)
	if err != nil {
		return Operation{}, -1, err
	}
	if err := json.Unmarshal(payload, body); err != nil {
		return Operation{}, -1, fmt.Errorf("types: decode operation body: %w", err)
	}
	return Operation{Body: body}, n + m, nil
}

func newOperationBody(tag OperationTag) (OperationBody, error) {
	switch tag {
	case OpTransfer:
		return &TransferOp{}, nil
	case OpAccountCreate:
		return &AccountCreateOp{}, nil
	case OpAccountUpdate:
		return &AccountUpdateOp{}, nil
	case OpAssetCreate:
		return &AssetCreateOp{}, nil
	case OpAssetUpdate:
		return &AssetUpdateOp{}, nil
	case OpAssetUpdateFeedProducers:
		return &AssetUpdateFeedProducersOp{}, nil
	case OpAssetPublishFeed:
		return &AssetPublishFeedOp{}, nil
	case OpAssetSettle:
		return &AssetSettleOp{}, nil
	case OpLimitOrderCreate:
		return &LimitOrderCreateOp{}, nil
	case OpLimitOrderCancel:
		return &LimitOrderCancelOp{}, nil
	case OpCallOrderUpdate:
		return &CallOrderUpdateOp{}, nil
	case OpForceSettle:
		return &ForceSettleOp{}, nil
	case OpBalanceClaim:
		return &BalanceClaimOp{}, nil
	case OpWitnessCreate:
		return &WitnessCreateOp{}, nil
	case OpDelegateCreate:
		return &DelegateCreateOp{}, nil
	case OpProposalCreate:
		return &ProposalCreateOp{}, nil
	case OpProposalUpdate:
		return &ProposalUpdateOp{}, nil
	default:
		return nil, fmt.Errorf("types: unknown operation tag %d", tag)
	}
}

// EncodeTransaction serializes the unsigned transaction body: ref block
// fields, relative expiration, the varint-prefixed operation list, and the
// (currently always empty) extensions list.
func EncodeTransaction(t *Transaction) []byte {
	buf := make([]byte, 0, 128)
	buf = appendVarint(buf, uint64(t.RefBlockNum))
	buf = appendVarint(buf, uint64(t.RefBlockPrefix))
	buf = appendVarint(buf, uint64(t.RelativeExpirationSeconds))
	buf = appendVarint(buf, uint64(len(t.Operations)))
	for _, op := range t.Operations {
		buf = append(buf, EncodeOperation(op)...)
	}
	buf = appendVarint(buf, uint64(len(t.Extensions)))
	for _, ext := range t.Extensions {
		buf = appendBytes(buf, ext)
	}
	return buf
}

// DecodeTransaction parses an unsigned transaction body.
func DecodeTransaction(buf []byte) (*Transaction, int, error) {
	pos := 0
	refNum, n := consumeVarint(buf[pos:])
	if n <= 0 {
		return nil, -1, fmt.Errorf("types: truncated ref_block_num")
	}
	pos += n
	refPrefix, n := consumeVarint(buf[pos:])
	if n <= 0 {
		return nil, -1, fmt.Errorf("types: truncated ref_block_prefix")
	}
	pos += n
	relExp, n := consumeVarint(buf[pos:])
	if n <= 0 {
		return nil, -1, fmt.Errorf("types: truncated relative_expiration")
	}
	pos += n
	opCount, n := consumeVarint(buf[pos:])
	if n <= 0 {
		return nil, -1, fmt.Errorf("types: truncated operation count")
	}
	pos += n
	ops := make([]Operation, 0, opCount)
	for i := uint64(0); i < opCount; i++ {
		op, m, err := DecodeOperation(buf[pos:])
		if err != nil {
			return nil, -1, err
		}
		pos += m
		ops = append(ops, op)
	}
	extCount, n := consumeVarint(buf[pos:])
	if n <= 0 {
		return nil, -1, fmt.Errorf("types: truncated extensions count")
	}
	pos += n
	exts := make([][]byte, 0, extCount)
	for i := uint64(0); i < extCount; i++ {
		ext, m := consumeBytes(buf[pos:])
		if m < 0 {
			return nil, -1, fmt.Errorf("types: truncated extension")
		}
		pos += m
		exts = append(exts, append([]byte(nil), ext...))
	}
	return &Transaction{
		RefBlockNum:               uint16(refNum),
		RefBlockPrefix:            uint32(refPrefix),
		RelativeExpirationSeconds: uint32(relExp),
		Operations:                ops,
		Extensions:                exts,
	}, pos, nil
}

// EncodeSignedTransaction appends the signature list to the unsigned body.
func EncodeSignedTransaction(st *SignedTransaction) []byte {
	buf := EncodeTransaction(&st.Transaction)
	buf = appendVarint(buf, uint64(len(st.Signatures)))
	for _, sig := range st.Signatures {
		buf = append(buf, sig[:]...)
	}
	return buf
}

// DecodeSignedTransaction parses a signed transaction, returning the number
// of bytes consumed.
func DecodeSignedTransaction(buf []byte) (*SignedTransaction, int, error) {
	t, pos, err := DecodeTransaction(buf)
	if err != nil {
		return nil, -1, err
	}
	sigCount, n := consumeVarint(buf[pos:])
	if n <= 0 {
		return nil, -1, fmt.Errorf("types: truncated signature count")
	}
	pos += n
	sigs := make([][65]byte, 0, sigCount)
	for i := uint64(0); i < sigCount; i++ {
		if pos+65 > len(buf) {
			return nil, -1, fmt.Errorf("types: truncated signature")
		}
		var sig [65]byte
		copy(sig[:], buf[pos:pos+65])
		pos += 65
		sigs = append(sigs, sig)
	}
	return &SignedTransaction{Transaction: *t, Signatures: sigs}, pos, nil
}

// TransactionsMerkleRoot computes the transaction_merkle_root field: a
// binary Merkle tree over each signed transaction's id, using SHA-256 as
// the node hash and duplicating the final node on odd levels (Bitcoin-style),
// truncated to 20 bytes to match the block format's other hash fields.
func TransactionsMerkleRoot(txs []SignedTransaction) [20]byte {
	if len(txs) == 0 {
		return [20]byte{}
	}
	layer := make([][32]byte, len(txs))
	for i := range txs {
		id := txs[i].TransactionID()
		var padded [32]byte
		copy(padded[:], id[:])
		layer[i] = sha256.Sum256(padded[:])
	}
	for len(layer) > 1 {
		next := make([][32]byte, 0, (len(layer)+1)/2)
		for i := 0; i < len(layer); i += 2 {
			if i+1 < len(layer) {
				next = append(next, sha256.Sum256(append(append([]byte(nil), layer[i][:]...), layer[i+1][:]...)))
			} else {
				next = append(next, sha256.Sum256(append(append([]byte(nil), layer[i][:]...), layer[i][:]...)))
			}
		}
		layer = next
	}
	var root [20]byte
	copy(root[:], layer[0][:20])
	return root
}

func encodeBlockHeader(b *Block, includeSignature bool) []byte {
	buf := make([]byte, 0, 256)
	buf = append(buf, b.Previous[:]...)
	buf = appendVarint(buf, uint64(b.Timestamp))
	buf = encodeObjectID(buf, b.Witness)
	buf = append(buf, b.TransactionMerkleRoot[:]...)
	buf = append(buf, b.PreviousSecret[:]...)
	buf = append(buf, b.NextSecretHash[:]...)
	buf = appendVarint(buf, uint64(len(b.Extensions)))
	for _, ext := range b.Extensions {
		buf = appendBytes(buf, ext)
	}
	buf = appendVarint(buf, uint64(len(b.Transactions)))
	for i := range b.Transactions {
		buf = append(buf, EncodeSignedTransaction(&b.Transactions[i])...)
	}
	if includeSignature {
		buf = append(buf, b.WitnessSignature[:]...)
	}
	return buf
}

// EncodeBlock serializes the full wire block, including the witness
// signature.
func EncodeBlock(b *Block) []byte {
	return encodeBlockHeader(b, true)
}

// DecodeBlock parses a full wire block. Trailing bytes past the witness
// signature are an error: blocks arrive individually framed, never
// concatenated.
func DecodeBlock(buf []byte) (*Block, error) {
	b := &Block{}
	pos := 0
	take20 := func(dst []byte) error {
		if pos+20 > len(buf) {
			return fmt.Errorf("types: truncated block header")
		}
		copy(dst, buf[pos:pos+20])
		pos += 20
		return nil
	}
	if err := take20(b.Previous[:]); err != nil {
		return nil, err
	}
	ts, n := consumeVarint(buf[pos:])
	if n <= 0 {
		return nil, fmt.Errorf("types: truncated block timestamp")
	}
	pos += n
	b.Timestamp = int64(ts)
	witness, n := decodeObjectID(buf[pos:])
	if n <= 0 {
		return nil, fmt.Errorf("types: truncated block witness id")
	}
	pos += n
	b.Witness = witness
	if err := take20(b.TransactionMerkleRoot[:]); err != nil {
		return nil, err
	}
	if err := take20(b.PreviousSecret[:]); err != nil {
		return nil, err
	}
	if err := take20(b.NextSecretHash[:]); err != nil {
		return nil, err
	}
	extCount, n := consumeVarint(buf[pos:])
	if n <= 0 {
		return nil, fmt.Errorf("types: truncated block extensions count")
	}
	pos += n
	for i := uint64(0); i < extCount; i++ {
		ext, m := consumeBytes(buf[pos:])
		if m < 0 {
			return nil, fmt.Errorf("types: truncated block extension")
		}
		pos += m
		b.Extensions = append(b.Extensions, append([]byte(nil), ext...))
	}
	txCount, n := consumeVarint(buf[pos:])
	if n <= 0 {
		return nil, fmt.Errorf("types: truncated block transaction count")
	}
	pos += n
	for i := uint64(0); i < txCount; i++ {
		tx, m, err := DecodeSignedTransaction(buf[pos:])
		if err != nil {
			return nil, err
		}
		pos += m
		b.Transactions = append(b.Transactions, *tx)
	}
	if pos+65 != len(buf) {
		return nil, fmt.Errorf("types: block signature length mismatch")
	}
	copy(b.WitnessSignature[:], buf[pos:])
	return b, nil
}

func blockSigningDigest(b *Block) [32]byte {
	return sha256.Sum256(encodeBlockHeader(b, false))
}

func blockID(b *Block) [20]byte {
	sum := sha256.Sum256(EncodeBlock(b))
	var id [20]byte
	copy(id[:], sum[:20])
	return id
}
