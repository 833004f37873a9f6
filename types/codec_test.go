package types

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func testTransaction() *SignedTransaction {
	core := ObjectID{Space: SpaceProtocol, Type: TypeAsset, Instance: 0}
	alice := ObjectID{Space: SpaceProtocol, Type: TypeAccount, Instance: 7}
	bob := ObjectID{Space: SpaceProtocol, Type: TypeAccount, Instance: 9}
	var sig [65]byte
	sig[0] = 0x1f
	return &SignedTransaction{
		Transaction: Transaction{
			RefBlockNum:               513,
			RefBlockPrefix:            0xdeadbeef,
			RelativeExpirationSeconds: 30,
			Operations: []Operation{
				{Body: TransferOp{From: alice, To: bob, Amount: Amount{Amount: 1_000, AssetID: core}, Fee: Amount{Amount: 10, AssetID: core}, Memo: []byte("rent")}},
				{Body: LimitOrderCreateOp{Seller: bob, ForSale: Amount{Amount: 500, AssetID: core}, MinToReceive: Amount{Amount: 250, AssetID: ObjectID{Space: SpaceProtocol, Type: TypeAsset, Instance: 1}}, Expiration: 1_700_000_600}},
			},
		},
		Signatures: [][65]byte{sig},
	}
}

func TestTransactionDigestSurvivesRoundTrip(t *testing.T) {
	st := testTransaction()
	wire := EncodeSignedTransaction(st)

	decoded, n, err := DecodeSignedTransaction(wire)
	require.NoError(t, err)
	require.Equal(t, len(wire), n)

	require.Equal(t, st.TransactionID(), decoded.TransactionID())
	require.Equal(t, wire, EncodeSignedTransaction(decoded))
	require.Equal(t, st.Signatures, decoded.Signatures)
}

func TestDecodeSignedTransactionRejectsTruncation(t *testing.T) {
	wire := EncodeSignedTransaction(testTransaction())
	for _, cut := range []int{1, len(wire) / 2, len(wire) - 1} {
		_, _, err := DecodeSignedTransaction(wire[:cut])
		require.Error(t, err, "cut at %d", cut)
	}
}

func TestBlockRoundTrip(t *testing.T) {
	st := testTransaction()
	block := &Block{
		Timestamp: 1_700_000_003,
		Witness:   ObjectID{Space: SpaceProtocol, Type: TypeWitness, Instance: 4},
	}
	block.Previous[0] = 0xaa
	block.PreviousSecret[0] = 0x01
	block.NextSecretHash[0] = 0x02
	block.WitnessSignature[64] = 0x03
	block.Transactions = []SignedTransaction{*st}
	block.TransactionMerkleRoot = TransactionsMerkleRoot(block.Transactions)

	wire := EncodeBlock(block)
	decoded, err := DecodeBlock(wire)
	require.NoError(t, err)
	require.Equal(t, block.ID(), decoded.ID())
	require.Equal(t, wire, EncodeBlock(decoded))

	_, err = DecodeBlock(wire[:len(wire)-1])
	require.Error(t, err)
	_, err = DecodeBlock(append(wire, 0x00))
	require.Error(t, err, "trailing bytes are rejected")
}

func TestMerkleRootChangesWithContents(t *testing.T) {
	st := testTransaction()
	one := TransactionsMerkleRoot([]SignedTransaction{*st})
	require.NotEqual(t, [20]byte{}, one)

	mutated := *st
	mutated.RefBlockPrefix++
	require.NotEqual(t, one, TransactionsMerkleRoot([]SignedTransaction{mutated}))
	require.NotEqual(t, one, TransactionsMerkleRoot([]SignedTransaction{*st, *st}))
}
