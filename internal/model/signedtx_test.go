package model

import (
	"encoding/base64"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/mr-tron/base58"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignedTx_Bytes_Base58Encoded(t *testing.T) {
	raw := []byte{0x01, 0x02, 0x03, 0xff, 0x00, 0x7f}
	encoded := base58.Encode(raw)

	signed := NewEncodedSignedTx(encoded)
	got, err := signed.Bytes()
	require.NoError(t, err)
	assert.Equal(t, raw, got)
}

func TestSignedTx_Bytes_Base64Encoded(t *testing.T) {
	raw := []byte{0xde, 0xad, 0xbe, 0xef, 0x00}
	// Padding and '+' / '/' characters rule out the base58 alphabet
	encoded := base64.StdEncoding.EncodeToString(raw)
	require.Contains(t, encoded, "=")

	signed := NewEncodedSignedTx(encoded)
	got, err := signed.Bytes()
	require.NoError(t, err)
	assert.Equal(t, raw, got)
}

func TestSignedTx_Bytes_TransactionObject(t *testing.T) {
	payer := solana.NewWallet().PrivateKey.PublicKey()
	inst := solana.NewInstruction(
		solana.MemoProgramID,
		[]*solana.AccountMeta{{PublicKey: payer, IsSigner: true, IsWritable: false}},
		[]byte("hello"),
	)
	tx, err := solana.NewTransaction(
		[]solana.Instruction{inst},
		solana.Hash{},
		solana.TransactionPayer(payer),
	)
	require.NoError(t, err)

	want, err := tx.MarshalBinary()
	require.NoError(t, err)

	got, err := NewSignedTx(tx).Bytes()
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestSignedTx_Bytes_Idempotent(t *testing.T) {
	signed := NewEncodedSignedTx(base58.Encode([]byte{1, 2, 3}))

	first, err := signed.Bytes()
	require.NoError(t, err)
	second, err := signed.Bytes()
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestSignedTx_Bytes_Invalid(t *testing.T) {
	cases := []struct {
		name   string
		signed *SignedTx
	}{
		{"nil", nil},
		{"empty", &SignedTx{}},
		{"garbage encoding", NewEncodedSignedTx("!!!not-any-encoding!!!")},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := tc.signed.Bytes()
			assert.ErrorIs(t, err, ErrInvalidSignedTx)
		})
	}
}
