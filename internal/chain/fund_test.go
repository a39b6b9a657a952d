package chain

import (
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToBaseUnits(t *testing.T) {
	cases := []struct {
		name     string
		amount   string
		decimals uint8
		want     uint64
		wantErr  bool
	}{
		{"whole amount", "1000", 6, 1_000_000_000, false},
		{"fractional within precision", "12.34", 2, 1234, false},
		{"exact precision boundary", "0.000001", 6, 1, false},
		{"too many decimal places", "0.0000001", 6, 0, true},
		{"negative", "-1", 6, 0, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := toBaseUnits(decimal.RequireFromString(tc.amount), tc.decimals)
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestTransferCheckedInstruction(t *testing.T) {
	source := solana.NewWallet().PrivateKey.PublicKey()
	mint := solana.NewWallet().PrivateKey.PublicKey()
	dest := solana.NewWallet().PrivateKey.PublicKey()
	owner := solana.NewWallet().PrivateKey.PublicKey()

	inst := transferCheckedInstruction(source, mint, dest, owner, 1_500_000, 6)

	assert.Equal(t, solana.TokenProgramID, inst.ProgramID())

	data, err := inst.Data()
	require.NoError(t, err)
	// [12, amount u64 LE, decimals u8]
	assert.Equal(t, []byte{12, 0x60, 0xe3, 0x16, 0x00, 0x00, 0x00, 0x00, 0x00, 6}, data)

	accounts := inst.Accounts()
	require.Len(t, accounts, 4)
	assert.Equal(t, source, accounts[0].PublicKey)
	assert.True(t, accounts[0].IsWritable)
	assert.Equal(t, mint, accounts[1].PublicKey)
	assert.False(t, accounts[1].IsWritable)
	assert.Equal(t, dest, accounts[2].PublicKey)
	assert.True(t, accounts[2].IsWritable)
	assert.Equal(t, owner, accounts[3].PublicKey)
	assert.True(t, accounts[3].IsSigner)
}

func TestComputeBudgetInstructions(t *testing.T) {
	limit := computeUnitLimitInstruction(200_000)
	data, err := limit.Data()
	require.NoError(t, err)
	assert.Equal(t, []byte{0x02, 0x40, 0x0d, 0x03, 0x00}, data)

	price := computeUnitPriceInstruction(10_000)
	data, err = price.Data()
	require.NoError(t, err)
	assert.Equal(t, []byte{0x03, 0x10, 0x27, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00}, data)
}

func TestParseCommitment(t *testing.T) {
	assert.Equal(t, "processed", string(parseCommitment("processed")))
	assert.Equal(t, "confirmed", string(parseCommitment("confirmed")))
	assert.Equal(t, "finalized", string(parseCommitment("finalized")))
	assert.Equal(t, "finalized", string(parseCommitment("")))
}
