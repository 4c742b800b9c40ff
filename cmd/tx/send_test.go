package tx

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github/chapool/wallet-core/internal/wallet/txn"
)

func TestParseUTXO(t *testing.T) {
	u, err := parseUTXO("ab12:1:5000")
	require.NoError(t, err)
	assert.Equal(t, txn.UTXO{TxID: "ab12", Vout: 1, Amount: 5000}, u)

	for _, bad := range []string{"ab12", "ab12:x:1", "ab12:1:y", "a:1:2:3"} {
		_, err := parseUTXO(bad)
		assert.Error(t, err, bad)
	}
}

func TestRequestFromFlags(t *testing.T) {
	cmd := newSend()
	require.NoError(t, cmd.ParseFlags([]string{
		"--to", "0x9858EfFD232B4033E47d90003D41EC34EcaEda94",
		"--value", "1000",
		"--max-fee", "30000000000",
		"--nonce", "7",
		"--data", "0xa9059cbb",
		"--utxo", "ab12:0:100",
	}))

	req, err := requestFromFlags(cmd)
	require.NoError(t, err)

	assert.Equal(t, "1000", req.Value)
	assert.Equal(t, "30000000000", req.MaxFeePerGas)
	require.NotNil(t, req.Nonce)
	assert.Equal(t, uint64(7), *req.Nonce)
	assert.Equal(t, []byte{0xa9, 0x05, 0x9c, 0xbb}, req.Data)
	assert.Equal(t, txn.TypeTransfer, req.Type)
	assert.Len(t, req.Inputs, 1)

	cmd = newSend()
	require.NoError(t, cmd.ParseFlags([]string{"--to", "x"}))
	req, err = requestFromFlags(cmd)
	require.NoError(t, err)
	assert.Nil(t, req.Nonce)
	assert.Nil(t, req.Data)

	cmd = newSend()
	require.NoError(t, cmd.ParseFlags([]string{"--data", "zz"}))
	_, err = requestFromFlags(cmd)
	require.Error(t, err)
}
