package defi_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github/chapool/wallet-core/internal/wallet/chain"
	"github/chapool/wallet-core/internal/wallet/defi"
	"github/chapool/wallet-core/internal/wallet/errs"
)

const tokenListTOML = `
[[token]]
name = "Wrapped Ether"
symbol = "WETH"
decimals = 18
address = "0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2"
chain = "ETH"

[[token]]
name = "Bonk"
symbol = "BONK"
decimals = 5
address = "DezXAZ8z7PnrnRJjz3wXBoRgixCa6xjnB7YaB1pPB263"
chain = "solana"
logo_url = "https://example.com/bonk.png"
`

func TestParseTokenList(t *testing.T) {
	tokens, err := defi.ParseTokenList(tokenListTOML)
	require.NoError(t, err)
	require.Len(t, tokens, 2)

	assert.Equal(t, "WETH", tokens[0].Symbol)
	assert.Equal(t, chain.Ethereum, tokens[0].Chain)
	assert.EqualValues(t, 18, tokens[0].Decimals)

	assert.Equal(t, chain.Solana, tokens[1].Chain)
	assert.Equal(t, "https://example.com/bonk.png", tokens[1].LogoURL)

	sol := defi.ForChain(tokens, chain.Solana)
	require.Len(t, sol, 1)
	assert.Equal(t, "BONK", sol[0].Symbol)
	assert.Empty(t, defi.ForChain(tokens, chain.Bitcoin))
}

func TestParseTokenListRejects(t *testing.T) {
	tests := map[string]string{
		"syntax":    "[[token]\nsymbol = ",
		"no symbol": "[[token]]\nchain = \"ethereum\"\n",
		"bad chain": "[[token]]\nsymbol = \"X\"\nchain = \"dogecoin\"\n",
		"decimals":  "[[token]]\nsymbol = \"X\"\nchain = \"ethereum\"\ndecimals = 78\n",
	}

	for name, doc := range tests {
		_, err := defi.ParseTokenList(doc)
		require.Error(t, err, name)
		assert.Equal(t, errs.KindDeFi, errs.KindOf(err), name)
	}
}

func TestLoadTokenList(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tokens.toml")
	require.NoError(t, os.WriteFile(path, []byte(tokenListTOML), 0o600))

	tokens, err := defi.LoadTokenList(path)
	require.NoError(t, err)
	assert.Len(t, tokens, 2)

	_, err = defi.LoadTokenList(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Equal(t, errs.KindDeFi, errs.KindOf(err))
}
