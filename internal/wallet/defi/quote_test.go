package defi_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github/chapool/wallet-core/internal/wallet/chain"
	"github/chapool/wallet-core/internal/wallet/defi"
	"github/chapool/wallet-core/internal/wallet/errs"
)

var (
	eth  = defi.Token{Name: "Ether", Symbol: "ETH", Decimals: 18, Address: defi.NativeEthereumAddress, Chain: chain.Ethereum}
	usdc = defi.Token{Name: "USD Coin", Symbol: "USDC", Decimals: 6, Address: "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48", Chain: chain.Ethereum}
)

func TestQuote(t *testing.T) {
	tests := []struct {
		name     string
		amount   string
		from     defi.Token
		priceIn  int64
		to       defi.Token
		priceOut int64
		want     string
	}{
		{"eth to usdc", "1000000000000000000", eth, 3000, usdc, 1, "3000000000"},
		{"usdc to eth truncates", "1000000", usdc, 1, eth, 3000, "333333333333333"},
		{"zero", "0", eth, 3000, usdc, 1, "0"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			got, err := defi.Quote(tt.amount, tt.from, decimal.NewFromInt(tt.priceIn), tt.to, decimal.NewFromInt(tt.priceOut))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestQuoteRejects(t *testing.T) {
	one := decimal.NewFromInt(1)

	_, err := defi.Quote("1.5", eth, one, usdc, one)
	assert.Equal(t, errs.KindDeFi, errs.KindOf(err))

	_, err = defi.Quote("-1", eth, one, usdc, one)
	assert.Equal(t, errs.KindDeFi, errs.KindOf(err))

	_, err = defi.Quote("1", eth, decimal.Zero, usdc, one)
	assert.Equal(t, errs.KindDeFi, errs.KindOf(err))

	_, err = defi.Quote("1", eth, one, usdc, decimal.Zero)
	assert.Equal(t, errs.KindDeFi, errs.KindOf(err))
}

func TestMinAmountOut(t *testing.T) {
	out, err := defi.MinAmountOut("1000", decimal.RequireFromString("0.5"))
	require.NoError(t, err)
	assert.Equal(t, "995", out.String())

	out, err = defi.MinAmountOut("333333333333333", decimal.NewFromInt(1))
	require.NoError(t, err)
	assert.Equal(t, "329999999999999", out.String())

	out, err = defi.MinAmountOut("1000", decimal.Zero)
	require.NoError(t, err)
	assert.Equal(t, "1000", out.String())
}

func TestValidateSlippage(t *testing.T) {
	assert.NoError(t, defi.ValidateSlippage(decimal.Zero))
	assert.NoError(t, defi.ValidateSlippage(decimal.RequireFromString("99.99")))

	for _, bad := range []string{"100", "150", "-0.1"} {
		err := defi.ValidateSlippage(decimal.RequireFromString(bad))
		require.Error(t, err, bad)
		assert.Equal(t, errs.KindDeFi, errs.KindOf(err), bad)
	}
}

func TestParseProtocol(t *testing.T) {
	assert.Equal(t, defi.ProtocolUniswap, defi.ParseProtocol("Uniswap"))
	assert.Equal(t, defi.ProtocolLido, defi.ParseProtocol(" lido "))
	assert.Equal(t, defi.ProtocolOther, defi.ParseProtocol("curve"))
}

func TestTokenIsNative(t *testing.T) {
	assert.True(t, eth.IsNative())
	assert.False(t, usdc.IsNative())
	assert.True(t, defi.Token{Symbol: "SOL", Chain: chain.Solana}.IsNative())
	assert.True(t, defi.Token{Address: defi.NativeSolanaMint, Chain: chain.Solana}.IsNative())
	assert.False(t, defi.Token{Symbol: "BTC", Chain: chain.Bitcoin}.IsNative())
}

func TestFindToken(t *testing.T) {
	tokens := []defi.Token{eth, usdc}

	got, ok := defi.FindToken(tokens, "usdc")
	require.True(t, ok)
	assert.Equal(t, usdc, got)

	got, ok = defi.FindToken(tokens, "0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48")
	require.True(t, ok)
	assert.Equal(t, usdc, got)

	_, ok = defi.FindToken(tokens, "DOGE")
	assert.False(t, ok)
}

func TestPositiveAmount(t *testing.T) {
	assert.NoError(t, defi.PositiveAmount(defi.TokenAmount{Token: eth, Amount: "1"}))

	for _, bad := range []string{"0", "", "-5", "1.5"} {
		err := defi.PositiveAmount(defi.TokenAmount{Token: eth, Amount: bad})
		require.Error(t, err, bad)
		assert.Equal(t, errs.KindDeFi, errs.KindOf(err), bad)
	}
}
