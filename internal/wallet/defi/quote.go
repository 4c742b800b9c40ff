package defi

import (
	"math/big"

	"github.com/shopspring/decimal"
	"github/chapool/wallet-core/internal/wallet/errs"
)

var hundred = decimal.NewFromInt(100)

// Quote converts amountIn of from into to at the given USD prices:
//
//	out = (in / 10^dec_in * price_in) / price_out * 10^dec_out
//
// truncated to an integer.
func Quote(amountIn string, from Token, priceIn decimal.Decimal, to Token, priceOut decimal.Decimal) (string, error) {
	in, err := decimal.NewFromString(amountIn)
	if err != nil || in.IsNegative() || !in.Equal(in.Truncate(0)) {
		return "", errs.DeFi("invalid amount %q", amountIn)
	}
	if !priceIn.IsPositive() {
		return "", errs.DeFi("no price for %s", from.Symbol)
	}
	if !priceOut.IsPositive() {
		return "", errs.DeFi("no price for %s", to.Symbol)
	}

	// Multiply before dividing so the only rounding is the final truncation.
	num := in.Mul(priceIn).Shift(int32(to.Decimals))
	den := priceOut.Shift(int32(from.Decimals))

	q, _ := num.QuoRem(den, 0)

	return q.String(), nil
}

// MinAmountOut applies a slippage percentage in [0, 100) to a quoted amount.
func MinAmountOut(quote string, slippage decimal.Decimal) (*big.Int, error) {
	if err := ValidateSlippage(slippage); err != nil {
		return nil, err
	}

	q, err := decimal.NewFromString(quote)
	if err != nil || q.IsNegative() {
		return nil, errs.DeFi("invalid quote %q", quote)
	}

	out, _ := q.Mul(hundred.Sub(slippage)).QuoRem(hundred, 0)

	return out.BigInt(), nil
}

func ValidateSlippage(slippage decimal.Decimal) error {
	if slippage.IsNegative() || slippage.GreaterThanOrEqual(hundred) {
		return errs.DeFi("slippage %s%% must be in [0, 100)", slippage.String())
	}
	return nil
}
