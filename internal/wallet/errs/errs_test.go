package errs_test

import (
	"errors"
	"testing"

	pkgerrors "github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github/chapool/wallet-core/internal/wallet/chain"
	"github/chapool/wallet-core/internal/wallet/errs"
)

func TestErrorMessage(t *testing.T) {
	err := errs.WrapChain(errs.KindProvider, "chain id", chain.Ethereum, errs.ErrChainMismatch)
	assert.Equal(t, "provider error in chain id [ethereum]: chain mismatch", err.Error())

	assert.Equal(t, "defi error: token BONK has no price", errs.DeFi("token %s has no price", "BONK").Error())
	assert.Equal(t, "unknown", errs.Kind(99).String())
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, errs.KindUnknown, errs.KindOf(nil))
	assert.Equal(t, errs.KindUnknown, errs.KindOf(errors.New("plain")))

	inner := errs.Mnemonic("bad checksum")
	outer := errs.Wrap(errs.KindTransaction, "sign", inner)
	wrapped := pkgerrors.Wrap(outer, "failed to submit")

	assert.Equal(t, errs.KindTransaction, errs.KindOf(wrapped))
	assert.True(t, errs.IsKind(wrapped, errs.KindMnemonic))
	assert.True(t, errs.IsKind(wrapped, errs.KindTransaction))
	assert.False(t, errs.IsKind(wrapped, errs.KindDeFi))
}

func TestSentinelsSurviveWrapping(t *testing.T) {
	err := pkgerrors.Wrap(errs.TransactionErr(errs.ErrInsufficientFunds), "send")

	require.ErrorIs(t, err, errs.ErrInsufficientFunds)
	require.ErrorIs(t, err, &errs.Error{Kind: errs.KindTransaction})
	assert.NotErrorIs(t, err, &errs.Error{Kind: errs.KindDeFi})
	assert.Equal(t, "Insufficient funds", errs.ErrInsufficientFunds.Error())
}

func TestWrapNil(t *testing.T) {
	require.NoError(t, errs.Wrap(errs.KindDeFi, "op", nil))
	require.NoError(t, errs.WrapChain(errs.KindDeFi, "op", chain.Solana, nil))
}
