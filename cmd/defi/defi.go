package defi

import (
	"context"

	"github.com/spf13/cobra"
	"github/chapool/wallet-core/internal/util/command"
	"github/chapool/wallet-core/internal/wallet"
	"github/chapool/wallet-core/internal/wallet/address"
	"github/chapool/wallet-core/internal/wallet/chain"
	"github/chapool/wallet-core/internal/wallet/defi"
	"github/chapool/wallet-core/internal/wallet/errs"
)

const (
	tokenFlag    string = "token"
	fromFlag     string = "from"
	toFlag       string = "to"
	amountFlag   string = "amount"
	protocolFlag string = "protocol"
	slippageFlag string = "slippage"
	actionFlag   string = "action"
	pathFlag     string = "path"
	addressFlag  string = "address"

	validatorFlag    string = "validator"
	stakeAccountFlag string = "stake-account"
)

func New() *cobra.Command {
	return command.NewSubcommandGroup("defi",
		newTokens(),
		newProtocols(),
		newBalance(),
		newPrice(),
		newQuote(),
		newSwap(),
		newLend(),
		newStake(),
	)
}

// runDeFi opens the engine for the --chain of cmd and hands both to fn.
func runDeFi(cmd *cobra.Command, fn func(ctx context.Context, e *wallet.Engine, tag chain.Tag) error) error {
	tag, err := command.ChainFromFlags(cmd)
	if err != nil {
		return err
	}

	env, err := command.EnvFromCommand(cmd)
	if err != nil {
		return err
	}

	return command.WithEngine(cmd.Context(), env, func(ctx context.Context, e *wallet.Engine) error {
		return fn(ctx, e, tag)
	})
}

// resolveToken finds a token of the chain's token list by symbol or address.
func resolveToken(ctx context.Context, e *wallet.Engine, tag chain.Tag, ref string) (defi.Token, error) {
	tokens, err := e.GetSupportedTokens(ctx, tag)
	if err != nil {
		return defi.Token{}, err
	}

	t, ok := defi.FindToken(tokens, ref)
	if !ok {
		return defi.Token{}, &errs.Error{Kind: errs.KindDeFi, Op: "resolve token", Chain: tag.String(), Msg: "unknown token " + ref, Err: errs.ErrNotFound}
	}
	return t, nil
}

// signer derives the owner address and path for a write action. An empty
// path selects the chain's first BIP44 address.
func signer(ctx context.Context, e *wallet.Engine, tag chain.Tag, path string) (*address.Address, error) {
	return e.DeriveAddress(ctx, e.Wallet(), tag, path)
}
