package defi

import (
	"context"

	"github.com/spf13/cobra"
	"github/chapool/wallet-core/internal/util/command"
	"github/chapool/wallet-core/internal/wallet"
	"github/chapool/wallet-core/internal/wallet/chain"
	"github/chapool/wallet-core/internal/wallet/defi"
)

func newTokens() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tokens",
		Short: "Lists the tokens known for a chain",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDeFi(cmd, func(ctx context.Context, e *wallet.Engine, tag chain.Tag) error {
				tokens, err := e.GetSupportedTokens(ctx, tag)
				if err != nil {
					return err
				}
				return command.PrintJSON(cmd, tokens)
			})
		},
	}
	command.AddChainFlag(cmd)

	return cmd
}

func newProtocols() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "protocols",
		Short: "Lists the DeFi protocols supported on a chain",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDeFi(cmd, func(ctx context.Context, e *wallet.Engine, tag chain.Tag) error {
				protocols, err := e.GetSupportedProtocols(ctx, tag)
				if err != nil {
					return err
				}
				return command.PrintJSON(cmd, protocols)
			})
		},
	}
	command.AddChainFlag(cmd)

	return cmd
}

func newBalance() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "balance",
		Short: "Prints token balances of an address",
		Long: `Prints token balances of an address.
Without --token every known token is queried; without --address the
wallet's first address on the chain is used.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			refs, _ := cmd.Flags().GetStringArray(tokenFlag)
			owner, _ := cmd.Flags().GetString(addressFlag)

			return runDeFi(cmd, func(ctx context.Context, e *wallet.Engine, tag chain.Tag) error {
				if owner == "" {
					a, err := signer(ctx, e, tag, "")
					if err != nil {
						return err
					}
					owner = a.Address
				}

				var tokens []defi.Token
				if len(refs) == 0 {
					var err error
					if tokens, err = e.GetSupportedTokens(ctx, tag); err != nil {
						return err
					}
				}
				for _, ref := range refs {
					t, err := resolveToken(ctx, e, tag, ref)
					if err != nil {
						return err
					}
					tokens = append(tokens, t)
				}

				balances, err := e.GetBalances(ctx, tag, tokens, owner)
				if err != nil {
					return err
				}
				return command.PrintJSON(cmd, balances)
			})
		},
	}
	command.AddChainFlag(cmd)
	cmd.Flags().StringArray(tokenFlag, nil, "token symbol or address, repeatable")
	cmd.Flags().String(addressFlag, "", "owner address")

	return cmd
}

func newPrice() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "price <token>",
		Short: "Prints the USD price of a token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDeFi(cmd, func(ctx context.Context, e *wallet.Engine, tag chain.Tag) error {
				t, err := resolveToken(ctx, e, tag, args[0])
				if err != nil {
					return err
				}

				price, err := e.GetTokenPrice(ctx, tag, t)
				if err != nil {
					return err
				}
				return command.PrintJSON(cmd, map[string]any{"token": t, "usd": price})
			})
		},
	}
	command.AddChainFlag(cmd)

	return cmd
}
