package keystore

import (
	"context"

	"github.com/spf13/cobra"
	"github/chapool/wallet-core/internal/util/command"
	"github/chapool/wallet-core/internal/wallet"
)

func newShow() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Unlocks the keystore and prints the wallet metadata",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			env, err := command.EnvFromCommand(cmd)
			if err != nil {
				return err
			}

			return command.WithEngine(cmd.Context(), env, func(ctx context.Context, e *wallet.Engine) error {
				verification, err := wallet.VerificationAddress(ctx, e.Wallet(), e.Addresses())
				if err != nil {
					return err
				}

				return command.PrintJSON(cmd, map[string]any{
					"wallet":               e.Wallet(),
					"verification_address": verification,
				})
			})
		},
	}
}
