package keystore

import (
	"context"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github/chapool/wallet-core/internal/util/command"
	"github/chapool/wallet-core/internal/wallet"
)

func newExport() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Re-seals the wallet under a new password into another file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out, err := cmd.Flags().GetString(outFlag)
			if err != nil {
				return err
			}
			if out == "" {
				return errors.New("--out is required")
			}

			env, err := command.EnvFromCommand(cmd)
			if err != nil {
				return err
			}

			return command.WithEngine(cmd.Context(), env, func(ctx context.Context, e *wallet.Engine) error {
				password, err := wallet.PromptNewPassword(env.Prompt)
				if err != nil {
					return err
				}

				return wallet.ExportKeystoreFile(ctx, out, e.Wallet(), password, e.Addresses(), env.Config.Keystore.ScryptParams())
			})
		},
	}

	cmd.Flags().String(outFlag, "", "destination keystore file")

	return cmd
}
