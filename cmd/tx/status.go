package tx

import (
	"context"
	"time"

	"github.com/spf13/cobra"
	"github/chapool/wallet-core/internal/util/command"
	"github/chapool/wallet-core/internal/wallet"
)

func newStatus() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status <hash>",
		Short: "Prints a submitted transaction and its receipt",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tag, err := command.ChainFromFlags(cmd)
			if err != nil {
				return err
			}
			wait, _ := cmd.Flags().GetBool(waitFlag)
			interval, _ := cmd.Flags().GetDuration(intervalFlag)

			env, err := command.EnvFromCommand(cmd)
			if err != nil {
				return err
			}

			return command.WithEngine(cmd.Context(), env, func(ctx context.Context, e *wallet.Engine) error {
				if wait {
					if _, err := e.WaitForTransaction(ctx, tag, args[0], interval); err != nil {
						return err
					}
				}

				tx, err := e.GetTransaction(ctx, tag, args[0])
				if err != nil {
					return err
				}
				return command.PrintJSON(cmd, tx)
			})
		},
	}

	command.AddChainFlag(cmd)
	cmd.Flags().Bool(waitFlag, false, "wait until the transaction is confirmed or failed")
	cmd.Flags().Duration(intervalFlag, 3*time.Second, "status poll interval with --wait")

	return cmd
}
