package probe

import (
	"fmt"
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github/chapool/wallet-core/internal/util/command"
	"github/chapool/wallet-core/internal/wallet"
)

func newLiveness() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "liveness",
		Short: "Checks the configuration and keystore file without unlocking",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			verbose, _ := cmd.Flags().GetBool(verboseFlag)

			env, err := command.EnvFromCommand(cmd)
			if err != nil {
				return err
			}
			if _, err := env.Config.ProviderConfigs(); err != nil {
				return err
			}

			path := env.Config.Keystore.Path
			if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
				return errors.Errorf("keystore %s does not exist", path)
			}
			f, err := wallet.LoadKeystoreFile(path)
			if err != nil {
				return err
			}

			if verbose {
				fmt.Fprintf(cmd.OutOrStdout(), "keystore %s (%s) ok\n", path, f.Name)
			}
			return nil
		},
	}

	return cmd
}
