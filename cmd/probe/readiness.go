package probe

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"
	"github/chapool/wallet-core/internal/config"
	"github/chapool/wallet-core/internal/util"
	"github/chapool/wallet-core/internal/util/command"
	"github/chapool/wallet-core/internal/wallet/chain"
	"github/chapool/wallet-core/internal/wallet/errs"
	"github/chapool/wallet-core/internal/wallet/keys"
	"github/chapool/wallet-core/internal/wallet/provider"
)

// lockedKeys stands in for the wallet; health checks never sign.
type lockedKeys struct{}

func (lockedKeys) WithKeyPair(chain.Tag, string, func(*keys.KeyPair) error) error {
	return errs.Mnemonic("keystore is locked")
}

func newReadiness() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "readiness",
		Short: "Connects to every configured chain provider",
		Long: `Connects to every configured chain provider.
EVM nodes must report the chain id the configuration expects.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			verbose, _ := cmd.Flags().GetBool(verboseFlag)

			env, err := command.EnvFromCommand(cmd)
			if err != nil {
				return err
			}
			logger := config.SetupLogger(env.Config.Logger, cmd.ErrOrStderr())
			ctx := util.WithLogger(cmd.Context(), logger)

			providers, err := env.Config.ProviderConfigs()
			if err != nil {
				return err
			}

			tags := make([]chain.Tag, 0, len(providers))
			for tag := range providers {
				tags = append(tags, tag)
			}
			sort.Slice(tags, func(i, j int) bool { return tags[i] < tags[j] })

			factory := &provider.Factory{Keys: lockedKeys{}}
			defer factory.Close()

			for _, tag := range tags {
				if _, err := factory.ChainProvider(ctx, tag, providers[tag]); err != nil {
					return err
				}
				if verbose {
					fmt.Fprintf(cmd.OutOrStdout(), "%s ready\n", tag.DisplayName())
				}
			}

			return nil
		},
	}

	return cmd
}
