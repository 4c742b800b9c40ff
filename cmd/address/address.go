package address

import (
	"context"

	"github.com/spf13/cobra"
	"github/chapool/wallet-core/internal/util/command"
	"github/chapool/wallet-core/internal/wallet"
	"github/chapool/wallet-core/internal/wallet/address"
)

const (
	pathFlag    string = "path"
	accountFlag string = "account"
	indexFlag   string = "index"
	countFlag   string = "count"
)

func New() *cobra.Command {
	return command.NewSubcommandGroup("address",
		newDerive(),
		newValidate(),
	)
}

func newDerive() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "derive",
		Short: "Derives addresses of the configured wallet",
		Long: `Derives addresses of the configured wallet.
--path takes an explicit derivation path; otherwise the BIP44 path of
--account is used for --count consecutive indexes starting at --index.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			tag, err := command.ChainFromFlags(cmd)
			if err != nil {
				return err
			}
			path, _ := cmd.Flags().GetString(pathFlag)
			account, _ := cmd.Flags().GetUint32(accountFlag)
			index, _ := cmd.Flags().GetUint32(indexFlag)
			count, _ := cmd.Flags().GetUint32(countFlag)

			env, err := command.EnvFromCommand(cmd)
			if err != nil {
				return err
			}

			return command.WithEngine(cmd.Context(), env, func(ctx context.Context, e *wallet.Engine) error {
				paths := []string{path}
				if path == "" {
					paths = make([]string, 0, count)
					for i := range count {
						paths = append(paths, e.Addresses().GetBIP44Path(tag, account, index+i))
					}
				}

				out := make([]*address.Address, 0, len(paths))
				for _, p := range paths {
					a, err := e.DeriveAddress(ctx, e.Wallet(), tag, p)
					if err != nil {
						return err
					}
					out = append(out, a)
				}

				return command.PrintJSON(cmd, out)
			})
		},
	}

	command.AddChainFlag(cmd)
	cmd.Flags().String(pathFlag, "", "explicit derivation path")
	cmd.Flags().Uint32(accountFlag, 0, "BIP44 account")
	cmd.Flags().Uint32(indexFlag, 0, "first address index")
	cmd.Flags().Uint32(countFlag, 1, "number of addresses")

	return cmd
}

func newValidate() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <address>",
		Short: "Checks whether an address is well formed for a chain",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tag, err := command.ChainFromFlags(cmd)
			if err != nil {
				return err
			}

			env, err := command.EnvFromCommand(cmd)
			if err != nil {
				return err
			}
			svc, err := address.NewService(env.Config.AddressOptions())
			if err != nil {
				return err
			}

			return command.PrintJSON(cmd, map[string]any{
				"address": args[0],
				"chain":   tag,
				"valid":   svc.Validate(args[0], tag),
			})
		},
	}

	command.AddChainFlag(cmd)

	return cmd
}
