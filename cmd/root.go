package cmd

import (
	"fmt"
	"os"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/subosito/gotenv"
	"github/chapool/wallet-core/cmd/address"
	"github/chapool/wallet-core/cmd/defi"
	"github/chapool/wallet-core/cmd/keystore"
	"github/chapool/wallet-core/cmd/mnemonic"
	"github/chapool/wallet-core/cmd/probe"
	"github/chapool/wallet-core/cmd/tx"
	"github/chapool/wallet-core/internal/config"
	"github/chapool/wallet-core/internal/util/command"
)

const envFileFlag = "env-file"

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Version: config.GetFormattedBuildArgs(),
	Use:     "wallet-core",
	Short:   config.ModuleName,
	Long: fmt.Sprintf(`%v

A multi-chain HD wallet for Ethereum, Bitcoin and Solana.
Configuration is read from --config and WALLET_* environment variables.`, config.ModuleName),
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		path, err := cmd.Flags().GetString(envFileFlag)
		if err != nil || path == "" {
			return nil //nolint:nilerr // the flag is optional
		}

		// Variables already set in the environment win over the file.
		if err := gotenv.Load(path); err != nil && !os.IsNotExist(err) {
			return errors.Wrapf(err, "failed to load %s", path)
		}
		return nil
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	rootCmd.PersistentFlags().String(command.ConfigFlag, "", "config file (yaml, toml or json)")
	rootCmd.PersistentFlags().String(envFileFlag, ".env", "dotenv file with WALLET_* variables")

	// attach the subcommands
	rootCmd.AddCommand(
		address.New(),
		defi.New(),
		keystore.New(),
		mnemonic.New(),
		probe.New(),
		tx.New(),
	)

	if err := rootCmd.Execute(); err != nil {
		log.Error().Err(err).Msg("Failed to execute root command")
		os.Exit(1)
	}
}
