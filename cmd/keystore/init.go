package keystore

import (
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github/chapool/wallet-core/internal/config"
	"github/chapool/wallet-core/internal/util"
	"github/chapool/wallet-core/internal/util/command"
	"github/chapool/wallet-core/internal/wallet"
	"github/chapool/wallet-core/internal/wallet/address"
)

func newInit() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Creates the configured keystore with a new recovery phrase",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return create(cmd, "")
		},
	}
	initFlags(cmd)

	return cmd
}

func newImport() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Creates the configured keystore from an existing recovery phrase",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			phrase, err := command.PromptPassword("Recovery phrase: ")
			if err != nil {
				return err
			}
			return create(cmd, phrase)
		},
	}
	initFlags(cmd)

	return cmd
}

func create(cmd *cobra.Command, phrase string) error {
	env, err := command.EnvFromCommand(cmd)
	if err != nil {
		return err
	}
	cfg := env.Config

	if _, err := os.Stat(cfg.Keystore.Path); err == nil {
		return errors.Errorf("keystore %s already exists", cfg.Keystore.Path)
	}

	name, err := cmd.Flags().GetString(nameFlag)
	if err != nil {
		return err
	}
	passphrase, err := promptPassphrase(cmd, env)
	if err != nil {
		return err
	}

	logger := config.SetupLogger(cfg.Logger, cmd.ErrOrStderr())
	ctx := util.WithLogger(cmd.Context(), logger)

	addressService, err := address.NewService(cfg.AddressOptions())
	if err != nil {
		return err
	}

	w, generated, err := wallet.InitializeKeystore(ctx, cfg.Keystore.Path, env.Prompt, addressService, wallet.InitOptions{
		Name:       name,
		Words:      cfg.Keystore.Words,
		Phrase:     phrase,
		Passphrase: passphrase,
		Scrypt:     cfg.Keystore.ScryptParams(),
	})
	if err != nil {
		return err
	}
	defer w.Destroy()

	if generated != "" {
		cmd.PrintErrf("Write down the recovery phrase and keep it offline:\n\n%s\n\n", generated)
	}

	return command.PrintJSON(cmd, w)
}

func promptPassphrase(cmd *cobra.Command, env command.Env) (string, error) {
	ask, err := cmd.Flags().GetBool(passphraseFlag)
	if err != nil || !ask {
		return "", err
	}
	return env.Prompt("BIP39 passphrase: ")
}
