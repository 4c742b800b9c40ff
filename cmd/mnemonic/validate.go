package mnemonic

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github/chapool/wallet-core/internal/util/command"
	"github/chapool/wallet-core/internal/wallet/seed"
)

func newValidate() *cobra.Command {
	return &cobra.Command{
		Use:   "validate [words...]",
		Short: "Checks a recovery phrase",
		Long: `Checks word count, wordlist membership and checksum of a recovery phrase.
Without arguments the phrase is read from a hidden prompt.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			phrase := strings.Join(args, " ")
			if phrase == "" {
				var err error
				if phrase, err = command.PromptPassword("Recovery phrase: "); err != nil {
					return err
				}
			}

			if _, err := seed.ValidateMnemonic(phrase); err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), "valid")
			return nil
		},
	}
}
