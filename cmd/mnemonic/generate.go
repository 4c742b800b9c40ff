package mnemonic

import (
	"fmt"

	"github.com/spf13/cobra"
	"github/chapool/wallet-core/internal/wallet/seed"
)

func newGenerate() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Prints a new BIP39 recovery phrase",
		Long: `Prints a new English BIP39 recovery phrase.
Nothing is stored; use "keystore import" to seal the phrase into a keystore.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			words, err := cmd.Flags().GetInt(wordsFlag)
			if err != nil {
				return err
			}

			phrase, err := seed.GenerateMnemonic(words)
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), phrase)
			return nil
		},
	}

	cmd.Flags().Int(wordsFlag, 24, "number of words, 12 or 24")

	return cmd
}
