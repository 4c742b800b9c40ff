package keystore

import (
	"github.com/spf13/cobra"
	"github/chapool/wallet-core/internal/util/command"
)

const (
	nameFlag       string = "name"
	passphraseFlag string = "passphrase"
	outFlag        string = "out"
)

func New() *cobra.Command {
	return command.NewSubcommandGroup("keystore",
		newInit(),
		newImport(),
		newExport(),
		newShow(),
	)
}

func initFlags(cmd *cobra.Command) {
	cmd.Flags().String(nameFlag, "main", "wallet name stored in the keystore file")
	cmd.Flags().Bool(passphraseFlag, false, "prompt for an optional BIP39 passphrase")
}
