package mnemonic

import (
	"github.com/spf13/cobra"
	"github/chapool/wallet-core/internal/util/command"
)

const (
	wordsFlag string = "words"
)

func New() *cobra.Command {
	return command.NewSubcommandGroup("mnemonic",
		newGenerate(),
		newValidate(),
	)
}
