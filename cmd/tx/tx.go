package tx

import (
	"github.com/spf13/cobra"
	"github/chapool/wallet-core/internal/util/command"
)

const (
	toFlag          string = "to"
	valueFlag       string = "value"
	pathFlag        string = "path"
	typeFlag        string = "type"
	gasPriceFlag    string = "gas-price"
	maxFeeFlag      string = "max-fee"
	priorityFeeFlag string = "priority-fee"
	gasLimitFlag    string = "gas-limit"
	nonceFlag       string = "nonce"
	dataFlag        string = "data"
	feeFlag         string = "fee"
	utxoFlag        string = "utxo"
	waitFlag        string = "wait"
	intervalFlag    string = "interval"
)

func New() *cobra.Command {
	return command.NewSubcommandGroup("tx",
		newSend(),
		newStatus(),
	)
}
