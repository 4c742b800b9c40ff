package tx

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github/chapool/wallet-core/internal/util/command"
	"github/chapool/wallet-core/internal/wallet"
	"github/chapool/wallet-core/internal/wallet/txn"
)

func newSend() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "send",
		Short: "Signs and broadcasts a transaction from the configured wallet",
		Long: `Signs and broadcasts a transaction from the configured wallet.
Amounts are integers in the chain's smallest unit (wei, satoshi, lamport).
The sender is the address at --path, or the chain's first BIP44 address.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			tag, err := command.ChainFromFlags(cmd)
			if err != nil {
				return err
			}
			req, err := requestFromFlags(cmd)
			if err != nil {
				return err
			}
			req.Chain = tag
			wait, _ := cmd.Flags().GetBool(waitFlag)
			interval, _ := cmd.Flags().GetDuration(intervalFlag)

			env, err := command.EnvFromCommand(cmd)
			if err != nil {
				return err
			}

			return command.WithEngine(cmd.Context(), env, func(ctx context.Context, e *wallet.Engine) error {
				from, err := e.DeriveAddress(ctx, e.Wallet(), tag, req.DerivationPath)
				if err != nil {
					return err
				}
				req.From = from.Address
				req.DerivationPath = from.Path

				hash, err := e.SignAndSubmit(ctx, tag, req)
				if err != nil {
					return err
				}

				result := map[string]any{"hash": hash, "from": req.From}
				if wait {
					status, err := e.WaitForTransaction(ctx, tag, hash, interval)
					if err != nil {
						return err
					}
					result["status"] = status
				}

				return command.PrintJSON(cmd, result)
			})
		},
	}

	command.AddChainFlag(cmd)
	cmd.Flags().String(toFlag, "", "recipient address")
	cmd.Flags().String(valueFlag, "0", "amount in the smallest unit")
	cmd.Flags().String(pathFlag, "", "derivation path of the sending key")
	cmd.Flags().String(typeFlag, string(txn.TypeTransfer), "transaction type")
	cmd.Flags().String(gasPriceFlag, "", "legacy gas price in wei (EVM)")
	cmd.Flags().String(maxFeeFlag, "", "EIP-1559 max fee per gas in wei (EVM)")
	cmd.Flags().String(priorityFeeFlag, "", "EIP-1559 priority fee per gas in wei (EVM)")
	cmd.Flags().Uint64(gasLimitFlag, 0, "gas limit, 0 estimates (EVM)")
	cmd.Flags().Int64(nonceFlag, -1, "explicit nonce, -1 asks the node (EVM)")
	cmd.Flags().String(dataFlag, "", "hex call data (EVM)")
	cmd.Flags().String(feeFlag, "", "fee in satoshis (Bitcoin)")
	cmd.Flags().StringArray(utxoFlag, nil, "input as txid:vout:satoshis, repeatable (Bitcoin)")
	cmd.Flags().Bool(waitFlag, false, "wait until the transaction is confirmed or failed")
	cmd.Flags().Duration(intervalFlag, 3*time.Second, "status poll interval with --wait")
	_ = cmd.MarkFlagRequired(toFlag)

	return cmd
}

func requestFromFlags(cmd *cobra.Command) (*txn.Request, error) {
	flags := cmd.Flags()
	req := &txn.Request{}

	req.To, _ = flags.GetString(toFlag)
	req.Value, _ = flags.GetString(valueFlag)
	req.DerivationPath, _ = flags.GetString(pathFlag)
	req.GasPrice, _ = flags.GetString(gasPriceFlag)
	req.MaxFeePerGas, _ = flags.GetString(maxFeeFlag)
	req.MaxPriorityFeePerGas, _ = flags.GetString(priorityFeeFlag)
	req.GasLimit, _ = flags.GetUint64(gasLimitFlag)
	req.Fee, _ = flags.GetString(feeFlag)

	typ, _ := flags.GetString(typeFlag)
	req.Type = txn.Type(typ)

	if nonce, _ := flags.GetInt64(nonceFlag); nonce >= 0 {
		n := uint64(nonce)
		req.Nonce = &n
	}

	if data, _ := flags.GetString(dataFlag); data != "" {
		decoded, err := hexutil.Decode(data)
		if err != nil {
			return nil, errors.Wrap(err, "invalid --data")
		}
		req.Data = decoded
	}

	utxos, _ := flags.GetStringArray(utxoFlag)
	for _, raw := range utxos {
		u, err := parseUTXO(raw)
		if err != nil {
			return nil, err
		}
		req.Inputs = append(req.Inputs, u)
	}

	return req, nil
}

func parseUTXO(raw string) (txn.UTXO, error) {
	parts := strings.Split(raw, ":")
	if len(parts) != 3 {
		return txn.UTXO{}, errors.Errorf("invalid --utxo %q, expected txid:vout:satoshis", raw)
	}

	vout, err := strconv.ParseUint(parts[1], 10, 32)
	if err != nil {
		return txn.UTXO{}, errors.Wrapf(err, "invalid vout in %q", raw)
	}
	amount, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil {
		return txn.UTXO{}, errors.Wrapf(err, "invalid amount in %q", raw)
	}

	return txn.UTXO{TxID: parts[0], Vout: uint32(vout), Amount: amount}, nil
}
