package defi

import (
	"context"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"github/chapool/wallet-core/internal/util/command"
	"github/chapool/wallet-core/internal/wallet"
	"github/chapool/wallet-core/internal/wallet/chain"
	"github/chapool/wallet-core/internal/wallet/defi"
)

func swapFlags(cmd *cobra.Command) {
	command.AddChainFlag(cmd)
	cmd.Flags().String(fromFlag, "", "token sold, symbol or address")
	cmd.Flags().String(toFlag, "", "token bought, symbol or address")
	cmd.Flags().String(amountFlag, "", "amount sold in the token's smallest unit")
	cmd.Flags().String(protocolFlag, string(defi.ProtocolUniswap), "swap protocol")
	cmd.Flags().String(slippageFlag, "0.5", "maximum slippage in percent")
	cmd.Flags().String(pathFlag, "", "derivation path of the signing key")
	_ = cmd.MarkFlagRequired(fromFlag)
	_ = cmd.MarkFlagRequired(toFlag)
	_ = cmd.MarkFlagRequired(amountFlag)
}

func swapRequest(ctx context.Context, cmd *cobra.Command, e *wallet.Engine, tag chain.Tag) (*defi.SwapRequest, error) {
	flags := cmd.Flags()
	fromRef, _ := flags.GetString(fromFlag)
	toRef, _ := flags.GetString(toFlag)
	amount, _ := flags.GetString(amountFlag)
	protocol, _ := flags.GetString(protocolFlag)
	rawSlippage, _ := flags.GetString(slippageFlag)
	path, _ := flags.GetString(pathFlag)

	slippage, err := decimal.NewFromString(rawSlippage)
	if err != nil {
		return nil, errors.Wrap(err, "invalid --slippage")
	}

	from, err := resolveToken(ctx, e, tag, fromRef)
	if err != nil {
		return nil, err
	}
	to, err := resolveToken(ctx, e, tag, toRef)
	if err != nil {
		return nil, err
	}

	owner, err := signer(ctx, e, tag, path)
	if err != nil {
		return nil, err
	}

	return &defi.SwapRequest{
		From:           defi.TokenAmount{Token: from, Amount: amount},
		To:             to,
		Slippage:       slippage,
		Protocol:       defi.ParseProtocol(protocol),
		Owner:          owner.Address,
		DerivationPath: owner.Path,
	}, nil
}

func newQuote() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "quote",
		Short: "Estimates the output of a swap without executing it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDeFi(cmd, func(ctx context.Context, e *wallet.Engine, tag chain.Tag) error {
				req, err := swapRequest(ctx, cmd, e, tag)
				if err != nil {
					return err
				}

				quote, err := e.GetSwapQuote(ctx, tag, req)
				if err != nil {
					return err
				}
				return command.PrintJSON(cmd, quote)
			})
		},
	}
	swapFlags(cmd)

	return cmd
}

func newSwap() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "swap",
		Short: "Swaps one token for another, approving the router first when needed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDeFi(cmd, func(ctx context.Context, e *wallet.Engine, tag chain.Tag) error {
				req, err := swapRequest(ctx, cmd, e, tag)
				if err != nil {
					return err
				}

				result, err := e.ExecuteSwap(ctx, tag, req)
				if err != nil {
					return err
				}
				return command.PrintJSON(cmd, result)
			})
		},
	}
	swapFlags(cmd)

	return cmd
}

func actionFlags(cmd *cobra.Command, defaultAction string, defaultProtocol defi.Protocol) {
	command.AddChainFlag(cmd)
	cmd.Flags().String(actionFlag, defaultAction, "action to run")
	cmd.Flags().String(tokenFlag, "", "token symbol or address")
	cmd.Flags().String(amountFlag, "0", "amount in the token's smallest unit")
	cmd.Flags().String(protocolFlag, string(defaultProtocol), "protocol")
	cmd.Flags().String(pathFlag, "", "derivation path of the signing key")
}

type actionInput struct {
	action   string
	amount   defi.TokenAmount
	protocol defi.Protocol
	owner    string
	path     string
}

func readAction(ctx context.Context, cmd *cobra.Command, e *wallet.Engine, tag chain.Tag) (*actionInput, error) {
	flags := cmd.Flags()
	action, _ := flags.GetString(actionFlag)
	ref, _ := flags.GetString(tokenFlag)
	amount, _ := flags.GetString(amountFlag)
	protocol, _ := flags.GetString(protocolFlag)
	path, _ := flags.GetString(pathFlag)

	in := &actionInput{action: action, protocol: defi.ParseProtocol(protocol)}
	in.amount.Amount = amount

	if ref != "" {
		t, err := resolveToken(ctx, e, tag, ref)
		if err != nil {
			return nil, err
		}
		in.amount.Token = t
	}

	owner, err := signer(ctx, e, tag, path)
	if err != nil {
		return nil, err
	}
	in.owner = owner.Address
	in.path = owner.Path

	return in, nil
}

func newLend() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lend",
		Short: "Supplies, withdraws, borrows or repays on a lending protocol",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDeFi(cmd, func(ctx context.Context, e *wallet.Engine, tag chain.Tag) error {
				in, err := readAction(ctx, cmd, e, tag)
				if err != nil {
					return err
				}

				result, err := e.ExecuteLending(ctx, tag, &defi.LendingRequest{
					Action:         defi.LendingAction(in.action),
					Amount:         in.amount,
					Protocol:       in.protocol,
					Owner:          in.owner,
					DerivationPath: in.path,
				})
				if err != nil {
					return err
				}
				return command.PrintJSON(cmd, result)
			})
		},
	}
	actionFlags(cmd, string(defi.LendingSupply), defi.ProtocolAave)

	return cmd
}

func newStake() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stake",
		Short: "Stakes, unstakes or claims rewards on a staking protocol",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDeFi(cmd, func(ctx context.Context, e *wallet.Engine, tag chain.Tag) error {
				in, err := readAction(ctx, cmd, e, tag)
				if err != nil {
					return err
				}

				validator, _ := cmd.Flags().GetString(validatorFlag)
				stakeAccount, _ := cmd.Flags().GetString(stakeAccountFlag)

				result, err := e.ExecuteStaking(ctx, tag, &defi.StakingRequest{
					Action:         defi.StakingAction(in.action),
					Amount:         in.amount,
					Protocol:       in.protocol,
					Owner:          in.owner,
					DerivationPath: in.path,
					Validator:      validator,
					StakeAccount:   stakeAccount,
				})
				if err != nil {
					return err
				}
				return command.PrintJSON(cmd, result)
			})
		},
	}
	actionFlags(cmd, string(defi.StakingStake), defi.ProtocolLido)
	cmd.Flags().String(validatorFlag, "", "vote account to delegate to (Solana native stake)")
	cmd.Flags().String(stakeAccountFlag, "", "stake account to unstake or report on (Solana native stake)")

	return cmd
}
