package solana

import (
	"context"
	"strconv"

	"github/chapool/wallet-core/internal/wallet/chain"
	"github/chapool/wallet-core/internal/wallet/defi"
	"github/chapool/wallet-core/internal/wallet/errs"
	"github/chapool/wallet-core/internal/wallet/txn"
)

func (p *Provider) solToken() defi.Token {
	for _, t := range p.tokens {
		if t.IsNative() {
			return t
		}
	}
	return DefaultTokens()[0]
}

// ExecuteStaking runs a native stake action. Stake creates a stake account
// delegated to req.Validator. Unstake deactivates req.StakeAccount; the
// lamports become withdrawable after the cooldown. ClaimRewards sends
// nothing: rewards accrue in the stake account and are reported from it.
func (p *Provider) ExecuteStaking(ctx context.Context, req *defi.StakingRequest) (result *defi.StakingResult, err error) {
	if req == nil {
		return nil, errs.DeFi("staking request is nil")
	}
	switch req.Protocol {
	case "", defi.ProtocolNativeStake:
	case defi.ProtocolMarinade:
		return nil, p.refuse("staking", req.Protocol, string(req.Action), "Marinade liquid staking is not available")
	default:
		if !defi.Supports(p, req.Protocol) {
			return nil, errs.DeFi("%s is not available on Solana", req.Protocol)
		}
		return nil, errs.DeFi("%s is not a staking protocol", req.Protocol)
	}
	defer func() { p.metrics.ObserveDeFi(string(defi.ProtocolNativeStake), string(req.Action), err) }()

	if _, err := parseKey(req.Owner, "owner"); err != nil {
		return nil, err
	}

	switch req.Action {
	case defi.StakingStake:
		return p.stake(ctx, req)
	case defi.StakingUnstake:
		return p.unstake(ctx, req)
	case defi.StakingClaimRewards:
		return p.stakeRewards(ctx, req)
	default:
		return nil, errs.DeFi("unknown staking action %q", req.Action)
	}
}

func (p *Provider) stake(ctx context.Context, req *defi.StakingRequest) (*defi.StakingResult, error) {
	if err := checkToken(req.Amount.Token); err != nil {
		return nil, err
	}
	if !req.Amount.Token.IsNative() {
		return nil, errs.DeFi("only SOL can be staked")
	}
	if err := defi.PositiveAmount(req.Amount); err != nil {
		return nil, err
	}
	if _, err := parseKey(req.Validator, "validator"); err != nil {
		return nil, err
	}

	p.log.Info().
		Str("protocol", string(defi.ProtocolNativeStake)).
		Str("validator", req.Validator).
		Str("amount", req.Amount.Amount).
		Msg("Executing staking action")

	out, err := p.saga.Run(ctx, defi.Step{
		Owner:          req.Owner,
		DerivationPath: req.DerivationPath,
		Action: &txn.Request{
			Chain:          chain.Solana,
			Type:           txn.TypeStaking,
			From:           req.Owner,
			To:             req.Validator,
			Value:          req.Amount.Amount,
			DerivationPath: req.DerivationPath,
		},
	})
	if err != nil {
		return nil, err
	}

	result := &defi.StakingResult{
		Action:          defi.StakingStake,
		Amount:          req.Amount,
		TransactionHash: out.ActionHash,
		Protocol:        defi.ProtocolNativeStake,
		Fee:             out.ActionReceipt.Fee,
	}
	// The new stake account is the transaction's second signer.
	if tx, err := p.tx.GetTransaction(ctx, out.ActionHash); err == nil {
		result.StakeAccount = tx.To
	} else {
		p.log.Warn().Str("signature", out.ActionHash).Err(err).Msg("Failed to look up new stake account")
	}

	return result, nil
}

func (p *Provider) unstake(ctx context.Context, req *defi.StakingRequest) (*defi.StakingResult, error) {
	if req.StakeAccount == "" {
		return nil, errs.DeFi("stake account is required to unstake")
	}

	info, err := p.tx.StakeInfo(ctx, req.StakeAccount)
	if err != nil {
		return nil, errs.Wrap(errs.KindDeFi, "unstake", err)
	}

	p.log.Info().
		Str("protocol", string(defi.ProtocolNativeStake)).
		Str("stake_account", req.StakeAccount).
		Str("status", string(info.Status)).
		Msg("Deactivating stake")

	sig, err := p.tx.DeactivateStake(ctx, req.Owner, req.StakeAccount, req.DerivationPath)
	if err != nil {
		return nil, errs.Wrap(errs.KindDeFi, "unstake", err)
	}
	receipt, err := p.confirm(ctx, sig)
	if err != nil {
		return nil, err
	}

	return &defi.StakingResult{
		Action:          defi.StakingUnstake,
		Amount:          defi.TokenAmount{Token: p.solToken(), Amount: strconv.FormatUint(info.Amount, 10)},
		TransactionHash: sig,
		Protocol:        defi.ProtocolNativeStake,
		Fee:             receipt.Fee,
		StakeAccount:    info.StakeAccount,
	}, nil
}

func (p *Provider) stakeRewards(ctx context.Context, req *defi.StakingRequest) (*defi.StakingResult, error) {
	if req.StakeAccount == "" {
		return nil, errs.DeFi("stake account is required to report rewards")
	}

	info, err := p.tx.StakeInfo(ctx, req.StakeAccount)
	if err != nil {
		return nil, errs.Wrap(errs.KindDeFi, "stake rewards", err)
	}
	rewards := &defi.TokenAmount{Token: p.solToken(), Amount: strconv.FormatUint(info.Rewards, 10)}

	return &defi.StakingResult{
		Action:       defi.StakingClaimRewards,
		Amount:       *rewards,
		Protocol:     defi.ProtocolNativeStake,
		Fee:          "0",
		Rewards:      rewards,
		StakeAccount: info.StakeAccount,
	}, nil
}
