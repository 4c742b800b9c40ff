package ethereum

import (
	"context"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github/chapool/wallet-core/internal/wallet/chain"
	"github/chapool/wallet-core/internal/wallet/defi"
	"github/chapool/wallet-core/internal/wallet/errs"
	"github/chapool/wallet-core/internal/wallet/txn"
)

// Withdrawal queue request bounds, in stETH wei.
var (
	MaxWithdrawal = new(big.Int).Mul(big.NewInt(1000), big.NewInt(1e18))
	MinWithdrawal = big.NewInt(100)
)

// SplitWithdrawal cuts amount into withdrawal requests the Lido queue
// accepts. A short last request borrows from the one before it.
func SplitWithdrawal(amount *big.Int) ([]*big.Int, error) {
	if amount == nil || amount.Cmp(MinWithdrawal) < 0 {
		return nil, errs.DeFi("unstake amount must be at least %s wei", MinWithdrawal.String())
	}

	var chunks []*big.Int
	rest := new(big.Int).Set(amount)
	for rest.Cmp(MaxWithdrawal) > 0 {
		chunks = append(chunks, new(big.Int).Set(MaxWithdrawal))
		rest.Sub(rest, MaxWithdrawal)
	}

	if rest.Cmp(MinWithdrawal) < 0 {
		shortfall := new(big.Int).Sub(MinWithdrawal, rest)
		last := chunks[len(chunks)-1]
		last.Sub(last, shortfall)
		rest.Add(rest, shortfall)
	}

	return append(chunks, rest), nil
}

func (p *Provider) stETHToken() defi.Token {
	return defi.Token{
		Name:     "Lido Staked ETH",
		Symbol:   "stETH",
		Decimals: 18,
		Address:  p.contracts.stETH.Hex(),
		Chain:    chain.Ethereum,
	}
}

func (p *Provider) isStETH(t defi.Token) bool {
	if t.Address != "" {
		return common.HexToAddress(t.Address) == p.contracts.stETH
	}
	return strings.EqualFold(t.Symbol, "stETH")
}

// ExecuteStaking runs a Lido action. Unstake only queues a withdrawal
// request. ClaimRewards sends nothing: stETH rebases, so the current balance
// is reported as the reward with a zero hash.
func (p *Provider) ExecuteStaking(ctx context.Context, req *defi.StakingRequest) (result *defi.StakingResult, err error) {
	if req == nil {
		return nil, errs.DeFi("staking request is nil")
	}
	switch req.Protocol {
	case "", defi.ProtocolLido:
	default:
		return nil, errs.DeFi("%s is not a staking protocol", req.Protocol)
	}
	defer func() { p.metrics.ObserveDeFi(string(defi.ProtocolLido), string(req.Action), err) }()

	owner, err := parseAddress(req.Owner, "owner")
	if err != nil {
		return nil, err
	}

	if req.Action == defi.StakingClaimRewards {
		return p.claimRewards(ctx, req)
	}

	if err := defi.PositiveAmount(req.Amount); err != nil {
		return nil, err
	}
	amount, _ := new(big.Int).SetString(req.Amount.Amount, 10)

	action := &txn.Request{
		Chain:          chain.Ethereum,
		Type:           txn.TypeStaking,
		From:           req.Owner,
		Value:          "0",
		DerivationPath: req.DerivationPath,
	}
	step := defi.Step{
		Owner:          req.Owner,
		Amount:         amount,
		DerivationPath: req.DerivationPath,
		Action:         action,
	}

	switch req.Action {
	case defi.StakingStake:
		if !req.Amount.Token.IsNative() {
			return nil, errs.DeFi("only ETH can be staked in Lido")
		}
		action.To = p.contracts.stETH.Hex()
		action.Value = amount.String()
		action.Data, err = lidoContract.Pack("submit", common.Address{})
	case defi.StakingUnstake:
		if !p.isStETH(req.Amount.Token) {
			return nil, errs.DeFi("only stETH can be unstaked from Lido")
		}
		var chunks []*big.Int
		chunks, err = SplitWithdrawal(amount)
		if err != nil {
			return nil, err
		}
		action.To = p.contracts.withdrawalQueue.Hex()
		action.Data, err = withdrawalQueueContract.Pack("requestWithdrawals", chunks, owner)
		step.Token = p.contracts.stETH.Hex()
		step.Spender = p.contracts.withdrawalQueue.Hex()
	default:
		return nil, errs.DeFi("unknown staking action %q", req.Action)
	}
	if err != nil {
		return nil, errs.Wrap(errs.KindDeFi, "staking", err)
	}

	p.log.Info().
		Str("protocol", string(defi.ProtocolLido)).
		Str("action", string(req.Action)).
		Str("amount", amount.String()).
		Msg("Executing staking action")

	out, err := p.saga.Run(ctx, step)
	if err != nil {
		return nil, err
	}

	return &defi.StakingResult{
		Action:          req.Action,
		Amount:          req.Amount,
		TransactionHash: out.ActionHash,
		ApprovalHash:    out.ApprovalHash,
		Protocol:        defi.ProtocolLido,
		Fee:             out.ActionReceipt.Fee,
	}, nil
}

func (p *Provider) claimRewards(ctx context.Context, req *defi.StakingRequest) (*defi.StakingResult, error) {
	token := p.stETHToken()

	balance, err := p.erc20.BalanceOf(ctx, token.Address, req.Owner)
	if err != nil {
		return nil, err
	}
	rewards := &defi.TokenAmount{Token: token, Amount: balance.String()}

	return &defi.StakingResult{
		Action:          defi.StakingClaimRewards,
		Amount:          *rewards,
		TransactionHash: zeroHash,
		Protocol:        defi.ProtocolLido,
		Fee:             "0",
		Rewards:         rewards,
	}, nil
}
