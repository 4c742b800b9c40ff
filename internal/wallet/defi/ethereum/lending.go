package ethereum

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github/chapool/wallet-core/internal/wallet/chain"
	"github/chapool/wallet-core/internal/wallet/defi"
	"github/chapool/wallet-core/internal/wallet/errs"
	"github/chapool/wallet-core/internal/wallet/txn"
)

// variableRateMode selects Aave's variable interest rate.
var variableRateMode = big.NewInt(2)

// AccountData is an Aave V2 position summary. Amounts are in wei of ETH;
// HealthFactor carries 18 decimals.
type AccountData struct {
	TotalCollateralETH          string `json:"total_collateral_eth"`
	TotalDebtETH                string `json:"total_debt_eth"`
	AvailableBorrowsETH         string `json:"available_borrows_eth"`
	CurrentLiquidationThreshold string `json:"current_liquidation_threshold"`
	LTV                         string `json:"ltv"`
	HealthFactor                string `json:"health_factor"`
}

func (p *Provider) UserAccountData(ctx context.Context, owner string) (*AccountData, error) {
	user, err := parseAddress(owner, "owner")
	if err != nil {
		return nil, err
	}

	values, err := call(ctx, p.client, p.contracts.lendingPool, lendingPoolContract, "getUserAccountData", user)
	if err != nil {
		return nil, errs.Wrap(errs.KindDeFi, "user account data", err)
	}
	if len(values) != 6 {
		return nil, errs.DeFi("lending pool %s returned no account data", p.contracts.lendingPool.Hex())
	}

	field := func(i int) string {
		return firstUint(values[i:]).String()
	}

	return &AccountData{
		TotalCollateralETH:          field(0),
		TotalDebtETH:                field(1),
		AvailableBorrowsETH:         field(2),
		CurrentLiquidationThreshold: field(3),
		LTV:                         field(4),
		HealthFactor:                field(5),
	}, nil
}

// ReserveData is a holder's position in one Aave V2 reserve. Amounts are in
// the asset's smallest unit; rates are rays (27 decimals).
type ReserveData struct {
	Token                    defi.Token `json:"token"`
	CurrentATokenBalance     string     `json:"current_atoken_balance"`
	CurrentStableDebt        string     `json:"current_stable_debt"`
	CurrentVariableDebt      string     `json:"current_variable_debt"`
	PrincipalStableDebt      string     `json:"principal_stable_debt"`
	ScaledVariableDebt       string     `json:"scaled_variable_debt"`
	StableBorrowRate         string     `json:"stable_borrow_rate"`
	LiquidityRate            string     `json:"liquidity_rate"`
	StableRateLastUpdated    uint64     `json:"stable_rate_last_updated"`
	UsageAsCollateralEnabled bool       `json:"usage_as_collateral_enabled"`
}

// UserReserveData reads owner's supply and debt in token's reserve from the
// protocol data provider.
func (p *Provider) UserReserveData(ctx context.Context, token defi.Token, owner string) (*ReserveData, error) {
	if err := checkToken(token); err != nil {
		return nil, err
	}
	if token.IsNative() {
		return nil, errs.DeFi("Aave V2 has no native ETH reserve, use WETH")
	}
	asset, err := parseAddress(token.Address, "asset")
	if err != nil {
		return nil, err
	}
	user, err := parseAddress(owner, "owner")
	if err != nil {
		return nil, err
	}

	values, err := call(ctx, p.client, p.contracts.dataProvider, dataProviderContract, "getUserReserveData", asset, user)
	if err != nil {
		return nil, errs.Wrap(errs.KindDeFi, "user reserve data", err)
	}
	if len(values) != 9 {
		return nil, errs.DeFi("data provider %s returned no reserve data", p.contracts.dataProvider.Hex())
	}

	field := func(i int) string {
		return firstUint(values[i:]).String()
	}
	collateral, _ := values[8].(bool)

	return &ReserveData{
		Token:                    token,
		CurrentATokenBalance:     field(0),
		CurrentStableDebt:        field(1),
		CurrentVariableDebt:      field(2),
		PrincipalStableDebt:      field(3),
		ScaledVariableDebt:       field(4),
		StableBorrowRate:         field(5),
		LiquidityRate:            field(6),
		StableRateLastUpdated:    firstUint(values[7:]).Uint64(),
		UsageAsCollateralEnabled: collateral,
	}, nil
}

func (p *Provider) lendingCall(action defi.LendingAction, asset common.Address, amount *big.Int, owner common.Address) ([]byte, bool, error) {
	switch action {
	case defi.LendingSupply:
		data, err := lendingPoolContract.Pack("deposit", asset, amount, owner, uint16(0))
		return data, true, err
	case defi.LendingWithdraw:
		data, err := lendingPoolContract.Pack("withdraw", asset, amount, owner)
		return data, false, err
	case defi.LendingBorrow:
		data, err := lendingPoolContract.Pack("borrow", asset, amount, variableRateMode, uint16(0), owner)
		return data, false, err
	case defi.LendingRepay:
		data, err := lendingPoolContract.Pack("repay", asset, amount, variableRateMode, owner)
		return data, true, err
	default:
		return nil, false, errs.DeFi("unknown lending action %q", action)
	}
}

// ExecuteLending runs a lending action against the Aave V2 pool. Supply and
// Repay approve the pool first.
func (p *Provider) ExecuteLending(ctx context.Context, req *defi.LendingRequest) (result *defi.LendingResult, err error) {
	if req == nil {
		return nil, errs.DeFi("lending request is nil")
	}

	protocol := req.Protocol
	switch protocol {
	case "", defi.ProtocolAave:
		protocol = defi.ProtocolAave
	case defi.ProtocolCompound:
		return nil, &errs.Error{Kind: errs.KindDeFi, Op: "lending", Msg: "Compound execution is not available", Err: errs.ErrUnsupported}
	default:
		return nil, errs.DeFi("%s is not a lending protocol", protocol)
	}
	defer func() { p.metrics.ObserveDeFi(string(protocol), string(req.Action), err) }()

	token := req.Amount.Token
	if err := checkToken(token); err != nil {
		return nil, err
	}
	if token.IsNative() {
		return nil, errs.DeFi("Aave V2 takes WETH, not native ETH")
	}
	if err := defi.PositiveAmount(req.Amount); err != nil {
		return nil, err
	}
	owner, err := parseAddress(req.Owner, "owner")
	if err != nil {
		return nil, err
	}
	asset, err := parseAddress(token.Address, "asset")
	if err != nil {
		return nil, err
	}

	amount, _ := new(big.Int).SetString(req.Amount.Amount, 10)
	data, needsApproval, err := p.lendingCall(req.Action, asset, amount, owner)
	if err != nil {
		return nil, errs.Wrap(errs.KindDeFi, "lending", err)
	}

	pool := p.contracts.lendingPool.Hex()
	step := defi.Step{
		Owner:          req.Owner,
		Spender:        pool,
		Amount:         amount,
		DerivationPath: req.DerivationPath,
		Action: &txn.Request{
			Chain:          chain.Ethereum,
			Type:           txn.TypeContractCall,
			From:           req.Owner,
			To:             pool,
			Value:          "0",
			Data:           data,
			DerivationPath: req.DerivationPath,
		},
	}
	if needsApproval {
		step.Token = token.Address
	}

	p.log.Info().
		Str("protocol", string(protocol)).
		Str("action", string(req.Action)).
		Str("asset", token.Symbol).
		Str("amount", amount.String()).
		Msg("Executing lending action")

	out, err := p.saga.Run(ctx, step)
	if err != nil {
		return nil, err
	}

	return &defi.LendingResult{
		Action:          req.Action,
		Amount:          req.Amount,
		TransactionHash: out.ActionHash,
		ApprovalHash:    out.ApprovalHash,
		Protocol:        protocol,
		Fee:             out.ActionReceipt.Fee,
	}, nil
}
