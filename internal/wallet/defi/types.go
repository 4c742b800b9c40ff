// Package defi holds the chain independent DeFi model: tokens, protocol
// actions, quote math, price sources and the approve-then-act saga.
package defi

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"
	"github/chapool/wallet-core/internal/wallet/chain"
	"github/chapool/wallet-core/internal/wallet/errs"
	"github/chapool/wallet-core/internal/wallet/txn"
)

// Protocol names a DeFi venue.
type Protocol string

const (
	ProtocolUniswap     Protocol = "uniswap"
	ProtocolSushiSwap   Protocol = "sushiswap"
	ProtocolPancakeSwap Protocol = "pancakeswap"
	ProtocolAave        Protocol = "aave"
	ProtocolCompound    Protocol = "compound"
	ProtocolLido        Protocol = "lido"
	ProtocolRaydium     Protocol = "raydium"
	ProtocolOrca        Protocol = "orca"
	ProtocolMarinade    Protocol = "marinade"
	// ProtocolNativeStake is Solana's stake program delegating to a validator.
	ProtocolNativeStake Protocol = "native_stake"
	ProtocolOther       Protocol = "other"
)

// ParseProtocol accepts any protocol name case-insensitively. Unknown names
// map to ProtocolOther.
func ParseProtocol(s string) Protocol {
	p := Protocol(strings.ToLower(strings.TrimSpace(s)))
	switch p {
	case ProtocolUniswap, ProtocolSushiSwap, ProtocolPancakeSwap, ProtocolAave, ProtocolCompound,
		ProtocolLido, ProtocolRaydium, ProtocolOrca, ProtocolMarinade, ProtocolNativeStake:
		return p
	default:
		return ProtocolOther
	}
}

// Well known token addresses.
const (
	NativeEthereumAddress = "0xEeeeeEeeeEeEeeEeEeEeeEEEeeeeEeeeeeeeEEeE"
	WETHAddress           = "0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2"
	NativeSolanaMint      = "So11111111111111111111111111111111111111112"
)

// Token describes a fungible asset on one chain.
type Token struct {
	Name     string    `json:"name" toml:"name"`
	Symbol   string    `json:"symbol" toml:"symbol"`
	Decimals uint8     `json:"decimals" toml:"decimals"`
	Address  string    `json:"address" toml:"address"`
	Chain    chain.Tag `json:"chain" toml:"chain"`
	LogoURL  string    `json:"logo_url,omitempty" toml:"logo_url"`
}

// IsNative reports whether t is the chain's gas asset rather than a contract token.
func (t Token) IsNative() bool {
	switch t.Chain {
	case chain.Ethereum:
		return strings.EqualFold(t.Address, NativeEthereumAddress) || (t.Address == "" && t.Symbol == "ETH")
	case chain.Solana:
		return t.Address == NativeSolanaMint || (t.Address == "" && t.Symbol == "SOL")
	default:
		return false
	}
}

// TokenAmount is an amount in the token's smallest unit.
type TokenAmount struct {
	Token  Token  `json:"token"`
	Amount string `json:"amount"`
}

type SwapRequest struct {
	From TokenAmount `json:"from"`
	To   Token       `json:"to"`
	// Slippage is a percentage in [0, 100).
	Slippage decimal.Decimal `json:"slippage"`
	Protocol Protocol        `json:"protocol"`
	// Deadline is a unix timestamp; nil means latest block time + DefaultDeadline.
	Deadline *uint64 `json:"deadline,omitempty"`

	Owner          string `json:"owner"`
	DerivationPath string `json:"derivation_path"`
}

type SwapResult struct {
	From            TokenAmount `json:"from"`
	To              TokenAmount `json:"to"`
	TransactionHash string      `json:"transaction_hash"`
	ApprovalHash    string      `json:"approval_hash,omitempty"`
	Protocol        Protocol    `json:"protocol"`
	Fee             string      `json:"fee"`
}

type LendingAction string

const (
	LendingSupply   LendingAction = "supply"
	LendingWithdraw LendingAction = "withdraw"
	LendingBorrow   LendingAction = "borrow"
	LendingRepay    LendingAction = "repay"
)

type LendingRequest struct {
	Action   LendingAction `json:"action"`
	Amount   TokenAmount   `json:"amount"`
	Protocol Protocol      `json:"protocol"`

	Owner          string `json:"owner"`
	DerivationPath string `json:"derivation_path"`
}

type LendingResult struct {
	Action          LendingAction `json:"action"`
	Amount          TokenAmount   `json:"amount"`
	TransactionHash string        `json:"transaction_hash"`
	ApprovalHash    string        `json:"approval_hash,omitempty"`
	Protocol        Protocol      `json:"protocol"`
	Fee             string        `json:"fee"`
}

type StakingAction string

const (
	StakingStake        StakingAction = "stake"
	StakingUnstake      StakingAction = "unstake"
	StakingClaimRewards StakingAction = "claim_rewards"
)

type StakingRequest struct {
	Action StakingAction `json:"action"`
	// Amount is ignored for ClaimRewards.
	Amount   TokenAmount `json:"amount"`
	Protocol Protocol    `json:"protocol"`

	// Validator is the vote account a native Solana stake delegates to.
	Validator string `json:"validator,omitempty"`
	// StakeAccount selects the Solana stake account to unstake or report on.
	StakeAccount string `json:"stake_account,omitempty"`

	Owner          string `json:"owner"`
	DerivationPath string `json:"derivation_path"`
}

type StakingResult struct {
	Action          StakingAction `json:"action"`
	Amount          TokenAmount   `json:"amount"`
	TransactionHash string        `json:"transaction_hash"`
	ApprovalHash    string        `json:"approval_hash,omitempty"`
	Protocol        Protocol      `json:"protocol"`
	Fee             string        `json:"fee"`
	Rewards         *TokenAmount  `json:"rewards,omitempty"`
	// StakeAccount is the Solana stake account the action touched.
	StakeAccount string `json:"stake_account,omitempty"`
}

// Provider is the DeFi capability set of one chain.
type Provider interface {
	Chain() chain.Tag
	GetSupportedProtocols() []Protocol
	GetSupportedTokens(ctx context.Context) ([]Token, error)
	GetTokenBalance(ctx context.Context, token Token, address string) (*TokenAmount, error)
	GetTokenPrice(ctx context.Context, token Token) (decimal.Decimal, error)
	GetSwapQuote(ctx context.Context, req *SwapRequest) (*TokenAmount, error)
	ExecuteSwap(ctx context.Context, req *SwapRequest) (*SwapResult, error)
	ExecuteLending(ctx context.Context, req *LendingRequest) (*LendingResult, error)
	ExecuteStaking(ctx context.Context, req *StakingRequest) (*StakingResult, error)
}

// Supports reports whether p is in the provider's protocol list.
func Supports(p Provider, protocol Protocol) bool {
	for _, candidate := range p.GetSupportedProtocols() {
		if candidate == protocol {
			return true
		}
	}
	return false
}

// FindToken looks a token up by symbol or address, case-insensitively.
func FindToken(tokens []Token, symbolOrAddress string) (Token, bool) {
	for _, t := range tokens {
		if strings.EqualFold(t.Symbol, symbolOrAddress) || strings.EqualFold(t.Address, symbolOrAddress) {
			return t, true
		}
	}
	return Token{}, false
}

// PositiveAmount parses a strictly positive smallest-unit amount.
func PositiveAmount(a TokenAmount) error {
	n, err := txn.ParseAmount(a.Token.Symbol+" amount", a.Amount)
	if err != nil {
		return errs.Wrap(errs.KindDeFi, "parse amount", err)
	}
	if n.Sign() == 0 {
		return errs.DeFi("%s amount must be positive", a.Token.Symbol)
	}
	return nil
}
