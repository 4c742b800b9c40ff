// Package ethereum implements the DeFi provider for EVM chains: Uniswap V2
// style routers for swaps, Aave V2 for lending and Lido for staking.
package ethereum

import (
	"context"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"github/chapool/wallet-core/internal/metrics"
	"github/chapool/wallet-core/internal/wallet/chain"
	"github/chapool/wallet-core/internal/wallet/defi"
	"github/chapool/wallet-core/internal/wallet/errs"
	"github/chapool/wallet-core/internal/wallet/txn"
	"github/chapool/wallet-core/internal/wallet/txn/evm"
)

// DefaultDeadline is added to the latest block time when a swap has no deadline.
const DefaultDeadline = 1800

const zeroHash = "0x0000000000000000000000000000000000000000000000000000000000000000"

// DefaultTokens is the built-in Ethereum mainnet catalogue.
func DefaultTokens() []defi.Token {
	return []defi.Token{
		{Name: "Ethereum", Symbol: "ETH", Decimals: 18, Address: defi.NativeEthereumAddress, Chain: chain.Ethereum},
		{Name: "Wrapped Ether", Symbol: "WETH", Decimals: 18, Address: defi.WETHAddress, Chain: chain.Ethereum},
		{Name: "USD Coin", Symbol: "USDC", Decimals: 6, Address: "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48", Chain: chain.Ethereum},
		{Name: "Tether USD", Symbol: "USDT", Decimals: 6, Address: "0xdAC17F958D2ee523a2206206994597C13D831ec7", Chain: chain.Ethereum},
		{Name: "Dai Stablecoin", Symbol: "DAI", Decimals: 18, Address: "0x6B175474E89094C44Da98b954EedeAC495271d0F", Chain: chain.Ethereum},
		{Name: "Lido Staked ETH", Symbol: "stETH", Decimals: 18, Address: LidoStETH, Chain: chain.Ethereum},
	}
}

type Options struct {
	Addresses Addresses
	// Tokens extends DefaultTokens; entries for other chains are ignored.
	Tokens       []defi.Token
	PollInterval time.Duration
	Metrics      *metrics.Metrics
	// LidoAPIURL serves the staking APR; empty uses DefaultLidoAPIURL.
	LidoAPIURL string
}

type Provider struct {
	tx        *evm.Provider
	client    evm.Client
	erc20     *ERC20
	saga      *defi.Saga
	prices    defi.PriceSource
	contracts contracts
	lido      *lidoAPI
	tokens    []defi.Token
	metrics   *metrics.Metrics
	log       zerolog.Logger
}

var _ defi.Provider = (*Provider)(nil)

// NewProvider builds on tx for signing and tracking. A nil prices uses
// defi.DefaultStaticPrices.
func NewProvider(tx *evm.Provider, prices defi.PriceSource, opts Options) *Provider {
	if prices == nil {
		prices = defi.DefaultStaticPrices()
	}

	client := tx.Client()
	erc20 := NewERC20(client)

	return &Provider{
		tx:        tx,
		client:    client,
		erc20:     erc20,
		saga:      defi.NewSaga(tx, erc20, opts.PollInterval, opts.Metrics),
		prices:    prices,
		contracts: opts.Addresses.resolve(),
		lido:      newLidoAPI(opts.LidoAPIURL),
		tokens:    mergeTokens(DefaultTokens(), defi.ForChain(opts.Tokens, chain.Ethereum)),
		metrics:   opts.Metrics,
		log:       log.With().Str("component", "defi").Str("chain", chain.Ethereum.String()).Logger(),
	}
}

func mergeTokens(base []defi.Token, extra []defi.Token) []defi.Token {
	seen := make(map[string]bool, len(base)+len(extra))
	out := make([]defi.Token, 0, len(base)+len(extra))
	for _, t := range append(base, extra...) {
		key := strings.ToLower(t.Address)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, t)
	}
	return out
}

func (p *Provider) Chain() chain.Tag {
	return chain.Ethereum
}

// Saga exposes the approve-then-act coordinator for allowance recovery.
func (p *Provider) Saga() *defi.Saga {
	return p.saga
}

func (p *Provider) GetSupportedProtocols() []defi.Protocol {
	return []defi.Protocol{
		defi.ProtocolUniswap,
		defi.ProtocolSushiSwap,
		defi.ProtocolAave,
		defi.ProtocolCompound,
		defi.ProtocolLido,
	}
}

func (p *Provider) GetSupportedTokens(context.Context) ([]defi.Token, error) {
	return append([]defi.Token(nil), p.tokens...), nil
}

func checkToken(t defi.Token) error {
	if t.Chain != chain.Ethereum {
		return errs.DeFi("%s is not an Ethereum token", t.Symbol)
	}
	if !t.IsNative() && !strings.HasPrefix(t.Address, "0x") {
		return errs.DeFi("invalid token address %q", t.Address)
	}
	return nil
}

func (p *Provider) GetTokenBalance(ctx context.Context, token defi.Token, addr string) (*defi.TokenAmount, error) {
	if err := checkToken(token); err != nil {
		return nil, err
	}

	var (
		balance *big.Int
		err     error
	)
	if token.IsNative() {
		if _, err = parseAddress(addr, "owner"); err != nil {
			return nil, err
		}
		balance, err = p.tx.Balance(ctx, addr)
	} else {
		balance, err = p.erc20.BalanceOf(ctx, token.Address, addr)
	}
	if err != nil {
		return nil, errs.Wrap(errs.KindDeFi, "token balance", err)
	}

	return &defi.TokenAmount{Token: token, Amount: balance.String()}, nil
}

func (p *Provider) GetTokenPrice(ctx context.Context, token defi.Token) (decimal.Decimal, error) {
	if err := checkToken(token); err != nil {
		return decimal.Zero, err
	}
	return p.prices.Price(ctx, token)
}

func (p *Provider) validateSwap(req *defi.SwapRequest) error {
	if req == nil {
		return errs.DeFi("swap request is nil")
	}
	if err := checkToken(req.From.Token); err != nil {
		return err
	}
	if err := checkToken(req.To); err != nil {
		return err
	}
	if err := defi.PositiveAmount(req.From); err != nil {
		return err
	}
	if req.From.Token.IsNative() && req.To.IsNative() {
		return errs.DeFi("cannot swap ETH for ETH")
	}
	return defi.ValidateSlippage(req.Slippage)
}

// GetSwapQuote is the advisory price based estimate.
func (p *Provider) GetSwapQuote(ctx context.Context, req *defi.SwapRequest) (*defi.TokenAmount, error) {
	if err := p.validateSwap(req); err != nil {
		return nil, err
	}

	priceIn, err := p.prices.Price(ctx, req.From.Token)
	if err != nil {
		return nil, err
	}
	priceOut, err := p.prices.Price(ctx, req.To)
	if err != nil {
		return nil, err
	}

	amount, err := defi.Quote(req.From.Amount, req.From.Token, priceIn, req.To, priceOut)
	if err != nil {
		return nil, err
	}

	return &defi.TokenAmount{Token: req.To, Amount: amount}, nil
}

func (p *Provider) router(protocol defi.Protocol) (common.Address, defi.Protocol, error) {
	switch protocol {
	case "", defi.ProtocolUniswap:
		return p.contracts.uniswap, defi.ProtocolUniswap, nil
	case defi.ProtocolSushiSwap:
		return p.contracts.sushiswap, defi.ProtocolSushiSwap, nil
	default:
		return common.Address{}, protocol, errs.DeFi("%s is not a swap protocol", protocol)
	}
}

// pathAddress puts WETH in place of native ETH.
func (p *Provider) pathAddress(t defi.Token) common.Address {
	if t.IsNative() {
		return p.contracts.weth
	}
	return common.HexToAddress(t.Address)
}

// routerQuote asks the router what the swap would return on chain right now.
func (p *Provider) routerQuote(ctx context.Context, router common.Address, amountIn *big.Int, path []common.Address) (*big.Int, error) {
	values, err := call(ctx, p.client, router, routerContract, "getAmountsOut", amountIn, path)
	if err != nil {
		return nil, errs.Wrap(errs.KindDeFi, "swap quote", err)
	}
	if len(values) == 0 {
		return nil, errs.DeFi("router %s returned no quote", router.Hex())
	}

	amounts, ok := values[0].([]*big.Int)
	if !ok || len(amounts) < len(path) {
		return nil, errs.DeFi("router %s returned a malformed quote", router.Hex())
	}

	return amounts[len(amounts)-1], nil
}

func (p *Provider) deadline(ctx context.Context, requested *uint64) (*big.Int, error) {
	if requested != nil {
		return new(big.Int).SetUint64(*requested), nil
	}

	header, err := p.client.HeaderByNumber(ctx, nil)
	if err != nil {
		return nil, errs.Wrap(errs.KindDeFi, "swap deadline", errs.Wrap(errs.KindProvider, "latest block", err))
	}

	return new(big.Int).SetUint64(header.Time + DefaultDeadline), nil
}

func (p *Provider) ExecuteSwap(ctx context.Context, req *defi.SwapRequest) (result *defi.SwapResult, err error) {
	if err := p.validateSwap(req); err != nil {
		return nil, err
	}
	router, protocol, err := p.router(req.Protocol)
	if err != nil {
		return nil, err
	}
	defer func() { p.metrics.ObserveDeFi(string(protocol), "swap", err) }()

	owner, err := parseAddress(req.Owner, "owner")
	if err != nil {
		return nil, err
	}

	amountIn, _ := new(big.Int).SetString(req.From.Amount, 10)
	path := []common.Address{p.pathAddress(req.From.Token), p.pathAddress(req.To)}

	quote, err := p.routerQuote(ctx, router, amountIn, path)
	if err != nil {
		return nil, err
	}
	minOut, err := defi.MinAmountOut(quote.String(), req.Slippage)
	if err != nil {
		return nil, err
	}
	deadline, err := p.deadline(ctx, req.Deadline)
	if err != nil {
		return nil, err
	}

	var (
		data  []byte
		value = "0"
	)
	switch {
	case req.From.Token.IsNative():
		data, err = routerContract.Pack("swapExactETHForTokens", minOut, path, owner, deadline)
		value = amountIn.String()
	case req.To.IsNative():
		data, err = routerContract.Pack("swapExactTokensForETH", amountIn, minOut, path, owner, deadline)
	default:
		data, err = routerContract.Pack("swapExactTokensForTokens", amountIn, minOut, path, owner, deadline)
	}
	if err != nil {
		return nil, errs.Wrap(errs.KindDeFi, "swap", err)
	}

	step := defi.Step{
		Owner:          req.Owner,
		Spender:        router.Hex(),
		Amount:         amountIn,
		DerivationPath: req.DerivationPath,
		Action: &txn.Request{
			Chain:          chain.Ethereum,
			Type:           txn.TypeSwap,
			From:           req.Owner,
			To:             router.Hex(),
			Value:          value,
			Data:           data,
			DerivationPath: req.DerivationPath,
		},
	}
	if !req.From.Token.IsNative() {
		step.Token = req.From.Token.Address
	}

	p.log.Info().
		Str("protocol", string(protocol)).
		Str("from", req.From.Token.Symbol).
		Str("to", req.To.Symbol).
		Str("amount_in", amountIn.String()).
		Str("min_out", minOut.String()).
		Msg("Executing swap")

	out, err := p.saga.Run(ctx, step)
	if err != nil {
		return nil, err
	}

	return &defi.SwapResult{
		From:            req.From,
		To:              defi.TokenAmount{Token: req.To, Amount: quote.String()},
		TransactionHash: out.ActionHash,
		ApprovalHash:    out.ApprovalHash,
		Protocol:        protocol,
		Fee:             out.ActionReceipt.Fee,
	}, nil
}
