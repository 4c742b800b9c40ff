// Package solana implements DeFi on Solana: the token catalogue, balances,
// prices, pool-reserve quotes for Orca and Raydium, Orca swaps and native
// stake delegation. Raydium swaps, Marinade and lending are refused.
package solana

import (
	"context"
	"math/big"
	"strconv"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"github/chapool/wallet-core/internal/metrics"
	"github/chapool/wallet-core/internal/wallet/chain"
	"github/chapool/wallet-core/internal/wallet/defi"
	"github/chapool/wallet-core/internal/wallet/errs"
	solprov "github/chapool/wallet-core/internal/wallet/txn/solana"
)

const USDCMint = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"

func DefaultTokens() []defi.Token {
	return []defi.Token{
		{Name: "Solana", Symbol: "SOL", Decimals: 9, Address: defi.NativeSolanaMint, Chain: chain.Solana},
		{Name: "USD Coin", Symbol: "USDC", Decimals: 6, Address: USDCMint, Chain: chain.Solana},
	}
}

type Options struct {
	// Tokens extends DefaultTokens; entries for other chains are ignored.
	Tokens []defi.Token
	// Pools replaces DefaultPools when set.
	Pools        []Pool
	PollInterval time.Duration
	Metrics      *metrics.Metrics
}

type Provider struct {
	tx           *solprov.Provider
	client       solprov.Client
	saga         *defi.Saga
	prices       defi.PriceSource
	tokens       []defi.Token
	pools        []Pool
	pollInterval time.Duration
	metrics      *metrics.Metrics
	log          zerolog.Logger
}

var _ defi.Provider = (*Provider)(nil)

// NewProvider builds on tx for reads, signing and tracking. A nil prices
// uses defi.DefaultStaticPrices.
func NewProvider(tx *solprov.Provider, prices defi.PriceSource, opts Options) *Provider {
	if prices == nil {
		prices = defi.DefaultStaticPrices()
	}

	tokens := DefaultTokens()
	for _, t := range defi.ForChain(opts.Tokens, chain.Solana) {
		if _, dup := defi.FindToken(tokens, t.Address); !dup {
			tokens = append(tokens, t)
		}
	}

	pools := opts.Pools
	if len(pools) == 0 {
		pools = DefaultPools()
	}

	return &Provider{
		tx:     tx,
		client: tx.Client(),
		// SPL transfers are signed by the owner, so no step needs an allowance.
		saga:         defi.NewSaga(tx, nil, opts.PollInterval, opts.Metrics),
		prices:       prices,
		tokens:       tokens,
		pools:        pools,
		pollInterval: opts.PollInterval,
		metrics:      opts.Metrics,
		log:          log.With().Str("component", "defi").Str("chain", chain.Solana.String()).Logger(),
	}
}

func (p *Provider) Chain() chain.Tag {
	return chain.Solana
}

func (p *Provider) GetSupportedProtocols() []defi.Protocol {
	return []defi.Protocol{defi.ProtocolRaydium, defi.ProtocolOrca, defi.ProtocolMarinade, defi.ProtocolNativeStake}
}

func (p *Provider) GetSupportedTokens(context.Context) ([]defi.Token, error) {
	return append([]defi.Token(nil), p.tokens...), nil
}

func checkToken(t defi.Token) error {
	if t.Chain != chain.Solana {
		return errs.DeFi("%s is not a Solana token", t.Symbol)
	}
	return nil
}

func parseKey(addr string, field string) (solana.PublicKey, error) {
	key, err := solprov.ParsePublicKey(addr, field)
	if err != nil {
		return solana.PublicKey{}, errs.DeFi("invalid %s address %q", field, addr)
	}
	return key, nil
}

func (p *Provider) GetTokenBalance(ctx context.Context, token defi.Token, addr string) (*defi.TokenAmount, error) {
	if err := checkToken(token); err != nil {
		return nil, err
	}
	owner, err := parseKey(addr, "owner")
	if err != nil {
		return nil, err
	}

	if token.IsNative() {
		lamports, err := p.client.Balance(ctx, owner)
		if err != nil {
			return nil, errs.Wrap(errs.KindDeFi, "token balance", errs.WrapChain(errs.KindProvider, "balance", chain.Solana, err))
		}
		return &defi.TokenAmount{Token: token, Amount: strconv.FormatUint(lamports, 10)}, nil
	}

	mint, err := parseKey(token.Address, "mint")
	if err != nil {
		return nil, err
	}
	amount, err := p.client.TokenBalance(ctx, owner, mint)
	if err != nil {
		return nil, errs.Wrap(errs.KindDeFi, "token balance", errs.WrapChain(errs.KindProvider, "token balance", chain.Solana, err))
	}

	return &defi.TokenAmount{Token: token, Amount: amount}, nil
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
	if mintOf(req.From.Token) == mintOf(req.To) {
		return errs.DeFi("cannot swap %s for itself", req.To.Symbol)
	}
	return defi.PositiveAmount(req.From)
}

// GetSwapQuote reads the Orca or Raydium pool reserves when one of them is
// requested, and converts at oracle prices otherwise.
func (p *Provider) GetSwapQuote(ctx context.Context, req *defi.SwapRequest) (*defi.TokenAmount, error) {
	if err := p.validateSwap(req); err != nil {
		return nil, err
	}

	switch req.Protocol {
	case defi.ProtocolOrca, defi.ProtocolRaydium:
		r, err := p.route(req.Protocol, req.From.Token, req.To)
		if err != nil {
			return nil, err
		}
		amountIn, _ := new(big.Int).SetString(req.From.Amount, 10)
		out, err := p.poolQuote(ctx, r, amountIn)
		if err != nil {
			return nil, err
		}
		return &defi.TokenAmount{Token: req.To, Amount: out.String()}, nil
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

// refuse reports an execution this provider cannot carry out.
func (p *Provider) refuse(op string, protocol defi.Protocol, action string, reason string) error {
	if protocol != "" && !defi.Supports(p, protocol) {
		return errs.DeFi("%s is not available on Solana", protocol)
	}

	err := &errs.Error{
		Kind:  errs.KindDeFi,
		Op:    op,
		Chain: chain.Solana.String(),
		Msg:   reason,
		Err:   errs.ErrUnsupported,
	}
	p.metrics.ObserveDeFi(string(protocol), action, err)
	p.log.Debug().Str("protocol", string(protocol)).Str("action", action).Msg("Refused DeFi execution")

	return err
}

func (p *Provider) ExecuteLending(_ context.Context, req *defi.LendingRequest) (*defi.LendingResult, error) {
	if req == nil {
		return nil, errs.DeFi("lending request is nil")
	}
	return nil, p.refuse("lending", req.Protocol, string(req.Action), "lending is not available on Solana")
}
