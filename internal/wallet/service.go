package wallet

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github/chapool/wallet-core/internal/metrics"
	"github/chapool/wallet-core/internal/util"
	"github/chapool/wallet-core/internal/wallet/address"
	"github/chapool/wallet-core/internal/wallet/chain"
	"github/chapool/wallet-core/internal/wallet/defi"
	ethdefi "github/chapool/wallet-core/internal/wallet/defi/ethereum"
	"github/chapool/wallet-core/internal/wallet/errs"
	"github/chapool/wallet-core/internal/wallet/provider"
	"github/chapool/wallet-core/internal/wallet/txn"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// maxBalanceQueries bounds concurrent balance lookups in GetBalances.
const maxBalanceQueries = 4

// Options configures an Engine.
type Options struct {
	// Providers holds the endpoint config of every chain the engine may use.
	Providers map[chain.Tag]chain.ProviderConfig
	Address   address.Options
	Metrics   *metrics.Metrics
	Prices    defi.PriceSource
	Tokens    []defi.Token
	Contracts ethdefi.Addresses
	// PollInterval paces DeFi confirmation polling.
	PollInterval time.Duration
	// LidoAPIURL serves the stETH APR.
	LidoAPIURL string
}

// Engine is the consumer facing surface: derive addresses, submit
// transactions, read chain and token state and run DeFi actions. Transactions
// are signed with the engine's wallet. Chain providers are built on first use.
type Engine struct {
	wallet    *Wallet
	addresses address.Service
	factory   *provider.Factory
	configs   map[chain.Tag]chain.ProviderConfig
	metrics   *metrics.Metrics

	// mu guards the caches only; dials run outside it, deduplicated by dials.
	mu       sync.Mutex
	managers map[chain.Tag]txn.Manager
	defi     map[chain.Tag]defi.Provider
	dials    singleflight.Group
}

// NewEngine binds an engine to w.
func NewEngine(w *Wallet, opts Options) (*Engine, error) {
	if w == nil {
		return nil, errs.Mnemonic("wallet is nil")
	}

	addressService, err := address.NewService(opts.Address)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create address service")
	}

	configs := make(map[chain.Tag]chain.ProviderConfig, len(opts.Providers))
	for tag, cfg := range opts.Providers {
		configs[tag] = cfg
	}

	return &Engine{
		wallet:    w,
		addresses: addressService,
		factory: &provider.Factory{
			Keys:         w,
			Metrics:      opts.Metrics,
			Prices:       opts.Prices,
			Tokens:       opts.Tokens,
			Contracts:    opts.Contracts,
			PollInterval: opts.PollInterval,
			LidoAPIURL:   opts.LidoAPIURL,
		},
		configs:  configs,
		metrics:  opts.Metrics,
		managers: make(map[chain.Tag]txn.Manager),
		defi:     make(map[chain.Tag]defi.Provider),
	}, nil
}

func (e *Engine) Wallet() *Wallet {
	return e.wallet
}

func (e *Engine) Addresses() address.Service {
	return e.addresses
}

// Use installs m as the transaction manager for its chain.
func (e *Engine) Use(m txn.Manager) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.managers[m.Chain()] = m
}

// UseDeFi installs p as the DeFi provider for its chain.
func (e *Engine) UseDeFi(p defi.Provider) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.defi[p.Chain()] = p
}

// Close releases provider connections.
func (e *Engine) Close() {
	e.factory.Close()
}

func (e *Engine) config(tag chain.Tag) (chain.ProviderConfig, error) {
	cfg, ok := e.configs[tag]
	if !ok {
		return chain.ProviderConfig{}, errs.Provider("no provider configured for %s", tag.DisplayName())
	}
	return cfg, nil
}

func (e *Engine) cachedManager(tag chain.Tag) (txn.Manager, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	m, ok := e.managers[tag]
	return m, ok
}

func (e *Engine) cachedDeFi(tag chain.Tag) (defi.Provider, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	p, ok := e.defi[tag]
	return p, ok
}

//nolint:ireturn // the manager type depends on the chain
func (e *Engine) manager(ctx context.Context, tag chain.Tag) (txn.Manager, error) {
	if m, ok := e.cachedManager(tag); ok {
		return m, nil
	}

	cfg, err := e.config(tag)
	if err != nil {
		return nil, err
	}

	v, err, _ := e.dials.Do("manager/"+tag.String(), func() (any, error) {
		if m, ok := e.cachedManager(tag); ok {
			return m, nil
		}

		m, err := e.factory.ChainProvider(ctx, tag, cfg)
		if err != nil {
			return nil, err
		}

		e.mu.Lock()
		defer e.mu.Unlock()
		if existing, ok := e.managers[tag]; ok {
			return existing, nil
		}
		e.managers[tag] = m
		return m, nil
	})
	if err != nil {
		return nil, err
	}

	return v.(txn.Manager), nil //nolint:forcetypeassert // set above
}

// defiProvider builds on the chain's transaction manager so both share one
// node connection.
//
//nolint:ireturn // the provider type depends on the chain
func (e *Engine) defiProvider(ctx context.Context, tag chain.Tag) (defi.Provider, error) {
	if p, ok := e.cachedDeFi(tag); ok {
		return p, nil
	}
	if tag == chain.Bitcoin {
		return e.factory.DeFiProvider(ctx, tag, chain.ProviderConfig{}, nil)
	}

	cfg, err := e.config(tag)
	if err != nil {
		return nil, err
	}

	v, err, _ := e.dials.Do("defi/"+tag.String(), func() (any, error) {
		if p, ok := e.cachedDeFi(tag); ok {
			return p, nil
		}

		m, err := e.manager(ctx, tag)
		if err != nil {
			return nil, err
		}
		p, err := e.factory.DeFiProvider(ctx, tag, cfg, m)
		if err != nil {
			return nil, err
		}

		e.mu.Lock()
		defer e.mu.Unlock()
		if existing, ok := e.defi[tag]; ok {
			return existing, nil
		}
		e.defi[tag] = p
		return p, nil
	})
	if err != nil {
		return nil, err
	}

	return v.(defi.Provider), nil //nolint:forcetypeassert // set above
}

// DeriveAddress renders w's address for tag at path. An empty path uses the
// chain's default BIP44 path for account 0, index 0.
func (e *Engine) DeriveAddress(ctx context.Context, w *Wallet, tag chain.Tag, path string) (*address.Address, error) {
	if w == nil {
		return nil, errs.Mnemonic("wallet is nil")
	}
	if path == "" {
		path = e.addresses.GetBIP44Path(tag, 0, 0)
	}

	var derived *address.Address
	err := w.WithSeed(func(seed []byte) error {
		var err error
		derived, err = e.addresses.DeriveAddress(ctx, seed, tag, path)
		return err
	})
	if err != nil {
		return nil, err
	}
	e.metrics.ObserveDerivation(tag.String())

	util.LogFromContext(ctx).Debug().
		Str("chain", tag.String()).
		Str("path", path).
		Str("address", derived.Address).
		Msg("Derived address")

	return derived, nil
}

// SignAndSubmit signs req with the engine's wallet and broadcasts it. A
// request without a chain is addressed to tag.
func (e *Engine) SignAndSubmit(ctx context.Context, tag chain.Tag, req *txn.Request) (string, error) {
	if req == nil {
		return "", errs.Transaction("request is nil")
	}
	if req.Chain == "" {
		req.Chain = tag
	}

	m, err := e.manager(ctx, tag)
	if err != nil {
		return "", err
	}

	hash, err := m.SendTransaction(ctx, req)
	if err != nil {
		util.LogFromContext(ctx).Error().Err(err).Str("chain", tag.String()).Msg("Failed to submit transaction")
		return "", err
	}

	util.LogFromContext(ctx).Info().
		Str("chain", tag.String()).
		Str("tx_hash", hash).
		Msg("Transaction submitted")

	return hash, nil
}

// GetTransaction returns the transaction with its receipt once terminal.
func (e *Engine) GetTransaction(ctx context.Context, tag chain.Tag, hash string) (*txn.Transaction, error) {
	m, err := e.manager(ctx, tag)
	if err != nil {
		return nil, err
	}
	return m.GetTransaction(ctx, hash)
}

// WaitForTransaction polls until hash is Confirmed or Failed.
func (e *Engine) WaitForTransaction(ctx context.Context, tag chain.Tag, hash string, interval time.Duration) (txn.Status, error) {
	m, err := e.manager(ctx, tag)
	if err != nil {
		return "", err
	}
	return txn.WaitForTerminal(ctx, m, hash, interval)
}

func (e *Engine) GetSupportedTokens(ctx context.Context, tag chain.Tag) ([]defi.Token, error) {
	p, err := e.defiProvider(ctx, tag)
	if err != nil {
		return nil, err
	}
	return p.GetSupportedTokens(ctx)
}

func (e *Engine) GetSupportedProtocols(ctx context.Context, tag chain.Tag) ([]defi.Protocol, error) {
	p, err := e.defiProvider(ctx, tag)
	if err != nil {
		return nil, err
	}
	return p.GetSupportedProtocols(), nil
}

func (e *Engine) GetTokenBalance(ctx context.Context, tag chain.Tag, token defi.Token, addr string) (*defi.TokenAmount, error) {
	p, err := e.defiProvider(ctx, tag)
	if err != nil {
		return nil, err
	}
	return p.GetTokenBalance(ctx, token, addr)
}

// GetBalances queries every token concurrently. Results keep the order of
// tokens; the first failure cancels the rest.
func (e *Engine) GetBalances(ctx context.Context, tag chain.Tag, tokens []defi.Token, addr string) ([]*defi.TokenAmount, error) {
	p, err := e.defiProvider(ctx, tag)
	if err != nil {
		return nil, err
	}

	balances := make([]*defi.TokenAmount, len(tokens))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxBalanceQueries)

	for i, token := range tokens {
		g.Go(func() error {
			b, err := p.GetTokenBalance(gctx, token, addr)
			if err != nil {
				return err
			}
			balances[i] = b
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return balances, nil
}

func (e *Engine) GetTokenPrice(ctx context.Context, tag chain.Tag, token defi.Token) (decimal.Decimal, error) {
	p, err := e.defiProvider(ctx, tag)
	if err != nil {
		return decimal.Zero, err
	}
	return p.GetTokenPrice(ctx, token)
}

func (e *Engine) GetSwapQuote(ctx context.Context, tag chain.Tag, req *defi.SwapRequest) (*defi.TokenAmount, error) {
	p, err := e.defiProvider(ctx, tag)
	if err != nil {
		return nil, err
	}
	return p.GetSwapQuote(ctx, req)
}

func (e *Engine) ExecuteSwap(ctx context.Context, tag chain.Tag, req *defi.SwapRequest) (*defi.SwapResult, error) {
	p, err := e.defiProvider(ctx, tag)
	if err != nil {
		return nil, err
	}

	result, err := p.ExecuteSwap(ctx, req)
	if err != nil {
		return nil, err
	}
	e.logAction(ctx, tag, "swap", result.Protocol, result.TransactionHash)

	return result, nil
}

func (e *Engine) ExecuteLending(ctx context.Context, tag chain.Tag, req *defi.LendingRequest) (*defi.LendingResult, error) {
	p, err := e.defiProvider(ctx, tag)
	if err != nil {
		return nil, err
	}

	result, err := p.ExecuteLending(ctx, req)
	if err != nil {
		return nil, err
	}
	e.logAction(ctx, tag, string(result.Action), result.Protocol, result.TransactionHash)

	return result, nil
}

func (e *Engine) ExecuteStaking(ctx context.Context, tag chain.Tag, req *defi.StakingRequest) (*defi.StakingResult, error) {
	p, err := e.defiProvider(ctx, tag)
	if err != nil {
		return nil, err
	}

	result, err := p.ExecuteStaking(ctx, req)
	if err != nil {
		return nil, err
	}
	e.logAction(ctx, tag, string(result.Action), result.Protocol, result.TransactionHash)

	return result, nil
}

func (e *Engine) logAction(ctx context.Context, tag chain.Tag, action string, protocol defi.Protocol, hash string) {
	util.LogFromContext(ctx).Info().
		Str("chain", tag.String()).
		Str("action", action).
		Str("protocol", string(protocol)).
		Str("tx_hash", hash).
		Msg("DeFi action completed")
}
