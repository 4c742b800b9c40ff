// Package provider turns a chain tag and a ProviderConfig into a ready
// transaction manager or DeFi provider.
package provider

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github/chapool/wallet-core/internal/metrics"
	"github/chapool/wallet-core/internal/wallet/address"
	"github/chapool/wallet-core/internal/wallet/chain"
	"github/chapool/wallet-core/internal/wallet/defi"
	ethdefi "github/chapool/wallet-core/internal/wallet/defi/ethereum"
	soldefi "github/chapool/wallet-core/internal/wallet/defi/solana"
	"github/chapool/wallet-core/internal/wallet/errs"
	"github/chapool/wallet-core/internal/wallet/keys"
	"github/chapool/wallet-core/internal/wallet/txn"
	"github/chapool/wallet-core/internal/wallet/txn/bitcoin"
	"github/chapool/wallet-core/internal/wallet/txn/evm"
	solprov "github/chapool/wallet-core/internal/wallet/txn/solana"
)

// Factory builds chain providers. Keys is required; everything else is
// optional. EVM connections opened by the factory stay open until Close.
type Factory struct {
	Keys    keys.KeyRing
	Metrics *metrics.Metrics
	// Prices backs DeFi quotes; nil uses defi.DefaultStaticPrices.
	Prices defi.PriceSource
	Logger *zerolog.Logger

	// Tokens extends every DeFi provider's built-in catalogue.
	Tokens []defi.Token
	// Contracts overrides Ethereum DeFi contract addresses.
	Contracts ethdefi.Addresses
	// PollInterval paces DeFi confirmation polling.
	PollInterval time.Duration
	// LidoAPIURL serves the stETH APR; empty uses ethdefi.DefaultLidoAPIURL.
	LidoAPIURL string

	mu      sync.Mutex
	closers []func()
}

func (f *Factory) logger() zerolog.Logger {
	if f.Logger != nil {
		return *f.Logger
	}
	return log.With().Str("component", "provider_factory").Logger()
}

// ChainProvider returns the transaction manager for tag.
//
//nolint:ireturn // the manager type depends on the chain
func (f *Factory) ChainProvider(ctx context.Context, tag chain.Tag, cfg chain.ProviderConfig) (txn.Manager, error) {
	if err := f.check(tag, cfg); err != nil {
		return nil, err
	}

	var (
		m   txn.Manager
		err error
	)
	switch tag {
	case chain.Ethereum:
		m, err = f.evmProvider(ctx, cfg)
	case chain.Bitcoin:
		m, err = f.bitcoinProvider(cfg)
	case chain.Solana:
		m, err = f.solanaProvider(cfg)
	default:
		return nil, errs.Provider("unsupported chain %q", tag)
	}
	if err != nil {
		return nil, err
	}

	return m, nil
}

// DeFiProvider returns the DeFi provider for tag. Bitcoin has none and fails
// with errs.ErrNoDeFi. A non-nil tx built by ChainProvider for the same
// chain is reused instead of dialling the node again.
//
//nolint:ireturn // the provider type depends on the chain
func (f *Factory) DeFiProvider(ctx context.Context, tag chain.Tag, cfg chain.ProviderConfig, tx txn.Manager) (defi.Provider, error) {
	if tag == chain.Bitcoin {
		return nil, &errs.Error{
			Kind:  errs.KindDeFi,
			Op:    "defi provider",
			Chain: tag.String(),
			Msg:   "Bitcoin does not support DeFi operations",
			Err:   errs.ErrNoDeFi,
		}
	}
	if err := f.check(tag, cfg); err != nil {
		return nil, err
	}

	switch tag {
	case chain.Ethereum:
		evmTx, ok := tx.(*evm.Provider)
		if !ok {
			var err error
			if evmTx, err = f.evmProvider(ctx, cfg); err != nil {
				return nil, err
			}
		}
		return ethdefi.NewProvider(evmTx, f.Prices, ethdefi.Options{
			Addresses:    f.Contracts,
			Tokens:       f.Tokens,
			PollInterval: f.PollInterval,
			Metrics:      f.Metrics,
			LidoAPIURL:   f.LidoAPIURL,
		}), nil
	case chain.Solana:
		solTx, ok := tx.(*solprov.Provider)
		if !ok {
			var err error
			if solTx, err = f.solanaProvider(cfg); err != nil {
				return nil, err
			}
		}
		return soldefi.NewProvider(solTx, f.Prices, soldefi.Options{
			Tokens:       f.Tokens,
			PollInterval: f.PollInterval,
			Metrics:      f.Metrics,
		}), nil
	default:
		return nil, errs.Provider("unsupported chain %q", tag)
	}
}

func (f *Factory) check(tag chain.Tag, cfg chain.ProviderConfig) error {
	if f.Keys == nil {
		return errs.Provider("factory has no key ring")
	}
	if err := cfg.Validate(); err != nil {
		return errs.WrapChain(errs.KindProvider, "provider config", tag, err)
	}
	return nil
}

func (f *Factory) evmProvider(ctx context.Context, cfg chain.ProviderConfig) (*evm.Provider, error) {
	client, err := evm.NewRPCClient(ctx, cfg, f.Metrics)
	if err != nil {
		return nil, errs.WrapChain(errs.KindProvider, "dial", chain.Ethereum, err)
	}

	chainID, err := f.verifyChainID(ctx, client, cfg)
	if err != nil {
		client.Close()
		return nil, err
	}

	f.mu.Lock()
	f.closers = append(f.closers, client.Close)
	f.mu.Unlock()

	l := f.logger()
	l.Info().Int64("chain_id", chainID).Int("endpoints", len(cfg.URLs())).Msg("Connected EVM provider")

	return evm.NewProvider(client, f.Keys, chainID, f.Metrics), nil
}

// ExpectedChainID is the chain id a config asks for: explicit, then inferred
// from the URL, then from the network name. Zero means any.
func ExpectedChainID(cfg chain.ProviderConfig) int64 {
	if cfg.ChainID != 0 {
		return cfg.ChainID
	}
	for _, u := range cfg.URLs() {
		if id := chain.InferEVMChainID(u); id != 0 {
			return id
		}
	}
	return chain.EVMChainIDForNetwork(cfg.Network)
}

func (f *Factory) verifyChainID(ctx context.Context, client evm.Client, cfg chain.ProviderConfig) (int64, error) {
	got, err := client.ChainID(ctx)
	if err != nil {
		return 0, errs.WrapChain(errs.KindProvider, "chain id", chain.Ethereum, err)
	}

	want := ExpectedChainID(cfg)
	if want != 0 && got.Int64() != want {
		return 0, &errs.Error{
			Kind:  errs.KindProvider,
			Op:    "chain id",
			Chain: chain.Ethereum.String(),
			Msg:   "node reports chain id " + got.String() + ", expected " + strconv.FormatInt(want, 10),
			Err:   errs.ErrChainMismatch,
		}
	}

	return got.Int64(), nil
}

func (f *Factory) bitcoinProvider(cfg chain.ProviderConfig) (*bitcoin.Provider, error) {
	params, err := address.BitcoinNetParams(cfg.EffectiveNetwork())
	if err != nil {
		return nil, err
	}
	client, err := bitcoin.NewRPCClient(cfg, f.Metrics)
	if err != nil {
		return nil, errs.WrapChain(errs.KindProvider, "dial", chain.Bitcoin, err)
	}
	return bitcoin.NewProvider(client, f.Keys, params, f.Metrics), nil
}

func (f *Factory) solanaProvider(cfg chain.ProviderConfig) (*solprov.Provider, error) {
	client, err := solprov.NewRPCClient(cfg, f.Metrics)
	if err != nil {
		return nil, errs.WrapChain(errs.KindProvider, "dial", chain.Solana, err)
	}
	return solprov.NewProvider(client, f.Keys, f.Metrics), nil
}

// Close releases every connection the factory opened.
func (f *Factory) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, c := range f.closers {
		c()
	}
	f.closers = nil
}
