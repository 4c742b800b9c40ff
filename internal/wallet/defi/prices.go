package defi

import (
	"context"
	"net/url"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/patrickmn/go-cache"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"github.com/valyala/fasthttp"
	"github/chapool/wallet-core/internal/wallet/chain"
	"github/chapool/wallet-core/internal/wallet/errs"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// PriceSource returns a token's USD price.
type PriceSource interface {
	Price(ctx context.Context, token Token) (decimal.Decimal, error)
}

// StaticPrices is a fixed USD price table keyed by upper-case symbol.
type StaticPrices map[string]decimal.Decimal

// DefaultStaticPrices is the built-in table used when no live source is configured.
func DefaultStaticPrices() StaticPrices {
	return StaticPrices{
		"ETH":  decimal.NewFromInt(3000),
		"WETH": decimal.NewFromInt(3000),
		"USDC": decimal.NewFromInt(1),
		"USDT": decimal.NewFromInt(1),
		"DAI":  decimal.NewFromInt(1),
		"SOL":  decimal.NewFromInt(100),
	}
}

func (s StaticPrices) Price(_ context.Context, token Token) (decimal.Decimal, error) {
	p, ok := s[strings.ToUpper(token.Symbol)]
	if !ok {
		return decimal.Zero, errs.Wrap(errs.KindDeFi, "price", errors.Wrapf(errs.ErrNotFound, "no price for %s", token.Symbol))
	}
	return p, nil
}

const DefaultDexScreenerURL = "https://api.dexscreener.com"

type dexPair struct {
	ChainID   string `json:"chainId"`
	BaseToken struct {
		Address string `json:"address"`
		Symbol  string `json:"symbol"`
	} `json:"baseToken"`
	PriceUSD  string `json:"priceUsd"`
	Liquidity struct {
		USD float64 `json:"usd"`
	} `json:"liquidity"`
}

type dexPairsWrapper struct {
	Pairs []dexPair `json:"pairs"`
}

// DexScreenerPrices reads USD prices from the DEX Screener token endpoint,
// taking the most liquid pair where the token is the base asset.
type DexScreenerPrices struct {
	client  *fasthttp.Client
	baseURL string
	timeout time.Duration
	log     zerolog.Logger
}

func NewDexScreenerPrices(baseURL string, timeout time.Duration) *DexScreenerPrices {
	if baseURL == "" {
		baseURL = DefaultDexScreenerURL
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &DexScreenerPrices{
		client:  &fasthttp.Client{},
		baseURL: strings.TrimRight(baseURL, "/"),
		timeout: timeout,
		log:     log.With().Str("component", "dexscreener").Logger(),
	}
}

func dexChainID(tag chain.Tag) (string, bool) {
	switch tag {
	case chain.Ethereum:
		return "ethereum", true
	case chain.Solana:
		return "solana", true
	default:
		return "", false
	}
}

// priceAddress maps native assets to their wrapped contract.
func priceAddress(token Token) string {
	if !token.IsNative() {
		return token.Address
	}
	if token.Chain == chain.Solana {
		return NativeSolanaMint
	}
	return WETHAddress
}

func (d *DexScreenerPrices) Price(ctx context.Context, token Token) (decimal.Decimal, error) {
	chainID, ok := dexChainID(token.Chain)
	if !ok {
		return decimal.Zero, errs.DeFi("no price source for %s tokens", token.Chain.DisplayName())
	}
	addr := priceAddress(token)

	requestURL := d.baseURL + "/tokens/v1/" + chainID + "/" + url.PathEscape(addr)

	req := fasthttp.AcquireRequest()
	defer fasthttp.ReleaseRequest(req)
	req.SetRequestURI(requestURL)
	req.Header.SetMethod(fasthttp.MethodGet)
	req.Header.SetContentTypeBytes([]byte("application/json"))

	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseResponse(resp)

	var err error
	if deadline, ok := ctx.Deadline(); ok {
		err = d.client.DoDeadline(req, resp, deadline)
	} else {
		err = d.client.DoTimeout(req, resp, d.timeout)
	}
	if err != nil {
		d.log.Warn().Str("url", requestURL).Err(err).Msg("DEX Screener request failed")
		return decimal.Zero, errs.Wrap(errs.KindProvider, "price", errors.Wrapf(err, "failed to execute request to %s", requestURL))
	}

	rawBody := resp.Body()
	if resp.StatusCode() != fasthttp.StatusOK {
		return decimal.Zero, errs.Provider("DEX Screener request to %s failed with status %d", requestURL, resp.StatusCode())
	}

	// The endpoint answers with either a bare array or {"pairs": [...]}.
	var pairs []dexPair
	if err := json.Unmarshal(rawBody, &pairs); err != nil {
		var wrapped dexPairsWrapper
		if err := json.Unmarshal(rawBody, &wrapped); err != nil {
			return decimal.Zero, errs.Wrap(errs.KindProvider, "price", errors.Wrap(err, "failed to decode DEX Screener response"))
		}
		pairs = wrapped.Pairs
	}

	best := decimal.Zero
	bestLiquidity := -1.0
	for _, pair := range pairs {
		if !strings.EqualFold(pair.BaseToken.Address, addr) {
			continue
		}
		price, err := decimal.NewFromString(pair.PriceUSD)
		if err != nil || !price.IsPositive() {
			continue
		}
		if pair.Liquidity.USD > bestLiquidity {
			best = price
			bestLiquidity = pair.Liquidity.USD
		}
	}

	if !best.IsPositive() {
		return decimal.Zero, errs.Wrap(errs.KindDeFi, "price", errors.Wrapf(errs.ErrNotFound, "no DEX Screener price for %s", token.Symbol))
	}

	return best, nil
}

// CachedPrices memoizes another source for a fixed TTL.
type CachedPrices struct {
	source PriceSource
	cache  *cache.Cache
}

func NewCachedPrices(source PriceSource, ttl time.Duration) *CachedPrices {
	return &CachedPrices{
		source: source,
		cache:  cache.New(ttl, 2*ttl),
	}
}

func (c *CachedPrices) Price(ctx context.Context, token Token) (decimal.Decimal, error) {
	key := string(token.Chain) + ":" + strings.ToLower(priceAddress(token)) + ":" + strings.ToUpper(token.Symbol)

	if v, ok := c.cache.Get(key); ok {
		if p, ok := v.(decimal.Decimal); ok {
			return p, nil
		}
	}

	p, err := c.source.Price(ctx, token)
	if err != nil {
		return decimal.Zero, err
	}
	c.cache.SetDefault(key, p)

	return p, nil
}

// FallbackPrices asks each source in turn and returns the first price found.
type FallbackPrices []PriceSource

func (f FallbackPrices) Price(ctx context.Context, token Token) (decimal.Decimal, error) {
	var lastErr error = errs.DeFi("no price source configured")
	for _, src := range f {
		p, err := src.Price(ctx, token)
		if err == nil {
			return p, nil
		}
		lastErr = err
	}
	return decimal.Zero, lastErr
}
