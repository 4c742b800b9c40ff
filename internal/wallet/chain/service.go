package chain

import (
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github/chapool/wallet-core/internal/wallet/errs"
)

const DefaultTimeout = 30 * time.Second

// ParseTag accepts the canonical tag names plus common tickers.
func ParseTag(s string) (Tag, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "ethereum", "eth", "evm":
		return Ethereum, nil
	case "bitcoin", "btc":
		return Bitcoin, nil
	case "solana", "sol":
		return Solana, nil
	default:
		return "", errs.Provider("unknown chain %q", s)
	}
}

// ParseRPCURLs splits a comma separated endpoint list.
func ParseRPCURLs(rpcURL string) []string {
	if rpcURL == "" {
		return nil
	}

	urls := strings.Split(rpcURL, ",")
	result := make([]string, 0, len(urls))

	for _, u := range urls {
		u = strings.TrimSpace(u)
		if u != "" {
			result = append(result, u)
		}
	}

	return result
}

// URLs returns the configured endpoints in priority order.
func (c ProviderConfig) URLs() []string {
	return ParseRPCURLs(c.URL)
}

// EffectiveTimeout returns Timeout or DefaultTimeout when unset.
func (c ProviderConfig) EffectiveTimeout() time.Duration {
	if c.Timeout <= 0 {
		return DefaultTimeout
	}
	return c.Timeout
}

// EffectiveNetwork returns Network or mainnet when unset.
func (c ProviderConfig) EffectiveNetwork() string {
	if c.Network == "" {
		return NetworkMainnet
	}
	return strings.ToLower(c.Network)
}

// Validate checks the config without touching the network.
func (c ProviderConfig) Validate() error {
	urls := c.URLs()
	if len(urls) == 0 {
		return errs.Provider("provider url is required")
	}

	for _, raw := range urls {
		u, err := url.Parse(raw)
		if err != nil {
			return errs.Wrap(errs.KindProvider, "validate provider config", errors.Wrapf(err, "invalid url %q", raw))
		}

		switch c.Type {
		case "", ProviderHTTP:
			if u.Scheme != "http" && u.Scheme != "https" {
				return errs.Provider("url %q is not an http endpoint", raw)
			}
		case ProviderWebSocket:
			if u.Scheme != "ws" && u.Scheme != "wss" {
				return errs.Provider("url %q is not a websocket endpoint", raw)
			}
		case ProviderIPC:
			if u.Scheme != "" && u.Scheme != "unix" {
				return errs.Provider("url %q is not an ipc path", raw)
			}
		default:
			return errs.Provider("unknown provider type %q", c.Type)
		}
	}

	if c.RateLimit < 0 {
		return errs.Provider("rate limit must not be negative")
	}

	return nil
}

// InferEVMChainID guesses the chain id from well known endpoint names.
// Returns 0 when nothing matches.
func InferEVMChainID(rpcURL string) int64 {
	u := strings.ToLower(rpcURL)

	switch {
	case strings.Contains(u, NetworkSepolia):
		return 11155111
	case strings.Contains(u, NetworkGoerli):
		return 5
	case strings.Contains(u, NetworkMainnet):
		return 1
	default:
		return 0
	}
}

// EVMChainIDForNetwork maps a network name to its chain id.
func EVMChainIDForNetwork(network string) int64 {
	switch strings.ToLower(network) {
	case NetworkMainnet:
		return 1
	case NetworkGoerli:
		return 5
	case NetworkSepolia:
		return 11155111
	default:
		return 0
	}
}
