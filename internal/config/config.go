// Package config loads the engine configuration from file and environment.
package config

import (
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/viper"
	"github/chapool/wallet-core/internal/metrics"
	"github/chapool/wallet-core/internal/wallet"
	"github/chapool/wallet-core/internal/wallet/address"
	"github/chapool/wallet-core/internal/wallet/chain"
	"github/chapool/wallet-core/internal/wallet/defi"
	ethdefi "github/chapool/wallet-core/internal/wallet/defi/ethereum"
	"github/chapool/wallet-core/internal/wallet/keystore"
)

const (
	ModuleName = "wallet-core"
	EnvPrefix  = "WALLET"

	PriceSourceStatic      = "static"
	PriceSourceDexScreener = "dexscreener"
)

// Engine holds all engine configuration.
type Engine struct {
	Logger    LoggerConfig                    `mapstructure:"logger"`
	Keystore  KeystoreConfig                  `mapstructure:"keystore"`
	Bitcoin   BitcoinConfig                   `mapstructure:"bitcoin"`
	Providers map[string]chain.ProviderConfig `mapstructure:"providers"`
	DeFi      DeFiConfig                      `mapstructure:"defi"`
}

type LoggerConfig struct {
	Level              string `mapstructure:"level"`
	PrettyPrintConsole bool   `mapstructure:"pretty_print_console"`
}

type KeystoreConfig struct {
	Path string `mapstructure:"path"`
	// Light selects the cheaper scrypt cost, for tests and development.
	Light bool `mapstructure:"light"`
	Words int  `mapstructure:"words"`
}

// ScryptParams returns the keystore KDF cost.
func (k KeystoreConfig) ScryptParams() keystore.ScryptParams {
	if k.Light {
		return keystore.LightScryptParams()
	}
	return keystore.StandardScryptParams()
}

type BitcoinConfig struct {
	// Network drives both address rendering and the Bitcoin provider. When
	// unset it is taken from providers.bitcoin.network, then mainnet.
	Network string `mapstructure:"network"`
	// Format is p2pkh or p2wpkh.
	Format string `mapstructure:"format"`
}

type DeFiConfig struct {
	TokenList      string            `mapstructure:"token_list"`
	PriceSource    string            `mapstructure:"price_source"`
	DexScreenerURL string            `mapstructure:"dexscreener_url"`
	LidoAPIURL     string            `mapstructure:"lido_api_url"`
	PriceCacheTTL  time.Duration     `mapstructure:"price_cache_ttl"`
	PollInterval   time.Duration     `mapstructure:"poll_interval"`
	Contracts      ethdefi.Addresses `mapstructure:"contracts"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.pretty_print_console", false)
	v.SetDefault("keystore.path", "wallet.json")
	v.SetDefault("keystore.light", false)
	v.SetDefault("keystore.words", 24)
	v.SetDefault("bitcoin.network", "")
	v.SetDefault("bitcoin.format", string(address.P2PKH))
	v.SetDefault("defi.token_list", "")
	v.SetDefault("defi.price_source", PriceSourceStatic)
	v.SetDefault("defi.dexscreener_url", defi.DefaultDexScreenerURL)
	v.SetDefault("defi.lido_api_url", ethdefi.DefaultLidoAPIURL)
	v.SetDefault("defi.price_cache_ttl", "1m")
	v.SetDefault("defi.poll_interval", "3s")

	// Registered so WALLET_PROVIDERS_<CHAIN>_<FIELD> is picked up without a file.
	for _, tag := range chain.All() {
		prefix := "providers." + tag.String() + "."
		v.SetDefault(prefix+"type", string(chain.ProviderHTTP))
		v.SetDefault(prefix+"url", "")
		v.SetDefault(prefix+"api_key", "")
		v.SetDefault(prefix+"timeout", chain.DefaultTimeout.String())
		v.SetDefault(prefix+"rate_limit", 0)
		v.SetDefault(prefix+"network", "")
		v.SetDefault(prefix+"chain_id", 0)
	}
}

// Load reads configuration from path (YAML, TOML or JSON) and the
// environment. Environment variables override file values: WALLET_LOGGER_LEVEL,
// WALLET_PROVIDERS_ETHEREUM_URL and so on. An empty path skips the file.
func Load(path string) (*Engine, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrap(err, "failed to read config file")
		}
	}

	var cfg Engine
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal config")
	}

	if err := cfg.resolveBitcoinNetwork(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// ProviderConfigs returns the configured chains. Chains without a URL are
// left out; unknown chain names are an error.
func (c *Engine) ProviderConfigs() (map[chain.Tag]chain.ProviderConfig, error) {
	out := make(map[chain.Tag]chain.ProviderConfig, len(c.Providers))
	for name, pc := range c.Providers {
		tag, err := chain.ParseTag(name)
		if err != nil {
			return nil, err
		}
		if pc.URL == "" {
			continue
		}
		if err := pc.Validate(); err != nil {
			return nil, errors.Wrapf(err, "invalid provider config for %s", name)
		}
		if tag == chain.Bitcoin {
			network, err := mergeBitcoinNetwork(c.Bitcoin.Network, pc.Network)
			if err != nil {
				return nil, err
			}
			pc.Network = network
		}
		out[tag] = pc
	}

	return out, nil
}

// resolveBitcoinNetwork folds bitcoin.network and providers.bitcoin.network
// into one value. Setting both to different networks is an error.
func (c *Engine) resolveBitcoinNetwork() error {
	var providerNetwork string
	for name, pc := range c.Providers {
		if tag, err := chain.ParseTag(name); err == nil && tag == chain.Bitcoin && pc.Network != "" {
			providerNetwork = pc.Network
		}
	}

	network, err := mergeBitcoinNetwork(c.Bitcoin.Network, providerNetwork)
	if err != nil {
		return err
	}
	c.Bitcoin.Network = network

	return nil
}

func mergeBitcoinNetwork(walletNet, providerNet string) (string, error) {
	switch {
	case walletNet == "" && providerNet == "":
		return chain.NetworkMainnet, nil
	case providerNet == "":
		return strings.ToLower(walletNet), nil
	case walletNet == "":
		return strings.ToLower(providerNet), nil
	}

	walletParams, err := address.BitcoinNetParams(walletNet)
	if err != nil {
		return "", err
	}
	providerParams, err := address.BitcoinNetParams(providerNet)
	if err != nil {
		return "", err
	}
	if walletParams.Net != providerParams.Net {
		return "", errors.Errorf("bitcoin.network %q conflicts with providers.bitcoin.network %q", walletNet, providerNet)
	}

	return strings.ToLower(walletNet), nil
}

// Prices builds the configured price source. DexScreener quotes are cached
// and fall back to the static table.
//
//nolint:ireturn // the source type depends on configuration
func (c *Engine) Prices() (defi.PriceSource, error) {
	static := defi.DefaultStaticPrices()

	switch strings.ToLower(c.DeFi.PriceSource) {
	case "", PriceSourceStatic:
		return static, nil
	case PriceSourceDexScreener:
		live := defi.NewCachedPrices(defi.NewDexScreenerPrices(c.DeFi.DexScreenerURL, 0), c.DeFi.PriceCacheTTL)
		return defi.FallbackPrices{live, static}, nil
	default:
		return nil, errors.Errorf("unknown price source %q", c.DeFi.PriceSource)
	}
}

// AddressOptions returns the address rendering settings.
func (c *Engine) AddressOptions() address.Options {
	return address.Options{
		BitcoinNetwork: c.Bitcoin.Network,
		BitcoinFormat:  address.BitcoinFormat(strings.ToLower(c.Bitcoin.Format)),
	}
}

// EngineOptions assembles wallet.Options from the configuration.
func (c *Engine) EngineOptions(m *metrics.Metrics) (wallet.Options, error) {
	providers, err := c.ProviderConfigs()
	if err != nil {
		return wallet.Options{}, err
	}

	prices, err := c.Prices()
	if err != nil {
		return wallet.Options{}, err
	}

	var tokens []defi.Token
	if c.DeFi.TokenList != "" {
		tokens, err = defi.LoadTokenList(c.DeFi.TokenList)
		if err != nil {
			return wallet.Options{}, err
		}
	}

	return wallet.Options{
		Providers:    providers,
		Address:      c.AddressOptions(),
		Metrics:      m,
		Prices:       prices,
		Tokens:       tokens,
		Contracts:    c.DeFi.Contracts,
		PollInterval: c.DeFi.PollInterval,
		LidoAPIURL:   c.DeFi.LidoAPIURL,
	}, nil
}
