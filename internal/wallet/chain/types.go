package chain

import "time"

// Tag identifies a supported blockchain family.
type Tag string

const (
	Ethereum Tag = "ethereum"
	Bitcoin  Tag = "bitcoin"
	Solana   Tag = "solana"
)

func (t Tag) String() string {
	return string(t)
}

// DisplayName is the human readable chain name used in error messages.
func (t Tag) DisplayName() string {
	switch t {
	case Ethereum:
		return "Ethereum"
	case Bitcoin:
		return "Bitcoin"
	case Solana:
		return "Solana"
	default:
		return string(t)
	}
}

// All lists every supported chain tag.
func All() []Tag {
	return []Tag{Ethereum, Bitcoin, Solana}
}

// Network names accepted in ProviderConfig.Network.
const (
	NetworkMainnet = "mainnet"
	NetworkTestnet = "testnet"
	NetworkRegtest = "regtest"
	NetworkDevnet  = "devnet"
	NetworkSepolia = "sepolia"
	NetworkGoerli  = "goerli"
)

// ProviderType is the transport used to reach a node.
type ProviderType string

const (
	ProviderHTTP      ProviderType = "http"
	ProviderWebSocket ProviderType = "websocket"
	ProviderIPC       ProviderType = "ipc"
)

// ProviderConfig describes how to reach the node(s) of one chain.
type ProviderConfig struct {
	Type ProviderType `mapstructure:"type" json:"type"`
	// URL may hold several comma separated endpoints; the first healthy one is used.
	URL     string        `mapstructure:"url" json:"url"`
	APIKey  string        `mapstructure:"api_key" json:"-"`
	Timeout time.Duration `mapstructure:"timeout" json:"timeout"`
	// RateLimit caps outgoing RPC calls per second. Zero disables limiting.
	RateLimit float64 `mapstructure:"rate_limit" json:"rate_limit"`
	Network   string  `mapstructure:"network" json:"network"`
	// ChainID pins the EVM chain id. Zero means infer from the URL, then from the node.
	ChainID int64 `mapstructure:"chain_id" json:"chain_id"`
}
