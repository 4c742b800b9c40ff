package evm

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	pkgerrors "github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github/chapool/wallet-core/internal/metrics"
	"github/chapool/wallet-core/internal/wallet/chain"
	"golang.org/x/time/rate"
)

// Client is the JSON-RPC surface the EVM provider needs. *ethclient.Client
// satisfies it, as does RPCClient.
type Client interface {
	ChainID(ctx context.Context) (*big.Int, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	TransactionByHash(ctx context.Context, hash common.Hash) (*types.Transaction, bool, error)
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// RPCClient wraps several ethclient connections. Reads fail over to the next
// endpoint on transport errors; sends stay on the current endpoint.
type RPCClient struct {
	urls    []string
	apiKey  string
	timeout time.Duration
	clients []*ethclient.Client
	mu      sync.RWMutex
	current int

	limiter *rate.Limiter
	metrics *metrics.Metrics
	log     zerolog.Logger
}

var _ Client = (*RPCClient)(nil)

// NewRPCClient dials every configured endpoint. Endpoints that fail to dial are
// retried lazily on use; at least one must connect.
func NewRPCClient(ctx context.Context, cfg chain.ProviderConfig, m *metrics.Metrics) (*RPCClient, error) {
	urls := cfg.URLs()
	if len(urls) == 0 {
		return nil, pkgerrors.New("at least one RPC URL is required")
	}

	c := &RPCClient{
		urls:    urls,
		apiKey:  cfg.APIKey,
		timeout: cfg.EffectiveTimeout(),
		clients: make([]*ethclient.Client, len(urls)),
		metrics: m,
		log:     log.With().Str("component", "evm_rpc").Logger(),
	}
	if cfg.RateLimit > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), 1)
	}

	connected := 0
	for i, url := range urls {
		client, err := c.dial(ctx, url)
		if err != nil {
			c.log.Warn().Str("url", url).Err(err).Msg("Failed to connect to RPC node, will retry on use")
			continue
		}
		c.clients[i] = client
		connected++
	}

	if connected == 0 {
		return nil, pkgerrors.New("failed to connect to any RPC node")
	}

	return c, nil
}

func (c *RPCClient) dial(ctx context.Context, url string) (*ethclient.Client, error) {
	var opts []rpc.ClientOption
	if c.apiKey != "" {
		opts = append(opts, rpc.WithHeader("Authorization", "Bearer "+c.apiKey))
	}

	rpcClient, err := rpc.DialOptions(ctx, url, opts...)
	if err != nil {
		return nil, err
	}

	return ethclient.NewClient(rpcClient), nil
}

// Close closes all client connections
func (c *RPCClient) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, client := range c.clients {
		if client != nil {
			client.Close()
		}
	}
}

// call runs fn under the configured per-call deadline.
func (c *RPCClient) call(ctx context.Context, cl *ethclient.Client, fn func(context.Context, *ethclient.Client) error) error {
	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	return fn(callCtx, cl)
}

// read runs fn against the current endpoint and moves on to the next one when
// the node could not be reached at all or did not answer in time.
func (c *RPCClient) read(ctx context.Context, method string, fn func(context.Context, *ethclient.Client) error) error {
	defer c.metrics.ObserveRPC(chain.Ethereum.String(), method, time.Now())

	var lastErr error
	for attempt := 0; attempt < len(c.urls); attempt++ {
		idx, client, err := c.pick(ctx)
		if err != nil {
			return err
		}

		if err := c.wait(ctx); err != nil {
			return err
		}

		err = c.call(ctx, client, fn)
		if err == nil || ctx.Err() != nil {
			return err
		}
		if isNodeAnswer(err) && !errors.Is(err, context.DeadlineExceeded) {
			return err
		}

		lastErr = err
		c.log.Warn().Str("url", c.urls[idx]).Str("method", method).Err(err).Msg("RPC call failed, trying next endpoint")
		c.advance(idx)
	}

	return pkgerrors.Wrap(lastErr, "all RPC clients are unavailable")
}

// write runs fn once against the current endpoint.
func (c *RPCClient) write(ctx context.Context, method string, fn func(context.Context, *ethclient.Client) error) error {
	defer c.metrics.ObserveRPC(chain.Ethereum.String(), method, time.Now())

	_, client, err := c.pick(ctx)
	if err != nil {
		return err
	}
	if err := c.wait(ctx); err != nil {
		return err
	}

	return c.call(ctx, client, fn)
}

func (c *RPCClient) wait(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}
	return c.limiter.Wait(ctx)
}

// pick returns the current client, dialing it first if needed.
func (c *RPCClient) pick(ctx context.Context) (int, *ethclient.Client, error) {
	c.mu.RLock()
	idx := c.current
	client := c.clients[idx]
	c.mu.RUnlock()

	if client != nil {
		return idx, client, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	for i := 0; i < len(c.clients); i++ {
		idx = (c.current + i) % len(c.clients)
		if c.clients[idx] == nil {
			dialed, err := c.dial(ctx, c.urls[idx])
			if err != nil {
				c.log.Warn().Str("url", c.urls[idx]).Err(err).Msg("Reconnect failed")
				continue
			}
			c.clients[idx] = dialed
		}
		c.current = idx
		return idx, c.clients[idx], nil
	}

	return 0, nil, pkgerrors.New("all RPC clients are unavailable")
}

func (c *RPCClient) advance(failed int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.current == failed {
		c.current = (failed + 1) % len(c.clients)
	}
}

// isNodeAnswer separates errors the node returned from transport failures.
func isNodeAnswer(err error) bool {
	if errors.Is(err, ethereum.NotFound) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var rpcErr rpc.Error
	return errors.As(err, &rpcErr)
}

func (c *RPCClient) ChainID(ctx context.Context) (*big.Int, error) {
	var out *big.Int
	err := c.read(ctx, "eth_chainId", func(ctx context.Context, cl *ethclient.Client) (err error) {
		out, err = cl.ChainID(ctx)
		return err
	})
	return out, err
}

func (c *RPCClient) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	var out uint64
	err := c.read(ctx, "eth_getTransactionCount", func(ctx context.Context, cl *ethclient.Client) (err error) {
		out, err = cl.PendingNonceAt(ctx, account)
		return err
	})
	return out, err
}

func (c *RPCClient) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	var out *big.Int
	err := c.read(ctx, "eth_gasPrice", func(ctx context.Context, cl *ethclient.Client) (err error) {
		out, err = cl.SuggestGasPrice(ctx)
		return err
	})
	return out, err
}

func (c *RPCClient) SuggestGasTipCap(ctx context.Context) (*big.Int, error) {
	var out *big.Int
	err := c.read(ctx, "eth_maxPriorityFeePerGas", func(ctx context.Context, cl *ethclient.Client) (err error) {
		out, err = cl.SuggestGasTipCap(ctx)
		return err
	})
	return out, err
}

func (c *RPCClient) HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error) {
	var out *types.Header
	err := c.read(ctx, "eth_getBlockByNumber", func(ctx context.Context, cl *ethclient.Client) (err error) {
		out, err = cl.HeaderByNumber(ctx, number)
		return err
	})
	return out, err
}

func (c *RPCClient) EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error) {
	var out uint64
	err := c.read(ctx, "eth_estimateGas", func(ctx context.Context, cl *ethclient.Client) (err error) {
		out, err = cl.EstimateGas(ctx, msg)
		return err
	})
	return out, err
}

func (c *RPCClient) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	return c.write(ctx, "eth_sendRawTransaction", func(ctx context.Context, cl *ethclient.Client) error {
		return cl.SendTransaction(ctx, tx)
	})
}

func (c *RPCClient) TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	var out *types.Receipt
	err := c.read(ctx, "eth_getTransactionReceipt", func(ctx context.Context, cl *ethclient.Client) (err error) {
		out, err = cl.TransactionReceipt(ctx, txHash)
		return err
	})
	return out, err
}

func (c *RPCClient) TransactionByHash(ctx context.Context, hash common.Hash) (*types.Transaction, bool, error) {
	var (
		out     *types.Transaction
		pending bool
	)
	err := c.read(ctx, "eth_getTransactionByHash", func(ctx context.Context, cl *ethclient.Client) (err error) {
		out, pending, err = cl.TransactionByHash(ctx, hash)
		return err
	})
	return out, pending, err
}

func (c *RPCClient) BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error) {
	var out *big.Int
	err := c.read(ctx, "eth_getBalance", func(ctx context.Context, cl *ethclient.Client) (err error) {
		out, err = cl.BalanceAt(ctx, account, blockNumber)
		return err
	})
	return out, err
}

func (c *RPCClient) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	var out []byte
	err := c.read(ctx, "eth_call", func(ctx context.Context, cl *ethclient.Client) (err error) {
		out, err = cl.CallContract(ctx, msg, blockNumber)
		return err
	})
	return out, err
}
