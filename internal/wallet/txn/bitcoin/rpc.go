package bitcoin

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"github.com/valyala/fasthttp"
	"github/chapool/wallet-core/internal/metrics"
	"github/chapool/wallet-core/internal/wallet/chain"
	"golang.org/x/time/rate"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Bitcoin Core RPC error codes the provider reacts to.
const (
	rpcCodeInvalidAddressOrKey = -5
	rpcCodeVerifyRejected      = -26
)

// Client is the node surface the Bitcoin provider needs.
type Client interface {
	SendRawTransaction(ctx context.Context, rawHex string) (string, error)
	GetRawTransaction(ctx context.Context, txid string) (*RawTransaction, error)
	GetBlockHeader(ctx context.Context, blockHash string) (*BlockHeader, error)
}

// RawTransaction is the verbose getrawtransaction result.
type RawTransaction struct {
	TxID          string           `json:"txid"`
	Hash          string           `json:"hash"`
	Confirmations int64            `json:"confirmations"`
	BlockHash     string           `json:"blockhash"`
	BlockTime     int64            `json:"blocktime"`
	Fee           *decimal.Decimal `json:"fee"`
	Vin           []RawInput       `json:"vin"`
	Vout          []RawOutput      `json:"vout"`
}

type RawInput struct {
	TxID    string     `json:"txid"`
	Vout    uint32     `json:"vout"`
	Prevout *RawOutput `json:"prevout"`
}

type RawOutput struct {
	Value        decimal.Decimal `json:"value"`
	N            uint32          `json:"n"`
	ScriptPubKey struct {
		Address string `json:"address"`
		Type    string `json:"type"`
	} `json:"scriptPubKey"`
}

type BlockHeader struct {
	Hash   string `json:"hash"`
	Height int64  `json:"height"`
	Time   int64  `json:"time"`
}

// RPCError is an error object returned by the node.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("bitcoin rpc error %d: %s", e.Code, e.Message)
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      uint64 `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

type rpcResponse struct {
	Result jsoniter.RawMessage `json:"result"`
	Error  *RPCError           `json:"error"`
}

type endpoint struct {
	uri  string
	auth string
}

// RPCClient speaks Bitcoin Core JSON-RPC over fasthttp. Transport failures
// move on to the next endpoint; node errors are returned as *RPCError.
type RPCClient struct {
	client    *fasthttp.Client
	endpoints []endpoint
	timeout   time.Duration
	limiter   *rate.Limiter
	metrics   *metrics.Metrics
	log       zerolog.Logger

	nextID  atomic.Uint64
	mu      sync.Mutex
	current int
}

var _ Client = (*RPCClient)(nil)

func NewRPCClient(cfg chain.ProviderConfig, m *metrics.Metrics) (*RPCClient, error) {
	urls := cfg.URLs()
	if len(urls) == 0 {
		return nil, errors.New("at least one RPC URL is required")
	}

	c := &RPCClient{
		client:  &fasthttp.Client{Name: "wallet-core"},
		timeout: cfg.EffectiveTimeout(),
		metrics: m,
		log:     log.With().Str("component", "bitcoin_rpc").Logger(),
	}
	if cfg.RateLimit > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), 1)
	}

	for _, raw := range urls {
		ep, err := parseEndpoint(raw, cfg.APIKey)
		if err != nil {
			return nil, err
		}
		c.endpoints = append(c.endpoints, ep)
	}

	return c, nil
}

// parseEndpoint moves URL credentials into an Authorization header. An API key
// wins over userinfo.
func parseEndpoint(raw string, apiKey string) (endpoint, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return endpoint{}, errors.Wrapf(err, "invalid RPC URL %q", raw)
	}

	ep := endpoint{}
	if u.User != nil {
		pass, _ := u.User.Password()
		ep.auth = "Basic " + base64.StdEncoding.EncodeToString([]byte(u.User.Username()+":"+pass))
		u.User = nil
	}
	if apiKey != "" {
		ep.auth = "Bearer " + apiKey
	}
	ep.uri = u.String()

	return ep, nil
}

func (c *RPCClient) call(ctx context.Context, method string, params []any, out any) error {
	defer c.metrics.ObserveRPC(chain.Bitcoin.String(), method, time.Now())

	body, err := json.Marshal(rpcRequest{
		JSONRPC: "1.0",
		ID:      c.nextID.Add(1),
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return errors.Wrapf(err, "failed to encode %s request", method)
	}

	c.mu.Lock()
	start := c.current
	c.mu.Unlock()

	var lastErr error
	for i := 0; i < len(c.endpoints); i++ {
		idx := (start + i) % len(c.endpoints)

		if err := ctx.Err(); err != nil {
			return err
		}
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return err
			}
		}

		resp, err := c.do(ctx, c.endpoints[idx], body)
		if err != nil {
			lastErr = err
			c.log.Warn().Str("method", method).Int("endpoint", idx).Err(err).Msg("Bitcoin RPC endpoint failed, trying next")
			continue
		}

		c.mu.Lock()
		c.current = idx
		c.mu.Unlock()

		if resp.Error != nil {
			return resp.Error
		}
		if out == nil {
			return nil
		}
		if err := json.Unmarshal(resp.Result, out); err != nil {
			return errors.Wrapf(err, "failed to decode %s result", method)
		}
		return nil
	}

	return errors.Wrap(lastErr, "all RPC endpoints are unavailable")
}

func (c *RPCClient) do(ctx context.Context, ep endpoint, body []byte) (*rpcResponse, error) {
	req := fasthttp.AcquireRequest()
	defer fasthttp.ReleaseRequest(req)
	req.SetRequestURI(ep.uri)
	req.Header.SetMethod(fasthttp.MethodPost)
	req.Header.SetContentType("application/json")
	if ep.auth != "" {
		req.Header.Set("Authorization", ep.auth)
	}
	req.SetBody(body)

	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseResponse(resp)

	if deadline, ok := ctx.Deadline(); ok {
		if err := c.client.DoDeadline(req, resp, deadline); err != nil {
			return nil, errors.Wrapf(err, "failed to execute request to %s", ep.uri)
		}
	} else if err := c.client.DoTimeout(req, resp, c.timeout); err != nil {
		return nil, errors.Wrapf(err, "failed to execute request to %s", ep.uri)
	}

	// Bitcoin Core reports RPC errors with 404/500 and a JSON body.
	var out rpcResponse
	if err := json.Unmarshal(resp.Body(), &out); err != nil {
		return nil, errors.Errorf("unexpected response from %s: status %d: %s",
			ep.uri, resp.StatusCode(), strings.TrimSpace(string(resp.Body())))
	}
	if out.Error == nil && resp.StatusCode() != fasthttp.StatusOK {
		return nil, errors.Errorf("unexpected status %d from %s", resp.StatusCode(), ep.uri)
	}

	return &out, nil
}

func (c *RPCClient) SendRawTransaction(ctx context.Context, rawHex string) (string, error) {
	var txid string
	if err := c.call(ctx, "sendrawtransaction", []any{rawHex}, &txid); err != nil {
		return "", err
	}
	return txid, nil
}

func (c *RPCClient) GetRawTransaction(ctx context.Context, txid string) (*RawTransaction, error) {
	var out RawTransaction
	if err := c.call(ctx, "getrawtransaction", []any{txid, 2}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *RPCClient) GetBlockHeader(ctx context.Context, blockHash string) (*BlockHeader, error) {
	var out BlockHeader
	if err := c.call(ctx, "getblockheader", []any{blockHash, true}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// isNotFound reports the node's "No such mempool or blockchain transaction".
func isNotFound(err error) bool {
	var rpcErr *RPCError
	return errors.As(err, &rpcErr) && rpcErr.Code == rpcCodeInvalidAddressOrKey
}
