package ethereum

import (
	"context"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/valyala/fasthttp"
	"github/chapool/wallet-core/internal/wallet/errs"
)

const DefaultLidoAPIURL = "https://eth-api.lido.fi"

const lidoAPITimeout = 10 * time.Second

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type lidoAPI struct {
	client  *fasthttp.Client
	baseURL string
}

func newLidoAPI(baseURL string) *lidoAPI {
	if baseURL == "" {
		baseURL = DefaultLidoAPIURL
	}
	return &lidoAPI{client: &fasthttp.Client{}, baseURL: strings.TrimRight(baseURL, "/")}
}

type lidoAPRResponse struct {
	Data struct {
		SMAApr *decimal.Decimal `json:"smaApr"`
	} `json:"data"`
}

// StakingAPR returns Lido's seven day moving average APR as a percentage.
func (p *Provider) StakingAPR(ctx context.Context) (decimal.Decimal, error) {
	requestURL := p.lido.baseURL + "/v1/protocol/steth/apr/sma"

	req := fasthttp.AcquireRequest()
	defer fasthttp.ReleaseRequest(req)
	req.SetRequestURI(requestURL)
	req.Header.SetMethod(fasthttp.MethodGet)

	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseResponse(resp)

	var err error
	if deadline, ok := ctx.Deadline(); ok {
		err = p.lido.client.DoDeadline(req, resp, deadline)
	} else {
		err = p.lido.client.DoTimeout(req, resp, lidoAPITimeout)
	}
	if err != nil {
		p.log.Warn().Str("url", requestURL).Err(err).Msg("Lido API request failed")
		return decimal.Zero, errs.Wrap(errs.KindProvider, "staking apr", errors.Wrapf(err, "failed to execute request to %s", requestURL))
	}
	if resp.StatusCode() != fasthttp.StatusOK {
		return decimal.Zero, errs.Provider("Lido API request to %s failed with status %d", requestURL, resp.StatusCode())
	}

	var body lidoAPRResponse
	if err := json.Unmarshal(resp.Body(), &body); err != nil {
		return decimal.Zero, errs.Wrap(errs.KindProvider, "staking apr", errors.Wrap(err, "failed to decode Lido API response"))
	}
	if body.Data.SMAApr == nil {
		return decimal.Zero, errs.Wrap(errs.KindDeFi, "staking apr", errors.Wrap(errs.ErrNotFound, "Lido API returned no APR"))
	}

	return *body.Data.SMAApr, nil
}

// WithdrawalStatus is the state of one withdrawal queue request.
type WithdrawalStatus struct {
	RequestID      string `json:"request_id"`
	AmountOfStETH  string `json:"amount_of_steth"`
	AmountOfShares string `json:"amount_of_shares"`
	Owner          string `json:"owner"`
	Timestamp      uint64 `json:"timestamp"`
	IsFinalized    bool   `json:"is_finalized"`
	IsClaimed      bool   `json:"is_claimed"`
}

// withdrawalRequestStatus mirrors the queue's WithdrawalRequestStatus tuple.
type withdrawalRequestStatus struct {
	AmountOfStETH  *big.Int
	AmountOfShares *big.Int
	Owner          common.Address
	Timestamp      *big.Int
	IsFinalized    bool
	IsClaimed      bool
}

// WithdrawalStatus reads the queue entries of the given request ids.
func (p *Provider) WithdrawalStatus(ctx context.Context, requestIDs ...*big.Int) ([]WithdrawalStatus, error) {
	if len(requestIDs) == 0 {
		return nil, errs.DeFi("at least one withdrawal request id is required")
	}
	for _, id := range requestIDs {
		if id == nil || id.Sign() <= 0 {
			return nil, errs.DeFi("withdrawal request ids must be positive")
		}
	}

	values, err := call(ctx, p.client, p.contracts.withdrawalQueue, withdrawalQueueContract, "getWithdrawalStatus", requestIDs)
	if err != nil {
		return nil, errs.Wrap(errs.KindDeFi, "withdrawal status", err)
	}
	if len(values) != 1 {
		return nil, errs.DeFi("withdrawal queue %s returned no statuses", p.contracts.withdrawalQueue.Hex())
	}

	var raw []withdrawalRequestStatus
	if err := convert(values[0], &raw); err != nil {
		return nil, errs.Wrap(errs.KindDeFi, "withdrawal status", err)
	}
	if len(raw) != len(requestIDs) {
		return nil, errs.DeFi("withdrawal queue returned %d statuses for %d requests", len(raw), len(requestIDs))
	}

	out := make([]WithdrawalStatus, len(raw))
	for i, r := range raw {
		out[i] = WithdrawalStatus{
			RequestID:      requestIDs[i].String(),
			AmountOfStETH:  orZero(r.AmountOfStETH).String(),
			AmountOfShares: orZero(r.AmountOfShares).String(),
			Owner:          r.Owner.Hex(),
			Timestamp:      orZero(r.Timestamp).Uint64(),
			IsFinalized:    r.IsFinalized,
			IsClaimed:      r.IsClaimed,
		}
	}

	return out, nil
}

// convert copies an unpacked tuple value into out, turning the panic
// abi.ConvertType raises on a shape mismatch into an error.
func convert(value any, out *[]withdrawalRequestStatus) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("unexpected withdrawal status shape: %v", r)
		}
	}()

	converted, ok := abi.ConvertType(value, out).(*[]withdrawalRequestStatus)
	if !ok {
		return errors.New("unexpected withdrawal status shape")
	}
	*out = *converted

	return nil
}

func orZero(n *big.Int) *big.Int {
	if n == nil {
		return new(big.Int)
	}
	return n
}
