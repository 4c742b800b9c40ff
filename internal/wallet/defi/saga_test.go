package defi_test

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github/chapool/wallet-core/internal/metrics"
	"github/chapool/wallet-core/internal/wallet/chain"
	"github/chapool/wallet-core/internal/wallet/defi"
	"github/chapool/wallet-core/internal/wallet/errs"
	"github/chapool/wallet-core/internal/wallet/txn"
)

const (
	sagaToken   = "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48"
	sagaOwner   = "0x9858EfFD232B4033E47d90003D41EC34EcaEda94"
	sagaSpender = "0x7a250d5630B4cF539739dF2C5dAcb4c659F2488D"
)

// fakeManager hands out sequential hashes and reports each one with the
// status scripted for its label, Confirmed by default.
type fakeManager struct {
	mu       sync.Mutex
	sent     []string
	statuses map[string]txn.Status
	byHash   map[string]string
	sendErr  map[string]error
}

func newFakeManager() *fakeManager {
	return &fakeManager{
		statuses: map[string]txn.Status{},
		byHash:   map[string]string{},
		sendErr:  map[string]error{},
	}
}

func (m *fakeManager) Chain() chain.Tag { return chain.Ethereum }

func (m *fakeManager) Sign(context.Context, *txn.Request) ([]byte, error) { return nil, nil }

func (m *fakeManager) Broadcast(context.Context, []byte) (string, error) { return "", nil }

func (m *fakeManager) SendTransaction(_ context.Context, req *txn.Request) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	label := string(req.Data)
	if err := m.sendErr[label]; err != nil {
		return "", err
	}
	m.sent = append(m.sent, label)
	hash := fmt.Sprintf("0x%064x", len(m.sent))
	m.byHash[hash] = label
	return hash, nil
}

func (m *fakeManager) GetStatus(_ context.Context, hash string) (txn.Status, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s, ok := m.statuses[m.byHash[hash]]; ok {
		return s, nil
	}
	return txn.StatusConfirmed, nil
}

func (m *fakeManager) GetReceipt(ctx context.Context, hash string) (*txn.Receipt, error) {
	status, _ := m.GetStatus(ctx, hash)
	return &txn.Receipt{Hash: hash, Status: status, BlockNumber: 1, Fee: "21000"}, nil
}

func (m *fakeManager) GetTransaction(ctx context.Context, hash string) (*txn.Transaction, error) {
	r, _ := m.GetReceipt(ctx, hash)
	tx := &txn.Transaction{Hash: hash}
	tx.Attach(r)
	return tx, nil
}

func (m *fakeManager) labels() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.sent...)
}

type fakeAllowances struct {
	current *big.Int
}

func (a *fakeAllowances) Allowance(context.Context, string, string, string) (*big.Int, error) {
	return new(big.Int).Set(a.current), nil
}

func (a *fakeAllowances) ApproveRequest(token string, owner string, spender string, amount *big.Int, path string) (*txn.Request, error) {
	return &txn.Request{
		Chain:          chain.Ethereum,
		Type:           txn.TypeContractCall,
		From:           owner,
		To:             token,
		Data:           []byte("approve:" + amount.String()),
		DerivationPath: path,
	}, nil
}

func sagaStep(amount int64) defi.Step {
	return defi.Step{
		Token:          sagaToken,
		Owner:          sagaOwner,
		Spender:        sagaSpender,
		Amount:         big.NewInt(amount),
		DerivationPath: "m/44'/60'/0'/0/0",
		Action: &txn.Request{
			Chain: chain.Ethereum,
			Type:  txn.TypeSwap,
			From:  sagaOwner,
			To:    sagaSpender,
			Data:  []byte("action"),
		},
	}
}

func TestSagaApprovesBeforeAction(t *testing.T) {
	mgr := newFakeManager()
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	saga := defi.NewSaga(mgr, &fakeAllowances{current: big.NewInt(0)}, time.Millisecond, m)

	out, err := saga.Run(context.Background(), sagaStep(500))
	require.NoError(t, err)

	assert.Equal(t, []string{"approve:500", "action"}, mgr.labels())
	assert.NotEmpty(t, out.ApprovalHash)
	assert.NotEmpty(t, out.ActionHash)
	assert.NotEqual(t, out.ApprovalHash, out.ActionHash)
	require.NotNil(t, out.ActionReceipt)
	assert.Equal(t, "21000", out.ActionReceipt.Fee)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.SagaSteps.WithLabelValues("approve", metrics.ResultOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SagaSteps.WithLabelValues("action", metrics.ResultOK)))
}

func TestSagaReusesSufficientAllowance(t *testing.T) {
	mgr := newFakeManager()
	saga := defi.NewSaga(mgr, &fakeAllowances{current: big.NewInt(1000)}, time.Millisecond, nil)

	out, err := saga.Run(context.Background(), sagaStep(500))
	require.NoError(t, err)

	assert.Equal(t, []string{"action"}, mgr.labels())
	assert.Empty(t, out.ApprovalHash)
}

func TestSagaResetsNonZeroAllowance(t *testing.T) {
	mgr := newFakeManager()
	saga := defi.NewSaga(mgr, &fakeAllowances{current: big.NewInt(100)}, time.Millisecond, nil)

	_, err := saga.Run(context.Background(), sagaStep(500))
	require.NoError(t, err)

	assert.Equal(t, []string{"approve:0", "approve:500", "action"}, mgr.labels())
}

func TestSagaNativeSkipsApproval(t *testing.T) {
	mgr := newFakeManager()
	saga := defi.NewSaga(mgr, nil, time.Millisecond, nil)

	step := sagaStep(500)
	step.Token = ""

	out, err := saga.Run(context.Background(), step)
	require.NoError(t, err)
	assert.Equal(t, []string{"action"}, mgr.labels())
	assert.Empty(t, out.ApprovalHash)
}

func TestSagaApprovalFailedStopsBeforeAction(t *testing.T) {
	mgr := newFakeManager()
	mgr.statuses["approve:500"] = txn.StatusFailed
	saga := defi.NewSaga(mgr, &fakeAllowances{current: big.NewInt(0)}, time.Millisecond, nil)

	_, err := saga.Run(context.Background(), sagaStep(500))
	require.Error(t, err)

	assert.Equal(t, []string{"approve:500"}, mgr.labels())
	assert.Equal(t, errs.KindDeFi, errs.KindOf(err))
	assert.True(t, errors.Is(err, defi.ErrStepFailed))

	var sagaErr *defi.SagaError
	require.True(t, errors.As(err, &sagaErr))
	assert.Equal(t, defi.StageApprove, sagaErr.Stage)
	assert.NotEmpty(t, sagaErr.ApprovalHash)
	assert.Empty(t, sagaErr.ActionHash)
}

func TestSagaActionFailedReportsOutstandingApproval(t *testing.T) {
	mgr := newFakeManager()
	mgr.statuses["action"] = txn.StatusFailed
	allowances := &fakeAllowances{current: big.NewInt(0)}
	saga := defi.NewSaga(mgr, allowances, time.Millisecond, nil)

	_, err := saga.Run(context.Background(), sagaStep(500))
	require.Error(t, err)

	var sagaErr *defi.SagaError
	require.True(t, errors.As(err, &sagaErr))
	assert.Equal(t, defi.StageAction, sagaErr.Stage)
	assert.NotEmpty(t, sagaErr.ApprovalHash)
	assert.NotEmpty(t, sagaErr.ActionHash)
	assert.Contains(t, err.Error(), sagaErr.ApprovalHash)

	// The fake never updates allowances on its own; simulate the mined approval.
	allowances.current = big.NewInt(500)
	outstanding, err := saga.Outstanding(context.Background(), sagaToken, sagaOwner, sagaSpender)
	require.NoError(t, err)
	assert.Equal(t, "500", outstanding.String())

	hash, err := saga.Revoke(context.Background(), sagaToken, sagaOwner, sagaSpender, "m/44'/60'/0'/0/0")
	require.NoError(t, err)
	assert.NotEmpty(t, hash)
	assert.Equal(t, []string{"approve:500", "action", "approve:0"}, mgr.labels())
}

func TestSagaActionSendError(t *testing.T) {
	mgr := newFakeManager()
	mgr.sendErr["action"] = errs.Provider("node unavailable")
	saga := defi.NewSaga(mgr, &fakeAllowances{current: big.NewInt(0)}, time.Millisecond, nil)

	_, err := saga.Run(context.Background(), sagaStep(500))
	require.Error(t, err)
	assert.Equal(t, errs.KindDeFi, errs.KindOf(err))
	assert.True(t, errs.IsKind(err, errs.KindDeFi))

	var sagaErr *defi.SagaError
	require.True(t, errors.As(err, &sagaErr))
	assert.Equal(t, defi.StageAction, sagaErr.Stage)
	assert.NotEmpty(t, sagaErr.ApprovalHash)
	assert.Empty(t, sagaErr.ActionHash)
}

func TestSagaRejectsEmptyStep(t *testing.T) {
	saga := defi.NewSaga(newFakeManager(), &fakeAllowances{current: big.NewInt(0)}, time.Millisecond, nil)

	_, err := saga.Run(context.Background(), defi.Step{})
	assert.Equal(t, errs.KindDeFi, errs.KindOf(err))

	step := sagaStep(0)
	_, err = saga.Run(context.Background(), step)
	assert.Equal(t, errs.KindDeFi, errs.KindOf(err))
}
