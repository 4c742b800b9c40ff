package defi

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	pkgerrors "github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github/chapool/wallet-core/internal/metrics"
	"github/chapool/wallet-core/internal/wallet/errs"
	"github/chapool/wallet-core/internal/wallet/txn"
)

// Stage names a saga step.
type Stage string

const (
	StageAllowance Stage = "allowance"
	StageReset     Stage = "reset"
	StageApprove   Stage = "approve"
	StageAction    Stage = "action"
)

// SagaError reports how far an approve-then-act flow got before failing.
// ApprovalHash set with ActionHash empty means the allowance may be
// outstanding; see Saga.Outstanding and Saga.Revoke.
type SagaError struct {
	Stage        Stage
	ApprovalHash string
	ActionHash   string
	Err          error
}

func (e *SagaError) Error() string {
	msg := fmt.Sprintf("saga failed at %s", e.Stage)
	if e.ApprovalHash != "" {
		msg += " (approval " + e.ApprovalHash + ")"
	}
	if e.ActionHash != "" {
		msg += " (action " + e.ActionHash + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *SagaError) Unwrap() error {
	return e.Err
}

// ErrStepFailed is the cause when a step's transaction was mined but reverted.
var ErrStepFailed = errors.New("transaction failed on chain")

// Allowances reads and writes token spending allowances.
type Allowances interface {
	Allowance(ctx context.Context, token string, owner string, spender string) (*big.Int, error)
	ApproveRequest(token string, owner string, spender string, amount *big.Int, derivationPath string) (*txn.Request, error)
}

// Step is one approve-then-act operation. An empty Token means the action
// spends the native asset and needs no approval.
type Step struct {
	Token          string
	Owner          string
	Spender        string
	Amount         *big.Int
	DerivationPath string
	Action         *txn.Request
}

// Outcome is a completed saga.
type Outcome struct {
	ApprovalHash  string
	ActionHash    string
	ActionReceipt *txn.Receipt
}

// Saga runs approve-then-act flows strictly in order, waiting for each
// transaction to reach a terminal state before sending the next. It never
// compensates on its own.
type Saga struct {
	tx           txn.Manager
	allowances   Allowances
	pollInterval time.Duration
	metrics      *metrics.Metrics
	log          zerolog.Logger
}

func NewSaga(tx txn.Manager, allowances Allowances, pollInterval time.Duration, m *metrics.Metrics) *Saga {
	return &Saga{
		tx:           tx,
		allowances:   allowances,
		pollInterval: pollInterval,
		metrics:      m,
		log:          log.With().Str("component", "saga").Logger(),
	}
}

func (s *Saga) fail(stage Stage, approval string, action string, err error) error {
	s.metrics.ObserveSagaStep(string(stage), err)
	s.log.Warn().
		Str("stage", string(stage)).
		Str("approval_hash", approval).
		Str("action_hash", action).
		Err(err).
		Msg("Saga step failed")

	return &errs.Error{
		Kind: errs.KindDeFi,
		Op:   "saga",
		Err:  &SagaError{Stage: stage, ApprovalHash: approval, ActionHash: action, Err: err},
	}
}

// Run approves step.Amount for step.Spender when the current allowance is
// short, then sends step.Action. An existing sufficient allowance is reused.
func (s *Saga) Run(ctx context.Context, step Step) (*Outcome, error) {
	if step.Action == nil {
		return nil, errs.DeFi("saga step has no action")
	}

	out := &Outcome{}

	if step.Token != "" {
		hash, err := s.ensureAllowance(ctx, step)
		if err != nil {
			return nil, err
		}
		out.ApprovalHash = hash
	}

	hash, err := s.tx.SendTransaction(ctx, step.Action)
	if err != nil {
		return nil, s.fail(StageAction, out.ApprovalHash, "", err)
	}
	out.ActionHash = hash

	status, err := txn.WaitForTerminal(ctx, s.tx, hash, s.pollInterval)
	if err != nil {
		return nil, s.fail(StageAction, out.ApprovalHash, hash, err)
	}
	if status != txn.StatusConfirmed {
		return nil, s.fail(StageAction, out.ApprovalHash, hash, ErrStepFailed)
	}
	s.metrics.ObserveSagaStep(string(StageAction), nil)

	receipt, err := s.tx.GetReceipt(ctx, hash)
	if err != nil {
		return nil, s.fail(StageAction, out.ApprovalHash, hash, err)
	}
	out.ActionReceipt = receipt

	return out, nil
}

func (s *Saga) ensureAllowance(ctx context.Context, step Step) (string, error) {
	if step.Amount == nil || step.Amount.Sign() <= 0 {
		return "", errs.DeFi("saga step has no amount to approve")
	}

	current, err := s.allowances.Allowance(ctx, step.Token, step.Owner, step.Spender)
	if err != nil {
		return "", s.fail(StageAllowance, "", "", err)
	}

	if current.Cmp(step.Amount) >= 0 {
		s.log.Info().
			Str("token", step.Token).
			Str("spender", step.Spender).
			Str("allowance", current.String()).
			Msg("Reusing existing allowance")
		return "", nil
	}

	// Tokens such as USDT refuse to change a non-zero allowance directly.
	if current.Sign() > 0 {
		hash, err := s.approve(ctx, step, new(big.Int))
		if err != nil {
			return "", s.fail(StageReset, hash, "", err)
		}
		s.metrics.ObserveSagaStep(string(StageReset), nil)
	}

	hash, err := s.approve(ctx, step, step.Amount)
	if err != nil {
		return "", s.fail(StageApprove, hash, "", err)
	}
	s.metrics.ObserveSagaStep(string(StageApprove), nil)

	return hash, nil
}

// approve sends approve(spender, amount) and waits for it to be mined.
func (s *Saga) approve(ctx context.Context, step Step, amount *big.Int) (string, error) {
	req, err := s.allowances.ApproveRequest(step.Token, step.Owner, step.Spender, amount, step.DerivationPath)
	if err != nil {
		return "", err
	}

	hash, err := s.tx.SendTransaction(ctx, req)
	if err != nil {
		return "", err
	}

	s.log.Info().Str("hash", hash).Str("token", step.Token).Str("amount", amount.String()).Msg("Approval sent")

	status, err := txn.WaitForTerminal(ctx, s.tx, hash, s.pollInterval)
	if err != nil {
		return hash, err
	}
	if status != txn.StatusConfirmed {
		return hash, pkgerrors.Wrapf(ErrStepFailed, "approval %s", hash)
	}

	return hash, nil
}

// Outstanding returns the allowance owner has granted spender. After a failed
// saga a non-zero value means the approval landed but the action did not.
func (s *Saga) Outstanding(ctx context.Context, token string, owner string, spender string) (*big.Int, error) {
	allowance, err := s.allowances.Allowance(ctx, token, owner, spender)
	if err != nil {
		return nil, errs.Wrap(errs.KindDeFi, "outstanding allowance", err)
	}
	return allowance, nil
}

// Revoke sets the allowance back to zero and waits for it to be mined.
func (s *Saga) Revoke(ctx context.Context, token string, owner string, spender string, derivationPath string) (string, error) {
	hash, err := s.approve(ctx, Step{Token: token, Owner: owner, Spender: spender, DerivationPath: derivationPath}, new(big.Int))
	if err != nil {
		return hash, errs.Wrap(errs.KindDeFi, "revoke allowance", err)
	}
	return hash, nil
}
