package solana

import (
	"bytes"
	"context"
	"encoding/binary"
	"math"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
	pkgerrors "github.com/pkg/errors"
	"github/chapool/wallet-core/internal/wallet/chain"
	"github/chapool/wallet-core/internal/wallet/errs"
)

var (
	StakeProgramID     = solana.MustPublicKeyFromBase58("Stake11111111111111111111111111111111111111")
	StakeConfigID      = solana.MustPublicKeyFromBase58("StakeConfig11111111111111111111111111111111")
	sysvarRent         = solana.MustPublicKeyFromBase58("SysvarRent111111111111111111111111111111111")
	sysvarClock        = solana.MustPublicKeyFromBase58("SysvarC1ock11111111111111111111111111111111")
	sysvarStakeHistory = solana.MustPublicKeyFromBase58("SysvarStakeHistory1111111111111111111111111")
)

// StakeAccountSize is the size of a StakeStateV2 account.
const StakeAccountSize = 200

// Stake program instruction indexes.
const (
	stakeInitialize uint32 = 0
	stakeDelegate   uint32 = 2
	stakeWithdraw   uint32 = 4
	stakeDeactivate uint32 = 5
)

// StakeStateV2 discriminants and field offsets.
const (
	stakeStateInitialized = 1
	stakeStateStake       = 2

	metaSize = 120
)

type StakeStatus string

const (
	StakeActivating   StakeStatus = "activating"
	StakeActive       StakeStatus = "active"
	StakeDeactivating StakeStatus = "deactivating"
	StakeInactive     StakeStatus = "inactive"
)

// StakeInfo describes one stake account. Amounts are lamports.
type StakeInfo struct {
	StakeAccount      string      `json:"stake_account"`
	Validator         string      `json:"validator,omitempty"`
	Amount            uint64      `json:"amount"`
	Status            StakeStatus `json:"status"`
	Rewards           uint64      `json:"rewards"`
	ActivationEpoch   uint64      `json:"activation_epoch,omitempty"`
	DeactivationEpoch uint64      `json:"deactivation_epoch,omitempty"`
}

func stakeInstruction(index uint32, accounts solana.AccountMetaSlice, payload ...[]byte) (solana.Instruction, error) {
	buf := new(bytes.Buffer)
	enc := bin.NewBinEncoder(buf)
	if err := enc.WriteUint32(index, binary.LittleEndian); err != nil {
		return nil, errs.Wrap(errs.KindTransaction, "stake instruction", pkgerrors.Wrap(err, "failed to encode instruction"))
	}
	for _, p := range payload {
		if err := enc.WriteBytes(p, false); err != nil {
			return nil, errs.Wrap(errs.KindTransaction, "stake instruction", pkgerrors.Wrap(err, "failed to encode instruction"))
		}
	}
	return solana.NewInstruction(StakeProgramID, accounts, buf.Bytes()), nil
}

func u64(v uint64) []byte {
	return binary.LittleEndian.AppendUint64(nil, v)
}

// delegateStake creates a stake account funded with amount plus its rent
// reserve, authorizes from as staker and withdrawer, and delegates it to
// vote. The returned key must co-sign.
func (p *Provider) delegateStake(ctx context.Context, from solana.PublicKey, vote solana.PublicKey, amount uint64) ([]solana.Instruction, solana.PrivateKey, error) {
	rent, err := p.client.RentExemption(ctx, StakeAccountSize)
	if err != nil {
		return nil, nil, p.providerErr("rent exemption", err)
	}
	if amount > math.MaxUint64-rent {
		return nil, nil, errs.Transaction("stake amount %d is out of range", amount)
	}

	stakeKey, err := solana.NewRandomPrivateKey()
	if err != nil {
		return nil, nil, errs.Wrap(errs.KindTransaction, "stake", pkgerrors.Wrap(err, "failed to generate stake account key"))
	}
	stake := stakeKey.PublicKey()

	// Authorized { staker, withdrawer } followed by an empty Lockup.
	authorized := append(append([]byte{}, from.Bytes()...), from.Bytes()...)
	lockup := make([]byte, 8+8+32)

	initialize, err := stakeInstruction(stakeInitialize, solana.AccountMetaSlice{
		solana.Meta(stake).WRITE(),
		solana.Meta(sysvarRent),
	}, authorized, lockup)
	if err != nil {
		return nil, nil, err
	}
	delegate, err := stakeInstruction(stakeDelegate, solana.AccountMetaSlice{
		solana.Meta(stake).WRITE(),
		solana.Meta(vote),
		solana.Meta(sysvarClock),
		solana.Meta(sysvarStakeHistory),
		solana.Meta(StakeConfigID),
		solana.Meta(from).SIGNER(),
	})
	if err != nil {
		return nil, nil, err
	}

	p.log.Debug().Str("stake_account", stake.String()).Str("vote_account", vote.String()).Uint64("rent", rent).Msg("Delegating new stake account")

	return []solana.Instruction{
		system.NewCreateAccountInstruction(amount+rent, StakeAccountSize, StakeProgramID, from, stake).Build(),
		initialize,
		delegate,
	}, stakeKey, nil
}

// DeactivateStake starts the cooldown of a delegated stake account whose
// staker is the key at path.
func (p *Provider) DeactivateStake(ctx context.Context, owner string, stakeAccount string, path string) (string, error) {
	authority, err := signingKey(owner)
	if err != nil {
		return "", err
	}
	stake, err := ParsePublicKey(stakeAccount, "stake account")
	if err != nil {
		return "", err
	}

	ix, err := stakeInstruction(stakeDeactivate, solana.AccountMetaSlice{
		solana.Meta(stake).WRITE(),
		solana.Meta(sysvarClock),
		solana.Meta(authority).SIGNER(),
	})
	if err != nil {
		return "", err
	}

	return p.SendInstructions(ctx, authority, path, []solana.Instruction{ix})
}

// WithdrawStake moves lamports out of an inactive stake account back to its
// withdrawer.
func (p *Provider) WithdrawStake(ctx context.Context, owner string, stakeAccount string, lamports uint64, path string) (string, error) {
	authority, err := signingKey(owner)
	if err != nil {
		return "", err
	}
	stake, err := ParsePublicKey(stakeAccount, "stake account")
	if err != nil {
		return "", err
	}
	if lamports == 0 {
		return "", errs.Transaction("withdraw amount must be positive")
	}

	ix, err := stakeInstruction(stakeWithdraw, solana.AccountMetaSlice{
		solana.Meta(stake).WRITE(),
		solana.Meta(authority).WRITE(),
		solana.Meta(sysvarClock),
		solana.Meta(sysvarStakeHistory),
		solana.Meta(authority).SIGNER(),
	}, u64(lamports))
	if err != nil {
		return "", err
	}

	return p.SendInstructions(ctx, authority, path, []solana.Instruction{ix})
}

// StakeInfo reads a stake account. Rewards are the balance above the
// delegated stake and the rent reserve.
func (p *Provider) StakeInfo(ctx context.Context, stakeAccount string) (*StakeInfo, error) {
	key, err := ParsePublicKey(stakeAccount, "stake account")
	if err != nil {
		return nil, err
	}

	account, err := p.client.Account(ctx, key)
	if err != nil {
		return nil, p.providerErr("stake info", err)
	}
	if account == nil {
		return nil, errs.WrapChain(errs.KindTransaction, "stake info", chain.Solana, pkgerrors.Wrapf(errs.ErrNotFound, "stake account %s", stakeAccount))
	}
	if !account.Owner.Equals(StakeProgramID) {
		return nil, errs.Transaction("%s is not a stake account", stakeAccount)
	}

	state, err := decodeStakeState(account.Data)
	if err != nil {
		return nil, errs.Wrap(errs.KindTransaction, "stake info", err)
	}

	info := &StakeInfo{StakeAccount: key.String()}
	switch state.tag {
	case stakeStateInitialized:
		info.Amount = account.Lamports
		info.Status = StakeInactive
		return info, nil
	case stakeStateStake:
	default:
		return nil, errs.Transaction("stake account %s is not initialized", stakeAccount)
	}

	epoch, err := p.client.Epoch(ctx)
	if err != nil {
		return nil, p.providerErr("epoch", err)
	}

	info.Validator = state.voter.String()
	info.Amount = state.stake
	info.ActivationEpoch = state.activation
	info.Status = stakeStatus(state, epoch)
	if state.deactivation != math.MaxUint64 {
		info.DeactivationEpoch = state.deactivation
	}
	if locked := state.stake + state.rentReserve; account.Lamports > locked {
		info.Rewards = account.Lamports - locked
	}

	return info, nil
}

func stakeStatus(s stakeState, epoch uint64) StakeStatus {
	if s.deactivation == math.MaxUint64 {
		if s.activation < epoch {
			return StakeActive
		}
		return StakeActivating
	}
	if s.deactivation < epoch {
		return StakeInactive
	}
	return StakeDeactivating
}

type stakeState struct {
	tag          uint32
	rentReserve  uint64
	voter        solana.PublicKey
	stake        uint64
	activation   uint64
	deactivation uint64
}

// decodeStakeState reads the fields of a bincode StakeStateV2 this package
// reports on.
func decodeStakeState(data []byte) (stakeState, error) {
	var s stakeState

	dec := bin.NewBinDecoder(data)
	tag, err := dec.ReadUint32(binary.LittleEndian)
	if err != nil {
		return s, pkgerrors.Wrap(err, "failed to decode stake state")
	}
	s.tag = tag
	if tag != stakeStateInitialized && tag != stakeStateStake {
		return s, nil
	}

	meta, err := dec.ReadNBytes(metaSize)
	if err != nil {
		return s, pkgerrors.Wrap(err, "failed to decode stake meta")
	}
	s.rentReserve = binary.LittleEndian.Uint64(meta[:8])
	if tag == stakeStateInitialized {
		return s, nil
	}

	voter, err := dec.ReadNBytes(32)
	if err != nil {
		return s, pkgerrors.Wrap(err, "failed to decode delegation")
	}
	s.voter = solana.PublicKeyFromBytes(voter)
	for _, field := range []*uint64{&s.stake, &s.activation, &s.deactivation} {
		if *field, err = dec.ReadUint64(binary.LittleEndian); err != nil {
			return s, pkgerrors.Wrap(err, "failed to decode delegation")
		}
	}

	return s, nil
}
