package solana

import (
	"context"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	associatedtokenaccount "github.com/gagliardetto/solana-go/programs/associated-token-account"
	"github.com/gagliardetto/solana-go/programs/token"
	pkgerrors "github.com/pkg/errors"
	"github/chapool/wallet-core/internal/wallet/chain"
	"github/chapool/wallet-core/internal/wallet/errs"
)

// Mint reads an SPL mint account.
func (p *Provider) Mint(ctx context.Context, mint solana.PublicKey) (*token.Mint, error) {
	account, err := p.client.Account(ctx, mint)
	if err != nil {
		return nil, p.providerErr("mint", err)
	}
	if account == nil {
		return nil, errs.WrapChain(errs.KindTransaction, "mint", chain.Solana, pkgerrors.Wrapf(errs.ErrNotFound, "mint %s", mint))
	}
	if !account.Owner.Equals(solana.TokenProgramID) {
		return nil, errs.Transaction("%s is not an SPL token mint", mint)
	}

	var out token.Mint
	if err := out.UnmarshalWithDecoder(bin.NewBinDecoder(account.Data)); err != nil {
		return nil, errs.Wrap(errs.KindTransaction, "mint", pkgerrors.Wrapf(err, "failed to decode mint %s", mint))
	}
	return &out, nil
}

// TokenAccount reads an SPL token account, nil when it does not exist.
func (p *Provider) TokenAccount(ctx context.Context, key solana.PublicKey) (*token.Account, error) {
	account, err := p.client.Account(ctx, key)
	if err != nil {
		return nil, p.providerErr("token account", err)
	}
	if account == nil {
		return nil, nil
	}

	var out token.Account
	if err := out.UnmarshalWithDecoder(bin.NewBinDecoder(account.Data)); err != nil {
		return nil, errs.Wrap(errs.KindTransaction, "token account", pkgerrors.Wrapf(err, "failed to decode token account %s", key))
	}
	return &out, nil
}

// AssociatedTokenAccount returns owner's associated account for mint and,
// when it does not exist yet, the instruction that creates it at payer's
// expense.
func (p *Provider) AssociatedTokenAccount(ctx context.Context, payer solana.PublicKey, owner solana.PublicKey, mint solana.PublicKey) (solana.PublicKey, solana.Instruction, error) {
	ata, _, err := solana.FindAssociatedTokenAddress(owner, mint)
	if err != nil {
		return solana.PublicKey{}, nil, errs.Wrap(errs.KindTransaction, "associated token account", pkgerrors.Wrap(err, "failed to find associated token address"))
	}

	account, err := p.client.Account(ctx, ata)
	if err != nil {
		return solana.PublicKey{}, nil, p.providerErr("associated token account", err)
	}
	if account != nil {
		return ata, nil, nil
	}

	return ata, associatedtokenaccount.NewCreateInstruction(payer, owner, mint).Build(), nil
}

func (p *Provider) tokenTransfer(ctx context.Context, from solana.PublicKey, to solana.PublicKey, mint solana.PublicKey, amount uint64) ([]solana.Instruction, error) {
	m, err := p.Mint(ctx, mint)
	if err != nil {
		return nil, err
	}

	source, _, err := solana.FindAssociatedTokenAddress(from, mint)
	if err != nil {
		return nil, errs.Wrap(errs.KindTransaction, "token transfer", pkgerrors.Wrap(err, "failed to find associated token address"))
	}
	destination, create, err := p.AssociatedTokenAccount(ctx, from, to, mint)
	if err != nil {
		return nil, err
	}

	var ixs []solana.Instruction
	if create != nil {
		p.log.Debug().Str("account", destination.String()).Str("mint", mint.String()).Msg("Creating destination token account")
		ixs = append(ixs, create)
	}
	ixs = append(ixs, token.NewTransferCheckedInstruction(amount, m.Decimals, source, mint, destination, from, []solana.PublicKey{}).Build())

	return ixs, nil
}
