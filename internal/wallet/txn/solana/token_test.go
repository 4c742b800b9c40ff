package solana_test

import (
	"context"
	"encoding/binary"
	"errors"
	"testing"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github/chapool/wallet-core/internal/wallet/chain"
	"github/chapool/wallet-core/internal/wallet/errs"
	"github/chapool/wallet-core/internal/wallet/txn"
	solprov "github/chapool/wallet-core/internal/wallet/txn/solana"
)

const usdcMint = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"

// mintData is an 82 byte SPL mint with both authorities set.
func mintData(decimals uint8) []byte {
	data := make([]byte, 82)
	binary.LittleEndian.PutUint32(data[0:], 1)
	binary.LittleEndian.PutUint64(data[36:], 1_000_000_000)
	data[44] = decimals
	data[45] = 1
	binary.LittleEndian.PutUint32(data[46:], 1)
	return data
}

// tokenAccountData is a 165 byte SPL token account holding amount.
func tokenAccountData(mint solana.PublicKey, owner solana.PublicKey, amount uint64) []byte {
	data := make([]byte, 165)
	copy(data[0:], mint[:])
	copy(data[32:], owner[:])
	binary.LittleEndian.PutUint64(data[64:], amount)
	binary.LittleEndian.PutUint32(data[72:], 1)
	data[108] = 1
	binary.LittleEndian.PutUint32(data[109:], 1)
	binary.LittleEndian.PutUint32(data[129:], 1)
	return data
}

func programOf(tx *solana.Transaction, i int) solana.PublicKey {
	return tx.Message.AccountKeys[tx.Message.Instructions[i].ProgramIDIndex]
}

func TestSignTokenTransferCreatesDestination(t *testing.T) {
	kr, from := setup(t)
	client := newFakeClient()
	mint := solana.MustPublicKeyFromBase58(usdcMint)
	client.accounts[mint] = &solprov.Account{Owner: solana.TokenProgramID, Data: mintData(6)}
	p := solprov.NewProvider(client, kr, nil)

	to := solana.NewWallet().PublicKey()
	raw, err := p.Sign(context.Background(), &txn.Request{
		Chain:          chain.Solana,
		Type:           txn.TypeTokenTransfer,
		From:           from,
		To:             to.String(),
		Token:          usdcMint,
		Value:          "2500000",
		DerivationPath: testPath,
	})
	require.NoError(t, err)

	tx, err := solana.TransactionFromDecoder(bin.NewBinDecoder(raw))
	require.NoError(t, err)
	require.NoError(t, tx.VerifySignatures())
	require.Len(t, tx.Message.Instructions, 2)

	assert.Equal(t, solana.SPLAssociatedTokenAccountProgramID, programOf(tx, 0))
	assert.Equal(t, solana.TokenProgramID, programOf(tx, 1))

	data := tx.Message.Instructions[1].Data
	require.Len(t, data, 10)
	assert.EqualValues(t, 12, data[0], "TransferChecked")
	assert.Equal(t, uint64(2_500_000), binary.LittleEndian.Uint64(data[1:9]))
	assert.EqualValues(t, 6, data[9])

	destination, _, err := solana.FindAssociatedTokenAddress(to, mint)
	require.NoError(t, err)
	assert.Contains(t, tx.Message.AccountKeys, destination)
}

func TestSignTokenTransferExistingDestination(t *testing.T) {
	kr, from := setup(t)
	client := newFakeClient()
	mint := solana.MustPublicKeyFromBase58(usdcMint)
	to := solana.NewWallet().PublicKey()
	destination, _, err := solana.FindAssociatedTokenAddress(to, mint)
	require.NoError(t, err)

	client.accounts[mint] = &solprov.Account{Owner: solana.TokenProgramID, Data: mintData(6)}
	client.accounts[destination] = &solprov.Account{Owner: solana.TokenProgramID, Data: tokenAccountData(mint, to, 0)}
	p := solprov.NewProvider(client, kr, nil)

	sig, err := p.SendTransaction(context.Background(), &txn.Request{
		Chain: chain.Solana, Type: txn.TypeTokenTransfer, From: from, To: to.String(), Token: usdcMint, Value: "1", DerivationPath: testPath,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, sig)

	tx := client.lastSent()
	require.Len(t, tx.Message.Instructions, 1)
	assert.Equal(t, solana.TokenProgramID, programOf(tx, 0))
}

func TestSignTokenTransferBadMint(t *testing.T) {
	kr, from := setup(t)
	client := newFakeClient()
	p := solprov.NewProvider(client, kr, nil)
	req := &txn.Request{
		Chain: chain.Solana, Type: txn.TypeTokenTransfer, From: from, To: testTo, Token: usdcMint, Value: "1", DerivationPath: testPath,
	}

	_, err := p.Sign(context.Background(), req)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errs.ErrNotFound))

	client.accounts[solana.MustPublicKeyFromBase58(usdcMint)] = &solprov.Account{Owner: solana.SystemProgramID}
	_, err = p.Sign(context.Background(), req)
	require.Error(t, err)
	assert.Equal(t, errs.KindTransaction, errs.KindOf(err))
	assert.Contains(t, err.Error(), "not an SPL token mint")
}

func TestTokenAccount(t *testing.T) {
	kr, _ := setup(t)
	client := newFakeClient()
	mint := solana.MustPublicKeyFromBase58(usdcMint)
	vault := solana.NewWallet().PublicKey()
	client.accounts[vault] = &solprov.Account{Owner: solana.TokenProgramID, Data: tokenAccountData(mint, vault, 987_654)}
	p := solprov.NewProvider(client, kr, nil)

	account, err := p.TokenAccount(context.Background(), vault)
	require.NoError(t, err)
	require.NotNil(t, account)
	assert.Equal(t, uint64(987_654), account.Amount)
	assert.Equal(t, mint, account.Mint)

	missing, err := p.TokenAccount(context.Background(), solana.NewWallet().PublicKey())
	require.NoError(t, err)
	assert.Nil(t, missing)
}
