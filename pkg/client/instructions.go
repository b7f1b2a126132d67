// Package client builds faucet instructions with solana-go and talks to a
// faucet node over JSON-RPC.
package client

import (
	"fmt"

	"github.com/gagliardetto/solana-go"

	"github.com/devwraithe/simple-faucet-token/pkg/svm/programs/faucet"
	"github.com/devwraithe/simple-faucet-token/pkg/types"
)

// NewInitializeInstruction builds Initialize with accounts
// [faucet (w), administrator (signer), rent sysvar].
func NewInitializeInstruction(programID, faucetAccount, admin solana.PublicKey, distributionAmount uint64) *solana.GenericInstruction {
	inst := faucet.Initialize{DistributionAmount: distributionAmount}
	return solana.NewInstruction(programID, solana.AccountMetaSlice{
		solana.NewAccountMeta(faucetAccount, true, false),
		solana.NewAccountMeta(admin, false, true),
		solana.NewAccountMeta(solana.SysVarRentPubkey, false, false),
	}, inst.Encode())
}

// NewRequestTokensInstruction builds RequestTokens with accounts
// [faucet (w), requester (w), system program].
func NewRequestTokensInstruction(programID, faucetAccount, requester solana.PublicKey) *solana.GenericInstruction {
	inst := faucet.RequestTokens{}
	return solana.NewInstruction(programID, solana.AccountMetaSlice{
		solana.NewAccountMeta(faucetAccount, true, false),
		solana.NewAccountMeta(requester, true, false),
		solana.NewAccountMeta(solana.SystemProgramID, false, false),
	}, inst.Encode())
}

// NewReplenishTokensInstruction builds ReplenishTokens with accounts
// [faucet (w), administrator (w, signer), system program].
func NewReplenishTokensInstruction(programID, faucetAccount, admin solana.PublicKey, amount uint64) *solana.GenericInstruction {
	inst := faucet.ReplenishTokens{Amount: amount}
	return solana.NewInstruction(programID, solana.AccountMetaSlice{
		solana.NewAccountMeta(faucetAccount, true, false),
		solana.NewAccountMeta(admin, true, true),
		solana.NewAccountMeta(solana.SystemProgramID, false, false),
	}, inst.Encode())
}

// ToInstruction converts a solana-go instruction into the ledger's form.
func ToInstruction(ix solana.Instruction) (types.Instruction, error) {
	data, err := ix.Data()
	if err != nil {
		return types.Instruction{}, fmt.Errorf("failed to encode instruction data: %w", err)
	}
	metas := ix.Accounts()
	out := types.Instruction{
		ProgramID: types.Pubkey(ix.ProgramID()),
		Accounts:  make([]types.AccountMeta, len(metas)),
		Data:      data,
	}
	for i, m := range metas {
		out.Accounts[i] = types.AccountMeta{
			Pubkey:     types.Pubkey(m.PublicKey),
			IsSigner:   m.IsSigner,
			IsWritable: m.IsWritable,
		}
	}
	return out, nil
}

// PublicKey converts a ledger pubkey to solana-go's type.
func PublicKey(pk types.Pubkey) solana.PublicKey {
	return solana.PublicKey(pk)
}
