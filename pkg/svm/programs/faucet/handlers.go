package faucet

import (
	"fmt"

	"github.com/devwraithe/simple-faucet-token/pkg/svm/syscall"
	"github.com/devwraithe/simple-faucet-token/pkg/types"
)

// Number of accounts each instruction works with.
const (
	initializeAccounts      = 3
	requestTokensAccounts   = 3
	replenishTokensAccounts = 3
)

func accounts(ctx *syscall.ExecutionContext, n int) ([]*syscall.AccountInfo, error) {
	accs := make([]*syscall.AccountInfo, n)
	for i := range accs {
		acc, err := ctx.GetAccountByIndex(i)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidAccountData, err)
		}
		accs[i] = acc
	}
	return accs, nil
}

func checkOwner(ctx *syscall.ExecutionContext, faucet *syscall.AccountInfo) error {
	if faucet.Owner != ctx.ProgramID {
		ctx.Log("Faucet account must be owned by the program")
		return fmt.Errorf("%w: faucet %s owned by %s", ErrIncorrectProgramId, faucet.Pubkey, faucet.Owner)
	}
	return nil
}

func checkSigner(ctx *syscall.ExecutionContext, admin *syscall.AccountInfo) error {
	if !admin.IsSigner {
		ctx.Log("Admin account must be a signer")
		return fmt.Errorf("%w: administrator %s", ErrMissingRequiredSignature, admin.Pubkey)
	}
	return nil
}

// loadInitialized decodes the faucet record and requires it to be initialized.
func loadInitialized(faucet *syscall.AccountInfo) (*FaucetState, error) {
	state, err := DecodeState(faucet.Data)
	if err != nil {
		return nil, err
	}
	if !state.IsInitialized() {
		return nil, fmt.Errorf("%w: faucet %s", ErrUninitializedAccount, faucet.Pubkey)
	}
	return state, nil
}

// handleInitialize handles the Initialize instruction.
// Account layout:
//
//	[0] faucet account (writable, owned by the program)
//	[1] administrator (signer)
//	[2] rent sysvar
func handleInitialize(ctx *syscall.ExecutionContext, inst *Initialize) error {
	if ctx.AccountCount() < initializeAccounts {
		return fmt.Errorf("%w: Initialize requires %d accounts, got %d", ErrInvalidAccountData, initializeAccounts, ctx.AccountCount())
	}
	accs, err := accounts(ctx, initializeAccounts)
	if err != nil {
		return err
	}
	faucet, admin, rentAcc := accs[0], accs[1], accs[2]

	if err := checkOwner(ctx, faucet); err != nil {
		return err
	}
	if err := checkSigner(ctx, admin); err != nil {
		return err
	}

	if rentAcc.Pubkey != types.SysvarRentID {
		return fmt.Errorf("%w: expected rent sysvar, got %s", ErrInvalidAccountData, rentAcc.Pubkey)
	}
	rent, err := types.RentFromAccountData(rentAcc.Data)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidAccountData, err)
	}
	if !rent.IsExempt(types.Lamports(*faucet.Lamports), uint64(len(faucet.Data))) {
		ctx.Log("Faucet account lamports is below rent-exempt threshold")
		return fmt.Errorf("%w: have %d, need %d", ErrAccountNotRentExempt,
			*faucet.Lamports, rent.MinimumBalance(uint64(len(faucet.Data))))
	}

	if len(faucet.Data) < StateSize {
		return fmt.Errorf("%w: faucet data is %d bytes, need %d", ErrInvalidAccountData, len(faucet.Data), StateSize)
	}
	existing, err := DecodeState(faucet.Data)
	if err != nil {
		return err
	}
	if existing.IsInitialized() {
		return fmt.Errorf("%w: faucet %s", ErrAccountAlreadyInitialized, faucet.Pubkey)
	}
	if !faucet.IsWritable {
		return fmt.Errorf("%w: faucet %s is not writable", ErrInvalidAccountData, faucet.Pubkey)
	}

	state := FaucetState{
		State:              Initialized,
		Admin:              admin.Pubkey,
		DistributionAmount: inst.DistributionAmount,
	}
	state.MarshalInto(faucet.Data)

	ctx.Log("Faucet initialized. Admin: %s, Distribution Amount: %d", state.Admin, state.DistributionAmount)
	return nil
}

// handleRequestTokens handles the RequestTokens instruction.
// Account layout:
//
//	[0] faucet account (writable, owned by the program)
//	[1] requester (writable)
//	[2] system program
func handleRequestTokens(ctx *syscall.ExecutionContext, _ *RequestTokens) error {
	if ctx.AccountCount() != requestTokensAccounts {
		ctx.Log("Incorrect number of accounts")
		return fmt.Errorf("%w: RequestTokens requires exactly %d accounts, got %d", ErrInvalidAccountData, requestTokensAccounts, ctx.AccountCount())
	}
	accs, err := accounts(ctx, requestTokensAccounts)
	if err != nil {
		return err
	}
	faucet, requester, systemProgram := accs[0], accs[1], accs[2]

	if err := checkOwner(ctx, faucet); err != nil {
		return err
	}
	state, err := loadInitialized(faucet)
	if err != nil {
		return err
	}

	if err := transferLamports(ctx, faucet, requester, state.DistributionAmount, systemProgram); err != nil {
		return err
	}

	ctx.Log("Transferred %d lamports to %s", state.DistributionAmount, requester.Pubkey)
	return nil
}

// handleReplenishTokens handles the ReplenishTokens instruction.
// Account layout:
//
//	[0] faucet account (writable, owned by the program)
//	[1] administrator (signer, writable)
//	[2] system program
func handleReplenishTokens(ctx *syscall.ExecutionContext, inst *ReplenishTokens) error {
	if ctx.AccountCount() < replenishTokensAccounts {
		return fmt.Errorf("%w: ReplenishTokens requires %d accounts, got %d", ErrInvalidAccountData, replenishTokensAccounts, ctx.AccountCount())
	}
	accs, err := accounts(ctx, replenishTokensAccounts)
	if err != nil {
		return err
	}
	faucet, admin, systemProgram := accs[0], accs[1], accs[2]

	if err := checkOwner(ctx, faucet); err != nil {
		return err
	}
	if err := checkSigner(ctx, admin); err != nil {
		return err
	}

	state, err := loadInitialized(faucet)
	if err != nil {
		return err
	}
	if state.Admin != admin.Pubkey {
		ctx.Log("Admin account must be the faucet admin")
		return fmt.Errorf("%w: %s is not the faucet administrator", ErrInvalidAccountData, admin.Pubkey)
	}

	if err := transferLamports(ctx, admin, faucet, inst.Amount, systemProgram); err != nil {
		return err
	}

	ctx.Log("Allocated %d lamports to %s", inst.Amount, faucet.Pubkey)
	return nil
}
