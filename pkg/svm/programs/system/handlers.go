package system

import (
	"fmt"

	"github.com/devwraithe/simple-faucet-token/pkg/svm/syscall"
	"github.com/devwraithe/simple-faucet-token/pkg/types"
)

// Maximum account data size allowed
const MaxAccountDataSize = syscall.MaxAccountDataSize

// accountAt returns the account at index, failing when too few were passed.
func accountAt(ctx *syscall.ExecutionContext, index int, name string) (*syscall.AccountInfo, error) {
	if ctx.AccountCount() <= index {
		return nil, fmt.Errorf("%w: missing %s", ErrNotEnoughAccountKeys, name)
	}
	return ctx.GetAccountByIndex(index)
}

// handleCreateAccount handles the CreateAccount instruction.
// Account layout:
//
//	[0] funding account (signer, writable)
//	[1] new account (signer, writable)
func handleCreateAccount(ctx *syscall.ExecutionContext, inst *CreateAccountInstruction) error {
	fundingAcc, err := accountAt(ctx, 0, "funding account")
	if err != nil {
		return err
	}
	if !fundingAcc.IsSigner {
		return fmt.Errorf("%w: funding account", ErrAccountNotSigner)
	}
	if !fundingAcc.IsWritable {
		return fmt.Errorf("%w: funding account", ErrAccountNotWritable)
	}

	newAcc, err := accountAt(ctx, 1, "new account")
	if err != nil {
		return err
	}
	if !newAcc.IsSigner {
		return fmt.Errorf("%w: new account", ErrAccountNotSigner)
	}
	if !newAcc.IsWritable {
		return fmt.Errorf("%w: new account", ErrAccountNotWritable)
	}

	// An account that holds lamports, data or a foreign owner already exists
	if *newAcc.Lamports > 0 || len(newAcc.Data) > 0 || newAcc.Owner != types.SystemProgramID {
		return fmt.Errorf("%w: %s", ErrAccountAlreadyExists, newAcc.Pubkey)
	}
	if inst.Space > MaxAccountDataSize {
		return fmt.Errorf("%w: %d > %d", ErrAccountDataTooLarge, inst.Space, MaxAccountDataSize)
	}

	minimum := ctx.Rent.MinimumBalance(inst.Space)
	if types.Lamports(inst.Lamports) < minimum {
		return fmt.Errorf("%w: need %d lamports for %d bytes", ErrAccountNotRentExempt, minimum, inst.Space)
	}
	if *fundingAcc.Lamports < inst.Lamports {
		return fmt.Errorf("%w: need %d lamports, have %d", ErrInsufficientFunds, inst.Lamports, *fundingAcc.Lamports)
	}
	if fundingAcc.Pubkey == newAcc.Pubkey {
		return fmt.Errorf("%w: funding account cannot fund itself", ErrAccountAlreadyExists)
	}

	*fundingAcc.Lamports -= inst.Lamports
	*newAcc.Lamports = inst.Lamports
	newAcc.Data = make([]byte, inst.Space)
	newAcc.Owner = inst.Owner

	ctx.Log("created %s with %d bytes owned by %s", newAcc.Pubkey, inst.Space, inst.Owner)
	return nil
}

// handleAssign handles the Assign instruction.
// Account layout:
//
//	[0] account to assign (signer, writable)
func handleAssign(ctx *syscall.ExecutionContext, inst *AssignInstruction) error {
	acc, err := accountAt(ctx, 0, "account to assign")
	if err != nil {
		return err
	}
	if !acc.IsSigner {
		return fmt.Errorf("%w: account to assign", ErrAccountNotSigner)
	}
	if !acc.IsWritable {
		return fmt.Errorf("%w: account to assign", ErrAccountNotWritable)
	}

	// Assigning to the current owner is a no-op
	if acc.Owner == inst.Owner {
		return nil
	}
	if acc.Owner != types.SystemProgramID {
		return fmt.Errorf("%w: account must be owned by System Program", ErrInvalidAccountOwner)
	}

	acc.Owner = inst.Owner
	return nil
}

// handleTransfer handles the Transfer instruction.
// Account layout:
//
//	[0] source account (signer, writable)
//	[1] destination account (writable)
func handleTransfer(ctx *syscall.ExecutionContext, inst *TransferInstruction) error {
	sourceAcc, err := accountAt(ctx, 0, "source account")
	if err != nil {
		return err
	}
	if !sourceAcc.IsSigner {
		return fmt.Errorf("%w: source account", ErrAccountNotSigner)
	}
	if !sourceAcc.IsWritable {
		return fmt.Errorf("%w: source account", ErrAccountNotWritable)
	}
	if len(sourceAcc.Data) > 0 {
		return fmt.Errorf("%w: %s", ErrTransferFromAccountWithData, sourceAcc.Pubkey)
	}
	if sourceAcc.Owner != types.SystemProgramID {
		return fmt.Errorf("%w: source must be owned by System Program", ErrInvalidAccountOwner)
	}

	destAcc, err := accountAt(ctx, 1, "destination account")
	if err != nil {
		return err
	}
	if !destAcc.IsWritable {
		return fmt.Errorf("%w: destination account", ErrAccountNotWritable)
	}

	if *sourceAcc.Lamports < inst.Lamports {
		return fmt.Errorf("%w: need %d lamports, have %d", ErrInsufficientFunds, inst.Lamports, *sourceAcc.Lamports)
	}
	if sourceAcc.Pubkey == destAcc.Pubkey {
		return nil
	}
	if *destAcc.Lamports > ^uint64(0)-inst.Lamports {
		return fmt.Errorf("%w: crediting %d to %d", ErrArithmeticOverflow, inst.Lamports, *destAcc.Lamports)
	}

	*sourceAcc.Lamports -= inst.Lamports
	*destAcc.Lamports += inst.Lamports
	return nil
}

// handleAllocate handles the Allocate instruction.
// Account layout:
//
//	[0] account to allocate (signer, writable)
func handleAllocate(ctx *syscall.ExecutionContext, inst *AllocateInstruction) error {
	acc, err := accountAt(ctx, 0, "account to allocate")
	if err != nil {
		return err
	}
	if !acc.IsSigner {
		return fmt.Errorf("%w: account to allocate", ErrAccountNotSigner)
	}
	if !acc.IsWritable {
		return fmt.Errorf("%w: account to allocate", ErrAccountNotWritable)
	}
	if acc.Owner != types.SystemProgramID {
		return fmt.Errorf("%w: account must be owned by System Program", ErrInvalidAccountOwner)
	}
	if len(acc.Data) > 0 {
		return fmt.Errorf("%w: account already has data", ErrAccountAlreadyExists)
	}
	if inst.Space > MaxAccountDataSize {
		return fmt.Errorf("%w: %d > %d", ErrAccountDataTooLarge, inst.Space, MaxAccountDataSize)
	}

	acc.Data = make([]byte, inst.Space)
	return nil
}
