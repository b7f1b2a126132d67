package faucet

import (
	"errors"
	"fmt"

	"github.com/devwraithe/simple-faucet-token/pkg/svm/programs/system"
	"github.com/devwraithe/simple-faucet-token/pkg/svm/syscall"
	"github.com/devwraithe/simple-faucet-token/pkg/types"
)

// transferLamports moves amount from one account to another. Accounts owned
// by this program are debited directly; anything else goes through a System
// Program Transfer, which needs from to be a signer.
func transferLamports(ctx *syscall.ExecutionContext, from, to *syscall.AccountInfo, amount uint64, systemProgram *syscall.AccountInfo) error {
	if from.Owner == ctx.ProgramID {
		return mapTransferError(ctx.MoveLamports(from, to, amount))
	}

	if systemProgram.Pubkey != types.SystemProgramID {
		return fmt.Errorf("%w: expected System Program, got %s", ErrIncorrectProgramId, systemProgram.Pubkey)
	}
	return mapTransferError(ctx.Invoke(system.Transfer(from.Pubkey, to.Pubkey, amount)))
}

// mapTransferError translates context and System Program failures into the
// faucet's own errors, keeping the original in the chain.
func mapTransferError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, syscall.ErrInsufficientFunds), errors.Is(err, system.ErrInsufficientFunds):
		return fmt.Errorf("%w: %w", ErrInsufficientFunds, err)
	case errors.Is(err, syscall.ErrArithmeticOverflow), errors.Is(err, system.ErrArithmeticOverflow):
		return fmt.Errorf("%w: %w", ErrArithmeticOverflow, err)
	case errors.Is(err, syscall.ErrCPISignerPrivilege), errors.Is(err, system.ErrAccountNotSigner):
		return fmt.Errorf("%w: %w", ErrMissingRequiredSignature, err)
	case errors.Is(err, syscall.ErrAccountNotWritable),
		errors.Is(err, syscall.ErrCPIWritablePrivilege),
		errors.Is(err, system.ErrAccountNotWritable),
		errors.Is(err, system.ErrTransferFromAccountWithData),
		errors.Is(err, system.ErrInvalidAccountOwner):
		return fmt.Errorf("%w: %w", ErrInvalidAccountData, err)
	case errors.Is(err, syscall.ErrCPIProgramNotProvided), errors.Is(err, syscall.ErrCPIProgramNotExecutable):
		return fmt.Errorf("%w: %w", ErrIncorrectProgramId, err)
	default:
		return err
	}
}
