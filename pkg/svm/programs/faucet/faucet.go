// Package faucet implements the faucet program: an administrator funds a
// program-owned faucet account, anyone can draw a fixed distribution amount
// from it, and the administrator can top it back up.
package faucet

import (
	"errors"
	"fmt"

	"github.com/devwraithe/simple-faucet-token/pkg/svm/programs/system"
	"github.com/devwraithe/simple-faucet-token/pkg/svm/syscall"
	"github.com/devwraithe/simple-faucet-token/pkg/types"
)

// Program implements the faucet program.
type Program struct {
	// ProgramID is the address the program is deployed at
	ProgramID types.Pubkey
}

// New creates a faucet program deployed at programID.
func New(programID types.Pubkey) *Program {
	return &Program{ProgramID: programID}
}

// Execute decodes instruction and applies it to the context's accounts.
// On error no account has been changed.
func (p *Program) Execute(ctx *syscall.ExecutionContext, instruction []byte) error {
	inst, err := Unpack(instruction)
	if err != nil {
		return err
	}

	switch inst := inst.(type) {
	case *Initialize:
		return handleInitialize(ctx, inst)
	case *RequestTokens:
		return handleRequestTokens(ctx, inst)
	case *ReplenishTokens:
		return handleReplenishTokens(ctx, inst)
	default:
		return fmt.Errorf("%w: unhandled instruction %T", ErrInvalidInstructionData, inst)
	}
}

// Process runs one faucet instruction against accounts outside of a
// runtime. Cross-program invocations are served by the System Program only.
func Process(programID types.Pubkey, accounts []*syscall.AccountInfo, data []byte) error {
	ctx := syscall.NewExecutionContext(programID, accounts, data, uint64(types.DefaultComputeUnitsPerInstruction))
	ctx.SetProgramExecutor(syscall.ProgramExecutorFunc(systemOnly))
	return New(programID).Execute(ctx, data)
}

var errUnsupportedProgram = errors.New("only the System Program can be invoked")

func systemOnly(ctx *syscall.ExecutionContext) error {
	if !system.IsSystemProgram(ctx.ProgramID) {
		return fmt.Errorf("%w: %s", errUnsupportedProgram, ctx.ProgramID)
	}
	return system.New().Execute(ctx, ctx.InstructionData)
}

// InstructionName returns the name of the instruction encoded in data, or
// "Unknown" if it does not decode.
func (p *Program) InstructionName(data []byte) string {
	inst, err := Unpack(data)
	if err != nil {
		return "Unknown"
	}
	return inst.Name()
}
