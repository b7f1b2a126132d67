package syscall

import (
	"errors"
	"fmt"

	"github.com/devwraithe/simple-faucet-token/pkg/types"
)

// CPI errors
var (
	ErrCPIDepthExceeded           = errors.New("CPI depth exceeded")
	ErrCPIProgramNotExecutable    = errors.New("program account is not executable")
	ErrCPIAccountNotFound         = errors.New("account not found in instruction")
	ErrCPIWritablePrivilege       = errors.New("writable privilege escalation")
	ErrCPISignerPrivilege         = errors.New("signer privilege escalation")
	ErrCPIProgramNotProvided      = errors.New("program account not provided")
	ErrCPIReentrancy              = errors.New("program reentrancy not allowed")
	ErrCPIInstructionDataTooLarge = errors.New("instruction data too large")
	ErrCPITooManyAccounts         = errors.New("too many CPI accounts")
)

const (
	// MaxCPIDepth is the maximum CPI call depth (5 total including top-level).
	MaxCPIDepth = 4

	// MaxCPIAccounts is the maximum number of accounts in a CPI instruction.
	MaxCPIAccounts = 64
)

// ProgramExecutor runs a program against a prepared context. The runtime
// supplies one to every top-level context; CPI children inherit it.
type ProgramExecutor interface {
	ExecuteProgram(ctx *ExecutionContext) error
}

// ProgramExecutorFunc adapts a function to ProgramExecutor.
type ProgramExecutorFunc func(ctx *ExecutionContext) error

// ExecuteProgram implements ProgramExecutor.
func (f ProgramExecutorFunc) ExecuteProgram(ctx *ExecutionContext) error {
	return f(ctx)
}

// Invoke performs a cross-program invocation of ix.
//
// Every account of ix must be available to the caller with at least the
// privileges ix asks for, and the program account must be present and
// executable. The callee runs on copies of the caller's accounts; writable
// copies are propagated back only when the callee succeeds.
func (ctx *ExecutionContext) Invoke(ix types.Instruction) error {
	if err := ctx.ConsumeComputeUnits(CUInvokeBase + uint64(len(ix.Accounts))*CUInvokeAccount); err != nil {
		return err
	}
	if ctx.GetDepth() >= MaxCPIDepth {
		return ErrCPIDepthExceeded
	}
	if len(ix.Accounts) > MaxCPIAccounts {
		return fmt.Errorf("%w: %d > %d", ErrCPITooManyAccounts, len(ix.Accounts), MaxCPIAccounts)
	}
	if len(ix.Data) > MaxInstructionData {
		return fmt.Errorf("%w: %d > %d", ErrCPIInstructionDataTooLarge, len(ix.Data), MaxInstructionData)
	}

	ctx.mu.RLock()
	executor := ctx.executor
	ctx.mu.RUnlock()
	if executor == nil {
		return ErrNoProgramExecutor
	}

	programAcc, err := ctx.GetAccount(ix.ProgramID)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrCPIProgramNotProvided, ix.ProgramID)
	}
	if !programAcc.Executable {
		return fmt.Errorf("%w: %s", ErrCPIProgramNotExecutable, ix.ProgramID)
	}
	if ix.ProgramID == ctx.ProgramID {
		return ErrCPIReentrancy
	}
	for _, caller := range ctx.GetCallerStack() {
		if caller == ix.ProgramID {
			return fmt.Errorf("%w: %s is already on the call stack", ErrCPIReentrancy, ix.ProgramID)
		}
	}

	calleeAccounts, err := ctx.resolveAndValidateAccounts(ix.Accounts)
	if err != nil {
		return err
	}

	child := ctx.createChildContext(ix.ProgramID, calleeAccounts, ix.Data, executor)

	_ = ctx.AddLog(fmt.Sprintf("Program %s invoke [%d]", ix.ProgramID, child.Depth+1))
	err = executor.ExecuteProgram(child)
	if err != nil {
		_ = ctx.AddLog(fmt.Sprintf("Program %s failed: %v", ix.ProgramID, err))
		return err
	}
	_ = ctx.AddLog(fmt.Sprintf("Program %s success", ix.ProgramID))

	return ctx.propagateAccountChanges(calleeAccounts)
}

// resolveAndValidateAccounts validates that the instruction accounts are a
// subset of the caller's accounts with no privilege escalation, and returns
// the callee's copies. A pubkey listed twice maps to the same copy.
func (ctx *ExecutionContext) resolveAndValidateAccounts(metas []types.AccountMeta) ([]*AccountInfo, error) {
	calleeAccounts := make([]*AccountInfo, len(metas))
	byKey := make(map[types.Pubkey]*AccountInfo, len(metas))

	for i, meta := range metas {
		callerAcc, err := ctx.GetAccount(meta.Pubkey)
		if err != nil {
			return nil, fmt.Errorf("%w: %s", ErrCPIAccountNotFound, meta.Pubkey)
		}
		if meta.IsWritable && !callerAcc.IsWritable {
			return nil, fmt.Errorf("%w: account %s", ErrCPIWritablePrivilege, meta.Pubkey)
		}
		if meta.IsSigner && !callerAcc.IsSigner {
			return nil, fmt.Errorf("%w: account %s", ErrCPISignerPrivilege, meta.Pubkey)
		}

		callee, ok := byKey[meta.Pubkey]
		if !ok {
			callee = callerAcc.Clone()
			callee.IsSigner = false
			callee.IsWritable = false
			byKey[meta.Pubkey] = callee
		}
		callee.IsSigner = callee.IsSigner || meta.IsSigner
		callee.IsWritable = callee.IsWritable || meta.IsWritable
		calleeAccounts[i] = callee
	}
	return calleeAccounts, nil
}

// createChildContext creates the callee context. The child shares the
// compute meter and log with the parent.
func (ctx *ExecutionContext) createChildContext(programID types.Pubkey, accounts []*AccountInfo, data []byte, executor ProgramExecutor) *ExecutionContext {
	ctx.mu.RLock()
	defer ctx.mu.RUnlock()

	child := &ExecutionContext{
		ProgramID:       programID,
		Accounts:        accounts,
		InstructionData: data,
		Rent:            ctx.Rent,
		Depth:           ctx.Depth + 1,
		CallerStack:     append(append([]types.Pubkey{}, ctx.CallerStack...), ctx.ProgramID),
		compute:         ctx.compute,
		logs:            ctx.logs,
		executor:        executor,
	}
	child.buildIndex()
	return child
}

// propagateAccountChanges copies writable callee accounts back to the caller.
func (ctx *ExecutionContext) propagateAccountChanges(calleeAccounts []*AccountInfo) error {
	ctx.mu.Lock()
	defer ctx.mu.Unlock()

	seen := make(map[types.Pubkey]bool, len(calleeAccounts))
	for _, calleeAcc := range calleeAccounts {
		if !calleeAcc.IsWritable || seen[calleeAcc.Pubkey] {
			continue
		}
		seen[calleeAcc.Pubkey] = true

		idx, ok := ctx.accountIndex[calleeAcc.Pubkey]
		if !ok {
			continue
		}
		callerAcc := ctx.Accounts[idx]
		if !callerAcc.IsWritable {
			return fmt.Errorf("%w: account %s", ErrReadOnlyModified, calleeAcc.Pubkey)
		}

		*callerAcc.Lamports = *calleeAcc.Lamports
		if len(calleeAcc.Data) != len(callerAcc.Data) {
			callerAcc.Data = make([]byte, len(calleeAcc.Data))
		}
		copy(callerAcc.Data, calleeAcc.Data)
		// The runtime checks that only the previous owner reassigned it.
		callerAcc.Owner = calleeAcc.Owner
	}
	return nil
}
