// Package syscall provides the execution context handed to native programs:
// the account handles of the current instruction, the compute meter, the
// program log and cross-program invocation.
package syscall

import (
	"errors"
	"fmt"
	"sync"

	"github.com/devwraithe/simple-faucet-token/pkg/types"
)

// Context errors
var (
	ErrAccountNotFound             = errors.New("account not found")
	ErrAccountNotWritable          = errors.New("account is not writable")
	ErrAccountNotSigner            = errors.New("account is not a signer")
	ErrInsufficientFunds           = errors.New("insufficient funds")
	ErrArithmeticOverflow          = errors.New("arithmetic overflow")
	ErrExternalAccountLamportSpend = errors.New("program debited an account it does not own")
	ErrComputeExhausted            = errors.New("compute units exhausted")
	ErrMaxLogsExceeded             = errors.New("maximum log entries exceeded")
	ErrLogTooLong                  = errors.New("log message too long")
	ErrInvalidAccountIndex         = errors.New("invalid account index")
	ErrReadOnlyModified            = errors.New("read-only account was modified")
	ErrNoProgramExecutor           = errors.New("no program executor for cross-program invocation")
)

// Limits for execution
const (
	MaxLogMessages      = 64
	MaxLogMessageLength = 10000
	MaxInstructionData  = 1232
	MaxAccountDataSize  = 10 * 1024 * 1024 // 10MB
)

// Compute costs charged by the context itself.
const (
	CULog           = 100
	CULamportMove   = 50
	CUInvokeBase    = 1000
	CUInvokeAccount = 10
)

// AccountInfo represents account information available to a program.
type AccountInfo struct {
	Pubkey     types.Pubkey
	Lamports   *uint64 // Pointer allows modification detection
	Data       []byte
	Owner      types.Pubkey
	Executable bool
	IsSigner   bool
	IsWritable bool
}

// NewAccountInfo builds an AccountInfo around a copy of acc.
func NewAccountInfo(pubkey types.Pubkey, acc *types.Account, isSigner, isWritable bool) *AccountInfo {
	lamports := uint64(acc.Lamports)
	info := &AccountInfo{
		Pubkey:     pubkey,
		Lamports:   &lamports,
		Owner:      acc.Owner,
		Executable: acc.Executable,
		IsSigner:   isSigner,
		IsWritable: isWritable,
	}
	if acc.Data != nil {
		info.Data = make([]byte, len(acc.Data))
		copy(info.Data, acc.Data)
	}
	return info
}

// Clone creates a deep copy of AccountInfo.
func (a *AccountInfo) Clone() *AccountInfo {
	if a == nil {
		return nil
	}
	lamports := *a.Lamports
	clone := &AccountInfo{
		Pubkey:     a.Pubkey,
		Lamports:   &lamports,
		Owner:      a.Owner,
		Executable: a.Executable,
		IsSigner:   a.IsSigner,
		IsWritable: a.IsWritable,
	}
	if a.Data != nil {
		clone.Data = make([]byte, len(a.Data))
		copy(clone.Data, a.Data)
	}
	return clone
}

// Account converts the handle back into its persisted form.
func (a *AccountInfo) Account() *types.Account {
	acc := &types.Account{
		Lamports:   types.Lamports(*a.Lamports),
		Owner:      a.Owner,
		Executable: a.Executable,
	}
	if a.Data != nil {
		acc.Data = make([]byte, len(a.Data))
		copy(acc.Data, a.Data)
	}
	return acc
}

// computeMeter is shared between a context and its CPI children.
type computeMeter struct {
	mu        sync.Mutex
	remaining uint64
	max       uint64
}

// logBuffer is shared between a context and its CPI children.
type logBuffer struct {
	mu   sync.Mutex
	logs []string
	max  int
}

// ExecutionContext holds the execution state of one program invocation.
type ExecutionContext struct {
	mu sync.RWMutex

	// Program being executed
	ProgramID types.Pubkey

	// Accounts available to the instruction
	Accounts []*AccountInfo

	// Account index by pubkey for fast lookup
	accountIndex map[types.Pubkey]int

	// Instruction data
	InstructionData []byte

	// Rent parameters in effect for this execution
	Rent types.Rent

	// Depth of CPI calls
	Depth int

	// Stack of callers for CPI
	CallerStack []types.Pubkey

	compute  *computeMeter
	logs     *logBuffer
	executor ProgramExecutor
}

// NewExecutionContext creates a new execution context.
func NewExecutionContext(programID types.Pubkey, accounts []*AccountInfo, instructionData []byte, computeUnits uint64) *ExecutionContext {
	ctx := &ExecutionContext{
		ProgramID:       programID,
		Accounts:        accounts,
		InstructionData: instructionData,
		Rent:            types.DefaultRent(),
		CallerStack:     make([]types.Pubkey, 0, 4),
		compute:         &computeMeter{remaining: computeUnits, max: computeUnits},
		logs:            &logBuffer{logs: make([]string, 0, MaxLogMessages), max: MaxLogMessages},
	}
	ctx.buildIndex()
	return ctx
}

func (ctx *ExecutionContext) buildIndex() {
	ctx.accountIndex = make(map[types.Pubkey]int, len(ctx.Accounts))
	for i, acc := range ctx.Accounts {
		if _, ok := ctx.accountIndex[acc.Pubkey]; !ok {
			ctx.accountIndex[acc.Pubkey] = i
		}
	}
}

// SetProgramExecutor sets the executor used for cross-program invocations.
func (ctx *ExecutionContext) SetProgramExecutor(executor ProgramExecutor) {
	ctx.mu.Lock()
	defer ctx.mu.Unlock()
	ctx.executor = executor
}

// ConsumeComputeUnits deducts compute units.
func (ctx *ExecutionContext) ConsumeComputeUnits(units uint64) error {
	ctx.compute.mu.Lock()
	defer ctx.compute.mu.Unlock()

	if units > ctx.compute.remaining {
		ctx.compute.remaining = 0
		return ErrComputeExhausted
	}
	ctx.compute.remaining -= units
	return nil
}

// GetComputeUnitsRemaining returns remaining compute units.
func (ctx *ExecutionContext) GetComputeUnitsRemaining() uint64 {
	ctx.compute.mu.Lock()
	defer ctx.compute.mu.Unlock()
	return ctx.compute.remaining
}

// GetComputeUnitsConsumed returns consumed compute units.
func (ctx *ExecutionContext) GetComputeUnitsConsumed() uint64 {
	ctx.compute.mu.Lock()
	defer ctx.compute.mu.Unlock()
	return ctx.compute.max - ctx.compute.remaining
}

// AddLog adds a log message.
func (ctx *ExecutionContext) AddLog(message string) error {
	ctx.logs.mu.Lock()
	defer ctx.logs.mu.Unlock()

	if len(ctx.logs.logs) >= ctx.logs.max {
		return ErrMaxLogsExceeded
	}
	if len(message) > MaxLogMessageLength {
		return ErrLogTooLong
	}

	ctx.logs.logs = append(ctx.logs.logs, message)
	return nil
}

// Log records a "Program log:" line. Overflowing the log is not an error
// for the program, so the line is silently dropped.
func (ctx *ExecutionContext) Log(format string, args ...interface{}) {
	if err := ctx.ConsumeComputeUnits(CULog); err != nil {
		return
	}
	_ = ctx.AddLog("Program log: " + fmt.Sprintf(format, args...))
}

// GetLogs returns all log messages.
func (ctx *ExecutionContext) GetLogs() []string {
	ctx.logs.mu.Lock()
	defer ctx.logs.mu.Unlock()
	logs := make([]string, len(ctx.logs.logs))
	copy(logs, ctx.logs.logs)
	return logs
}

// GetAccount returns an account by pubkey.
func (ctx *ExecutionContext) GetAccount(pubkey types.Pubkey) (*AccountInfo, error) {
	ctx.mu.RLock()
	defer ctx.mu.RUnlock()

	idx, ok := ctx.accountIndex[pubkey]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrAccountNotFound, pubkey.String())
	}
	return ctx.Accounts[idx], nil
}

// GetAccountByIndex returns an account by index.
func (ctx *ExecutionContext) GetAccountByIndex(index int) (*AccountInfo, error) {
	ctx.mu.RLock()
	defer ctx.mu.RUnlock()

	if index < 0 || index >= len(ctx.Accounts) {
		return nil, fmt.Errorf("%w: %d", ErrInvalidAccountIndex, index)
	}
	return ctx.Accounts[index], nil
}

// AccountCount returns the number of accounts.
func (ctx *ExecutionContext) AccountCount() int {
	ctx.mu.RLock()
	defer ctx.mu.RUnlock()
	return len(ctx.Accounts)
}

// MoveLamports debits from and credits to directly. The executing program
// must own from, and both accounts must be writable. Nothing is changed on
// error.
func (ctx *ExecutionContext) MoveLamports(from, to *AccountInfo, amount uint64) error {
	if err := ctx.ConsumeComputeUnits(CULamportMove); err != nil {
		return err
	}

	ctx.mu.Lock()
	defer ctx.mu.Unlock()

	if from.Owner != ctx.ProgramID {
		return fmt.Errorf("%w: %s owned by %s", ErrExternalAccountLamportSpend, from.Pubkey, from.Owner)
	}
	if !from.IsWritable {
		return fmt.Errorf("%w: %s", ErrAccountNotWritable, from.Pubkey)
	}
	if !to.IsWritable {
		return fmt.Errorf("%w: %s", ErrAccountNotWritable, to.Pubkey)
	}
	if *from.Lamports < amount {
		return fmt.Errorf("%w: need %d lamports, have %d", ErrInsufficientFunds, amount, *from.Lamports)
	}
	if from.Pubkey == to.Pubkey {
		return nil
	}
	if *to.Lamports > ^uint64(0)-amount {
		return fmt.Errorf("%w: crediting %d to %d", ErrArithmeticOverflow, amount, *to.Lamports)
	}

	*from.Lamports -= amount
	*to.Lamports += amount
	return nil
}

// GetDepth returns the current CPI depth.
func (ctx *ExecutionContext) GetDepth() int {
	ctx.mu.RLock()
	defer ctx.mu.RUnlock()
	return ctx.Depth
}

// GetCallerStack returns the programs that invoked this one, outermost first.
func (ctx *ExecutionContext) GetCallerStack() []types.Pubkey {
	ctx.mu.RLock()
	defer ctx.mu.RUnlock()
	stack := make([]types.Pubkey, len(ctx.CallerStack))
	copy(stack, ctx.CallerStack)
	return stack
}
