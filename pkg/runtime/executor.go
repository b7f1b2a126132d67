// Package runtime executes signed instructions against an accounts database.
//
// The Executor loads the instruction's accounts, verifies signatures, runs
// the target native program, checks the ledger invariants every program must
// respect and then commits all writable accounts atomically. A failed
// instruction leaves the database untouched.
package runtime

import (
	"bytes"
	"errors"
	"fmt"
	"math/bits"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/devwraithe/simple-faucet-token/pkg/accounts"
	"github.com/devwraithe/simple-faucet-token/pkg/crypto"
	"github.com/devwraithe/simple-faucet-token/pkg/metrics"
	"github.com/devwraithe/simple-faucet-token/pkg/svm/syscall"
	"github.com/devwraithe/simple-faucet-token/pkg/types"
)

// Executor errors
var (
	// ErrNilInstruction indicates a nil signed instruction.
	ErrNilInstruction = errors.New("nil instruction")

	// ErrSignatureVerification indicates a signer meta without a valid signature.
	ErrSignatureVerification = errors.New("signature verification failed")

	// ErrLoadAccount indicates an account could not be read from the database.
	ErrLoadAccount = errors.New("failed to load account")

	// ErrReadOnlyModified indicates a read-only account was changed.
	ErrReadOnlyModified = errors.New("instruction modified a read-only account")

	// ErrExternalDataModified indicates data or owner of an account was
	// changed by a program that does not own it.
	ErrExternalDataModified = errors.New("instruction modified data of an account it does not own")

	// ErrExternalLamportSpend indicates lamports were debited from an account
	// by a program that does not own it.
	ErrExternalLamportSpend = errors.New("instruction spent from an account it does not own")

	// ErrExecutableModified indicates the executable flag changed.
	ErrExecutableModified = errors.New("instruction changed the executable flag")

	// ErrUnbalancedInstruction indicates total lamports were not conserved.
	ErrUnbalancedInstruction = errors.New("sum of account balances before and after instruction do not match")

	// ErrCommitFailed indicates the database rejected the account writes.
	ErrCommitFailed = errors.New("failed to commit accounts")
)

// syntheticLamports is the balance given to accounts the runtime synthesizes.
const syntheticLamports = 1

// Result is the outcome of one executed instruction.
type Result struct {
	// Logs are the program log lines, including nested invocations.
	Logs []string

	// ComputeUnits is the number of compute units consumed.
	ComputeUnits types.ComputeUnits

	// Deltas lists the accounts committed, in instruction order.
	Deltas []types.AccountDelta
}

// InstructionError wraps a failure of the program being executed.
type InstructionError struct {
	ProgramID types.Pubkey
	Err       error
}

// Error implements the error interface.
func (e *InstructionError) Error() string {
	return fmt.Sprintf("program %s failed: %v", e.ProgramID, e.Err)
}

// Unwrap returns the underlying error.
func (e *InstructionError) Unwrap() error {
	return e.Err
}

// Executor executes signed instructions one at a time.
type Executor struct {
	// mu serializes execution so each instruction sees committed state.
	mu sync.Mutex

	accountsDB        accounts.AccountsDB
	programRegistry   *ProgramRegistry
	computeUnitsLimit types.ComputeUnits
	rent              types.Rent
	logger            *zap.Logger
	metrics           *metrics.Metrics

	watchMu sync.RWMutex
	watched map[types.Pubkey]struct{}
}

// NewExecutor creates a new instruction executor. A nil logger discards logs.
func NewExecutor(db accounts.AccountsDB, registry *ProgramRegistry, logger *zap.Logger) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Executor{
		accountsDB:        db,
		programRegistry:   registry,
		computeUnitsLimit: types.DefaultComputeUnitsPerInstruction,
		rent:              types.DefaultRent(),
		logger:            logger,
		watched:           make(map[types.Pubkey]struct{}),
	}
}

// SetComputeUnitsLimit sets the compute budget of each instruction.
func (e *Executor) SetComputeUnitsLimit(limit types.ComputeUnits) {
	e.computeUnitsLimit = limit
}

// SetRent sets the rent parameters exposed through the rent sysvar.
func (e *Executor) SetRent(rent types.Rent) {
	e.rent = rent
}

// SetMetrics sets the metrics sink. Nil disables metrics.
func (e *Executor) SetMetrics(m *metrics.Metrics) {
	e.metrics = m
}

// WatchBalance reports the balance of pubkey to the faucet balance gauge
// whenever a committed instruction changes it.
func (e *Executor) WatchBalance(pubkey types.Pubkey) {
	e.watchMu.Lock()
	e.watched[pubkey] = struct{}{}
	e.watchMu.Unlock()

	if acc, err := e.accountsDB.GetAccount(pubkey); err == nil && acc != nil {
		e.metrics.SetFaucetBalance(pubkey.String(), uint64(acc.Lamports))
	}
}

// Registry returns the program registry.
func (e *Executor) Registry() *ProgramRegistry {
	return e.programRegistry
}

// AccountsDB returns the accounts database.
func (e *Executor) AccountsDB() accounts.AccountsDB {
	return e.accountsDB
}

// Rent returns the rent parameters in effect.
func (e *Executor) Rent() types.Rent {
	return e.rent
}

// loadedAccount tracks one distinct account of an instruction.
type loadedAccount struct {
	info      *syscall.AccountInfo
	original  *types.Account
	existed   bool
	synthetic bool
}

// Execute runs a signed instruction and commits its effects. The returned
// Result is never nil; on error it carries the logs produced so far and no
// account has been written.
func (e *Executor) Execute(signed *types.SignedInstruction) (*Result, error) {
	result := &Result{}
	if signed == nil {
		return result, ErrNilInstruction
	}
	ix := &signed.Instruction

	start := time.Now()
	programName := e.programRegistry.GetProgramName(ix.ProgramID)
	instructionName := e.programRegistry.InstructionName(ix.ProgramID, ix.Data)

	err := e.execute(signed, result)

	e.metrics.ObserveInstruction(programName, instructionName, err, time.Since(start), uint64(result.ComputeUnits))
	for _, line := range result.Logs {
		e.logger.Debug(line, zap.String("program", programName))
	}
	if err != nil {
		e.logger.Debug("instruction failed",
			zap.String("program", programName),
			zap.String("instruction", instructionName),
			zap.Error(err))
	} else {
		e.logger.Debug("instruction executed",
			zap.String("program", programName),
			zap.String("instruction", instructionName),
			zap.Uint64("compute_units", uint64(result.ComputeUnits)),
			zap.Int("accounts_written", len(result.Deltas)))
	}
	return result, err
}

func (e *Executor) execute(signed *types.SignedInstruction, result *Result) error {
	ix := &signed.Instruction

	if err := crypto.VerifyInstruction(signed); err != nil {
		return fmt.Errorf("%w: %w", ErrSignatureVerification, err)
	}

	program, ok := e.programRegistry.GetProgram(ix.ProgramID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrProgramNotFound, ix.ProgramID)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	infos, loaded, err := e.loadAccounts(ix.Accounts)
	if err != nil {
		return err
	}

	tracker := &invocationTracker{
		registry: e.programRegistry,
		invoked:  map[types.Pubkey]bool{ix.ProgramID: true},
	}
	ctx := syscall.NewExecutionContext(ix.ProgramID, infos, ix.Data, uint64(e.computeUnitsLimit))
	ctx.Rent = e.rent
	ctx.SetProgramExecutor(tracker)

	_ = ctx.AddLog(fmt.Sprintf("Program %s invoke [1]", ix.ProgramID))
	err = program.Execute(ctx, ix.Data)
	if err != nil {
		_ = ctx.AddLog(fmt.Sprintf("Program %s failed: %v", ix.ProgramID, err))
	} else {
		_ = ctx.AddLog(fmt.Sprintf("Program %s success", ix.ProgramID))
	}
	result.Logs = ctx.GetLogs()
	result.ComputeUnits = types.ComputeUnits(ctx.GetComputeUnitsConsumed())
	if err != nil {
		return &InstructionError{ProgramID: ix.ProgramID, Err: err}
	}

	if err := verifyInvariants(loaded, tracker.invoked); err != nil {
		return err
	}

	return e.commit(loaded, result)
}

// loadAccounts builds the account handles for metas. A pubkey listed more
// than once maps to one shared handle whose privileges are the union of its
// metas.
func (e *Executor) loadAccounts(metas []types.AccountMeta) ([]*syscall.AccountInfo, []*loadedAccount, error) {
	infos := make([]*syscall.AccountInfo, len(metas))
	byKey := make(map[types.Pubkey]*loadedAccount, len(metas))
	loaded := make([]*loadedAccount, 0, len(metas))

	for i, meta := range metas {
		la, ok := byKey[meta.Pubkey]
		if !ok {
			acc, existed, synthetic, err := e.loadAccount(meta.Pubkey)
			if err != nil {
				return nil, nil, err
			}
			la = &loadedAccount{
				info:      syscall.NewAccountInfo(meta.Pubkey, acc, false, false),
				original:  acc,
				existed:   existed,
				synthetic: synthetic,
			}
			byKey[meta.Pubkey] = la
			loaded = append(loaded, la)
		}
		la.info.IsSigner = la.info.IsSigner || meta.IsSigner
		la.info.IsWritable = la.info.IsWritable || meta.IsWritable
		infos[i] = la.info
	}
	return infos, loaded, nil
}

// loadAccount returns the account stored at pubkey. Sysvars and registered
// programs are synthesized; a missing account is empty and system-owned.
func (e *Executor) loadAccount(pubkey types.Pubkey) (acc *types.Account, existed, synthetic bool, err error) {
	if pubkey == types.SysvarRentID {
		return &types.Account{
			Lamports: syntheticLamports,
			Data:     e.rent.Marshal(),
			Owner:    types.SysvarOwnerID,
		}, false, true, nil
	}
	if e.programRegistry.HasProgram(pubkey) {
		return &types.Account{
			Lamports:   syntheticLamports,
			Owner:      types.NativeLoaderID,
			Executable: true,
		}, false, true, nil
	}

	stored, err := e.accountsDB.GetAccount(pubkey)
	if err != nil {
		return nil, false, false, fmt.Errorf("%w %s: %w", ErrLoadAccount, pubkey, err)
	}
	if stored == nil {
		return types.NewAccount(0, types.SystemProgramID), false, false, nil
	}
	return stored, true, false, nil
}

// verifyInvariants checks the post-execution state of every account against
// what any program is allowed to do. owners holds the programs that ran.
func verifyInvariants(loaded []*loadedAccount, owners map[types.Pubkey]bool) error {
	var before, after [2]uint64 // 128-bit sums: {hi, lo}

	for _, la := range loaded {
		current := la.info.Account()
		orig := la.original

		before = add128(before, uint64(orig.Lamports))
		after = add128(after, uint64(current.Lamports))

		if current.Equal(orig) {
			continue
		}
		if !la.info.IsWritable || la.synthetic {
			return fmt.Errorf("%w: %s", ErrReadOnlyModified, la.info.Pubkey)
		}
		if current.Executable != orig.Executable {
			return fmt.Errorf("%w: %s", ErrExecutableModified, la.info.Pubkey)
		}
		dataChanged := current.Owner != orig.Owner || !bytes.Equal(current.Data, orig.Data)
		if dataChanged && !owners[orig.Owner] {
			return fmt.Errorf("%w: %s owned by %s", ErrExternalDataModified, la.info.Pubkey, orig.Owner)
		}
		if current.Lamports < orig.Lamports && !owners[orig.Owner] {
			return fmt.Errorf("%w: %s owned by %s", ErrExternalLamportSpend, la.info.Pubkey, orig.Owner)
		}
	}

	if before != after {
		return ErrUnbalancedInstruction
	}
	return nil
}

// commit writes every changed writable account in one batch.
func (e *Executor) commit(loaded []*loadedAccount, result *Result) error {
	refs := make([]types.AccountRef, 0, len(loaded))
	deltas := make([]types.AccountDelta, 0, len(loaded))

	for _, la := range loaded {
		if la.synthetic || !la.info.IsWritable {
			continue
		}
		current := la.info.Account()
		if current.Equal(la.original) && la.existed {
			continue
		}
		if !la.existed && current.IsEmpty() && current.Owner == types.SystemProgramID {
			// Touched but never funded; nothing to store.
			continue
		}

		refs = append(refs, types.AccountRef{Pubkey: la.info.Pubkey, Account: current})
		delta := types.AccountDelta{Pubkey: la.info.Pubkey, NewAccount: current}
		if la.existed {
			delta.OldAccount = la.original
		}
		deltas = append(deltas, delta)
	}

	if len(refs) == 0 {
		return nil
	}
	if err := e.accountsDB.SetAccounts(refs); err != nil {
		return fmt.Errorf("%w: %w", ErrCommitFailed, err)
	}
	result.Deltas = deltas

	e.metrics.SetAccountsCount(e.accountsDB.GetAccountsCount())
	e.watchMu.RLock()
	for _, ref := range refs {
		if _, ok := e.watched[ref.Pubkey]; ok {
			e.metrics.SetFaucetBalance(ref.Pubkey.String(), uint64(ref.Account.Lamports))
		}
	}
	e.watchMu.RUnlock()
	return nil
}

// invocationTracker records every program run through cross-program
// invocation so the invariant check knows which owners were active.
type invocationTracker struct {
	registry *ProgramRegistry
	invoked  map[types.Pubkey]bool
}

// ExecuteProgram implements syscall.ProgramExecutor.
func (t *invocationTracker) ExecuteProgram(ctx *syscall.ExecutionContext) error {
	t.invoked[ctx.ProgramID] = true
	return t.registry.ExecuteProgram(ctx)
}

func add128(sum [2]uint64, v uint64) [2]uint64 {
	lo, carry := bits.Add64(sum[1], v, 0)
	return [2]uint64{sum[0] + carry, lo}
}
