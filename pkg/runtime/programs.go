package runtime

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/devwraithe/simple-faucet-token/pkg/svm/programs/system"
	"github.com/devwraithe/simple-faucet-token/pkg/svm/syscall"
	"github.com/devwraithe/simple-faucet-token/pkg/types"
)

// ErrProgramNotFound indicates the program is not registered.
var ErrProgramNotFound = errors.New("program not found")

// Program is a native program the runtime can execute.
type Program interface {
	// Execute applies instruction to the context's accounts.
	Execute(ctx *syscall.ExecutionContext, instruction []byte) error
}

// ProgramFunc is a function adapter for Program.
type ProgramFunc func(ctx *syscall.ExecutionContext, instruction []byte) error

// Execute implements Program.
func (f ProgramFunc) Execute(ctx *syscall.ExecutionContext, instruction []byte) error {
	return f(ctx, instruction)
}

// instructionNamer is implemented by programs that can name their
// instructions for metrics and logs.
type instructionNamer interface {
	InstructionName(data []byte) string
}

// ProgramRegistry manages the mapping of program IDs to native programs.
type ProgramRegistry struct {
	mu       sync.RWMutex
	programs map[types.Pubkey]Program
	names    map[types.Pubkey]string
}

// NewProgramRegistry creates a new program registry.
func NewProgramRegistry() *ProgramRegistry {
	return &ProgramRegistry{
		programs: make(map[types.Pubkey]Program),
		names:    make(map[types.Pubkey]string),
	}
}

// RegisterProgram registers a program under id with a name for logs and metrics.
func (r *ProgramRegistry) RegisterProgram(id types.Pubkey, name string, program Program) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.programs[id] = program
	r.names[id] = name
}

// GetProgram returns the program registered for id.
func (r *ProgramRegistry) GetProgram(id types.Pubkey) (Program, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	program, ok := r.programs[id]
	return program, ok
}

// GetProgramName returns the registered name for id, or its base58 form.
func (r *ProgramRegistry) GetProgramName(id types.Pubkey) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if name, ok := r.names[id]; ok {
		return name
	}
	return id.String()
}

// HasProgram checks if a program is registered.
func (r *ProgramRegistry) HasProgram(id types.Pubkey) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.programs[id]
	return ok
}

// ListPrograms returns all registered program IDs in byte order.
func (r *ProgramRegistry) ListPrograms() []types.Pubkey {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]types.Pubkey, 0, len(r.programs))
	for id := range r.programs {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		return string(ids[i][:]) < string(ids[j][:])
	})
	return ids
}

// Count returns the number of registered programs.
func (r *ProgramRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.programs)
}

// InstructionName names the instruction data for program id.
func (r *ProgramRegistry) InstructionName(id types.Pubkey, data []byte) string {
	program, ok := r.GetProgram(id)
	if !ok {
		return "Unknown"
	}
	if namer, ok := program.(instructionNamer); ok {
		return namer.InstructionName(data)
	}
	return "Unknown"
}

// ExecuteProgram implements syscall.ProgramExecutor by dispatching on the
// context's program ID.
func (r *ProgramRegistry) ExecuteProgram(ctx *syscall.ExecutionContext) error {
	program, ok := r.GetProgram(ctx.ProgramID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrProgramNotFound, ctx.ProgramID)
	}
	return program.Execute(ctx, ctx.InstructionData)
}

// RegisterNativePrograms registers the built-in programs.
func RegisterNativePrograms(registry *ProgramRegistry) {
	registry.RegisterProgram(types.SystemProgramID, "system", system.New())
}
