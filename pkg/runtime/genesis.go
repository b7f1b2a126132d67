package runtime

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/devwraithe/simple-faucet-token/pkg/crypto"
	"github.com/devwraithe/simple-faucet-token/pkg/svm/programs/faucet"
	"github.com/devwraithe/simple-faucet-token/pkg/svm/programs/system"
	"github.com/devwraithe/simple-faucet-token/pkg/types"
)

// ErrInvalidGenesis indicates a genesis description that cannot be applied.
var ErrInvalidGenesis = errors.New("invalid genesis")

// Genesis describes a faucet to bring up on an empty ledger.
type Genesis struct {
	// ProgramID is the address the faucet program is registered at.
	ProgramID types.Pubkey

	// Admin pays for the faucet account and becomes its administrator.
	Admin *crypto.Keypair

	// Faucet is the keypair of the faucet account to create.
	Faucet *crypto.Keypair

	// AdminLamports are minted to the administrator before the faucet is
	// created. Zero mints nothing and relies on an already funded
	// administrator. Bootstrap checks that the administrator can cover the
	// faucet balance before minting.
	AdminLamports types.Lamports

	// FaucetLamports is the initial faucet balance. It is raised to the
	// rent-exempt minimum if lower.
	FaucetLamports types.Lamports

	// DistributionAmount is the amount each RequestTokens pays out.
	DistributionAmount uint64
}

// BootstrapResult reports what Bootstrap did.
type BootstrapResult struct {
	Faucet        types.Pubkey
	Admin         types.Pubkey
	FaucetBalance types.Lamports
	Logs          []string
}

// Bootstrap mints the administrator's funds, creates the faucet account
// through the System Program and initializes it. The faucet program must be
// registered at g.ProgramID.
func (e *Executor) Bootstrap(g Genesis) (*BootstrapResult, error) {
	if g.Admin == nil || g.Faucet == nil {
		return nil, fmt.Errorf("%w: admin and faucet keypairs are required", ErrInvalidGenesis)
	}
	if !e.programRegistry.HasProgram(g.ProgramID) {
		return nil, fmt.Errorf("%w: %s", ErrProgramNotFound, g.ProgramID)
	}

	admin := g.Admin.Pubkey()
	faucetKey := g.Faucet.Pubkey()
	if admin == faucetKey {
		return nil, fmt.Errorf("%w: admin and faucet must be different accounts", ErrInvalidGenesis)
	}
	res := &BootstrapResult{Faucet: faucetKey, Admin: admin}

	existing, err := e.accountsDB.GetAccount(faucetKey)
	if err != nil {
		return nil, fmt.Errorf("%w %s: %w", ErrLoadAccount, faucetKey, err)
	}
	if existing != nil && !existing.IsEmpty() {
		return nil, fmt.Errorf("create faucet account: %w: %s", system.ErrAccountAlreadyExists, faucetKey)
	}

	lamports := g.FaucetLamports
	if minBalance := e.rent.MinimumBalance(faucet.StateSize); lamports < minBalance {
		lamports = minBalance
	}

	// Nothing is minted unless the administrator can then pay for the faucet.
	adminAcc, err := e.accountsDB.GetAccount(admin)
	if err != nil {
		return nil, fmt.Errorf("%w %s: %w", ErrLoadAccount, admin, err)
	}
	var available uint64
	if adminAcc != nil {
		available = uint64(adminAcc.Lamports)
	}
	if available+uint64(g.AdminLamports) < available {
		return nil, fmt.Errorf("%w: minting %d to %s overflows", ErrInvalidGenesis, g.AdminLamports, admin)
	}
	if available += uint64(g.AdminLamports); available < uint64(lamports) {
		return nil, fmt.Errorf("%w: administrator %s would hold %d lamports, faucet needs %d",
			ErrInvalidGenesis, admin, available, lamports)
	}

	if g.AdminLamports > 0 {
		if err := e.mint(admin, g.AdminLamports); err != nil {
			return nil, err
		}
	}

	create := system.CreateAccount(admin, faucetKey, uint64(lamports), faucet.StateSize, g.ProgramID)
	out, err := e.Execute(crypto.SignInstruction(create, g.Admin, g.Faucet))
	res.Logs = append(res.Logs, out.Logs...)
	if err != nil {
		return res, fmt.Errorf("create faucet account: %w", err)
	}

	initIx := faucet.NewInitializeInstruction(g.ProgramID, faucetKey, admin, g.DistributionAmount)
	out, err = e.Execute(crypto.SignInstruction(initIx, g.Admin))
	res.Logs = append(res.Logs, out.Logs...)
	if err != nil {
		return res, fmt.Errorf("initialize faucet: %w", err)
	}

	res.FaucetBalance = lamports
	e.logger.Info("faucet bootstrapped",
		zap.Stringer("faucet", faucetKey),
		zap.Stringer("admin", admin),
		zap.Uint64("balance", uint64(lamports)),
		zap.Uint64("distribution_amount", g.DistributionAmount))
	return res, nil
}

// mint credits lamports to a system-owned account outside of any program.
func (e *Executor) mint(pubkey types.Pubkey, lamports types.Lamports) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	acc, err := e.accountsDB.GetAccount(pubkey)
	if err != nil {
		return fmt.Errorf("%w %s: %w", ErrLoadAccount, pubkey, err)
	}
	if acc == nil {
		acc = types.NewAccount(0, types.SystemProgramID)
	}
	if acc.Owner != types.SystemProgramID {
		return fmt.Errorf("%w: cannot mint to %s owned by %s", ErrInvalidGenesis, pubkey, acc.Owner)
	}
	if uint64(acc.Lamports)+uint64(lamports) < uint64(acc.Lamports) {
		return fmt.Errorf("%w: minting %d to %s overflows", ErrInvalidGenesis, lamports, pubkey)
	}
	acc.Lamports += lamports

	if err := e.accountsDB.SetAccount(pubkey, acc); err != nil {
		return fmt.Errorf("%w: %w", ErrCommitFailed, err)
	}
	return nil
}
