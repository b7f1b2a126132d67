package runtime

import (
	"crypto/sha256"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/devwraithe/simple-faucet-token/pkg/accounts"
	"github.com/devwraithe/simple-faucet-token/pkg/crypto"
	"github.com/devwraithe/simple-faucet-token/pkg/metrics"
	"github.com/devwraithe/simple-faucet-token/pkg/svm/programs/faucet"
	"github.com/devwraithe/simple-faucet-token/pkg/svm/programs/system"
	"github.com/devwraithe/simple-faucet-token/pkg/svm/syscall"
	"github.com/devwraithe/simple-faucet-token/pkg/types"
)

var faucetProgramID = testPubkey("faucet-program")

func testPubkey(seed string) types.Pubkey {
	return types.Pubkey(sha256.Sum256([]byte(seed)))
}

func mustKeypair(t *testing.T) *crypto.Keypair {
	t.Helper()
	kp, err := crypto.GenerateKeypair()
	require.NoError(t, err)
	return kp
}

type fixture struct {
	exec   *Executor
	db     *accounts.MemoryDB
	admin  *crypto.Keypair
	faucet *crypto.Keypair
}

func newExecutor(t *testing.T) (*Executor, *accounts.MemoryDB) {
	t.Helper()
	db := accounts.NewMemoryDB()
	registry := NewProgramRegistry()
	RegisterNativePrograms(registry)
	registry.RegisterProgram(faucetProgramID, "faucet", faucet.New(faucetProgramID))
	return NewExecutor(db, registry, zaptest.NewLogger(t)), db
}

// bootstrapped returns a ledger with an initialized faucet holding
// 10,100,000 lamports and a distribution amount of 1000.
func bootstrapped(t *testing.T) *fixture {
	t.Helper()
	exec, db := newExecutor(t)
	f := &fixture{exec: exec, db: db, admin: mustKeypair(t), faucet: mustKeypair(t)}

	_, err := exec.Bootstrap(Genesis{
		ProgramID:          faucetProgramID,
		Admin:              f.admin,
		Faucet:             f.faucet,
		AdminLamports:      100_000_000_000,
		FaucetLamports:     10_100_000,
		DistributionAmount: 1000,
	})
	require.NoError(t, err)
	return f
}

func balance(t *testing.T, db accounts.AccountsDB, pubkey types.Pubkey) types.Lamports {
	t.Helper()
	acc, err := db.GetAccount(pubkey)
	require.NoError(t, err)
	if acc == nil {
		return 0
	}
	return acc.Lamports
}

func dump(t *testing.T, db accounts.AccountsDB) map[types.Pubkey]*types.Account {
	t.Helper()
	out := make(map[types.Pubkey]*types.Account)
	require.NoError(t, db.ForEach(func(pubkey types.Pubkey, account *types.Account) error {
		out[pubkey] = account
		return nil
	}))
	return out
}

func TestBootstrap(t *testing.T) {
	f := bootstrapped(t)

	acc, err := f.db.GetAccount(f.faucet.Pubkey())
	require.NoError(t, err)
	require.NotNil(t, acc)
	assert.Equal(t, faucetProgramID, acc.Owner)
	assert.Equal(t, types.Lamports(10_100_000), acc.Lamports)

	state, err := faucet.DecodeState(acc.Data)
	require.NoError(t, err)
	assert.Equal(t, faucet.FaucetState{
		State:              faucet.Initialized,
		Admin:              f.admin.Pubkey(),
		DistributionAmount: 1000,
	}, *state)

	assert.Equal(t, types.Lamports(100_000_000_000-10_100_000), balance(t, f.db, f.admin.Pubkey()))
}

func TestBootstrap_RaisesToRentMinimum(t *testing.T) {
	exec, db := newExecutor(t)
	admin, faucetKey := mustKeypair(t), mustKeypair(t)

	res, err := exec.Bootstrap(Genesis{
		ProgramID:          faucetProgramID,
		Admin:              admin,
		Faucet:             faucetKey,
		AdminLamports:      10_000_000,
		DistributionAmount: 5,
	})
	require.NoError(t, err)
	assert.Equal(t, types.Lamports(1_176_240), res.FaucetBalance)
	assert.Equal(t, types.Lamports(1_176_240), balance(t, db, faucetKey.Pubkey()))
}

func TestBootstrap_Twice(t *testing.T) {
	f := bootstrapped(t)
	before := dump(t, f.db)

	_, err := f.exec.Bootstrap(Genesis{
		ProgramID: faucetProgramID,
		Admin:     f.admin,
		Faucet:    f.faucet,
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, system.ErrAccountAlreadyExists)
	assert.Equal(t, before, dump(t, f.db))
}

func TestBootstrap_UnderfundedAdminMintsNothing(t *testing.T) {
	exec, db := newExecutor(t)
	admin, faucetKey := mustKeypair(t), mustKeypair(t)

	_, err := exec.Bootstrap(Genesis{
		ProgramID:          faucetProgramID,
		Admin:              admin,
		Faucet:             faucetKey,
		AdminLamports:      1_176_239,
		DistributionAmount: 5,
	})
	require.ErrorIs(t, err, ErrInvalidGenesis)
	assert.Empty(t, dump(t, db))

	_, err = exec.Bootstrap(Genesis{
		ProgramID:     faucetProgramID,
		Admin:         admin,
		Faucet:        admin,
		AdminLamports: 10_000_000,
	})
	require.ErrorIs(t, err, ErrInvalidGenesis)
	assert.Empty(t, dump(t, db))
}

func TestBootstrap_UnregisteredProgram(t *testing.T) {
	exec, _ := newExecutor(t)
	_, err := exec.Bootstrap(Genesis{
		ProgramID: testPubkey("nope"),
		Admin:     mustKeypair(t),
		Faucet:    mustKeypair(t),
	})
	assert.ErrorIs(t, err, ErrProgramNotFound)
}

func TestExecute_RequestTokens(t *testing.T) {
	f := bootstrapped(t)
	requester := testPubkey("requester")

	ix := faucet.NewRequestTokensInstruction(faucetProgramID, f.faucet.Pubkey(), requester)
	res, err := f.exec.Execute(crypto.SignInstruction(ix))
	require.NoError(t, err)

	assert.Equal(t, types.Lamports(10_099_000), balance(t, f.db, f.faucet.Pubkey()))
	assert.Equal(t, types.Lamports(1000), balance(t, f.db, requester))
	assert.Contains(t, res.Logs, "Program log: Transferred 1000 lamports to "+requester.String())
	assert.Equal(t, "Program "+faucetProgramID.String()+" success", res.Logs[len(res.Logs)-1])
	assert.NotZero(t, res.ComputeUnits)

	require.Len(t, res.Deltas, 2)
	assert.Equal(t, f.faucet.Pubkey(), res.Deltas[0].Pubkey)
	assert.False(t, res.Deltas[0].IsCreation())
	assert.Equal(t, requester, res.Deltas[1].Pubkey)
	assert.True(t, res.Deltas[1].IsCreation())
}

func TestExecute_ReplenishThroughSystemProgram(t *testing.T) {
	f := bootstrapped(t)
	adminBefore := balance(t, f.db, f.admin.Pubkey())

	ix := faucet.NewReplenishTokensInstruction(faucetProgramID, f.faucet.Pubkey(), f.admin.Pubkey(), 5000)
	res, err := f.exec.Execute(crypto.SignInstruction(ix, f.admin))
	require.NoError(t, err)

	assert.Equal(t, types.Lamports(10_105_000), balance(t, f.db, f.faucet.Pubkey()))
	assert.Equal(t, adminBefore-5000, balance(t, f.db, f.admin.Pubkey()))
	assert.Contains(t, res.Logs, "Program "+types.SystemProgramID.String()+" invoke [2]")
}

func TestExecute_FailureLeavesLedgerUntouched(t *testing.T) {
	f := bootstrapped(t)

	// A funded stranger with a faucet of their own.
	stranger := mustKeypair(t)
	_, err := f.exec.Bootstrap(Genesis{ProgramID: faucetProgramID, Admin: stranger, Faucet: mustKeypair(t), AdminLamports: 10_000_000})
	require.NoError(t, err)
	before := dump(t, f.db)

	ix := faucet.NewReplenishTokensInstruction(faucetProgramID, f.faucet.Pubkey(), stranger.Pubkey(), 5000)
	res, err := f.exec.Execute(crypto.SignInstruction(ix, stranger))
	require.Error(t, err)
	assert.ErrorIs(t, err, faucet.ErrInvalidAccountData)
	assert.Equal(t, faucet.CodeInvalidAccountData, faucet.ErrorCode(err))
	assert.True(t, strings.HasSuffix(res.Logs[len(res.Logs)-1], "failed: "+err.(*InstructionError).Err.Error()))
	assert.Equal(t, before, dump(t, f.db))

	// Replenish more than the administrator holds.
	ix = faucet.NewReplenishTokensInstruction(faucetProgramID, f.faucet.Pubkey(), f.admin.Pubkey(), 1<<62)
	_, err = f.exec.Execute(crypto.SignInstruction(ix, f.admin))
	assert.ErrorIs(t, err, faucet.ErrInsufficientFunds)
	assert.Equal(t, before, dump(t, f.db))
}

func TestExecute_ForgedSigner(t *testing.T) {
	f := bootstrapped(t)
	before := dump(t, f.db)
	attacker := mustKeypair(t)

	ix := faucet.NewReplenishTokensInstruction(faucetProgramID, f.faucet.Pubkey(), f.admin.Pubkey(), 5000)

	// No signature at all for the administrator.
	_, err := f.exec.Execute(crypto.SignInstruction(ix, attacker))
	assert.ErrorIs(t, err, ErrSignatureVerification)
	assert.ErrorIs(t, err, crypto.ErrMissingSignature)

	// The attacker's signature filed under the administrator's key.
	signed := crypto.SignInstruction(ix, attacker)
	signed.Signatures[f.admin.Pubkey()] = signed.Signatures[attacker.Pubkey()]
	_, err = f.exec.Execute(signed)
	assert.ErrorIs(t, err, ErrSignatureVerification)
	assert.ErrorIs(t, err, crypto.ErrVerificationFailed)

	assert.Equal(t, before, dump(t, f.db))
}

func TestExecute_UnknownProgram(t *testing.T) {
	exec, _ := newExecutor(t)
	_, err := exec.Execute(crypto.SignInstruction(types.Instruction{ProgramID: testPubkey("missing")}))
	assert.ErrorIs(t, err, ErrProgramNotFound)

	_, err = exec.Execute(nil)
	assert.ErrorIs(t, err, ErrNilInstruction)
}

// rogue registers a program that applies mutate to its accounts.
func rogue(t *testing.T, mutate func(ctx *syscall.ExecutionContext) error) (*Executor, *accounts.MemoryDB, types.Pubkey) {
	t.Helper()
	exec, db := newExecutor(t)
	id := testPubkey("rogue")
	exec.Registry().RegisterProgram(id, "rogue", ProgramFunc(func(ctx *syscall.ExecutionContext, _ []byte) error {
		return mutate(ctx)
	}))
	return exec, db, id
}

func TestExecute_Invariants(t *testing.T) {
	owned := testPubkey("owned")
	other := testPubkey("other")

	tests := []struct {
		name     string
		writable bool
		mutate   func(ctx *syscall.ExecutionContext) error
		wantErr  error
	}{
		{
			name: "read-only lamports",
			mutate: func(ctx *syscall.ExecutionContext) error {
				*ctx.Accounts[1].Lamports++
				*ctx.Accounts[0].Lamports--
				return nil
			},
			wantErr: ErrReadOnlyModified,
		},
		{
			name:     "lamports from nothing",
			writable: true,
			mutate: func(ctx *syscall.ExecutionContext) error {
				*ctx.Accounts[0].Lamports += 10
				return nil
			},
			wantErr: ErrUnbalancedInstruction,
		},
		{
			name:     "spend from foreign account",
			writable: true,
			mutate: func(ctx *syscall.ExecutionContext) error {
				*ctx.Accounts[1].Lamports -= 10
				*ctx.Accounts[0].Lamports += 10
				return nil
			},
			wantErr: ErrExternalLamportSpend,
		},
		{
			name:     "write foreign data",
			writable: true,
			mutate: func(ctx *syscall.ExecutionContext) error {
				ctx.Accounts[1].Data = []byte{1}
				return nil
			},
			wantErr: ErrExternalDataModified,
		},
		{
			name:     "reassign foreign account",
			writable: true,
			mutate: func(ctx *syscall.ExecutionContext) error {
				ctx.Accounts[1].Owner = ctx.ProgramID
				return nil
			},
			wantErr: ErrExternalDataModified,
		},
		{
			name:     "flip executable",
			writable: true,
			mutate: func(ctx *syscall.ExecutionContext) error {
				ctx.Accounts[0].Executable = true
				return nil
			},
			wantErr: ErrExecutableModified,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			exec, db, id := rogue(t, tt.mutate)
			require.NoError(t, db.SetAccount(owned, types.NewAccount(100, id)))
			require.NoError(t, db.SetAccount(other, types.NewAccount(100, types.SystemProgramID)))
			before := dump(t, db)

			ix := types.Instruction{
				ProgramID: id,
				Accounts: []types.AccountMeta{
					types.NewAccountMeta(owned, false),
					{Pubkey: other, IsWritable: tt.writable},
				},
			}
			_, err := exec.Execute(crypto.SignInstruction(ix))
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Equal(t, before, dump(t, db))
		})
	}
}

func TestExecute_OwnedDebitCommits(t *testing.T) {
	owned := testPubkey("owned")
	other := testPubkey("other")
	exec, db, id := rogue(t, func(ctx *syscall.ExecutionContext) error {
		return ctx.MoveLamports(ctx.Accounts[0], ctx.Accounts[1], 40)
	})
	require.NoError(t, db.SetAccount(owned, types.NewAccount(100, id)))

	ix := types.Instruction{
		ProgramID: id,
		Accounts:  []types.AccountMeta{types.NewAccountMeta(owned, false), types.NewAccountMeta(other, false)},
	}
	_, err := exec.Execute(crypto.SignInstruction(ix))
	require.NoError(t, err)
	assert.Equal(t, types.Lamports(60), balance(t, db, owned))
	assert.Equal(t, types.Lamports(40), balance(t, db, other))
}

func TestExecute_DuplicateAccountsShareHandle(t *testing.T) {
	var same bool
	var signer, writable bool
	exec, _, id := rogue(t, func(ctx *syscall.ExecutionContext) error {
		same = ctx.Accounts[0] == ctx.Accounts[1]
		signer = ctx.Accounts[0].IsSigner
		writable = ctx.Accounts[0].IsWritable
		return nil
	})
	kp := mustKeypair(t)
	dup := kp.Pubkey()

	ix := types.Instruction{
		ProgramID: id,
		Accounts: []types.AccountMeta{
			types.NewReadonlyAccountMeta(dup, true),
			types.NewAccountMeta(dup, false),
		},
	}
	_, err := exec.Execute(crypto.SignInstruction(ix, kp))
	require.NoError(t, err)
	assert.True(t, same)
	assert.True(t, signer)
	assert.True(t, writable)
}

func TestExecute_UntouchedNewAccountIsNotStored(t *testing.T) {
	exec, db, id := rogue(t, func(ctx *syscall.ExecutionContext) error { return nil })
	ix := types.Instruction{
		ProgramID: id,
		Accounts:  []types.AccountMeta{types.NewAccountMeta(testPubkey("ghost"), false)},
	}
	res, err := exec.Execute(crypto.SignInstruction(ix))
	require.NoError(t, err)
	assert.Empty(t, res.Deltas)
	assert.Zero(t, db.GetAccountsCount())
}

func TestExecute_Metrics(t *testing.T) {
	f := bootstrapped(t)
	m := metrics.New()
	f.exec.SetMetrics(m)
	f.exec.WatchBalance(f.faucet.Pubkey())
	assert.Equal(t, 10_100_000.0, testutil.ToFloat64(m.FaucetBalance.WithLabelValues(f.faucet.Pubkey().String())))

	ix := faucet.NewRequestTokensInstruction(faucetProgramID, f.faucet.Pubkey(), testPubkey("r"))
	_, err := f.exec.Execute(crypto.SignInstruction(ix))
	require.NoError(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.InstructionsTotal.WithLabelValues("faucet", "RequestTokens", metrics.ResultSuccess)))
	assert.Equal(t, 10_099_000.0, testutil.ToFloat64(m.FaucetBalance.WithLabelValues(f.faucet.Pubkey().String())))
	assert.Equal(t, float64(f.db.GetAccountsCount()), testutil.ToFloat64(m.AccountsCount))

	_, err = f.exec.Execute(crypto.SignInstruction(faucet.NewRequestTokensInstruction(faucetProgramID, testPubkey("x"), testPubkey("r"))))
	require.Error(t, err)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.InstructionsTotal.WithLabelValues("faucet", "RequestTokens", metrics.ResultError)))
}

func TestProgramRegistry(t *testing.T) {
	registry := NewProgramRegistry()
	RegisterNativePrograms(registry)
	registry.RegisterProgram(faucetProgramID, "faucet", faucet.New(faucetProgramID))

	assert.Equal(t, 2, registry.Count())
	assert.True(t, registry.HasProgram(types.SystemProgramID))
	assert.Equal(t, "system", registry.GetProgramName(types.SystemProgramID))
	other := testPubkey("other")
	assert.Equal(t, other.String(), registry.GetProgramName(other))

	assert.Equal(t, "Transfer", registry.InstructionName(types.SystemProgramID, system.Transfer(other, other, 1).Data))
	assert.Equal(t, "ReplenishTokens", registry.InstructionName(faucetProgramID, (&faucet.ReplenishTokens{Amount: 1}).Encode()))
	assert.Equal(t, "Unknown", registry.InstructionName(faucetProgramID, []byte{9}))
	assert.Equal(t, "Unknown", registry.InstructionName(other, nil))

	ids := registry.ListPrograms()
	require.Len(t, ids, 2)
	assert.Equal(t, types.SystemProgramID, ids[0])

	ctx := syscall.NewExecutionContext(other, nil, nil, 1000)
	assert.ErrorIs(t, registry.ExecuteProgram(ctx), ErrProgramNotFound)
}
