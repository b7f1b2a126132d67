package faucet

import (
	"crypto/sha256"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devwraithe/simple-faucet-token/pkg/svm/syscall"
	"github.com/devwraithe/simple-faucet-token/pkg/types"
)

var programID = testPubkey("faucet-program")

func testPubkey(seed string) types.Pubkey {
	return types.Pubkey(sha256.Sum256([]byte(seed)))
}

func newInfo(pubkey types.Pubkey, lamports uint64, owner types.Pubkey, signer, writable bool) *syscall.AccountInfo {
	l := lamports
	return &syscall.AccountInfo{Pubkey: pubkey, Lamports: &l, Owner: owner, IsSigner: signer, IsWritable: writable}
}

func faucetAccount(lamports uint64) *syscall.AccountInfo {
	acc := newInfo(testPubkey("faucet"), lamports, programID, false, true)
	acc.Data = make([]byte, StateSize)
	return acc
}

func initializedFaucet(lamports uint64, admin types.Pubkey, amount uint64) *syscall.AccountInfo {
	acc := faucetAccount(lamports)
	state := FaucetState{State: Initialized, Admin: admin, DistributionAmount: amount}
	state.MarshalInto(acc.Data)
	return acc
}

func rentAccount() *syscall.AccountInfo {
	acc := newInfo(types.SysvarRentID, 1, types.SysvarOwnerID, false, false)
	acc.Data = types.DefaultRent().Marshal()
	return acc
}

func systemProgramAccount() *syscall.AccountInfo {
	acc := newInfo(types.SystemProgramID, 1, types.NativeLoaderID, false, false)
	acc.Executable = true
	return acc
}

func snapshot(accs ...*syscall.AccountInfo) []*syscall.AccountInfo {
	out := make([]*syscall.AccountInfo, len(accs))
	for i, acc := range accs {
		out[i] = acc.Clone()
	}
	return out
}

func assertUnchanged(t *testing.T, before []*syscall.AccountInfo, after ...*syscall.AccountInfo) {
	t.Helper()
	for i := range before {
		assert.Equal(t, *before[i].Lamports, *after[i].Lamports, "lamports of account %d", i)
		assert.Equal(t, before[i].Data, after[i].Data, "data of account %d", i)
		assert.Equal(t, before[i].Owner, after[i].Owner, "owner of account %d", i)
	}
}

func TestInitialize(t *testing.T) {
	faucet := faucetAccount(10_100_000)
	admin := newInfo(testPubkey("admin"), 0, types.SystemProgramID, true, false)

	err := Process(programID, []*syscall.AccountInfo{faucet, admin, rentAccount()}, (&Initialize{DistributionAmount: 1000}).Encode())
	require.NoError(t, err)

	state, err := DecodeState(faucet.Data)
	require.NoError(t, err)
	assert.Equal(t, FaucetState{State: Initialized, Admin: admin.Pubkey, DistributionAmount: 1000}, *state)
	assert.Equal(t, uint64(10_100_000), *faucet.Lamports)
}

func TestInitialize_Errors(t *testing.T) {
	adminKey := testPubkey("admin")

	tests := []struct {
		name     string
		accounts func() []*syscall.AccountInfo
		wantErr  error
	}{
		{
			name: "too few accounts",
			accounts: func() []*syscall.AccountInfo {
				return []*syscall.AccountInfo{faucetAccount(10_100_000), newInfo(adminKey, 0, types.SystemProgramID, true, false)}
			},
			wantErr: ErrInvalidAccountData,
		},
		{
			name: "faucet not owned by program",
			accounts: func() []*syscall.AccountInfo {
				faucet := faucetAccount(10_100_000)
				faucet.Owner = types.SystemProgramID
				return []*syscall.AccountInfo{faucet, newInfo(adminKey, 0, types.SystemProgramID, true, false), rentAccount()}
			},
			wantErr: ErrIncorrectProgramId,
		},
		{
			name: "admin not signer",
			accounts: func() []*syscall.AccountInfo {
				return []*syscall.AccountInfo{faucetAccount(10_100_000), newInfo(adminKey, 0, types.SystemProgramID, false, false), rentAccount()}
			},
			wantErr: ErrMissingRequiredSignature,
		},
		{
			name: "wrong rent account",
			accounts: func() []*syscall.AccountInfo {
				fake := rentAccount()
				fake.Pubkey = testPubkey("not-rent")
				return []*syscall.AccountInfo{faucetAccount(10_100_000), newInfo(adminKey, 0, types.SystemProgramID, true, false), fake}
			},
			wantErr: ErrInvalidAccountData,
		},
		{
			name: "garbled rent data",
			accounts: func() []*syscall.AccountInfo {
				rent := rentAccount()
				rent.Data = rent.Data[:4]
				return []*syscall.AccountInfo{faucetAccount(10_100_000), newInfo(adminKey, 0, types.SystemProgramID, true, false), rent}
			},
			wantErr: ErrInvalidAccountData,
		},
		{
			name: "not rent exempt",
			accounts: func() []*syscall.AccountInfo {
				minimum := uint64(types.DefaultRent().MinimumBalance(StateSize))
				return []*syscall.AccountInfo{faucetAccount(minimum - 1), newInfo(adminKey, 0, types.SystemProgramID, true, false), rentAccount()}
			},
			wantErr: ErrAccountNotRentExempt,
		},
		{
			name: "data too small",
			accounts: func() []*syscall.AccountInfo {
				faucet := faucetAccount(10_100_000)
				faucet.Data = make([]byte, StateSize-1)
				return []*syscall.AccountInfo{faucet, newInfo(adminKey, 0, types.SystemProgramID, true, false), rentAccount()}
			},
			wantErr: ErrInvalidAccountData,
		},
		{
			name: "already initialized",
			accounts: func() []*syscall.AccountInfo {
				faucet := initializedFaucet(10_100_000, testPubkey("first-admin"), 7)
				return []*syscall.AccountInfo{faucet, newInfo(adminKey, 0, types.SystemProgramID, true, false), rentAccount()}
			},
			wantErr: ErrAccountAlreadyInitialized,
		},
		{
			name: "garbled existing state",
			accounts: func() []*syscall.AccountInfo {
				faucet := faucetAccount(10_100_000)
				faucet.Data[0] = 9
				return []*syscall.AccountInfo{faucet, newInfo(adminKey, 0, types.SystemProgramID, true, false), rentAccount()}
			},
			wantErr: ErrMalformedState,
		},
		{
			name: "faucet not writable",
			accounts: func() []*syscall.AccountInfo {
				faucet := faucetAccount(10_100_000)
				faucet.IsWritable = false
				return []*syscall.AccountInfo{faucet, newInfo(adminKey, 0, types.SystemProgramID, true, false), rentAccount()}
			},
			wantErr: ErrInvalidAccountData,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			accs := tt.accounts()
			before := snapshot(accs...)

			err := Process(programID, accs, (&Initialize{DistributionAmount: 1000}).Encode())
			require.ErrorIs(t, err, tt.wantErr)
			assertUnchanged(t, before, accs...)
		})
	}
}

func TestRequestTokens(t *testing.T) {
	adminKey := testPubkey("admin")
	faucet := initializedFaucet(10_100_000, adminKey, 1000)
	requester := newInfo(testPubkey("requester"), 0, types.SystemProgramID, false, true)

	err := Process(programID, []*syscall.AccountInfo{faucet, requester, systemProgramAccount()}, (&RequestTokens{}).Encode())
	require.NoError(t, err)

	assert.Equal(t, uint64(10_099_000), *faucet.Lamports)
	assert.Equal(t, uint64(1000), *requester.Lamports)
}

func TestRequestTokens_ConservesBalances(t *testing.T) {
	for _, amount := range []uint64{0, 1, 1000, 5_000_000} {
		faucet := initializedFaucet(10_100_000, testPubkey("admin"), amount)
		requester := newInfo(testPubkey("requester"), 12_345, types.SystemProgramID, false, true)
		total := *faucet.Lamports + *requester.Lamports

		require.NoError(t, Process(programID, []*syscall.AccountInfo{faucet, requester, systemProgramAccount()}, (&RequestTokens{}).Encode()))
		assert.Equal(t, total, *faucet.Lamports+*requester.Lamports)
		assert.Equal(t, 12_345+amount, *requester.Lamports)
	}
}

func TestRequestTokens_Errors(t *testing.T) {
	adminKey := testPubkey("admin")

	tests := []struct {
		name     string
		accounts func() []*syscall.AccountInfo
		wantErr  error
	}{
		{
			name: "two accounts",
			accounts: func() []*syscall.AccountInfo {
				return []*syscall.AccountInfo{
					initializedFaucet(10_100_000, adminKey, 1000),
					newInfo(testPubkey("requester"), 0, types.SystemProgramID, false, true),
				}
			},
			wantErr: ErrInvalidAccountData,
		},
		{
			name: "four accounts",
			accounts: func() []*syscall.AccountInfo {
				return []*syscall.AccountInfo{
					initializedFaucet(10_100_000, adminKey, 1000),
					newInfo(testPubkey("requester"), 0, types.SystemProgramID, false, true),
					systemProgramAccount(),
					newInfo(testPubkey("extra"), 0, types.SystemProgramID, false, true),
				}
			},
			wantErr: ErrInvalidAccountData,
		},
		{
			name: "faucet not owned by program",
			accounts: func() []*syscall.AccountInfo {
				faucet := initializedFaucet(10_100_000, adminKey, 1000)
				faucet.Owner = testPubkey("impostor")
				return []*syscall.AccountInfo{faucet, newInfo(testPubkey("requester"), 0, types.SystemProgramID, false, true), systemProgramAccount()}
			},
			wantErr: ErrIncorrectProgramId,
		},
		{
			name: "uninitialized faucet",
			accounts: func() []*syscall.AccountInfo {
				return []*syscall.AccountInfo{faucetAccount(10_100_000), newInfo(testPubkey("requester"), 0, types.SystemProgramID, false, true), systemProgramAccount()}
			},
			wantErr: ErrUninitializedAccount,
		},
		{
			name: "malformed faucet",
			accounts: func() []*syscall.AccountInfo {
				faucet := faucetAccount(10_100_000)
				faucet.Data = faucet.Data[:10]
				return []*syscall.AccountInfo{faucet, newInfo(testPubkey("requester"), 0, types.SystemProgramID, false, true), systemProgramAccount()}
			},
			wantErr: ErrMalformedState,
		},
		{
			name: "insufficient funds",
			accounts: func() []*syscall.AccountInfo {
				return []*syscall.AccountInfo{initializedFaucet(999, adminKey, 1000), newInfo(testPubkey("requester"), 0, types.SystemProgramID, false, true), systemProgramAccount()}
			},
			wantErr: ErrInsufficientFunds,
		},
		{
			name: "requester overflow",
			accounts: func() []*syscall.AccountInfo {
				return []*syscall.AccountInfo{initializedFaucet(10_100_000, adminKey, 1000), newInfo(testPubkey("requester"), ^uint64(0)-10, types.SystemProgramID, false, true), systemProgramAccount()}
			},
			wantErr: ErrArithmeticOverflow,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			accs := tt.accounts()
			before := snapshot(accs...)

			err := Process(programID, accs, (&RequestTokens{}).Encode())
			require.ErrorIs(t, err, tt.wantErr)
			assertUnchanged(t, before, accs...)
		})
	}
}

func TestReplenishTokens(t *testing.T) {
	admin := newInfo(testPubkey("admin"), 100_000_000_000, types.SystemProgramID, true, true)
	faucet := initializedFaucet(10_099_000, admin.Pubkey, 1000)

	err := Process(programID, []*syscall.AccountInfo{faucet, admin, systemProgramAccount()}, (&ReplenishTokens{Amount: 5000}).Encode())
	require.NoError(t, err)

	assert.Equal(t, uint64(10_104_000), *faucet.Lamports)
	assert.Equal(t, uint64(100_000_000_000-5000), *admin.Lamports)
}

func TestReplenishTokens_Errors(t *testing.T) {
	adminKey := testPubkey("admin")

	tests := []struct {
		name     string
		accounts func() []*syscall.AccountInfo
		wantErr  error
	}{
		{
			name: "too few accounts",
			accounts: func() []*syscall.AccountInfo {
				return []*syscall.AccountInfo{initializedFaucet(10_000_000, adminKey, 1000), newInfo(adminKey, 50_000, types.SystemProgramID, true, true)}
			},
			wantErr: ErrInvalidAccountData,
		},
		{
			name: "faucet not owned by program",
			accounts: func() []*syscall.AccountInfo {
				faucet := initializedFaucet(10_000_000, adminKey, 1000)
				faucet.Owner = types.SystemProgramID
				return []*syscall.AccountInfo{faucet, newInfo(adminKey, 50_000, types.SystemProgramID, true, true), systemProgramAccount()}
			},
			wantErr: ErrIncorrectProgramId,
		},
		{
			name: "admin not signer",
			accounts: func() []*syscall.AccountInfo {
				return []*syscall.AccountInfo{initializedFaucet(10_000_000, adminKey, 1000), newInfo(adminKey, 50_000, types.SystemProgramID, false, true), systemProgramAccount()}
			},
			wantErr: ErrMissingRequiredSignature,
		},
		{
			name: "signer is not the administrator",
			accounts: func() []*syscall.AccountInfo {
				return []*syscall.AccountInfo{initializedFaucet(10_000_000, adminKey, 1000), newInfo(testPubkey("mallory"), 50_000, types.SystemProgramID, true, true), systemProgramAccount()}
			},
			wantErr: ErrInvalidAccountData,
		},
		{
			name: "uninitialized faucet",
			accounts: func() []*syscall.AccountInfo {
				return []*syscall.AccountInfo{faucetAccount(10_000_000), newInfo(adminKey, 50_000, types.SystemProgramID, true, true), systemProgramAccount()}
			},
			wantErr: ErrUninitializedAccount,
		},
		{
			name: "admin cannot cover amount",
			accounts: func() []*syscall.AccountInfo {
				return []*syscall.AccountInfo{initializedFaucet(10_000_000, adminKey, 1000), newInfo(adminKey, 4_999, types.SystemProgramID, true, true), systemProgramAccount()}
			},
			wantErr: ErrInsufficientFunds,
		},
		{
			name: "wrong system program",
			accounts: func() []*syscall.AccountInfo {
				fake := systemProgramAccount()
				fake.Pubkey = testPubkey("fake-system")
				return []*syscall.AccountInfo{initializedFaucet(10_000_000, adminKey, 1000), newInfo(adminKey, 50_000, types.SystemProgramID, true, true), fake}
			},
			wantErr: ErrIncorrectProgramId,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			accs := tt.accounts()
			before := snapshot(accs...)

			err := Process(programID, accs, (&ReplenishTokens{Amount: 5000}).Encode())
			require.ErrorIs(t, err, tt.wantErr)
			assertUnchanged(t, before, accs...)
		})
	}
}

func TestScenario_FullLifecycle(t *testing.T) {
	admin := newInfo(testPubkey("admin"), 100_000_000_000, types.SystemProgramID, true, true)
	faucet := faucetAccount(10_100_000)
	requester := newInfo(testPubkey("requester"), 0, types.SystemProgramID, false, true)

	require.NoError(t, Process(programID, []*syscall.AccountInfo{faucet, admin, rentAccount()}, (&Initialize{DistributionAmount: 1000}).Encode()))
	require.NoError(t, Process(programID, []*syscall.AccountInfo{faucet, requester, systemProgramAccount()}, (&RequestTokens{}).Encode()))
	require.NoError(t, Process(programID, []*syscall.AccountInfo{faucet, admin, systemProgramAccount()}, (&ReplenishTokens{Amount: 5000}).Encode()))

	assert.Equal(t, uint64(10_104_000), *faucet.Lamports)
	assert.Equal(t, uint64(1000), *requester.Lamports)
	assert.Equal(t, uint64(100_000_000_000-5000), *admin.Lamports)

	err := Process(programID, []*syscall.AccountInfo{faucet, admin, rentAccount()}, (&Initialize{DistributionAmount: 1}).Encode())
	require.ErrorIs(t, err, ErrAccountAlreadyInitialized)
}

func TestExecute_InvalidInstruction(t *testing.T) {
	err := Process(programID, []*syscall.AccountInfo{faucetAccount(1)}, []byte{42})
	require.ErrorIs(t, err, ErrInvalidInstructionData)
}

func TestErrorCode(t *testing.T) {
	assert.Equal(t, CodeSuccess, ErrorCode(nil))
	assert.Equal(t, CodeInsufficientFunds, ErrorCode(ErrInsufficientFunds))
	assert.Equal(t, CodeUnknown, ErrorCode(assert.AnError))
	assert.Equal(t, "MissingRequiredSignature", CodeMissingRequiredSignature.String())

	faucet := initializedFaucet(1, testPubkey("admin"), 1000)
	requester := newInfo(testPubkey("requester"), 0, types.SystemProgramID, false, true)
	err := Process(programID, []*syscall.AccountInfo{faucet, requester, systemProgramAccount()}, (&RequestTokens{}).Encode())
	assert.Equal(t, CodeInsufficientFunds, ErrorCode(err))
}
