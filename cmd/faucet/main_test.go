package main

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devwraithe/simple-faucet-token/pkg/crypto"
)

type cli struct {
	dir   string
	flags []string
}

func newCLI(t *testing.T) *cli {
	t.Helper()
	dir := t.TempDir()
	return &cli{
		dir: dir,
		flags: []string{
			"--data-dir", filepath.Join(dir, "ledger"),
			"--admin-keypair", filepath.Join(dir, "admin.json"),
			"--faucet-keypair", filepath.Join(dir, "faucet.json"),
			"--initial-balance", "10100000",
			"--distribution-amount", "1000",
			"--log-level", "error",
		},
	}
}

func (c *cli) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	full := append([]string{args[0]}, c.flags...)
	full = append(full, args[1:]...)
	err := run(context.Background(), full, &out)
	return out.String(), err
}

func (c *cli) mustRun(t *testing.T, args ...string) string {
	t.Helper()
	out, err := c.run(t, args...)
	require.NoError(t, err, out)
	return out
}

func TestRun_Usage(t *testing.T) {
	var out bytes.Buffer
	assert.ErrorIs(t, run(context.Background(), nil, &out), errUsage)
	assert.Contains(t, out.String(), "Usage: faucet")

	out.Reset()
	assert.ErrorIs(t, run(context.Background(), []string{"mint"}, &out), errUsage)

	out.Reset()
	require.NoError(t, run(context.Background(), []string{"version"}, &out))
	assert.Contains(t, out.String(), "faucet "+Version)
}

func TestCLI_InitRequestReplenish(t *testing.T) {
	c := newCLI(t)

	out := c.mustRun(t, "init")
	assert.Contains(t, out, "Balance:             10100000 lamports")

	admin, err := crypto.LoadKeypairFile(filepath.Join(c.dir, "admin.json"))
	require.NoError(t, err)
	assert.Contains(t, out, admin.Pubkey().String())

	adminBalance := c.mustRun(t, "balance", admin.Pubkey().String())
	_, err = c.run(t, "init")
	assert.ErrorContains(t, err, "account already exists")
	assert.Equal(t, adminBalance, c.mustRun(t, "balance", admin.Pubkey().String()))

	requester, err := crypto.GenerateKeypair()
	require.NoError(t, err)
	out = c.mustRun(t, "request", requester.Pubkey().String())
	assert.Contains(t, out, "Transferred 1000 lamports")

	assert.Equal(t, "1000 lamports (0.000001000 SOL)\n", c.mustRun(t, "balance", requester.Pubkey().String()))
	assert.True(t, strings.HasPrefix(c.mustRun(t, "balance"), "10099000 lamports"))

	c.mustRun(t, "replenish", "1000")
	assert.True(t, strings.HasPrefix(c.mustRun(t, "balance"), "10100000 lamports"))

	_, err = c.run(t, "replenish", "999999999999999")
	assert.ErrorContains(t, err, "InsufficientFunds")

	_, err = c.run(t, "request")
	assert.ErrorIs(t, err, errUsage)
}

func TestCLI_Snapshot(t *testing.T) {
	c := newCLI(t)
	c.mustRun(t, "init")
	file := filepath.Join(c.dir, "ledger.snap")

	out := c.mustRun(t, "snapshot", "export", file)
	assert.Contains(t, out, "Exported")

	other := newCLI(t)
	other.flags[1] = filepath.Join(other.dir, "restored")
	// Reuse the keypairs so balance resolves the same faucet.
	other.flags[3] = c.flags[3]
	other.flags[5] = c.flags[5]
	out = other.mustRun(t, "snapshot", "import", file)
	assert.Contains(t, out, "Imported")
	assert.True(t, strings.HasPrefix(other.mustRun(t, "balance"), "10100000 lamports"))

	_, err := c.run(t, "snapshot", "rewind", file)
	assert.ErrorIs(t, err, errUsage)
}

func TestCLI_Keygen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "id.json")
	var out bytes.Buffer
	require.NoError(t, run(context.Background(), []string{"keygen", "-o", path}, &out))

	kp, err := crypto.LoadKeypairFile(path)
	require.NoError(t, err)
	assert.Contains(t, out.String(), kp.Pubkey().String())

	assert.Error(t, run(context.Background(), []string{"keygen", "-o", path}, &out))
	assert.NoError(t, run(context.Background(), []string{"keygen", "-o", path, "--force"}, &out))
	assert.ErrorIs(t, run(context.Background(), []string{"keygen"}, &out), errUsage)
}

func TestCLI_Serve(t *testing.T) {
	c := newCLI(t)
	c.flags[1] = ":memory:"

	ctx, cancel := context.WithCancel(context.Background())
	args := append([]string{"serve"}, c.flags...)
	args = append(args, "--bootstrap", "--rpc-addr", "127.0.0.1:0", "--metrics-addr", "127.0.0.1:0")

	done := make(chan error, 1)
	go func() {
		var out bytes.Buffer
		done <- run(ctx, args, &out)
	}()

	time.Sleep(200 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("serve did not stop")
	}
}

func TestCLI_RuntimeSettings(t *testing.T) {
	c := newCLI(t)

	// One year of rent for 41 bytes: (128 + 41) * 3480.
	out := c.mustRun(t, "init", "--initial-balance", "500000", "--rent-threshold", "1")
	assert.Contains(t, out, "Balance:             588120 lamports")

	requester, err := crypto.GenerateKeypair()
	require.NoError(t, err)
	_, err = c.run(t, "request", requester.Pubkey().String(), "--compute-unit-limit", "10", "--rent-threshold", "1")
	assert.ErrorContains(t, err, "compute units exhausted")

	out = c.mustRun(t, "request", requester.Pubkey().String(), "--rent-threshold", "1")
	assert.Contains(t, out, "Transferred 1000 lamports")
}
