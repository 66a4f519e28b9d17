package main

import (
	"bytes"
	"context"
	"io"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/fortiblox/X1-Clicker/internal/keys"
	"github.com/fortiblox/X1-Clicker/pkg/rpc"
	"github.com/fortiblox/X1-Clicker/pkg/svm/executor"
)

func runCmd(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	err := run(context.Background(), args, &out)
	return out.String(), err
}

func withFlags(cmd string, common []string, extra ...string) []string {
	args := append([]string{cmd}, common...)
	return append(args, extra...)
}

func TestLocalLedgerFlow(t *testing.T) {
	dir := t.TempDir()
	kpPath := filepath.Join(dir, "id.json")
	common := []string{"--data-dir", filepath.Join(dir, "ledger"), "--keypair", kpPath}

	out, err := runCmd(t, "keygen", "-o", kpPath)
	require.NoError(t, err)
	kp, err := keys.Load(kpPath)
	require.NoError(t, err)
	require.Contains(t, out, kp.PublicKey().String())

	_, err = runCmd(t, "keygen", "-o", kpPath)
	require.ErrorContains(t, err, "already exists")

	out, err = runCmd(t, withFlags("airdrop", common)...)
	require.NoError(t, err)
	require.Contains(t, out, "1000000000 lamports (1 SOL)")

	out, err = runCmd(t, withFlags("show", common)...)
	require.NoError(t, err)
	require.Contains(t, out, "No user state")

	out, err = runCmd(t, withFlags("init", common)...)
	require.NoError(t, err)
	require.Contains(t, out, "Click balance:   0")

	out, err = runCmd(t, withFlags("click", common, "-n", "3")...)
	require.NoError(t, err)
	require.Equal(t, 3, strings.Count(out, "Signature:"))
	require.Contains(t, out, "Click balance:   3")

	out, err = runCmd(t, withFlags("upgrade", common, "--variation", "0")...)
	require.ErrorIs(t, err, ErrTransactionFailed)
	require.ErrorContains(t, err, "custom program error: 0x0")
	require.Contains(t, out, "Signature:")

	out, err = runCmd(t, withFlags("show", common)...)
	require.NoError(t, err)
	require.Contains(t, out, "Click balance:   3")
	require.Contains(t, out, "Upgrade cost:    v0=10 v1=20")

	out, err = runCmd(t, withFlags("history", common)...)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 6)
	require.Contains(t, lines[0], "failed")
	require.True(t, strings.HasSuffix(lines[5], "ok"))

	out, err = runCmd(t, withFlags("history", common, "-n", "2")...)
	require.NoError(t, err)
	require.Len(t, strings.Split(strings.TrimSpace(out), "\n"), 2)
}

func TestTransferCommand(t *testing.T) {
	dir := t.TempDir()
	data := filepath.Join(dir, "ledger")
	alice := filepath.Join(dir, "alice.json")
	bob := filepath.Join(dir, "bob.json")
	for _, p := range []string{alice, bob} {
		_, err := runCmd(t, "keygen", "-o", p)
		require.NoError(t, err)
	}
	bobKey, err := keys.Load(bob)
	require.NoError(t, err)

	for _, p := range []string{alice, bob} {
		common := []string{"--data-dir", data, "--keypair", p}
		_, err := runCmd(t, withFlags("airdrop", common)...)
		require.NoError(t, err)
		_, err = runCmd(t, withFlags("init", common)...)
		require.NoError(t, err)
	}

	aliceFlags := []string{"--data-dir", data, "--keypair", alice}
	_, err = runCmd(t, withFlags("click", aliceFlags, "-n", "2")...)
	require.NoError(t, err)

	out, err := runCmd(t, withFlags("transfer", aliceFlags, bobKey.PublicKey().String(), "2")...)
	require.NoError(t, err)
	require.Contains(t, out, "Click balance:   0")
	require.Contains(t, out, "Value per click: 2")

	out, err = runCmd(t, withFlags("show", []string{"--data-dir", data}, bobKey.PublicKey().String())...)
	require.NoError(t, err)
	require.Contains(t, out, "Click balance:   2")

	_, err = runCmd(t, withFlags("transfer", aliceFlags, bobKey.PublicKey().String(), "1")...)
	require.ErrorContains(t, err, "custom program error: 0x1")

	_, err = runCmd(t, withFlags("transfer", aliceFlags, "nope")...)
	require.ErrorContains(t, err, "usage")
}

func TestSnapshotCommand(t *testing.T) {
	dir := t.TempDir()
	kpPath := filepath.Join(dir, "id.json")
	src := []string{"--data-dir", filepath.Join(dir, "src"), "--keypair", kpPath}
	dst := []string{"--data-dir", filepath.Join(dir, "dst"), "--keypair", kpPath}
	snap := filepath.Join(dir, "accounts.snap")

	_, err := runCmd(t, "keygen", "-o", kpPath)
	require.NoError(t, err)
	_, err = runCmd(t, withFlags("airdrop", src)...)
	require.NoError(t, err)
	_, err = runCmd(t, withFlags("init", src)...)
	require.NoError(t, err)
	_, err = runCmd(t, withFlags("click", src, "-n", "4")...)
	require.NoError(t, err)

	created, err := runCmd(t, withFlags("snapshot", src, "create", snap)...)
	require.NoError(t, err)
	require.Contains(t, created, "Accounts:   2")

	info, err := runCmd(t, withFlags("snapshot", nil, "info", snap)...)
	require.NoError(t, err)
	require.Equal(t, created, info)

	_, err = runCmd(t, withFlags("snapshot", dst, "load", snap)...)
	require.NoError(t, err)

	out, err := runCmd(t, withFlags("show", dst)...)
	require.NoError(t, err)
	require.Contains(t, out, "Click balance:   4")

	// A populated ledger refuses a second import.
	_, err = runCmd(t, withFlags("snapshot", dst, "load", snap)...)
	require.Error(t, err)

	_, err = runCmd(t, withFlags("snapshot", []string{"--url", "http://127.0.0.1:1"}, "create", snap)...)
	require.ErrorContains(t, err, "--url")
}

func TestRemoteLedger(t *testing.T) {
	dir := t.TempDir()
	cfg := executor.DefaultConfig()
	l, err := openLocalLedger(filepath.Join(dir, "ledger"), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })

	server := rpc.New(rpc.DefaultConfig(), l.db, l.journal, l.exec, l.metrics)
	hs := httptest.NewServer(server.Handler())
	t.Cleanup(hs.Close)

	kpPath := filepath.Join(dir, "id.json")
	common := []string{"--url", hs.URL, "--keypair", kpPath}

	_, err = runCmd(t, "keygen", "-o", kpPath)
	require.NoError(t, err)
	out, err := runCmd(t, withFlags("airdrop", common, "--lamports", "5000000000")...)
	require.NoError(t, err)
	require.Contains(t, out, "(5 SOL)")

	_, err = runCmd(t, withFlags("init", common)...)
	require.NoError(t, err)
	out, err = runCmd(t, withFlags("click", common, "-n", "2")...)
	require.NoError(t, err)
	require.Contains(t, out, "Click balance:   2")

	out, err = runCmd(t, withFlags("history", common)...)
	require.NoError(t, err)
	require.Len(t, strings.Split(strings.TrimSpace(out), "\n"), 4)

	require.Equal(t, uint64(4), l.db.GetSlot())
}

func TestUsage(t *testing.T) {
	out, err := runCmd(t, "help")
	require.NoError(t, err)
	require.Contains(t, out, "serve")

	_, err = runCmd(t)
	require.Error(t, err)

	_, err = runCmd(t, "frobnicate")
	require.ErrorContains(t, err, "unknown command")

	out, err = runCmd(t, "version")
	require.NoError(t, err)
	require.Contains(t, out, Version)
}

func TestServeStopsOnCancel(t *testing.T) {
	dir := t.TempDir()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- run(ctx, []string{"serve", "--data-dir", dir, "--rpc-addr", "127.0.0.1:0", "--dashboard-addr", "127.0.0.1:0"}, io.Discard)
	}()
	time.Sleep(200 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("serve did not stop")
	}

	// The ledger is closed again, so local commands can open it.
	_, err := runCmd(t, "show", "--data-dir", dir, "11111111111111111111111111111111")
	require.NoError(t, err)
}

func TestDashboardConfig(t *testing.T) {
	cfg, err := dashboardConfig("0.0.0.0:9090")
	require.NoError(t, err)
	require.Equal(t, "0.0.0.0", cfg.BindAddress)
	require.Equal(t, 9090, cfg.Port)

	_, err = dashboardConfig("9090")
	require.Error(t, err)
}
