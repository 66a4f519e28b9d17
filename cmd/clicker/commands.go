package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"os"
	"strconv"
	"time"

	flag "github.com/spf13/pflag"

	"github.com/fortiblox/X1-Clicker/internal/keys"
	"github.com/fortiblox/X1-Clicker/internal/types"
	"github.com/fortiblox/X1-Clicker/pkg/accounts"
	"github.com/fortiblox/X1-Clicker/pkg/dashboard"
	"github.com/fortiblox/X1-Clicker/pkg/rpc"
	"github.com/fortiblox/X1-Clicker/pkg/svm/executor"
	"github.com/fortiblox/X1-Clicker/pkg/svm/message"
	"github.com/fortiblox/X1-Clicker/pkg/svm/programs/clicker"
)

// ErrTransactionFailed is returned when a transaction executed but failed.
var ErrTransactionFailed = errors.New("transaction failed")

func runKeygen(_ context.Context, args []string, out io.Writer) error {
	fs := newFlagSet("keygen")
	outfile := fs.StringP("outfile", "o", defaultKeypairPath, "Path to write the keypair to")
	phrase := fs.String("seed-phrase", "", "Derive the keypair from this seed phrase instead of at random")
	passphrase := fs.String("passphrase", "", "Seed phrase passphrase")
	force := fs.Bool("force", false, "Overwrite an existing keypair file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if _, err := os.Stat(*outfile); err == nil && !*force {
		return fmt.Errorf("%s already exists (use --force to overwrite)", *outfile)
	}

	var kp *keys.Keypair
	var err error
	if *phrase != "" {
		kp, err = keys.FromSeedPhrase(*phrase, *passphrase)
	} else {
		kp, err = keys.Generate(nil)
	}
	if err != nil {
		return err
	}
	if err := kp.Save(*outfile); err != nil {
		return err
	}
	fmt.Fprintf(out, "Wrote keypair to %s\npubkey: %s\n", *outfile, kp.PublicKey())
	return nil
}

func runAirdrop(ctx context.Context, args []string, out io.Writer) error {
	fs := newFlagSet("airdrop")
	var lf ledgerFlags
	lf.register(fs)
	keypair := registerKeypair(fs)
	lamports := fs.Uint64("lamports", executor.LamportsPerSOL, "Lamports to credit")
	if err := fs.Parse(args); err != nil {
		return err
	}
	to, err := addressArg(fs.Args(), *keypair)
	if err != nil {
		return err
	}

	b, err := lf.open()
	if err != nil {
		return err
	}
	defer b.Close()

	sig, err := b.Airdrop(ctx, to, *lamports)
	if err != nil {
		return err
	}
	balance, err := b.Balance(ctx, to)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Signature: %s\nBalance: %s\n", sig, formatLamports(balance))
	return nil
}

func runInit(ctx context.Context, args []string, out io.Writer) error {
	return sendCommand(ctx, "init", args, out, nil,
		func(programID, user types.Pubkey, _ []string) ([]message.Instruction, error) {
			ix, err := clicker.NewInitUserInstruction(programID, user)
			return []message.Instruction{ix}, err
		})
}

func runClick(ctx context.Context, args []string, out io.Writer) error {
	var count uint
	return sendCommand(ctx, "click", args, out,
		func(fs *flag.FlagSet) { fs.UintVarP(&count, "count", "n", 1, "Clicks to send, one transaction each") },
		func(programID, user types.Pubkey, _ []string) ([]message.Instruction, error) {
			if count == 0 {
				return nil, errors.New("--count must be at least 1")
			}
			ix, err := clicker.NewClickInstruction(programID, user)
			if err != nil {
				return nil, err
			}
			ixs := make([]message.Instruction, count)
			for i := range ixs {
				ixs[i] = ix
			}
			return ixs, nil
		})
}

func runUpgrade(ctx context.Context, args []string, out io.Writer) error {
	var variation uint8
	return sendCommand(ctx, "upgrade", args, out,
		func(fs *flag.FlagSet) { fs.Uint8Var(&variation, "variation", 0, "Upgrade path: 0 adds 1 per click, 1 adds 2") },
		func(programID, user types.Pubkey, _ []string) ([]message.Instruction, error) {
			ix, err := clicker.NewUpgradeInstruction(programID, user, variation)
			return []message.Instruction{ix}, err
		})
}

func runTransfer(ctx context.Context, args []string, out io.Writer) error {
	return sendCommand(ctx, "transfer", args, out, nil,
		func(programID, user types.Pubkey, rest []string) ([]message.Instruction, error) {
			if len(rest) != 2 {
				return nil, errors.New("usage: clicker transfer <recipient> <amount>")
			}
			recipient, err := types.PubkeyFromBase58(rest[0])
			if err != nil {
				return nil, fmt.Errorf("invalid recipient %q: %w", rest[0], err)
			}
			amount, err := strconv.ParseUint(rest[1], 10, 64)
			if err != nil {
				return nil, fmt.Errorf("invalid amount %q: %w", rest[1], err)
			}
			ix, err := clicker.NewTransferInstruction(programID, user, recipient, amount)
			return []message.Instruction{ix}, err
		})
}

// sendCommand parses the common transaction flags, builds instructions and
// sends each one in its own transaction signed by the keypair.
func sendCommand(
	ctx context.Context,
	name string,
	args []string,
	out io.Writer,
	extraFlags func(fs *flag.FlagSet),
	build func(programID, user types.Pubkey, rest []string) ([]message.Instruction, error),
) error {
	fs := newFlagSet(name)
	var lf ledgerFlags
	lf.register(fs)
	keypair := registerKeypair(fs)
	if extraFlags != nil {
		extraFlags(fs)
	}
	if err := fs.Parse(args); err != nil {
		return err
	}

	kp, err := loadKeypair(*keypair)
	if err != nil {
		return err
	}
	programID, err := lf.clickerProgramID()
	if err != nil {
		return err
	}
	ixs, err := build(programID, kp.PublicKey(), fs.Args())
	if err != nil {
		return err
	}

	b, err := lf.open()
	if err != nil {
		return err
	}
	defer b.Close()

	for _, ix := range ixs {
		if err := sendInstruction(ctx, b, kp, ix, out); err != nil {
			return err
		}
	}
	return showUserState(ctx, b, kp.PublicKey(), out)
}

func sendInstruction(ctx context.Context, b backend, kp *keys.Keypair, ix message.Instruction, out io.Writer) error {
	blockhash, err := b.LatestBlockhash(ctx)
	if err != nil {
		return fmt.Errorf("get blockhash: %w", err)
	}
	msg, err := message.NewMessage(kp.PublicKey(), []message.Instruction{ix}, blockhash)
	if err != nil {
		return err
	}
	tx, err := message.NewTransaction(msg, kp)
	if err != nil {
		return err
	}
	res, err := b.Send(ctx, tx)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "Signature: %s (slot %d)\n", res.Signature, res.Slot)
	if res.Meta != nil && res.Meta.Err != nil {
		for _, line := range res.Meta.LogMessages {
			fmt.Fprintf(out, "  %s\n", line)
		}
		return fmt.Errorf("%w: %s", ErrTransactionFailed, describeFailure(res.Meta.Err))
	}
	return nil
}

// describeFailure renders a failed transaction the way program errors are
// usually shown, with the clicker error text when the code is known.
func describeFailure(e *rpc.TransactionError) string {
	if e.Custom != nil {
		desc := clicker.CustomErrorString(*e.Custom)
		if pe, ok := clicker.ErrorForCode(*e.Custom); ok {
			desc += " (" + pe.Msg + ")"
		}
		return fmt.Sprintf("instruction %d: %s", e.InstructionIndex, desc)
	}
	if e.InstructionIndex < 0 {
		return e.Message
	}
	return fmt.Sprintf("instruction %d: %s", e.InstructionIndex, e.Message)
}

func runShow(ctx context.Context, args []string, out io.Writer) error {
	fs := newFlagSet("show")
	var lf ledgerFlags
	lf.register(fs)
	keypair := registerKeypair(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	user, err := addressArg(fs.Args(), *keypair)
	if err != nil {
		return err
	}

	b, err := lf.open()
	if err != nil {
		return err
	}
	defer b.Close()

	balance, err := b.Balance(ctx, user)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Pubkey:  %s\nBalance: %s\n", user, formatLamports(balance))
	return showUserState(ctx, b, user, out)
}

func showUserState(ctx context.Context, b backend, user types.Pubkey, out io.Writer) error {
	info, err := b.UserState(ctx, user)
	if err != nil {
		return err
	}
	if info == nil {
		fmt.Fprintf(out, "No user state (run `clicker init`)\n")
		return nil
	}
	fmt.Fprintf(out, "User state %s\n", info.Address)
	fmt.Fprintf(out, "  Click balance:   %d\n", info.ClickBalance)
	fmt.Fprintf(out, "  Value per click: %d\n", info.ValuePerClick)
	fmt.Fprintf(out, "  Upgrade cost:    v0=%d v1=%d\n", info.CostToUpgradeV1, info.CostToUpgradeV2)
	return nil
}

func runHistory(ctx context.Context, args []string, out io.Writer) error {
	fs := newFlagSet("history")
	var lf ledgerFlags
	lf.register(fs)
	keypair := registerKeypair(fs)
	limit := fs.IntP("limit", "n", 20, "Maximum entries to list")
	if err := fs.Parse(args); err != nil {
		return err
	}
	addr, err := addressArg(fs.Args(), *keypair)
	if err != nil {
		return err
	}

	b, err := lf.open()
	if err != nil {
		return err
	}
	defer b.Close()

	entries, err := b.History(ctx, addr, *limit)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Fprintf(out, "No transactions for %s\n", addr)
		return nil
	}
	for _, e := range entries {
		status := "ok"
		if e.Err != nil {
			status = "failed: " + describeFailure(e.Err)
		}
		when := ""
		if e.BlockTime != nil {
			when = time.Unix(*e.BlockTime, 0).UTC().Format(time.RFC3339)
		}
		fmt.Fprintf(out, "%8d  %s  %s  %s\n", e.Slot, when, e.Signature, status)
	}
	return nil
}

func runSnapshot(_ context.Context, args []string, out io.Writer) error {
	fs := newFlagSet("snapshot")
	var lf ledgerFlags
	lf.register(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	rest := fs.Args()
	if len(rest) != 2 || (rest[0] != "create" && rest[0] != "load" && rest[0] != "info") {
		return errors.New("usage: clicker snapshot create|load|info <file>")
	}
	action, path := rest[0], rest[1]

	if action == "info" {
		h, err := accounts.ReadSnapshotHeader(path)
		if err != nil {
			return err
		}
		printSnapshotHeader(out, path, h)
		return nil
	}

	l, err := lf.openLocal()
	if err != nil {
		return err
	}
	defer l.Close()

	var h *accounts.SnapshotHeader
	switch action {
	case "create":
		h, err = accounts.CreateSnapshot(l.db, path)
	case "load":
		h, err = accounts.LoadSnapshot(l.db, path)
	}
	if err != nil {
		return err
	}
	printSnapshotHeader(out, path, h)
	return nil
}

func printSnapshotHeader(out io.Writer, path string, h *accounts.SnapshotHeader) {
	fmt.Fprintf(out, "Snapshot %s\n  Slot:       %d\n  Accounts:   %d\n  State hash: %s\n",
		path, h.Slot, h.AccountsCount, h.StateHash)
}

func runServe(ctx context.Context, args []string, _ io.Writer) error {
	fs := newFlagSet("serve")
	var lf ledgerFlags
	lf.register(fs)
	rpcAddr := fs.String("rpc-addr", ":8899", "RPC server listen address")
	noAirdrop := fs.Bool("no-airdrop", false, "Disable requestAirdrop")
	logRequests := fs.Bool("log-requests", false, "Log every RPC request")
	statusInterval := fs.Duration("status-interval", 10*time.Second, "Interval between status log lines")
	dashboardAddr := fs.String("dashboard-addr", "", "Dashboard listen address, e.g. 127.0.0.1:8080 (empty disables)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	log.Printf("Starting X1-Clicker %s", Version)
	l, err := lf.openLocal()
	if err != nil {
		return err
	}
	defer l.Close()
	log.Printf("Ledger %s at slot %d, program %s", lf.dataDir, l.db.GetSlot(), l.exec.ClickerProgramID())

	cfg := rpc.DefaultConfig()
	cfg.Addr = *rpcAddr
	cfg.EnableAirdrop = !*noAirdrop
	cfg.LogRequests = *logRequests
	server := rpc.New(cfg, l.db, l.journal, l.exec, l.metrics)

	var dash *dashboard.Dashboard
	if *dashboardAddr != "" {
		dcfg, err := dashboardConfig(*dashboardAddr)
		if err != nil {
			return err
		}
		if dash, err = dashboard.New(dcfg, l.journal, l.db, l.exec.ClickerProgramID()); err != nil {
			return err
		}
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start(ctx)
	}()
	if dash != nil {
		log.Printf("Dashboard on http://%s", dash.Address())
		go func() {
			if err := dash.Start(ctx); err != nil {
				log.Printf("Dashboard stopped: %v", err)
			}
		}()
	}

	// Print status periodically
	ticker := time.NewTicker(*statusInterval)
	defer ticker.Stop()
	for {
		select {
		case err := <-errCh:
			return err
		case <-ctx.Done():
			log.Println("Shutting down")
			return <-errCh
		case <-ticker.C:
			count, _ := l.db.AccountsCount()
			log.Printf("Status: slot=%d, transactions=%d, accounts=%d",
				l.db.GetSlot(), l.journal.Count(), count)
		}
	}
}

func dashboardConfig(addr string) (dashboard.Config, error) {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return dashboard.Config{}, fmt.Errorf("invalid --dashboard-addr: %w", err)
	}
	p, err := strconv.Atoi(port)
	if err != nil {
		return dashboard.Config{}, fmt.Errorf("invalid --dashboard-addr port: %w", err)
	}
	cfg := dashboard.DefaultConfig()
	cfg.BindAddress = host
	cfg.Port = p
	return cfg, nil
}

// formatLamports renders lamports with their SOL value.
func formatLamports(lamports uint64) string {
	return fmt.Sprintf("%d lamports (%s SOL)", lamports,
		strconv.FormatFloat(float64(lamports)/float64(executor.LamportsPerSOL), 'f', -1, 64))
}
