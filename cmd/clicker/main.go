// X1-Clicker: a clicker game ledger and its command line client.
//
// `clicker serve` runs a ledger node with a JSON-RPC endpoint. The other
// subcommands drive a ledger either in-process from --data-dir or through a
// running node with --url.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/samber/lo"
	flag "github.com/spf13/pflag"
)

// Version information
var (
	Version   = "0.1.0"
	GitCommit = "dev"
)

// command is one subcommand.
type command struct {
	name    string
	summary string
	run     func(ctx context.Context, args []string, out io.Writer) error
}

var commands = []command{
	{"keygen", "Create a keypair file", runKeygen},
	{"airdrop", "Credit lamports to an account from the faucet", runAirdrop},
	{"init", "Create the user state record", runInit},
	{"click", "Click", runClick},
	{"upgrade", "Upgrade value per click (variation 0 or 1)", runUpgrade},
	{"transfer", "Transfer clicks to another user", runTransfer},
	{"show", "Show an account's balance and user state", runShow},
	{"history", "List an address's transactions, newest first", runHistory},
	{"snapshot", "Export or import the accounts of a local ledger", runSnapshot},
	{"serve", "Run a ledger node with a JSON-RPC server", runServe},
}

func main() {
	log.SetFlags(log.Ldate | log.Ltime | log.Lmicroseconds)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		log.Printf("Received signal %v, shutting down...", sig)
		cancel()
	}()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// run dispatches args to a subcommand.
func run(ctx context.Context, args []string, out io.Writer) error {
	if len(args) == 0 {
		usage(out)
		return errors.New("no command given")
	}
	switch args[0] {
	case "help", "-h", "--help":
		usage(out)
		return nil
	case "version", "--version":
		fmt.Fprintf(out, "X1-Clicker %s (%s)\n", Version, GitCommit)
		return nil
	}

	cmd, ok := lo.Find(commands, func(c command) bool { return c.name == args[0] })
	if !ok {
		usage(out)
		return fmt.Errorf("unknown command %q", args[0])
	}
	return cmd.run(ctx, args[1:], out)
}

func usage(out io.Writer) {
	fmt.Fprintf(out, "Usage: clicker <command> [flags]\n\nCommands:\n")
	for _, c := range commands {
		fmt.Fprintf(out, "  %-10s %s\n", c.name, c.summary)
	}
	fmt.Fprintf(out, "\nRun 'clicker <command> --help' for command flags.\n")
}
