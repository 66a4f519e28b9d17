package main

import (
	"fmt"
	"os"
	"time"

	flag "github.com/spf13/pflag"

	"github.com/fortiblox/X1-Clicker/internal/keys"
	"github.com/fortiblox/X1-Clicker/internal/types"
	"github.com/fortiblox/X1-Clicker/pkg/svm/executor"
)

// defaultKeypairPath is where keygen writes and other commands read.
const defaultKeypairPath = "clicker-keypair.json"

// ledgerFlags select and configure the ledger a command runs against.
type ledgerFlags struct {
	dataDir   string
	url       string
	timeout   time.Duration
	programID string
	legacy    bool
}

func (f *ledgerFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&f.dataDir, "data-dir", "clicker-ledger", "Data directory for the local ledger")
	fs.StringVarP(&f.url, "url", "u", "", "JSON-RPC URL of a running node (overrides --data-dir)")
	fs.DurationVar(&f.timeout, "timeout", 30*time.Second, "JSON-RPC request timeout")
	fs.StringVar(&f.programID, "program-id", types.ClickerProgramAddr.String(), "Clicker program address")
	fs.BoolVar(&f.legacy, "legacy-checks", false, "Skip signer and derived address checks on Click, Upgrade and Transfer")
}

func (f *ledgerFlags) clickerProgramID() (types.Pubkey, error) {
	id, err := types.PubkeyFromBase58(f.programID)
	if err != nil {
		return types.Pubkey{}, fmt.Errorf("invalid --program-id: %w", err)
	}
	return id, nil
}

func (f *ledgerFlags) executorConfig() (executor.Config, error) {
	cfg := executor.DefaultConfig()
	id, err := f.clickerProgramID()
	if err != nil {
		return cfg, err
	}
	cfg.ClickerProgramID = id
	cfg.Clicker.SkipSignerCheck = f.legacy
	cfg.Clicker.SkipAddressCheck = f.legacy
	return cfg, nil
}

// open returns a remote backend if --url is set, else opens the local ledger.
func (f *ledgerFlags) open() (backend, error) {
	if f.url != "" {
		return newRemoteLedger(f.url, f.timeout), nil
	}
	cfg, err := f.executorConfig()
	if err != nil {
		return nil, err
	}
	return openLocalLedger(f.dataDir, cfg)
}

// openLocal opens the on-disk ledger, for commands that cannot run remotely.
func (f *ledgerFlags) openLocal() (*localLedger, error) {
	if f.url != "" {
		return nil, fmt.Errorf("--url is not supported by this command")
	}
	cfg, err := f.executorConfig()
	if err != nil {
		return nil, err
	}
	return openLocalLedger(f.dataDir, cfg)
}

func newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SortFlags = false
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage of clicker %s:\n", name)
		fs.PrintDefaults()
	}
	return fs
}

func registerKeypair(fs *flag.FlagSet) *string {
	return fs.StringP("keypair", "k", defaultKeypairPath, "Keypair file")
}

func loadKeypair(path string) (*keys.Keypair, error) {
	kp, err := keys.Load(path)
	if err != nil {
		return nil, fmt.Errorf("%w (create one with `clicker keygen`)", err)
	}
	return kp, nil
}

// addressArg resolves an optional positional address, defaulting to the
// keypair's public key.
func addressArg(args []string, keypairPath string) (types.Pubkey, error) {
	if len(args) > 0 {
		pk, err := types.PubkeyFromBase58(args[0])
		if err != nil {
			return types.Pubkey{}, fmt.Errorf("invalid address %q: %w", args[0], err)
		}
		return pk, nil
	}
	kp, err := loadKeypair(keypairPath)
	if err != nil {
		return types.Pubkey{}, err
	}
	return kp.PublicKey(), nil
}
