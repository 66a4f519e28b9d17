// Package clicker implements the clicker game program: an instruction
// decoder and the state transition engine behind InitUser, Click,
// UpgradeValuePerClick and TransferClicks.
//
// Each user owns one UserState record at the program derived address
// [user, "user_state"]. The engine only sees account handles through
// InvokeContext; committing or discarding its writes is the host's job.
package clicker

import (
	"errors"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/fortiblox/X1-Clicker/internal/types"
	"github.com/fortiblox/X1-Clicker/pkg/svm"
	"github.com/fortiblox/X1-Clicker/pkg/svm/message"
	"github.com/fortiblox/X1-Clicker/pkg/svm/programs/system"
)

// Compute costs charged by the engine on top of address derivation.
const (
	CUBase      = uint64(300)
	CUPerRecord = uint64(100)
)

// InvokeContext is the host surface the engine runs against.
type InvokeContext interface {
	// ProgramID is the id the program was invoked under.
	ProgramID() types.Pubkey

	// NumAccounts is the number of accounts passed to the instruction.
	NumAccounts() int

	// GetAccount returns the account at the given instruction index.
	GetAccount(index int) (*svm.AccountInfo, error)

	// InvokeSigned runs a nested instruction. Each seed set must derive,
	// under ProgramID, an address that then counts as a signer.
	InvokeSigned(ix message.Instruction, signerSeeds [][][]byte) error

	// GetRentMinimum returns the rent-exempt minimum for given data size.
	GetRentMinimum(dataLen uint64) uint64

	// ConsumeCU charges compute units.
	ConsumeCU(units uint64) error

	// Log records a program log message.
	Log(msg string)
}

// Config controls engine checks.
type Config struct {
	// SkipSignerCheck accepts Click, UpgradeValuePerClick and TransferClicks
	// without a signature from the user or sender.
	SkipSignerCheck bool

	// SkipAddressCheck accepts any program-owned state account for Click,
	// UpgradeValuePerClick and TransferClicks, not just the derived one.
	SkipAddressCheck bool

	// AddressCacheSize bounds the derived address cache.
	AddressCacheSize int
}

// DefaultConfig returns the hardened configuration.
func DefaultConfig() Config {
	return Config{AddressCacheSize: 4096}
}

// Processor executes clicker instructions.
type Processor struct {
	cfg       Config
	addresses *lru.Cache[addressKey, derivedAddress]
}

// NewProcessor creates a clicker processor.
func NewProcessor(cfg Config) (*Processor, error) {
	if cfg.AddressCacheSize <= 0 {
		cfg.AddressCacheSize = DefaultConfig().AddressCacheSize
	}
	cache, err := lru.New[addressKey, derivedAddress](cfg.AddressCacheSize)
	if err != nil {
		return nil, fmt.Errorf("address cache: %w", err)
	}
	return &Processor{cfg: cfg, addresses: cache}, nil
}

// Process decodes and executes one instruction.
func (p *Processor) Process(ctx InvokeContext, data []byte) error {
	ix, err := DecodeInstruction(data)
	if err != nil {
		return err
	}
	if err := ctx.ConsumeCU(CUBase); err != nil {
		return err
	}

	switch ix := ix.(type) {
	case InitUser:
		ctx.Log("Instruction: InitUser")
		return p.initUser(ctx)
	case Click:
		ctx.Log("Instruction: Click")
		return p.click(ctx)
	case UpgradeValuePerClick:
		ctx.Log(fmt.Sprintf("Instruction: UpgradeValuePerClick %d", ix.Variation))
		return p.upgrade(ctx, ix.Variation)
	case TransferClicks:
		ctx.Log(fmt.Sprintf("Instruction: TransferClicks %d", ix.Amount))
		return p.transfer(ctx, ix.Amount)
	default:
		return ErrDecode
	}
}

func (p *Processor) accounts(ctx InvokeContext, n int) ([]*svm.AccountInfo, error) {
	if ctx.NumAccounts() < n {
		return nil, fmt.Errorf("%w: need %d, got %d", ErrNotEnoughAccountKeys, n, ctx.NumAccounts())
	}
	out := make([]*svm.AccountInfo, n)
	for i := range out {
		acc, err := ctx.GetAccount(i)
		if err != nil {
			return nil, fmt.Errorf("%w: account %d: %v", ErrNotEnoughAccountKeys, i, err)
		}
		out[i] = acc
	}
	return out, nil
}

// derive resolves user's state address and charges the bump search.
func (p *Processor) derive(ctx InvokeContext, user types.Pubkey) (derivedAddress, error) {
	d, err := p.deriveUserState(user, ctx.ProgramID())
	if err != nil {
		return d, err
	}
	if err := ctx.ConsumeCU(uint64(d.attempts) * svm.CUFindProgramAddress); err != nil {
		return d, err
	}
	return d, nil
}

func (p *Processor) initUser(ctx InvokeContext) error {
	accs, err := p.accounts(ctx, 3)
	if err != nil {
		return err
	}
	user, state, sysProgram := accs[0], accs[1], accs[2]

	if !user.IsSigner {
		return fmt.Errorf("%w: user %s", ErrMissingSignature, user.Key)
	}
	if sysProgram.Key != system.ProgramID {
		return fmt.Errorf("%w: system program %s", ErrAddressMismatch, sysProgram.Key)
	}
	d, err := p.derive(ctx, user.Key)
	if err != nil {
		return err
	}
	if state.Key != d.addr {
		return fmt.Errorf("%w: user state %s, want %s", ErrAddressMismatch, state.Key, d.addr)
	}
	if state.Owner == ctx.ProgramID() {
		return fmt.Errorf("%w: %s", ErrAlreadyInitialized, state.Key)
	}

	create := system.NewCreateAccountInstruction(
		user.Key, state.Key, ctx.GetRentMinimum(UserStateSize), UserStateSize, ctx.ProgramID())
	seeds := append(userStateSeeds(user.Key), []byte{d.bump})
	if err := ctx.InvokeSigned(create, [][][]byte{seeds}); err != nil {
		if isAlreadyInUse(err) {
			return fmt.Errorf("%w: %v", ErrAlreadyInitialized, err)
		}
		return fmt.Errorf("create user state: %w", err)
	}

	return p.store(ctx, state, NewUserState())
}

func (p *Processor) click(ctx InvokeContext) error {
	accs, err := p.accounts(ctx, 2)
	if err != nil {
		return err
	}
	user, state := accs[0], accs[1]

	if err := p.checkSigner(user); err != nil {
		return err
	}
	s, err := p.load(ctx, user.Key, state)
	if err != nil {
		return err
	}
	next, err := s.Click()
	if err != nil {
		return err
	}
	return p.store(ctx, state, next)
}

func (p *Processor) upgrade(ctx InvokeContext, variation uint8) error {
	accs, err := p.accounts(ctx, 2)
	if err != nil {
		return err
	}
	user, state := accs[0], accs[1]

	if err := p.checkSigner(user); err != nil {
		return err
	}
	s, err := p.load(ctx, user.Key, state)
	if err != nil {
		return err
	}
	next, err := s.Upgrade(variation)
	if err != nil {
		return err
	}
	return p.store(ctx, state, next)
}

func (p *Processor) transfer(ctx InvokeContext, amount uint64) error {
	accs, err := p.accounts(ctx, 4)
	if err != nil {
		return err
	}
	sender, senderState, recipient, recipientState := accs[0], accs[1], accs[2], accs[3]

	if err := p.checkSigner(sender); err != nil {
		return err
	}
	if senderState.Key == recipientState.Key {
		return fmt.Errorf("%w: %s", ErrSelfTransfer, senderState.Key)
	}
	from, err := p.load(ctx, sender.Key, senderState)
	if err != nil {
		return fmt.Errorf("sender: %w", err)
	}
	to, err := p.load(ctx, recipient.Key, recipientState)
	if err != nil {
		return fmt.Errorf("recipient: %w", err)
	}

	// Both records are computed before either is written.
	from, to, err = from.Transfer(to, amount)
	if err != nil {
		return err
	}
	if err := p.store(ctx, senderState, from); err != nil {
		return err
	}
	return p.store(ctx, recipientState, to)
}

func (p *Processor) checkSigner(user *svm.AccountInfo) error {
	if p.cfg.SkipSignerCheck || user.IsSigner {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrMissingSignature, user.Key)
}

// load validates a state account for user and decodes it.
func (p *Processor) load(ctx InvokeContext, user types.Pubkey, state *svm.AccountInfo) (UserState, error) {
	if state.Owner != ctx.ProgramID() {
		return UserState{}, fmt.Errorf("%w: %s owned by %s", ErrIllegalOwner, state.Key, state.Owner)
	}
	if !p.cfg.SkipAddressCheck {
		d, err := p.derive(ctx, user)
		if err != nil {
			return UserState{}, err
		}
		if state.Key != d.addr {
			return UserState{}, fmt.Errorf("%w: user state %s, want %s", ErrAddressMismatch, state.Key, d.addr)
		}
	}
	// One read and one write-back per record.
	if err := ctx.ConsumeCU(2 * CUPerRecord); err != nil {
		return UserState{}, err
	}
	return UnmarshalUserState(state.Data)
}

func (p *Processor) store(ctx InvokeContext, state *svm.AccountInfo, s UserState) error {
	if len(state.Data) != UserStateSize {
		return fmt.Errorf("%w: %d bytes allocated", ErrCorruptState, len(state.Data))
	}
	s.put(state.Data)
	return nil
}

func isAlreadyInUse(err error) bool {
	return errors.Is(err, system.ErrAccountAlreadyInUse)
}
