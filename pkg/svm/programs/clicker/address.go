package clicker

import (
	"github.com/fortiblox/X1-Clicker/internal/types"
	"github.com/fortiblox/X1-Clicker/pkg/svm/pda"
)

// UserStateSeed is the domain-separation seed for user state addresses.
const UserStateSeed = "user_state"

// userStateSeeds returns the derivation seeds for user, without the bump.
func userStateSeeds(user types.Pubkey) [][]byte {
	return [][]byte{user.Bytes(), []byte(UserStateSeed)}
}

// UserStateAddress derives the user state address for user under programID.
func UserStateAddress(user, programID types.Pubkey) (types.Pubkey, uint8, error) {
	addr, bump, _, err := pda.FindProgramAddress(userStateSeeds(user), programID)
	return addr, bump, err
}

// derivedAddress is a cached bump search result. attempts is kept so the
// compute charge does not depend on whether the cache was hit.
type derivedAddress struct {
	addr     types.Pubkey
	bump     uint8
	attempts int
}

type addressKey struct {
	program types.Pubkey
	user    types.Pubkey
}

func (p *Processor) deriveUserState(user, programID types.Pubkey) (derivedAddress, error) {
	key := addressKey{program: programID, user: user}
	if d, ok := p.addresses.Get(key); ok {
		return d, nil
	}
	addr, bump, attempts, err := pda.FindProgramAddress(userStateSeeds(user), programID)
	if err != nil {
		return derivedAddress{}, err
	}
	d := derivedAddress{addr: addr, bump: bump, attempts: attempts}
	p.addresses.Add(key, d)
	return d, nil
}
