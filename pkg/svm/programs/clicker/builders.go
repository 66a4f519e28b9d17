package clicker

import (
	"github.com/fortiblox/X1-Clicker/internal/types"
	"github.com/fortiblox/X1-Clicker/pkg/svm/message"
	"github.com/fortiblox/X1-Clicker/pkg/svm/programs/system"
)

// NewInitUserInstruction builds InitUser for user, who pays for the account.
func NewInitUserInstruction(programID, user types.Pubkey) (message.Instruction, error) {
	state, _, err := UserStateAddress(user, programID)
	if err != nil {
		return message.Instruction{}, err
	}
	return message.Instruction{
		ProgramID: programID,
		Accounts: []message.AccountMeta{
			{Pubkey: user, IsSigner: true, IsWritable: true},
			{Pubkey: state, IsWritable: true},
			{Pubkey: system.ProgramID},
		},
		Data: InitUser{}.encode(),
	}, nil
}

// NewClickInstruction builds Click for user.
func NewClickInstruction(programID, user types.Pubkey) (message.Instruction, error) {
	return userInstruction(programID, user, Click{})
}

// NewUpgradeInstruction builds UpgradeValuePerClick for user.
func NewUpgradeInstruction(programID, user types.Pubkey, variation uint8) (message.Instruction, error) {
	return userInstruction(programID, user, UpgradeValuePerClick{Variation: variation})
}

// NewTransferInstruction builds TransferClicks from sender to recipient.
func NewTransferInstruction(programID, sender, recipient types.Pubkey, amount uint64) (message.Instruction, error) {
	from, _, err := UserStateAddress(sender, programID)
	if err != nil {
		return message.Instruction{}, err
	}
	to, _, err := UserStateAddress(recipient, programID)
	if err != nil {
		return message.Instruction{}, err
	}
	return message.Instruction{
		ProgramID: programID,
		Accounts: []message.AccountMeta{
			{Pubkey: sender, IsSigner: true},
			{Pubkey: from, IsWritable: true},
			{Pubkey: recipient},
			{Pubkey: to, IsWritable: true},
		},
		Data: TransferClicks{Amount: amount}.encode(),
	}, nil
}

func userInstruction(programID, user types.Pubkey, ix Instruction) (message.Instruction, error) {
	state, _, err := UserStateAddress(user, programID)
	if err != nil {
		return message.Instruction{}, err
	}
	return message.Instruction{
		ProgramID: programID,
		Accounts: []message.AccountMeta{
			{Pubkey: user, IsSigner: true},
			{Pubkey: state, IsWritable: true},
		},
		Data: ix.encode(),
	}, nil
}
