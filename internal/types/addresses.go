// Package types provides well-known program addresses.
package types

var (
	// SystemProgramAddr is the System Program address.
	SystemProgramAddr = MustPubkeyFromBase58("11111111111111111111111111111111")

	// ClickerProgramAddr is the default deployment address of the clicker program.
	ClickerProgramAddr = MustPubkeyFromBase58("6GqD9tH1XSagGejjVHLaarR2GAzycshGdntvMjWdMMMG")
)

// IsNativeProgram returns true if the pubkey is a program built into the runtime
// rather than one registered by the operator.
func IsNativeProgram(p Pubkey) bool {
	return p == SystemProgramAddr
}
