package clicker

import (
	"errors"
	"fmt"
)

// ProgramError is a clicker failure with a stable custom error code. The host
// reports it to clients as "custom program error: 0x<code>".
type ProgramError struct {
	Code uint32
	Msg  string
}

func (e *ProgramError) Error() string {
	return e.Msg
}

// Clicker errors. Codes 0 and 1 are the deployed program's codes and must not
// change; later codes are appended.
var (
	ErrNotEnoughToUpgrade   = &ProgramError{0, "not enough clicks to upgrade"}
	ErrNotEnoughToTransfer  = &ProgramError{1, "not enough clicks to transfer to user"}
	ErrDecode               = &ProgramError{2, "invalid instruction data"}
	ErrAddressMismatch      = &ProgramError{3, "account does not match derived address"}
	ErrAlreadyInitialized   = &ProgramError{4, "user state already initialized"}
	ErrCorruptState         = &ProgramError{5, "user state does not deserialize"}
	ErrOverflow             = &ProgramError{6, "arithmetic overflow"}
	ErrInvalidVariation     = &ProgramError{7, "invalid upgrade variation"}
	ErrMissingSignature     = &ProgramError{8, "missing required signature"}
	ErrIllegalOwner         = &ProgramError{9, "account not owned by program"}
	ErrNotEnoughAccountKeys = &ProgramError{10, "not enough account keys"}
	ErrSelfTransfer         = &ProgramError{11, "cannot transfer clicks to self"}
)

// ErrorCode returns the custom code of the first ProgramError in err's chain.
func ErrorCode(err error) (uint32, bool) {
	var pe *ProgramError
	if errors.As(err, &pe) {
		return pe.Code, true
	}
	return 0, false
}

// CustomErrorString formats a code the way clients display program errors.
func CustomErrorString(code uint32) string {
	return fmt.Sprintf("custom program error: 0x%x", code)
}

var programErrors = []*ProgramError{
	ErrNotEnoughToUpgrade, ErrNotEnoughToTransfer, ErrDecode, ErrAddressMismatch,
	ErrAlreadyInitialized, ErrCorruptState, ErrOverflow, ErrInvalidVariation,
	ErrMissingSignature, ErrIllegalOwner, ErrNotEnoughAccountKeys, ErrSelfTransfer,
}

// ErrorForCode maps a custom code reported by the host back to its error.
func ErrorForCode(code uint32) (*ProgramError, bool) {
	if int(code) >= len(programErrors) {
		return nil, false
	}
	return programErrors[code], true
}
