package core

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when a requested object does not exist in storage.
var ErrNotFound = errors.New("not found")

// ErrorKind groups failures so clients can tell "fix the request" from
// "retry later" without parsing messages.
type ErrorKind uint8

const (
	KindMalformed ErrorKind = iota + 1
	KindAuthorization
	KindState
	KindResource
	KindRuntime
)

func (k ErrorKind) String() string {
	switch k {
	case KindMalformed:
		return "malformed"
	case KindAuthorization:
		return "authorization"
	case KindState:
		return "state"
	case KindResource:
		return "resource"
	case KindRuntime:
		return "runtime"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// ProgramError is the typed failure every program and the runtime return.
// Two ProgramErrors match under errors.Is when their codes are equal.
type ProgramError struct {
	Code      uint32    `json:"code"`
	Kind      ErrorKind `json:"kind"`
	Message   string    `json:"message"`
	Retryable bool      `json:"retryable"`
}

// NewError declares a ProgramError. Programs call it once per failure kind
// at package level.
func NewError(code uint32, kind ErrorKind, msg string) *ProgramError {
	return &ProgramError{Code: code, Kind: kind, Message: msg}
}

// NewRetryableError declares a failure that may succeed once other
// invocations have changed state.
func NewRetryableError(code uint32, kind ErrorKind, msg string) *ProgramError {
	return &ProgramError{Code: code, Kind: kind, Message: msg, Retryable: true}
}

func (e *ProgramError) Error() string { return e.Message }

// Is matches on code so wrapped copies still compare equal.
func (e *ProgramError) Is(target error) bool {
	var pe *ProgramError
	if !errors.As(target, &pe) {
		return false
	}
	return pe.Code == e.Code
}

// AsProgramError extracts the ProgramError in err's chain, if any.
func AsProgramError(err error) (*ProgramError, bool) {
	var pe *ProgramError
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}

// Runtime and builtin errors. Program specific codes start at 6000.
var (
	ErrInvalidInstructionData   = NewError(1, KindMalformed, "invalid instruction data")
	ErrNotEnoughAccountKeys     = NewError(2, KindMalformed, "not enough account keys")
	ErrMissingRequiredSignature = NewError(3, KindAuthorization, "missing required signature")
	ErrIllegalOwner             = NewError(4, KindAuthorization, "account not owned by program")
	ErrIncorrectProgramID       = NewError(5, KindAuthorization, "incorrect program id")
	ErrInvalidSeeds             = NewError(6, KindAuthorization, "presented address does not match derivation")
	ErrUninitializedAccount     = NewError(7, KindState, "account not initialized")
	ErrAccountAlreadyInUse      = NewError(8, KindState, "account already in use")
	ErrInsufficientFunds        = NewError(9, KindResource, "insufficient lamports")
	ErrAccountDataTooSmall      = NewError(10, KindMalformed, "account data has the wrong size")
	ErrReadonlyModified         = NewError(11, KindRuntime, "instruction modified a read-only account")
	ErrExternalDataModified     = NewError(12, KindRuntime, "instruction modified data of an account it does not own")
	ErrExternalLamportSpend     = NewError(13, KindRuntime, "instruction spent lamports of an account it does not own")
	ErrModifiedProgramID        = NewError(14, KindRuntime, "instruction illegally modified the owner of an account")
	ErrUnbalancedInstruction    = NewError(15, KindRuntime, "sum of account balances changed")
	ErrMissingAccount           = NewError(16, KindRuntime, "invoked program is not among the instruction accounts")
	ErrPrivilegeEscalation      = NewError(17, KindRuntime, "cross-program invocation escalated an account privilege")
	ErrUnknownProgram           = NewError(18, KindMalformed, "no program registered under this id")
	ErrInvalidRealloc           = NewError(19, KindRuntime, "instruction changed the size of account data")
	ErrArithmeticOverflow       = NewError(20, KindResource, "arithmetic overflow")
	ErrInvalidNonce             = NewError(21, KindState, "fee payer nonce mismatch")
	ErrCallDepthExceeded        = NewError(22, KindRuntime, "cross-program invocation too deep")
	ErrInvalidTransaction       = NewError(23, KindMalformed, "transaction failed verification")
)
