package registry

import "fmt"

// Error is a typed registry failure, in the shape of the pack's
// code+message sentinel pattern (other_examples/PXR05-ft_0__types.go's
// SessionError) rather than a bare fmt.Errorf string: callers can switch
// on Code without string-matching.
type Error struct {
	Code    string
	Message string
}

func (e Error) Error() string { return fmt.Sprintf("%s: %s", e.Code, e.Message) }

var (
	ErrAlreadyExists = Error{
		Code:    "ALREADY_EXISTS",
		Message: "a transfer with this id is already registered",
	}
	ErrUnknownTransfer = Error{
		Code:    "UNKNOWN_TRANSFER",
		Message: "no transfer with this id is registered",
	}
	ErrWrongState = Error{
		Code:    "WRONG_STATE",
		Message: "transfer is not in a state that permits this operation",
	}
	ErrSequenceOutOfRange = Error{
		Code:    "SEQUENCE_OUT_OF_RANGE",
		Message: "chunk sequence number is outside [0, expected-chunk-count)",
	}
	ErrDuplicateSequence = Error{
		Code:    "DUPLICATE_SEQUENCE",
		Message: "chunk sequence number was already recorded for this transfer",
	}
	ErrInvalidTransferID = Error{
		Code:    "INVALID_TRANSFER_ID",
		Message: "transfer id is not a canonical UUID",
	}
	ErrPolicyDenied = Error{
		Code:    "POLICY_DENIED",
		Message: "transfer rejected by policy",
	}
)
