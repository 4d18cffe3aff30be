package forkchoice

import "errors"

// Sentinel errors for fork choice validation.
// Callers may use errors.Is to check for specific failure types.
var (
	ErrParentNotFound          = errors.New("forkchoice: parent not found")             // block's parent root not in store
	ErrSourceNotFound          = errors.New("forkchoice: source root not found")        // attestation source root not in store
	ErrTargetNotFound          = errors.New("forkchoice: target root not found")        // attestation target root not in store
	ErrHeadNotFound            = errors.New("forkchoice: head root not found")          // store has no head yet
	ErrSlotMismatch            = errors.New("forkchoice: slot mismatch")                // checkpoint slot doesn't match block slot
	ErrFutureVote              = errors.New("forkchoice: vote too far in future")       // vote.Slot > currentSlot + 1
	ErrWrongProposer           = errors.New("forkchoice: unexpected proposer for slot") // ProduceBlock called by the wrong validator
	ErrAnchorStateRootMismatch = errors.New("forkchoice: anchor block state_root does not match anchor state")
	ErrSignatureCount          = errors.New("forkchoice: signature list length must equal len(attestations)+1")
	ErrInvalidProposer         = errors.New("forkchoice: proposer index out of range")
	ErrSignatureInvalid        = errors.New("forkchoice: signature verification failed")
)
