package sig

import "errors"

var (
	// ErrEpochOutOfRange is returned by Sign when the requested epoch falls
	// outside [activationEpoch, activationEpoch+numActiveEpochs).
	ErrEpochOutOfRange = errors.New("sig: epoch outside key activation window")
	// ErrEpochReused is returned by Sign when the one-time leaf for the
	// requested epoch has already produced a signature.
	ErrEpochReused = errors.New("sig: epoch already signed with this key")
	// ErrLifetimeExceeded is returned by KeyGen when numActiveEpochs does not
	// fit within the scheme's Merkle-tree height.
	ErrLifetimeExceeded = errors.New("sig: numActiveEpochs exceeds scheme lifetime")
	// ErrMalformedSignature is returned when a wire signature cannot be
	// decoded (wrong length is impossible since Signature is a fixed array,
	// but an authPathLen outside the scheme's height is not).
	ErrMalformedSignature = errors.New("sig: malformed signature payload")
	// ErrMalformedPublicKey is returned when a wire public key's embedded
	// scheme tag is not one of the known lifetime variants.
	ErrMalformedPublicKey = errors.New("sig: malformed public key payload")
)
