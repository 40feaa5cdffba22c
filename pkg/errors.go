package pkg

import "errors"

var (
	// ErrHopLimitExceeded is returned when a successor lookup is forwarded more times than allowed
	ErrHopLimitExceeded = errors.New("lookup failed: exceeded hop limit")

	// ErrNodeUnreachable is returned when a remote node cannot be reached or does not answer in time
	ErrNodeUnreachable = errors.New("node unreachable")

	// ErrAlreadyJoined is returned when Join is called on a node that is already part of a ring
	ErrAlreadyJoined = errors.New("node already joined a ring")

	// ErrNoRemote is returned when a remote call is needed but no remote client is set
	ErrNoRemote = errors.New("remote client not set")

	// ErrInvalidAddress is returned when a node address fails validation
	ErrInvalidAddress = errors.New("invalid node address")

	// ErrRingWalkIncomplete is returned when a ring walk does not come back to its origin
	ErrRingWalkIncomplete = errors.New("ring walk did not return to origin")
)
