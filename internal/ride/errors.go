package ride

import (
	"errors"
	"fmt"
)

// Error taxonomy surfaced to collaborators. Handlers translate these into
// status codes; the service never carries user-facing text beyond the kind
// and a short diagnostic.
var (
	ErrNotFound          = errors.New("not found")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrInvalidTransition = errors.New("invalid transition")
	ErrMissingField      = errors.New("missing field")
	ErrInvalidValue      = errors.New("invalid value")
)

// ErrRideTaken is the already-taken signal the loser of a concurrent accept
// receives. It still matches ErrInvalidTransition for callers that only care
// about legality.
var ErrRideTaken = fmt.Errorf("%w: ride already taken", ErrInvalidTransition)
