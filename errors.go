package pkgdist

import (
	"github.com/anacrolix/pkgdist/internal/errorsx"
)

const (
	// An operation was called in a state that doesn't allow it. These are programming errors.
	ErrInvalidState = errorsx.String("invalid state")
	// Status or persisted data from outside failed validation.
	ErrInvalidData = errorsx.String("invalid data")

	ErrOutOfRange      = errorsx.String("segment index out of range")
	ErrNotAvailable    = errorsx.String("segment not available")
	ErrVersionMismatch = errorsx.String("download state version mismatch")

	// Reported by transports when a peer has no free upload slots.
	ErrChoked = errorsx.String("peer choked")
	// Reported by transports when a peer can never be talked to.
	ErrIncompatibleVersion = errorsx.String("incompatible peer version")
)
