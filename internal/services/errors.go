package services

import "errors"

// Error kinds surfaced by the profile registry. Callers match them with errors.Is; the
// underlying adapter error, when there is one, stays in the chain.
var (
	ErrUnauthenticated   = errors.New("authentication required")
	ErrInvalidInput      = errors.New("invalid input")
	ErrInvalidIdentifier = errors.New("invalid short identifier")
	ErrIdentifierTaken   = errors.New("short identifier already taken")
	ErrAssetUploadFailed = errors.New("asset upload failed")
	ErrStoreUnavailable  = errors.New("record store unavailable")
	ErrNotFound          = errors.New("profile not found")
	ErrTimeout           = errors.New("operation timed out")
	ErrNotOwner          = errors.New("profile is owned by another account")
	ErrImageRejected     = errors.New("image rejected: violates community guidelines")
)

// IsRetryable reports whether the caller may retry the same request unchanged.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrStoreUnavailable) || errors.Is(err, ErrTimeout)
}
