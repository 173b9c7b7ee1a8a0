package tracker

import "errors"

var (
	// ErrNotFound indicates the remote issue, project, or field does
	// not exist or is not visible with the configured credentials.
	ErrNotFound = errors.New("tracker: not found")

	// ErrRateLimited indicates the remote rejected the call due to
	// rate limiting and the retry budget has been exhausted.
	ErrRateLimited = errors.New("tracker: rate limited")

	// ErrTransient indicates a temporary failure (5xx, network) that
	// persisted past the retry budget.
	ErrTransient = errors.New("tracker: transient failure")

	// ErrEndOfList signals that a sequence has no further elements.
	ErrEndOfList = errors.New("tracker: end of list")
)
