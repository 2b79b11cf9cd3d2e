package memory

import (
	"context"
	"errors"
	"slices"

	"github.com/becomeliminal/nim-memory/core"
	"github.com/m-mizutani/goerr/v2"
)

// Error taxonomy. Adapters tag the errors they return so the orchestrator can
// classify them; the orchestrator tags whatever it returns from TryStoreMessage.
var (
	ErrTagEmbedding          = goerr.NewTag("embedding")
	ErrTagStoreUnavailable   = goerr.NewTag("store_unavailable")
	ErrTagWrite              = goerr.NewTag("write")
	ErrTagQuery              = goerr.NewTag("query")
	ErrTagServiceUnavailable = goerr.NewTag("service_unavailable")

	// ErrTagInvalidArgument is shared with core so validation errors from
	// either package carry the same tag.
	ErrTagInvalidArgument = core.ErrTagInvalidArgument
)

// Tag is satisfied by the tags goerr.NewTag returns.
type Tag interface {
	String() string
}

// HasTag reports whether err or any error it wraps carries tag. Joined errors
// are searched branch by branch.
func HasTag(err error, tag Tag) bool {
	if err == nil {
		return false
	}
	if slices.Contains(goerr.Tags(err), tag.String()) {
		return true
	}
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		for _, e := range joined.Unwrap() {
			if HasTag(e, tag) {
				return true
			}
		}
		return false
	}
	return HasTag(errors.Unwrap(err), tag)
}

// IsInvalidArgument reports whether err was caused by caller misuse.
func IsInvalidArgument(err error) bool {
	return HasTag(err, ErrTagInvalidArgument)
}

// isUnavailable reports whether a store error means the store can't be reached.
func isUnavailable(err error) bool {
	return HasTag(err, ErrTagStoreUnavailable) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, context.Canceled)
}
