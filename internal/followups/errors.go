package followups

import "errors"

var (
	// ErrSuggestionNotFound is returned when a suggestion lookup misses.
	ErrSuggestionNotFound = errors.New("follow-up suggestion not found")

	// ErrSuggestionSettled is returned when a suggestion was already
	// scheduled or rejected.
	ErrSuggestionSettled = errors.New("follow-up suggestion already settled")

	// ErrParentNotCompleted is returned when suggesting a follow-up for an
	// appointment that has not completed.
	ErrParentNotCompleted = errors.New("parent appointment not completed")
)
