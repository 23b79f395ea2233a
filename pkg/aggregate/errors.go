package aggregate

import (
	"errors"
	"fmt"
)

// ErrConflict is returned by the repository when a commit loses an
// optimistic-concurrency race: the aggregate changed between load and
// commit. The caller decides whether to retry (see repository.RetryOnConflict).
var ErrConflict = errors.New("aggregate: conflict")

// ErrNotFound reports an aggregate that has no journal entries and no
// snapshot. repository.Load does not return it: such an aggregate loads as
// a freshly initialized, version-0 aggregate (repository.Exists tells the
// two cases apart).
var ErrNotFound = errors.New("aggregate: not found")

// CommandError wraps the domain-specific error an aggregate's Handle
// returned, distinguishing "the command was rejected by business rules"
// from infrastructure failures (ErrConflict, ErrNotFound, or a bare
// storage error) while still exposing the original error via errors.Unwrap.
type CommandError struct {
	Err error
}

func (e *CommandError) Error() string { return fmt.Sprintf("aggregate: command rejected: %v", e.Err) }
func (e *CommandError) Unwrap() error { return e.Err }

// Rejected wraps err, the domain error an aggregate's Handle produced, as a
// CommandError.
func Rejected(err error) error {
	if err == nil {
		return nil
	}
	return &CommandError{Err: err}
}
