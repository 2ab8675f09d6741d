package pipeline

import (
	"github.com/pkg/errors"
)

var (
	ErrDAGMustBeSet    = errors.New("dag must be set")
	ErrNodeMustBeSet   = errors.New("node must be set")
	ErrEmptyNodeID     = errors.New("node id must not be empty")
	ErrNilTask         = errors.New("node task must be set")
	ErrNodeExists      = errors.New("node already exists")
	ErrUnknownUpstream = errors.New("unknown upstream node")
	ErrUnknownNode     = errors.New("unknown node")
)

// ErrSkip is returned by a task that has nothing to do for the session.
var ErrSkip = errors.New("skipped")

// Skip returns an error matching ErrSkip carrying reason.
func Skip(reason string) error {
	return errors.Wrap(ErrSkip, reason)
}

// IsSkip reports whether err is a skip outcome.
func IsSkip(err error) bool {
	return errors.Is(err, ErrSkip)
}
