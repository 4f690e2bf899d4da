package node

import (
	"github.com/c360/nodeflow/errors"
)

// Re-exported sentinels so callers matching node failures need only this package.
var (
	ErrDisposed     = errors.ErrDisposed
	ErrNilConsumer  = errors.ErrNilConsumer
	ErrNilPayload   = errors.ErrNilPayload
	ErrNilHandler   = errors.ErrNilHandler
	ErrNotCloneable = errors.ErrNotCloneable
	ErrHandlerPanic = errors.ErrHandlerPanic
)
