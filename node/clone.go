package node

import (
	"bytes"
	"fmt"
	"time"

	"github.com/c360/nodeflow/errors"
)

// ClonePayload returns an independently owned copy of payload. Cloner payloads
// copy themselves, immutable scalar types are shared, byte slices are copied.
// Anything else fails with ErrNotCloneable.
func ClonePayload(payload Payload) (Payload, error) {
	switch v := payload.(type) {
	case Cloner:
		clone := v.Clone()
		if clone == nil {
			return nil, fmt.Errorf("%w: %T.Clone returned nil", errors.ErrNotCloneable, payload)
		}
		return clone, nil
	case string, bool,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64, uintptr,
		float32, float64, complex64, complex128,
		time.Time, time.Duration:
		return v, nil
	case []byte:
		return bytes.Clone(v), nil
	default:
		return nil, fmt.Errorf("%w: %T", errors.ErrNotCloneable, payload)
	}
}
