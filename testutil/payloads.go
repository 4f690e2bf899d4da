package testutil

import (
	"maps"
	"slices"

	"github.com/c360/nodeflow/node"
)

// Document is a cloneable payload with nested mutable fields.
type Document struct {
	ID     string            `json:"id"`
	Body   string            `json:"body"`
	Tags   []string          `json:"tags,omitempty"`
	Fields map[string]string `json:"fields,omitempty"`
}

// Clone returns a deep copy.
func (d *Document) Clone() node.Payload {
	return &Document{
		ID:     d.ID,
		Body:   d.Body,
		Tags:   slices.Clone(d.Tags),
		Fields: maps.Clone(d.Fields),
	}
}

// Opaque is a payload without a clone capability.
type Opaque struct {
	Value int
}

// TestMessages are generic JSON documents used as adapter input.
var TestMessages = []string{
	`{"id": 1, "value": "foo", "count": 42}`,
	`{"id": 2, "value": "bar", "count": 43}`,
	`{"id": 3, "value": "baz", "count": 44}`,
}
