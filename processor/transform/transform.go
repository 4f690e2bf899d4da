package transform

import (
	"fmt"
	"reflect"
	"strings"
	"sync/atomic"

	"github.com/c360/nodeflow/errors"
	"github.com/c360/nodeflow/node"
)

// Func maps one typed input to one typed output.
type Func[In, Out any] func(In) (Out, error)

// Transform is a processor node that only accepts payloads of type In.
// Anything else is rejected with an *errors.UnexpectedPayloadError, which
// the intake loop logs and counts as a failed item.
type Transform[In, Out any] struct {
	*node.Processor

	fn       Func[In, Out]
	filter   func(In) bool
	expected string

	mismatched atomic.Int64
	skipped    atomic.Int64
}

// New creates a typed transform processor. Dispatch policy, clone-on-fork
// and the rest are ordinary node options.
func New[In, Out any](fn Func[In, Out], opts ...node.Option) (*Transform[In, Out], error) {
	if fn == nil {
		return nil, errors.WrapInvalid(errors.ErrNilHandler, "transform", "New", "validate func")
	}
	t := &Transform[In, Out]{
		fn:       fn,
		expected: typeName[In](),
	}
	opts = append([]node.Option{node.WithName("transform")}, opts...)
	p, err := node.NewProcessor(t.apply, opts...)
	if err != nil {
		return nil, err
	}
	t.Processor = p
	t.SetSender(t)
	return t, nil
}

// NewFilter creates a processor that forwards payloads of type T unchanged
// when keep returns true and drops them silently otherwise.
func NewFilter[T any](keep func(T) bool, opts ...node.Option) (*Transform[T, T], error) {
	if keep == nil {
		return nil, errors.WrapInvalid(errors.ErrNilHandler, "transform", "NewFilter", "validate predicate")
	}
	opts = append([]node.Option{node.WithName("filter")}, opts...)
	t, err := New(func(v T) (T, error) { return v, nil }, opts...)
	if err != nil {
		return nil, err
	}
	t.filter = keep
	return t, nil
}

func (t *Transform[In, Out]) apply(_ node.Producer, payload node.Payload) (node.Payload, error) {
	in, ok := payload.(In)
	if !ok {
		t.mismatched.Add(1)
		return nil, &errors.UnexpectedPayloadError{
			Node:     t.Name(),
			Expected: t.expected,
			Actual:   fmt.Sprintf("%T", payload),
		}
	}
	if t.filter != nil && !t.filter(in) {
		t.skipped.Add(1)
		return nil, nil
	}

	out, err := t.fn(in)
	if err != nil {
		return nil, err
	}
	if isNil(out) {
		return nil, nil
	}
	return out, nil
}

// Mismatched returns the number of payloads rejected for their type.
func (t *Transform[In, Out]) Mismatched() int64 { return t.mismatched.Load() }

// Skipped returns the number of payloads a filter dropped.
func (t *Transform[In, Out]) Skipped() int64 { return t.skipped.Load() }

// Suffix returns a string transform appending s.
func Suffix(s string) Func[string, string] {
	return func(in string) (string, error) {
		return in + s, nil
	}
}

// AppendSuffix returns a transform accepting any payload. Strings and byte
// slices are used as is; other values are formatted with fmt.Sprint. The
// result has s appended.
func AppendSuffix(s string) Func[node.Payload, string] {
	return func(in node.Payload) (string, error) {
		switch v := in.(type) {
		case string:
			return v + s, nil
		case []byte:
			return string(v) + s, nil
		default:
			return fmt.Sprint(v) + s, nil
		}
	}
}

// Upper returns a string transform upper-casing its input.
func Upper() Func[string, string] {
	return func(in string) (string, error) {
		return strings.ToUpper(in), nil
	}
}

func typeName[T any]() string {
	return reflect.TypeFor[T]().String()
}

// isNil reports whether v is a nil pointer, map, slice, chan, func or
// interface, so that an Out of such a kind can forward nothing.
func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Chan, reflect.Func, reflect.Interface:
		return rv.IsNil()
	default:
		return false
	}
}
