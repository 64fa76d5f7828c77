// Package storage persists session metadata under origin-scoped keys.
//
// Backends store opaque bytes; a Codec turns Values into those bytes,
// optionally sealing them with a sealing.Provider.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/better-wallet/controller/internal/session"
)

// Backend is an async key-value store. Keys are opaque strings compared by
// equality.
type Backend interface {
	// Set stores value under key, replacing any previous value
	Set(ctx context.Context, key string, value Value) error

	// Get returns the value under key, or nil when absent
	Get(ctx context.Context, key string) (*Value, error)

	// Remove deletes key. Removing an absent key is not an error
	Remove(ctx context.Context, key string) error

	// Clear deletes every key
	Clear(ctx context.Context) error

	// Keys lists every stored key
	Keys(ctx context.Context) ([]string, error)
}

// ErrorKind classifies storage failures
type ErrorKind string

const (
	KindSerialization   ErrorKind = "serialization"
	KindOperationFailed ErrorKind = "operation_failed"
	KindUnavailable     ErrorKind = "unavailable"
)

// Error is returned by every backend operation.
type Error struct {
	Op   string
	Kind ErrorKind
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("storage %s (%s): %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(op string, kind ErrorKind, err error) *Error {
	return &Error{Op: op, Kind: kind, Err: err}
}

// ErrEmptyValue is returned when a Value carries no variant.
var ErrEmptyValue = errors.New("storage value has no variant")

// Value is a tagged union of storable values. Exactly one field is set.
type Value struct {
	Session *session.Metadata
}

// SessionValue wraps session metadata.
func SessionValue(m session.Metadata) Value {
	return Value{Session: &m}
}

type taggedValue struct {
	Session *session.Metadata `json:"Session,omitempty"`
}

func (v Value) MarshalJSON() ([]byte, error) {
	if v.Session == nil {
		return nil, ErrEmptyValue
	}
	return json.Marshal(taggedValue{Session: v.Session})
}

func (v *Value) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if len(raw) != 1 {
		return fmt.Errorf("storage value must have exactly one variant, got %d", len(raw))
	}

	body, ok := raw["Session"]
	if !ok {
		for tag := range raw {
			return fmt.Errorf("unknown storage value variant %q", tag)
		}
	}

	var m session.Metadata
	if err := json.Unmarshal(body, &m); err != nil {
		return err
	}
	v.Session = &m
	return nil
}
