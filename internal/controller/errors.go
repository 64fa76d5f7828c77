package controller

import (
	"errors"
	"fmt"

	"github.com/better-wallet/controller/internal/signer"
)

// ErrorKind tags the component a controller failure came from.
type ErrorKind string

const (
	KindDevice         ErrorKind = "device"
	KindSign           ErrorKind = "sign"
	KindStorage        ErrorKind = "storage"
	KindProvider       ErrorKind = "provider"
	KindAccount        ErrorKind = "account"
	KindAccountFactory ErrorKind = "account_factory"
	KindOrigin         ErrorKind = "origin"
	KindEncoding       ErrorKind = "encoding"
	KindShortString    ErrorKind = "short_string"
	KindSessionPolicy  ErrorKind = "session_policy"
)

// Error is the single error type returned by Controller operations.
// The underlying cause is preserved for errors.As/Is.
type Error struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("controller %s: %s error: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsKind reports whether err is a controller Error of kind.
func IsKind(err error, kind ErrorKind) bool {
	var cerr *Error
	return errors.As(err, &cerr) && cerr.Kind == kind
}

// wrap tags err with kind. Device failures keep their own kind wherever
// they surface, since they mean the user or authenticator refused.
func wrap(op string, kind ErrorKind, err error) error {
	var deviceErr *signer.DeviceError
	if errors.As(err, &deviceErr) {
		kind = KindDevice
	}
	return &Error{Kind: kind, Op: op, Err: err}
}
