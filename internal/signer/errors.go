package signer

import (
	"errors"
	"fmt"
)

// Device failures reported by hardware authenticators.
var (
	ErrUserCancelled            = errors.New("user cancelled the request")
	ErrAuthenticatorUnavailable = errors.New("authenticator unavailable")
	ErrAssertionVerification    = errors.New("assertion verification failed")
)

// DeviceError is returned when a hardware or passkey interaction fails.
type DeviceError struct {
	Op  string
	Err error
}

func (e *DeviceError) Error() string {
	return fmt.Sprintf("device error during %s: %v", e.Op, e.Err)
}

func (e *DeviceError) Unwrap() error {
	return e.Err
}

// SignError is returned when a signature cannot be constructed from the key material.
type SignError struct {
	Op  string
	Err error
}

func (e *SignError) Error() string {
	return fmt.Sprintf("sign error during %s: %v", e.Op, e.Err)
}

func (e *SignError) Unwrap() error {
	return e.Err
}
