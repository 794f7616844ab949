// Copyright (C) 2017 Michael J. Fromberger. All Rights Reserved.

package jezebel

import (
	"errors"
	"fmt"

	"github.com/bluescarni/jezebel/code"
)

// Error is the concrete type of a JSON-RPC error object. It is exactly the
// {code, message} pair defined by the protocol; Jezebel's responses never
// carry an ancillary data field.
type Error struct {
	Code    code.Code `json:"code"`
	Message string    `json:"message"`
}

// Error returns a human-readable description of e.
func (e *Error) Error() string { return fmt.Sprintf("[%d] %s", e.Code, e.Message) }

// Errorf builds an *Error with the given code and a formatted message.
func Errorf(c code.Code, msg string, args ...any) *Error {
	return &Error{Code: c, Message: fmt.Sprintf(msg, args...)}
}

// errInvalidResponse is returned by ParseResponse when text does not match
// the response schema of §3: not JSON-RPC 2.0, missing or malformed id, or
// neither/both of result and error present.
var errInvalidResponse = errors.New("jezebel: invalid response")

// Local errors. These never cross the wire as JSON-RPC error objects; they
// describe failures of the call machinery itself, never of a remote method.
var (
	// ErrInvalidArguments is returned by BuildRequest and Agent.Call for
	// malformed call arguments: both positional and named params, an
	// empty method name, an unparseable or schemeless target URL.
	ErrInvalidArguments = errors.New("jezebel: invalid arguments")

	// ErrNoCarrier is returned by Agent.Call when the target URL's scheme
	// has no registered carrier.
	ErrNoCarrier = errors.New("jezebel: no carrier registered for scheme")

	// ErrConnectionFailed is returned when a carrier could not establish its
	// underlying transport connection.
	ErrConnectionFailed = errors.New("jezebel: connection failed")

	// ErrAuthFailure is returned when carrier-level authentication (XMPP
	// SASL) is rejected.
	ErrAuthFailure = errors.New("jezebel: authentication failed")

	// ErrTimeout is returned by a Handle, or synchronously from session
	// establishment, when a deadline elapses before completion.
	ErrTimeout = errors.New("jezebel: timed out")
)
