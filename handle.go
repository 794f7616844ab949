// Copyright (C) 2017 Michael J. Fromberger. All Rights Reserved.

package jezebel

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/bluescarni/jezebel/code"
)

// A CallErrorKind classifies a remote JSON-RPC error for the caller, per
// the 1:1 mapping in §7.
type CallErrorKind int

const (
	// BadValue means the request we sent was itself rejected (parse error
	// or invalid request shape).
	BadValue CallErrorKind = iota
	// NoSuchMethod means the target has no such rpc-exposed method.
	NoSuchMethod
	// BadArguments means the method exists but rejected our arguments.
	BadArguments
	// RemoteInternalError means the handler or its result failed on the peer.
	RemoteInternalError
	// RemoteError is any other application-defined error code.
	RemoteError
)

func (k CallErrorKind) String() string {
	switch k {
	case BadValue:
		return "bad-value"
	case NoSuchMethod:
		return "no-such-method"
	case BadArguments:
		return "bad-arguments"
	case RemoteInternalError:
		return "remote-internal-error"
	default:
		return "remote-error"
	}
}

// A CallError is the error a Handle resolves with when the peer replied
// with a JSON-RPC error object.
type CallError struct {
	Kind    CallErrorKind
	Code    code.Code
	Message string
}

func (e *CallError) Error() string {
	return fmt.Sprintf("%s: [%d] %s", e.Kind, e.Code, e.Message)
}

// MapCallError classifies a wire *Error per the table in §7. Carrier
// packages outside this module call this to translate a parsed JSON-RPC
// error response into the caller-visible CallError kind.
func MapCallError(e *Error) *CallError { return mapCallError(e) }

// mapCallError classifies a wire *Error per the table in §7.
func mapCallError(e *Error) *CallError {
	kind := RemoteError
	switch e.Code {
	case code.ParseError, code.InvalidRequest:
		kind = BadValue
	case code.MethodNotFound:
		kind = NoSuchMethod
	case code.InvalidParams:
		kind = BadArguments
	case code.InternalError:
		kind = RemoteInternalError
	}
	return &CallError{Kind: kind, Code: e.Code, Message: e.Message}
}

// A Handle is a future-like handle to the result of an outbound call. The
// caller never blocks on Agent.Call; it receives a Handle immediately and
// blocks, if it chooses to, in Wait.
type Handle struct {
	ch chan handleResult
}

type handleResult struct {
	result json.RawMessage
	err    error
}

// newHandle creates a Handle together with the completion function that
// resolves it. Only the first call to complete has any effect; a second
// call is a silent no-op, matching the at-most-one-completion invariant of
// §4.5.
func newHandle() (*Handle, func(json.RawMessage, error)) {
	h := &Handle{ch: make(chan handleResult, 1)}
	var once sync.Once
	complete := func(result json.RawMessage, err error) {
		once.Do(func() { h.ch <- handleResult{result: result, err: err} })
	}
	return h, complete
}

// NewHandle creates a Handle together with its completion function, for use
// by carrier packages outside this module that implement a
// CarrierSendFunc. complete follows the same at-most-once contract as the
// internal constructor.
func NewHandle() (*Handle, func(json.RawMessage, error)) { return newHandle() }

// Wait blocks until h completes or ctx is done, whichever comes first. It
// is safe to call Wait more than once or from multiple goroutines; only the
// first value ever sent to h is observed by every caller.
func (h *Handle) Wait(ctx context.Context) (json.RawMessage, error) {
	select {
	case r, ok := <-h.ch:
		if !ok {
			return nil, context.Canceled
		}
		// Restore the value for any other concurrent or future waiter.
		h.ch <- r
		return r.result, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Decode waits for h to complete and, on success, unmarshals its result
// into v.
func (h *Handle) Decode(ctx context.Context, v any) error {
	result, err := h.Wait(ctx)
	if err != nil {
		return err
	}
	if v == nil || len(result) == 0 {
		return nil
	}
	return json.Unmarshal(result, v)
}
