// Copyright (C) 2017 Michael J. Fromberger. All Rights Reserved.

package jezebel

import (
	"bytes"
	"encoding/json"

	"github.com/bluescarni/jezebel/code"
)

// A Request is an inbound request delivered to a Handler by the protocol
// engine's dispatch procedure.
type Request struct {
	hasID  bool            // false iff the request had no "id" key at all
	id     json.RawMessage // the request id; nil for a notification or an explicit null id
	method string
	params json.RawMessage // nil if the request had no params
}

// IsNotification reports whether r is a notification: dispatch will not
// send a reply for its result, however the handler returns. Per §3, only
// the absence of an "id" key makes a request a notification; an explicit
// "id":null is not a notification.
func (r *Request) IsNotification() bool { return !r.hasID }

// ID returns the JSON encoding of the request identifier, or "" for a
// notification or an explicit null id.
func (r *Request) ID() string { return string(r.id) }

// Method reports the method name of the request.
func (r *Request) Method() string { return r.method }

// HasParams reports whether the request carries non-empty parameters.
func (r *Request) HasParams() bool { return len(r.params) != 0 }

// ParamString returns the encoded request parameters as a string, or "" if
// the request has none.
func (r *Request) ParamString() string { return string(r.params) }

// UnmarshalParams decodes the request's raw parameters into v, whatever
// their shape. Most handlers should prefer Positional or Named, which also
// enforce arity.
func (r *Request) UnmarshalParams(v any) error {
	if len(r.params) == 0 {
		return nil
	}
	if err := json.Unmarshal(r.params, v); err != nil {
		return Errorf(code.InvalidParams, "%v", err)
	}
	return nil
}

// Positional decodes a positional (array) parameter list into dests,
// reporting an InvalidParams error on arity or type mismatch.
func (r *Request) Positional(dests ...any) error {
	if len(r.params) == 0 {
		if len(dests) != 0 {
			return Errorf(code.InvalidParams, "expected %d positional arguments, got none", len(dests))
		}
		return nil
	}
	var raw []json.RawMessage
	dec := json.NewDecoder(bytes.NewReader(r.params))
	if err := dec.Decode(&raw); err != nil {
		return Errorf(code.InvalidParams, "params are not a positional argument list")
	}
	if len(raw) != len(dests) {
		return Errorf(code.InvalidParams, "expected %d positional arguments, got %d", len(dests), len(raw))
	}
	for i, dest := range dests {
		if err := json.Unmarshal(raw[i], dest); err != nil {
			return Errorf(code.InvalidParams, "argument %d: %v", i, err)
		}
	}
	return nil
}

// Named decodes a named (object) parameter set into v, which is typically a
// pointer to a struct or a map. Unknown or missing keys are left to v's own
// json.Unmarshal behavior; a type mismatch reports an InvalidParams error.
func (r *Request) Named(v any) error {
	if len(r.params) == 0 {
		return nil
	}
	if fb := firstByte(r.params); fb != '{' {
		return Errorf(code.InvalidParams, "params are not a named argument set")
	}
	if err := json.Unmarshal(r.params, v); err != nil {
		return Errorf(code.InvalidParams, "%v", err)
	}
	return nil
}
