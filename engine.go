// Copyright (C) 2017 Michael J. Fromberger. All Rights Reserved.

package jezebel

import (
	"bytes"
	"context"
	"encoding/json"

	"github.com/bluescarni/jezebel/code"
	"github.com/google/uuid"
)

// Version is the JSON-RPC protocol version Jezebel speaks. Jezebel does not
// accept any other version marker.
const Version = "2.0"

// An OutboundRequest is a request built by BuildRequest, ready to be
// encoded and handed to a carrier or to a peer agent's ExecuteRequest.
type OutboundRequest struct {
	ID     string
	Method string
	Params json.RawMessage // nil if the call has no arguments
}

// Encode renders r as a JSON-RPC 2.0 request object.
func (r *OutboundRequest) Encode() []byte {
	var buf bytes.Buffer
	buf.WriteString(`{"jsonrpc":"2.0","id":`)
	idBytes, _ := json.Marshal(r.ID)
	buf.Write(idBytes)
	buf.WriteString(`,"method":`)
	methodBytes, _ := json.Marshal(r.Method)
	buf.Write(methodBytes)
	if len(r.Params) != 0 {
		buf.WriteString(`,"params":`)
		buf.Write(r.Params)
	}
	buf.WriteByte('}')
	return buf.Bytes()
}

// BuildRequest constructs a new outbound request for method, with either
// positional or named parameters but never both, and assigns it a fresh
// UUID-v4 id.
func BuildRequest(method string, positional []any, named map[string]any) (*OutboundRequest, error) {
	if method == "" {
		return nil, ErrInvalidArguments
	}
	if len(positional) != 0 && len(named) != 0 {
		return nil, ErrInvalidArguments
	}
	req := &OutboundRequest{ID: uuid.New().String(), Method: method}
	switch {
	case len(positional) != 0:
		b, err := json.Marshal(positional)
		if err != nil {
			return nil, ErrInvalidArguments
		}
		req.Params = b
	case len(named) != 0:
		b, err := json.Marshal(named)
		if err != nil {
			return nil, ErrInvalidArguments
		}
		req.Params = b
	}
	return req, nil
}

// A ParsedRequest is the result of ParseRequest. It is populated on a
// best-effort basis even when parsing fails, so the caller can attempt
// id-recovery for an error response (per §4.1).
type ParsedRequest struct {
	HasID  bool
	ID     json.RawMessage // nil unless a validly-typed, non-null id was present
	Method string
	Params json.RawMessage // nil if the request had no params
}

// ParseRequest validates text against the request schema of §3, in the
// fixed check order of §4.1. It returns a zero code.Code and an empty
// message when text is a valid request.
func ParseRequest(text []byte) (code.Code, string, *ParsedRequest) {
	parsed := &ParsedRequest{}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(text, &obj); err != nil {
		return code.ParseError, "request is not a valid JSON object", parsed
	}

	if raw, ok := obj["id"]; ok {
		parsed.HasID = true
		if !isValidID(raw) {
			return code.InvalidRequest, "invalid request id", parsed
		}
		if !isNull(raw) {
			parsed.ID = raw
		}
	}

	var version string
	if raw, ok := obj["jsonrpc"]; ok {
		json.Unmarshal(raw, &version) //nolint:errcheck
	}
	if version != Version {
		return code.InvalidRequest, "missing or invalid protocol version", parsed
	}

	rawMethod, ok := obj["method"]
	var method string
	if !ok || json.Unmarshal(rawMethod, &method) != nil || method == "" {
		return code.InvalidRequest, "missing or invalid method name", parsed
	}
	parsed.Method = method

	if raw, ok := obj["params"]; ok {
		if isNull(raw) {
			return code.InvalidRequest, "params must be an array or object", parsed
		}
		if fb := firstByte(raw); fb != '[' && fb != '{' {
			return code.InvalidRequest, "params must be an array or object", parsed
		}
		parsed.Params = raw
	}

	return 0, "", parsed
}

// ToRequest converts p into a Request for dispatch. The caller must already
// know p describes a valid request (ParseRequest returned a zero code).
func (p *ParsedRequest) ToRequest() *Request {
	return &Request{hasID: p.HasID, id: p.ID, method: p.Method, params: p.Params}
}

// A ParsedResponse is the result of a successful ParseResponse.
type ParsedResponse struct {
	ID     json.RawMessage
	Result json.RawMessage // set on success
	Err    *Error          // set on error
}

// ParseResponse validates text against the response schema of §3. Per the
// non-strict rule resolved in the design notes, an error response is not
// required to carry id == null.
func ParseResponse(text []byte) (*ParsedResponse, error) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(text, &obj); err != nil {
		return nil, errInvalidResponse
	}

	var version string
	if raw, ok := obj["jsonrpc"]; ok {
		json.Unmarshal(raw, &version) //nolint:errcheck
	}
	if version != Version {
		return nil, errInvalidResponse
	}

	idRaw, hasID := obj["id"]
	if !hasID || !isValidID(idRaw) {
		return nil, errInvalidResponse
	}

	resultRaw, hasResult := obj["result"]
	errRaw, hasErr := obj["error"]
	if hasResult == hasErr { // both present or both absent
		return nil, errInvalidResponse
	}

	pr := &ParsedResponse{ID: idRaw}
	if hasResult {
		pr.Result = resultRaw
		return pr, nil
	}
	var e Error
	if err := json.Unmarshal(errRaw, &e); err != nil {
		return nil, errInvalidResponse
	}
	pr.Err = &e
	return pr, nil
}

// BuildError renders a JSON-RPC error response for the given code and
// message. The id is copied from orig if orig had an acceptably-typed id;
// otherwise the response id is null, per §4.1.
func BuildError(c code.Code, message string, orig *ParsedRequest) []byte {
	id := json.RawMessage("null")
	if orig != nil && orig.HasID && orig.ID != nil {
		id = orig.ID
	}
	return encodeResponse(id, nil, &Error{Code: c, Message: message})
}

func encodeResponse(id json.RawMessage, result json.RawMessage, errv *Error) []byte {
	var buf bytes.Buffer
	buf.WriteString(`{"jsonrpc":"2.0","id":`)
	if len(id) == 0 {
		buf.WriteString("null")
	} else {
		buf.Write(id)
	}
	if errv != nil {
		buf.WriteString(`,"error":`)
		eb, _ := json.Marshal(errv)
		buf.Write(eb)
	} else {
		buf.WriteString(`,"result":`)
		if len(result) == 0 {
			buf.WriteString("null")
		} else {
			buf.Write(result)
		}
	}
	buf.WriteByte('}')
	return buf.Bytes()
}

// ExecuteRequest runs the full dispatch procedure of §4.1 against reg and
// returns the wire bytes of the reply, or nil if text described a valid
// notification: a notification gets no reply whether its method is unknown,
// its handler fails, or its handler succeeds.
func ExecuteRequest(ctx context.Context, reg Assigner, text []byte) []byte {
	errCode, msg, parsed := ParseRequest(text)
	if errCode != 0 {
		// An invalid request is never treated as a notification, even if it
		// has no recognizable id: the caller always gets a reply.
		return BuildError(errCode, msg, parsed)
	}

	handler := reg.Assign(ctx, parsed.Method)
	if handler == nil {
		if !parsed.HasID {
			return nil
		}
		return BuildError(code.MethodNotFound, code.MethodNotFound.Error(), parsed)
	}

	req := parsed.ToRequest()
	ctx = withInboundRequest(ctx, req)

	result, err := handler(ctx, req)
	if req.IsNotification() {
		return nil
	}
	if err != nil {
		if e, ok := err.(*Error); ok {
			return BuildError(e.Code, e.Message, parsed)
		}
		return BuildError(code.InternalError, err.Error(), parsed)
	}

	resBytes, err := json.Marshal(result)
	if err != nil {
		return BuildError(code.InternalError, err.Error(), parsed)
	}
	return encodeResponse(parsed.ID, resBytes, nil)
}

// isValidID reports whether v is a valid JSON encoding of a request id:
// null, a string, or a number.
func isValidID(v json.RawMessage) bool {
	if len(v) == 0 || isNull(v) {
		return true
	}
	return v[0] == '"' || v[0] == '-' || (v[0] >= '0' && v[0] <= '9')
}

// isNull reports whether msg is exactly the JSON "null" value.
func isNull(msg json.RawMessage) bool {
	return len(msg) == 4 && msg[0] == 'n' && msg[1] == 'u' && msg[2] == 'l' && msg[3] == 'l'
}

// firstByte returns the first non-whitespace byte of data, or 0 if there is none.
func firstByte(data []byte) byte {
	clean := bytes.TrimSpace(data)
	if len(clean) == 0 {
		return 0
	}
	return clean[0]
}
