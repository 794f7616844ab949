// Copyright (C) 2017 Michael J. Fromberger. All Rights Reserved.

package xmpp

import (
	"context"
	"errors"
	"sync"

	"mellium.im/sasl"
	"mellium.im/xmpp"
	"mellium.im/xmpp/dial"
	"mellium.im/xmpp/jid"
	"mellium.im/xmpp/mux"
	"mellium.im/xmpp/stanza"
)

var (
	errInvalidJID   = errors.New("jezebel/carrier/xmpp: invalid jid")
	errNotConnected = errors.New("jezebel/carrier/xmpp: transport not connected")
)

// melliumTransport is the concrete Transport backed by mellium.im/xmpp,
// standing in for the source's sleekxmpp.ClientXMPP (§1.2: no repo in the
// retrieval pack speaks XMPP, so this wiring is named rather than
// grounded).
type melliumTransport struct {
	addr     jid.JID
	password string

	mu      sync.Mutex
	session *xmpp.Session
	handler func(from, body, kind string)
}

// NewMelliumTransport constructs the default Transport implementation for
// the given JID and password.
func NewMelliumTransport(jidStr, password string) Transport {
	addr, err := jid.Parse(jidStr)
	if err != nil {
		// An unparseable JID fails at Connect time rather than here, so
		// that NewCarrier/Capability.Init can still report a clean error
		// through the normal connection-failure path instead of a panic
		// from a constructor that isn't allowed to return one.
		addr = jid.JID{}
	}
	return &melliumTransport{addr: addr, password: password}
}

func (t *melliumTransport) SetMessageHandler(handler func(from, body, kind string)) {
	t.mu.Lock()
	t.handler = handler
	t.mu.Unlock()
}

// Connect dials the JID's host, negotiates a session (SASL PLAIN, resource
// binding), sends initial presence, and begins serving inbound stanzas on
// a background goroutine — the mellium analogue of sleekxmpp's connect +
// session_start/failed_auth callbacks (§4.5).
func (t *melliumTransport) Connect(ctx context.Context) (<-chan SessionEvent, error) {
	if t.addr.Equal(jid.JID{}) {
		return nil, errInvalidJID
	}

	conn, err := dial.Client(ctx, "tcp", t.addr)
	if err != nil {
		return nil, err
	}

	events := make(chan SessionEvent, 1)
	go func() {
		session, err := xmpp.NewSession(ctx, t.addr.Domain(), conn,
			xmpp.NewNegotiator(xmpp.StreamConfig{
				Features: []xmpp.StreamFeature{
					xmpp.BindResource(),
					xmpp.SASL("", t.password, sasl.Plain),
				},
			}),
		)
		if err != nil {
			events <- EventAuthFailed
			close(events)
			return
		}

		t.mu.Lock()
		t.session = session
		t.mu.Unlock()

		_ = session.Encode(ctx, stanza.Presence{Type: stanza.AvailablePresence}) //nolint:errcheck

		events <- EventSessionStart
		close(events)

		h := mux.New(t.addr, mux.MessageFunc("", stanza.NSClient, t.dispatchMessage))
		session.Serve(h) //nolint:errcheck
	}()
	return events, nil
}

func (t *melliumTransport) dispatchMessage(m stanza.Message, body string) {
	t.mu.Lock()
	handler := t.handler
	t.mu.Unlock()
	if handler == nil {
		return
	}
	handler(m.From.String(), body, string(m.Type))
}

// Send transmits body as a chat message to the bare JID to.
func (t *melliumTransport) Send(ctx context.Context, to, body string) error {
	t.mu.Lock()
	session := t.session
	t.mu.Unlock()
	if session == nil {
		return errNotConnected
	}
	dest, err := jid.Parse(to)
	if err != nil {
		return err
	}
	msg := stanza.Message{
		To:   dest,
		Type: stanza.ChatMessage,
	}
	return session.Encode(ctx, struct {
		stanza.Message
		Body string `xml:"body"`
	}{Message: msg, Body: body})
}

// Close closes the underlying session.
func (t *melliumTransport) Close() error {
	t.mu.Lock()
	session := t.session
	t.session = nil
	t.mu.Unlock()
	if session == nil {
		return nil
	}
	return session.Close()
}
