// Copyright (C) 2017 Michael J. Fromberger. All Rights Reserved.

// Package xmpp implements the XMPP carrier of §4.5: a single bidirectional
// message stream multiplexing outbound requests and inbound
// requests/responses, correlated by request id.
package xmpp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bluescarni/jezebel"
)

// Dispatcher is the subset of *jezebel.Agent the carrier needs to answer
// inbound requests arriving as chat messages.
type Dispatcher interface {
	ExecuteRequest(ctx context.Context, text []byte) []byte
}

// pendingResult is the parsed response a waiter is looking for.
type pendingResult struct {
	response *jezebel.ParsedResponse
}

// Options control a Carrier. A nil *Options is ready for use and yields a
// carrier with no JID and no transport (see NewCarrier).
type Options struct {
	// JID, if non-empty, is the bare or full JID this agent authenticates
	// as; without it the carrier has no transport (see NewCarrier).
	JID string
	// Password authenticates JID.
	Password string
	// Timeout bounds both session establishment and each outbound call's
	// wait for a response. Ignored if NoTimeout is set. Zero means the
	// default of 10 seconds; negative is rejected.
	Timeout time.Duration

	// NoTimeout disables the deadline on both session establishment and
	// each outbound call's wait, matching an explicit "xmpp_timeout": null
	// configuration (§4.5, SPEC_FULL §6). It takes priority over Timeout.
	NoTimeout bool

	Logger jezebel.Logger

	// NewTransport constructs the underlying XMPP client. Defaults to
	// NewMelliumTransport. Tests substitute a fake.
	NewTransport func(jid, password string) Transport
}

func (o *Options) logger() jezebel.Logger {
	if o == nil {
		return nil
	}
	return o.Logger
}

// timeout resolves o's deadline configuration. unbounded=true means no
// deadline should ever be applied; in that case the returned duration is
// meaningless and must not be used.
func (o *Options) timeout() (timeout time.Duration, unbounded bool, err error) {
	if o == nil {
		return 10 * time.Second, false, nil
	}
	if o.NoTimeout {
		return 0, true, nil
	}
	if o.Timeout < 0 {
		return 0, false, errors.New("jezebel/carrier/xmpp: negative timeout")
	}
	if o.Timeout == 0 {
		return 10 * time.Second, false, nil
	}
	return o.Timeout, false, nil
}

func (o *Options) newTransport() func(jid, password string) Transport {
	if o != nil && o.NewTransport != nil {
		return o.NewTransport
	}
	return NewMelliumTransport
}

// A Carrier is the XMPP half of a Jezebel agent. It owns exactly two
// shared tables guarded by one lock, per §5: pending (outstanding local
// calls awaiting a reply) and received (completed-but-not-yet-collected
// replies). The correlation condition is bound to the same lock.
type Carrier struct {
	jid       string
	timeout   time.Duration
	noTimeout bool
	log       jezebel.Logger
	disp      Dispatcher
	xport     Transport

	mu       sync.Mutex
	cond     *sync.Cond
	pending  map[string]bool
	received map[string]*pendingResult
}

// NewCarrier constructs a Carrier from opts. If opts.JID is empty the
// carrier has no transport: Open is a no-op, no message is ever received,
// and Send fails with jezebel.ErrNoCarrier.
func NewCarrier(opts *Options) (*Carrier, error) {
	timeout, unbounded, err := opts.timeout()
	if err != nil {
		return nil, err
	}
	c := &Carrier{
		log:       opts.logger(),
		timeout:   timeout,
		noTimeout: unbounded,
		pending:   make(map[string]bool),
		received:  make(map[string]*pendingResult),
	}
	c.cond = sync.NewCond(&c.mu)

	if opts != nil {
		if jidStr, ok := opts.JIDOrEmpty(); ok {
			c.jid = jidStr
			c.xport = opts.newTransport()(jidStr, opts.Password)
		}
	}
	return c, nil
}

// JIDOrEmpty reports o.JID and whether it is non-empty, tolerating a nil
// receiver.
func (o *Options) JIDOrEmpty() (string, bool) {
	if o == nil || o.JID == "" {
		return "", false
	}
	return o.JID, true
}

// SetDispatcher installs disp as the target for inbound requests arriving
// as chat messages. Call it once, immediately after jezebel.Build returns,
// mirroring the HTTP carrier's Attach method; a message that arrives
// before it is called is simply not answered (onMessage's nil check).
func (c *Carrier) SetDispatcher(disp Dispatcher) { c.disp = disp }

// Open opens the XMPP session if one was configured (Options.JID
// non-empty); a client-only carrier's Open is a no-op. This is the
// session-establishment procedure of §4.5: connect, then block on the
// session-status condition (realized here as a channel) until OPEN,
// AUTH_FAILED, or the configured timeout elapses.
func (c *Carrier) Open(ctx context.Context) error {
	if c.xport == nil {
		return nil
	}
	c.xport.SetMessageHandler(c.onMessage)

	events, err := c.xport.Connect(ctx)
	if err != nil {
		c.xport.Close() //nolint:errcheck
		return fmt.Errorf("%w: %v", jezebel.ErrConnectionFailed, err)
	}

	waitCtx := ctx
	if !c.noTimeout {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	select {
	case ev, ok := <-events:
		if !ok || ev == EventAuthFailed {
			c.xport.Close() //nolint:errcheck
			return jezebel.ErrAuthFailure
		}
	case <-waitCtx.Done():
		c.xport.Close() //nolint:errcheck
		return fmt.Errorf("jezebel/carrier/xmpp: %w", jezebel.ErrTimeout)
	}
	return nil
}

// onMessage is the inbound message handler of §4.5. It is installed on the
// transport by Open and runs on whatever goroutine the transport delivers
// messages on.
func (c *Carrier) onMessage(from, body, kind string) {
	if kind != "normal" && kind != "chat" {
		c.log.Printf("jezebel/carrier/xmpp: ignoring message of type %q from %s", kind, from)
		return
	}

	if parsed, err := jezebel.ParseResponse([]byte(body)); err == nil {
		if id, ok := decodeIDKey(parsed.ID); ok {
			c.completeResponse(id, parsed)
			return
		}
		c.log.Printf("jezebel/carrier/xmpp: response id %s is not a string; dropping", parsed.ID)
		return
	}

	if c.disp == nil {
		return
	}
	reply := c.disp.ExecuteRequest(context.Background(), []byte(body))
	if len(reply) == 0 {
		return
	}
	if err := c.xport.Send(context.Background(), from, string(reply)); err != nil {
		c.log.Printf("jezebel/carrier/xmpp: reply to %s failed: %v", from, err)
	}
}

// completeResponse moves id from pending to received and wakes every
// waiter, or drops the response if id is not (or is no longer) pending —
// the late-response-drop invariant of §4.5.
func (c *Carrier) completeResponse(id string, parsed *jezebel.ParsedResponse) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.pending[id] {
		c.log.Printf("jezebel/carrier/xmpp: dropping unmatched or late response id=%s", id)
		return
	}
	delete(c.pending, id)
	c.received[id] = &pendingResult{response: parsed}
	c.cond.Broadcast()
}

// Send implements jezebel.CarrierSendFunc for the "xmpp" scheme: extract
// the bare JID from targetURL, register the pending slot BEFORE sending
// (register-before-send, §4.5), send the message, and start a background
// waiter that resolves the returned Handle.
func (c *Carrier) Send(ctx context.Context, targetURL string, req *jezebel.OutboundRequest) (*jezebel.Handle, error) {
	to, err := jidFromURL(targetURL)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	xport := c.xport
	if xport == nil {
		c.mu.Unlock()
		return nil, jezebel.ErrNoCarrier
	}
	c.pending[req.ID] = true
	c.mu.Unlock()

	if err := xport.Send(ctx, to, string(req.Encode())); err != nil {
		c.mu.Lock()
		delete(c.pending, req.ID)
		c.mu.Unlock()
		return nil, fmt.Errorf("jezebel/carrier/xmpp: send failed: %w", err)
	}

	h, complete := jezebel.NewHandle()
	go c.await(req.ID, complete)
	return h, nil
}

// await blocks until req.ID is completed or, unless the carrier was
// configured with no timeout, the carrier's timeout elapses, then resolves
// complete. It is the one background worker per outstanding outbound XMPP
// call required by §5. A single timer wakes the shared condition at the
// deadline; every waiter re-checks its own id and deadline on each wake,
// since sync.Cond has no built-in timeout. When c.noTimeout is set, no
// timer is started and await blocks until a response arrives.
func (c *Carrier) await(id string, complete func(json.RawMessage, error)) {
	var deadline time.Time
	if !c.noTimeout {
		deadline = time.Now().Add(c.timeout)
		timer := time.AfterFunc(c.timeout, func() {
			c.mu.Lock()
			c.cond.Broadcast()
			c.mu.Unlock()
		})
		defer timer.Stop()
	}

	c.mu.Lock()
	for {
		if pr, ok := c.received[id]; ok {
			delete(c.received, id)
			c.mu.Unlock()
			if pr.response.Err != nil {
				complete(nil, jezebel.MapCallError(pr.response.Err))
			} else {
				complete(pr.response.Result, nil)
			}
			return
		}
		if !c.noTimeout && !time.Now().Before(deadline) {
			delete(c.pending, id) // late-response-drop: completeResponse will no longer find it pending
			c.mu.Unlock()
			complete(nil, jezebel.ErrTimeout)
			return
		}
		c.cond.Wait()
	}
}

// decodeIDKey decodes a JSON-encoded request id into the plain string form
// used as the correlation table key. Jezebel's own ids are always
// UUID-v4 strings (BuildRequest), so any other JSON id shape cannot
// correlate to a pending local call and is reported as not-ok.
func decodeIDKey(raw json.RawMessage) (string, bool) {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", false
	}
	return s, true
}

// PendingSnapshot returns a deep copy of the pending-call ids for testing
// and observability (§4.5's "Introspection").
func (c *Carrier) PendingSnapshot() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.pending))
	for id := range c.pending {
		out = append(out, id)
	}
	return out
}

// ReceivedSnapshot returns a deep copy of the currently-buffered-but-
// uncollected response ids.
func (c *Carrier) ReceivedSnapshot() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.received))
	for id := range c.received {
		out = append(out, id)
	}
	return out
}

// Close releases the underlying transport, if any. Idempotent.
func (c *Carrier) Close() error {
	c.mu.Lock()
	xport := c.xport
	c.xport = nil
	c.mu.Unlock()
	if xport == nil {
		return nil
	}
	return xport.Close()
}

// jidFromURL extracts the bare JID from an "xmpp:<bare-jid>" URL (§6): the
// scheme alone routes to this carrier, and the JID appears in the
// authority/path portion.
func jidFromURL(rawURL string) (string, error) {
	const prefix = "xmpp:"
	if len(rawURL) <= len(prefix) || rawURL[:len(prefix)] != prefix {
		return "", jezebel.ErrInvalidArguments
	}
	jid := rawURL[len(prefix):]
	jid = trimSlashes(jid)
	if jid == "" {
		return "", jezebel.ErrInvalidArguments
	}
	return jid, nil
}

// trimSlashes strips a leading "//" left behind by URLs written as
// "xmpp://user@host" instead of the bare "xmpp:user@host" form; both are
// accepted.
func trimSlashes(s string) string {
	for len(s) > 0 && s[0] == '/' {
		s = s[1:]
	}
	return s
}
