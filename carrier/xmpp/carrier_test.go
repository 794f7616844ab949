// Copyright (C) 2017 Michael J. Fromberger. All Rights Reserved.

package xmpp

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bluescarni/jezebel"
	"github.com/fortytw2/leaktest"
)

// fakeTransport is an in-memory Transport double. Messages "sent" are
// simply handed to whatever peer fakeTransport was paired with via link,
// so tests can wire two Carriers together without a real XMPP server.
type fakeTransport struct {
	mu      sync.Mutex
	handler func(from, body, kind string)
	peer    *fakeTransport
	self    string

	failSend bool
	events   chan SessionEvent
}

func newFakeTransport(self string) *fakeTransport {
	return &fakeTransport{self: self, events: make(chan SessionEvent, 1)}
}

func link(a, b *fakeTransport) {
	a.peer = b
	b.peer = a
}

func (t *fakeTransport) SetMessageHandler(h func(from, body, kind string)) {
	t.mu.Lock()
	t.handler = h
	t.mu.Unlock()
}

func (t *fakeTransport) Connect(ctx context.Context) (<-chan SessionEvent, error) {
	t.events <- EventSessionStart
	return t.events, nil
}

func (t *fakeTransport) Send(ctx context.Context, to, body string) error {
	if t.failSend {
		return errFakeSendFailed
	}
	if t.peer == nil {
		return nil
	}
	t.peer.mu.Lock()
	h := t.peer.handler
	t.peer.mu.Unlock()
	if h != nil {
		go h(t.self, body, "chat")
	}
	return nil
}

func (t *fakeTransport) Close() error { return nil }

var errFakeSendFailed = fakeErr("send failed")

type fakeErr string

func (e fakeErr) Error() string { return string(e) }

func newTestCarrier(t *testing.T, name string) (*Carrier, *fakeTransport) {
	t.Helper()
	xport := newFakeTransport(name)
	c, err := NewCarrier(&Options{
		JID:         name,
		Timeout:     200 * time.Millisecond,
		NewTransport: func(string, string) Transport { return xport },
	})
	if err != nil {
		t.Fatalf("NewCarrier: %v", err)
	}
	if err := c.Open(context.Background()); err != nil {
		t.Fatalf("Open: %v", err)
	}
	return c, xport
}

type echoDispatcher struct{}

func (echoDispatcher) ExecuteRequest(_ context.Context, text []byte) []byte {
	return []byte(`{"jsonrpc":"2.0","id":"echo-reply","result":"ok"}`)
}

func TestSendRegisterBeforeSendAndComplete(t *testing.T) {
	a, aXport := newTestCarrier(t, "a@example.com")
	b, bXport := newTestCarrier(t, "b@example.com")
	link(aXport, bXport)

	reply := `{"jsonrpc":"2.0","id":"req-1","result":"pong"}`
	bXport.mu.Lock()
	bXport.handler = func(from, body, kind string) {
		go func() {
			aXport.mu.Lock()
			h := aXport.handler
			aXport.mu.Unlock()
			if h != nil {
				h("b@example.com", reply, "chat")
			}
		}()
	}
	bXport.mu.Unlock()

	req := &jezebel.OutboundRequest{ID: "req-1", Method: "ping"}
	h, err := a.Send(context.Background(), "xmpp:b@example.com", req)
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	var got string
	if err := h.Decode(context.Background(), &got); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got != "pong" {
		t.Errorf("got %q, want %q", got, "pong")
	}
	if pending := a.PendingSnapshot(); len(pending) != 0 {
		t.Errorf("pending after completion: got %v, want empty", pending)
	}
}

// TestAwaitGoroutineExitsOnCompletion checks that the one background
// waiter Send starts per outbound call (await) terminates once its
// result arrives, leaving nothing running behind the returned Handle.
func TestAwaitGoroutineExitsOnCompletion(t *testing.T) {
	defer leaktest.Check(t)()

	a, aXport := newTestCarrier(t, "a@example.com")
	b, bXport := newTestCarrier(t, "b@example.com")
	defer a.Close()
	defer b.Close()
	link(aXport, bXport)

	reply := `{"jsonrpc":"2.0","id":"leak-1","result":"pong"}`
	bXport.mu.Lock()
	bXport.handler = func(from, body, kind string) {
		go func() {
			aXport.mu.Lock()
			h := aXport.handler
			aXport.mu.Unlock()
			if h != nil {
				h("b@example.com", reply, "chat")
			}
		}()
	}
	bXport.mu.Unlock()

	req := &jezebel.OutboundRequest{ID: "leak-1", Method: "ping"}
	h, err := a.Send(context.Background(), "xmpp:b@example.com", req)
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if _, err := h.Wait(context.Background()); err != nil {
		t.Fatalf("Wait: %v", err)
	}
}

func TestSendTimeout(t *testing.T) {
	a, aXport := newTestCarrier(t, "a@example.com")
	_ = aXport

	req := &jezebel.OutboundRequest{ID: "req-timeout", Method: "ping"}
	h, err := a.Send(context.Background(), "xmpp:nobody@example.com", req)
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	_, err = h.Wait(context.Background())
	if err != jezebel.ErrTimeout {
		t.Errorf("got %v, want ErrTimeout", err)
	}
	time.Sleep(10 * time.Millisecond)
	if pending := a.PendingSnapshot(); len(pending) != 0 {
		t.Errorf("pending after timeout: got %v, want empty", pending)
	}
}

// TestSendNoTimeoutNeverExpiresOnItsOwn checks that a carrier configured
// with NoTimeout never fires its own deadline: await must keep the call
// pending indefinitely, so the only way Wait ever returns is the caller's
// own context expiring (context.DeadlineExceeded) or a response arriving
// — never jezebel.ErrTimeout. This guards against NoTimeout silently
// falling back to the 10-second default.
func TestSendNoTimeoutNeverExpiresOnItsOwn(t *testing.T) {
	defer leaktest.Check(t)()

	xport := newFakeTransport("a@example.com")
	a, err := NewCarrier(&Options{
		JID:          "a@example.com",
		NoTimeout:    true,
		NewTransport: func(string, string) Transport { return xport },
	})
	if err != nil {
		t.Fatalf("NewCarrier: %v", err)
	}
	if err := a.Open(context.Background()); err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer a.Close()

	req := &jezebel.OutboundRequest{ID: "no-timeout-1", Method: "ping"}
	h, err := a.Send(context.Background(), "xmpp:nobody@example.com", req)
	if err != nil {
		t.Fatalf("Send: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	_, err = h.Wait(ctx)
	cancel()
	if err != context.DeadlineExceeded {
		t.Fatalf("got %v, want context.DeadlineExceeded from the caller's own context, not a carrier timeout", err)
	}
	if pending := a.PendingSnapshot(); len(pending) != 1 || pending[0] != "no-timeout-1" {
		t.Errorf("pending: got %v, want [no-timeout-1] (await must still be waiting, not given up)", pending)
	}

	// Deliver the response so the background waiter completes and exits
	// cleanly before the leak check runs.
	a.onMessage("nobody@example.com", `{"jsonrpc":"2.0","id":"no-timeout-1","result":"ok"}`, "chat")
	if _, err := h.Wait(context.Background()); err != nil {
		t.Fatalf("Wait after late delivery: %v", err)
	}
}

func TestLateResponseDroppedAfterTimeout(t *testing.T) {
	a, _ := newTestCarrier(t, "a@example.com")

	req := &jezebel.OutboundRequest{ID: "req-late", Method: "ping"}
	h, err := a.Send(context.Background(), "xmpp:nobody@example.com", req)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := h.Wait(context.Background()); err != jezebel.ErrTimeout {
		t.Fatalf("got %v, want ErrTimeout", err)
	}

	// A late response for the same id must be silently dropped: it must
	// not appear in received, and must not panic or deadlock anything.
	a.onMessage("nobody@example.com", `{"jsonrpc":"2.0","id":"req-late","result":"too late"}`, "chat")
	if recv := a.ReceivedSnapshot(); len(recv) != 0 {
		t.Errorf("received after late drop: got %v, want empty", recv)
	}
}

func TestInterleavedCallsOutOfOrder(t *testing.T) {
	a, aXport := newTestCarrier(t, "a@example.com")
	b, bXport := newTestCarrier(t, "b@example.com")
	link(aXport, bXport)
	b.SetDispatcher(echoDispatcher{})

	bXport.mu.Lock()
	bXport.handler = func(from, body, kind string) {
		// Reply with a result keyed by whichever id was sent, out of
		// order: u2 replies before u1.
		var id string
		switch {
		case strings.Contains(body, `"id":"u1"`):
			id = "u1"
		case strings.Contains(body, `"id":"u2"`):
			id = "u2"
		}
		go func() {
			if id == "u1" {
				time.Sleep(20 * time.Millisecond)
			}
			aXport.mu.Lock()
			h := aXport.handler
			aXport.mu.Unlock()
			reply := `{"jsonrpc":"2.0","id":"` + id + `","result":"result-` + id + `"}`
			if h != nil {
				h("b@example.com", reply, "chat")
			}
		}()
	}
	bXport.mu.Unlock()

	h1, err := a.Send(context.Background(), "xmpp:b@example.com", &jezebel.OutboundRequest{ID: "u1", Method: "m"})
	if err != nil {
		t.Fatal(err)
	}
	h2, err := a.Send(context.Background(), "xmpp:b@example.com", &jezebel.OutboundRequest{ID: "u2", Method: "m"})
	if err != nil {
		t.Fatal(err)
	}

	var got1, got2 string
	if err := h1.Decode(context.Background(), &got1); err != nil {
		t.Fatalf("h1 Decode: %v", err)
	}
	if err := h2.Decode(context.Background(), &got2); err != nil {
		t.Fatalf("h2 Decode: %v", err)
	}
	if got1 != "result-u1" {
		t.Errorf("h1: got %q, want %q", got1, "result-u1")
	}
	if got2 != "result-u2" {
		t.Errorf("h2: got %q, want %q", got2, "result-u2")
	}
}

func TestSendFailureRemovesPending(t *testing.T) {
	a, aXport := newTestCarrier(t, "a@example.com")
	aXport.failSend = true

	_, err := a.Send(context.Background(), "xmpp:nobody@example.com", &jezebel.OutboundRequest{ID: "req-fail", Method: "m"})
	if err == nil {
		t.Fatal("expected send error")
	}
	if pending := a.PendingSnapshot(); len(pending) != 0 {
		t.Errorf("pending after send failure: got %v, want empty", pending)
	}
}

func TestJIDFromURL(t *testing.T) {
	tests := []struct {
		url  string
		want string
		ok   bool
	}{
		{"xmpp:user@example.com", "user@example.com", true},
		{"xmpp://user@example.com", "user@example.com", true},
		{"xmpp:", "", false},
		{"http://user@example.com", "", false},
	}
	for _, test := range tests {
		got, err := jidFromURL(test.url)
		if (err == nil) != test.ok {
			t.Errorf("jidFromURL(%q): err=%v, want ok=%v", test.url, err, test.ok)
			continue
		}
		if test.ok && got != test.want {
			t.Errorf("jidFromURL(%q): got %q, want %q", test.url, got, test.want)
		}
	}
}
