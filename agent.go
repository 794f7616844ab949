// Copyright (C) 2017 Michael J. Fromberger. All Rights Reserved.

package jezebel

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"runtime"
	"sync"

	"github.com/bluescarni/jezebel/code"
	"golang.org/x/sync/semaphore"
)

// An Agent is a process-local object composed from a set of Capability
// values. It owns one shared method registry, the union of its
// capabilities' endpoint URLs, an explicit scheme→carrier-send map, and a
// teardown chain invoked in reverse composition order by Disconnect.
type Agent struct {
	log Logger

	registry Assigner
	urlFns   []func() []string
	carriers map[string]CarrierSendFunc

	dispatchSem *semaphore.Weighted

	mu           sync.Mutex
	teardown     []func() error
	disconnected bool
}

// AgentOptions control Build. A nil *AgentOptions is ready for use.
type AgentOptions struct {
	// If not nil, send debug text logs here.
	Logger Logger

	// Bounds the number of concurrently-executing ExecuteRequest calls. A
	// value less than 1 uses runtime.NumCPU(), matching the teacher
	// server's concurrency default.
	Concurrency int
}

func (o *AgentOptions) logger() Logger {
	if o == nil {
		return nil
	}
	return o.Logger
}

func (o *AgentOptions) concurrency() int64 {
	if o == nil || o.Concurrency < 1 {
		return int64(runtime.NumCPU())
	}
	return int64(o.Concurrency)
}

// Build composes caps, in order, into a single Agent. Each capability's
// Init is called with the configuration returned by the previous one,
// starting from cfg; the final, unconsumed configuration is returned
// alongside the agent. If any Init fails, capabilities already
// initialized are torn down in reverse order before the error is reported.
func Build(cfg Config, opts *AgentOptions, caps ...Capability) (*Agent, Config, error) {
	a := &Agent{
		log:         opts.logger(),
		carriers:    make(map[string]CarrierSendFunc),
		dispatchSem: semaphore.NewWeighted(opts.concurrency()),
	}

	var assigners []Assigner
	remaining := cfg
	for _, capa := range caps {
		var err error
		remaining, err = capa.Init(remaining)
		if err != nil {
			for i := len(a.teardown) - 1; i >= 0; i-- {
				a.teardown[i]() //nolint:errcheck
			}
			return nil, nil, err
		}
		a.teardown = append(a.teardown, capa.Teardown)

		if asg := capa.Assigner(); asg != nil {
			assigners = append(assigners, asg)
		}
		if urls := capa.URLs(); urls != nil {
			a.urlFns = append(a.urlFns, capURLsFunc(urls))
		}
		if scheme, send := capa.Carrier(); scheme != "" {
			a.carriers[scheme] = send
		}
	}

	assigners = append(assigners, a.builtins())
	a.registry = Compose(assigners...)
	return a, remaining, nil
}

func capURLsFunc(urls []string) func() []string {
	return func() []string { return urls }
}

// ExecuteRequest runs the protocol engine's dispatch procedure against a's
// registry, bounded by the agent's concurrency semaphore.
func (a *Agent) ExecuteRequest(ctx context.Context, text []byte) []byte {
	if err := a.dispatchSem.Acquire(ctx, 1); err != nil {
		return BuildError(code.InternalError, "server busy", &ParsedRequest{})
	}
	defer a.dispatchSem.Release(1)
	return ExecuteRequest(ctx, a.registry, text)
}

// URLs returns the concatenation of every capability's endpoint URLs, in
// composition order (§4.2).
func (a *Agent) URLs() []string {
	var out []string
	for _, fn := range a.urlFns {
		out = append(out, fn()...)
	}
	return out
}

// Features returns every currently rpc-exposed method name, in
// lexicographic order.
func (a *Agent) Features() []string {
	if n, ok := a.registry.(Namer); ok {
		return n.Names()
	}
	return nil
}

func (a *Agent) builtins() Assigner {
	return MapAssigner{
		"features": func(context.Context, *Request) (any, error) { return a.Features(), nil },
		"urls":     func(context.Context, *Request) (any, error) { return a.URLs(), nil },
	}
}

// Disconnect tears down every capability in reverse composition order. It
// is idempotent: a second call is a no-op.
func (a *Agent) Disconnect() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.disconnected {
		return nil
	}
	a.disconnected = true

	var firstErr error
	for i := len(a.teardown) - 1; i >= 0; i-- {
		if err := a.teardown[i](); err != nil {
			a.log.Printf("jezebel: teardown error: %v", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// Call is the call orchestrator of §4.3. target is either another *Agent
// (dispatched in-process on a background goroutine) or a URL string whose
// scheme selects a registered carrier. Call never blocks: it returns a
// *Handle immediately whose Wait resolves the outcome.
func (a *Agent) Call(ctx context.Context, target any, method string, positional []any, named map[string]any) (*Handle, error) {
	req, err := BuildRequest(method, positional, named)
	if err != nil {
		return nil, err
	}
	switch t := target.(type) {
	case *Agent:
		return a.callLocal(ctx, t, req), nil
	case string:
		return a.callRemote(ctx, t, req)
	default:
		return nil, ErrInvalidArguments
	}
}

func (a *Agent) callLocal(ctx context.Context, peer *Agent, req *OutboundRequest) *Handle {
	h, complete := newHandle()
	go func() {
		reply := peer.ExecuteRequest(ctx, req.Encode())
		if reply == nil {
			complete(nil, fmt.Errorf("jezebel: peer produced no response for %q", req.ID))
			return
		}
		pr, err := ParseResponse(reply)
		if err != nil {
			complete(nil, err)
			return
		}
		wantID, _ := json.Marshal(req.ID)
		if string(pr.ID) != string(wantID) {
			panic(fmt.Sprintf("jezebel: mismatched response id %s, expecting %s", pr.ID, wantID))
		}
		if pr.Err != nil {
			complete(nil, mapCallError(pr.Err))
			return
		}
		complete(pr.Result, nil)
	}()
	return h
}

func (a *Agent) callRemote(ctx context.Context, rawURL string, req *OutboundRequest) (*Handle, error) {
	u, err := url.Parse(rawURL)
	if err != nil || u.Scheme == "" {
		return nil, ErrInvalidArguments
	}
	send, ok := a.carriers[u.Scheme]
	if !ok {
		return nil, ErrNoCarrier
	}
	return send(ctx, rawURL, req)
}
