// Copyright (C) 2017 Michael J. Fromberger. All Rights Reserved.

package http

import (
	"context"
	"sync"
	"time"

	"github.com/bluescarni/jezebel"
)

// Capability wires the HTTP carrier into an Agent built by jezebel.Build.
// It consumes the "server_address" and "http_timeout" configuration keys of
// §6: server_address enables the inbound server at (host, port); its
// absence means HTTP is client-only. http_timeout bounds outbound calls,
// defaults to 10 seconds, and disables the deadline entirely when set to
// an explicit null.
//
// Because Build calls URLs() immediately after Init, the listening socket
// is opened during Init itself; inbound requests are forwarded to the
// composed Agent once Attach is called, which callers do immediately after
// Build returns.
type Capability struct {
	Logger jezebel.Logger

	server *Server
	send   jezebel.CarrierSendFunc

	mu    sync.Mutex
	agent Dispatcher
}

// Init implements jezebel.Capability.
func (c *Capability) Init(cfg jezebel.Config) (jezebel.Config, error) {
	timeout, hasTimeout, err := cfg.Duration("http_timeout", 10*time.Second)
	if err != nil {
		return cfg, err
	}
	c.send = Send(&ClientOptions{Timeout: timeout, NoTimeout: !hasTimeout})

	if addr, ok := cfg.String("server_address"); ok {
		c.server = NewServer(addr, c, &ServerOptions{Logger: c.Logger})
		if _, err := c.server.Serve(); err != nil {
			return cfg, err
		}
	}

	return cfg.Without("server_address", "http_timeout"), nil
}

// ExecuteRequest implements Dispatcher by forwarding to the Agent attached
// by Attach. A request that arrives before Attach is called is answered
// with nil, which the HTTP handler turns into an empty 200 body; this can
// only happen if a peer reaches the socket before jezebel.Build's caller
// finishes wiring the agent, which does not happen in practice since the
// listener and the dispatch forwarding are set up in the same call chain.
func (c *Capability) ExecuteRequest(ctx context.Context, text []byte) []byte {
	c.mu.Lock()
	agent := c.agent
	c.mu.Unlock()
	if agent == nil {
		return nil
	}
	return agent.ExecuteRequest(ctx, text)
}

// Attach installs the fully composed Agent as the dispatcher for inbound
// HTTP requests. Call it once, immediately after jezebel.Build returns.
func (c *Capability) Attach(a Dispatcher) {
	c.mu.Lock()
	c.agent = a
	c.mu.Unlock()
}

// Assigner implements jezebel.Capability; the HTTP carrier contributes no
// rpc-exposed methods of its own.
func (c *Capability) Assigner() jezebel.Assigner { return nil }

// URLs implements jezebel.Capability.
func (c *Capability) URLs() []string {
	if c.server == nil {
		return nil
	}
	return []string{c.server.URL()}
}

// Carrier implements jezebel.Capability: the HTTP carrier always registers
// an outbound sender for the "http" scheme, even when running client-only.
func (c *Capability) Carrier() (string, jezebel.CarrierSendFunc) { return "http", c.send }

// Teardown implements jezebel.Capability.
func (c *Capability) Teardown() error {
	if c.server == nil {
		return nil
	}
	return c.server.Close()
}
