// Copyright (C) 2017 Michael J. Fromberger. All Rights Reserved.

package xmpp

import (
	"context"
	"time"

	"github.com/bluescarni/jezebel"
)

// Capability wires the XMPP carrier into an Agent built by jezebel.Build.
// It consumes the "jid", "jpassword", and "xmpp_timeout" configuration
// keys of §6. Session establishment happens synchronously inside Init,
// matching the source's constructor blocking on the session-status
// condition before returning (§4.5): a failed or timed-out session fails
// Build itself. xmpp_timeout defaults to 10 seconds and, set to an
// explicit null, disables the deadline on both session establishment and
// every outbound call's wait for a reply.
type Capability struct {
	Logger jezebel.Logger

	carrier *Carrier
}

// Init implements jezebel.Capability.
func (c *Capability) Init(cfg jezebel.Config) (jezebel.Config, error) {
	timeout, hasTimeout, err := cfg.Duration("xmpp_timeout", 10*time.Second)
	if err != nil {
		return cfg, err
	}
	jid, _ := cfg.String("jid")
	password, _ := cfg.String("jpassword")

	carrier, err := NewCarrier(&Options{
		JID:       jid,
		Password:  password,
		Timeout:   timeout,
		NoTimeout: !hasTimeout,
		Logger:    c.Logger,
	})
	if err != nil {
		return cfg, err
	}
	if err := carrier.Open(context.Background()); err != nil {
		return cfg, err
	}
	c.carrier = carrier

	return cfg.Without("jid", "jpassword", "xmpp_timeout"), nil
}

// Attach installs the composed Agent as the dispatcher for inbound chat
// requests. Call it once, immediately after jezebel.Build returns.
func (c *Capability) Attach(a Dispatcher) { c.carrier.SetDispatcher(a) }

// Assigner implements jezebel.Capability; the XMPP carrier contributes no
// rpc-exposed methods beyond the introspection helpers exposed directly on
// Carrier for tests.
func (c *Capability) Assigner() jezebel.Assigner { return nil }

// URLs implements jezebel.Capability: an XMPP-enabled agent advertises one
// "xmpp:<bare-jid>" URL; a client-only carrier advertises none.
func (c *Capability) URLs() []string {
	if c.carrier == nil || c.carrier.jid == "" {
		return nil
	}
	return []string{"xmpp:" + c.carrier.jid}
}

// Carrier implements jezebel.Capability. Per §6's configuration table, an
// absent "jid" disables XMPP on this agent entirely, including outbound
// sends, so no scheme is registered in that case.
func (c *Capability) Carrier() (string, jezebel.CarrierSendFunc) {
	if c.carrier == nil || c.carrier.jid == "" {
		return "", nil
	}
	return "xmpp", c.carrier.Send
}

// Teardown implements jezebel.Capability.
func (c *Capability) Teardown() error {
	if c.carrier == nil {
		return nil
	}
	return c.carrier.Close()
}
