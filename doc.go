// Copyright (C) 2017 Michael J. Fromberger. All Rights Reserved.

// Package jezebel implements a peer-to-peer JSON-RPC 2.0 agent framework.
//
// An Agent is built from a set of Capability values by Build. Each
// capability contributes rpc-exposed methods, endpoint URLs, an outbound
// carrier, or any combination of the three. The resulting Agent shares one
// method registry and one lifecycle across every capability.
//
// Calls to other agents, whether in-process or across a carrier such as
// carrier/http or carrier/xmpp, go through Agent.Call, which returns a
// *Handle that resolves asynchronously.
package jezebel
