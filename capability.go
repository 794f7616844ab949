// Copyright (C) 2017 Michael J. Fromberger. All Rights Reserved.

package jezebel

import (
	"context"
	"fmt"
	"time"
)

// Config is the construction-time configuration mapping passed through the
// capability composition chain. A capability's Init consumes the keys it
// recognizes and returns the remainder for the next capability; unknown
// keys are simply forwarded and, eventually, ignored (§4.6).
type Config map[string]any

// String returns cfg[key] as a string, or ok=false if the key is absent or
// not a string.
func (cfg Config) String(key string) (string, bool) {
	v, ok := cfg[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// Duration returns cfg[key] interpreted as a number of seconds. If the key
// is absent, (def, true, nil) is returned. If the key is present and
// explicitly null, (0, false, nil) is returned: this is the three-way
// signal a timeout-bearing capability needs to tell "use the default" apart
// from "no timeout at all" (§4.4/§4.5, SPEC_FULL §6), since both would
// otherwise collapse to the same zero value. Otherwise cfg[key]'s numeric
// value is returned as (duration, true, nil); a negative value is a
// configuration error.
func (cfg Config) Duration(key string, def time.Duration) (time.Duration, bool, error) {
	v, present := cfg[key]
	if !present {
		return def, true, nil
	}
	if v == nil {
		return 0, false, nil
	}
	var secs float64
	switch t := v.(type) {
	case float64:
		secs = t
	case int:
		secs = float64(t)
	case time.Duration:
		if t < 0 {
			return 0, true, fmt.Errorf("jezebel: %s must not be negative", key)
		}
		return t, true, nil
	default:
		return 0, true, fmt.Errorf("jezebel: %s must be a number of seconds", key)
	}
	if secs < 0 {
		return 0, true, fmt.Errorf("jezebel: %s must not be negative", key)
	}
	return time.Duration(secs * float64(time.Second)), true, nil
}

// Without returns a copy of cfg with the given keys removed, the idiom a
// Capability uses to "consume" the keys it recognizes before forwarding the
// rest of the chain.
func (cfg Config) Without(keys ...string) Config {
	out := make(Config, len(cfg))
	for k, v := range cfg {
		out[k] = v
	}
	for _, k := range keys {
		delete(out, k)
	}
	return out
}

// CarrierSendFunc sends an outbound request to targetURL and returns a
// Handle for its completion. It is the explicit scheme→carrier-send
// mapping that replaces the source's dynamic "<scheme>_rpc_request"
// attribute lookup (§9).
type CarrierSendFunc func(ctx context.Context, targetURL string, req *OutboundRequest) (*Handle, error)

// A Capability is one independently-developed module contributed to an
// Agent by Build: a set of rpc-exposed methods, a set of endpoint URLs, an
// outbound carrier, or any combination. A capability that provides none of
// these (e.g. a pure method provider) returns nil/"" from the methods it
// does not implement.
//
// Because a capability's Assigner, URLs, and Carrier are only ever invoked
// through an Agent built by Build, there is no standalone-instantiation
// path that would let a bare carrier capability bypass the protocol
// engine — this is the Go realization of the source's "inheritance sanity
// check" (§4.6).
type Capability interface {
	// Init consumes the configuration keys this capability recognizes and
	// returns the remainder. Init is called exactly once per Agent, in
	// composition order.
	Init(cfg Config) (Config, error)

	// Assigner returns this capability's rpc-exposed methods, or nil.
	Assigner() Assigner

	// URLs returns this capability's own endpoint URLs, or nil.
	URLs() []string

	// Carrier returns the URL scheme this capability sends outbound
	// requests for, and the function that sends them. scheme == "" means
	// this capability contributes no outbound carrier.
	Carrier() (scheme string, send CarrierSendFunc)

	// Teardown releases this capability's resources. It must be safe to
	// call more than once.
	Teardown() error
}
