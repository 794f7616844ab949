// Copyright (C) 2017 Michael J. Fromberger. All Rights Reserved.

package jezebel

import (
	"context"
	"sort"
)

// A Handler implements one method given an inbound request. The returned
// value must be JSON-marshalable, or nil. A handler that wants to control
// the wire error reported to the caller should return a value of type
// *Error; any other error is reported as code.InternalError.
type Handler = func(context.Context, *Request) (any, error)

// An Assigner assigns a Handler to a method name, or returns nil if the
// method is absent or not rpc-exposed. Presence in an Assigner is itself
// the rpc-exposed flag: a capability's private methods are simply never
// entered into one.
type Assigner interface {
	Assign(ctx context.Context, method string) Handler
}

// Namer is an optional interface an Assigner may implement to expose the
// names of its methods, backing the built-in "features" method.
type Namer interface {
	// Names returns all known method names in lexicographic order.
	Names() []string
}

// MapAssigner is an Assigner backed by a plain map literal — the idiomatic
// way for a capability to declare its rpc-exposed methods.
type MapAssigner map[string]Handler

// Assign implements Assigner.
func (m MapAssigner) Assign(_ context.Context, method string) Handler { return m[method] }

// Names implements Namer.
func (m MapAssigner) Names() []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Compose merges assigners into a single Assigner. Entries from later
// assigners override entries of the same name from earlier ones — this is
// the documented, test-pinned name-collision rule for capability
// composition (§4.2). Nil assigners are ignored, and so are assigners that
// do not implement Namer: their method names cannot be listed, so none of
// their methods reach the merged registry.
func Compose(assigners ...Assigner) Assigner {
	merged := make(MapAssigner)
	for _, a := range assigners {
		if a == nil {
			continue
		}
		namer, ok := a.(Namer)
		if !ok {
			continue
		}
		for _, name := range namer.Names() {
			if h := a.Assign(context.Background(), name); h != nil {
				merged[name] = h
			}
		}
	}
	return merged
}
