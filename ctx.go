// Copyright (C) 2017 Michael J. Fromberger. All Rights Reserved.

package jezebel

import "context"

type inboundRequestKey struct{}

func withInboundRequest(ctx context.Context, req *Request) context.Context {
	return context.WithValue(ctx, inboundRequestKey{}, req)
}

// InboundRequest returns the Request being dispatched in ctx, or nil if ctx
// was not constructed by ExecuteRequest. A Handler can use this to recover
// fields not passed directly as parameters.
func InboundRequest(ctx context.Context) *Request {
	req, _ := ctx.Value(inboundRequestKey{}).(*Request)
	return req
}
