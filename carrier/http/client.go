// Copyright (C) 2017 Michael J. Fromberger. All Rights Reserved.

package http

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/bluescarni/jezebel"
)

// ClientOptions control Send. A nil *ClientOptions uses the default
// 10-second timeout of §4.4.
type ClientOptions struct {
	// Timeout bounds the outbound HTTP exchange. Ignored if NoTimeout is
	// set. Zero means the default of 10 seconds; a negative value is
	// rejected by Send.
	Timeout time.Duration

	// NoTimeout disables any deadline on the outbound exchange, matching an
	// explicit "http_timeout": null configuration (§4.4/§4.5, SPEC_FULL
	// §6). It takes priority over Timeout.
	NoTimeout bool
}

func (o *ClientOptions) timeout() (timeout time.Duration, unbounded bool, err error) {
	if o == nil {
		return 10 * time.Second, false, nil
	}
	if o.NoTimeout {
		return 0, true, nil
	}
	if o.Timeout < 0 {
		return 0, false, fmt.Errorf("jezebel/carrier/http: negative timeout")
	}
	if o.Timeout == 0 {
		return 10 * time.Second, false, nil
	}
	return o.Timeout, false, nil
}

// Send implements jezebel.CarrierSendFunc for the "http" scheme: it POSTs
// req to targetURL with the headers required by §4.4 and runs the entire
// exchange on a one-shot background goroutine, returning a *jezebel.Handle
// immediately.
func Send(opts *ClientOptions) jezebel.CarrierSendFunc {
	timeout, unbounded, timeoutErr := opts.timeout()
	return func(ctx context.Context, targetURL string, req *jezebel.OutboundRequest) (*jezebel.Handle, error) {
		if timeoutErr != nil {
			return nil, timeoutErr
		}
		h, complete := jezebel.NewHandle()
		cli := &http.Client{}
		if !unbounded {
			cli.Timeout = timeout
		}
		go func() {
			httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, targetURL, bytes.NewReader(req.Encode()))
			if err != nil {
				complete(nil, err)
				return
			}
			httpReq.Header.Set("Content-Type", "application/json")
			httpReq.Header.Set("Accept", "application/json")

			resp, err := cli.Do(httpReq)
			if err != nil {
				complete(nil, err)
				return
			}
			defer resp.Body.Close()

			body, err := io.ReadAll(resp.Body)
			if err != nil {
				complete(nil, err)
				return
			}
			if resp.StatusCode != http.StatusOK {
				complete(nil, fmt.Errorf("jezebel/carrier/http: unexpected status %s: %s", resp.Status, body))
				return
			}
			if len(body) == 0 {
				complete(nil, nil)
				return
			}

			parsed, err := jezebel.ParseResponse(body)
			if err != nil {
				complete(nil, err)
				return
			}
			if parsed.Err != nil {
				complete(nil, jezebel.MapCallError(parsed.Err))
				return
			}
			complete(parsed.Result, nil)
		}()
		return h, nil
	}
}
