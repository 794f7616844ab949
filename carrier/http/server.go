// Copyright (C) 2017 Michael J. Fromberger. All Rights Reserved.

// Package http implements the HTTP carrier of §4.4: an inbound single-shot
// request/response server and an outbound POST-and-wait client, both
// speaking the JSON-RPC 2.0 text produced and consumed by the jezebel
// protocol engine.
package http

import (
	"context"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/bluescarni/jezebel"
)

const indexBody = `<html><body><p>jezebel agent</p></body></html>`

// Dispatcher is the subset of *jezebel.Agent the server needs: something
// that can run the protocol engine's dispatch procedure against inbound
// bytes. Accepting the interface rather than the concrete type lets
// Capability stand in as the dispatcher and forward to an Agent attached
// after the server has started.
type Dispatcher interface {
	ExecuteRequest(ctx context.Context, text []byte) []byte
}

// ServerOptions control a Server. A nil *ServerOptions is ready for use.
type ServerOptions struct {
	// If not nil, send debug text logs here.
	Logger jezebel.Logger
}

func (o *ServerOptions) logger() jezebel.Logger {
	if o == nil {
		return nil
	}
	return o.Logger
}

// A Server is the inbound half of the HTTP carrier: it answers GET / with a
// liveness page and POST / by handing the request body to a Dispatcher.
type Server struct {
	addr string
	url  string
	disp Dispatcher
	log  jezebel.Logger

	ln net.Listener
	hs *http.Server
}

// NewServer constructs a Server bound to addr ("host:port") that dispatches
// through disp. The server does not begin listening until Serve is called.
func NewServer(addr string, disp Dispatcher, opts *ServerOptions) *Server {
	s := &Server{addr: addr, disp: disp, log: opts.logger()}
	s.hs = &http.Server{Addr: addr, Handler: http.HandlerFunc(s.handle)}
	return s
}

// Serve opens the listening socket and starts accepting connections on a
// background goroutine, one per request, matching the source's
// multi-threaded server (§4.4). It returns the URL the server is reachable
// at once the listener is bound, or an error if the socket could not be
// opened.
//
// Unlike the source's protocol_version = "HTTP/1.0" pin (a deliberate
// avoidance of mandatory HTTP/1.1 headers), this carrier uses net/http's
// ordinary HTTP/1.1 server: see DESIGN.md for why the pin is not carried
// forward.
func (s *Server) Serve() (string, error) {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return "", err
	}
	s.ln = ln
	s.url = "http://" + ln.Addr().String() + "/"
	go func() {
		if err := s.hs.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.log.Printf("jezebel/carrier/http: serve error: %v", err)
		}
	}()
	return s.url, nil
}

// URL reports the address the server is listening on. Before Serve has
// been called it falls back to the address the server was constructed
// with, which may not reflect an OS-assigned ephemeral port.
func (s *Server) URL() string {
	if s.url != "" {
		return s.url
	}
	return "http://" + s.addr + "/"
}

func (s *Server) handle(w http.ResponseWriter, req *http.Request) {
	switch req.Method {
	case http.MethodGet:
		w.Header().Set("Content-Type", "text/html")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(indexBody)) //nolint:errcheck
	case http.MethodPost:
		s.handlePost(w, req)
	default:
		failHTTP(w, "unsupported method "+req.Method)
	}
}

// handlePost enforces the HTTP-layer validation of §4.4, in order, before
// the body ever reaches the protocol engine. Each violation is a plain-text
// 400, not a JSON-RPC error.
func (s *Server) handlePost(w http.ResponseWriter, req *http.Request) {
	if !containsToken(req.Header.Get("Content-Type"), "application/json") {
		failHTTP(w, "missing or invalid Content-Type: expected application/json")
		return
	}
	if !containsToken(req.Header.Get("Accept"), "application/json") {
		failHTTP(w, "missing or invalid Accept: expected application/json")
		return
	}
	clHeader := req.Header.Get("Content-Length")
	if clHeader == "" {
		failHTTP(w, "missing Content-Length")
		return
	}
	cl, err := strconv.Atoi(clHeader)
	if err != nil || cl < 0 {
		failHTTP(w, "invalid Content-Length")
		return
	}

	body := make([]byte, cl)
	if _, err := io.ReadFull(req.Body, body); err != nil {
		failHTTP(w, "error reading request body: "+err.Error())
		return
	}

	reply := s.disp.ExecuteRequest(req.Context(), body)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if len(reply) != 0 {
		w.Write(reply) //nolint:errcheck
	}
}

func failHTTP(w http.ResponseWriter, diagnostic string) {
	w.Header().Set("Content-Type", `text/plain; charset="utf-8"`)
	w.WriteHeader(http.StatusBadRequest)
	w.Write([]byte(diagnostic)) //nolint:errcheck
}

func containsToken(header, token string) bool {
	for _, part := range strings.Split(header, ",") {
		if strings.Contains(strings.ToLower(part), token) {
			return true
		}
	}
	return false
}

// Close stops serving and closes the listening socket. It is idempotent.
func (s *Server) Close() error {
	if s.hs == nil {
		return nil
	}
	err := s.hs.Close()
	s.hs = nil
	return err
}
