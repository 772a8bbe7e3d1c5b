// NotifyHub - Real-time Portal Notification Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/notifyhub

package services

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"
)

// HTTPServer matches the *http.Server lifecycle methods.
type HTTPServer interface {
	Serve(l net.Listener) error
	Shutdown(ctx context.Context) error
}

// HTTPServerService supervises an HTTP server bound before the tree starts,
// so a busy port is reported at startup instead of as a restart loop.
//
// The pre-bound listener is used on the first Serve. If the server fails and
// suture restarts the service, the address is bound again.
type HTTPServerService struct {
	server          HTTPServer
	addr            string
	shutdownTimeout time.Duration
	name            string

	mu       sync.Mutex
	listener net.Listener
}

// NewHTTPServerService wraps server with a listener from net.Listen.
func NewHTTPServerService(server HTTPServer, listener net.Listener, shutdownTimeout time.Duration) *HTTPServerService {
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}
	return &HTTPServerService{
		server:          server,
		addr:            listener.Addr().String(),
		shutdownTimeout: shutdownTimeout,
		name:            "http-server",
		listener:        listener,
	}
}

func (h *HTTPServerService) takeListener() (net.Listener, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if l := h.listener; l != nil {
		h.listener = nil
		return l, nil
	}
	return net.Listen("tcp", h.addr)
}

// Serve implements suture.Service. http.ErrServerClosed is not an error.
func (h *HTTPServerService) Serve(ctx context.Context) error {
	l, err := h.takeListener()
	if err != nil {
		return fmt.Errorf("http server listen failed: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		if err := h.server.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil

	case <-ctx.Done():
		// ctx is already canceled; shutdown gets its own deadline.
		shutdownCtx, cancel := context.WithTimeout(context.Background(), h.shutdownTimeout)
		defer cancel()

		if err := h.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http server shutdown failed: %w", err)
		}

		<-errCh
		return ctx.Err()
	}
}

func (h *HTTPServerService) String() string {
	return h.name
}
