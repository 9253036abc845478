// Sparklytics - Self-hosted Web Analytics Engine
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/sparklytics/engine

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// httpServerService wraps an *http.Server as a suture.Service so it shuts
// down alongside the rest of the supervisor tree on context cancellation.
type httpServerService struct {
	server          *http.Server
	shutdownTimeout time.Duration
}

func newHTTPServerService(server *http.Server, shutdownTimeout time.Duration) *httpServerService {
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}
	return &httpServerService{server: server, shutdownTimeout: shutdownTimeout}
}

func (h *httpServerService) Serve(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if err := h.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
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
		shutdownCtx, cancel := context.WithTimeout(context.Background(), h.shutdownTimeout)
		defer cancel()
		if err := h.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http server shutdown failed: %w", err)
		}
		<-errCh
		return ctx.Err()
	}
}

func (h *httpServerService) String() string {
	return "http-server"
}
