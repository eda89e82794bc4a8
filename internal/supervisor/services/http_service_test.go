// Opportuned - Opportunity Intake and Review Service
// Copyright 2026 Opportune HQ
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/opportune-hq/opportuned

package services

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"
)

type fakeServer struct {
	serveErr   error
	stopped    chan struct{}
	shutdownCh chan struct{}
}

func newFakeServer(serveErr error) *fakeServer {
	return &fakeServer{
		serveErr:   serveErr,
		stopped:    make(chan struct{}),
		shutdownCh: make(chan struct{}),
	}
}

func (f *fakeServer) ListenAndServe() error {
	if f.serveErr != nil {
		return f.serveErr
	}
	<-f.stopped
	return http.ErrServerClosed
}

func (f *fakeServer) Shutdown(context.Context) error {
	close(f.stopped)
	close(f.shutdownCh)
	return nil
}

func TestHTTPServerServiceShutsDownOnCancel(t *testing.T) {
	server := newFakeServer(nil)
	svc := NewHTTPServerService(server, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Serve(ctx) }()

	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Serve returned %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}

	select {
	case <-server.shutdownCh:
	default:
		t.Error("Shutdown was not called")
	}
}

func TestHTTPServerServiceReportsListenFailure(t *testing.T) {
	boom := errors.New("address in use")
	svc := NewHTTPServerService(newFakeServer(boom), time.Second)

	err := svc.Serve(context.Background())
	if err == nil || !errors.Is(err, boom) {
		t.Errorf("Serve returned %v, want wrapped listen error", err)
	}
}

func TestConsumerServicePassesErrorThrough(t *testing.T) {
	boom := errors.New("subscribe failed")
	svc := NewConsumerService(runnerFunc(func(context.Context) error { return boom }))

	if err := svc.Serve(context.Background()); !errors.Is(err, boom) {
		t.Errorf("Serve returned %v, want the runner's error", err)
	}
}

type runnerFunc func(ctx context.Context) error

func (f runnerFunc) Run(ctx context.Context) error { return f(ctx) }
