// Copyright (c) Emberroute. All Rights Reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package pipeline

import (
	"context"
	"errors"
	"net"
	"time"

	"golang.org/x/sync/errgroup"

	"code.emberroute.dev/pipeline/internal/rawio"
)

// Handler builds the per-connection stage chain for one accepted
// connection. Implementations typically register a RoleHandler stage
// that parses the request and produces response packets, plus whatever
// filters (chunk/range) and a single terminal connector (net/send) the
// response needs.
type Handler func(ctx context.Context, conn *Context) ([]*Stage, error)

// Runner accepts connections and builds each one's stage chain through
// its Handler, bounding concurrency to RunnerOptions.PoolSize — a
// semaphore-gated errgroup.Group is
// the only source of parallelism (spec §5), same as the teacher applies
// a single collaborator (iox) rather than rolling its own scheduler.
type Runner struct {
	opts    RunnerOptions
	handler Handler
}

// NewRunner constructs a Runner that dispatches accepted connections to
// handler.
func NewRunner(handler Handler, opts ...RunnerOption) *Runner {
	o := defaultRunnerOptions
	for _, fn := range opts {
		fn(&o)
	}
	return &Runner{opts: o, handler: handler}
}

// Metrics returns the Runner's Prometheus instrument set, or nil if
// WithMetrics was never supplied. Handlers share this instance so
// connector/filter stages and the Runner report against the same
// collectors.
func (r *Runner) Metrics() *Metrics { return r.opts.Metrics }

// Serve accepts connections from ln until ctx is canceled or ln is
// closed; any other Accept error is logged and accepting continues. It
// blocks until every in-flight connection has finished.
func (r *Runner) Serve(ctx context.Context, ln net.Listener) error {
	eg, egCtx := errgroup.WithContext(ctx)
	sem := make(chan struct{}, max(1, r.opts.PoolSize))

	go func() {
		<-egCtx.Done()
		_ = ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) || egCtx.Err() != nil {
				break
			}
			r.opts.Log.WithError(err).Warn("pipeline: accept failed")
			continue
		}

		select {
		case sem <- struct{}{}:
		case <-egCtx.Done():
			_ = conn.Close()
			continue
		}

		eg.Go(func() error {
			defer func() { <-sem }()
			r.serveConn(egCtx, conn)
			return nil
		})
	}

	return eg.Wait()
}

// serveConn drives one connection's request/response cycles until the
// peer disconnects, a protocol error marks the connection for
// unconditional close, or the keep-alive limit is reached.
func (r *Runner) serveConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	writer, err := rawio.NewWriter(conn)
	if err != nil {
		r.opts.Log.WithError(err).Warn("pipeline: connection does not support raw I/O")
		return
	}

	for requestCount := 0; ; requestCount++ {
		reqCtx := NewContext()
		reqCtx.Transport = writer
		reqCtx.RequestBody = conn
		reqCtx.Metrics = r.opts.Metrics

		stages, err := r.handler(ctx, reqCtx)
		if err != nil {
			r.opts.Log.WithError(err).Debug("pipeline: handler setup failed")
			return
		}

		pl, err := NewPipeline(reqCtx, stages, r.opts.Limits)
		if err != nil {
			r.opts.Log.WithError(err).Error("pipeline: invalid stage chain")
			return
		}

		if err := r.runOnce(ctx, conn, pl, reqCtx); err != nil {
			pl.Close()
			return
		}
		pl.Close()

		if !reqCtx.KeepAliveAllowed(requestCount+1, r.opts.Limits.MaxKeepAlive) {
			return
		}
	}
}

// runOnce pumps pl to quiescence, re-arming the connection's write
// deadline (Limits.KeepTimeout) on each turn and retrying on every
// Limits.TimerPeriod tick; once Limits.ServerTimeout has elapsed the
// connection is marked closing and the request is abandoned.
func (r *Runner) runOnce(ctx context.Context, conn net.Conn, pl *Pipeline, reqCtx *Context) error {
	deadline := time.Now().Add(r.opts.Limits.ServerTimeout)
	ticker := time.NewTicker(r.opts.Limits.TimerPeriod)
	defer ticker.Stop()

	for {
		_ = conn.SetWriteDeadline(time.Now().Add(r.opts.Limits.KeepTimeout))

		if pl.Pump() {
			return nil
		}
		if reqCtx.Closing() {
			return errClosing
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			if now.After(deadline) {
				reqCtx.MarkClosing()
				return errServerTimeout
			}
		}
	}
}

var (
	errClosing       = errors.New("pipeline: connection marked closing")
	errServerTimeout = errors.New("pipeline: server timeout exceeded")
)
