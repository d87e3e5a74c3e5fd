// Copyright (c) Emberroute. All Rights Reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package pipeline

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

// RunnerOptions configures a Runner. Built with functional options,
// following the teacher's Options/Option pattern (framer's options.go).
type RunnerOptions struct {
	Limits   Limits
	Log      logrus.FieldLogger
	Metrics  *Metrics
	PoolSize int
}

var defaultRunnerOptions = RunnerOptions{
	Limits:   DefaultLimits(),
	Log:      logrus.StandardLogger(),
	PoolSize: 64,
}

// RunnerOption mutates RunnerOptions during construction.
type RunnerOption func(*RunnerOptions)

// WithLimits overrides the default tunables.
func WithLimits(l Limits) RunnerOption {
	return func(o *RunnerOptions) { o.Limits = l }
}

// WithLogger injects a structured logger (spec §1.2). Defaults to
// logrus.StandardLogger() when not supplied.
func WithLogger(log logrus.FieldLogger) RunnerOption {
	return func(o *RunnerOptions) { o.Log = log }
}

// WithMetrics enables Prometheus instrumentation, registering the
// pipeline's gauges/counters against reg. Metrics stay nil (a no-op)
// when this option is omitted, matching the teacher's "options change
// behavior, absence is a sane default" discipline.
func WithMetrics(reg prometheus.Registerer) RunnerOption {
	return func(o *RunnerOptions) { o.Metrics = newMetrics(reg) }
}

// WithPoolSize bounds the number of connections served concurrently by
// a Runner (spec §5: "a bounded pool is the only source of
// parallelism").
func WithPoolSize(n int) RunnerOption {
	return func(o *RunnerOptions) { o.PoolSize = n }
}
