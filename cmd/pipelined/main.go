// Copyright (c) Emberroute. All Rights Reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Command pipelined is a reference static-file server built on the
// pipeline package: one handler stage (staticFile), the chunk and range
// filters, and a net or sendfile connector, wired together per request
// by a Handler.
package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"code.emberroute.dev/pipeline"
)

func main() {
	if err := NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// NewRootCmd returns the pipelined root command.
func NewRootCmd() *cobra.Command {
	var (
		listenAddr  string
		root        string
		metricsAddr string
		poolSize    int
		useSendfile bool
		logLevel    string
	)

	cmd := &cobra.Command{
		Use:   "pipelined",
		Short: "Serve static files through the outbound response pipeline",
		Long:  `pipelined demonstrates the pipeline package's packet-queue response path: a handler stage reads a file from --root, the chunk and range filters apply when requested, and a connector stage writes it to the socket.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(runOptions{
				listenAddr:  listenAddr,
				root:        root,
				metricsAddr: metricsAddr,
				poolSize:    poolSize,
				useSendfile: useSendfile,
				logLevel:    logLevel,
			})
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&listenAddr, "listen", "l", ":8080", "address to accept connections on")
	flags.StringVarP(&root, "root", "r", ".", "directory served as static content")
	flags.StringVar(&metricsAddr, "metrics", "", "address to serve /metrics on (empty disables Prometheus)")
	flags.IntVar(&poolSize, "pool-size", 64, "maximum number of connections served concurrently")
	flags.BoolVar(&useSendfile, "sendfile", true, "use the sendfile connector instead of the net connector")
	flags.StringVar(&logLevel, "log-level", "info", "logrus level: debug, info, warn, error")

	cmd.AddCommand(versionCommand())
	return cmd
}

func versionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Println("pipelined 0.1.0")
			return nil
		},
	}
}

type runOptions struct {
	listenAddr  string
	root        string
	metricsAddr string
	poolSize    int
	useSendfile bool
	logLevel    string
}

func run(o runOptions) error {
	log := logrus.StandardLogger()
	if lvl, err := logrus.ParseLevel(o.logLevel); err == nil {
		log.SetLevel(lvl)
	}

	root, err := filepath.Abs(o.root)
	if err != nil {
		return fmt.Errorf("resolve root: %w", err)
	}

	opts := []pipeline.RunnerOption{
		pipeline.WithLogger(log),
		pipeline.WithPoolSize(o.poolSize),
	}
	if o.metricsAddr != "" {
		reg := prometheus.NewRegistry()
		opts = append(opts, pipeline.WithMetrics(reg))
		go serveMetrics(o.metricsAddr, reg, log)
	}

	// The handler closure needs the Runner's Metrics instance, which only
	// exists once the Runner is built from opts; forward through a local
	// variable the closure captures rather than reordering construction.
	var handler pipeline.Handler
	runner := pipeline.NewRunner(func(ctx context.Context, conn *pipeline.Context) ([]*pipeline.Stage, error) {
		return handler(ctx, conn)
	}, opts...)

	registry := pipeline.NewRegistry()
	registry.Register(pipeline.NewChunkFilter(pipeline.DefaultLimits(), runner.Metrics()))
	registry.Freeze()

	handler = newHandler(root, registry, runner.Metrics(), o.useSendfile)

	ln, err := net.Listen("tcp", o.listenAddr)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	log.WithField("addr", o.listenAddr).WithField("root", root).Info("pipelined: serving")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return runner.Serve(ctx, ln)
}

func serveMetrics(addr string, reg *prometheus.Registry, log logrus.FieldLogger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.WithError(err).Error("pipelined: metrics server failed")
	}
}

// newHandler builds the Handler a Runner dispatches accepted connections
// to. It resolves a fixed demo path under root, reusing the frozen
// registry's chunk filter, adding the range filter only when its Match
// accepts the request, and appending a connector.
func newHandler(root string, registry *pipeline.Registry, metrics *pipeline.Metrics, useSendfile bool) pipeline.Handler {
	limits := pipeline.DefaultLimits()
	formatter := pipeline.NewTextHeaderFormatter()

	return func(ctx context.Context, conn *pipeline.Context) ([]*pipeline.Stage, error) {
		conn.Header = formatter
		path := filepath.Join(root, "index.html")

		chunkFilter := registry.Lookup("chunkFilter")
		if chunkFilter == nil {
			chunkFilter = pipeline.NewChunkFilter(limits, metrics)
		}

		stages := []*pipeline.Stage{
			pipeline.NewStaticFileStage(path),
			chunkFilter,
		}
		if rangeFilter := pipeline.NewRangeFilter(metrics); rangeFilter.Match(conn, path) {
			stages = append(stages, rangeFilter)
		}
		if useSendfile {
			stages = append(stages, pipeline.NewSendConnector(limits, metrics))
		} else {
			stages = append(stages, pipeline.NewNetConnector(limits, metrics))
		}
		return stages, nil
	}
}
