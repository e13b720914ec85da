//go:build linux

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/ja7ad/energymodel/pkg/metrics"
)

const shutdownGrace = 5 * time.Second

func newServeCmd(o *opts) *cobra.Command {
	var listen string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Build the model once and export it over Prometheus /metrics",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ln, err := net.Listen("tcp", listen)
			if err != nil {
				return fmt.Errorf("listen: %w", err)
			}
			return serve(cmd.Context(), o, ln)
		},
	}
	cmd.Flags().StringVarP(&listen, "listen", "l", ":9464", "address of the metrics endpoint")
	return cmd
}

func serve(ctx context.Context, o *opts, ln net.Listener) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	col, err := metrics.NewCollector(reg)
	if err != nil {
		_ = ln.Close()
		return err
	}

	m, err := loadModel(ctx, o, col)
	switch {
	case m == nil:
		_ = ln.Close()
		return err
	case err != nil:
		slog.Error("energy model build failed, serving without it", "err", err)
	case !m.Enabled():
		slog.Warn("serving without a model", "err", errDisabled)
	}
	if _, err := metrics.RegisterStates(reg, m); err != nil {
		_ = ln.Close()
		return err
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", col.Handler())
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()
	slog.Info("serving metrics", "addr", ln.Addr().String(), "domains", len(m.Domains()))

	select {
	case <-ctx.Done():
		slog.Info("interrupted")
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}

	sctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
