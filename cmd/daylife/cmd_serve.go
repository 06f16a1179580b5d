package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	appLog "daylife/internal/log"
	"daylife/internal/metrics"
	"daylife/internal/refresh"
	"daylife/internal/web"
)

var serveListen string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API and the subscription refresh job",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveListen, "listen", "", "Address to serve on instead of the configured listen")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	if err := loadConfig(); err != nil {
		return err
	}
	if serveListen != "" {
		cfg.Listen = serveListen
	}

	appLog.Info("daylife starting", "version", version)
	appLog.Info("effective config",
		"listen", cfg.Listen,
		"environment", cfg.Environment,
		"timezone", cfg.Timezone,
		"model", cfg.LLM.Model,
		"refresh", cfg.RefreshCron,
		"refresh_timeout", cfg.RefreshTimeout().String(),
		"allow_remote_import", cfg.AllowRemoteImport,
		"trust_proxy_headers", cfg.TrustProxyHeaders,
		"ics_count", len(cfg.ICS),
		"allowed_origins", cfg.AllowedOrigins,
	)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.MustNewMetrics(reg)

	svc, err := newPlanner(m)
	if err != nil {
		return fmt.Errorf("initialize planner: %w", err)
	}
	job, err := refresh.New(cfg.RefreshCron, svc, cfg.RefreshTimeout())
	if err != nil {
		return err
	}
	srv := web.NewServer(cfg, svc, m, reg)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.ListenAndServe(gctx) })
	g.Go(func() error { return job.Run(gctx) })

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	appLog.Info("daylife exiting")
	return nil
}
