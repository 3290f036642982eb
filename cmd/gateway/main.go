// Command gateway runs the federated GraphQL gateway: it loads a TOML
// config naming the subgraph services, starts periodic schema synthesis,
// and serves HTTP/WebSocket traffic per spec.md §6.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/gqlfederate/gateway/gateway"
	"github.com/gqlfederate/gateway/internal/config"
	"github.com/gqlfederate/gateway/internal/telemetry"
	"github.com/gqlfederate/gateway/transport"
)

var configPath string

func main() {
	root := &cobra.Command{
		Use:   "gateway",
		Short: "Federated GraphQL gateway",
	}

	serve := &cobra.Command{
		Use:   "serve",
		Short: "Start the gateway server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}
	serve.Flags().StringVar(&configPath, "config", "gateway.toml", "path to the gateway's TOML config file")
	root.AddCommand(serve)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runServe(ctx context.Context) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger := telemetry.New(cfg.LogLevel)
	registry := prometheus.NewRegistry()
	metrics := telemetry.NewMetrics(registry)

	urls := map[string]string{}
	wsURLs := map[string]string{}
	protocols := map[string]string{}
	var serviceNames []string
	for _, svc := range cfg.Services {
		urls[svc.Name] = svc.URL
		if svc.WSURL != "" {
			wsURLs[svc.Name] = svc.WSURL
		}
		protocols[svc.Name] = svc.Protocol
		serviceNames = append(serviceNames, svc.Name)
	}

	client := &http.Client{Transport: transport.NewRoundRobinTransport(4)}
	httpFetcher := transport.NewHTTPFetcher(client, urls)
	var fetcher transport.Fetcher = httpFetcher
	if len(wsURLs) > 0 {
		fetcher = transport.NewWSFetcher(httpFetcher, wsURLs, protocols, logger)
	}

	syncer := gateway.NewSubgraphSchemaSyncer(serviceNames, fetcher, logger)
	composed, err := syncer.Sync(ctx)
	if err != nil {
		return err
	}
	holder := gateway.NewSchemaHolder(composed)

	pollCtx, stopPoll := context.WithCancel(ctx)
	defer stopPoll()
	go gateway.PollSchema(pollCtx, syncer, holder, cfg.PollInterval, logger)

	srv := gateway.NewServer(holder, fetcher, logger, metrics)
	mux := http.NewServeMux()
	mux.Handle("/", srv.Handler(cfg.CORSOrigins))
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	httpServer := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: mux,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		httpServer.Shutdown(shutdownCtx)
	}()

	logger.Info("gateway listening", "addr", cfg.ListenAddr, "services", len(cfg.Services))
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}
