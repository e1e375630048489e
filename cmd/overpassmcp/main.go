// Command overpassmcp runs an MCP server exposing slot-gated, retrying
// Overpass API queries as agent tools.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/geosint/overpassmcp/pkg/overpass"
	"github.com/geosint/overpassmcp/pkg/tools"
	"github.com/geosint/overpassmcp/pkg/tracing"
	ver "github.com/geosint/overpassmcp/pkg/version"
)

var (
	showVersionFlag bool
	debug           bool
	userAgent       string

	// Overpass client flags
	serverURL     string
	maxConcurrent int64
	overpassRPS   float64
	overpassBurst int
	maxRetries    int
	retryDelay    time.Duration

	// Slot gating flags
	slotPollInterval time.Duration
	slotMaxWait      time.Duration

	// Monitoring flags
	enableMonitoring bool
	monitoringAddr   string
)

func init() {
	flag.BoolVar(&showVersionFlag, "version", false, "Display version information")
	flag.BoolVar(&debug, "debug", false, "Enable debug logging")
	flag.StringVar(&userAgent, "user-agent", overpass.DefaultUserAgent, "User-Agent string for Overpass API requests")

	flag.StringVar(&serverURL, "server", overpass.DefaultServer, "Overpass API interpreter endpoint")
	flag.Int64Var(&maxConcurrent, "max-concurrent", overpass.DefaultMaxConcurrent, "Maximum number of concurrently in-flight queries")
	flag.Float64Var(&overpassRPS, "overpass-rps", 1.0, "Overpass rate limit in requests per second")
	flag.IntVar(&overpassBurst, "overpass-burst", 1, "Overpass rate limit burst size")
	flag.IntVar(&maxRetries, "max-retries", overpass.DefaultMaxRetries, "Attempts per query before giving up")
	flag.DurationVar(&retryDelay, "retry-delay", overpass.DefaultRetryDelay, "Fixed delay between retried attempts")

	flag.DurationVar(&slotPollInterval, "slot-poll-interval", overpass.DefaultSlotPollInterval, "Interval between slot-availability probes")
	flag.DurationVar(&slotMaxWait, "slot-max-wait", overpass.DefaultSlotMaxWait, "Maximum time to wait for a free slot per query")

	flag.BoolVar(&enableMonitoring, "enable-monitoring", true, "Enable the Prometheus metrics endpoint")
	flag.StringVar(&monitoringAddr, "monitoring-addr", ":9090", "Monitoring server address")
}

func main() {
	flag.Parse()

	var logLevel slog.Level
	if debug {
		logLevel = slog.LevelDebug
	} else {
		logLevel = slog.LevelInfo
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	if showVersionFlag {
		fmt.Println(ver.String())
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.InitTracing(ctx, ver.BuildVersion)
	if err != nil {
		logger.Error("failed to initialize tracing", "error", err)
		// Continue without tracing - it's not critical
	} else {
		defer func() {
			if err := shutdownTracing(context.Background()); err != nil {
				logger.Error("error shutting down tracing", "error", err)
			}
		}()
	}

	logger.Info("starting Overpass MCP server",
		"version", ver.BuildVersion,
		"log_level", logLevel.String(),
		"server", serverURL,
		"user_agent", userAgent,
		"max_concurrent", maxConcurrent,
		"overpass_rps", overpassRPS,
		"overpass_burst", overpassBurst,
		"max_retries", maxRetries,
		"retry_delay", retryDelay,
		"slot_poll_interval", slotPollInterval,
		"slot_max_wait", slotMaxWait,
		"monitoring_enabled", enableMonitoring,
		"monitoring_addr", monitoringAddr)

	client := overpass.NewClient(
		overpass.WithLogger(logger),
		overpass.WithUserAgent(userAgent),
		overpass.WithMaxConcurrent(maxConcurrent),
		overpass.WithRateLimit(overpassRPS, overpassBurst),
		overpass.WithRetryPolicy(maxRetries, retryDelay),
		overpass.WithSlotPolicy(slotPollInterval, slotMaxWait),
	)

	service := tools.NewService(client, serverURL, logger)

	mcpServer := server.NewMCPServer(
		"overpassmcp",
		ver.BuildVersion,
		server.WithRecovery(),
	)
	service.Register(mcpServer)

	var monitoringServer *http.Server
	if enableMonitoring {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())

		monitoringServer = &http.Server{
			Addr:              monitoringAddr,
			Handler:           mux,
			ReadHeaderTimeout: 30 * time.Second,
		}

		go func() {
			logger.Info("starting Prometheus metrics server", "addr", monitoringAddr)
			if err := monitoringServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("monitoring server error", "error", err)
			}
		}()

		go func() {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			if err := monitoringServer.Shutdown(shutdownCtx); err != nil {
				logger.Error("failed to shutdown monitoring server", "error", err)
			}
		}()
	}

	logger.Info("serving MCP over stdio")
	if err := server.ServeStdio(mcpServer); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}
