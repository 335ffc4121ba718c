package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/rs/cors"
	"github.com/urfave/cli/v3"

	"github.com/mchmarny/pulse/pkg/config"
	"github.com/mchmarny/pulse/pkg/intel"
	"github.com/mchmarny/pulse/pkg/llm"
	"github.com/mchmarny/pulse/pkg/middleware"
	"github.com/mchmarny/pulse/pkg/monitor"
	"github.com/mchmarny/pulse/pkg/telemetry"
)

const (
	serverShutdownWaitSeconds = 5
	serverMaxHeaderBytes      = 20
	serverReadHeaderTimeout   = 10 * time.Second
)

var (
	portFlag = &cli.IntFlag{
		Name:  "port",
		Usage: "Port on which the server will listen (default: config server.port)",
	}

	hostFlag = &cli.StringFlag{
		Name:  "host",
		Usage: "Address on which the server will listen (default: config server.host)",
	}

	serveCmd = &cli.Command{
		Name:    "serve",
		Aliases: []string{"server"},
		Usage:   "Load the dataset and start the HTTP API",
		Action:  cmdStartServer,
		Flags: []cli.Flag{
			portFlag,
			hostFlag,
		},
	}
)

// server holds what the HTTP handlers read. Everything but the monitors
// and the cache is immutable after start.
type server struct {
	cfg    *config.Config
	ds     *intel.Dataset
	chat   *intel.Assistant
	health *monitor.HealthMonitor
	perf   *monitor.PerfMonitor
	cache  *cache.Cache
}

func newServer(cfg *config.Config, ds *intel.Dataset, c intel.Completer) *server {
	s := &server{
		cfg:    cfg,
		ds:     ds,
		chat:   intel.NewAssistant(ds, c),
		health: monitor.NewHealthMonitor(),
		perf:   monitor.NewPerfMonitor(),
	}
	if cfg.Data.CacheEnabled {
		s.cache = cache.New(cfg.Data.CacheTTL, 2*cfg.Data.CacheTTL)
	}
	return s
}

func cmdStartServer(ctx context.Context, cmd *cli.Command) error {
	app := getConfig(cmd)
	cfg := app.Config
	if cmd.IsSet(portFlag.Name) {
		cfg.Server.Port = cmd.Int(portFlag.Name)
	}
	if cmd.IsSet(hostFlag.Name) {
		cfg.Server.Host = cmd.String(hostFlag.Name)
	}
	resolveSecrets(app)

	shutdownTelemetry, err := telemetry.Setup(ctx, cfg.Telemetry)
	if err != nil {
		return fmt.Errorf("setting up telemetry: %w", err)
	}
	defer func() {
		if err := shutdownTelemetry(context.Background()); err != nil {
			slog.Error("error shutting down telemetry", "error", err)
		}
	}()

	ds, err := loadDataset(ctx, cfg)
	if err != nil {
		return err
	}
	st := ds.Stats()
	slog.Info("dataset ready",
		"records", st.Records,
		"pincodes", st.Pincodes,
		"districts", st.Districts,
		"states", st.States,
		"model", ds.ModelVersion())

	var completer intel.Completer
	if cfg.Chat.Enabled && cfg.Chat.APIKey != "" {
		c, err := llm.New(ctx, cfg.Chat)
		if err != nil {
			return fmt.Errorf("creating chat client: %w", err)
		}
		completer = c
		slog.Info("chat model enabled", "model", cfg.Chat.Model)
	}

	address := net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port))
	s := &http.Server{
		Addr:              address,
		Handler:           newServer(cfg, ds, completer).handler(),
		ReadHeaderTimeout: serverReadHeaderTimeout,
		ReadTimeout:       cfg.Server.Timeout,
		MaxHeaderBytes:    1 << serverMaxHeaderBytes,
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		if err := s.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	slog.Info("server started", "address", fmt.Sprintf("http://%s", address))

	select {
	case <-done:
	case err := <-errCh:
		return fmt.Errorf("error starting server: %w", err)
	}

	sctx, cancel := context.WithTimeout(context.Background(), serverShutdownWaitSeconds*time.Second)
	defer cancel()

	if err := s.Shutdown(sctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("error shutting down server", "error", err)
	}
	slog.Info("server stopped")
	return nil
}

// handler wraps the router in the middleware chain, outermost first.
func (s *server) handler() http.Handler {
	mws := []middleware.Middleware{
		middleware.RequestID,
		middleware.Recovery,
		middleware.Logging(s.health),
		cors.New(cors.Options{
			AllowedOrigins: s.cfg.Server.CORSOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"*"},
			ExposedHeaders: []string{middleware.RequestIDHeader},
		}).Handler,
	}
	if s.cfg.RateLimit.Enabled {
		mws = append(mws, middleware.NewRateLimiter(s.cfg.RateLimit.Requests, s.cfg.RateLimit.Window).Handler)
	}
	if s.cfg.Security.APIKeyEnabled {
		mws = append(mws, middleware.APIKey(s.cfg.Security.APIKey, "/api/", "/ws/"))
	}
	return middleware.Chain(telemetry.Handler(s.makeRouter(), appName), mws...)
}

func (s *server) makeRouter() *http.ServeMux {
	mux := http.NewServeMux()
	handle := func(pattern string, h http.HandlerFunc) {
		mux.Handle(pattern, s.perf.Handler(pattern, h))
	}

	// Status
	handle("GET /{$}", rootAPIHandler(s))
	handle("GET /health", healthAPIHandler(s))
	handle("GET /ready", readyAPIHandler(s))
	handle("GET /metrics", metricsAPIHandler(s))

	// Metrics API
	handle("GET /api/metrics/all", allMetricsAPIHandler(s))
	handle("GET /api/metrics/sector/{sector}", sectorMetricsAPIHandler(s))
	handle("GET /api/metrics/pincode/{pincode}", pincodeMetricsAPIHandler(s))
	handle("GET /api/anomalies/top-rank", topAnomaliesAPIHandler(s))
	handle("GET /api/report/{pincode}", pincodeReportAPIHandler(s))
	handle("GET /api/stats/overview", overviewAPIHandler(s))
	handle("GET /api/stats/by-state", stateStatsAPIHandler(s))

	// Map API
	handle("GET /api/map/geojson", geoJSONAPIHandler(s))
	handle("GET /api/map/district-aggregation", districtMapAPIHandler(s))
	handle("GET /api/map/state-aggregation", stateMapAPIHandler(s))
	handle("GET /api/map/filtered-pincodes", filteredPincodesAPIHandler(s))

	// Intelligence API
	handle("GET /api/intelligence/status", intelligenceStatusAPIHandler(s))
	handle("GET /api/intelligence/roles", rolesAPIHandler(s))
	handle("GET /api/intelligence/districts", districtsAPIHandler(s))
	handle("POST /api/intelligence/chat", chatAPIHandler(s))
	handle("GET /api/intelligence/district-report/{district}", districtReportAPIHandler(s))
	handle("GET /api/intelligence/sample-questions", sampleQuestionsAPIHandler(s))
	handle("GET /api/intelligence/forecast-matrix", forecastMatrixAPIHandler(s))

	// Analytics API
	handle("GET /api/analytics/forecasts", forecastsAPIHandler(s))
	handle("GET /api/analytics/clusters", clustersAPIHandler(s))
	handle("GET /api/analytics/state-risk", stateRiskAPIHandler(s))
	handle("GET /api/analytics/government-insights", governmentInsightsAPIHandler(s))
	handle("GET /api/analytics/pincode-forecast/{pincode}", pincodeForecastAPIHandler(s))

	// Export
	handle("GET /api/export/{format}", exportAPIHandler(s))

	// Alerts
	mux.Handle("GET /ws/alerts", alertsHandler(s))

	return mux
}
