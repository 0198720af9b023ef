// Package main implements a demonstration binary for the Messaging App
// Framework: it wires a Router to a NATS transport and runs one echo
// provider and one requester against it until terminated.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/c360/maf/config"
	"github.com/c360/maf/csmsg"
	"github.com/c360/maf/health"
	"github.com/c360/maf/metric"
	"github.com/c360/maf/natsclient"
	"github.com/c360/maf/router"
	"github.com/c360/maf/service"
	"github.com/c360/maf/transport/natstransport"
	"github.com/google/uuid"
)

const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "maf"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := run(); err != nil {
		slog.Error("maf exited with error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cliCfg, logger, shouldExit, err := initializeCLI()
	if shouldExit || err != nil {
		return err
	}
	slog.SetDefault(logger)

	cfg, err := loadConfig(cliCfg.ConfigPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if cliCfg.Validate {
		slog.Info("configuration is valid")
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	monitor := health.NewMonitor()
	metricsRegistry := metric.NewMetricsRegistry()
	mafMetrics := metric.NewMetrics()

	// Each running instance gets its own connection identity so NATS
	// server-side monitoring (and logs correlated across instances) can
	// tell them apart.
	instanceID := uuid.New().String()
	clientName := fmt.Sprintf("%s-%s", appName, instanceID)
	logger = logger.With("instance_id", instanceID)
	slog.SetDefault(logger)

	natsClient, err := natsclient.NewClient(strings.Join(cfg.NATS.URLs, ","),
		natsclient.WithName(clientName),
		natsclient.WithMetrics(metricsRegistry),
		natsclient.WithMaxReconnects(cfg.NATS.MaxReconnects),
		natsclient.WithReconnectWait(cfg.NATS.ReconnectWait),
		natsclient.WithHealthChangeCallback(func(healthy bool) {
			if healthy {
				monitor.UpdateHealthy("nats", "connected")
			} else {
				monitor.UpdateUnhealthy("nats", "disconnected")
			}
		}),
	)
	if err != nil {
		return fmt.Errorf("create nats client: %w", err)
	}
	defer natsClient.Close(ctx)

	slog.Info("connecting to NATS", "url", cfg.NATS.URLs[0])
	if err := natsClient.Connect(ctx); err != nil {
		return fmt.Errorf("connect to NATS: %w", err)
	}
	connCtx, connCancel := context.WithTimeout(ctx, 10*time.Second)
	defer connCancel()
	if err := natsClient.WaitForConnection(connCtx); err != nil {
		return fmt.Errorf("NATS connection timeout: %w", err)
	}

	configManager, err := config.NewConfigManager(cfg, natsClient, logger)
	if err != nil {
		return fmt.Errorf("create config manager: %w", err)
	}
	if err := configManager.Start(ctx); err != nil {
		return fmt.Errorf("start config manager: %w", err)
	}
	defer configManager.Stop(cliCfg.ShutdownTimeout)

	natsTransport := natstransport.New(natsClient)
	r := router.New().WithTransport(natsTransport)
	defer r.Close()

	const echoServiceID uint64 = 1
	const echoOpID uint64 = 1
	// The demo echo provider's own settings live in cfg.Providers["echo"].Config,
	// a free-form blob the platform-level Config type never parses itself.
	echoExtra := cfg.GetProviderExtra("echo")
	echoPrefix := config.GetString(echoExtra, "reply_prefix", "")
	provider := service.NewProvider(echoServiceID, r.ProviderSender(), 4,
		service.WithProviderMetrics(mafMetrics),
		service.WithProviderBroadcastPoolMetrics(metricsRegistry, "maf_echo_broadcast"),
	)
	provider.RegisterHandler(echoOpID, func(keeper *service.RequestKeeper, payload csmsg.Payload) {
		if echoPrefix == "" {
			keeper.Respond(ctx, payload)
			return
		}
		keeper.Respond(ctx, csmsg.RawPayload(echoPrefix+string(payload.Bytes())))
	})
	r.RegisterProvider(echoServiceID, provider)
	natsTransport.ProvidesService(echoServiceID)
	defer func() { _ = provider.Close() }()

	requesterAddr := csmsg.Address{ComponentID: 1, RegID: 1}
	requester := service.NewRequester(requesterAddr, r.RequesterSender(),
		service.WithRequesterMetrics(mafMetrics),
		service.WithRequesterCacheMetrics(metricsRegistry, "maf_requester_cache"),
	)
	r.RegisterRequester(echoServiceID, requesterAddr, requester)
	natsTransport.HostsRequester(requesterAddr)

	if err := natsTransport.Start(ctx); err != nil {
		return fmt.Errorf("start nats transport: %w", err)
	}
	monitor.UpdateHealthy("router", "started")

	if cliCfg.HealthPort > 0 {
		srv := startHealthServer(cliCfg.HealthPort, monitor)
		defer func() { _ = srv.Close() }()
	}

	reqCtx, reqCancel := context.WithTimeout(ctx, 5*time.Second)
	resp, status := requester.SendRequest(reqCtx, echoServiceID, echoOpID, csmsg.RawPayload("hello"), 5*time.Second)
	reqCancel()
	if status == csmsg.StatusSuccess {
		slog.Info("echo round trip completed", "response", string(resp.Bytes()))
	} else {
		slog.Warn("echo round trip failed", "status", status)
	}

	return runWithSignalHandling(ctx, cancel, cliCfg.ShutdownTimeout)
}

func runWithSignalHandling(ctx context.Context, cancel context.CancelFunc, timeout time.Duration) error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		slog.Info("received shutdown signal", "signal", sig.String())
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), timeout)
	defer shutdownCancel()
	cancel()
	<-shutdownCtx.Done()
	if shutdownCtx.Err() == context.DeadlineExceeded {
		return nil
	}
	return nil
}

func startHealthServer(port int, monitor *health.Monitor) *http.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		status := monitor.AggregateHealth(appName)
		code := http.StatusOK
		if status.IsUnhealthy() {
			code = http.StatusServiceUnavailable
		}
		w.WriteHeader(code)
		_, _ = w.Write([]byte(status.Message))
	})

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("health server failed", "error", err)
		}
	}()
	return srv
}

func loadConfig(path string) (*config.Config, error) {
	loader := config.NewLoader()
	loader.EnableValidation(false)
	return loader.LoadFile(path)
}

func initializeCLI() (*CLIConfig, *slog.Logger, bool, error) {
	cliCfg := parseFlags()
	if err := validateFlags(cliCfg); err != nil {
		return nil, nil, false, fmt.Errorf("invalid flags: %w", err)
	}

	if cliCfg.ShowVersion {
		fmt.Printf("%s version %s\n", appName, Version)
		return nil, nil, true, nil
	}
	if cliCfg.ShowHelp {
		printHelp()
		return nil, nil, true, nil
	}

	logger := setupLogger(cliCfg.LogLevel, cliCfg.LogFormat)
	logger.Info("starting maf", "version", Version, "build_time", BuildTime, "config_path", cliCfg.ConfigPath)
	return cliCfg, logger, false, nil
}

func printHelp() {
	printDetailedHelp()
}
