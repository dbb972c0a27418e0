// fixd is a standalone FIX engine daemon: it loads a configuration file,
// materializes the configured acceptor and initiator sessions, and runs
// them with a logging application until terminated.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/tradewire/gofix/config"
	"github.com/tradewire/gofix/fix"
	"github.com/tradewire/gofix/metrics"
	"github.com/tradewire/gofix/storedb"
)

// shutdownTimeout bounds the metrics server drain during shutdown.
const shutdownTimeout = 10 * time.Second

// version is stamped by the build.
var version = "dev"

func main() {
	Execute()
}

var configPath string

var rootCmd = &cobra.Command{
	Use:   "fixd",
	Short: "FIX session engine daemon",
	Long:  "fixd runs the configured FIX acceptor and initiator sessions with a logging application.",
	RunE: func(_ *cobra.Command, _ []string) error {
		return run(configPath)
	},
	SilenceUsage:  true,
	SilenceErrors: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the fixd version",
	Run: func(_ *cobra.Command, _ []string) {
		fmt.Println("fixd", version)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "fixd.yaml",
		"path to configuration file (YAML)")
	rootCmd.AddCommand(versionCmd)
}

// Execute runs the root command and exits with code 1 on error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger := newLogger(cfg.Log)
	logger.Info("fixd starting",
		slog.String("version", version),
		slog.Int("sessions", len(cfg.Sessions)),
	)

	reg := prometheus.NewRegistry()
	collector := metrics.NewCollector(reg)

	storeFactory, closeStore, err := newStoreFactory(cfg.Storage)
	if err != nil {
		return err
	}
	defer closeStore()

	registry := fix.NewRegistry()
	app := &loggingApplication{logger: logger}
	opts := []fix.FactoryOption{
		fix.WithLogFactory(fix.SlogLogFactory(logger)),
		fix.WithMetrics(collector),
	}

	var acceptor *fix.Acceptor
	var initiator *fix.Initiator
	if hasRole(cfg.Sessions, "acceptor") {
		if acceptor, err = fix.NewAcceptor(app, storeFactory, cfg.Sessions, registry, opts...); err != nil {
			return err
		}
	}
	if hasRole(cfg.Sessions, "initiator") {
		if initiator, err = fix.NewInitiator(app, storeFactory, cfg.Sessions, registry, opts...); err != nil {
			return err
		}
	}
	if acceptor == nil && initiator == nil {
		return errors.New("no acceptor or initiator sessions configured")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gCtx := errgroup.WithContext(ctx)

	if cfg.Metrics.Addr != "" {
		g.Go(func() error {
			return runMetricsServer(gCtx, cfg.Metrics, reg, logger)
		})
	}
	if acceptor != nil {
		g.Go(acceptor.Block)
	}
	if initiator != nil {
		g.Go(initiator.Block)
	}

	g.Go(func() error {
		<-gCtx.Done()
		logger.Info("shutting down")
		if acceptor != nil {
			acceptor.Stop(false)
		}
		if initiator != nil {
			initiator.Stop(false)
		}
		return nil
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("fixd stopped")
	return nil
}

func hasRole(sessions []config.SessionSettings, role string) bool {
	for _, ss := range sessions {
		if ss.ConnectionType == role {
			return true
		}
	}
	return false
}

func newLogger(cfg config.LogConfig) *slog.Logger {
	opts := &slog.HandlerOptions{Level: config.ParseLogLevel(cfg.Level)}
	var h slog.Handler
	if cfg.Format == "text" {
		h = slog.NewTextHandler(os.Stderr, opts)
	} else {
		h = slog.NewJSONHandler(os.Stderr, opts)
	}
	return slog.New(h)
}

// newStoreFactory selects the MessageStore backend from the storage
// section.
func newStoreFactory(cfg config.StorageConfig) (fix.MessageStoreFactory, func(), error) {
	switch cfg.Backend {
	case "badger":
		f, err := storedb.NewFactory(cfg.Dir)
		if err != nil {
			return nil, nil, err
		}
		return f, func() { _ = f.Close() }, nil
	default:
		return fix.NewMemoryStoreFactory(), func() {}, nil
	}
}

func runMetricsServer(ctx context.Context, cfg config.MetricsConfig, reg *prometheus.Registry, logger *slog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle(cfg.Path, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: cfg.Addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("metrics server listening",
			slog.String("addr", cfg.Addr),
			slog.String("path", cfg.Path),
		)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// -------------------------------------------------------------------------
// loggingApplication
// -------------------------------------------------------------------------

// loggingApplication accepts every counterparty and logs the callback
// traffic. It is the soak-test application fixd ships with; real
// deployments embed the engine with their own Application.
type loggingApplication struct {
	logger *slog.Logger
}

func (a *loggingApplication) OnCreate(id fix.SessionID) {
	a.logger.Info("session created", slog.String("session", id.String()))
}

func (a *loggingApplication) OnLogon(id fix.SessionID) {
	a.logger.Info("session logged on", slog.String("session", id.String()))
}

func (a *loggingApplication) OnLogout(id fix.SessionID) {
	a.logger.Info("session logged out", slog.String("session", id.String()))
}

func (a *loggingApplication) ToAdmin(_ *fix.Message, _ fix.SessionID) {}

func (a *loggingApplication) FromAdmin(_ *fix.Message, _ fix.SessionID) error { return nil }

func (a *loggingApplication) ToApp(_ *fix.Message, _ fix.SessionID) error { return nil }

func (a *loggingApplication) FromApp(msg *fix.Message, id fix.SessionID) error {
	msgType, _ := msg.MsgType()
	a.logger.Info("application message",
		slog.String("session", id.String()),
		slog.String("msg_type", msgType),
	)
	return nil
}
