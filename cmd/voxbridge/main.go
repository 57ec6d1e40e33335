package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/voxbridge/voxbridge/internal/dotenv"
	"github.com/voxbridge/voxbridge/pkg/gateway/config"
	"github.com/voxbridge/voxbridge/pkg/gateway/metrics"
	gatewayserver "github.com/voxbridge/voxbridge/pkg/gateway/server"
	"github.com/voxbridge/voxbridge/pkg/gateway/store"
	"github.com/voxbridge/voxbridge/pkg/gateway/tools"
	"github.com/voxbridge/voxbridge/pkg/gateway/tools/fileops"
	"github.com/voxbridge/voxbridge/pkg/gateway/tools/scripts"
)

// defaultInstructions sets the assistant's turn-taking contract: keep
// spoken replies short, let the caller interrupt, and reach for the tools
// instead of improvising document or script contents.
const defaultInstructions = "You are a voice assistant on a phone call. " +
	"Keep replies short and conversational; one or two sentences unless the caller asks for more. " +
	"Stop speaking immediately when the caller starts talking. " +
	"Use the file_operation tool for any reading or writing of documents, " +
	"get_script_info to load a conversation script before running one, " +
	"and list_available_scripts when the caller asks what you can run. " +
	"Never invent document contents; read them through the tools."

type bridgeDeps struct {
	loadConfig   func() (config.Config, error)
	newGateway   func(config.Config, *slog.Logger, gatewayserver.Options) *gatewayserver.Server
	openRecorder func(context.Context, string, *slog.Logger) (store.Recorder, error)
	signalNotify func(chan<- os.Signal, ...os.Signal)
	signalStop   func(chan<- os.Signal)
}

func defaultBridgeDeps() bridgeDeps {
	return bridgeDeps{
		loadConfig: config.LoadFromEnv,
		newGateway: gatewayserver.New,
		openRecorder: func(ctx context.Context, databaseURL string, logger *slog.Logger) (store.Recorder, error) {
			return store.OpenPostgres(ctx, databaseURL, logger)
		},
		signalNotify: func(c chan<- os.Signal, sig ...os.Signal) {
			signal.Notify(c, sig...)
		},
		signalStop: signal.Stop,
	}
}

func buildHTTPServer(cfg config.Config, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		ReadTimeout:       cfg.ReadTimeout,
	}
}

func buildRegistry(cfg config.Config) (*tools.Registry, error) {
	docs, err := fileops.NewStore(cfg.WorkspaceDir)
	if err != nil {
		return nil, fmt.Errorf("workspace store: %w", err)
	}
	catalog, err := scripts.NewCatalog(cfg.ScriptsDir)
	if err != nil {
		return nil, fmt.Errorf("script catalog: %w", err)
	}
	return tools.NewRegistry(
		tools.FileOperationTool{Store: docs},
		tools.ScriptInfoTool{Catalog: catalog},
		tools.ScriptListTool{Catalog: catalog},
	), nil
}

func runBridge(ctx context.Context, logger *slog.Logger, deps bridgeDeps) error {
	if deps.loadConfig == nil {
		return errors.New("missing loadConfig dependency")
	}
	if deps.newGateway == nil {
		return errors.New("missing newGateway dependency")
	}
	if deps.signalNotify == nil || deps.signalStop == nil {
		return errors.New("missing signal dependency")
	}
	if logger == nil {
		logger = slog.Default()
	}

	cfg, err := deps.loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	registry, err := buildRegistry(cfg)
	if err != nil {
		return fmt.Errorf("build tools: %w", err)
	}

	recorder := store.Recorder(store.NopRecorder{})
	if cfg.DatabaseURL != "" && deps.openRecorder != nil {
		recorder, err = deps.openRecorder(ctx, cfg.DatabaseURL, logger)
		if err != nil {
			return fmt.Errorf("open call record store: %w", err)
		}
	}
	defer recorder.Close()

	gw := deps.newGateway(cfg, logger, gatewayserver.Options{
		Registry:     registry,
		Instructions: defaultInstructions,
		Metrics:      metrics.New("voxbridge"),
		Recorder:     recorder,
	})
	httpSrv := buildHTTPServer(cfg, gw.Handler())

	logger.Info("starting bridge",
		"addr", cfg.Addr,
		"public_url", cfg.PublicURL,
		"model", cfg.RealtimeModel,
		"signature_validation", cfg.SignatureValidationEnabled(),
		"persistence", cfg.DatabaseURL != "",
	)

	listenErrCh := make(chan error, 1)
	go func() {
		err := httpSrv.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			listenErrCh <- err
			return
		}
		listenErrCh <- nil
	}()

	sigCh := make(chan os.Signal, 1)
	deps.signalNotify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer deps.signalStop(sigCh)

	select {
	case err := <-listenErrCh:
		if err != nil {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case sig := <-sigCh:
		logger.Info("shutdown signal received", "signal", sig.String())
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownGracePeriod)
	defer shutdownCancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}

	// Live calls keep their hijacked connections through Shutdown; give
	// them the grace period, then cancel the stragglers.
	waitCtx, waitCancel := context.WithTimeout(context.Background(), cfg.ShutdownGracePeriod)
	defer waitCancel()
	if !gw.Sessions().Wait(waitCtx) {
		canceled := gw.Sessions().CancelAll()
		logger.Warn("sessions canceled at shutdown", "count", canceled)
	}

	if err := <-listenErrCh; err != nil {
		return fmt.Errorf("serve: %w", err)
	}

	logger.Info("bridge stopped")
	return nil
}

func runMain(ctx context.Context, stderr io.Writer, deps bridgeDeps) int {
	if stderr == nil {
		stderr = os.Stderr
	}
	logger := slog.New(slog.NewTextHandler(stderr, nil))

	if err := dotenv.LoadFile(".env"); err != nil {
		fmt.Fprintf(stderr, "voxbridge: %v\n", err)
		return 1
	}

	if err := runBridge(ctx, logger, deps); err != nil {
		fmt.Fprintf(stderr, "voxbridge: %v\n", err)
		return 1
	}
	return 0
}

func main() {
	os.Exit(runMain(context.Background(), os.Stderr, defaultBridgeDeps()))
}
