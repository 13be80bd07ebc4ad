// main package for the story-service
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/book-expert/logger"
	"github.com/book-expert/story-service/internal/app"
	"github.com/book-expert/story-service/internal/config"
	"github.com/book-expert/story-service/internal/core"
	"github.com/book-expert/story-service/internal/objectstore"
	"github.com/book-expert/story-service/internal/server"
	"github.com/book-expert/story-service/internal/worker"
	"github.com/nats-io/nats.go"
)

const (
	bootstrapLogFile  = "story-service-bootstrap.log"
	serviceLogFile    = "story-service.log"
	natsClientName    = "story-service"
	readHeaderTimeout = 10 * time.Second
	shutdownTimeout   = 30 * time.Second
)

func setupLogger(logPath, fileName string) (*logger.Logger, error) {
	log, err := logger.New(logPath, fileName)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	return log, nil
}

func run() error {
	bootstrapLog, err := setupLogger(os.TempDir(), bootstrapLogFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: Failed to create bootstrap logger: %v\n", err)

		return err
	}

	cfg, err := config.Load(bootstrapLog)
	if err != nil {
		bootstrapLog.Error("Failed to load configuration: %v", err)

		return fmt.Errorf("failed to load configuration: %w", err)
	}

	finalLog, err := setupLogger(cfg.Paths.BaseLogsDir, serviceLogFile)
	if err != nil {
		bootstrapLog.Error("Failed to create final logger: %v", err)

		return fmt.Errorf("failed to create final logger: %w", err)
	}

	defer func() {
		closeErr := finalLog.Close()
		if closeErr != nil {
			fmt.Fprintf(os.Stderr, "error closing final logger: %v\n", closeErr)
		}
	}()

	_ = bootstrapLog.Close()

	app.WarnMissing(cfg, finalLog)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return serve(ctx, cfg, finalLog)
}

func serve(ctx context.Context, cfg *config.Config, log *logger.Logger) error {
	var (
		natsConnection *nats.Conn
		archive        core.ObjectStore
	)

	if cfg.NATS.URL != "" {
		conn, store, err := connectNATS(cfg, log)
		if err != nil {
			return err
		}
		defer conn.Close()

		natsConnection = conn
		if store != nil {
			archive = store
		}
	}

	components, err := app.Build(cfg, log, archive)
	if err != nil {
		return err
	}

	checkErr := components.CheckProviders(ctx)
	if checkErr != nil {
		log.Warn("%v; speech stages will fail", checkErr)
	}

	ctx, cancelWorker := context.WithCancel(ctx)
	defer cancelWorker()

	workerDone := make(chan error, 1)

	if natsConnection != nil {
		storyWorker := worker.NewNatsWorker(
			natsConnection, cfg.NATS.StoryRequestedSubject, components.Pipeline, log, cfg.NATS.JobTimeout(),
		)

		go func() {
			workerDone <- storyWorker.Run(ctx)
		}()
	}

	httpServer := &http.Server{
		Addr: cfg.Server.Address(),
		Handler: server.NewHandler(server.Dependencies{
			Generator:     components.Pipeline,
			Audio:         components.Retriever,
			Logger:        log,
			AllowedOrigin: cfg.Server.AllowedOrigin,
		}),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	serverDone := make(chan error, 1)

	go func() {
		listenErr := httpServer.ListenAndServe()
		if listenErr != nil && !errors.Is(listenErr, http.ErrServerClosed) {
			serverDone <- fmt.Errorf("http server failed: %w", listenErr)
		}
	}()

	log.System("Story-Service listening on %s (output dir: %s)", cfg.Server.Address(), cfg.Paths.OutputDir)

	var (
		runErr         error
		workerFinished bool
	)

	select {
	case <-ctx.Done():
	case runErr = <-serverDone:
	case runErr = <-workerDone:
		workerFinished = true
	}

	log.Info("Shutting down story-service")

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()

	shutdownErr := httpServer.Shutdown(shutdownCtx)
	if shutdownErr != nil {
		runErr = errors.Join(runErr, fmt.Errorf("failed to shut down http server: %w", shutdownErr))
	}

	cancelWorker()

	if natsConnection != nil && !workerFinished {
		runErr = errors.Join(runErr, <-workerDone)
	}

	return runErr
}

// connectNATS opens the connection and, when a bucket is configured, the output archive.
func connectNATS(cfg *config.Config, log *logger.Logger) (*nats.Conn, *objectstore.NatsObjectStore, error) {
	conn, err := nats.Connect(cfg.NATS.URL, nats.Name(natsClientName))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to NATS at %s: %w", cfg.NATS.URL, err)
	}

	log.Info("Connected to NATS at %s", cfg.NATS.URL)

	if cfg.NATS.OutputObjectStoreBucket == "" {
		return conn, nil, nil
	}

	jetstreamContext, err := conn.JetStream()
	if err != nil {
		conn.Close()

		return nil, nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	store, err := objectstore.New(jetstreamContext, objectstore.Options{Bucket: cfg.NATS.OutputObjectStoreBucket})
	if err != nil {
		conn.Close()

		return nil, nil, err
	}

	log.Info("Archiving outputs to object store bucket %s", cfg.NATS.OutputObjectStoreBucket)

	return conn, store, nil
}

func main() {
	err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Service exited with error: %v\n", err)
		os.Exit(1)
	}
}
