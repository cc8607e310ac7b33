package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/agent-trace/bridge/internal/config"
	"github.com/agent-trace/bridge/internal/demo"
	"github.com/agent-trace/bridge/internal/hub"
	"github.com/agent-trace/bridge/internal/lifecycle"
	"github.com/agent-trace/bridge/internal/logging"
	"github.com/agent-trace/bridge/internal/server"
	"github.com/agent-trace/bridge/internal/session"
	"github.com/agent-trace/bridge/internal/sink"
	"github.com/agent-trace/bridge/internal/trace"
)

const shutdownTimeout = 10 * time.Second

func main() {
	demoMode := flag.Bool("demo", false, "Generate synthetic trace traffic")
	configPath := flag.String("config", "config.yaml", "Path to config file")
	port := flag.Int("port", 0, "Override server port")
	dataDir := flag.String("data-dir", "", "Override sink data directory")
	flag.Parse()

	// A .env file is optional; variables already in the environment win.
	_ = godotenv.Load()

	cfg, err := config.LoadOrDefault(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := config.ApplyEnv(cfg); err != nil {
		log.Fatalf("Failed to read environment: %v", err)
	}

	if *port > 0 {
		cfg.Server.Port = *port
	}
	if *dataDir != "" {
		cfg.Sink.DataDir = *dataDir
	}
	if *demoMode {
		cfg.Demo.Enabled = true
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.File)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer logger.Sync()

	fileSink, err := sink.NewFileSink(cfg.Sink.DataDir)
	if err != nil {
		logger.Fatal("open data directory", zap.String("dir", cfg.Sink.DataDir), zap.Error(err))
	}

	store := session.NewStore()
	h := hub.New(logger)

	sinks := []sink.Sink{store, fileSink}
	if cfg.Sink.ForwardURL != "" {
		sinks = append(sinks, sink.NewForwardSink(cfg.Sink.ForwardURL, cfg.Sink.ForwardBatch, cfg.Sink.ForwardRetries))
		logger.Info("forwarding events", zap.String("url", cfg.Sink.ForwardURL))
	}
	multi := sink.NewMulti(logger, h.Broadcast, sinks...)

	if redactor := trace.NewRedactor(cfg.Redact.Fields, cfg.Redact.HashSessionIDs); !redactor.IsNoop() {
		multi.SetRedactor(redactor)
		logger.Info("redaction enabled",
			zap.Strings("fields", cfg.Redact.Fields),
			zap.Bool("hashSessionIds", cfg.Redact.HashSessionIDs))
	}

	tracer := trace.New(multi,
		trace.WithService(cfg.Tags.Service),
		trace.WithEnvironment(cfg.Tags.Environment),
		trace.WithLogger(logger),
	)

	srv := server.NewServer(logger, cfg.Server.Host, cfg.Server.Port, h, store, multi)

	var stopGen func()
	if cfg.Demo.Enabled {
		gen := demo.NewGenerator(tracer, cfg.DemoInterval(), logger)
		srv.SetGenerator(gen)
		stopGen = gen.Start()
		logger.Info("demo traffic enabled", zap.Duration("interval", cfg.DemoInterval()))
	}

	coord := lifecycle.NewCoordinator(logger,
		lifecycle.Step{Name: "stop demo generator", Run: func() error {
			if stopGen != nil {
				stopGen()
			}
			return nil
		}},
		lifecycle.Step{Name: "close tracer", Run: tracer.Close},
		lifecycle.Step{Name: "close hub", Run: func() error {
			h.Shutdown()
			return nil
		}},
		lifecycle.Step{Name: "stop http server", Run: func() error {
			ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return srv.Shutdown(ctx)
		}},
	)

	// Further signals during the drain are caught and discarded until
	// stop runs at exit.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()
		coord.Trigger()
	}()

	if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal("server error", zap.Error(err))
	}
	<-coord.Done()
}
