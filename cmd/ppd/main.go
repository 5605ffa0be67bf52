package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/video-system/go-camera-pp/pkg/api"
	"github.com/video-system/go-camera-pp/pkg/pipeline"
)

const version = "1.0.0"

func main() {
	configPath := flag.String("config", "config.yaml", "Path to config file")
	statsEvery := flag.Duration("stats", 0, "Log session counters at this interval (0 disables)")
	flag.Parse()

	// Load configuration
	cfg, err := pipeline.LoadConfig(*configPath)
	if err != nil {
		logrus.Fatalf("Failed to load config: %v", err)
	}

	logger, err := pipeline.NewLogger(cfg.Log, os.Stdout)
	if err != nil {
		logrus.Fatalf("Failed to configure logging: %v", err)
	}
	logger.WithField("version", version).Info("ppd starting")

	// Create session manager
	manager, err := pipeline.NewManager(cfg, logger)
	if err != nil {
		logger.Fatalf("Failed to create manager: %v", err)
	}

	// Setup graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		logger.Info("Shutdown signal received...")
		cancel()
	}()

	// Start all pipes
	if err := manager.Start(ctx); err != nil {
		logger.Fatalf("Failed to start pipes: %v", err)
	}

	if *statsEvery > 0 {
		go runStatsReporter(ctx, manager, *statsEvery)
	}

	// Create and start API server
	apiServer := api.NewServer(api.ServerConfig{
		Host:  cfg.API.Host,
		Port:  cfg.API.Port,
		Pipes: manager,
		SFL:   manager.SFL(),
		Stats: manager.Diag(),
		Log:   manager.Diag().Logger(),
	})

	go func() {
		if err := apiServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Error("API server error")
		}
	}()

	// Wait for shutdown
	manager.Wait()

	// Cleanup
	apiServer.Stop()
	if err := manager.Close(); err != nil {
		logger.WithError(err).Error("Session teardown")
	}

	logger.Info("ppd stopped")
}

// runStatsReporter periodically logs the session counters and pipe health
func runStatsReporter(ctx context.Context, manager *pipeline.Manager, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	log := manager.Diag().Logger()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			st := manager.Diag().Snapshot()
			fields := logrus.Fields{
				"draws":    st.Draws,
				"forwards": st.Forwards,
				"failures": st.DrawFailures,
				"stages":   st.StagesAlive,
				"libs":     st.LibsAlive,
				"sfl":      manager.SFL().Type().String(),
			}
			for id, ps := range manager.Statuses() {
				if ps.Failed > 0 {
					log.WithFields(logrus.Fields{"pipe": id, "failed": ps.Failed}).Warn("pipe has failed frames")
				}
			}
			log.WithFields(fields).Info("stats")
		}
	}
}
