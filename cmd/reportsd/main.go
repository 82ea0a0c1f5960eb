package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/joseph-ayodele/shift-reports/internal/app"
	"github.com/joseph-ayodele/shift-reports/internal/common"
)

const shutdownTimeout = 30 * time.Second

func main() {
	if err := common.LoadDotEnv(); err != nil {
		slog.Error("failed to load .env", "error", err)
		os.Exit(2)
	}
	cfg := common.LoadConfig()
	logger := common.NewLogger(cfg.Log)
	slog.SetDefault(logger)
	if cfg.Log.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to start", "error", err)
		os.Exit(1)
	}
	if err := a.Health(ctx); err != nil {
		logger.Error("failed to ping database", "error", err)
		os.Exit(1)
	}

	g, gctx := errgroup.WithContext(ctx)

	var httpSrv *http.Server
	if cfg.Server.HTTPAddr != "" {
		httpSrv = &http.Server{
			Addr:              cfg.Server.HTTPAddr,
			Handler:           a.Router(),
			ReadHeaderTimeout: 10 * time.Second,
		}
		g.Go(func() error {
			logger.Info("http listening", "addr", cfg.Server.HTTPAddr)
			if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
	}

	grpcSrv, hs := a.GRPCServer()
	if cfg.Server.GRPCAddr != "" {
		lis, err := net.Listen("tcp", cfg.Server.GRPCAddr)
		if err != nil {
			logger.Error("failed to listen on address", "addr", cfg.Server.GRPCAddr, "error", err)
			os.Exit(1)
		}
		g.Go(func() error {
			logger.Info("grpc listening", "addr", cfg.Server.GRPCAddr)
			return grpcSrv.Serve(lis)
		})
	}

	g.Go(func() error { return a.Watch(gctx) })
	g.Go(func() error {
		a.ReportDBStats(gctx, 15*time.Second)
		return nil
	})

	// stop the servers when a signal arrives or any member fails
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		hs.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)

		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if httpSrv != nil {
			if err := httpSrv.Shutdown(sctx); err != nil {
				logger.Warn("http shutdown", "error", err)
			}
		}
		grpcSrv.GracefulStop()
		a.Close(sctx)
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("server stopped", "error", err)
		os.Exit(1)
	}
	logger.Info("stopped")
}
