package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"github.com/erg0nix/chorus/internal/config"
	"github.com/erg0nix/chorus/internal/server"
)

const shutdownTimeout = 5 * time.Second

// PIDFile is where a running server records its process id.
func PIDFile(dataDir string) string {
	return filepath.Join(dataDir, "server.pid")
}

// RunServer serves HTTP and gRPC until a signal arrives or ctx ends. If either listener fails,
// both are shut down.
func RunServer(ctx context.Context, cfg config.Config) error {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	services, err := NewServices(cfg, logger)
	if err != nil {
		return err
	}
	defer services.Close()

	httpListener, err := net.Listen("tcp", cfg.HTTPBind)
	if err != nil {
		return fmt.Errorf("server: listen %s: %w", cfg.HTTPBind, err)
	}
	grpcListener, err := net.Listen("tcp", cfg.GRPCBind)
	if err != nil {
		httpListener.Close()
		return fmt.Errorf("server: listen %s: %w", cfg.GRPCBind, err)
	}

	pidFile := PIDFile(cfg.DataDir)
	if err := writePIDFile(pidFile); err != nil {
		logger.Warn("failed to write PID file", "error", err)
	}
	defer os.Remove(pidFile)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	httpServer := &http.Server{
		Handler: (&server.HTTP{
			Sessions:       services.Sessions,
			DefaultPersona: cfg.DefaultPersona,
			Logger:         logger,
		}).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	grpcServer := grpc.NewServer()
	(&server.GRPC{
		Sessions:       services.Sessions,
		DefaultPersona: cfg.DefaultPersona,
		Logger:         logger,
	}).Register(grpcServer)

	group, ctx := errgroup.WithContext(ctx)

	group.Go(func() error {
		logger.Info("http listening", "address", httpListener.Addr().String())
		if err := httpServer.Serve(httpListener); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http: %w", err)
		}
		return nil
	})

	group.Go(func() error {
		logger.Info("grpc listening", "address", grpcListener.Addr().String())
		if err := grpcServer.Serve(grpcListener); err != nil {
			return fmt.Errorf("grpc: %w", err)
		}
		return nil
	})

	group.Go(func() error {
		<-ctx.Done()
		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		stopped := make(chan struct{})
		go func() {
			grpcServer.GracefulStop()
			close(stopped)
		}()

		err := httpServer.Shutdown(shutdownCtx)

		select {
		case <-stopped:
		case <-shutdownCtx.Done():
			logger.Warn("drain timeout, forcing shutdown")
			grpcServer.Stop()
		}
		return err
	})

	return group.Wait()
}

func writePIDFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("write pid file: mkdir: %w", err)
	}

	if err := os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	return nil
}
