package cli

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/BrandonDHaskell/Rollcall/internal/httpapi"
	"github.com/BrandonDHaskell/Rollcall/internal/rollcall/service"
	"github.com/BrandonDHaskell/Rollcall/internal/rollcall/types"
	"github.com/BrandonDHaskell/Rollcall/internal/rollcall/vision"
)

func newServeCmd(a *app) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and, with a vision sidecar, the recognition monitor",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if addr != "" {
				a.cfg.HTTPAddr = addr
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return a.serve(ctx)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (overrides ROLLCALL_HTTP_ADDR)")
	return cmd
}

func (a *app) serve(ctx context.Context) error {
	cfg, logger := a.cfg, a.logger

	st, err := a.openStore(ctx)
	if err != nil {
		return err
	}

	archive := &vision.Archive{Dir: cfg.ArchiveDir, SampleDir: cfg.SampleDir, MaxDim: cfg.ArchiveMaxDim}
	thresholds := service.Thresholds{Accept: cfg.AcceptDistance, Reject: cfg.RejectDistance}

	gate, err := service.NewGate(service.GateConfig{
		Store:      st,
		Thresholds: thresholds,
		Archiver:   archive,
		Logger:     logger.With("component", "gate"),
	})
	if err != nil {
		_ = st.Close()
		return err
	}

	var monitor *service.Monitor
	if cfg.VisionURL != "" {
		monitorGate, err := service.NewGate(service.GateConfig{
			Store:      st,
			Thresholds: thresholds,
			Archiver:   archive,
			Logger:     logger.With("component", "monitor_gate"),
		})
		if err != nil {
			_ = st.Close()
			return err
		}
		sidecar := vision.NewSidecar(cfg.VisionURL, cfg.VisionTimeout)
		monitor = service.NewMonitor(monitorGate, sidecar.Scanner, service.MonitorConfig{
			SessionDuration: cfg.SessionDuration,
			FrameInterval:   cfg.FrameInterval,
			Intervals:       service.UniformIntervals{Min: cfg.MinSampleInterval, Max: cfg.MaxSampleInterval},
			Logger:          logger.With("component", "monitor"),
			OnMark: func(adm types.Admission) {
				logger.Info("attendance marked", "id", adm.CandidateID, "name", adm.Name)
			},
		})
	} else {
		logger.Info("no vision sidecar configured; monitor disabled")
	}

	pruner := service.NewPruner(archive, service.PrunerConfig{
		Retention: cfg.ArchiveRetention,
		Interval:  cfg.PruneInterval,
		Logger:    logger.With("component", "pruner"),
	})
	pruner.Start(ctx)

	srv := httpapi.NewServer(httpapi.Dependencies{
		Logger:  logger,
		Addr:    cfg.HTTPAddr,
		Store:   st,
		Gate:    gate,
		Admin:   service.NewAdminService(st, logger),
		Monitor: monitor,
	})

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", "addr", cfg.HTTPAddr, "db", st.Path())
		errCh <- srv.Start()
	}()

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("shutdown requested")
	case runErr = <-errCh:
		logger.Error("http server stopped", "error", runErr)
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	// Stop intake first, then the monitor, then drain the db worker.
	shutdownErr := srv.Shutdown(shutdownCtx)
	if monitor != nil {
		monitor.Stop()
	}
	pruner.Stop()
	closeErr := st.Close()

	logger.Info("shutdown complete")
	return errors.Join(runErr, shutdownErr, closeErr)
}
