package main

import (
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	httpinfra "datatoken/internal/infra/http"
	"datatoken/internal/pkg/logger"
)

func newServeCommand(opts *rootOptions) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			defer logger.Sync()
			if addr != "" {
				cfg.HTTPAddr = addr
			}
			if cfg.LogLevel != "debug" {
				gin.SetMode(gin.ReleaseMode)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			log := logger.L()
			a, err := buildApp(ctx, cfg, log)
			if err != nil {
				return err
			}
			defer func() {
				if err := a.Close(); err != nil {
					log.Warn("shutdown", zap.Error(err))
				}
			}()
			return httpinfra.NewServer(cfg, a.deps).Run(ctx)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (overrides HTTP_ADDR)")
	return cmd
}

func newAuditCommand(opts *rootOptions) *cobra.Command {
	var failUnhealthy bool
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Re-verify every registered document and print the report",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			defer logger.Sync()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := buildApp(ctx, cfg, logger.L())
			if err != nil {
				return err
			}
			defer a.Close()

			report, err := a.deps.Audit.Run(ctx)
			if err != nil {
				return err
			}
			if err := printJSON(cmd, report); err != nil {
				return err
			}
			if failUnhealthy && report.Healthy != report.Total {
				return errUnhealthy
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&failUnhealthy, "fail-unhealthy", false, "Exit non-zero when any document fails the audit")
	return cmd
}

var errUnhealthy = errors.New("audit found unhealthy documents")
