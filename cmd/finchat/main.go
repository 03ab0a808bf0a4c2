package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/antoniostano/finchat/internal/app"
	"github.com/antoniostano/finchat/internal/config"
	"github.com/antoniostano/finchat/internal/logger"
)

var rootCmd = &cobra.Command{
	Use:           "finchat",
	Short:         "finchat - conversational assistant for personal finances",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP and websocket API",
	RunE:  runServe,
}

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Fold pending conversation memory once and exit",
	RunE:  runSweep,
}

var bindFlag string

func init() {
	serveCmd.Flags().StringVar(&bindFlag, "bind", "", "listen address (overrides APP_BIND_ADDR)")
	rootCmd.AddCommand(serveCmd, sweepCmd)
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	if strings.TrimSpace(bindFlag) != "" {
		cfg.BindAddr = bindFlag
	}
	log := logger.New(cfg.LogLevel, cfg.LogFormat)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	built, err := app.Build(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := built.Cleanup(); err != nil {
			log.Warn().Err(err).Msg("cleanup failed")
		}
	}()

	if cfg.MemorySweepSchedule != "" {
		if err := built.Sweeper.Start(cfg.MemorySweepSchedule); err != nil {
			return err
		}
	}

	httpServer := &http.Server{
		Addr:    cfg.BindAddr,
		Handler: built.API.Router(),
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().
			Str("addr", cfg.BindAddr).
			Str("llm_mode", built.LLMMode).
			Str("store_mode", built.StoreMode).
			Msg("server listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("listen error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}
	log.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("graceful shutdown failed")
		_ = httpServer.Close()
	}

	log.Info().Msg("shutdown complete")
	return nil
}

func runSweep(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	log := logger.New(cfg.LogLevel, cfg.LogFormat)

	built, err := app.Build(cmd.Context(), cfg, log)
	if err != nil {
		return err
	}
	defer built.Cleanup()

	folded, err := built.Sweeper.RunOnce(cmd.Context())
	if err != nil {
		return fmt.Errorf("memory sweep: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "folded memory for %d user(s)\n", folded)
	return nil
}
