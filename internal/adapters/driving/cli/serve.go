package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

// shutdownTimeout bounds the graceful HTTP shutdown on exit.
const shutdownTimeout = 5 * time.Second

// Scheduler is the background task runner the daemon controls.
type Scheduler interface {
	Start(ctx context.Context) error
	Stop() error
}

// ServeConfig wires the long-running daemon pieces.
type ServeConfig struct {
	// Scheduler runs the periodic reconciliation and pruning tasks.
	// Nil disables background tasks.
	Scheduler Scheduler

	// WebhookAddr is the push listener bind address. Empty disables
	// the listener.
	WebhookAddr string

	// WebhookHandler serves the push listener routes.
	WebhookHandler http.Handler
}

var serveConfig *ServeConfig

// SetServeConfig sets the configuration for the serve command.
func SetServeConfig(cfg *ServeConfig) {
	serveConfig = cfg
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the sync daemon",
	Long: `Runs deskhub as a long-lived process: the background scheduler keeps
the cache reconciled on an interval, and the push listener applies
change notifications as they arrive. Stops on SIGINT or SIGTERM.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	if serveConfig == nil {
		return errors.New("serve not configured")
	}

	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if serveConfig.Scheduler != nil {
		go func() {
			if err := serveConfig.Scheduler.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				fmt.Fprintf(cmd.ErrOrStderr(), "scheduler stopped: %v\n", err)
			}
		}()
		defer func() {
			if err := serveConfig.Scheduler.Stop(); err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "scheduler stop error: %v\n", err)
			}
		}()
		cmd.Println("Scheduler started.")
	}

	serverErr := make(chan error, 1)
	var httpSrv *http.Server
	if serveConfig.WebhookAddr != "" && serveConfig.WebhookHandler != nil {
		httpSrv = &http.Server{
			Addr:              serveConfig.WebhookAddr,
			Handler:           serveConfig.WebhookHandler,
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			serverErr <- httpSrv.ListenAndServe()
		}()
		cmd.Printf("Push listener on %s\n", serveConfig.WebhookAddr)
	}

	select {
	case <-ctx.Done():
		cmd.Println("Shutting down...")
	case err := <-serverErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("push listener failed: %w", err)
		}
	}

	if httpSrv != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer shutdownCancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("push listener shutdown: %w", err)
		}
	}
	return nil
}
