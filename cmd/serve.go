package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/joescharf/agentpipe/internal/api"
	"github.com/joescharf/agentpipe/internal/daemon"
	"github.com/joescharf/agentpipe/internal/git"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the webhook and REST API server",
	Long: `Start an HTTP server that accepts GitHub issue webhooks on
POST /api/v1/events and runs the pipeline for each triggering event.

Runs are processed one at a time. Set github.webhook_secret (or
GITHUB_WEBHOOK_SECRET) to verify X-Hub-Signature-256. By default it
listens on port 8080. Use --port to change it.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return serveRun()
	},
}

var serveStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running server",
	RunE: func(cmd *cobra.Command, args []string) error {
		pf := daemon.NewPIDFile(nil, pidFilePath())
		if dryRun {
			if pid, ok := pf.Running(); ok {
				ui.DryRunMsg("Would stop server (pid %d)", pid)
			}
			return nil
		}
		if err := pf.Stop(); err != nil {
			return err
		}
		ui.Success("Stop signal sent")
		return nil
	},
}

var serveStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show whether the server is running",
	RunE: func(cmd *cobra.Command, args []string) error {
		if pid, ok := daemon.NewPIDFile(nil, pidFilePath()).Running(); ok {
			ui.Info("Server running (pid %d)", pid)
			return nil
		}
		ui.Info("Server not running")
		return nil
	},
}

func init() {
	serveCmd.AddCommand(serveStopCmd)
	serveCmd.AddCommand(serveStatusCmd)
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().IntP("port", "p", 8080, "port to listen on")
	viper.SetDefault("port", 8080)
	_ = viper.BindPFlag("port", serveCmd.Flags().Lookup("port"))
	serveCmd.PersistentFlags().String("pidfile", "", "PID file (default <state_dir>/agentpipe.pid)")
	_ = viper.BindPFlag("pid_file", serveCmd.PersistentFlags().Lookup("pidfile"))
}

func pidFilePath() string {
	if p := viper.GetString("pid_file"); p != "" {
		return p
	}
	return filepath.Join(viper.GetString("state_dir"), "agentpipe.pid")
}

func serveRun() error {
	pf := daemon.NewPIDFile(nil, pidFilePath())
	if err := pf.Acquire(); err != nil {
		return err
	}
	defer func() { _ = pf.Release() }()

	s, err := getStore()
	if err != nil {
		return err
	}

	fs := afero.NewOsFs()
	gc := git.NewClient()
	ghc := git.NewGitHubClient()

	// Without a configured repo each event names its own.
	repo, err := resolveRepo(gc)
	if err != nil {
		repo = ""
		ui.VerboseLog("No default repository: %v", err)
	}

	runner, err := newRunner(fs, gc, ghc, repo)
	if err != nil {
		return err
	}
	srv := api.NewServer(s, runner, newEvalService(fs, ghc, s), api.Options{
		Repo:          repo,
		WebhookSecret: viper.GetString("github.webhook_secret"),
	})

	addr := fmt.Sprintf(":%d", viper.GetInt("port"))
	httpSrv := &http.Server{
		Addr:              addr,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		ui.Info("Listening on http://localhost%s", addr)
		errCh <- httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	ui.Info("Shutting down; waiting for in-flight runs")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		slog.Warn("http shutdown", "error", err)
	}
	srv.Wait()
	return nil
}
