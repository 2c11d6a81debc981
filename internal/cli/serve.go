package cli

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/felo/eml2doc/internal/config"
	"github.com/felo/eml2doc/internal/db"
	"github.com/felo/eml2doc/internal/handlers"
	"github.com/felo/eml2doc/web"
)

func serveFlags() map[string]string {
	return map[string]string{
		"server.host":     "host",
		"server.port":     "port",
		"server.open":     "open",
		"output_dir":      "output-dir",
		"attachments_dir": "attachments-dir",
		"catalog.path":    "db",
	}
}

func newServeCommand() *cobra.Command {
	d := config.Default()
	cmd := &cobra.Command{
		Use:          "serve",
		Short:        "Browse and search converted documents in a web UI",
		SilenceUsage: true,
		Args:         cobra.NoArgs,
		RunE:         runServe,
	}

	f := cmd.Flags()
	f.String("host", d.Server.Host, "Address to listen on")
	f.String("port", d.Server.Port, "Port to listen on")
	f.Bool("open", false, "Open the UI in the default browser")
	f.String("output-dir", d.OutputDir, "Directory converted documents were written to")
	f.String("attachments-dir", "", "Directory attachments were written to (default <output-dir>/attachments)")
	f.String("db", "", "Catalog database path (default <output-dir>/catalog.db)")

	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd, serveFlags())
	if err != nil {
		return err
	}
	if err := cfg.ValidateServe(); err != nil {
		return err
	}

	log, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer log.Sync()

	database, err := db.Open(cfg.CatalogPath())
	if err != nil {
		return err
	}
	defer database.Close()
	log.Infow("catalog opened", "path", cfg.CatalogPath())

	h := handlers.New(database, cfg, log)
	if err := h.LoadTemplates(web.Assets); err != nil {
		return fmt.Errorf("failed to load templates: %w", err)
	}
	staticFS, err := fs.Sub(web.Assets, "static")
	if err != nil {
		return fmt.Errorf("failed to get static files: %w", err)
	}

	srv := &http.Server{
		Addr:         cfg.Address(),
		Handler:      h.Router(staticFS),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 5 * time.Minute, // large PDFs and attachments
		IdleTimeout:  60 * time.Second,
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		log.Infow("starting server", "url", cfg.URL())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	if cfg.Server.Open {
		time.Sleep(500 * time.Millisecond) // Give server time to start
		if err := openBrowser(cfg.URL()); err != nil {
			log.Warnw("failed to open browser", "url", cfg.URL(), "error", err)
		}
	}

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Infow("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	log.Infow("server stopped")
	return nil
}

// openBrowser opens the default browser to the specified URL
func openBrowser(url string) error {
	var cmd *exec.Cmd

	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		cmd = exec.Command("xdg-open", url)
	}

	return cmd.Start()
}
