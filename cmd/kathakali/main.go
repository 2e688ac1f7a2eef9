package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"
	"time"

	"github.com/ayusman/kathakali/internal/app"
	"github.com/ayusman/kathakali/internal/config"
	"github.com/ayusman/kathakali/internal/log"
	"github.com/ayusman/kathakali/internal/pose"
	"github.com/ayusman/kathakali/internal/server"
	"github.com/ayusman/kathakali/internal/store"
	"github.com/ayusman/kathakali/internal/tray"
)

func main() {
	configPath := flag.String("config", "", "path to a JSON config file")
	addr := flag.String("addr", "", "HTTP listen address (overrides config)")
	camera := flag.Int("camera", 0, "camera device index (overrides config)")
	dbPath := flag.String("db", "", "SQLite database path (overrides config)")
	logLevel := flag.String("log-level", "", "log level: debug, info, warn, error (overrides config)")
	useTray := flag.Bool("tray", false, "show the system tray menu")
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		var err error
		if cfg, err = config.Load(*configPath); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
			os.Exit(1)
		}
	}
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "addr":
			cfg.Server.Addr = *addr
		case "camera":
			cfg.Camera.Device = *camera
		case "db":
			cfg.Store.Path = *dbPath
		case "log-level":
			cfg.LogLevel = *logLevel
		}
	})

	log.Init(cfg.LogLevel)
	if err := run(cfg, *useTray); err != nil {
		log.Error("kathakali failed", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, useTray bool) error {
	log.Info("Kathakali - face tracking for avatar rigs")

	path, err := cfg.StorePath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create data directory: %w", err)
	}
	st, err := store.New(path)
	if err != nil {
		return fmt.Errorf("initialize store: %w", err)
	}
	defer st.Close()

	application, err := app.New(app.Config{Config: cfg, Store: st})
	if err != nil {
		return err
	}
	if err := application.Start(); err != nil {
		// The API stays up so profiles can still be edited.
		log.Error("pipeline not started", "error", err)
	}
	defer application.Stop()

	webDir := findWebDir()
	if webDir != "" {
		log.Info("serving static files", "dir", webDir)
	}

	srv := server.New(server.Config{
		StaticDir: webDir,
		Store:     st,
		Pipeline:  application,
	})
	defer srv.Close()

	httpServer := &http.Server{Addr: cfg.Server.Addr, Handler: srv}
	errCh := make(chan error, 1)
	go func() {
		log.Info("starting server", "addr", cfg.Server.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if useTray {
		runTray(ctx, stop, application, cfg.Server.Addr)
	}

	var serveErr error
	select {
	case <-ctx.Done():
	case serveErr = <-errCh:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Warn("server shutdown", "error", err)
	}
	log.Info("shutting down")
	return serveErr
}

// runTray blocks in the tray loop until Quit is chosen or ctx ends.
func runTray(ctx context.Context, stop context.CancelFunc, a *app.App, addr string) {
	s := a.Settings()
	tr := tray.New(tray.State{
		Enabled:  a.Enabled(),
		Overlay:  a.Overlay(),
		Channels: s.Channels.Mask(),
	})
	tr.OnToggle(a.SetEnabled)
	tr.OnOverlay(a.SetOverlay)
	tr.OnChannel(func(ch pose.Channel, on bool) { a.SetChannel(ch, on) })
	tr.OnSettings(func() { openBrowser(settingsURL(addr)) })
	tr.OnQuit(stop)

	go func() {
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				tr.Quit()
				return
			case <-ticker.C:
				st := a.Status()
				if !st.Enabled {
					tr.SetStatus("Paused")
				} else {
					tr.SetStatus(fmt.Sprintf("%d fps · %d frames", st.DetectFPS, st.Tracking.Published))
				}
			}
		}
	}()

	tr.Run()
	stop()
}

func settingsURL(addr string) string {
	host := addr
	if len(host) > 0 && host[0] == ':' {
		host = "localhost" + host
	}
	return "http://" + host + "/"
}

func openBrowser(url string) {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		cmd = exec.Command("xdg-open", url)
	}
	if err := cmd.Start(); err != nil {
		log.Warn("failed to open browser", "url", url, "error", err)
	}
}

// findWebDir searches for the web directory in common locations.
// It checks: "web", "../web", "../../web", and ~/.kathakali/web.
// Returns the first existing directory or empty string if none found.
func findWebDir() string {
	for _, p := range []string{"web", "../web", "../../web"} {
		if info, err := os.Stat(p); err == nil && info.IsDir() {
			if abs, err := filepath.Abs(p); err == nil {
				return abs
			}
			return p
		}
	}

	dataDir, err := config.DataDir()
	if err != nil {
		return ""
	}
	homeWebDir := filepath.Join(dataDir, "web")
	if info, err := os.Stat(homeWebDir); err == nil && info.IsDir() {
		return homeWebDir
	}
	return ""
}
