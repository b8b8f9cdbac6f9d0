// ABOUTME: Entry point for the servingd serving backend
// ABOUTME: Fronts the training hub and identity service for prediction clients

package main

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

	"github.com/fatih/color"

	"github.com/chestscan/modelhub/internal/auth"
	"github.com/chestscan/modelhub/internal/config"
	"github.com/chestscan/modelhub/internal/hub"
	"github.com/chestscan/modelhub/internal/logging"
	"github.com/chestscan/modelhub/internal/metrics"
	"github.com/chestscan/modelhub/internal/probe"
	"github.com/chestscan/modelhub/internal/serving"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `
                     _             _
 ___  ___ _ ____   _(_)_ __   __ _ __| |
/ __|/ _ \ '__\ \ / / | '_ \ / _' / _' |
\__ \  __/ |   \ V /| | | | | (_| \ (_| |
|___/\___|_|    \_/ |_|_| |_|\__, |\__,_|
                             |___/
`

// getConfigPath returns the path to the servingd config file.
// Priority: MODELHUB_CONFIG env var > XDG_CONFIG_HOME/modelhub/servingd.yaml > ~/.config/modelhub/servingd.yaml
func getConfigPath() string {
	if envPath := os.Getenv("MODELHUB_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "servingd.yaml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "modelhub", "servingd.yaml")
}

// authServiceURL resolves the authd base URL. Explicit AUTHD_HOST/AUTHD_PORT
// win; otherwise the stage and container marker pick the default.
func authServiceURL() string {
	if url, err := config.ServiceURLFromEnv("AUTHD"); err == nil {
		return url
	}
	return config.DefaultServiceURL("authd", config.AuthdProdPort, config.AuthdDevPort)
}

// hubServiceURL resolves the training hub base URL the same way.
func hubServiceURL() string {
	if url, err := config.ServiceURLFromEnv("TRAINHUB"); err == nil {
		return url
	}
	return config.DefaultServiceURL("trainhub", config.TrainhubProdPort, config.TrainhubDevPort)
}

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: servingd <command>")
		fmt.Println()
		fmt.Println("Commands:")
		fmt.Println("  serve    Start the serving backend")
		fmt.Println("  health   Check service health")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(ctx)
	case "health":
		err = runHealth(ctx)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runServe(ctx context.Context) error {
	configPath := getConfigPath()

	cyan := color.New(color.FgCyan)
	cyan.Print(banner)

	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := logging.Setup(cfg.Logging)

	authURL := authServiceURL()
	hubURL := hubServiceURL()

	green := color.New(color.FgGreen)
	green.Print("    ▶ ")
	fmt.Printf("Config: %s\n", configPath)
	green.Print("    ▶ ")
	fmt.Printf("HTTP:   %s\n", cfg.Server.HTTPAddr)
	green.Print("    ▶ ")
	fmt.Printf("Hub:    %s\n", hubURL)
	green.Print("    ▶ ")
	fmt.Printf("Auth:   %s\n", authURL)
	fmt.Println()

	logger.Info("starting servingd",
		"config", configPath,
		"http_addr", cfg.Server.HTTPAddr,
		"hub_url", hubURL,
		"auth_url", authURL,
		"stage", config.Stage(),
	)

	authClient := auth.NewRemoteClient(authURL, probe.New(probe.DefaultTimeout))
	hubClient := hub.NewClient(hubURL, probe.New(probe.DefaultTimeout))

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New("servingd")
	}

	mux := http.NewServeMux()
	serving.NewServer(hubClient, authClient, authClient, m).Routes(mux)

	return serveHTTP(ctx, logger, &http.Server{Addr: cfg.Server.HTTPAddr, Handler: mux})
}

// serveHTTP runs srv until ctx is cancelled, then shuts down gracefully.
func serveHTTP(ctx context.Context, logger *slog.Logger, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func runHealth(ctx context.Context) error {
	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	url := fmt.Sprintf("http://%s/health", cfg.Server.HTTPAddr)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}

	fmt.Println("healthy")
	return nil
}
