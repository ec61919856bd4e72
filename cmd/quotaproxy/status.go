package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/arjunv/quotaproxy/internal/config"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Check if quotaproxy is running",
	Long: `Check the health status of a running quotaproxy server by querying
its /health endpoint.`,
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	addr := cfg.Server.GetListenAddr()
	healthy, body, err := checkHealth(addr)
	if err != nil {
		cmd.Printf("✗ quotaproxy is not running (%s): %v\n", addr, err)
		return err
	}
	if !healthy {
		cmd.Printf("✗ quotaproxy is degraded (%s)\n%s\n", addr, body)
		return fmt.Errorf("health check reported degraded status")
	}

	cmd.Printf("✓ quotaproxy is running (%s)\n%s\n", addr, body)
	return nil
}

// checkHealth performs an HTTP GET against the server's /health endpoint
// and reports whether it reported a healthy status.
func checkHealth(listenAddr string) (healthy bool, body string, err error) {
	url := healthURL(listenAddr)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false, "", err
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return false, "", fmt.Errorf("server not reachable: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	var payload map[string]any
	if decErr := json.NewDecoder(resp.Body).Decode(&payload); decErr == nil {
		encoded, _ := json.MarshalIndent(payload, "", "  ")
		body = string(encoded)
	}

	return resp.StatusCode == http.StatusOK, body, nil
}

// healthURL builds the health-check URL from a listen address, filling
// in localhost for addresses of the form ":port".
func healthURL(listenAddr string) string {
	host := listenAddr
	if strings.HasPrefix(host, ":") {
		host = "localhost" + host
	}
	return "http://" + host + "/health"
}
