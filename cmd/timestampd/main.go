package main

// main.go is the timestampd entry point: a cobra root command with a
// single "serve" subcommand that builds a timestamp.Service from flags,
// mounts it behind the HTTP API, and runs until SIGINT/SIGTERM.
//
// © 2025 merkle-timestamp authors. MIT License.

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Voskan/merkle-timestamp/internal/httpapi"
	"github.com/Voskan/merkle-timestamp/internal/logging"
	"github.com/Voskan/merkle-timestamp/pkg/timestamp"
)

var (
	// Version information (set via ldflags during build).
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "timestampd",
	Short:   "timestampd - networked Merkle-committed digest timestamping service",
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"timestampd version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))
	rootCmd.PersistentFlags().Bool("debug", false, "enable development (human-readable, verbose) logging")
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP server",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().String("addr", ":8080", "listen address")
	serveCmd.Flags().Int("index-width", timestamp.DefaultIndexWidth, "per-shard bucket-array width I, in [1, 28]")
	serveCmd.Flags().Int("shards", timestamp.DefaultShardCount, "shard count S, must be a power of two")
	serveCmd.Flags().Bool("random-salt", false, "generate a random salt at startup instead of the all-zero default")
	serveCmd.Flags().String("salt-hex", "", "explicit 128-hex-character (64-byte) salt; overrides --random-salt")
	serveCmd.Flags().Bool("metrics", false, "expose Prometheus metrics at GET /metrics")
	serveCmd.Flags().StringSlice("cors-origin", []string{"*"}, "allowed CORS origins")
}

func runServe(cmd *cobra.Command, args []string) error {
	debug, _ := cmd.Flags().GetBool("debug")
	logger, err := logging.New(debug)
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer logger.Sync()

	addr, _ := cmd.Flags().GetString("addr")
	indexWidth, _ := cmd.Flags().GetInt("index-width")
	shards, _ := cmd.Flags().GetInt("shards")
	randomSalt, _ := cmd.Flags().GetBool("random-salt")
	saltHex, _ := cmd.Flags().GetString("salt-hex")
	withMetrics, _ := cmd.Flags().GetBool("metrics")
	corsOrigins, _ := cmd.Flags().GetStringSlice("cors-origin")

	opts := []timestamp.Option{
		timestamp.WithIndexWidth(indexWidth),
		timestamp.WithShardCount(shards),
		timestamp.WithLogger(logger),
	}

	var reg *prometheus.Registry
	if withMetrics {
		reg = prometheus.NewRegistry()
		opts = append(opts, timestamp.WithMetrics(reg))
	}

	switch {
	case saltHex != "":
		salt, err := parseSaltHex(saltHex)
		if err != nil {
			return fmt.Errorf("parse --salt-hex: %w", err)
		}
		opts = append(opts, timestamp.WithSalt(salt))
	case randomSalt:
		opts = append(opts, timestamp.WithRandomSalt())
	}

	svc, err := timestamp.New(opts...)
	if err != nil {
		return fmt.Errorf("construct service: %w", err)
	}
	defer svc.Close()

	server := httpapi.NewServer(svc, logger)
	handler := server.Handler(reg, corsOrigins)

	httpSrv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("listening", zap.String("addr", addr), zap.Int("shards", shards), zap.Int("index_width", indexWidth))
		serveErr <- httpSrv.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
	case <-ctx.Done():
		logger.Info("shutting down")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown: %w", err)
		}
	}
	return nil
}

func parseSaltHex(s string) (timestamp.Digest, error) {
	var d timestamp.Digest
	if len(s) != timestamp.DigestSize*2 {
		return d, fmt.Errorf("salt must be exactly %d hex characters, got %d", timestamp.DigestSize*2, len(s))
	}
	decoded, err := hex.DecodeString(s)
	if err != nil {
		return d, err
	}
	return timestamp.ParseDigest(decoded)
}
