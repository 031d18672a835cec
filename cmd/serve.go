package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/reid/internal/detect"
	"github.com/kozaktomas/reid/internal/embed"
	"github.com/kozaktomas/reid/internal/session"
	"github.com/kozaktomas/reid/internal/storage"
	"github.com/kozaktomas/reid/internal/web"
	"github.com/kozaktomas/reid/internal/web/handlers"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the API server",
	Long: `Start the re-identification API server.
The server accepts processing jobs over HTTP, streams their progress as
server-sent events, and serves sessions, rosters, and the identity catalogue.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().Int("port", 8080, "Port to listen on")
	serveCmd.Flags().String("host", "0.0.0.0", "Host to bind to")
}

// resolveServeHostPort resolves port and host from flags and environment variables.
func resolveServeHostPort(cmd *cobra.Command) (int, string) {
	port := mustGetInt(cmd, "port")
	host := mustGetString(cmd, "host")

	if envPort := os.Getenv("WEB_PORT"); envPort != "" {
		fmt.Sscanf(envPort, "%d", &port)
	}
	if envHost := os.Getenv("WEB_HOST"); envHost != "" {
		host = envHost
	}
	return port, host
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	b, err := openBackend(ctx)
	if err != nil {
		return err
	}
	defer b.Close()

	blobs := storage.NewFileBlobStore(b.cfg.Blob.Dir)
	recordFaces := b.recordFaces(ctx)
	newRunner := func() *session.Runner {
		r := session.NewRunner(*b.cfg,
			detect.NewClient(b.cfg.Detector.URL),
			embed.NewClient(b.cfg.Embedding.URL),
			b.catalogue, b.store, blobs)
		if recordFaces != nil {
			r.OnFaceSaved(recordFaces)
		}
		return r
	}

	h := handlers.New(*b.cfg, b.store, b.catalogue, b.videos, newRunner)
	port, host := resolveServeHostPort(cmd)
	server := web.NewServer(h, host, port)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		fmt.Println("\nShutting down...")

		shutdownCtx, shutdownCancel := context.WithTimeout(ctx, 30*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			fmt.Printf("Error during shutdown: %v\n", err)
		}
	}()

	fmt.Printf("Starting re-identification API on http://%s:%d\n", host, port)
	fmt.Println("Press Ctrl+C to stop")

	if err := server.Start(); err != nil {
		return fmt.Errorf("starting server: %w", err)
	}
	return nil
}
