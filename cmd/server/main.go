/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the order reconciliation server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Parse command-line flags and load configuration
  2. Open the catalog backend (CSV or XLSX) and the data directory
  3. Wire catalog, added-products ledger, order snapshots and reconciler
  4. Wire the exporter (optional PDF renderer, optional MinIO archive)
  5. Start the period monitor
  6. Configure HTTP router and start server with graceful shutdown

COMMAND-LINE FLAGS:
  -config  YAML configuration file (default: config.yaml)
  -port    HTTP server port, overrides the configuration when set

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (server.shutdown_timeout)
  3. Stop the period monitor
  4. Exit

EXAMPLES:
  # Run with the default config.yaml
  ./server

  # Run against another data directory
  ORDERS_DATA_DIR=/srv/orders ./server -config=/etc/orders/config.yaml

ENVIRONMENT:
  ORDERS_* variables override the file. See config/config.go.

SEE ALSO:
  - api/server.go: Router configuration
  - api/handlers.go: HTTP handlers
  - config/config.go: Configuration loading
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/warp/order-engine/api"
	"github.com/warp/order-engine/config"
	"github.com/warp/order-engine/engine"
	"github.com/warp/order-engine/report"
	"github.com/warp/order-engine/store/flatfile"
	"github.com/warp/order-engine/store/xlsx"
)

func main() {
	// Flags
	configPath := flag.String("config", "config.yaml", "YAML configuration file")
	port := flag.Int("port", 0, "HTTP server port (overrides config)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if *port != 0 {
		cfg.Server.Port = *port
	}

	// Stores
	data, err := flatfile.New(cfg.Data.Dir, flatfile.Options{})
	if err != nil {
		log.Fatalf("Failed to open data directory: %v", err)
	}
	catalogBackend, err := openCatalogBackend(cfg)
	if err != nil {
		log.Fatalf("Failed to open catalog: %v", err)
	}
	tables := engine.NewTabularStore(data)

	catalog := &engine.Catalog{
		Tables:  engine.NewTabularStore(catalogBackend),
		Name:    filepath.Base(cfg.Data.Catalog),
		Columns: cfg.Columns,
		Periods: cfg.PeriodScheme(),
	}
	reconciler := &engine.Reconciler{
		Catalog: catalog,
		AddedProducts: &engine.AddedProducts{
			Tables:  tables,
			Name:    cfg.Data.AddedProducts,
			Catalog: catalog,
		},
		Snapshots: &engine.OrderSnapshots{
			Tables: tables,
			Dir:    cfg.Data.SnapshotsDir,
		},
	}

	// Export
	exporter := &report.Exporter{Analyzer: reconciler}
	if cfg.Renderer.URL != "" {
		exporter.Renderer = report.NewHTTPRenderer(cfg.Renderer.URL, cfg.Renderer.Timeout)
		log.Printf("PDF export via %s", cfg.Renderer.URL)
	}
	if cfg.Archive.Enabled {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		archive, err := report.NewMinioArchive(ctx, report.MinioConfig{
			Endpoint:  cfg.Archive.Endpoint,
			Region:    cfg.Archive.Region,
			Bucket:    cfg.Archive.Bucket,
			AccessKey: cfg.Archive.AccessKey,
			SecretKey: cfg.Archive.SecretKey,
			UseSSL:    cfg.Archive.UseSSL,
		})
		cancel()
		if err != nil {
			log.Fatalf("Failed to connect report archive: %v", err)
		}
		exporter.Archive = archive
		log.Printf("Archiving reports to %s/%s", cfg.Archive.Endpoint, cfg.Archive.Bucket)
	}

	// Initialize handler
	handler := api.NewHandler(reconciler, exporter)
	handler.Metrics = api.NewMetrics()
	handler.Monitor = api.NewPeriodMonitor(catalog, handler.Metrics)
	handler.Monitor.Start()
	defer handler.Monitor.Stop()

	// Create router
	router := api.NewRouter(handler, cfg.Server.AllowedOrigins)

	// Create server. WriteTimeout leaves room for a slow renderer.
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.Renderer.Timeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Printf("Server starting on http://localhost:%d", cfg.Server.Port)
		log.Printf("Catalog: %s (periods: %s)", filepath.Join(cfg.Data.Dir, cfg.Data.Catalog), cfg.Periods.Naming)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	log.Println("Server stopped")
}

// openCatalogBackend returns the backend for the catalog's directory: an
// XLSX reader for workbooks, otherwise a flat-file store with the
// catalog's delimiter and encoding.
func openCatalogBackend(cfg *config.Config) (engine.Backend, error) {
	dir := filepath.Join(cfg.Data.Dir, filepath.Dir(cfg.Data.Catalog))
	if cfg.Data.CatalogIsWorkbook() {
		return xlsx.New(dir, cfg.Data.CatalogSheet)
	}
	comma, err := cfg.Data.DelimiterRune()
	if err != nil {
		return nil, err
	}
	return flatfile.New(dir, flatfile.Options{Delimiter: comma, Encoding: cfg.Data.Encoding})
}
