package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/cors"

	"github.com/northdeals/catalog/internal/catalog"
	"github.com/northdeals/catalog/internal/config"
	"github.com/northdeals/catalog/internal/db"
	"github.com/northdeals/catalog/internal/export"
	"github.com/northdeals/catalog/internal/federation"
	"github.com/northdeals/catalog/internal/middleware"
	"github.com/northdeals/catalog/internal/options"
	"github.com/northdeals/catalog/internal/registry"
	"github.com/northdeals/catalog/internal/repository"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load(".")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	conn, err := db.NewConnection(ctx, cfg.DB)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer conn.Close()

	if err := db.RunMigrations(cfg.DB, cfg.MigrationsPath); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	reg, err := registry.New(registry.DefaultSources())
	if err != nil {
		log.Fatalf("Invalid source registry: %v", err)
	}

	sourceRepo := repository.NewSourceRepository(conn.Pool, reg)
	historyRepo := repository.NewHistoryRepository(conn.Pool)

	executor := federation.NewExecutor(sourceRepo, reg, cfg.FanoutTimeout)
	aggregator := options.NewAggregator(sourceRepo, reg, cfg.FacetTTL, cfg.StatsTTL)
	go aggregator.Run(ctx)

	service := catalog.NewService(reg, executor, sourceRepo, historyRepo, aggregator, conn, cfg.FetchCap)
	limits := catalog.Limits{DefaultPerPage: cfg.DefaultPerPage, MaxPerPage: cfg.MaxPerPage}
	handler := catalog.NewHTTPHandler(service, limits)
	exportHandler := export.NewHTTPHandler(export.NewService(service, cfg.ExportRowLimit), limits)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/products", handler.List)
	mux.Handle("GET /api/products/export", exportHandler)
	mux.HandleFunc("GET /api/products/{id}", handler.Detail)
	mux.HandleFunc("GET /api/products/{id}/history", handler.History)
	mux.HandleFunc("GET /api/filters", handler.Filters)
	mux.HandleFunc("GET /api/stats", handler.Stats)
	mux.HandleFunc("GET /api/tracker", handler.Tracker)
	mux.HandleFunc("GET /api/health", handler.Health)

	corsHandler := cors.New(cors.Options{
		AllowedOrigins: cfg.CORSOrigins,
		AllowedMethods: []string{"GET", "OPTIONS"},
		AllowedHeaders: []string{"*"},
	})

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      corsHandler.Handler(middleware.LoggingMiddleware(mux)),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Starting catalog server on :%d", cfg.Port)
		log.Printf("Listing endpoint available at http://localhost:%d/api/products", cfg.Port)

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server exited")
}
