package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/rajat-sharma-Dev/TempFileStorage/internal/api"
	"github.com/rajat-sharma-Dev/TempFileStorage/internal/config"
	"github.com/rajat-sharma-Dev/TempFileStorage/internal/files"
	"github.com/rajat-sharma-Dev/TempFileStorage/internal/logging"
	"github.com/rajat-sharma-Dev/TempFileStorage/internal/store"
	"github.com/rajat-sharma-Dev/TempFileStorage/internal/x402"
)

// devWallet is used with the mock facilitator when no receiver wallet is
// configured. It never receives real funds.
const devWallet = "0x0000000000000000000000000000000000000000"

func printStats(st *store.SQLiteStore) {
	ctx := context.Background()
	stats, err := st.Stats(ctx)
	if err != nil {
		logging.Internal.Fatalf("failed to get stats: %v", err)
	}

	fmt.Println("╔══════════════════════════════════════════╗")
	fmt.Println("║        TempFileStorage Statistics        ║")
	fmt.Println("╠══════════════════════════════════════════╣")
	fmt.Printf("║  Total Files:     %-22d║\n", stats.TotalFiles)
	fmt.Printf("║  ├─ Completed:    %-22d║\n", stats.CompletedFiles)
	fmt.Printf("║  ├─ Pending:      %-22d║\n", stats.PendingFiles)
	fmt.Printf("║  └─ Expired:      %-22d║\n", stats.ExpiredFiles)
	fmt.Println("╠══════════════════════════════════════════╣")
	fmt.Printf("║  Total Storage:   %-22s║\n", humanize.Bytes(uint64(stats.TotalBytes)))
	fmt.Printf("║  └─ Completed:    %-22s║\n", humanize.Bytes(uint64(stats.CompletedBytes)))
	fmt.Printf("║  Revenue:         $%-21s║\n", stats.RevenueUSD.String())
	fmt.Println("╠══════════════════════════════════════════╣")
	if !stats.OldestFile.IsZero() {
		fmt.Printf("║  Oldest File:     %-22s║\n", humanize.Time(stats.OldestFile))
		fmt.Printf("║  Newest File:     %-22s║\n", humanize.Time(stats.NewestFile))
	} else {
		fmt.Println("║  No files in database                    ║")
	}
	fmt.Println("╚══════════════════════════════════════════╝")
}

func main() {
	addr := flag.String("addr", ":8080", "HTTP listen address")
	dbPath := flag.String("db", "tempfilestorage.db", "SQLite database path")
	storagePath := flag.String("storage", "./uploads", "File storage directory")
	showStats := flag.Bool("stats", false, "Show database statistics and exit")
	devMode := flag.Bool("dev", false, "Development mode: disables CORS restrictions and rate limiting")
	corsOrigins := flag.String("cors-origins", "", "Comma-separated list of allowed CORS origins")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		logging.Internal.Fatalf("failed to load config: %v", err)
	}

	// Initialize store
	st, err := store.NewSQLiteStore(*dbPath)
	if err != nil {
		logging.Internal.Fatalf("failed to open database: %v", err)
	}
	defer st.Close()

	if *showStats {
		printStats(st)
		return
	}

	// Initialize blob storage - use S3 if configured, otherwise local filesystem
	var storage files.Storage
	if cfg.S3.Bucket != "" {
		s3Storage, err := files.NewS3Storage(files.S3Config{
			Endpoint:  cfg.S3.Endpoint,
			KeyID:     cfg.S3.KeyID,
			SecretKey: cfg.S3.SecretKey,
			Bucket:    cfg.S3.Bucket,
			Prefix:    cfg.S3.Prefix,
		})
		if err != nil {
			logging.Internal.Fatalf("failed to initialize S3 storage: %v", err)
		}
		storage = s3Storage
		logging.Internal.Printf("using S3 storage (bucket: %s)", cfg.S3.Bucket)
	} else {
		fsStorage, err := files.NewFSStorage(*storagePath)
		if err != nil {
			logging.Internal.Fatalf("failed to initialize storage: %v", err)
		}
		storage = fsStorage
		logging.Internal.Printf("using local filesystem storage (%s)", *storagePath)
	}

	filesSvc := files.NewService(storage, st)

	// Payment gate - real facilitator when a receiver wallet is configured,
	// otherwise an approve-everything mock for development
	var facilitator x402.FacilitatorClient
	wallet := cfg.ReceiverWallet
	if wallet != "" {
		facilitatorURL := cfg.FacilitatorURL
		if facilitatorURL == "" {
			facilitatorURL = x402.DefaultFacilitatorURL
		}
		facilitator, err = x402.NewHTTPFacilitator(x402.FacilitatorConfig{URL: facilitatorURL})
		if err != nil {
			logging.Internal.Fatalf("failed to initialize facilitator: %v", err)
		}
		logging.Internal.Printf("payments enabled (network=%s, facilitator=%s)", cfg.Network, facilitatorURL)
	} else {
		facilitator = x402.NewMockFacilitator()
		wallet = devWallet
		logging.Internal.Println("using mock facilitator (set X402_RECEIVER_WALLET for real payments)")
	}

	gate, err := x402.NewGate(facilitator, wallet)
	if err != nil {
		logging.Internal.Fatalf("failed to initialize payment gate: %v", err)
	}

	// Unpaid-upload limiter only matters in deferred-payment mode
	var pendingLimiter *api.PendingFileLimiter
	if cfg.DeferUploadPayment {
		pendingLimiter = api.NewPendingFileLimiter(3)
		logging.Internal.Println("deferred payment mode: downloader pays, max 3 unpaid files per IP")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Expiry reaper: hourly, plus the on-demand admin endpoint
	go func() {
		ticker := time.NewTicker(1 * time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				result, err := filesSvc.CleanupExpired(ctx)
				if err != nil {
					logging.Reaper.Printf("cleanup error: %v", err)
				} else if result.Deleted > 0 || len(result.Errors) > 0 {
					logging.Reaper.Printf("cleaned up %d expired files (%d errors)", result.Deleted, len(result.Errors))
				}

				if pendingLimiter != nil {
					// Longest retention plus the reaper's grace window
					maxAge := 30*24*time.Hour + files.PendingGrace
					if n := pendingLimiter.CleanupExpired(maxAge); n > 0 {
						logging.Reaper.Printf("cleaned up %d stale unpaid-file entries", n)
					}
				}
			}
		}
	}()

	handler := api.NewHandler(filesSvc, gate, api.Config{
		Network:            cfg.Network,
		DeferUploadPayment: cfg.DeferUploadPayment,
	}, pendingLimiter)

	mux := http.NewServeMux()
	mux.Handle("/api/", handler)

	// Configure CORS
	var corsConfig api.CORSConfig
	if *devMode {
		logging.Internal.Println("development mode: CORS allowing all origins")
	} else if *corsOrigins != "" {
		origins := strings.Split(*corsOrigins, ",")
		for i, o := range origins {
			origins[i] = strings.TrimSpace(o)
		}
		corsConfig.AllowedOrigins = origins
		logging.Internal.Printf("CORS restricted to origins: %v", origins)
	}

	// Apply middleware (order: Logger -> RateLimit -> CORS -> handler)
	var finalHandler http.Handler = mux
	finalHandler = api.CORS(corsConfig)(finalHandler)
	if !*devMode {
		finalHandler = api.RateLimit(api.DefaultRateLimitConfig())(finalHandler)
		logging.Internal.Println("rate limiting enabled")
	}
	finalHandler = api.Logger(finalHandler)

	server := &http.Server{
		Addr:    *addr,
		Handler: finalHandler,
	}

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		logging.Internal.Println("shutting down...")
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logging.Internal.Printf("shutdown error: %v", err)
		}
	}()

	logging.Internal.Printf("starting server on %s", *addr)
	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		logging.Internal.Fatalf("server error: %v", err)
	}
}
