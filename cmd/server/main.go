/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the Darshan Admission Engine server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Parse command-line flags
  2. Initialize SQLite store
  3. Build the credential codec and domain services
  4. Configure HTTP router, start the expiry sweep scheduler
  5. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -port       HTTP server port (default: 8080)
  -db         SQLite database path (default: darshan.db)
              Use ":memory:" for in-memory database
  -capacity   Seats per half-hour slot (default: 100)
  -lookahead  Slot search horizon in days (default: 30)
  -grace      Grace window after slot start (default: 2h)
  -sweep      Expiry sweep interval (default: 1m)
  -secret     Credential signing secret (required outside dev)

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Stop the sweep scheduler
  4. Close database connection
  5. Exit

EXAMPLES:
  # Run with file database
  ./server -db="./data/darshan.db" -secret="change-me"

  # Run with in-memory database
  ./server -db=":memory:"

  # Smaller slots, shorter grace
  ./server -capacity=50 -grace=30m

SEE ALSO:
  - api/server.go: Router configuration
  - api/handlers.go: HTTP handlers
  - store/sqlite/sqlite.go: Database implementation
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
	"syscall"
	"time"

	"github.com/warp/darshan-engine/api"
	"github.com/warp/darshan-engine/credential"
	"github.com/warp/darshan-engine/schedule"
	"github.com/warp/darshan-engine/store/sqlite"
)

func main() {
	// Flags
	port := flag.Int("port", 8080, "HTTP server port")
	dbPath := flag.String("db", "darshan.db", "SQLite database path")
	capacity := flag.Int("capacity", schedule.DefaultSlotCapacity, "Seats per slot")
	lookahead := flag.Int("lookahead", schedule.DefaultHorizonDays, "Slot search horizon in days")
	grace := flag.Duration("grace", schedule.DefaultGraceWindow, "Grace window after slot start")
	sweepEvery := flag.Duration("sweep", 1*time.Minute, "Expiry sweep interval")
	secret := flag.String("secret", "dev-secret-do-not-deploy", "Credential signing secret")
	flag.Parse()

	// Initialize store
	store, err := sqlite.New(*dbPath)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer store.Close()

	// Credential codec
	codec, err := credential.NewCodec([]byte(*secret), "darshan-engine")
	if err != nil {
		log.Fatalf("Failed to initialize credential codec: %v", err)
	}

	// Domain services
	clock := schedule.SystemClock()
	timetable := schedule.DefaultSchedule()
	ledger := schedule.NewSlotLedger(store, *capacity)
	search := schedule.NewSlotSearch(timetable, ledger, *lookahead)

	reservations := &schedule.ReservationService{
		Store:     store,
		Directory: store,
		Ledger:    ledger,
		Search:    search,
		Encoder:   codec,
		Clock:     clock,
		Grace:     *grace,
	}
	admissions := &schedule.AdmissionService{
		Store:     store,
		Directory: store,
		Ledger:    ledger,
		Decoder:   codec,
		Clock:     clock,
	}
	cancels := &schedule.CancellationService{
		Store:  store,
		Ledger: ledger,
	}
	sweeper := &schedule.ExpirySweeper{
		Store:  store,
		Ledger: ledger,
		Clock:  clock,
	}

	// HTTP handler and router
	handler := &api.Handler{
		Schedule:     timetable,
		Ledger:       ledger,
		Reservations: reservations,
		Admissions:   admissions,
		Cancels:      cancels,
		Sweeper:      sweeper,
		Store:        store,
		Directory:    store,
		Registrar:    store,
	}
	router := api.NewRouter(handler)

	// Background expiry sweep
	scheduler := api.NewSweepScheduler(sweeper)
	scheduler.CheckInterval = *sweepEvery
	scheduler.Start()
	defer scheduler.Stop()

	// Create server
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", *port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Printf("Server starting on http://localhost:%d", *port)
		log.Printf("API available at http://localhost:%d/api", *port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server stopped")
}
