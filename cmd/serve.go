package cmd

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/spf13/cobra"

	"github.com/edgekit/facegate/internal/attendance"
	"github.com/edgekit/facegate/internal/capture"
	"github.com/edgekit/facegate/internal/config"
	"github.com/edgekit/facegate/internal/embedding"
	"github.com/edgekit/facegate/internal/enroll"
	"github.com/edgekit/facegate/internal/identity"
	"github.com/edgekit/facegate/internal/match"
	"github.com/edgekit/facegate/internal/pipeline"
	"github.com/edgekit/facegate/internal/store"
	_ "github.com/edgekit/facegate/internal/store/mariadb"
	_ "github.com/edgekit/facegate/internal/store/memory"
	_ "github.com/edgekit/facegate/internal/store/postgres"
	"github.com/edgekit/facegate/internal/web"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the kiosk daemon",
	Long: `Start the FaceGate kiosk daemon.
The daemon serves the kiosk HTTP API and, with --stream, immediately starts
the recognition pipeline on the configured camera source.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().Bool("stream", false, "Start the recognition pipeline immediately")
}

// loadIdentities builds the matching engine's identity snapshot from the
// employee registry.
func loadIdentities(ctx context.Context, st store.Store, engine *match.Engine) {
	employees, err := st.ListEmployees(ctx, false)
	if err != nil {
		fmt.Printf("Warning: could not list employees: %v\n", err)
		return
	}
	count, err := engine.Reload(employees)
	if err != nil {
		fmt.Printf("Warning: could not build identity snapshot: %v\n", err)
		return
	}
	fmt.Printf("Identity snapshot ready with %d embeddings (%d employees)\n", count, len(employees))
}

// loadClassifier loads the persisted classifier model. A missing model is
// not an error; matching falls back to nearest-neighbor only.
func loadClassifier(engine *match.Engine, path string) {
	model, err := identity.LoadClassifier(path)
	if err != nil {
		if errors.Is(err, identity.ErrNoModel) {
			fmt.Printf("No classifier model at %s, matching uses nearest-neighbor only\n", path)
		} else {
			fmt.Printf("Warning: could not load classifier: %v\n", err)
		}
		return
	}
	engine.SetClassifier(model)
	fmt.Printf("Classifier loaded from %s (%d employees)\n", path, len(model.Labels()))
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := config.Load()

	st, err := store.Open(&cfg.Database)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer func() { _ = st.Close() }()
	if cfg.Database.URL == "" {
		fmt.Println("DATABASE_URL not set, using in-memory store (records vanish on exit)")
	}

	detector := embedding.NewClient(cfg.Embedding.URL, cfg.Embedding.Dim)
	engine := match.NewEngine(identity.NewStore())

	loadIdentities(context.Background(), st, engine)
	loadClassifier(engine, cfg.Storage.ClassifierPath)

	tracker := attendance.NewTracker(st, cfg.Attendance.Location(), cfg.Camera.Source)
	dispatcher := pipeline.NewDispatcher(engine, detector, tracker, st, pipeline.Options{
		Threshold:      cfg.Recognition.Threshold,
		AllowFallback:  cfg.Recognition.AllowFallback,
		RecognizeEvery: cfg.Recognition.Interval,
		Capture: capture.Options{
			Width:  cfg.Camera.Width,
			Height: cfg.Camera.Height,
			FPS:    cfg.Camera.FPS,
		},
	})
	registry := enroll.NewRegistry(cfg.Storage.DataDir, detector, st, engine)

	server := web.NewServer(cfg, web.Deps{
		Store:      st,
		Engine:     engine,
		Detector:   detector,
		Dispatcher: dispatcher,
		Registry:   registry,
		Tracker:    tracker,
	})

	if mustGetBool(cmd, "stream") {
		if err := dispatcher.Start(cfg.Camera.Source); err != nil {
			return fmt.Errorf("starting pipeline: %w", err)
		}
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		fmt.Println("\nShutting down...")

		if dispatcher.Running() {
			if err := dispatcher.Stop(); err != nil {
				fmt.Printf("Error stopping pipeline: %v\n", err)
			}
		}

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			fmt.Printf("Error during shutdown: %v\n", err)
		}
	}()

	// Tell systemd the kiosk is up; a no-op outside a systemd unit.
	if _, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		log.Printf("[serve] sd_notify failed: %v", err)
	}

	fmt.Printf("Starting FaceGate kiosk on %s\n", cfg.Server.Addr)
	fmt.Println("Press Ctrl+C to stop")

	if err := server.Start(); err != nil {
		return fmt.Errorf("starting server: %w", err)
	}
	return nil
}
