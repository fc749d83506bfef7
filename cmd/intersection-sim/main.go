// Command intersection-sim runs the intersection simulation with its HTTP
// control surface and, optionally, a sqlite run recorder.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/banshee-data/intersection.sim/internal/api"
	"github.com/banshee-data/intersection.sim/internal/config"
	"github.com/banshee-data/intersection.sim/internal/db"
	"github.com/banshee-data/intersection.sim/internal/engine"
	"github.com/banshee-data/intersection.sim/internal/rpc"
	"github.com/banshee-data/intersection.sim/internal/units"
	"github.com/banshee-data/intersection.sim/internal/version"
)

var (
	listen      = flag.String("listen", ":8080", "Listen address")
	grpcListen  = flag.String("grpc-listen", "localhost:50051", "gRPC listen address (empty disables gRPC)")
	configPath  = flag.String("config", "", "Path to a settings JSON file (defaults are used when empty)")
	dbPath      = flag.String("db", "intersection_runs.db", "Path to the sqlite run store (empty disables recording)")
	speedUnits  = flag.String("units", units.MPS, "Default speed units for the API ("+units.GetValidUnitsString()+")")
	mode        = flag.String("mode", "", "Override the signal mode (fixed or adaptive)")
	seed        = flag.Uint64("seed", 0, "Override the random seed (0 keeps the configured one)")
	autostart   = flag.Bool("autostart", true, "Start the simulation immediately")
	frameMs     = flag.Int("frame-ms", 16, "Frame loop interval in milliseconds")
	corsOrigins = flag.String("cors-origins", "", "Comma separated browser origins allowed to call the API")
	envFile     = flag.String("env", ".env", "Dotenv file whose SIM_* variables fill flags not given on the command line")
	showVersion = flag.Bool("version", false, "Print version and exit")
)

// applyEnv loads the dotenv file, then fills every flag not set on the
// command line from SIM_<NAME>, with dashes in the name turned into
// underscores. A missing dotenv file is not an error.
func applyEnv(set *flag.FlagSet, path string) error {
	if path != "" {
		if err := godotenv.Load(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("load %s: %w", path, err)
		}
	}
	given := make(map[string]bool)
	set.Visit(func(f *flag.Flag) { given[f.Name] = true })

	var errs []error
	set.VisitAll(func(f *flag.Flag) {
		if given[f.Name] || f.Name == "env" {
			return
		}
		key := "SIM_" + strings.ToUpper(strings.ReplaceAll(f.Name, "-", "_"))
		if v, ok := os.LookupEnv(key); ok {
			if err := set.Set(f.Name, v); err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
			}
		}
	})
	return errors.Join(errs...)
}

func splitOrigins(s string) []string {
	var out []string
	for _, o := range strings.Split(s, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}

func loadSettings() (*config.Settings, error) {
	settings := config.DefaultSettings()
	if *configPath != "" {
		fromFile, err := config.LoadSettings(*configPath)
		if err != nil {
			return nil, err
		}
		settings = settings.Merge(fromFile)
	}
	override := &config.Settings{}
	if *mode != "" {
		override.Mode = config.String(*mode)
	}
	if *seed != 0 {
		override.Seed = config.Uint64(*seed)
	}
	if err := override.Validate(); err != nil {
		return nil, fmt.Errorf("invalid flags: %w", err)
	}
	return settings.Merge(override), nil
}

func main() {
	flag.Parse()
	if err := applyEnv(flag.CommandLine, *envFile); err != nil {
		log.Fatalf("Failed to apply environment: %v", err)
	}

	if *showVersion {
		fmt.Println(version.Get())
		return
	}
	if *listen == "" {
		log.Fatal("Listen address is required")
	}
	if !units.IsValid(*speedUnits) {
		log.Fatalf("Invalid units %q, must be one of: %s", *speedUnits, units.GetValidUnitsString())
	}

	settings, err := loadSettings()
	if err != nil {
		log.Fatalf("Failed to load settings: %v", err)
	}
	sim, err := engine.New(engine.Options{Settings: settings})
	if err != nil {
		log.Fatalf("Failed to create simulation: %v", err)
	}
	log.Printf("intersection-sim %s, run %s, seed %d, mode %s",
		version.Get(), sim.RunID(), sim.Seed(), sim.Snapshot().Mode)

	runner := engine.NewRunner(sim, nil)
	if *frameMs > 0 {
		runner.Interval = time.Duration(*frameMs) * time.Millisecond
	}
	server := api.NewServer(runner, *speedUnits)
	server.AllowedOrigins = splitOrigins(*corsOrigins)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	mux := http.NewServeMux()
	mux.Handle("/", server.Router())

	var recorder *db.Recorder
	if *dbPath != "" {
		store, err := db.NewDB(*dbPath)
		if err != nil {
			log.Fatalf("Failed to open run store: %v", err)
		}
		defer store.Close()
		if err := store.AttachAdminRoutes(mux); err != nil {
			log.Fatalf("Failed to attach admin routes: %v", err)
		}

		recorder = db.NewRecorder(store, nil)
		sim.Subscribe(recorder)
		if err := recorder.BeginRun(ctx, db.RunOf(sim, time.Now())); err != nil {
			log.Fatalf("Failed to record run: %v", err)
		}
		server.OnReset = func(s *engine.Simulation) {
			if err := recorder.BeginRun(context.Background(), db.RunOf(s, time.Now())); err != nil {
				log.Printf("failed to record new run: %v", err)
			}
		}
		recorder.Start()
	}

	var rpcServer *rpc.Server
	if *grpcListen != "" {
		cfg := rpc.DefaultConfig()
		cfg.ListenAddr = *grpcListen
		rpcServer = rpc.NewServer(runner, cfg)
		sim.Subscribe(rpcServer)
		if err := rpcServer.Start(); err != nil {
			log.Fatalf("Failed to start gRPC server: %v", err)
		}
	}

	if *autostart {
		sim.Start()
	}

	var wg sync.WaitGroup

	// frame loop
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := runner.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("frame loop error: %v", err)
		}
		log.Print("frame loop terminated")
	}()

	// HTTP server goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()

		httpServer := &http.Server{
			Addr:    *listen,
			Handler: api.LoggingMiddleware(mux),
		}
		go func() {
			if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("failed to start server: %v", err)
			}
		}()
		log.Printf("listening on %s", *listen)

		<-ctx.Done()
		log.Println("shutting down HTTP server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP server shutdown error: %v", err)
		}
		log.Printf("HTTP server routine stopped")
	}()

	wg.Wait()

	if rpcServer != nil {
		rpcServer.Stop()
		log.Printf("gRPC server stopped")
	}
	if recorder != nil {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		var exp engine.Export
		runner.Do(func(s *engine.Simulation) { exp = s.ExportTrafficData() })
		if err := recorder.DB.SaveExport(flushCtx, exp); err != nil {
			log.Printf("failed to save final export: %v", err)
		}
		if err := recorder.Stop(flushCtx); err != nil {
			log.Printf("failed to flush recorder: %v", err)
		}
	}
	log.Printf("Graceful shutdown complete")
}
