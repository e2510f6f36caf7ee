package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/whistle-data/refzone.report/internal/analysis"
	"github.com/whistle-data/refzone.report/internal/api"
	"github.com/whistle-data/refzone.report/internal/coeffdb"
	"github.com/whistle-data/refzone.report/internal/coeffhttp"
	"github.com/whistle-data/refzone.report/internal/config"
	"github.com/whistle-data/refzone.report/internal/monitoring"
	"github.com/whistle-data/refzone.report/internal/predict"
	"github.com/whistle-data/refzone.report/internal/reqcache"
	"github.com/whistle-data/refzone.report/internal/session"
	"github.com/whistle-data/refzone.report/internal/timeutil"
	"github.com/whistle-data/refzone.report/internal/version"
)

var (
	configPath  = flag.String("config", "", "Path to YAML config (default: $CONFIG_PATH or ./refzone.yaml)")
	listen      = flag.String("listen", "", "Listen address (overrides config)")
	migrateOnly = flag.Bool("migrate", false, "Run database migrations and exit")
)

func main() {
	flag.Parse()

	monitoring.Logf("refzone.report %s", version.String())

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if *listen != "" {
		cfg.ListenAddr = *listen
	}

	clock := timeutil.RealClock{}

	// The coefficient source is either the local sqlite store or a
	// remote coefficient service, never both.
	var source api.CoefficientSource
	var localDB *coeffdb.DB
	if cfg.CoeffServiceURL != "" {
		if *migrateOnly {
			log.Fatal("-migrate requires a local coefficient database")
		}
		source = coeffhttp.NewClient(cfg.CoeffServiceURL, nil)
		monitoring.Logf("using coefficient service at %s", cfg.CoeffServiceURL)
	} else {
		localDB, err = coeffdb.NewDB(cfg.DBPath)
		if err != nil {
			log.Fatalf("failed to open coefficient database: %v", err)
		}
		defer localDB.Close()

		if err := localDB.MigrateUp(cfg.MigrationsDir); err != nil {
			log.Fatalf("failed to run migrations: %v", err)
		}
		if *migrateOnly {
			status, err := localDB.MigrationStatus(cfg.MigrationsDir)
			if err != nil {
				log.Fatalf("failed to read migration status: %v", err)
			}
			monitoring.Logf("migrations complete: %v", status)
			return
		}
		source = localDB
		monitoring.Logf("using coefficient database at %s", cfg.DBPath)
	}

	retrying := predict.NewRetryingStore(source, predict.RetryPolicy{
		Attempts: cfg.RetryAttempts,
		Backoff:  cfg.RetryBackoffDuration(),
	}, clock)
	engine := predict.NewEngine(retrying)

	defaultSeason := cfg.DefaultSeason
	if defaultSeason == "" {
		if seasons, err := source.Seasons(context.Background()); err == nil && len(seasons) > 0 {
			defaultSeason = seasons[0]
		}
	}
	sessions := session.NewStore(session.Filters{Season: defaultSeason})

	coord := analysis.NewCoordinator(engine, sessions, clock, analysis.Options{
		CacheTTL:    cfg.CacheTTLDuration(),
		QuietWindow: cfg.QuietWindowDuration(),
	})
	defer coord.Close()
	coord.Watch(func(v analysis.View) {
		if v.Err != nil {
			monitoring.Logf("prediction for %s failed: %v", v.Request.OfficialID, v.Err)
			return
		}
		monitoring.Logf("prediction ready: official=%s season=%s zones=%d",
			v.Request.OfficialID, v.Request.Season, len(v.Result.Grid))
	})

	var warmer *reqcache.Warmer[*predict.Result]
	if cfg.WarmerSchedule != "" {
		warmer = reqcache.NewWarmer(coord.Cache(), clock, nil)
		if err := warmer.Start(cfg.WarmerSchedule); err != nil {
			log.Fatalf("failed to start cache warmer: %v", err)
		}
		defer warmer.Stop()
	}

	mux := http.NewServeMux()
	mux.Handle("/", api.NewServer(engine, source, sessions).ServeMux())

	if localDB != nil && cfg.AdminRoutes {
		if err := localDB.AttachAdminRoutes(mux); err != nil {
			log.Fatalf("failed to attach admin routes: %v", err)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	server := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: api.LoggingMiddleware(mux),
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		monitoring.Logf("listening on %s", cfg.ListenAddr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("failed to start server: %v", err)
		}
	}()

	<-ctx.Done()
	monitoring.Logf("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		monitoring.Logf("HTTP server shutdown error: %v", err)
	}
	wg.Wait()
}
