// Package main is the entry point for the descent server.
// It only handles dependency injection and server initialization.
// NO business logic belongs here.
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MRamiBalles/CaidaLibre/internal/engine"
	"github.com/MRamiBalles/CaidaLibre/internal/events"
	"github.com/MRamiBalles/CaidaLibre/internal/infra/records"
	"github.com/MRamiBalles/CaidaLibre/internal/infra/storage"
	"github.com/MRamiBalles/CaidaLibre/internal/network"
	"github.com/MRamiBalles/CaidaLibre/internal/platform/config"
	"github.com/MRamiBalles/CaidaLibre/internal/platform/logger"
	"github.com/MRamiBalles/CaidaLibre/internal/platform/metrics"
)

func loadConfig(path, profile string) (*config.Config, error) {
	cfg := config.DefaultConfig()
	if path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	if profile != "" {
		rt, ok := config.RuntimeProfile(profile)
		if !ok {
			return nil, errors.New("unknown runtime profile " + profile)
		}
		cfg.Runtime = *rt
	}
	return cfg, nil
}

func main() {
	configPath := flag.String("config", "", "YAML configuration file (defaults are used when empty)")
	profile := flag.String("profile", "", "runtime profile: default, stress or low")
	addr := flag.String("addr", "", "listen address, overrides server.addr")
	debug := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()

	log.Println("[DESCENT-SERVER] Initializing descent simulation server...")

	appLogger := logger.NewLogger()
	appLogger.SetDebug(*debug)

	cfg, err := loadConfig(*configPath, *profile)
	if err != nil {
		appLogger.Error("Failed to load configuration: " + err.Error())
		os.Exit(1)
	}
	if *addr != "" {
		cfg.Server.Addr = *addr
	}
	collector := metrics.Get()

	appLogger.Infof("Initializing SQLite database '%s'...", cfg.Storage.DBPath)
	db, err := storage.InitSQLite(cfg.Storage.DBPath)
	if err != nil {
		appLogger.Error("Failed to initialize SQLite: " + err.Error())
		os.Exit(1)
	}
	defer db.Close()
	storage.ConfigurePool(db, cfg.Runtime.DBMaxOpenConns, cfg.Runtime.DBMaxIdleConns)
	eventRepo := storage.NewSQLiteEventRepository(db)
	flightRepo := storage.NewSQLiteFlightRepository(db)

	appLogger.Info("Bootstrapping EventLog...")
	bus := events.NewBus()
	eventLog := events.NewEventLog(storage.NewEventPersister(eventRepo, collector))
	eventLog.OnPersistError = func(e events.GameEvent, err error) {
		appLogger.Errorf("event %s (%v) not persisted: %v", e.ID, e.Type, err)
	}

	appLogger.Info("Bootstrapping flight book and records...")
	detachRecorder := storage.NewFlightRecorder(flightRepo, cfg.Server.PilotName, appLogger).Attach(bus)
	defer detachRecorder()

	recordStore, err := records.Open(cfg.Storage.RecordsApp)
	if err != nil {
		appLogger.Errorf("Record book storage unavailable: %v", err)
	}
	book := records.NewBook(recordStore, appLogger)
	if !book.Persistent() {
		appLogger.Warn("Record book is memory-only; records are lost on exit")
	}
	detachBook := book.Attach(bus, cfg.Server.PilotName)
	defer detachBook()

	appLogger.Info("Bootstrapping Engine...")
	pilot := engine.NewManualPilot(cfg.Server.PilotName)
	descent := engine.NewEngine(cfg, bus, eventLog, pilot, collector, appLogger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	descent.Start(ctx)

	appLogger.Info("Bootstrapping WebSocket Hub...")
	hub := network.NewHub(descent, pilot, network.HubOptions{
		StateEvery:           cfg.Server.StateEvery,
		BroadcastBuffer:      cfg.Runtime.BroadcastBuffer,
		ClientSendBuffer:     cfg.Runtime.ClientSendBuffer,
		MaxMessagesPerSecond: cfg.Runtime.MaxMessagesPerSecond,
		MaxClients:           cfg.Runtime.MaxClients,
		Metrics:              collector,
	}, appLogger)
	detachHub := hub.Attach()
	defer detachHub()
	go hub.Run(ctx)

	// Setup API Routes
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", network.ServeWs(hub))
	network.NewFlightAPI(descent, hub, book, appLogger).RegisterRoutes(mux)
	network.NewReplayHandler(flightRepo, eventRepo, appLogger).RegisterRoutes(mux)
	mux.HandleFunc("/metrics", metrics.Handler(collector))
	mux.HandleFunc("/metrics/prom", metrics.PrometheusHandler(collector))

	srv := &http.Server{Addr: cfg.Server.Addr, Handler: mux}
	go func() {
		log.Printf("[DESCENT-SERVER] HTTP API & WS Server listening on %s", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	log.Println("[DESCENT-SERVER] Server running. Press Ctrl+C to exit.")

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("[DESCENT-SERVER] Shutting down...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLogger.Errorf("HTTP shutdown: %v", err)
	}
	// Close the running flight so the flight book does not keep it IN_FLIGHT.
	descent.Submit(engine.Command{Type: engine.CommandStop})
	deadline := time.Now().Add(time.Second)
	for descent.State().IsSimulating && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	descent.Stop()
	cancel()

	if err := book.Save(); err != nil {
		appLogger.Errorf("record book: %v", err)
	}

	tickBudgetMs := cfg.Physics.FixedDelta / cfg.Server.TimeScale * 1000
	rec := config.Analyze(collector.Snapshot(), tickBudgetMs)
	for _, note := range rec.Notes {
		appLogger.Info("Tuning: " + note)
	}
	if len(rec.Notes) > 0 {
		tuned := config.ApplyRecommendations(&cfg.Runtime, rec)
		appLogger.Infof("Suggested runtime: commandBuffer=%d broadcastBuffer=%d clientSendBuffer=%d dbMaxOpenConns=%d",
			tuned.CommandBuffer, tuned.BroadcastBuffer, tuned.ClientSendBuffer, tuned.DBMaxOpenConns)
	}
}
