package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"ecosweep.org/internal/auth"
	"ecosweep.org/internal/changelog"
	"ecosweep.org/internal/chat"
	"ecosweep.org/internal/event"
	"ecosweep.org/internal/httpapi"
	"ecosweep.org/internal/obs"
	"ecosweep.org/internal/scheduler"
	"ecosweep.org/internal/store"
	pgstore "ecosweep.org/internal/store/pg"
	"ecosweep.org/internal/user"
	"ecosweep.org/internal/zone"
)

var version = "0.3.0"

func main() {
	obs.Init()
	obs.InitBuildInfo(version, envOr("ECOSWEEP_COMMIT", "dev"))

	addr := envOr("ECOSWEEP_ADDR", ":8080")
	secret := os.Getenv("ECOSWEEP_AUTH_SECRET")
	if secret == "" {
		log.Fatal("ECOSWEEP_AUTH_SECRET is required")
	}
	tokens, err := auth.NewTokens([]byte(secret))
	if err != nil {
		log.Fatalf("auth: %v", err)
	}

	// Durable history when a DSN is configured, in-memory otherwise.
	var (
		db          *sql.DB
		chatStore   chat.Store      = chat.NewMemoryStore()
		changeStore changelog.Store = changelog.NewMemoryStore()
	)
	if dsn := os.Getenv("ECOSWEEP_PG_DSN"); dsn != "" {
		pg, err := pgstore.Open(dsn)
		if err != nil {
			log.Fatalf("open db: %v", err)
		}
		db = pg.DB()
		chatStore = pg.Chat()
		changeStore = pg.Changes()
	}

	users := user.NewService(store.NewMemory[user.User]())
	changeLog := changelog.NewLog(changeStore)

	// The zone service needs the event organizer and the event service needs
	// zones; the closure defers the lookup until both exist.
	var events *event.Service
	zones := zone.NewService(store.NewMemory[zone.Zone](),
		zone.WithOrganizerLookup(func(ctx context.Context, eventID string) (string, error) {
			return events.OrganizerOf(ctx, eventID)
		}),
	)

	eventOpts := []event.Option{}
	if d := envDuration("ECOSWEEP_CONFIRM_WINDOW"); d > 0 {
		eventOpts = append(eventOpts, event.WithConfirmWindow(d))
	}
	events = event.NewService(store.NewMemory[event.Event](), zones, changeLog, eventOpts...)

	chatSvc := chat.NewService(chatStore, events, chat.NewFanout())
	event.WithChatPurger(chatSvc)(events)
	event.WithAnnouncer(chatSvc)(events)

	schedOpts := []scheduler.Option{}
	if d := envDuration("ECOSWEEP_SWEEP_INTERVAL"); d > 0 {
		schedOpts = append(schedOpts, scheduler.WithInterval(d))
	}
	sched := scheduler.New(events, zones, schedOpts...)

	api := httpapi.New(httpapi.Deps{
		Users:  users,
		Zones:  zones,
		Events: events,
		Chat:   chatSvc,
		Log:    changeLog,
		Tokens: tokens,
		Ready:  httpapi.ReadyProbe{DB: db},
	}, version)

	srv := &http.Server{
		Addr:              addr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		// SSE chat streams stay open; no write timeout.
		IdleTimeout: 60 * time.Second,
	}

	ctx, cancel := context.WithCancel(context.Background())
	go sched.Run(ctx)

	log.Printf("Starting ecosweep-api %s on %s", version, addr)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	log.Println("Shutting down...")

	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = srv.Shutdown(shutdownCtx)
	if db != nil {
		_ = db.Close()
	}
	log.Println("Stopped")
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envDuration(key string) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return 0
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		log.Fatalf("%s: %v", key, err)
	}
	return d
}
