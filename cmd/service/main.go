package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/Lalka12235/TuneWave-sub000/internal/config"
	"github.com/Lalka12235/TuneWave-sub000/internal/playback"
	"github.com/Lalka12235/TuneWave-sub000/internal/provider"
	"github.com/Lalka12235/TuneWave-sub000/internal/queue"
	"github.com/Lalka12235/TuneWave-sub000/internal/realtime"
	"github.com/Lalka12235/TuneWave-sub000/internal/room"
	"github.com/Lalka12235/TuneWave-sub000/internal/server"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.FromEnv()
	if err != nil {
		log.Fatalf("tunewave: config: %v", err)
	}

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("tunewave: connect database: %v", err)
	}
	defer pool.Close()

	if err := room.AutoMigrate(ctx, pool); err != nil {
		log.Fatalf("tunewave: migrate: %v", err)
	}

	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		log.Fatalf("tunewave: invalid REDIS_URL: %v", err)
	}
	rdb := redis.NewClient(opt)
	defer rdb.Close()

	store := room.NewPostgresStore(pool)
	locks := room.NewLocker()
	sessions := provider.NewSpotifyFactory(provider.SpotifyConfig{
		ClientID:     cfg.SpotifyClientID,
		ClientSecret: cfg.SpotifyClientSecret,
	})

	hub := realtime.NewHub(rdb)
	go hub.Run(ctx)
	go hub.RunSubscriber(ctx)

	qm := queue.NewManager(store, locks, hub, sessions)
	coord := playback.NewCoordinator(store, locks, hub, sessions)
	sched := playback.NewScheduler(coord, qm, cfg.TickInterval, cfg.AdvanceThresholdMS, cfg.SweepParallelism)
	go sched.Run(ctx)

	srv := server.NewServer(store, coord, qm, hub)
	r := srv.Router(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Logger,
		middleware.Recoverer,
		middleware.Timeout(60*time.Second),
	)

	httpServer := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: r,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Printf("tunewave: shutdown: %v", err)
		}
	}()

	log.Printf("tunewave listening on :%s", cfg.Port)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("tunewave: %v", err)
	}
}
