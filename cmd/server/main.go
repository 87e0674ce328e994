package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/sealedbook/risk-engine/internal/book"
	"github.com/sealedbook/risk-engine/internal/fhe"
	"github.com/sealedbook/risk-engine/internal/metrics"
	"github.com/sealedbook/risk-engine/internal/model"
	"github.com/sealedbook/risk-engine/internal/oracle"
	"github.com/sealedbook/risk-engine/internal/store"
)

func main() {
	_ = godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	// --- Initialize store ---
	var st store.Store
	var cleanup []func()

	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		pool, err := pgxpool.New(context.Background(), dbURL)
		if err != nil {
			slog.Error("database connection failed", "err", err)
			os.Exit(1)
		}
		cleanup = append(cleanup, pool.Close)
		pg := store.NewPostgresStore(pool)
		if err := pg.InitSchema(context.Background()); err != nil {
			slog.Error("schema initialization failed", "err", err)
			os.Exit(1)
		}
		st = pg
		slog.Info("connected to PostgreSQL")

		// Wrap with Redis read-through cache if configured.
		if redisURL := os.Getenv("REDIS_URL"); redisURL != "" {
			opt, err := redis.ParseURL(redisURL)
			if err != nil {
				slog.Error("invalid REDIS_URL", "err", err)
				os.Exit(1)
			}
			rdb := redis.NewClient(opt)
			cleanup = append(cleanup, func() { rdb.Close() })
			st = store.NewCachedStore(st, rdb, 30*time.Second)
			slog.Info("Redis cache enabled")
		}
	} else {
		slog.Warn("DATABASE_URL not set, using in-memory store (data will not persist)")
		st = store.NewMemoryStore()
	}

	defer func() {
		for _, fn := range cleanup {
			fn()
		}
	}()

	// --- Homomorphic engine ---
	// The simulator stands in for the external scheme; a production
	// deployment swaps in a client for the real engine here.
	engine := fhe.NewSimulator()

	// --- Event hub ---
	hub := book.NewHub()
	go hub.Run()

	// --- Registry + decryption coordinator ---
	svc := book.NewService(st, engine, hub)

	if ttl := envDuration("PENDING_TTL", 0); ttl > 0 {
		svc.SetPendingTTL(ttl)
		slog.Info("stale pending requests will be superseded", "ttl", ttl.String())
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// --- Decryption oracle ---
	// Local mode drives the simulator's request queue; external mode
	// expects callbacks on POST /api/v1/oracle/callback.
	if os.Getenv("ORACLE_MODE") != "external" {
		delay := envDuration("ORACLE_DELAY", 2*time.Second)
		go oracle.NewLocal(engine, svc, delay).Run(ctx)
		slog.Info("local decryption oracle running", "delay", delay.String())
	}

	// --- HTTP router ---
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(metrics.Middleware)

	// CORS middleware for frontend cross-origin requests.
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok","service":"risk-engine"}`))
	})

	// Prometheus metrics endpoint.
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		// WebSocket endpoint for the submission/reveal event stream.
		r.Get("/ws", hub.HandleWS)

		// Order-book submission and queries.
		r.Get("/orderbooks", svc.HandleList)
		r.Post("/orderbooks", svc.HandleSubmit)
		r.Get("/orderbooks/{exchangeID}", svc.HandleGetOrderBook)
		r.Get("/orderbooks/{exchangeID}/assessment", svc.HandleGetAssessment)
		r.Get("/orderbooks/{exchangeID}/decrypted", svc.HandleGetDecrypted)

		// Reveal workflow.
		r.Post("/orderbooks/{exchangeID}/reveal", svc.HandleRequestReveal)
		r.Post("/oracle/callback", svc.HandleOracleCallback)

		// Dev helper: encrypt a value through the simulator so callers can
		// build ciphertext submissions without a client-side engine.
		r.Post("/encrypt", func(w http.ResponseWriter, r *http.Request) {
			var req struct {
				Value int64 `json:"value"`
			}
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(map[string]model.Handle{"handle": engine.Encrypt(req.Value)})
		})
	})

	// --- Server ---
	srv := &http.Server{
		Addr:         ":" + port,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("risk-engine listening", "port", port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "err", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	slog.Info("shutting down risk-engine...")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
	}
	fmt.Println("risk-engine stopped")
}

// envDuration reads a duration from the environment, falling back to def.
func envDuration(key string, def time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		slog.Warn("invalid duration, using default", "key", key, "value", raw)
		return def
	}
	return d
}
