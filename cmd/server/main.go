package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/sohyunkim/geurim/backend/internal/api"
	"github.com/sohyunkim/geurim/backend/internal/board"
	"github.com/sohyunkim/geurim/backend/internal/metrics"
	"github.com/sohyunkim/geurim/backend/internal/posts"
	"github.com/sohyunkim/geurim/backend/internal/protocol"
	"github.com/sohyunkim/geurim/backend/internal/ws"
)

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Debug("no .env file found, using environment variables")
	}

	logger := newLogger(os.Getenv("LOG_LEVEL"))

	dataDir := getEnv("GEURIM_DATA_DIR", "./data")
	postStore, err := posts.New(filepath.Join(dataDir, "posts.json"))
	if err != nil {
		logger.Error("failed to initialize post store", "err", err)
		os.Exit(1)
	}

	rooms := board.NewStore()
	hub := ws.NewHub(logger)
	router := protocol.NewRouter(rooms, hub, logger)
	go hub.Run(router)

	apiHandler := api.New(hub, rooms, postStore, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		ws.ServeWs(hub, w, r)
	})
	mux.HandleFunc("/health", apiHandler.HealthHandler)
	mux.HandleFunc("/api/stats", apiHandler.StatsHandler)
	mux.HandleFunc("/api/posts", apiHandler.PostsRouter)
	mux.HandleFunc("/api/posts/", apiHandler.PostsRouter)
	mux.Handle("/metrics", metrics.Handler())

	port := getEnv("PORT", "8080")
	server := &http.Server{
		Addr:    ":" + port,
		Handler: corsMiddleware(mux),
	}

	go func() {
		logger.Info("geurim server starting", "port", port, "data_dir", dataDir)
		logger.Info("endpoints",
			"websocket", "/ws",
			"health", "GET /health",
			"stats", "GET /api/stats",
			"posts", "GET/POST /api/posts",
			"post", "GET/PUT/DELETE /api/posts/{id}",
			"metrics", "GET /metrics")
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "err", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("shutdown error", "err", err)
	}
}

func newLogger(level string) *slog.Logger {
	lvl := slog.LevelInfo
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
	slog.SetDefault(logger)
	return logger
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
