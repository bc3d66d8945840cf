// Package main wires the relay together: store, relay backend, hub, and
// the HTTP surface.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dkoval/wirechat/internal"
	"github.com/dkoval/wirechat/internal/config"
	"github.com/dkoval/wirechat/internal/handler"
	"github.com/dkoval/wirechat/internal/presence"
	"github.com/dkoval/wirechat/internal/relay"
	"github.com/dkoval/wirechat/internal/store"
	"github.com/dkoval/wirechat/internal/store/badgerstore"
	"github.com/dkoval/wirechat/internal/store/postgres"
	ws "github.com/dkoval/wirechat/internal/websocket"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	level := slog.LevelInfo
	if cfg.IsDevelopment() {
		level = slog.LevelDebug
	}
	log := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info("starting wirechat", "scope", cfg.Scope, "store", cfg.Store, "port", cfg.Port)

	st, err := openStore(ctx, cfg, log)
	if err != nil {
		log.Error("failed to open store", "error", err)
		os.Exit(1)
	}
	defer st.Close()

	rel, natsConn, err := openRelay(ctx, cfg, log)
	if err != nil {
		log.Error("failed to open relay", "error", err)
		os.Exit(1)
	}
	if natsConn != nil {
		defer func() {
			if err := natsConn.Drain(); err != nil {
				log.Warn("couldn't drain NATS conn", "error", err)
			}
		}()
	}

	hub := ws.NewHub(st, st, presence.NewRegistry(), rel, cfg.Scope, log)
	go hub.Run(ctx)

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Post("/auth/register", handler.Register(st))
		r.Post("/auth/login", handler.Login(st, cfg))
		r.Post("/auth/logout", handler.Logout())

		r.Method(http.MethodGet, "/messages",
			internal.Middleware(handler.ServeMessages(hub), cfg.JWTSecret))
		r.Method(http.MethodGet, "/users",
			internal.Middleware(handler.ServeUsers(st), cfg.JWTSecret))
	})

	r.Get("/ws", handler.ServeWS(hub, cfg))

	server := &http.Server{
		Addr:              "0.0.0.0:" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       30 * time.Second,
	}

	go func() {
		log.Info("server listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warn("server shutdown", "error", err)
	}

	log.Info("server stopped")
}

func openStore(ctx context.Context, cfg config.Config, log *slog.Logger) (store.Store, error) {
	switch cfg.Store {
	case config.DriverPostgres:
		return postgres.New(ctx, cfg.DBURL)
	default:
		return badgerstore.Open(cfg.BadgerPath, log)
	}
}

// openRelay picks the relay backend. With no NATS_URL the relay runs
// in-process; delivery then only reaches sessions on this instance.
func openRelay(ctx context.Context, cfg config.Config, log *slog.Logger) (relay.Relay, *nats.Conn, error) {
	if cfg.NATSURL == "" {
		return relay.NewLocal(log), nil, nil
	}

	var opts []nats.Option
	if cfg.NATSCred != "" {
		opts = append(opts, nats.UserCredentials(cfg.NATSCred))
	} else if cfg.NATSUser != "" && cfg.NATSPassword != "" {
		opts = append(opts, nats.UserInfo(cfg.NATSUser, cfg.NATSPassword))
	}
	opts = append(opts, nats.Timeout(5*time.Second))

	conn, err := nats.Connect(cfg.NATSURL, opts...)
	if err != nil {
		return nil, nil, err
	}

	js, err := jetstream.New(conn)
	if err != nil {
		conn.Close()
		return nil, nil, err
	}

	stream, err := relay.EnsureStream(ctx, js)
	if err != nil {
		conn.Close()
		return nil, nil, err
	}

	return relay.NewNATS(js, stream, log), conn, nil
}
