package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/pliu/palaver/internal/auth"
	"github.com/pliu/palaver/internal/chat"
	"github.com/pliu/palaver/internal/config"
	"github.com/pliu/palaver/internal/handlers"
	"github.com/pliu/palaver/internal/logger"
	"github.com/pliu/palaver/internal/middleware"
	"github.com/pliu/palaver/internal/store/sqlstore"
	"github.com/pliu/palaver/internal/ws"
	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"
)

func main() {
	app := &cli.App{
		Name:  "palaver",
		Usage: "Multi-user chat server",
		Commands: []*cli.Command{
			serverCmd(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}

func serverCmd() *cli.Command {
	return &cli.Command{
		Name:    "server",
		Aliases: []string{"s"},
		Usage:   "Run the chat server",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "config",
				Usage: "Path to the configuration file",
			},
		},
		Action: func(c *cli.Context) error {
			cfg, err := config.Load(c.String("config"))
			if err != nil {
				return err
			}
			return runServer(c.Context, cfg)
		},
	}
}

func runServer(ctx context.Context, cfg *config.Config) error {
	log := logger.Setup(cfg.Dev)

	st, err := sqlstore.New(cfg.DBDriver, cfg.DBDSN)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}

	manager, err := chat.NewManager(chat.Options{
		Store:          st,
		Logger:         log,
		SessionTTL:     cfg.SessionTTL,
		ReapInterval:   cfg.ReapInterval,
		IdleTimeout:    cfg.IdleTimeout,
		PipelineBuffer: cfg.PipelineBuffer,
	})
	if err != nil {
		st.Close()
		return fmt.Errorf("build chat manager: %w", err)
	}
	manager.Run(ctx)

	cookies := auth.NewCookieSigner([]byte(cfg.CookieKey))
	authHandler := &handlers.AuthHandler{Manager: manager, Cookies: cookies}
	chatHandler := &handlers.ChatHandler{Manager: manager}

	r := mux.NewRouter()
	r.Use(loggingMiddleware(log))

	r.HandleFunc("/signup", authHandler.Signup).Methods("POST")
	r.HandleFunc("/login", authHandler.Login).Methods("POST")

	authed := r.NewRoute().Subrouter()
	authed.Use(middleware.Session(manager, cookies))
	authed.HandleFunc("/logout", authHandler.Logout).Methods("POST")
	authed.HandleFunc("/messages", chatHandler.SendMessage).Methods("POST")
	authed.HandleFunc("/messages", chatHandler.GetHistory).Methods("GET")
	authed.HandleFunc("/users/active", chatHandler.GetActiveUsers).Methods("GET")
	authed.HandleFunc("/conversations", chatHandler.GetConversations).Methods("GET")
	authed.HandleFunc("/status", chatHandler.UpdateStatus).Methods("POST")

	r.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		ws.ServeWS(manager, log, w, r)
	})

	srv := &http.Server{Addr: cfg.Addr, Handler: r}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.Addr).Msg("server listening")
		errCh <- srv.ListenAndServe()
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case <-stop:
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("http shutdown")
	}
	return manager.Shutdown(shutdownCtx)
}

func loggingMiddleware(log zerolog.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			next.ServeHTTP(w, r)
			log.Debug().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Dur("duration", time.Since(start)).
				Msg("request")
		})
	}
}
