package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"
	"github.com/utec/campusdesk/internal/db"
	"github.com/utec/campusdesk/internal/desk"
	"github.com/utec/campusdesk/internal/gateway"
	"github.com/utec/campusdesk/internal/handlers"
	"github.com/utec/campusdesk/internal/repository"
	"github.com/utec/campusdesk/internal/ws"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Escritorio en vivo con espejo HTTP local",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context())
		},
	}
}

func serve(parent context.Context) error {
	if cfg.Production() {
		gin.SetMode(gin.ReleaseMode)
	}
	ctx, cancel := signal.NotifyContext(orBackground(parent), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// ── Conexiones ────────────────────────────────────────────────────────────
	redisClient, err := db.NewRedis(cfg)
	if err != nil {
		return err
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	opts := desk.Options{Capacity: cfg.Notification.Capacity}
	if cfg.DB.Enabled {
		postgres, err := db.NewPostgres(cfg)
		if err != nil {
			return err
		}
		defer postgres.Close()
		journal := repository.NewJournalRepo(postgres)
		if err := journal.Migrate(ctx); err != nil {
			return fmt.Errorf("migrando journal: %w", err)
		}
		opts.Journal = journal
	}

	// ── Hub de visores ────────────────────────────────────────────────────────
	hub := ws.NewHub(redisClient, cfg, slog.Default())
	go hub.Run(ctx)
	opts.Publisher = hub

	// ── Sesión y canal push ───────────────────────────────────────────────────
	client := newClient(cfg)
	sess, err := openSession(ctx, cfg, client)
	if err != nil {
		return err
	}
	opts.Push = func(token string, onMessage func([]byte), onState func(gateway.StateChange)) desk.PushRunner {
		return &gateway.PushChannel{
			URL:            cfg.WS.URL,
			Token:          token,
			Dialer:         &websocket.Dialer{HandshakeTimeout: cfg.API.Timeout},
			MaxMessageSize: cfg.WS.MaxMessageSize,
			PongWait:       cfg.WS.PongWait,
			BackoffMax:     cfg.WS.ReconnectMax,
			OnMessage:      onMessage,
			OnState:        onState,
		}
	}

	d := desk.New(sess, client, opts)
	if err := d.Start(ctx); err != nil {
		return err
	}
	defer d.Stop()
	slog.Info("sesión iniciada", "usuario", sess.User.UserID, "rol", sess.User.Role, "incidentes", len(d.Store().Incidents()))

	// ── Espejo HTTP ───────────────────────────────────────────────────────────
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.MirrorPort),
		Handler:      handlers.NewRouter(d, hub),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("espejo local escuchando", "puerto", cfg.MirrorPort)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("servidor: %w", err)
	case <-ctx.Done():
	}

	slog.Info("apagando escritorio")
	shutCtx, shutCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutCancel()
	if err := srv.Shutdown(shutCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func orBackground(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}
