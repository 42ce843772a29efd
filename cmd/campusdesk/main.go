package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/utec/campusdesk/config"
	"github.com/utec/campusdesk/internal/desk"
	"github.com/utec/campusdesk/internal/gateway"
)

var (
	jsonOut bool
	verbose bool
	cfg     *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "campusdesk",
	Short: "Cliente de incidentes del campus",
	Long: `campusdesk mantiene la lista de incidentes del campus sincronizada con el
backend: hace el fetch inicial, escucha el canal push y reconcilia cada sobre.

- serve: escritorio completo con espejo HTTP/WebSocket local.
- incidents, show, workers, stats: consultas puntuales.
- create, advance, assign: mutaciones vía REST.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		cfg = config.Load()
		setupLogging(cfg, verbose)
	},
}

func main() {
	rootCmd.PersistentFlags().BoolVar(&jsonOut, "json", false, "salida JSON")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "logs de depuración")

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(loginCmd())
	rootCmd.AddCommand(registerCmd())
	rootCmd.AddCommand(incidentsCmd())
	rootCmd.AddCommand(showCmd())
	rootCmd.AddCommand(createCmd())
	rootCmd.AddCommand(advanceCmd())
	rootCmd.AddCommand(assignCmd())
	rootCmd.AddCommand(workersCmd())
	rootCmd.AddCommand(statsCmd())
	rootCmd.AddCommand(journalCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func setupLogging(cfg *config.Config, verbose bool) {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}
	var h slog.Handler = slog.NewTextHandler(os.Stderr, opts)
	if cfg.Production() {
		h = slog.NewJSONHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(h))
}

// ─── Sesión ───────────────────────────────────────────────────────────────────

func newClient(cfg *config.Config) *gateway.Client {
	return gateway.New(cfg.API.BaseURL, cfg.API.Timeout)
}

// openSession usa DESK_TOKEN si trae claims; si no, se autentica con
// DESK_EMAIL y DESK_PASSWORD.
func openSession(ctx context.Context, cfg *config.Config, client *gateway.Client) (desk.Session, error) {
	if cfg.Desk.Token != "" {
		s, err := desk.SessionFromToken(cfg.Desk.Token)
		if err == nil {
			client.Token = s.Token
			return s, nil
		}
		slog.Warn("DESK_TOKEN sin claims legibles, se intenta login", "error", err)
	}
	if cfg.Desk.Email == "" || cfg.Desk.Password == "" {
		return desk.Session{}, errors.New("definir DESK_TOKEN o DESK_EMAIL y DESK_PASSWORD")
	}
	res, err := client.Authenticate(ctx, cfg.Desk.Email, cfg.Desk.Password)
	if err != nil {
		return desk.Session{}, err
	}
	client.Token = res.Token
	return desk.Session{Token: res.Token, User: res.User}, nil
}

// withDesk abre la sesión y hace el fetch masivo, sin canal push.
func withDesk(ctx context.Context, fn func(ctx context.Context, d *desk.Desk) error) error {
	client := newClient(cfg)
	sess, err := openSession(ctx, cfg, client)
	if err != nil {
		return err
	}
	d := desk.New(sess, client, desk.Options{Capacity: cfg.Notification.Capacity})
	if err := d.Start(ctx); err != nil {
		return err
	}
	defer d.Stop()
	return fn(ctx, d)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
