package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/utec/campusdesk/internal/db"
	"github.com/utec/campusdesk/internal/desk"
	"github.com/utec/campusdesk/internal/gateway"
	"github.com/utec/campusdesk/internal/models"
	"github.com/utec/campusdesk/internal/repository"
	"github.com/utec/campusdesk/internal/store"
	"github.com/utec/campusdesk/internal/workflow"
)

func loginCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "login",
		Short: "Autenticarse e imprimir el token para DESK_TOKEN",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := newClient(cfg)
			sess, err := openSession(cmd.Context(), cfg, client)
			if err != nil {
				return err
			}
			if jsonOut {
				return printJSON(map[string]any{"token": sess.Token, "user": sess.User})
			}
			fmt.Printf("%s (%s)\n%s\n", sess.User.Name, sess.User.Role.Label(), sess.Token)
			return nil
		},
	}
}

func registerCmd() *cobra.Command {
	var req gateway.RegisterRequest
	var role string
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Crear una cuenta en el backend",
		RunE: func(cmd *cobra.Command, args []string) error {
			req.Role = models.Role(role)
			if !req.Role.Valid() {
				return fmt.Errorf("rol inválido %q", role)
			}
			if err := newClient(cfg).Register(cmd.Context(), req); err != nil {
				return err
			}
			fmt.Println("Registro exitoso. Por favor inicia sesión.")
			return nil
		},
	}
	cmd.Flags().StringVar(&req.Email, "email", "", "correo institucional")
	cmd.Flags().StringVar(&req.Password, "password", "", "contraseña")
	cmd.Flags().StringVar(&req.Name, "name", "", "nombre completo")
	cmd.Flags().StringVar(&role, "role", string(models.RoleStudent), "alumno, worker o admin")
	cmd.Flags().StringVar(&req.Phone, "phone", "", "teléfono")
	cmd.Flags().StringVar(&req.StudentCode, "student-code", "", "código de alumno")
	cmd.Flags().StringVar(&req.Specialty, "specialty", "", "especialidad (worker)")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func incidentsCmd() *cobra.Command {
	var f models.Filters
	var status, priority string
	cmd := &cobra.Command{
		Use:   "incidents",
		Short: "Listar incidentes visibles para la sesión",
		RunE: func(cmd *cobra.Command, args []string) error {
			f.Status = models.Status(status)
			f.Priority = models.Priority(priority)
			return withDesk(cmd.Context(), func(ctx context.Context, d *desk.Desk) error {
				list := store.Filter(d.Store().Incidents(), f)
				if jsonOut {
					return printJSON(list)
				}
				renderIncidents(list)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "pending, assigned, in_progress, resolved, closed")
	cmd.Flags().StringVar(&priority, "priority", "", "low, medium, high, urgent")
	cmd.Flags().StringVar(&f.Category, "category", "", "categoría")
	cmd.Flags().StringVar(&f.Search, "search", "", "texto en título o descripción")
	return cmd
}

func showCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Ver el detalle de un incidente",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDesk(cmd.Context(), func(ctx context.Context, d *desk.Desk) error {
				inc, ok := d.OpenDetail(args[0])
				if !ok {
					return fmt.Errorf("incidente %s no encontrado", args[0])
				}
				if jsonOut {
					return printJSON(inc)
				}
				renderDetail(inc)
				return nil
			})
		},
	}
}

func createCmd() *cobra.Command {
	var req models.CreateIncidentRequest
	var priority string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Reportar un incidente",
		RunE: func(cmd *cobra.Command, args []string) error {
			req.Priority = models.Priority(priority)
			return withDesk(cmd.Context(), func(ctx context.Context, d *desk.Desk) error {
				inc, err := d.CreateIncident(ctx, req)
				if err != nil {
					return err
				}
				return printResult(inc)
			})
		},
	}
	cmd.Flags().StringVar(&req.Title, "title", "", "título")
	cmd.Flags().StringVar(&req.Description, "description", "", "descripción")
	cmd.Flags().StringVar(&req.Category, "category", models.CategoryOther, "categoría")
	cmd.Flags().StringVar(&priority, "priority", string(models.PriorityMedium), "low, medium, high, urgent")
	cmd.Flags().StringVar(&req.Location.Building, "building", "", "edificio")
	cmd.Flags().IntVar(&req.Location.Floor, "floor", 0, "piso")
	cmd.Flags().StringVar(&req.Location.Room, "room", "", "ambiente")
	cmd.Flags().StringSliceVar(&req.Images, "image", nil, "URL de imagen (repetible)")
	_ = cmd.MarkFlagRequired("title")
	_ = cmd.MarkFlagRequired("description")
	return cmd
}

func advanceCmd() *cobra.Command {
	var comment, to string
	cmd := &cobra.Command{
		Use:   "advance <id>",
		Short: "Pasar un incidente al siguiente estado",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDesk(cmd.Context(), func(ctx context.Context, d *desk.Desk) error {
				var (
					inc models.Incident
					err error
				)
				if to != "" {
					inc, err = d.UpdateStatus(ctx, args[0], models.Status(to), comment)
				} else {
					inc, err = d.AdvanceStatus(ctx, args[0], comment)
				}
				if err != nil {
					return err
				}
				return printResult(inc)
			})
		},
	}
	cmd.Flags().StringVarP(&comment, "comment", "m", "", "comentario obligatorio")
	cmd.Flags().StringVar(&to, "to", "", "estado destino explícito")
	return cmd
}

func assignCmd() *cobra.Command {
	var worker string
	cmd := &cobra.Command{
		Use:   "assign <id>",
		Short: "Asignar un trabajador (solo admin)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDesk(cmd.Context(), func(ctx context.Context, d *desk.Desk) error {
				inc, err := d.Assign(ctx, args[0], worker)
				if err != nil {
					return err
				}
				return printResult(inc)
			})
		},
	}
	cmd.Flags().StringVar(&worker, "worker", "", "userId del trabajador")
	_ = cmd.MarkFlagRequired("worker")
	return cmd
}

func workersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "workers",
		Short: "Trabajadores por disponibilidad y carga (solo admin)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDesk(cmd.Context(), func(ctx context.Context, d *desk.Desk) error {
				if d.Session().User.Role != models.RoleAdmin {
					return errors.New("solo un administrador ve la lista de trabajadores")
				}
				workers := d.Store().Workers()
				if jsonOut {
					return printJSON(workers)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Nombre", "Especialidad", "Estado", "Carga", "Activos"})
				for _, w := range workers {
					tw.AppendRow(table.Row{w.UserID, w.Name, w.Specialty, w.Status,
						fmt.Sprintf("%d/%d", w.WorkloadPoints, w.MaxWorkloadPoints), w.ActiveIncidents})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Contadores del tablero",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDesk(cmd.Context(), func(ctx context.Context, d *desk.Desk) error {
				st := d.Store().Stats()
				if jsonOut {
					return printJSON(st)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Pendientes", "En Progreso", "Resueltos", "Urgentes"})
				tw.AppendRow(table.Row{st.Pending, st.InProgress, st.Resolved, st.Urgent})
				tw.Render()
				return nil
			})
		},
	}
}

func journalCmd() *cobra.Command {
	var entity string
	var limit int
	var notifications bool
	cmd := &cobra.Command{
		Use:   "journal",
		Short: "Últimos sobres o avisos registrados en el journal",
		RunE: func(cmd *cobra.Command, args []string) error {
			conn, err := db.NewPostgres(cfg)
			if err != nil {
				return err
			}
			defer conn.Close()
			repo := repository.NewJournalRepo(conn)
			if notifications {
				return printNotifications(cmd, repo, limit)
			}
			records, err := repo.RecentEnvelopes(cmd.Context(), entity, limit)
			if err != nil {
				return err
			}
			if jsonOut {
				return printJSON(records)
			}
			tw := table.NewWriter()
			tw.SetOutputMirror(os.Stdout)
			tw.AppendHeader(table.Row{"#", "Tipo", "Entidad", "Recibido"})
			for _, r := range records {
				tw.AppendRow(table.Row{r.ID, r.Type, r.EntityID, r.ReceivedAt.Local().Format(time.DateTime)})
			}
			tw.Render()
			return nil
		},
	}
	cmd.Flags().StringVar(&entity, "entity", "", "filtrar por id de incidente o trabajador")
	cmd.Flags().IntVar(&limit, "limit", 50, "máximo de filas")
	cmd.Flags().BoolVar(&notifications, "notifications", false, "listar avisos en vez de sobres")
	return cmd
}

func printNotifications(cmd *cobra.Command, repo *repository.JournalRepo, limit int) error {
	list, err := repo.RecentNotifications(cmd.Context(), limit)
	if err != nil {
		return err
	}
	if jsonOut {
		return printJSON(list)
	}
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(table.Row{"Nivel", "Mensaje", "Entidad", "Creado"})
	for _, n := range list {
		tw.AppendRow(table.Row{n.Level, n.Message, n.EntityID, time.UnixMilli(n.CreatedAt).Local().Format(time.DateTime)})
	}
	tw.Render()
	return nil
}

// ─── render ───────────────────────────────────────────────────────────────────

func renderIncidents(list []models.Incident) {
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(table.Row{"ID", "Título", "Categoría", "Prioridad", "Estado", "Asignado"})
	for _, inc := range list {
		assignee := ""
		if inc.AssignedTo != nil {
			assignee = inc.AssignedTo.DisplayName()
		}
		tw.AppendRow(table.Row{inc.IncidentID, inc.Title, inc.Category,
			workflow.PriorityLabel(inc.Priority), workflow.Label(inc.Status), assignee})
	}
	tw.AppendFooter(table.Row{"", "", "", "", "Total", len(list)})
	tw.Render()
}

func renderDetail(inc models.Incident) {
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendRows([]table.Row{
		{"ID", inc.IncidentID},
		{"Título", inc.Title},
		{"Descripción", inc.Description},
		{"Categoría", inc.Category},
		{"Prioridad", workflow.PriorityLabel(inc.Priority)},
		{"Estado", workflow.Label(inc.Status)},
		{"Ubicación", strings.TrimSpace(fmt.Sprintf("%s piso %d %s", inc.Location.Building, inc.Location.Floor, inc.Location.Room))},
		{"Reportado por", inc.ReportedBy.DisplayName()},
	})
	if inc.AssignedTo != nil {
		tw.AppendRow(table.Row{"Asignado a", inc.AssignedTo.DisplayName()})
	}
	if workflow.CanAdvance(inc.Status) {
		tw.AppendRow(table.Row{"Siguiente", workflow.Label(workflow.Next(inc.Status))})
	}
	tw.Render()

	if len(inc.Comments) == 0 {
		return
	}
	ct := table.NewWriter()
	ct.SetOutputMirror(os.Stdout)
	ct.AppendHeader(table.Row{"Fecha", "Autor", "Comentario"})
	for _, c := range inc.Comments {
		ct.AppendRow(table.Row{time.UnixMilli(c.Timestamp).Local().Format(time.DateTime), c.AuthorName, c.Text})
	}
	ct.Render()
}

func printResult(inc models.Incident) error {
	if jsonOut {
		return printJSON(inc)
	}
	renderDetail(inc)
	return nil
}
