package desk

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/utec/campusdesk/internal/auth"
	"github.com/utec/campusdesk/internal/events"
	"github.com/utec/campusdesk/internal/gateway"
	"github.com/utec/campusdesk/internal/models"
	"github.com/utec/campusdesk/internal/notify"
	"github.com/utec/campusdesk/internal/store"
	"github.com/utec/campusdesk/internal/workflow"
)

// ─── Colaboradores ────────────────────────────────────────────────────────────

// Gateway es la parte de la API REST que usa el escritorio.
type Gateway interface {
	ListIncidents(ctx context.Context, q models.ListQuery) ([]models.Incident, error)
	GetIncident(ctx context.Context, id string) (models.Incident, error)
	CreateIncident(ctx context.Context, req models.CreateIncidentRequest) (models.Incident, error)
	UpdateIncident(ctx context.Context, id string, req models.UpdateIncidentRequest) error
	AssignIncident(ctx context.Context, id, workerID string) error
	ListWorkers(ctx context.Context, q models.WorkerQuery) ([]models.Worker, error)
}

// Publisher reenvía lo reconciliado a los visores del espejo local.
type Publisher interface {
	PublishEnvelope(ctx context.Context, env models.Envelope) error
	PublishNotification(ctx context.Context, n models.Notification) error
}

// Journal persiste sobres y avisos para auditoría.
type Journal interface {
	RecordEnvelope(ctx context.Context, env models.Envelope) error
	RecordNotification(ctx context.Context, n models.Notification) error
}

// PushRunner es el canal push ya configurado; Run bloquea hasta ctx.Done.
type PushRunner interface {
	Run(ctx context.Context) error
}

// PushFactory arma el canal push con los callbacks del escritorio.
type PushFactory func(token string, onMessage func([]byte), onState func(gateway.StateChange)) PushRunner

// ─── Sesión ───────────────────────────────────────────────────────────────────

type Session struct {
	Token string
	User  models.User
}

func (s Session) Viewer() models.Viewer { return s.User.Viewer() }

// SessionFromToken arma la sesión leyendo los claims del JWT.
func SessionFromToken(token string) (Session, error) {
	claims, err := auth.ParseClaims(token)
	if err != nil {
		return Session{}, fmt.Errorf("token de sesión: %w", err)
	}
	return Session{Token: token, User: models.User{
		UserID: claims.UserID,
		Email:  claims.Email,
		Role:   claims.Role,
	}}, nil
}

// ─── Desk ─────────────────────────────────────────────────────────────────────
// Desk une el canal push, el reconciliador, el store y los avisos de una
// sesión. Los sobres se procesan de a uno, en orden de llegada.

type Desk struct {
	session Session
	api     Gateway
	store   *store.Store
	queue   *notify.Queue

	pub     Publisher
	journal Journal
	push    PushFactory
	log     *slog.Logger
	now     func() time.Time

	handleMu   sync.Mutex
	dispatcher *events.Dispatcher

	mu         sync.Mutex
	connected  bool
	cancelPush context.CancelFunc
	pushDone   chan struct{}
}

type Options struct {
	Publisher Publisher
	Journal   Journal
	Push      PushFactory
	Capacity  int
	Log       *slog.Logger
	Now       func() time.Time
}

func New(session Session, api Gateway, opts Options) *Desk {
	d := &Desk{
		session: session,
		api:     api,
		store:   store.New(),
		queue:   notify.NewQueue(opts.Capacity),
		pub:     opts.Publisher,
		journal: opts.Journal,
		push:    opts.Push,
		log:     opts.Log,
		now:     opts.Now,
	}
	if d.log == nil {
		d.log = slog.Default()
	}
	if d.now == nil {
		d.now = time.Now
	}
	d.dispatcher = &events.Dispatcher{Handle: d.apply, Log: d.log}
	return d
}

func (d *Desk) Session() Session {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.session
}
func (d *Desk) Store() *store.Store { return d.store }
func (d *Desk) Notifications() *notify.Queue { return d.queue }

func (d *Desk) Connected() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.connected
}

// Start hace el fetch inicial y luego abre el canal push en segundo plano.
// Con un token vencido no se conecta nada.
func (d *Desk) Start(ctx context.Context) error {
	sess := d.Session()
	if err := auth.CheckUsable(sess.Token, d.now()); err != nil {
		d.notifyLocal(ctx, models.LevelWarning, "Tu sesión expiró, vuelve a iniciar sesión")
		return fmt.Errorf("sesión: %w", err)
	}
	if err := d.Refresh(ctx); err != nil {
		return err
	}
	if d.push == nil {
		return nil
	}

	pctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	runner := d.push(sess.Token, d.HandleMessage, func(s gateway.StateChange) { d.onState(pctx, s) })

	d.mu.Lock()
	d.cancelPush = cancel
	d.pushDone = done
	d.mu.Unlock()

	go func() {
		defer close(done)
		runner.Run(pctx)
	}()
	return nil
}

// Refresh es el fetch masivo: incidentes según el rol y, para admin,
// trabajadores por carga ascendente. Falla solo si fallan los incidentes.
func (d *Desk) Refresh(ctx context.Context) error {
	user := d.Session().User
	q := models.ListQuery{}
	if user.Role == models.RoleWorker {
		q.AssignedTo = user.UserID
	}
	err := d.store.Seed(ctx, func(ctx context.Context) ([]models.Incident, error) {
		return d.api.ListIncidents(ctx, q)
	})
	if err != nil {
		d.log.Error("error al cargar incidentes", "error", err)
		d.notifyLocal(ctx, models.LevelError, "Error al cargar datos")
		return err
	}

	if user.Role == models.RoleAdmin {
		workers, err := d.api.ListWorkers(ctx, models.WorkerQuery{SortBy: "workload", Order: "asc"})
		if err != nil {
			d.log.Warn("error al cargar trabajadores", "error", err)
		} else {
			d.store.ReplaceWorkers(workers)
		}
	}
	return nil
}

// HandleMessage recibe un frame crudo del canal push.
func (d *Desk) HandleMessage(raw []byte) {
	d.handleMu.Lock()
	defer d.handleMu.Unlock()
	d.dispatcher.Dispatch(raw)
}

// Dropped cuenta frames descartados por el decodificador.
func (d *Desk) Dropped() int {
	d.handleMu.Lock()
	defer d.handleMu.Unlock()
	return d.dispatcher.Dropped()
}

func (d *Desk) apply(env models.Envelope) {
	ctx := context.Background()
	if ch := d.store.Apply(env); !ch.Applied {
		d.log.Debug("sobre viejo descartado", "tipo", env.Type, "id", env.EntityID())
		return
	}

	if d.pub != nil {
		if err := d.pub.PublishEnvelope(ctx, env); err != nil {
			d.log.Warn("no se pudo publicar el sobre", "tipo", env.Type, "error", err)
		}
	}
	if d.journal != nil {
		if err := d.journal.RecordEnvelope(ctx, env); err != nil {
			d.log.Warn("no se pudo registrar el sobre", "tipo", env.Type, "error", err)
		}
	}

	n, ok := notify.Notify(env, d.Session().Viewer())
	if !ok {
		d.log.Debug("sobre sin aviso", "tipo", env.Type, "id", env.EntityID())
		return
	}
	d.emit(ctx, d.queue.Push(n))
}

func (d *Desk) onState(ctx context.Context, s gateway.StateChange) {
	d.mu.Lock()
	d.connected = s.Connected
	d.mu.Unlock()

	if !s.Connected {
		return
	}
	d.log.Info("canal push conectado", "reconexion", s.Reconnect)
	// Sin replay: lo perdido durante la caída se recupera con un fetch completo.
	if s.Reconnect {
		if err := d.Refresh(ctx); err != nil {
			d.log.Warn("refetch tras reconexión falló", "error", err)
		}
	}
}

// ─── Mutaciones locales ───────────────────────────────────────────────────────

func (d *Desk) CreateIncident(ctx context.Context, req models.CreateIncidentRequest) (models.Incident, error) {
	if err := validateCreate(req); err != nil {
		return models.Incident{}, err
	}
	inc, err := d.api.CreateIncident(ctx, req)
	if err != nil {
		d.failed(ctx, "Error al crear incidente", err)
		return models.Incident{}, err
	}
	d.store.ApplyMutation(inc)
	d.notifyLocal(ctx, models.LevelSuccess, "Incidente creado exitosamente")
	return inc, nil
}

// AdvanceStatus lleva el incidente al siguiente estado del flujo.
func (d *Desk) AdvanceStatus(ctx context.Context, id, comment string) (models.Incident, error) {
	cur, ok := d.store.Get(id)
	if !ok {
		return models.Incident{}, &workflow.ValidationError{Field: "incidentId", Reason: "incidente no encontrado: " + id}
	}
	target, err := workflow.ValidateTransition(cur.Status, comment)
	if err != nil {
		return models.Incident{}, err
	}
	return d.update(ctx, id, target, comment)
}

// UpdateStatus acepta un destino explícito (el mismo estado o el siguiente).
func (d *Desk) UpdateStatus(ctx context.Context, id string, target models.Status, comment string) (models.Incident, error) {
	cur, ok := d.store.Get(id)
	if !ok {
		return models.Incident{}, &workflow.ValidationError{Field: "incidentId", Reason: "incidente no encontrado: " + id}
	}
	if err := workflow.ValidateStatusChange(cur.Status, target, comment); err != nil {
		return models.Incident{}, err
	}
	return d.update(ctx, id, target, comment)
}

func (d *Desk) update(ctx context.Context, id string, target models.Status, comment string) (models.Incident, error) {
	req := models.UpdateIncidentRequest{Status: target, Comment: strings.TrimSpace(comment)}
	if err := d.api.UpdateIncident(ctx, id, req); err != nil {
		d.failed(ctx, "Error al actualizar incidente", err)
		return models.Incident{}, err
	}
	d.notifyLocal(ctx, models.LevelSuccess, "Incidente actualizado")
	return d.refetchOne(ctx, id)
}

func (d *Desk) Assign(ctx context.Context, id, workerID string) (models.Incident, error) {
	if strings.TrimSpace(workerID) == "" {
		return models.Incident{}, &workflow.ValidationError{Field: "workerId", Reason: "debes elegir un trabajador"}
	}
	if d.Session().User.Role != models.RoleAdmin {
		return models.Incident{}, &workflow.ValidationError{Field: "role", Reason: "solo un administrador puede asignar"}
	}
	if err := d.api.AssignIncident(ctx, id, workerID); err != nil {
		d.failed(ctx, "Error al asignar trabajador", err)
		return models.Incident{}, err
	}
	d.notifyLocal(ctx, models.LevelSuccess, "Trabajador asignado exitosamente")
	return d.refetchOne(ctx, id)
}

// refetchOne trae el snapshot autoritativo tras un ack sin cuerpo. Si falla,
// la mutación igual se considera hecha: el sobre push o el próximo fetch
// traerán el estado.
func (d *Desk) refetchOne(ctx context.Context, id string) (models.Incident, error) {
	inc, err := d.api.GetIncident(ctx, id)
	if err != nil {
		d.log.Warn("no se pudo releer el incidente", "id", id, "error", err)
		cur, _ := d.store.Get(id)
		return cur, nil
	}
	d.store.ApplyMutation(inc)
	return inc, nil
}

// ─── Detalle y logout ─────────────────────────────────────────────────────────

func (d *Desk) OpenDetail(id string) (models.Incident, bool) { return d.store.OpenDetail(id) }

func (d *Desk) CloseDetail() { d.store.CloseDetail() }

func (d *Desk) SetFilters(f models.Filters) { d.store.SetFilters(f) }

// Dismiss quita un aviso de la cola.
func (d *Desk) Dismiss(id string) bool { return d.queue.Dismiss(id) }

// Logout corta el canal push y limpia todo el estado de la sesión.
func (d *Desk) Logout() {
	d.Stop()
	d.store.Clear()
	d.queue.Clear()
	d.mu.Lock()
	d.session = Session{}
	d.mu.Unlock()
}

// Stop corta el canal push y espera que termine.
func (d *Desk) Stop() {
	d.mu.Lock()
	cancel, done := d.cancelPush, d.pushDone
	d.cancelPush, d.pushDone = nil, nil
	d.connected = false
	d.mu.Unlock()
	if cancel != nil {
		cancel()
		<-done
	}
}

// ─── internos ─────────────────────────────────────────────────────────────────

func (d *Desk) failed(ctx context.Context, fallback string, err error) {
	msg := fallback
	var ge *gateway.GatewayError
	if errors.As(err, &ge) && ge.StatusCode >= 400 && ge.StatusCode < 500 && ge.Message != "" {
		msg = ge.Message
	}
	d.log.Error(fallback, "error", err)
	d.notifyLocal(ctx, models.LevelError, msg)
}

func (d *Desk) notifyLocal(ctx context.Context, level models.Level, msg string) {
	d.emit(ctx, d.queue.Add(level, msg))
}

func (d *Desk) emit(ctx context.Context, n models.Notification) {
	if d.pub != nil {
		if err := d.pub.PublishNotification(ctx, n); err != nil {
			d.log.Warn("no se pudo publicar el aviso", "error", err)
		}
	}
	if d.journal != nil {
		if err := d.journal.RecordNotification(ctx, n); err != nil {
			d.log.Warn("no se pudo registrar el aviso", "error", err)
		}
	}
}

func validateCreate(req models.CreateIncidentRequest) error {
	switch {
	case strings.TrimSpace(req.Title) == "":
		return &workflow.ValidationError{Field: "title", Reason: "el título es obligatorio"}
	case strings.TrimSpace(req.Description) == "":
		return &workflow.ValidationError{Field: "description", Reason: "la descripción es obligatoria"}
	case req.Category == "":
		return &workflow.ValidationError{Field: "category", Reason: "la categoría es obligatoria"}
	case workflow.PriorityRank(req.Priority) == 0:
		return &workflow.ValidationError{Field: "priority", Reason: fmt.Sprintf("prioridad inválida %q", req.Priority)}
	}
	return nil
}
