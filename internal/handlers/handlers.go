package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/utec/campusdesk/internal/desk"
	"github.com/utec/campusdesk/internal/gateway"
	"github.com/utec/campusdesk/internal/middleware"
	"github.com/utec/campusdesk/internal/models"
	"github.com/utec/campusdesk/internal/store"
	"github.com/utec/campusdesk/internal/workflow"
	"github.com/utec/campusdesk/internal/ws"
)

// NewRouter arma el espejo local sobre el escritorio de la sesión.
func NewRouter(d *desk.Desk, hub *ws.Hub) *gin.Engine {
	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())
	r.Use(cors.New(cors.Config{
		AllowOrigins:  []string{"*"},
		AllowMethods:  []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        12 * time.Hour,
	}))

	incH := NewIncidentHandler(d)
	deskH := NewDeskHandler(d)
	wsH := NewWSHandler(d, hub)

	r.GET("/health", deskH.Health)

	// WebSocket: auth por query param ?token=
	r.GET("/ws", wsH.Connect)

	api := r.Group("/api/v1")
	api.Use(middleware.Bearer(func() string { return d.Session().Token }))
	{
		api.GET("/incidents", incH.List)
		api.GET("/incidents/:id", incH.Get)
		api.POST("/incidents", incH.Create)
		api.PATCH("/incidents/:id", incH.UpdateStatus)
		api.POST("/incidents/:id/advance", incH.Advance)
		api.POST("/incidents/:id/assign", incH.Assign)

		api.PUT("/filters", deskH.SetFilters)
		api.GET("/workers", deskH.Workers)
		api.GET("/stats", deskH.Stats)

		api.PUT("/detail/:id", deskH.OpenDetail)
		api.GET("/detail", deskH.Detail)
		api.DELETE("/detail", deskH.CloseDetail)

		api.GET("/notifications", deskH.Notifications)
		api.DELETE("/notifications/:id", deskH.Dismiss)

		api.POST("/logout", deskH.Logout)
	}
	return r
}

// ─── Incidentes ───────────────────────────────────────────────────────────────

type IncidentHandler struct {
	desk *desk.Desk
}

func NewIncidentHandler(d *desk.Desk) *IncidentHandler { return &IncidentHandler{desk: d} }

// GET /api/v1/incidents?status&priority&category&search
// Sin query se usan los filtros activos del store.
func (h *IncidentHandler) List(c *gin.Context) {
	var f models.Filters
	if err := c.ShouldBindQuery(&f); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: err.Error()})
		return
	}
	st := h.desk.Store()
	if f.Empty() {
		c.JSON(http.StatusOK, st.Filtered())
		return
	}
	c.JSON(http.StatusOK, store.Filter(st.Incidents(), f))
}

// GET /api/v1/incidents/:id
func (h *IncidentHandler) Get(c *gin.Context) {
	inc, ok := h.desk.Store().Get(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, models.ErrorResponse{Error: "Incidente no encontrado"})
		return
	}
	c.JSON(http.StatusOK, inc)
}

// POST /api/v1/incidents
func (h *IncidentHandler) Create(c *gin.Context) {
	var req models.CreateIncidentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: err.Error()})
		return
	}
	inc, err := h.desk.CreateIncident(c.Request.Context(), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, inc)
}

// PATCH /api/v1/incidents/:id  {status, comment}
func (h *IncidentHandler) UpdateStatus(c *gin.Context) {
	var req models.UpdateIncidentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: err.Error()})
		return
	}
	inc, err := h.desk.UpdateStatus(c.Request.Context(), c.Param("id"), req.Status, req.Comment)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, inc)
}

// POST /api/v1/incidents/:id/advance  {comment}
func (h *IncidentHandler) Advance(c *gin.Context) {
	var req models.CommentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: err.Error()})
		return
	}
	inc, err := h.desk.AdvanceStatus(c.Request.Context(), c.Param("id"), req.Comment)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, inc)
}

// POST /api/v1/incidents/:id/assign  {workerId}
func (h *IncidentHandler) Assign(c *gin.Context) {
	var req models.AssignIncidentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: err.Error()})
		return
	}
	inc, err := h.desk.Assign(c.Request.Context(), c.Param("id"), req.WorkerID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, inc)
}

// ─── Escritorio ───────────────────────────────────────────────────────────────

type DeskHandler struct {
	desk *desk.Desk
}

func NewDeskHandler(d *desk.Desk) *DeskHandler { return &DeskHandler{desk: d} }

// GET /health
func (h *DeskHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"connected": h.desk.Connected(),
		"seeded":    h.desk.Store().Seeded(),
	})
}

// PUT /api/v1/filters
func (h *DeskHandler) SetFilters(c *gin.Context) {
	var f models.Filters
	if err := c.ShouldBindJSON(&f); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: err.Error()})
		return
	}
	h.desk.SetFilters(f)
	c.JSON(http.StatusOK, f)
}

// GET /api/v1/workers
func (h *DeskHandler) Workers(c *gin.Context) {
	c.JSON(http.StatusOK, h.desk.Store().Workers())
}

// GET /api/v1/stats
func (h *DeskHandler) Stats(c *gin.Context) {
	c.JSON(http.StatusOK, h.desk.Store().Stats())
}

// PUT /api/v1/detail/:id
func (h *DeskHandler) OpenDetail(c *gin.Context) {
	inc, ok := h.desk.OpenDetail(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, models.ErrorResponse{Error: "Incidente no encontrado"})
		return
	}
	c.JSON(http.StatusOK, inc)
}

// GET /api/v1/detail
func (h *DeskHandler) Detail(c *gin.Context) {
	inc, ok := h.desk.Store().Detail()
	if !ok {
		c.JSON(http.StatusNotFound, models.ErrorResponse{Error: "No hay detalle abierto"})
		return
	}
	c.JSON(http.StatusOK, inc)
}

// DELETE /api/v1/detail
func (h *DeskHandler) CloseDetail(c *gin.Context) {
	h.desk.CloseDetail()
	c.Status(http.StatusNoContent)
}

// GET /api/v1/notifications
func (h *DeskHandler) Notifications(c *gin.Context) {
	c.JSON(http.StatusOK, h.desk.Notifications().List())
}

// DELETE /api/v1/notifications/:id
func (h *DeskHandler) Dismiss(c *gin.Context) {
	if !h.desk.Dismiss(c.Param("id")) {
		c.JSON(http.StatusNotFound, models.ErrorResponse{Error: "Aviso no encontrado"})
		return
	}
	c.Status(http.StatusNoContent)
}

// POST /api/v1/logout
func (h *DeskHandler) Logout(c *gin.Context) {
	slog.Info("logout desde el espejo", "visor", middleware.GetViewer(c))
	h.desk.Logout()
	c.Status(http.StatusNoContent)
}

// ─── WebSocket ────────────────────────────────────────────────────────────────

type WSHandler struct {
	desk *desk.Desk
	hub  *ws.Hub
}

func NewWSHandler(d *desk.Desk, h *ws.Hub) *WSHandler {
	return &WSHandler{desk: d, hub: h}
}

// GET /ws?token=...
func (h *WSHandler) Connect(c *gin.Context) {
	tokenStr := c.Query("token")
	if tokenStr == "" {
		c.JSON(http.StatusUnauthorized, models.ErrorResponse{Error: "Token requerido como query param: ?token=..."})
		return
	}
	if !middleware.Matches(h.desk.Session().Token, tokenStr) {
		c.JSON(http.StatusUnauthorized, models.ErrorResponse{Error: "Token inválido"})
		return
	}
	h.hub.HandleConnection(c.Writer, c.Request, c.ClientIP())
}

// ─── errores ──────────────────────────────────────────────────────────────────

// writeError traduce los errores del escritorio a HTTP.
func writeError(c *gin.Context, err error) {
	var ve *workflow.ValidationError
	var ge *gateway.GatewayError
	switch {
	case errors.As(err, &ve):
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: ve.Error()})
	case errors.As(err, &ge) && ge.StatusCode >= 400 && ge.StatusCode < 500:
		c.JSON(ge.StatusCode, models.ErrorResponse{Error: ge.Message, Code: ge.StatusCode})
	default:
		slog.Warn("mutación fallida", "visor", middleware.GetViewer(c), "ruta", c.FullPath(), "error", err)
		c.JSON(http.StatusBadGateway, models.ErrorResponse{Error: err.Error()})
	}
}
