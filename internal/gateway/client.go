package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/utec/campusdesk/internal/models"
)

// Client habla con la API REST de incidentes.
type Client struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client
}

func New(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{BaseURL: baseURL, HTTPClient: &http.Client{Timeout: timeout}}
}

// GatewayError envuelve fallas de red y respuestas no-2xx.
type GatewayError struct {
	Op         string
	StatusCode int
	Message    string
	Err        error
}

func (e *GatewayError) Error() string {
	switch {
	case e.StatusCode != 0:
		return fmt.Sprintf("%s: status=%d %s", e.Op, e.StatusCode, e.Message)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return e.Op + ": " + e.Message
}

func (e *GatewayError) Unwrap() error { return e.Err }

// apiResponse es el sobre {success, message, data} del backend.
type apiResponse struct {
	Success *bool           `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// ─── Auth ─────────────────────────────────────────────────────────────────────

type AuthResult struct {
	Token string      `json:"token"`
	User  models.User `json:"user"`
}

func (c *Client) Authenticate(ctx context.Context, email, password string) (AuthResult, error) {
	var resp AuthResult
	err := c.do(ctx, "authenticate", http.MethodPost, "auth/login", map[string]string{
		"email":    email,
		"password": password,
	}, &resp)
	if err == nil && resp.Token == "" {
		err = &GatewayError{Op: "authenticate", Message: "respuesta sin token"}
	}
	return resp, err
}

type RegisterRequest struct {
	Email       string      `json:"email"`
	Password    string      `json:"password"`
	Name        string      `json:"name"`
	Role        models.Role `json:"role"`
	Phone       string      `json:"phone"`
	StudentCode string      `json:"studentCode,omitempty"`
	Faculty     string      `json:"faculty,omitempty"`
	Career      string      `json:"career,omitempty"`
	Specialty   string      `json:"specialty,omitempty"`
	Department  string      `json:"department,omitempty"`
}

func (c *Client) Register(ctx context.Context, req RegisterRequest) error {
	return c.do(ctx, "register", http.MethodPost, "auth/register", req, nil)
}

// ─── Incidentes ───────────────────────────────────────────────────────────────

func (c *Client) ListIncidents(ctx context.Context, q models.ListQuery) ([]models.Incident, error) {
	params := url.Values{}
	setIf(params, "status", string(q.Status))
	setIf(params, "priority", string(q.Priority))
	setIf(params, "category", q.Category)
	setIf(params, "assignedTo", q.AssignedTo)

	var resp struct {
		Incidents []models.Incident `json:"incidents"`
	}
	if err := c.do(ctx, "listIncidents", http.MethodGet, withQuery("incidents", params), nil, &resp); err != nil {
		return nil, err
	}
	if resp.Incidents == nil {
		resp.Incidents = []models.Incident{}
	}
	return resp.Incidents, nil
}

func (c *Client) GetIncident(ctx context.Context, id string) (models.Incident, error) {
	var inc models.Incident
	err := c.do(ctx, "getIncident", http.MethodGet, "incidents/"+url.PathEscape(id), nil, &inc)
	return inc, err
}

func (c *Client) CreateIncident(ctx context.Context, req models.CreateIncidentRequest) (models.Incident, error) {
	if req.Images == nil {
		req.Images = []string{}
	}
	var inc models.Incident
	err := c.do(ctx, "createIncident", http.MethodPost, "incidents", req, &inc)
	if err == nil && inc.IncidentID == "" {
		err = &GatewayError{Op: "createIncident", Message: "respuesta sin incidentId"}
	}
	return inc, err
}

// UpdateIncident solo devuelve ack; el snapshot hay que pedirlo aparte.
func (c *Client) UpdateIncident(ctx context.Context, id string, req models.UpdateIncidentRequest) error {
	return c.do(ctx, "updateIncident", http.MethodPut, "incidents/"+url.PathEscape(id), req, nil)
}

func (c *Client) AssignIncident(ctx context.Context, id, workerID string) error {
	return c.do(ctx, "assignIncident", http.MethodPost, "incidents/"+url.PathEscape(id)+"/assign",
		models.AssignIncidentRequest{WorkerID: workerID}, nil)
}

// ─── Trabajadores ─────────────────────────────────────────────────────────────

func (c *Client) ListWorkers(ctx context.Context, q models.WorkerQuery) ([]models.Worker, error) {
	params := url.Values{}
	setIf(params, "status", q.Status)
	setIf(params, "specialty", q.Specialty)
	setIf(params, "sortBy", q.SortBy)
	setIf(params, "order", q.Order)

	var resp struct {
		Workers []models.Worker `json:"workers"`
	}
	if err := c.do(ctx, "listWorkers", http.MethodGet, withQuery("workers", params), nil, &resp); err != nil {
		return nil, err
	}
	if resp.Workers == nil {
		resp.Workers = []models.Worker{}
	}
	return resp.Workers, nil
}

// ─── internos ─────────────────────────────────────────────────────────────────

func (c *Client) do(ctx context.Context, op, method, endpoint string, body any, out any) error {
	target := strings.TrimRight(c.BaseURL, "/") + "/" + strings.TrimLeft(endpoint, "/")

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return &GatewayError{Op: op, Err: err}
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, target, &buf)
	if err != nil {
		return &GatewayError{Op: op, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return &GatewayError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return &GatewayError{Op: op, StatusCode: resp.StatusCode, Err: err}
	}

	var envelope apiResponse
	decodeErr := json.Unmarshal(raw, &envelope)

	if resp.StatusCode >= 300 {
		msg := strings.TrimSpace(string(raw))
		if decodeErr == nil && envelope.Message != "" {
			msg = envelope.Message
		}
		return &GatewayError{Op: op, StatusCode: resp.StatusCode, Message: msg}
	}
	if out == nil {
		return nil
	}
	if decodeErr != nil {
		return &GatewayError{Op: op, StatusCode: resp.StatusCode, Message: "respuesta no es JSON", Err: decodeErr}
	}
	if envelope.Success != nil && !*envelope.Success {
		return &GatewayError{Op: op, StatusCode: resp.StatusCode, Message: envelope.Message}
	}

	// Algunas rutas devuelven el recurso sin el sobre {success, data}.
	payload := envelope.Data
	if len(bytes.TrimSpace(payload)) == 0 {
		payload = raw
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return &GatewayError{Op: op, StatusCode: resp.StatusCode, Message: "respuesta inesperada", Err: err}
	}
	return nil
}

func setIf(v url.Values, key, val string) {
	if val != "" {
		v.Set(key, val)
	}
}

func withQuery(path string, v url.Values) string {
	if len(v) == 0 {
		return path
	}
	return path + "?" + v.Encode()
}
