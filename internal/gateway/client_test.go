package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/utec/campusdesk/internal/models"
)

func newTestAPI(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c := New(srv.URL+"/dev", time.Second)
	c.Token = "tok"
	return c
}

func writeData(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{"success": status < 300, "message": "ok", "data": data})
}

func TestListIncidentsSendsFiltersAndUnwraps(t *testing.T) {
	c := newTestAPI(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/dev/incidents" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer tok" {
			t.Errorf("auth header = %q", r.Header.Get("Authorization"))
		}
		if r.URL.Query().Get("assignedTo") != "W1" || r.URL.Query().Get("status") != "assigned" {
			t.Errorf("query = %s", r.URL.RawQuery)
		}
		if r.URL.Query().Has("priority") {
			t.Errorf("empty filter sent: %s", r.URL.RawQuery)
		}
		writeData(w, 200, map[string]any{"incidents": []map[string]any{
			{"incidentId": "1", "status": "assigned", "reportedBy": "S1", "assignedTo": map[string]any{"userId": "W1", "name": "Carlos"}},
		}})
	})
	list, err := c.ListIncidents(context.Background(), models.ListQuery{Status: models.StatusAssigned, AssignedTo: "W1"})
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 || list[0].AssigneeID() != "W1" || list[0].ReportedBy.ID != "S1" {
		t.Fatalf("list = %+v", list)
	}
}

func TestListIncidentsEmpty(t *testing.T) {
	c := newTestAPI(t, func(w http.ResponseWriter, r *http.Request) {
		writeData(w, 200, map[string]any{})
	})
	list, err := c.ListIncidents(context.Background(), models.ListQuery{})
	if err != nil || list == nil || len(list) != 0 {
		t.Fatalf("list=%v err=%v", list, err)
	}
}

func TestAuthenticate(t *testing.T) {
	c := newTestAPI(t, func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		json.NewDecoder(r.Body).Decode(&body)
		if body["email"] != "admin@utec.edu.pe" {
			writeData(w, 401, nil)
			return
		}
		writeData(w, 200, map[string]any{"token": "jwt", "user": map[string]any{"userId": "A1", "role": "admin", "name": "Admin"}})
	})
	res, err := c.Authenticate(context.Background(), "admin@utec.edu.pe", "secreto")
	if err != nil {
		t.Fatal(err)
	}
	if res.Token != "jwt" || res.User.Role != models.RoleAdmin {
		t.Fatalf("res = %+v", res)
	}
	_, err = c.Authenticate(context.Background(), "otro@utec.edu.pe", "x")
	var ge *GatewayError
	if !errors.As(err, &ge) || ge.StatusCode != 401 {
		t.Fatalf("err = %v", err)
	}
}

func TestRegister(t *testing.T) {
	c := newTestAPI(t, func(w http.ResponseWriter, r *http.Request) {
		var req RegisterRequest
		json.NewDecoder(r.Body).Decode(&req)
		if r.URL.Path != "/dev/auth/register" || req.Role != models.RoleStudent || req.StudentCode != "202310001" {
			t.Errorf("path=%s req=%+v", r.URL.Path, req)
		}
		if req.Specialty != "" {
			t.Error("empty optional fields should be omitted")
		}
		writeData(w, 201, map[string]any{"userId": "S1"})
	})
	err := c.Register(context.Background(), RegisterRequest{
		Email: "alumno@utec.edu.pe", Password: "x", Name: "Ana", Role: models.RoleStudent, StudentCode: "202310001",
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestCreateUpdateAssign(t *testing.T) {
	var calls []string
	c := newTestAPI(t, func(w http.ResponseWriter, r *http.Request) {
		calls = append(calls, r.Method+" "+r.URL.Path)
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/dev/incidents":
			var req models.CreateIncidentRequest
			json.NewDecoder(r.Body).Decode(&req)
			if req.Images == nil {
				t.Error("images must always be an array")
			}
			writeData(w, 201, map[string]any{"incidentId": "N1", "title": req.Title, "status": "pending"})
		case r.Method == http.MethodPut && r.URL.Path == "/dev/incidents/N1":
			var req models.UpdateIncidentRequest
			json.NewDecoder(r.Body).Decode(&req)
			if req.Status != models.StatusAssigned || req.Comment == "" {
				t.Errorf("update body = %+v", req)
			}
			writeData(w, 200, nil)
		case r.Method == http.MethodPost && r.URL.Path == "/dev/incidents/N1/assign":
			var req models.AssignIncidentRequest
			json.NewDecoder(r.Body).Decode(&req)
			if req.WorkerID != "W2" {
				t.Errorf("assign body = %+v", req)
			}
			writeData(w, 200, nil)
		default:
			writeData(w, 404, nil)
		}
	})
	ctx := context.Background()
	inc, err := c.CreateIncident(ctx, models.CreateIncidentRequest{Title: "Puerta rota", Priority: models.PriorityMedium})
	if err != nil || inc.IncidentID != "N1" {
		t.Fatalf("create: %+v %v", inc, err)
	}
	if err := c.UpdateIncident(ctx, "N1", models.UpdateIncidentRequest{Status: models.StatusAssigned, Comment: "va"}); err != nil {
		t.Fatal(err)
	}
	if err := c.AssignIncident(ctx, "N1", "W2"); err != nil {
		t.Fatal(err)
	}
	var ge *GatewayError
	if _, err := c.GetIncident(ctx, "zzz"); !errors.As(err, &ge) || ge.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %v", err)
	}
	if len(calls) != 4 {
		t.Fatalf("calls = %v", calls)
	}
}

func TestErrorMessageFromEnvelope(t *testing.T) {
	c := newTestAPI(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"success":false,"message":"Estado inválido"}`))
	})
	err := c.UpdateIncident(context.Background(), "1", models.UpdateIncidentRequest{Status: "x"})
	var ge *GatewayError
	if !errors.As(err, &ge) || ge.Message != "Estado inválido" || ge.Op != "updateIncident" {
		t.Fatalf("err = %#v", err)
	}
}

func TestListWorkersBareBody(t *testing.T) {
	c := newTestAPI(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("sortBy") != "workload" || r.URL.Query().Get("order") != "asc" {
			t.Errorf("query = %s", r.URL.RawQuery)
		}
		w.Write([]byte(`{"workers":[{"userId":"W1","status":"available","workloadPoints":3}]}`))
	})
	ws, err := c.ListWorkers(context.Background(), models.WorkerQuery{SortBy: "workload", Order: "asc"})
	if err != nil || len(ws) != 1 || ws[0].UserID != "W1" {
		t.Fatalf("workers=%+v err=%v", ws, err)
	}
}

func TestTransportError(t *testing.T) {
	c := New("http://127.0.0.1:1", 200*time.Millisecond)
	_, err := c.ListIncidents(context.Background(), models.ListQuery{})
	var ge *GatewayError
	if !errors.As(err, &ge) || ge.Err == nil {
		t.Fatalf("err = %v", err)
	}
}

func TestConcurrentFirstCalls(t *testing.T) {
	c := newTestAPI(t, func(w http.ResponseWriter, r *http.Request) {
		writeData(w, 200, map[string]any{"incidentId": "1", "status": "pending", "reportedBy": "S1"})
	})
	if c.HTTPClient == nil || c.HTTPClient.Timeout != time.Second {
		t.Fatalf("http client = %+v", c.HTTPClient)
	}
	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := c.GetIncident(context.Background(), "1"); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatal(err)
	}
}
