package store

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"

	"github.com/utec/campusdesk/internal/models"
)

func sample() []models.Incident {
	return []models.Incident{
		{IncidentID: "1", Title: "Foco quemado", Description: "Aula A-301", Status: models.StatusPending, Priority: models.PriorityLow, Category: models.CategoryElectricity},
		{IncidentID: "2", Title: "Fuga de agua", Description: "Baño del piso 2", Status: models.StatusInProgress, Priority: models.PriorityUrgent, Category: models.CategoryPlumbing},
		{IncidentID: "3", Title: "Proyector", Description: "No enciende el FOCO del proyector", Status: models.StatusResolved, Priority: models.PriorityHigh, Category: models.CategoryTechnology},
	}
}

func ids(list []models.Incident) []string {
	out := make([]string, 0, len(list))
	for _, i := range list {
		out = append(out, i.IncidentID)
	}
	return out
}

func TestFilter(t *testing.T) {
	list := sample()
	cases := []struct {
		name string
		f    models.Filters
		want []string
	}{
		{"empty", models.Filters{}, []string{"1", "2", "3"}},
		{"search title and description", models.Filters{Search: "foco"}, []string{"1", "3"}},
		{"status", models.Filters{Status: models.StatusInProgress}, []string{"2"}},
		{"priority", models.Filters{Priority: models.PriorityUrgent}, []string{"2"}},
		{"category+search", models.Filters{Category: models.CategoryTechnology, Search: "Proyector"}, []string{"3"}},
		{"nothing", models.Filters{Status: models.StatusClosed}, []string{}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ids(Filter(list, tc.f)); !reflect.DeepEqual(got, tc.want) {
				t.Fatalf("got %v want %v", got, tc.want)
			}
		})
	}
}

func TestFilterIsPure(t *testing.T) {
	list := sample()
	before := sample()
	f := models.Filters{Search: "fuga"}
	a := Filter(list, f)
	b := Filter(list, f)
	if !reflect.DeepEqual(a, b) {
		t.Fatal("same inputs, different output")
	}
	a[0].Title = "mutado"
	if !reflect.DeepEqual(list, before) {
		t.Fatal("filter shares memory with the input")
	}
}

func TestSeedFailureKeepsCollection(t *testing.T) {
	s := New()
	s.Replace(sample())
	err := s.Seed(context.Background(), func(context.Context) ([]models.Incident, error) {
		return nil, errors.New("503")
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if len(s.Incidents()) != 3 {
		t.Fatal("failed fetch dropped entities")
	}
	if err := s.Seed(context.Background(), func(context.Context) ([]models.Incident, error) {
		return sample()[:1], nil
	}); err != nil {
		t.Fatal(err)
	}
	if len(s.Incidents()) != 1 || !s.Seeded() {
		t.Fatal("successful seed must replace")
	}
}

func TestApplyAndDetail(t *testing.T) {
	s := New()
	s.Replace([]models.Incident{{IncidentID: "1", Status: models.StatusPending}})

	var changes []Change
	unsub := s.Subscribe(func(c Change) { changes = append(changes, c) })
	defer unsub()

	if _, ok := s.OpenDetail("1"); !ok {
		t.Fatal("open detail")
	}
	assigned := models.Incident{IncidentID: "1", Status: models.StatusAssigned, AssignedTo: &models.Ref{ID: "W9"}}
	s.Apply(models.Envelope{Type: models.EventIncidentAssigned, Incident: &assigned})

	list := s.Incidents()
	if len(list) != 1 || list[0].Status != models.StatusAssigned || list[0].AssigneeID() != "W9" {
		t.Fatalf("list = %+v", list)
	}
	if d, ok := s.Detail(); !ok || d.Status != models.StatusAssigned {
		t.Fatalf("detail not refreshed: %+v", d)
	}

	ch := s.Apply(models.Envelope{Type: models.EventIncidentDeleted, Incident: &models.Incident{IncidentID: "1"}})
	if !ch.DetailClosed {
		t.Fatal("delete of open detail must close it")
	}
	if _, ok := s.Detail(); ok {
		t.Fatal("detail still open")
	}
	if len(changes) != 3 {
		t.Fatalf("changes = %+v", changes)
	}
}

func TestApplyReportsStaleEnvelope(t *testing.T) {
	s := New()
	s.Replace([]models.Incident{{IncidentID: "1", Status: models.StatusInProgress, UpdatedAt: 200}})

	old := models.Incident{IncidentID: "1", Status: models.StatusPending, UpdatedAt: 100}
	if ch := s.Apply(models.Envelope{Type: models.EventIncidentUpdated, Incident: &old}); ch.Applied {
		t.Fatal("stale envelope reported as applied")
	}
	if got, _ := s.Get("1"); got.Status != models.StatusInProgress {
		t.Fatalf("stale envelope won: %s", got.Status)
	}

	fresh := models.Incident{IncidentID: "1", Status: models.StatusResolved, UpdatedAt: 300}
	if ch := s.Apply(models.Envelope{Type: models.EventIncidentUpdated, Incident: &fresh}); !ch.Applied {
		t.Fatal("newer envelope reported as discarded")
	}
	w := models.Worker{UserID: "W1"}
	if ch := s.Apply(models.Envelope{Type: models.EventWorkerUpdated, Worker: &w}); !ch.Applied {
		t.Fatal("worker envelope reported as discarded")
	}
}

func TestClosedDetailIgnoresEnvelopes(t *testing.T) {
	s := New()
	s.Replace([]models.Incident{{IncidentID: "1", Status: models.StatusPending}})
	s.OpenDetail("1")
	s.CloseDetail()
	s.Apply(models.Envelope{Type: models.EventIncidentUpdated, Incident: &models.Incident{IncidentID: "1", Status: models.StatusAssigned}})
	if _, ok := s.Detail(); ok {
		t.Fatal("closed detail reopened by an envelope")
	}
}

func TestWorkersSortedAndStats(t *testing.T) {
	s := New()
	s.ReplaceWorkers([]models.Worker{
		{UserID: "a", Name: "Ana", Status: models.WorkerBusy, WorkloadPoints: 2},
		{UserID: "b", Name: "Beto", Status: models.WorkerAvailable, WorkloadPoints: 8},
		{UserID: "c", Name: "Caro", Status: models.WorkerAvailable, WorkloadPoints: 3},
		{UserID: "d", Name: "Dani", Status: models.WorkerModerate, WorkloadPoints: 1},
	})
	var got []string
	for _, w := range s.Workers() {
		got = append(got, w.UserID)
	}
	if want := []string{"c", "b", "d", "a"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("order = %v want %v", got, want)
	}

	s.Apply(models.Envelope{Type: models.EventWorkerUpdated, Worker: &models.Worker{UserID: "a", Name: "Ana", Status: models.WorkerAvailable}})
	if s.Workers()[0].UserID != "a" {
		t.Fatal("worker_updated not reconciled")
	}

	s.Replace(sample())
	if st := s.Stats(); st != (models.Stats{Pending: 1, InProgress: 1, Resolved: 1, Urgent: 1}) {
		t.Fatalf("stats = %+v", st)
	}
}

func TestClear(t *testing.T) {
	s := New()
	s.Replace(sample())
	s.SetFilters(models.Filters{Search: "x"})
	s.OpenDetail("1")
	s.Clear()
	if len(s.Incidents()) != 0 || !s.Filters().Empty() || s.Seeded() {
		t.Fatal("clear left state behind")
	}
	if _, ok := s.Detail(); ok {
		t.Fatal("detail survived clear")
	}
}

func TestConcurrentApplyAndRead(t *testing.T) {
	s := New()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		inc := models.Incident{IncidentID: "x", Status: models.StatusAssigned}
		go func() {
			defer wg.Done()
			s.Apply(models.Envelope{Type: models.EventIncidentUpdated, Incident: &inc})
		}()
		go func() {
			defer wg.Done()
			_ = s.Filtered()
		}()
	}
	wg.Wait()
	if len(s.Incidents()) != 1 {
		t.Fatalf("duplicate rows under concurrency: %d", len(s.Incidents()))
	}
}
