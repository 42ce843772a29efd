package reconcile

import (
	"reflect"
	"testing"

	"github.com/utec/campusdesk/internal/models"
)

func incident(id string, status models.Status, title string) models.Incident {
	return models.Incident{IncidentID: id, Status: status, Title: title}
}

func env(t models.EventType, inc models.Incident) models.Envelope {
	return models.Envelope{Type: t, Incident: &inc}
}

func TestCreatedPrependsAndIsIdempotent(t *testing.T) {
	list := []models.Incident{incident("1", models.StatusPending, "a")}
	created := env(models.EventIncidentCreated, incident("2", models.StatusPending, "b"))

	once := Incidents(list, created)
	twice := Incidents(once, created)

	if len(once) != 2 || once[0].IncidentID != "2" {
		t.Fatalf("created not prepended: %+v", once)
	}
	if !reflect.DeepEqual(once, twice) {
		t.Fatalf("create replay duplicated rows: %+v", twice)
	}
	if len(list) != 1 {
		t.Fatal("input list mutated")
	}
}

func TestUpdateIdempotent(t *testing.T) {
	list := []models.Incident{incident("1", models.StatusPending, "a"), incident("2", models.StatusPending, "b")}
	upd := env(models.EventIncidentUpdated, incident("2", models.StatusInProgress, "b"))

	once := Incidents(list, upd)
	twice := Incidents(once, upd)
	if !reflect.DeepEqual(once, twice) {
		t.Fatalf("update not idempotent:\n%+v\n%+v", once, twice)
	}
	if once[1].Status != models.StatusInProgress {
		t.Fatalf("status = %s", once[1].Status)
	}
	if list[1].Status != models.StatusPending {
		t.Fatal("input list mutated")
	}
}

func TestCreateUpdateOrderIndependent(t *testing.T) {
	created := env(models.EventIncidentCreated, incident("9", models.StatusPending, "nuevo"))
	updated := env(models.EventIncidentUpdated, incident("9", models.StatusAssigned, "nuevo"))

	a := Incidents(Incidents(nil, created), updated)
	b := Incidents(Incidents(nil, updated), created)

	if len(a) != 1 || len(b) != 1 {
		t.Fatalf("duplicated rows: %d %d", len(a), len(b))
	}
	if a[0].Status != models.StatusAssigned || b[0].Status != models.StatusAssigned {
		t.Fatalf("update values lost: create→update=%s update→create=%s", a[0].Status, b[0].Status)
	}
	if !reflect.DeepEqual(a, b) {
		t.Fatalf("diverged:\n%+v\n%+v", a, b)
	}

	// El created trae updatedAt y el update no.
	timed := incident("9", models.StatusPending, "nuevo")
	timed.UpdatedAt = 100
	created = env(models.EventIncidentCreated, timed)
	a = Incidents(Incidents(nil, created), updated)
	b = Incidents(Incidents(nil, updated), created)
	if len(a) != 1 || len(b) != 1 || a[0].Status != models.StatusAssigned || b[0].Status != models.StatusAssigned {
		t.Fatalf("timed create: create→update=%+v update→create=%+v", a, b)
	}
}

func TestStale(t *testing.T) {
	cur := incident("1", models.StatusInProgress, "a")
	cur.UpdatedAt = 200
	list := []models.Incident{cur}

	older := incident("1", models.StatusPending, "a")
	older.UpdatedAt = 100
	newer := incident("1", models.StatusResolved, "a")
	newer.UpdatedAt = 300
	other := incident("2", models.StatusPending, "b")
	other.UpdatedAt = 1

	cases := []struct {
		name string
		env  models.Envelope
		want bool
	}{
		{"update viejo", env(models.EventIncidentUpdated, older), true},
		{"assign viejo", env(models.EventIncidentAssigned, older), true},
		{"create repetido", env(models.EventIncidentCreated, cur), true},
		{"update nuevo", env(models.EventIncidentUpdated, newer), false},
		{"update sin fecha", env(models.EventIncidentUpdated, incident("1", models.StatusPending, "a")), false},
		{"id ausente", env(models.EventIncidentUpdated, other), false},
		{"borrado", env(models.EventIncidentDeleted, older), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Stale(list, tc.env); got != tc.want {
				t.Fatalf("Stale = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestStaleSnapshotIgnored(t *testing.T) {
	fresh := incident("1", models.StatusResolved, "a")
	fresh.UpdatedAt = 200
	stale := incident("1", models.StatusAssigned, "a")
	stale.UpdatedAt = 100

	out := Incidents([]models.Incident{fresh}, env(models.EventIncidentUpdated, stale))
	if out[0].Status != models.StatusResolved {
		t.Fatalf("stale update won: %s", out[0].Status)
	}

	newer := incident("1", models.StatusClosed, "a")
	newer.UpdatedAt = 300
	out = Incidents(out, env(models.EventIncidentCreated, newer))
	if out[0].Status != models.StatusClosed {
		t.Fatalf("newer create replay ignored: %s", out[0].Status)
	}
}

func TestUpdateBeforeCreateWithSameSnapshotConverges(t *testing.T) {
	snap := incident("9", models.StatusAssigned, "nuevo")
	created := env(models.EventIncidentCreated, snap)
	updated := env(models.EventIncidentUpdated, snap)

	a := Incidents(Incidents(nil, created), updated)
	b := Incidents(Incidents(nil, updated), created)
	if !reflect.DeepEqual(a, b) {
		t.Fatalf("diverged:\n%+v\n%+v", a, b)
	}
}

func TestAssignedInsertsWhenMissing(t *testing.T) {
	inc := incident("5", models.StatusAssigned, "x")
	inc.AssignedTo = &models.Ref{ID: "W9"}
	out := Incidents([]models.Incident{incident("1", models.StatusPending, "a")}, env(models.EventIncidentAssigned, inc))
	if len(out) != 2 || out[0].AssigneeID() != "W9" {
		t.Fatalf("out = %+v", out)
	}
}

func TestDeleteAbsentIsNoop(t *testing.T) {
	list := []models.Incident{incident("1", models.StatusPending, "a")}
	out := Incidents(list, env(models.EventIncidentDeleted, incident("404", "", "")))
	if !reflect.DeepEqual(out, list) {
		t.Fatalf("out = %+v", out)
	}
	out = Incidents(list, env(models.EventIncidentDeleted, incident("1", "", "")))
	if len(out) != 0 {
		t.Fatalf("delete failed: %+v", out)
	}
}

func TestMutationSameAsUpdate(t *testing.T) {
	list := []models.Incident{incident("1", models.StatusPending, "a")}
	res := incident("1", models.StatusAssigned, "a")
	got := Mutation(list, res)
	want := Incidents(list, env(models.EventIncidentUpdated, res))
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %+v want %+v", got, want)
	}
	// el push que confirma la misma mutación no cambia nada
	if again := Incidents(got, env(models.EventIncidentUpdated, res)); !reflect.DeepEqual(again, got) {
		t.Fatalf("confirming push changed state: %+v", again)
	}
}

func TestWorkers(t *testing.T) {
	list := []models.Worker{{UserID: "W1", Status: models.WorkerAvailable}}
	upd := models.Envelope{Type: models.EventWorkerUpdated, Worker: &models.Worker{UserID: "W1", Status: models.WorkerBusy}}
	out := Workers(list, upd)
	if out[0].Status != models.WorkerBusy || list[0].Status != models.WorkerAvailable {
		t.Fatalf("replace failed or input mutated: %+v %+v", out, list)
	}
	out = Workers(out, models.Envelope{Type: models.EventWorkerUpdated, Worker: &models.Worker{UserID: "W2"}})
	if len(out) != 2 {
		t.Fatalf("insert failed: %+v", out)
	}
	inc := incident("1", "", "")
	if got := Workers(out, env(models.EventIncidentUpdated, inc)); !reflect.DeepEqual(got, out) {
		t.Fatal("incident envelope touched workers")
	}
}

func TestDetail(t *testing.T) {
	open := incident("1", models.StatusPending, "a")

	snap, closed := Detail(&open, env(models.EventIncidentUpdated, incident("1", models.StatusAssigned, "a")))
	if closed || snap.Status != models.StatusAssigned {
		t.Fatalf("detail not refreshed: %+v closed=%v", snap, closed)
	}

	snap, closed = Detail(&open, env(models.EventIncidentUpdated, incident("2", models.StatusAssigned, "b")))
	if closed || snap != &open {
		t.Fatal("other ids must not touch the detail")
	}

	snap, closed = Detail(&open, env(models.EventIncidentDeleted, incident("1", "", "")))
	if !closed || snap != nil {
		t.Fatal("delete must close the detail")
	}

	if snap, closed = Detail(nil, env(models.EventIncidentDeleted, incident("1", "", ""))); snap != nil || closed {
		t.Fatal("no open detail should stay closed without signalling")
	}
}
