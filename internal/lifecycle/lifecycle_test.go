package lifecycle

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/campusgate/gatepass/internal/database"
	"github.com/campusgate/gatepass/internal/geofence"
	"github.com/campusgate/gatepass/internal/model"
	"github.com/campusgate/gatepass/internal/sidefx"
	"github.com/campusgate/gatepass/internal/store"
)

func newTestEngine(t *testing.T) (*Engine, model.Principal) {
	t.Helper()

	tmpFile, err := os.CreateTemp("", "gatepass_lifecycle_test_*.db")
	if err != nil {
		t.Fatalf("create temp file: %v", err)
	}
	tmpFile.Close()
	t.Cleanup(func() { os.Remove(tmpFile.Name()) })

	db, err := sql.Open("sqlite", tmpFile.Name())
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := database.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if _, err := db.Exec(`INSERT INTO principals (id, name, role, active, subject_code) VALUES (7, 'Student Seven', 'student', 1, 'S007')`); err != nil {
		t.Fatalf("seed principal: %v", err)
	}

	s := store.New(db)
	t.Cleanup(s.Close)

	policyPath := tmpFile.Name() + ".policy.json"
	t.Cleanup(func() { os.Remove(policyPath) })
	geoStore := geofence.NewPolicyStore(policyPath)
	if err := geoStore.Save(model.LocationPolicy{Label: "Campus", Latitude: 31.7768, Longitude: 77.0144, RadiusKM: 2.0, Enabled: true}); err != nil {
		t.Fatalf("save policy: %v", err)
	}

	e := &Engine{
		Store:    s,
		Secret:   []byte("test-secret"),
		TTL:      15 * time.Minute,
		Geofence: geofence.NewEvaluator(geoStore),
		SideFX:   sidefx.New(),
		Zone:     time.UTC,
		Now:      time.Now,
	}

	subject := model.Principal{ID: 7, Name: "Student Seven", Role: model.RoleStudent, Active: true, SubjectCode: "S007"}
	return e, subject
}

func TestCreateApproveConsumeHappyPath(t *testing.T) {
	e, subject := newTestEngine(t)
	ctx := context.Background()
	admin := model.Principal{ID: 1, Role: model.RoleAdmin}
	guard := model.Principal{ID: 2, Role: model.RoleGuard}

	p, err := e.Create(ctx, subject, model.DirectionEntry, "Medical", nil)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if p.State != model.StatePending {
		t.Fatalf("state after create = %v, want pending", p.State)
	}

	approved, err := e.Approve(ctx, p.ID, admin)
	if err != nil {
		t.Fatalf("Approve: %v", err)
	}
	if approved.State != model.StateApproved || approved.Token == "" {
		t.Fatalf("approved = %+v, want approved with token", approved)
	}

	used, err := e.Consume(ctx, p.ID, guard)
	if err != nil {
		t.Fatalf("Consume: %v", err)
	}
	if used.State != model.StateUsed || used.ConsumerID == nil || *used.ConsumerID != guard.ID {
		t.Fatalf("used = %+v, want state used consumed by guard", used)
	}
}

func TestApproveWrongStateFails(t *testing.T) {
	e, subject := newTestEngine(t)
	ctx := context.Background()
	admin := model.Principal{ID: 1, Role: model.RoleAdmin}

	p, _ := e.Create(ctx, subject, model.DirectionEntry, "Medical", nil)
	if _, err := e.Approve(ctx, p.ID, admin); err != nil {
		t.Fatalf("first Approve: %v", err)
	}
	if _, err := e.Approve(ctx, p.ID, admin); !errors.Is(err, ErrWrongState) {
		t.Errorf("second Approve error = %v, want ErrWrongState", err)
	}
}

func TestConsumeConcurrentExactlyOneSucceeds(t *testing.T) {
	e, subject := newTestEngine(t)
	ctx := context.Background()
	admin := model.Principal{ID: 1, Role: model.RoleAdmin}

	p, _ := e.Create(ctx, subject, model.DirectionExit, "Errand", nil)
	if _, err := e.Approve(ctx, p.ID, admin); err != nil {
		t.Fatalf("Approve: %v", err)
	}

	const guards = 6
	var wg sync.WaitGroup
	successes := make([]bool, guards)
	for i := 0; i < guards; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			guard := model.Principal{ID: uint64(10 + idx), Role: model.RoleGuard}
			_, err := e.Consume(ctx, p.ID, guard)
			successes[idx] = err == nil
		}(i)
	}
	wg.Wait()

	count := 0
	for _, ok := range successes {
		if ok {
			count++
		}
	}
	if count != 1 {
		t.Errorf("successful consumes = %d, want 1", count)
	}
}

func TestDailyIdempotentWithinSameCivilDay(t *testing.T) {
	e, subject := newTestEngine(t)
	ctx := context.Background()

	first, err := e.Daily(ctx, subject, model.DirectionExit, GPS{Lat: 31.7768, Lon: 77.0144})
	if err != nil {
		t.Fatalf("first Daily: %v", err)
	}
	if first.State != model.StateApproved {
		t.Fatalf("first daily state = %v, want approved", first.State)
	}

	second, err := e.Daily(ctx, subject, model.DirectionExit, GPS{Lat: 31.7768, Lon: 77.0144})
	if err != nil {
		t.Fatalf("second Daily: %v", err)
	}
	if second.ID != first.ID {
		t.Errorf("second daily id = %d, want same id %d", second.ID, first.ID)
	}

	passes, err := e.Store.QueryPasses(ctx, store.PassFilter{SubjectID: &subject.ID, Direction: model.DirectionExit}, 10)
	if err != nil {
		t.Fatalf("QueryPasses: %v", err)
	}
	if len(passes) != 1 {
		t.Errorf("passes for subject/direction = %d, want 1", len(passes))
	}
}

func TestDailyGeofenceDenyOutsideCampus(t *testing.T) {
	e, subject := newTestEngine(t)
	ctx := context.Background()

	_, err := e.Daily(ctx, subject, model.DirectionEntry, GPS{Lat: 0, Lon: 0})
	if !errors.Is(err, ErrGeofence) {
		t.Errorf("Daily from (0,0) error = %v, want ErrGeofence", err)
	}

	passes, _ := e.Store.QueryPasses(ctx, store.PassFilter{SubjectID: &subject.ID}, 10)
	if len(passes) != 0 {
		t.Errorf("passes after geofence deny = %d, want 0", len(passes))
	}
}

func TestEmergencyExitWritesSuccessWithNoPass(t *testing.T) {
	e, subject := newTestEngine(t)
	ctx := context.Background()
	guard := model.Principal{ID: 2, Role: model.RoleGuard}

	rec, err := e.EmergencyExit(ctx, subject, guard)
	if err != nil {
		t.Fatalf("EmergencyExit: %v", err)
	}
	if rec.PassID != nil {
		t.Errorf("PassID = %v, want nil", rec.PassID)
	}
	if rec.Result != model.ResultSuccess || rec.Direction != model.DirectionExit || !rec.Emergency {
		t.Errorf("rec = %+v, want success/exit/emergency", rec)
	}

	// A second call produces a second log, not a conflict.
	rec2, err := e.EmergencyExit(ctx, subject, guard)
	if err != nil {
		t.Fatalf("second EmergencyExit: %v", err)
	}
	if rec2.ID == rec.ID {
		t.Errorf("second emergency exit id = %d, want distinct from %d", rec2.ID, rec.ID)
	}
}

func TestDailyRejectsExpiredValidityWindow(t *testing.T) {
	e, subject := newTestEngine(t)
	ctx := context.Background()

	past := time.Now().Add(-24 * time.Hour)
	subject.ValidityEnd = &past

	_, err := e.Daily(ctx, subject, model.DirectionEntry, GPS{Lat: 31.7768, Lon: 77.0144})
	if !errors.Is(err, ErrExpiredLock) {
		t.Errorf("Daily with expired validity error = %v, want ErrExpiredLock", err)
	}
}
