package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/example/srdflow/internal/models"
	"github.com/example/srdflow/internal/repository"
)

// recorder captures published events instead of talking to a broker.
type recorder struct {
	mu     sync.Mutex
	events []string
}

func (r *recorder) Publish(ctx context.Context, routingKey string, payload any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, routingKey)
	return nil
}

func (r *recorder) last() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.events) == 0 {
		return ""
	}
	return r.events[len(r.events)-1]
}

var testActor = Actor{ID: "u1", Name: "Asha", Role: "member", Department: "vmd"}

func newTestService(t *testing.T) (*SRDService, *recorder) {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.New().String())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("open test database: %v", err)
	}
	if err := db.AutoMigrate(
		&models.Department{}, &models.DepartmentField{},
		&models.ProductionStage{}, &models.User{}, &models.SRD{},
	); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	departments := []models.Department{
		{Slug: "admin", Name: "Administrators", IsParticipant: false},
		{Slug: "production-manager", Name: "Production Manager", IsParticipant: false},
		{Slug: "vmd", Name: "VMD", Order: 1, IsParticipant: true},
		{Slug: "cad", Name: "CAD", Order: 2, IsParticipant: true},
		{Slug: "commercial", Name: "Commercial", Order: 3, IsParticipant: true},
		{Slug: "mmc", Name: "MMC", Order: 4, IsParticipant: true},
	}
	if err := db.Create(&departments).Error; err != nil {
		t.Fatalf("seed departments: %v", err)
	}
	stages := []models.ProductionStage{
		{Name: "cutting", Order: 1, IsActive: true},
		{Name: "polishing", Order: 2, IsActive: true},
		{Name: "packing", Order: 3, IsActive: true},
	}
	if err := db.Create(&stages).Error; err != nil {
		t.Fatalf("seed stages: %v", err)
	}

	rec := &recorder{}
	svc := NewSRDService(
		db,
		repository.NewSRDRepository(db),
		repository.NewDepartmentRepository(db),
		repository.NewStageRepository(db),
		rec,
		zap.NewNop(),
		5,
	)
	return svc, rec
}

func createSRD(t *testing.T, svc *SRDService) *models.SRD {
	t.Helper()
	srd, err := svc.CreateSRD(context.Background(), CreateSRDInput{Title: "gold pendant sample"}, testActor)
	if err != nil {
		t.Fatalf("create srd: %v", err)
	}
	return srd
}

func approveAll(t *testing.T, svc *SRDService, id uuid.UUID) *models.SRD {
	t.Helper()
	var srd *models.SRD
	var err error
	for _, dept := range []string{"vmd", "cad", "commercial", "mmc"} {
		srd, err = svc.TransitionStatus(context.Background(), id, TransitionInput{
			Department: dept,
			Status:     models.DeptStatusApproved,
		}, testActor)
		if err != nil {
			t.Fatalf("approve %s: %v", dept, err)
		}
	}
	return srd
}

func TestCreateSeedsPendingStatus(t *testing.T) {
	svc, rec := newTestService(t)
	srd := createSRD(t, svc)

	if !strings.HasPrefix(srd.RefNo, "SRD") {
		t.Errorf("refNo = %q, want SRD prefix", srd.RefNo)
	}
	if len(srd.Status) != 4 {
		t.Fatalf("status map size = %d, want 4", len(srd.Status))
	}
	for _, dept := range []string{"vmd", "cad", "commercial", "mmc"} {
		if srd.Status[dept] != models.DeptStatusPending {
			t.Errorf("status[%s] = %q, want pending", dept, srd.Status[dept])
		}
	}
	if _, ok := srd.Status["admin"]; ok {
		t.Error("admin must never appear in the status map")
	}
	if srd.Progress != 0 || srd.ReadyForProduction {
		t.Errorf("derived pair = (%d, %v), want (0, false)", srd.Progress, srd.ReadyForProduction)
	}
	if len(srd.Audit) != 1 || srd.Audit[0].Action != models.AuditCreated {
		t.Errorf("expected one created audit entry, got %+v", srd.Audit)
	}
	if rec.last() != "srd.created" {
		t.Errorf("last event = %q, want srd.created", rec.last())
	}
}

func TestRefNoCollisionRetried(t *testing.T) {
	svc, _ := newTestService(t)
	first := createSRD(t, svc)

	calls := 0
	svc.genRefNo = func() string {
		calls++
		if calls == 1 {
			return first.RefNo
		}
		return fmt.Sprintf("SRD-test-%d", calls)
	}

	srd, err := svc.CreateSRD(context.Background(), CreateSRDInput{Title: "second"}, testActor)
	if err != nil {
		t.Fatalf("create with collision: %v", err)
	}
	if srd.RefNo == first.RefNo {
		t.Error("colliding refNo should have been regenerated")
	}
	if calls != 2 {
		t.Errorf("generator calls = %d, want 2", calls)
	}
}

func TestRefNoExhaustion(t *testing.T) {
	svc, _ := newTestService(t)
	first := createSRD(t, svc)

	svc.genRefNo = func() string { return first.RefNo }
	_, err := svc.CreateSRD(context.Background(), CreateSRDInput{Title: "doomed"}, testActor)
	if !errors.Is(err, models.ErrRefNoExhausted) {
		t.Fatalf("err = %v, want ErrRefNoExhausted", err)
	}
}

func TestSuppliedRefNoConflict(t *testing.T) {
	svc, _ := newTestService(t)
	first := createSRD(t, svc)

	_, err := svc.CreateSRD(context.Background(), CreateSRDInput{Title: "dup", RefNo: first.RefNo}, testActor)
	if !errors.Is(err, models.ErrDuplicateRefNo) {
		t.Fatalf("err = %v, want ErrDuplicateRefNo", err)
	}
}

func TestFlagRequiresComment(t *testing.T) {
	svc, rec := newTestService(t)
	srd := createSRD(t, svc)

	_, err := svc.TransitionStatus(context.Background(), srd.ID, TransitionInput{
		Department: "cad",
		Status:     models.DeptStatusFlagged,
		Comment:    "   ",
	}, testActor)
	if !errors.Is(err, models.ErrCommentRequired) {
		t.Fatalf("err = %v, want ErrCommentRequired", err)
	}

	updated, err := svc.TransitionStatus(context.Background(), srd.ID, TransitionInput{
		Department: "cad",
		Status:     models.DeptStatusFlagged,
		Comment:    "stone setting is off-spec",
	}, testActor)
	if err != nil {
		t.Fatal(err)
	}
	if len(updated.Comments) != 1 {
		t.Errorf("comments = %d, want exactly 1", len(updated.Comments))
	}
	if len(updated.Audit) != 2 {
		t.Errorf("audit entries = %d, want 2 (created + flagged)", len(updated.Audit))
	}
	if updated.Audit[1].Action != models.AuditFlagged {
		t.Errorf("audit action = %q, want flagged", updated.Audit[1].Action)
	}
	if rec.last() != "srd.flagged" {
		t.Errorf("last event = %q, want srd.flagged", rec.last())
	}
}

func TestTransitionRecomputesProgress(t *testing.T) {
	svc, _ := newTestService(t)
	srd := createSRD(t, svc)

	updated, err := svc.TransitionStatus(context.Background(), srd.ID, TransitionInput{
		Department: "vmd",
		Status:     models.DeptStatusApproved,
		Fields:     map[string]string{"metal": "18k gold"},
	}, testActor)
	if err != nil {
		t.Fatal(err)
	}
	if updated.Progress != 25 || updated.ReadyForProduction {
		t.Errorf("derived pair = (%d, %v), want (25, false)", updated.Progress, updated.ReadyForProduction)
	}
	if len(updated.DynamicFields) != 1 || updated.DynamicFields[0].Value != "18k gold" {
		t.Errorf("dynamic fields = %+v", updated.DynamicFields)
	}

	final := approveAll(t, svc, srd.ID)
	if final.Progress != 100 || !final.ReadyForProduction {
		t.Errorf("derived pair = (%d, %v), want (100, true)", final.Progress, final.ReadyForProduction)
	}
}

func TestTransitionRejectsNonParticipants(t *testing.T) {
	svc, _ := newTestService(t)
	srd := createSRD(t, svc)

	_, err := svc.TransitionStatus(context.Background(), srd.ID, TransitionInput{
		Department: "admin",
		Status:     models.DeptStatusApproved,
	}, testActor)
	if !errors.Is(err, models.ErrUnknownDepartment) {
		t.Fatalf("err = %v, want ErrUnknownDepartment", err)
	}

	_, err = svc.TransitionStatus(context.Background(), srd.ID, TransitionInput{
		Department: "vmd",
		Status:     models.DepartmentStatus("accepted"),
	}, testActor)
	if !errors.Is(err, models.ErrInvalidStatus) {
		t.Fatalf("err = %v, want ErrInvalidStatus", err)
	}
}

func TestPatchRejectsDerivedFields(t *testing.T) {
	svc, _ := newTestService(t)
	srd := createSRD(t, svc)

	for _, field := range []string{"status", "progress", "readyForProduction", "productionHistory"} {
		_, err := svc.Update(context.Background(), srd.ID, UpdateInput{field: "x"})
		if !errors.Is(err, models.ErrReadOnlyField) {
			t.Errorf("patch %q: err = %v, want ErrReadOnlyField", field, err)
		}
	}
	if _, err := svc.Update(context.Background(), srd.ID, UpdateInput{"favouriteColor": "blue"}); !errors.Is(err, models.ErrUnknownField) {
		t.Errorf("err = %v, want ErrUnknownField", err)
	}

	updated, err := svc.Update(context.Background(), srd.ID, UpdateInput{"title": "silver pendant sample"})
	if err != nil {
		t.Fatal(err)
	}
	if updated.Title != "silver pendant sample" {
		t.Errorf("title = %q", updated.Title)
	}
}

func TestProductionLifecycle(t *testing.T) {
	svc, rec := newTestService(t)
	srd := createSRD(t, svc)

	if _, err := svc.StartProduction(context.Background(), srd.ID, testActor); !errors.Is(err, models.ErrNotReady) {
		t.Fatalf("err = %v, want ErrNotReady", err)
	}

	approveAll(t, svc, srd.ID)

	started, err := svc.StartProduction(context.Background(), srd.ID, testActor)
	if err != nil {
		t.Fatal(err)
	}
	if !started.InProduction || started.ProductionProgress != 0 {
		t.Errorf("start state = (%v, %d)", started.InProduction, started.ProductionProgress)
	}
	if started.ProductionHistory[0].StageName != "cutting" {
		t.Errorf("first stage = %q, want cutting", started.ProductionHistory[0].StageName)
	}
	if rec.last() != "srd.production.started" {
		t.Errorf("last event = %q", rec.last())
	}

	if _, err := svc.CompleteStage(context.Background(), srd.ID, CompleteStageInput{StageName: "packing"}, testActor); !errors.Is(err, models.ErrStageMismatch) {
		t.Fatalf("err = %v, want ErrStageMismatch", err)
	}

	advanced, err := svc.CompleteStage(context.Background(), srd.ID, CompleteStageInput{Notes: "clean cut"}, testActor)
	if err != nil {
		t.Fatal(err)
	}
	if advanced.ProductionProgress != 33 {
		t.Errorf("productionProgress = %d, want 33", advanced.ProductionProgress)
	}
	if advanced.ProductionHistory[1].StageName != "polishing" {
		t.Errorf("current stage = %q, want polishing", advanced.ProductionHistory[1].StageName)
	}

	held, err := svc.UpdateStageStatus(context.Background(), srd.ID, models.StageStatusOnHold, "waiting on supplier")
	if err != nil {
		t.Fatal(err)
	}
	if held.ProductionHistory[1].Status != models.StageStatusOnHold {
		t.Errorf("stage status = %q, want on-hold", held.ProductionHistory[1].Status)
	}

	if _, err := svc.CompleteStage(context.Background(), srd.ID, CompleteStageInput{}, testActor); err != nil {
		t.Fatal(err)
	}
	finished, err := svc.CompleteStage(context.Background(), srd.ID, CompleteStageInput{}, testActor)
	if err != nil {
		t.Fatal(err)
	}
	if finished.InProduction || finished.ProductionProgress != 100 || finished.CurrentProductionStageID != nil {
		t.Errorf("final state = (%v, %d, %v)", finished.InProduction, finished.ProductionProgress, finished.CurrentProductionStageID)
	}
	if rec.last() != "srd.production.completed" {
		t.Errorf("last event = %q, want srd.production.completed", rec.last())
	}
}

func TestAutoFixIdempotent(t *testing.T) {
	svc, _ := newTestService(t)
	srd := createSRD(t, svc)

	// Corrupt the stored aggregate directly, simulating legacy data.
	srd.Status["admin"] = models.DeptStatusApproved
	delete(srd.Status, "mmc")
	srd.Progress = 80
	if err := svc.db.Save(srd).Error; err != nil {
		t.Fatal(err)
	}

	report, err := svc.Diagnostics(context.Background(), srd.ID)
	if err != nil {
		t.Fatal(err)
	}
	if report.Consistent {
		t.Fatal("diagnostics should find issues")
	}

	changes, fixed, err := svc.AutoFix(context.Background(), srd.ID, testActor)
	if err != nil {
		t.Fatal(err)
	}
	if len(changes) == 0 {
		t.Fatal("first auto-fix should report changes")
	}
	if _, ok := fixed.Status["admin"]; ok {
		t.Error("admin key should be purged")
	}
	if fixed.Status["mmc"] != models.DeptStatusPending {
		t.Error("mmc should be re-seeded as pending")
	}
	if fixed.Progress != 0 {
		t.Errorf("progress = %d, want 0", fixed.Progress)
	}

	again, _, err := svc.AutoFix(context.Background(), srd.ID, testActor)
	if err != nil {
		t.Fatal(err)
	}
	if len(again) != 0 {
		t.Errorf("second auto-fix should be a no-op, got %v", again)
	}
}

func TestTimelineMergedAndSorted(t *testing.T) {
	svc, _ := newTestService(t)

	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	step := 0
	svc.now = func() time.Time {
		step++
		return base.Add(time.Duration(step) * time.Minute)
	}

	srd := createSRD(t, svc)
	if _, err := svc.TransitionStatus(context.Background(), srd.ID, TransitionInput{
		Department: "vmd",
		Status:     models.DeptStatusFlagged,
		Comment:    "needs rework",
	}, testActor); err != nil {
		t.Fatal(err)
	}

	entries, err := svc.Timeline(context.Background(), srd.ID)
	if err != nil {
		t.Fatal(err)
	}
	// created audit + flagged audit + one comment
	if len(entries) != 3 {
		t.Fatalf("timeline length = %d, want 3", len(entries))
	}
	for i := 1; i < len(entries); i++ {
		if entries[i].Date.After(entries[i-1].Date) {
			t.Errorf("timeline not sorted descending at %d", i)
		}
	}
	if entries[len(entries)-1].Action != string(models.AuditCreated) {
		t.Errorf("oldest entry should be creation, got %+v", entries[len(entries)-1])
	}
}

func TestDeleteRemovesAggregate(t *testing.T) {
	svc, rec := newTestService(t)
	srd := createSRD(t, svc)

	if err := svc.Delete(context.Background(), srd.ID, testActor); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Get(context.Background(), srd.ID); !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	if rec.last() != "srd.deleted" {
		t.Errorf("last event = %q, want srd.deleted", rec.last())
	}
}

func TestConcurrentTransitionsSerialized(t *testing.T) {
	svc, _ := newTestService(t)
	srd := createSRD(t, svc)

	depts := []string{"vmd", "cad", "commercial", "mmc"}
	var wg sync.WaitGroup
	for _, dept := range depts {
		wg.Add(1)
		go func(d string) {
			defer wg.Done()
			if _, err := svc.TransitionStatus(context.Background(), srd.ID, TransitionInput{
				Department: d,
				Status:     models.DeptStatusApproved,
			}, testActor); err != nil {
				t.Errorf("approve %s: %v", d, err)
			}
		}(dept)
	}
	wg.Wait()

	final, err := svc.Get(context.Background(), srd.ID)
	if err != nil {
		t.Fatal(err)
	}
	if final.Progress != 100 || !final.ReadyForProduction {
		t.Errorf("derived pair = (%d, %v), want (100, true)", final.Progress, final.ReadyForProduction)
	}
}
