package service

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/example/srdflow/internal/approval"
	"github.com/example/srdflow/internal/models"
	"github.com/example/srdflow/internal/mq"
	"github.com/example/srdflow/internal/production"
	"github.com/example/srdflow/internal/repository"
)

// Actor is the authenticated caller recorded in comments and audit entries.
type Actor struct {
	ID         string
	Name       string
	Role       string
	Department string
}

// SRDService contains the business logic for the SRD lifecycle: creation with
// seeded status maps, department transitions with derived-field recompute,
// the production pipeline and consistency tooling.
//
// Mutations are serialized per SRD id with an in-process mutex and run inside
// a transaction, so progress and readiness are always recomputed from the
// freshly loaded status map. Events are published after commit and failures
// there never affect persisted state.
type SRDService struct {
	db          *gorm.DB
	srds        *repository.SRDRepository
	departments *repository.DepartmentRepository
	stages      *repository.StageRepository
	events      mq.Publisher
	logger      *zap.Logger

	refNoAttempts int
	genRefNo      func() string
	now           func() time.Time

	locks sync.Map // uuid.UUID -> *sync.Mutex
}

// NewSRDService builds a service with dependencies.
func NewSRDService(db *gorm.DB, srds *repository.SRDRepository, departments *repository.DepartmentRepository, stages *repository.StageRepository, events mq.Publisher, logger *zap.Logger, refNoAttempts int) *SRDService {
	if refNoAttempts <= 0 {
		refNoAttempts = 5
	}
	return &SRDService{
		db:            db,
		srds:          srds,
		departments:   departments,
		stages:        stages,
		events:        events,
		logger:        logger,
		refNoAttempts: refNoAttempts,
		genRefNo:      GenerateRefNo,
		now:           time.Now,
	}
}

// GenerateRefNo produces a human-readable reference: SRD<unix-ms>-<4 digits>.
func GenerateRefNo() string {
	return fmt.Sprintf("SRD%d-%04d", time.Now().UnixMilli(), rand.Intn(10000))
}

// CreateSRDInput carries the client-supplied part of a new SRD.
type CreateSRDInput struct {
	RefNo       string
	Title       string
	Description string
	Requester   string
	Metadata    datatypes.JSON
}

// CreateSRD seeds the status map with every participating department set to
// pending and persists the aggregate. A generated refno colliding with an
// existing one is regenerated up to the configured attempt count; a caller
// supplied refno is never retried.
func (s *SRDService) CreateSRD(ctx context.Context, input CreateSRDInput, actor Actor) (*models.SRD, error) {
	participating, err := s.departments.ListParticipatingSlugs(ctx)
	if err != nil {
		return nil, err
	}

	now := s.now()
	status := models.StatusMap{}
	for _, slug := range participating {
		status[slug] = models.DeptStatusPending
	}

	srd := &models.SRD{
		Title:       input.Title,
		Description: input.Description,
		Requester:   input.Requester,
		Status:      status,
		Metadata:    input.Metadata,
		Audit: models.AuditLog{{
			Author: actor.Name,
			Action: models.AuditCreated,
			Date:   now,
		}},
	}
	res := approval.Recompute(status, participating)
	srd.Progress = res.Progress
	srd.ReadyForProduction = res.ReadyForProduction

	supplied := input.RefNo != ""
	for attempt := 0; attempt < s.refNoAttempts; attempt++ {
		if supplied {
			srd.RefNo = input.RefNo
		} else {
			srd.RefNo = s.genRefNo()
		}
		err = s.srds.Create(ctx, srd)
		if err == nil {
			s.publishEvent(ctx, "srd.created", srd, nil)
			return srd, nil
		}
		if !errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, err
		}
		if supplied {
			return nil, errors.WithStack(models.ErrDuplicateRefNo)
		}
		srd.ID = uuid.Nil
	}
	return nil, errors.WithStack(models.ErrRefNoExhausted)
}

// Get returns one SRD.
func (s *SRDService) Get(ctx context.Context, id uuid.UUID) (*models.SRD, error) {
	return s.srds.FindByID(ctx, id)
}

// List returns recent SRDs.
func (s *SRDService) List(ctx context.Context, limit int) ([]models.SRD, error) {
	return s.srds.List(ctx, limit)
}

// TransitionInput is one department's status change request.
type TransitionInput struct {
	Department string
	Status     models.DepartmentStatus
	Comment    string
	Fields     map[string]string
}

// TransitionStatus applies one department's status change: validates the
// department and status, enforces the flag-requires-comment rule, upserts any
// supplied field values, appends comment and audit entries and recomputes the
// derived pair, all in one transaction.
func (s *SRDService) TransitionStatus(ctx context.Context, id uuid.UUID, input TransitionInput, actor Actor) (*models.SRD, error) {
	if !input.Status.Valid() {
		return nil, errors.WithStack(models.ErrInvalidStatus)
	}
	flagging := input.Status == models.DeptStatusFlagged
	comment := strings.TrimSpace(input.Comment)
	if flagging && comment == "" {
		return nil, errors.WithStack(models.ErrCommentRequired)
	}

	unlock := s.lock(id)
	defer unlock()

	var srd *models.SRD
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		srd, err = s.srds.WithTx(tx).FindByID(ctx, id)
		if err != nil {
			return err
		}
		participating, err := s.departments.ListParticipatingSlugs(ctx)
		if err != nil {
			return err
		}
		if !contains(participating, input.Department) {
			return errors.WithStack(models.ErrUnknownDepartment)
		}

		now := s.now()
		for _, name := range sortedKeys(input.Fields) {
			srd.UpsertField(input.Department, name, input.Fields[name])
		}
		if srd.Status == nil {
			srd.Status = models.StatusMap{}
		}
		srd.Status[input.Department] = input.Status

		if comment != "" {
			srd.AppendComment(models.Comment{
				Department: input.Department,
				Author:     actor.Name,
				Role:       actor.Role,
				Text:       comment,
				Date:       now,
			})
		}
		action := models.AuditStatusChanged
		if flagging {
			action = models.AuditFlagged
		}
		srd.AppendAudit(models.AuditEntry{
			Department: input.Department,
			Author:     actor.Name,
			Action:     action,
			Comment:    comment,
			Date:       now,
			Details:    map[string]any{"status": string(input.Status)},
		})

		res := approval.Recompute(srd.Status, participating)
		srd.Progress = res.Progress
		srd.ReadyForProduction = res.ReadyForProduction

		return s.srds.WithTx(tx).Save(ctx, srd)
	})
	if err != nil {
		return nil, err
	}

	event := "srd.status"
	if flagging {
		event = "srd.flagged"
	}
	s.publishEvent(ctx, event, srd, map[string]any{
		"department": input.Department,
		"newStatus":  string(input.Status),
		"comment":    comment,
	})
	return srd, nil
}

// Patchable fields for the generic update path. Everything derived by the
// engines is rejected here.
var (
	patchableFields = map[string]bool{
		"title":       true,
		"description": true,
		"requester":   true,
		"metadata":    true,
	}
	derivedFields = map[string]bool{
		"status":                 true,
		"progress":               true,
		"readyForProduction":     true,
		"inProduction":           true,
		"productionStartDate":    true,
		"productionEndDate":      true,
		"currentProductionStage": true,
		"productionProgress":     true,
		"productionHistory":      true,
		"comments":               true,
		"audit":                  true,
		"refNo":                  true,
	}
)

// UpdateInput is a partial patch of the SRD's free fields.
type UpdateInput map[string]any

// Update applies a generic field patch. Derived workflow fields only change
// through the engines and are rejected with ErrReadOnlyField; unrecognized
// keys are rejected as well.
func (s *SRDService) Update(ctx context.Context, id uuid.UUID, patch UpdateInput) (*models.SRD, error) {
	for key := range patch {
		if derivedFields[key] {
			return nil, errors.Wrapf(models.ErrReadOnlyField, "field %q", key)
		}
		if !patchableFields[key] {
			return nil, errors.Wrapf(models.ErrUnknownField, "field %q", key)
		}
	}

	unlock := s.lock(id)
	defer unlock()

	var srd *models.SRD
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		srd, err = s.srds.WithTx(tx).FindByID(ctx, id)
		if err != nil {
			return err
		}
		if v, ok := patch["title"].(string); ok {
			srd.Title = v
		}
		if v, ok := patch["description"].(string); ok {
			srd.Description = v
		}
		if v, ok := patch["requester"].(string); ok {
			srd.Requester = v
		}
		if v, ok := patch["metadata"]; ok {
			raw, err := json.Marshal(v)
			if err != nil {
				return errors.WithStack(err)
			}
			srd.Metadata = datatypes.JSON(raw)
		}
		return s.srds.WithTx(tx).Save(ctx, srd)
	})
	if err != nil {
		return nil, err
	}
	return srd, nil
}

// Delete removes the aggregate unconditionally.
func (s *SRDService) Delete(ctx context.Context, id uuid.UUID, actor Actor) error {
	unlock := s.lock(id)
	defer unlock()

	srd, err := s.srds.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if err := s.srds.Delete(ctx, id); err != nil {
		return err
	}
	s.publishEvent(ctx, "srd.deleted", srd, map[string]any{"deletedBy": actor.Name})
	return nil
}

// TimelineEntry is one merged audit or comment item.
type TimelineEntry struct {
	Kind       string         `json:"kind"`
	Date       time.Time      `json:"date"`
	Department string         `json:"department,omitempty"`
	Author     string         `json:"author"`
	Action     string         `json:"action,omitempty"`
	Text       string         `json:"text,omitempty"`
	Details    map[string]any `json:"details,omitempty"`
}

// Timeline merges the audit log and comment thread into one list sorted by
// timestamp descending. Read-only.
func (s *SRDService) Timeline(ctx context.Context, id uuid.UUID) ([]TimelineEntry, error) {
	srd, err := s.srds.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	entries := make([]TimelineEntry, 0, len(srd.Audit)+len(srd.Comments))
	for _, e := range srd.Audit {
		entries = append(entries, TimelineEntry{
			Kind:       "audit",
			Date:       e.Date,
			Department: e.Department,
			Author:     e.Author,
			Action:     string(e.Action),
			Text:       e.Comment,
			Details:    e.Details,
		})
	}
	for _, c := range srd.Comments {
		entries = append(entries, TimelineEntry{
			Kind:       "comment",
			Date:       c.Date,
			Department: c.Department,
			Author:     c.Author,
			Text:       c.Text,
		})
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Date.After(entries[j].Date)
	})
	return entries, nil
}

// Diagnostics runs the read-only consistency check against the live registry.
func (s *SRDService) Diagnostics(ctx context.Context, id uuid.UUID) (*approval.Report, error) {
	srd, err := s.srds.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	participating, err := s.departments.ListParticipatingSlugs(ctx)
	if err != nil {
		return nil, err
	}
	excluded, err := s.departments.ListExcludedSlugs(ctx)
	if err != nil {
		return nil, err
	}
	report := approval.Diagnose(srd, participating, excluded)
	return &report, nil
}

// AutoFix deterministically repairs the status map and derived fields.
// Idempotent: a second run returns an empty change list and writes nothing.
func (s *SRDService) AutoFix(ctx context.Context, id uuid.UUID, actor Actor) ([]string, *models.SRD, error) {
	unlock := s.lock(id)
	defer unlock()

	var (
		srd     *models.SRD
		changes []string
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		srd, err = s.srds.WithTx(tx).FindByID(ctx, id)
		if err != nil {
			return err
		}
		participating, err := s.departments.ListParticipatingSlugs(ctx)
		if err != nil {
			return err
		}
		excluded, err := s.departments.ListExcludedSlugs(ctx)
		if err != nil {
			return err
		}
		changes = approval.AutoFix(srd, participating, excluded)
		if len(changes) == 0 {
			return nil
		}
		srd.AppendAudit(models.AuditEntry{
			Author:  actor.Name,
			Action:  models.AuditAutoFixed,
			Date:    s.now(),
			Details: map[string]any{"changes": changes},
		})
		return s.srds.WithTx(tx).Save(ctx, srd)
	})
	if err != nil {
		return nil, nil, err
	}
	if len(changes) > 0 {
		s.publishEvent(ctx, "srd.status", srd, map[string]any{"autoFix": changes})
	}
	return changes, srd, nil
}

// StartProduction moves a fully-approved SRD into the first active stage.
func (s *SRDService) StartProduction(ctx context.Context, id uuid.UUID, actor Actor) (*models.SRD, error) {
	unlock := s.lock(id)
	defer unlock()

	var srd *models.SRD
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		srd, err = s.srds.WithTx(tx).FindByID(ctx, id)
		if err != nil {
			return err
		}
		stages, err := s.stages.ListActive(ctx)
		if err != nil {
			return err
		}
		if err := production.Start(srd, stages, actor.Name, s.now()); err != nil {
			return err
		}
		return s.srds.WithTx(tx).Save(ctx, srd)
	})
	if err != nil {
		return nil, err
	}
	s.publishEvent(ctx, "srd.production.started", srd, nil)
	return srd, nil
}

// CompleteStageInput carries the stage completion request.
type CompleteStageInput struct {
	StageName   string
	CompletedBy string
	Notes       string
}

// CompleteStage closes the current production stage and advances or finishes
// production. When StageName is supplied the advance is rejected unless it
// names the current stage.
func (s *SRDService) CompleteStage(ctx context.Context, id uuid.UUID, input CompleteStageInput, actor Actor) (*models.SRD, error) {
	completedBy := input.CompletedBy
	if completedBy == "" {
		completedBy = actor.Name
	}

	unlock := s.lock(id)
	defer unlock()

	var (
		srd  *models.SRD
		done bool
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		srd, err = s.srds.WithTx(tx).FindByID(ctx, id)
		if err != nil {
			return err
		}
		stages, err := s.stages.ListActive(ctx)
		if err != nil {
			return err
		}
		now := s.now()
		if input.StageName != "" {
			done, err = production.CompleteStageNamed(srd, stages, input.StageName, completedBy, input.Notes, now)
		} else {
			done, err = production.CompleteStage(srd, stages, completedBy, input.Notes, now)
		}
		if err != nil {
			return err
		}
		return s.srds.WithTx(tx).Save(ctx, srd)
	})
	if err != nil {
		return nil, err
	}

	event := "srd.production.stage"
	if done {
		event = "srd.production.completed"
	}
	s.publishEvent(ctx, event, srd, map[string]any{"completedBy": completedBy})
	return srd, nil
}

// UpdateStageStatus edits the open production history entry in place. No
// stage transition and no audit entry, matching the lenient edit semantics.
func (s *SRDService) UpdateStageStatus(ctx context.Context, id uuid.UUID, status models.StageStatus, notes string) (*models.SRD, error) {
	unlock := s.lock(id)
	defer unlock()

	var srd *models.SRD
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		srd, err = s.srds.WithTx(tx).FindByID(ctx, id)
		if err != nil {
			return err
		}
		if err := production.UpdateStageStatus(srd, status, notes); err != nil {
			return err
		}
		return s.srds.WithTx(tx).Save(ctx, srd)
	})
	if err != nil {
		return nil, err
	}
	return srd, nil
}

// publishEvent sends a domain event after the surrounding mutation has been
// committed. Failures are logged and swallowed.
func (s *SRDService) publishEvent(ctx context.Context, event string, srd *models.SRD, extra map[string]any) {
	if s.events == nil {
		return
	}
	payload := map[string]any{
		"event":              event,
		"id":                 srd.ID.String(),
		"refNo":              srd.RefNo,
		"progress":           srd.Progress,
		"readyForProduction": srd.ReadyForProduction,
		"inProduction":       srd.InProduction,
		"occurredAt":         s.now().UTC().Format(time.RFC3339),
	}
	for k, v := range extra {
		payload[k] = v
	}
	if err := s.events.Publish(ctx, event, payload); err != nil {
		s.logger.Warn("publish event failed", zap.String("event", event), zap.Error(err))
	}
}

func (s *SRDService) lock(id uuid.UUID) func() {
	v, _ := s.locks.LoadOrStore(id, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
