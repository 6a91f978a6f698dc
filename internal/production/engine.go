// Package production advances a fully-approved SRD through the ordered stage
// pipeline. Functions mutate the aggregate in memory only; callers run them
// inside a transaction and persist the result.
package production

import (
	"math"
	"time"

	"github.com/example/srdflow/internal/models"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// Start moves a ready SRD into production at the first active stage.
// Stages must be the active set ordered ascending by order value.
func Start(srd *models.SRD, stages []models.ProductionStage, actor string, now time.Time) error {
	if !srd.ReadyForProduction {
		return errors.WithStack(models.ErrNotReady)
	}
	if len(stages) == 0 {
		return errors.WithStack(models.ErrNoStagesConfigured)
	}

	first := stages[0]
	srd.InProduction = true
	srd.ProductionStartDate = &now
	srd.ProductionEndDate = nil
	srd.CurrentProductionStageID = &first.ID
	srd.ProductionProgress = 0
	srd.ProductionHistory = models.ProductionHistory{{
		StageID:   first.ID,
		StageName: first.Name,
		StartDate: now,
		Status:    models.StageStatusInProgress,
	}}
	srd.AppendAudit(models.AuditEntry{
		Author: actor,
		Action: models.AuditProductionStarted,
		Date:   now,
		Details: map[string]any{
			"stage":     first.ID.String(),
			"stageName": first.Name,
		},
	})
	return nil
}

// CompleteStage closes the current stage and either advances to the next
// active stage (minimal order strictly greater than the current one) or, when
// none remains, finishes production. Reports whether production completed.
func CompleteStage(srd *models.SRD, stages []models.ProductionStage, completedBy, notes string, now time.Time) (bool, error) {
	if !srd.InProduction {
		return false, errors.WithStack(models.ErrNotInProduction)
	}

	current := findStage(stages, srd.CurrentProductionStageID)

	open := srd.OpenProductionRecord()
	if open != nil {
		open.EndDate = &now
		open.Status = models.StageStatusCompleted
		open.CompletedBy = completedBy
		if notes != "" {
			open.Notes = notes
		}
	}

	next := nextStage(stages, current)
	if next == nil {
		srd.InProduction = false
		srd.ProductionEndDate = &now
		srd.ProductionProgress = 100
		srd.CurrentProductionStageID = nil
		srd.AppendAudit(models.AuditEntry{
			Author:  completedBy,
			Action:  models.AuditProductionCompleted,
			Comment: notes,
			Date:    now,
		})
		return true, nil
	}

	srd.CurrentProductionStageID = &next.ID
	srd.ProductionHistory = append(srd.ProductionHistory, models.ProductionRecord{
		StageID:   next.ID,
		StageName: next.Name,
		StartDate: now,
		Status:    models.StageStatusInProgress,
	})
	srd.ProductionProgress = progress(srd.CompletedStageCount(), len(stages))
	srd.AppendAudit(models.AuditEntry{
		Author:  completedBy,
		Action:  models.AuditProductionStageDone,
		Comment: notes,
		Date:    now,
		Details: map[string]any{
			"nextStage":     next.ID.String(),
			"nextStageName": next.Name,
		},
	})
	return false, nil
}

// CompleteStageNamed is the name-checked advance variant: the caller states
// which stage it believes is current and the call is rejected on mismatch.
func CompleteStageNamed(srd *models.SRD, stages []models.ProductionStage, stageName, completedBy, notes string, now time.Time) (bool, error) {
	if !srd.InProduction {
		return false, errors.WithStack(models.ErrNotInProduction)
	}
	current := findStage(stages, srd.CurrentProductionStageID)
	if current == nil || current.Name != stageName {
		return false, errors.WithStack(models.ErrStageMismatch)
	}
	return CompleteStage(srd, stages, completedBy, notes, now)
}

// UpdateStageStatus edits the currently open history entry in place. No stage
// transition happens and no audit entry is written; the status is confined to
// the closed stage-status enum.
func UpdateStageStatus(srd *models.SRD, status models.StageStatus, notes string) error {
	if !srd.InProduction {
		return errors.WithStack(models.ErrNotInProduction)
	}
	if !status.Valid() {
		return errors.WithStack(models.ErrInvalidStageStatus)
	}
	open := srd.OpenProductionRecord()
	if open == nil {
		return errors.WithStack(models.ErrNotInProduction)
	}
	open.Status = status
	if notes != "" {
		open.Notes = notes
	}
	return nil
}

func findStage(stages []models.ProductionStage, id *uuid.UUID) *models.ProductionStage {
	if id == nil {
		return nil
	}
	for i := range stages {
		if stages[i].ID == *id {
			return &stages[i]
		}
	}
	return nil
}

// nextStage picks the active stage with the minimal order strictly greater
// than the current stage's order. A nil current stage (retired mid-run)
// yields no successor, which finishes production.
func nextStage(stages []models.ProductionStage, current *models.ProductionStage) *models.ProductionStage {
	if current == nil {
		return nil
	}
	var best *models.ProductionStage
	for i := range stages {
		if stages[i].Order <= current.Order {
			continue
		}
		if best == nil || stages[i].Order < best.Order {
			best = &stages[i]
		}
	}
	return best
}

func progress(completed, total int) int {
	if total == 0 {
		return 0
	}
	return int(math.Round(100 * float64(completed) / float64(total)))
}
