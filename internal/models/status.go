package models

// DepartmentStatus describes one department's position on an SRD.
type DepartmentStatus string

const (
	DeptStatusPending    DepartmentStatus = "pending"
	DeptStatusInProgress DepartmentStatus = "in-progress"
	DeptStatusApproved   DepartmentStatus = "approved"
	DeptStatusFlagged    DepartmentStatus = "flagged"
)

// Valid reports whether s is one of the closed department status values.
func (s DepartmentStatus) Valid() bool {
	switch s {
	case DeptStatusPending, DeptStatusInProgress, DeptStatusApproved, DeptStatusFlagged:
		return true
	}
	return false
}

// StageStatus describes the state of a single production history entry.
type StageStatus string

const (
	StageStatusPending    StageStatus = "pending"
	StageStatusInProgress StageStatus = "in-progress"
	StageStatusCompleted  StageStatus = "completed"
	StageStatusOnHold     StageStatus = "on-hold"
)

// Valid reports whether s is one of the closed stage status values.
func (s StageStatus) Valid() bool {
	switch s {
	case StageStatusPending, StageStatusInProgress, StageStatusCompleted, StageStatusOnHold:
		return true
	}
	return false
}

// AuditAction tags one audit entry with the transition it records.
type AuditAction string

const (
	AuditCreated             AuditAction = "created"
	AuditStatusChanged       AuditAction = "status_changed"
	AuditFlagged             AuditAction = "flagged"
	AuditAutoFixed           AuditAction = "auto_fixed"
	AuditProductionStarted   AuditAction = "production_started"
	AuditProductionStageDone AuditAction = "production_stage_completed"
	AuditProductionCompleted AuditAction = "production_completed"
)
