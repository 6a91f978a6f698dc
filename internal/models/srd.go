package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// StatusMap maps a participating department slug to its current status.
// Administrative roles must never appear as keys.
type StatusMap map[string]DepartmentStatus

// DynamicField is one per-department custom field value. The
// (Department, Name) pair is the natural key for upserts.
type DynamicField struct {
	Department string `json:"department"`
	Name       string `json:"name"`
	Value      string `json:"value"`
}

// DynamicFields preserves insertion order for display.
type DynamicFields []DynamicField

// Comment is an append-only remark left by a department member.
type Comment struct {
	Department string    `json:"department"`
	Author     string    `json:"author"`
	Role       string    `json:"role"`
	Text       string    `json:"text"`
	Date       time.Time `json:"date"`
}

// Comments is the SRD comment thread, oldest first.
type Comments []Comment

// AuditEntry records one state transition for traceability.
type AuditEntry struct {
	Department string         `json:"department,omitempty"`
	Author     string         `json:"author"`
	Action     AuditAction    `json:"action"`
	Comment    string         `json:"comment,omitempty"`
	Date       time.Time      `json:"date"`
	Details    map[string]any `json:"details,omitempty"`
}

// AuditLog is the append-only transition history, oldest first.
type AuditLog []AuditEntry

// ProductionRecord is one stage pass in the production history.
type ProductionRecord struct {
	StageID     uuid.UUID   `json:"stage"`
	StageName   string      `json:"stageName"`
	StartDate   time.Time   `json:"startDate"`
	EndDate     *time.Time  `json:"endDate,omitempty"`
	CompletedBy string      `json:"completedBy,omitempty"`
	Notes       string      `json:"notes,omitempty"`
	Status      StageStatus `json:"status"`
}

// ProductionHistory is ordered by stage start time.
type ProductionHistory []ProductionRecord

// SRD is the aggregate root: one sample request moving through departmental
// approval and, once fully approved, the staged production pipeline.
//
// Progress, ReadyForProduction and all production fields are derived by the
// approval/production engines and are rejected by the generic patch path.
type SRD struct {
	ID          uuid.UUID `json:"id" gorm:"type:uuid;primaryKey"`
	RefNo       string    `json:"refNo" gorm:"type:varchar(64);uniqueIndex;not null"`
	Title       string    `json:"title" gorm:"type:varchar(200);not null"`
	Description string    `json:"description" gorm:"type:text"`
	Requester   string    `json:"requester" gorm:"type:varchar(100)"`

	Status             StatusMap     `json:"status" gorm:"type:jsonb"`
	Progress           int           `json:"progress" gorm:"not null;default:0"`
	ReadyForProduction bool          `json:"readyForProduction" gorm:"not null;default:false"`
	DynamicFields      DynamicFields `json:"dynamicFields" gorm:"type:jsonb"`
	Comments           Comments      `json:"comments" gorm:"type:jsonb"`
	Audit              AuditLog      `json:"audit" gorm:"type:jsonb"`

	InProduction             bool              `json:"inProduction" gorm:"not null;default:false"`
	ProductionStartDate      *time.Time        `json:"productionStartDate"`
	ProductionEndDate        *time.Time        `json:"productionEndDate"`
	CurrentProductionStageID *uuid.UUID        `json:"currentProductionStage" gorm:"type:uuid"`
	ProductionProgress       int               `json:"productionProgress" gorm:"not null;default:0"`
	ProductionHistory        ProductionHistory `json:"productionHistory" gorm:"type:jsonb"`

	Metadata  datatypes.JSON `json:"metadata,omitempty" gorm:"type:jsonb"`
	CreatedAt time.Time      `json:"createdAt"`
	UpdatedAt time.Time      `json:"updatedAt"`
}

// BeforeCreate is a GORM hook that populates the primary key and guards
// against nil collections.
func (s *SRD) BeforeCreate(tx *gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	if s.Status == nil {
		s.Status = StatusMap{}
	}
	return nil
}

// UpsertField updates the value for (department, name) in place, or appends a
// new field when the pair is not present. Reports whether a field was added.
func (s *SRD) UpsertField(department, name, value string) bool {
	for i := range s.DynamicFields {
		if s.DynamicFields[i].Department == department && s.DynamicFields[i].Name == name {
			s.DynamicFields[i].Value = value
			return false
		}
	}
	s.DynamicFields = append(s.DynamicFields, DynamicField{Department: department, Name: name, Value: value})
	return true
}

// AppendComment appends to the comment thread.
func (s *SRD) AppendComment(c Comment) {
	s.Comments = append(s.Comments, c)
}

// AppendAudit appends to the audit log.
func (s *SRD) AppendAudit(e AuditEntry) {
	s.Audit = append(s.Audit, e)
}

// OpenProductionRecord returns the last history entry that has not been
// closed yet, or nil when production is idle.
func (s *SRD) OpenProductionRecord() *ProductionRecord {
	for i := len(s.ProductionHistory) - 1; i >= 0; i-- {
		if s.ProductionHistory[i].EndDate == nil && s.ProductionHistory[i].Status != StageStatusCompleted {
			return &s.ProductionHistory[i]
		}
	}
	return nil
}

// CompletedStageCount counts closed production history entries.
func (s *SRD) CompletedStageCount() int {
	n := 0
	for _, rec := range s.ProductionHistory {
		if rec.Status == StageStatusCompleted {
			n++
		}
	}
	return n
}

func jsonValue(v any) (driver.Value, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return b, nil
}

func jsonScan(dst any, value any) error {
	if value == nil {
		return nil
	}
	switch v := value.(type) {
	case []byte:
		return errors.WithStack(json.Unmarshal(v, dst))
	case string:
		return errors.WithStack(json.Unmarshal([]byte(v), dst))
	default:
		return errors.Errorf("unsupported jsonb source type %T", value)
	}
}

// Value implements driver.Valuer.
func (m StatusMap) Value() (driver.Value, error) { return jsonValue(m) }

// Scan implements sql.Scanner.
func (m *StatusMap) Scan(value any) error { return jsonScan(m, value) }

// Value implements driver.Valuer.
func (f DynamicFields) Value() (driver.Value, error) { return jsonValue(f) }

// Scan implements sql.Scanner.
func (f *DynamicFields) Scan(value any) error { return jsonScan(f, value) }

// Value implements driver.Valuer.
func (c Comments) Value() (driver.Value, error) { return jsonValue(c) }

// Scan implements sql.Scanner.
func (c *Comments) Scan(value any) error { return jsonScan(c, value) }

// Value implements driver.Valuer.
func (l AuditLog) Value() (driver.Value, error) { return jsonValue(l) }

// Scan implements sql.Scanner.
func (l *AuditLog) Scan(value any) error { return jsonScan(l, value) }

// Value implements driver.Valuer.
func (h ProductionHistory) Value() (driver.Value, error) { return jsonValue(h) }

// Scan implements sql.Scanner.
func (h *ProductionHistory) Scan(value any) error { return jsonScan(h, value) }
