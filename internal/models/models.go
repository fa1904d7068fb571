package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gorm.io/gorm"
)

// Status is the lifecycle state of an application.
type Status string

const (
	StatusDraft            Status = "Draft"
	StatusSubmitted        Status = "Submitted"
	StatusUnderReview      Status = "UnderReview"
	StatusOffer            Status = "Offer"
	StatusConditionalOffer Status = "ConditionalOffer"
	StatusRejected         Status = "Rejected"
	StatusAccepted         Status = "Accepted"
	StatusWithdrawn        Status = "Withdrawn"
)

// Valid reports whether s is one of the defined statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusDraft, StatusSubmitted, StatusUnderReview, StatusOffer,
		StatusConditionalOffer, StatusRejected, StatusAccepted, StatusWithdrawn:
		return true
	}
	return false
}

// Terminal reports whether s has no outbound transitions.
func (s Status) Terminal() bool {
	return s == StatusAccepted || s == StatusRejected || s == StatusWithdrawn
}

// Event types recorded in the audit log.
const (
	EventCreated       = "created"
	EventDocAttached   = "doc_attached"
	EventStatusChanged = "status_changed"
)

// Requirement provenance values.
const (
	SourceProgram = "program"
	SourceStudent = "student"
)

// Application is a student's application to a program intake.
// StudentID, ProgramID and IntakeID are immutable after creation.
type Application struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	CreatedAt time.Time `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
	StudentID uuid.UUID `gorm:"type:uuid;not null;index" json:"student_id"`
	ProgramID uuid.UUID `gorm:"type:uuid;not null;index" json:"program_id"`
	IntakeID  uuid.UUID `gorm:"type:uuid;not null" json:"intake_id"`
	Status    Status    `gorm:"type:varchar(32);not null;index" json:"status"`

	RequiredDocuments []RequiredDocument `gorm:"foreignKey:ApplicationID;constraint:OnDelete:CASCADE" json:"-"`
	AttachedDocuments []AttachedDocument `gorm:"foreignKey:ApplicationID;constraint:OnDelete:CASCADE" json:"-"`
	Events            []Event            `gorm:"foreignKey:ApplicationID;constraint:OnDelete:CASCADE" json:"-"`
}

// RequiredDocument is one row of the policy snapshot taken at application
// creation. Rows are never updated; the unique index on
// (application_id, doc_type_id) backs the conflict-ignoring snapshot insert.
type RequiredDocument struct {
	ID            uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	CreatedAt     time.Time `gorm:"autoCreateTime" json:"created_at"`
	ApplicationID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:uq_app_reqdoc_app_doctype" json:"application_id"`
	DocTypeID     uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:uq_app_reqdoc_app_doctype" json:"doc_type_id"`
	IsMandatory   bool      `gorm:"not null;default:true" json:"is_mandatory"`
	MinItems      int       `gorm:"not null;default:1" json:"min_items"`
	MaxItems      int       `gorm:"not null;default:1" json:"max_items"`
	Source        string    `gorm:"type:varchar(16);not null" json:"source"`
}

// AttachedDocument links an externally verified student document to an
// application under a doc type from the snapshot. Rows accumulate, never
// change.
type AttachedDocument struct {
	ID                uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	CreatedAt         time.Time `gorm:"autoCreateTime" json:"created_at"`
	ApplicationID     uuid.UUID `gorm:"type:uuid;not null;index" json:"application_id"`
	DocTypeID         uuid.UUID `gorm:"type:uuid;not null;index" json:"doc_type_id"`
	StudentDocumentID uuid.UUID `gorm:"type:uuid;not null" json:"student_document_id"`
}

// Event is an append-only audit record. Published tracks whether the event
// has been forwarded to the downstream service bus; the worker retries
// unpublished rows.
type Event struct {
	ID            uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	CreatedAt     time.Time `gorm:"autoCreateTime;index" json:"created_at"`
	ApplicationID uuid.UUID `gorm:"type:uuid;not null;index" json:"application_id"`
	ActorID       uuid.UUID `gorm:"type:uuid;not null" json:"actor_id"`
	EventType     string    `gorm:"type:varchar(32);not null" json:"event_type"`
	FromStatus    *Status   `gorm:"type:varchar(32)" json:"from_status,omitempty"`
	ToStatus      *Status   `gorm:"type:varchar(32)" json:"to_status,omitempty"`
	Note          string    `gorm:"type:text" json:"note"`
	Published     bool      `gorm:"not null;default:false;index" json:"-"`
}

// SetupModels runs the schema migrations for all application entities.
func SetupModels(db *gorm.DB) error {
	err := db.AutoMigrate(
		&Application{},
		&RequiredDocument{},
		&AttachedDocument{},
		&Event{},
	)
	if err != nil {
		return errors.Wrap(err, "failed to run auto migrations")
	}
	return nil
}
