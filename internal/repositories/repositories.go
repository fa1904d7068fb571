package repositories

import (
	"context"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"example.com/studyabroad/services/applications/internal/apperrors"
	"example.com/studyabroad/services/applications/internal/models"
)

// ApplicationStore is the persistence boundary for the application engine.
// Transact runs fn against a store scoped to one database transaction; any
// error from fn rolls back every write made within it.
type ApplicationStore interface {
	Transact(ctx context.Context, fn func(tx ApplicationStore) error) error

	CreateApplication(ctx context.Context, app *models.Application) error
	GetApplication(ctx context.Context, id uuid.UUID) (*models.Application, error)
	// GetApplicationForUpdate loads an application holding a row lock so a
	// status check and the subsequent update are race-free. Only meaningful
	// inside Transact.
	GetApplicationForUpdate(ctx context.Context, id uuid.UUID) (*models.Application, error)
	UpdateApplicationStatus(ctx context.Context, id uuid.UUID, status models.Status) error
	ListApplicationsByStudent(ctx context.Context, studentID uuid.UUID, limit int) ([]models.Application, error)

	// CreateRequiredDocuments inserts the policy snapshot, silently skipping
	// rows that collide on (application_id, doc_type_id).
	CreateRequiredDocuments(ctx context.Context, rows []models.RequiredDocument) error
	GetRequiredDocument(ctx context.Context, applicationID, docTypeID uuid.UUID) (*models.RequiredDocument, error)
	// GetRequiredDocumentForUpdate locks the snapshot row so concurrent
	// attaches for the same doc type serialize on it.
	GetRequiredDocumentForUpdate(ctx context.Context, applicationID, docTypeID uuid.UUID) (*models.RequiredDocument, error)
	ListRequiredDocuments(ctx context.Context, applicationID uuid.UUID) ([]models.RequiredDocument, error)

	CreateAttachedDocument(ctx context.Context, doc *models.AttachedDocument) error
	CountAttachedDocuments(ctx context.Context, applicationID, docTypeID uuid.UUID) (int64, error)
	CountAttachedDocumentsByType(ctx context.Context, applicationID uuid.UUID) (map[uuid.UUID]int64, error)

	CreateEvent(ctx context.Context, event *models.Event) error
	ListEvents(ctx context.Context, applicationID uuid.UUID) ([]models.Event, error)
	ListUnpublishedEvents(ctx context.Context, limit int) ([]models.Event, error)
	MarkEventPublished(ctx context.Context, id uuid.UUID) error
}

// ErrNotFound is returned by lookups when no row matches.
var ErrNotFound = apperrors.New(apperrors.KindNotFound, "record not found")

// GormStore implements ApplicationStore on GORM.
type GormStore struct {
	db         *gorm.DB // Write database
	readOnlyDB *gorm.DB // Read-only database
}

// NewGormStore creates a store over write and read-only connections.
func NewGormStore(db, readOnlyDB *gorm.DB) *GormStore {
	return &GormStore{db: db, readOnlyDB: readOnlyDB}
}

// Transact implements ApplicationStore. The transactional store routes all
// operations, reads included, through the transaction connection.
func (s *GormStore) Transact(ctx context.Context, fn func(tx ApplicationStore) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&GormStore{db: tx, readOnlyDB: tx})
	})
}

// CreateApplication implements ApplicationStore.
func (s *GormStore) CreateApplication(ctx context.Context, app *models.Application) error {
	if err := s.db.WithContext(ctx).Create(app).Error; err != nil {
		return errors.Wrap(err, "failed to create application")
	}
	return nil
}

// GetApplication implements ApplicationStore.
func (s *GormStore) GetApplication(ctx context.Context, id uuid.UUID) (*models.Application, error) {
	var app models.Application
	err := s.readOnlyDB.WithContext(ctx).Where("id = ?", id).First(&app).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.New(apperrors.KindNotFound, "application not found")
		}
		return nil, errors.Wrap(err, "failed to get application")
	}
	return &app, nil
}

// GetApplicationForUpdate implements ApplicationStore.
func (s *GormStore) GetApplicationForUpdate(ctx context.Context, id uuid.UUID) (*models.Application, error) {
	var app models.Application
	err := s.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&app).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.New(apperrors.KindNotFound, "application not found")
		}
		return nil, errors.Wrap(err, "failed to lock application")
	}
	return &app, nil
}

// UpdateApplicationStatus implements ApplicationStore.
func (s *GormStore) UpdateApplicationStatus(ctx context.Context, id uuid.UUID, status models.Status) error {
	result := s.db.WithContext(ctx).
		Model(&models.Application{}).
		Where("id = ?", id).
		Update("status", status)
	if result.Error != nil {
		return errors.Wrap(result.Error, "failed to update application status")
	}
	if result.RowsAffected == 0 {
		return apperrors.New(apperrors.KindNotFound, "application not found")
	}
	return nil
}

// ListApplicationsByStudent implements ApplicationStore, newest first.
func (s *GormStore) ListApplicationsByStudent(ctx context.Context, studentID uuid.UUID, limit int) ([]models.Application, error) {
	var apps []models.Application
	err := s.readOnlyDB.WithContext(ctx).
		Where("student_id = ?", studentID).
		Order("created_at DESC").
		Limit(limit).
		Find(&apps).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to list applications")
	}
	return apps, nil
}

// CreateRequiredDocuments implements ApplicationStore.
func (s *GormStore) CreateRequiredDocuments(ctx context.Context, rows []models.RequiredDocument) error {
	if len(rows) == 0 {
		return nil
	}
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&rows).Error
	if err != nil {
		return errors.Wrap(err, "failed to create required document snapshot")
	}
	return nil
}

// GetRequiredDocument implements ApplicationStore.
func (s *GormStore) GetRequiredDocument(ctx context.Context, applicationID, docTypeID uuid.UUID) (*models.RequiredDocument, error) {
	var req models.RequiredDocument
	err := s.readOnlyDB.WithContext(ctx).
		Where("application_id = ? AND doc_type_id = ?", applicationID, docTypeID).
		First(&req).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrap(err, "failed to get required document")
	}
	return &req, nil
}

// GetRequiredDocumentForUpdate implements ApplicationStore.
func (s *GormStore) GetRequiredDocumentForUpdate(ctx context.Context, applicationID, docTypeID uuid.UUID) (*models.RequiredDocument, error) {
	var req models.RequiredDocument
	err := s.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("application_id = ? AND doc_type_id = ?", applicationID, docTypeID).
		First(&req).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrap(err, "failed to lock required document")
	}
	return &req, nil
}

// ListRequiredDocuments implements ApplicationStore.
func (s *GormStore) ListRequiredDocuments(ctx context.Context, applicationID uuid.UUID) ([]models.RequiredDocument, error) {
	var reqs []models.RequiredDocument
	err := s.readOnlyDB.WithContext(ctx).
		Where("application_id = ?", applicationID).
		Find(&reqs).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to list required documents")
	}
	return reqs, nil
}

// CreateAttachedDocument implements ApplicationStore.
func (s *GormStore) CreateAttachedDocument(ctx context.Context, doc *models.AttachedDocument) error {
	if err := s.db.WithContext(ctx).Create(doc).Error; err != nil {
		return errors.Wrap(err, "failed to create attached document")
	}
	return nil
}

// CountAttachedDocuments implements ApplicationStore.
func (s *GormStore) CountAttachedDocuments(ctx context.Context, applicationID, docTypeID uuid.UUID) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&models.AttachedDocument{}).
		Where("application_id = ? AND doc_type_id = ?", applicationID, docTypeID).
		Count(&count).Error
	if err != nil {
		return 0, errors.Wrap(err, "failed to count attached documents")
	}
	return count, nil
}

// CountAttachedDocumentsByType implements ApplicationStore.
func (s *GormStore) CountAttachedDocumentsByType(ctx context.Context, applicationID uuid.UUID) (map[uuid.UUID]int64, error) {
	var results []struct {
		DocTypeID uuid.UUID
		Count     int64
	}
	err := s.db.WithContext(ctx).
		Model(&models.AttachedDocument{}).
		Select("doc_type_id, count(*) as count").
		Where("application_id = ?", applicationID).
		Group("doc_type_id").
		Scan(&results).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to count attached documents by type")
	}

	counts := make(map[uuid.UUID]int64, len(results))
	for _, r := range results {
		counts[r.DocTypeID] = r.Count
	}
	return counts, nil
}

// CreateEvent implements ApplicationStore.
func (s *GormStore) CreateEvent(ctx context.Context, event *models.Event) error {
	if err := s.db.WithContext(ctx).Create(event).Error; err != nil {
		return errors.Wrap(err, "failed to create event")
	}
	return nil
}

// ListEvents implements ApplicationStore, oldest first.
func (s *GormStore) ListEvents(ctx context.Context, applicationID uuid.UUID) ([]models.Event, error) {
	var events []models.Event
	err := s.readOnlyDB.WithContext(ctx).
		Where("application_id = ?", applicationID).
		Order("created_at ASC").
		Find(&events).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to list events")
	}
	return events, nil
}

// ListUnpublishedEvents implements ApplicationStore.
func (s *GormStore) ListUnpublishedEvents(ctx context.Context, limit int) ([]models.Event, error) {
	var events []models.Event
	err := s.readOnlyDB.WithContext(ctx).
		Where("published = ?", false).
		Order("created_at ASC").
		Limit(limit).
		Find(&events).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to list unpublished events")
	}
	return events, nil
}

// MarkEventPublished implements ApplicationStore.
func (s *GormStore) MarkEventPublished(ctx context.Context, id uuid.UUID) error {
	result := s.db.WithContext(ctx).
		Model(&models.Event{}).
		Where("id = ?", id).
		Update("published", true)
	if result.Error != nil {
		return errors.Wrap(result.Error, "failed to mark event published")
	}
	if result.RowsAffected == 0 {
		return errors.New("no event updated")
	}
	return nil
}
