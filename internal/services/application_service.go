package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"example.com/studyabroad/services/applications/internal/apperrors"
	"example.com/studyabroad/services/applications/internal/auth"
	"example.com/studyabroad/services/applications/internal/clients"
	"example.com/studyabroad/services/applications/internal/messaging"
	"example.com/studyabroad/services/applications/internal/metrics"
	"example.com/studyabroad/services/applications/internal/models"
	"example.com/studyabroad/services/applications/internal/policy"
	"example.com/studyabroad/services/applications/internal/repositories"
	"example.com/studyabroad/services/applications/internal/tracing"

	"golang.org/x/sync/errgroup"
)

// listPageSize caps the number of applications returned by List.
const listPageSize = 50

// ApplicationIndexer pushes application state into the search index.
type ApplicationIndexer interface {
	IndexApplication(ctx context.Context, app *models.Application, snapshotSize int) error
}

// ApplicationService is the application lifecycle engine. It orchestrates
// creation (policy snapshot), document attachment and status transitions,
// each inside one store transaction. Search indexing and event publication
// happen after commit and never fail an operation.
type ApplicationService struct {
	store     repositories.ApplicationStore
	catalog   clients.CatalogClient
	documents clients.DocumentsClient
	publisher messaging.EventPublisher
	indexer   ApplicationIndexer
	metrics   *metrics.Metrics
	tracer    tracing.Tracer
}

// NewApplicationService creates the engine. Publisher and indexer may be nil
// when the corresponding infrastructure is unavailable.
func NewApplicationService(
	store repositories.ApplicationStore,
	catalog clients.CatalogClient,
	documents clients.DocumentsClient,
	publisher messaging.EventPublisher,
	indexer ApplicationIndexer,
	metricsCollector *metrics.Metrics,
	tracer tracing.Tracer,
) *ApplicationService {
	if metricsCollector == nil {
		metricsCollector = metrics.NewMetrics()
	}
	if tracer == nil {
		tracer = tracing.NewNoopTracer()
	}
	return &ApplicationService{
		store:     store,
		catalog:   catalog,
		documents: documents,
		publisher: publisher,
		indexer:   indexer,
		metrics:   metricsCollector,
		tracer:    tracer,
	}
}

// CreateApplication creates a Draft application for the acting student and
// snapshots the merged document policy, all in one atomic unit. A catalog
// 404 or upstream failure on the program policy aborts the whole unit;
// student-level policy failures degrade to an empty list.
func (s *ApplicationService) CreateApplication(ctx context.Context, identity auth.Identity, programID, intakeID uuid.UUID) (*models.Application, error) {
	txn := s.tracer.StartTransaction("create-application")
	defer s.tracer.EndTransaction(txn)
	start := time.Now()

	if identity.Role != auth.RoleStudent {
		return nil, apperrors.New(apperrors.KindForbidden, "only students create applications")
	}

	app := &models.Application{
		ID:        uuid.New(),
		StudentID: identity.UserID,
		ProgramID: programID,
		IntakeID:  intakeID,
		Status:    models.StatusDraft,
	}

	var createdEvent *models.Event
	var snapshotSize int

	err := s.store.Transact(ctx, func(tx repositories.ApplicationStore) error {
		if err := tx.CreateApplication(ctx, app); err != nil {
			return err
		}

		span := s.tracer.StartSpan("fetch-catalog-policy", txn)
		programReqs, studentReqs, err := s.fetchPolicy(ctx, identity.UserID, programID)
		span.End()
		if err != nil {
			// Rolls back the Draft row.
			s.tracer.RecordError(txn, err)
			return err
		}

		merged := policy.Merge(programReqs, studentReqs)
		rows := make([]models.RequiredDocument, 0, len(merged))
		for _, item := range merged {
			rows = append(rows, models.RequiredDocument{
				ID:            uuid.New(),
				ApplicationID: app.ID,
				DocTypeID:     item.DocTypeID,
				IsMandatory:   item.IsMandatory,
				MinItems:      item.MinItems,
				MaxItems:      item.MaxItems,
				Source:        item.Source,
			})
		}
		if err := tx.CreateRequiredDocuments(ctx, rows); err != nil {
			return err
		}
		snapshotSize = len(rows)

		createdEvent = &models.Event{
			ID:            uuid.New(),
			ApplicationID: app.ID,
			ActorID:       identity.UserID,
			EventType:     models.EventCreated,
			Note:          fmt.Sprintf("Snapshot %d required document(s).", snapshotSize),
		}
		return tx.CreateEvent(ctx, createdEvent)
	})
	if err != nil {
		s.metrics.RecordError("create_application")
		return nil, err
	}

	s.metrics.RecordSuccess("create_application")
	s.metrics.IncrementCounter("applications.created")
	s.metrics.RecordTimer("create_application", time.Since(start).Milliseconds())

	log.Info().
		Str("application_id", app.ID.String()).
		Str("student_id", identity.UserID.String()).
		Int("snapshot_size", snapshotSize).
		Msg("Application created")

	s.afterCommit(ctx, app, createdEvent, snapshotSize)
	return app, nil
}

// fetchPolicy retrieves program and student requirement lists concurrently.
// Only the program side is load-bearing; student-side failures are logged
// and replaced with an empty list.
func (s *ApplicationService) fetchPolicy(ctx context.Context, studentID, programID uuid.UUID) ([]policy.Requirement, []policy.Requirement, error) {
	var programReqs, studentReqs []policy.Requirement

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		reqs, err := s.catalog.ProgramRequiredDocuments(gctx, programID)
		if err != nil {
			return err
		}
		programReqs = reqs
		return nil
	})
	g.Go(func() error {
		reqs, err := s.catalog.StudentRequiredDocuments(gctx, studentID)
		if err != nil {
			log.Warn().Err(err).
				Str("student_id", studentID.String()).
				Msg("Student policy unavailable, continuing with program policy only")
			studentReqs = nil
			return nil
		}
		studentReqs = reqs
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return programReqs, studentReqs, nil
}

// AttachDocument links an externally verified student document to an
// application under a snapshotted doc type. The upstream verification read
// happens before the transaction; the max_items check is repeated under a
// row lock so concurrent attaches cannot jointly exceed the limit.
func (s *ApplicationService) AttachDocument(ctx context.Context, identity auth.Identity, applicationID, docTypeID, studentDocumentID uuid.UUID) (*models.AttachedDocument, error) {
	txn := s.tracer.StartTransaction("attach-document")
	defer s.tracer.EndTransaction(txn)
	start := time.Now()

	app, err := s.store.GetApplication(ctx, applicationID)
	if err != nil {
		s.metrics.RecordError("attach_document")
		return nil, err
	}
	if app.StudentID != identity.UserID {
		s.metrics.RecordError("attach_document")
		return nil, apperrors.New(apperrors.KindForbidden, "not your application")
	}

	req, err := s.store.GetRequiredDocument(ctx, applicationID, docTypeID)
	if err != nil {
		s.metrics.RecordError("attach_document")
		if apperrors.Is(err, apperrors.KindNotFound) {
			return nil, apperrors.New(apperrors.KindUnprocessableRequirement, "doc type not required for this application")
		}
		return nil, err
	}

	count, err := s.store.CountAttachedDocuments(ctx, applicationID, docTypeID)
	if err != nil {
		s.metrics.RecordError("attach_document")
		return nil, err
	}
	if count >= int64(req.MaxItems) {
		s.metrics.RecordError("attach_document")
		return nil, apperrors.Newf(apperrors.KindUnprocessableRequirement, "max_items (%d) reached for this document type", req.MaxItems)
	}

	span := s.tracer.StartSpan("fetch-student-document", txn)
	studentDoc, err := s.documents.GetStudentDocument(ctx, studentDocumentID)
	span.End()
	if err != nil {
		s.metrics.RecordError("attach_document")
		s.tracer.RecordError(txn, err)
		return nil, err
	}
	if err := validateStudentDocument(studentDoc, identity.UserID, docTypeID); err != nil {
		s.metrics.RecordError("attach_document")
		return nil, err
	}

	link := &models.AttachedDocument{
		ID:                uuid.New(),
		ApplicationID:     applicationID,
		DocTypeID:         docTypeID,
		StudentDocumentID: studentDocumentID,
	}
	event := &models.Event{
		ID:            uuid.New(),
		ApplicationID: applicationID,
		ActorID:       identity.UserID,
		EventType:     models.EventDocAttached,
		Note:          fmt.Sprintf("Attached %s to type %s.", studentDocumentID, docTypeID),
	}

	err = s.store.Transact(ctx, func(tx repositories.ApplicationStore) error {
		// Lock the snapshot row so concurrent attaches serialize here, then
		// repeat the count under the lock.
		lockedReq, err := tx.GetRequiredDocumentForUpdate(ctx, applicationID, docTypeID)
		if err != nil {
			return err
		}
		count, err := tx.CountAttachedDocuments(ctx, applicationID, docTypeID)
		if err != nil {
			return err
		}
		if count >= int64(lockedReq.MaxItems) {
			return apperrors.Newf(apperrors.KindUnprocessableRequirement, "max_items (%d) reached for this document type", lockedReq.MaxItems)
		}
		if err := tx.CreateAttachedDocument(ctx, link); err != nil {
			return err
		}
		return tx.CreateEvent(ctx, event)
	})
	if err != nil {
		s.metrics.RecordError("attach_document")
		s.tracer.RecordError(txn, err)
		return nil, err
	}

	s.metrics.RecordSuccess("attach_document")
	s.metrics.IncrementCounter("documents.attached")
	s.metrics.RecordTimer("attach_document", time.Since(start).Milliseconds())

	log.Info().
		Str("application_id", applicationID.String()).
		Str("doc_type_id", docTypeID.String()).
		Str("student_document_id", studentDocumentID.String()).
		Msg("Document attached")

	s.publishEvent(ctx, event)
	return link, nil
}

// validateStudentDocument checks the documents service response against the
// acting student and the requested doc type.
func validateStudentDocument(doc *clients.StudentDocument, actorID, docTypeID uuid.UUID) error {
	if doc.UserID != actorID {
		return apperrors.New(apperrors.KindForbidden, "student document does not belong to current user")
	}
	if doc.Status != clients.DocumentStatusClean {
		return apperrors.Newf(apperrors.KindConflict, "student document status must be %q, got %q", clients.DocumentStatusClean, doc.Status)
	}
	if doc.DocTypeID != docTypeID {
		return apperrors.New(apperrors.KindUnprocessableRequirement, "doc_type_id mismatch between request and student document")
	}
	return nil
}

// Transition executes one status transition as a single atomic unit: load
// under lock, validate role/ownership/state, check mandatory documents for
// submit, then persist the new status and the audit event together.
func (s *ApplicationService) Transition(ctx context.Context, identity auth.Identity, applicationID uuid.UUID, transitionType TransitionType, note string) (*models.Application, error) {
	txn := s.tracer.StartTransaction("transition-application")
	defer s.tracer.EndTransaction(txn)
	start := time.Now()

	rule, err := ruleFor(transitionType)
	if err != nil {
		s.metrics.RecordError("transition")
		return nil, err
	}

	var app *models.Application
	var event *models.Event

	err = s.store.Transact(ctx, func(tx repositories.ApplicationStore) error {
		var err error
		app, err = tx.GetApplicationForUpdate(ctx, applicationID)
		if err != nil {
			return err
		}

		if err := checkTransition(app, identity, transitionType, rule); err != nil {
			return err
		}

		if transitionType == TransitionSubmit {
			requirements, err := tx.ListRequiredDocuments(ctx, applicationID)
			if err != nil {
				return err
			}
			counts, err := tx.CountAttachedDocumentsByType(ctx, applicationID)
			if err != nil {
				return err
			}
			if missing := missingMandatoryDocuments(requirements, counts); len(missing) > 0 {
				return apperrors.New(apperrors.KindUnprocessableRequirement, "mandatory documents missing").
					WithDetails(missing)
			}
		}

		fromStatus := app.Status
		toStatus := rule.To
		if err := tx.UpdateApplicationStatus(ctx, applicationID, toStatus); err != nil {
			return err
		}
		app.Status = toStatus

		event = &models.Event{
			ID:            uuid.New(),
			ApplicationID: applicationID,
			ActorID:       identity.UserID,
			EventType:     models.EventStatusChanged,
			FromStatus:    &fromStatus,
			ToStatus:      &toStatus,
			Note:          note,
		}
		return tx.CreateEvent(ctx, event)
	})
	if err != nil {
		s.metrics.RecordError("transition")
		s.tracer.RecordError(txn, err)
		return nil, err
	}

	s.metrics.RecordSuccess("transition")
	s.metrics.IncrementCounter("transitions." + string(transitionType))
	s.metrics.RecordTimer("transition", time.Since(start).Milliseconds())

	log.Info().
		Str("application_id", applicationID.String()).
		Str("transition", string(transitionType)).
		Str("status", string(app.Status)).
		Msg("Application transitioned")

	s.afterCommit(ctx, app, event, 0)
	return app, nil
}

// List returns the acting student's applications, newest first, capped at
// one page.
func (s *ApplicationService) List(ctx context.Context, identity auth.Identity) ([]models.Application, error) {
	return s.store.ListApplicationsByStudent(ctx, identity.UserID, listPageSize)
}

// Timeline returns the full audit trail of an application, oldest first.
// Students may only read their own.
func (s *ApplicationService) Timeline(ctx context.Context, identity auth.Identity, applicationID uuid.UUID) ([]models.Event, error) {
	app, err := s.store.GetApplication(ctx, applicationID)
	if err != nil {
		return nil, err
	}
	if identity.Role == auth.RoleStudent && app.StudentID != identity.UserID {
		return nil, apperrors.New(apperrors.KindForbidden, "not your application")
	}
	return s.store.ListEvents(ctx, applicationID)
}

// PublishPendingEvents forwards unpublished audit events to the service bus
// and marks them published. Used by the worker as the retry path for events
// whose post-commit publish failed.
func (s *ApplicationService) PublishPendingEvents(ctx context.Context, limit int) (int, error) {
	if s.publisher == nil {
		return 0, nil
	}

	events, err := s.store.ListUnpublishedEvents(ctx, limit)
	if err != nil {
		return 0, err
	}

	published := 0
	for _, event := range events {
		if err := s.publisher.PublishEvent(ctx, messaging.NewEventEnvelope(&event)); err != nil {
			log.Error().Err(err).
				Str("event_id", event.ID.String()).
				Msg("Failed to publish event, will retry")
			continue
		}
		if err := s.store.MarkEventPublished(ctx, event.ID); err != nil {
			log.Error().Err(err).
				Str("event_id", event.ID.String()).
				Msg("Failed to mark event published")
			continue
		}
		published++
	}
	return published, nil
}

// afterCommit runs the best-effort side effects of a committed write:
// publish the audit event downstream and refresh the search index. Failures
// are logged; the worker reconciles publication.
func (s *ApplicationService) afterCommit(ctx context.Context, app *models.Application, event *models.Event, snapshotSize int) {
	s.publishEvent(ctx, event)

	if s.indexer != nil {
		if err := s.indexer.IndexApplication(ctx, app, snapshotSize); err != nil {
			log.Warn().Err(err).
				Str("application_id", app.ID.String()).
				Msg("Failed to index application")
		}
	}
}

func (s *ApplicationService) publishEvent(ctx context.Context, event *models.Event) {
	if s.publisher == nil || event == nil {
		return
	}
	if err := s.publisher.PublishEvent(ctx, messaging.NewEventEnvelope(event)); err != nil {
		log.Warn().Err(err).
			Str("event_id", event.ID.String()).
			Msg("Failed to publish event, worker will retry")
		return
	}
	if err := s.store.MarkEventPublished(ctx, event.ID); err != nil {
		log.Warn().Err(err).
			Str("event_id", event.ID.String()).
			Msg("Failed to mark event published")
	}
}
