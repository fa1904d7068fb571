package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"example.com/studyabroad/services/applications/internal/apperrors"
	"example.com/studyabroad/services/applications/internal/api/middleware"
	"example.com/studyabroad/services/applications/internal/auth"
	"example.com/studyabroad/services/applications/internal/models"
	"example.com/studyabroad/services/applications/internal/services"
)

// ApplicationEngine is the slice of the application service used by the
// HTTP layer.
type ApplicationEngine interface {
	CreateApplication(ctx context.Context, identity auth.Identity, programID, intakeID uuid.UUID) (*models.Application, error)
	AttachDocument(ctx context.Context, identity auth.Identity, applicationID, docTypeID, studentDocumentID uuid.UUID) (*models.AttachedDocument, error)
	Transition(ctx context.Context, identity auth.Identity, applicationID uuid.UUID, transitionType services.TransitionType, note string) (*models.Application, error)
	List(ctx context.Context, identity auth.Identity) ([]models.Application, error)
	Timeline(ctx context.Context, identity auth.Identity, applicationID uuid.UUID) ([]models.Event, error)
}

// ApplicationHandler handles application lifecycle HTTP requests.
type ApplicationHandler struct {
	engine ApplicationEngine
}

// NewApplicationHandler creates a new application handler.
func NewApplicationHandler(engine ApplicationEngine) *ApplicationHandler {
	return &ApplicationHandler{engine: engine}
}

// CreateApplicationRequest is the payload for creating an application.
type CreateApplicationRequest struct {
	ProgramID uuid.UUID `json:"program_id" binding:"required"`
	IntakeID  uuid.UUID `json:"intake_id" binding:"required"`
}

// AttachDocumentRequest is the payload for attaching a document.
type AttachDocumentRequest struct {
	DocTypeID         uuid.UUID `json:"doc_type_id" binding:"required"`
	StudentDocumentID uuid.UUID `json:"student_document_id" binding:"required"`
}

// TransitionRequest is the payload for executing a status transition.
type TransitionRequest struct {
	TransitionType string `json:"transition_type" binding:"required"`
	Note           string `json:"note"`
}

// HandleCreate handles POST /applications.
func (h *ApplicationHandler) HandleCreate(c *gin.Context) {
	identity, ok := middleware.IdentityFrom(c)
	if !ok {
		writeUnauthenticated(c)
		return
	}

	var req CreateApplicationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, apperrors.Wrap(err, apperrors.KindBadRequest, "invalid request body"))
		return
	}

	app, err := h.engine.CreateApplication(c.Request.Context(), identity, req.ProgramID, req.IntakeID)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, app)
}

// HandleList handles GET /applications.
func (h *ApplicationHandler) HandleList(c *gin.Context) {
	identity, ok := middleware.IdentityFrom(c)
	if !ok {
		writeUnauthenticated(c)
		return
	}

	apps, err := h.engine.List(c.Request.Context(), identity)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, apps)
}

// HandleAttachDocument handles POST /applications/:id/documents.
func (h *ApplicationHandler) HandleAttachDocument(c *gin.Context) {
	identity, ok := middleware.IdentityFrom(c)
	if !ok {
		writeUnauthenticated(c)
		return
	}

	applicationID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		writeError(c, apperrors.New(apperrors.KindBadRequest, "malformed application id"))
		return
	}

	var req AttachDocumentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, apperrors.Wrap(err, apperrors.KindBadRequest, "invalid request body"))
		return
	}

	link, err := h.engine.AttachDocument(c.Request.Context(), identity, applicationID, req.DocTypeID, req.StudentDocumentID)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, link)
}

// HandleTransition handles POST /applications/:id/transition.
func (h *ApplicationHandler) HandleTransition(c *gin.Context) {
	identity, ok := middleware.IdentityFrom(c)
	if !ok {
		writeUnauthenticated(c)
		return
	}

	applicationID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		writeError(c, apperrors.New(apperrors.KindBadRequest, "malformed application id"))
		return
	}

	var req TransitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, apperrors.Wrap(err, apperrors.KindBadRequest, "invalid request body"))
		return
	}

	app, err := h.engine.Transition(c.Request.Context(), identity, applicationID, services.TransitionType(req.TransitionType), req.Note)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, app)
}

// HandleTimeline handles GET /applications/:id/timeline.
func (h *ApplicationHandler) HandleTimeline(c *gin.Context) {
	identity, ok := middleware.IdentityFrom(c)
	if !ok {
		writeUnauthenticated(c)
		return
	}

	applicationID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		writeError(c, apperrors.New(apperrors.KindBadRequest, "malformed application id"))
		return
	}

	events, err := h.engine.Timeline(c.Request.Context(), identity, applicationID)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, events)
}

// RegisterRoutes registers the handler's routes.
func (h *ApplicationHandler) RegisterRoutes(router *gin.Engine, identityMiddleware gin.HandlerFunc) {
	apps := router.Group("/applications", identityMiddleware)
	apps.POST("", h.HandleCreate)
	apps.GET("", h.HandleList)
	apps.POST("/:id/documents", h.HandleAttachDocument)
	apps.POST("/:id/transition", h.HandleTransition)
	apps.GET("/:id/timeline", h.HandleTimeline)
}

// writeError translates a classified error into the response body. Missing
// mandatory documents are enumerated under missing_documents.
func writeError(c *gin.Context, err error) {
	appErr := apperrors.AsError(err)
	if appErr == nil {
		log.Error().Err(err).Msg("Unclassified error")
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": gin.H{"code": "internal", "message": "internal error"},
		})
		return
	}

	body := gin.H{
		"error": gin.H{"code": string(appErr.Kind), "message": appErr.Message},
	}
	if appErr.Details != nil {
		if missing, ok := appErr.Details.([]services.MissingDocument); ok {
			body["missing_documents"] = missing
		} else {
			body["details"] = appErr.Details
		}
	}
	c.JSON(appErr.Kind.HTTPStatus(), body)
}

func writeUnauthenticated(c *gin.Context) {
	c.JSON(http.StatusUnauthorized, gin.H{
		"error": gin.H{"code": "unauthorized", "message": "no resolvable actor"},
	})
}
