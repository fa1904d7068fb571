package clients

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/google/uuid"

	"example.com/studyabroad/services/applications/config"
	"example.com/studyabroad/services/applications/internal/apperrors"
)

// Student document verification statuses reported by the documents service.
const (
	DocumentStatusClean    = "clean"
	DocumentStatusPending  = "pending"
	DocumentStatusInfected = "infected"
)

// StudentDocument is the documents service's view of an uploaded document.
type StudentDocument struct {
	ID        uuid.UUID `json:"id"`
	UserID    uuid.UUID `json:"user_id"`
	DocTypeID uuid.UUID `json:"doc_type_id"`
	Status    string    `json:"status"`
}

// DocumentsClient fetches a student document's verification state.
type DocumentsClient interface {
	GetStudentDocument(ctx context.Context, docID uuid.UUID) (*StudentDocument, error)
}

// HTTPDocumentsClient is the documents gateway over HTTP, one bounded
// request per call.
type HTTPDocumentsClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewDocumentsClient creates a documents gateway from config.
func NewDocumentsClient(cfg config.DocumentsConfig) *HTTPDocumentsClient {
	return &HTTPDocumentsClient{
		baseURL:    cfg.BaseURL,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
}

// GetStudentDocument implements DocumentsClient.
func (c *HTTPDocumentsClient) GetStudentDocument(ctx context.Context, docID uuid.UUID) (*StudentDocument, error) {
	url := fmt.Sprintf("%s/student-documents/%s/", c.baseURL, docID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.KindUpstream, "failed to build documents request")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.KindUpstream, "documents request failed")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.KindUpstream, "failed to read documents response")
	}

	if resp.StatusCode == http.StatusNotFound {
		return nil, apperrors.New(apperrors.KindNotFound, "student document not found")
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, apperrors.Newf(apperrors.KindUpstream, "documents error %d: %s", resp.StatusCode, truncate(body))
	}

	var doc StudentDocument
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, apperrors.Wrap(err, apperrors.KindUpstream, "malformed documents response")
	}
	return &doc, nil
}
