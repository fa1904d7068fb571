package clients

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"example.com/studyabroad/services/applications/config"
	"example.com/studyabroad/services/applications/internal/apperrors"
)

func documentsClientFor(serverURL string) *HTTPDocumentsClient {
	return NewDocumentsClient(config.DocumentsConfig{
		BaseURL: serverURL,
		Timeout: 2 * time.Second,
	})
}

func TestGetStudentDocument(t *testing.T) {
	docID := uuid.New()
	userID := uuid.New()
	docType := uuid.New()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, fmt.Sprintf("/student-documents/%s/", docID), r.URL.Path)
		fmt.Fprintf(w, `{"id":%q,"user_id":%q,"doc_type_id":%q,"status":"clean"}`, docID, userID, docType)
	}))
	defer server.Close()

	doc, err := documentsClientFor(server.URL).GetStudentDocument(context.Background(), docID)
	require.NoError(t, err)
	require.Equal(t, docID, doc.ID)
	require.Equal(t, userID, doc.UserID)
	require.Equal(t, docType, doc.DocTypeID)
	require.Equal(t, DocumentStatusClean, doc.Status)
}

func TestGetStudentDocumentNotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer server.Close()

	_, err := documentsClientFor(server.URL).GetStudentDocument(context.Background(), uuid.New())
	require.True(t, apperrors.Is(err, apperrors.KindNotFound))
}

func TestGetStudentDocumentServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer server.Close()

	_, err := documentsClientFor(server.URL).GetStudentDocument(context.Background(), uuid.New())
	require.True(t, apperrors.Is(err, apperrors.KindUpstream))
}

func TestGetStudentDocumentTransportFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close()

	_, err := documentsClientFor(server.URL).GetStudentDocument(context.Background(), uuid.New())
	require.True(t, apperrors.Is(err, apperrors.KindUpstream))
}
