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

func catalogClientFor(serverURL string) *HTTPCatalogClient {
	return NewCatalogClient(config.CatalogConfig{
		BaseURL: serverURL,
		Timeout: 2 * time.Second,
	}, nil)
}

func TestProgramRequiredDocuments(t *testing.T) {
	programID := uuid.New()
	docType := uuid.New()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, fmt.Sprintf("/programs/%s/required-documents", programID), r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `[{"doc_type_id":%q,"is_mandatory":true,"min_items":1,"max_items":2}]`, docType)
	}))
	defer server.Close()

	reqs, err := catalogClientFor(server.URL).ProgramRequiredDocuments(context.Background(), programID)
	require.NoError(t, err)
	require.Len(t, reqs, 1)
	require.Equal(t, docType.String(), reqs[0].DocTypeID)
	require.True(t, *reqs[0].IsMandatory)
	require.Equal(t, 2, *reqs[0].MaxItems)
}

func TestProgramRequiredDocumentsNotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer server.Close()

	_, err := catalogClientFor(server.URL).ProgramRequiredDocuments(context.Background(), uuid.New())
	require.True(t, apperrors.Is(err, apperrors.KindNotFound))
}

func TestProgramRequiredDocumentsServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer server.Close()

	_, err := catalogClientFor(server.URL).ProgramRequiredDocuments(context.Background(), uuid.New())
	require.True(t, apperrors.Is(err, apperrors.KindUpstream))
}

func TestProgramRequiredDocumentsMalformedBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"not":"a list"}`)
	}))
	defer server.Close()

	_, err := catalogClientFor(server.URL).ProgramRequiredDocuments(context.Background(), uuid.New())
	require.True(t, apperrors.Is(err, apperrors.KindUpstream))
}

func TestProgramRequiredDocumentsTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer server.Close()

	client := NewCatalogClient(config.CatalogConfig{
		BaseURL: server.URL,
		Timeout: 20 * time.Millisecond,
	}, nil)

	_, err := client.ProgramRequiredDocuments(context.Background(), uuid.New())
	require.True(t, apperrors.Is(err, apperrors.KindUpstream))
}

func TestStudentRequiredDocumentsNotFoundMeansEmpty(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer server.Close()

	reqs, err := catalogClientFor(server.URL).StudentRequiredDocuments(context.Background(), uuid.New())
	require.NoError(t, err, "missing student policy means no extra rules")
	require.Empty(t, reqs)
}

func TestStudentRequiredDocuments(t *testing.T) {
	studentID := uuid.New()
	docType := uuid.New()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, studentID.String(), r.URL.Query().Get("student_id"))
		fmt.Fprintf(w, `[{"doc_type_id":%q}]`, docType)
	}))
	defer server.Close()

	reqs, err := catalogClientFor(server.URL).StudentRequiredDocuments(context.Background(), studentID)
	require.NoError(t, err)
	require.Len(t, reqs, 1)
	require.Equal(t, docType.String(), reqs[0].DocTypeID)
}

func TestStudentRequiredDocumentsServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	_, err := catalogClientFor(server.URL).StudentRequiredDocuments(context.Background(), uuid.New())
	require.True(t, apperrors.Is(err, apperrors.KindUpstream))
}
