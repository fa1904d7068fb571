package clients

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"example.com/studyabroad/services/applications/config"
	"example.com/studyabroad/services/applications/internal/apperrors"
	"example.com/studyabroad/services/applications/internal/cache"
	"example.com/studyabroad/services/applications/internal/policy"
)

// CatalogClient fetches document-requirement policy from the catalog service.
type CatalogClient interface {
	// ProgramRequiredDocuments returns the program-level policy. A catalog
	// 404 is a NotFound error (unknown program aborts application creation).
	ProgramRequiredDocuments(ctx context.Context, programID uuid.UUID) ([]policy.Requirement, error)
	// StudentRequiredDocuments returns student-level baseline policy. A 404
	// means "no extra rules" and yields an empty list.
	StudentRequiredDocuments(ctx context.Context, studentID uuid.UUID) ([]policy.Requirement, error)
}

// HTTPCatalogClient is the catalog gateway over HTTP. Each call issues a
// fresh request bound by the configured timeout; program policy responses
// are cached briefly in Redis.
type HTTPCatalogClient struct {
	baseURL    string
	httpClient *http.Client
	cache      *cache.RedisCache
	cacheTTL   time.Duration
}

// NewCatalogClient creates a catalog gateway from config.
func NewCatalogClient(cfg config.CatalogConfig, redisCache *cache.RedisCache) *HTTPCatalogClient {
	return &HTTPCatalogClient{
		baseURL:    cfg.BaseURL,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		cache:      redisCache,
		cacheTTL:   cfg.CacheTTL,
	}
}

// ProgramRequiredDocuments implements CatalogClient.
func (c *HTTPCatalogClient) ProgramRequiredDocuments(ctx context.Context, programID uuid.UUID) ([]policy.Requirement, error) {
	var reqs []policy.Requirement

	cacheKey := cache.ProgramRequirementsKey(programID)
	if c.cache != nil {
		if err := c.cache.Get(ctx, cacheKey, &reqs); err == nil {
			return reqs, nil
		}
	}

	url := fmt.Sprintf("%s/programs/%s/required-documents", c.baseURL, programID)
	body, err := c.get(ctx, url, "program not found in catalog")
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(body, &reqs); err != nil {
		return nil, apperrors.Wrap(err, apperrors.KindUpstream, "malformed catalog response")
	}

	if c.cache != nil {
		if err := c.cache.Set(ctx, cacheKey, reqs, c.cacheTTL); err != nil {
			log.Warn().Err(err).Str("program_id", programID.String()).Msg("Failed to cache program requirements")
		}
	}
	return reqs, nil
}

// StudentRequiredDocuments implements CatalogClient.
func (c *HTTPCatalogClient) StudentRequiredDocuments(ctx context.Context, studentID uuid.UUID) ([]policy.Requirement, error) {
	url := fmt.Sprintf("%s/student-required-documents:resolve?student_id=%s", c.baseURL, studentID)

	body, status, err := c.getRaw(ctx, url)
	if err != nil {
		return nil, err
	}
	if status == http.StatusNotFound {
		// No student-level rules.
		return []policy.Requirement{}, nil
	}
	if status < 200 || status > 299 {
		return nil, apperrors.Newf(apperrors.KindUpstream, "catalog error %d: %s", status, truncate(body))
	}

	var reqs []policy.Requirement
	if err := json.Unmarshal(body, &reqs); err != nil {
		return nil, apperrors.Wrap(err, apperrors.KindUpstream, "malformed catalog response")
	}
	return reqs, nil
}

// get performs a GET where 404 is a NotFound failure.
func (c *HTTPCatalogClient) get(ctx context.Context, url, notFoundMsg string) ([]byte, error) {
	body, status, err := c.getRaw(ctx, url)
	if err != nil {
		return nil, err
	}
	if status == http.StatusNotFound {
		return nil, apperrors.New(apperrors.KindNotFound, notFoundMsg)
	}
	if status < 200 || status > 299 {
		return nil, apperrors.Newf(apperrors.KindUpstream, "catalog error %d: %s", status, truncate(body))
	}
	return body, nil
}

func (c *HTTPCatalogClient) getRaw(ctx context.Context, url string) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, 0, apperrors.Wrap(err, apperrors.KindUpstream, "failed to build catalog request")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// Timeouts and transport failures are retryable upstream errors.
		return nil, 0, apperrors.Wrap(err, apperrors.KindUpstream, "catalog request failed")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, apperrors.Wrap(err, apperrors.KindUpstream, "failed to read catalog response")
	}
	return body, resp.StatusCode, nil
}

// truncate keeps a small slice of an upstream body for error messages.
func truncate(body []byte) string {
	const max = 200
	if len(body) > max {
		return string(body[:max])
	}
	return string(body)
}
