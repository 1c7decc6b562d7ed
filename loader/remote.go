package loader

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/gofhir/fhir/r4"

	"github.com/medvertical/records/cache"
	"github.com/medvertical/records/service"
)

const defaultRemoteTimeout = 10 * time.Second

// RemoteProfileService resolves StructureDefinitions from a FHIR
// server, caching conversions in an LRU so repeated validations of the
// same profile do not refetch it.
type RemoteProfileService struct {
	baseURL string
	client  *http.Client

	converter *R4Converter
	resolved  *cache.Cache[string, *service.StructureDefinition]
}

// RemoteOption configures a RemoteProfileService.
type RemoteOption func(*RemoteProfileService)

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(client *http.Client) RemoteOption {
	return func(s *RemoteProfileService) {
		if client != nil {
			s.client = client
		}
	}
}

// WithCacheSize sets how many converted definitions are kept.
func WithCacheSize(n int) RemoteOption {
	return func(s *RemoteProfileService) {
		if n > 0 {
			s.resolved = cache.New[string, *service.StructureDefinition](n)
		}
	}
}

// NewRemoteProfileService creates a service resolving against the
// given FHIR base URL.
func NewRemoteProfileService(baseURL string, opts ...RemoteOption) *RemoteProfileService {
	s := &RemoteProfileService{
		baseURL:   baseURL,
		client:    &http.Client{Timeout: defaultRemoteTimeout},
		converter: NewR4Converter(),
		resolved:  cache.New[string, *service.StructureDefinition](128),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// FetchStructureDefinition resolves a canonical URL via the server's
// StructureDefinition search endpoint.
func (s *RemoteProfileService) FetchStructureDefinition(ctx context.Context, canonical string) (*service.StructureDefinition, error) {
	if sd, ok := s.resolved.Get(canonical); ok {
		return sd, nil
	}

	searchURL := fmt.Sprintf("%s/StructureDefinition?url=%s", s.baseURL, url.QueryEscape(canonical))
	body, err := s.get(ctx, searchURL)
	if err != nil {
		return nil, err
	}

	var bundle struct {
		Entry []struct {
			Resource json.RawMessage `json:"resource"`
		} `json:"entry"`
	}
	if err := json.Unmarshal(body, &bundle); err != nil {
		return nil, fmt.Errorf("failed to parse search response: %w", err)
	}
	if len(bundle.Entry) == 0 {
		return nil, fmt.Errorf("structure definition not found: %s", canonical)
	}

	var sd r4.StructureDefinition
	if err := json.Unmarshal(bundle.Entry[0].Resource, &sd); err != nil {
		return nil, fmt.Errorf("failed to parse StructureDefinition: %w", err)
	}

	converted := s.converter.ConvertStructureDefinition(&sd)
	s.resolved.Set(canonical, converted)
	return converted, nil
}

// FetchStructureDefinitionByType resolves the base definition for a
// resource type by its well-known canonical URL.
func (s *RemoteProfileService) FetchStructureDefinitionByType(ctx context.Context, resourceType string) (*service.StructureDefinition, error) {
	return s.FetchStructureDefinition(ctx, baseDefinitionPrefix+resourceType)
}

func (s *RemoteProfileService) get(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/fhir+json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("profile fetch failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("profile fetch returned %d for %s", resp.StatusCode, rawURL)
	}
	return io.ReadAll(resp.Body)
}

// CacheStats reports hits and misses of the conversion cache.
func (s *RemoteProfileService) CacheStats() (hits, misses uint64) {
	stats := s.resolved.Stats()
	return stats.Hits, stats.Misses
}

var _ service.ProfileResolver = (*RemoteProfileService)(nil)
