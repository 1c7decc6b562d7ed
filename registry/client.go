// Package registry provides a client for the FHIR Package Registry.
//
// The FHIR Package Registry (https://packages.fhir.org) hosts FHIR
// Implementation Guides and core packages. The client resolves package
// metadata and doubles as a connectivity probe for health checks.
package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

const (
	// DefaultRegistryURL is the primary FHIR package registry.
	DefaultRegistryURL = "https://packages.fhir.org"

	// DefaultTimeout for HTTP requests.
	DefaultTimeout = 30 * time.Second

	// VersionLatest represents the "latest" version tag.
	VersionLatest = "latest"
)

// Client is a FHIR Package Registry client.
type Client struct {
	httpClient  *http.Client
	registryURL string
}

// ClientOption configures the Client.
type ClientOption func(*Client)

// WithRegistryURL sets a custom registry URL.
func WithRegistryURL(url string) ClientOption {
	return func(c *Client) {
		c.registryURL = url
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = client
	}
}

// WithTimeout sets the HTTP timeout.
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		c.httpClient.Timeout = timeout
	}
}

// NewClient creates a new registry client.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
		registryURL: DefaultRegistryURL,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// URL returns the registry base URL.
func (c *Client) URL() string {
	return c.registryURL
}

// Ping checks that the registry is reachable. It satisfies the health
// detector's probe signature.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.registryURL, http.NoBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("registry unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return fmt.Errorf("registry returned status %d", resp.StatusCode)
	}
	return nil
}

// PackageInfo contains metadata about a package.
type PackageInfo struct {
	Name         string            `json:"name"`
	Version      string            `json:"version"`
	Description  string            `json:"description"`
	FHIRVersion  string            `json:"fhirVersion"`
	URL          string            `json:"url"`
	Canonical    string            `json:"canonical"`
	Dependencies map[string]string `json:"dependencies"`
}

// GetPackageInfo retrieves metadata about a package. An empty or
// "latest" version resolves through the registry's dist-tags.
func (c *Client) GetPackageInfo(ctx context.Context, name, version string) (*PackageInfo, error) {
	url := fmt.Sprintf("%s/%s", c.registryURL, name)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch package info: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("package not found: %s (status %d)", name, resp.StatusCode)
	}

	var pkgInfo struct {
		Name        string            `json:"name"`
		Description string            `json:"description"`
		DistTags    map[string]string `json:"dist-tags"`
		Versions    map[string]struct {
			Version     string `json:"version"`
			FHIRVersion string `json:"fhirVersion"`
			URL         string `json:"url"`
			Canonical   string `json:"canonical"`
		} `json:"versions"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&pkgInfo); err != nil {
		return nil, fmt.Errorf("failed to decode package info: %w", err)
	}

	resolvedVersion := version
	if version == VersionLatest || version == "" {
		latest, ok := pkgInfo.DistTags[VersionLatest]
		if !ok {
			return nil, fmt.Errorf("no latest version found for package %s", name)
		}
		resolvedVersion = latest
	}

	versionInfo, ok := pkgInfo.Versions[resolvedVersion]
	if !ok {
		return nil, fmt.Errorf("version %s not found for package %s", resolvedVersion, name)
	}

	return &PackageInfo{
		Name:        pkgInfo.Name,
		Version:     resolvedVersion,
		Description: pkgInfo.Description,
		FHIRVersion: versionInfo.FHIRVersion,
		URL:         versionInfo.URL,
		Canonical:   versionInfo.Canonical,
	}, nil
}
