package service

import (
	"context"

	"github.com/medvertical/records/reference"
)

// ResolvedResource is the outcome of resolving a reference against a
// store.
type ResolvedResource struct {
	Found        bool
	Resource     map[string]any
	ResourceType string
	ResourceID   string
}

// ResourceStore answers whether resources exist locally, without going
// to a server. The reference aspect prefers a store when one is
// configured; it is the only way references get checked in offline
// mode.
type ResourceStore interface {
	// ResourceExists reports whether the given resource is present.
	ResourceExists(ctx context.Context, resourceType, id string) (bool, error)
}

// ResourceGetter fetches a resource from a store.
type ResourceGetter interface {
	GetResource(ctx context.Context, resourceType, id string) (*ResolvedResource, error)
}

// CanonicalBridge adapts a ProfileResolver to the canonical fetcher
// used by reference validation, so canonical references resolve
// through the same profile source the profile aspect uses.
type CanonicalBridge struct {
	Resolver StructureDefinitionFetcher
}

// FetchCanonical resolves a canonical URL via the profile resolver.
func (b *CanonicalBridge) FetchCanonical(ctx context.Context, url string) (*reference.CanonicalResource, error) {
	sd, err := b.Resolver.FetchStructureDefinition(ctx, url)
	if err != nil {
		return nil, err
	}
	return &reference.CanonicalResource{
		URL:          sd.URL,
		Version:      sd.Version,
		ResourceType: "StructureDefinition",
	}, nil
}

var _ reference.CanonicalFetcher = (*CanonicalBridge)(nil)
