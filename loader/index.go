package loader

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/gofhir/fhir/r4"

	"github.com/medvertical/records/service"
)

const baseDefinitionPrefix = "http://hl7.org/fhir/StructureDefinition/"

// ProfileIndex is an in-memory service.ProfileResolver. Definitions
// are indexed by canonical URL, and base definitions additionally by
// resource type so the profile aspect can fall back to the core spec
// profile when a resource claims none.
type ProfileIndex struct {
	mu        sync.RWMutex
	byURL     map[string]*service.StructureDefinition
	byType    map[string]*service.StructureDefinition
	converter *R4Converter
}

// NewProfileIndex creates an empty index.
func NewProfileIndex() *ProfileIndex {
	return &ProfileIndex{
		byURL:     make(map[string]*service.StructureDefinition),
		byType:    make(map[string]*service.StructureDefinition),
		converter: NewR4Converter(),
	}
}

// Add converts and indexes one r4.StructureDefinition.
func (x *ProfileIndex) Add(sd *r4.StructureDefinition) error {
	if sd == nil {
		return fmt.Errorf("structure definition is nil")
	}
	return x.AddConverted(x.converter.ConvertStructureDefinition(sd))
}

// AddConverted indexes an already-converted definition.
//
// Only the base definition for a type fills the type index; a profile
// on Patient must not shadow the core Patient definition.
func (x *ProfileIndex) AddConverted(sd *service.StructureDefinition) error {
	if sd == nil {
		return fmt.Errorf("structure definition is nil")
	}

	x.mu.Lock()
	defer x.mu.Unlock()

	if sd.URL != "" {
		x.byURL[sd.URL] = sd
	}
	if sd.Type != "" && sd.URL == baseDefinitionPrefix+sd.Type {
		switch sd.Kind {
		case "resource", "complex-type", "primitive-type":
			x.byType[sd.Type] = sd
		}
	}
	return nil
}

// LoadJSON indexes definitions from raw JSON, accepting either a
// single StructureDefinition or a Bundle of them. Returns how many
// definitions were indexed.
func (x *ProfileIndex) LoadJSON(data []byte) (int, error) {
	var probe struct {
		ResourceType string `json:"resourceType"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return 0, fmt.Errorf("invalid JSON: %w", err)
	}

	switch probe.ResourceType {
	case "StructureDefinition":
		var sd r4.StructureDefinition
		if err := json.Unmarshal(data, &sd); err != nil {
			return 0, fmt.Errorf("failed to parse StructureDefinition: %w", err)
		}
		if err := x.Add(&sd); err != nil {
			return 0, err
		}
		return 1, nil
	case "Bundle":
		return x.loadBundle(data)
	default:
		return 0, fmt.Errorf("unsupported resourceType: %s", probe.ResourceType)
	}
}

// LoadFile indexes definitions from a JSON file.
func (x *ProfileIndex) LoadFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return x.LoadJSON(data)
}

func (x *ProfileIndex) loadBundle(data []byte) (int, error) {
	var bundle struct {
		Entry []struct {
			Resource json.RawMessage `json:"resource"`
		} `json:"entry"`
	}
	if err := json.Unmarshal(data, &bundle); err != nil {
		return 0, fmt.Errorf("failed to parse Bundle: %w", err)
	}

	count := 0
	for _, entry := range bundle.Entry {
		if len(entry.Resource) == 0 {
			continue
		}
		var probe struct {
			ResourceType string `json:"resourceType"`
		}
		if err := json.Unmarshal(entry.Resource, &probe); err != nil {
			continue
		}
		if probe.ResourceType != "StructureDefinition" {
			continue
		}
		var sd r4.StructureDefinition
		if err := json.Unmarshal(entry.Resource, &sd); err != nil {
			return count, fmt.Errorf("failed to parse bundled StructureDefinition: %w", err)
		}
		if err := x.Add(&sd); err != nil {
			return count, err
		}
		count++
	}
	return count, nil
}

// FetchStructureDefinition implements service.StructureDefinitionFetcher.
func (x *ProfileIndex) FetchStructureDefinition(ctx context.Context, url string) (*service.StructureDefinition, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	x.mu.RLock()
	defer x.mu.RUnlock()
	sd, ok := x.byURL[url]
	if !ok {
		return nil, fmt.Errorf("structure definition not found: %s", url)
	}
	return sd, nil
}

// FetchStructureDefinitionByType implements
// service.StructureDefinitionByTypeFetcher.
func (x *ProfileIndex) FetchStructureDefinitionByType(ctx context.Context, resourceType string) (*service.StructureDefinition, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	x.mu.RLock()
	defer x.mu.RUnlock()
	if sd, ok := x.byType[resourceType]; ok {
		return sd, nil
	}
	if sd, ok := x.byURL[baseDefinitionPrefix+resourceType]; ok {
		return sd, nil
	}
	return nil, fmt.Errorf("structure definition not found for type: %s", resourceType)
}

// Count returns the number of indexed definitions.
func (x *ProfileIndex) Count() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.byURL)
}

// Clear drops everything from the index.
func (x *ProfileIndex) Clear() {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.byURL = make(map[string]*service.StructureDefinition)
	x.byType = make(map[string]*service.StructureDefinition)
}

var _ service.ProfileResolver = (*ProfileIndex)(nil)
