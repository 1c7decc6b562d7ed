package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/gofhir/fhirpath"
	"github.com/gofhir/fhirpath/types"
)

// FHIRPathEvaluator evaluates FHIRPath expressions against a resource.
// The business-rule aspect consumes this.
type FHIRPathEvaluator interface {
	// Evaluate returns true when the expression holds for the
	// resource, applying FHIRPath truthiness to non-boolean results.
	Evaluate(ctx context.Context, expression string, resource any) (bool, error)
}

// FHIRPathAdapter implements FHIRPathEvaluator on the fhirpath
// package, caching compiled expressions. Safe for concurrent use;
// aspects of one priority band evaluate in parallel.
type FHIRPathAdapter struct {
	mu    sync.RWMutex
	cache map[string]*fhirpath.Expression
}

// NewFHIRPathAdapter creates an adapter with an empty compilation
// cache.
func NewFHIRPathAdapter() *FHIRPathAdapter {
	return &FHIRPathAdapter{cache: make(map[string]*fhirpath.Expression)}
}

// Evaluate compiles (or reuses) the expression and evaluates it.
// Truthiness: empty collection is false, a single boolean is itself,
// any other non-empty collection is true.
func (a *FHIRPathAdapter) Evaluate(ctx context.Context, expression string, resource any) (bool, error) {
	resourceBytes, err := a.toJSON(resource)
	if err != nil {
		return false, fmt.Errorf("failed to convert resource to JSON: %w", err)
	}

	compiled, err := a.getOrCompile(expression)
	if err != nil {
		return false, fmt.Errorf("failed to compile FHIRPath expression %q: %w", expression, err)
	}

	result, err := compiled.Evaluate(resourceBytes)
	if err != nil {
		return false, fmt.Errorf("failed to evaluate FHIRPath expression %q: %w", expression, err)
	}

	return a.toBool(result), nil
}

func (a *FHIRPathAdapter) toJSON(resource any) ([]byte, error) {
	switch v := resource.(type) {
	case []byte:
		return v, nil
	case string:
		return []byte(v), nil
	default:
		return json.Marshal(v)
	}
}

func (a *FHIRPathAdapter) getOrCompile(expression string) (*fhirpath.Expression, error) {
	a.mu.RLock()
	compiled, ok := a.cache[expression]
	a.mu.RUnlock()
	if ok {
		return compiled, nil
	}

	compiled, err := fhirpath.Compile(expression)
	if err != nil {
		return nil, err
	}

	a.mu.Lock()
	a.cache[expression] = compiled
	a.mu.Unlock()
	return compiled, nil
}

func (a *FHIRPathAdapter) toBool(result types.Collection) bool {
	if len(result) == 0 {
		return false
	}
	if len(result) == 1 {
		if b, ok := result[0].(types.Boolean); ok {
			return b.Bool()
		}
	}
	return true
}

// CacheSize returns the number of compiled expressions held.
func (a *FHIRPathAdapter) CacheSize() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.cache)
}

var _ FHIRPathEvaluator = (*FHIRPathAdapter)(nil)
