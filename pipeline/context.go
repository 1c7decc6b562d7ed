// Package pipeline runs validation aspects against a resource in
// priority order, with independent aspects of the same priority
// executing in parallel.
package pipeline

import (
	"sync"

	records "github.com/medvertical/records"
)

// Context carries the state for validating one resource. It is passed
// to every aspect and accumulates issues through the shared Result.
//
// Contexts are pooled. Use AcquireContext and Release.
type Context struct {
	// Resource is the raw JSON being validated.
	Resource []byte

	// ResourceMap is the parsed resource.
	ResourceMap map[string]any

	// ResourceType is the FHIR resource type, e.g. "Patient".
	ResourceType string

	// ResourceID is the resource id when present.
	ResourceID string

	// FHIRVersion is the version validated against.
	FHIRVersion records.FHIRVersion

	// Profiles lists canonical profile URLs claimed by meta.profile
	// plus any requested explicitly.
	Profiles []string

	// Result accumulates issues and per-aspect timings.
	Result *records.Result

	// Options holds the validation options in effect.
	Options *records.Options

	mu       sync.RWMutex
	metadata map[string]any
}

var contextPool = sync.Pool{
	New: func() any {
		return &Context{
			Profiles: make([]string, 0, 4),
			metadata: make(map[string]any, 8),
		}
	},
}

// AcquireContext gets a cleared Context from the pool.
func AcquireContext() *Context {
	vctx := contextPool.Get().(*Context)
	vctx.Reset()
	return vctx
}

// Release returns the Context to the pool. The Context must not be
// used afterwards.
func (c *Context) Release() {
	if c == nil {
		return
	}
	contextPool.Put(c)
}

// Reset clears the context for reuse.
func (c *Context) Reset() {
	c.Resource = nil
	c.ResourceMap = nil
	c.ResourceType = ""
	c.ResourceID = ""
	c.FHIRVersion = ""
	c.Profiles = c.Profiles[:0]
	c.Result = nil
	c.Options = nil
	for k := range c.metadata {
		delete(c.metadata, k)
	}
}

// SetMetadata stores a value shared between aspects. Safe for
// concurrent use during parallel execution.
func (c *Context) SetMetadata(key string, value any) {
	c.mu.Lock()
	c.metadata[key] = value
	c.mu.Unlock()
}

// GetMetadata retrieves a value stored by an earlier aspect.
func (c *Context) GetMetadata(key string) (any, bool) {
	c.mu.RLock()
	v, ok := c.metadata[key]
	c.mu.RUnlock()
	return v, ok
}

// IsBundle reports whether the resource is a Bundle.
func (c *Context) IsBundle() bool {
	return c.ResourceType == "Bundle"
}

// GetResourceField returns a top-level field of the resource.
func (c *Context) GetResourceField(field string) (any, bool) {
	if c.ResourceMap == nil {
		return nil, false
	}
	v, ok := c.ResourceMap[field]
	return v, ok
}

// GetNestedField returns a nested field using dot notation, e.g.
// "meta.profile".
func (c *Context) GetNestedField(path string) (any, bool) {
	if c.ResourceMap == nil {
		return nil, false
	}

	current := any(c.ResourceMap)
	start := 0
	for i := 0; i <= len(path); i++ {
		if i == len(path) || path[i] == '.' {
			if i > start {
				m, ok := current.(map[string]any)
				if !ok {
					return nil, false
				}
				current, ok = m[path[start:i]]
				if !ok {
					return nil, false
				}
			}
			start = i + 1
		}
	}
	return current, true
}

// AspectEnabled reports whether the given aspect should run under the
// context's options. A nil Options enables everything.
func (c *Context) AspectEnabled(aspect records.Aspect) bool {
	if c.Options == nil {
		return true
	}
	return c.Options.AspectEnabled(aspect)
}
