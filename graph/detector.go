// Package graph detects circular reference chains between FHIR
// resources. A graph is built from the references a resource (or each
// Bundle entry) carries, then walked with an iterative depth-first
// search so that deeply nested chains cannot exhaust the goroutine
// stack.
package graph

import (
	"fmt"
	"strings"

	"github.com/medvertical/records/reference"
	"github.com/medvertical/records/walker"
)

// DefaultMaxDepth bounds how far a reference chain is followed before
// the branch is abandoned.
const DefaultMaxDepth = 10

// DetectionResult describes the outcome of a cycle scan.
type DetectionResult struct {
	// HasCycle is true when at least one cycle was found.
	HasCycle bool

	// CycleChain is the first cycle found, closed: the last element
	// repeats the first. A self-reference yields a 2-element chain.
	CycleChain []string

	// AllCycles holds every distinct cycle discovered.
	AllCycles [][]string

	// TotalReferences counts the edges in the graph.
	TotalReferences int

	// MaxDepth is the longest chain observed during traversal.
	MaxDepth int
}

// Detector scans resources for circular references.
type Detector struct {
	maxDepth int
}

// Option configures a Detector.
type Option func(*Detector)

// WithMaxDepth overrides the traversal depth limit.
func WithMaxDepth(depth int) Option {
	return func(d *Detector) {
		if depth > 0 {
			d.maxDepth = depth
		}
	}
}

// NewDetector creates a Detector with the default depth limit.
func NewDetector(opts ...Option) *Detector {
	d := &Detector{maxDepth: DefaultMaxDepth}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// MaxDepth returns the configured traversal limit.
func (d *Detector) MaxDepth() int {
	return d.maxDepth
}

// Detect builds a reference graph from a single resource (the resource
// itself plus its contained entries) and scans it for cycles. A Bundle
// is dispatched to per-entry handling.
func (d *Detector) Detect(resource map[string]any) DetectionResult {
	if resourceType, _ := resource["resourceType"].(string); resourceType == "Bundle" {
		return d.detectBundle(resource)
	}

	g := newGraph()
	rootKey := nodeKey(resource)
	g.addNode(rootKey)

	containedIDs := make(map[string]bool)
	contained, _ := resource["contained"].([]any)
	for _, entry := range contained {
		entryMap, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		if id, _ := entryMap["id"].(string); id != "" {
			containedIDs[id] = true
			g.addNode("#" + id)
		}
	}

	addLocalEdges(g, rootKey, walker.ExtractReferences(resource), rootKey, containedIDs)
	for i, entry := range contained {
		entryMap, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		id, _ := entryMap["id"].(string)
		if id == "" {
			continue
		}
		addLocalEdges(g, "#"+id, walker.ExtractFromContained(entryMap, i), rootKey, containedIDs)
	}

	return d.scan(g)
}

// detectBundle treats each Bundle entry as one node. An entry is keyed
// by its fullUrl when present, otherwise by the resource's Type/id,
// otherwise by a synthetic entry index.
func (d *Detector) detectBundle(bundle map[string]any) DetectionResult {
	entries, _ := bundle["entry"].([]any)

	g := newGraph()
	keys := make([]string, len(entries))

	// Index every way an entry can be addressed.
	byFullURL := make(map[string]string)
	byTypeID := make(map[string]string)
	for i, entry := range entries {
		entryMap, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		resource, _ := entryMap["resource"].(map[string]any)

		key := fmt.Sprintf("entry[%d]", i)
		if k := nodeKey(resource); k != "" {
			key = k
			byTypeID[k] = key
		}
		if fullURL, _ := entryMap["fullUrl"].(string); fullURL != "" {
			key = fullURL
			byFullURL[fullURL] = key
			if k := nodeKey(resource); k != "" {
				byTypeID[k] = key
			}
		}
		keys[i] = key
		g.addNode(key)
	}

	for i, refs := range walker.ExtractFromBundle(bundle) {
		from := keys[i]
		for _, found := range refs {
			if to, ok := resolveBundleTarget(found.Reference, byFullURL, byTypeID); ok {
				g.addEdge(from, to)
			}
		}
	}

	return d.scan(g)
}

// resolveBundleTarget maps a reference string to a bundle node key, if
// it addresses another entry.
func resolveBundleTarget(ref string, byFullURL, byTypeID map[string]string) (string, bool) {
	if key, ok := byFullURL[ref]; ok {
		return key, true
	}
	parsed := reference.Parse(ref)
	switch parsed.Kind {
	case reference.KindRelative, reference.KindAbsolute:
		key, ok := byTypeID[parsed.ResourceType+"/"+parsed.ResourceID]
		return key, ok
	}
	return "", false
}

// addLocalEdges wires edges for a single resource's references. Within
// one resource only contained targets and self-references can form a
// cycle.
func addLocalEdges(g *refGraph, from string, refs []walker.FoundReference, rootKey string, containedIDs map[string]bool) {
	for _, found := range refs {
		if strings.HasPrefix(found.Reference, "#") {
			id := found.Reference[1:]
			if containedIDs[id] {
				g.addEdge(from, "#"+id)
			}
			continue
		}
		if found.Reference == rootKey {
			g.addEdge(from, rootKey)
		}
	}
}

// nodeKey builds the Type/id key for a resource, or just Type when the
// id is absent. Returns "" for nil resources.
func nodeKey(resource map[string]any) string {
	if resource == nil {
		return ""
	}
	resourceType, _ := resource["resourceType"].(string)
	if resourceType == "" {
		return ""
	}
	if id, _ := resource["id"].(string); id != "" {
		return resourceType + "/" + id
	}
	return resourceType
}

// refGraph is a directed adjacency list with stable node order.
type refGraph struct {
	order     []string
	adjacency map[string][]string
	incoming  map[string]int
	edges     int
}

func newGraph() *refGraph {
	return &refGraph{adjacency: make(map[string][]string), incoming: make(map[string]int)}
}

func (g *refGraph) addNode(key string) {
	if _, ok := g.adjacency[key]; ok {
		return
	}
	g.adjacency[key] = nil
	g.order = append(g.order, key)
}

func (g *refGraph) addEdge(from, to string) {
	g.addNode(from)
	g.addNode(to)
	g.adjacency[from] = append(g.adjacency[from], to)
	g.incoming[to]++
	g.edges++
}

// scan runs an iterative DFS from every root. Roots are the nodes with
// no incoming edges; in a fully cyclic graph every node is a start.
func (d *Detector) scan(g *refGraph) DetectionResult {
	result := DetectionResult{TotalReferences: g.edges}

	var roots []string
	for _, key := range g.order {
		if g.incoming[key] == 0 {
			roots = append(roots, key)
		}
	}
	if len(roots) == 0 {
		roots = g.order
	}

	const (
		unvisited = 0
		onStack   = 1
		finished  = 2
	)
	state := make(map[string]int, len(g.order))
	seen := make(map[string]bool)

	type frame struct {
		node string
		next int
	}

	for _, root := range roots {
		if state[root] == finished {
			continue
		}

		stack := []frame{{node: root}}
		path := []string{root}
		state[root] = onStack

		for len(stack) > 0 {
			top := &stack[len(stack)-1]
			neighbors := g.adjacency[top.node]

			if len(path) > result.MaxDepth {
				result.MaxDepth = len(path)
			}

			if top.next >= len(neighbors) || len(path) >= d.maxDepth {
				state[top.node] = finished
				stack = stack[:len(stack)-1]
				path = path[:len(path)-1]
				continue
			}

			target := neighbors[top.next]
			top.next++

			switch state[target] {
			case onStack:
				cycle := extractCycle(path, target)
				if key := cycleKey(cycle); !seen[key] {
					seen[key] = true
					result.AllCycles = append(result.AllCycles, cycle)
					if !result.HasCycle {
						result.HasCycle = true
						result.CycleChain = cycle
					}
				}
			case unvisited:
				state[target] = onStack
				stack = append(stack, frame{node: target})
				path = append(path, target)
			}
		}
	}

	return result
}

// extractCycle returns the closed sub-path starting at the first
// occurrence of target.
func extractCycle(path []string, target string) []string {
	start := 0
	for i, node := range path {
		if node == target {
			start = i
			break
		}
	}
	cycle := make([]string, 0, len(path)-start+1)
	cycle = append(cycle, path[start:]...)
	cycle = append(cycle, target)
	return cycle
}

// cycleKey produces a rotation-independent identity for a cycle so the
// same loop entered at different nodes is reported once.
func cycleKey(cycle []string) string {
	nodes := cycle[:len(cycle)-1]
	minIdx := 0
	for i, node := range nodes {
		if node < nodes[minIdx] {
			minIdx = i
		}
	}
	parts := make([]string, 0, len(nodes))
	for i := 0; i < len(nodes); i++ {
		parts = append(parts, nodes[(minIdx+i)%len(nodes)])
	}
	return strings.Join(parts, "->")
}
