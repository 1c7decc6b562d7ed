// Package records provides multi-aspect validation of FHIR resources with
// reference-integrity checking.
//
// Validation runs six independent aspects (structural, profile, terminology,
// reference, business-rule, metadata) and aggregates them into a scored
// result. The reference aspect parses reference strings, detects circular
// reference chains, verifies version consistency, and probes referenced
// resources for existence over HTTP.
//
// # Quick Start
//
//	import (
//	    "github.com/medvertical/records"
//	    "github.com/medvertical/records/engine"
//	)
//
//	eng := engine.New(engine.Deps{},
//	    records.WithParallelAspects(true),
//	    records.WithReferenceBaseURL("https://fhir.example.org/fhir"),
//	)
//
//	result, err := eng.Validate(ctx, resourceJSON)
//	if !result.Valid {
//	    for _, issue := range result.Issues {
//	        fmt.Println(issue)
//	    }
//	}
//
// # Subsystems
//
//   - engine: aspect orchestration, scoring, lifecycle events
//   - queue: priority scheduling with retries and cancellation
//   - graph: circular reference detection
//   - refcheck: batched existence probes with caching and deduplication
//   - reference: reference parsing and specialized validators
//   - health: connectivity monitoring and circuit breaking
package records
