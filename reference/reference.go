// Package reference parses FHIR reference strings and validates
// canonical, versioned, and contained references.
package reference

import (
	"regexp"
	"strings"
)

// Kind classifies a reference string.
type Kind string

const (
	// KindRelative is a relative reference (e.g., "Patient/123").
	KindRelative Kind = "relative"
	// KindAbsolute is an absolute URL reference to a resource instance.
	KindAbsolute Kind = "absolute"
	// KindCanonical is a canonical URL addressing a conformance resource.
	KindCanonical Kind = "canonical"
	// KindContained is a "#id" reference to a contained resource.
	KindContained Kind = "contained"
	// KindInvalid marks a reference that could not be classified.
	KindInvalid Kind = "invalid"
)

// Parsed holds the components of a parsed reference string.
type Parsed struct {
	// Raw is the original reference string.
	Raw string

	// Kind classifies the reference.
	Kind Kind

	// ResourceType is the referenced resource type. Empty for contained
	// references and canonicals whose type could not be recognized.
	ResourceType string

	// ResourceID is the referenced resource id. For contained references
	// this is the fragment id without the leading "#".
	ResourceID string

	// VersionID is the "_history" version for relative/absolute
	// references, or the "|version" suffix for canonicals.
	VersionID string

	// BaseURL is the server base for absolute references.
	BaseURL string

	// CanonicalURL is the canonical URL without its version suffix.
	CanonicalURL string

	// IsValid reports whether the reference parsed cleanly.
	IsValid bool

	// Reason describes why parsing failed when IsValid is false.
	Reason string
}

// IsVersioned reports whether the reference carries a version.
func (p Parsed) IsVersioned() bool {
	return p.VersionID != ""
}

// String reconstructs the reference string from its components.
// For invalid references it returns the raw input.
func (p Parsed) String() string {
	switch p.Kind {
	case KindContained:
		return "#" + p.ResourceID
	case KindRelative:
		s := p.ResourceType + "/" + p.ResourceID
		if p.VersionID != "" {
			s += "/_history/" + p.VersionID
		}
		return s
	case KindAbsolute:
		s := p.BaseURL + "/" + p.ResourceType + "/" + p.ResourceID
		if p.VersionID != "" {
			s += "/_history/" + p.VersionID
		}
		return s
	case KindCanonical:
		if p.VersionID != "" {
			return p.CanonicalURL + "|" + p.VersionID
		}
		return p.CanonicalURL
	default:
		return p.Raw
	}
}

// idPattern matches a FHIR resource id.
var idPattern = regexp.MustCompile(`^[A-Za-z0-9\-.]{1,64}$`)

// upperCamelPattern matches a resource type token: an uppercase letter
// followed by letters and digits.
var upperCamelPattern = regexp.MustCompile(`^[A-Z][A-Za-z0-9]*$`)

// ParserOptions configures reference parsing.
type ParserOptions struct {
	// StrictTypes validates parsed resource types against the known FHIR
	// resource type set. When false, any UpperCamel token is accepted.
	StrictTypes bool

	// KnownTypes overrides the built-in resource type set. Only consulted
	// when StrictTypes is true.
	KnownTypes map[string]bool
}

// Parser parses reference strings. The zero value is a lenient parser;
// use NewParser for strict type checking.
type Parser struct {
	opts ParserOptions
}

// NewParser creates a Parser.
func NewParser(opts ParserOptions) *Parser {
	return &Parser{opts: opts}
}

// defaultParser backs the package-level Parse with strict type checking.
var defaultParser = NewParser(ParserOptions{StrictTypes: true})

// Parse parses a reference string using the default strict parser.
func Parse(ref string) Parsed {
	return defaultParser.Parse(ref)
}

// Parse classifies and decomposes a reference string. It never panics;
// malformed input yields Kind=invalid with IsValid=false and a reason.
//
// Classification order matters: contained first, then canonical, then
// absolute, then relative.
func (p *Parser) Parse(ref string) Parsed {
	parsed := Parsed{Raw: ref, Kind: KindInvalid}

	if ref == "" {
		parsed.Reason = "empty reference"
		return parsed
	}

	if strings.HasPrefix(ref, "#") {
		return p.parseContained(ref)
	}
	if isCanonicalURL(ref) {
		return p.parseCanonical(ref)
	}
	if strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") {
		return p.parseAbsolute(ref)
	}
	return p.parseRelative(ref)
}

// parseContained handles "#id" fragment references.
// A contained reference carries no resource type.
func (p *Parser) parseContained(ref string) Parsed {
	parsed := Parsed{Raw: ref, Kind: KindContained}

	id := strings.TrimPrefix(ref, "#")
	if id == "" {
		parsed.Kind = KindInvalid
		parsed.Reason = "contained reference has no id"
		return parsed
	}
	if !idPattern.MatchString(id) {
		parsed.Kind = KindInvalid
		parsed.Reason = "contained reference id is malformed"
		return parsed
	}

	parsed.ResourceID = id
	parsed.IsValid = true
	return parsed
}

// parseCanonical handles canonical URLs, optionally with a "|version"
// suffix.
func (p *Parser) parseCanonical(ref string) Parsed {
	parsed := Parsed{Raw: ref, Kind: KindCanonical}

	url := ref
	if idx := strings.LastIndex(ref, "|"); idx != -1 {
		url = ref[:idx]
		parsed.VersionID = ref[idx+1:]
		if parsed.VersionID == "" {
			parsed.Kind = KindInvalid
			parsed.Reason = "canonical version suffix is empty"
			return parsed
		}
	}
	if url == "" {
		parsed.Kind = KindInvalid
		parsed.Reason = "canonical URL is empty"
		return parsed
	}

	parsed.CanonicalURL = url
	parsed.ResourceType = canonicalResourceType(url)
	parsed.IsValid = true
	return parsed
}

// parseAbsolute handles http(s) URLs pointing at resource instances.
// The type/id pair follows a "/fhir/" path segment when one is present,
// falling back to the last two path segments.
func (p *Parser) parseAbsolute(ref string) Parsed {
	parsed := Parsed{Raw: ref, Kind: KindAbsolute}

	rest, version := splitHistory(ref)
	parsed.VersionID = version

	segments := strings.Split(rest, "/")
	// scheme://host/...: segments[0] is "http(s):", segments[1] is "".
	if len(segments) < 5 {
		parsed.Kind = KindInvalid
		parsed.Reason = "absolute reference is missing type and id path segments"
		return parsed
	}

	typeIdx := -1
	for i := 3; i < len(segments)-2; i++ {
		if strings.EqualFold(segments[i], "fhir") {
			typeIdx = i + 1
			break
		}
	}
	if typeIdx == -1 {
		typeIdx = len(segments) - 2
	}

	resourceType := segments[typeIdx]
	resourceID := segments[typeIdx+1]

	if !p.validType(resourceType) {
		parsed.Kind = KindInvalid
		parsed.Reason = "absolute reference has an unrecognized resource type"
		return parsed
	}
	if !idPattern.MatchString(resourceID) {
		parsed.Kind = KindInvalid
		parsed.Reason = "absolute reference has a malformed resource id"
		return parsed
	}

	parsed.ResourceType = resourceType
	parsed.ResourceID = resourceID
	parsed.BaseURL = strings.Join(segments[:typeIdx], "/")
	parsed.IsValid = true
	return parsed
}

// parseRelative handles "Type/id" and "Type/id/_history/version" forms.
func (p *Parser) parseRelative(ref string) Parsed {
	parsed := Parsed{Raw: ref, Kind: KindRelative}

	rest, version := splitHistory(ref)
	parsed.VersionID = version

	segments := strings.Split(rest, "/")
	if len(segments) != 2 {
		parsed.Kind = KindInvalid
		parsed.Reason = "relative reference must have the form ResourceType/id"
		return parsed
	}

	resourceType, resourceID := segments[0], segments[1]
	if !upperCamelPattern.MatchString(resourceType) {
		parsed.Kind = KindInvalid
		parsed.Reason = "resource type must start with an uppercase letter"
		return parsed
	}
	if !p.validType(resourceType) {
		parsed.Kind = KindInvalid
		parsed.Reason = "unknown resource type " + resourceType
		return parsed
	}
	if !idPattern.MatchString(resourceID) {
		parsed.Kind = KindInvalid
		parsed.Reason = "resource id is malformed"
		return parsed
	}

	parsed.ResourceType = resourceType
	parsed.ResourceID = resourceID
	parsed.IsValid = true
	return parsed
}

// validType checks a resource type token against the configured type set.
func (p *Parser) validType(name string) bool {
	if !upperCamelPattern.MatchString(name) {
		return false
	}
	if !p.opts.StrictTypes {
		return true
	}
	if p.opts.KnownTypes != nil {
		return p.opts.KnownTypes[name]
	}
	return resourceTypes[name]
}

// splitHistory removes a trailing "/_history/<version>" suffix, returning
// the remainder and the version ("" if absent).
func splitHistory(ref string) (string, string) {
	idx := strings.Index(ref, "/_history/")
	if idx == -1 {
		return ref, ""
	}
	return ref[:idx], ref[idx+len("/_history/"):]
}

// isCanonicalURL reports whether a reference should be classified as
// canonical: a urn: reference, or a URL whose path contains a known
// conformance resource type segment.
func isCanonicalURL(ref string) bool {
	if strings.HasPrefix(ref, "urn:") {
		return true
	}
	if !strings.HasPrefix(ref, "http://") && !strings.HasPrefix(ref, "https://") {
		return false
	}

	url := ref
	if idx := strings.LastIndex(url, "|"); idx != -1 {
		url = url[:idx]
	}
	for _, segment := range strings.Split(url, "/") {
		if conformanceTypes[segment] {
			return true
		}
	}
	return false
}

// canonicalResourceType extracts the conformance resource type from a
// canonical URL, or "" when none is recognizable.
func canonicalResourceType(url string) string {
	for _, segment := range strings.Split(url, "/") {
		if conformanceTypes[segment] {
			return segment
		}
	}
	return ""
}
