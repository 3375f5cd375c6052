// Package ingest classifies request paths against the reserved analytics
// ingest namespaces and the per-vendor endpoint allow-list.
// All functions are pure - the matcher has no mutable state after construction.
package ingest

import (
	"regexp"
	"strings"
)

// Namespace identifies which reserved prefix (if any) a path falls under.
type Namespace string

const (
	// NamespaceEvents is the primary event-ingest prefix.
	NamespaceEvents Namespace = "events"
	// NamespaceDB is the secondary vendor-ingest prefix.
	NamespaceDB Namespace = "db"
	// NamespaceNone marks traffic outside both reserved prefixes.
	// Such requests bypass the ingest path entirely.
	NamespaceNone Namespace = ""
)

// Reserved path prefixes. Only requests under these are ever considered
// by the allow-list or the rate limiter.
const (
	EventsPrefix = "/ingest"
	DBPrefix     = "/db-ingest"
)

// Known vendor endpoint shapes under the reserved prefixes. Anything not
// matching one of these is rejected so the proxy cannot be used as an
// open relay.
var defaultPatterns = []string{
	// Event capture and batch ingest
	`^/ingest/e/?$`,
	`^/ingest/capture/?$`,
	`^/ingest/batch/?$`,
	`^/ingest/track/?$`,
	`^/ingest/engage/?$`,
	// Session recordings
	`^/ingest/s/?$`,
	// Client SDK config/decide endpoints
	`^/ingest/decide/?$`,
	`^/ingest/flags/?$`,
	// Vendor CDN assets (SDK bundles, array configs)
	`^/ingest/static/.+$`,
	`^/ingest/array/.+$`,
	// Secondary vendor ingest API and sync endpoints
	`^/db-ingest/api/.+$`,
	`^/db-ingest/sync(/.*)?$`,
}

// Matcher decides whether an ingest path is a legitimate vendor endpoint.
// Construct once at startup; Allowed is safe for concurrent use.
type Matcher struct {
	patterns []*regexp.Regexp
}

// NewMatcher compiles the built-in vendor patterns plus any extra
// configured patterns.
func NewMatcher(extra []string) (*Matcher, error) {
	all := make([]string, 0, len(defaultPatterns)+len(extra))
	all = append(all, defaultPatterns...)
	all = append(all, extra...)

	patterns := make([]*regexp.Regexp, 0, len(all))
	for _, p := range all {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, err
		}
		patterns = append(patterns, re)
	}

	return &Matcher{patterns: patterns}, nil
}

// Allowed reports whether the path matches at least one vendor pattern.
// Pure function of the static pattern table and the input path.
func (m *Matcher) Allowed(path string) bool {
	for _, re := range m.patterns {
		if re.MatchString(path) {
			return true
		}
	}
	return false
}

// Classify returns the reserved namespace a path belongs to, or
// NamespaceNone for traffic this component must leave untouched.
func Classify(path string) Namespace {
	if underPrefix(path, DBPrefix) {
		return NamespaceDB
	}
	if underPrefix(path, EventsPrefix) {
		return NamespaceEvents
	}
	return NamespaceNone
}

// underPrefix matches the prefix itself or a subtree below it, but not
// sibling paths like "/ingestion".
func underPrefix(path, prefix string) bool {
	if path == prefix {
		return true
	}
	return strings.HasPrefix(path, prefix+"/")
}
