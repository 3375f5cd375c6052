// Package decision provides value types for ingest admission decisions.
package decision

import "time"

// Tag classifies an admission decision.
type Tag string

const (
	// TagAllowed marks a request that passed the allow-list and the
	// rate limiter.
	TagAllowed Tag = "allowed"
	// TagRateLimited marks a request rejected by the rate limiter.
	TagRateLimited Tag = "rate_limited"
	// TagBlockedInvalidPath marks an ingest-namespace request whose path
	// matched no vendor pattern.
	TagBlockedInvalidPath Tag = "blocked_invalid_path"
)

// Event records a single admission decision (value type).
// Passthrough traffic outside the reserved namespaces is not recorded.
type Event struct {
	ID        string
	Tag       Tag
	ClientKey string
	Method    string
	Path      string
	Status    int
	UserAgent string
	Timestamp time.Time
}

// Summary aggregates decisions over a period.
type Summary struct {
	PeriodStart time.Time
	PeriodEnd   time.Time
	Allowed     int64
	RateLimited int64
	Blocked     int64
}

// Total returns the number of decisions in the summary.
func (s Summary) Total() int64 {
	return s.Allowed + s.RateLimited + s.Blocked
}

// Aggregate combines events into a summary.
// This is a PURE function.
func Aggregate(events []Event, periodStart, periodEnd time.Time) Summary {
	s := Summary{
		PeriodStart: periodStart,
		PeriodEnd:   periodEnd,
	}
	for _, e := range events {
		switch e.Tag {
		case TagAllowed:
			s.Allowed++
		case TagRateLimited:
			s.RateLimited++
		case TagBlockedInvalidPath:
			s.Blocked++
		}
	}
	return s
}
