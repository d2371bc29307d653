// Package totals reconstructs approximate totals over a trailing window from
// the finite-lifetime bucket counters the agent writes. Each resource's
// buckets are walked newest to oldest; the one bucket straddling the window
// boundary is pro-rated by the fraction of its period inside the window.
package totals

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidSpec marks malformed match specs, rejected synchronously before
// any store I/O.
var ErrInvalidSpec = errors.New("invalid match spec")

// Handler says how one match-spec segment participates in the query and the
// grouping key.
type Handler int

const (
	// HandlerLiteral matches the segment's literal value.
	HandlerLiteral Handler = iota
	// HandlerBreak wildcards the segment and includes its value in the
	// grouping key.
	HandlerBreak
	// HandlerIgnore wildcards the segment but excludes it from the
	// grouping key.
	HandlerIgnore
)

// Segment is one expected key segment.
type Segment struct {
	Literal string
	Handler Handler
}

// Lit builds a literal segment.
func Lit(s string) Segment { return Segment{Literal: s} }

// Break builds a grouping wildcard segment.
func Break() Segment { return Segment{Handler: HandlerBreak} }

// Ignore builds a non-grouping wildcard segment.
func Ignore() Segment { return Segment{Handler: HandlerIgnore} }

// MatchSpec is the ordered sequence of expected key segments. The rotating
// timestamp segment at the end of stored keys is wildcarded automatically
// and never appears in the spec.
type MatchSpec []Segment

// Validate rejects specs with no Break/Ignore marker: without a wildcard
// segment there is nothing to total over.
func (m MatchSpec) Validate() error {
	if len(m) == 0 {
		return fmt.Errorf("%w: empty", ErrInvalidSpec)
	}
	for _, seg := range m {
		if seg.Handler != HandlerLiteral {
			return nil
		}
	}
	return fmt.Errorf("%w: no Break/Ignore marker present", ErrInvalidSpec)
}

// pattern builds the wildcarded store query, appending a trailing wildcard
// for the timestamp segment unless the spec already ends in one.
func (m MatchSpec) pattern(delimiter, wildcard string) string {
	parts := make([]string, 0, len(m)+1)
	for _, seg := range m {
		if seg.Handler == HandlerLiteral {
			parts = append(parts, seg.Literal)
		} else {
			parts = append(parts, wildcard)
		}
	}
	if !strings.HasSuffix(parts[len(parts)-1], wildcard) {
		parts = append(parts, wildcard)
	}
	return strings.Join(parts, delimiter)
}

// groupKey joins the Break-marked segment values of one resource identity.
// Segments past the end of the spec (trailing wildcards) never group.
func (m MatchSpec) groupKey(resource []string, delimiter string) string {
	var parts []string
	for i, seg := range m {
		if seg.Handler == HandlerBreak && i < len(resource) {
			parts = append(parts, resource[i])
		}
	}
	return strings.Join(parts, delimiter)
}

// KV is the read-side view of one store location: wildcard key enumeration
// plus single-key reads. Implemented by rkvdns.Domain.
type KV interface {
	Keys(ctx context.Context, pattern string) ([]string, error)
	Get(ctx context.Context, key string) (value string, ok bool, err error)
}

// Totals maps grouping keys to accumulated counts. Additive only, built
// fresh per reconstruction call.
type Totals map[string]int64

// Add accumulates n under key.
func (t Totals) Add(key string, n int64) {
	t[key] += n
}

// Merge sums other into t.
func (t Totals) Merge(other Totals) {
	for k, v := range other {
		t[k] += v
	}
}
