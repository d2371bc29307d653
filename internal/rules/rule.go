package rules

import (
	"fmt"
	"regexp"
	"strconv"
	"sync"
	"time"
)

// FieldStartTS is the name of the rotating bucket-start timestamp field.
// It is generated internally and cannot be supplied by configuration.
const FieldStartTS = "start_ts"

// WatchRule is one matching/key-generation unit: it binds a match expression
// to a listening address/port and turns successful matches into store keys.
//
// The rotating bucket-start timestamp is the mechanism that buckets time into
// discrete TTL'd store entries: it is lazily initialized on first key
// generation and rotates forward whenever more than ttl/buckets seconds have
// elapsed since the last rotation. Rotation state is owned by the rule and
// guarded by a mutex so concurrent dispatch paths sharing one rule stay
// single-writer.
type WatchRule struct {
	Address string
	Port    int
	Source  string
	TTL     int // seconds, assigned to every key this rule generates
	Buckets int

	matchex   *regexp.Regexp
	template  *Template
	transform *Transform
	fields    map[string]string // defaults + fixed fields for substitution
	trackTS   bool

	bucketPeriod int // ttl / buckets, integer division, computed once

	mu      sync.Mutex
	startTS time.Time
	nowFn   func() time.Time
}

// newWatchRule builds a rule from an already-merged spec. Template and match
// expression errors are configuration errors and fail rule registration.
func newWatchRule(spec RuleSpec) (*WatchRule, error) {
	if spec.Address == "" || spec.Port <= 0 {
		return nil, fmt.Errorf("rule %q: missing or invalid address/port (%q:%d)",
			spec.KeyPattern, spec.Address, spec.Port)
	}
	if spec.TTL <= 0 {
		return nil, fmt.Errorf("rule %q: ttl must be positive, got %d", spec.KeyPattern, spec.TTL)
	}

	tmpl, err := ParseTemplate(spec.KeyPattern)
	if err != nil {
		return nil, fmt.Errorf("rule %q: %w", spec.KeyPattern, err)
	}

	matchex, err := regexp.Compile(spec.Matchex)
	if err != nil {
		return nil, fmt.Errorf("rule %q: invalid matchex %q: %w", spec.KeyPattern, spec.Matchex, err)
	}

	buckets := spec.Buckets
	if buckets < 1 {
		buckets = 1
	}

	fields := map[string]string{
		"address": spec.Address,
		"port":    strconv.Itoa(spec.Port),
	}
	if spec.Source != "" {
		fields["source"] = spec.Source
	}
	if spec.Prefix != "" {
		fields["prefix"] = spec.Prefix
	}
	for k, v := range spec.Fields {
		fields[k] = v
	}

	transform, err := newTransform(spec.Transform, matchex)
	if err != nil {
		return nil, fmt.Errorf("rule %q: %w", spec.KeyPattern, err)
	}

	return &WatchRule{
		Address:      spec.Address,
		Port:         spec.Port,
		Source:       spec.Source,
		TTL:          spec.TTL,
		Buckets:      buckets,
		matchex:      matchex,
		template:     tmpl,
		transform:    transform,
		fields:       fields,
		trackTS:      spec.StartTS,
		bucketPeriod: spec.TTL / buckets,
		nowFn:        time.Now,
	}, nil
}

// BucketPeriod returns the rule's bucket period in seconds (ttl / buckets).
func (r *WatchRule) BucketPeriod() int { return r.bucketPeriod }

// Key generates the store key for this rule, merging the supplied capture
// fields over the rule's fixed fields. If the rule tracks a bucket-start
// timestamp it is rotated here when stale; the refreshed value is used in
// the same emitted key.
func (r *WatchRule) Key(captures map[string]string) (string, error) {
	fields := make(map[string]string, len(r.fields)+len(captures)+1)
	for k, v := range r.fields {
		fields[k] = v
	}
	for k, v := range captures {
		fields[k] = v
	}

	if r.trackTS {
		fields[FieldStartTS] = strconv.FormatInt(r.rotate().Unix(), 10)
	}

	return r.template.Render(fields)
}

// rotate returns the current bucket-start timestamp, advancing it when more
// than bucketPeriod seconds have elapsed since the last rotation.
func (r *WatchRule) rotate() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.nowFn()
	if r.startTS.IsZero() || now.Sub(r.startTS) > time.Duration(r.bucketPeriod)*time.Second {
		r.startTS = now
	}
	return r.startTS
}
