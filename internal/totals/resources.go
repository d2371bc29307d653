package totals

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// resource is one resource identity discovered by the key scan: its
// non-timestamp segments plus every bucket-start timestamp observed for it.
type resource struct {
	identity []string
	buckets  []int64 // unix seconds, sorted descending before the walk
}

// resourceSet groups scanned keys by resource identity. Ephemeral: built
// fresh per reconstruction call.
type resourceSet struct {
	delimiter string
	parts     int
	byKey     map[string]*resource
	order     []string // insertion order, for deterministic walks
}

func newResourceSet(delimiter string, parts int) *resourceSet {
	return &resourceSet{
		delimiter: delimiter,
		parts:     parts,
		byKey:     make(map[string]*resource),
	}
}

// add splits a scanned key into identity + bucket timestamp. Keys with the
// wrong number of parts or a malformed timestamp are rejected.
func (rs *resourceSet) add(key string) error {
	segments := strings.Split(key, rs.delimiter)
	if len(segments) != rs.parts {
		return fmt.Errorf("wrong number of parts in key %q: got %d, want %d",
			key, len(segments), rs.parts)
	}

	ts, err := strconv.ParseInt(segments[len(segments)-1], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid bucket timestamp in key %q: %w", key, err)
	}

	identity := segments[:len(segments)-1]
	id := strings.Join(identity, rs.delimiter)
	r, ok := rs.byKey[id]
	if !ok {
		r = &resource{identity: identity}
		rs.byKey[id] = r
		rs.order = append(rs.order, id)
	}
	r.buckets = append(r.buckets, ts)
	return nil
}

// sorted returns all resources with their bucket lists sorted descending.
// Strict descending order within one resource is required for correct
// pro-rating at the window boundary.
func (rs *resourceSet) sorted() []*resource {
	out := make([]*resource, 0, len(rs.order))
	for _, id := range rs.order {
		r := rs.byKey[id]
		sort.Slice(r.buckets, func(i, j int) bool { return r.buckets[i] > r.buckets[j] })
		out = append(out, r)
	}
	return out
}

// storeKey rebuilds the full store key for one bucket of this resource.
func (r *resource) storeKey(bucket int64, delimiter string) string {
	return strings.Join(append(append([]string{}, r.identity...),
		strconv.FormatInt(bucket, 10)), delimiter)
}
