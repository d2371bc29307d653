package rules

import (
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func testSpec() RuleSpec {
	return RuleSpec{
		Address:    "127.0.0.1",
		Port:       3430,
		Matchex:    `x`,
		KeyPattern: "<prefix>;<matched>;<start_ts>",
		TTL:        240,
		Buckets:    4,
		Prefix:     "web_page",
		StartTS:    true,
	}
}

func TestBucketPeriodIntegerDivision(t *testing.T) {
	spec := testSpec()
	spec.TTL = 86400
	spec.Buckets = 7
	rule, err := newWatchRule(spec)
	require.NoError(t, err)
	require.Equal(t, 86400/7, rule.BucketPeriod())
}

func TestBucketRotation(t *testing.T) {
	rule, err := newWatchRule(testSpec())
	require.NoError(t, err)
	require.Equal(t, 60, rule.BucketPeriod())

	base := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)
	now := base
	rule.nowFn = func() time.Time { return now }

	key1, err := rule.Key(map[string]string{"matched": "index.html"})
	require.NoError(t, err)
	require.Equal(t, "web_page;index.html;"+strconv.FormatInt(base.Unix(), 10), key1)

	// Within one bucket period the timestamp is idempotent.
	now = base.Add(59 * time.Second)
	key2, err := rule.Key(map[string]string{"matched": "index.html"})
	require.NoError(t, err)
	require.Equal(t, key1, key2)

	// Exactly bucketPeriod elapsed still does not rotate (strictly greater).
	now = base.Add(60 * time.Second)
	key3, err := rule.Key(map[string]string{"matched": "index.html"})
	require.NoError(t, err)
	require.Equal(t, key1, key3)

	// More than bucketPeriod elapsed rotates to the current time.
	now = base.Add(61 * time.Second)
	key4, err := rule.Key(map[string]string{"matched": "index.html"})
	require.NoError(t, err)
	require.Equal(t, "web_page;index.html;"+strconv.FormatInt(now.Unix(), 10), key4)
}

func TestKeyWithoutTimestampTracking(t *testing.T) {
	spec := testSpec()
	spec.StartTS = false
	spec.KeyPattern = "<prefix>;<matched>{;<start_ts>}"
	rule, err := newWatchRule(spec)
	require.NoError(t, err)

	// start_ts is optional in the template and not tracked: omitted.
	key, err := rule.Key(map[string]string{"matched": "index.html"})
	require.NoError(t, err)
	require.Equal(t, "web_page;index.html", key)
}

func TestRuleConfigurationErrors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*RuleSpec)
	}{
		{name: "missing address", mutate: func(s *RuleSpec) { s.Address = "" }},
		{name: "missing port", mutate: func(s *RuleSpec) { s.Port = 0 }},
		{name: "zero ttl", mutate: func(s *RuleSpec) { s.TTL = 0 }},
		{name: "bad matchex", mutate: func(s *RuleSpec) { s.Matchex = "(" }},
		{name: "bad keypattern", mutate: func(s *RuleSpec) { s.KeyPattern = "<foo" }},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			spec := testSpec()
			tc.mutate(&spec)
			_, err := newWatchRule(spec)
			require.Error(t, err)
		})
	}
}
