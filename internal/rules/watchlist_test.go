package rules

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func testWatchList(t *testing.T) *WatchList {
	t.Helper()
	w := NewWatchList(nil)
	w.Define(RuleSpec{
		Address:    "127.0.0.1",
		Port:       3430,
		KeyPattern: "<prefix>;<matched>",
		TTL:        600,
		Buckets:    1,
	})
	return w
}

func TestMatchAppliesDefaults(t *testing.T) {
	w := testWatchList(t)
	require.NoError(t, w.AddRule(RuleSpec{
		Prefix:  "web_page",
		Matchex: `"(?:GET|POST) .*?([^/]+[/]?) HTTP/`,
	}))

	line := `10.0.0.9 - - [25/Aug/2026] "GET /docs/index.html HTTP/1.1" 200 512`
	got := w.Match("127.0.0.1", 3430, line)
	require.Len(t, got, 1)
	require.Equal(t, Increment{Key: "web_page;index.html", TTL: 600}, got[0])
}

func TestMatchWrongBinding(t *testing.T) {
	w := testWatchList(t)
	require.NoError(t, w.AddRule(RuleSpec{Prefix: "p", Matchex: `(x)`}))

	require.Nil(t, w.Match("127.0.0.1", 9999, "x"))
	require.Nil(t, w.Match("10.0.0.1", 3430, "x"))
}

func TestMatchMultipleRulesOneBinding(t *testing.T) {
	w := testWatchList(t)
	require.NoError(t, w.AddRule(RuleSpec{Prefix: "first", Matchex: `(alpha)`}))
	require.NoError(t, w.AddRule(RuleSpec{Prefix: "second", Matchex: `(alph)`}))
	require.NoError(t, w.AddRule(RuleSpec{Prefix: "third", Matchex: `(beta)`}))

	got := w.Match("127.0.0.1", 3430, "alpha")
	require.Len(t, got, 2, "one datagram line can trigger multiple rules")
	require.Equal(t, "first;alpha", got[0].Key, "registration order preserved")
	require.Equal(t, "second;alph", got[1].Key)
}

func TestMatchNoFiring(t *testing.T) {
	w := testWatchList(t)
	require.NoError(t, w.AddRule(RuleSpec{Prefix: "p", Matchex: `(zebra)`}))
	require.Empty(t, w.Match("127.0.0.1", 3430, "nothing to see"))
}

func TestMatchMissingFieldIsLocal(t *testing.T) {
	w := testWatchList(t)
	// First rule references an undefined field; second rule still fires.
	require.NoError(t, w.AddRule(RuleSpec{
		Prefix:     "broken",
		Matchex:    `(alpha)`,
		KeyPattern: "<prefix>;<matched>;<undefined_field>",
	}))
	require.NoError(t, w.AddRule(RuleSpec{Prefix: "ok", Matchex: `(alpha)`}))

	got := w.Match("127.0.0.1", 3430, "alpha")
	require.Len(t, got, 1)
	require.Equal(t, "ok;alpha", got[0].Key)
}

func TestDefineOverridesPreviousDefaults(t *testing.T) {
	w := testWatchList(t)
	w.Define(RuleSpec{TTL: 86400, Buckets: 4})
	require.NoError(t, w.AddRule(RuleSpec{Prefix: "p", Matchex: `(x)`}))

	rule := w.Rules()[0]
	require.Equal(t, 86400, rule.TTL)
	require.Equal(t, 86400/4, rule.BucketPeriod())
	require.Equal(t, "127.0.0.1", rule.Address, "untouched defaults survive redefine")
}

func TestBindings(t *testing.T) {
	w := testWatchList(t)
	require.NoError(t, w.AddRule(RuleSpec{Prefix: "a", Matchex: `(x)`}))
	require.NoError(t, w.AddRule(RuleSpec{Prefix: "b", Matchex: `(y)`}))
	require.NoError(t, w.AddRule(RuleSpec{Prefix: "c", Matchex: `(z)`, Port: 3431}))

	require.ElementsMatch(t, []string{"127.0.0.1:3430", "127.0.0.1:3431"}, w.Bindings())
}
