package fanout

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/totalizer-lab/totalizer/internal/totals"
)

type fakeLocator struct {
	locations []string
	err       error
	calls     int
}

func (f *fakeLocator) PTR(context.Context, string) ([]string, error) {
	f.calls++
	return f.locations, f.err
}

type fakeReconstructor struct {
	totals totals.Totals
	err    error
	calls  int
}

func (f *fakeReconstructor) Total(context.Context, totals.MatchSpec, int, time.Duration) (totals.Totals, error) {
	f.calls++
	return f.totals, f.err
}

var testSpec = totals.MatchSpec{totals.Lit("web_page"), totals.Break()}

func TestFederationMergesLocations(t *testing.T) {
	engines := map[string]*fakeReconstructor{
		"redis.athena.example.com": {totals: totals.Totals{"a": 3}},
		"redis.sophia.example.com": {totals: totals.Totals{"a": 4, "b": 1}},
	}
	locator := &fakeLocator{locations: []string{
		"redis.athena.example.com", "redis.sophia.example.com",
	}}
	direct := &fakeReconstructor{}

	f := New(locator, "redis.example.com",
		func(domain string) Reconstructor { return engines[domain] },
		direct, slog.Default())

	got, err := f.Total(context.Background(), testSpec, 4, time.Minute)
	require.NoError(t, err)
	require.Equal(t, totals.Totals{"a": 7, "b": 1}, got)
	require.Zero(t, direct.calls, "direct store must not be queried when federated")
}

func TestFederationFallsBackToDirect(t *testing.T) {
	tests := []struct {
		name    string
		locator *fakeLocator
	}{
		{name: "no locations announced", locator: &fakeLocator{}},
		{name: "discovery failed", locator: &fakeLocator{err: errors.New("servfail")}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			direct := &fakeReconstructor{totals: totals.Totals{"a": 5}}
			f := New(tc.locator, "redis.example.com",
				func(string) Reconstructor { t.Fatal("no location should open"); return nil },
				direct, slog.Default())

			got, err := f.Total(context.Background(), testSpec, 4, time.Minute)
			require.NoError(t, err)
			require.Equal(t, totals.Totals{"a": 5}, got)
			require.Equal(t, 1, direct.calls)
		})
	}
}

func TestFederationSkipsFailedLocation(t *testing.T) {
	engines := map[string]*fakeReconstructor{
		"redis.athena.example.com": {totals: totals.Totals{"a": 3}},
		"redis.sophia.example.com": {err: errors.New("unreachable")},
	}
	locator := &fakeLocator{locations: []string{
		"redis.athena.example.com", "redis.sophia.example.com",
	}}

	f := New(locator, "redis.example.com",
		func(domain string) Reconstructor { return engines[domain] },
		&fakeReconstructor{}, slog.Default())

	got, err := f.Total(context.Background(), testSpec, 4, time.Minute)
	require.NoError(t, err)
	require.Equal(t, totals.Totals{"a": 3}, got)
}

func TestFederationRejectsInvalidSpecBeforeDiscovery(t *testing.T) {
	locator := &fakeLocator{locations: []string{"redis.athena.example.com"}}
	f := New(locator, "redis.example.com",
		func(string) Reconstructor { return &fakeReconstructor{} },
		&fakeReconstructor{}, slog.Default())

	_, err := f.Total(context.Background(),
		totals.MatchSpec{totals.Lit("web_page")}, 4, time.Minute)
	require.ErrorIs(t, err, totals.ErrInvalidSpec)
	require.Zero(t, locator.calls)
}
