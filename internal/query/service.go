package query

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/totalizer-lab/totalizer/internal/totals"
)

const (
	// DefaultTrendFraction is the share of the window treated as "recent"
	// when computing trends.
	DefaultTrendFraction = 0.25

	maxWindow = 31 * 24 * time.Hour
)

// trendCap bounds the reported trend ratio.
var trendCap = decimal.RequireFromString("9.99")

// ErrInvalidQuery marks request validation errors that should return HTTP 400.
var ErrInvalidQuery = errors.New("invalid totals query")

func invalidQueryf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidQuery, fmt.Sprintf(format, args...))
}

// Reconstructor computes windowed totals; either a single-store engine or a
// federation.
type Reconstructor interface {
	Total(ctx context.Context, spec totals.MatchSpec, parts int, window time.Duration) (totals.Totals, error)
}

// Service implements the read-path query layer over a reconstructor.
type Service struct {
	source        Reconstructor
	parts         int
	delimiter     string
	trendFraction decimal.Decimal
}

// NewService creates a query service. parts is the stored-key segment count
// (identity segments plus the trailing timestamp); trendFraction <= 0
// defaults to 0.25.
func NewService(source Reconstructor, parts int, delimiter string, trendFraction float64) *Service {
	if delimiter == "" {
		delimiter = totals.DefaultDelimiter
	}
	if trendFraction <= 0 || trendFraction >= 1 {
		trendFraction = DefaultTrendFraction
	}
	return &Service{
		source:        source,
		parts:         parts,
		delimiter:     delimiter,
		trendFraction: decimal.NewFromFloat(trendFraction),
	}
}

// Totals reconstructs windowed totals for a textual match spec.
func (s *Service) Totals(ctx context.Context, req TotalsRequest) (*TotalsResponse, error) {
	spec, window, err := s.parse(req.Spec, req.WindowSeconds)
	if err != nil {
		return nil, err
	}

	result, err := s.source.Total(ctx, spec, s.parts, window)
	if err != nil {
		return nil, fmt.Errorf("reconstruct totals: %w", err)
	}

	return &TotalsResponse{
		Spec:          req.Spec,
		WindowSeconds: req.WindowSeconds,
		Totals:        result,
	}, nil
}

// Trend reconstructs both the full window and its recent fraction and
// reports, per grouping key, how current activity compares to the window
// average. A ratio of 1 means steady activity; the ratio is capped at 9.99.
func (s *Service) Trend(ctx context.Context, req TrendRequest) (*TrendResponse, error) {
	spec, window, err := s.parse(req.Spec, req.WindowSeconds)
	if err != nil {
		return nil, err
	}

	recentWindow := time.Duration(decimal.NewFromInt(int64(window)).
		Mul(s.trendFraction).IntPart())

	full, err := s.source.Total(ctx, spec, s.parts, window)
	if err != nil {
		return nil, fmt.Errorf("reconstruct window: %w", err)
	}
	recent, err := s.source.Total(ctx, spec, s.parts, recentWindow)
	if err != nil {
		return nil, fmt.Errorf("reconstruct recent window: %w", err)
	}

	resources := make(map[string]TrendEntry, len(full))
	for key, count := range full {
		resources[key] = TrendEntry{
			Count:  count,
			Recent: recent[key],
			Trend:  s.trend(count, recent[key]),
		}
	}

	return &TrendResponse{
		Spec:          req.Spec,
		WindowSeconds: req.WindowSeconds,
		RecentSeconds: int(recentWindow / time.Second),
		Resources:     resources,
	}, nil
}

// trend is recent / (count * fraction), rounded to two places and capped.
// With steady traffic the recent subwindow holds fraction*count events, so
// the ratio reads as a rate-of-change multiplier.
func (s *Service) trend(count, recent int64) decimal.Decimal {
	if count <= 0 {
		return decimal.Zero
	}
	trend := decimal.NewFromInt(recent).
		Div(decimal.NewFromInt(count).Mul(s.trendFraction)).
		Round(2)
	if trend.GreaterThan(trendCap) {
		return trendCap
	}
	return trend
}

// parse turns the textual spec and window into reconstruction arguments.
func (s *Service) parse(text string, windowSeconds int) (totals.MatchSpec, time.Duration, error) {
	if windowSeconds <= 0 {
		return nil, 0, invalidQueryf("window must be positive, got %d", windowSeconds)
	}
	window := time.Duration(windowSeconds) * time.Second
	if window > maxWindow {
		return nil, 0, invalidQueryf("window exceeds maximum of %s", maxWindow)
	}

	var spec totals.MatchSpec
	for _, segment := range strings.Split(text, s.delimiter) {
		switch segment {
		case "":
			return nil, 0, invalidQueryf("empty segment in spec %q", text)
		case "*":
			spec = append(spec, totals.Break())
		case "?":
			spec = append(spec, totals.Ignore())
		default:
			spec = append(spec, totals.Lit(segment))
		}
	}
	if err := spec.Validate(); err != nil {
		return nil, 0, invalidQueryf("%v", err)
	}
	if len(spec) >= s.parts {
		return nil, 0, invalidQueryf("spec has %d segments, keys have only %d identity segments",
			len(spec), s.parts-1)
	}
	return spec, window, nil
}
