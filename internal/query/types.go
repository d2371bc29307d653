package query

import (
	"github.com/shopspring/decimal"
)

// TotalsRequest is the parsed form of a windowed-totals query. Spec is the
// textual match spec: delimiter-separated segments where "*" groups on the
// segment's value, "?" wildcards it without grouping, and anything else
// matches literally.
type TotalsRequest struct {
	Spec          string `form:"spec" binding:"required"`
	WindowSeconds int    `form:"window" binding:"required"`
}

// TotalsResponse carries the reconstructed totals keyed by grouping key.
type TotalsResponse struct {
	Spec          string           `json:"spec"`
	WindowSeconds int              `json:"window_seconds"`
	Totals        map[string]int64 `json:"totals"`
}

// TrendRequest asks for activity trends over the window.
type TrendRequest struct {
	Spec          string `form:"spec" binding:"required"`
	WindowSeconds int    `form:"window" binding:"required"`
}

// TrendEntry is one grouping key's activity summary: the full-window count,
// the recent-subwindow count, and their capped ratio.
type TrendEntry struct {
	Count  int64           `json:"count"`
	Recent int64           `json:"recent"`
	Trend  decimal.Decimal `json:"trend"`
}

// TrendResponse carries per-grouping-key trends.
type TrendResponse struct {
	Spec          string                `json:"spec"`
	WindowSeconds int                   `json:"window_seconds"`
	RecentSeconds int                   `json:"recent_seconds"`
	Resources     map[string]TrendEntry `json:"resources"`
}
