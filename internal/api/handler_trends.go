package api

import (
	"bytes"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	chart "github.com/wcharczuk/go-chart/v2"

	"github.com/softcane/cloud-cost-advisor/internal/engine"
)

// TrendHandler handles cost trend endpoints. The series carries
// synthetic smoothing, so responses flag the data as illustrative.
type TrendHandler struct {
	trends TrendSource
}

// NewTrendHandler creates a new trend handler.
func NewTrendHandler(trends TrendSource) *TrendHandler {
	return &TrendHandler{trends: trends}
}

// trendResponse wraps the series with the illustrative marker.
type trendResponse struct {
	engine.TrendSeries
	Illustrative bool `json:"illustrative"`
}

func (h *TrendHandler) lookbackDays(c echo.Context) (int, bool) {
	days := engine.DefaultTrendLookbackDays
	if raw := c.QueryParam("lookback_days"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < engine.MinTrendLookbackDays || parsed > engine.MaxTrendLookbackDays {
			return 0, false
		}
		days = parsed
	}
	return days, true
}

// GetTotal handles GET /cost_trends/total.
func (h *TrendHandler) GetTotal(c echo.Context) error {
	days, ok := h.lookbackDays(c)
	if !ok {
		return ErrorBadRequest(c, "lookback_days must be between 1 and 90")
	}

	series, err := h.trends.TotalCostTrend(c.Request().Context(), days)
	if err != nil {
		return ErrorInternal(c, "Error computing cost trends: "+err.Error())
	}
	return c.JSON(http.StatusOK, trendResponse{TrendSeries: series, Illustrative: true})
}

// GetTotalChart handles GET /cost_trends/total/chart, rendering the
// series as a PNG.
func (h *TrendHandler) GetTotalChart(c echo.Context) error {
	days, ok := h.lookbackDays(c)
	if !ok {
		return ErrorBadRequest(c, "lookback_days must be between 1 and 90")
	}

	series, err := h.trends.TotalCostTrend(c.Request().Context(), days)
	if err != nil {
		return ErrorInternal(c, "Error computing cost trends: "+err.Error())
	}
	if len(series.Days) < 2 {
		return ErrorBadRequest(c, "Not enough data points to render a chart")
	}

	x := make([]time.Time, len(series.Days))
	for i, day := range series.Days {
		t, parseErr := time.Parse("2006-01-02", day)
		if parseErr != nil {
			return ErrorInternal(c, "Malformed trend series: "+parseErr.Error())
		}
		x[i] = t
	}

	costFormatter := func(v interface{}) string {
		return chart.FloatValueFormatterWithFormat(v, "$%.2f")
	}
	graph := chart.Chart{
		Width:  1280,
		Height: 720,
		Title:  "Daily cost, baseline vs optimized (illustrative)",
		XAxis: chart.XAxis{
			ValueFormatter: chart.TimeValueFormatter,
		},
		YAxis: chart.YAxis{
			Name:           "Daily cost (USD)",
			ValueFormatter: costFormatter,
		},
		Series: []chart.Series{
			chart.TimeSeries{
				Name:    "Baseline",
				XValues: x,
				YValues: series.BaselineDailyCost,
			},
			chart.TimeSeries{
				Name:    "Optimized",
				XValues: x,
				YValues: series.OptimizedDailyCost,
			},
		},
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	var buf bytes.Buffer
	if err := graph.Render(chart.PNG, &buf); err != nil {
		return ErrorInternal(c, "Error rendering chart: "+err.Error())
	}
	return c.Blob(http.StatusOK, "image/png", buf.Bytes())
}
