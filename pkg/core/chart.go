package core

// ChartType identifies the kind of chart a spec describes.
type ChartType string

// Chart types accepted from model responses.
const (
	ChartBar     ChartType = "bar"
	ChartLine    ChartType = "line"
	ChartPie     ChartType = "pie"
	ChartArea    ChartType = "area"
	ChartScatter ChartType = "scatter"
)

// Valid reports whether t is a known chart type.
func (t ChartType) Valid() bool {
	switch t {
	case ChartBar, ChartLine, ChartPie, ChartArea, ChartScatter:
		return true
	}
	return false
}

// YKey describes one data series of a chart.
type YKey struct {
	// Key is the result column the series reads from.
	Key string `json:"key"`

	// Label is the display label for the series. Optional.
	Label string `json:"label,omitempty"`

	// Color is a display hint for the series. Optional.
	Color string `json:"color,omitempty"`
}

// ChartSpec is a declarative description of one chart derived from a query
// result. It is data only; nothing in this system renders it.
type ChartSpec struct {
	Type  ChartType `json:"type"`
	Title string    `json:"title"`

	// XKey is the result column used for the x axis (or pie labels).
	XKey string `json:"xKey"`

	// YKeys holds the chart's data series. Always non-empty on a
	// validated spec.
	YKeys []YKey `json:"yKeys"`

	// Stacked indicates stacked rendering for bar/area charts.
	Stacked bool `json:"stacked"`
}
