package schema

import (
	"encoding/json"
	"fmt"
)

// Status values for DailyOutput.Status.
const (
	StatusNormal   = "Normal"
	StatusWarning  = "Warning"
	StatusCritical = "Critical"
)

// DailyOutput is the production headline of a report.
type DailyOutput struct {
	TotalProduction string `json:"total_production"`
	EfficiencyRate  string `json:"efficiency_rate"`
	Status          string `json:"status"`
}

// Anomaly is an operational finding reported by the model.
type Anomaly struct {
	Type        string `json:"type"`
	Description string `json:"description"`
	Severity    string `json:"severity"`
	Impact      string `json:"impact"`
}

// Metadata describes how a summary was produced.
type Metadata struct {
	SourceFile          string   `json:"source_file"`
	ProcessingTimestamp string   `json:"processing_timestamp"`
	ModelUsed           string   `json:"model_used"`
	TokensUsed          int64    `json:"tokens_used"`
	ChunkCount          int      `json:"chunk_count"`
	ModelCalls          int      `json:"model_calls"`
	PageCount           int      `json:"page_count"`
	Anomalies           []string `json:"anomalies"`
}

// Result is the canonical structured summary of one document.
type Result struct {
	ExecutiveSummary string           `json:"executive_summary"`
	KeyInsights      []string         `json:"key_insights"`
	DailyOutput      DailyOutput      `json:"daily_output"`
	Anomalies        []Anomaly        `json:"anomalies"`
	Events           []map[string]any `json:"events"`
	Recommendations  []string         `json:"recommendations"`
	Metrics          map[string]any   `json:"metrics"`
	DashboardAlerts  []map[string]any `json:"dashboard_alerts"`
	Metadata         Metadata         `json:"metadata"`
}

// Normalize replaces absent collections with empty ones so the result
// always serializes arrays and objects, never null.
func (r *Result) Normalize() {
	if r.KeyInsights == nil {
		r.KeyInsights = []string{}
	}
	if r.Anomalies == nil {
		r.Anomalies = []Anomaly{}
	}
	if r.Events == nil {
		r.Events = []map[string]any{}
	}
	if r.Recommendations == nil {
		r.Recommendations = []string{}
	}
	if r.Metrics == nil {
		r.Metrics = map[string]any{}
	}
	if r.DashboardAlerts == nil {
		r.DashboardAlerts = []map[string]any{}
	}
	if r.Metadata.Anomalies == nil {
		r.Metadata.Anomalies = []string{}
	}
}

// Validate normalizes r and checks it against the SummaryResult schema.
func (r *Result) Validate() error {
	r.Normalize()
	b, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("encode summary: %w", err)
	}
	s, err := Get(SummaryResult)
	if err != nil {
		return err
	}
	return s.Validate(b)
}

// Clone returns a deep copy of r via its JSON form.
func (r *Result) Clone() *Result {
	if r == nil {
		return nil
	}
	b, err := json.Marshal(r)
	if err != nil {
		cp := *r
		return &cp
	}
	var out Result
	if err := json.Unmarshal(b, &out); err != nil {
		cp := *r
		return &cp
	}
	return &out
}

// Partial is one map-phase extraction over a single chunk.
type Partial struct {
	ChunkIndex        int              `json:"chunk_index"`
	Pages             []int            `json:"pages"`
	Summary           string           `json:"summary"`
	KeyInsights       []string         `json:"key_insights,omitempty"`
	ProductionFigures []string         `json:"production_figures,omitempty"`
	Anomalies         []Anomaly        `json:"anomalies,omitempty"`
	Events            []map[string]any `json:"events,omitempty"`
	Recommendations   []string         `json:"recommendations,omitempty"`
	Metrics           map[string]any   `json:"metrics,omitempty"`
}
