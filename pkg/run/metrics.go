package run

import "time"

// Metrics accumulates token and timing counters for a run. Counters only ever
// grow; folding in a partial report never shrinks a value.
type Metrics struct {
	InputTokens  int64         `json:"input_tokens"`
	OutputTokens int64         `json:"output_tokens"`
	TotalTokens  int64         `json:"total_tokens"`
	Duration     time.Duration `json:"duration,omitempty"`
}

// Add folds another metrics report into this one.
func (m *Metrics) Add(other Metrics) {
	m.InputTokens += other.InputTokens
	m.OutputTokens += other.OutputTokens
	m.TotalTokens = m.InputTokens + m.OutputTokens
	m.Duration += other.Duration
}

// Merge takes the larger of each counter. Used when the same totals may be
// reported more than once, e.g. a terminal event restating the run totals.
func (m *Metrics) Merge(other Metrics) {
	m.InputTokens = max(m.InputTokens, other.InputTokens)
	m.OutputTokens = max(m.OutputTokens, other.OutputTokens)
	m.TotalTokens = max(m.TotalTokens, m.InputTokens+m.OutputTokens)
	m.Duration = max(m.Duration, other.Duration)
}
