package search

import "github.com/poiesic/lectern/core"

// RejectReason explains why a candidate was dropped.
type RejectReason string

const (
	ReasonTooShort        RejectReason = "too short"
	ReasonBoilerplate     RejectReason = "boilerplate"
	ReasonAmbiguousEntity RejectReason = "ambiguous entity"
	ReasonShortAfterTrim  RejectReason = "too short after cleanup"
	ReasonOverLimit       RejectReason = "over limit"
)

// Monitor provides hooks to observe a query.
// Implement this interface to track intermediate steps and results during search.
type Monitor interface {
	Start(query string)
	AfterSearch(candidates []*core.RetrievalResult)
	Rejected(result *core.RetrievalResult, reason RejectReason)
	Finish(results []*core.RetrievalResult)
}

// noopMonitor is a no-op implementation of Monitor
type noopMonitor struct{}

var _ Monitor = (*noopMonitor)(nil)

func (n *noopMonitor) Start(_ string)                                  {}
func (n *noopMonitor) AfterSearch(_ []*core.RetrievalResult)           {}
func (n *noopMonitor) Rejected(_ *core.RetrievalResult, _ RejectReason) {}
func (n *noopMonitor) Finish(_ []*core.RetrievalResult)                {}
