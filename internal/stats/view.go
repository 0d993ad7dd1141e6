// Package stats maintains one incremental running summary per
// client-selected view (a node-name subset, or the "Aggregate" pseudo-view
// meaning every node) and renders it to a snapshot payload on demand.
package stats

import (
	"sort"
	"strings"
)

// AggregateView is the pseudo-view name meaning "every node".
const AggregateView = "Aggregate"

// View is a client's node-name selection, normalized to a canonical key so
// two requests for the same set of nodes share one ViewState.
type View struct {
	Nodes []string // empty/nil means Aggregate
}

// NewView builds a View from the raw node-name list a client sent in
// set_view. A list containing exactly "Aggregate" (or an empty list) means
// every node.
func NewView(names []string) View {
	if len(names) == 0 {
		return View{}
	}
	if len(names) == 1 && names[0] == AggregateView {
		return View{}
	}
	cp := append([]string(nil), names...)
	sort.Strings(cp)
	return View{Nodes: cp}
}

// Key returns a canonical string identifying this view, suitable as a map
// key for both the stats engine and the broadcaster's payload cache.
func (v View) Key() string {
	if len(v.Nodes) == 0 {
		return AggregateView
	}
	return strings.Join(v.Nodes, ",")
}

// IsAggregate reports whether this view spans every node.
func (v View) IsAggregate() bool {
	return len(v.Nodes) == 0
}

// Contains reports whether nodeName is selected by this view.
func (v View) Contains(nodeName string) bool {
	if v.IsAggregate() {
		return true
	}
	for _, n := range v.Nodes {
		if n == nodeName {
			return true
		}
	}
	return false
}
