// Package flow turns per-item funnel transitions into a deduplicated,
// deterministically ordered edge list for the flow diagram.
package flow

import (
	"sort"

	"github.com/ykarpov/inboxflow/app/taxonomy"
)

// Edge is an aggregated count of observed transitions between two stages.
// Derived state only: recomputed from repository state on every request.
type Edge struct {
	From  taxonomy.Stage `json:"from"`
	To    taxonomy.Stage `json:"to"`
	Count int            `json:"count"`
}

// Entry is one job-bucket item's classification view. Result is nil for an
// item that has not been classified yet.
type Entry struct {
	ItemID string
	Result *taxonomy.ClassificationResult
}

// Aggregate resolves each entry to a (from, to) transition, merges duplicate
// pairs, and returns edges sorted lexicographically by (from, to). Pure and
// deterministic: same entries, same output.
func Aggregate(entries []Entry) []Edge {
	counts := make(map[[2]taxonomy.Stage]int)

	for _, e := range entries {
		from, to := resolve(e.Result)
		counts[[2]taxonomy.Stage{from, to}]++
	}

	edges := make([]Edge, 0, len(counts))
	for pair, count := range counts {
		edges = append(edges, Edge{From: pair[0], To: pair[1], Count: count})
	}

	sort.Slice(edges, func(i, j int) bool {
		if edges[i].From != edges[j].From {
			return edges[i].From < edges[j].From
		}
		return edges[i].To < edges[j].To
	})

	return edges
}

// resolve picks the effective transition for one item. The user override
// wins, then the classifier's transition target, then the stored stage; an
// item with none of these has no observed transition and lands on the
// synthetic sink. A target equal to the default starting stage means no real
// progression yet, so it is redirected to the sink as well to avoid a
// degenerate self-loop.
func resolve(result *taxonomy.ClassificationResult) (from, to taxonomy.Stage) {
	from = taxonomy.StageApplicationsSent
	to = taxonomy.StageApplicationsSent

	if result != nil {
		switch {
		case result.UserOverrideStage != nil && result.UserOverrideStage.IsValid():
			to = *result.UserOverrideStage
		case result.TransitionTo != nil && result.TransitionTo.IsValid():
			to = *result.TransitionTo
		case result.JobStage != nil && result.JobStage.IsValid():
			to = *result.JobStage
		}

		if result.TransitionFrom != nil && result.TransitionFrom.IsValid() {
			from = *result.TransitionFrom
		}
	}

	if to == taxonomy.StageApplicationsSent {
		to = taxonomy.StageNoResponse
	}

	return from, to
}
