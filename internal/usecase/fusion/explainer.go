package fusion

import (
	"fmt"
	"strings"

	"github.com/kailas-cloud/hybridrank/internal/domain/hybrid/explain"
	"github.com/kailas-cloud/hybridrank/internal/domain/hybrid/fused"
	"github.com/kailas-cloud/hybridrank/internal/domain/hybrid/score"
)

// Explainer renders per-document fusion traces. It is a pure overlay:
// it reads the already-computed raw and fused scores and never touches
// ranking.
type Explainer struct {
	normDesc string
	combDesc string
	names    []string
}

// NewExplainer builds an explainer with one label per sub-query.
// Missing labels default to the sub-query position.
func NewExplainer(normDesc, combDesc string, names []string, numSubQueries int) *Explainer {
	labels := make([]string, numSubQueries)
	for i := range labels {
		if i < len(names) && names[i] != "" {
			labels[i] = names[i]
		} else {
			labels[i] = fmt.Sprintf("query_%d", i)
		}
	}
	return &Explainer{normDesc: normDesc, combDesc: combDesc, names: labels}
}

// Trace explains one fused result. raw holds the document's
// pre-normalization scores in sub-query order; sub-queries where the
// document did not match are skipped.
func (e *Explainer) Trace(res fused.Result, raw []score.Score) explain.Trace {
	var (
		parts    []string
		rawVals  []float64
		fusedSub = res.SubScores()
	)
	for i, r := range raw {
		if !r.Present() {
			continue
		}
		rawVals = append(rawVals, r.Value())
		normalized := "absent"
		if i < len(fusedSub) && fusedSub[i].Present() {
			normalized = fmt.Sprintf("%.6g", fusedSub[i].Value())
		}
		parts = append(parts, fmt.Sprintf("%s: %.6g -> %s", e.names[i], r.Value(), normalized))
	}

	normalization := e.normDesc
	if len(parts) > 0 {
		normalization = fmt.Sprintf("%s [%s]", e.normDesc, strings.Join(parts, ", "))
	}
	return explain.New(normalization, e.combDesc, rawVals)
}
