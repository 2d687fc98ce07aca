// Package fused holds the outputs of score combination: per-document
// fused results and the per-shard containers the fetch stage consumes.
package fused

import (
	"github.com/kailas-cloud/hybridrank/internal/domain/hybrid/collapsekey"
	"github.com/kailas-cloud/hybridrank/internal/domain/hybrid/score"
	"github.com/kailas-cloud/hybridrank/internal/domain/hybrid/shard"
)

// Result is one document with its combined relevance score.
// subScores always has one entry per sub-query; absent entries stay
// absent rather than being dropped, so positions line up across docs.
type Result struct {
	ref       shard.DocRef
	score     float64
	subScores []score.Score
}

// NewResult creates a fused result.
func NewResult(ref shard.DocRef, fusedScore float64, subScores []score.Score) Result {
	return Result{ref: ref, score: fusedScore, subScores: subScores}
}

// Ref returns the document reference.
func (r Result) Ref() shard.DocRef { return r.ref }

// Score returns the fused relevance score.
func (r Result) Score() float64 { return r.score }

// SubScores returns the per-sub-query normalized scores, one per
// sub-query, absent entries included.
func (r Result) SubScores() []score.Score { return r.subScores }

// ShardResults is the per-shard top-document container handed to the
// fetch stage: fused winners in ranking order, with collapse values
// re-attached when collapse ran.
type ShardResults struct {
	shard          shard.ID
	results        []Result
	collapseValues []collapsekey.Key
}

// NewShardResults creates a per-shard container without collapse
// metadata.
func NewShardResults(id shard.ID, results []Result) ShardResults {
	return ShardResults{shard: id, results: results}
}

// WithCollapseValues attaches collapse values aligned with the results.
func (s ShardResults) WithCollapseValues(keys []collapsekey.Key) ShardResults {
	s.collapseValues = keys
	return s
}

// Shard returns the shard identifier.
func (s ShardResults) Shard() shard.ID { return s.shard }

// Results returns the fused winners in ranking order.
func (s ShardResults) Results() []Result { return s.results }

// CollapseValues returns the per-result collapse keys, or nil when
// collapse did not run.
func (s ShardResults) CollapseValues() []collapsekey.Key { return s.collapseValues }
