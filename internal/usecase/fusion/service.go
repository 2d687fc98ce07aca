// Package fusion implements the hybrid-result fusion pipeline:
// cross-shard score normalization, score combination, global ranking,
// field-based collapse, and the explain overlay.
package fusion

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kailas-cloud/hybridrank/internal/domain"
	"github.com/kailas-cloud/hybridrank/internal/domain/hybrid/collapsekey"
	"github.com/kailas-cloud/hybridrank/internal/domain/hybrid/explain"
	"github.com/kailas-cloud/hybridrank/internal/domain/hybrid/fused"
	"github.com/kailas-cloud/hybridrank/internal/domain/hybrid/score"
	"github.com/kailas-cloud/hybridrank/internal/domain/hybrid/scoretable"
	"github.com/kailas-cloud/hybridrank/internal/domain/hybrid/shard"
	"github.com/kailas-cloud/hybridrank/internal/domain/hybrid/technique"
	"github.com/kailas-cloud/hybridrank/internal/domain/hybrid/weights"
	"github.com/kailas-cloud/hybridrank/internal/metrics"
	"github.com/kailas-cloud/hybridrank/internal/usecase/collapse"
)

// Params is the request-scoped fusion configuration, already parsed by
// the transport collaborator. This service validates it structurally
// (names, counts, ranges) before touching any document.
type Params struct {
	Normalization technique.Normalization
	Combination   technique.Combination
	Weights       weights.Vector // zero value selects uniform weights
	RankConstant  int            // 0 selects the default
	TopK          int            // 0 disables global truncation
	CollapseField string         // empty disables collapse
	Explain       bool
	SubQueryNames []string // optional labels for explain output
}

func (p Params) withDefaults() Params {
	if p.Normalization == "" {
		p.Normalization = technique.MinMax
	}
	if p.Combination == "" {
		p.Combination = technique.ArithmeticMean
	}
	return p
}

// Request carries one fusion run's materialized inputs.
type Request struct {
	Table scoretable.Table
	// CollapseValues maps documents to their typed collapse-field
	// value; documents missing from the map have no value and stay
	// uncollapsed. Ignored unless Params.CollapseField is set.
	CollapseValues map[shard.DocRef]collapsekey.Key
	Params         Params
}

// Response is the fused, collapsed, optionally explained outcome.
type Response struct {
	// Shards are the per-shard containers for the fetch stage, one per
	// input shard in request order, winners in global ranking order.
	Shards []fused.ShardResults
	// Ranking is the global post-collapse order across all shards.
	Ranking []fused.Result
	// Collapsed counts the documents removed by collapse.
	Collapsed int
	// Explain holds per-document traces; nil unless requested.
	Explain map[shard.DocRef]explain.Trace
}

// Service runs the fusion pipeline. Stateless between requests: every
// structure it builds lives for one Fuse call.
type Service struct {
	engine  *collapse.Engine
	metrics *metrics.Fusion
	logger  *zap.Logger
}

// New creates a fusion service. metrics may be nil (tests).
func New(engine *collapse.Engine, m *metrics.Fusion, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{engine: engine, metrics: m, logger: logger}
}

// Fuse executes the pipeline over one request's shard results. For a
// fixed input the output is identical across invocations: traversal,
// sorting, and tie-breaks are all deterministic.
func (s *Service) Fuse(ctx context.Context, req Request) (Response, error) {
	start := time.Now()
	p := req.Params.withDefaults()

	normalizer, err := NewNormalizer(p.Normalization)
	if err != nil {
		return Response{}, err
	}

	table := req.Table
	numSub := table.NumSubQueries()
	if numSub == 0 {
		// Nothing matched anywhere. The combination config is still
		// validated so bad requests fail loudly even on empty indexes;
		// with no sub-query lists the weight count can only be checked
		// against itself.
		if _, err := NewCombiner(p.Combination, p.Weights, p.RankConstant, p.Weights.Len()); err != nil {
			return Response{}, err
		}
		return Response{Shards: emptyContainers(table)}, nil
	}

	combiner, err := NewCombiner(p.Combination, p.Weights, p.RankConstant, numSub)
	if err != nil {
		return Response{}, err
	}

	// Rank-based combination consumes list positions, which no
	// monotone rescaling can change, so normalization is bypassed and
	// the rank transform plays its role.
	var normTable scoretable.Table
	normDesc := normalizer.Describe()
	if combiner.IsRankBased() {
		normTable = combiner.RankTransform(table)
		normDesc = combiner.Describe()
	} else {
		normTable = normalizer.Normalize(table)
	}

	perShard, err := s.combineShards(ctx, normTable, combiner)
	if err != nil {
		return Response{}, err
	}

	ranking := globalRanking(perShard, p.TopK)

	collapsed := 0
	var collapseKeys map[shard.DocRef]collapsekey.Key
	if p.CollapseField != "" {
		outcome, err := s.engine.Collapse(p.CollapseField, ranking, func(ref shard.DocRef) collapsekey.Key {
			return req.CollapseValues[ref]
		}, nil)
		if err != nil {
			return Response{}, err
		}
		ranking = outcome.Survivors
		collapseKeys = outcome.Keys
		collapsed = outcome.Collapsed
		if s.metrics != nil {
			s.metrics.Collapses.Inc()
		}
	}

	shards, err := redistribute(table, ranking, collapseKeys, p.CollapseField != "")
	if err != nil {
		return Response{}, err
	}

	resp := Response{Shards: shards, Ranking: ranking, Collapsed: collapsed}
	if p.Explain {
		explainer := NewExplainer(normDesc, combiner.Describe(), p.SubQueryNames, numSub)
		resp.Explain = buildTraces(explainer, table, ranking)
	}

	if s.metrics != nil {
		s.metrics.Executions.WithLabelValues(string(p.Normalization), string(p.Combination)).Inc()
		s.metrics.Duration.WithLabelValues(string(p.Combination)).Observe(time.Since(start).Seconds())
		s.metrics.Candidates.Observe(float64(candidateCount(table)))
	}
	s.logger.Debug("Fusion complete",
		zap.String("normalization", string(p.Normalization)),
		zap.String("combination", string(p.Combination)),
		zap.Int("sub_queries", numSub),
		zap.Int("results", len(ranking)),
		zap.Int("collapsed", collapsed),
		zap.Duration("took", time.Since(start)),
	)
	return resp, nil
}

// combineShards merges each shard's per-sub-query scores into fused
// per-shard lists. Shards are independent, so they combine in parallel;
// results land in a preallocated slice by shard index, keeping the
// merge deterministic.
func (s *Service) combineShards(
	ctx context.Context, normTable scoretable.Table, combiner *Combiner,
) ([][]fused.Result, error) {
	shards := normTable.Shards()
	perShard := make([][]fused.Result, len(shards))

	g, _ := errgroup.WithContext(ctx)
	for i, sh := range shards {
		g.Go(func() error {
			perShard[i] = combineShard(sh, combiner)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("combine shards: %w", err)
	}
	return perShard, nil
}

// combineShard fuses one shard: gather each document's per-sub-query
// score vector, combine, sort by fused score, truncate to the shard's
// max sub-query hit count.
func combineShard(sh scoretable.ShardScores, combiner *Combiner) []fused.Result {
	if sh.IsEmpty() {
		return nil
	}
	numSub := sh.NumSubQueries()

	subScores := make(map[int][]score.Score)
	for j, sq := range sh.SubQueries() {
		for _, e := range sq {
			ss, ok := subScores[e.Doc()]
			if !ok {
				ss = make([]score.Score, numSub)
				subScores[e.Doc()] = ss
			}
			ss[j] = e.Score()
		}
	}

	results := make([]fused.Result, 0, len(subScores))
	for doc, ss := range subScores {
		results = append(results, fused.NewResult(sh.Ref(doc), combiner.Combine(ss), ss))
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score() != results[j].Score() {
			return results[i].Score() > results[j].Score()
		}
		return results[i].Ref().Doc() < results[j].Ref().Doc()
	})

	if maxHits := sh.MaxHits(); len(results) > maxHits {
		results = results[:maxHits]
	}
	return results
}

// globalRanking merges the per-shard lists into one descending order
// with deterministic tie-breaks (score, then shard, then doc id) and
// truncates to topK when set.
func globalRanking(perShard [][]fused.Result, topK int) []fused.Result {
	total := 0
	for _, rs := range perShard {
		total += len(rs)
	}
	ranking := make([]fused.Result, 0, total)
	for _, rs := range perShard {
		ranking = append(ranking, rs...)
	}
	sort.Slice(ranking, func(i, j int) bool {
		a, b := ranking[i], ranking[j]
		if a.Score() != b.Score() {
			return a.Score() > b.Score()
		}
		if a.Ref().Shard().Index() != b.Ref().Shard().Index() {
			return a.Ref().Shard().Index() < b.Ref().Shard().Index()
		}
		if a.Ref().Shard().Num() != b.Ref().Shard().Num() {
			return a.Ref().Shard().Num() < b.Ref().Shard().Num()
		}
		return a.Ref().Doc() < b.Ref().Doc()
	})
	if topK > 0 && len(ranking) > topK {
		ranking = ranking[:topK]
	}
	return ranking
}

// redistribute partitions the global ranking back into per-shard
// containers, because the fetch stage consumes documents grouped per
// shard. Every input shard gets a container, empty or not; a survivor
// pointing at a shard absent from the input is an upstream invariant
// violation.
func redistribute(
	table scoretable.Table,
	ranking []fused.Result,
	collapseKeys map[shard.DocRef]collapsekey.Key,
	collapsed bool,
) ([]fused.ShardResults, error) {
	index := make(map[shard.ID]int, len(table.Shards()))
	for i, sh := range table.Shards() {
		index[sh.Shard()] = i
	}

	buckets := make([][]fused.Result, len(table.Shards()))
	keyBuckets := make([][]collapsekey.Key, len(table.Shards()))
	for _, r := range ranking {
		i, ok := index[r.Ref().Shard()]
		if !ok {
			return nil, fmt.Errorf(
				"%w: fused result %s references unknown shard", domain.ErrMalformedInput, r.Ref(),
			)
		}
		buckets[i] = append(buckets[i], r)
		if collapsed {
			keyBuckets[i] = append(keyBuckets[i], collapseKeys[r.Ref()])
		}
	}

	out := make([]fused.ShardResults, len(table.Shards()))
	for i, sh := range table.Shards() {
		sr := fused.NewShardResults(sh.Shard(), buckets[i])
		if collapsed {
			sr = sr.WithCollapseValues(keyBuckets[i])
		}
		out[i] = sr
	}
	return out, nil
}

func emptyContainers(table scoretable.Table) []fused.ShardResults {
	out := make([]fused.ShardResults, len(table.Shards()))
	for i, sh := range table.Shards() {
		out[i] = fused.NewShardResults(sh.Shard(), nil)
	}
	return out
}

func candidateCount(table scoretable.Table) int {
	n := 0
	for _, sh := range table.Shards() {
		for _, sq := range sh.SubQueries() {
			n += len(sq)
		}
	}
	return n
}

// buildTraces assembles the explain overlay for the final ranking,
// using raw scores from the pre-normalization table.
func buildTraces(
	explainer *Explainer, raw scoretable.Table, ranking []fused.Result,
) map[shard.DocRef]explain.Trace {
	numSub := raw.NumSubQueries()
	rawScores := make(map[shard.DocRef][]score.Score)
	for _, sh := range raw.Shards() {
		for j, sq := range sh.SubQueries() {
			for _, e := range sq {
				ref := sh.Ref(e.Doc())
				ss, ok := rawScores[ref]
				if !ok {
					ss = make([]score.Score, numSub)
					rawScores[ref] = ss
				}
				ss[j] = e.Score()
			}
		}
	}

	traces := make(map[shard.DocRef]explain.Trace, len(ranking))
	for _, r := range ranking {
		traces[r.Ref()] = explainer.Trace(r, rawScores[r.Ref()])
	}
	return traces
}
