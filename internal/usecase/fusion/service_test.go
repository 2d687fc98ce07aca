package fusion

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/kailas-cloud/hybridrank/internal/domain"
	"github.com/kailas-cloud/hybridrank/internal/domain/hybrid/collapsekey"
	"github.com/kailas-cloud/hybridrank/internal/domain/hybrid/score"
	"github.com/kailas-cloud/hybridrank/internal/domain/hybrid/scoretable"
	"github.com/kailas-cloud/hybridrank/internal/domain/hybrid/shard"
	"github.com/kailas-cloud/hybridrank/internal/domain/hybrid/technique"
	"github.com/kailas-cloud/hybridrank/internal/usecase/collapse"
)

func newService() *Service {
	return New(collapse.New(nil), nil, nil)
}

// twoShardRequest builds a small two-shard, two-sub-query request.
//
//	shard idx[0]: sub-query 0: doc 1 (1.0), doc 2 (0.5); sub-query 1: doc 1 (0.8)
//	shard idx[1]: sub-query 0: doc 1 (0.75), doc 3 (0.5); sub-query 1: doc 2 (0.4)
func twoShardRequest(t *testing.T, params Params) Request {
	t.Helper()
	table := newTable(t,
		scoretable.NewShardScores(shard.NewID("idx", 0), [][]scoretable.Entry{
			{ent(1, 1.0), ent(2, 0.5)},
			{ent(1, 0.8)},
		}),
		scoretable.NewShardScores(shard.NewID("idx", 1), [][]scoretable.Entry{
			{ent(1, 0.75), ent(3, 0.5)},
			{ent(2, 0.4)},
		}),
	)
	return Request{Table: table, Params: params}
}

func ref(index string, num, doc int) shard.DocRef {
	return shard.NewDocRef(doc, shard.NewID(index, num))
}

func TestFuse_MinMaxArithmetic(t *testing.T) {
	svc := newService()
	req := twoShardRequest(t, Params{
		Normalization: technique.MinMax,
		Combination:   technique.ArithmeticMean,
	})

	resp, err := svc.Fuse(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Global min-max per sub-query:
	//   sq0: min 0.5 max 1.0 -> doc idx[0]/1: 1.0, idx[0]/2: 0.0, idx[1]/1: 0.5
	//   sq1: min 0.4 max 0.8 -> idx[0]/1: 1.0, idx[1]/2: 0.0
	// Arithmetic mean over present:
	//   idx[0]/1 = 1.0, idx[1]/1 = 0.5, idx[0]/2 = 0.0, idx[1]/2 = 0.0
	wantOrder := []shard.DocRef{
		ref("idx", 0, 1),
		ref("idx", 1, 1),
		ref("idx", 0, 2),
		ref("idx", 1, 2),
	}
	wantScores := []float64{1.0, 0.5, 0.0, 0.0}

	if len(resp.Ranking) != len(wantOrder) {
		t.Fatalf("ranking length: got %d, want %d", len(resp.Ranking), len(wantOrder))
	}
	for i, r := range resp.Ranking {
		if r.Ref() != wantOrder[i] {
			t.Errorf("rank %d: got %s, want %s", i, r.Ref(), wantOrder[i])
		}
		if !approxEqual(r.Score(), wantScores[i]) {
			t.Errorf("rank %d: score %v, want %v", i, r.Score(), wantScores[i])
		}
	}

	// Per-shard containers hold each shard's own winners.
	if len(resp.Shards) != 2 {
		t.Fatalf("expected 2 shard containers, got %d", len(resp.Shards))
	}
	if n := len(resp.Shards[0].Results()); n != 2 {
		t.Errorf("shard 0: expected 2 results, got %d", n)
	}
	if n := len(resp.Shards[1].Results()); n != 2 {
		t.Errorf("shard 1: expected 2 results, got %d", n)
	}
}

func TestFuse_Deterministic(t *testing.T) {
	svc := newService()
	params := Params{Normalization: technique.MinMax, Combination: technique.ArithmeticMean}

	first, err := svc.Fuse(context.Background(), twoShardRequest(t, params))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i := 0; i < 10; i++ {
		again, err := svc.Fuse(context.Background(), twoShardRequest(t, params))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !reflect.DeepEqual(first.Ranking, again.Ranking) {
			t.Fatalf("run %d produced a different ranking", i)
		}
	}
}

func TestFuse_TopK(t *testing.T) {
	svc := newService()
	resp, err := svc.Fuse(context.Background(), twoShardRequest(t, Params{TopK: 2}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(resp.Ranking) != 2 {
		t.Errorf("expected 2 results, got %d", len(resp.Ranking))
	}
}

func TestFuse_InvalidTechnique(t *testing.T) {
	svc := newService()
	_, err := svc.Fuse(context.Background(), twoShardRequest(t, Params{Normalization: "softmax"}))
	if !errors.Is(err, domain.ErrInvalidTechnique) {
		t.Errorf("expected ErrInvalidTechnique, got %v", err)
	}
}

func TestFuse_ConfigErrorBeforeProcessing(t *testing.T) {
	// A weight count mismatch must fail the request up front.
	svc := newService()
	w := mustWeights(t, []float64{1.0})
	_, err := svc.Fuse(context.Background(), twoShardRequest(t, Params{Weights: w}))
	if !errors.Is(err, domain.ErrInvalidWeights) {
		t.Errorf("expected ErrInvalidWeights, got %v", err)
	}
}

func TestFuse_EmptyTable(t *testing.T) {
	svc := newService()
	table := newTable(t,
		scoretable.NewShardScores(shard.NewID("idx", 0), nil),
		scoretable.NewShardScores(shard.NewID("idx", 1), nil),
	)

	resp, err := svc.Fuse(context.Background(), Request{Table: table})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(resp.Ranking) != 0 {
		t.Errorf("expected empty ranking, got %d", len(resp.Ranking))
	}
	if len(resp.Shards) != 2 {
		t.Errorf("expected 2 empty shard containers, got %d", len(resp.Shards))
	}
}

func TestFuse_EmptyTable_StillValidatesConfig(t *testing.T) {
	svc := newService()
	table := newTable(t, scoretable.NewShardScores(shard.NewID("idx", 0), nil))

	_, err := svc.Fuse(context.Background(), Request{
		Table:  table,
		Params: Params{Combination: "median"},
	})
	if !errors.Is(err, domain.ErrInvalidTechnique) {
		t.Errorf("expected ErrInvalidTechnique, got %v", err)
	}
}

func TestFuse_EmptyTable_StillValidatesRankConstant(t *testing.T) {
	svc := newService()
	table := newTable(t, scoretable.NewShardScores(shard.NewID("idx", 0), nil))

	_, err := svc.Fuse(context.Background(), Request{
		Table:  table,
		Params: Params{Combination: technique.RRF, RankConstant: 999999},
	})
	if !errors.Is(err, domain.ErrInvalidRankConstant) {
		t.Errorf("expected ErrInvalidRankConstant, got %v", err)
	}
}

func TestFuse_TieBreakAcrossIndexNames(t *testing.T) {
	svc := newService()
	// Same shard ordinal in two different indexes, identical scores:
	// the degenerate min-max distribution maps both to 1.0, so only
	// the tie-break orders them.
	table := newTable(t,
		scoretable.NewShardScores(shard.NewID("beta", 0), [][]scoretable.Entry{
			{ent(1, 0.7)},
		}),
		scoretable.NewShardScores(shard.NewID("alpha", 0), [][]scoretable.Entry{
			{ent(1, 0.7)},
		}),
	)

	resp, err := svc.Fuse(context.Background(), Request{Table: table})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(resp.Ranking) != 2 {
		t.Fatalf("expected 2 results, got %d", len(resp.Ranking))
	}
	if got := resp.Ranking[0].Ref(); got != ref("alpha", 0, 1) {
		t.Errorf("expected alpha[0]/1 first, got %s", got)
	}
	if got := resp.Ranking[1].Ref(); got != ref("beta", 0, 1) {
		t.Errorf("expected beta[0]/1 second, got %s", got)
	}
}

func TestFuse_RRF(t *testing.T) {
	svc := newService()
	table := newTable(t,
		scoretable.NewShardScores(shard.NewID("idx", 0), [][]scoretable.Entry{
			{ent(1, 0.9), ent(2, 0.1)},
		}),
	)

	resp, err := svc.Fuse(context.Background(), Request{
		Table:  table,
		Params: Params{Combination: technique.RRF},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(resp.Ranking) != 2 {
		t.Fatalf("expected 2 results, got %d", len(resp.Ranking))
	}
	if got, want := resp.Ranking[0].Score(), 1.0/61.0; !approxEqual(got, want) {
		t.Errorf("rank 1: got %v, want %v", got, want)
	}
	if got, want := resp.Ranking[1].Score(), 1.0/62.0; !approxEqual(got, want) {
		t.Errorf("rank 2: got %v, want %v", got, want)
	}
}

func TestFuse_PerShardTruncationToMaxHits(t *testing.T) {
	// Both sub-query lists carry one hit each but for different docs:
	// the shard asked for one hit, so the fused list is cut to one.
	svc := newService()
	table := newTable(t,
		scoretable.NewShardScores(shard.NewID("idx", 0), [][]scoretable.Entry{
			{ent(1, 1.0)},
			{ent(2, 0.9)},
		}),
	)

	resp, err := svc.Fuse(context.Background(), Request{Table: table})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(resp.Ranking) != 1 {
		t.Fatalf("expected 1 result after shard truncation, got %d", len(resp.Ranking))
	}
}

func TestFuse_Collapse(t *testing.T) {
	svc := newService()
	req := twoShardRequest(t, Params{CollapseField: "brand"})
	req.CollapseValues = map[shard.DocRef]collapsekey.Key{
		ref("idx", 0, 1): collapsekey.FromString("acme"),
		ref("idx", 1, 1): collapsekey.FromString("acme"),
		ref("idx", 0, 2): collapsekey.FromString("globex"),
	}

	resp, err := svc.Fuse(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// idx[1]/1 loses to idx[0]/1 on "acme"; idx[1]/2 has no value and
	// survives as its own group.
	if resp.Collapsed != 1 {
		t.Errorf("expected 1 collapsed, got %d", resp.Collapsed)
	}
	if len(resp.Ranking) != 3 {
		t.Fatalf("expected 3 survivors, got %d", len(resp.Ranking))
	}
	for _, r := range resp.Ranking {
		if r.Ref() == ref("idx", 1, 1) {
			t.Error("collapsed document should not survive")
		}
	}

	// Collapse values ride along on the per-shard containers.
	for _, sr := range resp.Shards {
		if sr.CollapseValues() == nil {
			t.Fatalf("shard %s: expected collapse values", sr.Shard())
		}
		if len(sr.CollapseValues()) != len(sr.Results()) {
			t.Errorf("shard %s: collapse values misaligned", sr.Shard())
		}
	}
}

func TestFuse_CollapseKeyTypeMismatch(t *testing.T) {
	svc := newService()
	req := twoShardRequest(t, Params{CollapseField: "brand"})
	req.CollapseValues = map[shard.DocRef]collapsekey.Key{
		ref("idx", 0, 1): collapsekey.FromString("acme"),
		ref("idx", 1, 1): collapsekey.FromInt64(42),
	}

	_, err := svc.Fuse(context.Background(), req)
	if !errors.Is(err, domain.ErrCollapseKeyType) {
		t.Errorf("expected ErrCollapseKeyType, got %v", err)
	}
}

func TestFuse_Explain(t *testing.T) {
	svc := newService()
	req := twoShardRequest(t, Params{
		Explain:       true,
		SubQueryNames: []string{"lexical", "vector"},
	})

	resp, err := svc.Fuse(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(resp.Explain) != len(resp.Ranking) {
		t.Fatalf("expected %d traces, got %d", len(resp.Ranking), len(resp.Explain))
	}

	tr, ok := resp.Explain[ref("idx", 0, 1)]
	if !ok {
		t.Fatal("missing trace for idx[0]/1")
	}
	if !strings.Contains(tr.Normalization(), "min_max") {
		t.Errorf("normalization description %q should name the technique", tr.Normalization())
	}
	if !strings.Contains(tr.Normalization(), "lexical") {
		t.Errorf("normalization description %q should use the sub-query label", tr.Normalization())
	}
	if !strings.Contains(tr.Combination(), "arithmetic_mean") {
		t.Errorf("combination description %q should name the technique", tr.Combination())
	}
	// idx[0]/1 matched both sub-queries with raw scores 1.0 and 0.8.
	if !reflect.DeepEqual(tr.RawScores(), []float64{1.0, 0.8}) {
		t.Errorf("raw scores: got %v, want [1 0.8]", tr.RawScores())
	}
}

func TestFuse_ExplainOff(t *testing.T) {
	svc := newService()
	resp, err := svc.Fuse(context.Background(), twoShardRequest(t, Params{}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Explain != nil {
		t.Error("expected no explain payload")
	}
}

func TestFuse_AbsentSubScoresKeepPositions(t *testing.T) {
	svc := newService()
	resp, err := svc.Fuse(context.Background(), twoShardRequest(t, Params{}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for _, r := range resp.Ranking {
		if len(r.SubScores()) != 2 {
			t.Fatalf("doc %s: expected 2 sub-score slots, got %d", r.Ref(), len(r.SubScores()))
		}
	}
	// idx[1]/2 matched only sub-query 1.
	for _, r := range resp.Ranking {
		if r.Ref() != ref("idx", 1, 2) {
			continue
		}
		if r.SubScores()[0].Present() {
			t.Error("sub-query 0 slot should be absent")
		}
		if !r.SubScores()[1].Present() {
			t.Error("sub-query 1 slot should be present")
		}
	}
}

func TestFuse_WireAbsentScoresNeverCombine(t *testing.T) {
	// A sentinel entry in a candidate list is a placeholder, not a
	// score of -1.
	svc := newService()
	table := newTable(t,
		scoretable.NewShardScores(shard.NewID("idx", 0), [][]scoretable.Entry{
			{ent(1, 0.5), ent(2, score.WireAbsent)},
		}),
	)

	resp, err := svc.Fuse(context.Background(), Request{Table: table})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, r := range resp.Ranking {
		if r.Score() < 0 {
			t.Errorf("doc %s: negative fused score %v", r.Ref(), r.Score())
		}
	}
}
