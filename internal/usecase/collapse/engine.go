// Package collapse deduplicates fused results by a configured field:
// one surviving document per distinct collapse value.
package collapse

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/kailas-cloud/hybridrank/internal/domain"
	"github.com/kailas-cloud/hybridrank/internal/domain/hybrid/collapsekey"
	"github.com/kailas-cloud/hybridrank/internal/domain/hybrid/fused"
	"github.com/kailas-cloud/hybridrank/internal/domain/hybrid/shard"
)

// Comparator reports whether a ranks strictly ahead of b. Ties are
// broken by input order: a later candidate replaces the current winner
// only when strictly better, so with input in original rank order the
// earliest candidate keeps ties.
type Comparator func(a, b fused.Result) bool

// ByFusedScore is the default sort criteria: fused score descending.
func ByFusedScore(a, b fused.Result) bool { return a.Score() > b.Score() }

// Outcome is the result of a collapse run.
type Outcome struct {
	// Survivors keeps the input order of the winning results.
	Survivors []fused.Result
	// Keys maps each survivor to its collapse value for metadata
	// re-attachment; absent for documents without a collapse value.
	Keys map[shard.DocRef]collapsekey.Key
	// Collapsed is the number of considered results minus survivors.
	Collapsed int
}

// Engine runs field-based collapse over a fused ranking.
type Engine struct {
	logger *zap.Logger
}

// New creates a collapse engine.
func New(logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{logger: logger}
}

// Collapse reduces the ranking to one representative per distinct
// collapse value of field. keyOf supplies each document's typed value;
// documents with an absent value are their own singleton group and are
// never merged. A value whose type disagrees with the field's
// established type fails the whole operation: silently dropping the
// document would produce an incorrect result set with no signal.
func (e *Engine) Collapse(
	field string,
	ranking []fused.Result,
	keyOf func(shard.DocRef) collapsekey.Key,
	better Comparator,
) (Outcome, error) {
	if len(ranking) == 0 {
		return Outcome{}, nil
	}
	if better == nil {
		better = ByFusedScore
	}

	keys := make([]collapsekey.Key, len(ranking))
	established := collapsekey.None
	for i, r := range ranking {
		k := keyOf(r.Ref())
		keys[i] = k
		if k.IsAbsent() {
			continue
		}
		if established == collapsekey.None {
			established = k.Kind()
			continue
		}
		if k.Kind() != established {
			return Outcome{}, fmt.Errorf(
				"%w: field %q has %s value for doc %s but established type is %s",
				domain.ErrCollapseKeyType, field, k.Kind(), r.Ref(), established,
			)
		}
	}

	var winners map[int]struct{}
	switch established {
	case collapsekey.Bytes:
		winners = bestPerKey(ranking, keys, collapsekey.Key.Str, better)
	case collapsekey.Int64:
		winners = bestPerKey(ranking, keys, collapsekey.Key.Int64, better)
	default:
		// No collapse values anywhere: everything survives untouched.
		winners = make(map[int]struct{}, len(ranking))
		for i := range ranking {
			winners[i] = struct{}{}
		}
	}

	out := Outcome{
		Survivors: make([]fused.Result, 0, len(winners)),
		Keys:      make(map[shard.DocRef]collapsekey.Key, len(winners)),
	}
	for i, r := range ranking {
		if _, ok := winners[i]; !ok {
			continue
		}
		out.Survivors = append(out.Survivors, r)
		if !keys[i].IsAbsent() {
			out.Keys[r.Ref()] = keys[i]
		}
	}
	out.Collapsed = len(ranking) - len(out.Survivors)

	e.logger.Debug("Collapse complete",
		zap.String("field", field),
		zap.String("key_type", established.String()),
		zap.Int("considered", len(ranking)),
		zap.Int("survivors", len(out.Survivors)),
		zap.Int("collapsed", out.Collapsed),
	)
	return out, nil
}

// bestPerKey is the one collapse algorithm, parameterized over the key
// payload type. Bytes-keyed and int64-keyed collapse differ only in
// what extract returns. Documents with an absent key bypass grouping
// and always survive.
func bestPerKey[K comparable](
	ranking []fused.Result,
	keys []collapsekey.Key,
	extract func(collapsekey.Key) K,
	better Comparator,
) map[int]struct{} {
	winners := make(map[int]struct{})
	best := make(map[K]int)
	for i := range ranking {
		if keys[i].IsAbsent() {
			winners[i] = struct{}{}
			continue
		}
		k := extract(keys[i])
		w, seen := best[k]
		if !seen {
			best[k] = i
			continue
		}
		if better(ranking[i], ranking[w]) {
			best[k] = i
		}
	}
	for _, i := range best {
		winners[i] = struct{}{}
	}
	return winners
}
