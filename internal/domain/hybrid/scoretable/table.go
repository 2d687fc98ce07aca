// Package scoretable holds per-shard, per-sub-query candidate lists for
// one search request. It is pure data: normalization and combination
// live in the fusion use case.
package scoretable

import (
	"fmt"

	"github.com/kailas-cloud/hybridrank/internal/domain"
	"github.com/kailas-cloud/hybridrank/internal/domain/hybrid/score"
	"github.com/kailas-cloud/hybridrank/internal/domain/hybrid/shard"
)

// Entry is one candidate in a sub-query's ranked list.
type Entry struct {
	doc int
	sc  score.Score
}

// NewEntry creates a candidate entry.
func NewEntry(doc int, sc score.Score) Entry {
	return Entry{doc: doc, sc: sc}
}

// Doc returns the shard-local document id.
func (e Entry) Doc() int { return e.doc }

// Score returns the entry score.
func (e Entry) Score() score.Score { return e.sc }

// WithScore returns a copy of the entry with a replaced score.
func (e Entry) WithScore(sc score.Score) Entry {
	return Entry{doc: e.doc, sc: sc}
}

// ShardScores holds one shard's ranked candidate lists, one list per
// sub-query, each sorted by the sub-query's own scoring.
type ShardScores struct {
	shard      shard.ID
	subQueries [][]Entry
}

// NewShardScores creates a shard's score set.
func NewShardScores(id shard.ID, subQueries [][]Entry) ShardScores {
	return ShardScores{shard: id, subQueries: subQueries}
}

// Shard returns the shard identifier.
func (s ShardScores) Shard() shard.ID { return s.shard }

// SubQueries returns the ranked candidate lists, one per sub-query.
func (s ShardScores) SubQueries() [][]Entry { return s.subQueries }

// NumSubQueries returns the number of sub-query lists.
func (s ShardScores) NumSubQueries() int { return len(s.subQueries) }

// IsEmpty reports whether every sub-query list is empty.
func (s ShardScores) IsEmpty() bool {
	for _, sq := range s.subQueries {
		if len(sq) > 0 {
			return false
		}
	}
	return true
}

// MaxHits returns the length of the longest sub-query list. The fused
// per-shard container is truncated to this size.
func (s ShardScores) MaxHits() int {
	maxHits := 0
	for _, sq := range s.subQueries {
		if len(sq) > maxHits {
			maxHits = len(sq)
		}
	}
	return maxHits
}

// Ref builds the DocRef for a local doc id within this shard.
func (s ShardScores) Ref(doc int) shard.DocRef {
	return shard.NewDocRef(doc, s.shard)
}

// Table is the full cross-shard score table for one request.
type Table struct {
	shards []ShardScores
}

// New validates and creates a Table. Every shard that declares
// sub-query lists must declare the same number of them; a disagreement
// means the upstream query execution produced a malformed result shape.
func New(shards []ShardScores) (Table, error) {
	numSub := 0
	for _, s := range shards {
		if s.NumSubQueries() == 0 {
			continue
		}
		if numSub == 0 {
			numSub = s.NumSubQueries()
			continue
		}
		if s.NumSubQueries() != numSub {
			return Table{}, fmt.Errorf(
				"%w: shard %s has %d sub-query lists, want %d",
				domain.ErrMalformedInput, s.Shard(), s.NumSubQueries(), numSub,
			)
		}
	}
	return Table{shards: shards}, nil
}

// Shards returns the per-shard score sets in request order.
func (t Table) Shards() []ShardScores { return t.shards }

// NumSubQueries returns the sub-query count declared by the first shard
// that has one, or 0 when the whole table is empty.
func (t Table) NumSubQueries() int {
	for _, s := range t.shards {
		if n := s.NumSubQueries(); n > 0 {
			return n
		}
	}
	return 0
}

// IsEmpty reports whether no shard produced any candidate.
func (t Table) IsEmpty() bool {
	for _, s := range t.shards {
		if !s.IsEmpty() {
			return false
		}
	}
	return true
}

// Map returns a new Table with every entry's score replaced by
// fn(subQuery, entry). Shard and list order are preserved.
func (t Table) Map(fn func(subQuery int, e Entry) score.Score) Table {
	shards := make([]ShardScores, len(t.shards))
	for i, s := range t.shards {
		subQueries := make([][]Entry, len(s.subQueries))
		for j, sq := range s.subQueries {
			entries := make([]Entry, len(sq))
			for k, e := range sq {
				entries[k] = e.WithScore(fn(j, e))
			}
			subQueries[j] = entries
		}
		shards[i] = ShardScores{shard: s.shard, subQueries: subQueries}
	}
	return Table{shards: shards}
}
