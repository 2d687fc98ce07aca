package chi

import (
	"fmt"

	"github.com/kailas-cloud/hybridrank/internal/domain"
	"github.com/kailas-cloud/hybridrank/internal/domain/hybrid/collapsekey"
	"github.com/kailas-cloud/hybridrank/internal/domain/hybrid/fused"
	"github.com/kailas-cloud/hybridrank/internal/domain/hybrid/score"
	"github.com/kailas-cloud/hybridrank/internal/domain/hybrid/scoretable"
	"github.com/kailas-cloud/hybridrank/internal/domain/hybrid/shard"
	"github.com/kailas-cloud/hybridrank/internal/domain/hybrid/technique"
	"github.com/kailas-cloud/hybridrank/internal/domain/hybrid/weights"
	"github.com/kailas-cloud/hybridrank/internal/usecase/fusion"
)

// Wire format. A candidate score of -1 means the document did not
// match that sub-query; any other negative score is rejected.

type fuseRequest struct {
	Normalization string         `json:"normalization,omitempty"`
	Combination   string         `json:"combination,omitempty"`
	Weights       []float64      `json:"weights,omitempty"`
	RankConstant  int            `json:"rank_constant,omitempty"`
	TopK          int            `json:"top_k,omitempty"`
	CollapseField string         `json:"collapse_field,omitempty"`
	Explain       bool           `json:"explain,omitempty"`
	SubQueries    []string       `json:"sub_queries,omitempty"`
	Shards        []shardRequest `json:"shards"`
}

type shardRequest struct {
	Index          string          `json:"index"`
	Shard          int             `json:"shard"`
	SubQueryScores [][]candidate   `json:"sub_query_scores"`
	CollapseValues []collapseValue `json:"collapse_values,omitempty"`
}

type candidate struct {
	Doc   int     `json:"doc"`
	Score float64 `json:"score"`
}

type collapseValue struct {
	Doc      int     `json:"doc"`
	Value    *string `json:"value,omitempty"`
	ValueInt *int64  `json:"value_int,omitempty"`
}

type fuseResponse struct {
	Shards    []shardResponse `json:"shards"`
	Ranking   []hit           `json:"ranking"`
	Collapsed int             `json:"collapsed"`
	Explain   []explainEntry  `json:"explain,omitempty"`
}

type shardResponse struct {
	Index string `json:"index"`
	Shard int    `json:"shard"`
	Hits  []hit  `json:"hits"`
}

type hit struct {
	Index            string    `json:"index"`
	Shard            int       `json:"shard"`
	Doc              int       `json:"doc"`
	Score            float64   `json:"score"`
	SubScores        []float64 `json:"sub_scores"`
	CollapseValue    *string   `json:"collapse_value,omitempty"`
	CollapseValueInt *int64    `json:"collapse_value_int,omitempty"`
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type explainEntry struct {
	Index         string    `json:"index"`
	Shard         int       `json:"shard"`
	Doc           int       `json:"doc"`
	Normalization string    `json:"normalization"`
	Combination   string    `json:"combination"`
	RawScores     []float64 `json:"raw_scores"`
}

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

func fusionRequestFromWire(req fuseRequest) (fusion.Request, error) {
	shards := make([]scoretable.ShardScores, 0, len(req.Shards))
	collapseValues := make(map[shard.DocRef]collapsekey.Key)

	for _, sr := range req.Shards {
		id := shard.NewID(sr.Index, sr.Shard)

		subQueries := make([][]scoretable.Entry, len(sr.SubQueryScores))
		for j, sq := range sr.SubQueryScores {
			entries := make([]scoretable.Entry, 0, len(sq))
			for _, c := range sq {
				if c.Score < 0 && c.Score != score.WireAbsent {
					return fusion.Request{}, fmt.Errorf(
						"%w: shard %s sub-query %d doc %d: negative score %v",
						domain.ErrMalformedInput, id, j, c.Doc, c.Score,
					)
				}
				entries = append(entries, scoretable.NewEntry(c.Doc, score.FromWire(c.Score)))
			}
			subQueries[j] = entries
		}
		shards = append(shards, scoretable.NewShardScores(id, subQueries))

		for _, cv := range sr.CollapseValues {
			ref := shard.NewDocRef(cv.Doc, id)
			switch {
			case cv.Value != nil && cv.ValueInt != nil:
				return fusion.Request{}, fmt.Errorf(
					"%w: shard %s doc %d: collapse value must be value or value_int, not both",
					domain.ErrMalformedInput, id, cv.Doc,
				)
			case cv.Value != nil:
				collapseValues[ref] = collapsekey.FromString(*cv.Value)
			case cv.ValueInt != nil:
				collapseValues[ref] = collapsekey.FromInt64(*cv.ValueInt)
			}
		}
	}

	table, err := scoretable.New(shards)
	if err != nil {
		return fusion.Request{}, err
	}

	var w weights.Vector
	if len(req.Weights) > 0 {
		w, err = weights.New(req.Weights)
		if err != nil {
			return fusion.Request{}, err
		}
	}

	return fusion.Request{
		Table:          table,
		CollapseValues: collapseValues,
		Params: fusion.Params{
			Normalization: technique.Normalization(req.Normalization),
			Combination:   technique.Combination(req.Combination),
			Weights:       w,
			RankConstant:  req.RankConstant,
			TopK:          req.TopK,
			CollapseField: req.CollapseField,
			Explain:       req.Explain,
			SubQueryNames: req.SubQueries,
		},
	}, nil
}

func fuseResponseToWire(resp fusion.Response) fuseResponse {
	out := fuseResponse{
		Shards:    make([]shardResponse, 0, len(resp.Shards)),
		Ranking:   make([]hit, 0, len(resp.Ranking)),
		Collapsed: resp.Collapsed,
	}

	for _, sr := range resp.Shards {
		shardOut := shardResponse{
			Index: sr.Shard().Index(),
			Shard: sr.Shard().Num(),
			Hits:  make([]hit, 0, len(sr.Results())),
		}
		keys := sr.CollapseValues()
		for i, r := range sr.Results() {
			h := hitToWire(r)
			if keys != nil {
				h = attachCollapseValue(h, keys[i])
			}
			shardOut.Hits = append(shardOut.Hits, h)
		}
		out.Shards = append(out.Shards, shardOut)
	}

	for _, r := range resp.Ranking {
		out.Ranking = append(out.Ranking, hitToWire(r))
	}

	// Traces ride in ranking order so equal requests produce
	// byte-identical responses.
	for _, r := range resp.Ranking {
		tr, ok := resp.Explain[r.Ref()]
		if !ok {
			continue
		}
		out.Explain = append(out.Explain, explainEntry{
			Index:         r.Ref().Shard().Index(),
			Shard:         r.Ref().Shard().Num(),
			Doc:           r.Ref().Doc(),
			Normalization: tr.Normalization(),
			Combination:   tr.Combination(),
			RawScores:     tr.RawScores(),
		})
	}
	return out
}

func hitToWire(r fused.Result) hit {
	subs := make([]float64, len(r.SubScores()))
	for i, s := range r.SubScores() {
		subs[i] = s.Wire()
	}
	return hit{
		Index:     r.Ref().Shard().Index(),
		Shard:     r.Ref().Shard().Num(),
		Doc:       r.Ref().Doc(),
		Score:     r.Score(),
		SubScores: subs,
	}
}

func attachCollapseValue(h hit, k collapsekey.Key) hit {
	switch k.Kind() {
	case collapsekey.Bytes:
		v := k.Str()
		h.CollapseValue = &v
	case collapsekey.Int64:
		v := k.Int64()
		h.CollapseValueInt = &v
	}
	return h
}
