package fusecache

import (
	"encoding/json"
	"fmt"

	"github.com/kailas-cloud/hybridrank/internal/domain/hybrid/collapsekey"
	"github.com/kailas-cloud/hybridrank/internal/domain/hybrid/explain"
	"github.com/kailas-cloud/hybridrank/internal/domain/hybrid/fused"
	"github.com/kailas-cloud/hybridrank/internal/domain/hybrid/score"
	"github.com/kailas-cloud/hybridrank/internal/domain/hybrid/shard"
	"github.com/kailas-cloud/hybridrank/internal/usecase/fusion"
)

// Cache wire format for fused responses. Absent per-sub-query scores
// ride as the -1.0 sentinel, same as the transport layer.

type responseDTO struct {
	Shards    []shardDTO   `json:"shards"`
	Ranking   []resultDTO  `json:"ranking"`
	Collapsed int          `json:"collapsed"`
	Explain   []explainDTO `json:"explain,omitempty"`
}

type shardDTO struct {
	Index          string      `json:"index"`
	Num            int         `json:"num"`
	Results        []resultDTO `json:"results"`
	HasCollapse    bool        `json:"has_collapse,omitempty"`
	CollapseValues []keyDTO    `json:"collapse_values,omitempty"`
}

type resultDTO struct {
	Index     string    `json:"index"`
	Num       int       `json:"num"`
	Doc       int       `json:"doc"`
	Score     float64   `json:"score"`
	SubScores []float64 `json:"sub_scores"`
}

type keyDTO struct {
	Kind string `json:"kind"`
	Str  string `json:"str,omitempty"`
	Num  int64  `json:"num,omitempty"`
}

type explainDTO struct {
	Index         string    `json:"index"`
	Num           int       `json:"num"`
	Doc           int       `json:"doc"`
	Normalization string    `json:"normalization"`
	Combination   string    `json:"combination"`
	RawScores     []float64 `json:"raw_scores"`
}

func encodeResponse(resp fusion.Response) ([]byte, error) {
	dto := responseDTO{
		Shards:    make([]shardDTO, 0, len(resp.Shards)),
		Ranking:   make([]resultDTO, 0, len(resp.Ranking)),
		Collapsed: resp.Collapsed,
	}
	for _, sr := range resp.Shards {
		sd := shardDTO{
			Index:   sr.Shard().Index(),
			Num:     sr.Shard().Num(),
			Results: make([]resultDTO, 0, len(sr.Results())),
		}
		for _, r := range sr.Results() {
			sd.Results = append(sd.Results, encodeResult(r))
		}
		if keys := sr.CollapseValues(); keys != nil {
			sd.HasCollapse = true
			sd.CollapseValues = make([]keyDTO, 0, len(keys))
			for _, k := range keys {
				sd.CollapseValues = append(sd.CollapseValues, encodeKey(k))
			}
		}
		dto.Shards = append(dto.Shards, sd)
	}
	for _, r := range resp.Ranking {
		dto.Ranking = append(dto.Ranking, encodeResult(r))
	}
	for ref, tr := range resp.Explain {
		dto.Explain = append(dto.Explain, explainDTO{
			Index:         ref.Shard().Index(),
			Num:           ref.Shard().Num(),
			Doc:           ref.Doc(),
			Normalization: tr.Normalization(),
			Combination:   tr.Combination(),
			RawScores:     tr.RawScores(),
		})
	}
	return json.Marshal(dto)
}

func decodeResponse(data []byte) (fusion.Response, error) {
	var dto responseDTO
	if err := json.Unmarshal(data, &dto); err != nil {
		return fusion.Response{}, fmt.Errorf("unmarshal cached response: %w", err)
	}

	resp := fusion.Response{
		Shards:    make([]fused.ShardResults, 0, len(dto.Shards)),
		Ranking:   make([]fused.Result, 0, len(dto.Ranking)),
		Collapsed: dto.Collapsed,
	}
	for _, sd := range dto.Shards {
		results := make([]fused.Result, 0, len(sd.Results))
		for _, rd := range sd.Results {
			results = append(results, decodeResult(rd))
		}
		sr := fused.NewShardResults(shard.NewID(sd.Index, sd.Num), results)
		if sd.HasCollapse {
			keys := make([]collapsekey.Key, 0, len(sd.CollapseValues))
			for _, kd := range sd.CollapseValues {
				keys = append(keys, decodeKey(kd))
			}
			sr = sr.WithCollapseValues(keys)
		}
		resp.Shards = append(resp.Shards, sr)
	}
	for _, rd := range dto.Ranking {
		resp.Ranking = append(resp.Ranking, decodeResult(rd))
	}
	if len(dto.Explain) > 0 {
		resp.Explain = make(map[shard.DocRef]explain.Trace, len(dto.Explain))
		for _, ed := range dto.Explain {
			ref := shard.NewDocRef(ed.Doc, shard.NewID(ed.Index, ed.Num))
			resp.Explain[ref] = explain.New(ed.Normalization, ed.Combination, ed.RawScores)
		}
	}
	return resp, nil
}

func encodeResult(r fused.Result) resultDTO {
	subs := make([]float64, len(r.SubScores()))
	for i, s := range r.SubScores() {
		subs[i] = s.Wire()
	}
	return resultDTO{
		Index:     r.Ref().Shard().Index(),
		Num:       r.Ref().Shard().Num(),
		Doc:       r.Ref().Doc(),
		Score:     r.Score(),
		SubScores: subs,
	}
}

func decodeResult(rd resultDTO) fused.Result {
	subs := make([]score.Score, len(rd.SubScores))
	for i, v := range rd.SubScores {
		subs[i] = score.FromWire(v)
	}
	ref := shard.NewDocRef(rd.Doc, shard.NewID(rd.Index, rd.Num))
	return fused.NewResult(ref, rd.Score, subs)
}

func encodeKey(k collapsekey.Key) keyDTO {
	return keyDTO{Kind: k.Kind().String(), Str: k.Str(), Num: k.Int64()}
}

func decodeKey(kd keyDTO) collapsekey.Key {
	switch kd.Kind {
	case "bytes":
		return collapsekey.FromString(kd.Str)
	case "int64":
		return collapsekey.FromInt64(kd.Num)
	default:
		return collapsekey.Absent()
	}
}
