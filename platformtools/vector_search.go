package platformtools

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"

	"inference-gateway/router"

	"github.com/qdrant/go-client/qdrant"
)

// VectorSearch fans a query out over one Qdrant collection per
// vector_store_id an assistant's ToolResources names, grounded on the pack's
// only concrete vector-store integration (qdrant/go-client), merged with the
// teacher's persisted_ai/rank_fusion.go reciprocal-rank-fusion algorithm
// adapted from embedding-only rank lists to qdrant score results (spec
// §4.4 file_search/vector_store_search).
type VectorSearch struct {
	Client   *qdrant.Client
	Embedder func(ctx context.Context, text string) ([]float32, error)
	TopK     int
}

func (v *VectorSearch) Name() string { return "vector_store_search" }

type vectorSearchArgs struct {
	Query          string        `json:"query"`
	VectorStoreIds []string      `json:"vector_store_ids"`
	Filter         interface{}   `json:"filter"`
}

type scoredPoint struct {
	collection string
	id         string
	score      float32
	payload    map[string]interface{}
}

func (v *VectorSearch) Invoke(ctx context.Context, workspaceId string, args map[string]interface{}) (string, bool, error) {
	raw, err := json.Marshal(args)
	if err != nil {
		return "", false, err
	}
	var parsed vectorSearchArgs
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return fmt.Sprintf("invalid arguments: %v", err), true, nil
	}
	if parsed.Query == "" || len(parsed.VectorStoreIds) == 0 {
		return "missing required arguments: query, vector_store_ids", true, nil
	}
	if parsed.Filter != nil {
		if err := router.ValidateFilter(parsed.Filter); err != nil {
			return fmt.Sprintf("invalid filter: %v", err), true, nil
		}
	}

	vector, err := v.Embedder(ctx, parsed.Query)
	if err != nil {
		return "", false, fmt.Errorf("failed to embed query: %w", err)
	}

	topK := v.TopK
	if topK <= 0 {
		topK = 10
	}

	// per-collection rank lists, merged below via reciprocal rank fusion
	rankLists := make([][]scoredPoint, 0, len(parsed.VectorStoreIds))
	for _, collection := range parsed.VectorStoreIds {
		points, err := v.Client.Query(ctx, &qdrant.QueryPoints{
			CollectionName: collection,
			Query:          qdrant.NewQuery(vector...),
			Limit:          qdrant.PtrOf(uint64(topK)),
			WithPayload:    qdrant.NewWithPayload(true),
		})
		if err != nil {
			continue // a missing/unreachable collection shouldn't fail the whole search
		}
		list := make([]scoredPoint, 0, len(points))
		for _, p := range points {
			list = append(list, scoredPoint{
				collection: collection,
				id:         pointIdString(p.Id),
				score:      p.Score,
				payload:    payloadToMap(p.Payload),
			})
		}
		rankLists = append(rankLists, list)
	}

	merged := reciprocalRankFusion(rankLists, topK)

	resultJSON, err := json.Marshal(merged)
	if err != nil {
		return "", false, err
	}
	return string(resultJSON), false, nil
}

const rrfK = 60

// reciprocalRankFusion merges independently-ranked result lists into one
// ordering by summing 1/(rrfK + rank) across lists, the teacher's
// rank_fusion.go algorithm generalized from embedding-rank lists to Qdrant
// score results (only the rank within each list matters, not the raw score
// scale, since different collections may use different distance metrics).
func reciprocalRankFusion(lists [][]scoredPoint, topK int) []scoredPoint {
	fused := map[string]float64{}
	best := map[string]scoredPoint{}
	for _, list := range lists {
		for rank, p := range list {
			key := p.collection + ":" + p.id
			fused[key] += 1.0 / float64(rrfK+rank+1)
			best[key] = p
		}
	}

	keys := make([]string, 0, len(fused))
	for k := range fused {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return fused[keys[i]] > fused[keys[j]] })

	if len(keys) > topK {
		keys = keys[:topK]
	}
	out := make([]scoredPoint, len(keys))
	for i, k := range keys {
		out[i] = best[k]
	}
	return out
}

func pointIdString(id *qdrant.PointId) string {
	if id == nil {
		return ""
	}
	switch v := id.PointIdOptions.(type) {
	case *qdrant.PointId_Num:
		return strconv.FormatUint(v.Num, 10)
	case *qdrant.PointId_Uuid:
		return v.Uuid
	default:
		return ""
	}
}

func payloadToMap(payload map[string]*qdrant.Value) map[string]interface{} {
	out := make(map[string]interface{}, len(payload))
	for k, v := range payload {
		if v == nil {
			continue
		}
		switch kind := v.Kind.(type) {
		case *qdrant.Value_StringValue:
			out[k] = kind.StringValue
		case *qdrant.Value_IntegerValue:
			out[k] = kind.IntegerValue
		case *qdrant.Value_DoubleValue:
			out[k] = kind.DoubleValue
		case *qdrant.Value_BoolValue:
			out[k] = kind.BoolValue
		default:
			out[k] = fmt.Sprintf("%v", v)
		}
	}
	return out
}
