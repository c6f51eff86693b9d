// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package store

import (
	"context"
	"errors"
	"fmt"
	"sync"

	qdrant "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"

	"github.com/northbound/archivist/internal/logger"
)

// Granularity names one embedding space: the vector index keeps one
// Qdrant collection per granularity so a query against "chunk" space
// never ranks against "message" space vectors.
type Granularity string

const (
	GranularityMessage        Granularity = "message"
	GranularityChunk          Granularity = "chunk"
	GranularitySummary        Granularity = "summary"
	GranularityContentItem    Granularity = "content_item"
	GranularityContentBlock   Granularity = "content_block"
	GranularityImageDescription Granularity = "image_description"
)

// VectorMatch is one ANN hit.
type VectorMatch struct {
	ID      string
	Score   float32
	Payload map[string]string
}

// VectorIndex wraps the Qdrant gRPC clients, lazily ensuring one collection
// per granularity with cosine distance.
type VectorIndex struct {
	collectionsSvc qdrant.CollectionsClient
	pointsSvc      qdrant.PointsClient
	dim            int

	mu      sync.Mutex
	ensured map[Granularity]bool
}

// NewVectorIndex constructs a vector index over an existing gRPC
// connection. dim is the fixed embedding dimension from config.
func NewVectorIndex(conn *grpc.ClientConn, dim int) (*VectorIndex, error) {
	if conn == nil {
		return nil, errors.New("gRPC connection is required")
	}
	return &VectorIndex{
		collectionsSvc: qdrant.NewCollectionsClient(conn),
		pointsSvc:      qdrant.NewPointsClient(conn),
		dim:            dim,
		ensured:        map[Granularity]bool{},
	}, nil
}

func collectionName(g Granularity) string {
	return "archivist_" + string(g)
}

func (v *VectorIndex) ensureCollection(ctx context.Context, g Granularity) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.ensured[g] {
		return nil
	}

	name := collectionName(g)
	collections, err := v.collectionsSvc.List(ctx, &qdrant.ListCollectionsRequest{})
	if err != nil {
		return fmt.Errorf("list collections: %w", err)
	}
	for _, c := range collections.Collections {
		if c.Name == name {
			v.ensured[g] = true
			return nil
		}
	}

	_, err = v.collectionsSvc.Create(ctx, &qdrant.CreateCollection{
		CollectionName: name,
		VectorsConfig: &qdrant.VectorsConfig{
			Config: &qdrant.VectorsConfig_Params{
				Params: &qdrant.VectorParams{
					Size:     uint64(v.dim),
					Distance: qdrant.Distance_Cosine,
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("create collection %s: %w", name, err)
	}
	logger.Printf("store: created vector collection %s dim=%d", name, v.dim)
	v.ensured[g] = true
	return nil
}

// Upsert stores or updates a vector with string-valued pre-filter payload
// fields (role, type, source, gizmoId, blockType, ...).
func (v *VectorIndex) Upsert(ctx context.Context, g Granularity, id string, vector []float32, payload map[string]string) error {
	if len(vector) == 0 {
		return errors.New("vector cannot be empty")
	}
	if err := v.ensureCollection(ctx, g); err != nil {
		return err
	}

	qpayload := make(map[string]*qdrant.Value, len(payload))
	for k, val := range payload {
		qpayload[k] = &qdrant.Value{Kind: &qdrant.Value_StringValue{StringValue: val}}
	}

	point := &qdrant.PointStruct{
		Id: &qdrant.PointId{PointIdOptions: &qdrant.PointId_Uuid{Uuid: id}},
		Vectors: &qdrant.Vectors{
			VectorsOptions: &qdrant.Vectors_Vector{Vector: &qdrant.Vector{Data: vector}},
		},
		Payload: qpayload,
	}

	_, err := v.pointsSvc.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: collectionName(g),
		Points:         []*qdrant.PointStruct{point},
	})
	if err != nil {
		return fmt.Errorf("upsert point %s: %w", id, err)
	}
	return nil
}

// UpsertBatch upserts multiple points in one round trip.
func (v *VectorIndex) UpsertBatch(ctx context.Context, g Granularity, ids []string, vectors [][]float32, payloads []map[string]string) error {
	if len(ids) != len(vectors) || len(ids) != len(payloads) {
		return fmt.Errorf("upsert batch: mismatched slice lengths")
	}
	if len(ids) == 0 {
		return nil
	}
	if err := v.ensureCollection(ctx, g); err != nil {
		return err
	}

	points := make([]*qdrant.PointStruct, len(ids))
	for i := range ids {
		qpayload := make(map[string]*qdrant.Value, len(payloads[i]))
		for k, val := range payloads[i] {
			qpayload[k] = &qdrant.Value{Kind: &qdrant.Value_StringValue{StringValue: val}}
		}
		points[i] = &qdrant.PointStruct{
			Id:      &qdrant.PointId{PointIdOptions: &qdrant.PointId_Uuid{Uuid: ids[i]}},
			Vectors: &qdrant.Vectors{VectorsOptions: &qdrant.Vectors_Vector{Vector: &qdrant.Vector{Data: vectors[i]}}},
			Payload: qpayload,
		}
	}

	_, err := v.pointsSvc.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: collectionName(g),
		Points:         points,
	})
	if err != nil {
		return fmt.Errorf("upsert batch: %w", err)
	}
	return nil
}

// Search runs an ANN query in granularity g's collection, returning the
// topK nearest neighbours by cosine similarity.
func (v *VectorIndex) Search(ctx context.Context, g Granularity, query []float32, topK int) ([]VectorMatch, error) {
	if len(query) == 0 {
		return nil, errors.New("query vector cannot be empty")
	}
	if topK <= 0 {
		topK = 10
	}
	if err := v.ensureCollection(ctx, g); err != nil {
		return nil, err
	}

	result, err := v.pointsSvc.Search(ctx, &qdrant.SearchPoints{
		CollectionName: collectionName(g),
		Vector:         query,
		Limit:          uint64(topK),
		WithPayload:    &qdrant.WithPayloadSelector{SelectorOptions: &qdrant.WithPayloadSelector_Enable{Enable: true}},
		WithVectors:    &qdrant.WithVectorsSelector{SelectorOptions: &qdrant.WithVectorsSelector_Enable{Enable: false}},
	})
	if err != nil {
		return nil, fmt.Errorf("search %s: %w", g, err)
	}

	matches := make([]VectorMatch, 0, len(result.Result))
	for _, scored := range result.Result {
		var id string
		if scored.Id != nil {
			id = scored.Id.GetUuid()
		}
		payload := make(map[string]string, len(scored.Payload))
		for k, val := range scored.Payload {
			if s := val.GetStringValue(); s != "" {
				payload[k] = s
			}
		}
		matches = append(matches, VectorMatch{ID: id, Score: scored.Score, Payload: payload})
	}
	return matches, nil
}

func (v *VectorIndex) Delete(ctx context.Context, g Granularity, id string) error {
	_, err := v.pointsSvc.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: collectionName(g),
		Points: &qdrant.PointsSelector{
			PointsSelectorOneOf: &qdrant.PointsSelector_Points{
				Points: &qdrant.PointsIdsList{Ids: []*qdrant.PointId{{PointIdOptions: &qdrant.PointId_Uuid{Uuid: id}}}},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("delete point %s: %w", id, err)
	}
	return nil
}

// GetVector fetches the stored vector for a point by id, used when a
// caller needs to re-query with an existing owner's embedding (e.g.
// find-similar-to-message).
func (v *VectorIndex) GetVector(ctx context.Context, g Granularity, id string) ([]float32, error) {
	resp, err := v.pointsSvc.Get(ctx, &qdrant.GetPoints{
		CollectionName: collectionName(g),
		Ids:            []*qdrant.PointId{{PointIdOptions: &qdrant.PointId_Uuid{Uuid: id}}},
		WithVectors:    &qdrant.WithVectorsSelector{SelectorOptions: &qdrant.WithVectorsSelector_Enable{Enable: true}},
	})
	if err != nil {
		return nil, fmt.Errorf("get point %s: %w", id, err)
	}
	if len(resp.Result) == 0 {
		return nil, fmt.Errorf("point %s not found", id)
	}
	vectors := resp.Result[0].Vectors
	if vectors == nil || vectors.GetVector() == nil {
		return nil, fmt.Errorf("point %s has no vector", id)
	}
	return vectors.GetVector().Data, nil
}

func (v *VectorIndex) Count(ctx context.Context, g Granularity) (int, error) {
	if err := v.ensureCollection(ctx, g); err != nil {
		return 0, err
	}
	info, err := v.collectionsSvc.Get(ctx, &qdrant.GetCollectionInfoRequest{CollectionName: collectionName(g)})
	if err != nil {
		return 0, fmt.Errorf("get collection info %s: %w", g, err)
	}
	if info.Result.PointsCount == nil {
		return 0, nil
	}
	return int(*info.Result.PointsCount), nil
}
