package services

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
	"go.uber.org/zap"
)

// ResumeIndex stores embedded résumé chunks per user so scoring prompts can
// quote the passages most relevant to a posting.
type ResumeIndex interface {
	Index(ctx context.Context, userID, text string) (int, error)
	Relevant(ctx context.Context, userID, query string, limit int) ([]ResumeChunk, error)
	Delete(ctx context.Context, userID string) error
}

type ResumeChunk struct {
	Index int
	Score float32
	Text  string
}

type qdrantResumeIndex struct {
	client         *qdrant.Client
	collectionName string
	vectorSize     uint64
	gemini         GeminiService
	logger         *zap.Logger
}

func NewQdrantResumeIndex(ctx context.Context, urlStr, apiKey, collectionName string, gemini GeminiService, logger *zap.Logger) (ResumeIndex, error) {
	parsed, err := url.Parse(urlStr)
	if err != nil {
		return nil, fmt.Errorf("invalid Qdrant URL: %w", err)
	}

	// The go client speaks gRPC, 6334 unless the URL says otherwise.
	port := 6334
	if p := parsed.Port(); p != "" {
		if v, err := strconv.Atoi(p); err == nil {
			port = v
		}
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   parsed.Hostname(),
		Port:   port,
		APIKey: apiKey,
		UseTLS: parsed.Scheme == "https",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create qdrant client: %w", err)
	}

	idx := &qdrantResumeIndex{
		client:         client,
		collectionName: collectionName,
		vectorSize:     768, // text-embedding-004
		gemini:         gemini,
		logger:         logger.Named("resume_index"),
	}
	if err := idx.initCollection(ctx); err != nil {
		client.Close()
		return nil, err
	}
	return idx, nil
}

func (q *qdrantResumeIndex) initCollection(ctx context.Context) error {
	exists, err := q.client.CollectionExists(ctx, q.collectionName)
	if err != nil {
		return fmt.Errorf("failed to check collection: %w", err)
	}
	if exists {
		return nil
	}

	err = q.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: q.collectionName,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     q.vectorSize,
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}

	q.logger.Info("qdrant collection created", zap.String("collection", q.collectionName))
	return nil
}

// Index implements ResumeIndex. The user's previous points are removed
// first so a re-upload never mixes two résumés.
func (q *qdrantResumeIndex) Index(ctx context.Context, userID, text string) (int, error) {
	if err := q.Delete(ctx, userID); err != nil {
		return 0, err
	}

	chunks := ChunkText(text, defaultChunkSize, defaultChunkOverlap)
	points := make([]*qdrant.PointStruct, 0, len(chunks))
	for i, chunk := range chunks {
		embedding, err := q.gemini.GenerateEmbedding(ctx, chunk)
		if err != nil {
			return 0, fmt.Errorf("embed chunk %d: %w", i, err)
		}
		pointID := uuid.NewSHA1(uuid.NameSpaceOID, []byte(userID+":"+strconv.Itoa(i)))
		points = append(points, &qdrant.PointStruct{
			Id:      qdrant.NewID(pointID.String()),
			Vectors: qdrant.NewVectors(embedding...),
			Payload: qdrant.NewValueMap(map[string]interface{}{
				"user_id":     userID,
				"chunk_index": int64(i),
				"text":        chunk,
			}),
		})
	}
	if len(points) == 0 {
		return 0, nil
	}

	_, err := q.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: q.collectionName,
		Points:         points,
	})
	if err != nil {
		return 0, fmt.Errorf("failed to upsert points: %w", err)
	}
	return len(points), nil
}

// Relevant implements ResumeIndex.
func (q *qdrantResumeIndex) Relevant(ctx context.Context, userID, query string, limit int) ([]ResumeChunk, error) {
	embedding, err := q.gemini.GenerateEmbedding(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to generate query embedding: %w", err)
	}

	points, err := q.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: q.collectionName,
		Query:          qdrant.NewQuery(embedding...),
		Filter:         userFilter(userID),
		Limit:          qdrant.PtrOf(uint64(limit)),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to search: %w", err)
	}

	chunks := make([]ResumeChunk, 0, len(points))
	for _, point := range points {
		chunk := ResumeChunk{Score: point.Score}
		if v, ok := point.Payload["text"]; ok {
			chunk.Text = v.GetStringValue()
		}
		if v, ok := point.Payload["chunk_index"]; ok {
			chunk.Index = int(v.GetIntegerValue())
		}
		chunks = append(chunks, chunk)
	}
	return chunks, nil
}

// Delete implements ResumeIndex.
func (q *qdrantResumeIndex) Delete(ctx context.Context, userID string) error {
	_, err := q.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: q.collectionName,
		Points: &qdrant.PointsSelector{
			PointsSelectorOneOf: &qdrant.PointsSelector_Filter{
				Filter: userFilter(userID),
			},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to delete resume points: %w", err)
	}
	return nil
}

func userFilter(userID string) *qdrant.Filter {
	return &qdrant.Filter{
		Must: []*qdrant.Condition{
			qdrant.NewMatch("user_id", userID),
		},
	}
}
