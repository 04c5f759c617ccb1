package services

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
	"go.uber.org/zap"

	"alfredoptarigan/ai-cv-evaluator/internal/logger"
)

const (
	payloadSource  = "source"
	payloadDocType = "doc_type"
	payloadText    = "text"
	payloadChunk   = "chunk_index"
)

// chunkNamespace seeds deterministic point ids so re-ingesting a source overwrites its points.
var chunkNamespace = uuid.MustParse("6f1c2d4e-8a57-4b0e-9d3c-0e5f7a9b1c22")

type VectorStore interface {
	VectorSearcher
	InitCollection(ctx context.Context) error
	UpsertChunk(ctx context.Context, chunk ContextChunk, embedding []float32) error
	DeleteBySource(ctx context.Context, source string) error
}

// VectorSearcher is the read side used by the retrieval client.
type VectorSearcher interface {
	SearchSimilar(ctx context.Context, queryEmbedding []float32, docType string, limit int) ([]SearchResult, error)
}

// ContextChunk is one piece of a ground-truth document stored in the context store.
type ContextChunk struct {
	Source  string
	DocType DocumentType
	Index   int
	Text    string
}

type SearchResult struct {
	ID       string
	Score    float32
	Text     string
	DocType  string
	Metadata map[string]string
}

type qdrantService struct {
	client         *qdrant.Client
	collectionName string
	vectorSize     uint64
	logger         *zap.Logger
}

func NewQdrantService(urlStr, apiKey, collectionName string, vectorSize uint64, log *zap.Logger) (VectorStore, error) {
	parsed, err := url.Parse(urlStr)
	if err != nil {
		return nil, fmt.Errorf("invalid Qdrant URL: %w", err)
	}

	host := parsed.Hostname()
	useTLS := parsed.Scheme == "https"

	// gRPC port
	port := 6334
	if p := parsed.Port(); p != "" {
		if v, err := strconv.Atoi(p); err == nil {
			port = v
		}
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   host,
		Port:   port,
		APIKey: apiKey,
		UseTLS: useTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create qdrant client: %w", err)
	}

	if vectorSize == 0 {
		vectorSize = 768
	}

	return &qdrantService{
		client:         client,
		collectionName: collectionName,
		vectorSize:     vectorSize,
		logger:         logger.OrNop(log),
	}, nil
}

// InitCollection implements VectorStore.
func (q *qdrantService) InitCollection(ctx context.Context) error {
	exists, err := q.client.CollectionExists(ctx, q.collectionName)
	if err != nil {
		return fmt.Errorf("failed to check collection: %w", err)
	}

	if exists {
		q.logger.Debug("qdrant collection already exists", zap.String("collection", q.collectionName))
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

	_, err = q.client.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
		CollectionName: q.collectionName,
		FieldName:      payloadDocType,
		FieldType:      qdrant.FieldType_FieldTypeKeyword.Enum(),
	})
	if err != nil {
		return fmt.Errorf("failed to index %s: %w", payloadDocType, err)
	}

	q.logger.Info("qdrant collection created",
		zap.String("collection", q.collectionName),
		zap.Uint64("vector_size", q.vectorSize),
	)
	return nil
}

// UpsertChunk implements VectorStore.
func (q *qdrantService) UpsertChunk(ctx context.Context, chunk ContextChunk, embedding []float32) error {
	pointID := uuid.NewSHA1(chunkNamespace, []byte(fmt.Sprintf("%s#%d", chunk.Source, chunk.Index)))

	point := &qdrant.PointStruct{
		Id:      qdrant.NewID(pointID.String()),
		Vectors: qdrant.NewVectors(embedding...),
		Payload: qdrant.NewValueMap(map[string]any{
			payloadSource:  chunk.Source,
			payloadDocType: string(chunk.DocType),
			payloadText:    chunk.Text,
			payloadChunk:   int64(chunk.Index),
		}),
	}

	_, err := q.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: q.collectionName,
		Points:         []*qdrant.PointStruct{point},
	})
	if err != nil {
		return fmt.Errorf("failed to upsert point: %w", err)
	}

	return nil
}

// SearchSimilar implements VectorSearcher. Results come back in rank order.
func (q *qdrantService) SearchSimilar(ctx context.Context, queryEmbedding []float32, docType string, limit int) ([]SearchResult, error) {
	var filter *qdrant.Filter
	if docType != "" {
		filter = &qdrant.Filter{
			Must: []*qdrant.Condition{
				qdrant.NewMatch(payloadDocType, docType),
			},
		}
	}

	points, err := q.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: q.collectionName,
		Query:          qdrant.NewQuery(queryEmbedding...),
		Filter:         filter,
		Limit:          qdrant.PtrOf(uint64(limit)),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to search: %w", err)
	}

	results := make([]SearchResult, 0, len(points))
	for _, point := range points {
		result := SearchResult{
			ID:       point.GetId().GetUuid(),
			Score:    point.GetScore(),
			Metadata: make(map[string]string, len(point.GetPayload())),
		}

		for key, value := range point.GetPayload() {
			switch key {
			case payloadText:
				result.Text = value.GetStringValue()
			case payloadDocType:
				result.DocType = value.GetStringValue()
				result.Metadata[key] = result.DocType
			default:
				result.Metadata[key] = payloadString(value)
			}
		}

		results = append(results, result)
	}

	return results, nil
}

// DeleteBySource implements VectorStore.
func (q *qdrantService) DeleteBySource(ctx context.Context, source string) error {
	filter := &qdrant.Filter{
		Must: []*qdrant.Condition{
			qdrant.NewMatch(payloadSource, source),
		},
	}

	_, err := q.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: q.collectionName,
		Points: &qdrant.PointsSelector{
			PointsSelectorOneOf: &qdrant.PointsSelector_Filter{
				Filter: filter,
			},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to delete source %q: %w", source, err)
	}

	return nil
}

func payloadString(v *qdrant.Value) string {
	switch kind := v.GetKind().(type) {
	case *qdrant.Value_StringValue:
		return kind.StringValue
	case *qdrant.Value_IntegerValue:
		return strconv.FormatInt(kind.IntegerValue, 10)
	case *qdrant.Value_DoubleValue:
		return strconv.FormatFloat(kind.DoubleValue, 'f', -1, 64)
	case *qdrant.Value_BoolValue:
		return strconv.FormatBool(kind.BoolValue)
	default:
		return ""
	}
}
