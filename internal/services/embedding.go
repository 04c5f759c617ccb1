package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

const (
	embedTaskQuery    = "RETRIEVAL_QUERY"
	embedTaskDocument = "RETRIEVAL_DOCUMENT"

	// ~10000 tokens
	maxEmbeddingChars = 40000
)

// Embedder turns text into a vector for the context store.
type Embedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
	EmbedDocument(ctx context.Context, text string) ([]float32, error)
}

type embedContenter interface {
	EmbedContent(ctx context.Context, model string, contents []*genai.Content, config *genai.EmbedContentConfig) (*genai.EmbedContentResponse, error)
}

type geminiEmbedder struct {
	models embedContenter
	model  string
}

func NewGeminiEmbedder(client *genai.Client, model string) Embedder {
	if model = strings.TrimSpace(model); model == "" {
		model = "text-embedding-004"
	}
	return &geminiEmbedder{models: client.Models, model: model}
}

// EmbedQuery implements Embedder.
func (g *geminiEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return g.embed(ctx, text, embedTaskQuery)
}

// EmbedDocument implements Embedder.
func (g *geminiEmbedder) EmbedDocument(ctx context.Context, text string) ([]float32, error) {
	return g.embed(ctx, text, embedTaskDocument)
}

func (g *geminiEmbedder) embed(ctx context.Context, text, taskType string) ([]float32, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, errors.New("cannot embed empty text")
	}
	if len(text) > maxEmbeddingChars {
		text = strings.ToValidUTF8(text[:maxEmbeddingChars], "")
	}

	result, err := g.models.EmbedContent(ctx, g.model, genai.Text(text), &genai.EmbedContentConfig{TaskType: taskType})
	if err != nil {
		return nil, fmt.Errorf("failed to generate embedding: %w", err)
	}

	if result == nil || len(result.Embeddings) == 0 || result.Embeddings[0] == nil {
		return nil, fmt.Errorf("empty embedding result")
	}

	return result.Embeddings[0].Values, nil
}
