// Package ontology provides a pluggable term-similarity provider feeding the
// s_ontology confidence signal.
package ontology

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"time"
)

// Vector is a float32 embedding vector.
type Vector = []float32

// Provider scores how close an extracted term is to a known ontology term,
// in [0,1].
type Provider interface {
	Similarity(ctx context.Context, term, reference string) (float64, error)
}

// CosineSimilarity computes cosine similarity between two vectors.
func CosineSimilarity(a, b Vector) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// --- Lexical provider ---

// LexicalProvider scores token overlap (Jaccard). Deterministic and fully
// offline; the default provider.
type LexicalProvider struct{}

// NewLexicalProvider creates the offline token-overlap provider.
func NewLexicalProvider() *LexicalProvider { return &LexicalProvider{} }

func (p *LexicalProvider) Similarity(_ context.Context, term, reference string) (float64, error) {
	a := tokenSet(term)
	b := tokenSet(reference)
	if len(a) == 0 || len(b) == 0 {
		return 0, nil
	}
	inter := 0
	for t := range a {
		if b[t] {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	return float64(inter) / float64(union), nil
}

func tokenSet(s string) map[string]bool {
	set := map[string]bool{}
	for _, t := range strings.Fields(strings.ToLower(s)) {
		t = strings.Trim(t, ".,;:()")
		if t != "" {
			set[t] = true
		}
	}
	return set
}

// --- Embedding provider ---

// EmbeddingProvider scores similarity via an OpenAI-compatible embeddings
// API. Optional; used only when configured.
type EmbeddingProvider struct {
	baseURL string
	apiKey  string
	model   string
	client  *http.Client
}

// NewEmbeddingProvider creates a provider against an OpenAI-compatible
// embeddings endpoint.
func NewEmbeddingProvider(baseURL, apiKey, model string) *EmbeddingProvider {
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	if model == "" {
		model = "text-embedding-3-small"
	}
	return &EmbeddingProvider{
		baseURL: baseURL,
		apiKey:  apiKey,
		model:   model,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

type embedRequest struct {
	Input string `json:"input"`
	Model string `json:"model"`
}

type embedResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

func (p *EmbeddingProvider) embed(ctx context.Context, text string) (Vector, error) {
	body, _ := json.Marshal(embedRequest{Input: text, Model: p.model})
	req, err := http.NewRequestWithContext(ctx, "POST", p.baseURL+"/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embedding request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("embedding error %d: %s", resp.StatusCode, string(b))
	}

	var result embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}
	if len(result.Data) == 0 {
		return nil, fmt.Errorf("no embedding returned")
	}
	return result.Data[0].Embedding, nil
}

func (p *EmbeddingProvider) Similarity(ctx context.Context, term, reference string) (float64, error) {
	a, err := p.embed(ctx, term)
	if err != nil {
		return 0, err
	}
	b, err := p.embed(ctx, reference)
	if err != nil {
		return 0, err
	}
	return CosineSimilarity(a, b), nil
}
