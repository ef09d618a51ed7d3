package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/aliendevit/minuteone/internal/model"
	"github.com/aliendevit/minuteone/internal/transcript"
)

const extractionSystemPrompt = `You extract structured clinical visit data from a transcript.
Respond with JSON only: {"visit": {...}, "slots": {"<slot>": {"value": "...", "confidence": 0.0}}}.
Never invent data not present in the transcript. Leave absent fields empty.`

// ModelExtractor is the language-model fallback. It runs outside the core's
// critical path; the core only consumes its already-computed signals.
type ModelExtractor struct {
	client      *openai.Client
	model       string
	temperature float32
	timeout     time.Duration
}

// NewModelExtractor creates a model-backed extractor.
func NewModelExtractor(apiKey, modelName string) *ModelExtractor {
	if modelName == "" {
		modelName = "gpt-4o-mini"
	}
	return &ModelExtractor{
		client:      openai.NewClient(apiKey),
		model:       modelName,
		temperature: 0,
		timeout:     30 * time.Second,
	}
}

type modelSlot struct {
	Value      string  `json:"value"`
	Confidence float64 `json:"confidence"`
}

type modelPayload struct {
	Visit model.Visit          `json:"visit"`
	Slots map[string]modelSlot `json:"slots"`
}

// Extract sends the joined transcript to the model and maps per-slot model
// confidences into p_model. The span ASR confidence is carried as c_asr
// unchanged.
func (e *ModelExtractor) Extract(ctx context.Context, spans []transcript.Span) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	resp, err := e.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       e.model,
		Temperature: e.temperature,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: extractionSystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: transcript.Join(spans)},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("model extraction: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("model extraction: empty response")
	}

	var payload modelPayload
	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	if err := json.Unmarshal([]byte(content), &payload); err != nil {
		return nil, fmt.Errorf("model extraction: parse response: %w", err)
	}

	asr := 0.0
	for _, s := range spans {
		if s.Confidence > asr {
			asr = s.Confidence
		}
	}

	res := &Result{Visit: payload.Visit, Scores: map[string]model.SlotScore{}}
	for slot, ms := range payload.Slots {
		res.Scores[slot] = model.SlotScore{
			PModel: clamp01(ms.Confidence),
			CASR:   asr,
		}
	}
	return res, nil
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
