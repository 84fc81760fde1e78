package nlp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	apperrors "faunagraph/backend/pkg/errors"
	"faunagraph/backend/pkg/logger"
	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

const systemPrompt = `You are a sentence parser for a knowledge base about animals.
Given one sentence, respond with ONLY a JSON object in this shape:

{
  "_text": "<the sentence>",
  "outcomes": [
    {
      "intent": "<intent>",
      "confidence": <0..1>,
      "entities": {
        "<entity_class>": [{"type": "value", "value": "<extracted value>", "suggested": false}]
      }
    }
  ]
}

Intents: statements of fact end in "_fact" (e.g. "animal_species_fact",
"animal_place_fact", "animal_attribute_fact"); questions end in
"_question" or "_query" (e.g. "animal_eat_query", "animal_place_question",
"animal_attribute_question", "which_animal_question",
"animal_how_many_question", "animal_fur_question", "animal_scales_question").

Entity classes: "animal" (sentence subject), "species" (category noun),
"relationship" (verb, e.g. "is", "has", "eat", "live"), "number"
(numeric modifier), "negation" (present only when the relationship is
negated), and one class describing the object ("place", "food",
"body_part", etc.). Emit exactly one outcome. Mark uncertain values
with "suggested": true. Lowercase all values.`

// OpenAIParser implements Parser on an OpenAI-compatible
// chat-completions endpoint.
type OpenAIParser struct {
	client    *openai.Client
	model     string
	timeout   time.Duration
	threshold float64
	logger    *zap.Logger
}

// NewOpenAIParser creates a parser client. baseURL points at any
// OpenAI-compatible gateway; apiKey may be empty for local gateways.
func NewOpenAIParser(baseURL, apiKey, modelID string, timeout time.Duration, threshold float64) *OpenAIParser {
	if apiKey == "" {
		apiKey = "dummy-key"
	}

	config := openai.DefaultConfig(apiKey)
	config.BaseURL = baseURL + "/v1"

	return &OpenAIParser{
		client:    openai.NewClientWithConfig(config),
		model:     modelID,
		timeout:   timeout,
		threshold: threshold,
		logger:    logger.Get(),
	}
}

// Parse sends the sentence to the NLP service and translates the
// payload into a ParsedSentence. Transport failures and timeouts
// surface as the parser-unavailable error kind; malformed payloads are
// returned as plain errors for the caller to classify.
func (p *OpenAIParser) Parse(ctx context.Context, sentence string) (*ParsedSentence, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	req := openai.ChatCompletionRequest{
		Model: p.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: sentence},
		},
		Temperature: 0,
	}

	var resp openai.ChatCompletionResponse
	var err error
	maxRetries := 3
	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(attempt) * time.Second
			p.logger.Warn("Retrying parser request",
				zap.Int("attempt", attempt+1),
				zap.Duration("backoff", backoff),
			)
			select {
			case <-ctx.Done():
				return nil, apperrors.NewParserUnavailable(ctx.Err())
			case <-time.After(backoff):
			}
		}

		resp, err = p.client.CreateChatCompletion(ctx, req)
		if err == nil {
			break
		}

		p.logger.Error("Parser request failed",
			zap.Error(err),
			zap.Int("attempt", attempt+1),
			zap.String("model", p.model),
		)
		if ctx.Err() != nil {
			break
		}
	}
	if err != nil {
		return nil, apperrors.NewParserUnavailable(err)
	}

	if len(resp.Choices) == 0 {
		return nil, apperrors.NewParserUnavailable(fmt.Errorf("no choices in parser response"))
	}

	raw := extractJSON(resp.Choices[0].Message.Content)
	var payload Response
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return nil, fmt.Errorf("failed to decode parser payload: %w", err)
	}

	parsed, err := FromResponse(&payload, []byte(raw), p.threshold)
	if err != nil {
		return nil, err
	}

	p.logger.Debug("Sentence parsed",
		zap.String("text", parsed.Text),
		zap.String("intent", parsed.Intent),
		zap.Float64("confidence", parsed.Confidence),
	)
	return parsed, nil
}

// extractJSON strips a markdown code fence if the model wrapped its
// output in one.
func extractJSON(content string) string {
	content = strings.TrimSpace(content)
	if strings.HasPrefix(content, "```") {
		content = strings.TrimPrefix(content, "```json")
		content = strings.TrimPrefix(content, "```")
		content = strings.TrimSuffix(content, "```")
		content = strings.TrimSpace(content)
	}
	return content
}
