// Package llm turns free-form set descriptions ("eighty kilos for ten",
// "80kg x 10, 85x8") into weight/reps pairs with a structured-output chat
// completion.
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
	"github.com/rs/zerolog"
)

const (
	DefaultBaseURL = "https://api.groq.com/openai/v1"
	DefaultModel   = "moonshotai/kimi-k2-instruct-0905"
)

var ErrNoSets = errors.New("no sets in message")

const systemPrompt = `You parse messages from a gym logging chat. The user is in the middle
of recording sets for a single exercise. Extract every set written in the message,
each with its weight in kilograms and its number of repetitions. Convert pounds to
kilograms. Use weight 0 for bodyweight sets. If the message does not describe a set,
return an empty list.`

type Extractor struct {
	client  openai.Client
	model   string
	log     zerolog.Logger
	reqOpts []option.RequestOption
}

type Option func(*Extractor)

func WithModel(model string) Option {
	return func(e *Extractor) {
		if model != "" {
			e.model = model
		}
	}
}

func WithLogger(log zerolog.Logger) Option {
	return func(e *Extractor) { e.log = log }
}

// WithRequestOptions passes options through to the underlying API client.
func WithRequestOptions(opts ...option.RequestOption) Option {
	return func(e *Extractor) { e.reqOpts = append(e.reqOpts, opts...) }
}

func New(apiKey, baseURL string, opts ...Option) *Extractor {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	e := &Extractor{model: DefaultModel, log: zerolog.Nop()}
	for _, opt := range opts {
		opt(e)
	}
	reqOpts := append([]option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithBaseURL(baseURL),
	}, e.reqOpts...)
	e.client = openai.NewClient(reqOpts...)
	return e
}

// ExtractSets returns the sets described by text, or ErrNoSets.
func (e *Extractor) ExtractSets(ctx context.Context, text string) ([]ExerciseSet, error) {
	schemaParam := openai.ResponseFormatJSONSchemaJSONSchemaParam{
		Name:        "sets",
		Description: openai.String("Workout sets extracted from the user message"),
		Schema:      ListOfSetsSchema,
		Strict:      openai.Bool(true),
	}
	chat, err := e.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(strings.ToLower(strings.TrimSpace(text))),
		},
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONSchema: &openai.ResponseFormatJSONSchemaParam{JSONSchema: schemaParam},
		},
		Model: e.model,
	})
	if err != nil {
		return nil, fmt.Errorf("chat completion: %w", err)
	}
	if len(chat.Choices) == 0 {
		return nil, fmt.Errorf("chat completion: empty choices")
	}
	content := chat.Choices[0].Message.Content
	e.log.Debug().Str("model", e.model).Str("content", content).Msg("set extraction response")

	var out ListOfSets
	if err := json.Unmarshal([]byte(content), &out); err != nil {
		return nil, fmt.Errorf("decode extraction: %w", err)
	}
	sets := out.Sets[:0]
	for _, s := range out.Sets {
		if s.Weight < 0 || s.Reps <= 0 {
			continue
		}
		sets = append(sets, s)
	}
	if len(sets) == 0 {
		return nil, ErrNoSets
	}
	return sets, nil
}
