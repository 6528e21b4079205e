package webtoonquiz

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
	"github.com/sashabaranov/go-openai/jsonschema"
)

const (
	ProviderOpenAI = "openai"

	DefaultOpenAIModel = openai.GPT4o
)

// OpenAIProvider generates quizzes through a chat completion endpoint that
// speaks the OpenAI protocol.
type OpenAIProvider struct {
	client *openai.Client
	model  string
}

// NewOpenAIProvider creates a provider. baseURL may point at any
// OpenAI-compatible server; empty means api.openai.com.
func NewOpenAIProvider(apiKey, model, baseURL string) *OpenAIProvider {
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	if model == "" {
		model = DefaultOpenAIModel
	}
	return &OpenAIProvider{
		client: openai.NewClientWithConfig(config),
		model:  model,
	}
}

func (p *OpenAIProvider) Name() string {
	return ProviderOpenAI
}

func openAIQuizSchema() *jsonschema.Definition {
	return &jsonschema.Definition{
		Type: jsonschema.Object,
		Properties: map[string]jsonschema.Definition{
			"quiz": {
				Type: jsonschema.Array,
				Items: &jsonschema.Definition{
					Type: jsonschema.Object,
					Properties: map[string]jsonschema.Definition{
						"question": {
							Type:        jsonschema.String,
							Description: "The question text",
						},
						"options": {
							Type:        jsonschema.Array,
							Items:       &jsonschema.Definition{Type: jsonschema.String},
							Description: "Array of exactly 3 options",
						},
						"correctIndex": {
							Type:        jsonschema.Integer,
							Description: "0-based index of the correct option",
						},
						"explanation": {
							Type:        jsonschema.String,
							Description: "Why the answer is correct",
						},
					},
					Required:             []string{"question", "options", "correctIndex", "explanation"},
					AdditionalProperties: false,
				},
			},
		},
		Required:             []string{"quiz"},
		AdditionalProperties: false,
	}
}

func (p *OpenAIProvider) buildRequest(req GenerationRequest) openai.ChatCompletionRequest {
	parts := make([]openai.ChatMessagePart, 0, len(req.Images)+1)
	for _, img := range req.Images {
		parts = append(parts, openai.ChatMessagePart{
			Type: openai.ChatMessagePartTypeImageURL,
			ImageURL: &openai.ChatMessageImageURL{
				URL:    fmt.Sprintf("data:%s;base64,%s", img.MediaType, base64.StdEncoding.EncodeToString(img.Data)),
				Detail: openai.ImageURLDetailHigh,
			},
		})
	}
	parts = append(parts, openai.ChatMessagePart{
		Type: openai.ChatMessagePartTypeText,
		Text: req.Prompt,
	})

	return openai.ChatCompletionRequest{
		Model: p.model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: systemPrompt,
			},
			{
				Role:         openai.ChatMessageRoleUser,
				MultiContent: parts,
			},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONSchema,
			JSONSchema: &openai.ChatCompletionResponseFormatJSONSchema{
				Name:   "webtoon_quiz",
				Schema: openAIQuizSchema(),
				Strict: true,
			},
		},
	}
}

// Generate sends the images and prompt and returns the message content.
func (p *OpenAIProvider) Generate(ctx context.Context, req GenerationRequest) (string, error) {
	resp, err := p.client.CreateChatCompletion(ctx, p.buildRequest(req))
	if err != nil {
		genErr := &GenerationError{Kind: KindProviderError, Message: "chat completion failed", Err: err}
		var apiErr *openai.APIError
		var reqErr *openai.RequestError
		switch {
		case errors.As(err, &apiErr):
			genErr.StatusCode = apiErr.HTTPStatusCode
			genErr.Message = apiErr.Message
		case errors.As(err, &reqErr):
			genErr.StatusCode = reqErr.HTTPStatusCode
		}
		return "", genErr
	}

	VerboseLog("Received chat completion with %d choices", len(resp.Choices))

	if len(resp.Choices) == 0 {
		return "", nil
	}
	return resp.Choices[0].Message.Content, nil
}
