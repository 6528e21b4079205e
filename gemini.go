package webtoonquiz

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const (
	ProviderGemini = "gemini"

	DefaultGeminiModel   = "gemini-3-pro-preview"
	DefaultGeminiBaseURL = "https://generativelanguage.googleapis.com"
)

// GeminiProvider calls the generateContent REST endpoint directly.
type GeminiProvider struct {
	apiKey     string
	model      string
	baseURL    string
	httpClient *http.Client
}

// NewGeminiProvider creates a provider for the given model. An empty
// baseURL selects the public endpoint.
func NewGeminiProvider(apiKey, model, baseURL string) *GeminiProvider {
	if model == "" {
		model = DefaultGeminiModel
	}
	if baseURL == "" {
		baseURL = DefaultGeminiBaseURL
	}
	return &GeminiProvider{
		apiKey:     apiKey,
		model:      model,
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{},
	}
}

func (p *GeminiProvider) Name() string {
	return ProviderGemini
}

type geminiRequest struct {
	Contents         []geminiContent        `json:"contents"`
	GenerationConfig geminiGenerationConfig `json:"generationConfig"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	InlineData *geminiInlineData `json:"inlineData,omitempty"`
	Text       string            `json:"text,omitempty"`
}

type geminiInlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

type geminiGenerationConfig struct {
	ResponseMimeType string                 `json:"responseMimeType"`
	ResponseSchema   map[string]interface{} `json:"responseSchema"`
}

type geminiResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text    string `json:"text"`
				Thought bool   `json:"thought,omitempty"`
			} `json:"parts"`
		} `json:"content"`
		FinishReason string `json:"finishReason"`
	} `json:"candidates"`
}

type geminiErrorBody struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

func geminiQuizSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "OBJECT",
		"properties": map[string]interface{}{
			"quiz": map[string]interface{}{
				"type": "ARRAY",
				"items": map[string]interface{}{
					"type": "OBJECT",
					"properties": map[string]interface{}{
						"question": map[string]interface{}{
							"type": "STRING",
						},
						"options": map[string]interface{}{
							"type":     "ARRAY",
							"items":    map[string]interface{}{"type": "STRING"},
							"minItems": OptionCount,
							"maxItems": OptionCount,
						},
						"correctIndex": map[string]interface{}{
							"type": "INTEGER",
						},
						"explanation": map[string]interface{}{
							"type": "STRING",
						},
					},
					"required": []string{"question", "options", "correctIndex", "explanation"},
				},
			},
		},
		"required": []string{"quiz"},
	}
}

func (p *GeminiProvider) buildRequest(req GenerationRequest) geminiRequest {
	parts := make([]geminiPart, 0, len(req.Images)+1)
	for _, img := range req.Images {
		parts = append(parts, geminiPart{
			InlineData: &geminiInlineData{
				MimeType: img.MediaType,
				Data:     base64.StdEncoding.EncodeToString(img.Data),
			},
		})
	}
	parts = append(parts, geminiPart{Text: req.Prompt})

	return geminiRequest{
		Contents: []geminiContent{{Role: "user", Parts: parts}},
		GenerationConfig: geminiGenerationConfig{
			ResponseMimeType: "application/json",
			ResponseSchema:   geminiQuizSchema(),
		},
	}
}

// Generate sends the images and prompt and returns the generated text blob.
func (p *GeminiProvider) Generate(ctx context.Context, req GenerationRequest) (string, error) {
	body, err := json.Marshal(p.buildRequest(req))
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/v1beta/models/%s:generateContent", p.baseURL, p.model)
	VerboseLog("Sending generateContent request to %s (%d bytes)", url, len(body))

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", p.apiKey)

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return "", &GenerationError{Kind: KindProviderError, Message: "request failed", Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &GenerationError{Kind: KindProviderError, StatusCode: resp.StatusCode, Message: "failed to read response", Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		message := fmt.Sprintf("%d %s", resp.StatusCode, http.StatusText(resp.StatusCode))
		var errBody geminiErrorBody
		if json.Unmarshal(respBody, &errBody) == nil && errBody.Error.Message != "" {
			message = errBody.Error.Message
		}
		return "", &GenerationError{Kind: KindProviderError, StatusCode: resp.StatusCode, Message: message}
	}

	var result geminiResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return "", &GenerationError{Kind: KindMalformedResponse, Message: "provider body is not JSON", Err: err}
	}

	if len(result.Candidates) == 0 {
		return "", nil
	}
	for _, part := range result.Candidates[0].Content.Parts {
		if !part.Thought && part.Text != "" {
			return part.Text, nil
		}
	}
	VerboseLog("Candidate carried no text (finish reason %s)", result.Candidates[0].FinishReason)
	return "", nil
}
