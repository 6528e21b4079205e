package webtoonquiz

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x06\x00\x00\x00\x1f\x15\xc4\x89")

func testImage(t *testing.T, name string) Image {
	t.Helper()
	data := append([]byte(nil), pngHeader...)
	data = append(data, []byte(name)...)
	img, err := NewImage(name, data)
	require.NoError(t, err)
	return img
}

type fakeProvider struct {
	text  string
	err   error
	calls int
	last  GenerationRequest
	block bool
}

func (p *fakeProvider) Name() string { return "fake" }

func (p *fakeProvider) Generate(ctx context.Context, req GenerationRequest) (string, error) {
	p.calls++
	p.last = req
	if p.block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	return p.text, p.err
}

func newTestGenerator(p Provider) *QuizGenerator {
	return NewQuizGeneratorWithProvider(p, AIConfig{APIKey: "test-key", Locale: "English"})
}

func TestGenerateQuizPreconditions(t *testing.T) {
	img := testImage(t, "one.png")
	tooMany := make([]Image, MaxImages+1)
	for i := range tooMany {
		tooMany[i] = img
	}

	tests := []struct {
		name   string
		images []Image
		count  int
		apiKey string
		kind   GenerationErrorKind
	}{
		{"no images", nil, 5, "k", KindNoImages},
		{"no images beats bad count", nil, 2, "k", KindNoImages},
		{"too many images", tooMany, 5, "k", KindTooManyImages},
		{"count too low", []Image{img}, 2, "k", KindInvalidQuestionCount},
		{"count too high", []Image{img}, 11, "k", KindInvalidQuestionCount},
		{"missing key", []Image{img}, 5, " ", KindMissingCredential},
		{"empty image", []Image{{Name: "x", MediaType: "image/png"}}, 5, "k", KindInvalidImage},
		{"not an image", []Image{{Name: "x", MediaType: "text/plain", Data: []byte("hi")}}, 5, "k", KindInvalidImage},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider := &fakeProvider{text: quizJSON(validItem)}
			qg := NewQuizGeneratorWithProvider(provider, AIConfig{APIKey: tt.apiKey})

			_, err := qg.GenerateQuiz(context.Background(), tt.images, tt.count)
			require.Error(t, err)
			assert.True(t, IsGenerationKind(err, tt.kind), "got %v", err)
			assert.Zero(t, provider.calls, "provider must not be called")
		})
	}
}

func TestGenerateQuizBoundaryCounts(t *testing.T) {
	img := testImage(t, "one.png")
	for _, count := range []int{MinQuestionCount, MaxQuestionCount} {
		provider := &fakeProvider{text: quizJSON(validItem)}
		_, err := newTestGenerator(provider).GenerateQuiz(context.Background(), []Image{img}, count)
		require.NoError(t, err)
		assert.Equal(t, count, provider.last.QuestionCount)
	}
}

func TestGenerateQuizSuccess(t *testing.T) {
	provider := &fakeProvider{text: quizJSON(validItem, validItem, validItem)}
	images := []Image{testImage(t, "a.png"), testImage(t, "b.png")}

	questions, err := newTestGenerator(provider).GenerateQuiz(context.Background(), images, 3)
	require.NoError(t, err)
	assert.Len(t, questions, 3)

	assert.Equal(t, 1, provider.calls)
	assert.NotEmpty(t, provider.last.ID)
	assert.Equal(t, images, provider.last.Images)
	assert.Contains(t, provider.last.Prompt, "exactly 3 multiple choice questions")
	assert.Contains(t, provider.last.Prompt, "English")
}

func TestGenerateQuizPropagatesResponseErrors(t *testing.T) {
	img := testImage(t, "a.png")

	provider := &fakeProvider{text: ""}
	_, err := newTestGenerator(provider).GenerateQuiz(context.Background(), []Image{img}, 3)
	assert.True(t, IsGenerationKind(err, KindEmptyResponse))

	provider = &fakeProvider{text: quizJSON(validItem, `{"question":"q"}`)}
	_, err = newTestGenerator(provider).GenerateQuiz(context.Background(), []Image{img}, 3)
	assert.True(t, IsGenerationKind(err, KindInvalidQuestion))
}

func TestGenerateQuizWrapsPlainProviderErrors(t *testing.T) {
	provider := &fakeProvider{err: errors.New("connection reset")}
	_, err := newTestGenerator(provider).GenerateQuiz(context.Background(), []Image{testImage(t, "a.png")}, 3)

	var genErr *GenerationError
	require.True(t, errors.As(err, &genErr))
	assert.Equal(t, KindProviderError, genErr.Kind)
	assert.Equal(t, 0, genErr.StatusCode)
}

func TestGenerateQuizTimeout(t *testing.T) {
	provider := &fakeProvider{block: true}
	qg := NewQuizGeneratorWithProvider(provider, AIConfig{APIKey: "k", Timeout: 20 * time.Millisecond})

	_, err := qg.GenerateQuiz(context.Background(), []Image{testImage(t, "a.png")}, 3)
	assert.True(t, IsGenerationKind(err, KindTimeout), "got %v", err)
	assert.Equal(t, "The AI took too long to answer. Please try again.", UserMessage(err))
}

func TestNewQuizGeneratorProviders(t *testing.T) {
	qg, err := NewQuizGenerator(AIConfig{Provider: "gemini", APIKey: "k"})
	require.NoError(t, err)
	assert.Equal(t, ProviderGemini, qg.provider.Name())

	qg, err = NewQuizGenerator(AIConfig{Provider: "OpenAI", APIKey: "k", Model: DefaultGeminiModel})
	require.NoError(t, err)
	require.Equal(t, ProviderOpenAI, qg.provider.Name())
	assert.Equal(t, DefaultOpenAIModel, qg.provider.(*OpenAIProvider).model)

	_, err = NewQuizGenerator(AIConfig{Provider: "claude"})
	assert.Error(t, err)
}

func TestGeminiProviderGenerate(t *testing.T) {
	var got geminiRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1beta/models/test-model:generateContent", r.URL.Path)
		assert.Equal(t, "secret", r.Header.Get("x-goog-api-key"))

		body, _ := io.ReadAll(r.Body)
		assert.NoError(t, json.Unmarshal(body, &got))

		resp := map[string]interface{}{
			"candidates": []interface{}{
				map[string]interface{}{
					"content": map[string]interface{}{
						"parts": []interface{}{
							map[string]interface{}{"text": quizJSON(validItem, validItem, validItem)},
						},
					},
					"finishReason": "STOP",
				},
			},
		}
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	provider := NewGeminiProvider("secret", "test-model", server.URL)
	qg := NewQuizGeneratorWithProvider(provider, AIConfig{APIKey: "secret"})

	images := []Image{testImage(t, "a.png"), testImage(t, "b.png")}
	questions, err := qg.GenerateQuiz(context.Background(), images, 3)
	require.NoError(t, err)
	assert.Len(t, questions, 3)

	require.Len(t, got.Contents, 1)
	parts := got.Contents[0].Parts
	require.Len(t, parts, 3)
	assert.Equal(t, "image/png", parts[0].InlineData.MimeType)
	assert.NotEmpty(t, parts[1].InlineData.Data)
	assert.Nil(t, parts[2].InlineData)
	assert.Contains(t, parts[2].Text, "exactly 3")
	assert.Equal(t, "application/json", got.GenerationConfig.ResponseMimeType)
	assert.Equal(t, "OBJECT", got.GenerationConfig.ResponseSchema["type"])
}

func TestGeminiProviderErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":{"code":429,"message":"Resource has been exhausted","status":"RESOURCE_EXHAUSTED"}}`))
	}))
	defer server.Close()

	qg := NewQuizGeneratorWithProvider(NewGeminiProvider("k", "m", server.URL), AIConfig{APIKey: "k"})
	_, err := qg.GenerateQuiz(context.Background(), []Image{testImage(t, "a.png")}, 3)

	var genErr *GenerationError
	require.True(t, errors.As(err, &genErr))
	assert.Equal(t, KindProviderError, genErr.Kind)
	assert.Equal(t, http.StatusTooManyRequests, genErr.StatusCode)
	assert.Equal(t, "Resource has been exhausted", genErr.Message)
	assert.Equal(t, "The request limit was exceeded. Please wait a moment and try again.", UserMessage(err))
}

func TestGeminiProviderNoCandidates(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"candidates":[]}`))
	}))
	defer server.Close()

	qg := NewQuizGeneratorWithProvider(NewGeminiProvider("k", "m", server.URL), AIConfig{APIKey: "k"})
	_, err := qg.GenerateQuiz(context.Background(), []Image{testImage(t, "a.png")}, 3)
	assert.True(t, IsGenerationKind(err, KindEmptyResponse), "got %v", err)
}

func TestOpenAIProviderGenerate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))

		var req struct {
			ResponseFormat struct {
				Type string `json:"type"`
			} `json:"response_format"`
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "json_schema", req.ResponseFormat.Type)

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"id":     "chatcmpl-1",
			"object": "chat.completion",
			"model":  "gpt-4o",
			"choices": []interface{}{
				map[string]interface{}{
					"index":         0,
					"finish_reason": "stop",
					"message": map[string]interface{}{
						"role":    "assistant",
						"content": quizJSON(validItem, validItem, validItem),
					},
				},
			},
		})
	}))
	defer server.Close()

	provider := NewOpenAIProvider("secret", "gpt-4o", server.URL+"/v1")
	qg := NewQuizGeneratorWithProvider(provider, AIConfig{APIKey: "secret"})

	questions, err := qg.GenerateQuiz(context.Background(), []Image{testImage(t, "a.png")}, 3)
	require.NoError(t, err)
	assert.Len(t, questions, 3)
}

func TestOpenAIProviderErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":{"message":"Incorrect API key provided","type":"invalid_request_error","code":"invalid_api_key"}}`))
	}))
	defer server.Close()

	qg := NewQuizGeneratorWithProvider(NewOpenAIProvider("bad", "gpt-4o", server.URL+"/v1"), AIConfig{APIKey: "bad"})
	_, err := qg.GenerateQuiz(context.Background(), []Image{testImage(t, "a.png")}, 3)

	var genErr *GenerationError
	require.True(t, errors.As(err, &genErr))
	assert.Equal(t, KindProviderError, genErr.Kind)
	assert.Equal(t, http.StatusUnauthorized, genErr.StatusCode)
	assert.Equal(t, "The API key is invalid. Check the configuration.", UserMessage(err))
}
