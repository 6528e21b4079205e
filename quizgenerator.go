package webtoonquiz

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Provider sends one generation request to an external multimodal model
// and returns the generated text blob, or "" when the answer carried none.
type Provider interface {
	Name() string
	Generate(ctx context.Context, req GenerationRequest) (string, error)
}

// QuizMaker is what the session needs from a generator.
type QuizMaker interface {
	GenerateQuiz(ctx context.Context, images []Image, questionCount int) ([]QuizQuestion, error)
}

// QuizGenerator validates generation input, calls the provider once and
// turns its answer into questions. It never retries.
type QuizGenerator struct {
	provider    Provider
	apiKey      string
	locale      string
	timeout     time.Duration
	transcripts *TranscriptLogger
}

// NewQuizGenerator builds a generator for the provider named in cfg.
func NewQuizGenerator(cfg AIConfig) (*QuizGenerator, error) {
	var provider Provider
	switch strings.ToLower(cfg.Provider) {
	case "", ProviderGemini:
		provider = NewGeminiProvider(cfg.APIKey, cfg.Model, cfg.BaseURL)
	case ProviderOpenAI:
		model := cfg.Model
		if model == DefaultGeminiModel {
			model = DefaultOpenAIModel
		}
		provider = NewOpenAIProvider(cfg.APIKey, model, cfg.BaseURL)
	default:
		return nil, fmt.Errorf("unknown AI provider %q", cfg.Provider)
	}
	return NewQuizGeneratorWithProvider(provider, cfg), nil
}

// NewQuizGeneratorWithProvider builds a generator around an existing provider.
func NewQuizGeneratorWithProvider(provider Provider, cfg AIConfig) *QuizGenerator {
	locale := cfg.Locale
	if locale == "" {
		locale = "Korean"
	}
	return &QuizGenerator{
		provider: provider,
		apiKey:   cfg.APIKey,
		locale:   locale,
		timeout:  cfg.Timeout,
	}
}

// SetTranscriptLogger makes every call write a transcript.
func (qg *QuizGenerator) SetTranscriptLogger(tl *TranscriptLogger) {
	qg.transcripts = tl
}

func (qg *QuizGenerator) checkPreconditions(images []Image, questionCount int) error {
	if len(images) == 0 {
		return newGenerationError(KindNoImages, "no images were provided")
	}
	if len(images) > MaxImages {
		return newGenerationError(KindTooManyImages, "%d images given, at most %d allowed", len(images), MaxImages)
	}
	if questionCount < MinQuestionCount || questionCount > MaxQuestionCount {
		return newGenerationError(KindInvalidQuestionCount, "question count %d is outside %d-%d", questionCount, MinQuestionCount, MaxQuestionCount)
	}
	if strings.TrimSpace(qg.apiKey) == "" {
		return newGenerationError(KindMissingCredential, "no API key configured")
	}
	for i, img := range images {
		if len(img.Data) == 0 {
			return &GenerationError{Kind: KindInvalidImage, Index: i, Field: "data", Message: "image is empty"}
		}
		if !strings.HasPrefix(img.MediaType, "image/") {
			return &GenerationError{Kind: KindInvalidImage, Index: i, Field: "media_type", Message: fmt.Sprintf("%q is not an image type", img.MediaType)}
		}
	}
	return nil
}

// GenerateQuiz asks the provider for questionCount questions about images.
func (qg *QuizGenerator) GenerateQuiz(ctx context.Context, images []Image, questionCount int) ([]QuizQuestion, error) {
	if err := qg.checkPreconditions(images, questionCount); err != nil {
		Log.Sugar().Warnf("Rejected generation request: %v", err)
		generationsTotal.WithLabelValues(qg.provider.Name(), outcomeLabel(err)).Inc()
		return nil, err
	}

	req := GenerationRequest{
		ID:            uuid.NewString(),
		Images:        images,
		QuestionCount: questionCount,
		Locale:        qg.locale,
		Prompt:        buildPrompt(questionCount, qg.locale),
	}

	Log.Sugar().Infof("Generating %d questions from %d images (generation %s, provider %s)",
		questionCount, len(images), req.ID, qg.provider.Name())

	if qg.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, qg.timeout)
		defer cancel()
	}

	transcript := qg.transcripts.Start(qg.provider.Name(), req)
	start := time.Now()

	questions, err := qg.generate(ctx, req, transcript)

	generationDuration.WithLabelValues(qg.provider.Name()).Observe(time.Since(start).Seconds())
	generationsTotal.WithLabelValues(qg.provider.Name(), outcomeLabel(err)).Inc()
	transcript.Finish(len(questions), err)

	if err != nil {
		Log.Sugar().Errorf("Generation %s failed after %s: %v", req.ID, time.Since(start).Round(time.Millisecond), err)
		return nil, err
	}

	Log.Sugar().Infof("Generation %s complete: %d questions in %s", req.ID, len(questions), time.Since(start).Round(time.Millisecond))
	return questions, nil
}

func (qg *QuizGenerator) generate(ctx context.Context, req GenerationRequest, transcript *Transcript) ([]QuizQuestion, error) {
	text, err := qg.provider.Generate(ctx, req)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
			return nil, &GenerationError{Kind: KindTimeout, Message: "provider did not answer in time", Err: err}
		}
		var genErr *GenerationError
		if errors.As(err, &genErr) {
			return nil, err
		}
		return nil, &GenerationError{Kind: KindProviderError, Message: "provider call failed", Err: err}
	}

	transcript.Response(text)
	return ParseQuizResponse(text, req.QuestionCount)
}
