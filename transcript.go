package webtoonquiz

import (
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// TranscriptLogger records every provider exchange in its own rotated log
// so prompts and raw answers can be inspected after the fact.
type TranscriptLogger struct {
	log *zap.Logger
}

// NewTranscriptLogger writes JSON lines to path.
func NewTranscriptLogger(path string) *TranscriptLogger {
	writer := zapcore.AddSync(&lumberjack.Logger{
		Filename:   path,
		MaxSize:    50,
		MaxBackups: 10,
		MaxAge:     14,
		Compress:   true,
	})
	core := zapcore.NewCore(zapcore.NewJSONEncoder(encoderConfig()), writer, zap.DebugLevel)
	return &TranscriptLogger{log: zap.New(core)}
}

// NewTranscriptLoggerWith wraps an existing zap logger.
func NewTranscriptLoggerWith(log *zap.Logger) *TranscriptLogger {
	return &TranscriptLogger{log: log}
}

// Transcript is the log of one generation call.
type Transcript struct {
	log     *zap.Logger
	started time.Time
}

// Start opens a transcript for req. The API key never reaches it.
func (tl *TranscriptLogger) Start(provider string, req GenerationRequest) *Transcript {
	if tl == nil {
		return nil
	}
	sizes := make([]int, len(req.Images))
	mediaTypes := make([]string, len(req.Images))
	for i, img := range req.Images {
		sizes[i] = len(img.Data)
		mediaTypes[i] = img.MediaType
	}

	t := &Transcript{
		log:     tl.log.With(zap.String("generation_id", req.ID), zap.String("provider", provider)),
		started: time.Now(),
	}
	t.log.Info("request",
		zap.Int("question_count", req.QuestionCount),
		zap.String("locale", req.Locale),
		zap.Int("image_count", len(req.Images)),
		zap.Ints("image_sizes", sizes),
		zap.Strings("media_types", mediaTypes),
		zap.String("prompt", req.Prompt),
	)
	return t
}

// Response logs the raw text returned by the provider
func (t *Transcript) Response(text string) {
	if t == nil {
		return
	}
	t.log.Info("response", zap.String("text", text), zap.Duration("elapsed", time.Since(t.started)))
}

// Finish logs the outcome and flushes.
func (t *Transcript) Finish(questions int, err error) {
	if t == nil {
		return
	}
	if err != nil {
		t.log.Warn("failed", zap.Error(err), zap.Duration("elapsed", time.Since(t.started)))
	} else {
		t.log.Info("completed", zap.Int("questions", questions), zap.Duration("elapsed", time.Since(t.started)))
	}
	_ = t.log.Sync()
}
