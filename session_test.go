package webtoonquiz

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeMaker struct {
	questions []QuizQuestion
	err       error
	gotCount  int
	gotImages int
}

func (m *fakeMaker) GenerateQuiz(_ context.Context, images []Image, count int) ([]QuizQuestion, error) {
	m.gotCount = count
	m.gotImages = len(images)
	return m.questions, m.err
}

func idleWithImage(t *testing.T) Session {
	t.Helper()
	s, err := NewSession().AddImage(testImage(t, "a.png"))
	require.NoError(t, err)
	return s
}

func startQuiz(t *testing.T, questions []QuizQuestion) Session {
	t.Helper()
	s, err := RunGeneration(context.Background(), idleWithImage(t), &fakeMaker{questions: questions})
	require.NoError(t, err)
	require.Equal(t, StateQuiz, s.State)
	return s
}

// playThrough answers every question with pick(question) and advances.
func playThrough(t *testing.T, s Session, pick func(QuizQuestion) int) Session {
	t.Helper()
	for s.State == StateQuiz {
		q, ok := s.Current()
		require.True(t, ok)
		var err error
		s, err = s.SelectOption(pick(q))
		require.NoError(t, err)
		s, err = s.Advance()
		require.NoError(t, err)
	}
	return s
}

func TestNewSession(t *testing.T) {
	s := NewSession()
	assert.Equal(t, StateIdle, s.State)
	assert.Equal(t, DefaultQuestionCount, s.QuestionCount)
	assert.True(t, s.Uploads.IsEmpty())
}

func TestStartGenerationRequiresImages(t *testing.T) {
	s := NewSession()
	next, err := s.StartGeneration()
	require.Error(t, err)
	assert.True(t, IsValidation(err))
	assert.Equal(t, StateIdle, next.State)
}

func TestSetQuestionCount(t *testing.T) {
	s := NewSession()

	next, err := s.SetQuestionCount(MaxQuestionCount)
	require.NoError(t, err)
	assert.Equal(t, MaxQuestionCount, next.QuestionCount)
	assert.Equal(t, DefaultQuestionCount, s.QuestionCount, "receiver must not change")

	for _, n := range []int{2, 11} {
		_, err := s.SetQuestionCount(n)
		assert.True(t, IsValidation(err))
	}
}

func TestUploadsDeduplicateAndRemove(t *testing.T) {
	img := testImage(t, "a.png")
	s, err := NewSession().AddImage(img)
	require.NoError(t, err)
	s, err = s.AddImage(img)
	require.NoError(t, err)
	assert.Equal(t, 1, s.Uploads.Size())

	s, err = s.RemoveImage(img.ID)
	require.NoError(t, err)
	assert.True(t, s.Uploads.IsEmpty())

	_, err = s.RemoveImage("missing")
	assert.True(t, IsNotFound(err))
}

func TestProcessingRejectsOtherCommands(t *testing.T) {
	s, err := idleWithImage(t).StartGeneration()
	require.NoError(t, err)
	require.Equal(t, StateProcessing, s.State)

	_, err = s.StartGeneration()
	assert.True(t, IsValidation(err))
	_, err = s.AddImage(testImage(t, "b.png"))
	assert.True(t, IsValidation(err))
	_, err = s.SetQuestionCount(4)
	assert.True(t, IsValidation(err))
	_, err = s.SelectOption(0)
	assert.True(t, IsValidation(err))
}

func TestRunGenerationSuccess(t *testing.T) {
	maker := &fakeMaker{questions: sampleQuestions(3)}
	s, err := idleWithImage(t).SetQuestionCount(3)
	require.NoError(t, err)

	s, err = RunGeneration(context.Background(), s, maker)
	require.NoError(t, err)

	assert.Equal(t, 3, maker.gotCount)
	assert.Equal(t, 1, maker.gotImages)
	assert.Equal(t, StateQuiz, s.State)
	assert.Equal(t, 0, s.CurrentIndex)
	assert.Equal(t, 0, s.Score)
	assert.Nil(t, s.SelectedOption)
	assert.False(t, s.Revealed)
}

func TestRunGenerationFailureKeepsImages(t *testing.T) {
	genErr := &GenerationError{Kind: KindProviderError, StatusCode: 503}
	s, err := RunGeneration(context.Background(), idleWithImage(t), &fakeMaker{err: genErr})

	require.Error(t, err)
	assert.True(t, errors.Is(err, genErr))
	assert.Equal(t, StateIdle, s.State)
	assert.Equal(t, 1, s.Uploads.Size())
	assert.Equal(t, "The AI service is having problems. Please try again later.", s.LastError)
}

func TestRunGenerationEmptyResultFails(t *testing.T) {
	s, err := RunGeneration(context.Background(), idleWithImage(t), &fakeMaker{})
	require.Error(t, err)
	assert.Equal(t, StateIdle, s.State)
	assert.Equal(t, 1, s.Uploads.Size())
}

func TestSelectOptionIsIdempotent(t *testing.T) {
	questions := sampleQuestions(2)
	s := startQuiz(t, questions)
	correct := questions[0].CorrectIndex
	wrong := (correct + 1) % OptionCount

	s, err := s.SelectOption(correct)
	require.NoError(t, err)
	assert.Equal(t, 1, s.Score)
	assert.True(t, s.Revealed)

	again, err := s.SelectOption(wrong)
	require.NoError(t, err)
	assert.Equal(t, s, again)

	again, err = again.SelectOption(correct)
	require.NoError(t, err)
	assert.Equal(t, 1, again.Score)
}

func TestSelectOptionOutOfRange(t *testing.T) {
	s := startQuiz(t, sampleQuestions(1))
	_, err := s.SelectOption(OptionCount)
	assert.True(t, IsValidation(err))
}

func TestAdvanceRequiresReveal(t *testing.T) {
	s := startQuiz(t, sampleQuestions(2))
	_, err := s.Advance()
	assert.True(t, IsValidation(err))
}

func TestAdvanceMovesToNextQuestion(t *testing.T) {
	s := startQuiz(t, sampleQuestions(2))
	s, err := s.SelectOption(0)
	require.NoError(t, err)
	s, err = s.Advance()
	require.NoError(t, err)

	assert.Equal(t, StateQuiz, s.State)
	assert.Equal(t, 1, s.CurrentIndex)
	assert.Nil(t, s.SelectedOption)
	assert.False(t, s.Revealed)
}

func TestAllCorrectAndAllWrongScores(t *testing.T) {
	questions := sampleQuestions(5)

	s := playThrough(t, startQuiz(t, questions), func(q QuizQuestion) int { return q.CorrectIndex })
	assert.Equal(t, StateResult, s.State)
	assert.Equal(t, len(questions), s.FinalScore)
	assert.Equal(t, "Perfect! You are a true fan of this webtoon!", s.ResultMessage())

	s = playThrough(t, startQuiz(t, questions), func(q QuizQuestion) int { return (q.CorrectIndex + 1) % OptionCount })
	assert.Equal(t, 0, s.FinalScore)
	assert.Equal(t, "Not bad! How about rereading the episode and trying again?", s.ResultMessage())
}

func TestRetryReplaysSameQuestions(t *testing.T) {
	questions := sampleQuestions(3)
	answered := 0
	s := playThrough(t, startQuiz(t, questions), func(q QuizQuestion) int {
		answered++
		if answered == 3 {
			return (q.CorrectIndex + 1) % OptionCount
		}
		return q.CorrectIndex
	})
	require.Equal(t, 2, s.FinalScore)
	assert.Equal(t, "Great job! You caught the details.", s.ResultMessage())

	s, err := s.Retry()
	require.NoError(t, err)
	assert.Equal(t, StateQuiz, s.State)
	assert.Equal(t, 0, s.Score)
	assert.Equal(t, 0, s.CurrentIndex)
	assert.Equal(t, questions, s.Questions)
}

func TestResetClearsEverything(t *testing.T) {
	s, err := idleWithImage(t).SetQuestionCount(3)
	require.NoError(t, err)
	s, err = RunGeneration(context.Background(), s, &fakeMaker{questions: sampleQuestions(3)})
	require.NoError(t, err)
	s = playThrough(t, s, func(QuizQuestion) int { return 0 })

	s, err = s.Reset()
	require.NoError(t, err)
	assert.Equal(t, NewSession(), s)
}

func TestRetryAndResetOnlyFromResult(t *testing.T) {
	s := startQuiz(t, sampleQuestions(1))
	_, err := s.Retry()
	assert.True(t, IsValidation(err))
	_, err = s.Reset()
	assert.True(t, IsValidation(err))
}

func TestStartSaved(t *testing.T) {
	questions := sampleQuestions(2)
	s, err := NewSession().StartSaved("quiz_1", questions)
	require.NoError(t, err)
	assert.Equal(t, StateQuiz, s.State)
	assert.Equal(t, "quiz_1", s.SavedQuizID)

	s = playThrough(t, s, func(q QuizQuestion) int { return q.CorrectIndex })
	assert.Equal(t, "quiz_1", s.SavedQuizID)
	assert.Equal(t, 2, s.FinalScore)

	_, err = NewSession().StartSaved("quiz_2", nil)
	assert.True(t, IsValidation(err))
}

func TestExpireProcessing(t *testing.T) {
	s, err := idleWithImage(t).StartGeneration()
	require.NoError(t, err)
	require.False(t, s.ProcessingSince.IsZero())

	same, expired := s.ExpireProcessing(s.ProcessingSince.Add(time.Minute), 2*time.Minute)
	assert.False(t, expired)
	assert.Equal(t, s, same)

	next, expired := s.ExpireProcessing(s.ProcessingSince.Add(3*time.Minute), 2*time.Minute)
	require.True(t, expired)
	assert.Equal(t, StateIdle, next.State)
	assert.Equal(t, 1, next.Uploads.Size())
	assert.True(t, next.ProcessingSince.IsZero())
	assert.Equal(t, "The AI took too long to answer. Please try again.", next.LastError)

	// a session stored without a start time counts as long expired
	s.ProcessingSince = time.Time{}
	_, expired = s.ExpireProcessing(time.Now(), time.Hour)
	assert.True(t, expired)

	idle, expired := NewSession().ExpireProcessing(time.Now(), 0)
	assert.False(t, expired)
	assert.Equal(t, NewSession(), idle)
}
