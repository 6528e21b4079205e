package webtoonquiz

import (
	"context"
	"fmt"
	"time"
)

// State is the screen a session is on.
type State string

const (
	StateIdle       State = "IDLE"
	StateProcessing State = "PROCESSING"
	StateQuiz       State = "QUIZ"
	StateResult     State = "RESULT"
)

// Session is one user's quiz flow. It is a plain value: every command
// returns the next Session and leaves the receiver untouched, so callers
// hold the current value and replace it on success.
type Session struct {
	State         State
	Uploads       ImagePool
	QuestionCount int

	Questions      []QuizQuestion
	CurrentIndex   int
	SelectedOption *int
	Revealed       bool
	Score          int
	FinalScore     int

	// SavedQuizID is set while replaying a stored quiz so the final score
	// can be written back.
	SavedQuizID string
	LastError   string

	// ProcessingSince is when the running generation started.
	ProcessingSince time.Time
}

// NewSession returns an idle session with the default question count.
func NewSession() Session {
	return Session{
		State:         StateIdle,
		QuestionCount: DefaultQuestionCount,
	}
}

func (s Session) require(state State, command string) error {
	if s.State != state {
		return &TransitionError{From: s.State, Command: command}
	}
	return nil
}

// AddImage queues an upload for the next generation.
func (s Session) AddImage(img Image) (Session, error) {
	if err := s.require(StateIdle, "add an image"); err != nil {
		return s, err
	}
	s.Uploads, _ = s.Uploads.Add(img)
	return s, nil
}

// RemoveImage drops an upload by id.
func (s Session) RemoveImage(id string) (Session, error) {
	if err := s.require(StateIdle, "remove an image"); err != nil {
		return s, err
	}
	uploads, ok := s.Uploads.Remove(id)
	if !ok {
		return s, &NotFoundError{Kind: "image", ID: id}
	}
	s.Uploads = uploads
	return s, nil
}

// SetQuestionCount chooses how many questions the next generation asks for.
func (s Session) SetQuestionCount(n int) (Session, error) {
	if err := s.require(StateIdle, "change the question count"); err != nil {
		return s, err
	}
	if n < MinQuestionCount || n > MaxQuestionCount {
		return s, &ValidationError{
			Field:   "question count",
			Message: fmt.Sprintf("The number of questions must be between %d and %d.", MinQuestionCount, MaxQuestionCount),
		}
	}
	s.QuestionCount = n
	return s, nil
}

// StartGeneration moves Idle to Processing. While Processing no other
// command is accepted, so at most one generation runs per session.
func (s Session) StartGeneration() (Session, error) {
	if err := s.require(StateIdle, "start generation"); err != nil {
		return s, err
	}
	if s.Uploads.IsEmpty() {
		return s, &ValidationError{Field: "images", Message: "Upload at least one screenshot first."}
	}
	s.State = StateProcessing
	s.LastError = ""
	s.ProcessingSince = time.Now()
	return s, nil
}

// ExpireProcessing fails a generation that has been running longer than
// limit at now, keeping the uploads. A stored session can be left in
// Processing when the process handling it dies; this is the way out.
func (s Session) ExpireProcessing(now time.Time, limit time.Duration) (Session, bool) {
	if s.State != StateProcessing || now.Sub(s.ProcessingSince) <= limit {
		return s, false
	}
	return s.FailGeneration(newGenerationError(KindTimeout, "generation started at %s never settled", s.ProcessingSince.Format(time.RFC3339))), true
}

// CompleteGeneration enters the quiz with the generated questions.
func (s Session) CompleteGeneration(questions []QuizQuestion) (Session, error) {
	if err := s.require(StateProcessing, "complete generation"); err != nil {
		return s, err
	}
	if len(questions) == 0 {
		return s.FailGeneration(newGenerationError(KindInvalidShape, "provider returned no questions")), nil
	}
	s.SavedQuizID = ""
	return s.begin(questions), nil
}

// FailGeneration returns to Idle keeping the uploads so the user can retry.
func (s Session) FailGeneration(err error) Session {
	if s.State != StateProcessing {
		return s
	}
	s.State = StateIdle
	s.LastError = UserMessage(err)
	s.ProcessingSince = time.Time{}
	return s
}

// RunGeneration drives a full Idle -> Processing -> Quiz|Idle cycle with
// maker. The returned error is the generation failure, if any; the
// returned session already reflects it.
func RunGeneration(ctx context.Context, s Session, maker QuizMaker) (Session, error) {
	s, err := s.StartGeneration()
	if err != nil {
		return s, err
	}

	questions, err := maker.GenerateQuiz(ctx, s.Uploads.Items, s.QuestionCount)
	if err != nil {
		return s.FailGeneration(err), err
	}

	next, err := s.CompleteGeneration(questions)
	if err != nil {
		return s.FailGeneration(err), err
	}
	if next.State != StateQuiz {
		return next, newGenerationError(KindInvalidShape, "provider returned no questions")
	}
	return next, nil
}

// StartSaved replays a stored quiz from Idle or Result.
func (s Session) StartSaved(quizID string, questions []QuizQuestion) (Session, error) {
	if s.State != StateIdle && s.State != StateResult {
		return s, &TransitionError{From: s.State, Command: "play a saved quiz"}
	}
	if len(questions) == 0 {
		return s, &ValidationError{Field: "questions", Message: "The saved quiz has no questions."}
	}
	s.SavedQuizID = quizID
	s.LastError = ""
	return s.begin(questions), nil
}

// MarkSaved links the current question list to a stored quiz so later
// results are written back to it.
func (s Session) MarkSaved(quizID string) Session {
	if s.State == StateQuiz || s.State == StateResult {
		s.SavedQuizID = quizID
	}
	return s
}

func (s Session) begin(questions []QuizQuestion) Session {
	s.State = StateQuiz
	s.Questions = questions
	s.CurrentIndex = 0
	s.SelectedOption = nil
	s.Revealed = false
	s.Score = 0
	s.FinalScore = 0
	s.ProcessingSince = time.Time{}
	return s
}

// Current returns the question on screen.
func (s Session) Current() (QuizQuestion, bool) {
	if s.State != StateQuiz || s.CurrentIndex >= len(s.Questions) {
		return QuizQuestion{}, false
	}
	return s.Questions[s.CurrentIndex], true
}

// SelectOption answers the current question. Only the first selection per
// question counts; later calls return the session unchanged.
func (s Session) SelectOption(option int) (Session, error) {
	if err := s.require(StateQuiz, "select an option"); err != nil {
		return s, err
	}
	if s.SelectedOption != nil {
		VerboseLog("Question %d already answered, ignoring option %d", s.CurrentIndex+1, option)
		return s, nil
	}
	if option < 0 || option >= OptionCount {
		return s, &ValidationError{Field: "option", Message: fmt.Sprintf("Option %d does not exist.", option+1)}
	}

	selected := option
	s.SelectedOption = &selected
	s.Revealed = true
	if option == s.Questions[s.CurrentIndex].CorrectIndex {
		s.Score++
	}
	return s, nil
}

// IsLast reports whether the current question is the final one.
func (s Session) IsLast() bool {
	return s.CurrentIndex == len(s.Questions)-1
}

// Advance moves past a revealed question, ending in Result after the last.
func (s Session) Advance() (Session, error) {
	if err := s.require(StateQuiz, "advance"); err != nil {
		return s, err
	}
	if !s.Revealed {
		return s, &ValidationError{Field: "option", Message: "Choose an answer first."}
	}

	if s.IsLast() {
		s.State = StateResult
		s.FinalScore = s.Score
		return s, nil
	}

	s.CurrentIndex++
	s.SelectedOption = nil
	s.Revealed = false
	return s, nil
}

// Retry replays the same question list from the start.
func (s Session) Retry() (Session, error) {
	if err := s.require(StateResult, "retry"); err != nil {
		return s, err
	}
	return s.begin(s.Questions), nil
}

// Reset discards the quiz and the uploads and returns to Idle.
func (s Session) Reset() (Session, error) {
	if err := s.require(StateResult, "start a new quiz"); err != nil {
		return s, err
	}
	return NewSession(), nil
}

// ResultMessage is the line shown under the final score.
func (s Session) ResultMessage() string {
	total := len(s.Questions)
	switch {
	case s.FinalScore == total:
		return "Perfect! You are a true fan of this webtoon!"
	case s.FinalScore*2 > total:
		return "Great job! You caught the details."
	default:
		return "Not bad! How about rereading the episode and trying again?"
	}
}
