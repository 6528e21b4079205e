package webtoonquiz

import "time"

const (
	// OptionCount is the number of choices every question carries.
	OptionCount = 3

	MinQuestionCount     = 3
	MaxQuestionCount     = 10
	DefaultQuestionCount = 5

	MaxImages = 10
	// MaxImageBytes caps a single uploaded screenshot.
	MaxImageBytes = 10 * 1024 * 1024
)

// QuizQuestion is a validated three-option multiple choice question.
// Values only come out of ParseQuizResponse or the record store, so every
// field is known to be well-formed.
type QuizQuestion struct {
	Question     string              `json:"question"`
	Options      [OptionCount]string `json:"options"`
	CorrectIndex int                 `json:"correctIndex"`
	Explanation  string              `json:"explanation"`
}

// CorrectAnswer returns the text of the correct option.
func (q QuizQuestion) CorrectAnswer() string {
	return q.Options[q.CorrectIndex]
}

// WrongAnswers returns the two incorrect options in their original order.
func (q QuizQuestion) WrongAnswers() []string {
	wrong := make([]string, 0, OptionCount-1)
	for i, option := range q.Options {
		if i != q.CorrectIndex {
			wrong = append(wrong, option)
		}
	}
	return wrong
}

// Image is one uploaded screenshot.
type Image struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	MediaType string `json:"media_type"`
	Hash      string `json:"hash"`
	Data      []byte `json:"-"`
}

// GenerationRequest is what a provider receives for a single generation call
type GenerationRequest struct {
	ID            string
	Images        []Image
	QuestionCount int
	Locale        string
	Prompt        string
}

// Project groups saved quizzes, typically one webtoon title.
type Project struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// SavedQuiz is a question set stored under a project as one episode.
type SavedQuiz struct {
	ID            string         `json:"id"`
	ProjectID     string         `json:"projectId"`
	EpisodeName   string         `json:"episodeName"`
	Questions     []QuizQuestion `json:"questions"`
	QuestionCount int            `json:"questionCount"`
	CreatedAt     time.Time      `json:"createdAt"`
	Score         *int           `json:"score"`
}

// ProjectPatch carries the mutable project fields; nil means unchanged.
type ProjectPatch struct {
	Name *string
}

// QuizPatch carries the mutable saved quiz fields; nil means unchanged.
type QuizPatch struct {
	EpisodeName *string
	Score       *int
}
