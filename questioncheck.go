package webtoonquiz

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
)

// ParseQuizResponse turns the provider's text payload into questions.
// Either every element is well-formed and the whole list is returned, or
// the first bad element aborts the call. A length different from
// requested is tolerated and only logged.
func ParseQuizResponse(text string, requested int) ([]QuizQuestion, error) {
	if strings.TrimSpace(text) == "" {
		return nil, newGenerationError(KindEmptyResponse, "response text is empty")
	}

	if !json.Valid([]byte(text)) {
		return nil, &GenerationError{Kind: KindMalformedResponse, Message: "response text is not valid JSON: " + preview(text, 200)}
	}

	var envelope map[string]json.RawMessage
	if err := json.Unmarshal([]byte(text), &envelope); err != nil {
		return nil, &GenerationError{Kind: KindInvalidShape, Message: "response is not a JSON object", Err: err}
	}

	rawQuiz, ok := envelope["quiz"]
	if !ok {
		return nil, newGenerationError(KindInvalidShape, "response has no quiz array")
	}

	var items []json.RawMessage
	if err := json.Unmarshal(rawQuiz, &items); err != nil || items == nil {
		return nil, newGenerationError(KindInvalidShape, "quiz is not an array")
	}

	if len(items) != requested {
		Log.Sugar().Warnf("Requested %d questions but provider returned %d", requested, len(items))
		countMismatches.Inc()
	}

	questions := make([]QuizQuestion, 0, len(items))
	for i, item := range items {
		question, err := checkQuestion(i, item)
		if err != nil {
			return nil, err
		}
		questions = append(questions, question)
	}

	VerboseLog("Parsed %d questions from provider response", len(questions))
	return questions, nil
}

func checkQuestion(index int, item json.RawMessage) (QuizQuestion, error) {
	invalid := func(field, format string, args ...interface{}) error {
		return &GenerationError{
			Kind:    KindInvalidQuestion,
			Index:   index,
			Field:   field,
			Message: fmt.Sprintf(format, args...),
		}
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(item, &fields); err != nil || fields == nil {
		return QuizQuestion{}, invalid("item", "element is not an object")
	}

	var q QuizQuestion

	text, ok := decodeText(fields["question"])
	if !ok {
		return QuizQuestion{}, invalid("question", "question must be non-empty text")
	}
	q.Question = text

	var options []json.RawMessage
	if err := json.Unmarshal(orNull(fields["options"]), &options); err != nil || len(options) != OptionCount {
		return QuizQuestion{}, invalid("options", "options must be an array of exactly %d strings", OptionCount)
	}
	for j, raw := range options {
		option, ok := decodeText(raw)
		if !ok {
			return QuizQuestion{}, invalid(fmt.Sprintf("options[%d]", j), "option must be non-empty text")
		}
		q.Options[j] = option
	}

	var idx float64
	rawIndex := orNull(fields["correctIndex"])
	if err := json.Unmarshal(rawIndex, &idx); err != nil || strings.TrimSpace(string(rawIndex)) == "null" ||
		idx != math.Trunc(idx) || idx < 0 || idx >= OptionCount {
		return QuizQuestion{}, invalid("correctIndex", "correctIndex must be an integer between 0 and %d", OptionCount-1)
	}
	q.CorrectIndex = int(idx)

	explanation, ok := decodeText(fields["explanation"])
	if !ok {
		return QuizQuestion{}, invalid("explanation", "explanation must be non-empty text")
	}
	q.Explanation = explanation

	return q, nil
}

// ValidateQuestion applies the same rules to an already typed question,
// used for data that arrives from outside a provider response.
func ValidateQuestion(index int, q QuizQuestion) error {
	field := ""
	switch {
	case strings.TrimSpace(q.Question) == "":
		field = "question"
	case q.CorrectIndex < 0 || q.CorrectIndex >= OptionCount:
		field = "correctIndex"
	case strings.TrimSpace(q.Explanation) == "":
		field = "explanation"
	}
	for j, option := range q.Options {
		if field == "" && strings.TrimSpace(option) == "" {
			field = fmt.Sprintf("options[%d]", j)
		}
	}
	if field != "" {
		return &GenerationError{Kind: KindInvalidQuestion, Index: index, Field: field, Message: "question is malformed"}
	}
	return nil
}

func decodeText(raw json.RawMessage) (string, bool) {
	if raw == nil {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", false
	}
	if strings.TrimSpace(s) == "" {
		return "", false
	}
	return s, true
}

func orNull(raw json.RawMessage) json.RawMessage {
	if raw == nil {
		return json.RawMessage("null")
	}
	return raw
}

func preview(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
