package webtoonquiz

import (
	"errors"
	"fmt"
)

// ValidationError reports caller input that violates a precondition.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// NotFoundError reports an id that does not resolve in the record store.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Kind, e.ID)
}

// StorageError reports that the persistence medium rejected a read or write.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s failed: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// TransitionError reports a session command issued in a state that does not accept it.
type TransitionError struct {
	From    State
	Command string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot %s while %s", e.Command, e.From)
}

// GenerationErrorKind classifies generation failures.
type GenerationErrorKind string

const (
	KindNoImages             GenerationErrorKind = "no_images"
	KindTooManyImages        GenerationErrorKind = "too_many_images"
	KindInvalidQuestionCount GenerationErrorKind = "invalid_question_count"
	KindMissingCredential    GenerationErrorKind = "missing_credential"
	KindInvalidImage         GenerationErrorKind = "invalid_image"
	KindProviderError        GenerationErrorKind = "provider_error"
	KindEmptyResponse        GenerationErrorKind = "empty_response"
	KindMalformedResponse    GenerationErrorKind = "malformed_response"
	KindInvalidShape         GenerationErrorKind = "invalid_shape"
	KindInvalidQuestion      GenerationErrorKind = "invalid_question"
	KindTimeout              GenerationErrorKind = "timeout"
)

// GenerationError is returned by every failing generation call.
// StatusCode is set for KindProviderError (0 when no response arrived),
// Index and Field for KindInvalidQuestion and KindInvalidImage.
type GenerationError struct {
	Kind       GenerationErrorKind
	StatusCode int
	Index      int
	Field      string
	Message    string
	Err        error
}

func (e *GenerationError) Error() string {
	msg := string(e.Kind)
	switch e.Kind {
	case KindProviderError:
		if e.StatusCode != 0 {
			msg = fmt.Sprintf("%s (status %d)", msg, e.StatusCode)
		}
	case KindInvalidQuestion, KindInvalidImage:
		msg = fmt.Sprintf("%s at index %d (%s)", msg, e.Index, e.Field)
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *GenerationError) Unwrap() error {
	return e.Err
}

func newGenerationError(kind GenerationErrorKind, format string, args ...interface{}) *GenerationError {
	return &GenerationError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// IsGenerationKind reports whether err is a GenerationError of the given kind.
func IsGenerationKind(err error, kind GenerationErrorKind) bool {
	var genErr *GenerationError
	return errors.As(err, &genErr) && genErr.Kind == kind
}

// IsNotFound reports whether err is a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// IsValidation reports whether err is a ValidationError or a TransitionError.
func IsValidation(err error) bool {
	var ve *ValidationError
	var te *TransitionError
	return errors.As(err, &ve) || errors.As(err, &te)
}

// UserMessage turns any error from this package into a message fit for
// showing to the person using the app.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}

	var genErr *GenerationError
	if errors.As(err, &genErr) {
		return generationMessage(genErr)
	}

	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve.Message
	}

	var nf *NotFoundError
	if errors.As(err, &nf) {
		return fmt.Sprintf("The %s could not be found.", nf.Kind)
	}

	var se *StorageError
	if errors.As(err, &se) {
		return "Saving failed. Local storage may be full or unavailable."
	}

	var te *TransitionError
	if errors.As(err, &te) {
		return "That action is not available right now."
	}

	return "Something went wrong. Please try again."
}

func generationMessage(e *GenerationError) string {
	switch e.Kind {
	case KindNoImages:
		return "Upload at least one screenshot first."
	case KindTooManyImages:
		return fmt.Sprintf("You can upload at most %d images.", MaxImages)
	case KindInvalidQuestionCount:
		return fmt.Sprintf("The number of questions must be between %d and %d.", MinQuestionCount, MaxQuestionCount)
	case KindMissingCredential:
		return "The API key is not configured. Set GEMINI_API_KEY and restart."
	case KindInvalidImage:
		return fmt.Sprintf("Image %d could not be processed.", e.Index+1)
	case KindProviderError:
		return providerStatusMessage(e.StatusCode)
	case KindEmptyResponse:
		return "The AI returned no answer. Please try again."
	case KindMalformedResponse, KindInvalidShape:
		return "The AI response was not in the expected format. Please try again."
	case KindInvalidQuestion:
		return fmt.Sprintf("Question %d in the AI response was invalid (%s). Please try again.", e.Index+1, e.Field)
	case KindTimeout:
		return "The AI took too long to answer. Please try again."
	}
	return "Quiz generation failed. Please try again."
}

func providerStatusMessage(status int) string {
	switch {
	case status == 400:
		return "The request was rejected. Check the image format."
	case status == 401:
		return "The API key is invalid. Check the configuration."
	case status == 403:
		return "Access to the API was denied. Check the API key permissions."
	case status == 429:
		return "The request limit was exceeded. Please wait a moment and try again."
	case status >= 500:
		return "The AI service is having problems. Please try again later."
	case status == 0:
		return "Could not reach the AI service. Check the network connection."
	}
	return fmt.Sprintf("The AI service returned an error (status %d).", status)
}
