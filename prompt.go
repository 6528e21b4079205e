package webtoonquiz

import (
	"fmt"
	"strings"
)

const systemPrompt = "You are an expert at analysing webtoon content and writing educational quizzes. " +
	"You read every panel, speech bubble and narration box, and write questions that check whether a reader really understood the episode."

func buildPrompt(questionCount int, locale string) string {
	var sb strings.Builder

	sb.WriteString("Analyse the attached webtoon screenshots and write ")
	sb.WriteString(fmt.Sprintf("exactly %d multiple choice questions with exactly %d options each.\n\n", questionCount, OptionCount))

	sb.WriteString("Process:\n")
	sb.WriteString("1. Extract all text from speech bubbles, narration boxes and on-screen lettering (OCR).\n")
	sb.WriteString("2. Note visual cues: facial expressions, gestures, backgrounds, important objects.\n")
	sb.WriteString("3. Work out the story context, character relationships, the setting and cause and effect between panels.\n")
	sb.WriteString("4. Use every screenshot, not only the first one.\n\n")

	sb.WriteString("Question mix:\n")
	sb.WriteString("- About 30% factual questions about explicitly shown information\n")
	sb.WriteString("- About 40% inference questions about implied events or causes\n")
	sb.WriteString("- About 30% interpretation questions about motives, themes or symbols\n\n")

	sb.WriteString("Requirements:\n")
	sb.WriteString(fmt.Sprintf("- Write every question, option and explanation in %s\n", locale))
	sb.WriteString(fmt.Sprintf("- Each question must have exactly %d options\n", OptionCount))
	sb.WriteString(fmt.Sprintf("- correctIndex is the 0-based index of the correct option (0 to %d)\n", OptionCount-1))
	sb.WriteString("- The correct answer must be verifiable from the screenshots, not from general knowledge\n")
	sb.WriteString("- Wrong options should be plausible but clearly wrong\n")
	sb.WriteString("- Each question must be answerable on its own\n")
	sb.WriteString("- The explanation says why the answer is correct and where in the screenshots it can be found\n")
	sb.WriteString("- If the screenshots contain little or no text, build questions from the visual content\n\n")

	sb.WriteString("Return a JSON object of the form ")
	sb.WriteString(`{"quiz":[{"question":"...","options":["...","...","..."],"correctIndex":0,"explanation":"..."}]}`)
	sb.WriteString("\n")

	return sb.String()
}
