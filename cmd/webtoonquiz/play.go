package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"webtoonquiz"
)

var optionLabels = []string{"A", "B", "C"}

func playQuiz(session webtoonquiz.Session) webtoonquiz.Session {
	return play(session, os.Stdin, os.Stdout)
}

// play drives the session through the terminal until the player quits
// or input runs out. It returns the last session value.
func play(session webtoonquiz.Session, in io.Reader, out io.Writer) webtoonquiz.Session {
	scanner := bufio.NewScanner(in)

	for {
		for session.State == webtoonquiz.StateQuiz {
			question, _ := session.Current()
			fmt.Fprintf(out, "Question %d/%d:\n", session.CurrentIndex+1, len(session.Questions))
			fmt.Fprintf(out, "%s\n\n", question.Question)
			for i, option := range question.Options {
				fmt.Fprintf(out, "%s) %s\n", optionLabels[i], option)
			}
			fmt.Fprintln(out)

			answer, ok := readChoice(scanner, out, "Your answer (A/B/C): ", "ABC")
			if !ok {
				return session
			}

			next, err := session.SelectOption(answer)
			if err != nil {
				fmt.Fprintln(out, webtoonquiz.UserMessage(err))
				continue
			}
			session = next

			if answer == question.CorrectIndex {
				fmt.Fprintln(out, "✅ Correct!")
			} else {
				fmt.Fprintf(out, "❌ Incorrect. The correct answer is %s) %s\n",
					optionLabels[question.CorrectIndex], question.CorrectAnswer())
			}
			if question.Explanation != "" {
				fmt.Fprintf(out, "💡 Explanation: %s\n", question.Explanation)
			}
			fmt.Fprintf(out, "📊 Score: %d/%d\n\n", session.Score, session.CurrentIndex+1)
			fmt.Fprintln(out, strings.Repeat("─", 50))
			fmt.Fprintln(out)

			if session, err = session.Advance(); err != nil {
				fmt.Fprintln(out, webtoonquiz.UserMessage(err))
				return session
			}
		}

		fmt.Fprintln(out, "🎉 Quiz completed!")
		fmt.Fprintf(out, "🏆 Final score: %d/%d\n", session.FinalScore, len(session.Questions))
		fmt.Fprintln(out, session.ResultMessage())
		fmt.Fprintln(out)

		choice, ok := readChoice(scanner, out, "Try again? (Y/N): ", "YN")
		if !ok || choice == 1 {
			return session
		}
		retried, err := session.Retry()
		if err != nil {
			fmt.Fprintln(out, webtoonquiz.UserMessage(err))
			return session
		}
		session = retried
	}
}

// readChoice prompts until the player types one of the letters in valid
// and returns its index. ok is false once input is exhausted.
func readChoice(scanner *bufio.Scanner, out io.Writer, prompt, valid string) (int, bool) {
	for {
		fmt.Fprint(out, prompt)
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return 0, false
		}
		answer := strings.ToUpper(strings.TrimSpace(scanner.Text()))
		if len(answer) == 1 {
			if i := strings.Index(valid, answer); i >= 0 {
				return i, true
			}
		}
		fmt.Fprintf(out, "Please enter one of %s\n", strings.Join(strings.Split(valid, ""), ", "))
	}
}
