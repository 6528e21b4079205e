package webtoonquiz

import (
	"bytes"
	"context"
	"io"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// ExportHeader is the first row of every quiz table.
var ExportHeader = []string{
	"Question#",
	"Question",
	"Option1",
	"Option2",
	"Option3",
	"CorrectAnswer",
	"WrongAnswer1",
	"WrongAnswer2",
	"Explanation",
}

// FormatQuizRows lays out one quiz as a header row plus a row per question.
func FormatQuizRows(quiz SavedQuiz) [][]string {
	return questionRows(quiz.Questions)
}

func questionRows(questions []QuizQuestion) [][]string {
	rows := make([][]string, 0, len(questions)+1)
	rows = append(rows, append([]string(nil), ExportHeader...))

	for i, q := range questions {
		wrong := q.WrongAnswers()
		row := []string{
			strconv.Itoa(i + 1),
			q.Question,
			q.Options[0],
			q.Options[1],
			q.Options[2],
			q.CorrectAnswer(),
			"",
			"",
			q.Explanation,
		}
		// wrong always has OptionCount-1 entries for a valid question
		copy(row[6:8], wrong)
		rows = append(rows, row)
	}
	return rows
}

// FormatProjectSections concatenates quiz tables in the order given, each
// preceded by an episode header and a blank row and followed by two blank
// rows.
func FormatProjectSections(quizzes []SavedQuiz) [][]string {
	var rows [][]string
	for _, quiz := range quizzes {
		header := "=== " + quiz.EpisodeName + " (" + quiz.CreatedAt.UTC().Format("2006-01-02") + ") ==="
		rows = append(rows, []string{header}, []string{})
		rows = append(rows, FormatQuizRows(quiz)...)
		rows = append(rows, []string{}, []string{})
	}
	return rows
}

// FormatProjectRows returns the export table for every quiz of a project,
// newest quiz first.
func (rs *RecordStore) FormatProjectRows(ctx context.Context, projectID string) ([][]string, error) {
	quizzes, err := rs.ListQuizzes(ctx, projectID)
	if err != nil {
		return nil, err
	}
	return FormatProjectSections(quizzes), nil
}

const utf8BOM = "\uFEFF"

// WriteCSV writes rows as comma separated text with a leading byte order
// mark. Only cells containing a comma, a quote or a line break are quoted.
func WriteCSV(w io.Writer, rows [][]string) error {
	var buf bytes.Buffer
	buf.WriteString(utf8BOM)
	for _, row := range rows {
		for i, cell := range row {
			if i > 0 {
				buf.WriteByte(',')
			}
			buf.WriteString(csvCell(cell))
		}
		buf.WriteString("\r\n")
	}
	_, err := w.Write(buf.Bytes())
	return err
}

// EncodeCSV is WriteCSV into a byte slice.
func EncodeCSV(rows [][]string) []byte {
	var buf bytes.Buffer
	// writes to a bytes.Buffer cannot fail
	_ = WriteCSV(&buf, rows)
	return buf.Bytes()
}

func csvCell(cell string) string {
	if !strings.ContainsAny(cell, ",\"\n\r") {
		return cell
	}
	return `"` + strings.ReplaceAll(cell, `"`, `""`) + `"`
}

var unsafeFileChars = regexp.MustCompile(`[\\/:*?"<>|\s]+`)

// ExportFileName builds a download name like "Title_Episode_3_2026-10-17.csv".
// Characters that are not allowed in file names are replaced.
func ExportFileName(date time.Time, parts ...string) string {
	names := make([]string, 0, len(parts)+1)
	for _, part := range parts {
		part = strings.Trim(unsafeFileChars.ReplaceAllString(part, "_"), "_")
		if part != "" {
			names = append(names, part)
		}
	}
	if len(names) == 0 {
		names = append(names, "quiz")
	}
	names = append(names, date.Format("2006-01-02"))
	return strings.Join(names, "_") + ".csv"
}
