package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"time"

	"webtoonquiz"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/sessions"
	"go.uber.org/zap"
)

type pageData struct {
	Quiz     webtoonquiz.Session
	Flashes  []string
	Question webtoonquiz.QuizQuestion
	Selected int
	Result   string

	Projects        []webtoonquiz.Project
	SelectedProject *webtoonquiz.Project
	SavedQuizzes    []webtoonquiz.SavedQuiz

	MinQuestions int
	MaxQuestions int
	MaxImages    int
}

// session loads the visitor's quiz session, starting a fresh one when the
// stored value is missing or unreadable.
func (s *Server) session(c *gin.Context) (*sessions.Session, webtoonquiz.Session) {
	sess, err := s.store.Get(c.Request, sessionName)
	if err != nil {
		webtoonquiz.Log.Warn("discarding unreadable session", zap.Error(err))
	}
	quiz, ok := sess.Values["quiz"].(webtoonquiz.Session)
	if !ok {
		quiz = webtoonquiz.NewSession()
	}

	if expired, ok := quiz.ExpireProcessing(time.Now(), s.processingLimit()); ok {
		webtoonquiz.Log.Warn("expiring stuck generation",
			zap.Time("processing_since", quiz.ProcessingSince),
			zap.Duration("limit", s.processingLimit()))
		quiz = expired
		s.save(c, sess, quiz)
	}
	return sess, quiz
}

// processingGrace is added to the provider timeout before a session still
// marked as generating is considered abandoned.
const processingGrace = 30 * time.Second

func (s *Server) processingLimit() time.Duration {
	timeout := s.cfg.AI.Timeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return timeout + processingGrace
}

func (s *Server) save(c *gin.Context, sess *sessions.Session, quiz webtoonquiz.Session) error {
	sess.Values["quiz"] = quiz
	if err := sess.Save(c.Request, c.Writer); err != nil {
		webtoonquiz.Log.Error("session save failed", zap.Error(err))
		return err
	}
	return nil
}

// finish stores quiz and sends the browser back to the main page.
func (s *Server) finish(c *gin.Context, sess *sessions.Session, quiz webtoonquiz.Session) {
	if err := s.save(c, sess, quiz); err != nil {
		c.String(http.StatusInternalServerError, "Failed to save session")
		return
	}
	c.Redirect(http.StatusSeeOther, "/")
}

// fail shows err to the visitor on the next page and leaves quiz unchanged.
func (s *Server) fail(c *gin.Context, sess *sessions.Session, quiz webtoonquiz.Session, err error) {
	if webtoonquiz.IsValidation(err) || webtoonquiz.IsNotFound(err) {
		webtoonquiz.VerboseLog("Rejected %s %s: %v", c.Request.Method, c.Request.URL.Path, err)
	} else {
		webtoonquiz.Log.Error("request failed", zap.String("path", c.Request.URL.Path), zap.Error(err))
	}
	sess.AddFlash(webtoonquiz.UserMessage(err))
	s.finish(c, sess, quiz)
}

func (s *Server) render(c *gin.Context, name string, data pageData) {
	var buf bytes.Buffer
	if err := s.templates[name].ExecuteTemplate(&buf, "base.html", data); err != nil {
		webtoonquiz.Log.Error("template error", zap.String("template", name), zap.Error(err))
		c.String(http.StatusInternalServerError, "Template error")
		return
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", buf.Bytes())
}

func (s *Server) handleHome(c *gin.Context) {
	sess, quiz := s.session(c)

	data := pageData{
		Quiz:         quiz,
		Selected:     -1,
		MinQuestions: webtoonquiz.MinQuestionCount,
		MaxQuestions: webtoonquiz.MaxQuestionCount,
		MaxImages:    webtoonquiz.MaxImages,
	}

	if flashes := sess.Flashes(); len(flashes) > 0 {
		for _, f := range flashes {
			if msg, ok := f.(string); ok {
				data.Flashes = append(data.Flashes, msg)
			}
		}
		if err := s.save(c, sess, quiz); err != nil {
			c.String(http.StatusInternalServerError, "Failed to save session")
			return
		}
	}

	if err := s.loadProjects(c, &data); err != nil {
		webtoonquiz.Log.Error("failed to load projects", zap.Error(err))
		data.Flashes = append(data.Flashes, webtoonquiz.UserMessage(err))
	}

	switch quiz.State {
	case webtoonquiz.StateQuiz:
		data.Question, _ = quiz.Current()
		if quiz.SelectedOption != nil {
			data.Selected = *quiz.SelectedOption
		}
		s.render(c, "question", data)
	case webtoonquiz.StateResult:
		data.Result = quiz.ResultMessage()
		s.render(c, "results", data)
	default:
		s.render(c, "home", data)
	}
}

func (s *Server) loadProjects(c *gin.Context, data *pageData) error {
	ctx := c.Request.Context()

	projects, err := s.records.ListProjects(ctx)
	if err != nil {
		return err
	}
	data.Projects = projects

	selected, err := s.records.GetSelectedProject(ctx)
	if err != nil {
		return err
	}
	data.SelectedProject = selected
	if selected == nil {
		return nil
	}

	data.SavedQuizzes, err = s.records.ListQuizzes(ctx, selected.ID)
	return err
}

func (s *Server) handleUpload(c *gin.Context) {
	sess, quiz := s.session(c)

	form, err := c.MultipartForm()
	if err != nil {
		s.fail(c, sess, quiz, &webtoonquiz.ValidationError{Field: "images", Message: "The upload could not be read."})
		return
	}

	for _, header := range form.File["images"] {
		if quiz.Uploads.Size() >= webtoonquiz.MaxImages {
			sess.AddFlash(fmt.Sprintf("You can upload at most %d images.", webtoonquiz.MaxImages))
			break
		}

		img, err := readUpload(header)
		if err != nil {
			sess.AddFlash(webtoonquiz.UserMessage(err))
			continue
		}

		next, err := quiz.AddImage(img)
		if err != nil {
			s.fail(c, sess, quiz, err)
			return
		}
		quiz = next
	}

	s.finish(c, sess, quiz)
}

func readUpload(header *multipart.FileHeader) (webtoonquiz.Image, error) {
	if header.Size > webtoonquiz.MaxImageBytes {
		return webtoonquiz.Image{}, &webtoonquiz.ValidationError{
			Field:   "image",
			Message: fmt.Sprintf("%s is too large (max %d MB).", header.Filename, webtoonquiz.MaxImageBytes/(1024*1024)),
		}
	}

	f, err := header.Open()
	if err != nil {
		return webtoonquiz.Image{}, fmt.Errorf("failed to open upload %s: %w", header.Filename, err)
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, webtoonquiz.MaxImageBytes+1))
	if err != nil {
		return webtoonquiz.Image{}, fmt.Errorf("failed to read upload %s: %w", header.Filename, err)
	}
	return webtoonquiz.NewImage(header.Filename, data)
}

func (s *Server) handleImage(c *gin.Context) {
	_, quiz := s.session(c)
	id := c.Param("id")
	for _, img := range quiz.Uploads.Items {
		if img.ID == id {
			c.Data(http.StatusOK, img.MediaType, img.Data)
			return
		}
	}
	c.Status(http.StatusNotFound)
}

func (s *Server) handleRemoveImage(c *gin.Context) {
	sess, quiz := s.session(c)
	next, err := quiz.RemoveImage(c.Param("id"))
	if err != nil {
		s.fail(c, sess, quiz, err)
		return
	}
	s.finish(c, sess, next)
}

func (s *Server) handleQuestionCount(c *gin.Context) {
	sess, quiz := s.session(c)

	n, err := strconv.Atoi(c.PostForm("count"))
	if err != nil {
		s.fail(c, sess, quiz, &webtoonquiz.ValidationError{Field: "question count", Message: "Choose a number of questions."})
		return
	}
	next, err := quiz.SetQuestionCount(n)
	if err != nil {
		s.fail(c, sess, quiz, err)
		return
	}
	s.finish(c, sess, next)
}

var errGenerationAborted = errors.New("generation aborted")

// handleGenerate runs one generation. The session is stored as Processing
// before the provider is called so a second submit from the same browser
// is rejected by the state machine.
func (s *Server) handleGenerate(c *gin.Context) {
	sess, quiz := s.session(c)

	processing, err := quiz.StartGeneration()
	if err != nil {
		s.fail(c, sess, quiz, err)
		return
	}
	if err := s.save(c, sess, processing); err != nil {
		c.String(http.StatusInternalServerError, "Failed to save session")
		return
	}

	settled := false
	defer func() {
		if !settled {
			s.save(c, sess, processing.FailGeneration(errGenerationAborted))
		}
	}()

	questions, err := s.generator.GenerateQuiz(c.Request.Context(), processing.Uploads.Items, processing.QuestionCount)

	var next webtoonquiz.Session
	if err != nil {
		next = processing.FailGeneration(err)
	} else if next, err = processing.CompleteGeneration(questions); err != nil {
		next = processing.FailGeneration(err)
	}
	settled = true

	s.finish(c, sess, next)
}

func (s *Server) handleRateLimited(c *gin.Context) {
	sess, quiz := s.session(c)
	sess.AddFlash("Too many quiz requests. Please wait a moment and try again.")
	s.finish(c, sess, quiz)
}

func (s *Server) handleAnswer(c *gin.Context) {
	sess, quiz := s.session(c)

	option, err := strconv.Atoi(c.PostForm("option"))
	if err != nil {
		s.fail(c, sess, quiz, &webtoonquiz.ValidationError{Field: "option", Message: "Choose an answer."})
		return
	}
	next, err := quiz.SelectOption(option)
	if err != nil {
		s.fail(c, sess, quiz, err)
		return
	}
	s.finish(c, sess, next)
}

func (s *Server) handleNext(c *gin.Context) {
	sess, quiz := s.session(c)

	next, err := quiz.Advance()
	if err != nil {
		s.fail(c, sess, quiz, err)
		return
	}

	if next.State == webtoonquiz.StateResult && next.SavedQuizID != "" {
		if err := s.records.RecordScore(c.Request.Context(), next.SavedQuizID, next.FinalScore); err != nil {
			webtoonquiz.Log.Warn("failed to record score", zap.String("quiz_id", next.SavedQuizID), zap.Error(err))
			sess.AddFlash(webtoonquiz.UserMessage(err))
		}
	}
	s.finish(c, sess, next)
}

func (s *Server) handleRetry(c *gin.Context) {
	sess, quiz := s.session(c)
	next, err := quiz.Retry()
	if err != nil {
		s.fail(c, sess, quiz, err)
		return
	}
	s.finish(c, sess, next)
}

func (s *Server) handleReset(c *gin.Context) {
	sess, quiz := s.session(c)
	next, err := quiz.Reset()
	if err != nil {
		s.fail(c, sess, quiz, err)
		return
	}
	s.finish(c, sess, next)
}

// handleSave stores the questions on screen as an episode of the selected
// project. Saving from the result screen stores the score in the same write.
func (s *Server) handleSave(c *gin.Context) {
	sess, quiz := s.session(c)
	ctx := c.Request.Context()

	if quiz.State != webtoonquiz.StateQuiz && quiz.State != webtoonquiz.StateResult {
		s.fail(c, sess, quiz, &webtoonquiz.TransitionError{From: quiz.State, Command: "save the quiz"})
		return
	}

	project, err := s.records.GetSelectedProject(ctx)
	if err != nil {
		s.fail(c, sess, quiz, err)
		return
	}
	projectID := ""
	if project != nil {
		projectID = project.ID
	}

	var score *int
	if quiz.State == webtoonquiz.StateResult {
		score = &quiz.FinalScore
	}

	saved, err := s.records.CreateScoredQuiz(ctx, projectID, c.PostForm("episode"), quiz.Questions, score)
	if err != nil {
		s.fail(c, sess, quiz, err)
		return
	}

	sess.AddFlash(fmt.Sprintf("Saved \"%s\" to %s.", saved.EpisodeName, project.Name))
	s.finish(c, sess, quiz.MarkSaved(saved.ID))
}
