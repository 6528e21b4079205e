package main

import (
	"fmt"
	"net/http"
	"net/url"
	"time"

	"webtoonquiz"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func (s *Server) handleCreateProject(c *gin.Context) {
	sess, quiz := s.session(c)
	if _, err := s.records.CreateProject(c.Request.Context(), c.PostForm("name")); err != nil {
		s.fail(c, sess, quiz, err)
		return
	}
	s.finish(c, sess, quiz)
}

func (s *Server) handleSelectProject(c *gin.Context) {
	sess, quiz := s.session(c)
	if err := s.records.SelectProject(c.Request.Context(), c.Param("id")); err != nil {
		s.fail(c, sess, quiz, err)
		return
	}
	s.finish(c, sess, quiz)
}

func (s *Server) handleRenameProject(c *gin.Context) {
	sess, quiz := s.session(c)
	if _, err := s.records.RenameProject(c.Request.Context(), c.Param("id"), c.PostForm("name")); err != nil {
		s.fail(c, sess, quiz, err)
		return
	}
	s.finish(c, sess, quiz)
}

func (s *Server) handleDeleteProject(c *gin.Context) {
	sess, quiz := s.session(c)
	if err := s.records.DeleteProject(c.Request.Context(), c.Param("id")); err != nil {
		s.fail(c, sess, quiz, err)
		return
	}
	s.finish(c, sess, quiz)
}

// handlePlaySaved loads a stored quiz into the session.
func (s *Server) handlePlaySaved(c *gin.Context) {
	sess, quiz := s.session(c)
	id := c.Param("id")

	saved, err := s.records.GetQuiz(c.Request.Context(), id)
	if err != nil {
		s.fail(c, sess, quiz, err)
		return
	}
	if saved == nil {
		s.fail(c, sess, quiz, &webtoonquiz.NotFoundError{Kind: "quiz", ID: id})
		return
	}

	next, err := quiz.StartSaved(saved.ID, saved.Questions)
	if err != nil {
		s.fail(c, sess, quiz, err)
		return
	}
	s.finish(c, sess, next)
}

func (s *Server) handleRenameQuiz(c *gin.Context) {
	sess, quiz := s.session(c)
	name := c.PostForm("episode")
	if _, err := s.records.UpdateQuiz(c.Request.Context(), c.Param("id"), webtoonquiz.QuizPatch{EpisodeName: &name}); err != nil {
		s.fail(c, sess, quiz, err)
		return
	}
	s.finish(c, sess, quiz)
}

func (s *Server) handleDeleteQuiz(c *gin.Context) {
	sess, quiz := s.session(c)
	id := c.Param("id")
	if err := s.records.DeleteQuiz(c.Request.Context(), id); err != nil {
		s.fail(c, sess, quiz, err)
		return
	}
	if quiz.SavedQuizID == id {
		quiz.SavedQuizID = ""
	}
	s.finish(c, sess, quiz)
}

func (s *Server) handleExportQuiz(c *gin.Context) {
	id := c.Param("id")
	saved, err := s.records.GetQuiz(c.Request.Context(), id)
	if err != nil {
		s.exportFailed(c, err)
		return
	}
	if saved == nil {
		c.String(http.StatusNotFound, "Quiz not found")
		return
	}

	projectName := ""
	if project, err := s.records.GetProject(c.Request.Context(), saved.ProjectID); err == nil && project != nil {
		projectName = project.Name
	}

	name := webtoonquiz.ExportFileName(time.Now(), projectName, saved.EpisodeName)
	sendCSV(c, name, webtoonquiz.FormatQuizRows(*saved))
}

func (s *Server) handleExportProject(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("id")

	project, err := s.records.GetProject(ctx, id)
	if err != nil {
		s.exportFailed(c, err)
		return
	}
	if project == nil {
		c.String(http.StatusNotFound, "Project not found")
		return
	}

	rows, err := s.records.FormatProjectRows(ctx, id)
	if err != nil {
		s.exportFailed(c, err)
		return
	}
	sendCSV(c, webtoonquiz.ExportFileName(time.Now(), project.Name, "all"), rows)
}

// handleExportCurrent downloads the question list on screen, saved or not.
func (s *Server) handleExportCurrent(c *gin.Context) {
	_, quiz := s.session(c)
	if len(quiz.Questions) == 0 {
		c.String(http.StatusNotFound, "No quiz to export")
		return
	}
	rows := webtoonquiz.FormatQuizRows(webtoonquiz.SavedQuiz{Questions: quiz.Questions})
	sendCSV(c, webtoonquiz.ExportFileName(time.Now(), "webtoon_quiz"), rows)
}

func (s *Server) exportFailed(c *gin.Context, err error) {
	webtoonquiz.Log.Error("export failed", zap.String("path", c.Request.URL.Path), zap.Error(err))
	c.String(http.StatusInternalServerError, webtoonquiz.UserMessage(err))
}

func sendCSV(c *gin.Context, name string, rows [][]string) {
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename*=UTF-8''%s", url.PathEscape(name)))
	c.Data(http.StatusOK, "text/csv; charset=utf-8", webtoonquiz.EncodeCSV(rows))
}
