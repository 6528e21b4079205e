package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"webtoonquiz"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaveQuizReusesProjectByName(t *testing.T) {
	ctx := context.Background()
	records := webtoonquiz.NewRecordStore(webtoonquiz.NewMemoryBlobStore(), "")

	played := play(savedSession(t, 2), strings.NewReader("b\na\nn\n"), &strings.Builder{})
	first, err := saveQuiz(ctx, records, "Omniscient Reader", "Ep 1", played, true)
	require.NoError(t, err)
	require.NotNil(t, first.Score)
	assert.Equal(t, 1, *first.Score)

	second, err := saveQuiz(ctx, records, "omniscient reader ", "Ep 2", savedSession(t, 1), false)
	require.NoError(t, err)
	assert.Nil(t, second.Score)
	assert.Equal(t, first.ProjectID, second.ProjectID)

	projects, err := records.ListProjects(ctx)
	require.NoError(t, err)
	assert.Len(t, projects, 1)
}

func TestRunProjectExport(t *testing.T) {
	ctx := context.Background()
	records := webtoonquiz.NewRecordStore(webtoonquiz.NewMemoryBlobStore(), "")
	dir := t.TempDir()
	cfg := &webtoonquiz.Config{Export: webtoonquiz.ExportConfig{Type: "local", Dir: dir}}

	err := runProjectExport(ctx, cfg, records, "Nobody")
	assert.True(t, webtoonquiz.IsNotFound(err))

	_, err = saveQuiz(ctx, records, "Lookism", "Ep 1", savedSession(t, 2), false)
	require.NoError(t, err)
	require.NoError(t, runProjectExport(ctx, cfg, records, "LOOKISM"))

	files, err := filepath.Glob(filepath.Join(dir, "Lookism_all_*.csv"))
	require.NoError(t, err)
	require.Len(t, files, 1)
	data, err := os.ReadFile(files[0])
	require.NoError(t, err)
	assert.Contains(t, string(data), "=== Ep 1 (")
}

func TestWriteQuestions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "quiz.json")
	require.NoError(t, writeQuestions(savedSession(t, 1).Questions, path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"quiz": [`)
	assert.Contains(t, string(data), `"correctIndex": 1`)
}

func TestRunReturnsSetupErrors(t *testing.T) {
	ctx := context.Background()
	cfg := &webtoonquiz.Config{Storage: webtoonquiz.StorageConfig{Type: "memory"}}

	err := run(ctx, cfg, options{})
	assert.ErrorContains(t, err, "at least one screenshot is required")

	err = run(ctx, cfg, options{paths: []string{"ep1.png"}, projectName: "Lookism"})
	assert.ErrorContains(t, err, "an episode name is required")

	err = run(ctx, cfg, options{paths: []string{filepath.Join(t.TempDir(), "missing.png")}, numQuestions: 3})
	assert.ErrorContains(t, err, "failed to load image")
}

func TestRunExportReturnsErrors(t *testing.T) {
	ctx := context.Background()
	cfg := &webtoonquiz.Config{
		Storage: webtoonquiz.StorageConfig{Type: "memory"},
		Export:  webtoonquiz.ExportConfig{Type: "local", Dir: t.TempDir()},
	}

	err := run(ctx, cfg, options{exportProject: "Nobody"})
	assert.True(t, webtoonquiz.IsNotFound(err))
	assert.ErrorContains(t, err, "export failed")

	cfg.Storage.Type = "floppy"
	err = run(ctx, cfg, options{exportProject: "Nobody"})
	assert.ErrorContains(t, err, `unknown storage type "floppy"`)
}
