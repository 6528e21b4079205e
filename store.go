package webtoonquiz

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultStorageKey is the key the whole record layout is stored under.
const DefaultStorageKey = "webtoon_quiz_master_data"

// BlobStore is a keyed byte store. Get reports ok=false when the key has
// never been written.
type BlobStore interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Put(ctx context.Context, key string, data []byte) error
}

type storeSettings struct {
	LastSelectedProjectID *string `json:"lastSelectedProjectId"`
}

// storeData is the persisted layout. Absent fields decode to their zero
// value, which is the empty store.
type storeData struct {
	Projects []Project     `json:"projects"`
	Quizzes  []SavedQuiz   `json:"quizzes"`
	Settings storeSettings `json:"settings"`
}

func (d *storeData) projectIndex(id string) int {
	for i := range d.Projects {
		if d.Projects[i].ID == id {
			return i
		}
	}
	return -1
}

func (d *storeData) quizIndex(id string) int {
	for i := range d.Quizzes {
		if d.Quizzes[i].ID == id {
			return i
		}
	}
	return -1
}

// RecordStore keeps projects and saved quizzes in a single blob. Every
// mutation reads the whole blob, applies the change and writes it back;
// when the write fails nothing is committed.
//
// Calls are serialized within one process. Two processes sharing a
// backend can still overwrite each other.
type RecordStore struct {
	blobs BlobStore
	key   string

	mu    sync.Mutex
	now   func() time.Time
	newID func(prefix string) string
}

// NewRecordStore creates a store persisting to blobs under key. An empty
// key selects DefaultStorageKey.
func NewRecordStore(blobs BlobStore, key string) *RecordStore {
	if key == "" {
		key = DefaultStorageKey
	}
	return &RecordStore{
		blobs: blobs,
		key:   key,
		now:   time.Now,
		newID: func(prefix string) string {
			return prefix + "_" + uuid.NewString()
		},
	}
}

// SetClock replaces the time source, mainly for tests.
func (rs *RecordStore) SetClock(now func() time.Time) {
	rs.now = now
}

func (rs *RecordStore) load(ctx context.Context) (*storeData, error) {
	raw, ok, err := rs.blobs.Get(ctx, rs.key)
	if err != nil {
		return nil, &StorageError{Op: "read", Err: err}
	}

	data := &storeData{}
	if !ok || len(raw) == 0 {
		return data, nil
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		Log.Sugar().Warnf("Stored records under %s are unreadable, starting empty: %v", rs.key, err)
		return data, nil
	}

	// A field of the wrong shape falls back to empty on its own; the
	// others are kept so the next write does not drop them.
	var projects []Project
	if rs.decodeField(fields, "projects", &projects) {
		data.Projects = projects
	}
	var quizzes []SavedQuiz
	if rs.decodeField(fields, "quizzes", &quizzes) {
		data.Quizzes = quizzes
	}
	var settings storeSettings
	if rs.decodeField(fields, "settings", &settings) {
		data.Settings = settings
	}
	return data, nil
}

// decodeField decodes fields[name] into v. It reports false when the field
// is absent or malformed.
func (rs *RecordStore) decodeField(fields map[string]json.RawMessage, name string, v interface{}) bool {
	raw, ok := fields[name]
	if !ok {
		return false
	}
	if err := json.Unmarshal(raw, v); err != nil {
		Log.Sugar().Warnf("Stored %s under %s are unreadable, using empty %s: %v", name, rs.key, name, err)
		return false
	}
	return true
}

func (rs *RecordStore) save(ctx context.Context, data *storeData) error {
	if data.Projects == nil {
		data.Projects = []Project{}
	}
	if data.Quizzes == nil {
		data.Quizzes = []SavedQuiz{}
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return &StorageError{Op: "encode", Err: err}
	}
	if err := rs.blobs.Put(ctx, rs.key, raw); err != nil {
		return &StorageError{Op: "write", Err: err}
	}
	return nil
}

// update runs fn against a fresh copy of the stored data and persists the
// result if fn succeeds.
func (rs *RecordStore) update(ctx context.Context, fn func(data *storeData) error) error {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	data, err := rs.load(ctx)
	if err != nil {
		return err
	}
	if err := fn(data); err != nil {
		return err
	}
	return rs.save(ctx, data)
}

func (rs *RecordStore) read(ctx context.Context) (*storeData, error) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return rs.load(ctx)
}

// CreateProject adds a project and makes it the selected one.
func (rs *RecordStore) CreateProject(ctx context.Context, name string) (Project, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Project{}, &ValidationError{Field: "project name", Message: "Enter a project name."}
	}

	var project Project
	err := rs.update(ctx, func(data *storeData) error {
		now := rs.now()
		project = Project{
			ID:        rs.newID("project"),
			Name:      name,
			CreatedAt: now,
			UpdatedAt: now,
		}
		data.Projects = append(data.Projects, project)
		data.Settings.LastSelectedProjectID = &project.ID
		return nil
	})
	if err != nil {
		return Project{}, err
	}

	Log.Sugar().Infof("Created project %s (%s)", project.ID, project.Name)
	return project, nil
}

// RenameProject changes a project's name.
func (rs *RecordStore) RenameProject(ctx context.Context, id, name string) (Project, error) {
	return rs.UpdateProject(ctx, id, ProjectPatch{Name: &name})
}

// UpdateProject applies patch and refreshes UpdatedAt.
func (rs *RecordStore) UpdateProject(ctx context.Context, id string, patch ProjectPatch) (Project, error) {
	var name string
	if patch.Name != nil {
		name = strings.TrimSpace(*patch.Name)
		if name == "" {
			return Project{}, &ValidationError{Field: "project name", Message: "Enter a project name."}
		}
	}

	var project Project
	err := rs.update(ctx, func(data *storeData) error {
		i := data.projectIndex(id)
		if i < 0 {
			return &NotFoundError{Kind: "project", ID: id}
		}
		if patch.Name != nil {
			data.Projects[i].Name = name
		}
		data.Projects[i].UpdatedAt = rs.now()
		project = data.Projects[i]
		return nil
	})
	return project, err
}

// DeleteProject removes a project together with its quizzes. If it was
// selected, the first remaining project becomes selected.
func (rs *RecordStore) DeleteProject(ctx context.Context, id string) error {
	removed := 0
	err := rs.update(ctx, func(data *storeData) error {
		i := data.projectIndex(id)
		if i < 0 {
			return &NotFoundError{Kind: "project", ID: id}
		}
		data.Projects = append(data.Projects[:i:i], data.Projects[i+1:]...)

		quizzes := make([]SavedQuiz, 0, len(data.Quizzes))
		for _, quiz := range data.Quizzes {
			if quiz.ProjectID == id {
				removed++
				continue
			}
			quizzes = append(quizzes, quiz)
		}
		data.Quizzes = quizzes

		selected := data.Settings.LastSelectedProjectID
		if selected != nil && *selected == id {
			if len(data.Projects) > 0 {
				next := data.Projects[0].ID
				data.Settings.LastSelectedProjectID = &next
			} else {
				data.Settings.LastSelectedProjectID = nil
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	Log.Sugar().Infof("Deleted project %s and %d quizzes", id, removed)
	return nil
}

// SelectProject persists the selection. An empty id clears it.
func (rs *RecordStore) SelectProject(ctx context.Context, id string) error {
	return rs.update(ctx, func(data *storeData) error {
		if id == "" {
			data.Settings.LastSelectedProjectID = nil
			return nil
		}
		if data.projectIndex(id) < 0 {
			return &NotFoundError{Kind: "project", ID: id}
		}
		data.Settings.LastSelectedProjectID = &id
		return nil
	})
}

// GetSelectedProject returns the selected project, or nil when nothing is
// selected or the selection no longer resolves.
func (rs *RecordStore) GetSelectedProject(ctx context.Context) (*Project, error) {
	data, err := rs.read(ctx)
	if err != nil {
		return nil, err
	}
	selected := data.Settings.LastSelectedProjectID
	if selected == nil {
		return nil, nil
	}
	if i := data.projectIndex(*selected); i >= 0 {
		project := data.Projects[i]
		return &project, nil
	}
	return nil, nil
}

// GetProject returns the project with id, or nil.
func (rs *RecordStore) GetProject(ctx context.Context, id string) (*Project, error) {
	data, err := rs.read(ctx)
	if err != nil {
		return nil, err
	}
	if i := data.projectIndex(id); i >= 0 {
		project := data.Projects[i]
		return &project, nil
	}
	return nil, nil
}

// ListProjects returns every project, most recently updated first.
func (rs *RecordStore) ListProjects(ctx context.Context) ([]Project, error) {
	data, err := rs.read(ctx)
	if err != nil {
		return nil, err
	}
	projects := append([]Project(nil), data.Projects...)
	sort.SliceStable(projects, func(i, j int) bool {
		return projects[i].UpdatedAt.After(projects[j].UpdatedAt)
	})
	return projects, nil
}

// CreateQuiz saves questions as an episode of a project.
func (rs *RecordStore) CreateQuiz(ctx context.Context, projectID, episodeName string, questions []QuizQuestion) (SavedQuiz, error) {
	return rs.CreateScoredQuiz(ctx, projectID, episodeName, questions, nil)
}

// CreateScoredQuiz is CreateQuiz for a quiz that has already been played.
// The quiz and its score are written together; a nil score stores none.
func (rs *RecordStore) CreateScoredQuiz(ctx context.Context, projectID, episodeName string, questions []QuizQuestion, score *int) (SavedQuiz, error) {
	episodeName = strings.TrimSpace(episodeName)
	switch {
	case projectID == "":
		return SavedQuiz{}, &ValidationError{Field: "project", Message: "Select a project first."}
	case episodeName == "":
		return SavedQuiz{}, &ValidationError{Field: "episode name", Message: "Enter an episode name."}
	case len(questions) == 0:
		return SavedQuiz{}, &ValidationError{Field: "questions", Message: "There are no questions to save."}
	}
	for i, q := range questions {
		if err := ValidateQuestion(i, q); err != nil {
			return SavedQuiz{}, &ValidationError{Field: "questions", Message: fmt.Sprintf("Question %d is incomplete.", i+1)}
		}
	}

	var quiz SavedQuiz
	err := rs.update(ctx, func(data *storeData) error {
		i := data.projectIndex(projectID)
		if i < 0 {
			return &NotFoundError{Kind: "project", ID: projectID}
		}
		now := rs.now()
		quiz = SavedQuiz{
			ID:            rs.newID("quiz"),
			ProjectID:     projectID,
			EpisodeName:   episodeName,
			Questions:     append([]QuizQuestion(nil), questions...),
			QuestionCount: len(questions),
			CreatedAt:     now,
		}
		if score != nil {
			v := *score
			quiz.Score = &v
		}
		data.Quizzes = append(data.Quizzes, quiz)
		data.Projects[i].UpdatedAt = now
		return nil
	})
	if err != nil {
		return SavedQuiz{}, err
	}

	Log.Sugar().Infof("Saved quiz %s (%s, %d questions) under project %s", quiz.ID, quiz.EpisodeName, quiz.QuestionCount, projectID)
	return quiz, nil
}

// UpdateQuiz applies patch to a saved quiz.
func (rs *RecordStore) UpdateQuiz(ctx context.Context, id string, patch QuizPatch) (SavedQuiz, error) {
	var name string
	if patch.EpisodeName != nil {
		name = strings.TrimSpace(*patch.EpisodeName)
		if name == "" {
			return SavedQuiz{}, &ValidationError{Field: "episode name", Message: "Enter an episode name."}
		}
	}

	var quiz SavedQuiz
	err := rs.update(ctx, func(data *storeData) error {
		i := data.quizIndex(id)
		if i < 0 {
			return &NotFoundError{Kind: "quiz", ID: id}
		}
		if patch.EpisodeName != nil {
			data.Quizzes[i].EpisodeName = name
		}
		if patch.Score != nil {
			score := *patch.Score
			data.Quizzes[i].Score = &score
		}
		quiz = data.Quizzes[i]
		return nil
	})
	return quiz, err
}

// RecordScore stores the result of a replay.
func (rs *RecordStore) RecordScore(ctx context.Context, id string, score int) error {
	_, err := rs.UpdateQuiz(ctx, id, QuizPatch{Score: &score})
	return err
}

// DeleteQuiz removes a saved quiz.
func (rs *RecordStore) DeleteQuiz(ctx context.Context, id string) error {
	return rs.update(ctx, func(data *storeData) error {
		i := data.quizIndex(id)
		if i < 0 {
			return &NotFoundError{Kind: "quiz", ID: id}
		}
		data.Quizzes = append(data.Quizzes[:i:i], data.Quizzes[i+1:]...)
		return nil
	})
}

// ListQuizzes returns saved quizzes, newest first. A non-empty projectID
// restricts the list to that project.
func (rs *RecordStore) ListQuizzes(ctx context.Context, projectID string) ([]SavedQuiz, error) {
	data, err := rs.read(ctx)
	if err != nil {
		return nil, err
	}
	quizzes := make([]SavedQuiz, 0, len(data.Quizzes))
	for _, quiz := range data.Quizzes {
		if projectID == "" || quiz.ProjectID == projectID {
			quizzes = append(quizzes, quiz)
		}
	}
	sort.SliceStable(quizzes, func(i, j int) bool {
		return quizzes[i].CreatedAt.After(quizzes[j].CreatedAt)
	})
	return quizzes, nil
}

// GetQuiz returns the saved quiz with id, or nil.
func (rs *RecordStore) GetQuiz(ctx context.Context, id string) (*SavedQuiz, error) {
	data, err := rs.read(ctx)
	if err != nil {
		return nil, err
	}
	if i := data.quizIndex(id); i >= 0 {
		quiz := data.Quizzes[i]
		return &quiz, nil
	}
	return nil, nil
}

// MemoryBlobStore keeps blobs in process memory.
type MemoryBlobStore struct {
	mu    sync.RWMutex
	blobs map[string][]byte
}

func NewMemoryBlobStore() *MemoryBlobStore {
	return &MemoryBlobStore{blobs: make(map[string][]byte)}
}

func (m *MemoryBlobStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.blobs[key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), data...), true, nil
}

func (m *MemoryBlobStore) Put(_ context.Context, key string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blobs[key] = append([]byte(nil), data...)
	return nil
}

// OpenBlobStore opens the backend named in cfg. The returned close
// function releases its connection.
func OpenBlobStore(ctx context.Context, cfg StorageConfig) (BlobStore, func() error, error) {
	switch strings.ToLower(cfg.Type) {
	case "", "sqlite":
		db, err := OpenSQLiteBlobStore(cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		return db, db.Close, nil
	case "redis":
		rdb, err := NewRedisBlobStore(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			return nil, nil, err
		}
		return rdb, rdb.Close, nil
	case "memory":
		return NewMemoryBlobStore(), func() error { return nil }, nil
	}
	return nil, nil, fmt.Errorf("unknown storage type %q", cfg.Type)
}
