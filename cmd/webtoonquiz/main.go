package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"webtoonquiz"

	"go.uber.org/zap"
)

// options holds the command line flags that shape a run.
type options struct {
	paths         []string
	numQuestions  int
	outputFile    string
	playMode      bool
	projectName   string
	episodeName   string
	exportQuiz    bool
	exportProject string
}

func main() {
	var (
		imageList     = flag.String("images", "", "Comma separated screenshot files (or pass them as arguments)")
		numQuestions  = flag.Int("questions", webtoonquiz.DefaultQuestionCount, "Number of questions to generate (3-10)")
		outputFile    = flag.String("output", "", "Output file for quiz JSON (default: stdout)")
		playMode      = flag.Bool("play", false, "Play the quiz interactively")
		projectName   = flag.String("project", "", "Save the quiz under this project (created if missing)")
		episodeName   = flag.String("episode", "", "Episode name for the saved quiz")
		exportQuiz    = flag.Bool("export", false, "Write the saved quiz as CSV to the export sink")
		exportProject = flag.String("export-project", "", "Export every saved quiz of this project as CSV and exit")
		configPath    = flag.String("config", ".", "Directory containing config.yaml")
		provider      = flag.String("provider", "", "AI provider (gemini or openai), overrides config")
		verbose       = flag.Bool("verbose", false, "Enable verbose debugging output")
	)

	flag.Parse()

	cfg, err := webtoonquiz.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *provider != "" {
		cfg.AI.Provider = *provider
	}

	paths := flag.Args()
	if *imageList != "" {
		paths = append(strings.Split(*imageList, ","), paths...)
	}

	webtoonquiz.InitLogger(webtoonquiz.LogConfig{File: cfg.Log.File, Verbose: *verbose || cfg.Log.Verbose})

	err = run(context.Background(), cfg, options{
		paths:         paths,
		numQuestions:  *numQuestions,
		outputFile:    *outputFile,
		playMode:      *playMode,
		projectName:   *projectName,
		episodeName:   *episodeName,
		exportQuiz:    *exportQuiz,
		exportProject: *exportProject,
	})
	webtoonquiz.Log.Sync()
	if err != nil {
		log.Fatal(err)
	}
}

// run does the work of one invocation. Every resource it opens is released
// before it returns, so main can exit on the error afterwards.
func run(ctx context.Context, cfg *webtoonquiz.Config, opts options) error {
	if opts.exportProject != "" {
		records, closeStore, err := openRecords(ctx, cfg)
		if err != nil {
			return err
		}
		defer closeStore()
		if err := runProjectExport(ctx, cfg, records, opts.exportProject); err != nil {
			return fmt.Errorf("export failed: %w", err)
		}
		return nil
	}

	if len(opts.paths) == 0 {
		return errors.New("at least one screenshot is required, use -images or pass files as arguments")
	}
	if opts.projectName != "" && strings.TrimSpace(opts.episodeName) == "" {
		return errors.New("an episode name is required when saving, use -episode")
	}

	session := webtoonquiz.NewSession()
	for _, path := range opts.paths {
		img, err := webtoonquiz.LoadImageFile(strings.TrimSpace(path))
		if err != nil {
			return fmt.Errorf("failed to load image: %w", err)
		}
		if session, err = session.AddImage(img); err != nil {
			return fmt.Errorf("failed to add image: %s", webtoonquiz.UserMessage(err))
		}
	}
	session, err := session.SetQuestionCount(opts.numQuestions)
	if err != nil {
		return errors.New(webtoonquiz.UserMessage(err))
	}

	generator, err := webtoonquiz.NewQuizGenerator(cfg.AI)
	if err != nil {
		return fmt.Errorf("failed to create quiz generator: %w", err)
	}
	if cfg.Log.TranscriptFile != "" {
		generator.SetTranscriptLogger(webtoonquiz.NewTranscriptLogger(cfg.Log.TranscriptFile))
	}

	fmt.Printf("Generating %d questions from %d screenshots... (this may take a moment)\n",
		session.QuestionCount, session.Uploads.Size())

	session, err = webtoonquiz.RunGeneration(ctx, session, generator)
	if err != nil {
		return fmt.Errorf("failed to generate quiz: %s (%w)", webtoonquiz.UserMessage(err), err)
	}

	played := false
	if opts.playMode {
		session = playQuiz(session)
		played = session.State == webtoonquiz.StateResult
	}

	if err := writeQuestions(session.Questions, opts.outputFile); err != nil {
		return fmt.Errorf("failed to write quiz: %w", err)
	}

	if opts.projectName == "" {
		return nil
	}

	records, closeStore, err := openRecords(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	saved, err := saveQuiz(ctx, records, opts.projectName, opts.episodeName, session, played)
	if err != nil {
		return fmt.Errorf("failed to save quiz: %s (%w)", webtoonquiz.UserMessage(err), err)
	}
	log.Printf("Saved quiz %s as %q in project %q", saved.ID, saved.EpisodeName, opts.projectName)

	if !opts.exportQuiz {
		return nil
	}
	sink, err := webtoonquiz.NewExportSink(ctx, cfg.Export)
	if err != nil {
		return fmt.Errorf("failed to open export sink: %w", err)
	}
	name := webtoonquiz.ExportFileName(time.Now(), opts.projectName, saved.EpisodeName)
	location, err := sink.Save(ctx, name, webtoonquiz.EncodeCSV(webtoonquiz.FormatQuizRows(saved)))
	if err != nil {
		return fmt.Errorf("failed to export quiz: %w", err)
	}
	log.Printf("Quiz exported to: %s", location)
	return nil
}

func openRecords(ctx context.Context, cfg *webtoonquiz.Config) (*webtoonquiz.RecordStore, func(), error) {
	blobs, closeBlobs, err := webtoonquiz.OpenBlobStore(ctx, cfg.Storage)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open record storage: %w", err)
	}
	closeStore := func() {
		if err := closeBlobs(); err != nil {
			webtoonquiz.Log.Warn("closing record storage", zap.Error(err))
		}
	}
	return webtoonquiz.NewRecordStore(blobs, cfg.Storage.Key), closeStore, nil
}

func writeQuestions(questions []webtoonquiz.QuizQuestion, outputFile string) error {
	output, err := json.MarshalIndent(map[string]interface{}{"quiz": questions}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal quiz: %w", err)
	}

	if outputFile == "" {
		fmt.Println(string(output))
		return nil
	}
	if err := os.WriteFile(outputFile, output, 0644); err != nil {
		return fmt.Errorf("failed to write output file: %w", err)
	}
	log.Printf("Quiz saved to: %s", outputFile)
	return nil
}

// findProject looks a project up by name, ignoring case.
func findProject(ctx context.Context, records *webtoonquiz.RecordStore, name string) (*webtoonquiz.Project, error) {
	projects, err := records.ListProjects(ctx)
	if err != nil {
		return nil, err
	}
	for _, p := range projects {
		if strings.EqualFold(p.Name, strings.TrimSpace(name)) {
			project := p
			return &project, nil
		}
	}
	return nil, nil
}

func saveQuiz(ctx context.Context, records *webtoonquiz.RecordStore, projectName, episodeName string, session webtoonquiz.Session, played bool) (webtoonquiz.SavedQuiz, error) {
	project, err := findProject(ctx, records, projectName)
	if err != nil {
		return webtoonquiz.SavedQuiz{}, err
	}
	if project == nil {
		created, err := records.CreateProject(ctx, projectName)
		if err != nil {
			return webtoonquiz.SavedQuiz{}, err
		}
		project = &created
	}

	var score *int
	if played {
		score = &session.FinalScore
	}
	return records.CreateScoredQuiz(ctx, project.ID, episodeName, session.Questions, score)
}

func runProjectExport(ctx context.Context, cfg *webtoonquiz.Config, records *webtoonquiz.RecordStore, name string) error {
	project, err := findProject(ctx, records, name)
	if err != nil {
		return err
	}
	if project == nil {
		return &webtoonquiz.NotFoundError{Kind: "project", ID: name}
	}

	rows, err := records.FormatProjectRows(ctx, project.ID)
	if err != nil {
		return err
	}

	sink, err := webtoonquiz.NewExportSink(ctx, cfg.Export)
	if err != nil {
		return err
	}
	location, err := sink.Save(ctx, webtoonquiz.ExportFileName(time.Now(), project.Name, "all"), webtoonquiz.EncodeCSV(rows))
	if err != nil {
		return err
	}
	log.Printf("Project %q exported to: %s", project.Name, location)
	return nil
}
