package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"google.golang.org/api/option"

	"newsbrief/aggregator/internal/config"
	"newsbrief/aggregator/internal/database"
	"newsbrief/aggregator/internal/feeds"
	importsources "newsbrief/aggregator/internal/import"
	"newsbrief/aggregator/internal/process"
	"newsbrief/aggregator/internal/queue"
	"newsbrief/aggregator/internal/scheduler"
	"newsbrief/aggregator/internal/server"
	"newsbrief/aggregator/internal/server/api"
	"newsbrief/aggregator/internal/sources"
	"newsbrief/aggregator/internal/storage"
	"newsbrief/aggregator/internal/summarizer"
)

const usage = `Usage: aggregator [command] [options]
Commands: import, start, server, worker, rollback

For command-specific options, use: aggregator [command] -h`

func init() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "2006-01-02 15:04:05"})
}

func main() {
	if len(os.Args) < 2 {
		fmt.Println(usage)
		os.Exit(1)
	}

	cfg, err := config.Load("")
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	var run func() error
	fs := flag.NewFlagSet(os.Args[1], flag.ExitOnError)
	fs.StringVar(&cfg.DBPath, "db", cfg.DBPath, "Path to the SQLite database file (env: NEWSBRIEF_DB_PATH)")
	logLevel := fs.String("log-level", cfg.LogLevel.String(), "Log level: debug, info, warn, error (env: NEWSBRIEF_LOG_LEVEL)")

	switch os.Args[1] {
	case "import":
		fs.StringVar(&cfg.SourcesCSVPath, "csv", cfg.SourcesCSVPath, "Path or URL of the sources CSV file (env: NEWSBRIEF_CSV_PATH)")
		fresh := fs.Bool("fresh", false, "Delete the existing database before importing")
		run = func() error { return runImport(cfg, *fresh) }

	case "start":
		fetchMinutes := fs.Int("interval", int(cfg.FetchInterval.Minutes()),
			"Minutes between RSS fetches, 0 for one-shot mode (env: NEWSBRIEF_FETCH_INTERVAL)")
		fs.IntVar(&cfg.WorkerCount, "workers", cfg.WorkerCount,
			"Number of feed fetch goroutines, 0 for CPU count (env: NEWSBRIEF_WORKER_COUNT)")
		run = func() error {
			cfg.FetchInterval = time.Duration(*fetchMinutes) * time.Minute
			return runStart(cfg)
		}

	case "server":
		fs.StringVar(&cfg.ServerHost, "host", cfg.ServerHost, "Host to bind the server to (env: NEWSBRIEF_HOST)")
		fs.IntVar(&cfg.ServerPort, "port", cfg.ServerPort, "Port to listen on (env: NEWSBRIEF_PORT)")
		withScheduler := fs.Bool("scheduler", true, "Run the fetch and fallback loops in the server process")
		withWorker := fs.Bool("worker", true, "Consume summarization jobs in the server process")
		run = func() error { return runServer(cfg, *withScheduler, *withWorker) }

	case "worker":
		fs.IntVar(&cfg.Queue.Concurrency, "concurrency", cfg.Queue.Concurrency,
			"Number of jobs processed in parallel (env: NEWSBRIEF_QUEUE_CONCURRENCY)")
		run = func() error { return runWorker(cfg) }

	case "rollback":
		steps := fs.Int("n", 1, "Number of migrations to roll back")
		run = func() error { return runRollback(cfg, *steps) }

	case "-h", "--help", "help":
		fmt.Println(usage)
		os.Exit(0)

	default:
		log.Error().Str("command", os.Args[1]).Msg("Unknown command")
		fmt.Println(usage)
		os.Exit(1)
	}

	fs.Parse(os.Args[2:])
	if level, err := zerolog.ParseLevel(*logLevel); err == nil {
		cfg.LogLevel = level
	}
	zerolog.SetGlobalLevel(cfg.LogLevel)

	if err := run(); err != nil {
		log.Error().Err(err).Str("command", os.Args[1]).Msg("Command failed")
		os.Exit(1)
	}
}

// app wires the pipeline components over one database.
type app struct {
	db        *database.DB
	articles  *storage.ArticleStore
	summaries *storage.SummaryStore
	sources   *storage.SourceStore
	queue     *queue.Queue
	gateway   *summarizer.Gateway
	ingest    *process.FeedProcessor
	fallback  *process.FallbackProcessor
	scheduler *scheduler.Scheduler
	sourceSvc *sources.Service
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	db, err := database.NewDB(database.NewConfig(cfg.DBPath))
	if err != nil {
		log.Error().Err(err).Str("path", cfg.DBPath).Msg("Failed to initialize database")
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	generator, err := newGenerator(ctx, cfg.AI)
	if err != nil {
		db.Close()
		return nil, err
	}

	logger := log.Logger
	a := &app{
		db:        db,
		articles:  storage.NewArticleStore(db),
		summaries: storage.NewSummaryStore(db),
		sources:   storage.NewSourceStore(db),
	}
	a.queue = queue.New(db, queue.JobOptions{
		Attempts: cfg.Queue.MaxAttempts,
		Backoff:  time.Duration(cfg.Queue.BackoffMS) * time.Millisecond,
	}, logger)
	a.gateway = summarizer.NewGateway(generator, summarizer.Config{
		Language: summarizer.LanguageFor(cfg.AI.Language),
	}, logger)

	feedCfg := feeds.Config{UserAgent: cfg.UserAgent}
	a.ingest = process.NewFeedProcessor(feeds.NewFetcher(feedCfg, logger), a.sources, a.articles, a.queue, cfg.WorkerCount, logger)
	a.fallback = process.NewFallbackProcessor(a.articles, a.summaries, a.gateway, cfg.FallbackBatchSize, logger)
	a.scheduler = scheduler.New(scheduler.Config{
		FetchInterval:    cfg.FetchInterval,
		FallbackInterval: cfg.FallbackInterval,
		FetchOnStart:     true,
	}, a.ingest, a.fallback, logger)
	a.sourceSvc = sources.NewService(a.sources, feeds.NewValidator(feedCfg), a.ingest, logger)

	if _, err := a.sourceSvc.SeedDefaults(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to seed default sources: %w", err)
	}
	return a, nil
}

func (a *app) worker(cfg *config.Config) *queue.Worker {
	handler := queue.SummarizeHandler(a.gateway, a.summaries, log.Logger)
	return queue.NewWorker(a.queue, handler, queue.WorkerConfig{Concurrency: cfg.Queue.Concurrency}, log.Logger)
}

// newGenerator returns the configured model backend, or nil for local summaries only.
func newGenerator(ctx context.Context, ai config.AIConfig) (summarizer.Generator, error) {
	switch ai.Provider {
	case config.ProviderVertex:
		var opts []option.ClientOption
		if ai.CredentialsFile != "" {
			opts = append(opts, option.WithCredentialsFile(ai.CredentialsFile))
		}
		gen, err := summarizer.NewVertexGenerator(ctx, summarizer.VertexConfig{
			ProjectID: ai.ProjectID,
			Location:  ai.Location,
			Model:     ai.Model,
		}, opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize Vertex AI: %w", err)
		}
		log.Info().Str("model", gen.Name()).Msg("Vertex AI generator configured")
		return gen, nil

	case config.ProviderOllama:
		gen, err := summarizer.NewOllamaGenerator(ai.OllamaHost, ai.OllamaModel, &http.Client{Timeout: 2 * time.Minute})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize Ollama: %w", err)
		}
		log.Info().Str("model", gen.Name()).Msg("Ollama generator configured")
		return gen, nil

	default:
		log.Warn().Msg("No AI provider configured, summaries will be generated locally")
		return nil, nil
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

// runImport imports sources from a CSV file, optionally into a fresh database.
// It will prompt for confirmation before deleting an existing database.
func runImport(cfg *config.Config, fresh bool) error {
	if _, err := os.Stat(cfg.DBPath); err == nil && fresh {
		fmt.Printf("Database %s already exists. All data will be lost.\n", cfg.DBPath)
		fmt.Print("Delete and recreate? (y/N): ")

		var answer string
		fmt.Scanln(&answer)

		if strings.ToLower(answer) != "y" {
			log.Info().Msg("Operation canceled by user")
			return fmt.Errorf("operation canceled by user")
		}

		if err := database.DeleteDB(cfg.DBPath); err != nil {
			return fmt.Errorf("failed to delete existing database: %w", err)
		}
		log.Info().Str("path", cfg.DBPath).Msg("Deleted existing database")
	}

	db, err := database.NewDB(database.NewConfig(cfg.DBPath))
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer db.Close()

	ctx, cancel := signalContext()
	defer cancel()

	importer := importsources.NewImporter(storage.NewSourceStore(db), nil, log.Logger)
	res, err := importer.ImportFile(ctx, cfg.SourcesCSVPath)
	if err != nil {
		return err
	}

	fmt.Printf("Imported %d sources successfully (%d duplicates skipped)\n", res.Imported, res.Duplicates)
	if len(res.Errors) > 0 {
		fmt.Printf("Encountered %d errors:\n", len(res.Errors))
		for _, e := range res.Errors {
			fmt.Printf("  - %s\n", e)
		}
	}
	return nil
}

// runStart runs the ingestion pipeline headless, once or periodically.
func runStart(cfg *config.Config) error {
	ctx, cancel := signalContext()
	defer cancel()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.db.Close()

	if cfg.FetchInterval <= 0 {
		log.Info().Msg("Running in one-shot mode")
		res, err := a.scheduler.TriggerFetch(ctx)
		if err != nil {
			if process.IsCanceled(err) {
				log.Info().Msg("Processing canceled by shutdown signal")
				return nil
			}
			return err
		}
		log.Info().Int("articles", res.ArticlesProcessed).Strs("errors", res.Errors).Msg(res.Message)

		report, err := a.scheduler.TriggerFallback(ctx)
		if err != nil && !process.IsCanceled(err) {
			return err
		}
		log.Info().Int("summarized", report.Summarized).Msg("One-shot processing completed, exiting")
		return nil
	}

	log.Info().Int64("interval_minutes", int64(cfg.FetchInterval.Minutes())).Msg("Running in periodic mode")
	return a.runBackground(ctx, cfg, true, true)
}

// runBackground runs the scheduler and the queue worker until ctx is done.
func (a *app) runBackground(ctx context.Context, cfg *config.Config, withScheduler, withWorker bool) error {
	var wg sync.WaitGroup
	errc := make(chan error, 1)

	if withWorker {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := a.worker(cfg).Run(ctx); err != nil && !process.IsCanceled(err) {
				errc <- err
			}
		}()
	}
	if withScheduler {
		a.scheduler.Start(ctx)
		defer a.scheduler.Stop()
	}

	select {
	case <-ctx.Done():
		log.Info().Msg("Shutting down background processing")
	case err := <-errc:
		return err
	}
	wg.Wait()
	return nil
}

// runServer starts the HTTP API, with the background pipeline unless disabled.
func runServer(cfg *config.Config, withScheduler, withWorker bool) error {
	ctx, cancel := signalContext()
	defer cancel()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.db.Close()

	logger := log.Logger.With().Str("service", "newsbrief-api").Logger()
	handler := server.NewHandler(api.Deps{
		Articles:     a.articles,
		Summaries:    a.summaries,
		Direct:       a.fallback,
		Pipeline:     a.scheduler,
		Sources:      a.sourceSvc,
		SourceLister: a.sources,
		Summarizer:   a.gateway,
		Queue:        a.queue,
	}, a.db, logger, cfg.APIKey)

	bgCtx, bgCancel := context.WithCancel(ctx)
	bgDone := make(chan error, 1)
	go func() { bgDone <- a.runBackground(bgCtx, cfg, withScheduler, withWorker) }()

	serveErr := server.Run(ctx, handler, cfg.ListenAddr(), logger)
	bgCancel()
	if err := <-bgDone; err != nil && serveErr == nil {
		serveErr = err
	}
	return serveErr
}

// runWorker only consumes summarization jobs.
func runWorker(cfg *config.Config) error {
	ctx, cancel := signalContext()
	defer cancel()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.db.Close()

	err = a.worker(cfg).Run(ctx)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func runRollback(cfg *config.Config, n int) error {
	dbCfg := database.NewConfig(cfg.DBPath)
	dbCfg.SkipMigrations = true
	db, err := database.NewDB(dbCfg)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer db.Close()

	if err := database.Rollback(db.DB, n); err != nil {
		return err
	}
	log.Info().Int("steps", n).Msg("Rollback completed")
	return nil
}
