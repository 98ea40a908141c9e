package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/go-pkgz/lgr"
	"github.com/jessevdk/go-flags"
	"golang.org/x/sync/errgroup"

	"github.com/umputun/dealscope/pkg/affiliate"
	"github.com/umputun/dealscope/pkg/ai"
	"github.com/umputun/dealscope/pkg/config"
	"github.com/umputun/dealscope/pkg/domain"
	"github.com/umputun/dealscope/pkg/normalize"
	"github.com/umputun/dealscope/pkg/pipeline"
	"github.com/umputun/dealscope/pkg/scheduler"
	"github.com/umputun/dealscope/pkg/source"
	"github.com/umputun/dealscope/pkg/store"
	"github.com/umputun/dealscope/server"
)

// Opts with all CLI options
type Opts struct {
	Config string `short:"f" long:"config" env:"CONFIG" default:"dealscope.yml" description:"config file"`

	// Common options
	Debug   bool `long:"dbg" env:"DEBUG" description:"debug mode"`
	Version bool `short:"V" long:"version" description:"show version info"`
	NoColor bool `long:"no-color" env:"NO_COLOR" description:"disable color output"`
}

var revision = "unknown"

func main() {
	var opts Opts
	parser := flags.NewParser(&opts, flags.Default)
	if _, err := parser.Parse(); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok && flagsErr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		os.Exit(1)
	}

	if opts.Version {
		fmt.Printf("Version: %s\nGolang: %s\n", revision, runtime.Version())
		os.Exit(0)
	}

	cfg, err := config.Load(opts.Config)
	if err != nil {
		fmt.Printf("failed to load config %s: %v\n", opts.Config, err)
		os.Exit(1)
	}

	setupLog(opts.Debug, cfg.AI.APIKey)

	log.Printf("[INFO] starting dealscope version %s", revision)

	ctx, cancel := context.WithCancel(context.Background())

	// handle termination signals
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		<-sigChan
		log.Print("[INFO] termination signal received")
		cancel()
	}()

	if err := run(ctx, cfg, opts.Debug); err != nil {
		log.Printf("[ERROR] dealscope failed: %v", err)
		cancel()
		os.Exit(1)
	}

	cancel()
	log.Print("[INFO] shutdown complete")
}

// run wires the store, pipeline, scheduler and http server together and
// blocks until the context is canceled
func run(ctx context.Context, cfg *config.Config, debug bool) error {
	db, err := store.New(ctx, store.Config{
		DSN:             cfg.Database.DSN,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: time.Duration(cfg.Database.ConnMaxLifetime) * time.Second,
	})
	if err != nil {
		return fmt.Errorf("init store: %w", err)
	}
	defer db.Close()

	if err := seed(ctx, db, cfg); err != nil {
		return fmt.Errorf("seed store: %w", err)
	}

	aiClient := ai.NewClient(cfg.GetAIConfig())
	if aiClient.Enabled() {
		log.Printf("[INFO] ai enabled, model %s", cfg.AI.Model)
	} else {
		log.Printf("[INFO] ai disabled, using deterministic fallbacks")
	}

	httpClient := &http.Client{Timeout: 30 * time.Second}
	newAdapter := func(src domain.Source) (source.Adapter, error) { return source.New(src, httpClient) }

	fetcher := pipeline.NewFetcher(db, normalize.New(), newAdapter, cfg.Schedule.MaxWorkers)
	evalStage := pipeline.NewEvalStage(db, ai.NewEvaluator(aiClient, cfg.Evaluation.HeuristicWeight),
		cfg.Evaluation.ScoreThreshold, cfg.Queue.MaxAttempts, 100)
	processor := pipeline.NewProcessor(db, ai.NewGenerator(aiClient), cfg.Schedule.MaxWorkers)
	publisher := pipeline.NewPublisher(db, affiliate.NewLinker(db), cfg.Publishing.Mode,
		cfg.Publishing.MinArticles, cfg.Publishing.MaxArticles)

	sched := scheduler.New(scheduler.Params{
		Fetcher:          fetcher,
		Evaluator:        evalStage,
		Processor:        processor,
		Publisher:        publisher,
		Queue:            db,
		FetchInterval:    time.Duration(cfg.Schedule.FetchInterval) * time.Minute,
		EvaluateInterval: time.Duration(cfg.Schedule.EvaluateInterval) * time.Minute,
		ProcessInterval:  time.Duration(cfg.Schedule.ProcessInterval) * time.Minute,
		PublishInterval:  time.Duration(cfg.Schedule.PublishInterval) * time.Minute,
		RetryDelay:       cfg.Queue.RetryDelay,
		ReclaimAfter:     cfg.Queue.ReclaimAfter,
		RunDeadline:      time.Duration(cfg.Schedule.RunDeadline) * time.Minute,
	})

	srv := server.New(cfg, db, sched, revision, debug)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		sched.Start(gctx)
		return nil
	})
	g.Go(func() error {
		return srv.Run(gctx)
	})
	return g.Wait()
}

// seed upserts configured sources and affiliate programs so the config file
// stays the single place they are defined
func seed(ctx context.Context, db *store.Store, cfg *config.Config) error {
	for _, sd := range cfg.Sources {
		settings, err := json.Marshal(sd.Settings)
		if err != nil {
			return fmt.Errorf("encode settings for source %q: %w", sd.Name, err)
		}
		src := domain.Source{
			Kind:         sd.Kind,
			Name:         sd.Name,
			Active:       sd.Active,
			SyncInterval: sd.SyncInterval,
			Config:       string(settings),
		}
		if err := db.UpsertSource(ctx, &src); err != nil {
			return fmt.Errorf("upsert source %q: %w", sd.Name, err)
		}
	}

	for _, ad := range cfg.Affiliates {
		program := domain.AffiliateProgram{
			Name:           ad.Name,
			URLPattern:     ad.URLPattern,
			CommissionRate: ad.CommissionRate,
			Active:         ad.Active,
			Priority:       ad.Priority,
		}
		if err := db.UpsertAffiliateProgram(ctx, &program); err != nil {
			return fmt.Errorf("upsert affiliate program %q: %w", ad.Name, err)
		}
	}

	if len(cfg.Sources) > 0 || len(cfg.Affiliates) > 0 {
		log.Printf("[INFO] seeded %d sources, %d affiliate programs", len(cfg.Sources), len(cfg.Affiliates))
	}
	return nil
}

func setupLog(dbg bool, secs ...string) {
	logOpts := []lgr.Option{lgr.Msec, lgr.LevelBraces}
	if dbg {
		logOpts = []lgr.Option{lgr.Debug, lgr.CallerFile, lgr.CallerFunc, lgr.Msec, lgr.LevelBraces, lgr.StackTraceOnError}
	}

	colorizer := lgr.Mapper{
		ErrorFunc:  func(s string) string { return color.New(color.FgHiRed).Sprint(s) },
		WarnFunc:   func(s string) string { return color.New(color.FgRed).Sprint(s) },
		InfoFunc:   func(s string) string { return color.New(color.FgYellow).Sprint(s) },
		DebugFunc:  func(s string) string { return color.New(color.FgWhite).Sprint(s) },
		CallerFunc: func(s string) string { return color.New(color.FgBlue).Sprint(s) },
		TimeFunc:   func(s string) string { return color.New(color.FgCyan).Sprint(s) },
	}
	logOpts = append(logOpts, lgr.Map(colorizer))

	for _, s := range secs {
		if s != "" {
			logOpts = append(logOpts, lgr.Secret(s))
		}
	}
	lgr.SetupStdLogger(logOpts...)
	lgr.Setup(logOpts...)
}
