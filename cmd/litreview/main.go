package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"litreview/internal/batch"
	"litreview/internal/checkpoint"
	"litreview/internal/config"
	"litreview/internal/engine"
	"litreview/internal/gateway"
	"litreview/internal/models"
	"litreview/internal/pdfx"
	"litreview/internal/ratelimit"
	"litreview/internal/report"
	"litreview/internal/storage"

	"github.com/joho/godotenv"
)

const defaultSystemPrompt = `You are an expert research assistant. Summarize the given paper as a single JSON object with the fields: title, authors, year, journal, doi, summary, key_points, methodology, findings, conclusions, relevance, limitations. Respond with JSON only.`

func main() {
	_ = godotenv.Load(".env")

	configPath := flag.String("config", "", "path to the YAML config file")
	flag.Parse()

	logger := log.New(os.Stderr, "litreview: ", log.LstdFlags)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatal(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal(err)
	}
}

func run(ctx context.Context, cfg config.Config, logger *log.Logger) error {
	papers, err := pdfx.ScanFolder(cfg.Paths.PDFDir)
	if err != nil {
		return err
	}
	logger.Printf("found %d PDFs in %s", len(papers), cfg.Paths.PDFDir)

	client := gateway.NewClient(time.Duration(cfg.Performance.TimeoutSeconds)*time.Second, logger)
	if cfg.PostgresURL != "" {
		db, err := storage.NewDB(ctx, cfg.PostgresURL)
		if err != nil {
			return err
		}
		defer db.Close()
		if err := db.EnsureSchema(ctx); err != nil {
			return err
		}
		client.SetAudit(storage.NewCallAuditRepo(db, cfg.Project, logger))
		logger.Printf("call audit enabled")
	}

	limiter := ratelimit.NewLimiter(cfg.Limits)
	orch := engine.New(cfg, limiter, client, logger)

	store := report.NewStore(filepath.Join(cfg.Paths.OutputDir, "summaries.json"))
	ckpt := checkpoint.NewManager(filepath.Join(cfg.Paths.OutputDir, "checkpoint.json"), cfg.Project, logger)

	driver := batch.NewDriver(cfg, orch, nil, store, ckpt, systemPrompt(cfg, logger), logger)
	results, runErr := driver.Run(ctx, papers)

	succeeded, failed := tally(results)
	logger.Printf("done: %d succeeded, %d failed", succeeded, failed)

	if wrote, err := report.WriteFailureReport(filepath.Join(cfg.Paths.OutputDir, "failed_papers.md"), results); err != nil {
		logger.Printf("%v", err)
	} else if wrote {
		logger.Printf("failure report written to %s", filepath.Join(cfg.Paths.OutputDir, "failed_papers.md"))
	}
	if n, err := report.WriteRetryList(filepath.Join(cfg.Paths.OutputDir, "papers_to_retry.txt"), results); err != nil {
		logger.Printf("%v", err)
	} else if n > 0 {
		logger.Printf("%d papers queued for retry in papers_to_retry.txt", n)
	}
	if wrote, err := report.WriteReviewContext(filepath.Join(cfg.Paths.OutputDir, "review_context.md"), results, contextCeiling(cfg)); err != nil {
		logger.Printf("%v", err)
	} else if wrote {
		logger.Printf("review context written to %s", filepath.Join(cfg.Paths.OutputDir, "review_context.md"))
	}

	if runErr != nil {
		logger.Printf("interrupted, progress checkpointed for resume")
		return runErr
	}
	if failed == 0 && len(results) > 0 {
		if err := ckpt.Clear(); err != nil {
			return err
		}
		logger.Printf("all papers processed, checkpoint cleared")
	}
	return nil
}

func systemPrompt(cfg config.Config, logger *log.Logger) string {
	if cfg.Paths.PromptFile == "" {
		return defaultSystemPrompt
	}
	raw, err := os.ReadFile(cfg.Paths.PromptFile)
	if err != nil {
		logger.Printf("prompt file %s unreadable (%v), using built-in prompt", cfg.Paths.PromptFile, err)
		return defaultSystemPrompt
	}
	return string(raw)
}

// contextCeiling sizes the review context under the larger engine's token
// budget, mirroring the per-paper prompt ceiling.
func contextCeiling(cfg config.Config) int {
	c := cfg.Limits.PrimaryTPM
	if cfg.Limits.BackupTPM > c {
		c = cfg.Limits.BackupTPM
	}
	if c <= 0 {
		return 120000
	}
	return c
}

func tally(results []models.ProcessingResult) (succeeded, failed int) {
	for _, r := range results {
		if r.Status == models.StatusSuccess {
			succeeded++
		} else {
			failed++
		}
	}
	return succeeded, failed
}
