package batch

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"litreview/internal/checkpoint"
	"litreview/internal/config"
	"litreview/internal/engine"
	"litreview/internal/gateway"
	"litreview/internal/models"
	"litreview/internal/pdfx"
	"litreview/internal/ratelimit"
	"litreview/internal/report"
	"litreview/internal/review"
	"litreview/internal/util"
)

// Summarizer is the orchestrator surface the driver depends on.
type Summarizer interface {
	Summarize(ctx context.Context, systemPrompt, prompt string) (*models.Summary, ratelimit.Engine, error)
	SummarizeBackup(ctx context.Context, systemPrompt, prompt string) (*models.Summary, error)
}

// Driver runs the paper batch: a bounded worker pool over the pending
// papers, per-item persistence, and a multi-round retry loop over the
// retriable failures. All shared progress lives behind one mutex.
type Driver struct {
	cfg          config.Config
	summarizer   Summarizer
	extract      func(path string) (string, error)
	store        *report.Store
	ckpt         *checkpoint.Manager
	systemPrompt string
	sleep        func(time.Duration)
	log          *log.Logger

	mu      sync.Mutex
	state   *checkpoint.State
	results map[string]models.ProcessingResult
	order   []string
}

// NewDriver wires a driver from explicit dependencies. extract may be nil,
// in which case the PDF extractor is used.
func NewDriver(cfg config.Config, s Summarizer, extract func(string) (string, error), store *report.Store, ckpt *checkpoint.Manager, systemPrompt string, logger *log.Logger) *Driver {
	if extract == nil {
		extract = pdfx.ExtractText
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Driver{
		cfg:          cfg,
		summarizer:   s,
		extract:      extract,
		store:        store,
		ckpt:         ckpt,
		systemPrompt: systemPrompt,
		sleep:        time.Sleep,
		log:          logger,
	}
}

// Run processes the batch and returns every recorded result, resumed ones
// included. A canceled context stops dispatch; everything already recorded
// is flushed, and the error reports the interruption.
func (d *Driver) Run(ctx context.Context, papers []models.PaperInfo) ([]models.ProcessingResult, error) {
	st, resumed := d.ckpt.Load()
	d.state = st
	d.results = map[string]models.ProcessingResult{}
	d.order = nil
	if resumed {
		prior, err := d.store.Load()
		if err != nil {
			d.log.Printf("batch: prior results unreadable, keeping checkpoint only: %v", err)
		} else {
			for _, r := range prior {
				id := checkpoint.Identity(r.Paper)
				if _, ok := d.results[id]; !ok {
					d.order = append(d.order, id)
				}
				d.results[id] = r
			}
		}
		d.log.Printf("batch: resuming %q, %d processed and %d failed recorded",
			st.Project, len(st.Processed), len(st.Failed))
	}

	byID := make(map[string]models.PaperInfo, len(papers))
	pending := make([]models.PaperInfo, 0, len(papers))
	for _, p := range papers {
		id := checkpoint.Identity(p)
		byID[id] = p
		if !st.Seen(id) {
			pending = append(pending, p)
		}
	}
	d.log.Printf("batch: %d papers, %d pending", len(papers), len(pending))
	d.runRound(ctx, pending)

	base := time.Duration(d.cfg.Retry.BaseDelaySeconds) * time.Second
	maxDelay := time.Duration(d.cfg.Retry.MaxDelaySeconds) * time.Second
	for round := 1; round <= d.cfg.Retry.MaxRounds; round++ {
		if ctx.Err() != nil {
			break
		}
		again := d.takeRetriable(byID)
		if len(again) == 0 {
			break
		}
		delay := time.Duration(round) * base
		if delay > maxDelay {
			delay = maxDelay
		}
		d.log.Printf("batch: retry round %d/%d, %d papers, waiting %s",
			round, d.cfg.Retry.MaxRounds, len(again), delay)
		select {
		case <-ctx.Done():
		default:
			d.sleep(delay)
		}
		if ctx.Err() != nil {
			break
		}
		d.runRound(ctx, again)
	}

	return d.snapshot(), ctx.Err()
}

func (d *Driver) runRound(ctx context.Context, papers []models.PaperInfo) {
	if len(papers) == 0 {
		return
	}
	workers := d.cfg.Performance.MaxWorkers
	if workers <= 0 {
		workers = 1
	}
	if workers > len(papers) {
		workers = len(papers)
	}

	jobs := make(chan models.PaperInfo)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for p := range jobs {
				d.processOne(ctx, p)
			}
		}()
	}
	for _, p := range papers {
		select {
		case <-ctx.Done():
			// Stop dispatching; undelivered papers stay pending for the
			// next run.
		case jobs <- p:
			continue
		}
		break
	}
	close(jobs)
	wg.Wait()
}

func (d *Driver) processOne(ctx context.Context, paper models.PaperInfo) {
	if ctx.Err() != nil {
		return
	}
	identity := checkpoint.Identity(paper)

	text, err := d.extract(paper.PDFPath)
	if err != nil {
		d.recordFailure(identity, paper, fmt.Sprintf("extraction failed: %v", err), false)
		return
	}
	if len(text) < d.cfg.Performance.MinTextChars {
		d.recordFailure(identity, paper,
			fmt.Sprintf("%v: %d chars, need %d", util.ErrTextTooShort, len(text), d.cfg.Performance.MinTextChars),
			false)
		return
	}

	prompt, truncated := review.TruncateContext(buildPrompt(paper, text), d.promptCeiling())
	if truncated {
		d.log.Printf("batch: %s truncated to fit the token ceiling", identity)
	}

	summary, eng, err := d.summarizer.Summarize(ctx, d.systemPrompt, prompt)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		d.recordFailure(identity, paper, err.Error(), isRetriable(err))
		return
	}

	if ok, reason := review.ValidateSummary(summary); !ok {
		summary, reason = d.retryQuality(ctx, identity, summary, reason, eng, prompt)
		if reason != "" {
			d.recordFailure(identity, paper, "quality check failed: "+reason, true)
			return
		}
	}

	mergeMetadata(&paper, summary, text)
	d.recordSuccess(identity, paper, summary, len(text))
}

// retryQuality gives a rejected summary one shot on the backup engine.
// Returns the summary to keep and an empty reason on acceptance.
func (d *Driver) retryQuality(ctx context.Context, identity string, s *models.Summary, reason string, eng ratelimit.Engine, prompt string) (*models.Summary, string) {
	if eng != ratelimit.EnginePrimary || !d.cfg.Backup.Configured() {
		return s, reason
	}
	d.log.Printf("batch: %s failed quality (%s), retrying on backup", identity, reason)
	retried, err := d.summarizer.SummarizeBackup(ctx, d.systemPrompt, prompt)
	if err != nil {
		return s, reason
	}
	if ok, retryReason := review.ValidateSummary(retried); !ok {
		return retried, retryReason
	}
	return retried, ""
}

func (d *Driver) recordSuccess(identity string, paper models.PaperInfo, s *models.Summary, textLen int) {
	d.record(identity, models.ProcessingResult{
		Paper:       paper,
		Status:      models.StatusSuccess,
		Summary:     s,
		ProcessedAt: time.Now().UTC(),
		TextLength:  textLen,
	})
}

func (d *Driver) recordFailure(identity string, paper models.PaperInfo, reason string, retriable bool) {
	d.log.Printf("batch: %s failed: %s (retriable=%t)", identity, reason, retriable)
	d.record(identity, models.ProcessingResult{
		Paper:         paper,
		Status:        models.StatusFailed,
		FailureReason: reason,
		Retriable:     retriable,
		ProcessedAt:   time.Now().UTC(),
	})
}

// record stores one outcome and flushes both the summaries file and the
// checkpoint before releasing the lock, so an interrupt between items never
// loses a finished paper.
func (d *Driver) record(identity string, r models.ProcessingResult) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.results[identity]; !ok {
		d.order = append(d.order, identity)
	}
	d.results[identity] = r
	if r.Status == models.StatusSuccess {
		d.state.MarkProcessed(identity)
	} else {
		d.state.MarkFailed(identity, r.FailureReason)
	}
	if err := d.store.Save(d.snapshotLocked()); err != nil {
		d.log.Printf("batch: %v", err)
	}
	if err := d.ckpt.Save(d.state); err != nil {
		d.log.Printf("batch: %v", err)
	}
}

// takeRetriable collects the papers eligible for another round and clears
// their failure marks so reprocessing records a fresh outcome.
func (d *Driver) takeRetriable(byID map[string]models.PaperInfo) []models.PaperInfo {
	d.mu.Lock()
	defer d.mu.Unlock()

	var out []models.PaperInfo
	for id, r := range d.results {
		if r.Status != models.StatusFailed || !r.Retriable {
			continue
		}
		p, known := byID[id]
		if !known {
			continue
		}
		if _, failed := d.state.Failed[id]; !failed {
			continue
		}
		delete(d.state.Failed, id)
		out = append(out, p)
	}
	return out
}

func (d *Driver) snapshot() []models.ProcessingResult {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.snapshotLocked()
}

func (d *Driver) snapshotLocked() []models.ProcessingResult {
	out := make([]models.ProcessingResult, 0, len(d.order))
	for _, id := range d.order {
		out = append(out, d.results[id])
	}
	return out
}

// promptCeiling bounds the per-paper prompt under the larger engine's token
// budget, leaving room for the completion.
func (d *Driver) promptCeiling() int {
	c := d.cfg.Limits.PrimaryTPM
	if d.cfg.Limits.BackupTPM > c {
		c = d.cfg.Limits.BackupTPM
	}
	if c <= 0 {
		return 120000
	}
	if reserve := d.cfg.Performance.ReserveTokens; reserve > 0 && reserve < c {
		c -= reserve
	}
	return c
}

func isRetriable(err error) bool {
	switch {
	case errors.Is(err, engine.ErrBudgetExhausted):
		return true
	case errors.Is(err, engine.ErrContentTooLarge):
		return false
	default:
		return gateway.Retriable(err)
	}
}

func buildPrompt(p models.PaperInfo, text string) string {
	var b strings.Builder
	if p.Title != "" {
		fmt.Fprintf(&b, "Paper: %s\n", p.Title)
	}
	if p.DOI != "" {
		fmt.Fprintf(&b, "DOI: %s\n", p.DOI)
	}
	b.WriteString("\n--- PAPER TEXT ---\n")
	b.WriteString(text)
	return b.String()
}

// mergeMetadata backfills the bibliographic record from the summary, and
// falls back to the first lines of the text for authors.
func mergeMetadata(p *models.PaperInfo, s *models.Summary, text string) {
	if t := strings.TrimSpace(s.Title); t != "" && !strings.EqualFold(t, review.Placeholder) {
		p.Title = t
	}
	if p.DOI == "" {
		p.DOI = strings.TrimSpace(s.DOI)
	}
	if p.Year == "" {
		p.Year = strings.TrimSpace(s.Year)
	}
	if p.Journal == "" {
		p.Journal = strings.TrimSpace(s.Journal)
	}
	if len(p.Authors) == 0 {
		p.Authors = s.Authors
	}
	if len(p.Authors) == 0 {
		_, p.Authors = pdfx.GuessTitleAuthors(text)
	}
	if strings.TrimSpace(s.Title) == "" || strings.EqualFold(s.Title, review.Placeholder) {
		s.Title = p.Title
	}
	if len(s.Authors) == 0 {
		s.Authors = p.Authors
	}
}
