package report

import (
	"fmt"
	"strings"
	"time"

	"litreview/internal/models"
	"litreview/internal/review"
	"litreview/internal/util"
)

// WriteFailureReport renders a human-readable markdown report of every
// failed paper. Nothing is written when there are no failures; a stale
// report from an earlier run would otherwise look current.
func WriteFailureReport(path string, results []models.ProcessingResult) (bool, error) {
	var failed []models.ProcessingResult
	for _, r := range results {
		if r.Status == models.StatusFailed {
			failed = append(failed, r)
		}
	}
	if len(failed) == 0 {
		return false, nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# Failed papers\n\nGenerated: %s\n\n", time.Now().Format(time.RFC3339))
	fmt.Fprintf(&b, "%d of %d papers failed.\n\n", len(failed), len(results))
	for i, r := range failed {
		title := r.Paper.Title
		if title == "" {
			title = r.Paper.PDFPath
		}
		fmt.Fprintf(&b, "## %d. %s\n\n", i+1, title)
		if r.Paper.PDFPath != "" {
			fmt.Fprintf(&b, "- File: `%s`\n", r.Paper.PDFPath)
		}
		fmt.Fprintf(&b, "- Reason: %s\n", r.FailureReason)
		fmt.Fprintf(&b, "- Retriable: %t\n\n", r.Retriable)
	}

	if err := util.WriteTextAtomic(path, b.String()); err != nil {
		return false, fmt.Errorf("report: write failure report: %w", err)
	}
	return true, nil
}

// WriteReviewContext renders the successful summaries into one markdown
// context document sized for the outline and synthesis prompts. Nothing is
// written when no paper succeeded.
func WriteReviewContext(path string, results []models.ProcessingResult, maxTokens int) (bool, error) {
	succeeded := 0
	for _, r := range results {
		if r.Status == models.StatusSuccess && r.Summary != nil {
			succeeded++
		}
	}
	if succeeded == 0 {
		return false, nil
	}
	if err := util.WriteTextAtomic(path, review.BuildReviewContext(results, maxTokens)); err != nil {
		return false, fmt.Errorf("report: write review context: %w", err)
	}
	return true, nil
}

// WriteRetryList writes one PDF path per line for every retriable failure,
// ready to be fed back into a follow-up run.
func WriteRetryList(path string, results []models.ProcessingResult) (int, error) {
	var lines []string
	for _, r := range results {
		if r.Status == models.StatusFailed && r.Retriable && r.Paper.PDFPath != "" {
			lines = append(lines, r.Paper.PDFPath)
		}
	}
	if len(lines) == 0 {
		return 0, nil
	}
	if err := util.WriteTextAtomic(path, strings.Join(lines, "\n")+"\n"); err != nil {
		return 0, fmt.Errorf("report: write retry list: %w", err)
	}
	return len(lines), nil
}
