package report

import (
	"os"
	"path/filepath"
	"testing"

	"litreview/internal/models"

	"github.com/stretchr/testify/require"
)

func sampleResults() []models.ProcessingResult {
	return []models.ProcessingResult{
		{
			Paper:  models.PaperInfo{Title: "Good Paper", PDFPath: "/pdfs/good.pdf"},
			Status: models.StatusSuccess,
			Summary: &models.Summary{
				Summary: "fine", KeyPoints: []string{}, Findings: "fine",
			},
		},
		{
			Paper:         models.PaperInfo{Title: "Flaky Paper", PDFPath: "/pdfs/flaky.pdf"},
			Status:        models.StatusFailed,
			FailureReason: "http 500: upstream sad",
			Retriable:     true,
		},
		{
			Paper:         models.PaperInfo{PDFPath: "/pdfs/scan.pdf"},
			Status:        models.StatusFailed,
			FailureReason: "no extractable text",
			Retriable:     false,
		},
	}
}

func TestStoreSaveLoadRoundTrip(t *testing.T) {
	s := NewStore(filepath.Join(t.TempDir(), "summaries.json"))
	require.NoError(t, s.Save(sampleResults()))

	got, err := s.Load()
	require.NoError(t, err)
	require.Len(t, got, 3)
	require.Equal(t, "Good Paper", got[0].Paper.Title)
	require.NotNil(t, got[0].Summary)
	require.True(t, got[1].Retriable)
}

func TestStoreLoadMissingIsEmpty(t *testing.T) {
	s := NewStore(filepath.Join(t.TempDir(), "nope.json"))
	got, err := s.Load()
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestWriteFailureReport(t *testing.T) {
	path := filepath.Join(t.TempDir(), "failed.md")
	wrote, err := WriteFailureReport(path, sampleResults())
	require.NoError(t, err)
	require.True(t, wrote)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(raw), "Flaky Paper")
	require.Contains(t, string(raw), "no extractable text")
	require.Contains(t, string(raw), "2 of 3 papers failed")
	require.NotContains(t, string(raw), "Good Paper")
}

func TestWriteFailureReportSkipsWhenClean(t *testing.T) {
	path := filepath.Join(t.TempDir(), "failed.md")
	wrote, err := WriteFailureReport(path, sampleResults()[:1])
	require.NoError(t, err)
	require.False(t, wrote)
	_, statErr := os.Stat(path)
	require.True(t, os.IsNotExist(statErr))
}

func TestWriteReviewContext(t *testing.T) {
	path := filepath.Join(t.TempDir(), "review_context.md")
	wrote, err := WriteReviewContext(path, sampleResults(), 100000)
	require.NoError(t, err)
	require.True(t, wrote)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(raw), "Paper 1: Good Paper")
	require.NotContains(t, string(raw), "Flaky Paper")
}

func TestWriteReviewContextSkipsWhenNothingSucceeded(t *testing.T) {
	path := filepath.Join(t.TempDir(), "review_context.md")
	wrote, err := WriteReviewContext(path, sampleResults()[1:], 100000)
	require.NoError(t, err)
	require.False(t, wrote)
	_, statErr := os.Stat(path)
	require.True(t, os.IsNotExist(statErr))
}

func TestWriteRetryListOnlyRetriable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "retry.txt")
	n, err := WriteRetryList(path, sampleResults())
	require.NoError(t, err)
	require.Equal(t, 1, n)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "/pdfs/flaky.pdf\n", string(raw))
}
