package review

import (
	"strings"
	"testing"

	"litreview/internal/models"

	"github.com/stretchr/testify/require"
)

func TestEstimateTokens(t *testing.T) {
	require.Equal(t, 0, EstimateTokens(""))
	// 8 latin letters -> 2 tokens.
	require.Equal(t, 2, EstimateTokens("abcdefgh"))
	// CJK characters count one each.
	require.Equal(t, 4, EstimateTokens("文献综述"))
}

func TestTruncateContextPassThrough(t *testing.T) {
	out, truncated := TruncateContext("short text", 1000)
	require.False(t, truncated)
	require.Equal(t, "short text", out)
}

func TestTruncateContextKeepsHeadAndTail(t *testing.T) {
	head := strings.Repeat("H", 6000)
	tail := strings.Repeat("T", 31000)
	middle := strings.Repeat("M文", 200000)
	text := head + middle + tail

	out, truncated := TruncateContext(text, 1000)
	require.True(t, truncated)
	require.True(t, strings.HasPrefix(out, "HHHH"))
	require.True(t, strings.HasSuffix(out, "TTTT"))
	require.Contains(t, out, "middle content truncated")
	require.Less(t, len(out), len(text))
	require.LessOrEqual(t, EstimateTokens(out), 1000)
}

func TestTruncateContextFitsTightCeilings(t *testing.T) {
	text := strings.Repeat("dense latin filler text ", 20000)
	for _, ceiling := range []int{8000, 2000, 500, 50} {
		out, truncated := TruncateContext(text, ceiling)
		require.True(t, truncated)
		require.LessOrEqual(t, EstimateTokens(out), ceiling, "ceiling %d", ceiling)
	}
}

func TestBuildReviewContextSkipsFailures(t *testing.T) {
	results := []models.ProcessingResult{
		{Status: models.StatusFailed, FailureReason: "boom"},
		{
			Status: models.StatusSuccess,
			Paper:  models.PaperInfo{Title: "Fallback Title"},
			Summary: &models.Summary{
				Summary:   "a meaningful summary of the paper",
				Findings:  "solid findings",
				KeyPoints: []string{"kp1"},
				Authors:   []string{"Ada Lovelace"},
				Year:      "1843",
			},
		},
	}
	out := BuildReviewContext(results, 100000)
	require.Contains(t, out, "Paper 1: Fallback Title")
	require.Contains(t, out, "Ada Lovelace")
	require.NotContains(t, out, "boom")
}
