package review

import (
	"strings"
	"testing"

	"litreview/internal/models"

	"github.com/stretchr/testify/require"
)

func goodSummary() *models.Summary {
	long := strings.Repeat("solid analytical content ", 5)
	return &models.Summary{
		Summary:     long,
		KeyPoints:   []string{"point one", "point two"},
		Methodology: "mixed methods",
		Findings:    long,
		Conclusions: "the intervention worked as designed across cohorts",
		Relevance:   "directly relevant to the research question at hand",
		Limitations: "small sample size limits the generalizability here",
	}
}

func TestValidateSummaryAccepts(t *testing.T) {
	ok, reason := ValidateSummary(goodSummary())
	require.True(t, ok, reason)
}

func TestValidateSummaryRejectsNil(t *testing.T) {
	ok, _ := ValidateSummary(nil)
	require.False(t, ok)
}

func TestValidateSummaryRejectsEmptySummary(t *testing.T) {
	s := goodSummary()
	s.Summary = ""
	ok, reason := ValidateSummary(s)
	require.False(t, ok)
	require.Contains(t, reason, "summary is empty")
}

func TestValidateSummaryRejectsShortFindings(t *testing.T) {
	s := goodSummary()
	s.Findings = "too short"
	ok, reason := ValidateSummary(s)
	require.False(t, ok)
	require.Contains(t, reason, "findings too short")
}

func TestValidateSummaryRejectsPlaceholderKeyPoints(t *testing.T) {
	s := goodSummary()
	s.KeyPoints = []string{"...", "not provided"}
	ok, reason := ValidateSummary(s)
	require.False(t, ok)
	require.Contains(t, reason, "key_points")
}

func TestValidateSummaryFlagsPlaceholderConclusions(t *testing.T) {
	s := goodSummary()
	s.Conclusions = "N/A"
	ok, reason := ValidateSummary(s)
	require.False(t, ok)
	require.Contains(t, reason, "conclusions")
}
