package review

import (
	"fmt"
	"strings"

	"litreview/internal/models"
)

// Placeholder is filled into missing summary text fields during
// normalization, and is also what the quality check hunts for.
const Placeholder = "not provided"

// placeholderMarkers are strings that indicate the model punted on a field
// instead of answering.
var placeholderMarkers = []string{
	"not provided",
	"not mentioned",
	"no information",
	"n/a",
	"null",
	"none",
	"unknown",
	"...",
}

const (
	minSummaryLen  = 50
	minFindingsLen = 50
	shortFieldLen  = 30
)

// ValidateSummary checks a structurally valid summary for sparse or
// placeholder-laden content. It returns ok=false with a joined reason list
// when the summary should not be accepted.
func ValidateSummary(s *models.Summary) (bool, string) {
	if s == nil {
		return false, "summary is empty"
	}
	var issues []string

	if reason := checkTextField("summary", s.Summary, minSummaryLen); reason != "" {
		issues = append(issues, reason)
	}
	if reason := checkTextField("findings", s.Findings, minFindingsLen); reason != "" {
		issues = append(issues, reason)
	}

	valid := 0
	for _, kp := range s.KeyPoints {
		kp = strings.TrimSpace(kp)
		if kp != "" && !isPlaceholder(kp) {
			valid++
		}
	}
	switch {
	case len(s.KeyPoints) == 0:
		issues = append(issues, "key_points is empty")
	case valid == 0:
		issues = append(issues, "key_points contains only placeholders")
	case valid < len(s.KeyPoints):
		issues = append(issues, "key_points contains placeholder entries")
	}

	for _, f := range []struct {
		name, value string
	}{
		{"conclusions", s.Conclusions},
		{"relevance", s.Relevance},
		{"limitations", s.Limitations},
	} {
		v := strings.TrimSpace(f.value)
		if v != "" && len(v) < shortFieldLen && isPlaceholder(v) {
			issues = append(issues, fmt.Sprintf("%s contains a placeholder", f.name))
		}
	}

	if len(issues) > 0 {
		return false, strings.Join(issues, "; ")
	}
	return true, ""
}

func checkTextField(name, value string, minLen int) string {
	v := strings.TrimSpace(value)
	switch {
	case v == "" || v == "...":
		return name + " is empty"
	case len(v) < minLen:
		return fmt.Sprintf("%s too short (<%d chars)", name, minLen)
	case len(v) < shortFieldLen*2 && isPlaceholder(v):
		return name + " contains a placeholder"
	}
	return ""
}

func isPlaceholder(s string) bool {
	lower := strings.ToLower(s)
	for _, marker := range placeholderMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}
