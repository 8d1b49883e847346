package review

import (
	"fmt"
	"strings"
	"unicode"

	"litreview/internal/models"
)

// EstimateTokens gives a rough token count for mixed-language text:
// CJK characters count one token each, latin letters roughly one token per
// four characters.
func EstimateTokens(text string) int {
	if text == "" {
		return 0
	}
	cjk, latin := 0, 0
	for _, r := range text {
		switch {
		case unicode.Is(unicode.Han, r):
			cjk++
		case r < 128 && unicode.IsLetter(r):
			latin++
		}
	}
	return cjk + latin/4
}

const (
	truncateHeadChars = 5000
	truncateTailChars = 30000
)

// TruncateContext shortens text to stay under maxTokens, keeping the head
// (instructions) and the tail (most recent entries) and dropping the middle.
// The retained window halves until the estimate fits the ceiling. Returns
// the possibly-shortened text and whether truncation happened.
func TruncateContext(text string, maxTokens int) (string, bool) {
	if EstimateTokens(text) <= maxTokens {
		return text, false
	}
	head, tail := truncateHeadChars, truncateTailChars
	for {
		out := keepHeadTail(text, head, tail)
		if EstimateTokens(out) <= maxTokens || (head == 0 && tail == 0) {
			return out, true
		}
		head /= 2
		tail /= 2
	}
}

func keepHeadTail(text string, head, tail int) string {
	runes := []rune(text)
	if head > len(runes) {
		head = len(runes)
	}
	tailStart := len(runes) - tail
	if tailStart < head {
		tailStart = len(runes) / 2
	}
	return string(runes[:head]) + "\n\n[... middle content truncated ...]\n\n" + string(runes[tailStart:])
}

// BuildReviewContext renders the successful summaries as compact markdown
// for the outline/synthesis prompts, truncated under the token ceiling.
func BuildReviewContext(results []models.ProcessingResult, maxTokens int) string {
	var b strings.Builder
	b.WriteString("# Literature summaries\n\n")

	n := 0
	for _, r := range results {
		if r.Status != models.StatusSuccess || r.Summary == nil {
			continue
		}
		n++
		s := r.Summary
		title := s.Title
		if title == "" {
			title = r.Paper.Title
		}
		if title == "" {
			title = "untitled"
		}
		fmt.Fprintf(&b, "## Paper %d: %s\n\n", n, title)
		if len(s.Authors) > 0 {
			fmt.Fprintf(&b, "**Authors**: %s (%s)\n\n", strings.Join(s.Authors, ", "), orUnknown(s.Year))
		}
		writeSection(&b, "Summary", s.Summary)
		writeSection(&b, "Findings", s.Findings)
		writeSection(&b, "Methodology", s.Methodology)
		if len(s.KeyPoints) > 0 {
			b.WriteString("**Key points**:\n")
			for i, kp := range s.KeyPoints {
				kp = strings.TrimSpace(kp)
				if kp == "" || kp == "..." {
					continue
				}
				fmt.Fprintf(&b, "%d. %s\n", i+1, kp)
			}
			b.WriteString("\n")
		}
		b.WriteString("---\n\n")
	}
	if n == 0 {
		b.WriteString("(no data)\n")
	}

	out, _ := TruncateContext(b.String(), maxTokens)
	return out
}

func writeSection(b *strings.Builder, label, text string) {
	text = strings.TrimSpace(text)
	if text == "" || text == "..." || strings.EqualFold(text, Placeholder) {
		return
	}
	fmt.Fprintf(b, "**%s**: %s\n\n", label, text)
}

func orUnknown(s string) string {
	if strings.TrimSpace(s) == "" {
		return "unknown year"
	}
	return s
}
