package gateway

import (
	"encoding/json"
	"errors"
	"regexp"
	"strings"
)

// Models wrap JSON in prose or markdown, or emit near-valid JSON (trailing
// commas, unquoted keys, single quotes). Recover tries a strict-to-loose
// ladder of extraction strategies; AutoCorrect escalates to textual repair
// and, as a last resort, key/value reconstruction. The pipeline never
// fails outright: FallbackRecord guarantees some parseable structure.

var (
	fenceRe    = regexp.MustCompile("(?is)```(?:json)?\\s*(\\{.*?\\})\\s*```")
	rawFenceRe = regexp.MustCompile("(?is)```json\\s*(.*?)\\s*```")
	objectRe   = regexp.MustCompile(`(?s)\{.*\}`)

	lineCommentRe  = regexp.MustCompile(`//[^\n]*`)
	blockCommentRe = regexp.MustCompile(`(?s)/\*.*?\*/`)
	trailObjRe     = regexp.MustCompile(`,\s*}`)
	trailArrRe     = regexp.MustCompile(`,\s*]`)
	singleQuoteRe  = regexp.MustCompile(`(\w+)\s*:\s*'([^']*)'`)
	bareKeyRe      = regexp.MustCompile(`(\w+)\s*:`)
	newlineRe      = regexp.MustCompile(`[\n\r]+`)
	spaceRe        = regexp.MustCompile(`\s+`)

	pairStrictRe = regexp.MustCompile(`["']?(\w+)["']?\s*:\s*("(?:\\.|[^"\\])*"|\d+(?:\.\d+)?|true|false|null)`)
	pairQuotedRe = regexp.MustCompile(`["']?(\w+)["']?\s*:\s*"((?:\\.|[^"\\])*)"`)
	pairLooseRe  = regexp.MustCompile(`["']?(\w+)["']?\s*:\s*([^,}]+)`)
	numberRe     = regexp.MustCompile(`^\d+(\.\d+)?$`)

	arrQuotedRe = regexp.MustCompile(`"((?:\\.|[^"\\])*)"`)
	arrLooseRe  = regexp.MustCompile(`\[\s*([^,\]]+)\s*\]`)
)

// Recover attempts the four strict extraction strategies in order and
// reports whether any produced valid JSON.
func Recover(raw string) (any, bool) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, false
	}

	// 1. The whole text is JSON.
	if v, err := parseJSON(trimmed); err == nil {
		return v, true
	}
	// 2. A fenced code block holds the object.
	if m := fenceRe.FindStringSubmatch(raw); m != nil {
		if v, err := parseJSON(m[1]); err == nil {
			return v, true
		}
	}
	// 3. The first greedy {...} span.
	if m := objectRe.FindString(raw); m != "" {
		if v, err := parseJSON(m); err == nil {
			return v, true
		}
	}
	// 4. First '{' through last '}'.
	if s := braceSlice(raw); s != "" {
		if v, err := parseJSON(s); err == nil {
			return v, true
		}
	}
	return nil, false
}

// AutoCorrect extracts a best-guess JSON substring, applies textual repairs,
// and if the result still does not parse, rebuilds the structure from
// key/value pairs. The return value always parses as JSON; worst case it is
// the fallback error record.
func AutoCorrect(raw string) any {
	src := extractCandidate(raw)
	fixed := fixCommonErrors(src)
	if v, err := parseJSON(fixed); err == nil {
		return v
	}
	if v, err := parseJSON(aggressiveFix(fixed)); err == nil {
		return v
	}
	return FallbackRecord(raw)
}

// FallbackRecord is the terminal result when no repair produced valid JSON:
// an explicit error marker carrying a truncated copy of the original text,
// so callers never see an ambiguous nil.
func FallbackRecord(raw string) map[string]any {
	return map[string]any{
		"error":            "unable to repair model output",
		"original_content": truncate(raw, 200),
	}
}

func parseJSON(s string) (any, error) {
	var v any
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return nil, err
	}
	if v == nil {
		// A bare "null" is technically JSON but useless to every caller;
		// treat it like a parse failure so later strategies get a chance.
		return nil, errNullJSON
	}
	return v, nil
}

var errNullJSON = errors.New("json value is null")

func braceSlice(s string) string {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start == -1 || end == -1 || end < start {
		return ""
	}
	return s[start : end+1]
}

func extractCandidate(raw string) string {
	if m := rawFenceRe.FindStringSubmatch(raw); m != nil {
		return m[1]
	}
	if m := objectRe.FindString(raw); m != "" {
		return m
	}
	if s := braceSlice(raw); s != "" {
		return s
	}
	return raw
}

func fixCommonErrors(s string) string {
	s = lineCommentRe.ReplaceAllString(s, "")
	s = blockCommentRe.ReplaceAllString(s, "")
	s = trailObjRe.ReplaceAllString(s, "}")
	s = trailArrRe.ReplaceAllString(s, "]")
	s = singleQuoteRe.ReplaceAllString(s, `"${1}": "${2}"`)
	s = bareKeyRe.ReplaceAllString(s, `"${1}":`)
	s = newlineRe.ReplaceAllString(s, " ")
	s = spaceRe.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// aggressiveFix rebuilds an object or array from whatever key/value pairs
// or elements can be scavenged, using progressively looser patterns.
func aggressiveFix(s string) string {
	trimmed := strings.TrimSpace(s)
	switch {
	case strings.HasPrefix(trimmed, "{"):
		if out, ok := rebuildObject(trimmed); ok {
			return out
		}
	case strings.HasPrefix(trimmed, "["):
		if out, ok := rebuildArray(trimmed); ok {
			return out
		}
	}
	b, _ := json.Marshal(FallbackRecord(s))
	return string(b)
}

func rebuildObject(s string) (string, bool) {
	pairs := pairStrictRe.FindAllStringSubmatch(s, -1)
	if len(pairs) == 0 {
		pairs = pairQuotedRe.FindAllStringSubmatch(s, -1)
	}
	if len(pairs) == 0 {
		pairs = pairLooseRe.FindAllStringSubmatch(s, -1)
	}
	if len(pairs) == 0 {
		return "", false
	}
	parts := make([]string, 0, len(pairs))
	for _, p := range pairs {
		key := strings.TrimSpace(p[1])
		val := strings.TrimSpace(p[2])
		if !strings.HasPrefix(key, `"`) {
			key = `"` + key + `"`
		}
		if !isLiteralValue(val) {
			val = `"` + strings.ReplaceAll(val, `"`, `\"`) + `"`
		}
		parts = append(parts, key+": "+val)
	}
	out := "{" + strings.Join(parts, ", ") + "}"
	if _, err := parseJSON(out); err != nil {
		return "", false
	}
	return out, true
}

func rebuildArray(s string) (string, bool) {
	var elems []string
	for _, m := range arrQuotedRe.FindAllStringSubmatch(s, -1) {
		elems = append(elems, m[1])
	}
	if len(elems) == 0 {
		for _, m := range arrLooseRe.FindAllStringSubmatch(s, -1) {
			elems = append(elems, m[1])
		}
	}
	if len(elems) == 0 {
		return "", false
	}
	parts := make([]string, 0, len(elems))
	for _, e := range elems {
		e = strings.TrimSpace(e)
		if e == "" {
			continue
		}
		if !isLiteralValue(e) {
			e = `"` + strings.ReplaceAll(e, `"`, `\"`) + `"`
		}
		parts = append(parts, e)
	}
	if len(parts) == 0 {
		return "", false
	}
	out := "[" + strings.Join(parts, ", ") + "]"
	if _, err := parseJSON(out); err != nil {
		return "", false
	}
	return out, true
}

func isLiteralValue(v string) bool {
	if strings.HasPrefix(v, `"`) && strings.HasSuffix(v, `"`) && len(v) >= 2 {
		return true
	}
	switch v {
	case "true", "false", "null":
		return true
	}
	return numberRe.MatchString(v)
}
