package checkpoint

import (
	"regexp"
	"strings"

	"litreview/internal/models"
)

var (
	doiRe      = regexp.MustCompile(`10\.\d+/\S+`)
	nonAlnumRe = regexp.MustCompile(`[^a-z0-9\s]+`)
	spacesRe   = regexp.MustCompile(`\s+`)
)

// Identity derives the stable identity string for a paper. A valid DOI wins;
// otherwise the identity is built from the cleaned title and up to three
// author surnames, so the same paper resumes under the same key across runs.
func Identity(p models.PaperInfo) string {
	if doi := normalizeDOI(p.DOI); doi != "" {
		return "doi:" + doi
	}

	title := cleanToken(p.Title)
	if title == "" {
		title = "unknown_title"
	}

	var surnames []string
	for _, a := range p.Authors {
		if s := surname(a); s != "" {
			surnames = append(surnames, s)
		}
		if len(surnames) == 3 {
			break
		}
	}
	if len(surnames) == 0 {
		surnames = []string{"unknown_author"}
	} else if len(p.Authors) > 3 {
		surnames = append(surnames, "et_al")
	}

	return title + "|" + strings.Join(surnames, "_")
}

// normalizeDOI extracts the 10.xxxx/... pattern from anywhere in the string,
// so prefixes, labels and surrounding prose all collapse to the same DOI.
func normalizeDOI(doi string) string {
	return doiRe.FindString(strings.ToLower(doi))
}

// cleanToken lowercases, strips punctuation and joins words with underscores.
func cleanToken(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = nonAlnumRe.ReplaceAllString(s, "")
	s = spacesRe.ReplaceAllString(strings.TrimSpace(s), "_")
	return s
}

// surname takes the last whitespace-separated token of an author name.
func surname(author string) string {
	fields := strings.Fields(author)
	if len(fields) == 0 {
		return ""
	}
	return cleanToken(fields[len(fields)-1])
}
