package pdfx

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ledongthuc/pdf"

	"litreview/internal/models"
	"litreview/internal/util"
)

// ExtractText pulls the plain text out of one PDF and sanitizes it.
func ExtractText(path string) (string, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("open pdf %s: %w", path, err)
	}
	defer f.Close()

	reader, err := r.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("extract pdf text %s: %w", path, err)
	}
	buf := new(strings.Builder)
	if _, err := io.Copy(buf, reader); err != nil {
		return "", fmt.Errorf("read extracted text %s: %w", path, err)
	}
	text := util.SanitizeText(strings.TrimSpace(buf.String()))
	if text == "" {
		return "", util.ErrNoExtractableText
	}
	return text, nil
}

// ScanFolder lists the PDFs under dir as work items, sorted by filename.
// The filename (minus extension) stands in for the title until metadata
// backfill improves it.
func ScanFolder(dir string) ([]models.PaperInfo, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read pdf dir %s: %w", dir, err)
	}
	papers := make([]models.PaperInfo, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasSuffix(strings.ToLower(name), ".pdf") {
			continue
		}
		papers = append(papers, models.PaperInfo{
			Title:   strings.TrimSuffix(name, filepath.Ext(name)),
			PDFPath: filepath.Join(dir, name),
		})
	}
	sort.Slice(papers, func(i, j int) bool { return papers[i].PDFPath < papers[j].PDFPath })
	return papers, nil
}

// GuessTitleAuthors takes the first two non-empty lines of extracted text as
// a title and author-list guess for papers with no real metadata.
func GuessTitleAuthors(text string) (string, []string) {
	s := bufio.NewScanner(strings.NewReader(text))
	nonEmpty := make([]string, 0, 2)
	for s.Scan() {
		line := strings.TrimSpace(s.Text())
		if line == "" {
			continue
		}
		nonEmpty = append(nonEmpty, line)
		if len(nonEmpty) == 2 {
			break
		}
	}
	title := ""
	var authors []string
	if len(nonEmpty) > 0 {
		title = nonEmpty[0]
	}
	if len(nonEmpty) > 1 {
		authors = splitAuthors(nonEmpty[1])
	}
	return title, authors
}

func splitAuthors(line string) []string {
	line = strings.ReplaceAll(line, " and ", ",")
	line = strings.ReplaceAll(line, ";", ",")
	var out []string
	for _, part := range strings.Split(line, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
