package pdfx

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestScanFolderListsOnlyPDFs(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b paper.PDF", "a paper.pdf", "notes.txt"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644))
	}
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub.pdf"), 0o755))

	papers, err := ScanFolder(dir)
	require.NoError(t, err)
	require.Len(t, papers, 2)
	require.Equal(t, "a paper", papers[0].Title)
	require.Equal(t, filepath.Join(dir, "a paper.pdf"), papers[0].PDFPath)
	require.Equal(t, "b paper", papers[1].Title)
}

func TestScanFolderMissingDir(t *testing.T) {
	_, err := ScanFolder(filepath.Join(t.TempDir(), "nope"))
	require.Error(t, err)
}

func TestGuessTitleAuthors(t *testing.T) {
	text := "\n\nAttention Is All You Need\nAshish Vaswani, Noam Shazeer and Niki Parmar\nAbstract\n"
	title, authors := GuessTitleAuthors(text)
	require.Equal(t, "Attention Is All You Need", title)
	require.Equal(t, []string{"Ashish Vaswani", "Noam Shazeer", "Niki Parmar"}, authors)
}

func TestGuessTitleAuthorsEmpty(t *testing.T) {
	title, authors := GuessTitleAuthors("")
	require.Empty(t, title)
	require.Nil(t, authors)
}
