package checkpoint

import (
	"testing"

	"litreview/internal/models"

	"github.com/stretchr/testify/require"
)

func TestIdentityDOIPrefixVariantsCollapse(t *testing.T) {
	variants := []string{
		"10.1234/abcd.5678",
		"DOI:10.1234/abcd.5678",
		"DOI: 10.1234/abcd.5678",
		"doi.org/10.1234/abcd.5678",
		"https://doi.org/10.1234/abcd.5678",
		"http://dx.doi.org/10.1234/ABCD.5678",
		"Available at https://doi.org/10.1234/abcd.5678",
	}
	want := Identity(models.PaperInfo{DOI: variants[0]})
	require.Equal(t, "doi:10.1234/abcd.5678", want)
	for _, v := range variants[1:] {
		require.Equal(t, want, Identity(models.PaperInfo{DOI: v}), v)
	}
}

func TestIdentityInvalidDOIFallsBackToTitle(t *testing.T) {
	id := Identity(models.PaperInfo{
		DOI:     "not-a-doi",
		Title:   "Deep Learning: A Survey!",
		Authors: []string{"Ada Lovelace", "Charles Babbage"},
	})
	require.Equal(t, "deep_learning_a_survey|lovelace_babbage", id)
}

func TestIdentityManyAuthorsAppendsEtAl(t *testing.T) {
	id := Identity(models.PaperInfo{
		Title:   "Big Collaboration",
		Authors: []string{"A One", "B Two", "C Three", "D Four"},
	})
	require.Equal(t, "big_collaboration|one_two_three_et_al", id)
}

func TestIdentitySentinels(t *testing.T) {
	require.Equal(t, "unknown_title|unknown_author", Identity(models.PaperInfo{}))
}

func TestIdentityTitleOnlyWhitespaceAndCase(t *testing.T) {
	a := Identity(models.PaperInfo{Title: "  The   TITLE  "})
	b := Identity(models.PaperInfo{Title: "the title"})
	require.Equal(t, b, a)
}
