package simania

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/John-Robertt/EBMC/internal/domain"
)

func TestParse_Fixture(t *testing.T) {
	html, err := os.ReadFile(filepath.Join("testdata", "book.html"))
	require.NoError(t, err)

	d, err := Parse(html, "https://simania.co.il/book/5012")
	require.NoError(t, err)
	assert.Equal(t, "1984", d.Title)
	assert.Equal(t, "ג'ורג' אורוול", d.Author)
}

func TestParse_TitleOnly(t *testing.T) {
	d, err := Parse([]byte(`<h2>Dune</h2>`), "u")
	require.NoError(t, err)
	assert.Equal(t, "Dune", d.Title)
	assert.Empty(t, d.Author)

	_, err = Parse([]byte(`<h3>only author</h3>`), "u")
	assert.Error(t, err)
}

func TestNew(t *testing.T) {
	s := New(nil, nil, 0)
	assert.Equal(t, domain.SourceSimania, s.Name())
	assert.Equal(t, Domain, s.Domain)
	assert.Equal(t, "5012", s.ID("https://simania.co.il/book/5012"))
}
