package steimatzky

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_Fixture(t *testing.T) {
	html, err := os.ReadFile(filepath.Join("testdata", "product.html"))
	require.NoError(t, err)

	d, err := Parse(html, "https://www.steimatzky.co.il/011290019")
	require.NoError(t, err)
	assert.Equal(t, "חוות החיות", d.Title)
	assert.Equal(t, "ג'ורג' אורוול", d.Author, "前缀 מאת: 必须去掉")
}

func TestParse_FallbackPageTitle(t *testing.T) {
	d, err := Parse([]byte(`<html><body><h1 class="page-title"> Brave New World </h1></body></html>`), "u")
	require.NoError(t, err)
	assert.Equal(t, "Brave New World", d.Title)
	assert.Empty(t, d.Author)
}

func TestParse_MissingTitle(t *testing.T) {
	_, err := Parse([]byte(`<html><body></body></html>`), "u")
	assert.Error(t, err)
}

func TestNew_ID(t *testing.T) {
	s := New(nil, nil, 2)
	assert.Equal(t, 2, s.Limit)
	assert.Equal(t, "011290019", s.ID("https://www.steimatzky.co.il/011290019"))
	assert.Equal(t, "011290019", s.ID("https://www.steimatzky.co.il/011290019?utm=x"))
	assert.Equal(t, "", s.ID("https://www.steimatzky.co.il/books"))
}
