package websearch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/John-Robertt/EBMC/internal/domain"
	"github.com/John-Robertt/EBMC/internal/source"
)

func readFixture(t *testing.T, name string) []byte {
	t.Helper()
	b, err := os.ReadFile(filepath.Join("testdata", name))
	if err != nil {
		t.Fatalf("读取 fixture 失败：%v", err)
	}
	return b
}

func TestParseResults_FromFixture(t *testing.T) {
	got, err := ParseResults(readFixture(t, "results.html"), DefaultBaseURL)
	require.NoError(t, err)
	require.Len(t, got, 2, "广告与无效链接必须被跳过")

	assert.Equal(t, "https://www.e-vrit.co.il/Product/1234/1984", got[0].URL)
	assert.Equal(t, "1984 - ספרים | e-vrit", got[0].Title)
	assert.Equal(t, "ג'ורג' אורוול. רומן דיסטופי.", got[0].Snippet)

	assert.Equal(t, "https://en.wikipedia.org/wiki/Nineteen_Eighty-Four", got[1].URL)
}

func TestParseResults_Challenge(t *testing.T) {
	_, err := ParseResults(readFixture(t, "challenge.html"), DefaultBaseURL)
	require.Error(t, err)
	assert.Equal(t, source.KindRateLimited, source.KindOf(err))
}

func TestParseResults_Deterministic(t *testing.T) {
	html := readFixture(t, "results.html")
	a, err := ParseResults(html, DefaultBaseURL)
	require.NoError(t, err)
	b, err := ParseResults(html, DefaultBaseURL)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestEngine_Search(t *testing.T) {
	fixture := readFixture(t, "results.html")
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query().Get("q")
		_, _ = w.Write(fixture)
	}))
	defer srv.Close()

	e := Engine{BaseURL: srv.URL + "/html/", Client: srv.Client()}
	got, err := e.Search(context.Background(), "site:e-vrit.co.il 1984 Orwell", 1)
	require.NoError(t, err)
	assert.Equal(t, "site:e-vrit.co.il 1984 Orwell", gotQuery)
	require.Len(t, got, 1)
	assert.Equal(t, "https://www.e-vrit.co.il/Product/1234/1984", got[0].URL)
}

func TestEngine_Search_HTTPStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := Engine{BaseURL: srv.URL, Client: srv.Client()}.Search(context.Background(), "x", 3)
	require.Error(t, err)
	assert.Equal(t, source.KindRateLimited, source.KindOf(err))
}

type fixedSearcher []source.SearchResult

func (f fixedSearcher) Search(ctx context.Context, query string, limit int) ([]source.SearchResult, error) {
	return f, nil
}

func TestAdapter_Query(t *testing.T) {
	a := Adapter{Searcher: fixedSearcher{
		{Title: "Nineteen Eighty-Four - Wikipedia", URL: "https://en.wikipedia.org/wiki/Nineteen_Eighty-Four"},
		{Title: "   ", URL: "https://x.example/"},
		{Title: "1984 | Goodreads", URL: "https://www.goodreads.com/book/show/1"},
	}}
	assert.Equal(t, domain.SourceWebSearch, a.Name())

	got, err := a.Query(context.Background(), domain.QuerySeed{Title: "1984", Author: "Orwell"})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "Nineteen Eighty-Four", got[0].Title)
	assert.Equal(t, "1984", got[1].Title)
	for _, c := range got {
		assert.Equal(t, domain.SourceWebSearch, c.Source)
		assert.Empty(t, c.Author)
	}

	got, err = a.Query(context.Background(), domain.QuerySeed{})
	require.NoError(t, err)
	assert.Nil(t, got)
}
