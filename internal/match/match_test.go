package match

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/John-Robertt/EBMC/internal/domain"
)

func TestMatch_ExactDuplicateWins(t *testing.T) {
	seed := domain.QuerySeed{Title: "Animal Farm", Author: "George Orwell"}
	pool := []domain.Candidate{
		{Source: domain.SourceWebSearch, Title: "Animal Farmhouse Stories", URL: "https://w.test/1"},
		{Source: domain.SourceSimania, Title: "Farm Animals", Author: "Someone", URL: "https://s.test/2"},
		{Source: domain.SourceEVrit, Title: "animal   FARM", Author: "GEORGE ORWELL", URL: "https://e.test/3"},
	}

	d := Match(seed, pool, DefaultPolicy())
	require.True(t, d.Matched)
	assert.Equal(t, domain.SourceEVrit, d.Winner.Source)
	assert.Equal(t, 1.0, d.Winner.Combined)
	assert.True(t, d.Winner.AuthorKnown)
	for _, sc := range d.Ranked[1:] {
		assert.Less(t, sc.Combined, 1.0)
	}
}

func TestMatch_AllBelowThresholdIsUnresolved(t *testing.T) {
	seed := domain.QuerySeed{Title: "random scan 0001"}

	d := Match(seed, nil, DefaultPolicy())
	assert.False(t, d.Matched)
	assert.Nil(t, d.Best())

	pool := []domain.Candidate{
		{Source: domain.SourceEVrit, Title: "The Great Gatsby", Author: "F. Scott Fitzgerald"},
		{Source: domain.SourceSteimatzky, Title: "War and Peace", Author: "Leo Tolstoy"},
		{Source: domain.SourceWebSearch, Title: "Pride and Prejudice"},
	}
	d = Match(seed, pool, DefaultPolicy())
	assert.False(t, d.Matched)
	require.NotNil(t, d.Best())
	for _, sc := range d.Ranked {
		assert.Less(t, sc.TitleScore, 0.5)
		assert.False(t, sc.AuthorKnown)
	}
}

func TestMatch_ThresholdIsHardCutoff(t *testing.T) {
	seed := domain.QuerySeed{Title: "Animal Farm"}
	pool := []domain.Candidate{{Source: domain.SourceEVrit, Title: "Animal Frm"}}

	p := DefaultPolicy()
	sc := Score(seed, pool[0], p)

	p.Threshold = sc.Combined
	assert.True(t, Match(seed, pool, p).Matched, "等于阈值应当接受")

	p.Threshold = sc.Combined + 0.0001
	assert.False(t, Match(seed, pool, p).Matched, "低于阈值必须拒绝，即便是池中最好的")
}

func TestMatch_TieBreakBySourcePriority(t *testing.T) {
	seed := domain.QuerySeed{Title: "Animal Farm", Author: "Orwell"}
	pool := []domain.Candidate{
		{Source: domain.SourceWebSearch, Title: "Animal Farm", Author: "Orwell", URL: "https://a.test/1"},
		{Source: domain.SourceSimania, Title: "Animal Farm", Author: "Orwell", URL: "https://z.test/2"},
		{Source: domain.SourceSteimatzky, Title: "Animal Farm", Author: "Orwell", URL: "https://m.test/3"},
	}

	rnd := rand.New(rand.NewSource(1))
	for i := 0; i < 50; i++ {
		shuffled := append([]domain.Candidate(nil), pool...)
		rnd.Shuffle(len(shuffled), func(a, b int) { shuffled[a], shuffled[b] = shuffled[b], shuffled[a] })

		d := Match(seed, shuffled, DefaultPolicy())
		require.True(t, d.Matched)
		assert.Equal(t, domain.SourceSteimatzky, d.Winner.Source)
		assert.Equal(t, domain.SourceSimania, d.Ranked[1].Source)
		assert.Equal(t, domain.SourceWebSearch, d.Ranked[2].Source)
	}
}

func TestMatch_CustomPriority(t *testing.T) {
	seed := domain.QuerySeed{Title: "Animal Farm"}
	pool := []domain.Candidate{
		{Source: domain.SourceEVrit, Title: "Animal Farm"},
		{Source: domain.SourceSimania, Title: "Animal Farm"},
	}
	p := DefaultPolicy()
	p.Priority = []domain.SourceName{domain.SourceSimania, domain.SourceEVrit}
	assert.Equal(t, domain.SourceSimania, Match(seed, pool, p).Winner.Source)
}

func TestMatch_AuthorAbsenceIsNeutral(t *testing.T) {
	pool := []domain.Candidate{
		{Source: domain.SourceSteimatzky, Title: "Brave New World", Author: "Aldous Huxley"},
		{Source: domain.SourceEVrit, Title: "Animal Farm", Author: "George Orwell"},
		{Source: domain.SourceWebSearch, Title: "Animal Farm"},
	}
	withAuthor := domain.QuerySeed{Title: "Animal Farm", Author: "Orwell"}
	withoutAuthor := domain.QuerySeed{Title: "Animal Farm"}

	a := Match(withAuthor, pool, DefaultPolicy())
	b := Match(withoutAuthor, pool, DefaultPolicy())
	require.True(t, a.Matched)
	require.True(t, b.Matched)
	assert.Equal(t, a.Winner.Candidate, b.Winner.Candidate)

	// candidate 缺作者：不因 seed 有作者而被扣分。
	web := Score(withAuthor, pool[2], DefaultPolicy())
	assert.False(t, web.AuthorKnown)
	assert.Equal(t, web.TitleScore, web.Combined)
}

func TestMatch_OrwellExample(t *testing.T) {
	seed := domain.QuerySeed{RawFilename: "Orwell - 1984.epub", Title: "1984", Author: "Orwell"}
	pool := []domain.Candidate{
		{Source: domain.SourceWebSearch, Title: "1984 (novel) - Wikipedia", URL: "https://en.wikipedia.org/wiki/1984"},
		{Source: domain.SourceEVrit, Title: "1984", Author: "George Orwell", Identifier: "1234", URL: "https://www.e-vrit.co.il/Product/1234/1984"},
	}

	d := Match(seed, pool, DefaultPolicy())
	require.True(t, d.Matched)
	assert.Equal(t, domain.SourceEVrit, d.Winner.Source)
	assert.Equal(t, 1.0, d.Winner.TitleScore)
	assert.GreaterOrEqual(t, d.Winner.AuthorScore, 0.8)
	assert.GreaterOrEqual(t, d.Winner.Combined, 0.8)
}

func TestMatch_CombinedDependsOnlyOnScores(t *testing.T) {
	seed := domain.QuerySeed{Title: "Animal Farm", Author: "Orwell"}
	c := domain.Candidate{Source: domain.SourceEVrit, Title: "Animal Frm", Author: "G. Orwell"}

	p := DefaultPolicy()
	sc := Score(seed, c, p)
	want := (p.TitleWeight*sc.TitleScore + p.AuthorWeight*sc.AuthorScore) / (p.TitleWeight + p.AuthorWeight)
	assert.InDelta(t, want, sc.Combined, 1e-12)
	assert.Equal(t, sc, Score(seed, c, p))
}

func TestPolicy_Validate(t *testing.T) {
	require.NoError(t, DefaultPolicy().Validate())

	bad := []func(p *Policy){
		func(p *Policy) { p.Threshold = 0 },
		func(p *Policy) { p.Threshold = 1.5 },
		func(p *Policy) { p.TitleWeight, p.AuthorWeight = 0.3, 0.7 },
		func(p *Policy) { p.TitleWeight, p.AuthorWeight = 0, 0 },
		func(p *Policy) { p.AuthorWeight = -1 },
		func(p *Policy) { p.Priority = nil },
		func(p *Policy) { p.Priority = []domain.SourceName{"google"} },
		func(p *Policy) { p.Priority = []domain.SourceName{domain.SourceEVrit, domain.SourceEVrit} },
	}
	for i, mut := range bad {
		p := DefaultPolicy()
		mut(&p)
		assert.Error(t, p.Validate(), "case %d", i)
	}
}

func TestMatch_OneWordSubsetIsUnresolved(t *testing.T) {
	seed := domain.QuerySeed{Title: "random scan 0001"}
	pool := []domain.Candidate{
		{Source: domain.SourceWebSearch, Title: "Random", URL: "https://w.test/random"},
		{Source: domain.SourceWebSearch, Title: "Scan", URL: "https://w.test/scan"},
	}

	d := Match(seed, pool, DefaultPolicy())
	assert.False(t, d.Matched)
	best := d.Best()
	require.NotNil(t, best)
	assert.Less(t, best.Combined, DefaultThreshold)
}
