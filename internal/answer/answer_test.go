package answer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LJTian/HoopsHub/internal/storage"
)

func TestKeywords(t *testing.T) {
	tests := []struct {
		name string
		q    string
		want []string
	}{
		{"stopwords dropped", "What did Painter say about the Purdue defense?", []string{"painter", "say", "defense"}},
		{"possessive trimmed", "How is Braden Smith's shooting?", []string{"braden", "smith", "shooting"}},
		{"duplicates removed", "Edey edey EDEY", []string{"edey"}},
		{"only stopwords", "what is the latest news?", []string{}},
		{"short tokens", "is TKO ok", []string{"tko"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Keywords(tt.q))
		})
	}
}

func TestKeywordsCapped(t *testing.T) {
	got := Keywords("alpha bravo charlie delta echo foxtrot golf hotel india juliet")
	assert.Len(t, got, maxKeywords)
	assert.Equal(t, "alpha", got[0])
}

func TestScore(t *testing.T) {
	a := storage.Article{Title: "Painter on defense", Summary: "The defense held Indiana"}
	assert.Equal(t, 3, Score(a, []string{"defense"}))
	assert.Equal(t, 4, Score(a, []string{"defense", "indiana"}))
	assert.Equal(t, 0, Score(a, []string{"kaufman"}))
}

func TestAnswerPicksBestAndKeepsRecencyOnTies(t *testing.T) {
	articles := []storage.Article{
		{Title: "Loyer scores 20", Summary: "Fletcher Loyer led the way", URL: "https://x/1", Source: "A"},
		{Title: "Recruiting notes", Summary: "nothing relevant", URL: "https://x/2", Source: "B"},
		{Title: "Loyer shines again", Summary: "Loyer hits five threes", URL: "https://x/3", Source: "C"},
		{Title: "Old Loyer story", URL: "https://x/4", Source: "D"},
	}

	res := Answer("How did Loyer play?", articles)
	assert.Equal(t, []string{"loyer", "play"}, res.Keywords)
	assert.Equal(t, "Loyer scores 20: Fletcher Loyer led the way", res.Answer)
	require.Len(t, res.Sources, 3)
	assert.Equal(t, "https://x/1", res.Sources[0].URL)
	assert.Equal(t, "https://x/3", res.Sources[1].URL)
	assert.Equal(t, "https://x/4", res.Sources[2].URL)
	assert.Equal(t, 2, res.Sources[2].Score)
}

func TestAnswerNoMatch(t *testing.T) {
	res := Answer("who won the chess final", []storage.Article{{Title: "Purdue beats Iowa"}})
	assert.Equal(t, NoMatch, res.Answer)
	assert.Empty(t, res.Sources)

	res = Answer("   ", nil)
	assert.Equal(t, NoMatch, res.Answer)
	assert.Empty(t, res.Keywords)
}

func TestAnswerTitleOnly(t *testing.T) {
	res := Answer("kaufman-renn injury", []storage.Article{{Title: "Kaufman-Renn injury update", URL: "u"}})
	assert.Equal(t, "Kaufman-Renn injury update", res.Answer)
}
