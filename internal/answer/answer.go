// Package answer implements the keyword-match Q&A over stored articles.
package answer

import (
	"fmt"
	"sort"
	"strings"
	"unicode"

	"github.com/samber/lo"

	"github.com/LJTian/HoopsHub/internal/storage"
)

const (
	maxKeywords = 8
	minKeyword  = 3
	maxSources  = 3
)

// NoMatch is the answer text when nothing matched the question.
const NoMatch = "No recent coverage matched that question."

var stopwords = lo.SliceToMap(strings.Fields(`
	a about after all also am an and any are as at be been before being but by can
	could did do does doing for from get got had has have he her his how i if in into
	is it its just latest me more most my new news no not now of on or our out over
	purdue boilermakers boilers basketball she so some than that the their them then
	there these they this to up us was we were what when where which who whom why
	will with would you your tell show anything any today yesterday week`),
	func(w string) (string, struct{}) { return w, struct{}{} })

// Hit is one ranked article.
type Hit struct {
	Title  string `json:"title"`
	URL    string `json:"url"`
	Source string `json:"source"`
	Score  int    `json:"score"`
}

type Result struct {
	Question string   `json:"question"`
	Keywords []string `json:"keywords"`
	Answer   string   `json:"answer"`
	Sources  []Hit    `json:"sources"`
}

// Keywords lowercases q, splits on anything but letters, digits and
// apostrophes, and drops stopwords and short tokens.
func Keywords(q string) []string {
	tokens := strings.FieldsFunc(strings.ToLower(q), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '\'' && r != '’'
	})
	out := make([]string, 0, len(tokens))
	for _, t := range tokens {
		t = strings.TrimSuffix(strings.TrimSuffix(strings.Trim(t, "'’"), "'s"), "’s")
		if len([]rune(t)) < minKeyword {
			continue
		}
		if _, stop := stopwords[t]; stop {
			continue
		}
		out = append(out, t)
	}
	out = lo.Uniq(out)
	if len(out) > maxKeywords {
		out = out[:maxKeywords]
	}
	return out
}

// Score counts keyword hits; a title hit is worth two, a summary hit one.
func Score(a storage.Article, keywords []string) int {
	title := strings.ToLower(a.Title)
	summary := strings.ToLower(a.Summary)
	score := 0
	for _, k := range keywords {
		if strings.Contains(title, k) {
			score += 2
		}
		if strings.Contains(summary, k) {
			score++
		}
	}
	return score
}

// Answer ranks articles (assumed newest first) against the question.
// Ties keep the input order, so fresher coverage wins.
func Answer(question string, articles []storage.Article) Result {
	res := Result{Question: strings.TrimSpace(question), Keywords: Keywords(question), Answer: NoMatch, Sources: []Hit{}}
	if len(res.Keywords) == 0 {
		return res
	}

	type ranked struct {
		article storage.Article
		score   int
	}
	var hits []ranked
	for _, a := range articles {
		if s := Score(a, res.Keywords); s > 0 {
			hits = append(hits, ranked{article: a, score: s})
		}
	}
	if len(hits) == 0 {
		return res
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].score > hits[j].score })

	best := hits[0].article
	res.Answer = best.Title
	if best.Summary != "" {
		res.Answer = fmt.Sprintf("%s: %s", best.Title, best.Summary)
	}
	for _, h := range lo.Slice(hits, 0, maxSources) {
		res.Sources = append(res.Sources, Hit{
			Title:  h.article.Title,
			URL:    h.article.URL,
			Source: h.article.Source,
			Score:  h.score,
		})
	}
	return res
}
