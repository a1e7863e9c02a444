package collector

import (
	"html"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	xhtml "golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

const (
	DefaultTitleLimit   = 300
	DefaultSummaryLimit = 600
	DefaultContentLimit = 5000
)

var (
	whitespacePattern = regexp.MustCompile(`\s+`)
	tagPattern        = regexp.MustCompile(`<[^>]*>`)
)

// Normalizer cleans raw entries into Items.
type Normalizer struct {
	TitleLimit   int
	SummaryLimit int
	ContentLimit int
}

func NewNormalizer() Normalizer {
	return Normalizer{
		TitleLimit:   DefaultTitleLimit,
		SummaryLimit: DefaultSummaryLimit,
		ContentLimit: DefaultContentLimit,
	}
}

// Normalize returns false when the cleaned title or link is empty.
func (n Normalizer) Normalize(e RawEntry, source string, now time.Time) (Item, bool) {
	title := truncateRunes(cleanText(e.Title), n.TitleLimit)
	link := canonicalURL(e.Link)
	if title == "" || link == "" {
		return Item{}, false
	}

	rawSummary := e.Summary
	if strings.TrimSpace(rawSummary) == "" {
		rawSummary = e.Content
	}

	ts := now
	if t, ok := PublishedAt(e); ok {
		ts = t
	}

	return Item{
		Title:       title,
		Summary:     truncateRunes(cleanText(rawSummary), n.SummaryLimit),
		Link:        link,
		Source:      source,
		PublishedTS: ts.Unix(),
		Author:      strings.TrimSpace(e.Author),
		Content:     truncateRunes(cleanText(e.Content), n.ContentLimit),
	}, true
}

// cleanText decodes entities exactly once, drops markup and collapses
// whitespace. Markup is decoded by the HTML parser; plain text is unescaped,
// which may reveal escaped markup that is then stripped.
func cleanText(s string) string {
	if s == "" {
		return ""
	}
	if !strings.Contains(s, "<") {
		s = html.UnescapeString(s)
	}
	s = stripTags(s)
	return strings.TrimSpace(whitespacePattern.ReplaceAllString(s, " "))
}

func stripTags(s string) string {
	if !strings.Contains(s, "<") {
		return s
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return tagPattern.ReplaceAllString(s, " ")
	}
	var b strings.Builder
	for _, n := range doc.Nodes {
		writeText(&b, n)
	}
	return b.String()
}

// writeText emits text nodes in document order, one space per tag boundary.
func writeText(b *strings.Builder, n *xhtml.Node) {
	switch n.Type {
	case xhtml.TextNode:
		b.WriteString(n.Data)
		b.WriteByte(' ')
		return
	case xhtml.ElementNode:
		if n.DataAtom == atom.Script || n.DataAtom == atom.Style {
			return
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		writeText(b, c)
	}
}

// truncateRunes cuts s to at most limit runes, the last one being an ellipsis when cut.
func truncateRunes(s string, limit int) string {
	if limit <= 0 {
		return ""
	}
	rs := []rune(s)
	if len(rs) <= limit {
		return s
	}
	return strings.TrimSpace(string(rs[:limit-1])) + "…"
}

// trackingParams are matched as lowercase key prefixes.
var trackingParams = []string{"utm_", "gclid", "oc"}

// canonicalURL unwraps Google News redirects, lowercases scheme and host and
// drops tracking parameters. Unparseable links are returned trimmed.
func canonicalURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return raw
	}

	if strings.HasSuffix(strings.ToLower(u.Hostname()), "news.google.com") {
		if inner := u.Query().Get("url"); inner != "" {
			if iu, err := url.Parse(inner); err == nil && iu.Host != "" {
				u = iu
			}
		}
	}

	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)

	if u.RawQuery != "" {
		q := u.Query()
		for key := range q {
			lk := strings.ToLower(key)
			for _, prefix := range trackingParams {
				if strings.HasPrefix(lk, prefix) {
					q.Del(key)
					break
				}
			}
		}
		u.RawQuery = q.Encode()
	}
	return u.String()
}
