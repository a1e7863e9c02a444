package collector

import (
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCleanText(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"  plain   text\n", "plain text"},
		{"Tom &amp; Jerry <b>bold</b>\n\n text", "Tom & Jerry bold text"},
		{"&lt;p&gt;Hello&lt;/p&gt;", "Hello"},
		{"<p>one</p><p>two</p>", "one two"},
		{"<script>track()</script>Hi", "Hi"},
		{"Painter&#39;s rotation", "Painter's rotation"},
		{"AT&amp;amp;T <b>deal</b>", "AT&amp;T deal"},
		{"AT&amp;amp;T deal", "AT&amp;T deal"},
		{"&lt;b&gt;Edey&lt;/b&gt; &amp; co", "Edey & co"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, cleanText(tt.in), "cleanText(%q)", tt.in)
	}
}

func TestTruncateRunesKeepsBoundAndEllipsis(t *testing.T) {
	s := "你好，世界，这是一个很长的中文句子，用来测试截断逻辑。"
	out := truncateRunes(s, 5)
	assert.Equal(t, 5, utf8.RuneCountInString(out))
	assert.True(t, strings.HasSuffix(out, "…"), "want ellipsis suffix: %q", out)

	assert.Equal(t, "短文本", truncateRunes("短文本", 10))
	assert.Equal(t, "", truncateRunes("anything", 0))
}

func TestCanonicalURL(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"empty", "  ", ""},
		{"tracking params dropped", "HTTPS://Example.COM/path?utm_source=x&id=3&gclid=abc&oc=5", "https://example.com/path?id=3"},
		{"oc prefixed params dropped", "https://www.msn.com/story?oc=5&ocid=abc&utm_source=z&id=1", "https://www.msn.com/story?id=1"},
		{"path case kept", "https://www.hammerandrails.com/Story/1", "https://www.hammerandrails.com/Story/1"},
		{
			"google news unwrapped",
			"https://news.google.com/articles/abc?url=https%3A%2F%2Fwww.ESPN.com%2Fstory%3Futm_medium%3Dx%26a%3D1",
			"https://www.espn.com/story?a=1",
		},
		{"google news without url param kept", "https://news.google.com/rss/articles/CBMi?oc=5", "https://news.google.com/rss/articles/CBMi"},
		{"relative link returned as is", "not a url", "not a url"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, canonicalURL(tt.in))
		})
	}
}

func TestNormalize(t *testing.T) {
	n := NewNormalizer()
	now := time.Date(2025, 11, 3, 12, 0, 0, 0, time.UTC)
	updated := time.Date(2025, 11, 1, 8, 30, 0, 0, time.UTC)

	t.Run("full entry", func(t *testing.T) {
		it, ok := n.Normalize(RawEntry{
			Title:   "  Purdue &amp; Indiana <i>preview</i> ",
			Link:    "https://www.jconline.com/story?utm_campaign=rss",
			Summary: "<p>Boilermakers   host the Hoosiers.</p>",
			Author:  " Staff ",
			Updated: &updated,
		}, "Journal & Courier", now)
		require.True(t, ok)
		assert.Equal(t, "Purdue & Indiana preview", it.Title)
		assert.Equal(t, "Boilermakers host the Hoosiers.", it.Summary)
		assert.Equal(t, "https://www.jconline.com/story", it.Link)
		assert.Equal(t, "Journal & Courier", it.Source)
		assert.Equal(t, "Staff", it.Author)
		assert.Equal(t, updated.Unix(), it.PublishedTS)
	})

	t.Run("summary falls back to content", func(t *testing.T) {
		it, ok := n.Normalize(RawEntry{Title: "t", Link: "https://a.example/1", Content: "<div>from content</div>"}, "s", now)
		require.True(t, ok)
		assert.Equal(t, "from content", it.Summary)
		assert.Equal(t, now.Unix(), it.PublishedTS)
	})

	t.Run("bounded lengths", func(t *testing.T) {
		it, ok := n.Normalize(RawEntry{
			Title:   strings.Repeat("a", 400),
			Link:    "https://a.example/2",
			Summary: strings.Repeat("word ", 300),
		}, "s", now)
		require.True(t, ok)
		assert.LessOrEqual(t, utf8.RuneCountInString(it.Title), DefaultTitleLimit)
		assert.LessOrEqual(t, utf8.RuneCountInString(it.Summary), DefaultSummaryLimit)
	})

	t.Run("dropped on missing fields", func(t *testing.T) {
		_, ok := n.Normalize(RawEntry{Title: " <b></b> ", Link: "https://a.example/3"}, "s", now)
		assert.False(t, ok, "empty title after cleaning")

		_, ok = n.Normalize(RawEntry{Title: "has title", Link: "   "}, "s", now)
		assert.False(t, ok, "empty link")
	})
}

func TestPublishedAtFallbackChain(t *testing.T) {
	p := time.Date(2025, 1, 3, 0, 0, 0, 0, time.UTC)
	u := time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC)
	c := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name   string
		entry  RawEntry
		want   time.Time
		wantOK bool
	}{
		{"published first", RawEntry{Published: &p, Updated: &u, Created: &c}, p, true},
		{"then updated", RawEntry{Updated: &u, Created: &c}, u, true},
		{"then created", RawEntry{Created: &c}, c, true},
		{"zero value skipped", RawEntry{Published: &time.Time{}, Created: &c}, c, true},
		{"none", RawEntry{}, time.Time{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := PublishedAt(tt.entry)
			assert.Equal(t, tt.wantOK, ok)
			assert.True(t, tt.want.Equal(got), "got %s want %s", got, tt.want)
		})
	}
}
