package collector

import (
	"fmt"
	"strings"
)

type Format string

const (
	FormatRSS    Format = "rss" // RSS 0.9x/1.0/2.0 and Atom
	FormatReddit Format = "reddit"
)

// Source is one configured feed or search endpoint.
type Source struct {
	Name   string `yaml:"name" json:"name"`
	URL    string `yaml:"url" json:"url"`
	Format Format `yaml:"format" json:"format"`
	// MaxItems caps how many relevant items this source may contribute per cycle; 0 means no cap.
	MaxItems int `yaml:"max_items" json:"maxItems,omitempty"`
	// RequireTitle lists terms of which at least one must appear in the item title.
	RequireTitle []string `yaml:"require_title" json:"requireTitle,omitempty"`
}

func (s Source) validate() error {
	if strings.TrimSpace(s.Name) == "" {
		return fmt.Errorf("source with url %q has no name", s.URL)
	}
	if strings.TrimSpace(s.URL) == "" {
		return fmt.Errorf("source %q has no url", s.Name)
	}
	switch s.Format {
	case "", FormatRSS, FormatReddit:
	default:
		return fmt.Errorf("source %q has unknown format %q", s.Name, s.Format)
	}
	if s.MaxItems < 0 {
		return fmt.Errorf("source %q has negative max_items", s.Name)
	}
	return nil
}

func (s Source) titleAllowed(title string) bool {
	if len(s.RequireTitle) == 0 {
		return true
	}
	lower := strings.ToLower(title)
	for _, term := range s.RequireTitle {
		if strings.Contains(lower, strings.ToLower(term)) {
			return true
		}
	}
	return false
}

// Item is a normalized entry. Title and Link are never empty.
type Item struct {
	Title       string `json:"title"`
	Summary     string `json:"summary"`
	Link        string `json:"link"`
	Source      string `json:"source"`
	PublishedTS int64  `json:"published_ts"`
	Author      string `json:"author,omitempty"`
	Content     string `json:"content,omitempty"`
}

// Diagnostic error tags.
const (
	TagBudgetExceeded = "budget_exceeded"
	TagRateLimited    = "rate_limited"
	TagHTTPError      = "http_error"
	TagNetworkError   = "network_error"
	TagParseError     = "parse_error"
	TagCanceled       = "canceled"
)

// Diagnostic is the outcome of one source in one cycle: either a success
// record with counts or a failure record with an error tag.
type Diagnostic struct {
	Name    string `json:"name"`
	URL     string `json:"url"`
	OK      bool   `json:"ok"`
	Fetched int    `json:"fetched"`
	Kept    int    `json:"kept"`
	Error   string `json:"error,omitempty"`
	Detail  string `json:"detail,omitempty"`
}

type CollectionResult struct {
	Updated     int64        `json:"updated"`
	Items       []Item       `json:"items"`
	Diagnostics []Diagnostic `json:"diagnostics"`
	TookMS      int64        `json:"took_ms"`
}
