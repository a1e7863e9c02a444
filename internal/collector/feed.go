package collector

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
)

const DefaultMaxEntriesPerFeed = 100

// ErrMalformedFeed wraps any document the parser could not decode.
var ErrMalformedFeed = errors.New("malformed feed")

// RawEntry is one parsed record before normalization. Missing fields are empty / nil.
type RawEntry struct {
	Title   string
	Link    string
	Summary string
	Content string
	Author  string

	Published *time.Time
	Updated   *time.Time
	Created   *time.Time
}

// PublishedAt picks the entry timestamp: published, then updated, then created.
func PublishedAt(e RawEntry) (time.Time, bool) {
	for _, t := range []*time.Time{e.Published, e.Updated, e.Created} {
		if t != nil && !t.IsZero() {
			return *t, true
		}
	}
	return time.Time{}, false
}

// Parser turns fetched bytes into at most maxEntries raw entries.
type Parser struct {
	maxEntries int
}

func NewParser(maxEntries int) *Parser {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntriesPerFeed
	}
	return &Parser{maxEntries: maxEntries}
}

func (p *Parser) Parse(format Format, raw []byte) ([]RawEntry, error) {
	var (
		entries []RawEntry
		err     error
	)
	switch format {
	case FormatReddit:
		entries, err = parseRedditListing(raw)
	default:
		entries, err = parseFeed(raw)
	}
	if err != nil {
		return nil, err
	}
	if len(entries) > p.maxEntries {
		entries = entries[:p.maxEntries]
	}
	return entries, nil
}

func parseFeed(raw []byte) ([]RawEntry, error) {
	feed, err := gofeed.NewParser().Parse(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedFeed, err)
	}

	out := make([]RawEntry, 0, len(feed.Items))
	for _, it := range feed.Items {
		if it == nil {
			continue
		}
		out = append(out, RawEntry{
			Title:     it.Title,
			Link:      itemLink(it),
			Summary:   it.Description,
			Content:   it.Content,
			Author:    itemAuthor(it),
			Published: it.PublishedParsed,
			Updated:   it.UpdatedParsed,
			Created:   dublinCoreDate(it),
		})
	}
	return out, nil
}

func itemLink(it *gofeed.Item) string {
	if link := strings.TrimSpace(it.Link); link != "" {
		return link
	}
	for _, l := range it.Links {
		if l = strings.TrimSpace(l); l != "" {
			return l
		}
	}
	if strings.HasPrefix(it.GUID, "http://") || strings.HasPrefix(it.GUID, "https://") {
		return it.GUID
	}
	return ""
}

func itemAuthor(it *gofeed.Item) string {
	for _, a := range it.Authors {
		if a != nil && a.Name != "" {
			return a.Name
		}
	}
	return ""
}

func dublinCoreDate(it *gofeed.Item) *time.Time {
	if it.DublinCoreExt == nil {
		return nil
	}
	for _, d := range it.DublinCoreExt.Date {
		if t, err := time.Parse(time.RFC3339, strings.TrimSpace(d)); err == nil {
			return &t
		}
	}
	return nil
}
