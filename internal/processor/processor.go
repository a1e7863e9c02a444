package processor

import (
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"strings"
	"time"

	"github.com/LJTian/HoopsHub/internal/collector"
)

const urlHashLen = 32

// Article is the record handed to storage; URLHash is the idempotency key.
type Article struct {
	URLHash     string
	URL         string
	Source      string
	Title       string
	Author      string
	Summary     string
	Content     string
	PublishedAt time.Time
	FetchedAt   time.Time
	Extra       map[string]any
}

// SimpleProcessor maps collected items onto storage records.
type SimpleProcessor struct{}

func NewSimpleProcessor() *SimpleProcessor {
	return &SimpleProcessor{}
}

func (p *SimpleProcessor) Process(items []collector.Item, fetchedAt time.Time) []Article {
	out := make([]Article, 0, len(items))
	seen := make(map[string]struct{}, len(items))

	for _, it := range items {
		link := strings.TrimSpace(it.Link)
		if link == "" {
			continue
		}
		id := HashURL(link)
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}

		content := it.Content
		if content == "" {
			content = it.Summary
		}

		out = append(out, Article{
			URLHash:     id,
			URL:         link,
			Source:      it.Source,
			Title:       strings.TrimSpace(it.Title),
			Author:      it.Author,
			Summary:     it.Summary,
			Content:     content,
			PublishedAt: time.Unix(it.PublishedTS, 0).UTC(),
			FetchedAt:   fetchedAt.UTC(),
			Extra:       extra(link, it),
		})
	}

	return out
}

// HashURL is the first 32 hex chars of sha256(url).
func HashURL(link string) string {
	sum := sha256.Sum256([]byte(link))
	return hex.EncodeToString(sum[:])[:urlHashLen]
}

// extra carries fields that have no column of their own.
func extra(link string, it collector.Item) map[string]any {
	m := map[string]any{"published_ts": it.PublishedTS}
	if u, err := url.Parse(link); err == nil && u.Host != "" {
		m["host"] = strings.TrimPrefix(strings.ToLower(u.Host), "www.")
	}
	return m
}
