package collector

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"
)

const redditBaseURL = "https://www.reddit.com"

// redditListing is the envelope returned by /r/{sub}/new.json and /r/{sub}/search.json.
type redditListing struct {
	Kind string `json:"kind"`
	Data struct {
		Children []struct {
			Kind string     `json:"kind"`
			Data redditPost `json:"data"`
		} `json:"children"`
	} `json:"data"`
}

type redditPost struct {
	Title      string  `json:"title"`
	Permalink  string  `json:"permalink"`
	URL        string  `json:"url"`
	Selftext   string  `json:"selftext"`
	Author     string  `json:"author"`
	CreatedUTC float64 `json:"created_utc"`
	Subreddit  string  `json:"subreddit"`
}

func parseRedditListing(raw []byte) ([]RawEntry, error) {
	var listing redditListing
	if err := json.Unmarshal(raw, &listing); err != nil {
		return nil, fmt.Errorf("%w: reddit: %v", ErrMalformedFeed, err)
	}
	if listing.Kind != "" && listing.Kind != "Listing" {
		return nil, fmt.Errorf("%w: reddit: unexpected kind %q", ErrMalformedFeed, listing.Kind)
	}

	out := make([]RawEntry, 0, len(listing.Data.Children))
	for _, child := range listing.Data.Children {
		p := child.Data
		e := RawEntry{
			Title:   p.Title,
			Link:    redditLink(p),
			Summary: p.Selftext,
			Content: p.Selftext,
			Author:  p.Author,
		}
		if p.CreatedUTC > 0 {
			sec, frac := math.Modf(p.CreatedUTC)
			t := time.Unix(int64(sec), int64(frac*1e9)).UTC()
			e.Published = &t
		}
		out = append(out, e)
	}
	return out, nil
}

func redditLink(p redditPost) string {
	if p.Permalink != "" {
		if strings.HasPrefix(p.Permalink, "http") {
			return p.Permalink
		}
		return redditBaseURL + p.Permalink
	}
	return p.URL
}
