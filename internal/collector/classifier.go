package collector

import (
	"net/url"
	"regexp"
	"strings"
)

// Rules is the keyword policy of the relevance classifier.
type Rules struct {
	// Negative terms reject an item outright.
	Negative []string `yaml:"negative"`
	// Team and Topic must both match for the generic acceptance path.
	Team  []string `yaml:"team"`
	Topic []string `yaml:"topic"`
	// Entities are specific enough to accept on their own.
	Entities []string `yaml:"entities"`
	// TrustedSources are matched as case-insensitive substrings of the source name.
	TrustedSources []string `yaml:"trusted_sources"`
	// TrustedDomains are matched against the link host, subdomains included.
	TrustedDomains []string `yaml:"trusted_domains"`
	// MatchLink adds the link to the matched text.
	MatchLink bool `yaml:"match_link"`
}

// DefaultRules is the consolidated Purdue men's basketball policy.
func DefaultRules() Rules {
	return Rules{
		Negative: []string{
			"women", "women's", "womens", "wbb", "wbk", "lady",
			"volleyball", "football", "soccer", "softball", "baseball",
			"wrestling", "golf", "hockey", "track and field", "swimming",
			"tennis", "cross country", "rowing",
		},
		Team:  []string{"purdue", "boilermaker", "boilermakers", "boilers", "boiler ball", "west lafayette"},
		Topic: []string{"basketball", "hoops", "mbb", "cbb"},
		Entities: []string{
			"matt painter", "men of mackey", "mackey arena", "paint crew", "big ten", "b1g",
			"braden smith", "fletcher loyer", "trey kaufman-renn", "zach edey", "caleb furst",
			"will berg", "c.j. cox", "antione west", "aaron fine", "jack lusk", "jack benter",
			"omer mayer", "gicarri harris", "jace rayl", "liam murphy", "sam king",
			"raleigh burgess", "daniel jacobsen", "oscar cluff",
		},
		TrustedSources: []string{"hammer & rails", "purduebasketball", "boilermakers"},
		TrustedDomains: []string{
			"purduesports.com", "hammerandrails.com", "goldandblack.com", "journalcourier.com", "jconline.com",
		},
	}
}

// Classifier decides whether an item is on topic. Precedence:
// negative > specific positive > source-scoped positive > reject.
type Classifier struct {
	negative       *regexp.Regexp
	team           *regexp.Regexp
	topic          *regexp.Regexp
	entities       *regexp.Regexp
	trustedSources []string
	trustedDomains []string
	matchLink      bool
}

func NewClassifier(r Rules) *Classifier {
	return &Classifier{
		negative:       wordPattern(r.Negative),
		team:           wordPattern(r.Team),
		topic:          wordPattern(r.Topic),
		entities:       wordPattern(r.Entities),
		trustedSources: lowerAll(r.TrustedSources),
		trustedDomains: lowerAll(r.TrustedDomains),
		matchLink:      r.MatchLink,
	}
}

func (c *Classifier) IsRelevant(it Item) bool {
	blob := it.Title + " " + it.Summary
	if c.matchLink {
		blob += " " + it.Link
	}

	if matches(c.negative, blob) {
		return false
	}
	if matches(c.team, blob) && matches(c.topic, blob) {
		return true
	}
	if matches(c.entities, blob) {
		return true
	}
	if matches(c.topic, blob) && (c.trustedSource(it.Source) || c.trustedDomain(it.Link)) {
		return true
	}
	return false
}

func (c *Classifier) trustedSource(name string) bool {
	name = strings.ToLower(name)
	for _, s := range c.trustedSources {
		if s != "" && strings.Contains(name, s) {
			return true
		}
	}
	return false
}

func (c *Classifier) trustedDomain(link string) bool {
	u, err := url.Parse(link)
	if err != nil {
		return false
	}
	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	for _, d := range c.trustedDomains {
		if d != "" && (host == d || strings.HasSuffix(host, "."+d)) {
			return true
		}
	}
	return false
}

func matches(re *regexp.Regexp, s string) bool {
	return re != nil && re.MatchString(s)
}

// wordPattern compiles terms into one case-insensitive, whole-word alternation.
// Apostrophes match both ASCII and typographic forms and inner spaces match any whitespace.
func wordPattern(terms []string) *regexp.Regexp {
	parts := make([]string, 0, len(terms))
	for _, t := range terms {
		t = strings.TrimSpace(strings.ToLower(t))
		if t == "" {
			continue
		}
		q := regexp.QuoteMeta(t)
		q = strings.ReplaceAll(q, "'", `['’]`)
		q = strings.Join(strings.Fields(q), `\s+`)
		parts = append(parts, q)
	}
	if len(parts) == 0 {
		return nil
	}
	return regexp.MustCompile(`(?i)(?:^|[^\pL\pN_])(?:` + strings.Join(parts, "|") + `)(?:$|[^\pL\pN_])`)
}

func lowerAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(strings.ToLower(s)); s != "" {
			out = append(out, s)
		}
	}
	return out
}
