package stats

import (
	"regexp"
	"strconv"

	lru "github.com/hashicorp/golang-lru/v2"
)

const errorTemplateCacheSize = 1000

var (
	ipPortPattern  = `\b\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3}:\d{1,5}\b`
	integerPattern = `\b\d+\b`
	// combinedPattern matches whichever comes first; putting the address
	// alternative first lets it win over the bare-integer alternative when
	// both could start matching at the same position (an address's first
	// octet also looks like a standalone integer).
	combinedPattern = regexp.MustCompile(ipPortPattern + "|" + integerPattern)
	ipPortOnly      = regexp.MustCompile(`^` + ipPortPattern + `$`)
)

// PlaceholderKind distinguishes what a `#` token in a template stood for, so
// the per-template tracker knows whether to widen an integer range or
// collect a seen-set of addresses/strings.
type PlaceholderKind int

const (
	PlaceholderInteger PlaceholderKind = iota
	PlaceholderAddress
)

// tokenizeReason replaces IPv4:port occurrences and bare integers with a
// single `#` placeholder, returning the resulting template and, in order of
// appearance, what each placeholder originally stood for.
func tokenizeReason(reason string) (template string, placeholders []PlaceholderKind, originals []string) {
	matches := combinedPattern.FindAllStringIndex(reason, -1)
	if len(matches) == 0 {
		return reason, nil, nil
	}

	var b []byte
	last := 0
	for _, m := range matches {
		start, end := m[0], m[1]
		b = append(b, reason[last:start]...)
		b = append(b, '#')
		text := reason[start:end]
		if ipPortOnly.MatchString(text) {
			placeholders = append(placeholders, PlaceholderAddress)
		} else {
			placeholders = append(placeholders, PlaceholderInteger)
		}
		originals = append(originals, text)
		last = end
	}
	b = append(b, reason[last:]...)

	return string(b), placeholders, originals
}

// PlaceholderStats tracks what one `#` position in a template has seen.
type PlaceholderStats struct {
	Kind        PlaceholderKind
	IntMin      int64
	IntMax      int64
	HasInt      bool
	SeenAddrs   map[string]bool
	SeenGeneric map[string]bool
}

const maxSeenSetSize = 50

func newPlaceholderStats(kind PlaceholderKind) *PlaceholderStats {
	return &PlaceholderStats{Kind: kind, SeenAddrs: map[string]bool{}, SeenGeneric: map[string]bool{}}
}

func (p *PlaceholderStats) observe(original string) {
	switch p.Kind {
	case PlaceholderAddress:
		if len(p.SeenAddrs) < maxSeenSetSize {
			p.SeenAddrs[original] = true
		}
	case PlaceholderInteger:
		if n, err := strconv.ParseInt(original, 10, 64); err == nil {
			if !p.HasInt || n < p.IntMin {
				p.IntMin = n
			}
			if !p.HasInt || n > p.IntMax {
				p.IntMax = n
			}
			p.HasInt = true
		} else if len(p.SeenGeneric) < maxSeenSetSize {
			p.SeenGeneric[original] = true
		}
	}
}

// ErrorTemplateStats is the running summary for one distinct error template.
type ErrorTemplateStats struct {
	Template     string
	Count        int64
	Placeholders []*PlaceholderStats
}

// errorTemplateCache memoizes tokenization per exact reason string, bounded
// so a flood of distinct error strings can't grow memory unboundedly.
type errorTemplateCache struct {
	cache *lru.Cache[string, tokenizeResult]
}

type tokenizeResult struct {
	template     string
	placeholders []PlaceholderKind
	originals    []string
}

func newErrorTemplateCache() *errorTemplateCache {
	c, _ := lru.New[string, tokenizeResult](errorTemplateCacheSize)
	return &errorTemplateCache{cache: c}
}

func (c *errorTemplateCache) tokenize(reason string) tokenizeResult {
	if v, ok := c.cache.Get(reason); ok {
		return v
	}
	tmpl, placeholders, originals := tokenizeReason(reason)
	result := tokenizeResult{template: tmpl, placeholders: placeholders, originals: originals}
	c.cache.Add(reason, result)
	return result
}
