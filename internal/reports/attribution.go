package reports

import (
	"sort"
	"strings"

	"github.com/databender/leadengine/internal/domain"
)

const (
	topAttributedPages = 15
	topConversionPaths = 10
	pathPrefixPages    = 5
)

// PageAttribution is how often a page took part in conversions.
type PageAttribution struct {
	Page             string `json:"page"`
	FirstTouchCount  int    `json:"firstTouchCount"`
	LastTouchCount   int    `json:"lastTouchCount"`
	AssistCount      int    `json:"assistCount"`
	TotalAppearances int    `json:"totalAppearances"`
	InfluenceScore   int    `json:"influenceScore"`
	ConversionRate   int    `json:"conversionRate"`
}

// PathCount is a common page sequence ending in conversion.
type PathCount struct {
	Path       string `json:"path"`
	Count      int    `json:"count"`
	Percentage int    `json:"percentage"`
}

// AttributionReport credits pages with the conversions they led to.
type AttributionReport struct {
	TotalConversions     int               `json:"totalConversions"`
	FirstTouch           []PageAttribution `json:"firstTouch"`
	LastTouch            []PageAttribution `json:"lastTouch"`
	Assists              []PageAttribution `json:"assists"`
	TopPaths             []PathCount       `json:"topPaths"`
	ByType               map[string]int    `json:"byType"`
	ByDevice             map[string]int    `json:"byDevice"`
	BySource             map[string]int    `json:"bySource"`
	AverageJourneyLength float64           `json:"averageJourneyLength"`
	SinglePageJourneys   int               `json:"singlePageJourneys"`
	MultiPageJourneys    int               `json:"multiPageJourneys"`
}

// BuildAttribution credits the first page of each journey with a first
// touch, the last with a last touch and every page between with an assist.
// A one page journey counts as both first and last touch.
func BuildAttribution(conversions []domain.ConversionPath) *AttributionReport {
	r := &AttributionReport{
		TotalConversions: len(conversions),
		ByType:           map[string]int{},
		ByDevice:         map[string]int{},
		BySource:         map[string]int{},
	}
	pages := map[string]*PageAttribution{}
	page := func(p string) *PageAttribution {
		pa, ok := pages[p]
		if !ok {
			pa = &PageAttribution{Page: p}
			pages[p] = pa
		}
		return pa
	}
	paths := map[string]int{}
	steps := 0

	for i := range conversions {
		c := &conversions[i]
		r.ByType[firstNonEmpty(c.ConversionType, "unknown")]++
		r.ByDevice[firstNonEmpty(c.Device, "unknown")]++
		r.BySource[firstNonEmpty(c.ReferrerSource, "direct")]++

		journey := journeyPages(c)
		steps += len(journey)
		if len(journey) == 0 {
			continue
		}
		if len(journey) == 1 {
			r.SinglePageJourneys++
		} else {
			r.MultiPageJourneys++
		}

		page(journey[0]).FirstTouchCount++
		page(journey[len(journey)-1]).LastTouchCount++
		for _, p := range journey[1 : len(journey)-1] {
			page(p).AssistCount++
		}
		seen := map[string]bool{}
		for _, p := range journey {
			if !seen[p] {
				seen[p] = true
				page(p).TotalAppearances++
			}
		}

		prefix := journey
		if len(prefix) > pathPrefixPages {
			prefix = prefix[:pathPrefixPages]
		}
		paths[strings.Join(prefix, " -> ")]++
	}

	total := len(conversions)
	all := make([]PageAttribution, 0, len(pages))
	for _, pa := range pages {
		pa.InfluenceScore = percentInt(pa.TotalAppearances, total)
		all = append(all, *pa)
	}
	r.FirstTouch = topBy(all, total, func(p PageAttribution) int { return p.FirstTouchCount })
	r.LastTouch = topBy(all, total, func(p PageAttribution) int { return p.LastTouchCount })
	r.Assists = topBy(all, total, func(p PageAttribution) int { return p.AssistCount })

	r.TopPaths = []PathCount{}
	for _, p := range ranked(paths) {
		if len(r.TopPaths) == topConversionPaths {
			break
		}
		r.TopPaths = append(r.TopPaths, PathCount{Path: p, Count: paths[p], Percentage: percentInt(paths[p], total)})
	}

	if total > 0 {
		r.AverageJourneyLength = round(float64(steps)/float64(total), 1)
	}
	return r
}

// journeyPages prefers the recorded journey and falls back to the touch pages.
func journeyPages(c *domain.ConversionPath) []string {
	if len(c.PageJourney) > 0 {
		out := make([]string, 0, len(c.PageJourney))
		for _, s := range c.PageJourney {
			out = append(out, s.Page)
		}
		return out
	}
	switch {
	case c.FirstTouchPage == "" && c.LastTouchPage == "":
		return nil
	case c.FirstTouchPage == "" || c.FirstTouchPage == c.LastTouchPage:
		return []string{firstNonEmpty(c.LastTouchPage, c.FirstTouchPage)}
	case c.LastTouchPage == "":
		return []string{c.FirstTouchPage}
	}
	return []string{c.FirstTouchPage, c.LastTouchPage}
}

// topBy keeps pages with a non-zero count for the given credit, ordered by
// that count, with ConversionRate relative to it.
func topBy(all []PageAttribution, total int, count func(PageAttribution) int) []PageAttribution {
	out := []PageAttribution{}
	for _, p := range all {
		if n := count(p); n > 0 {
			p.ConversionRate = percentInt(n, total)
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		ci, cj := count(out[i]), count(out[j])
		if ci != cj {
			return ci > cj
		}
		return out[i].Page < out[j].Page
	})
	if len(out) > topAttributedPages {
		out = out[:topAttributedPages]
	}
	return out
}
