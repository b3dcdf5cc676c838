package recommend

import (
	"context"
	"strings"

	"github.com/ymzhao/go-car-advisor/internal/domain"
)

// MaxMatches caps how many catalog records one turn may recommend.
const MaxMatches = 5

// Catalog is the read-only car store the matcher resolves keywords against.
type Catalog interface {
	SearchCars(ctx context.Context, keywords []string, limit int) ([]domain.Car, error)
}

// Match pairs a catalog record with its relevance to the extracted keywords.
type Match struct {
	Car      domain.Car
	Score    int
	ReasonEN string
	ReasonZH string
}

// MatchCatalog resolves extracted keywords to at most MaxMatches catalog
// records. Chinese vocabulary forms are canonicalized to their English
// counterparts before the lookup since the catalog columns are English.
//
// Recommendations are best-effort enrichment: a catalog failure yields an
// empty result, never an error.
func MatchCatalog(ctx context.Context, catalog Catalog, keywords []string) []Match {
	canonical := Canonicalize(keywords)
	if len(canonical) == 0 {
		return nil
	}

	cars, err := catalog.SearchCars(ctx, canonical, MaxMatches)
	if err != nil {
		return nil
	}

	out := make([]Match, 0, len(cars))
	for _, car := range cars {
		hits := keywordHits(car, canonical)
		out = append(out, Match{
			Car:      car,
			Score:    score(len(hits), len(canonical)),
			ReasonEN: reasonEN(hits),
			ReasonZH: reasonZH(hits),
		})
	}
	return out
}

// Canonicalize maps Chinese vocabulary forms to their English counterparts
// and deduplicates, preserving first-seen order.
func Canonicalize(keywords []string) []string {
	var out []string
	seen := make(map[string]struct{})
	for _, kw := range keywords {
		kw = strings.TrimSpace(kw)
		if kw == "" {
			continue
		}
		if en, ok := zhToEN[kw]; ok {
			kw = en
		}
		key := strings.ToLower(kw)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, kw)
	}
	return out
}

// keywordHits returns the keywords found in the car's make, model, or
// category (case-insensitive), in input order.
func keywordHits(car domain.Car, keywords []string) []string {
	haystack := strings.ToLower(car.Make + " " + car.Model + " " + car.Category)
	var hits []string
	for _, kw := range keywords {
		if strings.Contains(haystack, strings.ToLower(kw)) {
			hits = append(hits, kw)
		}
	}
	return hits
}

// score derives a 0-100 relevance from keyword coverage. Every returned car
// matched at least one keyword, so the result is never zero in practice.
func score(hits, total int) int {
	if total == 0 {
		return 0
	}
	return (100 * hits) / total
}

func reasonEN(hits []string) string {
	if len(hits) == 0 {
		return "Related to your conversation"
	}
	return "Matches your interest in " + strings.Join(hits, ", ")
}

func reasonZH(hits []string) string {
	if len(hits) == 0 {
		return "与您的对话相关"
	}
	localized := make([]string, len(hits))
	for i, h := range hits {
		if zh, ok := enToZH[strings.ToLower(h)]; ok {
			localized[i] = zh
		} else {
			localized[i] = h
		}
	}
	return "符合您对" + strings.Join(localized, "、") + "的关注"
}

// Lookup tables derived from the vocabularies at init time.
var (
	zhToEN = map[string]string{}
	enToZH = map[string]string{}
)

func init() {
	for _, vocab := range [][]Term{Brands, Categories} {
		for _, t := range vocab {
			if t.EN != "" && t.ZH != "" {
				zhToEN[t.ZH] = t.EN
				enToZH[strings.ToLower(t.EN)] = t.ZH
			}
		}
	}
}
