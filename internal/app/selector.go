package app

import (
	"sort"
	"strings"

	"github.com/samber/lo"
	"github.com/yourusername/shortforge-go/internal/domain"
)

// NormalizeQuery trims the query and collapses inner whitespace
func NormalizeQuery(query string) string {
	return strings.Join(strings.Fields(query), " ")
}

// QueryVariants returns the exact phrase followed by a broadened phrase with
// the last word dropped. Single-word queries have no broadened variant.
func QueryVariants(query string) []string {
	normalized := NormalizeQuery(query)
	if normalized == "" {
		return nil
	}

	words := strings.Fields(normalized)
	variants := []string{normalized}
	if len(words) >= 2 {
		variants = append(variants, strings.Join(words[:len(words)-1], " "))
	}
	return variants
}

// MergeCandidates concatenates the lists in order and drops repeated IDs.
// The first occurrence of an ID wins.
func MergeCandidates(lists ...[]domain.Candidate) []domain.Candidate {
	return lo.UniqBy(lo.Flatten(lists), func(c domain.Candidate) int64 {
		return c.ID
	})
}

// FilterByDuration keeps candidates whose duration lies in [min, max]
func FilterByDuration(candidates []domain.Candidate, min, max float64) []domain.Candidate {
	return lo.Filter(candidates, func(c domain.Candidate, _ int) bool {
		return c.InDurationRange(min, max)
	})
}

// RankCandidates sorts by quality score, highest first. Equal scores keep
// their input order.
func RankCandidates(candidates []domain.Candidate, weight float64) []domain.Candidate {
	ranked := make([]domain.Candidate, len(candidates))
	copy(ranked, candidates)
	sort.SliceStable(ranked, func(i, j int) bool {
		return domain.QualityScore(ranked[i], weight) > domain.QualityScore(ranked[j], weight)
	})
	return ranked
}

// TopUp appends extra candidates to base that are not already present,
// until base holds limit entries.
func TopUp(base, extra []domain.Candidate, limit int) []domain.Candidate {
	seen := lo.SliceToMap(base, func(c domain.Candidate) (int64, struct{}) {
		return c.ID, struct{}{}
	})
	out := base
	for _, c := range extra {
		if len(out) >= limit {
			break
		}
		if _, ok := seen[c.ID]; ok {
			continue
		}
		seen[c.ID] = struct{}{}
		out = append(out, c)
	}
	return out
}
