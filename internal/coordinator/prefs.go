package coordinator

import (
	"sort"
	"strings"

	"github.com/reelmatch/backend/internal/models"
)

// AggregatePreferences combines every participant's facet choices.
// Preferred values union across the group as soft scoring signals; a
// participant with no opinion on a facet contributes nothing rather than
// "everything". Exclusions union too, but apply globally as hard filters:
// one participant excluding a genre removes it for the whole group.
func AggregatePreferences(participants []models.Participant) models.AggregatedPreferences {
	var agg models.AggregatedPreferences
	for _, p := range participants {
		agg.Genres = unionFold(agg.Genres, p.Preferences.Genres)
		agg.ExcludedGenres = unionFold(agg.ExcludedGenres, p.Preferences.ExcludedGenres)
		agg.Eras = unionFold(agg.Eras, p.Preferences.Eras)
		agg.ExcludedEras = unionFold(agg.ExcludedEras, p.Preferences.ExcludedEras)
		agg.Languages = unionFold(agg.Languages, p.Preferences.Languages)
		agg.ExcludedLanguages = unionFold(agg.ExcludedLanguages, p.Preferences.ExcludedLanguages)
	}
	return agg
}

// unionFold appends the values not already present, case-insensitively, and
// keeps the result sorted so aggregation order does not depend on roster
// order.
func unionFold(acc, values []string) []string {
	if len(values) == 0 {
		return acc
	}
	seen := make(map[string]struct{}, len(acc))
	for _, v := range acc {
		seen[strings.ToLower(strings.TrimSpace(v))] = struct{}{}
	}
	for _, v := range values {
		key := strings.ToLower(strings.TrimSpace(v))
		if key == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		acc = append(acc, strings.TrimSpace(v))
	}
	sort.Strings(acc)
	return acc
}
