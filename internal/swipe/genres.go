package swipe

import (
	"strings"
	"time"
)

// genreAliases maps UI-facing genre labels to the catalog labels they should
// also match, lowercased. Matching is symmetric: either side of an alias
// pair intersects the other.
var genreAliases = map[string][]string{
	"sci-fi":          {"science fiction", "scifi"},
	"science fiction": {"sci-fi", "scifi"},
	"rom-com":         {"romantic comedy", "romance", "comedy"},
	"docs":            {"documentary"},
	"documentary":     {"docs"},
	"kids":            {"children", "family"},
	"family":          {"children", "kids"},
	"action":          {"action/adventure", "adventure"},
	"adventure":       {"action/adventure"},
	"musical":         {"music", "musicals"},
	"mystery":         {"crime", "thriller"},
	"scary":           {"horror"},
	"horror":          {"scary"},
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// expandGenre returns the normalized genre plus all of its aliases.
func expandGenre(g string) []string {
	n := normalize(g)
	return append([]string{n}, genreAliases[n]...)
}

// genresIntersect reports whether any item genre matches any wanted genre,
// honouring the alias table in both directions.
func genresIntersect(itemGenres, wanted []string) bool {
	if len(itemGenres) == 0 || len(wanted) == 0 {
		return false
	}
	set := make(map[string]struct{})
	for _, w := range wanted {
		for _, g := range expandGenre(w) {
			set[g] = struct{}{}
		}
	}
	for _, g := range itemGenres {
		for _, e := range expandGenre(g) {
			if _, ok := set[e]; ok {
				return true
			}
		}
	}
	return false
}

// Era bucket names accepted in preferences.
const (
	EraRecent  = "recent"
	Era2020s   = "2020s"
	Era2010s   = "2010s"
	Era2000s   = "2000s"
	Era90s     = "90s"
	EraClassic = "classic"
)

// yearInEras reports whether a release year falls in any of the named era
// buckets. recent means the last two years inclusive of now's year.
func yearInEras(year int, eras []string, now time.Time) bool {
	if year == 0 || len(eras) == 0 {
		return false
	}
	for _, era := range eras {
		switch normalize(era) {
		case EraRecent:
			if year >= now.Year()-2 {
				return true
			}
		case Era2020s:
			if year >= 2020 {
				return true
			}
		case Era2010s:
			if year >= 2010 && year < 2020 {
				return true
			}
		case Era2000s:
			if year >= 2000 && year < 2010 {
				return true
			}
		case Era90s:
			if year >= 1990 && year < 2000 {
				return true
			}
		case EraClassic:
			if year < 1990 {
				return true
			}
		}
	}
	return false
}
