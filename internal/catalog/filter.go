package catalog

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Filter returns the entries of apis in category (when non-empty) whose
// name, description, category or endpoint contains the trimmed query,
// case-insensitively. Catalog order is preserved and apis is not modified.
func Filter(apis []API, query, category string) []API {
	q := strings.ToLower(strings.TrimSpace(query))
	out := make([]API, 0, len(apis))

	for _, api := range apis {
		if category != "" && api.Category != category {
			continue
		}
		if q != "" && !matches(api, q) {
			continue
		}
		out = append(out, api)
	}
	return out
}

func matches(api API, lowerQuery string) bool {
	return strings.Contains(strings.ToLower(api.Name), lowerQuery) ||
		strings.Contains(strings.ToLower(api.Description), lowerQuery) ||
		strings.Contains(strings.ToLower(api.Category), lowerQuery) ||
		strings.Contains(strings.ToLower(api.Endpoint), lowerQuery)
}

// Active returns the active entries of apis in catalog order.
func Active(apis []API) []API {
	out := make([]API, 0, len(apis))
	for _, api := range apis {
		if api.IsActive() {
			out = append(out, api)
		}
	}
	return out
}

// Lookup returns the entry with id.
func Lookup(apis []API, id string) (API, bool) {
	for _, api := range apis {
		if api.ID == id {
			return api, true
		}
	}
	return API{}, false
}

// Mode selects which entries a view starts from.
type Mode string

// View modes.
const (
	ModeAll       Mode = "all"
	ModeFavorites Mode = "favorites"
	ModeHistory   Mode = "history"
)

// ParseMode parses a view mode. The empty string means ModeAll.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case "", ModeAll:
		return ModeAll, nil
	case ModeFavorites, ModeHistory:
		return m, nil
	default:
		return "", fmt.Errorf("unknown view %q", s)
	}
}

// Query is a browse request.
type Query struct {
	Text     string `json:"q,omitempty"`
	Category string `json:"category,omitempty"`
	Mode     Mode   `json:"view,omitempty"`
}

// Visit is a history entry as seen by View.
type Visit struct {
	APIID     string
	Timestamp time.Time
}

// View applies a browse query. favorites holds favorited ids. history may be
// in any order. The history view is ordered by most recent visit and
// ignores text and category.
func View(apis []API, q Query, favorites map[string]bool, history []Visit) []API {
	switch q.Mode {
	case ModeFavorites:
		favs := make([]API, 0, len(favorites))
		for _, api := range apis {
			if favorites[api.ID] {
				favs = append(favs, api)
			}
		}
		return Filter(favs, q.Text, q.Category)

	case ModeHistory:
		visits := append([]Visit(nil), history...)
		sort.SliceStable(visits, func(i, j int) bool {
			return visits[i].Timestamp.After(visits[j].Timestamp)
		})

		byID := make(map[string]API, len(apis))
		for _, api := range apis {
			byID[api.ID] = api
		}

		out := make([]API, 0, len(visits))
		seen := make(map[string]bool, len(visits))
		for _, v := range visits {
			api, ok := byID[v.APIID]
			if !ok || seen[v.APIID] {
				continue
			}
			seen[v.APIID] = true
			out = append(out, api)
		}
		return out

	default:
		return Filter(apis, q.Text, q.Category)
	}
}
