package catalog

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/efiadm/api-categorizer-aggr/internal/randsrc"
)

var (
	whitespace     = regexp.MustCompile(`\s+`)
	rateLimitSteps = []int{100, 500, 1000, 5000}
)

// Fallback synthesizes size entries split evenly over categories, in
// category order. Only method, authRequired, status and rateLimit draw from
// rnd; everything else is derived from the category and position.
func Fallback(rnd randsrc.Source, size int, categories []string) []API {
	if len(categories) == 0 || size <= 0 {
		return []API{}
	}
	if rnd == nil {
		rnd = randsrc.Default()
	}

	perCategory := size / len(categories)
	apis := make([]API, 0, perCategory*len(categories))

	for ci, category := range categories {
		lower := strings.ToLower(category)
		host := whitespace.ReplaceAllString(lower, "")

		for i := 0; i < perCategory; i++ {
			index := ci*perCategory + i

			apis = append(apis, API{
				ID:           fmt.Sprintf("api-%03d", index+1),
				Name:         fmt.Sprintf("%s API %d", category, i+1),
				Description:  fmt.Sprintf("A comprehensive %s API providing access to various %s related data and services.", lower, lower),
				Category:     category,
				Endpoint:     fmt.Sprintf("https://api.%s.com/v1/data", host),
				Status:       statusFor(rnd.Float64()),
				Method:       Methods[rnd.IntN(len(Methods))],
				AuthRequired: rnd.Float64() > 0.3,
				RateLimit:    fmt.Sprintf("%d requests/hour", rateLimitSteps[rnd.IntN(len(rateLimitSteps))]),
			})
		}
	}

	return apis
}

// statusFor splits r in [0,1) into 90% active, 8% beta, 2% deprecated.
func statusFor(r float64) Status {
	switch {
	case r < 0.9:
		return StatusActive
	case r < 0.98:
		return StatusBeta
	default:
		return StatusDeprecated
	}
}
