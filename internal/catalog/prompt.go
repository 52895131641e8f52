package catalog

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// quoteList renders values as a JSON array without HTML escaping, so
// "Data & Analytics" stays readable in the prompt.
func quoteList(values []string) string {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(values)
	return strings.TrimSpace(buf.String())
}

// BuildPrompt returns the catalog generation prompt for size entries.
func BuildPrompt(size int, categories []string) string {
	statuses := make([]string, len(Statuses))
	for i, s := range Statuses {
		statuses[i] = string(s)
	}
	methods := make([]string, len(Methods))
	for i, m := range Methods {
		methods[i] = string(m)
	}

	return fmt.Sprintf(`Generate exactly %d unique API entries for an API directory application. Each API should have realistic data.

Return the result as a valid JSON object with a single property called "apis" that contains the API list.

Each API object should have:
- id: unique identifier (use sequential numbers like "api-001", "api-002", etc.)
- name: creative API name (e.g., "OpenWeather Current", "Stripe Payments", "Twitter Timeline")
- description: brief description of what the API does (1-2 sentences)
- category: one of %s
- endpoint: realistic API endpoint URL (e.g., "https://api.service.com/v1/resource")
- method: one of %s
- authRequired: boolean
- status: one of %s (90%% active, 8%% beta, 2%% deprecated)
- rateLimit: string like "100 requests/hour" or "1000 requests/day"

Distribute APIs evenly across all categories. Make the data realistic and diverse.

Return format:
{
  "apis": [
    {
      "id": "api-001",
      "name": "OpenWeather Current",
      "description": "Get current weather data for any location worldwide with temperature, humidity, and conditions.",
      "category": "Weather",
      "endpoint": "https://api.openweathermap.org/data/2.5/weather",
      "method": "GET",
      "authRequired": true,
      "status": "active",
      "rateLimit": "60 calls/minute"
    }
  ]
}`, size, quoteList(categories), quoteList(methods), quoteList(statuses))
}
