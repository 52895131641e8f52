package router

import (
	"fmt"
	"strings"

	"github.com/efiadm/api-categorizer-aggr/internal/catalog"
)

func classificationPrompt(question string, categories []string) string {
	var list strings.Builder
	for _, c := range categories {
		list.WriteString("- ")
		list.WriteString(c)
		list.WriteString("\n")
	}

	return fmt.Sprintf(`You are an intelligent API router. Given a user's question, determine which APIs from the available list would be most relevant to answer their question.

User Question: %s

Available API Categories:
%s
Analyze the user's question and respond with a JSON object containing:
1. "categories": An array of 1-3 most relevant API categories from the list above
2. "reasoning": Brief explanation of why these categories are relevant
3. "needsMultiple": Boolean indicating if multiple APIs should be consulted

Return format:
{
  "categories": ["Weather", "Maps & Geolocation"],
  "reasoning": "The question involves location-based weather data",
  "needsMultiple": true
}`, question, list.String())
}

func answerPrompt(question string, apis []catalog.API) string {
	blocks := make([]string, len(apis))
	for i, api := range apis {
		blocks[i] = fmt.Sprintf("\n- %s (%s): %s\n  Endpoint: %s\n", api.Name, api.Category, api.Description, api.Endpoint)
	}

	return fmt.Sprintf(`You are a helpful AI assistant with access to data from various APIs.

User Question: %s

You have queried the following APIs and received data:
%s

Generate a helpful, natural response to the user's question as if you successfully queried these APIs and received relevant data.

Guidelines:
- Be conversational and friendly
- Synthesize information from multiple APIs when relevant
- If the question cannot be fully answered with the available APIs, acknowledge this and provide what you can
- Keep responses concise (2-4 sentences typically)
- Don't mention that you're simulating - respond as if you have real data
- If no APIs are truly relevant, politely explain what you can help with instead

Response:`, question, strings.Join(blocks, "\n"))
}
