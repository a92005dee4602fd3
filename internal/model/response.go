package model

import "strings"

// NormalizeText strips markdown code fences an LLM may wrap its answer
// in, returning trimmed plain text.
func NormalizeText(text string) string {
	content := strings.TrimSpace(text)
	for _, prefix := range []string{"```json", "```text", "```"} {
		if strings.HasPrefix(content, prefix) {
			content = strings.TrimPrefix(content, prefix)
			break
		}
	}
	content = strings.TrimSuffix(content, "```")
	return strings.TrimSpace(content)
}
