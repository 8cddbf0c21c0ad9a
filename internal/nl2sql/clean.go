// Package nl2sql turns model output into statements the query engine can run.
package nl2sql

import "strings"

// CleanSQL strips Markdown code fences, backticks and surrounding whitespace
// from model output and drops a single trailing statement terminator.
// No validation happens here: malformed SQL surfaces at execution time.
func CleanSQL(raw string) string {
	cleaned := strings.ReplaceAll(raw, "```sql", "")
	cleaned = strings.ReplaceAll(cleaned, "```", "")
	cleaned = strings.ReplaceAll(cleaned, "`", "")
	cleaned = strings.TrimSpace(cleaned)
	if strings.HasSuffix(cleaned, ";") {
		cleaned = strings.TrimSpace(strings.TrimSuffix(cleaned, ";"))
	}
	return cleaned
}
