// Package prompt builds every text prompt the assistant sends to the model.
// All builders are pure: the same inputs always produce the same prompt.
package prompt

import (
	"fmt"
	"strings"

	"github.com/askolist/askolist/internal/memory"
	"github.com/askolist/askolist/internal/query"
)

const (
	RelationName = "olist"
	Dialect      = "DuckDB"

	// SampleRows is how many result rows the summary prompt shows by default.
	SampleRows = 10

	noHistory = "No previous conversation."
)

var columnNotes = []string{
	"- product_category_name / product_category_name_english → category names",
	"- product_length_cm, product_height_cm, product_width_cm, product_weight_g → dimensions",
	"- price, payment_value, freight_value → financial metrics",
	"- delivery_days → delivery time (days)",
	"- review_score → 1–5 rating",
	"- customer_state, seller_geo_state → geography",
}

// Schema describes the relation's columns plus fixed notes on the columns
// questions most often hinge on.
func Schema(columns []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "The dataset has %d columns: %s.\n", len(columns), strings.Join(columns, ", "))
	fmt.Fprintf(&b, "Use '%s' as the table name. Important columns:\n", RelationName)
	for _, note := range columnNotes {
		b.WriteString(note)
		b.WriteString("\n")
	}
	return b.String()
}

// Memory renders turns oldest first as User/Bot lines.
func Memory(turns []memory.Turn) string {
	if len(turns) == 0 {
		return noHistory
	}
	lines := make([]string, 0, len(turns))
	for _, turn := range turns {
		lines = append(lines, fmt.Sprintf("User: %s\nBot: %s", turn.Question, turn.Answer))
	}
	return strings.Join(lines, "\n")
}

func Translate(question string) string {
	return fmt.Sprintf("Translate this query into English if needed; else return it unchanged:\nQuery: %q\n", question)
}

func SQL(schema, history, question string) string {
	return fmt.Sprintf(`You are a data analyst working with %s (table name: %s).
%s

Conversation so far:
%s

User query: %q

Generate a single valid %s SQL query (no markdown, no explanation).
`, Dialect, RelationName, schema, history, question, Dialect)
}

func Fix(question, errText string) string {
	return fmt.Sprintf(`A %s SQL query against table %s failed with error: %s
User query: %s
Generate a single corrected SQL query (no markdown, no explanation).
`, Dialect, RelationName, errText, question)
}

// Summary shows the model at most sampleRows leading rows of result as a
// Markdown table.
func Summary(question, statement string, result query.Relation, sampleRows int) string {
	if sampleRows <= 0 {
		sampleRows = SampleRows
	}
	sample := query.Table(result.Head(sampleRows), query.TableMarkdown)
	if strings.TrimSpace(sample) == "" {
		sample = "(no rows)"
	} else if len(result.Rows) == 0 {
		sample += "(no rows)\n"
	}
	return fmt.Sprintf(`Write a concise 3–4 sentence summary explaining these results for a manager.

User question: %s
SQL: %s

Sample data:
%s`, question, statement, sample)
}

func Definition(question string) string {
	return fmt.Sprintf("You are an analytics tutor. Explain this concept clearly in 3–4 lines in context of e-commerce analytics.\nQuery: %s\n", question)
}
