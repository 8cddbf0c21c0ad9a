package askolistctl

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/askolist/askolist/internal/query"
)

type answer struct {
	Answer   string          `json:"answer"`
	Outcome  string          `json:"outcome"`
	SQL      string          `json:"sql"`
	Repaired bool            `json:"repaired"`
	Result   *query.Relation `json:"result"`
}

func (c *client) ask(ctx context.Context, question string) (answer, error) {
	code, body, err := c.do(ctx, http.MethodPost, "/v1/ask", map[string]string{"question": question})
	if err != nil {
		return answer{}, fmt.Errorf("request failed: %w", err)
	}
	if code >= 400 {
		return answer{}, fmt.Errorf("http %d: %s", code, strings.TrimSpace(string(body)))
	}
	var out answer
	if err := json.Unmarshal(body, &out); err != nil {
		return answer{}, fmt.Errorf("decode answer: %w", err)
	}
	return out, nil
}

func renderAnswer(w io.Writer, a answer) {
	_, _ = fmt.Fprintln(w, a.Answer)
	if a.SQL != "" {
		label := "SQL"
		if a.Repaired {
			label = "SQL (repaired)"
		}
		_, _ = fmt.Fprintf(w, "\n%s: %s\n", label, a.SQL)
	}
	if a.Result != nil && len(a.Result.Columns) > 0 {
		_, _ = fmt.Fprintln(w)
		query.WriteTable(w, *a.Result, query.TableBoxed)
		if a.Result.Truncated {
			_, _ = fmt.Fprintln(w, "(result truncated)")
		}
	}
}

// chat reads one question per line until EOF or /quit. Request failures are
// reported and the session continues.
func (c *client) chat(ctx context.Context, stdin io.Reader, stdout, stderr io.Writer) int {
	scanner := bufio.NewScanner(stdin)
	_, _ = fmt.Fprintln(stdout, "Ask about the Olist dataset. /reset clears the conversation, /quit exits.")
	for {
		_, _ = fmt.Fprint(stdout, "> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
			continue
		case "/quit", "/exit":
			return 0
		case "/reset":
			if err := c.reset(ctx); err != nil {
				_, _ = fmt.Fprintf(stderr, "%v\n", err)
				continue
			}
			_, _ = fmt.Fprintln(stdout, "conversation cleared")
			continue
		}
		a, err := c.ask(ctx, line)
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "%v\n", err)
			continue
		}
		renderAnswer(stdout, a)
		_, _ = fmt.Fprintln(stdout)
	}
	if err := scanner.Err(); err != nil {
		_, _ = fmt.Fprintf(stderr, "read input: %v\n", err)
		return 1
	}
	_, _ = fmt.Fprintln(stdout)
	return 0
}
