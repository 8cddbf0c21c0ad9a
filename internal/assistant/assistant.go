// Package assistant answers natural-language questions about the dataset:
// it triages the question, asks the model for SQL, runs it, repairs it once
// on failure and summarizes the result. Every failure ends as a Response;
// nothing is returned as an error or allowed to panic out of Ask.
package assistant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/askolist/askolist/internal/dataset"
	"github.com/askolist/askolist/internal/llm"
	"github.com/askolist/askolist/internal/memory"
	"github.com/askolist/askolist/internal/nl2sql"
	"github.com/askolist/askolist/internal/observability"
	"github.com/askolist/askolist/internal/prompt"
	"github.com/askolist/askolist/internal/query"
)

type Outcome string

const (
	OutcomeEmptyInput  Outcome = "empty_input"
	OutcomeGlossary    Outcome = "glossary"
	OutcomeNoSQL       Outcome = "no_sql"
	OutcomeQueryFailed Outcome = "query_failed"
	OutcomeAnswered    Outcome = "answered"
	OutcomeTimeout     Outcome = "timeout"
	OutcomeError       Outcome = "error"
)

const (
	answerEmptyInput = "Please provide a question."
	answerNoSQL      = "Unable to create SQL for this query."
)

const (
	stageDefine      = "define"
	stageTranslate   = "translate"
	stageGenerateSQL = "generate_sql"
	stageRepair      = "repair"
	stageSummarize   = "summarize"
)

// Response is the single value every question resolves to. Result is set
// only when Outcome is OutcomeAnswered.
type Response struct {
	Answer     string          `json:"answer"`
	Outcome    Outcome         `json:"outcome"`
	Question   string          `json:"question,omitempty"`
	SQL        string          `json:"sql,omitempty"`
	Repaired   bool            `json:"repaired,omitempty"`
	Result     *query.Relation `json:"result,omitempty"`
	DurationMs int64           `json:"duration_ms"`
}

type Config struct {
	Generator llm.Generator
	Engine    query.Engine
	Dataset   *dataset.Dataset
	// Memory defaults to a fresh conversation of memory.DefaultCapacity turns.
	Memory *memory.Conversation
	Logger *slog.Logger
	// SampleRows is how many rows the summary prompt sees.
	SampleRows int
	// LLMTimeout and QueryTimeout bound each model call and each statement
	// execution; zero leaves them unbounded.
	LLMTimeout   time.Duration
	QueryTimeout time.Duration
}

// Assistant owns one conversation. Calls to Ask, Reset and History are
// serialized.
type Assistant struct {
	mu           sync.Mutex
	generator    llm.Generator
	engine       query.Engine
	dataset      *dataset.Dataset
	memory       *memory.Conversation
	logger       *slog.Logger
	sampleRows   int
	llmTimeout   time.Duration
	queryTimeout time.Duration
	schema       string
}

func New(cfg Config) (*Assistant, error) {
	if cfg.Generator == nil {
		return nil, fmt.Errorf("generator is required")
	}
	if cfg.Engine == nil {
		return nil, fmt.Errorf("query engine is required")
	}
	if cfg.Dataset == nil {
		return nil, fmt.Errorf("dataset is required")
	}
	conv := cfg.Memory
	if conv == nil {
		var err error
		if conv, err = memory.New(memory.DefaultCapacity); err != nil {
			return nil, err
		}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = observability.Discard()
	}
	sampleRows := cfg.SampleRows
	if sampleRows <= 0 {
		sampleRows = prompt.SampleRows
	}
	return &Assistant{
		generator:    cfg.Generator,
		engine:       cfg.Engine,
		dataset:      cfg.Dataset,
		memory:       conv,
		logger:       logger,
		sampleRows:   sampleRows,
		llmTimeout:   cfg.LLMTimeout,
		queryTimeout: cfg.QueryTimeout,
		schema:       prompt.Schema(cfg.Dataset.ColumnNames()),
	}, nil
}

// Schema is the schema description every SQL prompt carries.
func (a *Assistant) Schema() string {
	return a.schema
}

func (a *Assistant) Dataset() *dataset.Dataset {
	return a.dataset
}

func (a *Assistant) History() []memory.Turn {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.memory.Turns()
}

func (a *Assistant) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.memory.Clear()
	a.logger.Info("conversation_reset")
}

// Ask runs one question through the pipeline and always returns a Response.
func (a *Assistant) Ask(ctx context.Context, question string) (resp Response) {
	a.mu.Lock()
	defer a.mu.Unlock()

	start := time.Now()
	intent := Classify(question)
	defer func() {
		if recovered := recover(); recovered != nil {
			a.logger.ErrorContext(ctx, "question_panic", slog.Any("panic", recovered))
			resp = Response{Answer: fmt.Sprintf("Error: %v", recovered), Outcome: OutcomeError}
		}
		resp.DurationMs = time.Since(start).Milliseconds()
		observability.ObserveQuestion(string(resp.Outcome))
		a.logger.InfoContext(ctx, "question_answered",
			slog.String("trace_id", observability.TraceIDFromContext(ctx)),
			slog.String("intent", intent.String()),
			slog.String("outcome", string(resp.Outcome)),
			slog.Bool("repaired", resp.Repaired),
			slog.Int64("duration_ms", resp.DurationMs),
		)
	}()
	return a.ask(ctx, question)
}

func (a *Assistant) ask(ctx context.Context, question string) Response {
	question = strings.TrimSpace(question)
	if question == "" {
		return Response{Answer: answerEmptyInput, Outcome: OutcomeEmptyInput}
	}
	if Classify(question) == IntentGlossary {
		return a.define(ctx, question)
	}

	translated, err := a.translate(ctx, question)
	if err != nil {
		return failure(question, err)
	}
	raw, err := a.generate(ctx, stageGenerateSQL, prompt.SQL(a.schema, prompt.Memory(a.memory.Turns()), translated))
	if err != nil {
		return failure(translated, err)
	}
	statement := nl2sql.CleanSQL(raw)
	if statement == "" {
		return Response{Answer: answerNoSQL, Outcome: OutcomeNoSQL, Question: translated}
	}

	result, err := a.execute(ctx, statement)
	repaired := false
	if err != nil {
		var execErr *query.ExecError
		if !errors.As(err, &execErr) {
			return failure(translated, err)
		}
		a.logger.DebugContext(ctx, "statement_failed", slog.String("sql", statement), slog.String("error", execErr.Message))

		fixed, err := a.repair(ctx, translated, execErr)
		if err != nil {
			return failure(translated, err)
		}
		if fixed == "" {
			observability.ObserveRepair("no_statement")
			return queryFailed(translated, statement, execErr)
		}
		result, err = a.execute(ctx, fixed)
		if err != nil {
			var secondErr *query.ExecError
			if !errors.As(err, &secondErr) {
				return failure(translated, err)
			}
			observability.ObserveRepair("failed")
			return queryFailed(translated, fixed, secondErr)
		}
		observability.ObserveRepair("succeeded")
		statement = fixed
		repaired = true
	}

	summary, err := a.generate(ctx, stageSummarize, prompt.Summary(translated, statement, result, a.sampleRows))
	if err != nil {
		return failure(translated, err)
	}
	summary = strings.TrimSpace(summary)
	a.memory.Append(translated, summary)
	return Response{
		Answer:   "**Answer:** " + summary,
		Outcome:  OutcomeAnswered,
		Question: translated,
		SQL:      statement,
		Repaired: repaired,
		Result:   &result,
	}
}

func (a *Assistant) define(ctx context.Context, question string) Response {
	explanation, err := a.generate(ctx, stageDefine, prompt.Definition(question))
	if err != nil {
		return failure(question, err)
	}
	explanation = strings.TrimSpace(explanation)
	a.memory.Append(question, explanation)
	return Response{Answer: "**Definition:** " + explanation, Outcome: OutcomeGlossary, Question: question}
}

// translate falls back to the original question only when the model answers
// with nothing. Surrounding double quotes are stripped since models tend to
// echo the question quoted.
func (a *Assistant) translate(ctx context.Context, question string) (string, error) {
	translated, err := a.generate(ctx, stageTranslate, prompt.Translate(question))
	if err != nil {
		return "", err
	}
	translated = strings.Trim(strings.TrimSpace(translated), `"`)
	if translated == "" {
		return question, nil
	}
	return translated, nil
}

// repair asks for one corrected statement. A model failure means no
// statement; only an expired or cancelled request surfaces as an error.
func (a *Assistant) repair(ctx context.Context, question string, execErr *query.ExecError) (string, error) {
	raw, err := a.generate(ctx, stageRepair, prompt.Fix(question, execErr.Message))
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		a.logger.WarnContext(ctx, "repair_generation_failed", slog.String("error", err.Error()))
		return "", nil
	}
	return nl2sql.CleanSQL(raw), nil
}

func (a *Assistant) generate(ctx context.Context, stage, text string) (string, error) {
	callCtx := ctx
	if a.llmTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, a.llmTimeout)
		defer cancel()
	}
	start := time.Now()
	out, err := a.generator.Generate(callCtx, text)
	observability.ObserveLLMCall(stage, time.Since(start), err)
	if err != nil {
		return "", fmt.Errorf("%s: %w", stage, err)
	}
	return out, nil
}

func (a *Assistant) execute(ctx context.Context, statement string) (query.Relation, error) {
	callCtx := ctx
	if a.queryTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, a.queryTimeout)
		defer cancel()
	}
	start := time.Now()
	result, err := a.engine.Execute(callCtx, statement)
	status := "ok"
	if err != nil {
		status = "error"
	}
	observability.ObserveQuery(status, time.Since(start))
	a.logger.DebugContext(ctx, "statement_executed",
		slog.String("sql", statement),
		slog.String("status", status),
		slog.Int("rows", len(result.Rows)),
	)
	return result, err
}

func queryFailed(question, statement string, execErr *query.ExecError) Response {
	return Response{Answer: execErr.Error(), Outcome: OutcomeQueryFailed, Question: question, SQL: statement}
}

func failure(question string, err error) Response {
	if isTimeout(err) {
		return Response{Answer: fmt.Sprintf("Error: timed out (%v)", err), Outcome: OutcomeTimeout, Question: question}
	}
	return Response{Answer: fmt.Sprintf("Error: %v", err), Outcome: OutcomeError, Question: question}
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var timeout interface{ Timeout() bool }
	return errors.As(err, &timeout) && timeout.Timeout()
}
