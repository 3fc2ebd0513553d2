package handlers

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nunutzi10/foam-ai/internal/bots"
	"github.com/nunutzi10/foam-ai/internal/completions"
	"github.com/nunutzi10/foam-ai/internal/conversations"
	"github.com/nunutzi10/foam-ai/internal/tenants"
)

// setVal copies a scripted value into a Scan destination.
func setVal(t *testing.T, dest, v any) {
	t.Helper()
	switch d := dest.(type) {
	case *int64:
		*d = v.(int64)
	case *int:
		*d = v.(int)
	case *string:
		*d = v.(string)
	case **string:
		if v == nil {
			*d = nil
		} else {
			s := v.(string)
			*d = &s
		}
	case **int64:
		if v == nil {
			*d = nil
		} else {
			n := v.(int64)
			*d = &n
		}
	case *time.Time:
		*d = v.(time.Time)
	case **time.Time:
		if v == nil {
			*d = nil
		} else {
			ts := v.(time.Time)
			*d = &ts
		}
	case *[]byte:
		if v == nil {
			*d = nil
		} else {
			*d = v.([]byte)
		}
	default:
		t.Fatalf("unhandled scan destination %T", dest)
	}
}

type scriptedRow struct {
	t    *testing.T
	err  error
	vals []any
}

func (r scriptedRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	require.Len(r.t, dest, len(r.vals))
	for i, v := range r.vals {
		setVal(r.t, dest[i], v)
	}
	return nil
}

type scriptedRows struct {
	t    *testing.T
	rows [][]any
	pos  int
}

func (r *scriptedRows) Close()                                       {}
func (r *scriptedRows) Err() error                                   { return nil }
func (r *scriptedRows) CommandTag() pgconn.CommandTag                { return pgconn.CommandTag{} }
func (r *scriptedRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *scriptedRows) Values() ([]any, error)                       { return nil, nil }
func (r *scriptedRows) RawValues() [][]byte                          { return nil }
func (r *scriptedRows) Conn() *pgx.Conn                              { return nil }

func (r *scriptedRows) Next() bool {
	return r.pos < len(r.rows)
}

func (r *scriptedRows) Scan(dest ...any) error {
	vals := r.rows[r.pos]
	r.pos++
	require.Len(r.t, dest, len(vals))
	for i, v := range vals {
		setVal(r.t, dest[i], v)
	}
	return nil
}

type queryCall struct {
	sql  string
	args []any
}

// runnerDB scripts the lookups of one request-driven completion turn.
type runnerDB struct {
	t *testing.T

	botFound          bool
	conversationFound bool
	history           []completions.Completion

	conversationLookup *queryCall
	historyQuery       *queryCall
	completionInsert   *queryCall
}

func newRunnerDB(t *testing.T) *runnerDB {
	return &runnerDB{t: t, botFound: true, conversationFound: true}
}

func (q *runnerDB) Exec(context.Context, string, ...any) (pgconn.CommandTag, error) {
	return pgconn.NewCommandTag("UPDATE 1"), nil
}

func (q *runnerDB) Query(_ context.Context, sql string, args ...any) (pgx.Rows, error) {
	if strings.Contains(sql, "FROM completions") {
		q.historyQuery = &queryCall{sql: sql, args: args}
		rows := &scriptedRows{t: q.t}
		now := time.Now()
		for _, completion := range q.history {
			rows.rows = append(rows.rows, []any{
				completion.ID, completion.BotID, int64(99), int(completion.Status),
				completion.Prompt, nil, nil, completion.Response, nil, now, now,
			})
		}
		return rows, nil
	}
	q.t.Fatalf("unexpected query: %s", sql)
	return nil, nil
}

func (q *runnerDB) QueryRow(_ context.Context, sql string, args ...any) pgx.Row {
	now := time.Now()
	switch {
	case strings.Contains(sql, "FROM bots WHERE id"):
		if !q.botFound {
			return scriptedRow{t: q.t, err: pgx.ErrNoRows}
		}
		return scriptedRow{t: q.t, vals: []any{
			args[0].(int64), args[1].(int64), "Asistente", "instrucciones", nil, nil,
			nil, now, now,
		}}
	case strings.Contains(sql, "FROM tenants WHERE id"):
		return scriptedRow{t: q.t, vals: []any{
			args[0].(int64), "Acme", []byte(`{"openai_api_key":"sk-tenant"}`), nil, now, now,
		}}
	case strings.Contains(sql, "FROM conversations WHERE id"):
		q.conversationLookup = &queryCall{sql: sql, args: args}
		if !q.conversationFound {
			return scriptedRow{t: q.t, err: pgx.ErrNoRows}
		}
		return scriptedRow{t: q.t, vals: []any{
			args[0].(int64), args[1].(int64), "Conversación", now, now,
		}}
	case strings.Contains(sql, "INSERT INTO completions"):
		q.completionInsert = &queryCall{sql: sql, args: args}
		var conversationID any
		if id, ok := args[1].(*int64); ok && id != nil {
			conversationID = *id
		}
		return scriptedRow{t: q.t, vals: []any{
			int64(31), args[0].(int64), conversationID, 0, args[2].(string),
			nil, nil, nil, nil, now, now,
		}}
	}
	q.t.Fatalf("unexpected query row: %s", sql)
	return nil
}

type chatProvider struct {
	lastReq completions.ProviderRequest
	calls   int
}

func (p *chatProvider) Chat(_ context.Context, _ string, req completions.ProviderRequest) (completions.ProviderResult, error) {
	p.calls++
	p.lastReq = req
	return completions.ProviderResult{Text: "claro, con gusto"}, nil
}

func newRunner(q *runnerDB, provider completions.Provider) completionRunner {
	completionSvc := completions.NewService(nil, q)
	return completionRunner{
		tenants:       tenants.NewService(nil, q),
		bots:          bots.NewService(nil, q),
		conversations: conversations.NewService(nil, q),
		completions:   completionSvc,
		engine:        completions.NewEngine(nil, completionSvc, provider, "gpt-3.5-turbo-16k"),
	}
}

func TestRunRejectsConversationOfAnotherBot(t *testing.T) {
	q := newRunnerDB(t)
	q.conversationFound = false
	provider := &chatProvider{}
	runner := newRunner(q, provider)

	conversationID := int64(99)
	_, err := runner.run(context.Background(), 1, 11, &conversationID, "hola")
	require.ErrorIs(t, err, conversations.ErrNotFound)

	// The ownership check is bot-scoped, and nothing of the foreign
	// conversation is read or written.
	require.NotNil(t, q.conversationLookup)
	assert.Equal(t, int64(99), q.conversationLookup.args[0])
	assert.Equal(t, int64(11), q.conversationLookup.args[1])
	assert.Nil(t, q.historyQuery)
	assert.Nil(t, q.completionInsert)
	assert.Zero(t, provider.calls)
}

func TestRunRejectsBotOfAnotherTenant(t *testing.T) {
	q := newRunnerDB(t)
	q.botFound = false
	provider := &chatProvider{}
	runner := newRunner(q, provider)

	conversationID := int64(99)
	_, err := runner.run(context.Background(), 1, 11, &conversationID, "hola")
	require.ErrorIs(t, err, bots.ErrNotFound)

	assert.Nil(t, q.conversationLookup)
	assert.Zero(t, provider.calls)
}

func TestRunAttachesOwnedConversation(t *testing.T) {
	q := newRunnerDB(t)
	q.history = []completions.Completion{
		{ID: 1, BotID: 11, Prompt: "hola", Response: "hola, ¿en qué ayudo?"},
	}
	provider := &chatProvider{}
	runner := newRunner(q, provider)

	conversationID := int64(99)
	completion, err := runner.run(context.Background(), 1, 11, &conversationID, "quiero informes")
	require.NoError(t, err)
	assert.Equal(t, "claro, con gusto", completion.Response)

	require.NotNil(t, q.historyQuery)
	assert.Equal(t, int64(99), q.historyQuery.args[0])
	require.NotNil(t, q.completionInsert)
	require.IsType(t, (*int64)(nil), q.completionInsert.args[1])
	assert.Equal(t, int64(99), *q.completionInsert.args[1].(*int64))

	// History reaches the model after the ownership check.
	var sawHistory bool
	for _, msg := range provider.lastReq.Messages {
		if msg.Content == "hola, ¿en qué ayudo?" {
			sawHistory = true
		}
	}
	assert.True(t, sawHistory)
}
