package webhook

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nunutzi10/foam-ai/internal/bots"
	"github.com/nunutzi10/foam-ai/internal/completions"
	"github.com/nunutzi10/foam-ai/internal/contacts"
	"github.com/nunutzi10/foam-ai/internal/db"
	"github.com/nunutzi10/foam-ai/internal/messages"
	"github.com/nunutzi10/foam-ai/internal/prompt"
	"github.com/nunutzi10/foam-ai/internal/tenants"
	"github.com/nunutzi10/foam-ai/internal/vonage"
)

// set copies a scripted value into a Scan destination.
func set(t *testing.T, dest, v any) {
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
		*d = nil
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

type stubRow struct {
	t    *testing.T
	err  error
	vals []any
}

func (r stubRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	require.Len(r.t, dest, len(r.vals))
	for i, v := range r.vals {
		set(r.t, dest[i], v)
	}
	return nil
}

type stubRows struct {
	t    *testing.T
	rows [][]any
	pos  int
}

func (r *stubRows) Close()                                       {}
func (r *stubRows) Err() error                                   { return nil }
func (r *stubRows) CommandTag() pgconn.CommandTag                { return pgconn.CommandTag{} }
func (r *stubRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *stubRows) Values() ([]any, error)                       { return nil, nil }
func (r *stubRows) RawValues() [][]byte                          { return nil }
func (r *stubRows) Conn() *pgx.Conn                              { return nil }

func (r *stubRows) Next() bool {
	return r.pos < len(r.rows)
}

func (r *stubRows) Scan(dest ...any) error {
	vals := r.rows[r.pos]
	r.pos++
	require.Len(r.t, dest, len(vals))
	for i, v := range vals {
		set(r.t, dest[i], v)
	}
	return nil
}

type execCall struct {
	sql  string
	args []any
}

// conn scripts the persistence layer of one inbound callback by routing on
// statement shape. It doubles as the transaction handle.
type conn struct {
	t *testing.T

	botFound       bool
	botUserInstr   any
	tenantSettings tenants.Settings
	messageCount   int64
	duplicate      bool
	recent         []messages.Message

	nextMessageID    int64
	messageInserts   []execCall
	completionCreate *execCall
	execs            []execCall
	committed        bool
	rolledBack       bool
}

func newConn(t *testing.T) *conn {
	return &conn{
		t:             t,
		botFound:      true,
		nextMessageID: 100,
		tenantSettings: tenants.Settings{
			OpenAIAPIKey: "sk-tenant",
		},
	}
}

func (c *conn) BeginTx(context.Context) (db.Tx, error) { return c, nil }
func (c *conn) Commit(context.Context) error           { c.committed = true; return nil }
func (c *conn) Rollback(context.Context) error         { c.rolledBack = true; return nil }

func (c *conn) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	c.execs = append(c.execs, execCall{sql: sql, args: args})
	return pgconn.NewCommandTag("UPDATE 1"), nil
}

func (c *conn) Query(_ context.Context, sql string, _ ...any) (pgx.Rows, error) {
	if strings.Contains(sql, "FROM messages") {
		rows := &stubRows{t: c.t}
		for _, m := range c.recent {
			var body any
			if m.Body != "" {
				body = m.Body
			}
			rows.rows = append(rows.rows, []any{
				m.ID, m.ContactID, int(m.Status), int(m.Sender), int(m.ContentType),
				body, nil, nil, nil, nil, time.Now(), time.Now(),
			})
		}
		return rows, nil
	}
	c.t.Fatalf("unexpected query: %s", sql)
	return nil, nil
}

func (c *conn) QueryRow(_ context.Context, sql string, args ...any) pgx.Row {
	now := time.Now()
	switch {
	case strings.Contains(sql, "FROM bots WHERE whatsapp_phone"):
		if !c.botFound {
			return stubRow{t: c.t, err: pgx.ErrNoRows}
		}
		return stubRow{t: c.t, vals: []any{
			int64(11), int64(5), "Asistente", "instrucciones del bot", c.botUserInstr,
			args[0].(string), nil, now, now,
		}}
	case strings.Contains(sql, "FROM tenants WHERE id"):
		settings, err := json.Marshal(c.tenantSettings)
		require.NoError(c.t, err)
		return stubRow{t: c.t, vals: []any{int64(5), "Acme", settings, nil, now, now}}
	case strings.Contains(sql, "INSERT INTO contacts"):
		return stubRow{t: c.t, vals: []any{
			int64(21), int64(5), nil, nil, nil, args[1].(string), now, now,
		}}
	case strings.Contains(sql, "INSERT INTO messages"):
		if c.duplicate && len(c.messageInserts) == 0 {
			return stubRow{t: c.t, err: &pgconn.PgError{Code: "23505"}}
		}
		c.messageInserts = append(c.messageInserts, execCall{sql: sql, args: args})
		id := c.nextMessageID
		c.nextMessageID++
		var meta any
		if raw, ok := args[8].([]byte); ok && len(raw) > 0 {
			meta = raw
		}
		return stubRow{t: c.t, vals: []any{
			id, args[0].(int64), args[1].(int), args[2].(int), args[3].(int),
			deref(args[4]), deref(args[5]), deref(args[6]), deref(args[7]), meta,
			now, now,
		}}
	case strings.Contains(sql, "SELECT COUNT(*) FROM messages"):
		return stubRow{t: c.t, vals: []any{c.messageCount}}
	case strings.Contains(sql, "INSERT INTO completions"):
		c.completionCreate = &execCall{sql: sql, args: args}
		return stubRow{t: c.t, vals: []any{
			int64(31), args[0].(int64), nil, 0, args[2].(string), nil, nil, nil, nil,
			now, now,
		}}
	}
	c.t.Fatalf("unexpected query row: %s", sql)
	return nil
}

// deref maps a *string insert argument back into a scriptable scan value.
func deref(arg any) any {
	if s, ok := arg.(*string); ok && s != nil {
		return *s
	}
	return nil
}

type fakeProvider struct {
	result  completions.ProviderResult
	err     error
	lastReq completions.ProviderRequest
	key     string
	calls   int
}

func (p *fakeProvider) Chat(_ context.Context, apiKey string, req completions.ProviderRequest) (completions.ProviderResult, error) {
	p.calls++
	p.key = apiKey
	p.lastReq = req
	if p.err != nil {
		return completions.ProviderResult{}, p.err
	}
	return p.result, nil
}

type fakeSender struct {
	uuid    string
	err     error
	sent    []vonage.Outbound
	tenants []int64
}

func (s *fakeSender) Send(_ context.Context, tenant tenants.Tenant, out vonage.Outbound) (string, error) {
	s.sent = append(s.sent, out)
	s.tenants = append(s.tenants, tenant.ID)
	if s.err != nil {
		return "", s.err
	}
	return s.uuid, nil
}

type passthroughNormalizer struct {
	got prompt.Input
}

func (n *passthroughNormalizer) Setup(_ context.Context, in prompt.Input) (string, error) {
	n.got = in
	return in.Body, nil
}

func newOrchestrator(c *conn, provider completions.Provider, sender Sender, normalizer Normalizer) *Orchestrator {
	completionSvc := completions.NewService(nil, c)
	engine := completions.NewEngine(nil, completionSvc, provider, "gpt-3.5-turbo-16k")
	return NewOrchestrator(nil, c,
		bots.NewService(nil, c),
		tenants.NewService(nil, c),
		contacts.NewService(nil, c),
		messages.NewService(nil, c),
		completionSvc,
		engine,
		normalizer,
		sender,
	)
}

func textPayload() InboundPayload {
	var p InboundPayload
	p.To = "14155550100"
	p.From = "14155550123"
	p.Channel = "whatsapp"
	p.MessageUUID = "in-uuid-1"
	p.MessageType = "text"
	p.Text = "hola, quiero informes"
	p.Profile.Name = "Ana García"
	return p
}

func TestProcessInboundFirstContactSendsWelcome(t *testing.T) {
	c := newConn(t)
	c.messageCount = 1
	provider := &fakeProvider{}
	sender := &fakeSender{uuid: "out-uuid-1"}
	o := newOrchestrator(c, provider, sender, &passthroughNormalizer{})

	require.NoError(t, o.ProcessInbound(context.Background(), textPayload()))

	assert.Zero(t, provider.calls, "first contact never reaches the model")
	assert.Nil(t, c.completionCreate)
	require.Len(t, sender.sent, 1)
	assert.Equal(t, defaultWelcomeMessage, sender.sent[0].Body)
	assert.Equal(t, messages.ContentTypeText, sender.sent[0].ContentType)
	assert.True(t, c.committed)
	assert.Equal(t, []int64{5}, sender.tenants)

	// Inbound user message plus the outbound greeting.
	require.Len(t, c.messageInserts, 2)
	assert.Equal(t, int(messages.SenderUser), c.messageInserts[0].args[2])
	assert.Equal(t, int(messages.SenderSystem), c.messageInserts[1].args[2])
	assert.Equal(t, int(messages.StatusSent), c.messageInserts[0].args[1])

	// The greeting records the raw inbound number as its destination
	// override; the user message carries none.
	assert.Nil(t, deref(c.messageInserts[0].args[7]))
	assert.Equal(t, "14155550123", deref(c.messageInserts[1].args[7]))
}

func TestProcessInboundFirstContactUsesTenantTemplate(t *testing.T) {
	c := newConn(t)
	c.messageCount = 1
	c.tenantSettings.MessageTemplate = "Bienvenido a Acme, ¿cómo te ayudamos?"
	sender := &fakeSender{uuid: "out-uuid-1"}
	o := newOrchestrator(c, &fakeProvider{}, sender, &passthroughNormalizer{})

	require.NoError(t, o.ProcessInbound(context.Background(), textPayload()))

	require.Len(t, sender.sent, 1)
	assert.Equal(t, "Bienvenido a Acme, ¿cómo te ayudamos?", sender.sent[0].Body)
}

func TestProcessInboundReturningContactGeneratesReply(t *testing.T) {
	c := newConn(t)
	c.messageCount = 3
	c.recent = []messages.Message{
		{ID: 90, ContactID: 21, Sender: messages.SenderUser, ContentType: messages.ContentTypeText, Body: "hola"},
		{ID: 91, ContactID: 21, Sender: messages.SenderSystem, ContentType: messages.ContentTypeText, Body: "¡Hola! ¿En qué te ayudo?"},
	}
	provider := &fakeProvider{result: completions.ProviderResult{Text: "Con gusto te comparto informes.", ID: "chatcmpl-1"}}
	sender := &fakeSender{uuid: "out-uuid-2"}
	o := newOrchestrator(c, provider, sender, &passthroughNormalizer{})

	require.NoError(t, o.ProcessInbound(context.Background(), textPayload()))

	assert.Equal(t, "sk-tenant", provider.key, "tenant credential reaches the provider")
	require.NotNil(t, c.completionCreate)
	assert.Equal(t, "hola, quiero informes", c.completionCreate.args[2])

	// system instructions, two history turns, then the live prompt.
	msgs := provider.lastReq.Messages
	require.Len(t, msgs, 4)
	assert.Equal(t, "instrucciones del bot", msgs[0].Content)
	assert.Equal(t, "user", msgs[1].Role)
	assert.Equal(t, "hola", msgs[1].Content)
	assert.Equal(t, "system", msgs[2].Role)
	assert.Equal(t, "user", msgs[3].Role)

	require.Len(t, sender.sent, 1)
	assert.Equal(t, "Con gusto te comparto informes.", sender.sent[0].Body)
	assert.Equal(t, "+14155550123", sender.sent[0].To)
	assert.Equal(t, "14155550100", sender.sent[0].From)
	assert.True(t, c.committed)

	// The dispatched reply gets its provider id recorded.
	var stamped bool
	for _, e := range c.execs {
		if strings.Contains(e.sql, "SET vonage_id") {
			stamped = true
			assert.Equal(t, "out-uuid-2", e.args[0])
		}
	}
	assert.True(t, stamped)
}

func TestProcessInboundWrapsPromptWithUserInstructions(t *testing.T) {
	c := newConn(t)
	c.messageCount = 2
	c.botUserInstr = "Responde siempre en español."
	provider := &fakeProvider{result: completions.ProviderResult{Text: "ok"}}
	o := newOrchestrator(c, provider, &fakeSender{uuid: "u"}, &passthroughNormalizer{})

	require.NoError(t, o.ProcessInbound(context.Background(), textPayload()))

	msgs := provider.lastReq.Messages
	last := msgs[len(msgs)-1]
	assert.Equal(t, "Responde siempre en español.\n\nhola, quiero informes", last.Content)
}

func TestProcessInboundDuplicateDeliveryIsIdempotent(t *testing.T) {
	c := newConn(t)
	c.duplicate = true
	provider := &fakeProvider{}
	sender := &fakeSender{uuid: "u"}
	o := newOrchestrator(c, provider, sender, &passthroughNormalizer{})

	require.NoError(t, o.ProcessInbound(context.Background(), textPayload()))

	assert.Empty(t, sender.sent)
	assert.Zero(t, provider.calls)
	assert.False(t, c.committed)
	assert.True(t, c.rolledBack)
}

func TestProcessInboundUnknownNumber(t *testing.T) {
	c := newConn(t)
	c.botFound = false
	o := newOrchestrator(c, &fakeProvider{}, &fakeSender{}, &passthroughNormalizer{})

	err := o.ProcessInbound(context.Background(), textPayload())
	assert.ErrorIs(t, err, ErrUnknownNumber)
}

func TestProcessInboundDispatchFailureRollsBack(t *testing.T) {
	c := newConn(t)
	c.messageCount = 1
	sender := &fakeSender{err: assert.AnError}
	o := newOrchestrator(c, &fakeProvider{}, sender, &passthroughNormalizer{})

	err := o.ProcessInbound(context.Background(), textPayload())
	require.Error(t, err)
	assert.False(t, c.committed)
	assert.True(t, c.rolledBack)
}

func TestProcessInboundProviderFailureStillReplies(t *testing.T) {
	c := newConn(t)
	c.messageCount = 2
	provider := &fakeProvider{err: assert.AnError}
	sender := &fakeSender{uuid: "u"}
	o := newOrchestrator(c, provider, sender, &passthroughNormalizer{})

	require.NoError(t, o.ProcessInbound(context.Background(), textPayload()))

	require.Len(t, sender.sent, 1)
	assert.Equal(t, completions.InvalidResponseMessage(), sender.sent[0].Body)
	assert.True(t, c.committed)
}

func TestProcessInboundNormalizerReceivesTenantKey(t *testing.T) {
	c := newConn(t)
	c.messageCount = 1
	normalizer := &passthroughNormalizer{}
	o := newOrchestrator(c, &fakeProvider{}, &fakeSender{uuid: "u"}, normalizer)

	payload := textPayload()
	payload.MessageType = "image"
	payload.Text = ""
	payload.Image = &mediaPart{URL: "https://example.com/a.jpg", Caption: "foto"}

	require.NoError(t, o.ProcessInbound(context.Background(), payload))

	assert.Equal(t, "sk-tenant", normalizer.got.APIKey)
	assert.Equal(t, messages.ContentTypeImage, normalizer.got.ContentType)
	assert.Equal(t, "https://example.com/a.jpg", normalizer.got.MediaURL)
	assert.Equal(t, "foto", normalizer.got.Body)
}

type failingNormalizer struct {
	err error
}

func (n *failingNormalizer) Setup(context.Context, prompt.Input) (string, error) {
	return "", n.err
}

func TestProcessInboundNormalizationFailureAborts(t *testing.T) {
	c := newConn(t)
	provider := &fakeProvider{}
	sender := &fakeSender{uuid: "out-uuid-1"}
	normErr := fmt.Errorf("%w: ocr: tesseract exited 1", prompt.ErrNormalization)
	o := newOrchestrator(c, provider, sender, &failingNormalizer{err: normErr})

	payload := textPayload()
	payload.MessageType = "image"
	payload.Text = ""
	payload.Image = &mediaPart{URL: "https://example.com/a.jpg", Caption: "foto"}

	err := o.ProcessInbound(context.Background(), payload)
	require.ErrorIs(t, err, prompt.ErrNormalization)

	// Nothing was written and nothing was sent: the provider redelivers the
	// whole callback.
	assert.Empty(t, c.messageInserts)
	assert.Zero(t, provider.calls)
	assert.Empty(t, sender.sent)
	assert.False(t, c.committed)
}
