package webhook

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nunutzi10/foam-ai/internal/messages"
)

type statusDB struct {
	rowsAffected int64
	execs        []execCall
}

func (d *statusDB) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	d.execs = append(d.execs, execCall{sql: sql, args: args})
	if d.rowsAffected == 0 {
		return pgconn.NewCommandTag("UPDATE 0"), nil
	}
	return pgconn.NewCommandTag("UPDATE 1"), nil
}

func (d *statusDB) Query(context.Context, string, ...any) (pgx.Rows, error) { return nil, nil }
func (d *statusDB) QueryRow(context.Context, string, ...any) pgx.Row        { return nil }

func TestApplyKnownStatus(t *testing.T) {
	q := &statusDB{rowsAffected: 1}
	r := NewStatusReconciler(nil, messages.NewService(nil, q))

	err := r.Apply(context.Background(), StatusPayload{MessageUUID: "uuid-1", Status: "read"})
	require.NoError(t, err)

	require.Len(t, q.execs, 1)
	assert.Equal(t, int(messages.StatusRead), q.execs[0].args[0])
	assert.Equal(t, "uuid-1", q.execs[0].args[1])
}

func TestApplyUnknownStatusIsNoOp(t *testing.T) {
	q := &statusDB{rowsAffected: 1}
	r := NewStatusReconciler(nil, messages.NewService(nil, q))

	err := r.Apply(context.Background(), StatusPayload{MessageUUID: "uuid-1", Status: "delivered"})
	require.NoError(t, err)
	assert.Empty(t, q.execs, "unrecognized tokens never touch storage")
}

func TestApplyMissingMessage(t *testing.T) {
	q := &statusDB{rowsAffected: 0}
	r := NewStatusReconciler(nil, messages.NewService(nil, q))

	err := r.Apply(context.Background(), StatusPayload{MessageUUID: "missing", Status: "failed"})
	assert.ErrorIs(t, err, messages.ErrNotFound)
}
