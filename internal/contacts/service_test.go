package contacts

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRow implements pgx.Row with a custom scan function.
type fakeRow struct {
	scanFunc func(dest ...any) error
}

func (r *fakeRow) Scan(dest ...any) error {
	return r.scanFunc(dest...)
}

// fakeDB implements db.Querier for unit testing.
type fakeDB struct {
	queryRowFunc func(ctx context.Context, sql string, args ...any) pgx.Row
}

func (d *fakeDB) Exec(context.Context, string, ...any) (pgconn.CommandTag, error) {
	return pgconn.CommandTag{}, nil
}

func (d *fakeDB) Query(context.Context, string, ...any) (pgx.Rows, error) {
	return nil, nil
}

func (d *fakeDB) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return d.queryRowFunc(ctx, sql, args...)
}

func makeContactRow(id, tenantID int64, name, lastName, phone string) *fakeRow {
	return &fakeRow{
		scanFunc: func(dest ...any) error {
			*dest[0].(*int64) = id
			*dest[1].(*int64) = tenantID
			if name != "" {
				*dest[2].(**string) = &name
			}
			if lastName != "" {
				*dest[3].(**string) = &lastName
			}
			*dest[5].(*string) = phone
			*dest[6].(*time.Time) = time.Now()
			*dest[7].(*time.Time) = time.Now()
			return nil
		},
	}
}

func TestFindOrCreateInsertsNewContact(t *testing.T) {
	var gotArgs []any
	q := &fakeDB{
		queryRowFunc: func(ctx context.Context, sql string, args ...any) pgx.Row {
			gotArgs = args
			return makeContactRow(1, 9, "Jane", "Doe Smith", "+12025550123")
		},
	}

	svc := NewService(nil, q)
	contact, err := svc.FindOrCreate(context.Background(), 9, "12025550123", "Jane Doe Smith")
	require.NoError(t, err)

	assert.Equal(t, int64(1), contact.ID)
	assert.Equal(t, "Jane", contact.Name)
	assert.Equal(t, "Doe Smith", contact.LastName)
	require.Len(t, gotArgs, 4)
	assert.Equal(t, "+12025550123", gotArgs[1], "phone should be normalized to E.164")
	assert.Equal(t, "Jane", *gotArgs[2].(*string))
	assert.Equal(t, "Doe Smith", *gotArgs[3].(*string))
}

func TestFindOrCreateReturnsExistingOnConflict(t *testing.T) {
	calls := 0
	q := &fakeDB{
		queryRowFunc: func(ctx context.Context, sql string, args ...any) pgx.Row {
			calls++
			if calls == 1 {
				// ON CONFLICT DO NOTHING yields no row for the insert.
				return &fakeRow{scanFunc: func(dest ...any) error { return pgx.ErrNoRows }}
			}
			return makeContactRow(7, 9, "", "", "+12025550123")
		},
	}

	svc := NewService(nil, q)
	contact, err := svc.FindOrCreate(context.Background(), 9, "+12025550123", "Jane")
	require.NoError(t, err)
	assert.Equal(t, int64(7), contact.ID)
	assert.Equal(t, 2, calls, "conflict path must fetch the existing row")
}

func TestNormalizePhone(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"12025550123", "+12025550123"},
		{"+12025550123", "+12025550123"},
		{" +52 1 55 1234 5678 ", "+5215512345678"},
		{"not-a-number", "not-a-number"},
		{"+1USER", "+1USER"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizePhone(tt.in), tt.in)
	}
}

func TestSplitProfileName(t *testing.T) {
	first, last := splitProfileName("Jane Doe Smith")
	assert.Equal(t, "Jane", first)
	assert.Equal(t, "Doe Smith", last)

	first, last = splitProfileName("Jane")
	assert.Equal(t, "Jane", first)
	assert.Empty(t, last)

	first, last = splitProfileName("  ")
	assert.Empty(t, first)
	assert.Empty(t, last)
}
