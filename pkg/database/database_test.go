package database_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/Ramsey-B/thistle/pkg/database"
	"github.com/Ramsey-B/thistle/pkg/testhelpers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestLikePattern(t *testing.T) {
	assert.Equal(t, `%50\% off\_now%`, database.LikePattern("50% OFF_now"))
	assert.Equal(t, `%a\\b%`, database.LikePattern(`a\b`))
}

func TestIsFTSQueryError(t *testing.T) {
	assert.True(t, database.IsFTSQueryError(errors.New(`fts5: syntax error near "\""`), `"meet`))
	assert.True(t, database.IsFTSQueryError(errors.New("unterminated string"), `"meet`))
	assert.True(t, database.IsFTSQueryError(errors.New("no such column: subject"), "subject:pier"))
	assert.False(t, database.IsFTSQueryError(errors.New("database is locked"), "pier"))
	assert.False(t, database.IsFTSQueryError(nil, "pier"))

	// Ordinary SQL failures on the full-text path are not retried as substring searches.
	assert.False(t, database.IsFTSQueryError(errors.New(`near "SELEC": syntax error`), "pier"))
	assert.False(t, database.IsFTSQueryError(errors.New("no such column: m.sequence"), "pier"))
}

func TestTimestamp(t *testing.T) {
	local := time.Date(2024, 1, 2, 3, 4, 5, 678_900_000, time.FixedZone("X", 3600))
	ts := database.NewTimestamp(local)
	assert.Equal(t, time.UTC, ts.Location())
	assert.Equal(t, 678*time.Millisecond, time.Duration(ts.Nanosecond()))

	data, err := json.Marshal(ts)
	require.NoError(t, err)
	assert.Equal(t, `"2024-01-02T02:04:05.678Z"`, string(data))

	assert.Nil(t, database.TimestampPtr(nil))
}

func TestGetTx_NestedJoinsAndOuterRollbackWins(t *testing.T) {
	conn := testhelpers.OpenDB(t)
	logger := zap.NewNop()

	ctx, outer, err := database.GetTx(context.Background(), logger, conn, nil)
	require.NoError(t, err)
	assert.True(t, outer.Owned())
	assert.True(t, database.InTx(ctx))

	innerCtx, inner, err := database.GetTx(ctx, logger, conn, nil)
	require.NoError(t, err)
	assert.False(t, inner.Owned())

	_, err = database.Conn(innerCtx, conn).ExecContext(innerCtx,
		"INSERT INTO cases (id, name, created_at) VALUES (?, ?, ?)", "c1", "joined", database.Now())
	require.NoError(t, err)
	require.NoError(t, inner.Commit(innerCtx))
	assert.True(t, outer.IsOpen())

	require.NoError(t, outer.Rollback(ctx))
	assert.False(t, database.InTx(ctx))

	var count int
	require.NoError(t, conn.GetContext(context.Background(), &count, "SELECT COUNT(*) FROM cases"))
	assert.Zero(t, count)
}

func TestIsUniqueViolation(t *testing.T) {
	conn := testhelpers.OpenDB(t)
	ctx := context.Background()
	insert := "INSERT INTO cases (id, name, created_at) VALUES (?, ?, ?)"

	_, err := conn.ExecContext(ctx, insert, "c1", "first", database.Now())
	require.NoError(t, err)
	_, err = conn.ExecContext(ctx, insert, "c1", "again", database.Now())
	require.Error(t, err)
	assert.True(t, database.IsUniqueViolation(err))
	assert.False(t, database.IsUniqueViolation(errors.New("boom")))
}
