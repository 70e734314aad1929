package postgres

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/bookmap/internal/domain"
)

func TestDSN(t *testing.T) {
	t.Run("explicit dsn wins", func(t *testing.T) {
		assert.Equal(t, "postgres://x", DSN(ClientConfig{DSN: "postgres://x", Host: "ignored"}))
	})
	t.Run("built from fields", func(t *testing.T) {
		got := DSN(ClientConfig{Host: "db", Database: "bookmap", User: "app", Password: "p@ss word"})
		assert.Equal(t, "postgres://app:p%40ss%20word@db:5432/bookmap?sslmode=disable", got)
	})
	t.Run("ssl mode and port", func(t *testing.T) {
		got := DSN(ClientConfig{Host: "db", Port: 6543, Database: "b", User: "u", SSLMode: "require"})
		assert.Equal(t, "postgres://u:@db:6543/b?sslmode=require", got)
	})
}

func TestMigrationNamesSorted(t *testing.T) {
	names, err := migrationNames()
	require.NoError(t, err)
	assert.Equal(t, []string{"001_venues.sql", "002_session_events.sql"}, names)
}

func TestSessionEventQuery(t *testing.T) {
	q, args := sessionEventQuery(domain.ListOpts{})
	assert.Equal(t, "SELECT id, event, detail, created_at FROM session_events ORDER BY created_at DESC, id DESC", q)
	assert.Empty(t, args)

	since := time.Date(2026, 3, 2, 14, 0, 0, 0, time.UTC)
	until := since.Add(time.Hour)
	q, args = sessionEventQuery(domain.ListOpts{Since: &since, Until: &until, Limit: 50, Offset: 10})
	assert.Equal(t,
		"SELECT id, event, detail, created_at FROM session_events WHERE created_at >= $1 AND created_at <= $2"+
			" ORDER BY created_at DESC, id DESC LIMIT $3 OFFSET $4", q)
	assert.Equal(t, []any{since, until, 50, 10}, args)
}
