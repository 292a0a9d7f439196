package db

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupTestClient(t *testing.T) *Client {
	t.Helper()

	conn, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, conn.Exec(`CREATE TABLE items (id INTEGER PRIMARY KEY, name TEXT NOT NULL)`).Error)

	return &Client{conn: conn}
}

func TestWithTxCommits(t *testing.T) {
	client := setupTestClient(t)

	err := client.WithTx(context.Background(), func(tx *gorm.DB) error {
		return tx.Exec(`INSERT INTO items (name) VALUES ('a')`).Error
	})
	require.NoError(t, err)

	var count int64
	require.NoError(t, client.DB().Raw(`SELECT COUNT(*) FROM items`).Scan(&count).Error)
	require.EqualValues(t, 1, count)
}

func TestWithTxRollsBackOnError(t *testing.T) {
	client := setupTestClient(t)

	boom := errors.New("boom")
	err := client.WithTx(context.Background(), func(tx *gorm.DB) error {
		if err := tx.Exec(`INSERT INTO items (name) VALUES ('a')`).Error; err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	var count int64
	require.NoError(t, client.DB().Raw(`SELECT COUNT(*) FROM items`).Scan(&count).Error)
	require.EqualValues(t, 0, count)
}

func TestIsUniqueViolation(t *testing.T) {
	require.True(t, IsUniqueViolation(errors.New(`duplicate key value violates unique constraint "pk"`), ""))
	require.True(t, IsUniqueViolation(errors.New(`ERROR: duplicate key value violates unique constraint "ux_outbox"`), "ux_outbox"))
	require.False(t, IsUniqueViolation(errors.New("connection reset"), ""))
	require.False(t, IsUniqueViolation(nil, ""))
}

func TestIsTransient(t *testing.T) {
	require.True(t, IsTransient(context.DeadlineExceeded))
	require.True(t, IsTransient(context.Canceled))
	require.False(t, IsTransient(errors.New("constraint violated")))
	require.False(t, IsTransient(nil))
}
