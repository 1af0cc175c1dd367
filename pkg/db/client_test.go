package db

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/angelmondragon/dishdash-backend/pkg/config"
	"github.com/angelmondragon/dishdash-backend/pkg/logger"
)

type ticket struct {
	ID    uint
	Seat  string
}

func openSQLite(t *testing.T, logg *logger.Logger) *Client {
	t.Helper()
	client, err := New(context.Background(), config.DBConfig{
		DSN:          "file::memory:",
		Driver:       "sqlite",
		MaxOpenConns: 1,
	}, logg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	require.NoError(t, client.DB().AutoMigrate(&ticket{}))
	return client
}

func countTickets(t *testing.T, client *Client) int64 {
	t.Helper()
	var n int64
	require.NoError(t, client.DB().Model(&ticket{}).Count(&n).Error)
	return n
}

func TestWithTxCommitsOnSuccess(t *testing.T) {
	client := openSQLite(t, nil)
	err := client.WithTx(context.Background(), func(tx *gorm.DB) error {
		return tx.Create(&ticket{Seat: "T4"}).Error
	})
	require.NoError(t, err)
	assert.EqualValues(t, 1, countTickets(t, client))
}

func TestWithTxRollsBackOnErrorAndPanic(t *testing.T) {
	client := openSQLite(t, nil)
	boom := errors.New("kitchen printer offline")

	err := client.WithTx(context.Background(), func(tx *gorm.DB) error {
		require.NoError(t, tx.Create(&ticket{Seat: "T1"}).Error)
		return boom
	})
	assert.ErrorIs(t, err, boom)

	assert.Panics(t, func() {
		_ = client.WithTx(context.Background(), func(tx *gorm.DB) error {
			require.NoError(t, tx.Create(&ticket{Seat: "T2"}).Error)
			panic("unreachable kitchen")
		})
	})
	assert.Zero(t, countTickets(t, client))
}

func TestNewValidatesConfig(t *testing.T) {
	_, err := New(context.Background(), config.DBConfig{Driver: "sqlite"}, nil)
	assert.Error(t, err)

	_, err = New(context.Background(), config.DBConfig{DSN: "x", Driver: "mysql"}, nil)
	assert.ErrorContains(t, err, "unsupported database driver")
}

func TestQueryLoggerReportsSlowStatements(t *testing.T) {
	var buf bytes.Buffer
	logg := logger.New(logger.Options{ServiceName: "db-test", Level: logger.ParseLevel("debug"), Output: &buf})
	ql := newQueryLogger(logg, time.Millisecond)

	ql.Trace(context.Background(), time.Now(), func() (string, int64) { return "SELECT 1", 1 }, nil)
	assert.Empty(t, buf.String())

	ql.Trace(context.Background(), time.Now().Add(-time.Second), func() (string, int64) { return "SELECT pg_sleep(1)", 1 }, nil)
	assert.Contains(t, buf.String(), "db.query.slow")
	assert.Contains(t, buf.String(), "pg_sleep")

	buf.Reset()
	ql.Trace(context.Background(), time.Now(), func() (string, int64) { return "SELECT * FROM orders", 0 }, gorm.ErrRecordNotFound)
	assert.Empty(t, buf.String())

	ql.LogMode(gormlogger.Silent).Trace(context.Background(), time.Now().Add(-time.Second), func() (string, int64) { return "SELECT 1", 1 }, nil)
	assert.Empty(t, buf.String())
}
