package repo

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/dishdash-backend/internal/dbtest"
)

type ctxKey struct{}

type counter struct {
	ID    int `gorm:"primaryKey"`
	Value int
}

func newBase(t *testing.T) (Base, *gorm.DB) {
	t.Helper()
	conn := dbtest.Open(t)
	require.NoError(t, conn.AutoMigrate(&counter{}))
	return NewBase(conn), conn
}

func TestDBBindsContext(t *testing.T) {
	base, conn := newBase(t)
	ctx := context.WithValue(context.Background(), ctxKey{}, "order-42")

	bound := base.DB(ctx)
	require.NotNil(t, bound.Statement)
	assert.Equal(t, ctx, bound.Statement.Context)
	assert.Same(t, conn, base.DB(nil))
}

func TestConnPrefersCallerTransaction(t *testing.T) {
	base, conn := newBase(t)
	ctx := context.Background()
	assert.Equal(t, ctx, base.Conn(ctx, nil).Statement.Context)

	require.NoError(t, conn.Transaction(func(tx *gorm.DB) error {
		assert.Equal(t, tx.Statement.ConnPool, base.Conn(ctx, tx).Statement.ConnPool)
		assert.Same(t, tx, base.Conn(nil, tx))
		return nil
	}))
}

func TestTransactRollsBackOnError(t *testing.T) {
	base, conn := newBase(t)
	ctx := context.Background()

	require.NoError(t, base.Transact(ctx, func(tx *gorm.DB) error {
		return tx.Create(&counter{ID: 1, Value: 1}).Error
	}))
	failed := errors.New("ledger mismatch")
	err := base.Transact(ctx, func(tx *gorm.DB) error {
		if err := tx.Model(&counter{}).Where("id = ?", 1).Update("value", 99).Error; err != nil {
			return err
		}
		return failed
	})
	assert.ErrorIs(t, err, failed)

	var got counter
	require.NoError(t, conn.First(&got, 1).Error)
	assert.Equal(t, 1, got.Value)
}
