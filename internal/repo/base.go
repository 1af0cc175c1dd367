// Package repo holds the connection plumbing shared by domain repositories.
package repo

import (
	"context"

	"gorm.io/gorm"
)

// Base is embedded by repositories. Methods that take a tx run inside the
// caller's transaction when one is given.
type Base struct {
	db *gorm.DB
}

func NewBase(db *gorm.DB) Base {
	return Base{db: db}
}

// DB returns the pooled connection bound to ctx.
func (b Base) DB(ctx context.Context) *gorm.DB {
	if ctx == nil {
		return b.db
	}
	return b.db.WithContext(ctx)
}

// Conn returns tx when set and the pooled connection otherwise.
func (b Base) Conn(ctx context.Context, tx *gorm.DB) *gorm.DB {
	switch {
	case tx == nil:
		return b.DB(ctx)
	case ctx == nil:
		return tx
	default:
		return tx.WithContext(ctx)
	}
}

// Transact runs fn in a new transaction; a nested call becomes a savepoint
// when fn uses the tx it was given.
func (b Base) Transact(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return b.DB(ctx).Transaction(fn)
}
