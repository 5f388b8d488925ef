package repositories

import (
	"context"

	"gorm.io/gorm"
)

// TxManager owns the transaction boundary. Repositories re-bind themselves to
// the transaction via WithTx so one atomic scope can span several of them.
type TxManager interface {
	Transaction(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type gormTxManager struct {
	db *gorm.DB
}

func NewTxManager(db *gorm.DB) TxManager {
	return &gormTxManager{db: db}
}

func (m *gormTxManager) Transaction(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return m.db.WithContext(ctx).Transaction(fn)
}
