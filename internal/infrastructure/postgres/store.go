package postgres

import (
	"context"
	"database/sql"

	"github.com/oksasatya/mobile-otp-auth/internal/domain/repository"
	"github.com/oksasatya/mobile-otp-auth/internal/infrastructure/dbx"
)

type Store struct {
	db *sql.DB
}

var _ repository.Store = (*Store)(nil)

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Users() repository.UserRepository {
	return NewUserRepository(s.db)
}

func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, users repository.UserRepository) error) error {
	return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		return fn(ctx, &UserRepository{db: tx, forUpdate: true})
	})
}
