package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dukerupert/homequest/internal/model"
)

type AccountStore struct {
	db *sql.DB
}

func NewAccountStore(db *sql.DB) *AccountStore {
	return &AccountStore{db: db}
}

func scanAccount(s scanner) (*model.Account, error) {
	var a model.Account
	if err := s.Scan(&a.ID, &a.Name, &a.PasswordHash, &a.CreatedAt); err != nil {
		return nil, err
	}
	return &a, nil
}

const accountCols = `id, name, password_hash, created_at`

func (s *AccountStore) Create(ctx context.Context, name, passwordHash string) (*model.Account, error) {
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO accounts (name, password_hash) VALUES (?, ?)`,
		name, passwordHash,
	)
	if err != nil {
		return nil, fmt.Errorf("insert account: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(ctx, id)
}

// GetByID returns nil, nil when the account does not exist.
func (s *AccountStore) GetByID(ctx context.Context, id int64) (*model.Account, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+accountCols+` FROM accounts WHERE id = ?`, id)
	a, err := scanAccount(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get account: %w", err)
	}
	return a, nil
}
