package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"reconciler/internal/models"
)

var ErrOperatorNotFound = errors.New("operator not found")

type OperatorStore struct {
	db DB
}

func NewOperatorStore(db DB) *OperatorStore {
	return &OperatorStore{db: db}
}

func (s *OperatorStore) GetByID(ctx context.Context, id string) (models.Operator, error) {
	var operator models.Operator
	err := s.db.GetContext(ctx, &operator, `
		SELECT id, username, commission_rate, is_admin, created_at
		FROM operators
		WHERE id = $1
	`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Operator{}, ErrOperatorNotFound
		}
		return models.Operator{}, fmt.Errorf("get operator: %w", err)
	}
	return operator, nil
}

func (s *OperatorStore) IsAdmin(ctx context.Context, id string) (bool, error) {
	var isAdmin bool
	err := s.db.GetContext(ctx, &isAdmin, `SELECT is_admin FROM operators WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, err
	}
	return isAdmin, nil
}

// ListIDs returns every operator id; the scheduler reports per operator.
func (s *OperatorStore) ListIDs(ctx context.Context) ([]string, error) {
	var ids []string
	if err := s.db.SelectContext(ctx, &ids, `SELECT id FROM operators ORDER BY id`); err != nil {
		return nil, fmt.Errorf("list operators: %w", err)
	}
	return ids, nil
}
