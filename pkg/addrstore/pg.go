package addrstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/uptrace/bun"
)

type pgStore struct {
	db *bun.DB
}

// NewStore creates a new postgres implementation of the address cache
func NewStore(db *bun.DB) *pgStore {
	return &pgStore{db: db}
}

func (s *pgStore) Get(ctx context.Context, deploymentAddress string) (*Details, error) {
	dao := new(DeploymentAddressDao)
	err := s.db.NewSelect().
		Model(dao).
		Where("deployment_address = ?", deploymentAddress).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrAddressNotFound
		}
		return nil, fmt.Errorf("failed to get deployment address: %w", err)
	}

	return toDetails(dao), nil
}

// Put inserts a cache record. Concurrent workers can race on the same
// address, so a conflicting insert is a no-op rather than an error.
func (s *pgStore) Put(ctx context.Context, details *Details) error {
	_, err := s.db.NewInsert().
		Model(toDao(details)).
		On("CONFLICT (deployment_address) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to put deployment address: %w", err)
	}

	return nil
}
